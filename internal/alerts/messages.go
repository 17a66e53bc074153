package alerts

import (
	"fmt"
	"strings"
)

// Message builders for the three notification moments. Plain text, one
// message per event; the caller decides whether to send.

func EntryMessage(marketID, question string, size, costUSD, edge float64) string {
	return fmt.Sprintf("ENTER %s\n%s\npairs: %.2f cost: $%.2f edge: %.2f%%",
		marketID, trimQuestion(question), size, costUSD, edge*100)
}

func ExitMessage(marketID string, size, proceedsUSD, realizedUSD float64) string {
	return fmt.Sprintf("EXIT %s\npairs: %.2f proceeds: $%.2f realized: $%+.2f",
		marketID, size, proceedsUSD, realizedUSD)
}

func StopLossMessage(marketID string, entryPrice, markPrice, size float64) string {
	return fmt.Sprintf("STOP-LOSS %s\nentry: %.4f mark: %.4f pairs: %.2f",
		marketID, entryPrice, markPrice, size)
}

func trimQuestion(q string) string {
	q = strings.TrimSpace(q)
	if len(q) > 120 {
		return q[:117] + "..."
	}
	return q
}
