package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"pm-arb-bot/internal/app"
	"pm-arb-bot/internal/config"
	"pm-arb-bot/internal/logging"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to config file")
	capturePath := flag.String("capture", "", "path to a feed capture file")
	flag.Parse()

	if *capturePath == "" {
		fatal(errors.New("-capture is required"))
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	stats, err := app.Replay(cfg, *capturePath, log)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("replayed %d updates: %d intents, %d fills, %d rejected\n",
		stats.Updates, stats.Intents, stats.Fills, stats.Rejected)
	fmt.Printf("final: bankroll=%.2f exposure=%.2f realized=%.2f open=%d\n",
		stats.Final.BankrollUSD, stats.Final.ExposureUSD, stats.Final.RealizedUSD, len(stats.Final.Positions))
	for _, pos := range stats.Final.Positions {
		fmt.Printf("  open %s: pairs=%.2f entry=%.4f cost=%.2f\n",
			pos.MarketID, pos.Size, pos.EntryPrice, pos.CostUSD)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
