package feed

import (
	"bufio"
	"fmt"
	"os"

	"pm-arb-bot/internal/book"

	"github.com/vmihailenco/msgpack/v5"
)

// Captures are a stream of msgpack records, one per update, appended as
// decoded. Level arrays are stored as populated prefixes so a quiet book
// does not pay for MaxDepth.
type captureRecord struct {
	Asset     string       `msgpack:"a"`
	Kind      uint8        `msgpack:"k"`
	Seq       uint64       `msgpack:"q"`
	Timestamp int64        `msgpack:"t"`
	Bids      []book.Level `msgpack:"b"`
	Asks      []book.Level `msgpack:"s"`
	Side      uint8        `msgpack:"d"`
	Price     int64        `msgpack:"p"`
	Size      int64        `msgpack:"z"`
}

// CaptureWriter appends updates to a capture file.
type CaptureWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *msgpack.Encoder
}

func OpenCaptureWriter(path string) (*CaptureWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	return &CaptureWriter{f: f, buf: buf, enc: msgpack.NewEncoder(buf)}, nil
}

func (w *CaptureWriter) Append(u *Update) error {
	rec := captureRecord{
		Asset:     u.Asset,
		Kind:      uint8(u.Kind),
		Seq:       u.Seq,
		Timestamp: u.Timestamp,
		Side:      uint8(u.Side),
		Price:     int64(u.Price),
		Size:      int64(u.Size),
	}
	if u.NBids > 0 {
		rec.Bids = u.Bids[:u.NBids]
	}
	if u.NAsks > 0 {
		rec.Asks = u.Asks[:u.NAsks]
	}
	return w.enc.Encode(&rec)
}

func (w *CaptureWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// CaptureReader replays a capture file in recorded order.
type CaptureReader struct {
	f   *os.File
	dec *msgpack.Decoder
}

func OpenCaptureReader(path string) (*CaptureReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", path, err)
	}
	return &CaptureReader{f: f, dec: msgpack.NewDecoder(bufio.NewReader(f))}, nil
}

// Next decodes the next update into u. Returns io.EOF at end of stream.
func (r *CaptureReader) Next(u *Update) error {
	var rec captureRecord
	if err := r.dec.Decode(&rec); err != nil {
		return err
	}
	*u = Update{
		Asset:     rec.Asset,
		Kind:      UpdateKind(rec.Kind),
		Seq:       rec.Seq,
		Timestamp: rec.Timestamp,
		Side:      book.Side(rec.Side),
		Price:     book.Price(rec.Price),
		Size:      book.Size(rec.Size),
	}
	u.NBids = copy(u.Bids[:], rec.Bids)
	u.NAsks = copy(u.Asks[:], rec.Asks)
	return nil
}

func (r *CaptureReader) Close() error { return r.f.Close() }
