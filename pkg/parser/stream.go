// Package parser decodes the machine-readable output of the Rust toolchain.
//
// Input is newline-delimited JSON: `cargo clippy --message-format=json`
// emits one cargo message per line and `rustfmt --emit json` emits one JSON
// array. Each line is decoded on its own so a malformed line never aborts
// the stream.
package parser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record is one decoded line of the input stream.
type Record struct {
	Line int
	// Kind is the cargo message "reason" when the line is an object carrying one.
	Kind string
	// MessageType is the "$message_type" rustc sets on bare diagnostics.
	MessageType string
	Raw         json.RawMessage
}

// IsObject reports whether the record is a JSON object.
func (r Record) IsObject() bool {
	return len(r.Raw) > 0 && r.Raw[0] == '{'
}

// IsArray reports whether the record is a JSON array.
func (r Record) IsArray() bool {
	return len(r.Raw) > 0 && r.Raw[0] == '['
}

// LineError describes a line that is not valid JSON.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return "line " + strconv.Itoa(e.Line) + ": " + e.Err.Error()
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ErrMalformed is wrapped by every LineError.
var ErrMalformed = errors.New("malformed JSON")

// DecoderStats counts what the decoder has seen so far.
type DecoderStats struct {
	Lines     int
	Blank     int
	Records   int
	Malformed int
}

// Decoder lazily reads records from a newline-delimited JSON stream.
//
//	dec := parser.NewDecoder(r)
//	for dec.Next() {
//		if lerr := dec.Malformed(); lerr != nil {
//			continue
//		}
//		rec := dec.Record()
//	}
//	if err := dec.Err(); err != nil { ... }
type Decoder struct {
	r         *bufio.Reader
	line      int
	rec       Record
	malformed *LineError
	err       error
	done      bool
	stats     DecoderStats
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next non-blank line. It returns false when the input
// is exhausted or a read error occurred (see Err). A line that is not valid
// JSON still advances; Malformed then reports it.
func (d *Decoder) Next() bool {
	d.malformed = nil
	d.rec = Record{}

	for !d.done {
		raw, err := d.r.ReadBytes('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				d.err = errors.Wrapf(err, "read input after line %d", d.line)
				d.done = true
				return false
			}
			d.done = true
			if len(raw) == 0 {
				return false
			}
		}

		d.line++
		d.stats.Lines++

		trimmed := bytes.TrimSpace(raw)
		if d.line == 1 {
			trimmed = bytes.TrimPrefix(trimmed, utf8BOM)
		}
		if len(trimmed) == 0 {
			d.stats.Blank++
			continue
		}

		if !json.Valid(trimmed) {
			d.stats.Malformed++
			d.malformed = &LineError{Line: d.line, Err: errors.Wrapf(ErrMalformed, "%s", preview(trimmed))}
			d.rec = Record{Line: d.line}
			return true
		}

		d.stats.Records++
		d.rec = newRecord(d.line, trimmed)
		return true
	}
	return false
}

// Record returns the record decoded by the last call to Next.
func (d *Decoder) Record() Record {
	return d.rec
}

// Malformed returns the error for the current line, or nil if it decoded.
func (d *Decoder) Malformed() *LineError {
	return d.malformed
}

// Err returns the first read error. Malformed lines are not reported here.
func (d *Decoder) Err() error {
	return d.err
}

// Stats returns the decoder counters.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

type recordHeader struct {
	Reason      string `json:"reason"`
	MessageType string `json:"$message_type"`
}

func newRecord(line int, data []byte) Record {
	rec := Record{
		Line: line,
		Raw:  json.RawMessage(bytes.Clone(data)),
	}
	if rec.IsObject() {
		var hdr recordHeader
		// A header with unexpected field types is simply an unknown kind.
		if err := json.Unmarshal(data, &hdr); err == nil {
			rec.Kind = hdr.Reason
			rec.MessageType = hdr.MessageType
		}
	}
	return rec
}

func preview(b []byte) string {
	const limit = 60
	r := []rune(string(b))
	if len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return string(r)
}
