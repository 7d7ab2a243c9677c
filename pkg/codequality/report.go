package codequality

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
)

// ReportWriter streams issues as a Code Quality JSON array.
// Entries are encoded one at a time; Close terminates the array. A writer
// that received no issues still produces a valid empty report.
type ReportWriter struct {
	w      io.Writer
	n      int
	closed bool
	buf    bytes.Buffer
	enc    *json.Encoder
}

// NewReportWriter creates a report writer on w.
func NewReportWriter(w io.Writer) *ReportWriter {
	rw := &ReportWriter{w: w}
	rw.enc = json.NewEncoder(&rw.buf)
	rw.enc.SetEscapeHTML(false)
	rw.enc.SetIndent("  ", "  ")
	return rw
}

// Write appends one issue to the report.
func (rw *ReportWriter) Write(issue Issue) error {
	if rw.closed {
		return errors.New("write to closed report")
	}

	rw.buf.Reset()
	if rw.n == 0 {
		rw.buf.WriteString("[\n  ")
	} else {
		rw.buf.WriteString(",\n  ")
	}
	if err := rw.enc.Encode(issue.Entry()); err != nil {
		return errors.Wrapf(err, "encode issue %s", short(issue.Fingerprint))
	}
	// Encode terminates every value with a newline; the separator goes first.
	rw.buf.Truncate(rw.buf.Len() - 1)

	if _, err := rw.w.Write(rw.buf.Bytes()); err != nil {
		return errors.Wrap(err, "write report")
	}
	rw.n++
	return nil
}

// Close terminates the JSON array. It does not close the underlying writer.
func (rw *ReportWriter) Close() error {
	if rw.closed {
		return nil
	}
	rw.closed = true

	tail := "\n]\n"
	if rw.n == 0 {
		tail = "[]\n"
	}
	if _, err := io.WriteString(rw.w, tail); err != nil {
		return errors.Wrap(err, "write report")
	}
	return nil
}

// WriteReport writes the complete report for set to w.
func WriteReport(w io.Writer, set *IssueSet) error {
	if err := set.Check(); err != nil {
		return err
	}
	rw := NewReportWriter(w)
	for _, issue := range set.issues {
		if err := rw.Write(issue); err != nil {
			return err
		}
	}
	return rw.Close()
}

// ReadReport parses a Code Quality report.
func ReadReport(r io.Reader) ([]Entry, error) {
	var entries []Entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.WithHint(
			errors.Wrap(err, "parse code quality report"),
			"the report must be a JSON array as written by 'lint-lab lints'",
		)
	}
	if entries == nil {
		return nil, errors.New("parse code quality report: expected a JSON array, got null")
	}
	return entries, nil
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
