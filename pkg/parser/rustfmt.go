package parser

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// RustfmtFile is one entry of `rustfmt --emit json` output.
type RustfmtFile struct {
	// Name is the path rustfmt was given, usually absolute.
	Name       string     `json:"name"`
	Mismatches []Mismatch `json:"mismatches"`
}

// Mismatch is a region rustfmt would reformat.
type Mismatch struct {
	OriginalBeginLine uint64 `json:"original_begin_line"`
	OriginalEndLine   uint64 `json:"original_end_line"`
	ExpectedBeginLine uint64 `json:"expected_begin_line"`
	ExpectedEndLine   uint64 `json:"expected_end_line"`
	Original          string `json:"original"`
	Expected          string `json:"expected"`
}

// ParseRustfmt decodes a rustfmt record. rustfmt prints all files as one
// array; a single file object is accepted as well.
func ParseRustfmt(rec Record) ([]RustfmtFile, error) {
	switch {
	case rec.IsArray():
		var files []RustfmtFile
		if err := json.Unmarshal(rec.Raw, &files); err != nil {
			return nil, errors.Wrapf(err, "line %d: decode rustfmt output", rec.Line)
		}
		return files, nil
	case rec.IsObject():
		var file RustfmtFile
		if err := json.Unmarshal(rec.Raw, &file); err != nil {
			return nil, errors.Wrapf(err, "line %d: decode rustfmt output", rec.Line)
		}
		if file.Name == "" {
			return nil, errors.Newf("line %d: rustfmt entry missing required field: name", rec.Line)
		}
		return []RustfmtFile{file}, nil
	default:
		return nil, errors.Newf("line %d: rustfmt output must be an object or array", rec.Line)
	}
}
