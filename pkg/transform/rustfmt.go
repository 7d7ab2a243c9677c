package transform

import (
	"strconv"
	"strings"

	"fortio.org/safecast"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/parser"
)

// RustfmtRule is the check name of formatting issues.
const RustfmtRule = "rustfmt"

const expectedPreviewRunes = 120

// Rustfmt normalizes `rustfmt --emit json` output, one issue per mismatch.
type Rustfmt struct {
	opts  Options
	stats NormalizeStats
}

var _ Normalizer = (*Rustfmt)(nil)

// NewRustfmt creates a rustfmt normalizer.
func NewRustfmt(opts Options) *Rustfmt {
	return &Rustfmt{opts: opts.withDefaults()}
}

// Stats returns the counters collected so far.
func (r *Rustfmt) Stats() NormalizeStats {
	return r.stats
}

// NormalizeAll implements Normalizer. Cargo messages that end up in the
// stream are ignored; files without mismatches yield no issues.
func (r *Rustfmt) NormalizeAll(rec parser.Record) ([]codequality.Issue, Outcome) {
	log := r.opts.Logger
	if rec.Kind != "" || rec.MessageType != "" {
		return nil, OutcomeIgnored
	}

	files, err := parser.ParseRustfmt(rec)
	if err != nil {
		log.Debugw("Skipping undecodable rustfmt record", "line", rec.Line, "error", err)
		return nil, OutcomeInvalid
	}

	sev := r.opts.Severity.Rustfmt()
	var issues []codequality.Issue
	unlocated := 0
	for _, file := range files {
		path := r.opts.Paths.Normalize(file.Name)
		for _, m := range file.Mismatches {
			begin, err := safecast.Conv[int](m.OriginalBeginLine)
			if err != nil || begin == 0 || path == "" {
				unlocated++
				continue
			}
			end, err := safecast.Conv[int](m.OriginalEndLine)
			if err != nil {
				end = 0
			}

			issue := codequality.NewIssue(RustfmtRule, sev, mismatchMessage(begin, end), path, begin).
				WithLineEnd(end)
			if r.opts.IncludeSuggestions {
				issue = issue.WithSuggestion(expectedPreview(m.Expected))
			}
			issues = append(issues, issue)
		}
	}

	if unlocated > 0 {
		log.Debugw("Dropped rustfmt mismatches without a location", "line", rec.Line, "count", unlocated)
	}
	switch {
	case len(issues) > 0:
		return issues, OutcomeIssue
	case unlocated > 0:
		return nil, OutcomeUnlocated
	default:
		return nil, OutcomeIgnored
	}
}

func mismatchMessage(begin, end int) string {
	if end <= begin {
		return "Incorrect formatting, rustfmt would change line " + strconv.Itoa(begin)
	}
	return "Incorrect formatting, rustfmt would change lines " + strconv.Itoa(begin) + "-" + strconv.Itoa(end)
}

func expectedPreview(expected string) string {
	s := strings.Join(strings.Fields(expected), " ")
	if s == "" {
		return ""
	}
	runes := []rune(s)
	if len(runes) > expectedPreviewRunes {
		s = string(runes[:expectedPreviewRunes]) + "..."
	}
	return "Expected: `" + s + "`"
}
