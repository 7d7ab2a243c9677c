package transform

import (
	"strings"

	"fortio.org/safecast"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/parser"
)

// UnknownRule is the check name of diagnostics without a code.
const UnknownRule = "unknown"

// Clippy normalizes cargo/rustc diagnostics.
type Clippy struct {
	opts  Options
	stats NormalizeStats
}

var _ Normalizer = (*Clippy)(nil)

// NewClippy creates a clippy normalizer.
func NewClippy(opts Options) *Clippy {
	return &Clippy{opts: opts.withDefaults()}
}

// Stats returns the counters collected so far.
func (c *Clippy) Stats() NormalizeStats {
	return c.stats
}

// NormalizeAll implements Normalizer.
func (c *Clippy) NormalizeAll(rec parser.Record) ([]codequality.Issue, Outcome) {
	issue, outcome := c.Normalize(rec)
	if outcome != OutcomeIssue {
		return nil, outcome
	}
	return []codequality.Issue{issue}, outcome
}

// Normalize converts one record. Only compiler-message records and bare
// rustc diagnostics can produce an issue; every other record is ignored.
func (c *Clippy) Normalize(rec parser.Record) (codequality.Issue, Outcome) {
	log := c.opts.Logger

	var diag *parser.Diagnostic
	switch {
	case rec.Kind == parser.ReasonCompilerMessage:
		msg, err := parser.ParseCompilerMessage(rec)
		if err != nil {
			log.Debugw("Skipping undecodable compiler message", "line", rec.Line, "error", err)
			return codequality.Issue{}, OutcomeInvalid
		}
		diag = &msg.Message
	case rec.Kind == "" && rec.MessageType == parser.MessageTypeDiagnostic:
		d, err := parser.ParseDiagnostic(rec)
		if err != nil {
			log.Debugw("Skipping undecodable diagnostic", "line", rec.Line, "error", err)
			return codequality.Issue{}, OutcomeInvalid
		}
		diag = d
	default:
		return codequality.Issue{}, OutcomeIgnored
	}

	rule := diag.CodeOr(UnknownRule)
	span := diag.PrimarySpan()
	if span == nil || span.LineStart == 0 {
		log.Debugw("Diagnostic has no source location", "line", rec.Line, "rule", rule, "message", diag.Message)
		return codequality.Issue{}, OutcomeUnlocated
	}

	begin, err := safecast.Conv[int](span.LineStart)
	if err != nil {
		log.Debugw("Line number out of range", "line", rec.Line, "rule", rule, "error", err)
		return codequality.Issue{}, OutcomeInvalid
	}
	end, err := safecast.Conv[int](span.LineEnd)
	if err != nil {
		end = 0
	}

	path := c.opts.Paths.Normalize(span.FileName)
	if path == "" {
		return codequality.Issue{}, OutcomeUnlocated
	}

	sev, known := c.opts.Severity.For(rule, diag.Level)
	if !known {
		c.stats.UnknownSeverity++
		log.Debugw("Unknown diagnostic level, using minor", "line", rec.Line, "level", diag.Level)
	}

	issue := codequality.NewIssue(rule, sev, strings.TrimSpace(diag.Message), path, begin).
		WithLineEnd(end)
	if c.opts.IncludeSuggestions {
		issue = issue.WithSuggestion(strings.Join(diag.Suggestions(), "; "))
	}
	return issue, OutcomeIssue
}
