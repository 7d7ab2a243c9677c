// Package pipeline runs the single linear pass from a diagnostic stream to
// a deduplicated issue set.
package pipeline

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/parser"
	"github.com/TheEditor/lintlab/pkg/stats"
	"github.com/TheEditor/lintlab/pkg/transform"
)

// Counters summarizes one run.
type Counters struct {
	Lines           int
	Records         int
	Malformed       int
	Ignored         int
	Unlocated       int
	Invalid         int
	Issues          int
	Duplicates      int
	UnknownSeverity int
}

// Auxiliary returns the per-record counters as stats inputs, in a fixed order.
func (c Counters) Auxiliary() []stats.Counter {
	return []stats.Counter{
		{Name: "input_lines", Help: "lines read from the diagnostic stream", Value: float64(c.Lines)},
		{Name: "input_malformed_lines", Help: "lines that were not valid JSON", Value: float64(c.Malformed)},
		{Name: "diagnostics_unlocated", Help: "findings without a source location", Value: float64(c.Unlocated)},
		{Name: "diagnostics_invalid", Help: "finding records that could not be decoded", Value: float64(c.Invalid)},
		{Name: "issues_duplicate", Help: "issues dropped as duplicates", Value: float64(c.Duplicates)},
		{Name: "severity_unknown", Help: "diagnostics with an unmapped level", Value: float64(c.UnknownSeverity)},
	}
}

// Pipeline ties a decoder to a normalizer.
type Pipeline struct {
	norm transform.Normalizer
	log  *zap.SugaredLogger
}

// New creates a pipeline. A nil logger discards output.
func New(norm transform.Normalizer, log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Pipeline{norm: norm, log: log}
}

// Run consumes r until EOF and returns the unique issues in first-seen order.
// Per-record problems are counted, never returned. The context is checked
// between records.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (*codequality.IssueSet, Counters, error) {
	var c Counters
	set := codequality.NewIssueSet()
	dec := parser.NewDecoder(r)

	for dec.Next() {
		if err := ctx.Err(); err != nil {
			return nil, c, errors.Wrap(err, "pipeline interrupted")
		}

		if lerr := dec.Malformed(); lerr != nil {
			p.log.Debugw("Skipping malformed line", "line", lerr.Line, "error", lerr.Err)
			continue
		}

		issues, outcome := p.norm.NormalizeAll(dec.Record())
		switch outcome {
		case transform.OutcomeIgnored:
			c.Ignored++
		case transform.OutcomeUnlocated:
			c.Unlocated++
		case transform.OutcomeInvalid:
			c.Invalid++
		case transform.OutcomeIssue:
			for _, issue := range issues {
				set.Add(issue)
			}
		}
	}

	ds := dec.Stats()
	c.Lines = ds.Lines
	c.Records = ds.Records
	c.Malformed = ds.Malformed
	c.Issues = set.Len()
	c.Duplicates = set.Duplicates()
	c.UnknownSeverity = p.norm.Stats().UnknownSeverity

	if err := dec.Err(); err != nil {
		return nil, c, err
	}

	p.log.Infow("Processed diagnostics",
		"lines", humanize.Comma(int64(c.Lines)),
		"issues", humanize.Comma(int64(c.Issues)),
		"duplicates", c.Duplicates,
		"malformed", c.Malformed,
		"unlocated", c.Unlocated,
		"invalid", c.Invalid,
		"unknown_severity", c.UnknownSeverity,
	)
	return set, c, nil
}
