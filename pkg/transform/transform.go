// Package transform converts toolchain diagnostics to Code Quality issues.
//
// Every decoded record is classified with an Outcome. Only OutcomeIssue
// carries issues; the other outcomes are counted by the caller and never
// stop the run.
package transform

import (
	"go.uber.org/zap"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/parser"
)

// Outcome classifies what a record turned into.
type Outcome int

const (
	// OutcomeIssue means the record produced one or more issues.
	OutcomeIssue Outcome = iota
	// OutcomeIgnored is a record kind that never describes a finding.
	OutcomeIgnored
	// OutcomeUnlocated is a finding with no usable file location.
	OutcomeUnlocated
	// OutcomeInvalid is a finding record whose body does not decode.
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIssue:
		return "issue"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnlocated:
		return "unlocated"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Normalizer turns decoded records into issues.
type Normalizer interface {
	NormalizeAll(rec parser.Record) ([]codequality.Issue, Outcome)
	Stats() NormalizeStats
}

// NormalizeStats counts per-record conditions that are not outcomes.
type NormalizeStats struct {
	// UnknownSeverity counts diagnostics whose level had no mapping.
	UnknownSeverity int
}

// Options configures a normalizer. Zero values select the defaults.
type Options struct {
	Severity *SeverityPolicy
	Paths    *PathNormalizer
	// IncludeSuggestions appends help text to issue descriptions.
	IncludeSuggestions bool
	Logger             *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	if o.Severity == nil {
		o.Severity = DefaultSeverityPolicy()
	}
	if o.Paths == nil {
		o.Paths = &PathNormalizer{log: o.Logger}
	}
	return o
}
