package transform

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/TheEditor/lintlab/pkg/codequality"
)

// Diagnostic levels emitted by rustc.
const (
	LevelICE         = "error: internal compiler error"
	LevelError       = "error"
	LevelWarning     = "warning"
	LevelNote        = "note"
	LevelHelp        = "help"
	LevelFailureNote = "failure-note"
)

// SeverityPolicy maps diagnostic levels and rule ids to Code Quality severities.
type SeverityPolicy struct {
	errorSeverity   codequality.Severity
	rustfmtSeverity codequality.Severity
	rules           map[string]codequality.Severity
}

// DefaultSeverityPolicy maps error to major and rustfmt findings to minor.
func DefaultSeverityPolicy() *SeverityPolicy {
	return &SeverityPolicy{
		errorSeverity:   codequality.SeverityMajor,
		rustfmtSeverity: codequality.SeverityMinor,
	}
}

// NewSeverityPolicy builds a policy from configuration values. Empty level
// names keep the defaults. Rule overrides are matched case-insensitively.
func NewSeverityPolicy(errorLevel, rustfmt string, rules map[string]string) (*SeverityPolicy, error) {
	p := DefaultSeverityPolicy()

	if errorLevel != "" {
		sev, err := codequality.ParseSeverity(errorLevel)
		if err != nil {
			return nil, errors.Wrap(err, "severity.error")
		}
		p.errorSeverity = sev
	}
	if rustfmt != "" {
		sev, err := codequality.ParseSeverity(rustfmt)
		if err != nil {
			return nil, errors.Wrap(err, "severity.rustfmt")
		}
		p.rustfmtSeverity = sev
	}

	if len(rules) > 0 {
		p.rules = make(map[string]codequality.Severity, len(rules))
		for rule, name := range rules {
			sev, err := codequality.ParseSeverity(name)
			if err != nil {
				return nil, errors.Wrapf(err, "severity.rules.%s", rule)
			}
			p.rules[strings.ToLower(strings.TrimSpace(rule))] = sev
		}
	}
	return p, nil
}

// For returns the severity for a diagnostic. The second result is false when
// the level is not part of the rustc vocabulary and the minor fallback was used.
func (p *SeverityPolicy) For(rule, level string) (codequality.Severity, bool) {
	if sev, ok := p.override(rule); ok {
		return sev, true
	}

	switch strings.ToLower(strings.TrimSpace(level)) {
	case LevelICE:
		return codequality.SeverityBlocker, true
	case LevelError:
		return p.errorSeverity, true
	case LevelWarning:
		return codequality.SeverityMinor, true
	case LevelNote, LevelHelp, LevelFailureNote:
		return codequality.SeverityInfo, true
	default:
		return codequality.SeverityMinor, false
	}
}

// Rustfmt returns the severity of formatting issues, honoring an override for
// the "rustfmt" rule.
func (p *SeverityPolicy) Rustfmt() codequality.Severity {
	if sev, ok := p.override(RustfmtRule); ok {
		return sev
	}
	return p.rustfmtSeverity
}

func (p *SeverityPolicy) override(rule string) (codequality.Severity, bool) {
	if len(p.rules) == 0 {
		return "", false
	}
	sev, ok := p.rules[strings.ToLower(strings.TrimSpace(rule))]
	return sev, ok
}
