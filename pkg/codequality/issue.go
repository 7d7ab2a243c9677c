// Package codequality provides the GitLab Code Quality issue model.
// It defines the Issue type, the canonical severity scale, stable
// fingerprints and the streaming report writer used by the lints and
// rustfmt commands.
//
// See https://docs.gitlab.com/ee/ci/testing/code_quality.html#implement-a-custom-tool
package codequality

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Severity is the canonical Code Quality severity.
type Severity string

// Valid severities, lowest first.
const (
	SeverityInfo     Severity = "info"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
	SeverityBlocker  Severity = "blocker"
)

// Severities returns the canonical scale in ascending order.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityMinor, SeverityMajor, SeverityCritical, SeverityBlocker}
}

// ParseSeverity parses a canonical severity name (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", errors.Newf("unknown severity %q (use: info, minor, major, critical, blocker)", s)
	}
	return sev, nil
}

// Valid reports whether s is one of the canonical severities.
func (s Severity) Valid() bool {
	return s.Rank() >= 0
}

// Rank returns the position of s on the scale, or -1 if s is not canonical.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityMinor:
		return 1
	case SeverityMajor:
		return 2
	case SeverityCritical:
		return 3
	case SeverityBlocker:
		return 4
	default:
		return -1
	}
}

// Issue is a single normalized finding.
// Issues are values; the With* helpers return modified copies.
type Issue struct {
	CheckName   string
	Description string
	// Suggestion is appended to the reported description but is not part of
	// the fingerprint.
	Suggestion  string
	Severity    Severity
	Path        string
	LineBegin   int
	LineEnd     int
	Fingerprint string
}

// NewIssue creates an issue and computes its fingerprint.
func NewIssue(checkName string, severity Severity, description, path string, lineBegin int) Issue {
	return Issue{
		CheckName:   checkName,
		Description: description,
		Severity:    severity,
		Path:        path,
		LineBegin:   lineBegin,
		Fingerprint: Fingerprint(checkName, description, path, lineBegin),
	}
}

// WithSuggestion returns a copy of the issue carrying suggestion text.
func (i Issue) WithSuggestion(suggestion string) Issue {
	i.Suggestion = strings.TrimSpace(suggestion)
	return i
}

// WithLineEnd returns a copy of the issue ending at line end.
// Ends before the first line are dropped.
func (i Issue) WithLineEnd(end int) Issue {
	if end < i.LineBegin {
		end = 0
	}
	i.LineEnd = end
	return i
}

// Message returns the human description including any suggestion.
func (i Issue) Message() string {
	if i.Suggestion == "" {
		return i.Description
	}
	if i.Description == "" {
		return i.Suggestion
	}
	return i.Description + ". " + i.Suggestion
}

// Entry converts the issue to its report representation.
func (i Issue) Entry() Entry {
	lines := Lines{Begin: i.LineBegin}
	if i.LineEnd > i.LineBegin {
		lines.End = i.LineEnd
	}
	return Entry{
		Description: i.Message(),
		CheckName:   i.CheckName,
		Fingerprint: i.Fingerprint,
		Severity:    i.Severity,
		Location: Location{
			Path:  i.Path,
			Lines: lines,
		},
	}
}

// Entry is one element of a Code Quality report.
type Entry struct {
	Description string   `json:"description"`
	CheckName   string   `json:"check_name"`
	Fingerprint string   `json:"fingerprint"`
	Severity    Severity `json:"severity"`
	Location    Location `json:"location"`
}

// Location identifies the file and lines an entry refers to.
type Location struct {
	Path  string `json:"path"`
	Lines Lines  `json:"lines"`
}

// Lines is the line range of a location. End is omitted for single-line issues.
type Lines struct {
	Begin int `json:"begin"`
	End   int `json:"end,omitempty"`
}

// Issue converts a report entry back into an issue.
// The fingerprint found in the report is kept; it is only recomputed when missing.
func (e Entry) Issue() (Issue, error) {
	if e.Location.Path == "" {
		return Issue{}, errors.Newf("entry %q missing location.path", e.CheckName)
	}
	if e.Location.Lines.Begin <= 0 {
		return Issue{}, errors.Newf("entry %q has invalid line number: %d", e.CheckName, e.Location.Lines.Begin)
	}
	sev := e.Severity
	if !sev.Valid() {
		sev = SeverityMinor
	}
	issue := Issue{
		CheckName:   e.CheckName,
		Description: e.Description,
		Severity:    sev,
		Path:        e.Location.Path,
		LineBegin:   e.Location.Lines.Begin,
		Fingerprint: e.Fingerprint,
	}.WithLineEnd(e.Location.Lines.End)
	if issue.Fingerprint == "" {
		issue.Fingerprint = Fingerprint(issue.CheckName, issue.Description, issue.Path, issue.LineBegin)
	}
	return issue, nil
}
