// Package sync reconciles the issues of a run with the issue history.
package sync

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/db"
)

// DiffResult contains categorized issues after comparing a run with the history
type DiffResult struct {
	New       []codequality.Issue // Not tracked yet
	Changed   []ChangeRecord      // Tracked, severity changed
	Unchanged []codequality.Issue // Tracked, same severity
	Resolved  []*db.Issue         // Tracked and open, absent from this run
}

// ChangeRecord represents an issue whose severity changed
type ChangeRecord struct {
	Previous *db.Issue
	Current  codequality.Issue
}

// Differ computes diffs between runs and the history of one source
type Differ struct {
	db     *db.TrackingDB
	source string
}

// NewDiffer creates a new differ
func NewDiffer(database *db.TrackingDB, source string) *Differ {
	return &Differ{db: database, source: source}
}

// Diff compares the unique issues of a run against the open history.
// New, changed and unchanged issues keep the run order; resolved issues are
// ordered by path and line.
func (d *Differ) Diff(current []codequality.Issue) (*DiffResult, error) {
	result := &DiffResult{
		New:       make([]codequality.Issue, 0),
		Changed:   make([]ChangeRecord, 0),
		Unchanged: make([]codequality.Issue, 0),
		Resolved:  make([]*db.Issue, 0),
	}

	tracked, err := d.db.GetUnresolved(d.source)
	if err != nil {
		return nil, errors.Wrap(err, "get unresolved issues")
	}

	open := make(map[string]*db.Issue, len(tracked))
	for _, i := range tracked {
		open[i.Fingerprint] = i
	}

	seen := make(map[string]struct{}, len(current))
	for _, issue := range current {
		seen[issue.Fingerprint] = struct{}{}

		previous, exists := open[issue.Fingerprint]
		switch {
		case !exists:
			// Resolved issues that come back are new again.
			result.New = append(result.New, issue)
		case previous.Severity != string(issue.Severity):
			result.Changed = append(result.Changed, ChangeRecord{Previous: previous, Current: issue})
		default:
			result.Unchanged = append(result.Unchanged, issue)
		}
	}

	for _, previous := range tracked {
		if _, ok := seen[previous.Fingerprint]; !ok {
			result.Resolved = append(result.Resolved, previous)
		}
	}

	return result, nil
}

// Stats returns summary string
func (dr *DiffResult) Stats() string {
	return fmt.Sprintf("New: %d, Changed: %d, Resolved: %d",
		len(dr.New), len(dr.Changed), len(dr.Resolved))
}

// IsEmpty returns true if no changes detected
func (dr *DiffResult) IsEmpty() bool {
	return len(dr.New) == 0 && len(dr.Changed) == 0 && len(dr.Resolved) == 0
}

// TotalActions returns total number of history changes
func (dr *DiffResult) TotalActions() int {
	return len(dr.New) + len(dr.Changed) + len(dr.Resolved)
}
