package codequality

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// IssueSet is an insertion-ordered set of issues keyed by fingerprint.
//
// The set keeps a map from fingerprint to position plus the ordered slice of
// first-seen issues. Later issues with a known fingerprint are dropped and
// counted as duplicates, so memory grows with unique issues only.
type IssueSet struct {
	index      map[string]int
	issues     []Issue
	duplicates int
}

// NewIssueSet creates an empty set. The zero value is also ready to use.
func NewIssueSet() *IssueSet {
	return &IssueSet{index: make(map[string]int)}
}

// Add inserts the issue unless its fingerprint is already present.
// Returns true if the issue was added.
func (s *IssueSet) Add(issue Issue) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if issue.Fingerprint == "" {
		issue.Fingerprint = Fingerprint(issue.CheckName, issue.Description, issue.Path, issue.LineBegin)
	}
	if _, seen := s.index[issue.Fingerprint]; seen {
		s.duplicates++
		return false
	}
	s.index[issue.Fingerprint] = len(s.issues)
	s.issues = append(s.issues, issue)
	return true
}

func (s *IssueSet) get(fingerprint string) (Issue, bool) {
	i, ok := s.index[fingerprint]
	if !ok {
		return Issue{}, false
	}
	return s.issues[i], true
}

// Len returns the number of unique issues.
func (s *IssueSet) Len() int {
	return len(s.issues)
}

// Duplicates returns how many issues were dropped as duplicates.
func (s *IssueSet) Duplicates() int {
	return s.duplicates
}

// Issues returns the unique issues in first-seen order.
func (s *IssueSet) Issues() []Issue {
	return slices.Clone(s.issues)
}

// Check verifies that the index and the ordered slice agree.
func (s *IssueSet) Check() error {
	if len(s.index) != len(s.issues) {
		return errors.AssertionFailedf("issue set index has %d entries for %d issues", len(s.index), len(s.issues))
	}
	for i, issue := range s.issues {
		if at, ok := s.index[issue.Fingerprint]; !ok || at != i {
			return errors.AssertionFailedf("issue %s at position %d is indexed at %d", short(issue.Fingerprint), i, at)
		}
	}
	return nil
}
