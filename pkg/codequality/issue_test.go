package codequality

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"info", SeverityInfo, false},
		{"MINOR", SeverityMinor, false},
		{" major ", SeverityMajor, false},
		{"critical", SeverityCritical, false},
		{"blocker", SeverityBlocker, false},
		{"warning", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSeverity(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ParseSeverity(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseSeverity(%q)", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestSeverityRankOrder(t *testing.T) {
	sevs := Severities()
	require.Len(t, sevs, 5)
	for i, sev := range sevs {
		assert.Equal(t, i, sev.Rank(), "rank of %s", sev)
	}
	assert.Equal(t, -1, Severity("warning").Rank())
	assert.False(t, Severity("").Valid())
}

func TestIssueEntry(t *testing.T) {
	issue := NewIssue("clippy::needless_clone", SeverityMinor, "redundant clone", "src/a.rs", 10)

	entry := issue.Entry()
	assert.Equal(t, "redundant clone", entry.Description)
	assert.Equal(t, "clippy::needless_clone", entry.CheckName)
	assert.Equal(t, issue.Fingerprint, entry.Fingerprint)
	assert.Len(t, entry.Fingerprint, 64)
	assert.Equal(t, SeverityMinor, entry.Severity)
	assert.Equal(t, "src/a.rs", entry.Location.Path)
	assert.Equal(t, 10, entry.Location.Lines.Begin)
	assert.Zero(t, entry.Location.Lines.End)
}

func TestIssueSuggestionNotFingerprinted(t *testing.T) {
	plain := NewIssue("clippy::redundant_clone", SeverityMinor, "redundant clone", "src/a.rs", 3)
	suggested := plain.WithSuggestion("remove this: ``")

	assert.Equal(t, plain.Fingerprint, suggested.Fingerprint)
	assert.Equal(t, "redundant clone. remove this: ``", suggested.Message())
	assert.Equal(t, "redundant clone", plain.Message())
}

func TestIssueLineEnd(t *testing.T) {
	issue := NewIssue("rustfmt", SeverityMinor, "formatting", "src/lib.rs", 5)

	multi := issue.WithLineEnd(8)
	assert.Equal(t, 8, multi.Entry().Location.Lines.End)

	same := issue.WithLineEnd(5)
	assert.Zero(t, same.Entry().Location.Lines.End, "single-line issues omit end")

	backwards := issue.WithLineEnd(2)
	assert.Zero(t, backwards.LineEnd)

	assert.Equal(t, issue.Fingerprint, multi.Fingerprint)
}

func TestEntryRoundTripsThroughReport(t *testing.T) {
	set := NewIssueSet()
	set.Add(NewIssue("clippy::unwrap_used", SeverityMajor, "used unwrap()", "src/main.rs", 7).WithLineEnd(9))

	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, set))

	entries, err := ReadReport(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	issue, err := entries[0].Issue()
	require.NoError(t, err)
	want, _ := set.get(issue.Fingerprint)
	assert.Equal(t, want, issue)
}

func TestEntryIssueValidation(t *testing.T) {
	_, err := Entry{CheckName: "x", Location: Location{Lines: Lines{Begin: 1}}}.Issue()
	assert.ErrorContains(t, err, "missing location.path")

	_, err = Entry{CheckName: "x", Location: Location{Path: "a.rs"}}.Issue()
	assert.ErrorContains(t, err, "invalid line number")

	issue, err := Entry{CheckName: "x", Severity: "bogus", Location: Location{Path: "a.rs", Lines: Lines{Begin: 2}}}.Issue()
	require.NoError(t, err)
	assert.Equal(t, SeverityMinor, issue.Severity)
	assert.Equal(t, Fingerprint("x", "", "a.rs", 2), issue.Fingerprint)
}

func TestReadReportErrors(t *testing.T) {
	_, err := ReadReport(strings.NewReader("{"))
	assert.ErrorContains(t, err, "parse code quality report")

	_, err = ReadReport(strings.NewReader("null"))
	assert.ErrorContains(t, err, "expected a JSON array")

	entries, err := ReadReport(strings.NewReader("[]"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
