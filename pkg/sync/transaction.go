package sync

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/db"
)

// Transaction records one run in the history: the run row is logged as
// pending first, the issue changes are applied atomically, and the run is
// then completed or marked failed. Pending runs left behind by a crash are
// found by the history command.
type Transaction struct {
	database *db.TrackingDB
	source   string
	log      *zap.SugaredLogger
	now      func() time.Time

	run       *db.Run
	startTime time.Time
	endTime   time.Time
}

// NewTransaction creates a transaction for source ("lints" or "rustfmt").
func NewTransaction(database *db.TrackingDB, source string, log *zap.SugaredLogger) *Transaction {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Transaction{database: database, source: source, log: log, now: time.Now}
}

// Record diffs the issues against the history and stores the result.
func (t *Transaction) Record(issues []codequality.Issue) (*DiffResult, error) {
	t.startTime = t.now()

	run, err := t.database.BeginRun(t.source, t.startTime)
	if err != nil {
		return nil, err
	}
	t.run = run

	result, err := NewDiffer(t.database, t.source).Diff(issues)
	if err != nil {
		return nil, t.fail(err)
	}

	seen := make([]*db.Issue, 0, len(issues))
	for _, issue := range issues {
		seen = append(seen, t.tracked(issue))
	}
	resolved := make([]string, 0, len(result.Resolved))
	for _, r := range result.Resolved {
		resolved = append(resolved, r.Fingerprint)
	}

	if err := t.database.ApplyRun(seen, resolved, t.startTime); err != nil {
		return nil, t.fail(err)
	}

	run.Issues = len(issues)
	run.New = len(result.New)
	run.Changed = len(result.Changed)
	run.Resolved = len(result.Resolved)

	t.endTime = t.now()
	if err := t.database.CompleteRun(run, t.endTime); err != nil {
		return nil, err
	}

	t.log.Infow("Recorded run in history",
		"db", t.database.Path(),
		"run", run.ID,
		"new", len(result.New),
		"changed", len(result.Changed),
		"resolved", len(result.Resolved),
	)
	return result, nil
}

// Run returns the run row, or nil before Record.
func (t *Transaction) Run() *db.Run {
	return t.run
}

func (t *Transaction) tracked(issue codequality.Issue) *db.Issue {
	return &db.Issue{
		Fingerprint: issue.Fingerprint,
		Source:      t.source,
		CheckName:   issue.CheckName,
		Path:        issue.Path,
		Line:        issue.LineBegin,
		Severity:    string(issue.Severity),
		Description: issue.Description,
		FirstSeen:   t.startTime,
		LastSeen:    t.startTime,
		LastRun:     t.run.ID,
	}
}

func (t *Transaction) fail(cause error) error {
	t.endTime = t.now()
	if err := t.database.FailRun(t.run.ID, cause.Error(), t.endTime); err != nil {
		t.log.Warnw("Could not mark run as failed", "run", t.run.ID, "error", err)
	}
	return errors.Wrapf(cause, "record run %s", t.run.ID)
}

// Summary describes a finished transaction
type Summary struct {
	Run      *db.Run
	Duration time.Duration
}

// Summary returns a summary of the recorded run
func (t *Transaction) Summary() Summary {
	return Summary{
		Run:      t.run,
		Duration: t.endTime.Sub(t.startTime),
	}
}

// String returns a string representation of the summary
func (s Summary) String() string {
	if s.Run == nil {
		return "no run recorded"
	}
	return fmt.Sprintf("Run %s: %s issues (%d new, %d changed, %d resolved) in %v",
		s.Run.ID, humanize.Comma(int64(s.Run.Issues)), s.Run.New, s.Run.Changed, s.Run.Resolved, s.Duration)
}
