// Package db provides SQLite-based issue history.
// It tracks fingerprinted issues across runs so each run can report which
// issues are new, changed or resolved.
package db

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS issues (
	fingerprint TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	check_name TEXT NOT NULL,
	path TEXT NOT NULL,
	line INTEGER NOT NULL,
	severity TEXT NOT NULL,
	description TEXT NOT NULL,
	first_seen TIMESTAMP NOT NULL,
	last_seen TIMESTAMP NOT NULL,
	resolved_at TIMESTAMP,
	last_run TEXT
);

CREATE INDEX IF NOT EXISTS idx_issues_source ON issues(source);
CREATE INDEX IF NOT EXISTS idx_issues_path ON issues(path);
CREATE INDEX IF NOT EXISTS idx_issues_resolved ON issues(resolved_at);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	issues INTEGER NOT NULL DEFAULT 0,
	new_issues INTEGER NOT NULL DEFAULT 0,
	changed_issues INTEGER NOT NULL DEFAULT 0,
	resolved_issues INTEGER NOT NULL DEFAULT 0,
	error TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// TrackingDB manages the history database
type TrackingDB struct {
	db   *sql.DB
	path string
}

// Issue is a tracked issue
type Issue struct {
	Fingerprint string
	// Source is the command that reported the issue ("lints" or "rustfmt").
	Source      string
	CheckName   string
	Path        string
	Line        int
	Severity    string
	Description string
	FirstSeen   time.Time
	LastSeen    time.Time
	ResolvedAt  *time.Time
	LastRun     string
}

// Run is one recorded invocation
type Run struct {
	ID         string
	Source     string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	Issues     int
	New        int
	Changed    int
	Resolved   int
	Error      string
}

// Open creates or opens a history database
func Open(path string) (*TrackingDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}
	return openDB(db, path)
}

func openDB(db *sql.DB, path string) (*TrackingDB, error) {
	// Enable WAL mode so the history command can read during a run
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "enable WAL mode on %s", path)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "initialize schema of %s", path)
	}

	return &TrackingDB{db: db, path: path}, nil
}

// Close closes the database
func (t *TrackingDB) Close() error {
	return t.db.Close()
}

// Path returns the database file path
func (t *TrackingDB) Path() string {
	return t.path
}

const upsertIssue = `
	INSERT INTO issues (fingerprint, source, check_name, path, line, severity, description, first_seen, last_seen, last_run)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(fingerprint) DO UPDATE SET
		last_seen = excluded.last_seen,
		severity = excluded.severity,
		description = excluded.description,
		last_run = excluded.last_run,
		resolved_at = NULL
`

// Store stores or updates an issue (upsert). A resolved issue seen again is
// reopened.
func (t *TrackingDB) Store(i *Issue) error {
	_, err := t.db.Exec(upsertIssue, issueArgs(i)...)
	if err != nil {
		return errors.Wrapf(err, "store issue %s", short(i.Fingerprint))
	}
	return nil
}

func issueArgs(i *Issue) []any {
	return []any{
		i.Fingerprint, i.Source, i.CheckName, i.Path, i.Line, i.Severity, i.Description,
		i.FirstSeen, i.LastSeen, nullString(i.LastRun),
	}
}

// ApplyRun upserts every seen issue and resolves the given fingerprints in a
// single transaction.
func (t *TrackingDB) ApplyRun(seen []*Issue, resolved []string, at time.Time) (err error) {
	tx, err := t.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, i := range seen {
		if _, err = tx.Exec(upsertIssue, issueArgs(i)...); err != nil {
			return errors.Wrapf(err, "store issue %s", short(i.Fingerprint))
		}
	}
	for _, fp := range resolved {
		if _, err = tx.Exec(`UPDATE issues SET resolved_at = ? WHERE fingerprint = ? AND resolved_at IS NULL`, at, fp); err != nil {
			return errors.Wrapf(err, "resolve issue %s", short(fp))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit run")
	}
	return nil
}

const selectIssue = `
	SELECT fingerprint, source, check_name, path, line, severity, description, first_seen, last_seen, resolved_at, last_run
	FROM issues
`

// Get retrieves an issue by fingerprint, or nil when it is unknown
func (t *TrackingDB) Get(fingerprint string) (*Issue, error) {
	row := t.db.QueryRow(selectIssue+`WHERE fingerprint = ?`, fingerprint)

	i, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get issue %s", short(fingerprint))
	}
	return i, nil
}

// GetUnresolved retrieves the open issues of one source
func (t *TrackingDB) GetUnresolved(source string) ([]*Issue, error) {
	return t.queryIssues(selectIssue+`
		WHERE resolved_at IS NULL AND source = ?
		ORDER BY path, line, fingerprint
	`, source)
}

// getAll retrieves all issues, resolved ones included
func (t *TrackingDB) getAll() ([]*Issue, error) {
	return t.queryIssues(selectIssue + `ORDER BY path, line, fingerprint`)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(s scanner) (*Issue, error) {
	var i Issue
	var resolvedAt sql.NullTime
	var lastRun sql.NullString

	err := s.Scan(
		&i.Fingerprint, &i.Source, &i.CheckName, &i.Path, &i.Line, &i.Severity, &i.Description,
		&i.FirstSeen, &i.LastSeen, &resolvedAt, &lastRun)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		i.ResolvedAt = &resolvedAt.Time
	}
	i.LastRun = lastRun.String
	return &i, nil
}

func (t *TrackingDB) queryIssues(query string, args ...any) ([]*Issue, error) {
	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query issues")
	}
	defer rows.Close()

	var issues []*Issue
	for rows.Next() {
		i, err := scanIssue(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan issue")
		}
		issues = append(issues, i)
	}
	return issues, errors.Wrap(rows.Err(), "iterate issues")
}

// markResolved marks a single issue as resolved
func (t *TrackingDB) markResolved(fingerprint string, resolvedAt time.Time) error {
	result, err := t.db.Exec(`UPDATE issues SET resolved_at = ? WHERE fingerprint = ?`, resolvedAt, fingerprint)
	if err != nil {
		return errors.Wrapf(err, "mark resolved %s", short(fingerprint))
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Newf("issue %s not found", short(fingerprint))
	}
	return nil
}

// BeginRun records a pending run
func (t *TrackingDB) BeginRun(source string, startedAt time.Time) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Source:    source,
		Status:    RunPending,
		StartedAt: startedAt,
	}
	_, err := t.db.Exec(`INSERT INTO runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Source, string(run.Status), run.StartedAt)
	if err != nil {
		return nil, errors.Wrap(err, "begin run")
	}
	return run, nil
}

// CompleteRun stores the counts of a finished run
func (t *TrackingDB) CompleteRun(run *Run, finishedAt time.Time) error {
	result, err := t.db.Exec(`
		UPDATE runs SET status = ?, finished_at = ?, issues = ?, new_issues = ?, changed_issues = ?, resolved_issues = ?
		WHERE id = ?
	`, string(RunCompleted), finishedAt, run.Issues, run.New, run.Changed, run.Resolved, run.ID)
	if err != nil {
		return errors.Wrapf(err, "complete run %s", run.ID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Newf("run %s not found", run.ID)
	}
	run.Status = RunCompleted
	run.FinishedAt = &finishedAt
	return nil
}

// FailRun marks a run as failed
func (t *TrackingDB) FailRun(id, reason string, finishedAt time.Time) error {
	_, err := t.db.Exec(`UPDATE runs SET status = ?, finished_at = ?, error = ? WHERE id = ?`,
		string(RunFailed), finishedAt, reason, id)
	if err != nil {
		return errors.Wrapf(err, "fail run %s", id)
	}
	return nil
}

const selectRun = `
	SELECT id, source, status, started_at, finished_at, issues, new_issues, changed_issues, resolved_issues, error
	FROM runs
`

// RecentRuns returns up to limit runs, newest first
func (t *TrackingDB) RecentRuns(limit int) ([]*Run, error) {
	return t.queryRuns(selectRun+`ORDER BY started_at DESC LIMIT ?`, limit)
}

// PendingRuns returns runs that never completed, oldest first
func (t *TrackingDB) PendingRuns() ([]*Run, error) {
	return t.queryRuns(selectRun+`WHERE status = ? ORDER BY started_at ASC`, string(RunPending))
}

func (t *TrackingDB) queryRuns(query string, args ...any) ([]*Run, error) {
	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var r Run
		var status string
		var finishedAt sql.NullTime
		var errMsg sql.NullString

		err := rows.Scan(&r.ID, &r.Source, &status, &r.StartedAt, &finishedAt,
			&r.Issues, &r.New, &r.Changed, &r.Resolved, &errMsg)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.Status = RunStatus(status)
		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		r.Error = errMsg.String
		runs = append(runs, &r)
	}
	return runs, errors.Wrap(rows.Err(), "iterate runs")
}

// Stats returns database statistics
func (t *TrackingDB) Stats() (total, unresolved, resolved int, err error) {
	err = t.db.QueryRow("SELECT COUNT(*) FROM issues").Scan(&total)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "count issues")
	}
	err = t.db.QueryRow("SELECT COUNT(*) FROM issues WHERE resolved_at IS NULL").Scan(&unresolved)
	if err != nil {
		return 0, 0, 0, errors.Wrap(err, "count unresolved issues")
	}
	resolved = total - unresolved
	return total, unresolved, resolved, nil
}

// CountBySeverity counts open issues per severity
func (t *TrackingDB) CountBySeverity() (map[string]int, error) {
	rows, err := t.db.Query(`SELECT severity, COUNT(*) FROM issues WHERE resolved_at IS NULL GROUP BY severity`)
	if err != nil {
		return nil, errors.Wrap(err, "count by severity")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, errors.Wrap(err, "scan severity count")
		}
		counts[sev] = n
	}
	return counts, errors.Wrap(rows.Err(), "iterate severity counts")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
