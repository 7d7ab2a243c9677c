package db

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackingDB_OpenClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	db, err := Open(dbPath)
	require.NoError(t, err)
	assert.Equal(t, dbPath, db.Path())
	require.NoError(t, db.Close())

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file created")

	// Reopening an existing database keeps the schema.
	db, err = Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestTrackingDB_StoreAndGet(t *testing.T) {
	db := setupTestDB(t)

	now := time.Now().UTC().Truncate(time.Second)
	issue := testIssue("fp-1", "src/a.rs", 10, now)
	require.NoError(t, db.Store(issue))

	got, err := db.Get("fp-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "lints", got.Source)
	assert.Equal(t, "clippy::redundant_clone", got.CheckName)
	assert.Equal(t, "src/a.rs", got.Path)
	assert.Equal(t, 10, got.Line)
	assert.Equal(t, "minor", got.Severity)
	assert.True(t, now.Equal(got.FirstSeen))
	assert.Nil(t, got.ResolvedAt)
	assert.Equal(t, "run-1", got.LastRun)

	missing, err := db.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTrackingDB_UpsertReopens(t *testing.T) {
	db := setupTestDB(t)

	first := time.Now().UTC().Truncate(time.Second)
	later := first.Add(time.Hour)

	require.NoError(t, db.Store(testIssue("fp-1", "src/a.rs", 1, first)))
	require.NoError(t, db.markResolved("fp-1", first.Add(time.Minute)))

	again := testIssue("fp-1", "src/a.rs", 1, later)
	again.Severity = "major"
	require.NoError(t, db.Store(again))

	got, err := db.Get("fp-1")
	require.NoError(t, err)
	assert.True(t, first.Equal(got.FirstSeen), "first_seen survives the upsert")
	assert.True(t, later.Equal(got.LastSeen))
	assert.Equal(t, "major", got.Severity)
	assert.Nil(t, got.ResolvedAt, "seeing an issue again reopens it")
}

func TestTrackingDB_GetUnresolvedBySource(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, db.Store(testIssue("fp-b", "src/b.rs", 1, now)))
	require.NoError(t, db.Store(testIssue("fp-a2", "src/a.rs", 20, now)))
	require.NoError(t, db.Store(testIssue("fp-a1", "src/a.rs", 3, now)))
	fmt := testIssue("fp-fmt", "src/a.rs", 1, now)
	fmt.Source = "rustfmt"
	require.NoError(t, db.Store(fmt))
	require.NoError(t, db.markResolved("fp-b", now))

	open, err := db.GetUnresolved("lints")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "fp-a1", open[0].Fingerprint, "ordered by path then line")
	assert.Equal(t, "fp-a2", open[1].Fingerprint)

	fmtOpen, err := db.GetUnresolved("rustfmt")
	require.NoError(t, err)
	assert.Len(t, fmtOpen, 1)

	all, err := db.getAll()
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestTrackingDB_MarkResolvedUnknown(t *testing.T) {
	db := setupTestDB(t)
	err := db.markResolved("0123456789abcdef", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0123456789ab")
}

func TestTrackingDB_ApplyRun(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, db.Store(testIssue("old", "src/old.rs", 1, now)))

	seen := []*Issue{
		testIssue("new-1", "src/a.rs", 1, now),
		testIssue("new-2", "src/a.rs", 2, now),
	}
	require.NoError(t, db.ApplyRun(seen, []string{"old"}, now))

	old, err := db.Get("old")
	require.NoError(t, err)
	require.NotNil(t, old.ResolvedAt)

	total, unresolved, resolved, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, unresolved)
	assert.Equal(t, 1, resolved)
}

func TestTrackingDB_Runs(t *testing.T) {
	db := setupTestDB(t)
	start := time.Now().UTC().Truncate(time.Second)

	first, err := db.BeginRun("lints", start)
	require.NoError(t, err)
	assert.Len(t, first.ID, 36, "uuid")
	assert.Equal(t, RunPending, first.Status)

	second, err := db.BeginRun("rustfmt", start.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	pending, err := db.PendingRuns()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID, "oldest first")

	first.Issues, first.New, first.Changed, first.Resolved = 5, 2, 1, 3
	require.NoError(t, db.CompleteRun(first, start.Add(2*time.Second)))
	assert.Equal(t, RunCompleted, first.Status)
	require.NotNil(t, first.FinishedAt)

	require.NoError(t, db.FailRun(second.ID, "interrupted", start.Add(2*time.Minute)))

	pending, err = db.PendingRuns()
	require.NoError(t, err)
	assert.Empty(t, pending)

	runs, err := db.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID, "newest first")
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Equal(t, "interrupted", runs[0].Error)
	assert.Equal(t, 5, runs[1].Issues)
	assert.Equal(t, 2, runs[1].New)
	assert.Equal(t, 1, runs[1].Changed)
	assert.Equal(t, 3, runs[1].Resolved)

	limited, err := db.RecentRuns(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	err = db.CompleteRun(&Run{ID: "missing"}, start)
	assert.Error(t, err)
}

func TestTrackingDB_Stats(t *testing.T) {
	db := setupTestDB(t)
	now := time.Now().UTC()

	total, unresolved, resolved, err := db.Stats()
	require.NoError(t, err)
	assert.Zero(t, total+unresolved+resolved)

	minor := testIssue("fp1", "a.rs", 1, now)
	major := testIssue("fp2", "b.rs", 2, now)
	major.Severity = "major"
	gone := testIssue("fp3", "c.rs", 3, now)
	require.NoError(t, db.Store(minor))
	require.NoError(t, db.Store(major))
	require.NoError(t, db.Store(gone))
	require.NoError(t, db.markResolved("fp3", now))

	total, unresolved, resolved, err = db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 2, unresolved)
	assert.Equal(t, 1, resolved)

	counts, err := db.CountBySeverity()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"minor": 1, "major": 1}, counts)
}

func TestOpenDB_SchemaFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("PRAGMA journal_mode=WAL")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS issues").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectClose()

	_, err = openDB(sqlDB, "history.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize schema of history.db")
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRun_RollsBackOnFailure(t *testing.T) {
	db, mock := mockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO issues").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE issues SET resolved_at").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	err := db.ApplyRun([]*Issue{testIssue("fp-1", "src/a.rs", 1, now)}, []string{"fp-old"}, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve issue fp-old")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRun_CommitFailure(t *testing.T) {
	db, mock := mockDB(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO issues").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err := db.ApplyRun([]*Issue{testIssue("fp-1", "src/a.rs", 1, now)}, nil, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit run")
}

func TestBeginRun_InsertFailure(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(sqlmock.AnyArg(), "lints", "pending", sqlmock.AnyArg()).
		WillReturnError(errors.New("readonly database"))

	_, err := db.BeginRun("lints", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats_QueryFailure(t *testing.T) {
	db, mock := mockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM issues")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM issues WHERE resolved_at IS NULL")).
		WillReturnError(errors.New("boom"))

	_, _, _, err := db.Stats()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count unresolved issues")
}

func testIssue(fp, path string, line int, at time.Time) *Issue {
	return &Issue{
		Fingerprint: fp,
		Source:      "lints",
		CheckName:   "clippy::redundant_clone",
		Path:        path,
		Line:        line,
		Severity:    "minor",
		Description: "redundant clone",
		FirstSeen:   at,
		LastSeen:    at,
		LastRun:     "run-1",
	}
}

func setupTestDB(t *testing.T) *TrackingDB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func mockDB(t *testing.T) (*TrackingDB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &TrackingDB{db: sqlDB, path: "mock.db"}, mock
}
