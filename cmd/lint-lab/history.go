package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/db"
)

type historyOptions struct {
	dbPath string
	runs   int
	fix    bool
}

func newHistoryCmd(a *app) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the issue history database",
		Long: `Print tracked issue counts by severity and status and the most recent runs.

Runs still pending were interrupted before they completed; --fix marks them
as failed.`,
		Example: `  lint-lab history --db .lint-lab/history.db
  lint-lab history --runs 20 --fix`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runHistory(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dbPath, "db", "", "History database (default: history.path)")
	f.IntVar(&opts.runs, "runs", 10, "Number of recent runs to show")
	f.BoolVar(&opts.fix, "fix", false, "Mark pending runs as failed")
	return cmd
}

var (
	heading = color.New(color.Bold)
	warn    = color.New(color.FgYellow)
	good    = color.New(color.FgGreen)
	bad     = color.New(color.FgRed)
)

func (a *app) runHistory(cmd *cobra.Command, opts *historyOptions) error {
	path := opts.dbPath
	if path == "" {
		path = a.cfg.History.Path
	}
	if path == "" {
		return usageErrorf("no history database: pass --db or set history.path")
	}
	if opts.runs < 0 {
		return usageErrorf("--runs must be >= 0, got %d", opts.runs)
	}
	if _, err := os.Stat(path); err != nil {
		return errors.WithHint(errors.Wrapf(err, "history database %s", path),
			"run 'lint-lab lints --history "+path+"' first")
	}

	database, err := db.Open(path)
	if err != nil {
		return err
	}
	defer database.Close()

	w := cmd.ErrOrStderr()
	heading.Fprintf(w, "History: %s\n\n", path)

	total, open, resolved, err := database.Stats()
	if err != nil {
		return err
	}
	if total == 0 {
		fmt.Fprintf(w, "Database empty - no issues tracked\n")
	} else {
		bySeverity, err := database.CountBySeverity()
		if err != nil {
			return err
		}
		printIssueCounts(w, bySeverity, open, resolved)
	}

	if opts.runs > 0 {
		runs, err := database.RecentRuns(opts.runs)
		if err != nil {
			return err
		}
		printRuns(w, runs)
	}

	pending, err := database.PendingRuns()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	warn.Fprintf(w, "%d pending run(s) never completed\n", len(pending))
	if !opts.fix {
		fmt.Fprintf(w, "Run with --fix to mark them as failed\n")
		return nil
	}
	now := time.Now().UTC()
	for _, run := range pending {
		if err := database.FailRun(run.ID, "abandoned", now); err != nil {
			return err
		}
		a.log.Infow("Marked pending run as failed", "run", run.ID, "source", run.Source)
	}
	good.Fprintf(w, "Marked %d run(s) as failed\n", len(pending))
	return nil
}

func printIssueCounts(w io.Writer, bySeverity map[string]int, open, resolved int) {
	heading.Fprintf(w, "Open issues by severity:\n")
	sevs := codequality.Severities()
	// Most severe first.
	for i := len(sevs) - 1; i >= 0; i-- {
		if n := bySeverity[string(sevs[i])]; n > 0 {
			fmt.Fprintf(w, "  %-8s %s\n", sevs[i]+":", humanize.Comma(int64(n)))
		}
	}

	fmt.Fprintln(w)
	heading.Fprintf(w, "Issues by status:\n")
	fmt.Fprintf(w, "  open:     %s\n", humanize.Comma(int64(open)))
	fmt.Fprintf(w, "  resolved: %s\n", humanize.Comma(int64(resolved)))
}

func printRuns(w io.Writer, runs []*db.Run) {
	fmt.Fprintln(w)
	heading.Fprintf(w, "Recent runs:\n")
	if len(runs) == 0 {
		fmt.Fprintf(w, "  none\n")
		return
	}
	for _, run := range runs {
		status := string(run.Status)
		switch run.Status {
		case db.RunCompleted:
			status = good.Sprint(status)
		case db.RunFailed:
			status = bad.Sprint(status)
		default:
			status = warn.Sprint(status)
		}
		fmt.Fprintf(w, "  %s  %-8s %-10s %s issues (+%d ~%d -%d)  %s\n",
			shortID(run.ID), run.Source, status,
			humanize.Comma(int64(run.Issues)), run.New, run.Changed, run.Resolved,
			humanize.Time(run.StartedAt))
		if run.Error != "" {
			fmt.Fprintf(w, "            %s\n", run.Error)
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
