package main

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/db"
	"github.com/TheEditor/lintlab/pkg/metrics"
	"github.com/TheEditor/lintlab/pkg/output"
	"github.com/TheEditor/lintlab/pkg/stats"
)

type statsOptions struct {
	format   string
	output   string
	report   string
	lockfile string
	history  string
	aux      []string
	topRules int
}

func newStatsCmd(a *app) *cobra.Command {
	opts := &statsOptions{}
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize a Code Quality report as metrics",
		Long: `Write issue counts by severity and rule, per-file figures, dependency counts
from Cargo.lock, history totals and caller supplied counters as an OpenMetrics,
Prometheus text or JSON document.`,
		Example: `  lint-lab stats --report gl-code-quality-report.json -o metrics.txt
  lint-lab stats --format json --aux build_seconds=42 --lockfile ""`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStats(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.format, "format", string(metrics.FormatOpenMetrics), "Output format: "+formatNames())
	f.StringVarP(&opts.output, "output", "o", output.Stdio, "Metrics file, - for stdout")
	f.StringVar(&opts.report, "report", "", "Code Quality report to count issues from")
	f.StringVar(&opts.lockfile, "lockfile", "", "Cargo.lock to count dependencies from, empty to skip (default: stats.lockfile)")
	f.StringVar(&opts.history, "history", "", "History database to report totals from (default: history.path)")
	f.StringArrayVar(&opts.aux, "aux", nil, "Extra counter as name=value (repeatable)")
	f.IntVar(&opts.topRules, "top-rules", 0, "Limit issues_by_rule to the N most frequent rules (default: stats.top_rules)")
	return cmd
}

func (a *app) runStats(cmd *cobra.Command, opts *statsOptions) error {
	format, err := metrics.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if err := output.CheckDestination(opts.output); err != nil {
		return err
	}

	topRules := a.cfg.Stats.TopRules
	if cmd.Flags().Changed("top-rules") {
		topRules = opts.topRules
	}
	agg, err := stats.New(stats.Options{TopRules: topRules, Namespace: a.cfg.Stats.Namespace})
	if err != nil {
		return err
	}

	aux, err := parseAux(opts.aux)
	if err != nil {
		return err
	}
	in := stats.Input{Auxiliary: aux}

	if opts.report != "" {
		if in.Issues, err = readReport(opts.report, cmd.InOrStdin()); err != nil {
			return err
		}
	}

	lockfile := a.cfg.Stats.Lockfile
	explicit := cmd.Flags().Changed("lockfile")
	if explicit {
		lockfile = opts.lockfile
	}
	if lockfile != "" {
		lock, err := stats.LoadLockfile(lockfile)
		switch {
		case err == nil:
			s := lock.Stats()
			in.Lockfile = &s
			if s.Unparsed > 0 {
				a.log.Warnw("Lockfile versions not in semver form", "lockfile", lockfile, "count", s.Unparsed)
			}
		case errors.Is(err, stats.ErrNoLockfile) && !explicit:
			a.log.Warnw("No lockfile, skipping dependency metrics", "lockfile", lockfile)
		default:
			return err
		}
	}

	history := opts.history
	if history == "" {
		history = a.cfg.History.Path
	}
	if history != "" {
		if in.History, err = historyTotals(history); err != nil {
			return err
		}
	}

	families, err := agg.Families(in)
	if err != nil {
		return err
	}
	return writeSink(opts.output, cmd.OutOrStdout(), func(w io.Writer) error {
		return metrics.Write(w, format, families)
	})
}

// readReport loads a report as an issue set, dropping repeated fingerprints.
func readReport(src string, stdin io.Reader) ([]codequality.Issue, error) {
	in, err := output.OpenInput(src, stdin)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	entries, err := codequality.ReadReport(in)
	if err != nil {
		return nil, errors.Wrapf(err, "report %s", src)
	}
	set := codequality.NewIssueSet()
	for i, e := range entries {
		issue, err := e.Issue()
		if err != nil {
			return nil, errors.Wrapf(err, "report %s: entry %d", src, i)
		}
		set.Add(issue)
	}
	return set.Issues(), nil
}

func formatNames() string {
	names := make([]string, 0, len(metrics.Formats()))
	for _, f := range metrics.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

func parseAux(values []string) ([]stats.Counter, error) {
	counters := make([]stats.Counter, 0, len(values))
	for _, kv := range values {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.WithHint(errors.Newf("invalid --aux %q", kv), "use name=value, e.g. --aux build_seconds=42")
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid --aux %q", kv)
		}
		counters = append(counters, stats.Counter{Name: strings.TrimSpace(name), Value: value})
	}
	return counters, nil
}

func historyTotals(path string) (*stats.History, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.WithHint(errors.Wrapf(err, "history database %s", path),
			"run 'lint-lab lints --history' first")
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	_, open, resolved, err := database.Stats()
	if err != nil {
		return nil, err
	}
	return &stats.History{Open: open, Resolved: resolved}, nil
}
