package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheEditor/lintlab/pkg/codequality"
	"github.com/TheEditor/lintlab/pkg/db"
	"github.com/TheEditor/lintlab/pkg/metrics"
	"github.com/TheEditor/lintlab/pkg/output"
	"github.com/TheEditor/lintlab/pkg/pipeline"
	"github.com/TheEditor/lintlab/pkg/stats"
	"github.com/TheEditor/lintlab/pkg/sync"
	"github.com/TheEditor/lintlab/pkg/transform"
)

// History sources, one per report command.
const (
	sourceLints   = "lints"
	sourceRustfmt = "rustfmt"
)

type reportOptions struct {
	input         string
	output        string
	root          string
	history       string
	metricsOutput string
	metricsFormat string
}

func newLintsCmd(a *app) *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "lints",
		Short: "Convert cargo JSON diagnostics into a Code Quality report",
		Long: `Read cargo --message-format=json output (or bare rustc JSON diagnostics),
one JSON value per line, and write a GitLab Code Quality report.

Lines that are not JSON and records that are not diagnostics are skipped.`,
		Example: `  cargo clippy --message-format=json | lint-lab lints -i - -o gl-code-quality-report.json
  lint-lab lints -i clippy.jsonl -o report.json --history .lint-lab/history.db --metrics-output metrics.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runReport(cmd, opts, sourceLints)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "Diagnostics file, - for stdin")
	f.StringVarP(&opts.output, "output", "o", "", "Report file, - for stdout")
	f.StringVar(&opts.root, "root", "", "Project root for relative paths (default: project_root)")
	f.StringVar(&opts.history, "history", "", "Track issues across runs in this database (default: history.path)")
	f.StringVar(&opts.metricsOutput, "metrics-output", "", "Also write run metrics to this file, - for stdout")
	f.StringVar(&opts.metricsFormat, "metrics-format", string(metrics.FormatOpenMetrics), "Metrics format: "+formatNames())
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newRustfmtCmd(a *app) *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "rustfmt",
		Short: "Convert rustfmt JSON output into a Code Quality report",
		Long: `Read the output of rustfmt --emit json and write one Code Quality issue per
formatting mismatch.`,
		Example: `  cargo fmt -- --emit json | lint-lab rustfmt -i - -o rustfmt-report.json`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runReport(cmd, opts, sourceRustfmt)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "rustfmt JSON file, - for stdin")
	f.StringVarP(&opts.output, "output", "o", output.Stdio, "Report file, - for stdout")
	f.StringVar(&opts.root, "root", "", "Project root for relative paths (default: project_root)")
	f.StringVar(&opts.history, "history", "", "Track issues across runs in this database (default: history.path)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// runReport checks every destination before reading input, so a bad flag
// never leaves a partial report behind.
func (a *app) runReport(cmd *cobra.Command, opts *reportOptions, source string) error {
	log := a.log.With("command", source)

	root := opts.root
	if root == "" {
		root = a.cfg.ProjectRoot
	}
	history := opts.history
	if history == "" {
		history = a.cfg.History.Path
	}

	if err := output.CheckDestination(opts.output); err != nil {
		return err
	}

	var (
		format metrics.Format
		agg    *stats.Aggregator
	)
	if opts.metricsOutput != "" {
		if opts.metricsOutput == output.Stdio && opts.output == output.Stdio {
			return usageErrorf("--output and --metrics-output cannot both be stdout")
		}
		if err := output.CheckDestination(opts.metricsOutput); err != nil {
			return err
		}
		var err error
		if format, err = metrics.ParseFormat(opts.metricsFormat); err != nil {
			return err
		}
		if agg, err = stats.New(stats.Options{TopRules: a.cfg.Stats.TopRules, Namespace: a.cfg.Stats.Namespace}); err != nil {
			return err
		}
	}

	policy, err := transform.NewSeverityPolicy(a.cfg.Severity.Error, a.cfg.Severity.Rustfmt, a.cfg.Severity.Rules)
	if err != nil {
		return err
	}
	paths, err := transform.NewPathNormalizer(root, log)
	if err != nil {
		return err
	}
	log.Debugw("Normalizing paths", "root", paths.Root())
	topts := transform.Options{
		Severity:           policy,
		Paths:              paths,
		IncludeSuggestions: a.cfg.Report.IncludeSuggestions,
		Logger:             log,
	}
	var norm transform.Normalizer
	if source == sourceRustfmt {
		norm = transform.NewRustfmt(topts)
	} else {
		norm = transform.NewClippy(topts)
	}

	in, err := output.OpenInput(opts.input, cmd.InOrStdin())
	if err != nil {
		return err
	}
	defer in.Close()

	set, counters, err := pipeline.New(norm, log).Run(cmd.Context(), in)
	if err != nil {
		return errors.Wrapf(err, "read %s", opts.input)
	}

	if err := writeSink(opts.output, cmd.OutOrStdout(), func(w io.Writer) error {
		return codequality.WriteReport(w, set)
	}); err != nil {
		return err
	}
	log.Infow("Wrote report", "output", opts.output, "issues", set.Len())

	var hist *stats.History
	if history != "" {
		if hist, err = recordHistory(history, source, set.Issues(), log); err != nil {
			return err
		}
	}

	if agg == nil {
		return nil
	}
	families, err := agg.Families(stats.Input{
		Issues:    set.Issues(),
		History:   hist,
		Auxiliary: counters.Auxiliary(),
	})
	if err != nil {
		return err
	}
	return writeSink(opts.metricsOutput, cmd.OutOrStdout(), func(w io.Writer) error {
		return metrics.Write(w, format, families)
	})
}

// writeSink publishes dest only when write succeeds.
func writeSink(dest string, stdout io.Writer, write func(io.Writer) error) error {
	sink, err := output.Create(dest, stdout)
	if err != nil {
		return err
	}
	if err := write(sink); err != nil {
		_ = sink.Abort()
		return errors.Wrapf(err, "write %s", sink.Name())
	}
	return sink.Commit()
}

func recordHistory(path, source string, issues []codequality.Issue, log *zap.SugaredLogger) (*stats.History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create history directory for %s", path)
	}
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	tx := sync.NewTransaction(database, source, log)
	if _, err := tx.Record(issues); err != nil {
		return nil, err
	}
	log.Debugw("History run", "summary", tx.Summary().String())

	_, open, resolved, err := database.Stats()
	if err != nil {
		return nil, err
	}
	return &stats.History{Open: open, Resolved: resolved}, nil
}
