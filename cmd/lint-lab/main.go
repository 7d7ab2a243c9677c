package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheEditor/lintlab/pkg/config"
	"github.com/TheEditor/lintlab/pkg/logger"
)

// Exit codes
const (
	ExitSuccess    = 0
	ExitError      = 1
	ExitUsageError = 2
)

// app carries state shared by all commands once PersistentPreRunE has run.
type app struct {
	cfgFile string
	verbose int
	logJSON bool

	cfg *config.Config
	log *zap.SugaredLogger
}

// usageError marks errors that should exit with ExitUsageError.
type usageError struct {
	error
}

func (u usageError) Unwrap() error { return u.error }

func usageErrorf(format string, args ...any) error {
	return usageError{errors.Newf(format, args...)}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "lint-lab",
		Short: "Turn Rust lint output into GitLab Code Quality reports and metrics",
		Long: `lint-lab converts cargo/clippy JSON diagnostics and rustfmt JSON output into
GitLab Code Quality reports, and summarizes reports into OpenMetrics documents.

Examples:
  cargo clippy --message-format=json | lint-lab lints -i - -o gl-code-quality-report.json
  cargo fmt -- --emit json | lint-lab rustfmt -i - -o rustfmt.json
  lint-lab stats --report gl-code-quality-report.json -o metrics.txt`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "Config file (default: nearest "+config.FileName+")")
	flags.CountVarP(&a.verbose, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	flags.BoolVar(&a.logJSON, "log-json", false, "Write logs as JSON")

	root.AddCommand(
		newLintsCmd(a),
		newRustfmtCmd(a),
		newStatsCmd(a),
		newHistoryCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	logger.Initialize(logger.Options{
		JSON:      a.logJSON,
		Verbosity: a.verbose,
		Output:    cmd.ErrOrStderr(),
	})
	a.log = logger.Logger

	// version works without a readable config.
	if cmd.Name() == "version" {
		a.cfg = config.Default()
		return nil
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if cfg.File != "" {
		a.log.Debugw("Loaded config", "file", cfg.File)
	}
	return nil
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	logger.Cleanup()
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	if hint := errors.FlattenHints(err); hint != "" {
		fmt.Fprintf(stderr, "Hint: %s\n", hint)
	}
	if isUsageError(err) {
		fmt.Fprintf(stderr, "Run 'lint-lab --help' for usage.\n")
		return ExitUsageError
	}
	return ExitError
}

func isUsageError(err error) bool {
	var u usageError
	if errors.As(err, &u) {
		return true
	}
	// Argument and command errors from cobra itself are plain errors.
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "required flag", "accepts ", "unknown flag"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
