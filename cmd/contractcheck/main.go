package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/contractcheck/internal/check"
	"github.com/dshills/contractcheck/internal/config"
	"github.com/dshills/contractcheck/internal/render"
)

// exitError carries a process exit code out of a command. The verdict has
// already been written when a command returns one; err is only set for
// failures that produced no verdict document.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int) error {
	if code == check.ExitPass {
		return nil
	}
	return &exitError{code: code}
}

// app holds state shared by every subcommand once the root has run.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	stdout     io.Writer
	stderr     io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, cfg: config.Default()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return check.ExitPass
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return check.ExitRuntime
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "contractcheck",
		Short: "Verify LLM outputs against a JSON contract",
		Long: `contractcheck verifies a JSON document produced by a language model against
a declarative contract and prints a pass/fail verdict.

Exit codes:
  0  pass
  1  contract violations
  2  invalid contract (parse or regex failure)
  3  runtime failure (missing file, malformed output, provider error)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/contractcheck/config.toml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newLintCmd(a))
	root.AddCommand(newBatchCmd(a))
	root.AddCommand(newGenerateCmd(a))
	return root
}

// setup loads configuration and installs the default logger. Logs go to
// stderr so stdout carries only the verdict document. A setup failure still
// prints a Runtime verdict, in JSON since the configured format is unknown.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, os.Environ())
	if err != nil {
		return a.setupFailure(err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return a.setupFailure(err)
	}
	a.cfg = cfg

	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

func (a *app) setupFailure(err error) error {
	opts := verdictOptions{format: render.FormatJSON}
	return emitVerdict(a.stdout, "", opts, check.FailureFor(err), check.ExitRuntime)
}
