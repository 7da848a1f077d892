package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/contractcheck/internal/check"
	"github.com/dshills/contractcheck/internal/render"
	"github.com/dshills/contractcheck/internal/schema"
	"github.com/dshills/contractcheck/internal/verdict"
)

type checkFlags struct {
	contractFile string
	outputFile   string
	format       string
	out          string
	title        string
}

func newCheckCmd(a *app) *cobra.Command {
	var f checkFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify an output document against a contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("format") {
				f.format = a.cfg.Output.Format
			}
			return runCheck(f, a.stdout)
		},
	}
	cmd.Flags().StringVarP(&f.contractFile, "contract", "c", "", "contract file (JSON, or YAML by extension)")
	cmd.Flags().StringVarP(&f.outputFile, "output", "o", "", "output document to verify (JSON)")
	cmd.Flags().StringVar(&f.format, "format", "json", "verdict format: json, markdown, ci")
	cmd.Flags().StringVar(&f.out, "out", "", "write the verdict to this file instead of stdout")
	cmd.Flags().StringVar(&f.title, "title", "", "heading for markdown output")
	return cmd
}

func runCheck(f checkFlags, stdout io.Writer) error {
	format, err := render.ParseFormat(f.format)
	if err != nil {
		return &exitError{code: check.ExitRuntime, err: err}
	}

	var v schema.Verdict
	var runErr error
	switch {
	case f.contractFile == "":
		runErr = &check.RunError{Kind: check.KindIO, Err: errors.New("no contract file given (use --contract)")}
	case f.outputFile == "":
		runErr = &check.RunError{Kind: check.KindIO, Err: errors.New("no output file given (use --output)")}
	default:
		v, runErr = check.Run(f.contractFile, f.outputFile)
	}
	if runErr != nil {
		slog.Debug("check failed before evaluation", "err", runErr)
	}

	v, code := check.Outcome(v, runErr)
	return emitVerdict(stdout, f.out, verdictOptions{
		format: format,
		title:  f.title,
		file:   f.outputFile,
	}, v, code)
}

type lintFlags struct {
	contractFile string
	format       string
}

func newLintCmd(a *app) *cobra.Command {
	var f lintFlags
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Parse and pre-validate a contract without checking any output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("format") {
				f.format = a.cfg.Output.Format
			}
			return runLint(f, a.stdout)
		},
	}
	cmd.Flags().StringVarP(&f.contractFile, "contract", "c", "", "contract file (JSON, or YAML by extension)")
	cmd.Flags().StringVar(&f.format, "format", "json", "verdict format: json, markdown, ci")
	return cmd
}

func runLint(f lintFlags, stdout io.Writer) error {
	format, err := render.ParseFormat(f.format)
	if err != nil {
		return &exitError{code: check.ExitRuntime, err: err}
	}

	var runErr error
	if f.contractFile == "" {
		runErr = &check.RunError{Kind: check.KindIO, Err: errors.New("no contract file given (use --contract)")}
	} else if compiled, err := check.LoadContract(f.contractFile); err != nil {
		runErr = err
	} else {
		slog.Info("contract is valid", "file", f.contractFile, "rules", len(compiled.Rules))
	}

	v, code := check.Outcome(verdict.Assemble(nil), runErr)
	return emitVerdict(stdout, "", verdictOptions{
		format: format,
		title:  "Contract Lint",
		file:   f.contractFile,
	}, v, code)
}

type verdictOptions struct {
	format render.Format
	title  string
	// file is the path annotations in ci format point at.
	file string
}

// emitVerdict writes v to outPath, or to stdout when outPath is empty, and
// returns the exit error for code. A verdict that cannot be encoded is
// replaced by the fallback document and forces the runtime exit code.
func emitVerdict(stdout io.Writer, outPath string, opts verdictOptions, v schema.Verdict, code int) error {
	var body []byte
	switch opts.format {
	case render.FormatMarkdown:
		body = []byte(render.RenderMarkdown(v, opts.title))
	case render.FormatCI:
		body = []byte(render.RenderCI(v, opts.file))
	default:
		b, err := render.RenderJSON(v)
		if err != nil {
			slog.Error("verdict serialization failed", "err", err)
			b = render.FallbackJSON(err)
			code = check.ExitRuntime
		}
		body = append(b, '\n')
	}

	if outPath != "" {
		if err := os.WriteFile(outPath, body, 0o644); err != nil {
			return &exitError{code: check.ExitRuntime, err: fmt.Errorf("write verdict: %w", err)}
		}
		return exitWith(code)
	}
	if _, err := stdout.Write(body); err != nil {
		return &exitError{code: check.ExitRuntime, err: fmt.Errorf("write verdict: %w", err)}
	}
	return exitWith(code)
}
