package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/contractcheck/internal/check"
	"github.com/dshills/contractcheck/internal/llm"
	"github.com/dshills/contractcheck/internal/profile"
	"github.com/dshills/contractcheck/internal/render"
	"github.com/dshills/contractcheck/internal/schema"
)

type generateFlags struct {
	contractFile string
	promptFile   string
	provider     string
	model        string
	profileName  string
	maxTokens    int
	temperature  float64
	save         string
	format       string
}

func newGenerateCmd(a *app) *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Ask a model for output that satisfies a contract",
		Long: `Ask a model for a document that satisfies the contract, verify it, and
retry once with the violations when the profile allows it.

The accepted document is written to stdout (and to --save when given); the
verdict is written to stderr. Exit codes are the same as for check, with
provider failures reported as runtime failures.

API keys are read from ANTHROPIC_API_KEY, OPENAI_API_KEY or GOOGLE_API_KEY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.applyConfig(cmd, a)
			return runGenerate(cmd.Context(), f, a.stdout, a.stderr)
		},
	}
	cmd.Flags().StringVarP(&f.contractFile, "contract", "c", "", "contract file (JSON, or YAML by extension)")
	cmd.Flags().StringVarP(&f.promptFile, "prompt", "p", "", "file holding the task description")
	cmd.Flags().StringVar(&f.provider, "provider", "", "LLM provider: "+strings.Join(llm.ProviderNames(), ", "))
	cmd.Flags().StringVar(&f.model, "model", "", "model name")
	cmd.Flags().StringVar(&f.profileName, "profile", "", "generation profile: "+strings.Join(profile.Names(), ", "))
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "maximum response tokens")
	cmd.Flags().Float64Var(&f.temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().StringVar(&f.save, "save", "", "also write the accepted document to this file")
	cmd.Flags().StringVar(&f.format, "format", "", "verdict format: json, markdown, ci")
	return cmd
}

// applyConfig fills every flag the user did not set from the config file.
func (f *generateFlags) applyConfig(cmd *cobra.Command, a *app) {
	g := a.cfg.Generate
	set := cmd.Flags().Changed
	if !set("provider") {
		f.provider = g.Provider
	}
	if !set("model") {
		f.model = g.Model
	}
	if !set("profile") {
		f.profileName = g.Profile
	}
	if !set("max-tokens") {
		f.maxTokens = g.MaxTokens
	}
	if !set("temperature") {
		f.temperature = g.Temperature
	}
	if !set("format") {
		f.format = a.cfg.Output.Format
	}
}

func runGenerate(ctx context.Context, f generateFlags, stdout, stderr io.Writer) error {
	format, err := render.ParseFormat(f.format)
	if err != nil {
		return &exitError{code: check.ExitRuntime, err: err}
	}
	prof, err := profile.Load(f.profileName)
	if err != nil {
		return &exitError{code: check.ExitRuntime, err: err}
	}
	opts := verdictOptions{format: format, title: "Contract Check (generate)", file: f.save}

	if f.contractFile == "" {
		return emitFailure(stderr, opts, &check.RunError{Kind: check.KindIO, Err: errors.New("no contract file given (use --contract)")})
	}
	if f.promptFile == "" {
		return emitFailure(stderr, opts, &check.RunError{Kind: check.KindIO, Err: errors.New("no prompt file given (use --prompt)")})
	}

	compiled, err := check.LoadContract(f.contractFile)
	if err != nil {
		return emitFailure(stderr, opts, err)
	}
	task, err := os.ReadFile(f.promptFile)
	if err != nil {
		return emitFailure(stderr, opts, &check.RunError{Kind: check.KindIO, Err: err})
	}

	res, err := llm.Generate(ctx, compiled, string(task), prof, llm.Options{
		Provider:    f.provider,
		Model:       f.model,
		MaxTokens:   f.maxTokens,
		Temperature: f.temperature,
	})
	if err != nil {
		return emitFailure(stderr, opts, err)
	}
	slog.Info("generation complete",
		"provider", f.provider,
		"model", f.model,
		"attempts", res.Attempts,
		"status", res.Verdict.Status)

	doc := res.Raw + "\n"
	if f.save != "" {
		if err := os.WriteFile(f.save, []byte(doc), 0o644); err != nil {
			return emitFailure(stderr, opts, &check.RunError{Kind: check.KindIO, Err: err})
		}
	}
	if _, err := io.WriteString(stdout, doc); err != nil {
		return &exitError{code: check.ExitRuntime, err: fmt.Errorf("write document: %w", err)}
	}
	return emitVerdict(stderr, "", opts, res.Verdict, check.ExitCode(res.Verdict, nil))
}

// emitFailure writes the synthetic failure verdict for err.
func emitFailure(w io.Writer, opts verdictOptions, err error) error {
	slog.Debug("generate failed", "err", err)
	return emitVerdict(w, "", opts, check.FailureFor(err), check.ExitCode(schema.Verdict{}, err))
}
