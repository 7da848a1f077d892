package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/dshills/contractcheck/internal/batch"
	"github.com/dshills/contractcheck/internal/check"
)

type batchFlags struct {
	manifest     string
	contractFile string
	outputs      []string
	concurrency  int
}

func newBatchCmd(a *app) *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "batch [output...]",
		Short: "Verify many outputs concurrently",
		Long: `Verify many outputs concurrently and print a JSON report.

Either name one contract and the outputs to check against it:

  contractcheck batch -c contract.json out1.json out2.json

or give a manifest (JSON or YAML) listing the jobs:

  jobs:
    - contract: orders.json
      output: run-1/orders.json

The exit code is the most severe exit code of any job.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.outputs = args
			if !cmd.Flags().Changed("concurrency") {
				f.concurrency = a.cfg.Batch.Concurrency
			}
			return runBatch(cmd.Context(), f, a.stdout)
		},
	}
	cmd.Flags().StringVarP(&f.manifest, "manifest", "m", "", "manifest file listing contract/output jobs")
	cmd.Flags().StringVarP(&f.contractFile, "contract", "c", "", "contract applied to every output argument")
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "j", 4, "maximum jobs verified at once")
	return cmd
}

func runBatch(ctx context.Context, f batchFlags, stdout io.Writer) error {
	jobs, err := batchJobs(f)
	if err != nil {
		return &exitError{code: check.ExitRuntime, err: err}
	}

	report, err := batch.Run(ctx, jobs, f.concurrency)
	if err != nil {
		return &exitError{code: check.ExitRuntime, err: err}
	}

	b, err := json.MarshalIndentWithOption(report, "", "  ", json.DisableHTMLEscape())
	if err != nil {
		return &exitError{code: check.ExitRuntime, err: fmt.Errorf("encode report: %w", err)}
	}
	if _, err := stdout.Write(append(b, '\n')); err != nil {
		return &exitError{code: check.ExitRuntime, err: fmt.Errorf("write report: %w", err)}
	}
	return exitWith(report.ExitCode)
}

func batchJobs(f batchFlags) ([]batch.Job, error) {
	switch {
	case f.manifest != "" && (f.contractFile != "" || len(f.outputs) > 0):
		return nil, errors.New("--manifest cannot be combined with --contract or output arguments")
	case f.manifest != "":
		m, err := batch.LoadManifest(f.manifest)
		if err != nil {
			return nil, err
		}
		return m.Jobs, nil
	case f.contractFile == "":
		return nil, errors.New("either --manifest or --contract is required")
	case len(f.outputs) == 0:
		return nil, errors.New("no output files given")
	}
	jobs := make([]batch.Job, 0, len(f.outputs))
	for _, out := range f.outputs {
		jobs = append(jobs, batch.Job{Contract: f.contractFile, Output: out})
	}
	return jobs, nil
}
