// Package batch verifies many (contract, output) pairs concurrently. Each job
// produces the same verdict and exit code a single check would; the batch
// exit code is the most severe of them.
package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/dshills/contractcheck/internal/check"
	"github.com/dshills/contractcheck/internal/contract"
	"github.com/dshills/contractcheck/internal/jsonvalue"
	"github.com/dshills/contractcheck/internal/schema"
	"github.com/dshills/contractcheck/internal/verdict"
)

// Job names one contract and one output file.
type Job struct {
	Contract string `yaml:"contract" json:"contract"`
	Output   string `yaml:"output" json:"output"`
}

// Manifest lists the jobs of a batch. A manifest may instead name a single
// contract and many outputs; LoadManifest expands that form into Jobs.
type Manifest struct {
	Contract string   `yaml:"contract,omitempty"`
	Outputs  []string `yaml:"outputs,omitempty"`
	Jobs     []Job    `yaml:"jobs,omitempty"`
}

// Result is the outcome of one job.
type Result struct {
	Contract string               `json:"contract"`
	Output   string               `json:"output"`
	ExitCode int                  `json:"exit_code"`
	Verdict  schema.PublicVerdict `json:"verdict"`
}

// Report is the outcome of a batch, with results in manifest order.
type Report struct {
	Status   schema.Status `json:"status"`
	ExitCode int           `json:"exit_code"`
	Results  []Result      `json:"results"`
}

// LoadManifest reads a JSON or YAML manifest. Relative paths are resolved
// against the manifest's directory. Unknown keys are rejected.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("batch: %s: %w", path, err)
	}
	m.resolve(filepath.Dir(path))
	return m, nil
}

// ParseManifest decodes manifest text. JSON is accepted as YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("malformed manifest: %w", err)
	}

	if m.Contract != "" {
		if len(m.Jobs) > 0 {
			return nil, errors.New("manifest: contract/outputs and jobs are mutually exclusive")
		}
		for _, out := range m.Outputs {
			m.Jobs = append(m.Jobs, Job{Contract: m.Contract, Output: out})
		}
		m.Contract, m.Outputs = "", nil
	} else if len(m.Outputs) > 0 {
		return nil, errors.New("manifest: outputs requires contract")
	}

	if len(m.Jobs) == 0 {
		return nil, errors.New("manifest: no jobs")
	}
	for i, j := range m.Jobs {
		if j.Contract == "" || j.Output == "" {
			return nil, fmt.Errorf("manifest: jobs[%d]: contract and output are required", i)
		}
	}
	return &m, nil
}

func (m *Manifest) resolve(dir string) {
	for i := range m.Jobs {
		m.Jobs[i].Contract = resolvePath(dir, m.Jobs[i].Contract)
		m.Jobs[i].Output = resolvePath(dir, m.Jobs[i].Output)
	}
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Run verifies jobs with at most concurrency workers. Per-job failures are
// reported in the job's Result; the only error Run returns is ctx's.
func Run(ctx context.Context, jobs []Job, concurrency int) (*Report, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	cache := NewCache()
	results := make([]Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = runJob(cache, job)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Status: schema.StatusPass, ExitCode: check.ExitPass, Results: results}
	for _, r := range results {
		if r.ExitCode > report.ExitCode {
			report.ExitCode = r.ExitCode
		}
	}
	if report.ExitCode != check.ExitPass {
		report.Status = schema.StatusFail
	}
	slog.Info("batch complete",
		"jobs", len(jobs),
		"contracts", cache.Len(),
		"exit_code", report.ExitCode)
	return report, nil
}

func runJob(cache *Cache, job Job) Result {
	v, err := verifyJob(cache, job)
	out, code := check.Outcome(v, err)
	if err != nil {
		slog.Debug("batch job failed", "contract", job.Contract, "output", job.Output, "err", err)
	}
	return Result{
		Contract: job.Contract,
		Output:   job.Output,
		ExitCode: code,
		Verdict:  verdict.Public(out),
	}
}

// verifyJob follows the same failure precedence as check.Run: I/O, contract
// parse, output parse, then regex pre-validation.
func verifyJob(cache *Cache, job Job) (schema.Verdict, error) {
	contractData, err := os.ReadFile(job.Contract)
	if err != nil {
		return schema.Verdict{}, &check.RunError{Kind: check.KindIO, Err: err}
	}
	outputData, err := os.ReadFile(job.Output)
	if err != nil {
		return schema.Verdict{}, &check.RunError{Kind: check.KindIO, Err: err}
	}

	compiled, compileErr := cache.Compile(contractData, contract.FormatForPath(job.Contract))
	var re *check.RunError
	if errors.As(compileErr, &re) && re.Kind == check.KindInvalidContract {
		return schema.Verdict{}, compileErr
	}
	output, err := jsonvalue.Decode(outputData)
	if err != nil {
		return schema.Verdict{}, &check.RunError{Kind: check.KindInvalidOutput, Err: err}
	}
	if compileErr != nil {
		return schema.Verdict{}, compileErr
	}
	return check.Verify(compiled, output), nil
}
