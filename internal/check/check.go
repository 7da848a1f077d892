// Package check runs one contract against one output document end to end:
// read, parse, pre-validate, verify. It also owns the mapping from run
// outcomes to process exit codes and synthetic failure verdicts.
package check

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dshills/contractcheck/internal/contract"
	"github.com/dshills/contractcheck/internal/engine"
	"github.com/dshills/contractcheck/internal/jsonvalue"
	"github.com/dshills/contractcheck/internal/schema"
	"github.com/dshills/contractcheck/internal/verdict"
)

// Process exit codes.
const (
	ExitPass            = 0
	ExitContractFailed  = 1
	ExitInvalidContract = 2
	ExitRuntime         = 3
)

// Kind classifies a run failure.
type Kind int

const (
	KindIO Kind = iota
	KindInvalidContract
	KindInvalidContractRegex
	KindInvalidOutput
)

// RunError is a hard failure detected before rule evaluation.
type RunError struct {
	Kind Kind
	Err  error
}

func (e *RunError) Error() string {
	switch e.Kind {
	case KindInvalidContract:
		return "Invalid contract: " + trimSentinel(e.Err, contract.ErrInvalidContract)
	case KindInvalidContractRegex:
		return "Invalid contract regex: " + trimSentinel(e.Err, contract.ErrInvalidContractRegex)
	case KindInvalidOutput:
		return fmt.Sprintf("Invalid output JSON: %v", e.Err)
	default:
		return fmt.Sprintf("I/O error: %v", e.Err)
	}
}

func (e *RunError) Unwrap() error { return e.Err }

// trimSentinel drops the "<sentinel>: " prefix a wrapped error carries.
func trimSentinel(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

// Run reads the contract and output files and evaluates them. Both files are
// read before either is parsed, so a missing output is an I/O error even when
// the contract is also malformed.
func Run(contractPath, outputPath string) (schema.Verdict, error) {
	contractData, err := os.ReadFile(contractPath)
	if err != nil {
		return schema.Verdict{}, &RunError{Kind: KindIO, Err: err}
	}
	outputData, err := os.ReadFile(outputPath)
	if err != nil {
		return schema.Verdict{}, &RunError{Kind: KindIO, Err: err}
	}
	return RunBytes(contractData, contract.FormatForPath(contractPath), outputData)
}

// RunBytes evaluates in-memory sources.
func RunBytes(contractData []byte, format contract.Format, outputData []byte) (schema.Verdict, error) {
	c, err := contract.Parse(contractData, format)
	if err != nil {
		return schema.Verdict{}, &RunError{Kind: KindInvalidContract, Err: err}
	}
	output, err := jsonvalue.Decode(outputData)
	if err != nil {
		return schema.Verdict{}, &RunError{Kind: KindInvalidOutput, Err: err}
	}
	compiled, err := Compile(c)
	if err != nil {
		return schema.Verdict{}, err
	}
	return Verify(compiled, output), nil
}

// Compile pre-validates c, wrapping failures as a RunError.
func Compile(c *contract.Contract) (*contract.Compiled, error) {
	compiled, err := contract.Compile(c)
	if err != nil {
		return nil, &RunError{Kind: KindInvalidContractRegex, Err: err}
	}
	return compiled, nil
}

// Verify evaluates and logs a one-line summary at debug level.
func Verify(c *contract.Compiled, output any) schema.Verdict {
	v := engine.Verify(c, output)
	slog.Debug("verification complete",
		"contract", contractName(c.Contract),
		"rules", len(c.Rules),
		"status", v.Status,
		"violations", len(v.Violations))
	return v
}

// LoadContract reads, parses and compiles a contract file.
func LoadContract(path string) (*contract.Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &RunError{Kind: KindIO, Err: err}
	}
	return CompileBytes(data, contract.FormatForPath(path))
}

// CompileBytes parses and compiles an in-memory contract.
func CompileBytes(data []byte, format contract.Format) (*contract.Compiled, error) {
	c, err := contract.Parse(data, format)
	if err != nil {
		return nil, &RunError{Kind: KindInvalidContract, Err: err}
	}
	slog.Debug("contract loaded", "contract", contractName(c), "rules", len(c.Rules), "output_type", c.OutputType)
	return Compile(c)
}

// ExitCode maps a verdict and run error to a process exit code.
func ExitCode(v schema.Verdict, err error) int {
	if err != nil {
		var re *RunError
		if errors.As(err, &re) && (re.Kind == KindInvalidContract || re.Kind == KindInvalidContractRegex) {
			return ExitInvalidContract
		}
		return ExitRuntime
	}
	if v.Status == schema.StatusPass {
		return ExitPass
	}
	return ExitContractFailed
}

// Outcome returns the verdict to report and its exit code. On error the
// verdict is a synthetic failure describing the error kind and detail.
func Outcome(v schema.Verdict, err error) (schema.Verdict, int) {
	if err == nil {
		return v, ExitCode(v, nil)
	}
	return FailureFor(err), ExitCode(v, err)
}

// FailureFor builds the synthetic failure verdict for a run error.
func FailureFor(err error) schema.Verdict {
	var re *RunError
	if errors.As(err, &re) {
		switch re.Kind {
		case KindInvalidContract, KindInvalidContractRegex:
			return verdict.Failure("InvalidContract", re.Error())
		default:
			return verdict.Failure("Runtime", re.Error())
		}
	}
	return verdict.Failure("Runtime", err.Error())
}

func contractName(c *contract.Contract) string {
	if c == nil || c.Name == nil {
		return ""
	}
	return *c.Name
}
