// Package llm asks a language model for output that satisfies a contract,
// verifies the response, and performs at most one repair attempt.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dshills/contractcheck/internal/contract"
	"github.com/dshills/contractcheck/internal/engine"
	"github.com/dshills/contractcheck/internal/jsonvalue"
	"github.com/dshills/contractcheck/internal/profile"
	"github.com/dshills/contractcheck/internal/schema"
	"github.com/dshills/contractcheck/internal/verdict"
)

// ErrInvalidModelOutput is returned when neither the initial nor the repair
// response parses as a JSON document.
var ErrInvalidModelOutput = errors.New("llm: invalid model output after repair attempt")

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the previous value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Options configures a Generate call.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Result is the outcome of a Generate call.
type Result struct {
	// Raw is the accepted response with any Markdown fences removed.
	Raw     string
	Output  any
	Verdict schema.Verdict
	// Attempts is 1, or 2 when the repair attempt was used.
	Attempts int
}

// Generate prompts the model for output conforming to c and verifies it. An
// unparseable response always triggers the repair attempt; a parseable but
// failing one does so only when the profile allows it. When the repair
// response is worse (it does not parse) the first parseable result is kept.
func Generate(
	ctx context.Context,
	c *contract.Compiled,
	task string,
	prof profile.Profile,
	opts Options,
) (*Result, error) {
	provider, err := NewProvider(opts.Provider, opts.Model)
	if err != nil {
		return nil, fmt.Errorf("llm: create provider: %w", err)
	}

	sysPrompt := buildSystemPrompt(c, prof)
	userPrompt := buildUserPrompt(task)
	slog.Debug("llm prompt", "system", sysPrompt, "user", userPrompt)

	raw, err := provider.Complete(ctx, sysPrompt, userPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("llm: complete: %w", err)
	}

	first, parseErr := evaluate(c, raw)
	if parseErr == nil && (first.Verdict.Status == schema.StatusPass || !prof.RepairOnViolation) {
		first.Attempts = 1
		return first, nil
	}
	slog.Info("llm response needs repair", "parse_error", parseErr != nil)

	repairPrompt := buildRepairPrompt(userPrompt, raw, parseErr, first)
	raw2, err := provider.Complete(ctx, sysPrompt, repairPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return nil, fmt.Errorf("llm: repair complete: %w", err)
	}

	second, parseErr2 := evaluate(c, raw2)
	switch {
	case parseErr2 == nil:
		second.Attempts = 2
		return second, nil
	case parseErr == nil:
		first.Attempts = 2
		return first, nil
	default:
		return nil, ErrInvalidModelOutput
	}
}

// evaluate parses a model response and verifies it. Invalid JSON escapes, a
// common artefact when models echo regex patterns, are repaired once before
// giving up.
func evaluate(c *contract.Compiled, raw string) (*Result, error) {
	cleaned := stripMarkdownFences(raw)
	output, err := jsonvalue.Decode([]byte(cleaned))
	if err != nil {
		fixed := fixInvalidJSONEscapes(cleaned)
		output2, err2 := jsonvalue.Decode([]byte(fixed))
		if err2 != nil {
			return nil, err
		}
		cleaned, output = fixed, output2
	}
	return &Result{Raw: cleaned, Output: output, Verdict: engine.Verify(c, output)}, nil
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line (no closing fence required).
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences removes leading/trailing markdown code fences that LLMs
// sometimes wrap around JSON output. A lone opening fence from a truncated
// response is stripped too.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// jsonEscapeRe matches a backslash and the character it escapes. Matching
// whole pairs keeps an escaped backslash from being read as the start of the
// next escape.
var jsonEscapeRe = regexp.MustCompile(`(?s)\\(.)`)

// fixInvalidJSONEscapes doubles the backslash of every escape sequence that
// JSON does not define, such as \d in an echoed regex pattern.
func fixInvalidJSONEscapes(s string) string {
	return jsonEscapeRe.ReplaceAllStringFunc(s, func(m string) string {
		if strings.ContainsRune(`"\/bfnrtu`, rune(m[1])) {
			return m
		}
		return `\` + m
	})
}

// buildSystemPrompt describes the contract to the model.
func buildSystemPrompt(c *contract.Compiled, prof profile.Profile) string {
	var sb strings.Builder

	sb.WriteString("You produce machine-checked JSON for an automated pipeline.\n\n")
	sb.WriteString("Output ONLY a single valid JSON document. " +
		"No prose, no markdown, no explanation outside the JSON.\n\n")

	switch c.OutputType {
	case contract.OutputArray:
		sb.WriteString("The top-level value MUST be a JSON array of objects.\n")
	default:
		sb.WriteString("The top-level value MUST be a JSON object.\n")
	}

	if len(c.Rules) > 0 {
		sb.WriteString("\nThe output is checked against these rules:\n")
		for i, r := range c.Rules {
			fmt.Fprintf(&sb, "  %d. %s\n", i+1, describeRule(r, c.OutputType))
		}
	}
	if len(c.Inputs) > 0 {
		fmt.Fprintf(&sb, "\nThe task was prepared from these inputs: %s.\n", strings.Join(c.Inputs, ", "))
	}

	if prof.SystemPromptAddendum != "" {
		sb.WriteString("\n")
		sb.WriteString(prof.SystemPromptAddendum)
		sb.WriteString("\n")
	}
	return sb.String()
}

func describeRule(r contract.Rule, ot contract.OutputType) string {
	scope := "The object"
	if ot == contract.OutputArray {
		scope = "Every row"
	}
	switch rule := r.(type) {
	case contract.RequiredField:
		return fmt.Sprintf("%s must contain the field %q.", scope, rule.Field)
	case contract.FieldType:
		return fmt.Sprintf("%s must contain the field %q with a JSON %s value.", scope, rule.Field, rule.Expected)
	case contract.AllowedValues:
		b, _ := jsonvalue.Marshal(rule.Values)
		return fmt.Sprintf("When present, the field %q must be exactly one of %s.", rule.Field, b)
	case contract.Regex:
		return fmt.Sprintf("When present, the field %q must be a string matching the regular expression %s.", rule.Field, rule.Pattern)
	case contract.MinItems:
		return fmt.Sprintf("The top-level array must contain at least %d items.", rule.Value)
	case contract.NoEmptyRows:
		return "No row may be empty: every row needs at least one value that is not null, blank, [] or {}."
	default:
		return r.Name()
	}
}

// buildUserPrompt wraps the caller's task text.
func buildUserPrompt(task string) string {
	var sb strings.Builder
	sb.WriteString("TASK:\n")
	sb.WriteString(strings.TrimSpace(task))
	sb.WriteString("\n\nProduce the JSON document now.")
	return sb.String()
}

// buildRepairPrompt constructs the repair message. It includes the first
// user prompt, the previous response, and why it was rejected.
func buildRepairPrompt(userPrompt, previousResponse string, parseErr error, prev *Result) string {
	var sb strings.Builder
	sb.WriteString(userPrompt)
	sb.WriteString("\n\nYour previous response was:\n")
	sb.WriteString(previousResponse)
	sb.WriteString("\n\nThat response was rejected. Problems:\n")
	if parseErr != nil {
		fmt.Fprintf(&sb, "  - not valid JSON: %v\n", parseErr)
	} else if prev != nil {
		for _, v := range verdict.Public(prev.Verdict).Violations {
			fmt.Fprintf(&sb, "  - %s: %s\n", v.Rule, v.Message)
		}
	}
	sb.WriteString("\nPlease output only the corrected JSON document. Do not repeat the problems.")
	return sb.String()
}
