// Package verdict assembles verdicts from accumulated violations and maps them
// to the public document. Nothing here inspects the output being checked.
package verdict

import (
	"sort"

	"github.com/dshills/contractcheck/internal/schema"
)

// Assemble builds a verdict from violations. Status is fail iff the slice is
// non-empty. Violations are kept as given: no deduplication, truncation or
// reordering.
func Assemble(violations []schema.Violation) schema.Verdict {
	if violations == nil {
		violations = []schema.Violation{}
	}
	status := schema.StatusPass
	if len(violations) > 0 {
		status = schema.StatusFail
	}
	return schema.Verdict{Status: status, Violations: violations}
}

// Failure returns a failing verdict with a single synthetic violation. It is
// used for contract and input errors, which never reach rule evaluation.
func Failure(ruleName, detail string) schema.Verdict {
	return schema.Verdict{
		Status: schema.StatusFail,
		Violations: []schema.Violation{
			{RuleName: ruleName, Detail: detail},
		},
	}
}

// Public maps a verdict to the wire document. The rule key is the machine tag
// when there is one and the display name otherwise; field is empty when the
// violation is not field-scoped.
func Public(v schema.Verdict) schema.PublicVerdict {
	out := schema.PublicVerdict{
		Status:     v.Status,
		Violations: make([]schema.PublicViolation, 0, len(v.Violations)),
	}
	for _, viol := range v.Violations {
		out.Violations = append(out.Violations, PublicViolation(viol))
	}
	return out
}

// PublicViolation maps a single violation to its wire form.
func PublicViolation(v schema.Violation) schema.PublicViolation {
	pv := schema.PublicViolation{
		Rule:     v.RuleName,
		Message:  v.Detail,
		Expected: v.Expected,
		Actual:   v.Actual,
	}
	if v.Rule != nil {
		pv.Rule = *v.Rule
	}
	if v.Field != nil {
		pv.Field = *v.Field
	}
	return pv
}

// RuleCount is the number of violations reported under one rule name.
type RuleCount struct {
	RuleName string
	Count    int
}

// Counts aggregates violations per display rule name, sorted by descending
// count and then by name.
func Counts(v schema.Verdict) []RuleCount {
	byName := make(map[string]int)
	for _, viol := range v.Violations {
		byName[viol.RuleName]++
	}
	out := make([]RuleCount, 0, len(byName))
	for name, n := range byName {
		out = append(out, RuleCount{RuleName: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].RuleName < out[j].RuleName
	})
	return out
}
