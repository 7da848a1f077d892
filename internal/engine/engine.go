// Package engine evaluates a compiled contract against a decoded output value.
// Evaluation is a pure function of its inputs: no I/O, no shared state, and
// the same inputs always produce the same verdict.
package engine

import (
	"fmt"
	"regexp"

	json "github.com/goccy/go-json"

	"github.com/dshills/contractcheck/internal/contract"
	"github.com/dshills/contractcheck/internal/jsonvalue"
	"github.com/dshills/contractcheck/internal/schema"
	"github.com/dshills/contractcheck/internal/verdict"
)

// Verify checks the top-level shape, then every rule in declaration order
// against the whole output. Rules still run when the shape is wrong so they
// can report their own diagnostics.
func Verify(c *contract.Compiled, output any) schema.Verdict {
	e := &evaluator{}
	e.checkOutputType(c.OutputType, output)
	for i, r := range c.Rules {
		e.checkRule(c, i, r, output)
	}
	return verdict.Assemble(e.violations)
}

type evaluator struct {
	violations []schema.Violation
}

func (e *evaluator) add(v schema.Violation) {
	e.violations = append(e.violations, v)
}

func (e *evaluator) checkOutputType(want contract.OutputType, output any) {
	switch want {
	case contract.OutputObject:
		if _, ok := output.(map[string]any); !ok {
			e.add(schema.Violation{RuleName: "OutputType", Detail: "Expected top-level JSON object."})
		}
	case contract.OutputArray:
		if _, ok := output.([]any); !ok {
			e.add(schema.Violation{RuleName: "OutputType", Detail: "Expected top-level JSON array."})
		}
	}
}

func (e *evaluator) checkRule(c *contract.Compiled, idx int, r contract.Rule, output any) {
	switch rule := r.(type) {
	case contract.RequiredField:
		e.checkRequiredField(rule, output)
	case contract.FieldType:
		e.checkFieldType(rule, output)
	case contract.AllowedValues:
		e.checkAllowedValues(rule, output)
	case contract.Regex:
		re, err := c.Pattern(idx)
		if err != nil {
			v := fieldViolation(rule, rule.Field, fmt.Sprintf("Regex pattern '%s' does not compile.", rule.Pattern), nil)
			v.Expected = encode(rule.Pattern)
			e.add(v)
			return
		}
		e.checkRegex(rule, re, output)
	case contract.MinItems:
		e.checkMinItems(rule, output)
	case contract.NoEmptyRows:
		e.checkNoEmptyRows(output)
	default:
		panic(fmt.Sprintf("engine: unhandled rule type %T", r))
	}
}

// forEachRow applies check to a single object output, or to every object row
// of an array output. Non-object rows and non-container outputs produce one
// violation each, attributed to rule and field.
func (e *evaluator) forEachRow(r contract.Rule, field string, output any, check func(obj map[string]any, row *int)) {
	switch out := output.(type) {
	case map[string]any:
		check(out, nil)
	case []any:
		for i, elem := range out {
			obj, ok := elem.(map[string]any)
			if !ok {
				e.add(fieldViolation(r, field, fmt.Sprintf("Row %d is not an object.", i), intPtr(i)))
				continue
			}
			check(obj, intPtr(i))
		}
	default:
		e.add(fieldViolation(r, field, "Output must be an object or an array of objects.", nil))
	}
}

// RequiredField: absence is the violation.
func (e *evaluator) checkRequiredField(r contract.RequiredField, output any) {
	e.forEachRow(r, r.Field, output, func(obj map[string]any, row *int) {
		if _, ok := obj[r.Field]; ok {
			return
		}
		detail := fmt.Sprintf("Missing required field '%s'.", r.Field)
		if row != nil {
			detail = fmt.Sprintf("Row %d is missing required field '%s'.", *row, r.Field)
		}
		e.add(fieldViolation(r, r.Field, detail, row))
	})
}

// FieldType: absence is its own violation, distinct from a kind mismatch.
func (e *evaluator) checkFieldType(r contract.FieldType, output any) {
	e.forEachRow(r, r.Field, output, func(obj map[string]any, row *int) {
		value, ok := obj[r.Field]
		if !ok {
			detail := fmt.Sprintf("Object is missing field '%s' for type check.", r.Field)
			if row != nil {
				detail = fmt.Sprintf("Row %d is missing field '%s' for type check.", *row, r.Field)
			}
			v := fieldViolation(r, r.Field, detail, row)
			v.Expected = encode(string(r.Expected))
			e.add(v)
			return
		}
		got := jsonvalue.Of(value)
		if got == r.Expected {
			return
		}
		detail := fmt.Sprintf("%s expected type '%s', got '%s'.", location(r.Field, row), r.Expected, got)
		v := fieldViolation(r, r.Field, detail, row)
		v.Expected = encode(string(r.Expected))
		v.Actual = encode(string(got))
		e.add(v)
	})
}

// AllowedValues: absence is not a violation.
func (e *evaluator) checkAllowedValues(r contract.AllowedValues, output any) {
	e.forEachRow(r, r.Field, output, func(obj map[string]any, row *int) {
		actual, ok := obj[r.Field]
		if !ok {
			return
		}
		for _, allowed := range r.Values {
			if jsonvalue.Equal(allowed, actual) {
				return
			}
		}
		detail := fmt.Sprintf("%s has a disallowed value.", location(r.Field, row))
		v := fieldViolation(r, r.Field, detail, row)
		v.Expected = encode(r.Values)
		v.Actual = encode(actual)
		e.add(v)
	})
}

// Regex: absence is not a violation; a present non-string is.
func (e *evaluator) checkRegex(r contract.Regex, re *regexp.Regexp, output any) {
	e.forEachRow(r, r.Field, output, func(obj map[string]any, row *int) {
		actual, ok := obj[r.Field]
		if !ok {
			return
		}
		var detail string
		if s, isString := actual.(string); isString {
			if re.MatchString(s) {
				return
			}
			detail = fmt.Sprintf("%s does not match regex pattern.", location(r.Field, row))
		} else {
			detail = fmt.Sprintf("%s must be a string for regex rule.", location(r.Field, row))
		}
		v := fieldViolation(r, r.Field, detail, row)
		v.Expected = encode(r.Pattern)
		v.Actual = encode(actual)
		e.add(v)
	})
}

// MinItems applies only to a top-level array.
func (e *evaluator) checkMinItems(r contract.MinItems, output any) {
	items, ok := output.([]any)
	if !ok {
		v := fieldViolation(r, "$", "MinItems requires top-level array output.", nil)
		v.Expected = encode(r.Value)
		v.Actual = encode(string(jsonvalue.Of(output)))
		e.add(v)
		return
	}
	n := uint64(len(items))
	if n >= r.Value {
		return
	}
	detail := fmt.Sprintf("Top-level array must contain at least %d items, found %d.", r.Value, n)
	v := fieldViolation(r, "$", detail, nil)
	v.Expected = encode(r.Value)
	v.Actual = encode(n)
	e.add(v)
}

// NoEmptyRows applies only to a top-level array. A non-object row is reported
// as such, never as empty.
func (e *evaluator) checkNoEmptyRows(output any) {
	const name = "NoEmptyRows"
	rows, ok := output.([]any)
	if !ok {
		e.add(schema.Violation{RuleName: name, Detail: "NoEmptyRows requires top-level array output."})
		return
	}
	for i, elem := range rows {
		obj, ok := elem.(map[string]any)
		if !ok {
			e.add(schema.Violation{RuleName: name, Detail: fmt.Sprintf("Row %d is not an object.", i), Row: intPtr(i)})
			continue
		}
		if jsonvalue.IsEmptyRow(obj) {
			e.add(schema.Violation{RuleName: name, Detail: fmt.Sprintf("Row %d is empty.", i), Row: intPtr(i)})
		}
	}
}

func fieldViolation(r contract.Rule, field, detail string, row *int) schema.Violation {
	tag := r.Tag()
	return schema.Violation{
		RuleName: r.Name(),
		Detail:   detail,
		Field:    &field,
		Rule:     &tag,
		Row:      row,
	}
}

// location names the field, prefixed by the row when there is one.
func location(field string, row *int) string {
	if row != nil {
		return fmt.Sprintf("Row %d field '%s'", *row, field)
	}
	return fmt.Sprintf("Field '%s'", field)
}

// encode marshals a comparison value. Values reaching here are decoded JSON
// or plain scalars, which always encode; a failure leaves the slot absent.
func encode(v any) json.RawMessage {
	b, err := jsonvalue.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

func intPtr(i int) *int { return &i }
