package engine

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dshills/contractcheck/internal/contract"
	"github.com/dshills/contractcheck/internal/jsonvalue"
	"github.com/dshills/contractcheck/internal/render"
	"github.com/dshills/contractcheck/internal/schema"
)

func compile(t *testing.T, ot contract.OutputType, rules ...contract.Rule) *contract.Compiled {
	t.Helper()
	c, err := contract.Compile(&contract.Contract{OutputType: ot, Inputs: []string{}, Rules: rules})
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	return c
}

func decode(t *testing.T, s string) any {
	t.Helper()
	v, err := jsonvalue.Decode([]byte(s))
	if err != nil {
		t.Fatalf("Decode(%s) error: %v", s, err)
	}
	return v
}

// want is the expected shape of one violation. Empty expected/actual means
// the slot must be absent.
type want struct {
	name     string
	rule     string
	field    string
	detail   string
	expected string
	actual   string
}

func assertViolations(t *testing.T, got schema.Verdict, wants ...want) {
	t.Helper()
	wantStatus := schema.StatusPass
	if len(wants) > 0 {
		wantStatus = schema.StatusFail
	}
	if got.Status != wantStatus {
		t.Errorf("Status = %q, want %q", got.Status, wantStatus)
	}
	if len(got.Violations) != len(wants) {
		for _, v := range got.Violations {
			t.Logf("  got %s: %s", v.RuleName, v.Detail)
		}
		t.Fatalf("len(Violations) = %d, want %d", len(got.Violations), len(wants))
	}
	for i, w := range wants {
		v := got.Violations[i]
		if v.RuleName != w.name {
			t.Errorf("[%d] RuleName = %q, want %q", i, v.RuleName, w.name)
		}
		if v.Detail != w.detail {
			t.Errorf("[%d] Detail = %q, want %q", i, v.Detail, w.detail)
		}
		if got := deref(v.Rule); got != w.rule {
			t.Errorf("[%d] Rule = %q, want %q", i, got, w.rule)
		}
		if got := deref(v.Field); got != w.field {
			t.Errorf("[%d] Field = %q, want %q", i, got, w.field)
		}
		if string(v.Expected) != w.expected {
			t.Errorf("[%d] Expected = %s, want %s", i, v.Expected, w.expected)
		}
		if string(v.Actual) != w.actual {
			t.Errorf("[%d] Actual = %s, want %s", i, v.Actual, w.actual)
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func scenarioContract(t *testing.T) *contract.Compiled {
	return compile(t, contract.OutputArray,
		contract.RequiredField{Field: "id"},
		contract.FieldType{Field: "id", Expected: jsonvalue.KindNumber},
		contract.NoEmptyRows{},
	)
}

func TestVerify_ScenarioA_Pass(t *testing.T) {
	got := Verify(scenarioContract(t), decode(t, `[{"id":1,"name":"Alice"},{"id":2,"name":"Bob"}]`))
	assertViolations(t, got)
	if got.Violations == nil {
		t.Error("Violations is nil on pass, want empty slice")
	}
}

func TestVerify_ScenarioB_MissingField(t *testing.T) {
	got := Verify(scenarioContract(t), decode(t, `[{"name":"Alice"}]`))
	assertViolations(t, got,
		want{name: "RequiredField", rule: "required_field", field: "id", detail: "Row 0 is missing required field 'id'."},
		want{name: "FieldType", rule: "field_type", field: "id", detail: "Row 0 is missing field 'id' for type check.", expected: `"number"`},
	)
	if row := got.Violations[0].Row; row == nil || *row != 0 {
		t.Errorf("Row = %v, want 0", row)
	}
}

func TestVerify_ScenarioC_DisallowedValue(t *testing.T) {
	c := compile(t, contract.OutputArray,
		contract.AllowedValues{Field: "status", Values: []any{"ok", "accepted"}},
	)
	got := Verify(c, decode(t, `[{"status":"rejected"}]`))
	assertViolations(t, got,
		want{
			name: "AllowedValues", rule: "allowed_values", field: "status",
			detail:   "Row 0 field 'status' has a disallowed value.",
			expected: `["ok","accepted"]`, actual: `"rejected"`,
		},
	)
}

func TestVerify_OutputType(t *testing.T) {
	cases := []struct {
		name   string
		ot     contract.OutputType
		output string
		detail string
	}{
		{"object wanted, array given", contract.OutputObject, `[]`, "Expected top-level JSON object."},
		{"object wanted, string given", contract.OutputObject, `"x"`, "Expected top-level JSON object."},
		{"array wanted, object given", contract.OutputArray, `{}`, "Expected top-level JSON array."},
		{"array wanted, null given", contract.OutputArray, `null`, "Expected top-level JSON array."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Verify(compile(t, tc.ot), decode(t, tc.output))
			assertViolations(t, got, want{name: "OutputType", detail: tc.detail})
		})
	}
}

// Rules still run after an output-type mismatch, and their violations follow
// the shape violation.
func TestVerify_OutputTypeThenRules(t *testing.T) {
	c := compile(t, contract.OutputObject, contract.RequiredField{Field: "id"})
	got := Verify(c, decode(t, `[{"name":"x"}]`))
	assertViolations(t, got,
		want{name: "OutputType", detail: "Expected top-level JSON object."},
		want{name: "RequiredField", rule: "required_field", field: "id", detail: "Row 0 is missing required field 'id'."},
	)
}

// Each field rule is checked against a row where the field is absent and a
// row where it is present with a failing value. Only required_field and
// field_type treat absence as a violation.
func TestVerify_PresenceAsymmetry(t *testing.T) {
	cases := []struct {
		name          string
		rule          contract.Rule
		present       string
		absentFails   bool
		presentDetail string
	}{
		{"required_field", contract.RequiredField{Field: "f"}, `{"f":null}`, true, ""},
		{"field_type", contract.FieldType{Field: "f", Expected: jsonvalue.KindString}, `{"f":1}`, true,
			"Field 'f' expected type 'string', got 'number'."},
		{"allowed_values", contract.AllowedValues{Field: "f", Values: []any{"a"}}, `{"f":"b"}`, false,
			"Field 'f' has a disallowed value."},
		{"regex", contract.Regex{Field: "f", Pattern: `^a$`}, `{"f":"b"}`, false,
			"Field 'f' does not match regex pattern."},
	}
	for _, tc := range cases {
		t.Run(tc.name+"/absent", func(t *testing.T) {
			got := Verify(compile(t, contract.OutputObject, tc.rule), decode(t, `{"other":1}`))
			if fails := got.Status == schema.StatusFail; fails != tc.absentFails {
				t.Errorf("absent field: fail = %v, want %v (%v)", fails, tc.absentFails, got.Violations)
			}
		})
		t.Run(tc.name+"/present", func(t *testing.T) {
			got := Verify(compile(t, contract.OutputObject, tc.rule), decode(t, tc.present))
			if tc.presentDetail == "" {
				assertViolations(t, got)
				return
			}
			if len(got.Violations) != 1 || got.Violations[0].Detail != tc.presentDetail {
				t.Errorf("present field: violations = %+v, want one %q", got.Violations, tc.presentDetail)
			}
		})
	}
}

func TestVerify_ObjectMessages(t *testing.T) {
	c := compile(t, contract.OutputObject,
		contract.RequiredField{Field: "id"},
		contract.FieldType{Field: "id", Expected: jsonvalue.KindNumber},
		contract.FieldType{Field: "tags", Expected: jsonvalue.KindArray},
	)
	got := Verify(c, decode(t, `{"tags":{}}`))
	assertViolations(t, got,
		want{name: "RequiredField", rule: "required_field", field: "id", detail: "Missing required field 'id'."},
		want{name: "FieldType", rule: "field_type", field: "id", detail: "Object is missing field 'id' for type check.", expected: `"number"`},
		want{name: "FieldType", rule: "field_type", field: "tags", detail: "Field 'tags' expected type 'array', got 'object'.",
			expected: `"array"`, actual: `"object"`},
	)
	for _, v := range got.Violations {
		if v.Row != nil {
			t.Errorf("object output violation has Row = %d", *v.Row)
		}
	}
}

func TestVerify_FieldTypeKinds(t *testing.T) {
	values := map[jsonvalue.Kind]string{
		jsonvalue.KindString:  `"s"`,
		jsonvalue.KindNumber:  `1.5`,
		jsonvalue.KindBoolean: `false`,
		jsonvalue.KindObject:  `{}`,
		jsonvalue.KindArray:   `[]`,
		jsonvalue.KindNull:    `null`,
	}
	for _, expected := range jsonvalue.Kinds {
		for kind, lit := range values {
			c := compile(t, contract.OutputObject, contract.FieldType{Field: "v", Expected: expected})
			got := Verify(c, decode(t, `{"v":`+lit+`}`))
			if pass := got.Status == schema.StatusPass; pass != (kind == expected) {
				t.Errorf("expected %s, value %s: pass = %v", expected, lit, pass)
			}
		}
	}
}

func TestVerify_AllowedValuesEquality(t *testing.T) {
	c := compile(t, contract.OutputArray,
		contract.AllowedValues{Field: "v", Values: []any{nil, "1", decode(t, `2`), decode(t, `{"a":[1]}`)}},
	)
	got := Verify(c, decode(t, `[{"v":null},{"v":"1"},{"v":2},{"v":{"a":[1]}},{"v":1},{"v":2.0},{"v":{"a":[1,2]}}]`))
	assertViolations(t, got,
		want{name: "AllowedValues", rule: "allowed_values", field: "v", detail: "Row 4 field 'v' has a disallowed value.",
			expected: `[null,"1",2,{"a":[1]}]`, actual: `1`},
		want{name: "AllowedValues", rule: "allowed_values", field: "v", detail: "Row 5 field 'v' has a disallowed value.",
			expected: `[null,"1",2,{"a":[1]}]`, actual: `2.0`},
		want{name: "AllowedValues", rule: "allowed_values", field: "v", detail: "Row 6 field 'v' has a disallowed value.",
			expected: `[null,"1",2,{"a":[1]}]`, actual: `{"a":[1,2]}`},
	)
}

func TestVerify_AllowedValuesEmptySet(t *testing.T) {
	c := compile(t, contract.OutputObject, contract.AllowedValues{Field: "v", Values: []any{}})
	assertViolations(t, Verify(c, decode(t, `{}`)))
	assertViolations(t, Verify(c, decode(t, `{"v":null}`)),
		want{name: "AllowedValues", rule: "allowed_values", field: "v", detail: "Field 'v' has a disallowed value.",
			expected: `[]`, actual: `null`},
	)
}

func TestVerify_Regex(t *testing.T) {
	c := compile(t, contract.OutputArray, contract.Regex{Field: "sku", Pattern: `^[A-Z]{3}-\d+$`})
	got := Verify(c, decode(t, `[{"sku":"ABC-12"},{"sku":"abc-12"},{"sku":12},{"other":true},{"sku":null}]`))
	assertViolations(t, got,
		want{name: "Regex", rule: "regex", field: "sku", detail: "Row 1 field 'sku' does not match regex pattern.",
			expected: `"^[A-Z]{3}-\\d+$"`, actual: `"abc-12"`},
		want{name: "Regex", rule: "regex", field: "sku", detail: "Row 2 field 'sku' must be a string for regex rule.",
			expected: `"^[A-Z]{3}-\\d+$"`, actual: `12`},
		want{name: "Regex", rule: "regex", field: "sku", detail: "Row 4 field 'sku' must be a string for regex rule.",
			expected: `"^[A-Z]{3}-\\d+$"`, actual: `null`},
	)
}

// An unanchored pattern matches anywhere in the string.
func TestVerify_RegexUnanchored(t *testing.T) {
	c := compile(t, contract.OutputObject, contract.Regex{Field: "s", Pattern: `\d`})
	assertViolations(t, Verify(c, decode(t, `{"s":"abc1def"}`)))
}

func TestVerify_NonObjectRowsAndOutputs(t *testing.T) {
	c := compile(t, contract.OutputArray, contract.RequiredField{Field: "id"})
	assertViolations(t, Verify(c, decode(t, `[{"id":1},"x",[],{"id":2}]`)),
		want{name: "RequiredField", rule: "required_field", field: "id", detail: "Row 1 is not an object."},
		want{name: "RequiredField", rule: "required_field", field: "id", detail: "Row 2 is not an object."},
	)

	assertViolations(t, Verify(c, decode(t, `42`)),
		want{name: "OutputType", detail: "Expected top-level JSON array."},
		want{name: "RequiredField", rule: "required_field", field: "id", detail: "Output must be an object or an array of objects."},
	)
}

// An empty array satisfies every row-scoped rule.
func TestVerify_EmptyArray(t *testing.T) {
	c := compile(t, contract.OutputArray,
		contract.RequiredField{Field: "id"},
		contract.FieldType{Field: "id", Expected: jsonvalue.KindNumber},
		contract.AllowedValues{Field: "s", Values: []any{"a"}},
		contract.Regex{Field: "s", Pattern: "^a$"},
		contract.NoEmptyRows{},
	)
	assertViolations(t, Verify(c, decode(t, `[]`)))
}

func TestVerify_MinItems(t *testing.T) {
	cases := []struct {
		name   string
		value  uint64
		output string
		wants  []want
	}{
		{"enough", 2, `[{},{}]`, nil},
		{"zero on empty", 0, `[]`, nil},
		{"short", 3, `[{}]`, []want{{
			name: "MinItems", rule: "min_items", field: "$",
			detail:   "Top-level array must contain at least 3 items, found 1.",
			expected: `3`, actual: `1`,
		}}},
		{"object output", 1, `{}`, []want{
			{name: "OutputType", detail: "Expected top-level JSON array."},
			{name: "MinItems", rule: "min_items", field: "$", detail: "MinItems requires top-level array output.",
				expected: `1`, actual: `"object"`},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Verify(compile(t, contract.OutputArray, contract.MinItems{Value: tc.value}), decode(t, tc.output))
			assertViolations(t, got, tc.wants...)
		})
	}
}

func TestVerify_NoEmptyRows(t *testing.T) {
	c := compile(t, contract.OutputArray, contract.NoEmptyRows{})
	got := Verify(c, decode(t, `[{},{"a":null,"b":"  "},{"a":0},"x",{"a":[]},{"a":false}]`))
	assertViolations(t, got,
		want{name: "NoEmptyRows", detail: "Row 0 is empty."},
		want{name: "NoEmptyRows", detail: "Row 1 is empty."},
		want{name: "NoEmptyRows", detail: "Row 3 is not an object."},
		want{name: "NoEmptyRows", detail: "Row 4 is empty."},
	)
	rows := []int{0, 1, 3, 4}
	for i, v := range got.Violations {
		if v.Row == nil || *v.Row != rows[i] {
			t.Errorf("[%d] Row = %v, want %d", i, v.Row, rows[i])
		}
	}
}

func TestVerify_NoEmptyRowsObjectOutput(t *testing.T) {
	c := compile(t, contract.OutputObject, contract.NoEmptyRows{})
	assertViolations(t, Verify(c, decode(t, `{}`)),
		want{name: "NoEmptyRows", detail: "NoEmptyRows requires top-level array output."},
	)
}

// Violations are grouped by rule in declaration order, then by row index.
func TestVerify_Ordering(t *testing.T) {
	c := compile(t, contract.OutputArray,
		contract.FieldType{Field: "id", Expected: jsonvalue.KindNumber},
		contract.RequiredField{Field: "name"},
	)
	got := Verify(c, decode(t, `[{"id":"a"},{"id":"b","name":"x"},{"id":"c"}]`))
	wantOrder := []string{
		"Row 0 field 'id' expected type 'number', got 'string'.",
		"Row 1 field 'id' expected type 'number', got 'string'.",
		"Row 2 field 'id' expected type 'number', got 'string'.",
		"Row 0 is missing required field 'name'.",
		"Row 2 is missing required field 'name'.",
	}
	if len(got.Violations) != len(wantOrder) {
		t.Fatalf("len(Violations) = %d, want %d", len(got.Violations), len(wantOrder))
	}
	for i, w := range wantOrder {
		if got.Violations[i].Detail != w {
			t.Errorf("[%d] Detail = %q, want %q", i, got.Violations[i].Detail, w)
		}
	}
}

// Duplicate rules are evaluated independently and report twice.
func TestVerify_DuplicateRules(t *testing.T) {
	c := compile(t, contract.OutputObject, contract.RequiredField{Field: "id"}, contract.RequiredField{Field: "id"})
	got := Verify(c, decode(t, `{}`))
	if len(got.Violations) != 2 {
		t.Errorf("len(Violations) = %d, want 2", len(got.Violations))
	}
}

// A Compiled built without Compile has its patterns compiled on demand.
func TestVerify_RegexWithoutCompile(t *testing.T) {
	c := &contract.Compiled{Contract: &contract.Contract{
		OutputType: contract.OutputObject,
		Rules: []contract.Rule{
			contract.Regex{Field: "x", Pattern: "^a$"},
			contract.Regex{Field: "y", Pattern: "([A-Z]"},
		},
	}}
	got := Verify(c, decode(t, `{"x":"b","y":"B"}`))
	assertViolations(t, got,
		want{name: "Regex", rule: "regex", field: "x", detail: "Field 'x' does not match regex pattern.", expected: `"^a$"`, actual: `"b"`},
		want{name: "Regex", rule: "regex", field: "y", detail: "Regex pattern '([A-Z]' does not compile.", expected: `"([A-Z]"`},
	)
}

func TestProperty_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	c := compile(t, contract.OutputArray,
		contract.RequiredField{Field: "id"},
		contract.FieldType{Field: "id", Expected: jsonvalue.KindNumber},
		contract.AllowedValues{Field: "status", Values: []any{"ok", "accepted"}},
		contract.Regex{Field: "status", Pattern: `^[a-z]+$`},
		contract.MinItems{Value: 3},
		contract.NoEmptyRows{},
	)
	statuses := []string{"ok", "accepted", "rejected", "OK", "", " "}

	properties.Property("verifying twice renders byte-identical verdicts", prop.ForAll(
		func(ids []int64, picks []int) bool {
			var rows []any
			for i, id := range ids {
				row := map[string]any{}
				if id%3 != 0 {
					row["id"] = decodeNumber(id)
				}
				if i < len(picks) {
					row["status"] = statuses[picks[i]]
				}
				rows = append(rows, row)
			}
			output := any(rows)
			if rows == nil {
				output = []any{}
			}

			first, err1 := render.RenderJSON(Verify(c, output))
			second, err2 := render.RenderJSON(Verify(c, output))
			if err1 != nil || err2 != nil {
				t.Logf("render errors: %v, %v", err1, err2)
				return false
			}
			return bytes.Equal(first, second)
		},
		gen.SliceOf(gen.Int64Range(-50, 50)),
		gen.SliceOf(gen.IntRange(0, len(statuses)-1)),
	))

	properties.Property("status is fail iff there are violations", prop.ForAll(
		func(ids []int64) bool {
			rows := make([]any, 0, len(ids))
			for _, id := range ids {
				if id%4 == 0 {
					rows = append(rows, map[string]any{})
					continue
				}
				rows = append(rows, map[string]any{"id": decodeNumber(id), "status": "ok"})
			}
			v := Verify(c, rows)
			return (v.Status == schema.StatusFail) == (len(v.Violations) > 0)
		},
		gen.SliceOf(gen.Int64Range(-50, 50)),
	))

	properties.Property("conforming rows always pass", prop.ForAll(
		func(ids []int64) bool {
			rows := []any{}
			for _, id := range ids {
				rows = append(rows, map[string]any{"id": decodeNumber(id), "status": "accepted"})
			}
			for len(rows) < 3 {
				rows = append(rows, map[string]any{"id": decodeNumber(0), "status": "ok"})
			}
			v := Verify(c, rows)
			if v.Status != schema.StatusPass {
				t.Logf("unexpected violations: %+v", v.Violations)
				return false
			}
			return true
		},
		gen.SliceOf(gen.Int64()),
	))

	properties.TestingRun(t)
}

func decodeNumber(n int64) any {
	v, _ := jsonvalue.Decode([]byte(strconv.FormatInt(n, 10)))
	return v
}
