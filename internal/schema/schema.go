// Package schema defines the canonical verdict types and the public verdict
// document emitted to callers.
package schema

import (
	json "github.com/goccy/go-json"
)

// Status is the overall outcome of one evaluation.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Violation is one concrete failure of a rule against a location in the output.
type Violation struct {
	// RuleName is the display name, e.g. "RequiredField" or "OutputType".
	RuleName string
	Detail   string
	// Field and Rule are set for field-scoped rules and min_items.
	Field *string
	Rule  *string
	// Row is the array index the violation applies to, when there is one.
	Row *int
	// Expected and Actual hold encoded JSON where a concrete comparison value
	// exists. A nil slice means absent; the literal null is a present value.
	Expected json.RawMessage
	Actual   json.RawMessage
}

// Verdict is the aggregate result plus its ordered violation list.
type Verdict struct {
	Status     Status
	Violations []Violation
}

// PublicViolation is one entry of the public verdict document. Fields are
// declared in key order so the encoded document has sorted keys.
type PublicViolation struct {
	Actual   json.RawMessage `json:"actual,omitempty"`
	Expected json.RawMessage `json:"expected,omitempty"`
	Field    string          `json:"field"`
	Message  string          `json:"message"`
	Rule     string          `json:"rule"`
}

// PublicVerdict is the verdict document printed by the CLI.
type PublicVerdict struct {
	Status     Status            `json:"status"`
	Violations []PublicViolation `json:"violations"`
}
