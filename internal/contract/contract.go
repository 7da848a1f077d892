// Package contract defines the contract document model: the declared inputs,
// the expected top-level output shape, and the ordered, closed set of rules
// that the engine evaluates.
package contract

import (
	"github.com/dshills/contractcheck/internal/jsonvalue"
)

// OutputType is the required shape of the top-level output value.
type OutputType string

const (
	OutputObject OutputType = "object"
	OutputArray  OutputType = "array"
)

// ValueType is the JSON kind named by a field_type rule.
type ValueType = jsonvalue.Kind

// Contract is a parsed contract document. It is immutable once parsed.
type Contract struct {
	Name       *string
	Version    *int64
	Inputs     []string // informational only, never enforced
	OutputType OutputType
	Rules      []Rule
}

// Rule tags as they appear in the "rule" key of a contract document.
const (
	TagRequiredField = "required_field"
	TagFieldType     = "field_type"
	TagAllowedValues = "allowed_values"
	TagRegex         = "regex"
	TagMinItems      = "min_items"
	TagNoEmptyRows   = "no_empty_rows"
)

// Rule is one of RequiredField, FieldType, AllowedValues, Regex, MinItems or
// NoEmptyRows. The set is closed.
type Rule interface {
	// Tag is the machine tag used in contract documents.
	Tag() string
	// Name is the display name used when a violation has no tag.
	Name() string
	isRule()
}

// RequiredField requires an object (or every row) to contain Field.
type RequiredField struct {
	Field string
}

// FieldType requires Field to be present and of kind Expected.
type FieldType struct {
	Field    string
	Expected ValueType
}

// AllowedValues requires Field, when present, to deep-equal one of Values.
type AllowedValues struct {
	Field  string
	Values []any
}

// Regex requires Field, when present, to be a string matching Pattern.
// The pattern is not anchored.
type Regex struct {
	Field   string
	Pattern string
}

// MinItems requires a top-level array with at least Value elements.
type MinItems struct {
	Value uint64
}

// NoEmptyRows forbids empty object rows in a top-level array.
type NoEmptyRows struct{}

func (RequiredField) Tag() string { return TagRequiredField }
func (FieldType) Tag() string     { return TagFieldType }
func (AllowedValues) Tag() string { return TagAllowedValues }
func (Regex) Tag() string         { return TagRegex }
func (MinItems) Tag() string      { return TagMinItems }
func (NoEmptyRows) Tag() string   { return TagNoEmptyRows }

func (RequiredField) Name() string { return "RequiredField" }
func (FieldType) Name() string     { return "FieldType" }
func (AllowedValues) Name() string { return "AllowedValues" }
func (Regex) Name() string         { return "Regex" }
func (MinItems) Name() string      { return "MinItems" }
func (NoEmptyRows) Name() string   { return "NoEmptyRows" }

func (RequiredField) isRule() {}
func (FieldType) isRule()     {}
func (AllowedValues) isRule() {}
func (Regex) isRule()         {}
func (MinItems) isRule()      {}
func (NoEmptyRows) isRule()   {}
