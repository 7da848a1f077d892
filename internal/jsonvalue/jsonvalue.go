// Package jsonvalue holds the generic JSON value representation shared by the
// contract loader and the rule engine, along with the kind classifier, deep
// equality, and the emptiness predicate used by no_empty_rows.
//
// A value is one of: nil, bool, string, json.Number, []any, map[string]any.
package jsonvalue

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Kind is the JSON kind of a value.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
	KindNull    Kind = "null"
)

// Kinds lists every kind in declaration order.
var Kinds = []Kind{KindString, KindNumber, KindBoolean, KindObject, KindArray, KindNull}

// Valid reports whether k is one of the six JSON kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindNumber, KindBoolean, KindObject, KindArray, KindNull:
		return true
	}
	return false
}

// Decode parses exactly one JSON value from data. Numbers are kept as
// json.Number so integer precision survives. Trailing data is an error.
func Decode(data []byte) (any, error) {
	if err := checkGrammar(data); err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("jsonvalue: empty document")
		}
		return nil, fmt.Errorf("jsonvalue: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("jsonvalue: trailing data after top-level value")
	}
	return v, nil
}

// checkGrammar rejects documents the streaming decoder would accept but the
// JSON grammar does not: leading zeros, "1.", truncated literals, raw control
// characters in strings, and trailing bytes after the value.
func checkGrammar(data []byte) error {
	if len(bytes.Trim(data, " \t\r\n")) == 0 {
		return fmt.Errorf("jsonvalue: empty document")
	}
	var raw stdjson.RawMessage
	if err := stdjson.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("jsonvalue: %w", err)
	}
	return nil
}

// Normalize converts a value produced by another decoder (notably yaml.v3)
// into the canonical representation.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, json.Number:
		return t, nil
	case int:
		return json.Number(strconv.FormatInt(int64(t), 10)), nil
	case int64:
		return json.Number(strconv.FormatInt(t, 10)), nil
	case uint64:
		return json.Number(strconv.FormatUint(t, 10)), nil
	case float64:
		return floatNumber(t)
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := Normalize(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := Normalize(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("jsonvalue: non-string object key %v", k)
			}
			n, err := Normalize(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ks, err)
			}
			out[ks] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("jsonvalue: unsupported value of type %T", v)
	}
}

// floatNumber renders f as a non-integral number literal so a YAML 1.0
// stays distinct from the integer 1.
func floatNumber(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("jsonvalue: %v is not representable in JSON", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if isIntegral(s) {
		s += ".0"
	}
	return json.Number(s), nil
}

// Of classifies v into exactly one kind. Anything that is not a recognised
// scalar or container is treated as null.
func Of(v any) Kind {
	switch v.(type) {
	case string:
		return KindString
	case json.Number, float64, int, int64, uint64:
		return KindNumber
	case bool:
		return KindBoolean
	case map[string]any:
		return KindObject
	case []any:
		return KindArray
	default:
		return KindNull
	}
}

// Equal reports structural equality of two values.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case json.Number:
		y, ok := b.(json.Number)
		return ok && numbersEqual(x, y)
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return false
}

// numbersEqual compares integral literals exactly and non-integral literals
// as float64. An integral literal never equals a non-integral one.
func numbersEqual(a, b json.Number) bool {
	as, bs := string(a), string(b)
	ai, bi := isIntegral(as), isIntegral(bs)
	if ai != bi {
		return false
	}
	if ai {
		x, okx := new(big.Int).SetString(as, 10)
		y, oky := new(big.Int).SetString(bs, 10)
		if !okx || !oky {
			return as == bs
		}
		return x.Cmp(y) == 0
	}
	x, errx := strconv.ParseFloat(as, 64)
	y, erry := strconv.ParseFloat(bs, 64)
	if errx != nil || erry != nil {
		return as == bs
	}
	return x == y
}

func isIntegral(s string) bool {
	return !strings.ContainsAny(s, ".eE")
}

// IsEmpty reports whether v is empty: null, a whitespace-only string, an
// array with no elements, or an object with no keys. Numbers and booleans
// are never empty.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

// IsEmptyRow reports whether an object row is empty: it has no keys, or every
// value in it is empty.
func IsEmptyRow(row map[string]any) bool {
	for _, v := range row {
		if !IsEmpty(v) {
			return false
		}
	}
	return true
}

// Uint reports the value of an integral, non-negative number.
func Uint(v any) (uint64, bool) {
	n, ok := v.(json.Number)
	if !ok || !isIntegral(string(n)) {
		return 0, false
	}
	u, err := strconv.ParseUint(string(n), 10, 64)
	if err != nil {
		return 0, false
	}
	return u, true
}

// Int reports the value of an integral number that fits in an int64.
func Int(v any) (int64, bool) {
	n, ok := v.(json.Number)
	if !ok || !isIntegral(string(n)) {
		return 0, false
	}
	i, err := strconv.ParseInt(string(n), 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Marshal encodes v as compact JSON. HTML characters are written as-is.
func Marshal(v any) ([]byte, error) {
	return json.MarshalWithOption(v, json.DisableHTMLEscape())
}
