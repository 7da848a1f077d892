package contract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/contractcheck/internal/jsonvalue"
)

// ErrInvalidContract is wrapped by every parse failure: malformed text, a
// missing or mistyped field, an unknown key, or an unknown rule tag.
var ErrInvalidContract = errors.New("invalid contract")

// Format is the text format of a contract document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

func (f Format) String() string {
	if f == FormatYAML {
		return "YAML"
	}
	return "JSON"
}

// FormatForPath picks YAML for .yaml/.yml files and JSON for everything else.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadFile reads and parses the contract at path. Read failures are returned
// as-is and do not wrap ErrInvalidContract.
func LoadFile(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("contract: %w", err)
	}
	return Parse(data, FormatForPath(path))
}

// Parse decodes a contract document. The parse is closed-world: any key the
// model does not define, at the top level or inside a rule, is rejected.
func Parse(data []byte, format Format) (*Contract, error) {
	raw, err := decodeDocument(data, format)
	if err != nil {
		return nil, invalidf("contract", "malformed %s: %v", format, err)
	}
	return fromValue(raw)
}

func decodeDocument(data []byte, format Format) (any, error) {
	if format == FormatYAML {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		return jsonvalue.Normalize(raw)
	}
	return jsonvalue.Decode(data)
}

var topLevelKeys = []string{"name", "version", "inputs", "output_type", "rules"}

func fromValue(raw any) (*Contract, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, invalidf("contract", "expected an object, got %s", jsonvalue.Of(raw))
	}
	if err := checkKeys(obj, "contract", topLevelKeys); err != nil {
		return nil, err
	}

	c := &Contract{}

	if v, ok := obj["name"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, wrongKind("name", "string", v)
		}
		c.Name = &s
	}
	if v, ok := obj["version"]; ok && v != nil {
		n, ok := jsonvalue.Int(v)
		if !ok {
			return nil, wrongKind("version", "integer", v)
		}
		c.Version = &n
	}

	inputs, err := requireArray(obj, "inputs", "contract")
	if err != nil {
		return nil, err
	}
	c.Inputs = make([]string, 0, len(inputs))
	for i, v := range inputs {
		s, ok := v.(string)
		if !ok {
			return nil, wrongKind(fmt.Sprintf("inputs[%d]", i), "string", v)
		}
		c.Inputs = append(c.Inputs, s)
	}

	ot, err := requireString(obj, "output_type", "contract")
	if err != nil {
		return nil, err
	}
	switch OutputType(ot) {
	case OutputObject, OutputArray:
		c.OutputType = OutputType(ot)
	default:
		return nil, invalidf("output_type", "unknown variant %q, expected \"object\" or \"array\"", ot)
	}

	rules, err := requireArray(obj, "rules", "contract")
	if err != nil {
		return nil, err
	}
	c.Rules = make([]Rule, 0, len(rules))
	for i, v := range rules {
		r, err := parseRule(v, fmt.Sprintf("rules[%d]", i))
		if err != nil {
			return nil, err
		}
		c.Rules = append(c.Rules, r)
	}
	return c, nil
}

// ruleKeys lists the keys each rule variant accepts besides "rule".
var ruleKeys = map[string][]string{
	TagRequiredField: {"field"},
	TagFieldType:     {"field", "expected"},
	TagAllowedValues: {"field", "values"},
	TagRegex:         {"field", "pattern"},
	TagMinItems:      {"value"},
	TagNoEmptyRows:   {},
}

func parseRule(raw any, path string) (Rule, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, wrongKind(path, "object", raw)
	}
	tag, err := requireString(obj, "rule", path)
	if err != nil {
		return nil, err
	}
	keys, ok := ruleKeys[tag]
	if !ok {
		return nil, invalidf(path+".rule", "unknown rule %q", tag)
	}
	if err := checkKeys(obj, path, append([]string{"rule"}, keys...)); err != nil {
		return nil, err
	}

	switch tag {
	case TagRequiredField:
		field, err := requireString(obj, "field", path)
		if err != nil {
			return nil, err
		}
		return RequiredField{Field: field}, nil

	case TagFieldType:
		field, err := requireString(obj, "field", path)
		if err != nil {
			return nil, err
		}
		expected, err := requireString(obj, "expected", path)
		if err != nil {
			return nil, err
		}
		if !ValueType(expected).Valid() {
			return nil, invalidf(path+".expected", "unknown variant %q", expected)
		}
		return FieldType{Field: field, Expected: ValueType(expected)}, nil

	case TagAllowedValues:
		field, err := requireString(obj, "field", path)
		if err != nil {
			return nil, err
		}
		values, err := requireArray(obj, "values", path)
		if err != nil {
			return nil, err
		}
		return AllowedValues{Field: field, Values: values}, nil

	case TagRegex:
		field, err := requireString(obj, "field", path)
		if err != nil {
			return nil, err
		}
		pattern, err := requireString(obj, "pattern", path)
		if err != nil {
			return nil, err
		}
		return Regex{Field: field, Pattern: pattern}, nil

	case TagMinItems:
		v, ok := obj["value"]
		if !ok {
			return nil, invalidf(path, "missing field %q", "value")
		}
		n, ok := jsonvalue.Uint(v)
		if !ok {
			return nil, wrongKind(path+".value", "non-negative integer", v)
		}
		return MinItems{Value: n}, nil

	default:
		return NoEmptyRows{}, nil
	}
}

// checkKeys rejects the first key of obj, in sorted order, that is not in allowed.
func checkKeys(obj map[string]any, path string, allowed []string) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			return invalidf(path, "unknown field %q, expected one of %s", k, quoteList(allowed))
		}
	}
	return nil
}

func requireString(obj map[string]any, key, path string) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", invalidf(path, "missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", wrongKind(join(path, key), "string", v)
	}
	return s, nil
}

func requireArray(obj map[string]any, key, path string) ([]any, error) {
	v, ok := obj[key]
	if !ok {
		return nil, invalidf(path, "missing field %q", key)
	}
	a, ok := v.([]any)
	if !ok {
		return nil, wrongKind(join(path, key), "array", v)
	}
	return a, nil
}

func join(path, key string) string {
	if path == "contract" {
		return key
	}
	return path + "." + key
}

func wrongKind(path, want string, got any) error {
	return invalidf(path, "invalid type: expected %s, got %s", want, jsonvalue.Of(got))
}

func invalidf(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidContract, path, fmt.Sprintf(format, args...))
}

func quoteList(keys []string) string {
	q := make([]string, len(keys))
	for i, k := range keys {
		q[i] = fmt.Sprintf("%q", k)
	}
	return strings.Join(q, ", ")
}
