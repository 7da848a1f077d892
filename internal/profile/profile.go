// Package profile defines generation profiles that modulate the prompt sent
// to the model by the generate command. Each profile provides a
// SystemPromptAddendum appended to the system prompt.
package profile

import "fmt"

// Profile describes a generation strategy.
type Profile struct {
	Name                 string
	Description          string
	SystemPromptAddendum string
	// RepairOnViolation, when true, spends the single repair attempt on a
	// response that parses but violates the contract. When false the repair
	// attempt is reserved for responses that do not parse at all.
	RepairOnViolation bool
}

// builtins is the registry of built-in profiles keyed by name.
var builtins = map[string]Profile{
	"general": {
		Name:        "general",
		Description: "Default profile; one repair attempt for unparseable or failing output.",
		SystemPromptAddendum: "Follow the contract exactly. When a value is unknown, prefer " +
			"omitting an optional field over inventing a placeholder value.",
		RepairOnViolation: true,
	},
	"strict": {
		Name:        "strict",
		Description: "No repair for contract violations; the first parseable answer is final.",
		SystemPromptAddendum: "Treat every rule as mandatory. Do not add fields that the task " +
			"does not ask for. Never emit empty strings, empty arrays or null as filler.",
		RepairOnViolation: false,
	},
	"tabular": {
		Name:        "tabular",
		Description: "Row-oriented output; every row must be a populated object.",
		SystemPromptAddendum: "Produce a JSON array of flat objects, one object per record. " +
			"Every row must carry at least one non-empty value. Use the same keys in every row.",
		RepairOnViolation: true,
	},
}

// Names lists the built-in profile names in a stable order.
func Names() []string {
	return []string{"general", "strict", "tabular"}
}

// Load returns the named built-in profile or an error if the name is unknown.
func Load(name string) (Profile, error) {
	p, ok := builtins[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile: unknown profile %q (available: general, strict, tabular)", name)
	}
	return p, nil
}
