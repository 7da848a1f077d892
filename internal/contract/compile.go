package contract

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidContractRegex is wrapped when a well-typed contract carries a
// regex pattern that does not compile.
var ErrInvalidContractRegex = errors.New("invalid contract regex")

// Compiled is a contract that passed pre-validation, together with the
// compiled form of every regex rule keyed by rule index. It is never mutated
// after Compile returns and may be shared across goroutines.
type Compiled struct {
	*Contract
	patterns map[int]*regexp.Regexp
}

// Compile pre-validates c. Every Regex pattern must compile, whether or not
// any output ever reaches that rule.
func Compile(c *Contract) (*Compiled, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: contract: nil contract", ErrInvalidContract)
	}
	patterns := make(map[int]*regexp.Regexp)
	for i, r := range c.Rules {
		if _, ok := r.(Regex); !ok {
			continue
		}
		re, err := compileRule(c, i)
		if err != nil {
			return nil, err
		}
		patterns[i] = re
	}
	return &Compiled{Contract: c, patterns: patterns}, nil
}

// Pattern returns the compiled regex for the rule at index i. A Compiled that
// was not built by Compile has no cached patterns; the pattern is then
// compiled on each call and its error returned.
func (c *Compiled) Pattern(i int) (*regexp.Regexp, error) {
	if re, ok := c.patterns[i]; ok {
		return re, nil
	}
	return compileRule(c.Contract, i)
}

func compileRule(c *Contract, i int) (*regexp.Regexp, error) {
	if c == nil || i < 0 || i >= len(c.Rules) {
		return nil, fmt.Errorf("contract: rules[%d]: no such rule", i)
	}
	rr, ok := c.Rules[i].(Regex)
	if !ok {
		return nil, fmt.Errorf("contract: rules[%d]: not a regex rule", i)
	}
	re, err := regexp.Compile(rr.Pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: rules[%d]: pattern %q: %v", ErrInvalidContractRegex, i, rr.Pattern, err)
	}
	return re, nil
}
