package core

import (
	"fmt"
	"strings"
)

// Rule appends Token to the annotation of every index divisible by Divisor.
type Rule struct {
	Divisor int    `json:"divisor" yaml:"divisor"`
	Token   string `json:"token" yaml:"token"`
}

// DefaultRules is the fixed Fizz/Buzz/Bazz rule set, applied in this order.
var DefaultRules = []Rule{
	{Divisor: 3, Token: "Fizz"},
	{Divisor: 5, Token: "Buzz"},
	{Divisor: 7, Token: "Bazz"},
}

// Validate reports whether the rule can be applied to any int.
func (r Rule) Validate() error {
	if r.Divisor == 0 {
		return fmt.Errorf("rule %q: divisor must be non-zero", r.Token)
	}
	if strings.TrimSpace(r.Token) == "" {
		return fmt.Errorf("rule with divisor %d: token must not be blank", r.Divisor)
	}
	return nil
}

// ValidateRules validates every rule and requires at least one.
func ValidateRules(rules []Rule) error {
	if len(rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return nil
}
