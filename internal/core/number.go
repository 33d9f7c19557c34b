package core

import (
	"strconv"
	"strings"
)

// Number is the immutable accumulator carried through the rule checks.
//
// The zero annotation means "no rule matched yet". Number has value semantics;
// Check never mutates the receiver.
type Number struct {
	value int
	out   string
}

// NewNumber returns the accumulator for index i with an empty annotation.
func NewNumber(i int) Number {
	return Number{value: i}
}

// Value returns the index this accumulator was created for.
func (n Number) Value() int { return n.value }

// Annotation returns the tokens accumulated so far.
func (n Number) Annotation() string { return n.out }

// Check returns n with token appended when the index is divisible by divisor,
// and n unchanged otherwise.
func (n Number) Check(divisor int, token string) Number {
	if divisor == 0 || n.value%divisor != 0 {
		return n
	}
	return Number{value: n.value, out: n.out + token}
}

// Apply runs Check for every rule in order.
func (n Number) Apply(rules []Rule) Number {
	for _, r := range rules {
		n = n.Check(r.Divisor, r.Token)
	}
	return n
}

// Replace returns n with its annotation set to out.
func (n Number) Replace(out string) Number {
	return Number{value: n.value, out: out}
}

// Finalize returns the annotation, or the decimal index when the annotation is blank.
func (n Number) Finalize() string {
	if strings.TrimSpace(n.out) == "" {
		return strconv.Itoa(n.value)
	}
	return n.out
}

func (n Number) String() string {
	return strconv.Itoa(n.value) + " (->" + n.out + ")"
}
