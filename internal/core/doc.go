// Package core provides the per-index classification applied by every fan-out task.
//
// # Design Principles
//
//  1. Classification is pure: no clocks, no randomness, no shared state
//  2. The accumulator (Number) is an immutable value; each rule step returns
//     a new Number or the receiver unchanged
//  3. Rules only ever append their token, so the final annotation does not
//     depend on which rule matched first
//
// # Core Types
//
// Rule: a (divisor, token) pair.
// Number: the (index, annotation) accumulator threaded through the rules.
// Classify: the default Fizz/Buzz/Bazz classification.
package core
