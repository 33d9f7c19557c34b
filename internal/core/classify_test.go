package core

import (
	"strconv"
	"strings"
	"testing"
)

func TestClassify_ConcreteCases(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{1, "1"},
		{2, "2"},
		{3, "Fizz"},
		{5, "Buzz"},
		{7, "Bazz"},
		{15, "FizzBuzz"},
		{21, "FizzBazz"},
		{35, "BuzzBazz"},
		{105, "FizzBuzzBazz"},
		{0, "FizzBuzzBazz"},
		{-3, "Fizz"},
		{-11, "-11"},
	}
	for _, tc := range cases {
		if got := Classify(tc.in); got != tc.want {
			t.Fatalf("Classify(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClassify_TokenPresenceMatchesDivisibility(t *testing.T) {
	for i := 1; i <= 100; i++ {
		got := Classify(i)
		for _, r := range DefaultRules {
			has := strings.Contains(got, r.Token)
			divisible := i%r.Divisor == 0
			if has != divisible {
				t.Fatalf("Classify(%d) = %q: contains %s=%v, divisible by %d=%v", i, got, r.Token, has, r.Divisor, divisible)
			}
		}
	}
}

func TestClassify_DecimalIffNoDivisor(t *testing.T) {
	for i := 1; i <= 100; i++ {
		noDivisor := i%3 != 0 && i%5 != 0 && i%7 != 0
		isDecimal := Classify(i) == strconv.Itoa(i)
		if noDivisor != isDecimal {
			t.Fatalf("index %d: noDivisor=%v decimal=%v (got %q)", i, noDivisor, isDecimal, Classify(i))
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for i := 1; i <= 100; i++ {
		if a, b := Classify(i), Classify(i); a != b {
			t.Fatalf("Classify(%d) not deterministic: %q vs %q", i, a, b)
		}
	}
}

func TestClassifyWith_TokensAppendInRuleOrder(t *testing.T) {
	rules := []Rule{{Divisor: 2, Token: "Even"}, {Divisor: 3, Token: "Fizz"}}
	if got := ClassifyWith(6, rules); got != "EvenFizz" {
		t.Fatalf("expected EvenFizz, got %q", got)
	}
	reversed := []Rule{rules[1], rules[0]}
	if got := ClassifyWith(6, reversed); got != "FizzEven" {
		t.Fatalf("expected FizzEven, got %q", got)
	}
}
