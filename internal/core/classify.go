package core

// Classify maps i to its Fizz/Buzz/Bazz classification.
//
//	Classify(1)   == "1"
//	Classify(15)  == "FizzBuzz"
//	Classify(105) == "FizzBuzzBazz"
func Classify(i int) string {
	return ClassifyWith(i, DefaultRules)
}

// ClassifyWith applies rules in order and finalizes the result.
func ClassifyWith(i int, rules []Rule) string {
	return NewNumber(i).Apply(rules).Finalize()
}
