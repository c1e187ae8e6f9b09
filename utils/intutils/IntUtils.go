// Package intutils implements utility functions for working with ints
package intutils

// Min calculates and returns the minimum integer in a list
func Min(ints ...int) int {
	min := ints[0]
	for _, val := range ints {
		if val < min {
			min = val
		}
	}
	return min
}

// Prod returns the product of all integers in a list. The product of
// an empty list is 1, so Prod(shape...) gives the number of elements
// in a tensor of the given shape.
func Prod(ints ...int) int {
	prod := 1
	for _, val := range ints {
		prod *= val
	}
	return prod
}

// CeilDiv returns ⌈a / b⌉ for positive a and b
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
