package util

import (
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
)

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// KthLargest returns the k-th largest of the given values, counting from 1.
//
// The values are not modified.
// Panics if k is not in the range 1..len(values).
func KthLargest[T constraints.Ordered](values []T, k int) T {
	if k < 1 || k > len(values) {
		panic("KthLargest: k out of range")
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return sorted[len(sorted)-k]
}
