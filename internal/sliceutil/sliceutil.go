// Package sliceutil provides generic slice helpers used across the engine.
package sliceutil

// DeleteVal deletes the first occurrence of a value in a slice and returns a
// new slice with the value removed.
func DeleteVal[T comparable](s []T, v T) []T {
	for i, val := range s {
		if val == v {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// Index returns the index of the first occurrence of v in s, or -1 if it is
// not present.
func Index[T comparable](s []T, v T) int {
	for i, val := range s {
		if val == v {
			return i
		}
	}
	return -1
}

// Filter iterates over the slice and returns a new slice with only the
// elements for which c returns true.
func Filter[T any](s []T, c func(T) bool) []T {
	a := make([]T, 0, len(s))
	for _, val := range s {
		if c(val) {
			a = append(a, val)
		}
	}
	return a
}
