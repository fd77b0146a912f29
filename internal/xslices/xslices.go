// Package xslices has slice helpers missing from the standard slices
// package.
package xslices

// Filter returns the elements of s for which keep returns true, in
// order. The result is nil if none match and never shares memory with
// s.
func Filter[S ~[]T, T any](s S, keep func(T) bool) S {
	var r S
	for _, v := range s {
		if keep(v) {
			r = append(r, v)
		}
	}
	return r
}
