package common

import "golang.org/x/exp/constraints"

func Max[T constraints.Ordered](a T, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a T, b T) T {
	if a < b {
		return a
	}
	return b
}

// Clamp limits v to [lo, hi].
func Clamp[T constraints.Ordered](v T, lo T, hi T) T {
	return Min(Max(v, lo), hi)
}
