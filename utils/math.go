// Package utils contains small numeric helpers and goroutine management shared by the balance
// controller packages.
package utils

import (
	"math"
)

// Epsilon is the default tolerance used when comparing controller quantities.
const Epsilon = 1e-9

// Clamp returns value limited to [lo, hi]. If lo > hi the bounds are swapped.
func Clamp(value, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return math.Max(lo, math.Min(hi, value))
}

// ClampSymmetric returns value limited to [-limit, limit].
func ClampSymmetric(value, limit float64) float64 {
	return Clamp(value, -math.Abs(limit), math.Abs(limit))
}
