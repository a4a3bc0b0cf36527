package control

import (
	"math"

	"github.com/golang/geo/r2"
)

// RateLimiter bounds how fast a planar signal may change per sample. A max rate of 0 disables limiting.
type RateLimiter struct {
	maxRate     float64
	dt          float64
	maxStep     float64
	value       r2.Point
	initialized bool
}

// NewRateLimiter returns a limiter allowing at most maxRate units per second.
func NewRateLimiter(maxRate, dt float64) *RateLimiter {
	l := &RateLimiter{maxRate: maxRate, dt: dt}
	l.maxStep = maxRate * dt
	return l
}

// SetMaxRate changes the allowed rate.
func (l *RateLimiter) SetMaxRate(maxRate float64) {
	l.maxRate = maxRate
	l.maxStep = l.maxRate * l.dt
}

// SetDt changes the sample period.
func (l *RateLimiter) SetDt(dt float64) {
	l.dt = dt
	l.maxStep = l.maxRate * l.dt
}

// Reset sets the limiter output without limiting.
func (l *RateLimiter) Reset(value r2.Point) {
	l.value = value
	l.initialized = true
}

// Next moves the output toward target by at most the allowed step. The first sample after construction
// is passed through.
func (l *RateLimiter) Next(target r2.Point) r2.Point {
	if !l.initialized || l.maxStep <= 0 {
		l.Reset(target)
		return l.value
	}
	delta := target.Sub(l.value)
	if n := delta.Norm(); n > l.maxStep && !math.IsInf(n, 0) {
		delta = delta.Mul(l.maxStep / n)
	}
	l.value = l.value.Add(delta)
	return l.value
}

// Value returns the last output.
func (l *RateLimiter) Value() r2.Point {
	return l.value
}
