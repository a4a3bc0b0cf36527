package control

import (
	"math"

	"github.com/golang/geo/r2"
)

// LowPassFilter is a first-order low-pass filter with a fixed sample period. Changing the break frequency or
// the sample period recomputes the smoothing coefficient immediately.
type LowPassFilter struct {
	breakFrequency float64
	dt             float64
	alpha          float64
	y              float64
	initialized    bool
}

// NewLowPassFilter returns a filter with the given break frequency in Hz. A break frequency of 0 passes
// the input through unchanged.
func NewLowPassFilter(breakFrequency, dt float64) *LowPassFilter {
	f := &LowPassFilter{breakFrequency: breakFrequency, dt: dt}
	f.updateAlpha()
	return f
}

func (f *LowPassFilter) updateAlpha() {
	if f.breakFrequency <= 0 || f.dt <= 0 {
		f.alpha = 1
		return
	}
	wc := 2 * math.Pi * f.breakFrequency * f.dt
	f.alpha = wc / (1 + wc)
}

// SetBreakFrequency changes the break frequency in Hz.
func (f *LowPassFilter) SetBreakFrequency(breakFrequency float64) {
	f.breakFrequency = breakFrequency
	f.updateAlpha()
}

// SetDt changes the sample period in seconds.
func (f *LowPassFilter) SetDt(dt float64) {
	f.dt = dt
	f.updateAlpha()
}

// Alpha returns the current smoothing coefficient, 1 means no filtering.
func (f *LowPassFilter) Alpha() float64 {
	return f.alpha
}

// Reset forgets the filter state. The next sample is passed through.
func (f *LowPassFilter) Reset() {
	f.initialized = false
	f.y = 0
}

// Next filters one sample.
func (f *LowPassFilter) Next(x float64) float64 {
	if !f.initialized {
		f.y = x
		f.initialized = true
		return f.y
	}
	f.y += f.alpha * (x - f.y)
	return f.y
}

// Value returns the last output.
func (f *LowPassFilter) Value() float64 {
	return f.y
}

// LowPassFilter2D filters planar points one axis at a time.
type LowPassFilter2D struct {
	x, y LowPassFilter
}

// NewLowPassFilter2D returns a planar low-pass filter.
func NewLowPassFilter2D(breakFrequency, dt float64) *LowPassFilter2D {
	return &LowPassFilter2D{
		x: *NewLowPassFilter(breakFrequency, dt),
		y: *NewLowPassFilter(breakFrequency, dt),
	}
}

// SetBreakFrequency changes the break frequency of both axes.
func (f *LowPassFilter2D) SetBreakFrequency(breakFrequency float64) {
	f.x.SetBreakFrequency(breakFrequency)
	f.y.SetBreakFrequency(breakFrequency)
}

// SetDt changes the sample period of both axes.
func (f *LowPassFilter2D) SetDt(dt float64) {
	f.x.SetDt(dt)
	f.y.SetDt(dt)
}

// Reset forgets the filter state.
func (f *LowPassFilter2D) Reset() {
	f.x.Reset()
	f.y.Reset()
}

// Next filters one point.
func (f *LowPassFilter2D) Next(p r2.Point) r2.Point {
	return r2.Point{X: f.x.Next(p.X), Y: f.y.Next(p.Y)}
}
