package capturepoint

import "math"

// Segment caches the exponential coefficients of a constant-CMP segment. The cache is refreshed by the
// setters only, so evaluating a segment never calls math.Exp.
type Segment struct {
	omega    float64
	duration float64
	expPos   float64
	expNeg   float64
}

// NewSegment returns a segment with its coefficients computed.
func NewSegment(omega, duration float64) Segment {
	s := Segment{omega: omega, duration: duration}
	s.recompute()
	return s
}

// SetOmega updates omega and recomputes the cached coefficients.
func (s *Segment) SetOmega(omega float64) {
	s.omega = omega
	s.recompute()
}

// SetDuration updates the duration and recomputes the cached coefficients.
func (s *Segment) SetDuration(duration float64) {
	s.duration = duration
	s.recompute()
}

func (s *Segment) recompute() {
	s.expPos = math.Exp(s.omega * s.duration)
	s.expNeg = math.Exp(-s.omega * s.duration)
}

// Omega returns the natural frequency of the segment.
func (s Segment) Omega() float64 { return s.omega }

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 { return s.duration }

// ExpPositive is exp(omega*duration).
func (s Segment) ExpPositive() float64 { return s.expPos }

// ExpNegative is exp(-omega*duration), the attenuation of everything behind this segment in a backward
// recursion.
func (s Segment) ExpNegative() float64 { return s.expNeg }

// BackwardCMPWeight is 1 - exp(-omega*duration), the weight of this segment's constant CMP in the ICP at
// its start when the ICP at its end is known.
func (s Segment) BackwardCMPWeight() float64 { return 1 - s.expNeg }
