package spatialmath

import (
	"github.com/golang/geo/r2"
)

// LineSegment is a planar segment from Start to End.
type LineSegment struct {
	Start r2.Point
	End   r2.Point
}

// Midpoint returns the center of the segment.
func (s LineSegment) Midpoint() r2.Point {
	return Midpoint(s.Start, s.End)
}

// Length returns the length of the segment.
func (s LineSegment) Length() float64 {
	return Distance(s.Start, s.End)
}

// ClosestPoint returns the point on the segment closest to pt.
func (s LineSegment) ClosestPoint(pt r2.Point) r2.Point {
	return ClosestPointSegmentPoint(s.Start, s.End, pt)
}

// Shrink returns the segment scaled about its midpoint by fraction, fraction 1 leaving it as is.
func (s LineSegment) Shrink(fraction float64) LineSegment {
	mid := s.Midpoint()
	return LineSegment{
		Start: mid.Add(s.Start.Sub(mid).Mul(fraction)),
		End:   mid.Add(s.End.Sub(mid).Mul(fraction)),
	}
}

// ClosestPointSegmentPoint takes a line segment and a point, and returns the point on the segment
// closest to the query point.
func ClosestPointSegmentPoint(segStart, segEnd, pt r2.Point) r2.Point {
	ab := segEnd.Sub(segStart)
	denom := ab.Dot(ab)
	if denom == 0 {
		return segStart
	}
	t := pt.Sub(segStart).Dot(ab) / denom
	switch {
	case t <= 0:
		return segStart
	case t >= 1:
		return segEnd
	}
	return segStart.Add(ab.Mul(t))
}
