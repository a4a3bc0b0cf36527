package capturepoint

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// Boundary conditions of a cubic Hermite segment are ordered [p0 v0 p1 v1].
const (
	BoundaryInitialPosition = iota
	BoundaryInitialVelocity
	BoundaryFinalPosition
	BoundaryFinalVelocity
)

// ErrNonPositiveDuration is returned when a segment duration is not strictly positive.
var ErrNonPositiveDuration = errors.New("segment duration must be positive")

// CubicMatrix evaluates the cubic Hermite basis row [h00 h10 h01 h11] of a segment at a local time.
// Multiplying the row with the boundary vector [p0 v0 p1 v1] gives the interpolated position.
type CubicMatrix struct {
	duration float64
	row      [4]float64
}

// SetSegmentDuration must be called with a positive duration before Update.
func (c *CubicMatrix) SetSegmentDuration(duration float64) error {
	if !(duration > 0) {
		return errors.Wrapf(ErrNonPositiveDuration, "got %v", duration)
	}
	c.duration = duration
	return nil
}

// Duration returns the configured segment duration.
func (c *CubicMatrix) Duration() float64 {
	return c.duration
}

// Update evaluates the basis at local time tau. tau outside [0, duration] extrapolates the cubic.
func (c *CubicMatrix) Update(tau float64) {
	c.row = CubicRow(c.duration, tau)
}

// Row returns the last evaluated basis row.
func (c *CubicMatrix) Row() [4]float64 {
	return c.row
}

// Get returns entry i of the last evaluated row.
func (c *CubicMatrix) Get(i int) float64 {
	return c.row[i]
}

// CubicDerivativeMatrix is the time derivative of CubicMatrix.
type CubicDerivativeMatrix struct {
	duration float64
	row      [4]float64
}

// SetSegmentDuration must be called with a positive duration before Update.
func (c *CubicDerivativeMatrix) SetSegmentDuration(duration float64) error {
	if !(duration > 0) {
		return errors.Wrapf(ErrNonPositiveDuration, "got %v", duration)
	}
	c.duration = duration
	return nil
}

// Update evaluates the derivative basis at local time tau.
func (c *CubicDerivativeMatrix) Update(tau float64) {
	c.row = CubicDerivativeRow(c.duration, tau)
}

// Row returns the last evaluated derivative row.
func (c *CubicDerivativeMatrix) Row() [4]float64 {
	return c.row
}

// Get returns entry i of the last evaluated row.
func (c *CubicDerivativeMatrix) Get(i int) float64 {
	return c.row[i]
}

// CubicRow is the Hermite basis of a segment of length duration at tau.
func CubicRow(duration, tau float64) [4]float64 {
	s := tau / duration
	s2 := s * s
	s3 := s2 * s
	return [4]float64{
		2*s3 - 3*s2 + 1,
		(s3 - 2*s2 + s) * duration,
		-2*s3 + 3*s2,
		(s3 - s2) * duration,
	}
}

// CubicDerivativeRow is d/dtau of CubicRow.
func CubicDerivativeRow(duration, tau float64) [4]float64 {
	s := tau / duration
	s2 := s * s
	return [4]float64{
		(6*s2 - 6*s) / duration,
		3*s2 - 4*s + 1,
		(-6*s2 + 6*s) / duration,
		3*s2 - 2*s,
	}
}

// Dot multiplies a basis row with scalar boundary conditions.
func Dot(row, boundary [4]float64) float64 {
	return row[0]*boundary[0] + row[1]*boundary[1] + row[2]*boundary[2] + row[3]*boundary[3]
}

// Interpolate multiplies a basis row with planar boundary conditions p0, v0, p1, v1.
func Interpolate(row [4]float64, p0, v0, p1, v1 r2.Point) r2.Point {
	return p0.Mul(row[0]).Add(v0.Mul(row[1])).Add(p1.Mul(row[2])).Add(v1.Mul(row[3]))
}
