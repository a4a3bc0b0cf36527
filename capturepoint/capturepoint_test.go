package capturepoint

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestCubicBoundaryConditions(t *testing.T) {
	var cubic CubicMatrix
	var derivative CubicDerivativeMatrix
	test.That(t, errors.Is(cubic.SetSegmentDuration(0), ErrNonPositiveDuration), test.ShouldBeTrue)
	test.That(t, derivative.SetSegmentDuration(math.NaN()), test.ShouldNotBeNil)

	duration := 0.7
	test.That(t, cubic.SetSegmentDuration(duration), test.ShouldBeNil)
	test.That(t, derivative.SetSegmentDuration(duration), test.ShouldBeNil)

	cubic.Update(0)
	derivative.Update(0)
	for i, want := range [4]float64{1, 0, 0, 0} {
		test.That(t, cubic.Get(i), test.ShouldAlmostEqual, want)
	}
	for i, want := range [4]float64{0, 1, 0, 0} {
		test.That(t, derivative.Get(i), test.ShouldAlmostEqual, want)
	}
	cubic.Update(duration)
	derivative.Update(duration)
	for i, want := range [4]float64{0, 0, 1, 0} {
		test.That(t, cubic.Get(i), test.ShouldAlmostEqual, want)
	}
	for i, want := range [4]float64{0, 0, 0, 1} {
		test.That(t, derivative.Get(i), test.ShouldAlmostEqual, want)
	}
}

func TestCubicDerivativeMatchesFiniteDifference(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	const h = 1e-6
	for i := 0; i < 50; i++ {
		duration := 0.1 + rnd.Float64()*2
		// include extrapolation beyond the segment
		tau := -0.5 + rnd.Float64()*(duration+1)
		plus := CubicRow(duration, tau+h)
		minus := CubicRow(duration, tau-h)
		derivative := CubicDerivativeRow(duration, tau)
		for j := 0; j < 4; j++ {
			test.That(t, (plus[j]-minus[j])/(2*h), test.ShouldAlmostEqual, derivative[j], 1e-5)
		}
	}
}

func TestInterpolate(t *testing.T) {
	p0, v0 := r2.Point{X: 0, Y: 0}, r2.Point{X: 1, Y: 0}
	p1, v1 := r2.Point{X: 1, Y: 1}, r2.Point{X: 0, Y: 2}
	start := Interpolate(CubicRow(1, 0), p0, v0, p1, v1)
	end := Interpolate(CubicRow(1, 1), p0, v0, p1, v1)
	endVelocity := Interpolate(CubicDerivativeRow(1, 1), p0, v0, p1, v1)
	test.That(t, start, test.ShouldResemble, p0)
	test.That(t, end.X, test.ShouldAlmostEqual, p1.X)
	test.That(t, end.Y, test.ShouldAlmostEqual, p1.Y)
	test.That(t, endVelocity.Y, test.ShouldAlmostEqual, v1.Y)
	test.That(t, Dot(CubicRow(2, 1), [4]float64{3, 0, 3, 0}), test.ShouldAlmostEqual, 3.)
}

func TestProjectICP(t *testing.T) {
	omega := 3.
	cmp := r2.Point{X: 0.1, Y: 0}
	icp := r2.Point{X: 0.15, Y: 0.02}
	projected := ProjectICP(omega, 0.4, icp, cmp)
	back := ProjectICP(omega, -0.4, projected, cmp)
	test.That(t, back.X, test.ShouldAlmostEqual, icp.X)
	test.That(t, back.Y, test.ShouldAlmostEqual, icp.Y)

	elapsed, ok := TimeToReach(omega, icp, projected, cmp)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, elapsed, test.ShouldAlmostEqual, 0.4)
	_, ok = TimeToReach(omega, cmp, projected, cmp)
	test.That(t, ok, test.ShouldBeFalse)

	velocity := ICPVelocity(omega, icp, cmp)
	recovered := CMPFromICP(omega, icp, velocity)
	test.That(t, recovered.X, test.ShouldAlmostEqual, cmp.X)
	test.That(t, recovered.Y, test.ShouldAlmostEqual, cmp.Y)

	test.That(t, Omega(GravityZ, 1), test.ShouldAlmostEqual, math.Sqrt(GravityZ))
	test.That(t, ExponentialVelocity(2, 0.5), test.ShouldAlmostEqual, 2*ExponentialPosition(2, 0.5))
	cp := CapturePoint(2, r2.Point{X: 1}, r2.Point{X: 0.4})
	test.That(t, cp.X, test.ShouldAlmostEqual, 1.2)
}

func TestSegmentCache(t *testing.T) {
	s := NewSegment(2, 0.5)
	test.That(t, s.ExpPositive(), test.ShouldAlmostEqual, math.E)
	test.That(t, s.ExpNegative()*s.ExpPositive(), test.ShouldAlmostEqual, 1.)
	s.SetOmega(4)
	test.That(t, s.ExpPositive(), test.ShouldAlmostEqual, math.Exp(2))
	s.SetDuration(0)
	test.That(t, s.BackwardCMPWeight(), test.ShouldAlmostEqual, 0.)
	test.That(t, s.Omega(), test.ShouldEqual, 4.)
}
