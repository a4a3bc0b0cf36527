// Package capturepoint holds the closed-form basis functions of linear-inverted-pendulum capture-point
// dynamics: exponential projection and cubic Hermite interpolation rows.
package capturepoint

import (
	"math"

	"github.com/golang/geo/r2"
)

// GravityZ is the standard gravitational acceleration in m/s^2.
const GravityZ = 9.81

// Omega returns the natural frequency sqrt(g / comHeight) of a pendulum of the given height.
func Omega(gravity, comHeight float64) float64 {
	if comHeight <= 0 {
		return 0
	}
	return math.Sqrt(gravity / comHeight)
}

// ExponentialPosition is the position multiplier exp(omega*t).
func ExponentialPosition(omega, t float64) float64 {
	return math.Exp(omega * t)
}

// ExponentialVelocity is the velocity multiplier omega*exp(omega*t).
func ExponentialVelocity(omega, t float64) float64 {
	return omega * math.Exp(omega*t)
}

// ProjectICP integrates the capture-point dynamics icpDot = omega*(icp - cmp) for a constant cmp over t
// seconds. A negative t projects backwards.
func ProjectICP(omega, t float64, icp, cmp r2.Point) r2.Point {
	return cmp.Add(icp.Sub(cmp).Mul(ExponentialPosition(omega, t)))
}

// ICPVelocity returns omega*(icp - cmp).
func ICPVelocity(omega float64, icp, cmp r2.Point) r2.Point {
	return icp.Sub(cmp).Mul(omega)
}

// CMPFromICP inverts the capture-point dynamics: cmp = icp - icpDot/omega.
func CMPFromICP(omega float64, icp, icpVelocity r2.Point) r2.Point {
	if omega <= 0 {
		return icp
	}
	return icp.Sub(icpVelocity.Mul(1 / omega))
}

// CapturePoint returns the instantaneous capture point com + comVelocity/omega.
func CapturePoint(omega float64, com, comVelocity r2.Point) r2.Point {
	if omega <= 0 {
		return com
	}
	return com.Add(comVelocity.Mul(1 / omega))
}

// TimeToReach returns the time the ICP needs to move from current to target while pushed away from a
// constant cmp, i.e. ln(|target - cmp| / |current - cmp|)/omega. It returns ok false when the ratio is not
// positive and finite.
func TimeToReach(omega float64, current, target, cmp r2.Point) (float64, bool) {
	from := current.Sub(cmp).Norm()
	to := target.Sub(cmp).Norm()
	if omega <= 0 || from <= 1e-9 || to <= 0 {
		return 0, false
	}
	t := math.Log(to/from) / omega
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, false
	}
	return t, true
}
