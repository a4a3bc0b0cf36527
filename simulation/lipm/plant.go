// Package lipm simulates a biped as a linear inverted pendulum. It stands in for the robot and its state
// estimator when running the walking controller without hardware.
package lipm

import (
	"context"
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/balance/capturepoint"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/spatialmath"
	"go.viam.com/balance/walking"
)

// Plant is a point-mass pendulum at constant height pushed around by the commanded CMP. The foot of a
// replanned swing is placed at its target right away; the controller ignores swinging feet.
type Plant struct {
	mu     sync.Mutex
	omega  float64
	height float64
	dt     float64

	com    r2.Point
	comVel r2.Point
	cmp    r2.Point
	feet   [2]spatialmath.Pose
	time   float64
}

// NewPlant returns a pendulum at rest above the midpoint of the feet.
func NewPlant(gravity, height, dt float64, feet [2]spatialmath.Pose) (*Plant, error) {
	if gravity <= 0 || height <= 0 {
		return nil, errors.Errorf("gravity and height must be positive, got %v and %v", gravity, height)
	}
	if dt <= 0 {
		return nil, errors.Errorf("time step must be positive, got %v", dt)
	}
	com := spatialmath.Midpoint(feet[footstep.Left].Point2(), feet[footstep.Right].Point2())
	return &Plant{
		omega:  capturepoint.Omega(gravity, height),
		height: height,
		dt:     dt,
		com:    com,
		cmp:    com,
		feet:   feet,
	}, nil
}

// Omega returns the pendulum frequency.
func (p *Plant) Omega() float64 {
	return p.omega
}

// Step integrates the pendulum over dt with a constant CMP. The integration is exact.
func (p *Plant) Step(cmp r2.Point, dt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.step(cmp, dt)
}

func (p *Plant) step(cmp r2.Point, dt float64) {
	w := p.omega
	ch, sh := math.Cosh(w*dt), math.Sinh(w*dt)
	offset := p.com.Sub(cmp)
	p.com = cmp.Add(offset.Mul(ch)).Add(p.comVel.Mul(sh / w))
	p.comVel = offset.Mul(w * sh).Add(p.comVel.Mul(ch))
	p.cmp = cmp
	p.time += dt
}

// Push changes the CoM velocity instantly.
func (p *Plant) Push(deltaVelocity r2.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.comVel = p.comVel.Add(deltaVelocity)
}

// CoM returns the planar CoM position and velocity.
func (p *Plant) CoM() (r2.Point, r2.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.com, p.comVel
}

// CapturePoint returns the true capture point.
func (p *Plant) CapturePoint() r2.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return capturepoint.CapturePoint(p.omega, p.com, p.comVel)
}

// CMP returns the last applied CMP.
func (p *Plant) CMP() r2.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmp
}

// FootPoses returns the sole poses.
func (p *Plant) FootPoses() [2]spatialmath.Pose {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.feet
}

// Time returns the simulated time.
func (p *Plant) Time() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.time
}

// Replan moves the swing foot to the step target.
func (p *Plant) Replan(step footstep.Footstep, timing footstep.Timing) error {
	if err := timing.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.feet[step.Side] = step.Pose
	return nil
}

// Apply integrates one period with the commanded CMP.
func (p *Plant) Apply(ctx context.Context, state walking.BalanceState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.step(state.DesiredCMP, p.dt)
	return nil
}

// com3 returns the CoM position and velocity in 3D at constant height.
func (p *Plant) com3() (r3.Vector, r3.Vector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return r3.Vector{X: p.com.X, Y: p.com.Y, Z: p.height}, r3.Vector{X: p.comVel.X, Y: p.comVel.Y}
}
