package icpplanner

import (
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/balance/capturepoint"
)

// Term indexes the reference points that the desired ICP is a linear combination of.
type Term int

// The reference points of a plan. CornerICP is the ICP at the switch from the stance entry CMP to the
// stance exit CMP, or the final ICP when the plan ends in standing.
const (
	TermInitialICP Term = iota
	TermInitialICPVelocity
	TermEntryCMP
	TermExitCMP
	TermCornerICP
	numTerms
)

func (t Term) String() string {
	switch t {
	case TermInitialICP:
		return "initial_icp"
	case TermInitialICPVelocity:
		return "initial_icp_velocity"
	case TermEntryCMP:
		return "entry_cmp"
	case TermExitCMP:
		return "exit_cmp"
	case TermCornerICP:
		return "corner_icp"
	case numTerms:
	}
	return "unknown"
}

// Combination holds one multiplier per Term.
type Combination [numTerms]float64

// Get returns the multiplier of t.
func (c Combination) Get(t Term) float64 {
	return c[t]
}

func unit(t Term) Combination {
	var c Combination
	c[t] = 1
	return c
}

// Evaluate returns sum_i c[i]*refs[i].
func (c Combination) Evaluate(refs *[numTerms]r2.Point) r2.Point {
	var out r2.Point
	for i, m := range c {
		out.X += m * refs[i].X
		out.Y += m * refs[i].Y
	}
	return out
}

// Multipliers are the position and velocity multipliers of the desired ICP at one instant.
type Multipliers struct {
	Position Combination
	Velocity Combination
}

func hermite(row [4]float64, p0, v0, p1, v1 Combination) Combination {
	var out Combination
	for i := range out {
		out[i] = row[0]*p0[i] + row[1]*v0[i] + row[2]*p1[i] + row[3]*v1[i]
	}
	return out
}

// exponential is the ICP under a constant CMP, anchored on the corner ICP at time corner:
// icp(t) = e^{omega (t-corner)} corner + (1 - e^{omega (t-corner)}) cmp.
func exponential(omega, t, corner float64, cmp Term) Multipliers {
	e := capturepoint.ExponentialPosition(omega, t-corner)
	var m Multipliers
	m.Position[TermCornerICP] = e
	m.Position[cmp] = 1 - e
	m.Velocity[TermCornerICP] = omega * e
	m.Velocity[cmp] = -omega * e
	return m
}

// swingMultipliers evaluates the stance foot's entry, spline and exit segments at time t since swing start.
func (p *Planner) swingMultipliers(t float64) Multipliers {
	pl := &p.plan
	if !p.cfg.UseTwoCMPs {
		return exponential(p.omega, t, pl.exitSwitchTime, TermEntryCMP)
	}
	if !pl.useSpline {
		if t < pl.exitSwitchTime {
			return exponential(p.omega, t, pl.exitSwitchTime, TermEntryCMP)
		}
		return exponential(p.omega, t, pl.exitSwitchTime, TermExitCMP)
	}
	start := pl.exitSwitchTime - pl.splineHalfDuration
	end := pl.exitSwitchTime + pl.splineHalfDuration
	switch {
	case t < start:
		return exponential(p.omega, t, pl.exitSwitchTime, TermEntryCMP)
	case t >= end:
		return exponential(p.omega, t, pl.exitSwitchTime, TermExitCMP)
	}
	first := exponential(p.omega, start, pl.exitSwitchTime, TermEntryCMP)
	last := exponential(p.omega, end, pl.exitSwitchTime, TermExitCMP)
	row, derivative, ok := p.evaluateCubic(end-start, t-start)
	if !ok {
		return first
	}
	return Multipliers{
		Position: hermite(row, first.Position, first.Velocity, last.Position, last.Velocity),
		Velocity: hermite(derivative, first.Position, first.Velocity, last.Position, last.Velocity),
	}
}

// transferEndMultipliers is the state the transfer spline ends in: the ideal swing start, or the final ICP
// at rest.
func (p *Planner) transferEndMultipliers() Multipliers {
	if p.mode == modeTransferToStanding {
		return Multipliers{Position: unit(TermCornerICP)}
	}
	return p.swingMultipliers(0)
}

// transferMultipliers evaluates the transfer spline at time t since transfer start.
func (p *Planner) transferMultipliers(t float64) Multipliers {
	end := p.transferEndMultipliers()
	row, derivative, ok := p.evaluateCubic(p.plan.transferDuration, t)
	if !ok {
		return end
	}
	initial := unit(TermInitialICP)
	initialVelocity := unit(TermInitialICPVelocity)
	return Multipliers{
		Position: hermite(row, initial, initialVelocity, end.Position, end.Velocity),
		Velocity: hermite(derivative, initial, initialVelocity, end.Position, end.Velocity),
	}
}

func (p *Planner) evaluateCubic(duration, tau float64) (row, derivative [4]float64, ok bool) {
	if err := p.cubic.SetSegmentDuration(duration); err != nil {
		return row, derivative, false
	}
	if err := p.cubicDerivative.SetSegmentDuration(duration); err != nil {
		return row, derivative, false
	}
	p.cubic.Update(tau)
	p.cubicDerivative.Update(tau)
	return p.cubic.Row(), p.cubicDerivative.Row(), true
}

// multipliersAt evaluates the active plan at time t since state start.
func (p *Planner) multipliersAt(t float64) Multipliers {
	switch p.mode {
	case modeSwing:
		return p.swingMultipliers(t)
	case modeTransfer, modeTransferToStanding:
		if t >= p.plan.transferDuration {
			return p.transferEndMultipliers()
		}
		return p.transferMultipliers(math.Max(t, 0))
	case modeStanding:
	}
	return Multipliers{Position: unit(TermCornerICP)}
}
