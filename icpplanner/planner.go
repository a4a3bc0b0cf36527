// Package icpplanner generates the desired instantaneous capture point (ICP) and the matching reference CMP
// over a preview horizon of upcoming footsteps. The desired ICP is a closed-form combination of exponential
// segments under constant CMPs and cubic Hermite blends between them.
package icpplanner

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/balance/capturepoint"
	"go.viam.com/balance/config"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/spatialmath"
)

// ErrNoFootsteps is returned when a swing is requested with an empty plan.
var ErrNoFootsteps = errors.New("no footsteps to plan with")

type mode int

const (
	modeStanding mode = iota
	modeTransfer
	modeTransferToStanding
	modeSwing
)

// Output is the planner's reference at one instant.
type Output struct {
	DesiredICP         r2.Point
	DesiredICPVelocity r2.Point
	// DesiredCMP is the CMP that keeps the ICP on the plan, icp - icpVelocity/omega.
	DesiredCMP r2.Point
	// FinalICP is the desired ICP at the end of the current state.
	FinalICP r2.Point
	// FootstepMultiplier is d(DesiredICP)/d(first footstep position).
	FootstepMultiplier float64
	Multipliers        Multipliers
	EntryCMP           r2.Point
	ExitCMP            r2.Point
	TimeInState        float64
	TimeRemaining      float64
	Done               bool
}

// Planner is the ICP trajectory generator. It is owned by the control thread.
type Planner struct {
	cfg               config.PlannerConfig
	sole              spatialmath.ConvexPolygon
	finalTransferTime float64
	logger            logging.Logger

	omega float64
	dirty bool

	feet    [2]spatialmath.Pose
	steps   []footstep.Footstep
	timings []footstep.Timing

	mode               mode
	supportSide        footstep.Side
	initialTime        float64
	initialICP         r2.Point
	initialICPVelocity r2.Point
	standingICP        r2.Point

	plan            plan
	refs            [numTerms]r2.Point
	cubic           capturepoint.CubicMatrix
	cubicDerivative capturepoint.CubicDerivativeMatrix
}

// New returns a planner in standing mode. sole is the default foot polygon in the sole frame.
func New(cfg config.PlannerConfig, sole spatialmath.ConvexPolygon, finalTransferTime, omega float64, logger logging.Logger) *Planner {
	p := &Planner{
		cfg:               cfg,
		sole:              sole,
		finalTransferTime: finalTransferTime,
		logger:            logger,
		omega:             omega,
		dirty:             true,
	}
	p.resizePlan(cfg.MaxStepsToConsider)
	return p
}

// SetOmega changes the pendulum frequency.
func (p *Planner) SetOmega(omega float64) {
	if omega != p.omega {
		p.omega = omega
		p.dirty = true
	}
}

// Omega returns the pendulum frequency in use.
func (p *Planner) Omega() float64 {
	return p.omega
}

// SetRatios changes the exit CMP ratio and transfer split fraction. Both are clamped to [0, 0.7] when used.
func (p *Planner) SetRatios(exitCMPRatio, transferSplitFraction float64) {
	p.cfg.ExitCMPRatio = exitCMPRatio
	p.cfg.TransferSplitFraction = transferSplitFraction
	p.dirty = true
}

// SetFinalTransferTime sets the transfer used after the last footstep.
func (p *Planner) SetFinalTransferTime(t float64) {
	p.finalTransferTime = t
	p.dirty = true
}

// SetFootPoses sets the current sole poses indexed by side.
func (p *Planner) SetFootPoses(poses [2]spatialmath.Pose) {
	p.feet = poses
	p.dirty = true
}

// SetFootsteps replaces the upcoming footsteps. Index 0 is the step that swings next, or the one swinging.
func (p *Planner) SetFootsteps(steps []footstep.Footstep, timings []footstep.Timing) error {
	if len(steps) != len(timings) {
		return errors.Errorf("got %d footsteps but %d timings", len(steps), len(timings))
	}
	p.steps = append(p.steps[:0], steps...)
	p.timings = append(p.timings[:0], timings...)
	p.dirty = true
	return nil
}

// ClearPlan drops every upcoming footstep.
func (p *Planner) ClearPlan() {
	p.steps = p.steps[:0]
	p.timings = p.timings[:0]
	p.dirty = true
}

// NumberOfFootsteps returns the number of upcoming footsteps known to the planner.
func (p *Planner) NumberOfFootsteps() int {
	return len(p.steps)
}

// AdjustFirstFootstep shifts the first upcoming footstep by a planar offset.
func (p *Planner) AdjustFirstFootstep(delta r2.Point) bool {
	if len(p.steps) == 0 {
		return false
	}
	p.steps[0].Adjust(delta)
	p.dirty = true
	return true
}

// SetSwingTime changes the swing time of the first footstep.
func (p *Planner) SetSwingTime(swingTime float64) bool {
	if len(p.timings) == 0 {
		return false
	}
	p.timings[0].SwingTime = swingTime
	p.dirty = true
	return true
}

// SwingTime returns the swing time of the first footstep, 0 without footsteps.
func (p *Planner) SwingTime() float64 {
	if len(p.timings) == 0 {
		return 0
	}
	return p.timings[0].SwingTime
}

// InitializeForStanding holds the ICP between both feet.
func (p *Planner) InitializeForStanding(t float64) {
	p.mode = modeStanding
	p.initialTime = t
	p.dirty = true
}

// InitializeForTransfer starts a transfer onto transferToSide from the given ICP state. Without footsteps the
// transfer ends in standing.
func (p *Planner) InitializeForTransfer(t float64, transferToSide footstep.Side, icp, icpVelocity r2.Point) {
	p.mode = modeTransfer
	if len(p.steps) == 0 {
		p.mode = modeTransferToStanding
	}
	p.supportSide = transferToSide
	p.initialTime = t
	p.initialICP = icp
	p.initialICPVelocity = icpVelocity
	p.dirty = true
	p.logger.Debugw("initialized transfer", "side", transferToSide, "footsteps", len(p.steps), "to_standing", p.mode == modeTransferToStanding)
}

// InitializeForSingleSupport starts the swing of the first footstep supported by supportSide.
func (p *Planner) InitializeForSingleSupport(t float64, supportSide footstep.Side) error {
	if len(p.steps) == 0 {
		return ErrNoFootsteps
	}
	p.mode = modeSwing
	p.supportSide = supportSide
	p.initialTime = t
	p.dirty = true
	p.logger.Debugw("initialized single support", "side", supportSide, "footsteps", len(p.steps))
	return nil
}

// IsInStanding reports whether the planner holds a standing reference.
func (p *Planner) IsInStanding() bool {
	return p.mode == modeStanding
}

// IsInTransfer reports whether the planner is planning a transfer.
func (p *Planner) IsInTransfer() bool {
	return p.mode == modeTransfer || p.mode == modeTransferToStanding
}

// Recursion returns the recursion multipliers of the current plan.
func (p *Planner) Recursion() RecursionMultipliers {
	p.update()
	return p.plan.recursion
}

// ExitSwitchTime returns the time since swing start at which the stance foot's exit CMP takes over.
func (p *Planner) ExitSwitchTime() float64 {
	p.update()
	return p.plan.exitSwitchTime
}

// stateDuration is the length of the current state, 0 for standing.
func (p *Planner) stateDuration() float64 {
	switch p.mode {
	case modeSwing:
		return p.plan.swingDuration
	case modeTransfer, modeTransferToStanding:
		return p.plan.transferDuration
	case modeStanding:
	}
	return 0
}

// IsDone reports whether the current state's plan has run out at time t.
func (p *Planner) IsDone(t float64) bool {
	p.update()
	return p.mode == modeStanding || t-p.initialTime >= p.stateDuration()
}

func (p *Planner) update() {
	if !p.dirty {
		return
	}
	p.computeRecursion()
	pl := &p.plan
	switch p.mode {
	case modeTransfer:
		pl.transferDuration = p.transferDurationOf(0)
	case modeTransferToStanding:
		pl.transferDuration = p.finalTransferTime
	case modeStanding, modeSwing:
		pl.transferDuration = 0
	}

	other := p.supportSide.Opposite()
	otherEntry, _ := p.referenceCMPs(p.feet[other], other, p.sole.TransformToWorld(p.feet[other]))
	p.standingICP = spatialmath.Midpoint(pl.entryCMPs[0], otherEntry)

	p.refs[TermInitialICP] = p.initialICP
	p.refs[TermInitialICPVelocity] = p.initialICPVelocity
	p.refs[TermEntryCMP] = pl.entryCMPs[0]
	p.refs[TermExitCMP] = pl.exitCMPs[0]
	switch p.mode {
	case modeStanding, modeTransferToStanding:
		p.refs[TermCornerICP] = p.standingICP
	case modeTransfer, modeSwing:
		p.refs[TermCornerICP] = pl.corner
	}
	p.dirty = false
}

// Compute evaluates the plan at absolute time t.
func (p *Planner) Compute(t float64) Output {
	p.update()
	elapsed := t - p.initialTime
	m := p.multipliersAt(elapsed)

	out := Output{
		DesiredICP:         m.Position.Evaluate(&p.refs),
		DesiredICPVelocity: m.Velocity.Evaluate(&p.refs),
		Multipliers:        m,
		EntryCMP:           p.refs[TermEntryCMP],
		ExitCMP:            p.refs[TermExitCMP],
		TimeInState:        elapsed,
	}
	out.DesiredCMP = capturepoint.CMPFromICP(p.omega, out.DesiredICP, out.DesiredICPVelocity)

	duration := p.stateDuration()
	out.TimeRemaining = duration - elapsed
	if out.TimeRemaining < 0 {
		out.TimeRemaining = 0
	}
	out.Done = p.mode == modeStanding || elapsed >= duration

	switch p.mode {
	case modeStanding, modeTransferToStanding:
		out.FinalICP = p.standingICP
	case modeTransfer:
		out.FinalICP = p.transferEndMultipliers().Position.Evaluate(&p.refs)
		out.FootstepMultiplier = m.Position[TermCornerICP] * p.plan.footWeight
	case modeSwing:
		out.FinalICP = p.swingMultipliers(duration).Position.Evaluate(&p.refs)
		out.FootstepMultiplier = m.Position[TermCornerICP] * p.plan.footWeight
	}
	return out
}
