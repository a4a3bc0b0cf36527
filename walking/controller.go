// Package walking is the walking phase state machine. Every tick it picks up commands, moves between
// standing, transfer and single support, and turns the ICP plan and the measured capture point into a
// desired CMP.
package walking

import (
	"context"
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/balance/commands"
	"go.viam.com/balance/config"
	"go.viam.com/balance/contact"
	"go.viam.com/balance/control"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/icpoptimization"
	"go.viam.com/balance/icpplanner"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/pushrecovery"
	"go.viam.com/balance/spatialmath"
	"go.viam.com/balance/utils"
)

const (
	footPoseEpsilon   = 1e-5
	adjustmentEpsilon = 1e-4
	speedUpEpsilon    = 1e-3
	// FootstepAdjusted only fires once the target has moved this far from the last one reported.
	adjustmentBroadcastDistance = 0.01
)

// Collaborators are the external pieces the controller talks to. Any of them may be nil, but Tick needs an
// Estimator.
type Collaborators struct {
	Estimator Estimator
	Sink      CommandSink
	Replanner SwingReplanner
	Callbacks Callbacks
}

// swing is the step being taken in single support.
type swing struct {
	// entry holds the step as planned and the timing in effect.
	entry       footstep.Entry
	adjusted    footstep.Footstep
	broadcast   r2.Point
	minimumTime float64
	recovery    bool
}

// Controller is the walking controller. The Submit methods may be called from one producer goroutine;
// everything else belongs to the control thread.
type Controller struct {
	cfg    config.WalkingConfig
	logger logging.Logger
	deps   Collaborators

	omega float64
	dt    float64

	planner   *icpplanner.Planner
	optimizer *icpoptimization.Controller
	contacts  *contact.Manager
	recovery  *pushrecovery.Planner
	height    *control.PID
	inbox     *commands.Inbox
	queue     *footstep.Queue

	feet       [2]spatialmath.Pose
	phase      Phase
	phaseStart float64
	// toStanding is set for a transfer that ends standing.
	toStanding     bool
	swing          *swing
	paused         bool
	hint           *commands.PushHint
	malformedTicks int

	state       BalanceState
	failed      error
	initialized bool
	ticking     bool
	epoch       time.Time
}

// New returns a standing controller with the feet at the given sole poses.
func New(cfg config.WalkingConfig, feet [2]spatialmath.Pose, deps Collaborators, logger logging.Logger) (*Controller, error) {
	if err := cfg.Validate("walking"); err != nil {
		return nil, err
	}
	dt := 1 / cfg.ControlFrequencyHz
	omega := cfg.Omega()

	optimizer, err := icpoptimization.New(cfg.ICPOptimization, dt, logger.Sublogger("icp_optimization"))
	if err != nil {
		return nil, err
	}
	contacts, err := contact.NewManager(cfg.Foot, cfg.ToeOff, feet, logger.Sublogger("contact"))
	if err != nil {
		return nil, err
	}
	height, err := control.NewPID(cfg.CoMHeightGains)
	if err != nil {
		return nil, errors.Wrap(err, "invalid com height gains")
	}
	inbox, err := commands.NewInbox(commands.DefaultCapacity)
	if err != nil {
		return nil, err
	}
	sole := cfg.Foot.SolePolygon()
	c := &Controller{
		cfg:       cfg,
		logger:    logger,
		deps:      deps,
		omega:     omega,
		dt:        dt,
		planner:   icpplanner.New(cfg.Planner, sole, cfg.Timing.FinalTransferTime, omega, logger.Sublogger("icp_planner")),
		optimizer: optimizer,
		contacts:  contacts,
		recovery:  pushrecovery.New(cfg.PushRecovery, omega, logger.Sublogger("push_recovery")),
		height:    height,
		inbox:     inbox,
		queue:     footstep.NewQueue(),
		feet:      feet,
		phase:     Phase{Kind: PhaseStanding},
	}
	c.planner.SetFootPoses(feet)
	return c, nil
}

// SubmitFootstepList queues a plan. Timings that are entirely unassigned get the configured defaults.
func (c *Controller) SubmitFootstepList(steps []footstep.Footstep, timings []footstep.Timing) error {
	return c.inbox.SubmitFootstepList(steps, timings)
}

// SubmitAbort stops walking after the current swing and drops every queued step.
func (c *Controller) SubmitAbort() error {
	return c.inbox.SubmitAbort()
}

// SubmitPause stops taking new steps, or resumes.
func (c *Controller) SubmitPause(pause bool) error {
	return c.inbox.SubmitPause(pause)
}

// SubmitPushRecoveryHint warns of a push moving the capture point by magnitude meters along direction.
func (c *Controller) SubmitPushRecoveryHint(direction r2.Point, magnitude float64) error {
	return c.inbox.SubmitPushRecoveryHint(direction, magnitude)
}

// SetCoMHeight changes the nominal CoM height and everything derived from omega.
func (c *Controller) SetCoMHeight(height float64) error {
	if height <= 0 {
		return errors.Errorf("com height must be positive, got %v", height)
	}
	c.cfg.CoMHeight = height
	c.omega = c.cfg.Omega()
	c.planner.SetOmega(c.omega)
	c.recovery.SetOmega(c.omega)
	return nil
}

// SetFeedbackBreakFrequency changes the CMP feedback low-pass cutoff, 0 disables it.
func (c *Controller) SetFeedbackBreakFrequency(breakFrequency float64) {
	c.optimizer.SetFeedbackBreakFrequency(breakFrequency)
}

// Phase returns the current walking phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// State returns the output of the last tick.
func (c *Controller) State() BalanceState {
	return c.state
}

// QueuedSteps returns the number of steps waiting to be taken.
func (c *Controller) QueuedSteps() int {
	return c.queue.Len()
}

// Tick runs one control period against the collaborators. It implements control.Tickable.
func (c *Controller) Tick(ctx context.Context, now time.Time, dt time.Duration) error {
	if c.deps.Estimator == nil {
		return control.NewFatalError(errors.New("walking controller has no state estimator"))
	}
	est, err := c.deps.Estimator.Estimate(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot read robot state")
	}
	if !c.ticking {
		c.ticking = true
		c.epoch = now
	}
	if est.Dt <= 0 {
		est.Dt = dt.Seconds()
	}
	state, updateErr := c.Update(now.Sub(c.epoch).Seconds(), est)
	if c.deps.Sink != nil {
		if err := c.deps.Sink.Apply(ctx, state); err != nil {
			return multierr.Combine(updateErr, errors.Wrap(err, "cannot apply balance command"))
		}
	}
	return updateErr
}

// Update runs one tick at time t, in seconds since start. Errors marked with control.NewFatalError end the
// walking session; other errors leave the returned state valid.
func (c *Controller) Update(t float64, est Estimate) (BalanceState, error) {
	if c.failed != nil {
		return c.state, c.failed
	}
	if est.Dt <= 0 {
		est.Dt = c.dt
	}
	if !c.initialized {
		c.initialized = true
		c.phaseStart = t
		c.enterStanding(t)
	}
	c.updateFeet(est.FootPoses)
	c.handleCommands(t, est)

	var tickErr error
	if err := c.checkQueue(); err != nil {
		if control.IsFatal(err) {
			return c.state, err
		}
		tickErr = err
	}

	ev, ok, err := c.nextEvent(t, est)
	if err != nil {
		return c.fail(err)
	}
	if ok {
		if err := c.transition(t, ev, est); err != nil {
			tickErr = multierr.Combine(tickErr, err)
		}
	}
	c.doAction(t, est)
	return c.state, tickErr
}

func (c *Controller) fail(err error) (BalanceState, error) {
	c.logger.Errorw("walking stopped", "phase", c.phase, "error", err)
	c.failed = err
	return c.state, err
}

// updateFeet takes the poses of the loaded feet from the estimator.
func (c *Controller) updateFeet(poses [2]spatialmath.Pose) {
	changed := false
	for _, side := range footstep.Sides {
		if c.contacts.Constraint(side) == contact.ConstraintSwing {
			continue
		}
		if !c.feet[side].AlmostEqual(poses[side], footPoseEpsilon) {
			c.feet[side] = poses[side]
			changed = true
		}
	}
	if changed {
		c.contacts.SetFootPoses(c.feet)
		c.planner.SetFootPoses(c.feet)
	}
}

func (c *Controller) handleCommands(t float64, est Estimate) {
	cmds := c.inbox.Poll()
	if cmds.Flushed > 0 {
		c.logger.Debugw("flushed pending footstep lists", "count", cmds.Flushed)
	}
	if cmds.Abort {
		c.abort(t, est)
	}
	if cmds.Pause != nil && *cmds.Pause != c.paused {
		c.paused = *cmds.Pause
		c.logger.Infow("pause changed", "paused", c.paused, "phase", c.phase)
		switch c.phase.Kind {
		case PhaseTransfer:
			if c.paused && !c.toStanding {
				c.enterTransfer(t, c.phase.Side, c.planner.Compute(t))
			}
		case PhaseSingleSupport:
			c.setSwingPlan()
		case PhaseStanding:
		}
	}
	if cmds.Hint != nil {
		c.hint = cmds.Hint
	}
	if cmds.FootstepList != nil {
		c.appendFootsteps(cmds.FootstepList)
	}
}

func (c *Controller) abort(t float64, est Estimate) {
	dropped := c.queue.Len()
	c.queue.Clear()
	c.logger.Infow("walking aborted", "phase", c.phase, "dropped", dropped)
	c.deps.Callbacks.aborted()
	switch c.phase.Kind {
	case PhaseTransfer:
		if err := c.transition(t, Event{Kind: EventAbort}, est); err != nil {
			c.logger.Warnw("cannot abort transfer", "error", err)
		}
	case PhaseSingleSupport:
		// the swing finishes, then the transfer ends standing
		c.setSwingPlan()
	case PhaseStanding:
	}
}

// assignTiming fills a timing that has no durations at all and keeps valid durations within bounds.
// Anything else is left for rejection when it reaches the front of the queue.
func (c *Controller) assignTiming(timing footstep.Timing) footstep.Timing {
	if math.IsNaN(timing.SwingTime) && math.IsNaN(timing.TransferTime) {
		swingTime, transferTime := c.cfg.Timing.DefaultTiming()
		timing = timing.WithDefaults(footstep.NewTiming(swingTime, transferTime))
	}
	if timing.Validate() != nil {
		return timing
	}
	bounds := c.cfg.Timing
	timing.SwingTime = utils.Clamp(timing.SwingTime, bounds.MinimumSwingTime, bounds.MaximumSwingTime)
	timing.TransferTime = utils.Clamp(timing.TransferTime, bounds.MinimumTransferTime, bounds.MaximumTransferTime)
	return timing
}

func (c *Controller) appendFootsteps(list *commands.FootstepList) {
	timings := make([]footstep.Timing, len(list.Timings))
	for i, timing := range list.Timings {
		timings[i] = c.assignTiming(timing)
	}
	if err := c.queue.Append(list.Steps, timings); err != nil {
		c.logger.Warnw("ignoring footstep list", "error", err)
		return
	}
	c.logger.Infow("received footsteps", "count", len(list.Steps), "queued", c.queue.Len())
	switch c.phase.Kind {
	case PhaseTransfer:
		if !c.toStanding {
			steps, timings := c.plannable(c.phase.Side)
			c.setPlannerSteps(steps, timings)
		}
	case PhaseSingleSupport:
		c.setSwingPlan()
	case PhaseStanding:
	}
}

// checkQueue counts the ticks a step with a malformed timing has been waiting at the front of the queue.
func (c *Controller) checkQueue() error {
	front, ok := c.queue.Front()
	if !ok {
		c.malformedTicks = 0
		return nil
	}
	err := front.Timing.Validate()
	if err == nil {
		c.malformedTicks = 0
		return nil
	}
	c.malformedTicks++
	if c.malformedTicks == 1 {
		c.logger.Warnw("rejected footstep with malformed timing", "id", front.Step.ID, "error", err)
	}
	cfgErr := &ConfigurationError{StepID: front.Step.ID, Ticks: c.malformedTicks, Err: err}
	if c.malformedTicks < c.cfg.Timing.MalformedTimingTicksBeforeFatal {
		return cfgErr
	}
	dropped := c.queue.RemoveInvalid()
	c.malformedTicks = 0
	c.logger.Errorw("dropped footsteps with malformed timing", "count", len(dropped), "error", multierr.Combine(dropped...))
	return control.NewFatalError(cfgErr)
}

// plannable returns the steps at the front of the queue the planner may use from a transfer onto support:
// the valid prefix, provided the first step is supported by that side.
func (c *Controller) plannable(support footstep.Side) ([]footstep.Footstep, []footstep.Timing) {
	if c.paused {
		return nil, nil
	}
	limit := c.cfg.Planner.MaxStepsToConsider + 1
	n := 0
	for ; n < c.queue.Len() && n < limit; n++ {
		e, _ := c.queue.Peek(n)
		if e.Timing.Validate() != nil {
			break
		}
	}
	if n == 0 {
		return nil, nil
	}
	if front, _ := c.queue.Front(); front.Step.SupportSide() != support {
		return nil, nil
	}
	return c.queue.Steps(n), c.queue.Timings(n)
}

func (c *Controller) setPlannerSteps(steps []footstep.Footstep, timings []footstep.Timing) {
	if len(steps) == 0 {
		c.planner.ClearPlan()
		return
	}
	if err := c.planner.SetFootsteps(steps, timings); err != nil {
		c.logger.Warnw("cannot plan footsteps", "error", err)
	}
}

// setSwingPlan gives the planner the swinging step followed by what the queue allows after it.
func (c *Controller) setSwingPlan() {
	sw := c.swing
	steps, timings := c.plannable(sw.entry.Step.Side)
	steps = append([]footstep.Footstep{sw.entry.Step}, steps...)
	timings = append([]footstep.Timing{sw.entry.Timing}, timings...)
	c.setPlannerSteps(steps, timings)
}

// nextEvent evaluates the exit conditions of the current phase.
func (c *Controller) nextEvent(t float64, est Estimate) (Event, bool, error) {
	icp := est.CapturePoint
	switch c.phase.Kind {
	case PhaseStanding:
		if ev, ok, err := c.checkRecovery(icp); ok || err != nil {
			return ev, ok, err
		}
		if c.paused {
			return Event{}, false, nil
		}
		front, ok := c.queue.Front()
		if !ok || front.Timing.Validate() != nil {
			return Event{}, false, nil
		}
		return Event{Kind: EventWalk, Side: front.Step.SupportSide()}, true, nil
	case PhaseTransfer:
		if ev, ok, err := c.checkRecovery(icp); ok || err != nil {
			return ev, ok, err
		}
		if !c.planner.IsDone(t) {
			return Event{}, false, nil
		}
		if c.toStanding {
			return Event{Kind: EventTransferToStanding}, true, nil
		}
		if !c.contacts.SupportPolygon().Contains(icp) || c.readyForSingleSupport(t, icp) {
			return Event{Kind: EventTransferDone}, true, nil
		}
	case PhaseSingleSupport:
		if c.hint != nil {
			c.logger.Debugw("ignoring push recovery hint in single support")
			c.hint = nil
		}
		swingSide := c.phase.Side.Opposite()
		done := c.planner.IsDone(t) || est.Touchdown[swingSide]
		if done && t-c.phaseStart >= c.swing.minimumTime {
			return Event{Kind: EventSwingDone}, true, nil
		}
	}
	return Event{}, false, nil
}

// readyForSingleSupport checks the ICP error against the transfer error box in the frame of the foot being
// transferred onto.
func (c *Controller) readyForSingleSupport(t float64, icp r2.Point) bool {
	desired := c.planner.Compute(t).DesiredICP
	local := spatialmath.Rotate(icp.Sub(desired), -c.feet[c.phase.Side].Yaw)
	inner := -c.phase.Side.Sign() * local.Y
	box := c.cfg.TransferToSingleSupport
	return local.X <= box.Forward && -local.X <= box.Backward && inner <= box.Inner && -inner <= box.Outer
}

// checkRecovery plans a catch step when the capture point, or the capture point a hint predicts, is too far
// outside the support polygon.
func (c *Controller) checkRecovery(icp r2.Point) (Event, bool, error) {
	hint := c.hint
	c.hint = nil
	if !c.recovery.Enabled() {
		return Event{}, false, nil
	}
	predicted := icp
	if hint != nil {
		predicted = pushrecovery.PredictICP(icp, hint.Direction, hint.Magnitude)
	}
	if !c.recovery.ShouldStep(predicted, c.contacts.SupportPolygon()) {
		return Event{}, false, nil
	}
	stance := pushrecovery.ChooseStanceSide(c.feet, predicted)
	step, timing, err := c.recovery.ComputeStep(pushrecovery.Input{
		StanceSide:    stance,
		StancePose:    c.feet[stance],
		StancePolygon: c.contacts.FullFootPolygon(stance),
		MeasuredICP:   predicted,
	})
	if err != nil {
		return Event{}, false, control.NewFatalError(multierr.Combine(ErrBalanceLost, err))
	}
	c.queue.PushFront(footstep.Entry{Step: step, Timing: timing})
	return Event{Kind: EventRecoveryStep, Side: stance}, true, nil
}

func (c *Controller) transition(t float64, ev Event, est Estimate) error {
	next, ok := NextPhase(c.phase, ev)
	if !ok {
		return errors.Errorf("%s is not allowed in %s", ev.Kind, c.phase)
	}
	if next.Kind == PhaseSingleSupport && c.queue.IsEmpty() {
		return errors.Errorf("no footstep to take for %s", ev.Kind)
	}
	// the plan is evaluated before leaving so the next phase starts where this one ends
	last := c.planner.Compute(t)
	if c.phase.Kind == PhaseSingleSupport {
		c.exitSingleSupport(est)
	}
	c.logger.Debugw("phase transition", "from", c.phase, "to", next, "event", ev.Kind)
	c.phase = next
	c.phaseStart = t
	c.optimizer.Reset()
	switch next.Kind {
	case PhaseStanding:
		c.enterStanding(t)
	case PhaseTransfer:
		c.enterTransfer(t, next.Side, last)
	case PhaseSingleSupport:
		return c.enterSingleSupport(t, next.Side, ev.Kind == EventRecoveryStep)
	}
	return nil
}

func (c *Controller) enterStanding(t float64) {
	c.toStanding = false
	for _, side := range footstep.Sides {
		c.contacts.SetFull(side)
	}
	c.planner.ClearPlan()
	c.planner.SetFootPoses(c.feet)
	c.planner.InitializeForStanding(t)
}

func (c *Controller) enterTransfer(t float64, side footstep.Side, last icpplanner.Output) {
	for _, s := range footstep.Sides {
		c.contacts.SetFull(s)
	}
	steps, timings := c.plannable(side)
	c.toStanding = len(steps) == 0
	c.setPlannerSteps(steps, timings)
	c.planner.SetFootPoses(c.feet)
	c.planner.InitializeForTransfer(t, side, last.DesiredICP, last.DesiredICPVelocity)
}

func (c *Controller) enterSingleSupport(t float64, side footstep.Side, recovery bool) error {
	entry, _ := c.queue.Pop()
	swingSide := entry.Step.Side
	minimumTime := entry.Timing.SwingTime * c.cfg.Timing.MinimumSwingFraction
	if recovery {
		minimumTime = c.cfg.Timing.FallRecoveryMinimumSwingTime
	}
	c.swing = &swing{
		entry:       entry,
		adjusted:    entry.Step.Clone(),
		broadcast:   entry.Step.Position2(),
		minimumTime: minimumTime,
		recovery:    recovery,
	}
	if c.contacts.Constraint(side) != contact.ConstraintFull {
		c.contacts.SetFull(side)
	}
	c.contacts.SetSwing(swingSide)
	c.setSwingPlan()
	if err := c.planner.InitializeForSingleSupport(t, side); err != nil {
		return err
	}
	c.replan()
	c.logger.Infow("footstep started",
		"id", entry.Step.ID, "side", swingSide, "pose", entry.Step.Pose, "swing_time", entry.Timing.SwingTime, "recovery", recovery)
	c.deps.Callbacks.started(c.swing.adjusted, c.feet[swingSide])
	return nil
}

func (c *Controller) exitSingleSupport(est Estimate) {
	sw := c.swing
	side := sw.entry.Step.Side
	landed := sw.adjusted.Pose
	if est.Touchdown[side] {
		landed = est.FootPoses[side]
	}
	c.feet[side] = landed
	c.contacts.SetFootPose(side, landed)
	c.contacts.SetFull(side)
	c.planner.SetFootPoses(c.feet)
	c.swing = nil
	c.logger.Infow("footstep completed", "id", sw.adjusted.ID, "side", side, "pose", landed)
	c.deps.Callbacks.completed(sw.adjusted, landed)
}

func (c *Controller) replan() {
	if c.deps.Replanner == nil {
		return
	}
	if err := c.deps.Replanner.Replan(c.swing.adjusted, c.swing.entry.Timing); err != nil {
		c.logger.Warnw("swing replanning failed", "id", c.swing.entry.Step.ID, "error", err)
	}
}

func (c *Controller) stanceYaw() float64 {
	if c.phase.Kind == PhaseStanding {
		return spatialmath.InterpolateYaw(c.feet[footstep.Left].Yaw, c.feet[footstep.Right].Yaw, 0.5)
	}
	return c.feet[c.phase.Side].Yaw
}

// doAction computes the commands of the current phase.
func (c *Controller) doAction(t float64, est Estimate) {
	icp := est.CapturePoint
	out := c.planner.Compute(t)
	in := icpoptimization.Input{
		SupportPolygon:     c.contacts.SupportPolygon(),
		StanceYaw:          c.stanceYaw(),
		DoubleSupport:      c.phase.Kind != PhaseSingleSupport,
		DesiredICP:         out.DesiredICP,
		ReferenceCMP:       out.DesiredCMP,
		MeasuredICP:        icp,
		FootstepMultiplier: out.FootstepMultiplier,
	}
	if c.swing != nil {
		planned := c.swing.entry.Step
		in.Footstep = &planned
	}
	res, err := c.optimizer.Compute(in)
	if errors.Is(err, icpoptimization.ErrEmptySupportPolygon) {
		c.logger.Warnw("no support polygon, holding previous command", "phase", c.phase)
	}

	switch c.phase.Kind {
	case PhaseTransfer:
		if !c.toStanding {
			c.tryDoubleSupportToeOff(out, res, icp)
		}
	case PhaseSingleSupport:
		c.updateSwing(out, res, icp)
		c.trySingleSupportToeOff(out, res, icp)
	case PhaseStanding:
	}

	acceleration, _ := c.height.Next(c.cfg.CoMHeight-est.CoMPosition.Z, -est.CoMVelocity.Z, est.Dt)
	var heightSupport [2]bool
	for _, side := range footstep.Sides {
		heightSupport[side] = c.contacts.Constraint(side) != contact.ConstraintSwing
	}

	c.state = BalanceState{
		Time:                  t,
		Phase:                 c.phase,
		DesiredICP:            out.DesiredICP,
		DesiredICPVelocity:    out.DesiredICPVelocity,
		DesiredCMP:            res.DesiredCMP,
		CapturePoint:          icp,
		Omega:                 c.omega,
		StepAdjustment:        in.Footstep != nil && c.cfg.ICPOptimization.UseStepAdjustment,
		SupportPolygon:        c.contacts.SupportPolygon(),
		Contacts:              [2]contact.State{c.contacts.State(footstep.Left), c.contacts.State(footstep.Right)},
		CoMHeightAcceleration: acceleration,
		HeightSupport:         heightSupport,
		TimeInPhase:           t - c.phaseStart,
		QueuedSteps:           c.queue.Len(),
		SolverFailures:        c.optimizer.ConsecutiveFailures(),
	}
	if c.swing != nil {
		adjusted := c.swing.adjusted.Clone()
		c.state.AdjustedFootstep = &adjusted
		c.state.SwingTime = c.swing.entry.Timing.SwingTime
		c.state.PushRecovery = c.swing.recovery
	}
}

// updateSwing follows footstep adjustments and speeds the swing up under disturbance.
func (c *Controller) updateSwing(out icpplanner.Output, res icpoptimization.Output, icp r2.Point) {
	sw := c.swing
	changed := false

	target := sw.entry.Step
	if res.Adjusted {
		target = res.AdjustedFootstep
	}
	if spatialmath.Distance(target.Position2(), sw.adjusted.Position2()) > adjustmentEpsilon {
		sw.adjusted = target.Clone()
		changed = true
		if spatialmath.Distance(sw.adjusted.Position2(), sw.broadcast) > adjustmentBroadcastDistance {
			sw.broadcast = sw.adjusted.Position2()
			c.logger.Debugw("footstep adjusted", "id", sw.adjusted.ID, "pose", sw.adjusted.Pose)
			c.deps.Callbacks.adjusted(sw.adjusted)
		}
	}

	disturbed := icp.Sub(out.DesiredICP).Norm() > c.cfg.Timing.ICPErrorThresholdToSpeedUpSwing || res.Adjusted
	if c.cfg.Timing.AllowSwingSpeedUp && disturbed {
		if remaining, ok := icpoptimization.EstimateRemainingTime(c.omega, icp, out.FinalICP, res.DesiredCMP); ok {
			swingTime := math.Max(out.TimeInState+remaining, c.cfg.Timing.MinimumSwingTimeForDisturbanceRecovery)
			if swingTime < sw.entry.Timing.SwingTime-speedUpEpsilon {
				c.logger.Debugw("speeding up swing", "id", sw.entry.Step.ID, "from", sw.entry.Timing.SwingTime, "to", swingTime)
				sw.entry.Timing.SwingTime = swingTime
				c.planner.SetSwingTime(swingTime)
				changed = true
			}
		}
	}
	if changed {
		c.replan()
	}
}

func (c *Controller) tryDoubleSupportToeOff(out icpplanner.Output, res icpoptimization.Output, icp r2.Point) {
	trailing := c.phase.Side.Opposite()
	in := contact.ToeOffInput{DesiredICP: out.DesiredICP, CapturePoint: icp, DesiredCMP: res.DesiredCMP}
	if c.contacts.CheckDoubleSupportToeOff(trailing, in) {
		c.contacts.SetToes(trailing)
		c.logger.Debugw("toe off", "side", trailing, "phase", c.phase)
	}
}

func (c *Controller) trySingleSupportToeOff(out icpplanner.Output, res icpoptimization.Output, icp r2.Point) {
	stance := c.phase.Side
	in := contact.ToeOffInput{
		DesiredICP:         out.DesiredICP,
		CapturePoint:       icp,
		DesiredCMP:         res.DesiredCMP,
		ExitCMP:            out.ExitCMP,
		NextFootPolygon:    c.swing.adjusted.Polygon(c.contacts.SolePolygon()),
		RemainingSwingTime: out.TimeRemaining,
	}
	if c.contacts.CheckSingleSupportToeOff(stance, in) {
		c.contacts.SetToes(stance)
		c.logger.Debugw("toe off", "side", stance, "phase", c.phase)
	}
}
