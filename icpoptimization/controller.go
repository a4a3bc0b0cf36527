// Package icpoptimization turns ICP tracking error into a CMP feedback command and, in single support, a
// bounded adjustment of the next footstep by solving a small quadratic program every tick.
package icpoptimization

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/balance/capturepoint"
	"go.viam.com/balance/config"
	"go.viam.com/balance/control"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/qpsolver"
	"go.viam.com/balance/spatialmath"
)

// ErrEmptySupportPolygon is returned when there is no support polygon to keep the CMP in.
var ErrEmptySupportPolygon = errors.New("support polygon is empty")

// Input is what the controller needs from the planner and the estimator for one tick.
type Input struct {
	// SupportPolygon is the world-frame support polygon.
	SupportPolygon spatialmath.ConvexPolygon
	// StanceYaw orients the forward/lateral frame the weights and margins are expressed in.
	StanceYaw     float64
	DoubleSupport bool

	DesiredICP   r2.Point
	ReferenceCMP r2.Point
	MeasuredICP  r2.Point
	// FootstepMultiplier is the sensitivity of DesiredICP to the upcoming footstep position.
	FootstepMultiplier float64
	// Footstep is the upcoming footstep as planned. Adjustment is only considered in single support with a
	// footstep.
	Footstep *footstep.Footstep
}

// Output is the controller's command for one tick.
type Output struct {
	DesiredCMP r2.Point
	// Feedback is DesiredCMP - ReferenceCMP before projection onto the support polygon.
	Feedback r2.Point
	// FootstepAdjustment is the total world-frame offset of the upcoming footstep from its plan.
	FootstepAdjustment r2.Point
	AdjustedFootstep   footstep.Footstep
	Adjusted           bool
	Slack              r2.Point
	Cost               float64
	Iterations         int
}

// Controller is the ICP optimization controller. It is owned by the control thread.
type Controller struct {
	cfg    config.ICPOptimizationConfig
	solver qpsolver.Solver
	logger logging.Logger

	buffers  [2]problemBuffer // without and with footstep adjustment
	warm     []int
	warmSig  layout
	filter   *control.LowPassFilter2D
	limiter  *control.RateLimiter
	previous Output
	failures int
}

// New returns a controller for a loop period of dt seconds.
func New(cfg config.ICPOptimizationConfig, dt float64, logger logging.Logger) (*Controller, error) {
	if err := cfg.Validate("icp_optimization"); err != nil {
		return nil, err
	}
	if dt <= 0 {
		return nil, errors.Errorf("control period must be positive, got %v", dt)
	}
	solver, err := qpsolver.New(cfg.Solver, cfg.MaxIterations, cfg.ConvergenceTolerance)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:     cfg,
		solver:  solver,
		logger:  logger,
		filter:  control.NewLowPassFilter2D(cfg.FeedbackBreakFrequency, dt),
		limiter: control.NewRateLimiter(cfg.MaxAdjustmentRate, dt),
	}
	c.limiter.Reset(r2.Point{})
	return c, nil
}

// SetFeedbackBreakFrequency changes the CMP feedback filter.
func (c *Controller) SetFeedbackBreakFrequency(breakFrequency float64) {
	c.cfg.FeedbackBreakFrequency = breakFrequency
	c.filter.SetBreakFrequency(breakFrequency)
}

// SetUseStepAdjustment turns footstep adjustment on or off.
func (c *Controller) SetUseStepAdjustment(use bool) {
	c.cfg.UseStepAdjustment = use
}

// Reset clears the footstep adjustment, filters and warm start. Call it when a new step begins.
func (c *Controller) Reset() {
	c.previous.FootstepAdjustment = r2.Point{}
	c.previous.Feedback = r2.Point{}
	c.previous.Adjusted = false
	c.limiter.Reset(r2.Point{})
	c.filter.Reset()
	c.warm = nil
}

// Previous returns the last command.
func (c *Controller) Previous() Output {
	return c.previous
}

// ConsecutiveFailures returns the number of ticks in a row the solve has failed.
func (c *Controller) ConsecutiveFailures() int {
	return c.failures
}

func (c *Controller) weights(doubleSupport bool) weights {
	cfg := c.cfg
	w := weights{
		feedback:   [2]float64{cfg.ForwardFeedbackWeight, cfg.LateralFeedbackWeight},
		footstep:   [2]float64{cfg.ForwardFootstepWeight, cfg.LateralFootstepWeight},
		gain:       [2]float64{cfg.ForwardFeedbackGain, cfg.LateralFeedbackGain},
		relaxation: cfg.DynamicRelaxationWeight,
	}
	for i := 0; i < 2; i++ {
		if cfg.ScaleFeedbackWeightWithGain {
			w.feedback[i] *= w.gain[i]
		}
		w.feedback[i] = math.Max(w.feedback[i], cfg.MinimumFeedbackWeight)
		w.footstep[i] = math.Max(w.footstep[i], cfg.MinimumFootstepWeight)
	}
	if doubleSupport {
		w.relaxation *= cfg.DynamicRelaxationDoubleSupportWeightModifier
	}
	if cfg.UseFootstepRegularization {
		w.regularization = cfg.FootstepRegularizationWeight
	}
	return w
}

func (c *Controller) margins(doubleSupport bool) (float64, float64) {
	if doubleSupport {
		return c.cfg.DoubleSupportForwardExitMargin, c.cfg.DoubleSupportLateralExitMargin
	}
	return c.cfg.SingleSupportForwardExitMargin, c.cfg.SingleSupportLateralExitMargin
}

func (c *Controller) solve(in problemInput, w weights, withFootstep bool) (*qpsolver.Solution, layout, error) {
	idx := 0
	if withFootstep {
		idx = 1
	}
	buf := &c.buffers[idx]
	buf.build(in, w, withFootstep)
	var warm []int
	if c.cfg.UseWarmStartInSolver && c.warmSig == buf.layout {
		warm = c.warm
	}
	sol, err := c.solver.Solve(&buf.problem, buf.guess, warm)
	return sol, buf.layout, err
}

// Compute solves one tick. On a solver failure the previous feedback and adjustment are held and the error
// is returned alongside the held command.
func (c *Controller) Compute(in Input) (Output, error) {
	if in.SupportPolygon.IsEmpty() {
		return c.hold(in), ErrEmptySupportPolygon
	}
	fwdMargin, latMargin := c.margins(in.DoubleSupport)
	polygon := supportPolygon(in.SupportPolygon, in.StanceYaw, fwdMargin, latMargin)

	withFootstep := c.cfg.UseStepAdjustment && !in.DoubleSupport && in.Footstep != nil
	pin := problemInput{
		yaw:          in.StanceYaw,
		polygon:      polygon,
		referenceCMP: in.ReferenceCMP,
		icpError:     spatialmath.Rotate(in.MeasuredICP.Sub(in.DesiredICP), -in.StanceYaw),
		multiplier:   in.FootstepMultiplier,
		previous:     spatialmath.Rotate(c.previous.FootstepAdjustment, -in.StanceYaw),
		reach:        [2]float64{c.cfg.ForwardReachability, c.cfg.LateralReachability},
	}
	w := c.weights(in.DoubleSupport)

	sol, sig, err := c.solve(pin, w, withFootstep)
	deadband := false
	if err == nil && withFootstep {
		adjustment := r2.Point{X: sol.X[2], Y: sol.X[3]}
		if adjustment.Norm() < c.cfg.AdjustmentDeadband {
			withFootstep, deadband = false, true
			sol, sig, err = c.solve(pin, w, false)
		}
	}
	if err != nil {
		c.failures++
		c.logger.Warnw("icp optimization failed, holding previous command", "error", err, "failures", c.failures)
		return c.hold(in), err
	}
	c.failures = 0
	c.warm, c.warmSig = sol.ActiveSet, sig

	s := sig.slack()
	feedback := spatialmath.Rotate(r2.Point{X: sol.X[0], Y: sol.X[1]}, in.StanceYaw)
	feedback = c.filter.Next(feedback)

	out := Output{
		Feedback:   feedback,
		DesiredCMP: polygon.ClosestPoint(in.ReferenceCMP.Add(feedback)),
		Slack:      spatialmath.Rotate(r2.Point{X: sol.X[s], Y: sol.X[s+1]}, in.StanceYaw),
		Cost:       sol.Cost,
		Iterations: sol.Iterations,
	}

	switch {
	case deadband:
		// under the deadband the step goes back to its plan at once
		c.limiter.Reset(r2.Point{})
		out.FootstepAdjustment = r2.Point{}
	case withFootstep:
		out.FootstepAdjustment = c.limiter.Next(spatialmath.Rotate(r2.Point{X: sol.X[2], Y: sol.X[3]}, in.StanceYaw))
	default:
		out.FootstepAdjustment = c.limiter.Next(r2.Point{})
	}
	if in.Footstep != nil {
		out.AdjustedFootstep = in.Footstep.Clone()
		if out.FootstepAdjustment.Norm() > 0 {
			out.AdjustedFootstep.Adjust(out.FootstepAdjustment)
			out.Adjusted = true
		}
	}
	c.previous = out
	return out, nil
}

// hold repeats the previous feedback and adjustment around the current reference.
func (c *Controller) hold(in Input) Output {
	out := c.previous
	out.DesiredCMP = in.ReferenceCMP.Add(out.Feedback)
	if !in.SupportPolygon.IsEmpty() {
		fwdMargin, latMargin := c.margins(in.DoubleSupport)
		out.DesiredCMP = supportPolygon(in.SupportPolygon, in.StanceYaw, fwdMargin, latMargin).ClosestPoint(out.DesiredCMP)
	}
	out.Adjusted = false
	if in.Footstep != nil {
		out.AdjustedFootstep = in.Footstep.Clone()
		if out.FootstepAdjustment.Norm() > 0 {
			out.AdjustedFootstep.Adjust(out.FootstepAdjustment)
			out.Adjusted = true
		}
	}
	return out
}

// EstimateRemainingTime estimates how long the measured ICP needs to reach finalICP while pushed by cmp.
// It returns ok false when the ICP is not moving away from the CMP toward the target.
func EstimateRemainingTime(omega float64, measuredICP, finalICP, cmp r2.Point) (float64, bool) {
	t, ok := capturepoint.TimeToReach(omega, measuredICP, finalICP, cmp)
	if !ok {
		return 0, false
	}
	return math.Max(t, 0), true
}
