package icpoptimization

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/balance/capturepoint"
	"go.viam.com/balance/config"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/icpplanner"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/qpsolver"
	"go.viam.com/balance/spatialmath"
)

const dt = 0.002

func newTestController(t *testing.T, cfg config.ICPOptimizationConfig) *Controller {
	t.Helper()
	c, err := New(cfg, dt, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return c
}

func soleAt(pose spatialmath.Pose) spatialmath.ConvexPolygon {
	foot := config.Default().Foot
	return foot.SolePolygon().TransformToWorld(pose)
}

func singleSupportInput(icpError r2.Point) Input {
	step := footstep.New(footstep.Right, spatialmath.NewPose(0.3, -0.2, 0, 0))
	return Input{
		SupportPolygon:     soleAt(spatialmath.NewPose(0, 0, 0, 0)),
		DesiredICP:         r2.Point{X: 0.05},
		ReferenceCMP:       r2.Point{},
		MeasuredICP:        r2.Point{X: 0.05}.Add(icpError),
		FootstepMultiplier: 0.5,
		Footstep:           &step,
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Default().ICPOptimization
	cfg.Solver = "simplex"
	_, err := New(cfg, dt, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(config.Default().ICPOptimization, 0, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestWeights(t *testing.T) {
	cfg := config.Default().ICPOptimization
	cfg.ForwardFeedbackWeight = 0.5
	cfg.LateralFeedbackWeight = 0
	cfg.MinimumFeedbackWeight = 1e-3
	cfg.ScaleFeedbackWeightWithGain = true
	cfg.UseFootstepRegularization = false
	c := newTestController(t, cfg)

	w := c.weights(false)
	test.That(t, w.feedback[0], test.ShouldAlmostEqual, 0.5*cfg.ForwardFeedbackGain)
	test.That(t, w.feedback[1], test.ShouldAlmostEqual, 1e-3)
	test.That(t, w.regularization, test.ShouldEqual, 0.0)
	test.That(t, w.relaxation, test.ShouldEqual, cfg.DynamicRelaxationWeight)

	w = c.weights(true)
	test.That(t, w.relaxation, test.ShouldAlmostEqual, cfg.DynamicRelaxationWeight*cfg.DynamicRelaxationDoubleSupportWeightModifier)
}

func TestZeroErrorGivesReferenceCMP(t *testing.T) {
	c := newTestController(t, config.Default().ICPOptimization)
	in := singleSupportInput(r2.Point{})
	in.ReferenceCMP = r2.Point{X: 0.02, Y: 0.01}
	out, err := c.Compute(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.DesiredCMP.X, test.ShouldAlmostEqual, 0.02, 1e-9)
	test.That(t, out.DesiredCMP.Y, test.ShouldAlmostEqual, 0.01, 1e-9)
	test.That(t, out.Adjusted, test.ShouldBeFalse)
	test.That(t, out.FootstepAdjustment, test.ShouldResemble, r2.Point{})
}

func TestFeedbackAndAdjustmentRespectBounds(t *testing.T) {
	cfg := config.Default().ICPOptimization
	c := newTestController(t, cfg)
	in := singleSupportInput(r2.Point{X: 0.3})

	out, err := c.Compute(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, in.SupportPolygon.ContainsWithMargin(out.DesiredCMP, 1e-6), test.ShouldBeTrue)
	// the toe is the forward limit of the sole
	test.That(t, out.DesiredCMP.X, test.ShouldAlmostEqual, config.Default().Foot.ToeX, 1e-6)

	test.That(t, out.Adjusted, test.ShouldBeTrue)
	test.That(t, out.FootstepAdjustment.X, test.ShouldAlmostEqual, cfg.ForwardReachability, 1e-6)
	test.That(t, math.Abs(out.FootstepAdjustment.Y), test.ShouldBeLessThanOrEqualTo, cfg.LateralReachability+1e-9)
	test.That(t, out.AdjustedFootstep.Position2().X, test.ShouldAlmostEqual, 0.3+cfg.ForwardReachability, 1e-6)
	test.That(t, out.AdjustedFootstep.ID, test.ShouldEqual, in.Footstep.ID)
	test.That(t, out.Slack.X, test.ShouldBeGreaterThan, 0.0)

	// the planned footstep is untouched
	test.That(t, in.Footstep.Position2().X, test.ShouldEqual, 0.3)

	in = singleSupportInput(r2.Point{Y: -0.5})
	out, err = c.Compute(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, in.SupportPolygon.ContainsWithMargin(out.DesiredCMP, 1e-6), test.ShouldBeTrue)
	test.That(t, out.FootstepAdjustment.Y, test.ShouldAlmostEqual, -cfg.LateralReachability, 1e-6)
}

func TestExitMarginsRotateWithStance(t *testing.T) {
	cfg := config.Default().ICPOptimization
	cfg.UseStepAdjustment = false
	cfg.DoubleSupportForwardExitMargin = 0.05
	cfg.DoubleSupportLateralExitMargin = 0
	c := newTestController(t, cfg)

	yaw := math.Pi / 2
	stance := spatialmath.NewPose(0, 0, 0, yaw)
	in := Input{
		SupportPolygon: soleAt(stance),
		StanceYaw:      yaw,
		DoubleSupport:  true,
		DesiredICP:     r2.Point{},
		MeasuredICP:    r2.Point{Y: 1},
	}
	out, err := c.Compute(in)
	test.That(t, err, test.ShouldBeNil)
	// forward is +y for this stance, so the CMP may leave the toe by the forward margin
	test.That(t, out.DesiredCMP.Y, test.ShouldAlmostEqual, config.Default().Foot.ToeX+0.05, 1e-6)
	test.That(t, out.Adjusted, test.ShouldBeFalse)
}

func TestAdjustmentDeadband(t *testing.T) {
	cfg := config.Default().ICPOptimization
	c := newTestController(t, cfg)
	out, err := c.Compute(singleSupportInput(r2.Point{X: 0.005}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Adjusted, test.ShouldBeFalse)
	test.That(t, out.FootstepAdjustment, test.ShouldResemble, r2.Point{})
	test.That(t, out.DesiredCMP.X, test.ShouldBeGreaterThan, 0.0)

	cfg.AdjustmentDeadband = 0
	c = newTestController(t, cfg)
	out, err = c.Compute(singleSupportInput(r2.Point{X: 0.005}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Adjusted, test.ShouldBeTrue)
	test.That(t, out.FootstepAdjustment.X, test.ShouldBeGreaterThan, 0.0)
	test.That(t, out.FootstepAdjustment.X, test.ShouldBeLessThan, 0.02)
}

func TestAdjustmentRateLimit(t *testing.T) {
	cfg := config.Default().ICPOptimization
	cfg.MaxAdjustmentRate = 1
	c := newTestController(t, cfg)
	out, err := c.Compute(singleSupportInput(r2.Point{X: 0.3}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.FootstepAdjustment.Norm(), test.ShouldAlmostEqual, cfg.MaxAdjustmentRate*dt, 1e-9)

	out, err = c.Compute(singleSupportInput(r2.Point{X: 0.3}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.FootstepAdjustment.Norm(), test.ShouldAlmostEqual, 2*cfg.MaxAdjustmentRate*dt, 1e-9)

	c.Reset()
	test.That(t, c.Previous().FootstepAdjustment, test.ShouldResemble, r2.Point{})
}

func TestDeadbandOverridesRateLimit(t *testing.T) {
	cfg := config.Default().ICPOptimization
	cfg.MaxAdjustmentRate = 0.5
	cfg.UseFootstepRegularization = false
	c := newTestController(t, cfg)

	var out Output
	var err error
	for i := 0; i < 50; i++ {
		out, err = c.Compute(singleSupportInput(r2.Point{X: 0.3}))
		test.That(t, err, test.ShouldBeNil)
	}
	test.That(t, out.Adjusted, test.ShouldBeTrue)
	test.That(t, out.FootstepAdjustment.Norm(), test.ShouldAlmostEqual, 50*cfg.MaxAdjustmentRate*dt, 1e-9)

	in := singleSupportInput(r2.Point{X: 0.001})
	out, err = c.Compute(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Adjusted, test.ShouldBeFalse)
	test.That(t, out.FootstepAdjustment, test.ShouldResemble, r2.Point{})
	test.That(t, out.AdjustedFootstep.Position2(), test.ShouldResemble, in.Footstep.Position2())
	test.That(t, c.Previous().FootstepAdjustment, test.ShouldResemble, r2.Point{})

	// the limiter starts again from the planned step
	out, err = c.Compute(singleSupportInput(r2.Point{X: 0.3}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.FootstepAdjustment.Norm(), test.ShouldAlmostEqual, cfg.MaxAdjustmentRate*dt, 1e-9)
}

func TestDegenerateSupportPolygon(t *testing.T) {
	c := newTestController(t, config.Default().ICPOptimization)
	line := spatialmath.NewConvexPolygon(r2.Point{X: 0.1, Y: -0.05}, r2.Point{X: 0.1, Y: 0.05})
	out, err := c.Compute(Input{
		SupportPolygon: line,
		ReferenceCMP:   r2.Point{X: 0.1},
		MeasuredICP:    r2.Point{X: 0.2},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.DesiredCMP.X, test.ShouldAlmostEqual, 0.1, 2*minimumPolygonMargin)

	_, err = c.Compute(Input{ReferenceCMP: r2.Point{X: 0.1}})
	test.That(t, errors.Is(err, ErrEmptySupportPolygon), test.ShouldBeTrue)
}

type failingSolver struct{}

func (failingSolver) Solve(*qpsolver.Problem, []float64, []int) (*qpsolver.Solution, error) {
	return nil, errors.Wrap(qpsolver.ErrNotConverged, "forced")
}

func TestSolverFailureHoldsPreviousCommand(t *testing.T) {
	logger, observed := logging.NewObservedTestLogger(t)
	c, err := New(config.Default().ICPOptimization, dt, logger)
	test.That(t, err, test.ShouldBeNil)

	in := singleSupportInput(r2.Point{X: 0.3})
	first, err := c.Compute(in)
	test.That(t, err, test.ShouldBeNil)

	c.solver = failingSolver{}
	held, err := c.Compute(singleSupportInput(r2.Point{X: -0.3}))
	test.That(t, errors.Is(err, qpsolver.ErrNotConverged), test.ShouldBeTrue)
	test.That(t, held.DesiredCMP.X, test.ShouldAlmostEqual, first.DesiredCMP.X, 1e-9)
	test.That(t, held.DesiredCMP.Y, test.ShouldAlmostEqual, first.DesiredCMP.Y, 1e-9)
	test.That(t, held.FootstepAdjustment, test.ShouldResemble, first.FootstepAdjustment)
	test.That(t, c.ConsecutiveFailures(), test.ShouldEqual, 1)
	test.That(t, observed.FilterMessage("icp optimization failed, holding previous command").Len(), test.ShouldEqual, 1)

	_, err = c.Compute(in)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, c.ConsecutiveFailures(), test.ShouldEqual, 2)
}

func TestWarmStartMatchesColdStart(t *testing.T) {
	cfg := config.Default().ICPOptimization
	warm := newTestController(t, cfg)
	cfg.UseWarmStartInSolver = false
	cold := newTestController(t, cfg)

	for _, e := range []r2.Point{{X: 0.3}, {X: 0.28, Y: 0.02}, {X: 0.25, Y: 0.03}} {
		a, err := warm.Compute(singleSupportInput(e))
		test.That(t, err, test.ShouldBeNil)
		b, err := cold.Compute(singleSupportInput(e))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, a.DesiredCMP.X, test.ShouldAlmostEqual, b.DesiredCMP.X, 1e-6)
		test.That(t, a.DesiredCMP.Y, test.ShouldAlmostEqual, b.DesiredCMP.Y, 1e-6)
		test.That(t, a.FootstepAdjustment.X, test.ShouldAlmostEqual, b.FootstepAdjustment.X, 1e-6)
	}
}

func TestEstimateRemainingTime(t *testing.T) {
	omega := 3.0
	cmp := r2.Point{}
	icp := r2.Point{X: 0.1}
	final := capturepoint.ProjectICP(omega, 0.4, icp, cmp)
	remaining, ok := EstimateRemainingTime(omega, icp, final, cmp)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, remaining, test.ShouldAlmostEqual, 0.4, 1e-9)

	// already past the target
	remaining, ok = EstimateRemainingTime(omega, final, icp, cmp)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, remaining, test.ShouldEqual, 0.0)

	_, ok = EstimateRemainingTime(omega, cmp, final, cmp)
	test.That(t, ok, test.ShouldBeFalse)
}

// A three step straight walk with the controller tracking perfectly must command the planner's CMP.
func TestStraightWalkScenario(t *testing.T) {
	const (
		stepLength = 0.2
		stepWidth  = 0.1
		swingTime  = 2.0
		transfer   = 1.0
		omega      = 0.3
	)
	cfg := config.Default()
	logger := logging.NewTestLogger(t)
	planner := icpplanner.New(cfg.Planner, cfg.Foot.SolePolygon(), transfer, omega, logger)

	feet := [2]spatialmath.Pose{
		spatialmath.NewPose(0, stepWidth/2, 0, 0),
		spatialmath.NewPose(0, -stepWidth/2, 0, 0),
	}
	var steps []footstep.Footstep
	var timings []footstep.Timing
	side := footstep.Right
	for i := 0; i < 3; i++ {
		steps = append(steps, footstep.New(side, spatialmath.NewPose(stepLength*float64(i+1), side.Sign()*stepWidth/2, 0, 0)))
		timings = append(timings, footstep.NewTiming(swingTime, transfer))
		side = side.Opposite()
	}
	planner.SetFootPoses(feet)
	test.That(t, planner.SetFootsteps(steps, timings), test.ShouldBeNil)
	test.That(t, planner.InitializeForSingleSupport(0, footstep.Left), test.ShouldBeNil)

	start := planner.Compute(0)
	ref := planner.Compute(0.5)

	c := newTestController(t, cfg.ICPOptimization)
	support := cfg.Foot.SolePolygon().TransformToWorld(feet[footstep.Left])
	out, err := c.Compute(Input{
		SupportPolygon:     support,
		StanceYaw:          feet[footstep.Left].Yaw,
		DesiredICP:         ref.DesiredICP,
		ReferenceCMP:       ref.DesiredCMP,
		MeasuredICP:        ref.DesiredICP,
		FootstepMultiplier: ref.FootstepMultiplier,
		Footstep:           &steps[0],
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, support.Contains(out.DesiredCMP), test.ShouldBeTrue)

	// before the exit CMP blend the ICP diverges from the entry CMP
	icp := capturepoint.ProjectICP(omega, 0.5, start.DesiredICP, start.EntryCMP)
	expectedCMP := capturepoint.CMPFromICP(omega, icp, capturepoint.ICPVelocity(omega, icp, start.EntryCMP))
	test.That(t, ref.DesiredICP.X, test.ShouldAlmostEqual, icp.X, 1e-4)
	test.That(t, ref.DesiredICP.Y, test.ShouldAlmostEqual, icp.Y, 1e-4)
	test.That(t, out.DesiredCMP.X, test.ShouldAlmostEqual, expectedCMP.X, 1e-4)
	test.That(t, out.DesiredCMP.Y, test.ShouldAlmostEqual, expectedCMP.Y, 1e-4)
	test.That(t, out.Adjusted, test.ShouldBeFalse)
}
