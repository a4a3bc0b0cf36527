package icpplanner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/balance/capturepoint"
	"go.viam.com/balance/config"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/spatialmath"
)

const continuityEpsilon = 1e-4

type walkParams struct {
	numSteps    int
	stepLength  float64
	stepWidth   float64
	swingTime   float64
	transfer    float64
	finalTime   float64
	omega       float64
	maxSteps    int
	twoCMPs     bool
	exitRatio   float64
	transferFra float64
}

func defaultWalk() walkParams {
	return walkParams{
		numSteps:    3,
		stepLength:  0.2,
		stepWidth:   0.1,
		swingTime:   2.0,
		transfer:    1.0,
		finalTime:   1.0,
		omega:       0.3,
		maxSteps:    3,
		twoCMPs:     true,
		exitRatio:   0.5,
		transferFra: 0.5,
	}
}

// straightWalk starts with both feet side by side at the origin and steps forward with the right foot first.
func straightWalk(params walkParams) ([2]spatialmath.Pose, []footstep.Footstep, []footstep.Timing) {
	feet := [2]spatialmath.Pose{
		spatialmath.NewPose(0, params.stepWidth/2, 0, 0),
		spatialmath.NewPose(0, -params.stepWidth/2, 0, 0),
	}
	steps := make([]footstep.Footstep, 0, params.numSteps)
	timings := make([]footstep.Timing, 0, params.numSteps)
	side := footstep.Right
	for i := 0; i < params.numSteps; i++ {
		pose := spatialmath.NewPose(params.stepLength*float64(i+1), side.Sign()*params.stepWidth/2, 0, 0)
		steps = append(steps, footstep.New(side, pose))
		timings = append(timings, footstep.NewTiming(params.swingTime, params.transfer))
		side = side.Opposite()
	}
	return feet, steps, timings
}

func newTestPlanner(t *testing.T, params walkParams) *Planner {
	t.Helper()
	cfg := config.Default()
	cfg.Planner.MaxStepsToConsider = params.maxSteps
	cfg.Planner.UseTwoCMPs = params.twoCMPs
	cfg.Planner.ExitCMPRatio = params.exitRatio
	cfg.Planner.TransferSplitFraction = params.transferFra
	p := New(cfg.Planner, cfg.Foot.SolePolygon(), params.finalTime, params.omega, logging.NewTestLogger(t))
	feet, steps, timings := straightWalk(params)
	p.SetFootPoses(feet)
	test.That(t, p.SetFootsteps(steps, timings), test.ShouldBeNil)
	return p
}

func randomWalk(rnd *rand.Rand, twoCMPs bool) walkParams {
	params := defaultWalk()
	params.numSteps = 1 + rnd.Intn(5)
	params.maxSteps = 1 + rnd.Intn(4)
	params.swingTime = 0.3 + 1.7*rnd.Float64()
	params.transfer = 0.1 + 0.9*rnd.Float64()
	params.finalTime = 0.2 + rnd.Float64()
	params.omega = 0.3 + 3.7*rnd.Float64()
	params.twoCMPs = twoCMPs
	params.exitRatio = rnd.Float64()
	params.transferFra = rnd.Float64()
	return params
}

func multipliersClose(t *testing.T, a, b Multipliers) {
	t.Helper()
	for i := Term(0); i < numTerms; i++ {
		test.That(t, a.Position[i], test.ShouldAlmostEqual, b.Position[i], continuityEpsilon)
		test.That(t, a.Velocity[i], test.ShouldAlmostEqual, b.Velocity[i], continuityEpsilon)
	}
}

func TestSwingMultipliersContinuous(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	const h = 1e-8
	for i := 0; i < 100; i++ {
		p := newTestPlanner(t, randomWalk(rnd, true))
		test.That(t, p.InitializeForSingleSupport(0, footstep.Left), test.ShouldBeNil)
		p.update()
		if !p.plan.useSpline {
			continue
		}
		start := p.plan.exitSwitchTime - p.plan.splineHalfDuration
		end := p.plan.exitSwitchTime + p.plan.splineHalfDuration
		for _, boundary := range []float64{start, end} {
			multipliersClose(t, p.swingMultipliers(boundary-h), p.swingMultipliers(boundary+h))
		}
	}
}

func TestTransferEndsOnSwingStart(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	for i := 0; i < 50; i++ {
		params := randomWalk(rnd, rnd.Intn(2) == 0)
		p := newTestPlanner(t, params)
		icp := r2.Point{X: 0.01 * rnd.Float64(), Y: 0.02 * rnd.Float64()}
		p.InitializeForTransfer(1, footstep.Left, icp, r2.Point{})

		atStart := p.Compute(1)
		test.That(t, atStart.DesiredICP.X, test.ShouldAlmostEqual, icp.X, continuityEpsilon)
		test.That(t, atStart.DesiredICP.Y, test.ShouldAlmostEqual, icp.Y, continuityEpsilon)

		endOfTransfer := p.Compute(1 + params.transfer - 1e-9)
		test.That(t, endOfTransfer.FinalICP.X, test.ShouldAlmostEqual, endOfTransfer.DesiredICP.X, continuityEpsilon)

		test.That(t, p.InitializeForSingleSupport(1+params.transfer, footstep.Left), test.ShouldBeNil)
		swingStart := p.Compute(1 + params.transfer)
		test.That(t, swingStart.DesiredICP.X, test.ShouldAlmostEqual, endOfTransfer.DesiredICP.X, continuityEpsilon)
		test.That(t, swingStart.DesiredICP.Y, test.ShouldAlmostEqual, endOfTransfer.DesiredICP.Y, continuityEpsilon)
		test.That(t, swingStart.DesiredICPVelocity.X, test.ShouldAlmostEqual, endOfTransfer.DesiredICPVelocity.X, continuityEpsilon)
		test.That(t, swingStart.DesiredICPVelocity.Y, test.ShouldAlmostEqual, endOfTransfer.DesiredICPVelocity.Y, continuityEpsilon)
	}
}

func TestOneCMPExitMultiplierIsZero(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		params := randomWalk(rnd, false)
		p := newTestPlanner(t, params)

		p.InitializeForTransfer(0, footstep.Left, r2.Point{}, r2.Point{})
		for _, tt := range []float64{0, params.transfer / 3, params.transfer} {
			out := p.Compute(tt)
			test.That(t, out.Multipliers.Position.Get(TermExitCMP), test.ShouldAlmostEqual, 0.)
			test.That(t, out.Multipliers.Velocity.Get(TermExitCMP), test.ShouldAlmostEqual, 0.)
		}
		for _, exit := range p.Recursion().Exit {
			test.That(t, exit, test.ShouldAlmostEqual, 0.)
		}
		test.That(t, p.Recursion().StanceExit, test.ShouldAlmostEqual, 0.)

		test.That(t, p.InitializeForSingleSupport(0, footstep.Left), test.ShouldBeNil)
		for _, tt := range []float64{0, params.swingTime / 2, params.swingTime} {
			out := p.Compute(tt)
			test.That(t, out.Multipliers.Position.Get(TermExitCMP), test.ShouldAlmostEqual, 0.)
			test.That(t, out.Multipliers.Velocity.Get(TermExitCMP), test.ShouldAlmostEqual, 0.)
			// under a single CMP the reference CMP never moves
			test.That(t, out.DesiredCMP.X, test.ShouldAlmostEqual, out.EntryCMP.X, 1e-6)
			test.That(t, out.DesiredCMP.Y, test.ShouldAlmostEqual, out.EntryCMP.Y, 1e-6)
		}
	}
}

func TestTransferInitialICPMultiplier(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	for i := 0; i < 30; i++ {
		params := randomWalk(rnd, true)
		p := newTestPlanner(t, params)
		p.InitializeForTransfer(2, footstep.Left, r2.Point{X: 0.01}, r2.Point{X: 0.02})
		tt := params.transfer * rnd.Float64()
		out := p.Compute(2 + tt)

		row := capturepoint.CubicRow(params.transfer, tt)
		want := capturepoint.Dot(row, [4]float64{1, 0, 0, 0})
		test.That(t, out.Multipliers.Position.Get(TermInitialICP), test.ShouldAlmostEqual, want)
		test.That(t, out.Multipliers.Position.Get(TermInitialICPVelocity), test.ShouldAlmostEqual, row[1])
		derivative := capturepoint.CubicDerivativeRow(params.transfer, tt)
		test.That(t, out.Multipliers.Velocity.Get(TermInitialICP), test.ShouldAlmostEqual, derivative[0])
	}
}

func TestThirdSegmentMultipliers(t *testing.T) {
	rnd := rand.New(rand.NewSource(13))
	for i := 0; i < 50; i++ {
		params := randomWalk(rnd, true)
		params.numSteps = 3
		params.maxSteps = 2
		p := newTestPlanner(t, params)
		test.That(t, p.InitializeForSingleSupport(0, footstep.Left), test.ShouldBeNil)
		p.update()

		alpha := math.Min(params.transferFra, maxSplitRatio)
		beta := math.Min(params.exitRatio, maxSplitRatio)
		upcomingInitialTransfer := params.transfer * alpha
		timeOnExit := beta * (params.transfer*(1-alpha) + params.swingTime + upcomingInitialTransfer)

		start := p.plan.exitSwitchTime + p.plan.splineHalfDuration
		if start >= params.swingTime {
			continue
		}
		tt := start + (params.swingTime-start)*rnd.Float64()
		out := p.Compute(tt)
		projectionTime := tt - params.swingTime + timeOnExit - upcomingInitialTransfer
		test.That(t, out.Multipliers.Position.Get(TermExitCMP), test.ShouldAlmostEqual, 1-math.Exp(params.omega*projectionTime), 1e-9)
		test.That(t, out.Multipliers.Velocity.Get(TermExitCMP), test.ShouldAlmostEqual, -params.omega*math.Exp(params.omega*projectionTime), 1e-9)
		test.That(t, out.Multipliers.Position.Get(TermInitialICP), test.ShouldEqual, 0.)
		test.That(t, out.Multipliers.Position.Get(TermEntryCMP), test.ShouldEqual, 0.)
		test.That(t, out.DesiredCMP.X, test.ShouldAlmostEqual, out.ExitCMP.X, 1e-6)
	}
}

func TestRecursionIndependentOfHorizon(t *testing.T) {
	rnd := rand.New(rand.NewSource(17))
	for i := 0; i < 20; i++ {
		params := randomWalk(rnd, true)
		params.numSteps = 5
		alpha := math.Min(params.transferFra, maxSplitRatio)
		beta := math.Min(params.exitRatio, maxSplitRatio)
		footTime := params.transfer*(1-alpha) + params.swingTime + params.transfer*alpha
		onExit := beta * footTime
		onEntry := footTime - onExit
		wantExit := math.Exp(-params.omega*onEntry) * (1 - math.Exp(-params.omega*onExit))
		wantStanceExit := 1 - math.Exp(-params.omega*onExit)

		for maxSteps := 1; maxSteps <= 4; maxSteps++ {
			params.maxSteps = maxSteps
			p := newTestPlanner(t, params)
			p.InitializeForTransfer(0, footstep.Left, r2.Point{}, r2.Point{})
			recursion := p.Recursion()
			test.That(t, len(recursion.Exit), test.ShouldEqual, maxSteps)
			test.That(t, recursion.Exit[0], test.ShouldAlmostEqual, wantExit, 1e-12)
			test.That(t, recursion.StanceExit, test.ShouldAlmostEqual, wantStanceExit, 1e-12)
		}
	}
}

func TestCornerMatchesRecursion(t *testing.T) {
	params := defaultWalk()
	params.omega = 3
	params.swingTime = 0.6
	params.transfer = 0.2
	p := newTestPlanner(t, params)
	test.That(t, p.InitializeForSingleSupport(0, footstep.Left), test.ShouldBeNil)
	p.update()
	// extrapolating the exit segment to the end of the stance foot's CMP time reaches the recursion ICP
	out := p.Compute(p.plan.exitSwitchTime + p.plan.timeOnExit0)
	test.That(t, out.DesiredICP.X, test.ShouldAlmostEqual, p.plan.recursionAt.X, 1e-9)
	test.That(t, out.DesiredICP.Y, test.ShouldAlmostEqual, p.plan.recursionAt.Y, 1e-9)
}

func TestFootstepMultiplierMatchesFiniteDifference(t *testing.T) {
	for _, numSteps := range []int{1, 2, 3, 5} {
		params := defaultWalk()
		params.omega = 3
		params.swingTime = 0.7
		params.transfer = 0.25
		params.numSteps = numSteps
		p := newTestPlanner(t, params)
		test.That(t, p.InitializeForSingleSupport(0, footstep.Left), test.ShouldBeNil)
		for _, tt := range []float64{0.1, 0.35, 0.6} {
			before := p.Compute(tt)
			const delta = 1e-4
			test.That(t, p.AdjustFirstFootstep(r2.Point{X: delta}), test.ShouldBeTrue)
			after := p.Compute(tt)
			test.That(t, p.AdjustFirstFootstep(r2.Point{X: -delta}), test.ShouldBeTrue)
			measured := (after.DesiredICP.X - before.DesiredICP.X) / delta
			test.That(t, before.FootstepMultiplier, test.ShouldAlmostEqual, measured, 1e-6)
			test.That(t, before.FootstepMultiplier, test.ShouldBeGreaterThan, 0)
		}
	}
}

func TestStandingAndToStanding(t *testing.T) {
	params := defaultWalk()
	params.numSteps = 0
	p := newTestPlanner(t, params)
	p.InitializeForStanding(0)
	out := p.Compute(5)
	test.That(t, out.Done, test.ShouldBeTrue)
	test.That(t, out.DesiredICP.Y, test.ShouldAlmostEqual, 0., 1e-9)
	test.That(t, out.DesiredICPVelocity.Norm(), test.ShouldEqual, 0.)
	test.That(t, p.InitializeForSingleSupport(5, footstep.Left), test.ShouldEqual, ErrNoFootsteps)

	start := r2.Point{X: 0, Y: 0.04}
	p.InitializeForTransfer(1, footstep.Left, start, r2.Point{})
	test.That(t, p.IsInTransfer(), test.ShouldBeTrue)
	mid := p.Compute(1 + params.finalTime/2)
	test.That(t, mid.Done, test.ShouldBeFalse)
	test.That(t, mid.DesiredICP.Y, test.ShouldBeBetween, 0., start.Y)
	end := p.Compute(1 + params.finalTime)
	test.That(t, end.Done, test.ShouldBeTrue)
	test.That(t, end.DesiredICP.Y, test.ShouldAlmostEqual, end.FinalICP.Y, 1e-9)
	test.That(t, end.DesiredICPVelocity.Norm(), test.ShouldAlmostEqual, 0., 1e-9)
}

func TestDirtyPlanFollowsChanges(t *testing.T) {
	params := defaultWalk()
	params.omega = 3
	params.swingTime = 0.6
	params.transfer = 0.2
	p := newTestPlanner(t, params)
	test.That(t, p.InitializeForSingleSupport(0, footstep.Left), test.ShouldBeNil)
	first := p.Compute(0.3)
	test.That(t, p.IsDone(0.3), test.ShouldBeFalse)
	test.That(t, p.IsDone(0.6), test.ShouldBeTrue)

	test.That(t, p.SetSwingTime(0.4), test.ShouldBeTrue)
	test.That(t, p.IsDone(0.4), test.ShouldBeTrue)
	sped := p.Compute(0.3)
	test.That(t, sped.TimeRemaining, test.ShouldAlmostEqual, 0.1)
	test.That(t, sped.DesiredICP, test.ShouldNotResemble, first.DesiredICP)

	p.SetOmega(2.5)
	test.That(t, p.Omega(), test.ShouldEqual, 2.5)
	test.That(t, p.Compute(0.3).DesiredICP, test.ShouldNotResemble, sped.DesiredICP)

	p.ClearPlan()
	test.That(t, p.NumberOfFootsteps(), test.ShouldEqual, 0)
	test.That(t, p.SetSwingTime(1), test.ShouldBeFalse)
}
