package lipm

import (
	"context"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"go.viam.com/balance/capturepoint"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/spatialmath"
	"go.viam.com/balance/walking"
)

func standingFeet() [2]spatialmath.Pose {
	return [2]spatialmath.Pose{spatialmath.NewPose(0, 0.1, 0, 0), spatialmath.NewPose(0, -0.1, 0, 0)}
}

func TestNewPlant(t *testing.T) {
	_, err := NewPlant(0, 1, 0.01, standingFeet())
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewPlant(9.81, 1, 0, standingFeet())
	test.That(t, err, test.ShouldNotBeNil)

	p, err := NewPlant(9.81, 1, 0.01, standingFeet())
	test.That(t, err, test.ShouldBeNil)
	com, vel := p.CoM()
	test.That(t, com, test.ShouldResemble, r2.Point{})
	test.That(t, vel, test.ShouldResemble, r2.Point{})
	test.That(t, p.Omega(), test.ShouldAlmostEqual, capturepoint.Omega(9.81, 1))
}

func TestPlantFollowsCapturePointDynamics(t *testing.T) {
	p, err := NewPlant(9.81, 0.9, 0.002, standingFeet())
	test.That(t, err, test.ShouldBeNil)
	p.Push(r2.Point{X: 0.1, Y: -0.05})
	icp := p.CapturePoint()
	cmp := r2.Point{X: 0.02, Y: 0.01}

	for i := 0; i < 150; i++ {
		p.Step(cmp, 0.002)
	}
	expected := capturepoint.ProjectICP(p.Omega(), 0.3, icp, cmp)
	got := p.CapturePoint()
	test.That(t, got.X, test.ShouldAlmostEqual, expected.X, 1e-9)
	test.That(t, got.Y, test.ShouldAlmostEqual, expected.Y, 1e-9)
	test.That(t, p.Time(), test.ShouldAlmostEqual, 0.3, 1e-9)
	test.That(t, p.CMP(), test.ShouldResemble, cmp)
}

func TestPlantApplyAndReplan(t *testing.T) {
	p, err := NewPlant(9.81, 0.9, 0.01, standingFeet())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Apply(context.Background(), walking.BalanceState{DesiredCMP: r2.Point{X: -0.01}}), test.ShouldBeNil)
	com, vel := p.CoM()
	test.That(t, com.X, test.ShouldBeGreaterThan, 0)
	test.That(t, vel.X, test.ShouldBeGreaterThan, 0)

	step := footstep.New(footstep.Left, spatialmath.NewPose(0.3, 0.1, 0, 0))
	test.That(t, p.Replan(step, footstep.NewTiming(0.6, 0.2)), test.ShouldBeNil)
	test.That(t, p.FootPoses()[footstep.Left], test.ShouldResemble, step.Pose)
	test.That(t, p.Replan(step, footstep.NewTiming(-1, 0.2)), test.ShouldNotBeNil)
}

func TestEstimatorTracksPlant(t *testing.T) {
	p, err := NewPlant(9.81, 0.9, 0.002, standingFeet())
	test.That(t, err, test.ShouldBeNil)
	e := NewEstimator(p, 0, 1)
	cmp := r2.Point{X: -0.02}

	var est walking.Estimate
	for i := 0; i < 200; i++ {
		est, err = e.Estimate(context.Background())
		test.That(t, err, test.ShouldBeNil)
		p.Step(cmp, 0.002)
	}
	est, err = e.Estimate(context.Background())
	test.That(t, err, test.ShouldBeNil)
	truth := p.CapturePoint()
	test.That(t, spatialmath.Distance(est.CapturePoint, truth), test.ShouldBeLessThan, 1e-3)
	test.That(t, est.CoMPosition.Z, test.ShouldEqual, 0.9)
	test.That(t, est.Dt, test.ShouldEqual, 0.002)
	test.That(t, est.FootPoses, test.ShouldResemble, standingFeet())
}

func TestEstimatorNoiseIsSeeded(t *testing.T) {
	estimate := func() walking.Estimate {
		p, err := NewPlant(9.81, 0.9, 0.002, standingFeet())
		test.That(t, err, test.ShouldBeNil)
		e := NewEstimator(p, 1e-3, 42)
		est, err := e.Estimate(context.Background())
		test.That(t, err, test.ShouldBeNil)
		return est
	}
	first, second := estimate(), estimate()
	test.That(t, first.CoMPosition, test.ShouldResemble, second.CoMPosition)
	test.That(t, first.CoMPosition.X, test.ShouldNotEqual, 0)
}

func TestEstimatorSettlesAfterPush(t *testing.T) {
	p, err := NewPlant(9.81, 0.9, 0.002, standingFeet())
	test.That(t, err, test.ShouldBeNil)
	e := NewEstimator(p, 0, 1)

	for i := 0; i < 50; i++ {
		_, err := e.Estimate(context.Background())
		test.That(t, err, test.ShouldBeNil)
		p.Step(r2.Point{}, 0.002)
	}
	p.Push(r2.Point{X: 0.6})

	velocities := make([]float64, 0, 40)
	for i := 0; i < 40; i++ {
		est, err := e.Estimate(context.Background())
		test.That(t, err, test.ShouldBeNil)
		velocities = append(velocities, est.CoMVelocity.X)
		p.Step(r2.Point{}, 0.002)
	}
	for i, v := range velocities {
		test.That(t, v, test.ShouldBeLessThan, 0.66)
		if i >= 6 {
			test.That(t, v, test.ShouldBeGreaterThan, 0.55)
		}
	}
	_, truth := p.CoM()
	test.That(t, velocities[len(velocities)-1], test.ShouldAlmostEqual, truth.X, 0.01)
}
