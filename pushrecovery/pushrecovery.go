// Package pushrecovery computes a single catch step when the capture point leaves the support polygon.
package pushrecovery

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/balance/capturepoint"
	"go.viam.com/balance/config"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/logging"
	"go.viam.com/balance/spatialmath"
	"go.viam.com/balance/utils"
)

// ErrRecoveryInfeasible is returned when the step needed to capture the robot is out of reach.
var ErrRecoveryInfeasible = errors.New("recovery footstep is out of reach")

// Input describes the robot when a recovery step is considered.
type Input struct {
	// StanceSide is the foot that stays on the ground.
	StanceSide footstep.Side
	StancePose spatialmath.Pose
	// StancePolygon is the world polygon the CMP can be placed in during the recovery swing.
	StancePolygon spatialmath.ConvexPolygon
	MeasuredICP   r2.Point
}

// Planner plans recovery steps.
type Planner struct {
	cfg    config.PushRecoveryConfig
	omega  float64
	logger logging.Logger
}

// New returns a recovery planner.
func New(cfg config.PushRecoveryConfig, omega float64, logger logging.Logger) *Planner {
	return &Planner{cfg: cfg, omega: omega, logger: logger}
}

// SetOmega changes the pendulum frequency.
func (p *Planner) SetOmega(omega float64) {
	p.omega = omega
}

// Enabled reports whether recovery steps are allowed.
func (p *Planner) Enabled() bool {
	return p.cfg.Enabled
}

// Timing returns the swing and transfer time of a recovery step.
func (p *Planner) Timing() footstep.Timing {
	return footstep.NewTiming(p.cfg.RecoverySwingTime, p.cfg.RecoveryTransferTime)
}

// ShouldStep reports whether icp is far enough outside support to need a step.
func (p *Planner) ShouldStep(icp r2.Point, support spatialmath.ConvexPolygon) bool {
	if !p.cfg.Enabled || support.IsEmpty() {
		return false
	}
	return support.SignedDistance(icp) > p.cfg.ICPDistanceOutsideSupportForStep
}

// PredictICP applies a push hint, a planar direction and an ICP displacement in meters, to icp.
func PredictICP(icp, direction r2.Point, magnitude float64) r2.Point {
	if n := direction.Norm(); n > utils.Epsilon {
		return icp.Add(direction.Mul(magnitude / n))
	}
	return icp
}

// ChooseStanceSide keeps the foot farther from icp on the ground so the other foot steps toward it.
func ChooseStanceSide(feet [2]spatialmath.Pose, icp r2.Point) footstep.Side {
	if spatialmath.Distance(feet[footstep.Left].Point2(), icp) <= spatialmath.Distance(feet[footstep.Right].Point2(), icp) {
		return footstep.Right
	}
	return footstep.Left
}

// ComputeStep returns a footstep for the swing side that places the foot under the capture point predicted
// at touchdown. The step is clamped to the reachable region. ErrRecoveryInfeasible is returned when the
// clamp moves it by more than the reach tolerance.
func (p *Planner) ComputeStep(in Input) (footstep.Footstep, footstep.Timing, error) {
	swing := in.StanceSide.Opposite()
	cmp := in.MeasuredICP
	if !in.StancePolygon.IsEmpty() {
		cmp = in.StancePolygon.ClosestPoint(in.MeasuredICP)
	}
	target := capturepoint.ProjectICP(p.omega, p.cfg.RecoverySwingTime, in.MeasuredICP, cmp)
	target = target.Add(in.StancePose.Left().Mul(swing.Sign() * p.cfg.LateralOffset))

	local := in.StancePose.TransformToLocal(target)
	clamped := r2.Point{
		X: utils.ClampSymmetric(local.X, p.cfg.MaxStepLength),
		Y: swing.Sign() * utils.Clamp(swing.Sign()*local.Y, p.cfg.MinStepWidth, p.cfg.MaxStepWidth),
	}
	if excess := spatialmath.Distance(local, clamped); excess > p.cfg.ReachTolerance || math.IsNaN(excess) {
		p.logger.Warnw("recovery step out of reach", "swing", swing, "target", target, "excess", excess)
		return footstep.Footstep{}, footstep.Timing{}, errors.Wrapf(ErrRecoveryInfeasible, "target is %.3f m outside the reachable region", excess)
	}

	world := in.StancePose.TransformToWorld(clamped)
	pose := spatialmath.NewPose(world.X, world.Y, in.StancePose.Position.Z, in.StancePose.Yaw)
	step := footstep.New(swing, pose)
	p.logger.Infow("planned recovery step", "swing", swing, "pose", pose)
	return step, p.Timing(), nil
}
