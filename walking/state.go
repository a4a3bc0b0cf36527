package walking

import (
	"context"
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go.viam.com/balance/contact"
	"go.viam.com/balance/footstep"
	"go.viam.com/balance/spatialmath"
)

// ErrBalanceLost is returned, marked fatal, when the robot cannot be caught with a recovery step.
var ErrBalanceLost = errors.New("balance lost")

// ConfigurationError reports a queued footstep that cannot be executed. It becomes fatal once it persists
// for the configured number of ticks.
type ConfigurationError struct {
	StepID uuid.UUID
	Ticks  int
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("footstep %s rejected for %d ticks: %v", e.StepID, e.Ticks, e.Err)
}

// Unwrap returns the timing error.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Estimate is the robot state read at the start of a tick.
type Estimate struct {
	CoMPosition r3.Vector
	CoMVelocity r3.Vector
	// CapturePoint is the measured instantaneous capture point.
	CapturePoint r2.Point
	// FootPoses are the sole poses. Poses of swinging feet are ignored.
	FootPoses [2]spatialmath.Pose
	// Touchdown is set for a foot whose ground contact has been detected.
	Touchdown [2]bool
	// Dt is the time since the previous estimate. 0 falls back to the loop period.
	Dt float64
}

// Estimator provides the robot state.
type Estimator interface {
	Estimate(ctx context.Context) (Estimate, error)
}

// CommandSink consumes the per-tick balance command, usually a whole-body controller.
type CommandSink interface {
	Apply(ctx context.Context, state BalanceState) error
}

// SwingReplanner re-seeds the swing foot trajectory when a swing starts or its target or timing changes.
type SwingReplanner interface {
	Replan(step footstep.Footstep, timing footstep.Timing) error
}

// Callbacks report the footstep lifecycle. Any of them may be nil. They run on the control thread and must
// not block.
type Callbacks struct {
	// FootstepStarted is called at lift-off with the planned step and the current pose of the swing foot.
	FootstepStarted func(step footstep.Footstep, actual spatialmath.Pose)
	// FootstepCompleted is called at touchdown with the pose the foot landed at.
	FootstepCompleted func(step footstep.Footstep, actual spatialmath.Pose)
	WalkingAborted    func()
	// FootstepAdjusted is called when the balance controller moves the swinging step.
	FootstepAdjusted func(step footstep.Footstep)
}

func (cb Callbacks) started(step footstep.Footstep, actual spatialmath.Pose) {
	if cb.FootstepStarted != nil {
		cb.FootstepStarted(step, actual)
	}
}

func (cb Callbacks) completed(step footstep.Footstep, actual spatialmath.Pose) {
	if cb.FootstepCompleted != nil {
		cb.FootstepCompleted(step, actual)
	}
}

func (cb Callbacks) aborted() {
	if cb.WalkingAborted != nil {
		cb.WalkingAborted()
	}
}

func (cb Callbacks) adjusted(step footstep.Footstep) {
	if cb.FootstepAdjusted != nil {
		cb.FootstepAdjusted(step)
	}
}

// BalanceState is the controller's output for one tick.
type BalanceState struct {
	// Time is seconds since the controller started.
	Time  float64
	Phase Phase

	DesiredICP         r2.Point
	DesiredICPVelocity r2.Point
	DesiredCMP         r2.Point
	// CapturePoint is the measured capture point.
	CapturePoint r2.Point
	Omega        float64

	// PushRecovery is set while a recovery step is being taken.
	PushRecovery bool
	// StepAdjustment is set while the optimizer may move the swinging step.
	StepAdjustment bool
	// AdjustedFootstep is the swinging step after adjustment, nil outside single support.
	AdjustedFootstep *footstep.Footstep

	SupportPolygon spatialmath.ConvexPolygon
	Contacts       [2]contact.State

	// CoMHeightAcceleration is the vertical CoM acceleration command.
	CoMHeightAcceleration float64
	// HeightSupport marks the legs that carry the CoM height.
	HeightSupport [2]bool

	// SwingTime is the swing time in effect, 0 outside single support.
	SwingTime      float64
	TimeInPhase    float64
	QueuedSteps    int
	SolverFailures int
}
