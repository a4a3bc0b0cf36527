package commands

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/balance/footstep"
)

// ErrInboxFull is returned when a command is dropped because its buffer is full.
var ErrInboxFull = errors.New("command buffer is full")

// DefaultCapacity is the per-type buffer size used by NewInbox when capacity is 0.
const DefaultCapacity = 16

// FootstepList is one submitted plan.
type FootstepList struct {
	Steps   []footstep.Footstep
	Timings []footstep.Timing
}

// PushHint predicts a push, as a planar direction and an ICP displacement in meters.
type PushHint struct {
	Direction r2.Point
	Magnitude float64
}

// Commands is what the control loop picks up at the start of a tick.
type Commands struct {
	Abort bool
	// Pause is set when a pause or resume was received; the value is the newest request.
	Pause *bool
	Hint  *PushHint
	// FootstepList is the oldest pending plan, at most one per poll.
	FootstepList *FootstepList
	// Flushed counts footstep lists discarded by an abort or pause.
	Flushed int
}

// Inbox holds one ring buffer per command type. Each Submit method must only be called from a single
// producer goroutine and Poll only from the control loop.
type Inbox struct {
	footsteps *RingBuffer[FootstepList]
	aborts    *RingBuffer[struct{}]
	pauses    *RingBuffer[bool]
	hints     *RingBuffer[PushHint]
	dropped   atomic.Uint64
}

// NewInbox returns an inbox whose buffers hold capacity commands each.
func NewInbox(capacity int) (*Inbox, error) {
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	var errs error
	footsteps, err := NewRingBuffer[FootstepList](capacity)
	errs = multierr.Append(errs, err)
	aborts, err := NewRingBuffer[struct{}](capacity)
	errs = multierr.Append(errs, err)
	pauses, err := NewRingBuffer[bool](capacity)
	errs = multierr.Append(errs, err)
	hints, err := NewRingBuffer[PushHint](capacity)
	errs = multierr.Append(errs, err)
	if errs != nil {
		return nil, errs
	}
	return &Inbox{footsteps: footsteps, aborts: aborts, pauses: pauses, hints: hints}, nil
}

func (in *Inbox) push(ok bool, what string) error {
	if ok {
		return nil
	}
	in.dropped.Inc()
	return errors.Wrap(ErrInboxFull, what)
}

// SubmitFootstepList queues a plan. The slices are copied.
func (in *Inbox) SubmitFootstepList(steps []footstep.Footstep, timings []footstep.Timing) error {
	if len(steps) != len(timings) {
		return errors.Errorf("got %d footsteps but %d timings", len(steps), len(timings))
	}
	list := FootstepList{
		Steps:   make([]footstep.Footstep, len(steps)),
		Timings: append([]footstep.Timing(nil), timings...),
	}
	for i, s := range steps {
		list.Steps[i] = s.Clone()
	}
	return in.push(in.footsteps.Push(list), "footstep list")
}

// SubmitAbort requests that walking stop and every pending plan be dropped.
func (in *Inbox) SubmitAbort() error {
	return in.push(in.aborts.Push(struct{}{}), "abort")
}

// SubmitPause pauses or resumes walking. Pausing drops pending plans.
func (in *Inbox) SubmitPause(pause bool) error {
	return in.push(in.pauses.Push(pause), "pause")
}

// SubmitPushRecoveryHint warns the controller of an expected push.
func (in *Inbox) SubmitPushRecoveryHint(direction r2.Point, magnitude float64) error {
	return in.push(in.hints.Push(PushHint{Direction: direction, Magnitude: magnitude}), "push recovery hint")
}

// Dropped returns the number of commands rejected because a buffer was full.
func (in *Inbox) Dropped() uint64 {
	return in.dropped.Load()
}

// Poll collects pending commands without blocking. Abort and pause are handled first and flush pending
// plans. Hints and pauses keep only the newest message.
func (in *Inbox) Poll() Commands {
	var cmds Commands
	if in.aborts.Flush() > 0 {
		cmds.Abort = true
	}
	if pause, ok := in.pauses.DrainNewest(); ok {
		cmds.Pause = &pause
	}
	if cmds.Abort || (cmds.Pause != nil && *cmds.Pause) {
		cmds.Flushed = in.footsteps.Flush()
	}
	if hint, ok := in.hints.DrainNewest(); ok {
		cmds.Hint = &hint
	}
	if !cmds.Abort {
		if list, ok := in.footsteps.Poll(); ok {
			cmds.FootstepList = &list
		}
	}
	return cmds
}

// Pending returns the number of footstep lists waiting.
func (in *Inbox) Pending() int {
	return in.footsteps.Len()
}
