package walking

import (
	"fmt"

	"go.viam.com/balance/footstep"
)

// PhaseKind is the walking phase.
type PhaseKind int

// Walking phases.
const (
	PhaseStanding PhaseKind = iota
	// PhaseTransfer moves the weight onto Phase.Side with both feet on the ground.
	PhaseTransfer
	// PhaseSingleSupport stands on Phase.Side while the other foot swings.
	PhaseSingleSupport
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseStanding:
		return "standing"
	case PhaseTransfer:
		return "transfer"
	case PhaseSingleSupport:
		return "single_support"
	default:
		return "unknown"
	}
}

// Phase is the current walking phase. Side is unused while standing. Previous is the phase that was left
// to enter this one, nil for the initial phase.
type Phase struct {
	Kind     PhaseKind
	Side     footstep.Side
	Previous *Phase
}

func (p Phase) String() string {
	if p.Kind == PhaseStanding {
		return p.Kind.String()
	}
	return fmt.Sprintf("%s(%s)", p.Kind, p.Side)
}

// Is compares kind and side, ignoring history.
func (p Phase) Is(kind PhaseKind, side footstep.Side) bool {
	if p.Kind != kind {
		return false
	}
	return kind == PhaseStanding || p.Side == side
}

// EventKind is something that can move the state machine.
type EventKind int

// Walking events.
const (
	// EventWalk starts walking; Event.Side is the support side of the first step.
	EventWalk EventKind = iota
	// EventTransferDone hands over to single support on the transfer side.
	EventTransferDone
	// EventTransferToStanding ends a transfer that had no step left to take.
	EventTransferToStanding
	// EventSwingDone is touchdown of the swing foot.
	EventSwingDone
	// EventAbort drops the plan. A transfer restarts toward standing.
	EventAbort
	// EventRecoveryStep starts a catch step; Event.Side is the stance side.
	EventRecoveryStep
)

func (k EventKind) String() string {
	switch k {
	case EventWalk:
		return "walk"
	case EventTransferDone:
		return "transfer_done"
	case EventTransferToStanding:
		return "transfer_to_standing"
	case EventSwingDone:
		return "swing_done"
	case EventAbort:
		return "abort"
	case EventRecoveryStep:
		return "recovery_step"
	default:
		return "unknown"
	}
}

// Event is a state machine input.
type Event struct {
	Kind EventKind
	Side footstep.Side
}

// NextPhase is the walking transition table. It returns false, and the unchanged phase, for an event that
// is not legal in the given phase.
func NextPhase(phase Phase, ev Event) (Phase, bool) {
	var next Phase
	switch phase.Kind {
	case PhaseStanding:
		switch ev.Kind {
		case EventWalk:
			next = Phase{Kind: PhaseTransfer, Side: ev.Side}
		case EventRecoveryStep:
			next = Phase{Kind: PhaseSingleSupport, Side: ev.Side}
		case EventTransferDone, EventTransferToStanding, EventSwingDone, EventAbort:
			return phase, false
		default:
			return phase, false
		}
	case PhaseTransfer:
		switch ev.Kind {
		case EventTransferDone:
			next = Phase{Kind: PhaseSingleSupport, Side: phase.Side}
		case EventTransferToStanding:
			next = Phase{Kind: PhaseStanding}
		case EventAbort:
			next = Phase{Kind: PhaseTransfer, Side: phase.Side}
		case EventRecoveryStep:
			next = Phase{Kind: PhaseSingleSupport, Side: ev.Side}
		case EventWalk, EventSwingDone:
			return phase, false
		default:
			return phase, false
		}
	case PhaseSingleSupport:
		if ev.Kind != EventSwingDone {
			return phase, false
		}
		next = Phase{Kind: PhaseTransfer, Side: phase.Side.Opposite()}
	default:
		return phase, false
	}
	prev := phase
	prev.Previous = nil
	next.Previous = &prev
	return next, true
}
