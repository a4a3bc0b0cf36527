// Package footstep defines the footsteps, timings and execution queue consumed by the walking controller.
package footstep

import (
	"github.com/pkg/errors"
)

// Side identifies a leg. It is used as an index into per-side arrays.
type Side int

// The two sides of a biped.
const (
	Left Side = iota
	Right
)

// Sides lists both sides in index order.
var Sides = [2]Side{Left, Right}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

// Sign returns +1 for Left and -1 for Right. Lateral offsets expressed for the left foot are mirrored
// for the right foot by multiplying with Sign.
func (s Side) Sign() float64 {
	if s == Left {
		return 1
	}
	return -1
}

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(text []byte) error {
	parsed, err := SideFromString(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SideFromString parses "left" or "right".
func SideFromString(str string) (Side, error) {
	switch str {
	case "left", "LEFT", "l":
		return Left, nil
	case "right", "RIGHT", "r":
		return Right, nil
	}
	return Left, errors.Errorf("unknown side %q", str)
}
