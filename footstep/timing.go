package footstep

import (
	"math"

	"github.com/pkg/errors"
)

// ErrMalformedTiming is returned for a timing that is NaN or negative when it is about to execute.
var ErrMalformedTiming = errors.New("malformed footstep timing")

// NewMalformedTimingError wraps ErrMalformedTiming with the offending field.
func NewMalformedTimingError(field string, value float64) error {
	return errors.Wrapf(ErrMalformedTiming, "%s is %v", field, value)
}

// Timing holds the durations of one step. NaN marks a value that has not been assigned yet.
type Timing struct {
	SwingTime    float64 `json:"swing_time"`
	TransferTime float64 `json:"transfer_time"`
	// StartTime is an optional absolute start time, NaN when unset.
	StartTime float64 `json:"start_time"`
}

// NewTiming returns a timing with no absolute start time.
func NewTiming(swing, transfer float64) Timing {
	return Timing{SwingTime: swing, TransferTime: transfer, StartTime: math.NaN()}
}

// UnassignedTiming returns a timing whose durations are not assigned yet.
func UnassignedTiming() Timing {
	return Timing{SwingTime: math.NaN(), TransferTime: math.NaN(), StartTime: math.NaN()}
}

// HasStartTime reports whether an absolute start time is set.
func (t Timing) HasStartTime() bool {
	return !math.IsNaN(t.StartTime)
}

// IsAssigned reports whether both durations are set.
func (t Timing) IsAssigned() bool {
	return !math.IsNaN(t.SwingTime) && !math.IsNaN(t.TransferTime)
}

// StepDuration is transfer plus swing.
func (t Timing) StepDuration() float64 {
	return t.SwingTime + t.TransferTime
}

// WithDefaults fills unassigned durations from def.
func (t Timing) WithDefaults(def Timing) Timing {
	if math.IsNaN(t.SwingTime) {
		t.SwingTime = def.SwingTime
	}
	if math.IsNaN(t.TransferTime) {
		t.TransferTime = def.TransferTime
	}
	return t
}

// Validate checks that the timing can be executed: both durations assigned, finite and non-negative,
// and a swing that is strictly positive.
func (t Timing) Validate() error {
	if err := validateDuration("swing_time", t.SwingTime); err != nil {
		return err
	}
	if t.SwingTime == 0 {
		return NewMalformedTimingError("swing_time", t.SwingTime)
	}
	return validateDuration("transfer_time", t.TransferTime)
}

func validateDuration(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return NewMalformedTimingError(field, v)
	}
	return nil
}
