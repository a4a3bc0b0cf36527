package footstep

import (
	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Entry pairs a footstep with its timing.
type Entry struct {
	Step   Footstep
	Timing Timing
}

// Queue is the ordered execution queue of footsteps. The front is the step that is swinging or about to.
// A Queue is owned by the control thread and is not safe for concurrent use.
type Queue struct {
	entries []Entry
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Append adds steps to the back of the queue in order. steps and timings must have the same length.
func (q *Queue) Append(steps []Footstep, timings []Timing) error {
	if len(steps) != len(timings) {
		return errors.Errorf("got %d footsteps but %d timings", len(steps), len(timings))
	}
	q.entries = append(q.entries, lo.Map(steps, func(s Footstep, i int) Entry {
		return Entry{Step: s.Clone(), Timing: timings[i]}
	})...)
	return nil
}

// Len returns the number of queued steps.
func (q *Queue) Len() int {
	return len(q.entries)
}

// IsEmpty reports whether no steps are queued.
func (q *Queue) IsEmpty() bool {
	return len(q.entries) == 0
}

// Peek returns the i-th queued entry.
func (q *Queue) Peek(i int) (Entry, bool) {
	if i < 0 || i >= len(q.entries) {
		return Entry{}, false
	}
	return q.entries[i], true
}

// Front returns the next entry to execute.
func (q *Queue) Front() (Entry, bool) {
	return q.Peek(0)
}

// Pop removes and returns the front entry.
func (q *Queue) Pop() (Entry, bool) {
	e, ok := q.Front()
	if !ok {
		return Entry{}, false
	}
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	return e, true
}

// PushFront inserts an entry at the front, e.g. a recovery step that must execute next.
func (q *Queue) PushFront(e Entry) {
	q.entries = append([]Entry{e}, q.entries...)
}

// Clear drops every queued step.
func (q *Queue) Clear() {
	q.entries = nil
}

// Steps returns up to n footsteps from the front of the queue.
func (q *Queue) Steps(n int) []Footstep {
	return lo.Map(q.head(n), func(e Entry, _ int) Footstep { return e.Step })
}

// Timings returns up to n timings from the front of the queue.
func (q *Queue) Timings(n int) []Timing {
	return lo.Map(q.head(n), func(e Entry, _ int) Timing { return e.Timing })
}

func (q *Queue) head(n int) []Entry {
	if n > len(q.entries) || n < 0 {
		n = len(q.entries)
	}
	return q.entries[:n]
}

// AdjustFront shifts the front footstep in place by a planar offset.
func (q *Queue) AdjustFront(delta r2.Point) bool {
	if len(q.entries) == 0 {
		return false
	}
	q.entries[0].Step.Adjust(delta)
	return true
}

// SetFrontTiming replaces the timing of the front step.
func (q *Queue) SetFrontTiming(t Timing) bool {
	if len(q.entries) == 0 {
		return false
	}
	q.entries[0].Timing = t
	return true
}

// IndexOf returns the queue position of the footstep with the given ID.
func (q *Queue) IndexOf(id uuid.UUID) (int, bool) {
	_, idx, ok := lo.FindIndexOf(q.entries, func(e Entry) bool { return e.Step.ID == id })
	return idx, ok
}

// RemoveInvalid drops every entry whose timing fails validation and returns the errors of the dropped ones.
func (q *Queue) RemoveInvalid() []error {
	var errs []error
	q.entries = lo.Filter(q.entries, func(e Entry, _ int) bool {
		if err := e.Timing.Validate(); err != nil {
			errs = append(errs, errors.Wrapf(err, "footstep %s", e.Step.ID))
			return false
		}
		return true
	})
	return errs
}

// TotalDuration returns the summed step durations of the queue.
func (q *Queue) TotalDuration() float64 {
	return lo.SumBy(q.entries, func(e Entry) float64 { return e.Timing.StepDuration() })
}
