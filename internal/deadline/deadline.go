// Package deadline provides the immutable time budget shared by every stage
// of an auction request.
//
// A Deadline is computed once at request entry and never mutated. When a later
// stage needs a fresh view of the remaining budget it derives a new Deadline
// from the recorded entry instant instead of adjusting a live countdown.
package deadline

import (
	"context"
	"errors"
	"time"
)

// ErrNegativeDuration is returned when a Deadline is built from a negative duration.
var ErrNegativeDuration = errors.New("deadline: duration must be non-negative")

// Deadline is the absolute instant by which bounded work must finish.
// The zero value is already expired.
type Deadline struct {
	at time.Time
}

// New returns a Deadline total from now.
func New(total time.Duration) (Deadline, error) {
	return NewFrom(time.Now(), total)
}

// NewFrom returns a Deadline total from start. It is used to re-derive the
// remaining budget from an earlier recorded entry instant.
func NewFrom(start time.Time, total time.Duration) (Deadline, error) {
	if total < 0 {
		return Deadline{}, ErrNegativeDuration
	}
	return Deadline{at: start.Add(total)}, nil
}

// Time returns the absolute deadline instant.
func (d Deadline) Time() time.Time {
	return d.at
}

// Remaining returns the time left until the deadline, floored at zero.
func (d Deadline) Remaining() time.Duration {
	return d.RemainingAt(time.Now())
}

// RemainingAt returns the time left as observed at now, floored at zero.
func (d Deadline) RemainingAt(now time.Time) time.Duration {
	left := d.at.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether no time is left.
func (d Deadline) Expired() bool {
	return d.Remaining() == 0
}

// ExpiredAt reports whether no time is left as observed at now.
func (d Deadline) ExpiredAt(now time.Time) bool {
	return d.RemainingAt(now) == 0
}

// Min returns whichever of d and other ends first.
func (d Deadline) Min(other Deadline) Deadline {
	if other.at.Before(d.at) {
		return other
	}
	return d
}

// Context returns a child of parent that is cancelled at the deadline instant,
// for libraries that only understand context deadlines.
func (d Deadline) Context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithDeadline(parent, d.at)
}

// String renders the remaining budget, for logs.
func (d Deadline) String() string {
	return d.Remaining().String()
}
