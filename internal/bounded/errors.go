package bounded

import (
	"errors"
	"fmt"
)

// ErrTimeout is the cause of every TimeoutError. Use errors.Is to tell a timed
// out operation apart from one that failed on its own.
var ErrTimeout = errors.New("timed out")

// TimeoutError reports that the deadline expired before the operation settled.
type TimeoutError struct {
	// Op describes the bounded operation, e.g. "SQL query".
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Timed out while executing %s", e.Op)
}

// Is makes errors.Is(err, ErrTimeout) match any TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// IsTimeout reports whether err is, or wraps, a TimeoutError.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
