// Package health keeps a periodically refreshed view of the service's
// dependencies for the status endpoint.
package health

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// Status values.
const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// Status is the last observed state of a dependency.
type Status struct {
	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// Checker reports the health of one dependency.
type Checker interface {
	Name() string
	Status() Status
}

// CheckFunc checks a dependency. A nil error means it is up.
type CheckFunc func(ctx context.Context) error

// PeriodicChecker runs a CheckFunc on a jittered period and remembers the
// result.
type PeriodicChecker struct {
	name   string
	period time.Duration
	jitter time.Duration
	check  CheckFunc
	logger *slog.Logger

	mu     sync.RWMutex
	status Status
}

// Compile-time interface satisfaction check.
var _ Checker = (*PeriodicChecker)(nil)

// NewPeriodicChecker validates the schedule and creates a checker that
// reports DOWN until its first check completes.
func NewPeriodicChecker(name string, period, jitter time.Duration, check CheckFunc, logger *slog.Logger) (*PeriodicChecker, error) {
	if period < time.Millisecond {
		return nil, errors.New("refresh period must be at least 1ms")
	}
	if jitter < time.Millisecond || jitter > period {
		return nil, errors.New("refresh period jitter must be at least 1ms and no more than the refresh period")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PeriodicChecker{
		name:   name,
		period: period,
		jitter: jitter,
		check:  check,
		logger: logger.With("checker", name),
		status: Status{Status: StatusDown},
	}, nil
}

// Name implements Checker.
func (c *PeriodicChecker) Name() string {
	return c.name
}

// Status implements Checker.
func (c *PeriodicChecker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Start checks once synchronously, then keeps refreshing in the background
// until ctx is done.
func (c *PeriodicChecker) Start(ctx context.Context) {
	c.update(ctx)
	go c.loop(ctx)
}

func (c *PeriodicChecker) loop(ctx context.Context) {
	timer := time.NewTimer(c.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.update(ctx)
			timer.Reset(c.nextDelay())
		}
	}
}

// nextDelay returns the period shifted by a random amount in [-jitter, jitter).
func (c *PeriodicChecker) nextDelay() time.Duration {
	d := c.period + time.Duration(rand.Int64N(int64(2*c.jitter))) - c.jitter
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

func (c *PeriodicChecker) update(ctx context.Context) {
	status := StatusUp
	if err := c.check(ctx); err != nil {
		status = StatusDown
		c.logger.Warn("health check failed", "error", err)
	}

	c.mu.Lock()
	prev := c.status.Status
	c.status = Status{Status: status, LastUpdated: time.Now().UTC()}
	c.mu.Unlock()

	if prev != status {
		c.logger.Info("health status changed", "status", status)
	}
}
