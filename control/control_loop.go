// Package control contains the small signal-processing blocks used by the balance controller and the
// fixed-rate loop that drives it.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/balance/logging"
	"go.viam.com/balance/utils"
)

// MaxFrequencyHz is the fastest supported loop rate.
const MaxFrequencyHz = 1000.0

// Tickable is called once per loop period with the tick time and the period.
type Tickable interface {
	Tick(ctx context.Context, now time.Time, dt time.Duration) error
}

// fatalError marks an error that ends the loop.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }

func (e *fatalError) Unwrap() error { return e.err }

// NewFatalError marks err as ending the loop session.
func NewFatalError(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err was marked with NewFatalError.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Loop calls a Tickable at a fixed frequency on a single goroutine.
type Loop struct {
	mu        sync.Mutex
	logger    logging.Logger
	clk       clock.Clock
	target    Tickable
	frequency float64
	dt        time.Duration

	workers utils.StoppableWorkers
	ticker  *clock.Ticker
	done    chan struct{}
	err     error
	ticks   int
	overrun int
	running bool
}

// NewLoop constructs a loop. The loop does not run until Start is called.
func NewLoop(logger logging.Logger, frequency float64, clk clock.Clock, target Tickable) (*Loop, error) {
	if frequency <= 0 || frequency > MaxFrequencyHz {
		return nil, errors.Errorf("loop frequency should be in (0, %v] Hz, got %v", MaxFrequencyHz, frequency)
	}
	if target == nil {
		return nil, errors.New("loop needs something to tick")
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		logger:    logger,
		clk:       clk,
		target:    target,
		frequency: frequency,
		dt:        time.Duration(float64(time.Second) / frequency),
	}, nil
}

// Frequency returns the loop frequency in Hz.
func (l *Loop) Frequency() float64 {
	return l.frequency
}

// Period returns the loop period.
func (l *Loop) Period() time.Duration {
	return l.dt
}

// Start starts ticking. The ticker is created before Start returns.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return errors.New("control loop already running")
	}
	l.logger.Infof("running loop at %1.1f Hz (%v)", l.frequency, l.dt)
	l.ticker = l.clk.Ticker(l.dt)
	l.done = make(chan struct{})
	l.err = nil
	l.running = true
	ticker := l.ticker
	done := l.done
	l.workers = utils.NewStoppableWorkersWithContext(ctx, func(ctx context.Context) {
		defer close(done)
		l.run(ctx, ticker)
	})
	return nil
}

func (l *Loop) run(ctx context.Context, ticker *clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			start := l.clk.Now()
			err := l.target.Tick(ctx, now, l.dt)
			l.mu.Lock()
			l.ticks++
			if l.clk.Since(start) > l.dt {
				l.overrun++
			}
			l.mu.Unlock()
			if err == nil {
				continue
			}
			if IsFatal(err) {
				l.logger.Errorw("control loop stopped", "error", err)
				l.mu.Lock()
				l.err = err
				l.mu.Unlock()
				return
			}
			l.logger.Warnw("tick failed", "error", err)
		}
	}
}

// Stop stops the loop and waits for the running tick to return.
func (l *Loop) Stop() {
	l.mu.Lock()
	workers := l.workers
	running := l.running
	l.running = false
	l.mu.Unlock()
	if !running {
		return
	}
	l.logger.Debug("closing loop")
	workers.Stop()
}

// Wait blocks until the loop exits because of a fatal tick error, Stop, or ctx. It returns the fatal
// error, if any.
func (l *Loop) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done == nil {
		return errors.New("control loop was never started")
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stats returns the number of ticks run and how many of them took longer than the period.
func (l *Loop) Stats() (ticks, overruns int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks, l.overrun
}
