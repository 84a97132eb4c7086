// Package scheduler runs periodic background tasks behind a small interface
// so callers can be driven by a virtual clock in tests.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Task is one unit of periodic work. ctx is cancelled when the task is
// cancelled or the scheduler stops.
type Task func(ctx context.Context)

// CancelFunc stops a scheduled task. It is safe to call more than once.
type CancelFunc func()

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Scheduler runs tasks at fixed intervals.
type Scheduler interface {
	Clock
	Schedule(interval time.Duration, task Task) CancelFunc
	Stop()
}

// Ticker is the wall-clock Scheduler. Each task runs on its own goroutine;
// a run that overlaps the next tick delays it rather than running twice.
type Ticker struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTicker creates a wall-clock scheduler.
func NewTicker() *Ticker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Ticker{ctx: ctx, cancel: cancel}
}

// Now returns time.Now().
func (t *Ticker) Now() time.Time { return time.Now() }

// Schedule starts task every interval until cancelled.
func (t *Ticker) Schedule(interval time.Duration, task Task) CancelFunc {
	ctx, cancel := context.WithCancel(t.ctx)
	if interval <= 0 {
		cancel()
		return func() {}
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				task(ctx)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}

// Stop cancels every task and waits for in-flight runs to return.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
}
