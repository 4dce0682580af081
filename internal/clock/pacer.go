package clock

import (
	"context"
	"time"
)

// DefaultFrameInterval approximates a 60 Hz display refresh.
const DefaultFrameInterval = time.Second / 60

// Pacer schedules the next iteration of a self-paced loop.
// Wait blocks until the next frame is due or ctx is done.
type Pacer interface {
	Wait(ctx context.Context) error
}

// FramePacer releases one loop iteration per frame interval. Frames that
// elapse while the loop body is still running are dropped, so a slow body
// lowers the effective rate instead of building a backlog.
type FramePacer struct {
	ticker Ticker
}

// NewFramePacer creates a FramePacer on the given clock.
// A non-positive interval uses DefaultFrameInterval.
func NewFramePacer(c Clock, interval time.Duration) *FramePacer {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &FramePacer{ticker: c.NewTicker(interval)}
}

// Wait blocks until the next frame tick.
func (p *FramePacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ticker.C():
		return nil
	}
}

// Stop releases the underlying ticker.
func (p *FramePacer) Stop() {
	p.ticker.Stop()
}

// ManualPacer lets tests release loop iterations one at a time.
type ManualPacer struct {
	steps chan struct{}
	waits chan struct{}
}

// NewManualPacer creates a ManualPacer.
func NewManualPacer() *ManualPacer {
	return &ManualPacer{
		steps: make(chan struct{}),
		waits: make(chan struct{}, 64),
	}
}

// Wait blocks until Step is called or ctx is done.
func (p *ManualPacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.waits <- struct{}{}:
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.steps:
		return nil
	}
}

// Step releases exactly one waiting iteration. It returns false if no loop
// was waiting before the timeout.
func (p *ManualPacer) Step(timeout time.Duration) bool {
	select {
	case p.steps <- struct{}{}:
		return true
	case <-time.After(timeout):
		return false
	}
}

// AwaitWait blocks until the loop has reached Wait at least once since the
// last call, which means the previous iteration's body has completed.
func (p *ManualPacer) AwaitWait(timeout time.Duration) bool {
	select {
	case <-p.waits:
		return true
	case <-time.After(timeout):
		return false
	}
}
