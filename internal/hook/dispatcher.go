package hook

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/candle"
)

// Dispatcher runs the hooks subscribed to each candle transition on
// background goroutines.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	session  string
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a Dispatcher for one session.
func NewDispatcher(manager *Manager, executor *Executor, session string, logger zerolog.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		manager:  manager,
		executor: executor,
		session:  session,
		logger:   logger.With().Str("component", "hooks").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// EventFor maps a transition to its hook event name.
func EventFor(tr candle.Transition) string {
	if tr.To == candle.Unlit {
		return EventExtinguished
	}
	return EventRelit
}

// Dispatch starts every hook subscribed to tr's event and returns immediately.
// It has the signature of a candle transition listener.
func (d *Dispatcher) Dispatch(tr candle.Transition) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	event := EventFor(tr)
	for _, h := range d.manager.ForEvent(event) {
		req := &Request{
			Event:   event,
			Session: d.session,
			State:   string(tr.To),
			At:      tr.At,
		}

		d.wg.Add(1)
		go func(h *Hook) {
			defer d.wg.Done()
			resp, err := d.executor.Execute(d.ctx, h, req)
			switch {
			case err != nil:
				d.logger.Warn().Err(err).Str("hook", h.Manifest.Name).Str("event", event).Msg("Hook failed")
			case !resp.Success:
				d.logger.Warn().Str("hook", h.Manifest.Name).Str("event", event).Str("error", resp.Error).Msg("Hook reported failure")
			default:
				d.logger.Debug().Str("hook", h.Manifest.Name).Str("event", event).Msg("Hook ran")
			}
		}(h)
	}
}

// Close cancels running hooks and waits for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
