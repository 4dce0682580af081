// Package candle implements the debounced lit/unlit state machine and the
// ignition-zone hit test that relights it.
package candle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/clock"
)

// DefaultCooldown is how long relighting stays disabled after a relight.
const DefaultCooldown = 2000 * time.Millisecond

// State is the candle state.
type State string

const (
	// Lit means the candle is burning.
	Lit State = "lit"
	// Unlit means the candle has been blown out.
	Unlit State = "unlit"
)

// Transition describes a completed state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Candle is the two-state controller. Blow and Relight are idempotent in the
// states where they do not apply, so callers may deliver events from any
// goroutine in any order.
type Candle struct {
	mu            sync.Mutex
	state         State
	cooldown      time.Duration
	cooldownUntil time.Time
	clock         clock.Clock
	logger        zerolog.Logger

	listenerMu sync.RWMutex
	listeners  []func(Transition)
}

// New creates a lit candle. A non-positive cooldown uses DefaultCooldown.
func New(cooldown time.Duration, c clock.Clock, logger zerolog.Logger) *Candle {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Candle{
		state:    Lit,
		cooldown: cooldown,
		clock:    c,
		logger:   logger.With().Str("component", "candle").Logger(),
	}
}

// State returns the current state.
func (c *Candle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CoolingDown reports whether relighting is currently suppressed.
func (c *Candle) CoolingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coolingDownLocked(c.clock.Now())
}

func (c *Candle) coolingDownLocked(now time.Time) bool {
	return !c.cooldownUntil.IsZero() && now.Before(c.cooldownUntil)
}

// OnTransition registers fn to be called after every state change.
// Listeners run on the caller's goroutine, outside the state lock.
func (c *Candle) OnTransition(fn func(Transition)) {
	if fn == nil {
		return
	}
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Blow extinguishes a lit candle. It returns true if the state changed.
func (c *Candle) Blow() bool {
	c.mu.Lock()
	if c.state != Lit {
		c.mu.Unlock()
		return false
	}
	tr := Transition{From: Lit, To: Unlit, At: c.clock.Now()}
	c.state = Unlit
	c.mu.Unlock()

	c.logger.Info().Msg("Candle blown out")
	c.notify(tr)
	return true
}

// Relight lights an unlit candle unless a cooldown is active, and then starts
// a new cooldown. It returns true if the state changed.
func (c *Candle) Relight() bool {
	c.mu.Lock()
	now := c.clock.Now()
	if c.state != Unlit || c.coolingDownLocked(now) {
		c.mu.Unlock()
		return false
	}
	tr := Transition{From: Unlit, To: Lit, At: now}
	c.state = Lit
	c.cooldownUntil = now.Add(c.cooldown)
	c.mu.Unlock()

	c.logger.Info().Dur("cooldown", c.cooldown).Msg("Candle relit")
	c.notify(tr)
	return true
}

func (c *Candle) notify(tr Transition) {
	c.listenerMu.RLock()
	listeners := append(([]func(Transition))(nil), c.listeners...)
	c.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(tr)
	}
}
