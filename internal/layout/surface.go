// Package layout holds the latest screen rectangle of the display surface as
// reported by the display client.
package layout

import (
	"sync"
	"time"

	"github.com/ayusman/candlelight/internal/clock"
	"github.com/ayusman/candlelight/internal/geometry"
)

// DefaultSettleDelay gives the first layout after mount time to stabilize.
const DefaultSettleDelay = 100 * time.Millisecond

// Surface is the single-writer, multi-reader store for the target area.
// The display client reports a new rectangle on mount, resize and scroll.
type Surface struct {
	mu        sync.RWMutex
	rect      geometry.Rect
	reported  bool
	mountedAt time.Time
	settle    time.Duration
	clock     clock.Clock
}

// NewSurface creates an unmounted Surface.
func NewSurface(settle time.Duration, c clock.Clock) *Surface {
	if settle < 0 {
		settle = DefaultSettleDelay
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Surface{settle: settle, clock: c}
}

// Mount marks the display as (re)mounted. Reads during the settle delay
// report no area, and any earlier rectangle is discarded.
func (s *Surface) Mount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mountedAt = s.clock.Now()
	s.reported = false
	s.rect = geometry.Rect{}
}

// Report records the latest measured rectangle.
func (s *Surface) Report(r geometry.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rect = r
	s.reported = true
}

// Area returns the latest rectangle. ok is false before the first report,
// during the settle delay, or when the rectangle is degenerate.
func (s *Surface) Area() (geometry.Rect, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.reported {
		return geometry.Rect{}, false
	}
	if !s.mountedAt.IsZero() && s.clock.Since(s.mountedAt) < s.settle {
		return s.rect, false
	}
	return s.rect, s.rect.Valid()
}
