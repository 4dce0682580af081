package layout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ayusman/candlelight/internal/clock"
	"github.com/ayusman/candlelight/internal/geometry"
)

func TestSurface_Area(t *testing.T) {
	rect := geometry.Rect{Left: 10, Top: 20, Width: 640, Height: 480}

	t.Run("no area before first report", func(t *testing.T) {
		s := NewSurface(DefaultSettleDelay, clock.NewMock(time.Unix(0, 0)))
		_, ok := s.Area()
		assert.False(t, ok)
	})

	t.Run("unmounted surface reports immediately", func(t *testing.T) {
		s := NewSurface(DefaultSettleDelay, clock.NewMock(time.Unix(0, 0)))
		s.Report(rect)

		got, ok := s.Area()
		assert.True(t, ok)
		assert.Equal(t, rect, got)
	})

	t.Run("settle delay after mount", func(t *testing.T) {
		mc := clock.NewMock(time.Unix(0, 0))
		s := NewSurface(DefaultSettleDelay, mc)
		s.Mount()
		s.Report(rect)

		_, ok := s.Area()
		assert.False(t, ok, "area hidden during settle delay")

		mc.Advance(99 * time.Millisecond)
		_, ok = s.Area()
		assert.False(t, ok)

		mc.Advance(time.Millisecond)
		got, ok := s.Area()
		assert.True(t, ok)
		assert.Equal(t, rect, got)
	})

	t.Run("remount discards the previous rectangle", func(t *testing.T) {
		mc := clock.NewMock(time.Unix(0, 0))
		s := NewSurface(0, mc)
		s.Report(rect)
		s.Mount()

		_, ok := s.Area()
		assert.False(t, ok)
	})

	t.Run("degenerate rectangle is not usable", func(t *testing.T) {
		s := NewSurface(0, clock.NewMock(time.Unix(0, 0)))
		s.Report(geometry.Rect{Left: 10, Top: 10, Width: 0, Height: 100})

		_, ok := s.Area()
		assert.False(t, ok)
	})
}
