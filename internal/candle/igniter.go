package candle

import (
	"github.com/ayusman/candlelight/internal/geometry"
	"github.com/ayusman/candlelight/internal/tracking"
)

// DisplayArea supplies the current screen rectangle of the cake display.
type DisplayArea interface {
	Area() (geometry.Rect, bool)
}

// Igniter relights the candle when the match position enters the ignition
// zone of the display.
type Igniter struct {
	candle  *Candle
	display DisplayArea
}

// NewIgniter creates an Igniter for the given candle and display.
func NewIgniter(c *Candle, display DisplayArea) *Igniter {
	return &Igniter{candle: c, display: display}
}

// Hit reports whether pos lies inside the ignition zone. The zone is only
// computed when the candle is unlit and the position is visible.
func (g *Igniter) Hit(pos tracking.MatchPosition) bool {
	if !pos.Visible || g.candle.State() != Unlit {
		return false
	}
	rect, ok := g.display.Area()
	if !ok {
		return false
	}
	return geometry.IgnitionZone(rect).Contains(geometry.Point{X: pos.X, Y: pos.Y})
}

// Evaluate relights the candle on a hit. It returns true if the candle was relit.
func (g *Igniter) Evaluate(pos tracking.MatchPosition) bool {
	if !g.Hit(pos) {
		return false
	}
	return g.candle.Relight()
}
