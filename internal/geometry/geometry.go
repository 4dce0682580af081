// Package geometry maps sensor-space points into screen space and computes
// the ignition zone of a display rectangle.
package geometry

// Ignition zone proportions relative to the display rectangle.
const (
	// ZoneHeightRatio is the fraction of the height covered from the top edge.
	ZoneHeightRatio = 0.2
	// ZoneInsetRatio is the fraction of the width trimmed from each side.
	ZoneInsetRatio = 0.3
)

// Point is a 2-D point. Units depend on context (frame pixels or screen pixels).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in screen coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the rectangle has positive width and height.
func (r Rect) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 {
	return r.Left + r.Width
}

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 {
	return r.Top + r.Height
}

// Zone is a rectangle described by its four edges.
type Zone struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// Contains reports whether p lies strictly inside all four edges.
func (z Zone) Contains(p Point) bool {
	return p.X > z.Left &&
		p.X < z.Right &&
		p.Y > z.Top &&
		p.Y < z.Bottom
}

// IgnitionZone returns the top-center band of r: 40% of the width and
// 20% of the height, touching the top edge.
func IgnitionZone(r Rect) Zone {
	return Zone{
		Top:    r.Top,
		Bottom: r.Top + r.Height*ZoneHeightRatio,
		Left:   r.Left + r.Width*ZoneInsetRatio,
		Right:  r.Right() - r.Width*ZoneInsetRatio,
	}
}

// MapToArea normalizes p against the frame dimensions and projects it into area.
// It returns false when the frame has a zero dimension or area is degenerate.
// Keypoints outside the frame map outside the area; no clamping is applied.
func MapToArea(p Point, frameWidth, frameHeight float64, area Rect) (Point, bool) {
	if frameWidth <= 0 || frameHeight <= 0 || !area.Valid() {
		return Point{}, false
	}

	nx := p.X / frameWidth
	ny := p.Y / frameHeight

	return Point{
		X: area.Left + nx*area.Width,
		Y: area.Top + ny*area.Height,
	}, true
}
