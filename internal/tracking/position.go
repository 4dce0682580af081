// Package tracking runs the per-frame hand detection loop and publishes the
// match position in screen coordinates.
package tracking

import "sync"

// MatchPosition is the fingertip in screen coordinates. X and Y keep their
// last mapped values while Visible is false and must not be consulted then.
type MatchPosition struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// Position is the latest-value store for MatchPosition. The detection loop is
// its only writer.
type Position struct {
	mu  sync.RWMutex
	pos MatchPosition
	seq uint64
}

// Load returns the latest position.
func (p *Position) Load() MatchPosition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos
}

// Seq returns the number of positions stored so far.
func (p *Position) Seq() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.seq
}

// Store replaces the latest position.
func (p *Position) Store(m MatchPosition) {
	p.mu.Lock()
	p.pos = m
	p.seq++
	p.mu.Unlock()
}

// Hide marks the position invisible, keeping the last coordinates.
func (p *Position) Hide() MatchPosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos.Visible = false
	p.seq++
	return p.pos
}
