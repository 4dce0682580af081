package tracking

import (
	"context"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/ayusman/candlelight/internal/clock"
	"github.com/ayusman/candlelight/internal/detector"
	"github.com/ayusman/candlelight/internal/geometry"
)

// Frames is the video source read by the loop.
type Frames interface {
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
	Size() (width, height int)
}

// DetectorSource yields the detector once initialization is Ready, nil before.
type DetectorSource interface {
	Detector() detector.Detector
}

// AreaSource yields the current target area in screen coordinates.
type AreaSource interface {
	Area() (geometry.Rect, bool)
}

// Tracker is the detection loop.
type Tracker struct {
	frames    Frames
	detectors DetectorSource
	area      AreaSource
	pacer     clock.Pacer
	position  *Position
	onPublish func(MatchPosition)
	logger    zerolog.Logger
	sampled   zerolog.Logger
}

// NewTracker creates a Tracker. Call OnPublish before Run.
func NewTracker(frames Frames, detectors DetectorSource, area AreaSource, pacer clock.Pacer, logger zerolog.Logger) *Tracker {
	logger = logger.With().Str("component", "tracker").Logger()
	return &Tracker{
		frames:    frames,
		detectors: detectors,
		area:      area,
		pacer:     pacer,
		position:  &Position{},
		logger:    logger,
		sampled:   logger.Sample(&zerolog.BasicSampler{N: 60}),
	}
}

// Position returns the store the loop publishes to.
func (t *Tracker) Position() *Position {
	return t.position
}

// OnPublish registers fn to run after every published position.
func (t *Tracker) OnPublish(fn func(MatchPosition)) {
	t.onPublish = fn
}

// Run ticks until ctx is cancelled. Per-tick failures never end the loop.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Debug().Msg("Detection loop started")
	defer t.logger.Debug().Msg("Detection loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.tick(ctx)
		if err := t.pacer.Wait(ctx); err != nil {
			return err
		}
	}
}

func (t *Tracker) tick(ctx context.Context) {
	d := t.detectors.Detector()
	if d == nil || !t.frames.IsOpen() {
		return
	}
	if w, h := t.frames.Size(); w <= 0 || h <= 0 {
		return
	}

	frame, err := t.frames.ReadFrame()
	if err != nil {
		t.sampled.Debug().Err(err).Msg("Frame not available")
		return
	}
	defer frame.Close()

	hands, err := detector.SafeDetect(d, frame)
	if err != nil {
		t.sampled.Warn().Err(err).Msg("Hand detection failed")
		return
	}

	if len(hands) == 0 {
		t.hide(ctx)
		return
	}

	tip := hands[0].Fingertip()
	area, ok := t.area.Area()
	if !ok {
		t.hide(ctx)
		return
	}
	p, ok := geometry.MapToArea(geometry.Point{X: tip.X, Y: tip.Y}, float64(frame.Cols()), float64(frame.Rows()), area)
	if !ok {
		t.hide(ctx)
		return
	}
	t.publish(ctx, MatchPosition{X: p.X, Y: p.Y, Visible: true})
}

func (t *Tracker) hide(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	m := t.position.Hide()
	if t.onPublish != nil {
		t.onPublish(m)
	}
}

func (t *Tracker) publish(ctx context.Context, m MatchPosition) {
	if ctx.Err() != nil {
		return
	}
	t.position.Store(m)
	if t.onPublish != nil {
		t.onPublish(m)
	}
}
