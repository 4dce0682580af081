// Package session wires the sensing loops, the candle and its collaborators
// into one running unit with a single teardown.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/audio"
	"github.com/ayusman/candlelight/internal/candle"
	"github.com/ayusman/candlelight/internal/capture"
	"github.com/ayusman/candlelight/internal/clock"
	"github.com/ayusman/candlelight/internal/detector"
	"github.com/ayusman/candlelight/internal/geometry"
	"github.com/ayusman/candlelight/internal/layout"
	"github.com/ayusman/candlelight/internal/tracking"
)

// Config holds the collaborators and settings of a session.
type Config struct {
	Camera     capture.Camera
	Microphone audio.Microphone
	Engine     detector.Engine
	Surface    *layout.Surface

	Detector detector.Config
	Retry    detector.RetryPolicy
	Audio    audio.AnalyzerConfig
	Cooldown time.Duration

	// FrameInterval paces both loops. Zero uses clock.DefaultFrameInterval.
	FrameInterval time.Duration

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// NewPacer overrides the frame pacer of each loop, mainly for tests.
	NewPacer func() clock.Pacer

	Logger zerolog.Logger
}

// Snapshot is the state shown by the display.
type Snapshot struct {
	Session     string                 `json:"session"`
	Candle      candle.State           `json:"candle"`
	CoolingDown bool                   `json:"cooling_down"`
	Match       tracking.MatchPosition `json:"match"`
	Audio       audio.Status           `json:"audio"`
	Level       float64                `json:"level"`
	Detector    detector.Phase         `json:"detector"`
	Backend     detector.Backend       `json:"backend,omitempty"`
	Area        *geometry.Rect         `json:"area,omitempty"`
	Zone        *geometry.Zone         `json:"zone,omitempty"`
	Uptime      string                 `json:"uptime"`
}

// Session owns the candle, the detection loop, the volume analyzer and the
// detector initializer.
type Session struct {
	id       string
	config   Config
	clock    clock.Clock
	logger   zerolog.Logger
	candle   *candle.Candle
	igniter  *candle.Igniter
	surface  *layout.Surface
	init     *detector.Initializer
	tracker  *tracking.Tracker
	analyzer *audio.Analyzer

	mu        sync.Mutex
	cancel    context.CancelFunc
	pacers    []*clock.FramePacer
	wg        sync.WaitGroup
	started   bool
	closed    bool
	startedAt time.Time
}

// New creates a session. Nothing runs until Start.
func New(config Config) *Session {
	c := config.Clock
	if c == nil {
		c = clock.Real{}
	}
	surface := config.Surface
	if surface == nil {
		surface = layout.NewSurface(layout.DefaultSettleDelay, c)
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = detector.DefaultRetryPolicy()
	}
	if config.Detector.MaxHands == 0 {
		config.Detector = detector.DefaultConfig()
	}

	id := uuid.New().String()
	logger := config.Logger.With().Str("session", id[:8]).Logger()

	s := &Session{
		id:      id,
		config:  config,
		clock:   c,
		logger:  logger,
		surface: surface,
		candle:  candle.New(config.Cooldown, c, logger),
	}
	s.igniter = candle.NewIgniter(s.candle, surface)
	s.init = detector.NewInitializer(config.Engine, config.Camera, config.Detector, config.Retry, c, logger)
	s.tracker = tracking.NewTracker(config.Camera, s.init, surface, s.newPacer(), logger)
	s.analyzer = audio.NewAnalyzer(config.Microphone, s.newPacer(), config.Audio, logger)

	s.tracker.OnPublish(func(m tracking.MatchPosition) {
		s.igniter.Evaluate(m)
	})
	s.analyzer.OnBlow(func(level float64) {
		if s.candle.Blow() {
			s.logger.Debug().Float64("level", level).Msg("Blow detected")
		}
	})
	return s
}

func (s *Session) newPacer() clock.Pacer {
	if s.config.NewPacer != nil {
		return s.config.NewPacer()
	}
	p := clock.NewFramePacer(s.clock, s.config.FrameInterval)
	s.pacers = append(s.pacers, p)
	return p
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Candle returns the candle state machine.
func (s *Session) Candle() *candle.Candle {
	return s.candle
}

// Surface returns the target-area store fed by the display.
func (s *Session) Surface() *layout.Surface {
	return s.surface
}

// Mount restarts the settle delay of the display surface.
func (s *Session) Mount() {
	s.surface.Mount()
}

// Report records the display rectangle in screen pixels.
func (s *Session) Report(rect geometry.Rect) {
	s.surface.Report(rect)
}

// OnTransition registers fn for every candle transition.
func (s *Session) OnTransition(fn func(candle.Transition)) {
	s.candle.OnTransition(fn)
}

// Start launches the initializer, the detection loop and the volume analyzer.
// Calling Start again, or after Close, does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed {
		return nil
	}
	if s.config.Camera == nil || s.config.Microphone == nil || s.config.Engine == nil {
		return errors.New("session needs a camera, a microphone and a detector engine")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.startedAt = s.clock.Now()

	s.spawn(ctx, "detector init", s.init.Run)
	s.spawn(ctx, "detection loop", s.tracker.Run)
	s.spawn(ctx, "volume analyzer", s.analyzer.Run)

	s.logger.Info().Msg("Session started")
	return nil
}

func (s *Session) spawn(ctx context.Context, name string, run func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Str("task", name).Msg("Task ended")
		}
	}()
}

// Relight is a manual relight request. It follows the same cooldown rule as
// an ignition-zone hit.
func (s *Session) Relight() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	return s.candle.Relight()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Session:     s.id,
		Candle:      s.candle.State(),
		CoolingDown: s.candle.CoolingDown(),
		Match:       s.tracker.Position().Load(),
		Audio:       s.analyzer.Status(),
		Level:       s.analyzer.Level(),
		Detector:    s.init.Status().Phase,
		Backend:     s.init.Backend(),
	}
	if rect, ok := s.surface.Area(); ok {
		zone := geometry.IgnitionZone(rect)
		snap.Area = &rect
		snap.Zone = &zone
	}

	s.mu.Lock()
	if s.started {
		snap.Uptime = s.clock.Since(s.startedAt).Truncate(time.Second).String()
	}
	s.mu.Unlock()
	return snap
}

// DetectorStatus returns the initialization status.
func (s *Session) DetectorStatus() detector.Status {
	return s.init.Status()
}

// Close stops every loop, waits for them and releases the detector, camera
// and microphone. It is idempotent and safe before Start.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	for _, p := range s.pacers {
		p.Stop()
	}

	var errs []error
	if err := s.init.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.config.Camera != nil {
		if err := s.config.Camera.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.config.Microphone != nil {
		if err := s.config.Microphone.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info().Msg("Session closed")
	return errors.Join(errs...)
}
