// Package audio captures microphone input and turns breath energy into blow
// events.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/clock"
)

const (
	// DefaultWindowSize is the number of samples analyzed per tick.
	DefaultWindowSize = 2048
	// DefaultThreshold is the RMS level above which a tick counts as a blow.
	DefaultThreshold = 0.05
)

// ErrMicrophoneDenied is returned when the microphone cannot be opened.
var ErrMicrophoneDenied = errors.New("microphone access denied")

// Status is the analyzer state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusListening Status = "listening"
	StatusError     Status = "error"
)

// Microphone is an audio input exposing its most recent window of 8-bit
// unsigned samples.
type Microphone interface {
	Open(ctx context.Context) error
	// Read fills dst with the latest samples and returns how many were written.
	Read(dst []uint8) (int, error)
	Close() error
}

// AnalyzerConfig holds analyzer settings.
type AnalyzerConfig struct {
	WindowSize int     `mapstructure:"window_size"`
	Threshold  float64 `mapstructure:"threshold"`
}

// DefaultAnalyzerConfig returns a 2048-sample window with a 0.05 threshold.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{WindowSize: DefaultWindowSize, Threshold: DefaultThreshold}
}

// Analyzer measures microphone energy once per frame and reports blows.
type Analyzer struct {
	mic    Microphone
	pacer  clock.Pacer
	config AnalyzerConfig
	onBlow func(level float64)
	logger zerolog.Logger

	mu     sync.RWMutex
	status Status
	level  float64
	err    error
}

// NewAnalyzer creates an idle Analyzer.
func NewAnalyzer(mic Microphone, pacer clock.Pacer, config AnalyzerConfig, logger zerolog.Logger) *Analyzer {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultWindowSize
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	return &Analyzer{
		mic:    mic,
		pacer:  pacer,
		config: config,
		logger: logger.With().Str("component", "audio").Logger(),
		status: StatusIdle,
	}
}

// OnBlow registers fn to run on every tick whose level exceeds the threshold.
// Call before Run.
func (a *Analyzer) OnBlow(fn func(level float64)) {
	a.onBlow = fn
}

// Status returns the current status.
func (a *Analyzer) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Level returns the RMS level of the last analyzed window.
func (a *Analyzer) Level() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.level
}

// Err returns the setup error once the status is StatusError.
func (a *Analyzer) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Run opens the microphone and analyzes one window per frame until ctx is
// cancelled. A failed open leaves the analyzer in StatusError and is not
// retried.
func (a *Analyzer) Run(ctx context.Context) error {
	if err := a.mic.Open(ctx); err != nil {
		if !errors.Is(err, ErrMicrophoneDenied) {
			err = fmt.Errorf("%w: %v", ErrMicrophoneDenied, err)
		}
		a.mu.Lock()
		a.status = StatusError
		a.err = err
		a.mu.Unlock()
		a.logger.Error().Err(err).Msg("Microphone unavailable, blow detection disabled")
		return err
	}
	defer a.stop()

	a.setStatus(StatusListening)
	a.logger.Info().Float64("threshold", a.config.Threshold).Msg("Listening for blows")

	window := make([]uint8, a.config.WindowSize)
	samples := make([]float64, a.config.WindowSize)
	sampled := a.logger.Sample(&zerolog.BasicSampler{N: 60})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := a.mic.Read(window)
		if err != nil {
			// A failed read counts as silence.
			sampled.Warn().Err(err).Msg("Microphone read failed")
			a.mu.Lock()
			a.level = 0
			a.mu.Unlock()
		} else {
			samples = Normalize(samples, window[:n])
			level := RMSFloat(samples)

			a.mu.Lock()
			a.level = level
			a.mu.Unlock()

			if level > a.config.Threshold && ctx.Err() == nil && a.onBlow != nil {
				a.onBlow(level)
			}
		}

		if err := a.pacer.Wait(ctx); err != nil {
			return err
		}
	}
}

func (a *Analyzer) stop() {
	if err := a.mic.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("Close microphone")
	}
	a.mu.Lock()
	a.status = StatusIdle
	a.level = 0
	a.mu.Unlock()
}

func (a *Analyzer) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}
