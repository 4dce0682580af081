package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/clock"
)

// Phase is a state of detector initialization.
type Phase string

const (
	NotStarted       Phase = "not_started"
	SelectingBackend Phase = "selecting_backend"
	WaitingForVideo  Phase = "waiting_for_video"
	CreatingDetector Phase = "creating_detector"
	Ready            Phase = "ready"
	Failed           Phase = "failed"
)

// Status is the observable initialization state.
type Status struct {
	Phase Phase `json:"phase"`

	// Attempt is the 1-based attempt number within the current run.
	Attempt int `json:"attempt"`

	// VideoPolls counts failed video readiness polls in the current attempt.
	VideoPolls int `json:"video_polls"`

	// Err is set when Phase is Failed.
	Err error `json:"-"`
}

// Outcome is the result of executing the action of a phase.
type Outcome int

const (
	OutcomeStart Outcome = iota
	OutcomeBackendSelected
	OutcomeBackendFailed
	OutcomeVideoReady
	OutcomeVideoNotReady
	OutcomeDetectorCreated
	OutcomeDetectorFailed
)

// RetryPolicy bounds initialization retries and video polling.
type RetryPolicy struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	MaxVideoPolls     int           `mapstructure:"max_video_polls"`
	VideoPollInterval time.Duration `mapstructure:"video_poll_interval"`
}

// DefaultRetryPolicy allows 5 attempts with 1s, 2s, 4s, 5s delays and waits
// up to 10 polls of 500ms for video.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    1000 * time.Millisecond,
		MaxBackoff:        5000 * time.Millisecond,
		MaxVideoPolls:     10,
		VideoPollInterval: 500 * time.Millisecond,
	}
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialBackoff
	for i := 1; i < attempt && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Advance is the pure transition function of initialization. It returns the
// next status and how long to wait before acting on it. Outcomes that do not
// apply to the current phase leave the status unchanged.
func Advance(s Status, o Outcome, p RetryPolicy) (Status, time.Duration) {
	switch {
	case s.Phase == NotStarted && o == OutcomeStart:
		return Status{Phase: SelectingBackend, Attempt: 1}, 0

	case s.Phase == SelectingBackend && o == OutcomeBackendSelected:
		return Status{Phase: WaitingForVideo, Attempt: s.Attempt}, 0

	case s.Phase == SelectingBackend && o == OutcomeBackendFailed,
		s.Phase == CreatingDetector && o == OutcomeDetectorFailed:
		return retry(s, p)

	case s.Phase == WaitingForVideo && o == OutcomeVideoReady:
		return Status{Phase: CreatingDetector, Attempt: s.Attempt}, 0

	case s.Phase == WaitingForVideo && o == OutcomeVideoNotReady:
		polls := s.VideoPolls + 1
		if polls >= p.MaxVideoPolls {
			return Status{Phase: Failed, Attempt: s.Attempt, VideoPolls: polls, Err: ErrVideoTimeout}, 0
		}
		return Status{Phase: WaitingForVideo, Attempt: s.Attempt, VideoPolls: polls}, p.VideoPollInterval

	case s.Phase == CreatingDetector && o == OutcomeDetectorCreated:
		return Status{Phase: Ready, Attempt: s.Attempt}, 0
	}
	return s, 0
}

func retry(s Status, p RetryPolicy) (Status, time.Duration) {
	if s.Attempt >= p.MaxAttempts {
		return Status{Phase: Failed, Attempt: s.Attempt, Err: ErrRetriesExhausted}, 0
	}
	return Status{Phase: SelectingBackend, Attempt: s.Attempt + 1}, p.Backoff(s.Attempt)
}

// Video is the frame source as seen by initialization.
type Video interface {
	IsOpen() bool
	Open() error
	Size() (width, height int)
}

// Initializer drives Advance against a real engine and video source.
type Initializer struct {
	engine Engine
	video  Video
	config Config
	policy RetryPolicy
	clock  clock.Clock
	logger zerolog.Logger

	mu       sync.RWMutex
	status   Status
	backend  Backend
	detector Detector
	closed   bool
}

// NewInitializer creates an Initializer. A nil clock uses the wall clock.
func NewInitializer(engine Engine, video Video, config Config, policy RetryPolicy, c clock.Clock, logger zerolog.Logger) *Initializer {
	if c == nil {
		c = clock.Real{}
	}
	return &Initializer{
		engine: engine,
		video:  video,
		config: config,
		policy: policy,
		clock:  c,
		logger: logger.With().Str("component", "detector").Str("engine", engineName(engine)).Logger(),
		status: Status{Phase: NotStarted},
	}
}

// Status returns the current initialization status.
func (in *Initializer) Status() Status {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.status
}

// Backend returns the backend selected by the last successful selection.
func (in *Initializer) Backend() Backend {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.backend
}

// Detector returns the detector once Ready, or nil.
func (in *Initializer) Detector() Detector {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.status.Phase != Ready {
		return nil
	}
	return in.detector
}

// Run executes initialization until Ready, Failed, or ctx is cancelled.
// It returns nil once Ready.
func (in *Initializer) Run(ctx context.Context) error {
	status, _ := Advance(Status{Phase: NotStarted}, OutcomeStart, in.policy)
	in.setStatus(status)

	for {
		var outcome Outcome
		switch status.Phase {
		case SelectingBackend:
			outcome = in.selectBackend(ctx)
		case WaitingForVideo:
			outcome = in.pollVideo()
		case CreatingDetector:
			outcome = in.createDetector(ctx)
		case Ready:
			in.logger.Info().Str("backend", string(in.Backend())).Int("attempt", status.Attempt).Msg("Hand detector ready")
			return nil
		case Failed:
			in.logger.Error().Err(status.Err).Int("attempt", status.Attempt).Msg("Hand detection disabled")
			return status.Err
		}

		if err := ctx.Err(); err != nil {
			in.abort(err)
			return err
		}

		next, delay := Advance(status, outcome, in.policy)
		if next.Phase == SelectingBackend && next.Attempt > status.Attempt {
			in.logger.Warn().Int("attempt", status.Attempt).Dur("retry_in", delay).Msg("Detector initialization failed, retrying")
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				in.abort(ctx.Err())
				return ctx.Err()
			case <-in.clock.After(delay):
			}
		}
		status = next
		in.setStatus(status)
	}
}

func (in *Initializer) selectBackend(ctx context.Context) Outcome {
	for _, b := range []Backend{BackendAccelerated, BackendCPU} {
		if err := in.engine.UseBackend(ctx, b); err != nil {
			in.logger.Warn().Err(err).Str("backend", string(b)).Msg("Backend unavailable")
			continue
		}
		in.mu.Lock()
		in.backend = b
		in.mu.Unlock()
		return OutcomeBackendSelected
	}
	return OutcomeBackendFailed
}

func (in *Initializer) pollVideo() Outcome {
	if in.video == nil {
		return OutcomeVideoNotReady
	}
	if !in.video.IsOpen() {
		if err := in.video.Open(); err != nil {
			in.logger.Debug().Err(err).Msg("Video source not open yet")
		}
	}
	if !in.video.IsOpen() {
		return OutcomeVideoNotReady
	}
	if w, h := in.video.Size(); w <= 0 || h <= 0 {
		return OutcomeVideoNotReady
	}
	return OutcomeVideoReady
}

func (in *Initializer) createDetector(ctx context.Context) Outcome {
	d, err := in.engine.NewDetector(ctx, in.config)
	if err != nil {
		in.logger.Warn().Err(err).Msg("Create detector failed")
		return OutcomeDetectorFailed
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		d.Close()
		return OutcomeDetectorFailed
	}
	if in.detector != nil {
		in.detector.Close()
	}
	in.detector = d
	return OutcomeDetectorCreated
}

func (in *Initializer) setStatus(s Status) {
	in.mu.Lock()
	in.status = s
	in.mu.Unlock()
}

func (in *Initializer) abort(err error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.status.Phase != Ready {
		in.status = Status{Phase: Failed, Attempt: in.status.Attempt, Err: fmt.Errorf("initialization cancelled: %w", err)}
	}
}

// Close releases the detector. It is safe to call when initialization never
// completed and more than once.
func (in *Initializer) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	if in.detector == nil {
		return nil
	}
	err := in.detector.Close()
	in.detector = nil
	if in.status.Phase == Ready {
		in.status = Status{Phase: NotStarted}
	}
	return err
}

func engineName(e Engine) string {
	if e == nil {
		return "none"
	}
	return e.Name()
}
