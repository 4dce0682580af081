package sfx

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/candle"
)

// Config controls sound feedback. Sound is off by default because the
// microphone would pick up the puff as another blow.
type Config struct {
	Enabled bool    `mapstructure:"enabled"`
	Volume  float64 `mapstructure:"volume"`
}

// DefaultConfig returns sound feedback disabled at half volume.
func DefaultConfig() Config {
	return Config{Enabled: false, Volume: 0.5}
}

// Output plays a streamer.
type Output interface {
	Play(s beep.Streamer)
}

// Speaker plays streamers on the default audio device.
type Speaker struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	initialized bool
}

// NewSpeaker creates an uninitialized Speaker.
func NewSpeaker() *Speaker {
	return &Speaker{mixer: &beep.Mixer{}}
}

// Init opens the audio device at DefaultSampleRate.
func (s *Speaker) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	if err := speaker.Init(DefaultSampleRate, DefaultSampleRate.N(100*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(s.mixer)
	s.initialized = true
	return nil
}

func (s *Speaker) Play(st beep.Streamer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return
	}
	speaker.Lock()
	s.mixer.Add(st)
	speaker.Unlock()
}

// Close stops playback. The device stays open for the process lifetime.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return
	}
	speaker.Lock()
	s.mixer.Clear()
	speaker.Unlock()
	s.initialized = false
}

// Player turns candle transitions into sounds.
type Player struct {
	config Config
	out    Output
	rate   beep.SampleRate
	logger zerolog.Logger
}

// NewPlayer creates a Player writing to out.
func NewPlayer(config Config, out Output, logger zerolog.Logger) *Player {
	return &Player{
		config: config,
		out:    out,
		rate:   DefaultSampleRate,
		logger: logger.With().Str("component", "sfx").Logger(),
	}
}

// OnTransition plays the puff when the candle goes out and the strike when it
// is relit. It has the signature of a candle transition listener.
func (p *Player) OnTransition(tr candle.Transition) {
	if !p.config.Enabled || p.out == nil {
		return
	}
	switch tr.To {
	case candle.Unlit:
		p.out.Play(Puff(p.rate, p.config.Volume))
	case candle.Lit:
		p.out.Play(Strike(p.rate, p.config.Volume))
	}
	p.logger.Debug().Str("state", string(tr.To)).Msg("Played feedback sound")
}
