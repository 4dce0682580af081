package sfx

import (
	"math"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/candlelight/internal/candle"
)

const rate = beep.SampleRate(8000)

// drain streams s to completion and returns the samples of the left channel.
func drain(t *testing.T, s beep.Streamer) []float64 {
	t.Helper()
	var out []float64
	buf := make([][2]float64, 512)
	for i := 0; i < 1000; i++ {
		n, ok := s.Stream(buf)
		for _, v := range buf[:n] {
			out = append(out, v[0])
		}
		if !ok {
			return out
		}
	}
	t.Fatal("streamer never ended")
	return nil
}

func peak(samples []float64) float64 {
	var p float64
	for _, v := range samples {
		p = math.Max(p, math.Abs(v))
	}
	return p
}

func TestPuff(t *testing.T) {
	samples := drain(t, Puff(rate, 1))

	assert.Equal(t, rate.N(puffDuration), len(samples))
	assert.Greater(t, peak(samples), 0.0)
	assert.LessOrEqual(t, peak(samples), 1.0)
	assert.InDelta(t, 0, samples[len(samples)-1], 0.05, "puff fades out")
}

func TestStrike(t *testing.T) {
	samples := drain(t, Strike(rate, 1))

	assert.Equal(t, rate.N(60*time.Millisecond)+rate.N(strikeDuration), len(samples))
	assert.Greater(t, peak(samples), 0.0)
	assert.LessOrEqual(t, peak(samples), 1.0)
}

func TestSilentVolume(t *testing.T) {
	samples := drain(t, Puff(rate, 0))
	assert.Zero(t, peak(samples))
}

func TestSweepRises(t *testing.T) {
	samples := drain(t, newSweep(100, 1000, time.Second, rate))
	require.Len(t, samples, rate.N(time.Second))

	crossings := func(s []float64) int {
		n := 0
		for i := 1; i < len(s); i++ {
			if (s[i-1] < 0) != (s[i] < 0) {
				n++
			}
		}
		return n
	}
	quarter := len(samples) / 4
	assert.Greater(t, crossings(samples[3*quarter:]), crossings(samples[:quarter]))
}

type recorder struct {
	played []beep.Streamer
}

func (r *recorder) Play(s beep.Streamer) {
	r.played = append(r.played, s)
}

func TestPlayer_OnTransition(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		to     candle.State
		played int
	}{
		{name: "disabled", config: DefaultConfig(), to: candle.Unlit, played: 0},
		{name: "blown out", config: Config{Enabled: true, Volume: 1}, to: candle.Unlit, played: 1},
		{name: "relit", config: Config{Enabled: true, Volume: 1}, to: candle.Lit, played: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &recorder{}
			NewPlayer(tt.config, out, zerolog.Nop()).OnTransition(candle.Transition{To: tt.to})
			assert.Len(t, out.played, tt.played)
		})
	}
}

func TestPlayer_NilOutput(t *testing.T) {
	p := NewPlayer(Config{Enabled: true, Volume: 1}, nil, zerolog.Nop())
	p.OnTransition(candle.Transition{To: candle.Unlit})
}

func TestSpeaker_PlayBeforeInit(t *testing.T) {
	s := NewSpeaker()
	s.Play(Puff(rate, 1))
	s.Close()
}
