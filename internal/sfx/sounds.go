// Package sfx synthesizes the short feedback sounds played when the candle
// is blown out or relit.
package sfx

import (
	"math"
	"math/rand"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
)

// DefaultSampleRate is the speaker rate.
const DefaultSampleRate = beep.SampleRate(44100)

const (
	puffDuration    = 350 * time.Millisecond
	puffAttack      = 10 * time.Millisecond
	strikeDuration  = 250 * time.Millisecond
	strikeAttack    = 5 * time.Millisecond
	strikeStartFreq = 400.0
	strikeEndFreq   = 1200.0
)

// noise produces white noise filtered by a one-pole low pass, which sounds
// like a breath.
type noise struct {
	rng       *rand.Rand
	remaining int
	smooth    float64
	last      float64
}

func newNoise(duration time.Duration, smooth float64, rate beep.SampleRate, seed int64) beep.Streamer {
	return &noise{
		rng:       rand.New(rand.NewSource(seed)),
		remaining: rate.N(duration),
		smooth:    smooth,
	}
}

func (n *noise) Stream(samples [][2]float64) (int, bool) {
	if n.remaining <= 0 {
		return 0, false
	}
	count := min(len(samples), n.remaining)
	for i := range samples[:count] {
		v := n.rng.Float64()*2 - 1
		n.last += (v - n.last) * n.smooth
		samples[i][0] = n.last
		samples[i][1] = n.last
	}
	n.remaining -= count
	return count, true
}

func (n *noise) Err() error { return nil }

// sweep is a sine whose frequency rises linearly over its duration.
type sweep struct {
	from, to float64
	rate     beep.SampleRate
	phase    float64
	position int
	total    int
}

func newSweep(from, to float64, duration time.Duration, rate beep.SampleRate) beep.Streamer {
	return &sweep{from: from, to: to, rate: rate, total: rate.N(duration)}
}

func (s *sweep) Stream(samples [][2]float64) (int, bool) {
	for i := range samples {
		if s.position >= s.total {
			return i, i > 0
		}
		progress := float64(s.position) / float64(s.total)
		freq := s.from + (s.to-s.from)*progress

		v := math.Sin(2 * math.Pi * s.phase)
		samples[i][0] = v
		samples[i][1] = v

		s.phase += freq / float64(s.rate)
		s.phase -= math.Floor(s.phase)
		s.position++
	}
	return len(samples), true
}

func (s *sweep) Err() error { return nil }

// envelope ramps the stream up over attack samples and linearly down to
// silence at the end of its duration.
type envelope struct {
	streamer beep.Streamer
	position int
	attack   int
	total    int
}

func newEnvelope(s beep.Streamer, duration, attack time.Duration, rate beep.SampleRate) beep.Streamer {
	return &envelope{streamer: s, attack: rate.N(attack), total: rate.N(duration)}
}

func (e *envelope) Stream(samples [][2]float64) (int, bool) {
	n, ok := e.streamer.Stream(samples)
	for i := 0; i < n; i++ {
		if e.position >= e.total {
			return i, i > 0
		}
		vol := float64(e.total-e.position) / float64(e.total-e.attack)
		if e.position < e.attack {
			vol = float64(e.position) / float64(e.attack)
		}
		vol = min(vol, 1)
		samples[i][0] *= vol
		samples[i][1] *= vol
		e.position++
	}
	return n, ok
}

func (e *envelope) Err() error { return e.streamer.Err() }

func withVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol)}
}

// Puff returns the blow-out sound: a soft burst of filtered noise.
func Puff(rate beep.SampleRate, volume float64) beep.Streamer {
	s := newNoise(puffDuration, 0.15, rate, time.Now().UnixNano())
	return withVolume(newEnvelope(s, puffDuration, puffAttack, rate), volume)
}

// Strike returns the relight sound: a short scratch of noise followed by a
// rising tone.
func Strike(rate beep.SampleRate, volume float64) beep.Streamer {
	scratch := newEnvelope(newNoise(60*time.Millisecond, 0.6, rate, time.Now().UnixNano()), 60*time.Millisecond, strikeAttack, rate)
	tone := newEnvelope(newSweep(strikeStartFreq, strikeEndFreq, strikeDuration, rate), strikeDuration, strikeAttack, rate)
	return withVolume(beep.Seq(scratch, withVolume(tone, 0.5)), volume)
}
