package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// DefaultSampleRate is the capture rate of the default input device.
const DefaultSampleRate = 44100

// PortAudioMicrophone captures mono audio from the default input device.
type PortAudioMicrophone struct {
	sampleRate float64
	windowSize int
	logger     zerolog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	window  *captureWindow
	closing bool
	done    chan struct{}
}

// NewPortAudioMicrophone creates a microphone reading windowSize samples at
// sampleRate.
func NewPortAudioMicrophone(sampleRate float64, windowSize int, logger zerolog.Logger) *PortAudioMicrophone {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &PortAudioMicrophone{
		sampleRate: sampleRate,
		windowSize: windowSize,
		logger:     logger.With().Str("component", "microphone").Logger(),
	}
}

// Open initializes PortAudio and starts capturing on a background goroutine.
func (m *PortAudioMicrophone) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: init portaudio: %v", ErrMicrophoneDenied, err)
	}

	m.buf = make([]int16, m.windowSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, m.sampleRate, len(m.buf), m.buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: open input stream: %v", ErrMicrophoneDenied, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: start input stream: %v", ErrMicrophoneDenied, err)
	}

	m.stream = stream
	m.window = newCaptureWindow(m.windowSize)
	m.closing = false
	m.done = make(chan struct{})
	go m.capture(stream, m.window, m.done)

	m.logger.Info().Float64("sample_rate", m.sampleRate).Int("window", m.windowSize).Msg("Microphone opened")
	return nil
}

func (m *PortAudioMicrophone) capture(stream *portaudio.Stream, window *captureWindow, done chan struct{}) {
	defer close(done)

	for {
		m.mu.Lock()
		closing := m.closing
		m.mu.Unlock()
		if closing {
			return
		}

		if err := stream.Read(); err != nil {
			// Input overflow only means samples were dropped.
			if err != portaudio.InputOverflowed {
				m.logger.Error().Err(err).Msg("Input stream failed, capture stopped")
				window.fail(err)
				return
			}
		}
		window.store(m.buf)
	}
}

// Read copies the latest window into dst. Before the first window arrives it
// reports silence. Once capture has failed it returns ErrCaptureStopped.
func (m *PortAudioMicrophone) Read(dst []uint8) (int, error) {
	m.mu.Lock()
	window := m.window
	open := m.stream != nil
	m.mu.Unlock()

	if !open {
		return 0, fmt.Errorf("microphone not open")
	}
	return window.read(dst)
}

// Close stops capture and releases PortAudio. Safe to call more than once.
func (m *PortAudioMicrophone) Close() error {
	m.mu.Lock()
	if m.stream == nil {
		m.mu.Unlock()
		return nil
	}
	stream, done := m.stream, m.done
	m.closing = true
	m.mu.Unlock()

	// The capture goroutine exits after its current window.
	<-done

	err := stream.Stop()
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	portaudio.Terminate()

	m.mu.Lock()
	m.stream = nil
	m.mu.Unlock()
	return err
}
