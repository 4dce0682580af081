package audio

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCaptureStopped is returned by reads after the capture goroutine died.
var ErrCaptureStopped = errors.New("microphone capture stopped")

// captureWindow holds the most recent window written by a capture goroutine
// and read by the analyzer.
type captureWindow struct {
	mu     sync.Mutex
	latest []uint8
	filled bool
	err    error
}

func newCaptureWindow(size int) *captureWindow {
	return &captureWindow{latest: make([]uint8, size)}
}

// store converts signed 16-bit samples to unsigned 8-bit, centered on 128.
func (w *captureWindow) store(samples []int16) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, s := range samples[:min(len(samples), len(w.latest))] {
		w.latest[i] = uint8((int32(s) >> 8) + 128)
	}
	w.filled = true
}

// fail discards the window. Every later read returns err.
func (w *captureWindow) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.filled = false
	w.err = fmt.Errorf("%w: %v", ErrCaptureStopped, err)
}

// read copies the latest window into dst. Before the first window it reports
// silence.
func (w *captureWindow) read(dst []uint8) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return 0, w.err
	}
	if !w.filled {
		n := min(len(dst), len(w.latest))
		for i := range dst[:n] {
			dst[i] = 128
		}
		return n, nil
	}
	return copy(dst, w.latest), nil
}
