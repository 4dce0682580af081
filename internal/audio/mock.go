package audio

import (
	"context"
	"errors"
	"sync"
)

// MockMicrophone is a scripted Microphone for tests. It produces silence
// unless a level or a window sequence is set.
type MockMicrophone struct {
	mu        sync.Mutex
	denied    bool
	open      bool
	opens     int
	closes    int
	reads     int
	amplitude uint8
	scripted  [][]uint8
	readErr   error
}

// NewMockMicrophone creates a silent MockMicrophone.
func NewMockMicrophone() *MockMicrophone {
	return &MockMicrophone{}
}

// Deny makes Open fail with ErrMicrophoneDenied.
func (m *MockMicrophone) Deny() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied = true
}

// SetSquare makes every window a square wave of the given amplitude in
// sample units (0 is silence, 128 is full scale).
func (m *MockMicrophone) SetSquare(amplitude uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.amplitude = amplitude
	m.scripted = nil
}

// Enqueue schedules windows to be returned by the next Read calls.
func (m *MockMicrophone) Enqueue(windows ...[]uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, windows...)
}

// SetReadError makes Read fail with err until cleared with nil.
func (m *MockMicrophone) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// IsOpen reports whether the microphone is open.
func (m *MockMicrophone) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Reads returns the number of Read calls.
func (m *MockMicrophone) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Closes returns the number of Close calls.
func (m *MockMicrophone) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *MockMicrophone) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.denied {
		return ErrMicrophoneDenied
	}
	m.open = true
	return nil
}

func (m *MockMicrophone) Read(dst []uint8) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++

	if !m.open {
		return 0, errors.New("microphone not open")
	}
	if m.readErr != nil {
		return 0, m.readErr
	}
	if len(m.scripted) > 0 {
		w := m.scripted[0]
		m.scripted = m.scripted[1:]
		return copy(dst, w), nil
	}
	SquareWave(dst, m.amplitude)
	return len(dst), nil
}

func (m *MockMicrophone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.open = false
	return nil
}

// SquareWave fills dst with a square wave of the given amplitude around the
// 128 midpoint. An amplitude of 128 swings between 0 and 255.
func SquareWave(dst []uint8, amplitude uint8) {
	hi := min(128+int(amplitude), 255)
	lo := max(128-int(amplitude), 0)
	if amplitude == 128 {
		hi, lo = 255, 0
	}
	for i := range dst {
		if i%2 == 0 {
			dst[i] = uint8(hi)
		} else {
			dst[i] = uint8(lo)
		}
	}
}
