package detector

import (
	"context"
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// ErrMockBackend is the failure returned by MockEngine for scripted backend errors.
var ErrMockBackend = errors.New("mock backend unavailable")

// MockEngine is a test Engine. Backend and detector-creation failures are
// scripted per call.
type MockEngine struct {
	mu sync.Mutex

	// unavailable backends fail forever.
	unavailable map[Backend]bool
	// backendFailures fail the next n UseBackend calls regardless of backend.
	backendFailures int
	createFailures  int

	detector *MockDetector
	active   Backend

	UseBackendCalls  []Backend
	NewDetectorCalls int
	LastConfig       Config
}

// NewMockEngine creates a MockEngine whose detectors are d. A nil d creates
// a fresh MockDetector.
func NewMockEngine(d *MockDetector) *MockEngine {
	if d == nil {
		d = NewMockDetector()
	}
	return &MockEngine{unavailable: make(map[Backend]bool), detector: d}
}

// Name returns "mock".
func (e *MockEngine) Name() string { return "mock" }

// SetUnavailable makes b fail on every UseBackend call.
func (e *MockEngine) SetUnavailable(b Backend) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unavailable[b] = true
}

// FailBackends makes the next n UseBackend calls fail.
func (e *MockEngine) FailBackends(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.backendFailures = n
}

// FailCreates makes the next n NewDetector calls fail.
func (e *MockEngine) FailCreates(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.createFailures = n
}

// Active returns the backend selected by the last successful UseBackend.
func (e *MockEngine) Active() Backend {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// UseBackend records the call and applies the scripted failures.
func (e *MockEngine) UseBackend(ctx context.Context, b Backend) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.UseBackendCalls = append(e.UseBackendCalls, b)
	if e.backendFailures > 0 {
		e.backendFailures--
		return ErrMockBackend
	}
	if e.unavailable[b] {
		return ErrMockBackend
	}
	e.active = b
	return nil
}

// NewDetector returns the mock detector unless a failure is scripted.
func (e *MockEngine) NewDetector(ctx context.Context, config Config) (Detector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewDetectorCalls++
	e.LastConfig = config
	if e.createFailures > 0 {
		e.createFailures--
		return nil, errors.New("mock detector creation failed")
	}
	return e.detector, nil
}

// MockDetector is a test implementation of the Detector interface.
// Queued results are returned one per call; once the queue is empty the
// default hands and error are returned.
type MockDetector struct {
	mu     sync.Mutex
	hands  []HandLandmarks
	err    error
	panics bool
	queue  []mockResult
	calls  int
	closed bool
}

type mockResult struct {
	hands []HandLandmarks
	err   error
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetPanic makes Detect panic.
func (m *MockDetector) SetPanic(p bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics = p
}

// Enqueue schedules a single result for a future Detect call.
func (m *MockDetector) Enqueue(hands []HandLandmarks, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{hands: hands, err: err})
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Detect returns the next queued result or the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	m.calls++
	if m.panics {
		m.mu.Unlock()
		panic("mock detector failure")
	}
	defer m.mu.Unlock()

	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		return r.hands, r.err
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// PointingHand returns a right hand with the index fingertip at (x, y) in
// frame pixels and the rest of the hand below it.
func PointingHand(x, y float64) HandLandmarks {
	h := HandLandmarks{Handedness: "Right", Score: 0.95}

	// Offsets in pixels from the fingertip for a raised index finger with
	// the other fingers curled.
	offsets := [NumLandmarks][2]float64{
		Wrist:     {-10, 180},
		ThumbCMC:  {15, 160},
		ThumbMCP:  {30, 135},
		ThumbIP:   {35, 115},
		ThumbTip:  {30, 100},
		IndexMCP:  {5, 100},
		IndexPIP:  {3, 60},
		IndexDIP:  {1, 30},
		IndexTip:  {0, 0},
		MiddleMCP: {-15, 102},
		MiddlePIP: {-18, 85},
		MiddleDIP: {-12, 95},
		MiddleTip: {-8, 105},
		RingMCP:   {-30, 108},
		RingPIP:   {-33, 92},
		RingDIP:   {-27, 102},
		RingTip:   {-23, 110},
		PinkyMCP:  {-42, 116},
		PinkyPIP:  {-45, 104},
		PinkyDIP:  {-40, 110},
		PinkyTip:  {-36, 117},
	}
	for i, o := range offsets {
		h.Points[i] = Point3D{X: x + o[0], Y: y + o[1]}
	}
	return h
}
