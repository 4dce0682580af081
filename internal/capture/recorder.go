package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// Recorder wraps a Camera and keeps a copy of the last frame read, so a
// preview can be served without consuming frames from the tracker.
type Recorder struct {
	Camera

	mu   sync.Mutex
	last gocv.Mat
	has  bool
	seq  uint64
}

// NewRecorder wraps cam.
func NewRecorder(cam Camera) *Recorder {
	return &Recorder{Camera: cam}
}

// ReadFrame reads from the wrapped camera and records a copy of the frame.
func (r *Recorder) ReadFrame() (*gocv.Mat, error) {
	frame, err := r.Camera.ReadFrame()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.has {
		r.last.Close()
	}
	r.last = frame.Clone()
	r.has = true
	r.seq++
	r.mu.Unlock()

	return frame, nil
}

// Latest returns a copy of the last frame and its sequence number when it is
// newer than after. Pass 0 to get any frame. The caller must close the
// returned Mat when ok is true.
func (r *Recorder) Latest(after uint64) (frame gocv.Mat, seq uint64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.has || r.seq == after {
		return gocv.Mat{}, r.seq, false
	}
	return r.last.Clone(), r.seq, true
}

// Close releases the recorded frame and closes the camera.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.has {
		r.last.Close()
		r.has = false
	}
	r.mu.Unlock()

	return r.Camera.Close()
}
