package detector

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

var (
	// ErrNotReady is returned when detection is requested before initialization completed.
	ErrNotReady = errors.New("detector not ready")

	// ErrVideoTimeout is returned when the video source never became ready.
	ErrVideoTimeout = errors.New("timed out waiting for video")

	// ErrRetriesExhausted is returned when every initialization attempt failed.
	ErrRetriesExhausted = errors.New("detector initialization retries exhausted")
)

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks in
	// frame-pixel coordinates. Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Backend selects the execution backend of an inference engine.
type Backend string

const (
	// BackendAccelerated is the high-performance backend (CUDA or GPU delegate).
	BackendAccelerated Backend = "accelerated"
	// BackendCPU is available everywhere.
	BackendCPU Backend = "cpu"
)

// Engine creates detectors on a selected backend.
type Engine interface {
	Name() string

	// UseBackend activates b for detectors created afterwards.
	UseBackend(ctx context.Context, b Backend) error

	// NewDetector creates a detector on the active backend.
	NewDetector(ctx context.Context, config Config) (Detector, error)
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect.
	MaxHands int `mapstructure:"max_hands"`

	// Model is the model variant, "lite" or "full".
	Model string `mapstructure:"model"`

	// MinConfidence is the minimum hand presence score (0.0-1.0).
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// DefaultConfig returns the fixed single-hand lite configuration.
func DefaultConfig() Config {
	return Config{
		MaxHands:      1,
		Model:         "lite",
		MinConfidence: 0.5,
	}
}

// SafeDetect runs d.Detect and converts a panic inside the engine into an error.
func SafeDetect(d Detector, frame *gocv.Mat) (hands []HandLandmarks, err error) {
	if d == nil {
		return nil, ErrNotReady
	}
	defer func() {
		if r := recover(); r != nil {
			hands = nil
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return d.Detect(frame)
}
