package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// DNNConfig describes an ONNX hand-landmark model.
type DNNConfig struct {
	ModelPath string `mapstructure:"model_path"`

	// InputSize is the square model input in pixels.
	InputSize int `mapstructure:"input_size"`

	// LandmarkOutput yields 63 values: 21 x (x, y, z) in input pixels.
	LandmarkOutput string `mapstructure:"landmark_output"`

	// PresenceOutput yields the hand presence score.
	PresenceOutput string `mapstructure:"presence_output"`
}

// DefaultDNNConfig returns settings for the MediaPipe lite landmark model
// exported to ONNX.
func DefaultDNNConfig() DNNConfig {
	return DNNConfig{
		ModelPath:      "models/hand_landmark_lite.onnx",
		InputSize:      224,
		LandmarkOutput: "Identity",
		PresenceOutput: "Identity_1",
	}
}

// DNNEngine runs an ONNX landmark model through the OpenCV DNN module.
type DNNEngine struct {
	config DNNConfig
	logger zerolog.Logger

	mu      sync.Mutex
	backend Backend
	active  bool
}

// NewDNNEngine creates a DNN engine.
func NewDNNEngine(config DNNConfig, logger zerolog.Logger) *DNNEngine {
	if config.InputSize <= 0 {
		config.InputSize = DefaultDNNConfig().InputSize
	}
	return &DNNEngine{
		config: config,
		logger: logger.With().Str("component", "dnn").Logger(),
	}
}

// Name returns "dnn".
func (e *DNNEngine) Name() string { return "dnn" }

// UseBackend loads the model on b and runs one warm-up forward pass.
func (e *DNNEngine) UseBackend(ctx context.Context, b Backend) error {
	net, err := e.load(b)
	if err != nil {
		return err
	}
	defer net.Close()

	warm := gocv.NewMatWithSize(e.config.InputSize, e.config.InputSize, gocv.MatTypeCV8UC3)
	defer warm.Close()
	if _, _, err := e.forward(&net, warm); err != nil {
		return fmt.Errorf("warm-up on %s backend: %w", b, err)
	}

	e.mu.Lock()
	e.backend = b
	e.active = true
	e.mu.Unlock()
	return nil
}

// NewDetector loads a dedicated network on the selected backend.
func (e *DNNEngine) NewDetector(ctx context.Context, config Config) (Detector, error) {
	e.mu.Lock()
	backend, active := e.backend, e.active
	e.mu.Unlock()
	if !active {
		return nil, errors.New("no backend selected")
	}

	net, err := e.load(backend)
	if err != nil {
		return nil, err
	}
	return &DNNDetector{engine: e, net: net, config: config}, nil
}

func (e *DNNEngine) load(b Backend) (gocv.Net, error) {
	if _, err := os.Stat(e.config.ModelPath); err != nil {
		return gocv.Net{}, fmt.Errorf("model file not found: %s", e.config.ModelPath)
	}

	net := gocv.ReadNetFromONNX(e.config.ModelPath)
	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("failed to load model from %s", e.config.ModelPath)
	}

	if b == BackendAccelerated {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		net.SetPreferableBackend(gocv.NetBackendDefault)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}
	return net, nil
}

// forward runs the model on img and returns raw landmarks in input pixels
// and the presence score.
func (e *DNNEngine) forward(net *gocv.Net, img gocv.Mat) ([]float32, float32, error) {
	size := image.Pt(e.config.InputSize, e.config.InputSize)
	blob := gocv.BlobFromImage(img, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	net.SetInput(blob, "")
	outputs := net.ForwardLayers([]string{e.config.LandmarkOutput, e.config.PresenceOutput})
	defer func() {
		for _, m := range outputs {
			m.Close()
		}
	}()
	if len(outputs) != 2 {
		return nil, 0, fmt.Errorf("expected 2 outputs, got %d", len(outputs))
	}

	raw, err := outputs[0].DataPtrFloat32()
	if err != nil {
		return nil, 0, fmt.Errorf("read landmarks: %w", err)
	}
	if len(raw) < NumLandmarks*3 {
		return nil, 0, fmt.Errorf("landmark output has %d values", len(raw))
	}
	presence, err := outputs[1].DataPtrFloat32()
	if err != nil || len(presence) == 0 {
		return nil, 0, fmt.Errorf("read presence score: %v", err)
	}

	landmarks := make([]float32, NumLandmarks*3)
	copy(landmarks, raw)
	return landmarks, presence[0], nil
}

// DNNDetector is a single-hand detector backed by an OpenCV network.
type DNNDetector struct {
	engine *DNNEngine
	config Config

	mu  sync.Mutex
	net gocv.Net
}

// Detect returns at most one hand in frame-pixel coordinates.
func (d *DNNDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	raw, score, err := d.engine.forward(&d.net, *frame)
	if err != nil {
		return nil, err
	}
	if float64(score) < d.config.MinConfidence {
		return []HandLandmarks{}, nil
	}

	in := float64(d.engine.config.InputSize)
	hand := landmarksFromTensor(raw, float64(score)).
		Scale(float64(frame.Cols())/in, float64(frame.Rows())/in)
	return []HandLandmarks{hand}, nil
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

func landmarksFromTensor(raw []float32, score float64) HandLandmarks {
	h := HandLandmarks{Score: score}
	for i := 0; i < NumLandmarks; i++ {
		h.Points[i] = Point3D{
			X: float64(raw[i*3]),
			Y: float64(raw[i*3+1]),
			Z: float64(raw[i*3+2]),
		}
	}
	return h
}
