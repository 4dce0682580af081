package detector

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// DefaultIdleTimeout stops an unused MediaPipe service.
const DefaultIdleTimeout = 30 * time.Second

// MediaPipeConfig locates the MediaPipe Python service.
type MediaPipeConfig struct {
	// Python is the interpreter. Empty searches for a virtualenv, then python3.
	Python string `mapstructure:"python"`

	// Script is the service script. Empty searches the usual locations.
	Script string `mapstructure:"script"`

	// IdleTimeout stops the subprocess after inactivity; it restarts on demand.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// MediaPipeEngine runs detection in a MediaPipe Python subprocess.
type MediaPipeEngine struct {
	config MediaPipeConfig
	logger zerolog.Logger

	mu       sync.Mutex
	delegate string
}

// NewMediaPipeEngine creates a MediaPipe engine.
func NewMediaPipeEngine(config MediaPipeConfig, logger zerolog.Logger) *MediaPipeEngine {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	return &MediaPipeEngine{
		config: config,
		logger: logger.With().Str("component", "mediapipe").Logger(),
	}
}

// Name returns "mediapipe".
func (e *MediaPipeEngine) Name() string { return "mediapipe" }

func delegateFor(b Backend) string {
	if b == BackendAccelerated {
		return "gpu"
	}
	return "cpu"
}

// UseBackend checks the service with the GPU or CPU delegate.
func (e *MediaPipeEngine) UseBackend(ctx context.Context, b Backend) error {
	python, script, err := e.locate()
	if err != nil {
		return err
	}

	delegate := delegateFor(b)
	checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	args := append([]string{script}, checkArgs(delegate)...)
	out, err := exec.CommandContext(checkCtx, python, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("check %s delegate: %w: %s", delegate, err, firstLine(out))
	}

	e.mu.Lock()
	e.delegate = delegate
	e.mu.Unlock()
	return nil
}

// NewDetector starts the service on the selected delegate.
func (e *MediaPipeEngine) NewDetector(ctx context.Context, config Config) (Detector, error) {
	python, script, err := e.locate()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	delegate := e.delegate
	e.mu.Unlock()
	if delegate == "" {
		return nil, errors.New("no backend selected")
	}

	d := &MediaPipeDetector{
		config:      config,
		python:      python,
		script:      script,
		delegate:    delegate,
		idleTimeout: e.config.IdleTimeout,
		logger:      e.logger,
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureStarted(); err != nil {
		return nil, err
	}
	return d, nil
}

func (e *MediaPipeEngine) locate() (python, script string, err error) {
	script = e.config.Script
	if script == "" {
		script = findMediaPipeScript()
	}
	if script == "" {
		return "", "", fmt.Errorf("mediapipe_service.py not found")
	}
	python = e.config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}
	return python, script, nil
}

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
type MediaPipeDetector struct {
	config      Config
	python      string
	script      string
	delegate    string
	idleTimeout time.Duration
	logger      zerolog.Logger

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// Detect analyzes a frame and returns detected hand landmarks in frame pixels.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		d.shutdown()
		return nil, fmt.Errorf("read response: %w", err)
	}

	hands, err := parseResponse([]byte(line), float64(frame.Cols()), float64(frame.Rows()), d.config.MaxHands)
	if err != nil {
		return nil, err
	}

	d.resetIdleTimer()
	return hands, nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	args := append([]string{d.script}, serviceArgs(d.config, d.delegate)...)
	d.cmd = exec.Command(d.python, args...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.logger.Debug().Int("pid", d.cmd.Process.Pid).Str("delegate", d.delegate).Msg("MediaPipe service started")

	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.idleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.logger.Debug().Msg("MediaPipe service idle, stopping")
		d.shutdown()
	})
}

// checkArgs asks the service to load the model on delegate and exit.
func checkArgs(delegate string) []string {
	return []string{"--probe", "--delegate", delegate}
}

// serviceArgs starts the service in request mode.
func serviceArgs(config Config, delegate string) []string {
	maxHands := config.MaxHands
	if maxHands <= 0 {
		maxHands = 1
	}
	model := config.Model
	if model == "" {
		model = "lite"
	}
	return []string{
		"--max-hands", strconv.Itoa(maxHands),
		"--model", model,
		"--delegate", delegate,
		"--min-confidence", strconv.FormatFloat(config.MinConfidence, 'f', 2, 64),
	}
}

func findMediaPipeScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/mediapipe_service.py",
		"../scripts/mediapipe_service.py",
		filepath.Join(execDir, "scripts/mediapipe_service.py"),
		filepath.Join(os.Getenv("HOME"), ".candlelight/scripts/mediapipe_service.py"),
	}
	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".candlelight/venv/bin/python"),
	}
	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}

// jsonHand is one hand as answered by the service, in normalized [0,1]
// image coordinates.
type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		lm.Points[i] = Point3D{
			X: h.Points[i].X,
			Y: h.Points[i].Y,
			Z: h.Points[i].Z,
		}
	}

	return lm
}

// parseResponse decodes one JSON line and scales coordinates to a frame of
// width w and height h. At most maxHands hands are returned when maxHands > 0.
func parseResponse(line []byte, w, h float64, maxHands int) ([]HandLandmarks, error) {
	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe service: %s", response.Error)
	}

	hands := response.Hands
	if maxHands > 0 && len(hands) > maxHands {
		hands = hands[:maxHands]
	}

	result := make([]HandLandmarks, 0, len(hands))
	for _, jh := range hands {
		if len(jh.Points) < NumLandmarks {
			continue
		}
		result = append(result, jh.toHandLandmarks().Scale(w, h))
	}
	return result, nil
}
