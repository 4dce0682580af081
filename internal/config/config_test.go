package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/candlelight/internal/candle"
	"github.com/ayusman/candlelight/internal/detector"
	"github.com/ayusman/candlelight/internal/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, EngineMediaPipe, cfg.Detector.Engine)
	assert.Equal(t, detector.DefaultConfig(), cfg.Detector.Hand)
	assert.Equal(t, detector.DefaultRetryPolicy(), cfg.Detector.Retry)
	assert.Equal(t, candle.DefaultCooldown, cfg.Candle.Cooldown)
	assert.Equal(t, 0.05, cfg.Audio.Analyzer.Threshold)
	assert.Equal(t, 2048, cfg.Audio.Analyzer.WindowSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Layout.SettleDelay)
	assert.True(t, cfg.Camera.Mirror)
	assert.False(t, cfg.Sound.Enabled)
}

func TestLoader_File(t *testing.T) {
	path := writeConfig(t, `
detector:
  engine: dnn
  max_hands: 2
  retry:
    max_attempts: 3
    initial_backoff: 250ms
  dnn:
    model_path: /models/hand.onnx
audio:
  threshold: 0.1
candle:
  cooldown: 3s
server:
  addr: ":9090"
log:
  level: debug
`)

	l := NewLoader(path)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, path, l.File())
	assert.Equal(t, EngineDNN, cfg.Detector.Engine)
	assert.Equal(t, 2, cfg.Detector.Hand.MaxHands)
	assert.Equal(t, "lite", cfg.Detector.Hand.Model, "unset keys keep defaults")
	assert.Equal(t, 3, cfg.Detector.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Detector.Retry.InitialBackoff)
	assert.Equal(t, 5*time.Second, cfg.Detector.Retry.MaxBackoff)
	assert.Equal(t, "/models/hand.onnx", cfg.Detector.DNN.ModelPath)
	assert.Equal(t, 224, cfg.Detector.DNN.InputSize)
	assert.Equal(t, 0.1, cfg.Audio.Analyzer.Threshold)
	assert.Equal(t, 3*time.Second, cfg.Candle.Cooldown)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_Env(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("CANDLELIGHT_SERVER_ADDR", ":7070")
	t.Setenv("CANDLELIGHT_AUDIO_THRESHOLD", "0.2")
	t.Setenv("CANDLELIGHT_SOUND_ENABLED", "true")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 0.2, cfg.Audio.Analyzer.Threshold)
	assert.True(t, cfg.Sound.Enabled)
}

func TestLoader_MissingExplicitFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	assert.Error(t, err)
}

func TestLoader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "unknown engine", content: "detector:\n  engine: magic\n"},
		{name: "threshold too high", content: "audio:\n  threshold: 3\n"},
		{name: "negative cooldown", content: "candle:\n  cooldown: -1s\n"},
		{name: "log level", content: "log:\n  level: chatty\n"},
		{name: "bad duration", content: "candle:\n  cooldown: soon\n"},
		{name: "malformed yaml", content: "audio: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(writeConfig(t, tt.content)).Load()
			assert.Error(t, err)
		})
	}
}

func TestApplyCalibration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyCalibration(store.Calibration{})
	assert.Equal(t, DefaultConfig().Audio, cfg.Audio)
	assert.Equal(t, DefaultConfig().Candle, cfg.Candle)

	threshold := 0.12
	cooldown := int64(1500)
	cfg.ApplyCalibration(store.Calibration{BlowThreshold: &threshold, CooldownMS: &cooldown})
	assert.Equal(t, 0.12, cfg.Audio.Analyzer.Threshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.Candle.Cooldown)
}

func TestLoader_Watch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file watch test in short mode")
	}

	path := writeConfig(t, "log:\n  level: info\n")
	l := NewLoader(path)
	_, err := l.Load()
	require.NoError(t, err)

	var mu sync.Mutex
	var levels []string
	var errs []error
	l.OnChange(func(cfg *Config) {
		mu.Lock()
		levels = append(levels, cfg.Log.Level)
		mu.Unlock()
	})
	l.Watch(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(levels) > 0 && levels[len(levels)-1] == "debug"
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Empty(t, errs)
	mu.Unlock()
}
