// Package config loads the candlelight configuration from YAML, environment
// variables and saved calibration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ayusman/candlelight/internal/audio"
	"github.com/ayusman/candlelight/internal/candle"
	"github.com/ayusman/candlelight/internal/capture"
	"github.com/ayusman/candlelight/internal/clock"
	"github.com/ayusman/candlelight/internal/detector"
	"github.com/ayusman/candlelight/internal/hook"
	"github.com/ayusman/candlelight/internal/layout"
	"github.com/ayusman/candlelight/internal/logging"
	"github.com/ayusman/candlelight/internal/server"
	"github.com/ayusman/candlelight/internal/sfx"
	"github.com/ayusman/candlelight/internal/store"
)

// EnvPrefix prefixes environment overrides, e.g. CANDLELIGHT_SERVER_ADDR.
const EnvPrefix = "CANDLELIGHT"

// Detector engines.
const (
	EngineMediaPipe = "mediapipe"
	EngineDNN       = "dnn"
)

// Config holds all application configuration.
type Config struct {
	Camera   capture.Config `mapstructure:"camera"`
	Detector DetectorConfig `mapstructure:"detector"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Candle   CandleConfig   `mapstructure:"candle"`
	Layout   LayoutConfig   `mapstructure:"layout"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Hooks    HooksConfig    `mapstructure:"hooks"`
	Sound    sfx.Config     `mapstructure:"sound"`
	Tray     TrayConfig     `mapstructure:"tray"`
	Log      logging.Config `mapstructure:"log"`
}

// DetectorConfig selects and tunes the hand landmark engine.
type DetectorConfig struct {
	Engine        string                   `mapstructure:"engine"`
	Hand          detector.Config          `mapstructure:",squash"`
	Retry         detector.RetryPolicy     `mapstructure:"retry"`
	MediaPipe     detector.MediaPipeConfig `mapstructure:"mediapipe"`
	DNN           detector.DNNConfig       `mapstructure:"dnn"`
	FrameInterval time.Duration            `mapstructure:"frame_interval"`
}

// AudioConfig configures microphone capture and blow detection.
type AudioConfig struct {
	Analyzer   audio.AnalyzerConfig `mapstructure:",squash"`
	SampleRate float64              `mapstructure:"sample_rate"`
}

// CandleConfig configures the candle state machine.
type CandleConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// LayoutConfig configures the display surface.
type LayoutConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	StaticDir    string        `mapstructure:"static_dir"`
	PushInterval time.Duration `mapstructure:"push_interval"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// HooksConfig configures transition hooks.
type HooksConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TrayConfig configures the system tray.
type TrayConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Dir returns the candlelight data directory, ~/.candlelight.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".candlelight"
	}
	return filepath.Join(home, ".candlelight")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Camera: capture.DefaultConfig(),
		Detector: DetectorConfig{
			Engine:        EngineMediaPipe,
			Hand:          detector.DefaultConfig(),
			Retry:         detector.DefaultRetryPolicy(),
			MediaPipe:     detector.MediaPipeConfig{IdleTimeout: detector.DefaultIdleTimeout},
			DNN:           detector.DefaultDNNConfig(),
			FrameInterval: clock.DefaultFrameInterval,
		},
		Audio: AudioConfig{
			Analyzer:   audio.DefaultAnalyzerConfig(),
			SampleRate: audio.DefaultSampleRate,
		},
		Candle: CandleConfig{Cooldown: candle.DefaultCooldown},
		Layout: LayoutConfig{SettleDelay: layout.DefaultSettleDelay},
		Server: ServerConfig{
			Addr:         "127.0.0.1:8080",
			PushInterval: server.DefaultPushInterval,
		},
		Store: StoreConfig{Path: filepath.Join(dir, "candlelight.db")},
		Hooks: HooksConfig{
			Enabled: true,
			Dir:     filepath.Join(dir, "hooks"),
			Timeout: hook.DefaultTimeout,
		},
		Sound: sfx.DefaultConfig(),
		Tray:  TrayConfig{Enabled: true},
		Log:   logging.DefaultConfig(),
	}
}

// Validate checks values that would make the candle misbehave.
func (c *Config) Validate() error {
	var errs []error
	if c.Detector.Engine != EngineMediaPipe && c.Detector.Engine != EngineDNN {
		errs = append(errs, fmt.Errorf("detector.engine must be %q or %q, got %q", EngineMediaPipe, EngineDNN, c.Detector.Engine))
	}
	if c.Detector.Hand.MaxHands < 1 {
		errs = append(errs, fmt.Errorf("detector.max_hands must be at least 1"))
	}
	if c.Detector.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("detector.retry.max_attempts must be at least 1"))
	}
	if t := c.Audio.Analyzer.Threshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("audio.threshold must be in (0, 1], got %v", t))
	}
	if c.Candle.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("candle.cooldown must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// ApplyCalibration overlays saved calibration on the file configuration.
func (c *Config) ApplyCalibration(cal store.Calibration) {
	if cal.BlowThreshold != nil {
		c.Audio.Analyzer.Threshold = *cal.BlowThreshold
	}
	if d, ok := cal.Cooldown(); ok {
		c.Candle.Cooldown = d
	}
}

// Loader reads the configuration and watches it for changes.
type Loader struct {
	v    *viper.Viper
	path string

	mu       sync.Mutex
	onChange []func(*Config)
}

// NewLoader creates a Loader. An empty path searches ~/.candlelight and the
// working directory for config.yaml.
func NewLoader(path string) *Loader {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, path: path}
}

// Load reads the configuration. A missing file in the search path is not an
// error; a missing explicit file is.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// File returns the config file in use, or "" when running on defaults.
func (l *Loader) File() string {
	return l.v.ConfigFileUsed()
}

// OnChange registers fn to receive the configuration after every valid
// change of the config file.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts watching the config file. It does nothing when no file was
// loaded. Invalid edits are reported to onError and otherwise ignored.
func (l *Loader) Watch(onError func(error)) {
	if l.File() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		l.notify(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) notify(cfg *Config) {
	l.mu.Lock()
	fns := append(([]func(*Config))(nil), l.onChange...)
	l.mu.Unlock()
	for _, fn := range fns {
		fn(cfg)
	}
}

// setDefaults registers every key so environment overrides apply to keys
// absent from the file.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("camera.device", c.Camera.DeviceID)
	v.SetDefault("camera.width", c.Camera.Width)
	v.SetDefault("camera.height", c.Camera.Height)
	v.SetDefault("camera.fps", c.Camera.FPS)
	v.SetDefault("camera.mirror", c.Camera.Mirror)

	v.SetDefault("detector.engine", c.Detector.Engine)
	v.SetDefault("detector.max_hands", c.Detector.Hand.MaxHands)
	v.SetDefault("detector.model", c.Detector.Hand.Model)
	v.SetDefault("detector.min_confidence", c.Detector.Hand.MinConfidence)
	v.SetDefault("detector.frame_interval", c.Detector.FrameInterval)
	v.SetDefault("detector.retry.max_attempts", c.Detector.Retry.MaxAttempts)
	v.SetDefault("detector.retry.initial_backoff", c.Detector.Retry.InitialBackoff)
	v.SetDefault("detector.retry.max_backoff", c.Detector.Retry.MaxBackoff)
	v.SetDefault("detector.retry.max_video_polls", c.Detector.Retry.MaxVideoPolls)
	v.SetDefault("detector.retry.video_poll_interval", c.Detector.Retry.VideoPollInterval)
	v.SetDefault("detector.mediapipe.python", c.Detector.MediaPipe.Python)
	v.SetDefault("detector.mediapipe.script", c.Detector.MediaPipe.Script)
	v.SetDefault("detector.mediapipe.idle_timeout", c.Detector.MediaPipe.IdleTimeout)
	v.SetDefault("detector.dnn.model_path", c.Detector.DNN.ModelPath)
	v.SetDefault("detector.dnn.input_size", c.Detector.DNN.InputSize)
	v.SetDefault("detector.dnn.landmark_output", c.Detector.DNN.LandmarkOutput)
	v.SetDefault("detector.dnn.presence_output", c.Detector.DNN.PresenceOutput)

	v.SetDefault("audio.window_size", c.Audio.Analyzer.WindowSize)
	v.SetDefault("audio.threshold", c.Audio.Analyzer.Threshold)
	v.SetDefault("audio.sample_rate", c.Audio.SampleRate)

	v.SetDefault("candle.cooldown", c.Candle.Cooldown)
	v.SetDefault("layout.settle_delay", c.Layout.SettleDelay)

	v.SetDefault("server.addr", c.Server.Addr)
	v.SetDefault("server.static_dir", c.Server.StaticDir)
	v.SetDefault("server.push_interval", c.Server.PushInterval)

	v.SetDefault("store.path", c.Store.Path)

	v.SetDefault("hooks.enabled", c.Hooks.Enabled)
	v.SetDefault("hooks.dir", c.Hooks.Dir)
	v.SetDefault("hooks.timeout", c.Hooks.Timeout)

	v.SetDefault("sound.enabled", c.Sound.Enabled)
	v.SetDefault("sound.volume", c.Sound.Volume)

	v.SetDefault("tray.enabled", c.Tray.Enabled)

	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.file", c.Log.File)
	v.SetDefault("log.console", c.Log.Console)
}
