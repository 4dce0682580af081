package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/audio"
	"github.com/ayusman/candlelight/internal/capture"
	"github.com/ayusman/candlelight/internal/clock"
	"github.com/ayusman/candlelight/internal/config"
	"github.com/ayusman/candlelight/internal/detector"
	"github.com/ayusman/candlelight/internal/hook"
	"github.com/ayusman/candlelight/internal/layout"
	"github.com/ayusman/candlelight/internal/logging"
	"github.com/ayusman/candlelight/internal/server"
	"github.com/ayusman/candlelight/internal/session"
	"github.com/ayusman/candlelight/internal/sfx"
	"github.com/ayusman/candlelight/internal/store"
	"github.com/ayusman/candlelight/internal/tray"
)

func run(ctx context.Context, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(opts.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.noTray {
		cfg.Tray.Enabled = false
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}

	logger, logCloser, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if f := loader.File(); f != "" {
		logger.Info().Str("file", f).Msg("Loaded config")
	}
	loader.OnChange(func(c *config.Config) {
		if err := logging.SetLevel(c.Log.Level); err != nil {
			logger.Warn().Err(err).Msg("Ignoring log level")
			return
		}
		logger.Info().Str("level", c.Log.Level).Msg("Config reloaded")
	})
	loader.Watch(func(err error) {
		logger.Warn().Err(err).Msg("Ignoring invalid config change")
	})

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	cal, err := st.Settings().Calibration()
	if err != nil {
		logger.Warn().Err(err).Msg("Ignoring saved calibration")
	} else {
		cfg.ApplyCalibration(cal)
	}

	recorder := capture.NewRecorder(capture.NewCamera(cfg.Camera, logger))
	loader.OnChange(func(c *config.Config) {
		reloadCamera(recorder, c.Camera, logger)
	})
	mic := audio.NewPortAudioMicrophone(cfg.Audio.SampleRate, cfg.Audio.Analyzer.WindowSize, logger)

	sess := session.New(session.Config{
		Camera:        recorder,
		Microphone:    mic,
		Engine:        newEngine(cfg, logger),
		Surface:       layout.NewSurface(cfg.Layout.SettleDelay, clock.Real{}),
		Detector:      cfg.Detector.Hand,
		Retry:         cfg.Detector.Retry,
		Audio:         cfg.Audio.Analyzer,
		Cooldown:      cfg.Candle.Cooldown,
		FrameInterval: cfg.Detector.FrameInterval,
		Logger:        logger,
	})
	defer sess.Close()

	// The session stops producing transitions before the queue is drained.
	history := store.NewHistoryWriter(st.History(), sess.ID(), 0, logger)
	defer func() {
		sess.Close()
		history.Close()
	}()
	sess.OnTransition(history.Record)

	if cfg.Hooks.Enabled {
		dispatcher, err := newDispatcher(cfg, sess.ID(), logger)
		if err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Hooks.Dir).Msg("Hooks disabled")
		} else {
			defer dispatcher.Close()
			sess.OnTransition(dispatcher.Dispatch)
		}
	}

	if cfg.Sound.Enabled {
		spk := sfx.NewSpeaker()
		if err := spk.Init(); err != nil {
			logger.Warn().Err(err).Msg("Sound disabled")
		} else {
			defer spk.Close()
			sess.OnTransition(sfx.NewPlayer(cfg.Sound, spk, logger).OnTransition)
		}
	}

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.Info().Str("dir", staticDir).Msg("Serving static files")
	}

	srv := server.New(server.Config{
		StaticDir:    staticDir,
		Store:        st,
		Session:      sess,
		Frames:       recorder,
		PushInterval: cfg.Server.PushInterval,
		Logger:       logger,
	})
	defer srv.Close()

	if err := sess.Start(ctx); err != nil {
		return err
	}

	var serveErr error
	served := make(chan struct{})
	go func() {
		defer close(served)
		serveErr = srv.ListenAndServe(ctx, cfg.Server.Addr)
		stop()
	}()

	if cfg.Tray.Enabled {
		t := tray.New()
		t.OnRelight(sess.Relight)
		t.OnOpen(func() {
			if err := openBrowser(displayURL(cfg.Server.Addr)); err != nil {
				logger.Warn().Err(err).Msg("Failed to open display")
			}
		})
		t.OnQuit(stop)
		sess.OnTransition(t.OnTransition)

		go func() {
			<-ctx.Done()
			t.Quit()
		}()
		t.Run()
		stop()
	}

	<-served
	logger.Info().Msg("Shutting down")
	return serveErr
}

// reloadCamera applies a changed capture rate to the running camera.
func reloadCamera(cam capture.Camera, c capture.Config, logger zerolog.Logger) {
	if c.FPS <= 0 || c.FPS == cam.FPS() {
		return
	}
	cam.SetFPS(c.FPS)
	logger.Info().Int("fps", cam.FPS()).Msg("Camera rate changed")
}

func newEngine(cfg *config.Config, logger zerolog.Logger) detector.Engine {
	if cfg.Detector.Engine == config.EngineDNN {
		return detector.NewDNNEngine(cfg.Detector.DNN, logger)
	}
	return detector.NewMediaPipeEngine(cfg.Detector.MediaPipe, logger)
}

func newDispatcher(cfg *config.Config, sessionID string, logger zerolog.Logger) (*hook.Dispatcher, error) {
	manager := hook.NewManager(cfg.Hooks.Dir)
	if err := manager.Discover(); err != nil {
		return nil, err
	}
	logger.Info().Int("hooks", len(manager.List())).Str("dir", manager.Dir()).Msg("Hooks discovered")
	return hook.NewDispatcher(manager, hook.NewExecutor(cfg.Hooks.Timeout), sessionID, logger), nil
}

// displayURL turns a listen address into a browsable URL.
func displayURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.candlelight/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeWebDir := filepath.Join(config.Dir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}
