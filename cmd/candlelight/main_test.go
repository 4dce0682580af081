package main

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/candlelight/internal/capture"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "candlelight dev\n", out.String())
}

func TestRootFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"addr", "no-tray"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	backends, _, err := cmd.Find([]string{"backends"})
	require.NoError(t, err)
	assert.Equal(t, "backends", backends.Name())
	assert.NotNil(t, backends.Flags().Lookup("timeout"))
}

func TestDisplayURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://127.0.0.1:8080/"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000/"},
		{"localhost:8080", "http://localhost:8080/"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, displayURL(tt.addr))
		})
	}
}

func TestFindWebDir(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	assert.Empty(t, findWebDir())
}

func TestReloadCamera(t *testing.T) {
	cam := capture.NewCamera(capture.DefaultConfig(), zerolog.Nop())

	cfg := capture.DefaultConfig()
	cfg.FPS = 15
	reloadCamera(cam, cfg, zerolog.Nop())
	assert.Equal(t, 15, cam.FPS())

	cfg.FPS = 0
	reloadCamera(cam, cfg, zerolog.Nop())
	assert.Equal(t, 15, cam.FPS(), "a missing rate keeps the current one")
}
