package hook

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/candlelight/internal/candle"
)

func TestEventFor(t *testing.T) {
	if got := EventFor(candle.Transition{From: candle.Lit, To: candle.Unlit}); got != EventExtinguished {
		t.Errorf("expected %q, got %q", EventExtinguished, got)
	}
	if got := EventFor(candle.Transition{From: candle.Unlit, To: candle.Lit}); got != EventRelit {
		t.Errorf("expected %q, got %q", EventRelit, got)
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	hooksDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "request.json")

	hookDir := writeManifest(t, hooksDir, Manifest{Name: "recorder", Executable: "run.sh", Events: []string{EventExtinguished}})
	script := "#!/bin/sh\ncat >> " + out + "\necho >> " + out + "\n"
	if err := os.WriteFile(filepath.Join(hookDir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(hooksDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	d := NewDispatcher(manager, NewExecutor(5*time.Second), "session-1", zerolog.Nop())
	at := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	d.Dispatch(candle.Transition{From: candle.Lit, To: candle.Unlit, At: at})
	d.Dispatch(candle.Transition{From: candle.Unlit, To: candle.Lit, At: at})
	d.Close()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}

	// Only the extinguished transition reaches this hook, so exactly one
	// request is recorded.
	var req Request
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&req); err != nil {
		t.Fatalf("invalid request written by hook: %v", err)
	}
	if req.Event != EventExtinguished || req.Session != "session-1" || req.State != "unlit" {
		t.Errorf("unexpected request: %+v", req)
	}
	if !req.At.Equal(at) {
		t.Errorf("expected at %v, got %v", at, req.At)
	}
	var extra Request
	if err := dec.Decode(&extra); err == nil {
		t.Errorf("hook ran for an event it does not subscribe to: %+v", extra)
	}
}

func TestDispatcher_AfterClose(t *testing.T) {
	d := NewDispatcher(NewManager(t.TempDir()), NewExecutor(time.Second), "s", zerolog.Nop())
	d.Close()
	d.Dispatch(candle.Transition{From: candle.Lit, To: candle.Unlit})
	d.Close()
}
