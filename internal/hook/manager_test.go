package hook

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir string, m Manifest) string {
	t.Helper()

	hookDir := filepath.Join(dir, m.Name)
	if err := os.MkdirAll(hookDir, 0755); err != nil {
		t.Fatalf("failed to create hook dir: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hookDir, ManifestFile), data, 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return hookDir
}

func TestManager_Discover(t *testing.T) {
	tmpDir := t.TempDir()
	hookDir := writeManifest(t, tmpDir, Manifest{
		Name:        "lights",
		Version:     "1.0.0",
		Description: "Dims the room lights",
		Executable:  "lights.sh",
		Events:      []string{EventExtinguished},
	})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	hooks := manager.List()
	if len(hooks) != 1 {
		t.Fatalf("expected 1 hook, got %d", len(hooks))
	}

	h := hooks[0]
	if h.Manifest.Name != "lights" {
		t.Errorf("expected hook name 'lights', got %q", h.Manifest.Name)
	}
	if h.Path != hookDir {
		t.Errorf("expected path %q, got %q", hookDir, h.Path)
	}
	if h.Executable != filepath.Join(hookDir, "lights.sh") {
		t.Errorf("expected executable in hook dir, got %q", h.Executable)
	}
}

func TestManager_Discover_SkipsInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, Manifest{Name: "valid", Executable: "run"})
	writeManifest(t, tmpDir, Manifest{Name: "no-executable"})

	broken := filepath.Join(tmpDir, "broken")
	if err := os.MkdirAll(broken, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(broken, ManifestFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "empty"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "stray-file"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	if got := len(manager.List()); got != 1 {
		t.Errorf("expected 1 hook, got %d", got)
	}
}

func TestManager_Discover_MissingDir(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "does-not-exist"))
	if err := manager.Discover(); err != nil {
		t.Errorf("Discover() on missing dir should succeed, got %v", err)
	}
	if len(manager.List()) != 0 {
		t.Error("expected no hooks")
	}
}

func TestManager_Get(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, Manifest{Name: "chime", Executable: "chime"})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	if _, err := manager.Get("chime"); err != nil {
		t.Errorf("Get() failed: %v", err)
	}
	if _, err := manager.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_ForEvent(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, Manifest{Name: "b-out", Executable: "x", Events: []string{EventExtinguished}})
	writeManifest(t, tmpDir, Manifest{Name: "c-lit", Executable: "x", Events: []string{EventRelit}})
	writeManifest(t, tmpDir, Manifest{Name: "a-all", Executable: "x"})

	manager := NewManager(tmpDir)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}

	tests := []struct {
		event string
		want  []string
	}{
		{event: EventExtinguished, want: []string{"a-all", "b-out"}},
		{event: EventRelit, want: []string{"a-all", "c-lit"}},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			hooks := manager.ForEvent(tt.event)
			if len(hooks) != len(tt.want) {
				t.Fatalf("expected %d hooks, got %d", len(tt.want), len(hooks))
			}
			for i, h := range hooks {
				if h.Manifest.Name != tt.want[i] {
					t.Errorf("hook %d: expected %q, got %q", i, tt.want[i], h.Manifest.Name)
				}
			}
		})
	}
}
