package detector

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const epsilon = 1e-9

func TestHandLandmarks_Fingertip(t *testing.T) {
	hand := PointingHand(320, 120)

	tip := hand.Fingertip()
	if tip.X != 320 || tip.Y != 120 {
		t.Errorf("expected fingertip at (320, 120), got (%f, %f)", tip.X, tip.Y)
	}
	if hand.Points[IndexTip] != tip {
		t.Error("fingertip should be landmark 8")
	}
}

func TestHandLandmarks_Scale(t *testing.T) {
	hand := HandLandmarks{Handedness: "Left", Score: 0.8}
	for i := 0; i < NumLandmarks; i++ {
		hand.Points[i] = Point3D{X: 0.5, Y: 0.25, Z: 0.1}
	}

	scaled := hand.Scale(640, 480)

	for i, p := range scaled.Points {
		if math.Abs(p.X-320) > epsilon || math.Abs(p.Y-120) > epsilon {
			t.Errorf("point %d: expected (320, 120), got (%f, %f)", i, p.X, p.Y)
		}
		if p.Z != 0.1 {
			t.Errorf("point %d: Z should not be scaled, got %f", i, p.Z)
		}
	}
	if scaled.Handedness != "Left" || scaled.Score != 0.8 {
		t.Error("handedness and score should be preserved")
	}
	if hand.Points[0].X != 0.5 {
		t.Error("Scale should not modify the receiver")
	}
}

func TestPointingHand(t *testing.T) {
	hand := PointingHand(200, 100)

	t.Run("index finger is raised", func(t *testing.T) {
		if hand.Points[IndexTip].Y >= hand.Points[IndexMCP].Y {
			t.Error("index tip should be above index MCP (lower Y value)")
		}
	})

	t.Run("fingertip is the topmost landmark", func(t *testing.T) {
		for i, p := range hand.Points {
			if i != IndexTip && p.Y <= hand.Points[IndexTip].Y {
				t.Errorf("landmark %d at Y=%f is not below the fingertip", i, p.Y)
			}
		}
	})
}

func TestSafeDetect(t *testing.T) {
	t.Run("nil detector", func(t *testing.T) {
		_, err := SafeDetect(nil, nil)
		if !errors.Is(err, ErrNotReady) {
			t.Errorf("expected ErrNotReady, got %v", err)
		}
	})

	t.Run("passes hands through", func(t *testing.T) {
		d := NewMockDetector()
		d.SetHands([]HandLandmarks{PointingHand(10, 20)})

		hands, err := SafeDetect(d, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(hands))
		}
	})

	t.Run("passes errors through", func(t *testing.T) {
		d := NewMockDetector()
		wantErr := errors.New("inference failed")
		d.SetError(wantErr)

		_, err := SafeDetect(d, nil)
		if !errors.Is(err, wantErr) {
			t.Errorf("expected %v, got %v", wantErr, err)
		}
	})

	t.Run("recovers from panics", func(t *testing.T) {
		d := NewMockDetector()
		d.SetPanic(true)

		hands, err := SafeDetect(d, nil)
		if err == nil {
			t.Fatal("expected error from panicking detector")
		}
		if hands != nil {
			t.Errorf("expected nil hands, got %v", hands)
		}
		if !strings.Contains(err.Error(), "panic") {
			t.Errorf("expected panic in error, got %v", err)
		}
	})
}

func TestMockDetector_Queue(t *testing.T) {
	d := NewMockDetector()
	d.SetHands([]HandLandmarks{PointingHand(1, 1)})
	d.Enqueue(nil, nil)
	d.Enqueue(nil, errors.New("boom"))

	if hands, err := d.Detect(nil); err != nil || len(hands) != 0 {
		t.Errorf("first call: expected no hands and no error, got %d, %v", len(hands), err)
	}
	if _, err := d.Detect(nil); err == nil {
		t.Error("second call: expected queued error")
	}
	if hands, err := d.Detect(nil); err != nil || len(hands) != 1 {
		t.Errorf("third call: expected default hand, got %d, %v", len(hands), err)
	}
	if d.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", d.Calls())
	}
}

func TestMockEngine(t *testing.T) {
	ctx := context.Background()
	e := NewMockEngine(nil)
	e.SetUnavailable(BackendAccelerated)

	if err := e.UseBackend(ctx, BackendAccelerated); err == nil {
		t.Error("expected accelerated backend to fail")
	}
	if err := e.UseBackend(ctx, BackendCPU); err != nil {
		t.Errorf("expected cpu backend to succeed, got %v", err)
	}
	if e.Active() != BackendCPU {
		t.Errorf("expected active backend cpu, got %s", e.Active())
	}

	e.FailCreates(1)
	if _, err := e.NewDetector(ctx, DefaultConfig()); err == nil {
		t.Error("expected scripted creation failure")
	}
	if _, err := e.NewDetector(ctx, DefaultConfig()); err != nil {
		t.Errorf("expected creation to succeed, got %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxHands != 1 {
		t.Errorf("expected MaxHands 1, got %d", cfg.MaxHands)
	}
	if cfg.Model != "lite" {
		t.Errorf("expected lite model, got %s", cfg.Model)
	}
}

func TestParseResponse(t *testing.T) {
	points := func(x, y float64) string {
		var b strings.Builder
		for i := 0; i < NumLandmarks; i++ {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(`{"x":` + ftoa(x) + `,"y":` + ftoa(y) + `,"z":0}`)
		}
		return "[" + b.String() + "]"
	}

	t.Run("scales to frame pixels", func(t *testing.T) {
		line := `{"hands":[{"points":` + points(0.5, 0.25) + `,"handedness":"Right","score":0.9}]}`

		hands, err := parseResponse([]byte(line), 640, 480, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hands) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(hands))
		}
		tip := hands[0].Fingertip()
		if math.Abs(tip.X-320) > epsilon || math.Abs(tip.Y-120) > epsilon {
			t.Errorf("expected fingertip (320, 120), got (%f, %f)", tip.X, tip.Y)
		}
	})

	t.Run("limits hand count", func(t *testing.T) {
		hand := `{"points":` + points(0.1, 0.1) + `,"handedness":"Left","score":0.9}`
		line := `{"hands":[` + hand + `,` + hand + `]}`

		hands, err := parseResponse([]byte(line), 100, 100, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(hands) != 1 {
			t.Errorf("expected 1 hand, got %d", len(hands))
		}
	})

	t.Run("no hands", func(t *testing.T) {
		hands, err := parseResponse([]byte(`{"hands":[]}`), 100, 100, 1)
		if err != nil || len(hands) != 0 {
			t.Errorf("expected empty result, got %d, %v", len(hands), err)
		}
	})

	t.Run("skips incomplete hands", func(t *testing.T) {
		line := `{"hands":[{"points":[{"x":0.1,"y":0.1,"z":0}],"score":0.9}]}`
		hands, err := parseResponse([]byte(line), 100, 100, 1)
		if err != nil || len(hands) != 0 {
			t.Errorf("expected empty result, got %d, %v", len(hands), err)
		}
	})

	t.Run("service error", func(t *testing.T) {
		if _, err := parseResponse([]byte(`{"error":"model not loaded"}`), 100, 100, 1); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := parseResponse([]byte(`not json`), 100, 100, 1); err == nil {
			t.Error("expected error")
		}
	})
}

func TestDNNEngine_MissingModel(t *testing.T) {
	e := NewDNNEngine(DNNConfig{ModelPath: "testdata/does-not-exist.onnx"}, zerolog.Nop())

	for _, b := range []Backend{BackendAccelerated, BackendCPU} {
		if err := e.UseBackend(context.Background(), b); err == nil {
			t.Errorf("expected %s backend to fail without a model", b)
		}
	}
	if _, err := e.NewDetector(context.Background(), DefaultConfig()); err == nil {
		t.Error("expected NewDetector to fail before a backend is selected")
	}
}

func TestMediaPipeEngine_NewDetectorWithoutBackend(t *testing.T) {
	e := NewMediaPipeEngine(MediaPipeConfig{Script: "service.py", Python: "python3"}, zerolog.Nop())
	if _, err := e.NewDetector(context.Background(), DefaultConfig()); err == nil {
		t.Error("expected error before a backend is selected")
	}
}

func TestServiceArgs(t *testing.T) {
	got := serviceArgs(Config{MaxHands: 2, Model: "full", MinConfidence: 0.5}, "gpu")
	want := []string{"--max-hands", "2", "--model", "full", "--delegate", "gpu", "--min-confidence", "0.50"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("serviceArgs() = %v, want %v", got, want)
	}

	got = serviceArgs(Config{}, "cpu")
	want = []string{"--max-hands", "1", "--model", "lite", "--delegate", "cpu", "--min-confidence", "0.00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("serviceArgs() with zero config = %v, want %v", got, want)
	}
}

func TestMediaPipeEngine_UseBackend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	// A service that only supports the CPU delegate.
	script := filepath.Join(t.TempDir(), "mediapipe_service.py")
	body := "if [ \"$1\" = --probe ] && [ \"$2\" = --delegate ] && [ \"$3\" = cpu ]; then exit 0; fi\necho \"no gpu delegate\"\nexit 1\n"
	if err := os.WriteFile(script, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	e := NewMediaPipeEngine(MediaPipeConfig{Python: "/bin/sh", Script: script}, zerolog.Nop())

	err := e.UseBackend(context.Background(), BackendAccelerated)
	if err == nil {
		t.Fatal("expected the gpu backend to fail")
	}
	if !strings.Contains(err.Error(), "no gpu delegate") {
		t.Errorf("expected the service's reason in the error, got %v", err)
	}
	if err := e.UseBackend(context.Background(), BackendCPU); err != nil {
		t.Errorf("cpu backend failed: %v", err)
	}
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
