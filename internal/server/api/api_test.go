package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/candlelight/internal/candle"
	"github.com/ayusman/candlelight/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingsHandler(t *testing.T) {
	h := NewSettingsHandler(newTestStore(t))

	t.Run("empty settings", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "{}" {
			t.Errorf("expected empty object, got %s", got)
		}
	})

	t.Run("update and read back", func(t *testing.T) {
		body := bytes.NewBufferString(`{"blow_threshold": 0.1, "cooldown_ms": 2500}`)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/settings", body))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}

		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/settings", nil))

		var c store.Calibration
		if err := json.NewDecoder(rec.Body).Decode(&c); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if c.BlowThreshold == nil || *c.BlowThreshold != 0.1 {
			t.Errorf("expected threshold 0.1, got %v", c.BlowThreshold)
		}
		if c.CooldownMS == nil || *c.CooldownMS != 2500 {
			t.Errorf("expected cooldown 2500, got %v", c.CooldownMS)
		}
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		bodies := []string{
			`not json`,
			`{"blow_threshold": 2}`,
			`{"cooldown_ms": -5}`,
			`{"volume": 3}`,
		}
		for _, b := range bodies {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/settings", bytes.NewBufferString(b)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("body %s: expected status %d, got %d", b, http.StatusBadRequest, rec.Code)
			}
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/settings", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestHistoryHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewHistoryHandler(s)

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/api/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp historyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Transitions == nil || len(resp.Transitions) != 0 {
		t.Errorf("expected empty list, got %v", resp.Transitions)
	}

	at := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		tr := candle.Transition{From: candle.Lit, To: candle.Unlit, At: at.Add(time.Duration(i) * time.Second)}
		if err := s.History().Record("s1", tr); err != nil {
			t.Fatal(err)
		}
	}

	rec = get("/api/history?limit=2")
	resp = historyResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Transitions) != 2 {
		t.Errorf("expected 2 transitions, got %d", len(resp.Transitions))
	}

	if resp.Extinguished != nil {
		t.Errorf("extinguished count only applies to a session, got %d", *resp.Extinguished)
	}

	if err := s.History().Record("s2", candle.Transition{From: candle.Lit, To: candle.Unlit, At: at}); err != nil {
		t.Fatal(err)
	}
	rec = get("/api/history?session=s1")
	resp = historyResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Transitions) != 3 {
		t.Errorf("expected 3 transitions for s1, got %d", len(resp.Transitions))
	}
	for _, tr := range resp.Transitions {
		if tr.Session != "s1" {
			t.Errorf("unexpected session %q in filtered history", tr.Session)
		}
	}
	if resp.Extinguished == nil || *resp.Extinguished != 3 {
		t.Errorf("expected 3 blow-outs for s1, got %v", resp.Extinguished)
	}

	if rec := get("/api/history?limit=zero"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
