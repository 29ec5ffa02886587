package forge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"picforge/ratelimit/forge/middleware/ratelimiter"
)

func newLimiter(t *testing.T) *ratelimiter.Limiter {
	t.Helper()

	backend := ratelimiter.NewMemoryBackend(context.Background(), 0)
	t.Cleanup(func() { backend.Close() })

	limiter, err := ratelimiter.NewLimiter(backend)
	if err != nil {
		t.Fatalf("NewLimiter returned error: %v", err)
	}
	return limiter
}

func TestRouter_HandleFunc(t *testing.T) {
	router := NewRouter(nil)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"OK"}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != `{"status":"OK"}` {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestRouter_GuardOnlyAppliesToGroup(t *testing.T) {
	router := NewRouter(zap.NewNop())
	limiter := newLimiter(t)
	policy := ratelimiter.Policy{Name: "generate", MaxRequests: 2, Window: time.Minute}

	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	router.Guard(limiter, policy).Method(http.MethodPost, "/api/generate", ok)
	router.HandleFunc("/products", ok)

	serve := func(method, path string) int {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.0.0.1:12345"
		w := httptest.NewRecorder()
		router.Handler().ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := serve(http.MethodPost, "/api/generate"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := serve(http.MethodPost, "/api/generate"); code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", code)
	}
	for i := 0; i < 5; i++ {
		if code := serve(http.MethodGet, "/products"); code != http.StatusOK {
			t.Errorf("unguarded request %d: expected 200, got %d", i+1, code)
		}
	}
}

func TestRouter_LogsRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := NewRouter(zap.New(core))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	router.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 request log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/health" {
		t.Errorf("expected path /health, got %v", fields["path"])
	}
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("expected status 418, got %v", fields["status"])
	}
}

func TestRouter_RecoversFromPanics(t *testing.T) {
	router := NewRouter(nil)
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}
