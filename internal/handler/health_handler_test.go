package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type stubHealthChecker struct{ err error }

func (s *stubHealthChecker) Ping(ctx context.Context) error { return s.err }

type stubCircuit struct{ open bool }

func (s *stubCircuit) IsCircuitOpen() bool { return s.open }

func newHealthServer(db error, circuits map[string]CircuitChecker) *chi.Mux {
	h := NewHealthHandler(HealthHandlerConfig{
		HealthChecker: &stubHealthChecker{err: db},
		Circuits:      circuits,
		Logger:        zap.NewNop(),
	})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHealth_AllHealthy(t *testing.T) {
	router := newHealthServer(nil, map[string]CircuitChecker{
		"hubspot":   &stubCircuit{},
		"anthropic": &stubCircuit{},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Checks["database"].Status != "healthy" || resp.Checks["hubspot"].Status != "healthy" {
		t.Errorf("checks = %+v", resp.Checks)
	}
}

func TestHealth_DatabaseDownIsUnhealthy(t *testing.T) {
	router := newHealthServer(errors.New("connection refused"), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestHealth_OpenCircuitDegrades(t *testing.T) {
	router := newHealthServer(nil, map[string]CircuitChecker{
		"anthropic": &stubCircuit{open: true},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Degraded still serves traffic.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || resp.Checks["anthropic"].Status != "degraded" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestReadinessAndLiveness(t *testing.T) {
	router := newHealthServer(nil, nil)

	for _, path := range []string{"/ready", "/live"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}

	down := newHealthServer(errors.New("connection refused"), nil)
	rec := httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready with db down: status = %d, want 503", rec.Code)
	}
}
