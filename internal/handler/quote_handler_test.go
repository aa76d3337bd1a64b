package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Input validation happens before any service call, so these tests run with
// a nil service; full create/accept flows are covered in the service tests.

func newQuoteRouter() *chi.Mux {
	h := NewQuoteHandler(QuoteHandlerConfig{Logger: zap.NewNop()})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestQuoteCreate_RejectsMalformedBody(t *testing.T) {
	router := newQuoteRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/quote",
		strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestQuoteGet_RejectsInvalidID(t *testing.T) {
	router := newQuoteRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/quote/not-a-uuid", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid quote ID") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestQuoteAccept_RejectsInvalidID(t *testing.T) {
	router := newQuoteRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/quote/xyz/accept", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBookingCreate_RejectsMalformedBody(t *testing.T) {
	h := NewBookingHandler(BookingHandlerConfig{Logger: zap.NewNop()})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/booking",
		strings.NewReader("[]")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAvailability_RejectsBadDays(t *testing.T) {
	h := NewBookingHandler(BookingHandlerConfig{Logger: zap.NewNop()})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	for _, query := range []string{"?days=zero", "?days=-3", "?days=0"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/availability"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", query, rec.Code)
		}
	}
}
