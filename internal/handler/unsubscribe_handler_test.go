package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type stubUnsubVerifier struct {
	email string
	sig   string
}

func (s *stubUnsubVerifier) VerifyUnsubscribeSignature(email, sig string) bool {
	return email == s.email && sig == s.sig
}

type stubUnsubscriber struct {
	unsubscribed []string
	err          error
}

func (s *stubUnsubscriber) Unsubscribe(ctx context.Context, email string) error {
	if s.err != nil {
		return s.err
	}
	s.unsubscribed = append(s.unsubscribed, email)
	return nil
}

func newUnsubscribeServer(crm *stubUnsubscriber) *chi.Mux {
	h := NewUnsubscribeHandler(UnsubscribeHandlerConfig{
		Verifier: &stubUnsubVerifier{email: "dana@example.com", sig: "good-sig"},
		CRM:      crm,
		Logger:   zap.NewNop(),
	})
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestUnsubscribe_GetShowsConfirmation(t *testing.T) {
	crm := &stubUnsubscriber{}
	router := newUnsubscribeServer(crm)

	req := httptest.NewRequest(http.MethodGet,
		"/api/unsubscribe?email=dana%40example.com&sig=good-sig", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "dana@example.com") || !strings.Contains(body, "<form") {
		t.Errorf("confirmation page missing form: %s", body)
	}
	// GET never unsubscribes: link scanners follow GETs.
	if len(crm.unsubscribed) != 0 {
		t.Error("GET must not perform the unsubscribe")
	}
}

func TestUnsubscribe_GetInvalidSignature(t *testing.T) {
	router := newUnsubscribeServer(&stubUnsubscriber{})

	req := httptest.NewRequest(http.MethodGet,
		"/api/unsubscribe?email=dana%40example.com&sig=forged", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid unsubscribe link") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func postForm(router http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/unsubscribe",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUnsubscribe_PostUnsubscribes(t *testing.T) {
	crm := &stubUnsubscriber{}
	router := newUnsubscribeServer(crm)

	rec := postForm(router, url.Values{
		"email": {"dana@example.com"},
		"sig":   {"good-sig"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(crm.unsubscribed) != 1 || crm.unsubscribed[0] != "dana@example.com" {
		t.Errorf("unsubscribed = %v", crm.unsubscribed)
	}
	if !strings.Contains(rec.Body.String(), "unsubscribed") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestUnsubscribe_PostInvalidSignature(t *testing.T) {
	crm := &stubUnsubscriber{}
	router := newUnsubscribeServer(crm)

	rec := postForm(router, url.Values{
		"email": {"dana@example.com"},
		"sig":   {"forged"},
	})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(crm.unsubscribed) != 0 {
		t.Error("forged signature must not unsubscribe")
	}
}
