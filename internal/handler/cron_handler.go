package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/audit"
	"github.com/myhorsefarm/farmops/internal/clock"
	"github.com/myhorsefarm/farmops/internal/metrics"
	"github.com/myhorsefarm/farmops/internal/middleware"
)

// CampaignEngine runs the scheduled email campaigns.
type CampaignEngine interface {
	RunWelcomeSequence(ctx context.Context) ([]string, error)
	RunClientEngagement(ctx context.Context) ([]string, error)
	RunReviewRequest(ctx context.Context) ([]string, error)
	RunPreSeason(ctx context.Context) ([]string, error)
}

// CronHandler exposes the campaign runners to the external cron scheduler.
type CronHandler struct {
	campaigns CampaignEngine
	secret    string
	clock     clock.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
	events    *metrics.BusinessEventLogger
	audit     *audit.Logger
}

// CronHandlerConfig holds configuration for CronHandler.
type CronHandlerConfig struct {
	Campaigns CampaignEngine
	Secret    string
	Clock     clock.Clock
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Events    *metrics.BusinessEventLogger

	// Audit records aborted campaign runs. Optional.
	Audit *audit.Logger
}

// NewCronHandler creates a new CronHandler with all required dependencies.
func NewCronHandler(cfg CronHandlerConfig) *CronHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &CronHandler{
		campaigns: cfg.Campaigns,
		secret:    cfg.Secret,
		clock:     clk,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		events:    cfg.Events,
		audit:     cfg.Audit,
	}
}

// RegisterRoutes registers cron routes on the router.
func (h *CronHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/cron/welcome-sequence", h.runner("welcome-sequence", h.campaigns.RunWelcomeSequence))
	r.Get("/api/cron/client-engagement", h.runner("client-engagement", h.campaigns.RunClientEngagement))
	r.Get("/api/cron/review-request", h.runner("review-request", h.campaigns.RunReviewRequest))
	r.Get("/api/cron/pre-season", h.runner("pre-season", h.campaigns.RunPreSeason))
}

// cronResponse is the JSON result of a campaign run.
type cronResponse struct {
	OK        bool     `json:"ok"`
	Processed int      `json:"processed"`
	Results   []string `json:"results"`
	Error     string   `json:"error,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// runner wraps one campaign in auth, timing, and the shared response shape.
// A failed run still reports the results collected before the failure.
func (h *CronHandler) runner(name string, run func(ctx context.Context) ([]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r) {
			h.logger.Warn("cron request rejected", zap.String("campaign", name))
			APIError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		start := h.clock.Now()
		results, err := run(r.Context())
		elapsed := h.clock.Since(start)

		if h.metrics != nil {
			h.metrics.RecordCampaignRun(name, len(results), err)
		}
		if h.events != nil {
			h.events.CampaignRun(r.Context(), name, len(results), elapsed, err)
		}

		resp := cronResponse{
			OK:        err == nil,
			Processed: len(results),
			Results:   results,
			Timestamp: h.clock.NowUTC().Format(time.RFC3339),
		}
		if resp.Results == nil {
			resp.Results = []string{}
		}

		if err != nil {
			h.logger.Error("campaign run failed",
				zap.String("campaign", name),
				zap.Int("processed", len(results)),
				zap.Error(err),
			)
			// Runs only abort when the initial CRM query fails.
			if h.audit != nil {
				h.audit.APICallFailed(r.Context(), "hubspot", name,
					middleware.GetRequestID(r.Context()), err.Error())
			}
			resp.Error = err.Error()
			JSONWithRequest(w, r, http.StatusInternalServerError, resp)
			return
		}

		h.logger.Info("campaign run complete",
			zap.String("campaign", name),
			zap.Int("processed", len(results)),
			zap.Duration("duration", elapsed),
		)
		JSONWithRequest(w, r, http.StatusOK, resp)
	}
}

// authorized checks the bearer token in constant time.
func (h *CronHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	token := auth[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}
