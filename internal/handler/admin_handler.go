package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/myhorsefarm/farmops/internal/audit"
	"github.com/myhorsefarm/farmops/internal/config"
	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
	"github.com/myhorsefarm/farmops/internal/middleware"
)

// AdminHandler handles owner-facing configuration endpoints: service pricing
// and the scheduling calendar.
type AdminHandler struct {
	services    domain.ServiceRepository
	schedules   domain.ScheduleRepository
	admin       *config.AdminConfig
	authLimiter *middleware.AuthRateLimiter
	audit       *audit.Logger
	logger      *zap.Logger
}

// AdminHandlerConfig holds configuration for AdminHandler.
type AdminHandlerConfig struct {
	Services  domain.ServiceRepository
	Schedules domain.ScheduleRepository
	Admin     *config.AdminConfig
	// AuthLimiter slows credential brute force. Optional.
	AuthLimiter *middleware.AuthRateLimiter
	// Audit records security events for config changes. Optional.
	Audit  *audit.Logger
	Logger *zap.Logger
}

// NewAdminHandler creates a new AdminHandler with all required dependencies.
func NewAdminHandler(cfg AdminHandlerConfig) *AdminHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &AdminHandler{
		services:    cfg.Services,
		schedules:   cfg.Schedules,
		admin:       cfg.Admin,
		authLimiter: cfg.AuthLimiter,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
	}
}

// RegisterRoutes registers admin routes on the router.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Put("/pricing/{key}", h.HandleUpdatePricing)
		r.Put("/schedule", h.HandleUpdateSchedule)
	})
}

// requireAdmin authenticates requests with HTTP Basic auth against the
// configured bcrypt hash.
func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || h.admin == nil || h.admin.PasswordHash == "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			APIError(w, http.StatusUnauthorized, "Authentication required")
			return
		}

		ip := clientIP(r)
		requestID := middleware.GetRequestID(r.Context())
		if h.authLimiter != nil && !h.authLimiter.Check(ip, username) {
			if h.audit != nil {
				h.audit.AdminAuthLockout(r.Context(), username, ip, requestID)
			}
			APIError(w, http.StatusTooManyRequests, "Too many failed attempts, try again later")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(password)); err != nil {
			h.logger.Warn("admin authentication failed", zap.String("path", r.URL.Path))
			if h.audit != nil {
				h.audit.AdminAuthFailure(r.Context(), username, ip, r.UserAgent(), requestID, "invalid password")
			}
			APIError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		if h.authLimiter != nil {
			h.authLimiter.RecordSuccess(ip, username)
		}
		if h.audit != nil {
			h.audit.AdminAuthSuccess(r.Context(), username, ip, r.UserAgent(), requestID)
		}
		next.ServeHTTP(w, r)
	})
}

// pricingUpdateRequest carries a partial pricing update; omitted fields keep
// their current values.
type pricingUpdateRequest struct {
	BaseRate      *float64 `json:"base_rate"`
	MinimumCharge *float64 `json:"minimum_charge"`
}

// HandleUpdatePricing updates one service's rates.
func (h *AdminHandler) HandleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req pricingUpdateRequest
	if err := DecodeJSON(w, r, &req, maxQuoteBodyBytes); err != nil {
		APIError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.BaseRate == nil && req.MinimumCharge == nil {
		APIError(w, http.StatusBadRequest, "base_rate or minimum_charge is required")
		return
	}
	if (req.BaseRate != nil && *req.BaseRate < 0) || (req.MinimumCharge != nil && *req.MinimumCharge < 0) {
		APIError(w, http.StatusBadRequest, "rates must not be negative")
		return
	}

	svc, err := h.services.GetByKey(r.Context(), key)
	if err != nil {
		DomainError(w, r, h.logger, err)
		return
	}

	baseRate := svc.BaseRate
	if req.BaseRate != nil {
		baseRate = *req.BaseRate
	}
	minimumCharge := svc.MinimumCharge
	if req.MinimumCharge != nil {
		minimumCharge = *req.MinimumCharge
	}

	if err := h.services.UpdatePricing(r.Context(), key, baseRate, minimumCharge); err != nil {
		DomainError(w, r, h.logger, err)
		return
	}

	h.logger.Info("service pricing updated",
		zap.String("service_key", key),
		zap.Float64("base_rate", baseRate),
		zap.Float64("minimum_charge", minimumCharge),
	)
	if h.audit != nil {
		username, _, _ := r.BasicAuth()
		h.audit.PricingChanged(r.Context(), username, key, clientIP(r),
			middleware.GetRequestID(r.Context()), baseRate, minimumCharge)
	}

	svc.BaseRate = baseRate
	svc.MinimumCharge = minimumCharge
	JSONWithRequest(w, r, http.StatusOK, svc)
}

// scheduleUpdateRequest carries a partial schedule update; omitted fields
// keep their current values.
type scheduleUpdateRequest struct {
	MaxJobsPerDay *int      `json:"max_jobs_per_day"`
	WorkDays      *[]int    `json:"work_days"`
	BlockedDates  *[]string `json:"blocked_dates"`
}

// HandleUpdateSchedule updates the scheduling calendar settings.
func (h *AdminHandler) HandleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleUpdateRequest
	if err := DecodeJSON(w, r, &req, maxQuoteBodyBytes); err != nil {
		APIError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := h.schedules.Get(r.Context())
	if err != nil {
		if !apperrors.IsNotFound(err) {
			DomainError(w, r, h.logger, err)
			return
		}
		settings = domain.DefaultScheduleSettings()
	}

	if req.MaxJobsPerDay != nil {
		if *req.MaxJobsPerDay < 1 {
			APIError(w, http.StatusBadRequest, "max_jobs_per_day must be at least 1")
			return
		}
		settings.MaxJobsPerDay = *req.MaxJobsPerDay
	}
	if req.WorkDays != nil {
		days := dedupeDays(*req.WorkDays)
		for _, d := range days {
			if d < 0 || d > 6 {
				APIError(w, http.StatusBadRequest, "work_days must contain values 0 through 6")
				return
			}
		}
		settings.WorkDays = days
	}
	if req.BlockedDates != nil {
		for _, date := range *req.BlockedDates {
			if !validISODate(date) {
				APIError(w, http.StatusBadRequest, "blocked_dates must use YYYY-MM-DD")
				return
			}
		}
		settings.BlockedDates = *req.BlockedDates
	}

	if err := h.schedules.Update(r.Context(), settings); err != nil {
		DomainError(w, r, h.logger, err)
		return
	}

	h.logger.Info("schedule settings updated",
		zap.Int("max_jobs_per_day", settings.MaxJobsPerDay),
		zap.Ints("work_days", settings.WorkDays),
		zap.Int("blocked_dates", len(settings.BlockedDates)),
	)
	if h.audit != nil {
		username, _, _ := r.BasicAuth()
		h.audit.ScheduleChanged(r.Context(), username, clientIP(r),
			middleware.GetRequestID(r.Context()), map[string]interface{}{
				"max_jobs_per_day": settings.MaxJobsPerDay,
				"work_days":        settings.WorkDays,
				"blocked_dates":    len(settings.BlockedDates),
			})
	}
	JSONWithRequest(w, r, http.StatusOK, settings)
}

func validISODate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

func dedupeDays(days []int) []int {
	seen := make(map[int]bool, len(days))
	var out []int
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}
