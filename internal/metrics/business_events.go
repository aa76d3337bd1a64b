// Package metrics provides metrics collection including business event logging.
package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/sanitize"
)

// BusinessEventLogger provides structured logging for business events.
// This complements Prometheus metrics by providing detailed, searchable logs
// for business intelligence, debugging, and compliance.
type BusinessEventLogger struct {
	logger *zap.Logger
}

// NewBusinessEventLogger creates a new business event logger.
func NewBusinessEventLogger(logger *zap.Logger) *BusinessEventLogger {
	return &BusinessEventLogger{
		logger: logger.Named("business_events"),
	}
}

// QuoteCreated logs when a quote is created.
func (l *BusinessEventLogger) QuoteCreated(ctx context.Context, quoteID uuid.UUID, quoteNumber, source, serviceKey string, total float64) {
	l.logger.Info("quote_created",
		zap.String("event_type", "quote.created"),
		zap.String("quote_id", quoteID.String()),
		zap.String("quote_number", quoteNumber),
		zap.String("source", source),
		zap.String("service_key", serviceKey),
		zap.Float64("total", total),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// QuoteAccepted logs when a customer accepts a quote.
func (l *BusinessEventLogger) QuoteAccepted(ctx context.Context, quoteID uuid.UUID, quoteNumber string, total float64) {
	l.logger.Info("quote_accepted",
		zap.String("event_type", "quote.accepted"),
		zap.String("quote_id", quoteID.String()),
		zap.String("quote_number", quoteNumber),
		zap.Float64("total", total),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// QuoteExpired logs when a quote lapses past its validity window.
func (l *BusinessEventLogger) QuoteExpired(ctx context.Context, quoteID uuid.UUID, quoteNumber string) {
	l.logger.Info("quote_expired",
		zap.String("event_type", "quote.expired"),
		zap.String("quote_id", quoteID.String()),
		zap.String("quote_number", quoteNumber),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// BookingCreated logs when a booking is scheduled.
func (l *BusinessEventLogger) BookingCreated(ctx context.Context, bookingID uuid.UUID, bookingNumber, scheduledDate, timeSlot string, fromQuote bool) {
	l.logger.Info("booking_created",
		zap.String("event_type", "booking.created"),
		zap.String("booking_id", bookingID.String()),
		zap.String("booking_number", bookingNumber),
		zap.String("scheduled_date", scheduledDate),
		zap.String("time_slot", timeSlot),
		zap.Bool("from_quote", fromQuote),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// PaymentReconciled logs when a Square payment is recorded against the CRM.
func (l *BusinessEventLogger) PaymentReconciled(ctx context.Context, paymentID, contactID, dealID string, amountCents int64) {
	l.logger.Info("payment_reconciled",
		zap.String("event_type", "payment.reconciled"),
		zap.String("payment_id", paymentID),
		zap.String("contact_id", contactID),
		zap.String("deal_id", dealID),
		zap.Int64("amount_cents", amountCents),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// RefundReconciled logs when a Square refund is recorded against the CRM.
func (l *BusinessEventLogger) RefundReconciled(ctx context.Context, refundID, paymentID, refundType string, amountCents int64) {
	l.logger.Info("refund_reconciled",
		zap.String("event_type", "refund.reconciled"),
		zap.String("refund_id", refundID),
		zap.String("payment_id", paymentID),
		zap.String("refund_type", refundType),
		zap.Int64("amount_cents", amountCents),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// CampaignRun logs the outcome of a scheduled campaign run.
func (l *BusinessEventLogger) CampaignRun(ctx context.Context, campaign string, processed int, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("event_type", "campaign.run"),
		zap.String("campaign", campaign),
		zap.Int("processed", processed),
		zap.Duration("duration", duration),
		zap.Time("timestamp", time.Now().UTC()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		l.logger.Warn("campaign_run_failed", fields...)
		return
	}
	l.logger.Info("campaign_run", fields...)
}

// ChatSessionStarted logs when a visitor opens a chat session.
func (l *BusinessEventLogger) ChatSessionStarted(ctx context.Context, sessionID uuid.UUID) {
	l.logger.Info("chat_session_started",
		zap.String("event_type", "chat.session_started"),
		zap.String("session_id", sessionID.String()),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// ChatHandoff logs when a chat session is escalated to a human.
func (l *BusinessEventLogger) ChatHandoff(ctx context.Context, sessionID uuid.UUID, messageCount int) {
	l.logger.Warn("chat_handoff",
		zap.String("event_type", "chat.handoff"),
		zap.String("session_id", sessionID.String()),
		zap.Int("message_count", messageCount),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// WebhookReceived logs when a payment webhook is received.
func (l *BusinessEventLogger) WebhookReceived(ctx context.Context, eventType, objectID string, valid bool) {
	level := l.logger.Info
	eventName := "webhook_received"
	if !valid {
		level = l.logger.Warn
		eventName = "webhook_invalid"
	}
	level(eventName,
		zap.String("event_type", "webhook.received"),
		zap.String("webhook_event_type", eventType),
		zap.String("object_id", objectID),
		zap.Bool("valid", valid),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// Unsubscribed logs when a contact opts out of marketing email.
func (l *BusinessEventLogger) Unsubscribed(ctx context.Context, email string) {
	l.logger.Info("unsubscribed",
		zap.String("event_type", "email.unsubscribed"),
		zap.String("email", sanitize.Email(email)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// APIError logs an API error for monitoring.
func (l *BusinessEventLogger) APIError(ctx context.Context, endpoint, method string, statusCode int, errorMsg string) {
	l.logger.Error("api_error",
		zap.String("event_type", "api.error"),
		zap.String("endpoint", endpoint),
		zap.String("method", method),
		zap.Int("status_code", statusCode),
		zap.String("error", errorMsg),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// ExternalAPICall logs calls to external APIs (HubSpot, Square, Anthropic).
func (l *BusinessEventLogger) ExternalAPICall(ctx context.Context, service, endpoint string, duration time.Duration, success bool, statusCode int) {
	level := l.logger.Info
	eventName := "external_api_call"
	if !success {
		level = l.logger.Warn
		eventName = "external_api_call_failed"
	}
	level(eventName,
		zap.String("event_type", "external_api.call"),
		zap.String("service", service),
		zap.String("endpoint", endpoint),
		zap.Duration("duration", duration),
		zap.Bool("success", success),
		zap.Int("status_code", statusCode),
		zap.Time("timestamp", time.Now().UTC()),
	)
}

// RateLimitExceeded logs when a rate limit is exceeded.
func (l *BusinessEventLogger) RateLimitExceeded(ctx context.Context, limiterType string, identifier string) {
	l.logger.Warn("rate_limit_exceeded",
		zap.String("event_type", "rate_limit.exceeded"),
		zap.String("limiter_type", limiterType),
		zap.String("identifier", sanitize.PartialMask(identifier, 2, 2)),
		zap.Time("timestamp", time.Now().UTC()),
	)
}
