// Package audit provides security event logging for compliance and forensics.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType represents the type of audit event.
type EventType string

// Security audit event types.
const (
	// Authentication events
	EventAdminAuthSuccess EventType = "auth.admin.success"
	EventAdminAuthFailure EventType = "auth.admin.failure"
	EventAdminAuthLockout EventType = "auth.admin.lockout"

	// Authorization events
	EventRateLimitExceeded EventType = "authz.ratelimit.exceeded"

	// Webhook events
	EventWebhookReceived       EventType = "webhook.received"
	EventWebhookValidationFail EventType = "webhook.validation.failed"

	// Business events
	EventQuoteGenerated EventType = "quote.generated"
	EventBookingCreated EventType = "booking.created"
	EventUnsubscribe    EventType = "email.unsubscribe"

	// API events
	EventAPICallFailed EventType = "api.call.failed"

	// System events
	EventServiceStarted  EventType = "system.started"
	EventServiceStopping EventType = "system.stopping"

	// Admin operations
	EventAdminPricingChanged  EventType = "admin.pricing.changed"
	EventAdminScheduleChanged EventType = "admin.schedule.changed"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event represents an audit log entry.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type of event (e.g., "auth.admin.success").
	Type EventType `json:"type"`

	// Severity level.
	Severity Severity `json:"severity"`

	// Actor identification (who performed the action).
	ActorID   string `json:"actor_id,omitempty"`   // Admin username if authenticated
	ActorType string `json:"actor_type,omitempty"` // "admin", "system", "webhook", "client"
	ActorName string `json:"actor_name,omitempty"` // Human-readable name

	// Source of the event.
	SourceIP  string `json:"source_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"` // Correlation ID

	// Resource being accessed/modified.
	ResourceType string `json:"resource_type,omitempty"` // "quote", "booking", "service"
	ResourceID   string `json:"resource_id,omitempty"`

	// Action details.
	Action  string `json:"action"`           // Brief action description
	Outcome string `json:"outcome"`          // "success", "failure", "denied"
	Reason  string `json:"reason,omitempty"` // Failure/denial reason

	// Additional context.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Logger provides audit logging capabilities.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new audit logger.
func NewLogger(baseLogger *zap.Logger) *Logger {
	return &Logger{
		logger: baseLogger.Named("audit"),
	}
}

// Log records an audit event.
func (l *Logger) Log(ctx context.Context, event *Event) {
	// Ensure ID and timestamp are set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Get severity-appropriate log level
	level := zap.InfoLevel
	switch event.Severity {
	case SeverityWarning:
		level = zap.WarnLevel
	case SeverityError:
		level = zap.ErrorLevel
	case SeverityCritical:
		level = zap.ErrorLevel // Critical also uses error level
	}

	// Convert metadata to JSON for logging
	var metadataJSON []byte
	if len(event.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			// If metadata can't be marshaled, log the error but continue
			metadataJSON = []byte(`{"error":"failed to marshal metadata"}`)
		}
	}

	// Log the event with structured fields
	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.Time("audit_timestamp", event.Timestamp),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("action", event.Action),
		zap.String("outcome", event.Outcome),
	}

	// Add optional fields
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.ActorType != "" {
		fields = append(fields, zap.String("actor_type", event.ActorType))
	}
	if event.ActorName != "" {
		fields = append(fields, zap.String("actor_name", event.ActorName))
	}
	if event.SourceIP != "" {
		fields = append(fields, zap.String("source_ip", event.SourceIP))
	}
	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.ResourceType != "" {
		fields = append(fields, zap.String("resource_type", event.ResourceType))
	}
	if event.ResourceID != "" {
		fields = append(fields, zap.String("resource_id", event.ResourceID))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}
	if len(metadataJSON) > 0 {
		fields = append(fields, zap.ByteString("metadata", metadataJSON))
	}

	// Log at appropriate level
	if ce := l.logger.Check(level, "security audit event"); ce != nil {
		ce.Write(fields...)
	}
}

// Helper methods for common audit scenarios

// AdminAuthSuccess logs a successful admin authentication.
func (l *Logger) AdminAuthSuccess(ctx context.Context, username, ip, userAgent, requestID string) {
	l.Log(ctx, &Event{
		Type:      EventAdminAuthSuccess,
		Severity:  SeverityInfo,
		ActorID:   username,
		ActorType: "admin",
		SourceIP:  ip,
		UserAgent: userAgent,
		RequestID: requestID,
		Action:    "admin authentication",
		Outcome:   "success",
	})
}

// AdminAuthFailure logs a failed admin authentication attempt.
func (l *Logger) AdminAuthFailure(ctx context.Context, username, ip, userAgent, requestID, reason string) {
	l.Log(ctx, &Event{
		Type:      EventAdminAuthFailure,
		Severity:  SeverityWarning,
		ActorID:   username,
		ActorType: "admin",
		SourceIP:  ip,
		UserAgent: userAgent,
		RequestID: requestID,
		Action:    "admin authentication",
		Outcome:   "failure",
		Reason:    reason,
	})
}

// AdminAuthLockout logs an admin login lockout after repeated failures.
func (l *Logger) AdminAuthLockout(ctx context.Context, username, ip, requestID string) {
	l.Log(ctx, &Event{
		Type:      EventAdminAuthLockout,
		Severity:  SeverityCritical,
		ActorID:   username,
		ActorType: "admin",
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "admin authentication",
		Outcome:   "denied",
		Reason:    "too many failed attempts",
	})
}

// RateLimitExceeded logs a rate limit violation.
func (l *Logger) RateLimitExceeded(ctx context.Context, identifier, ip, requestID, limiterType string) {
	l.Log(ctx, &Event{
		Type:      EventRateLimitExceeded,
		Severity:  SeverityWarning,
		ActorID:   identifier,
		ActorType: "client",
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "request rate limited",
		Outcome:   "denied",
		Reason:    "rate limit exceeded",
		Metadata: map[string]interface{}{
			"limiter_type": limiterType,
		},
	})
}

// WebhookReceived logs an incoming payment webhook.
func (l *Logger) WebhookReceived(ctx context.Context, provider, eventType, paymentID, ip, requestID string) {
	l.Log(ctx, &Event{
		Type:         EventWebhookReceived,
		Severity:     SeverityInfo,
		ActorType:    "webhook",
		ActorName:    provider,
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "payment",
		ResourceID:   paymentID,
		Action:       "webhook received",
		Outcome:      "success",
		Metadata: map[string]interface{}{
			"event_type": eventType,
		},
	})
}

// WebhookValidationFailed logs a webhook signature validation failure.
func (l *Logger) WebhookValidationFailed(ctx context.Context, provider, ip, requestID, reason string) {
	l.Log(ctx, &Event{
		Type:      EventWebhookValidationFail,
		Severity:  SeverityWarning,
		ActorType: "webhook",
		ActorName: provider,
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "webhook validation",
		Outcome:   "failure",
		Reason:    reason,
	})
}

// QuoteGenerated logs successful quote generation.
func (l *Logger) QuoteGenerated(ctx context.Context, quoteID, quoteNumber, requestID string) {
	l.Log(ctx, &Event{
		Type:         EventQuoteGenerated,
		Severity:     SeverityInfo,
		ActorType:    "system",
		RequestID:    requestID,
		ResourceType: "quote",
		ResourceID:   quoteID,
		Action:       "quote generated",
		Outcome:      "success",
		Metadata: map[string]interface{}{
			"quote_number": quoteNumber,
		},
	})
}

// BookingCreated logs a confirmed booking.
func (l *Logger) BookingCreated(ctx context.Context, bookingID, bookingNumber, requestID string) {
	l.Log(ctx, &Event{
		Type:         EventBookingCreated,
		Severity:     SeverityInfo,
		ActorType:    "system",
		RequestID:    requestID,
		ResourceType: "booking",
		ResourceID:   bookingID,
		Action:       "booking created",
		Outcome:      "success",
		Metadata: map[string]interface{}{
			"booking_number": bookingNumber,
		},
	})
}

// Unsubscribe logs a marketing unsubscribe request.
func (l *Logger) Unsubscribe(ctx context.Context, ip, requestID, outcome string) {
	l.Log(ctx, &Event{
		Type:      EventUnsubscribe,
		Severity:  SeverityInfo,
		ActorType: "client",
		SourceIP:  ip,
		RequestID: requestID,
		Action:    "marketing unsubscribe",
		Outcome:   outcome,
	})
}

// APICallFailed logs a failed external API call.
func (l *Logger) APICallFailed(ctx context.Context, service, operation, requestID, reason string) {
	l.Log(ctx, &Event{
		Type:      EventAPICallFailed,
		Severity:  SeverityError,
		ActorType: "system",
		RequestID: requestID,
		Action:    "external API call",
		Outcome:   "failure",
		Reason:    reason,
		Metadata: map[string]interface{}{
			"service":   service,
			"operation": operation,
		},
	})
}

// ServiceStarted logs service startup.
func (l *Logger) ServiceStarted(ctx context.Context, version, environment string) {
	l.Log(ctx, &Event{
		Type:      EventServiceStarted,
		Severity:  SeverityInfo,
		ActorType: "system",
		Action:    "service started",
		Outcome:   "success",
		Metadata: map[string]interface{}{
			"version":     version,
			"environment": environment,
		},
	})
}

// ServiceStopping logs service shutdown initiation.
func (l *Logger) ServiceStopping(ctx context.Context, reason string) {
	l.Log(ctx, &Event{
		Type:      EventServiceStopping,
		Severity:  SeverityInfo,
		ActorType: "system",
		Action:    "service stopping",
		Outcome:   "success",
		Reason:    reason,
	})
}

// Admin operation helpers

// PricingChanged logs a pricing update by an admin.
func (l *Logger) PricingChanged(ctx context.Context, username, serviceKey, ip, requestID string, baseRate, minimumCharge float64) {
	l.Log(ctx, &Event{
		Type:         EventAdminPricingChanged,
		Severity:     SeverityWarning,
		ActorID:      username,
		ActorType:    "admin",
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "service",
		ResourceID:   serviceKey,
		Action:       "pricing changed",
		Outcome:      "success",
		Metadata: map[string]interface{}{
			"base_rate":      baseRate,
			"minimum_charge": minimumCharge,
		},
	})
}

// ScheduleChanged logs a schedule settings update by an admin.
func (l *Logger) ScheduleChanged(ctx context.Context, username, ip, requestID string, changes map[string]interface{}) {
	l.Log(ctx, &Event{
		Type:         EventAdminScheduleChanged,
		Severity:     SeverityWarning,
		ActorID:      username,
		ActorType:    "admin",
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "schedule",
		Action:       "schedule changed",
		Outcome:      "success",
		Metadata:     changes,
	})
}
