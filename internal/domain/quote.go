package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuoteStatus represents the lifecycle state of a quote.
type QuoteStatus string

// Quote lifecycle states.
const (
	QuoteStatusPending          QuoteStatus = "pending"
	QuoteStatusPendingSiteVisit QuoteStatus = "pending_site_visit"
	QuoteStatusAccepted         QuoteStatus = "accepted"
	QuoteStatusExpired          QuoteStatus = "expired"
	QuoteStatusDeclined         QuoteStatus = "declined"
)

// QuoteSource identifies which front end created a quote.
type QuoteSource string

// Quote sources.
const (
	QuoteSourceForm    QuoteSource = "form"
	QuoteSourceChatbot QuoteSource = "chatbot"
)

// QuoteValidityDays is how long a quote stays acceptable after creation.
const QuoteValidityDays = 30

// Quote represents a price offer for one service at one property.
type Quote struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	QuoteNumber string      `json:"quote_number" db:"quote_number"`
	Status      QuoteStatus `json:"status" db:"status"`

	CustomerName  string `json:"customer_name" db:"customer_name"`
	CustomerEmail string `json:"customer_email" db:"customer_email"`
	CustomerPhone string `json:"customer_phone" db:"customer_phone"`
	Address       string `json:"address,omitempty" db:"address"`

	ServiceKey string `json:"service_key" db:"service_key"`
	// PropertyDetails holds the free-form per-unit inputs from the quote
	// form (loads, cans, estimated_tons, yards, sqft, frequency).
	PropertyDetails map[string]any `json:"property_details" db:"property_details"`

	Pricing           PricingBreakdown `json:"pricing" db:"pricing"`
	RequiresSiteVisit bool             `json:"requires_site_visit" db:"requires_site_visit"`

	Source        QuoteSource `json:"source" db:"source"`
	ChatSessionID *uuid.UUID  `json:"chat_session_id,omitempty" db:"chat_session_id"`

	HubSpotContactID string `json:"hubspot_contact_id,omitempty" db:"hubspot_contact_id"`
	HubSpotDealID    string `json:"hubspot_deal_id,omitempty" db:"hubspot_deal_id"`

	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Denormalized service display fields, populated on read.
	ServiceName        string `json:"service_name,omitempty" db:"-"`
	ServiceDescription string `json:"service_description,omitempty" db:"-"`
	ServiceUnit        string `json:"service_unit,omitempty" db:"-"`
}

// IsExpired reports whether the quote's validity window has passed at t.
func (q *Quote) IsExpired(t time.Time) bool {
	return t.After(q.ExpiresAt)
}

// CanAccept reports whether an accept action is permitted from the current
// status. Only pending quotes can be accepted; already-accepted quotes are
// handled as an idempotent no-op by the service layer, not here.
func (q *Quote) CanAccept() bool {
	return q.Status == QuoteStatusPending
}
