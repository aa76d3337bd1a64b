package domain

import (
	"context"

	"github.com/google/uuid"
)

// ServiceRepository defines the interface for service catalog persistence.
type ServiceRepository interface {
	// GetByKey retrieves a service by its catalog key.
	GetByKey(ctx context.Context, key string) (*Service, error)

	// ListActive retrieves all active services in display order.
	ListActive(ctx context.Context) ([]*Service, error)

	// UpdatePricing updates the pricing fields of a service.
	UpdatePricing(ctx context.Context, key string, baseRate, minimumCharge float64) error
}

// QuoteRepository defines the interface for quote persistence.
type QuoteRepository interface {
	// Create inserts a new quote record.
	Create(ctx context.Context, quote *Quote) error

	// GetByID retrieves a quote by its internal ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Quote, error)

	// UpdateStatus transitions a quote's status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status QuoteStatus) error

	// SetHubSpotIDs backfills the CRM contact and deal ids after async sync.
	SetHubSpotIDs(ctx context.Context, id uuid.UUID, contactID, dealID string) error
}

// BookingRepository defines the interface for booking persistence.
type BookingRepository interface {
	// Create inserts a new booking record.
	Create(ctx context.Context, booking *Booking) error

	// GetByID retrieves a booking by its internal ID.
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// CountForDate counts non-cancelled bookings scheduled on a
	// YYYY-MM-DD date.
	CountForDate(ctx context.Context, date string) (int, error)

	// UpdateStatus transitions a booking's status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status BookingStatus) error

	// SetHubSpotDealID backfills the CRM deal id after post-insert sync.
	SetHubSpotDealID(ctx context.Context, id uuid.UUID, dealID string) error
}

// ScheduleRepository defines the interface for schedule settings persistence.
type ScheduleRepository interface {
	// Get retrieves the singleton schedule settings. Implementations
	// return ErrNotFound when no row exists yet.
	Get(ctx context.Context) (*ScheduleSettings, error)

	// Update replaces the schedule settings.
	Update(ctx context.Context, settings *ScheduleSettings) error
}

// ChatSessionRepository defines the interface for chat session persistence.
type ChatSessionRepository interface {
	// Create inserts a new, empty session.
	Create(ctx context.Context, session *ChatSession) error

	// GetByID retrieves a session with its full transcript.
	GetByID(ctx context.Context, id uuid.UUID) (*ChatSession, error)

	// AppendMessages atomically appends messages to the transcript
	// without rewriting it, so concurrent turns cannot drop each other's
	// entries.
	AppendMessages(ctx context.Context, id uuid.UUID, messages ...ChatMessage) error

	// SetQuoteID links a generated quote back onto the session.
	SetQuoteID(ctx context.Context, id uuid.UUID, quoteID uuid.UUID) error

	// SetStatus transitions the session status.
	SetStatus(ctx context.Context, id uuid.UUID, status ChatSessionStatus) error

	// SetExtracted records fields the agent pulled out of conversation.
	SetExtracted(ctx context.Context, id uuid.UUID, service, location, details string) error
}

// SequenceKind scopes daily sequence counters by record type.
type SequenceKind string

// Sequence kinds.
const (
	SequenceQuote   SequenceKind = "quote"
	SequenceBooking SequenceKind = "booking"
)

// SequenceRepository reserves human-readable daily sequence numbers.
type SequenceRepository interface {
	// Next atomically reserves and returns the next sequence value for
	// the given kind and YYYYMMDD day, starting at 1.
	Next(ctx context.Context, kind SequenceKind, day string) (int, error)
}
