package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/availability"
	"github.com/myhorsefarm/farmops/internal/clock"
	"github.com/myhorsefarm/farmops/internal/config"
	"github.com/myhorsefarm/farmops/internal/domain"
	"github.com/myhorsefarm/farmops/internal/email"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
	"github.com/myhorsefarm/farmops/internal/hubspot"
	"github.com/myhorsefarm/farmops/internal/validation"
)

// BookingService owns appointment creation: capacity checks, record
// numbering, CRM deal movement, and the confirmation email.
type BookingService struct {
	bookings     domain.BookingRepository
	quotes       domain.QuoteRepository
	services     domain.ServiceRepository
	sequences    domain.SequenceRepository
	availability *availability.Engine
	crm          CRMClient
	email        EmailSender
	hubspot      *config.HubSpotConfig
	prefix       string
	clock        clock.Clock
	logger       *zap.Logger
}

// NewBookingService creates a booking service.
func NewBookingService(
	bookings domain.BookingRepository,
	quotes domain.QuoteRepository,
	services domain.ServiceRepository,
	sequences domain.SequenceRepository,
	engine *availability.Engine,
	crm CRMClient,
	sender EmailSender,
	hubspotCfg *config.HubSpotConfig,
	numberPrefix string,
	clk clock.Clock,
	logger *zap.Logger,
) *BookingService {
	if clk == nil {
		clk = clock.New()
	}
	return &BookingService{
		bookings:     bookings,
		quotes:       quotes,
		services:     services,
		sequences:    sequences,
		availability: engine,
		crm:          crm,
		email:        sender,
		hubspot:      hubspotCfg,
		prefix:       numberPrefix,
		clock:        clk,
		logger:       logger,
	}
}

// CreateBookingInput carries a booking request. QuoteID is set when the
// booking follows an accepted quote.
type CreateBookingInput struct {
	QuoteID       *uuid.UUID      `json:"quote_id,omitempty"`
	ServiceKey    string          `json:"service_key"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone"`
	Address       string          `json:"customer_location"`
	ScheduledDate string          `json:"scheduled_date"`
	TimeSlot      domain.TimeSlot `json:"time_slot"`
	Notes         string          `json:"notes,omitempty"`
}

// validate checks field presence and format, then normalizes free-text and
// phone input in place.
func (in *CreateBookingInput) validate() error {
	v := validation.NewBookingRequestValidator()
	errs := v.ValidateAll(
		in.ServiceKey, in.CustomerName, in.CustomerEmail, in.CustomerPhone,
		in.Address, in.ScheduledDate, string(in.TimeSlot), in.Notes,
	)
	if errs.HasErrors() {
		return apperrors.ValidationFailed(errs.Error())
	}

	in.CustomerName = validation.SanitizeString(in.CustomerName)
	in.Address = validation.SanitizeString(in.Address)
	in.Notes = validation.SanitizeString(in.Notes)
	in.CustomerPhone = validation.SanitizePhoneNumber(in.CustomerPhone)
	return nil
}

// Create validates capacity on the requested date and persists a confirmed
// booking. CRM and email work is best-effort: a full calendar rejects the
// booking, a CRM outage does not.
func (s *BookingService) Create(ctx context.Context, input *CreateBookingInput) (*domain.Booking, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	hasCapacity, err := s.availability.HasCapacity(ctx, input.ScheduledDate)
	if err != nil {
		return nil, err
	}
	if !hasCapacity {
		return nil, apperrors.ErrCapacityFull
	}

	// The display name falls back to the raw key so a booking for a
	// retired catalog entry still renders something.
	serviceName := input.ServiceKey
	if svc, err := s.services.GetByKey(ctx, input.ServiceKey); err == nil {
		serviceName = svc.Name
	}

	now := s.clock.NowUTC()
	day := now.Format("20060102")
	seq, err := s.sequences.Next(ctx, domain.SequenceBooking, day)
	if err != nil {
		return nil, apperrors.WrapWithOp(err, "booking.Create")
	}

	booking := &domain.Booking{
		ID:            uuid.New(),
		BookingNumber: recordNumber(s.prefix, "B", day, seq),
		QuoteID:       input.QuoteID,
		Status:        domain.BookingStatusConfirmed,
		CustomerName:  input.CustomerName,
		CustomerEmail: input.CustomerEmail,
		CustomerPhone: input.CustomerPhone,
		Address:       input.Address,
		ServiceKey:    input.ServiceKey,
		ScheduledDate: input.ScheduledDate,
		TimeSlot:      input.TimeSlot,
		Notes:         input.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
		ServiceName:   serviceName,
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, apperrors.WrapWithOp(err, "booking.Create")
	}

	// CRM sync runs after the insert: a failed insert must not leave a deal
	// moved to scheduled with no booking behind it.
	if dealID := s.syncToCRM(ctx, booking, serviceName); dealID != "" {
		booking.HubSpotDealID = dealID
		if err := s.bookings.SetHubSpotDealID(ctx, booking.ID, dealID); err != nil {
			s.logger.Warn("booking deal id backfill failed",
				zap.String("booking_id", booking.ID.String()), zap.Error(err))
		}
	}

	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("booking_number", booking.BookingNumber),
		zap.String("scheduled_date", booking.ScheduledDate),
		zap.String("time_slot", string(booking.TimeSlot)),
	)

	s.sendConfirmationEmail(ctx, booking, serviceName)

	return booking, nil
}

// syncToCRM moves the quote's deal to the scheduled stage, or for direct
// bookings finds or creates the contact and opens a zero-amount deal on it.
// Returns the deal id the booking ends up attached to, if any.
func (s *BookingService) syncToCRM(ctx context.Context, booking *domain.Booking, serviceName string) string {
	note := hubspot.BookingNote(booking.BookingNumber, serviceName, booking.ScheduledDate, string(booking.TimeSlot))

	if booking.QuoteID != nil {
		quote, err := s.quotes.GetByID(ctx, *booking.QuoteID)
		if err != nil {
			s.logger.Warn("booking quote lookup failed", zap.String("booking_id", booking.ID.String()), zap.Error(err))
			return ""
		}
		if quote.HubSpotDealID != "" {
			if err := s.crm.UpdateDealStage(ctx, quote.HubSpotDealID, s.hubspot.StageScheduled); err != nil {
				s.logger.Warn("crm deal stage update failed", zap.String("deal_id", quote.HubSpotDealID), zap.Error(err))
			}
		}
		if quote.HubSpotContactID != "" {
			if err := s.crm.CreateContactNote(ctx, quote.HubSpotContactID, note); err != nil {
				s.logger.Warn("crm booking note failed", zap.String("contact_id", quote.HubSpotContactID), zap.Error(err))
			}
		}
		return quote.HubSpotDealID
	}

	contact, err := s.crm.FindContactByEmail(ctx, booking.CustomerEmail)
	if err != nil {
		s.logger.Warn("crm contact lookup failed", zap.String("booking_id", booking.ID.String()), zap.Error(err))
		return ""
	}
	if contact == nil {
		first, last := splitName(booking.CustomerName)
		contact, err = s.crm.CreateContact(ctx, booking.CustomerEmail, first, last, booking.CustomerPhone)
		if err != nil || contact == nil {
			if err != nil {
				s.logger.Warn("crm contact create failed", zap.String("booking_id", booking.ID.String()), zap.Error(err))
			}
			return ""
		}
	}

	dealID := ""
	deal, err := s.crm.CreateDeal(ctx, contact.ID, serviceName+" – "+booking.CustomerName, "0", s.hubspot.StageScheduled)
	if err != nil {
		s.logger.Warn("crm deal create failed", zap.String("booking_id", booking.ID.String()), zap.Error(err))
	} else {
		dealID = deal.ID
	}
	if err := s.crm.CreateContactNote(ctx, contact.ID, note); err != nil {
		s.logger.Warn("crm booking note failed", zap.String("contact_id", contact.ID), zap.Error(err))
	}
	return dealID
}

func (s *BookingService) sendConfirmationEmail(ctx context.Context, booking *domain.Booking, serviceName string) {
	tmpl := email.BookingConfirmationEmail(
		firstName(booking.CustomerName),
		booking.BookingNumber,
		serviceName,
		formatLongDate(booking.ScheduledDate),
		booking.TimeSlot,
		s.email.UnsubscribeURL(booking.CustomerEmail),
	)
	if err := s.email.Send(ctx, booking.CustomerEmail, tmpl.Subject, tmpl.HTML); err != nil {
		s.logger.Warn("booking confirmation email failed", zap.String("booking_id", booking.ID.String()), zap.Error(err))
	}
}

// GetByID retrieves a booking with its denormalized service name.
func (s *BookingService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("booking")
		}
		return nil, apperrors.WrapWithOp(err, "booking.GetByID")
	}
	if booking.ServiceName == "" {
		if svc, err := s.services.GetByKey(ctx, booking.ServiceKey); err == nil {
			booking.ServiceName = svc.Name
		}
	}
	return booking, nil
}

// formatLongDate renders a YYYY-MM-DD date as e.g. "Tuesday, June 10, 2025"
// for customer-facing email. A malformed date passes through unchanged.
func formatLongDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("Monday, January 2, 2006")
}
