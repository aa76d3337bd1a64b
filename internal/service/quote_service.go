package service

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/clock"
	"github.com/myhorsefarm/farmops/internal/config"
	"github.com/myhorsefarm/farmops/internal/domain"
	"github.com/myhorsefarm/farmops/internal/email"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
	"github.com/myhorsefarm/farmops/internal/hubspot"
	"github.com/myhorsefarm/farmops/internal/pricing"
	"github.com/myhorsefarm/farmops/internal/validation"
)

// QuoteService owns the quote lifecycle: creation with priced breakdowns,
// best-effort CRM sync and confirmation email, lazy expiry, and acceptance.
type QuoteService struct {
	quotes    domain.QuoteRepository
	services  domain.ServiceRepository
	sequences domain.SequenceRepository
	tx        TxRunner
	crm       CRMClient
	email     EmailSender
	hubspot   *config.HubSpotConfig
	prefix    string
	clock     clock.Clock
	logger    *zap.Logger
}

// NewQuoteService creates a quote service.
func NewQuoteService(
	quotes domain.QuoteRepository,
	services domain.ServiceRepository,
	sequences domain.SequenceRepository,
	tx TxRunner,
	crm CRMClient,
	sender EmailSender,
	hubspotCfg *config.HubSpotConfig,
	numberPrefix string,
	clk clock.Clock,
	logger *zap.Logger,
) *QuoteService {
	if clk == nil {
		clk = clock.New()
	}
	return &QuoteService{
		quotes:    quotes,
		services:  services,
		sequences: sequences,
		tx:        tx,
		crm:       crm,
		email:     sender,
		hubspot:   hubspotCfg,
		prefix:    numberPrefix,
		clock:     clk,
		logger:    logger,
	}
}

// CreateQuoteInput carries a quote request from the form or the chat agent.
type CreateQuoteInput struct {
	ServiceKey      string         `json:"service_key"`
	CustomerName    string         `json:"customer_name"`
	CustomerEmail   string         `json:"customer_email"`
	CustomerPhone   string         `json:"customer_phone"`
	Address         string         `json:"customer_location"`
	PropertyDetails map[string]any `json:"property_details"`

	// Set by the caller, never from the request body.
	Source        domain.QuoteSource `json:"-"`
	ChatSessionID *uuid.UUID         `json:"-"`
}

// validate checks field presence and format, then normalizes free-text and
// phone input in place.
func (in *CreateQuoteInput) validate() error {
	v := validation.NewQuoteRequestValidator()
	if errs := v.ValidateAll(in.ServiceKey, in.CustomerName, in.CustomerEmail, in.CustomerPhone, in.Address); errs.HasErrors() {
		return apperrors.ValidationFailed(errs.Error())
	}

	in.CustomerName = validation.SanitizeString(in.CustomerName)
	in.Address = validation.SanitizeString(in.Address)
	in.CustomerPhone = validation.SanitizePhoneNumber(in.CustomerPhone)
	return nil
}

// Create prices and persists a new quote, then syncs it to the CRM and
// emails the customer. CRM and email failures are logged, not returned: the
// quote exists once the insert succeeds.
func (s *QuoteService) Create(ctx context.Context, input *CreateQuoteInput) (*domain.Quote, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	svc, err := s.services.GetByKey(ctx, input.ServiceKey)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("service")
		}
		return nil, apperrors.WrapWithOp(err, "quote.Create")
	}
	if !svc.Active {
		return nil, apperrors.NotFound("service")
	}

	breakdown := pricing.Calculate(svc, input.PropertyDetails)

	now := s.clock.NowUTC()
	day := now.Format("20060102")

	status := domain.QuoteStatusPending
	if svc.RequiresSiteVisit {
		status = domain.QuoteStatusPendingSiteVisit
	}

	quote := &domain.Quote{
		ID:                 uuid.New(),
		Status:             status,
		CustomerName:       input.CustomerName,
		CustomerEmail:      input.CustomerEmail,
		CustomerPhone:      input.CustomerPhone,
		Address:            input.Address,
		ServiceKey:         svc.Key,
		PropertyDetails:    input.PropertyDetails,
		Pricing:            breakdown,
		RequiresSiteVisit:  svc.RequiresSiteVisit,
		Source:             input.Source,
		ChatSessionID:      input.ChatSessionID,
		ExpiresAt:          now.AddDate(0, 0, domain.QuoteValidityDays),
		CreatedAt:          now,
		UpdatedAt:          now,
		ServiceName:        svc.Name,
		ServiceDescription: svc.Description,
		ServiceUnit:        string(svc.Unit),
	}

	// Reserve the daily sequence number and insert in one transaction, so a
	// failed insert does not leave a gap in the day's numbering.
	persist := func(ctx context.Context) error {
		seq, err := s.sequences.Next(ctx, domain.SequenceQuote, day)
		if err != nil {
			return err
		}
		quote.QuoteNumber = recordNumber(s.prefix, "Q", day, seq)
		return s.quotes.Create(ctx, quote)
	}
	if s.tx != nil {
		err = s.tx.WithTransaction(ctx, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		return nil, apperrors.WrapWithOp(err, "quote.Create")
	}

	s.logger.Info("quote created",
		zap.String("quote_id", quote.ID.String()),
		zap.String("quote_number", quote.QuoteNumber),
		zap.String("service_key", quote.ServiceKey),
		zap.String("source", string(quote.Source)),
		zap.Float64("total", quote.Pricing.Total),
	)

	s.syncToCRM(ctx, quote, svc)
	s.sendQuoteEmail(ctx, quote, svc)

	return quote, nil
}

// syncToCRM finds or creates the contact, opens a deal at the quoted stage,
// and drops the quote tag note on the contact. Any failure is logged and
// swallowed.
func (s *QuoteService) syncToCRM(ctx context.Context, quote *domain.Quote, svc *domain.Service) {
	contact, err := s.crm.FindContactByEmail(ctx, quote.CustomerEmail)
	if err != nil {
		s.logger.Warn("crm contact lookup failed", zap.String("quote_id", quote.ID.String()), zap.Error(err))
		return
	}
	if contact == nil {
		first, last := splitName(quote.CustomerName)
		contact, err = s.crm.CreateContact(ctx, quote.CustomerEmail, first, last, quote.CustomerPhone)
		if err != nil {
			s.logger.Warn("crm contact create failed", zap.String("quote_id", quote.ID.String()), zap.Error(err))
			return
		}
	}

	dealName := svc.Name + " – " + quote.CustomerName
	amount := strconv.FormatFloat(quote.Pricing.Total, 'f', 2, 64)
	dealID := ""
	deal, err := s.crm.CreateDeal(ctx, contact.ID, dealName, amount, s.hubspot.StageQuoted)
	if err != nil {
		s.logger.Warn("crm deal create failed", zap.String("quote_id", quote.ID.String()), zap.Error(err))
	} else {
		dealID = deal.ID
	}

	note := hubspot.QuoteNote(quote.QuoteNumber, string(quote.Source), svc.Name, amount)
	if err := s.crm.CreateContactNote(ctx, contact.ID, note); err != nil {
		s.logger.Warn("crm quote note failed", zap.String("quote_id", quote.ID.String()), zap.Error(err))
	}

	quote.HubSpotContactID = contact.ID
	quote.HubSpotDealID = dealID
	if err := s.quotes.SetHubSpotIDs(ctx, quote.ID, contact.ID, dealID); err != nil {
		s.logger.Warn("crm id backfill failed", zap.String("quote_id", quote.ID.String()), zap.Error(err))
	}
}

// sendQuoteEmail sends the customer confirmation. Site-visit quotes get the
// site visit acknowledgement plus an internal copy to sales; instant quotes
// get the priced confirmation with an accept link.
func (s *QuoteService) sendQuoteEmail(ctx context.Context, quote *domain.Quote, svc *domain.Service) {
	first := firstName(quote.CustomerName)

	if quote.RequiresSiteVisit {
		tmpl := email.SiteVisitRequestEmail(first, svc.Name, quote.QuoteNumber, s.email.UnsubscribeURL(quote.CustomerEmail))
		if err := s.email.Send(ctx, quote.CustomerEmail, tmpl.Subject, tmpl.HTML); err != nil {
			s.logger.Warn("site visit email failed", zap.String("quote_id", quote.ID.String()), zap.Error(err))
		}

		// Internal copy so sales can schedule the visit.
		internal := email.SiteVisitRequestEmail("Jose",
			svc.Name+" – "+quote.CustomerName+" ("+quote.CustomerPhone+")",
			quote.QuoteNumber, s.email.UnsubscribeURL(s.email.SalesAddress()))
		if err := s.email.Send(ctx, s.email.SalesAddress(), internal.Subject, internal.HTML); err != nil {
			s.logger.Warn("site visit sales copy failed", zap.String("quote_id", quote.ID.String()), zap.Error(err))
		}
		return
	}

	tmpl := email.QuoteConfirmationEmail(first, quote.QuoteNumber, svc.Name, quote.Pricing,
		s.email.QuoteURL(quote.ID.String()), s.email.UnsubscribeURL(quote.CustomerEmail))
	if err := s.email.Send(ctx, quote.CustomerEmail, tmpl.Subject, tmpl.HTML); err != nil {
		s.logger.Warn("quote confirmation email failed", zap.String("quote_id", quote.ID.String()), zap.Error(err))
	}
}

// GetByID retrieves a quote, transitioning pending quotes past their
// validity window to expired on read.
func (s *QuoteService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("quote")
		}
		return nil, apperrors.WrapWithOp(err, "quote.GetByID")
	}

	if quote.Status == domain.QuoteStatusPending && quote.IsExpired(s.clock.NowUTC()) {
		if err := s.quotes.UpdateStatus(ctx, quote.ID, domain.QuoteStatusExpired); err != nil {
			return nil, apperrors.WrapWithOp(err, "quote.GetByID")
		}
		quote.Status = domain.QuoteStatusExpired
	}

	return quote, nil
}

// Accept transitions a pending quote to accepted. Accepting an
// already-accepted quote is an idempotent success; an expired quote is
// marked expired and rejected.
func (s *QuoteService) Accept(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("quote")
		}
		return nil, apperrors.WrapWithOp(err, "quote.Accept")
	}

	if quote.Status == domain.QuoteStatusAccepted {
		return quote, nil
	}

	if quote.Status == domain.QuoteStatusPending && quote.IsExpired(s.clock.NowUTC()) {
		if err := s.quotes.UpdateStatus(ctx, quote.ID, domain.QuoteStatusExpired); err != nil {
			return nil, apperrors.WrapWithOp(err, "quote.Accept")
		}
		return nil, apperrors.ErrQuoteExpired
	}

	if !quote.CanAccept() {
		return nil, apperrors.InvalidState("quote cannot be accepted (status: " + string(quote.Status) + ")")
	}

	if err := s.quotes.UpdateStatus(ctx, quote.ID, domain.QuoteStatusAccepted); err != nil {
		return nil, apperrors.WrapWithOp(err, "quote.Accept")
	}
	quote.Status = domain.QuoteStatusAccepted

	s.logger.Info("quote accepted",
		zap.String("quote_id", quote.ID.String()),
		zap.String("quote_number", quote.QuoteNumber),
	)

	if quote.HubSpotDealID != "" {
		if err := s.crm.UpdateDealStage(ctx, quote.HubSpotDealID, s.hubspot.StageQuoted); err != nil {
			s.logger.Warn("crm deal stage update failed",
				zap.String("quote_id", quote.ID.String()),
				zap.String("deal_id", quote.HubSpotDealID),
				zap.Error(err),
			)
		}
	}

	return quote, nil
}
