package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhorsefarm/farmops/internal/database"
	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
)

// QuoteRepository implements domain.QuoteRepository using PostgreSQL.
// Create joins a transaction carried on the context, so a quote insert can
// run atomically with its sequence-number reservation.
type QuoteRepository struct {
	pool *pgxpool.Pool
}

// NewQuoteRepository creates a new QuoteRepository.
func NewQuoteRepository(pool *pgxpool.Pool) *QuoteRepository {
	return &QuoteRepository{pool: pool}
}

// Create inserts a new quote record.
func (r *QuoteRepository) Create(ctx context.Context, quote *domain.Quote) error {
	if err := Validate().
		RequireUUID(quote.ID, "id").
		RequireString(quote.QuoteNumber, "quote_number").
		RequireValidEmail(quote.CustomerEmail, "customer_email").
		Add(defaultGuard.ValidateQuoteStatus(quote.Status)).
		Error(); err != nil {
		return err
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	detailsJSON, err := json.Marshal(quote.PropertyDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal property details: %w", err)
	}

	pricingJSON, err := json.Marshal(quote.Pricing)
	if err != nil {
		return fmt.Errorf("failed to marshal pricing: %w", err)
	}

	query := `
		INSERT INTO quotes (` + QuoteColumns.InsertColumns() + `)
		VALUES (` + QuoteColumns.Placeholders() + `)`

	_, err = database.QuerierFor(ctx, r.pool).Exec(ctx, query,
		quote.ID,
		quote.QuoteNumber,
		quote.Status,
		quote.CustomerName,
		quote.CustomerEmail,
		quote.CustomerPhone,
		quote.Address,
		quote.ServiceKey,
		detailsJSON,
		pricingJSON,
		quote.RequiresSiteVisit,
		quote.Source,
		quote.ChatSessionID,
		quote.HubSpotContactID,
		quote.HubSpotDealID,
		quote.ExpiresAt,
		quote.CreatedAt,
		quote.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

// GetByID retrieves a quote by its internal ID, with the service display
// fields denormalized from the catalog.
func (r *QuoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	if err := GuardUUID(id, "id"); err != nil {
		return nil, err
	}

	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + QuoteColumns.SelectPrefixed() + `,
			COALESCE(s.name, ''), COALESCE(s.description, ''), COALESCE(s.unit, '')
		FROM quotes
		LEFT JOIN services s ON s.key = quotes.service_key
		WHERE quotes.id = $1`

	var quote domain.Quote
	var detailsJSON, pricingJSON []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&quote.ID,
		&quote.QuoteNumber,
		&quote.Status,
		&quote.CustomerName,
		&quote.CustomerEmail,
		&quote.CustomerPhone,
		&quote.Address,
		&quote.ServiceKey,
		&detailsJSON,
		&pricingJSON,
		&quote.RequiresSiteVisit,
		&quote.Source,
		&quote.ChatSessionID,
		&quote.HubSpotContactID,
		&quote.HubSpotDealID,
		&quote.ExpiresAt,
		&quote.CreatedAt,
		&quote.UpdatedAt,
		&quote.ServiceName,
		&quote.ServiceDescription,
		&quote.ServiceUnit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("quote")
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	if len(detailsJSON) > 0 {
		if err := json.Unmarshal(detailsJSON, &quote.PropertyDetails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal property details: %w", err)
		}
	}
	if len(pricingJSON) > 0 {
		if err := json.Unmarshal(pricingJSON, &quote.Pricing); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pricing: %w", err)
		}
	}

	return &quote, nil
}

// UpdateStatus transitions a quote's status.
func (r *QuoteRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.QuoteStatus) error {
	if err := Validate().
		RequireUUID(id, "id").
		Add(defaultGuard.ValidateQuoteStatus(status)).
		Error(); err != nil {
		return err
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE quotes SET status = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update quote status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("quote")
	}
	return nil
}

// SetHubSpotIDs backfills the CRM contact and deal ids after async sync.
func (r *QuoteRepository) SetHubSpotIDs(ctx context.Context, id uuid.UUID, contactID, dealID string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		UPDATE quotes
		SET hubspot_contact_id = $2, hubspot_deal_id = $3, updated_at = $4
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, contactID, dealID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set quote hubspot ids: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("quote")
	}
	return nil
}
