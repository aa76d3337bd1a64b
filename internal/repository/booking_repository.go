package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
)

// BookingRepository implements domain.BookingRepository using PostgreSQL.
type BookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository creates a new BookingRepository.
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

// Create inserts a new booking record.
func (r *BookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	if err := Validate().
		RequireUUID(booking.ID, "id").
		RequireString(booking.BookingNumber, "booking_number").
		RequireString(booking.ScheduledDate, "scheduled_date").
		Add(defaultGuard.ValidateBookingStatus(booking.Status)).
		Add(defaultGuard.ValidateTimeSlot(booking.TimeSlot)).
		Error(); err != nil {
		return err
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO bookings (` + BookingColumns.InsertColumns() + `)
		VALUES (` + BookingColumns.Placeholders() + `)`

	_, err := r.pool.Exec(ctx, query,
		booking.ID,
		booking.BookingNumber,
		booking.QuoteID,
		booking.Status,
		booking.CustomerName,
		booking.CustomerEmail,
		booking.CustomerPhone,
		booking.Address,
		booking.ServiceKey,
		booking.ScheduledDate,
		booking.TimeSlot,
		booking.Notes,
		booking.HubSpotDealID,
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by its internal ID, with the service display
// name denormalized from the catalog.
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	if err := GuardUUID(id, "id"); err != nil {
		return nil, err
	}

	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + BookingColumns.SelectPrefixed() + `,
			COALESCE(s.name, '')
		FROM bookings
		LEFT JOIN services s ON s.key = bookings.service_key
		WHERE bookings.id = $1`

	var booking domain.Booking
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&booking.ID,
		&booking.BookingNumber,
		&booking.QuoteID,
		&booking.Status,
		&booking.CustomerName,
		&booking.CustomerEmail,
		&booking.CustomerPhone,
		&booking.Address,
		&booking.ServiceKey,
		&booking.ScheduledDate,
		&booking.TimeSlot,
		&booking.Notes,
		&booking.HubSpotDealID,
		&booking.CreatedAt,
		&booking.UpdatedAt,
		&booking.ServiceName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("booking")
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// CountForDate counts non-cancelled bookings scheduled on a YYYY-MM-DD date.
func (r *BookingRepository) CountForDate(ctx context.Context, date string) (int, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE scheduled_date = $1 AND status != $2`

	var count int
	if err := r.pool.QueryRow(ctx, query, date, domain.BookingStatusCancelled).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

// SetHubSpotDealID backfills the CRM deal id after post-insert sync.
func (r *BookingRepository) SetHubSpotDealID(ctx context.Context, id uuid.UUID, dealID string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE bookings SET hubspot_deal_id = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, dealID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set booking hubspot deal id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("booking")
	}
	return nil
}

// UpdateStatus transitions a booking's status.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("booking")
	}
	return nil
}
