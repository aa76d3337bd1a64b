package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
)

// ScheduleRepository implements domain.ScheduleRepository using PostgreSQL.
// The schedule_settings table holds at most one row.
type ScheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(pool *pgxpool.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// Get retrieves the singleton schedule settings.
func (r *ScheduleRepository) Get(ctx context.Context) (*domain.ScheduleSettings, error) {
	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT max_jobs_per_day, work_days, blocked_dates, updated_at
		FROM schedule_settings
		WHERE id = 1`

	var settings domain.ScheduleSettings
	err := r.pool.QueryRow(ctx, query).Scan(
		&settings.MaxJobsPerDay,
		&settings.WorkDays,
		&settings.BlockedDates,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("schedule settings")
		}
		return nil, fmt.Errorf("failed to get schedule settings: %w", err)
	}
	return &settings, nil
}

// Update replaces the schedule settings, creating the row if needed.
func (r *ScheduleRepository) Update(ctx context.Context, settings *domain.ScheduleSettings) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO schedule_settings (id, max_jobs_per_day, work_days, blocked_dates, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			max_jobs_per_day = EXCLUDED.max_jobs_per_day,
			work_days = EXCLUDED.work_days,
			blocked_dates = EXCLUDED.blocked_dates,
			updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query,
		settings.MaxJobsPerDay,
		settings.WorkDays,
		settings.BlockedDates,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule settings: %w", err)
	}
	return nil
}
