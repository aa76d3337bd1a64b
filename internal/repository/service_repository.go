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

// ServiceRepository implements domain.ServiceRepository using PostgreSQL.
type ServiceRepository struct {
	pool *pgxpool.Pool
}

// NewServiceRepository creates a new ServiceRepository.
func NewServiceRepository(pool *pgxpool.Pool) *ServiceRepository {
	return &ServiceRepository{pool: pool}
}

// GetByKey retrieves a service by its catalog key.
func (r *ServiceRepository) GetByKey(ctx context.Context, key string) (*domain.Service, error) {
	if err := GuardString(key, "key"); err != nil {
		return nil, err
	}

	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ServiceColumns.Select() + ` FROM services WHERE key = $1`

	svc, err := scanService(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("service")
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return svc, nil
}

// ListActive retrieves all active services in display order.
func (r *ServiceRepository) ListActive(ctx context.Context) ([]*domain.Service, error) {
	ctx, cancel := WithListQueryTimeout(ctx)
	defer cancel()

	query := `SELECT ` + ServiceColumns.Select() + ` FROM services WHERE active = true ORDER BY display_order, key`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*domain.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// UpdatePricing updates the pricing fields of a service.
func (r *ServiceRepository) UpdatePricing(ctx context.Context, key string, baseRate, minimumCharge float64) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		UPDATE services
		SET base_rate = $2, minimum_charge = $3, updated_at = $4
		WHERE key = $1`

	tag, err := r.pool.Exec(ctx, query, key, baseRate, minimumCharge, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update service pricing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("service")
	}
	return nil
}

// scanService scans one service row.
func scanService(row pgx.Row) (*domain.Service, error) {
	var svc domain.Service
	err := row.Scan(
		&svc.ID,
		&svc.Key,
		&svc.Name,
		&svc.Description,
		&svc.Unit,
		&svc.BaseRate,
		&svc.MinimumCharge,
		&svc.RequiresSiteVisit,
		&svc.Recurring,
		&svc.FrequencyOptions,
		&svc.Active,
		&svc.DisplayOrder,
		&svc.CreatedAt,
		&svc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &svc, nil
}
