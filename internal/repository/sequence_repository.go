package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/myhorsefarm/farmops/internal/database"
	"github.com/myhorsefarm/farmops/internal/domain"
)

// SequenceRepository implements domain.SequenceRepository using an atomic
// per-(kind, day) counter row. Two concurrent reservations for the same day
// serialize on the row and receive distinct values. Next joins a transaction
// carried on the context, so the reservation rolls back with a failed insert.
type SequenceRepository struct {
	pool *pgxpool.Pool
}

// NewSequenceRepository creates a new SequenceRepository.
func NewSequenceRepository(pool *pgxpool.Pool) *SequenceRepository {
	return &SequenceRepository{pool: pool}
}

// Next atomically reserves and returns the next sequence value for the given
// kind and YYYYMMDD day, starting at 1.
func (r *SequenceRepository) Next(ctx context.Context, kind domain.SequenceKind, day string) (int, error) {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO daily_sequences (kind, day, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (kind, day) DO UPDATE SET value = daily_sequences.value + 1
		RETURNING value`

	var value int
	if err := database.QuerierFor(ctx, r.pool).QueryRow(ctx, query, kind, day).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to reserve sequence: %w", err)
	}
	return value, nil
}
