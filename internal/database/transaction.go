package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TxManager runs functions inside database transactions. The transaction is
// carried in the context so repository methods can join it transparently.
type TxManager struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewTxManager creates a new transaction manager.
func NewTxManager(pool *pgxpool.Pool, logger *zap.Logger) *TxManager {
	return &TxManager{
		pool:   pool,
		logger: logger,
	}
}

// WithTransaction executes fn inside a transaction and stores the tx in the
// context passed to fn. If a transaction is already in flight on ctx, fn
// joins it. fn returning an error rolls the transaction back.
func (tm *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.withTransaction(ctx, pgx.TxOptions{}, fn)
}

// WithSerializable executes fn inside a serializable transaction, retrying up
// to maxRetries times on serialization failures and deadlocks. Use it for
// check-then-write sequences that must not race.
func (tm *TxManager) WithSerializable(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.Serializable}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			tm.logger.Debug("retrying transaction",
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		err := tm.withTransaction(ctx, opts, fn)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("transaction failed after %d retries: %w", maxRetries, lastErr)
}

func (tm *TxManager) withTransaction(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := tm.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// No-op if commit succeeds.
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			tm.logger.Error("failed to rollback transaction", zap.Error(err))
		}
	}()

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		tm.logger.Debug("transaction rolling back due to error", zap.Error(err))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txContextKey is the context key for transactions.
type txContextKey struct{}

// ContextWithTx adds a transaction to the context.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves a transaction from the context.
// Returns nil if no transaction is present.
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// Querier is the query surface shared by pgx.Tx and *pgxpool.Pool, so
// repository methods can run against either.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...interface{}) pgx.Row
}

// QuerierFor returns the context's transaction if one is in flight,
// otherwise the given pool.
func QuerierFor(ctx context.Context, pool *pgxpool.Pool) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// isRetryableError reports whether err is a serialization failure or
// deadlock that a fresh transaction attempt may resolve.
func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 = serialization_failure, 40P01 = deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	msg := err.Error()
	return strings.Contains(msg, "40001") || strings.Contains(msg, "40P01") ||
		strings.Contains(msg, "serialization") || strings.Contains(msg, "deadlock")
}
