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

	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
)

// ChatSessionRepository implements domain.ChatSessionRepository using
// PostgreSQL. Transcripts live in a jsonb column; appends concatenate onto
// the stored array server-side so concurrent turns never overwrite each
// other's messages.
type ChatSessionRepository struct {
	pool *pgxpool.Pool
}

// NewChatSessionRepository creates a new ChatSessionRepository.
func NewChatSessionRepository(pool *pgxpool.Pool) *ChatSessionRepository {
	return &ChatSessionRepository{pool: pool}
}

// Create inserts a new, empty session.
func (r *ChatSessionRepository) Create(ctx context.Context, session *domain.ChatSession) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	messagesJSON, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	if session.Messages == nil {
		messagesJSON = []byte("[]")
	}

	query := `
		INSERT INTO chat_sessions (` + ChatSessionColumns.InsertColumns() + `)
		VALUES (` + ChatSessionColumns.Placeholders() + `)`

	_, err = r.pool.Exec(ctx, query,
		session.ID,
		session.Status,
		messagesJSON,
		session.ExtractedService,
		session.ExtractedLocation,
		session.ExtractedDetails,
		session.QuoteID,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat session: %w", err)
	}
	return nil
}

// GetByID retrieves a session with its full transcript.
func (r *ChatSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	if err := GuardUUID(id, "id"); err != nil {
		return nil, err
	}

	ctx, cancel := WithQueryTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + ChatSessionColumns.Select() + `
		FROM chat_sessions
		WHERE id = $1`

	var session domain.ChatSession
	var messagesJSON []byte

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.Status,
		&messagesJSON,
		&session.ExtractedService,
		&session.ExtractedLocation,
		&session.ExtractedDetails,
		&session.QuoteID,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("chat session")
		}
		return nil, fmt.Errorf("failed to get chat session: %w", err)
	}

	if len(messagesJSON) > 0 {
		if err := json.Unmarshal(messagesJSON, &session.Messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
	}
	return &session, nil
}

// AppendMessages atomically appends messages to the transcript.
func (r *ChatSessionRepository) AppendMessages(ctx context.Context, id uuid.UUID, messages ...domain.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	appendJSON, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query := `
		UPDATE chat_sessions
		SET messages = messages || $2::jsonb, updated_at = $3
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, appendJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append chat messages: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("chat session")
	}
	return nil
}

// SetQuoteID links a generated quote back onto the session.
func (r *ChatSessionRepository) SetQuoteID(ctx context.Context, id uuid.UUID, quoteID uuid.UUID) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE chat_sessions SET quote_id = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, quoteID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set chat session quote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("chat session")
	}
	return nil
}

// SetStatus transitions the session status.
func (r *ChatSessionRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.ChatSessionStatus) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `UPDATE chat_sessions SET status = $2, updated_at = $3 WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set chat session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("chat session")
	}
	return nil
}

// SetExtracted records fields the agent pulled out of conversation. Empty
// values leave the stored value unchanged.
func (r *ChatSessionRepository) SetExtracted(ctx context.Context, id uuid.UUID, service, location, details string) error {
	ctx, cancel := WithWriteTimeout(ctx)
	defer cancel()

	query := `
		UPDATE chat_sessions
		SET extracted_service = COALESCE(NULLIF($2, ''), extracted_service),
			extracted_location = COALESCE(NULLIF($3, ''), extracted_location),
			extracted_details = COALESCE(NULLIF($4, ''), extracted_details),
			updated_at = $5
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, service, location, details, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set chat session fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("chat session")
	}
	return nil
}
