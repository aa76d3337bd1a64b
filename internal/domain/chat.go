package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatRole identifies who authored a chat message.
type ChatRole string

// Chat message roles.
const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn entry in a session transcript.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatSessionStatus represents the lifecycle state of a chat session.
type ChatSessionStatus string

// Chat session states.
const (
	ChatSessionActive   ChatSessionStatus = "active"
	ChatSessionResolved ChatSessionStatus = "resolved"
	// ChatSessionHandedOff marks sessions where the agent gave up and
	// directed the visitor to a human.
	ChatSessionHandedOff ChatSessionStatus = "handed_off"
)

// ChatSession holds a running conversation with the quoting agent. Messages
// are append-only; concurrent turns each push their own entries rather than
// rewriting the transcript.
type ChatSession struct {
	ID       uuid.UUID         `json:"id" db:"id"`
	Status   ChatSessionStatus `json:"status" db:"status"`
	Messages []ChatMessage     `json:"messages" db:"messages"`

	// Fields the agent extracts from conversation as it learns them.
	ExtractedService  string `json:"extracted_service,omitempty" db:"extracted_service"`
	ExtractedLocation string `json:"extracted_location,omitempty" db:"extracted_location"`
	ExtractedDetails  string `json:"extracted_details,omitempty" db:"extracted_details"`

	// QuoteID links the session to a quote the agent generated for it.
	QuoteID *uuid.UUID `json:"quote_id,omitempty" db:"quote_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
