// Package service implements the application's use cases: the quote and
// booking lifecycles, Square payment reconciliation, and the conversational
// quoting agent. Services accept narrow client interfaces so tests can run
// against in-memory fakes.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/myhorsefarm/farmops/internal/ai"
	"github.com/myhorsefarm/farmops/internal/hubspot"
	"github.com/myhorsefarm/farmops/internal/square"
)

// CRMClient is the HubSpot surface the services depend on.
type CRMClient interface {
	FindContactByEmail(ctx context.Context, email string) (*hubspot.Contact, error)
	FindContactByPhone(ctx context.Context, phone string) (*hubspot.Contact, error)
	CreateContact(ctx context.Context, email, firstName, lastName, phone string) (*hubspot.Contact, error)
	FindActiveDealForContact(ctx context.Context, contactID, completedStage string) (*hubspot.Deal, error)
	FindDealByNoteContent(ctx context.Context, contactID, substring string) (*hubspot.Deal, error)
	CreateDeal(ctx context.Context, contactID, dealName, amount, stageID string) (*hubspot.Deal, error)
	UpdateDealStage(ctx context.Context, dealID, stageID string) error
	UpdateDealAmount(ctx context.Context, dealID, amount string) error
	CreateContactNote(ctx context.Context, contactID, body string) error
	CreateDealNote(ctx context.Context, dealID, body string) error
	HasAutomationTag(ctx context.Context, objectType, objectID, tag string) bool
	CountAutomationTags(ctx context.Context, objectType, objectID, tag string) int
	IsSubscribed(ctx context.Context, email string) bool
}

// PaymentClient is the Square surface the payment reconciler depends on.
type PaymentClient interface {
	GetPayment(ctx context.Context, id string) (*square.Payment, error)
	GetCustomer(ctx context.Context, id string) (*square.Customer, error)
	GetOrder(ctx context.Context, id string) (*square.Order, error)
	GetRefund(ctx context.Context, id string) (*square.Refund, error)
}

// EmailSender is the transactional email surface.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
	UnsubscribeURL(email string) string
	QuoteURL(quoteID string) string
	SalesAddress() string
}

// TxRunner executes a function inside a database transaction; repository
// calls made with the inner context join it. A nil runner degrades to
// running the function directly.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ChatModel is the model client surface the chat service depends on.
type ChatModel interface {
	StreamMessage(ctx context.Context, system string, tools []ai.Tool, messages []ai.Message, onText func(text string)) (*ai.AssistantTurn, error)
}

// recordNumber formats a human-readable daily record number, e.g.
// MHF-Q-20250602-003.
func recordNumber(prefix, kind, day string, seq int) string {
	return fmt.Sprintf("%s-%s-%s-%03d", prefix, kind, day, seq)
}

// splitName splits a full name into CRM first/last fields. Everything after
// the first word is the last name.
func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// firstName returns the leading word of a full name for email greetings.
func firstName(full string) string {
	first, _ := splitName(full)
	return first
}
