// Package campaign implements the scheduled lifecycle email campaigns. Each
// campaign runs over CRM contacts or deals, gates on automation tag notes so
// reruns never double-send, and returns a per-recipient result line for the
// cron response.
package campaign

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/clock"
	"github.com/myhorsefarm/farmops/internal/config"
	"github.com/myhorsefarm/farmops/internal/domain"
	"github.com/myhorsefarm/farmops/internal/hubspot"
)

// CRMClient is the HubSpot surface the campaigns depend on.
type CRMClient interface {
	SearchContacts(ctx context.Context, groups []hubspot.FilterGroup, properties []string) ([]*hubspot.Contact, error)
	SearchDeals(ctx context.Context, groups []hubspot.FilterGroup, properties []string) ([]*hubspot.Deal, error)
	DealContacts(ctx context.Context, dealID string) ([]string, error)
	GetContact(ctx context.Context, id string, properties []string) (*hubspot.Contact, error)
	CreateContactNote(ctx context.Context, contactID, body string) error
	CreateDealNote(ctx context.Context, dealID, body string) error
	HasAutomationTag(ctx context.Context, objectType, objectID, tag string) bool
	CountAutomationTags(ctx context.Context, objectType, objectID, tag string) int
	IsSubscribed(ctx context.Context, email string) bool
}

// EmailSender is the campaign email surface.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
	UnsubscribeURL(email string) string
}

// Engine runs the four lifecycle campaigns. One instance is shared by all
// cron routes.
type Engine struct {
	crm      CRMClient
	email    EmailSender
	services domain.ServiceRepository
	hubspot  *config.HubSpotConfig
	clock    clock.Clock
	logger   *zap.Logger
}

// NewEngine creates a campaign engine.
func NewEngine(
	crm CRMClient,
	sender EmailSender,
	services domain.ServiceRepository,
	hubspotCfg *config.HubSpotConfig,
	clk clock.Clock,
	logger *zap.Logger,
) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{
		crm:      crm,
		email:    sender,
		services: services,
		hubspot:  hubspotCfg,
		clock:    clk,
		logger:   logger,
	}
}

// msEpoch renders a time as the millisecond epoch string HubSpot search
// filters expect for datetime properties.
func msEpoch(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// contactCreated parses a contact's createdate property. HubSpot returns
// ISO 8601 for search results and millisecond epochs elsewhere; both are
// accepted.
func contactCreated(c *hubspot.Contact) (time.Time, bool) {
	raw := c.Properties["createdate"]
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// monthsSince counts whole calendar months between two times, matching how
// loyalty milestones are measured.
func monthsSince(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// sentStamp is the note suffix recording delivery, e.g.
// " Sent to a@b.com on 2025-06-02T12:00:00Z".
func (e *Engine) sentStamp(email string) string {
	return " Sent to " + email + " on " + e.clock.NowUTC().Format(time.RFC3339)
}

// contactFilter builds a single AND-combined filter group.
func contactFilter(filters ...hubspot.Filter) []hubspot.FilterGroup {
	return []hubspot.FilterGroup{{Filters: filters}}
}
