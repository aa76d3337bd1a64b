package campaign

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/email"
	"github.com/myhorsefarm/farmops/internal/hubspot"
)

// upsellExcludedService is the entry-level service every paying customer
// already buys; suggesting it back to them is noise.
const upsellExcludedService = "Manure Removal"

// RunClientEngagement sends at most one retention email per paying contact
// per run, in priority order: 12-month milestone, 6-month milestone,
// referral ask, service upsell.
func (e *Engine) RunClientEngagement(ctx context.Context) ([]string, error) {
	now := e.clock.NowUTC()

	// Look back far enough to cover the 12-month milestone window.
	contacts, err := e.crm.SearchContacts(ctx, contactFilter(hubspot.Filter{
		PropertyName: "createdate", Operator: "GTE", Value: msEpoch(now.Add(-13 * 30 * 24 * time.Hour)),
	}), contactProps)
	if err != nil {
		e.logger.Error("engagement contact search failed", zap.Error(err))
		return nil, err
	}

	var results []string
	for _, contact := range contacts {
		if r := e.engageContact(ctx, contact, now); r != "" {
			results = append(results, r)
		}
	}
	return results, nil
}

func (e *Engine) engageContact(ctx context.Context, contact *hubspot.Contact, now time.Time) string {
	address := contact.Email()
	if address == "" {
		return ""
	}

	paymentCount := e.crm.CountAutomationTags(ctx, "contacts", contact.ID, hubspot.PaymentTagPrefix)
	if paymentCount == 0 {
		return ""
	}
	if !e.crm.IsSubscribed(ctx, address) {
		return ""
	}

	monthsAgo := 0
	if created, ok := contactCreated(contact); ok {
		monthsAgo = monthsSince(created, now)
	}

	first := contact.Properties["firstname"]
	unsubscribe := e.email.UnsubscribeURL(address)

	if monthsAgo >= 12 && paymentCount >= 3 && !e.crm.HasAutomationTag(ctx, "contacts", contact.ID, hubspot.TagMilestone12M) {
		tmpl := email.LoyaltyMilestoneEmail(first, 12, unsubscribe)
		return e.deliver(ctx, contact, address, "milestone_12m", hubspot.TagMilestone12M, tmpl)
	}

	if monthsAgo >= 6 && paymentCount >= 3 && !e.crm.HasAutomationTag(ctx, "contacts", contact.ID, hubspot.TagMilestone6M) {
		tmpl := email.LoyaltyMilestoneEmail(first, 6, unsubscribe)
		return e.deliver(ctx, contact, address, "milestone_6m", hubspot.TagMilestone6M, tmpl)
	}

	if paymentCount >= 5 && !e.crm.HasAutomationTag(ctx, "contacts", contact.ID, hubspot.TagReferral) {
		tmpl := email.ReferralRequestEmail(first, unsubscribe)
		return e.deliver(ctx, contact, address, "referral", hubspot.TagReferral, tmpl)
	}

	upsellTag := hubspot.UpsellTag(now.Year())
	if paymentCount >= 3 && !e.crm.HasAutomationTag(ctx, "contacts", contact.ID, upsellTag) {
		tmpl := email.ServiceUpsellEmail(first, e.suggestedServices(ctx), unsubscribe)
		return e.deliver(ctx, contact, address, "upsell", upsellTag, tmpl)
	}

	return ""
}

// deliver sends one campaign email and writes its gating tag note.
func (e *Engine) deliver(ctx context.Context, contact *hubspot.Contact, address, name, tag string, tmpl email.Template) string {
	if err := e.email.Send(ctx, address, tmpl.Subject, tmpl.HTML); err != nil {
		e.logger.Warn("engagement email failed",
			zap.String("campaign", name), zap.String("contact_id", contact.ID), zap.Error(err))
		return name + " FAIL " + address + ": " + err.Error()
	}
	if err := e.crm.CreateContactNote(ctx, contact.ID, tag+e.sentStamp(address)); err != nil {
		e.logger.Warn("engagement tag note failed",
			zap.String("campaign", name), zap.String("contact_id", contact.ID), zap.Error(err))
	}
	return name + " -> " + address
}

// suggestedServices lists the active catalog for the upsell email, minus
// the service the customer is assumed to already buy.
func (e *Engine) suggestedServices(ctx context.Context) []string {
	services, err := e.services.ListActive(ctx)
	if err != nil {
		e.logger.Warn("catalog lookup for upsell failed", zap.Error(err))
		return nil
	}
	var names []string
	for _, s := range services {
		if s.Name == upsellExcludedService {
			continue
		}
		names = append(names, s.Name)
	}
	return names
}
