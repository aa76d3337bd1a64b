package campaign

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/email"
	"github.com/myhorsefarm/farmops/internal/hubspot"
)

// RunReviewRequest asks for a review after a completed job. A deal is
// processed once (gated by the deal tag); a contact is asked at most once
// per half-year period, checked against both the current and previous
// period tags so a January ask does not repeat a December one.
func (e *Engine) RunReviewRequest(ctx context.Context) ([]string, error) {
	now := e.clock.NowUTC()

	deals, err := e.crm.SearchDeals(ctx, []hubspot.FilterGroup{{Filters: []hubspot.Filter{
		{PropertyName: "dealstage", Operator: "EQ", Value: e.hubspot.StageCompleted},
		{PropertyName: "closedate", Operator: "GTE", Value: msEpoch(now.Add(-30 * 24 * time.Hour))},
	}}}, []string{"dealname", "closedate", "dealstage"})
	if err != nil {
		e.logger.Error("review deal search failed", zap.Error(err))
		return nil, err
	}

	var results []string
	for _, deal := range deals {
		if r := e.reviewDeal(ctx, deal, now); r != "" {
			results = append(results, r)
		}
	}
	return results, nil
}

func (e *Engine) reviewDeal(ctx context.Context, deal *hubspot.Deal, now time.Time) string {
	if e.crm.HasAutomationTag(ctx, "deals", deal.ID, hubspot.TagReview) {
		return ""
	}

	contactIDs, err := e.crm.DealContacts(ctx, deal.ID)
	if err != nil || len(contactIDs) == 0 {
		if err != nil {
			e.logger.Warn("review deal contacts lookup failed", zap.String("deal_id", deal.ID), zap.Error(err))
		}
		return "review FAIL deal " + deal.ID + ": no associated contact"
	}

	contact, err := e.crm.GetContact(ctx, contactIDs[0], []string{"email", "firstname"})
	if err != nil {
		e.logger.Warn("review contact fetch failed", zap.String("deal_id", deal.ID), zap.Error(err))
		return "review FAIL deal " + deal.ID + ": " + err.Error()
	}

	address := contact.Email()
	if address == "" {
		return "review FAIL deal " + deal.ID + ": contact has no email"
	}

	currentPeriod := hubspot.ReviewPeriodTag(now)
	previousPeriod := hubspot.ReviewPeriodTag(now.AddDate(0, -6, 0))
	if e.crm.HasAutomationTag(ctx, "contacts", contact.ID, currentPeriod) ||
		e.crm.HasAutomationTag(ctx, "contacts", contact.ID, previousPeriod) {
		// Tag the deal anyway so it drops out of future runs.
		note := hubspot.TagReview + " Skipped review request - contact " + contact.ID + " was recently asked (" + currentPeriod + ")"
		if err := e.crm.CreateDealNote(ctx, deal.ID, note); err != nil {
			e.logger.Warn("review skip note failed", zap.String("deal_id", deal.ID), zap.Error(err))
		}
		return "review skipped (recently asked) -> " + address
	}

	if !e.crm.IsSubscribed(ctx, address) {
		return ""
	}

	tmpl := email.ReviewRequestEmail(contact.Properties["firstname"], e.email.UnsubscribeURL(address))
	if err := e.email.Send(ctx, address, tmpl.Subject, tmpl.HTML); err != nil {
		e.logger.Warn("review email failed", zap.String("deal_id", deal.ID), zap.Error(err))
		return "review FAIL " + address + ": " + err.Error()
	}

	if err := e.crm.CreateDealNote(ctx, deal.ID, hubspot.TagReview+e.sentStamp(address)); err != nil {
		e.logger.Warn("review deal note failed", zap.String("deal_id", deal.ID), zap.Error(err))
	}
	if err := e.crm.CreateContactNote(ctx, contact.ID, currentPeriod+e.sentStamp(address)); err != nil {
		e.logger.Warn("review period note failed", zap.String("contact_id", contact.ID), zap.Error(err))
	}
	return "review -> " + address
}
