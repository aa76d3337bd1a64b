package campaign

import (
	"context"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/email"
	"github.com/myhorsefarm/farmops/internal/hubspot"
)

// localAreaCode narrows the pre-season blast to local customers. Contact
// records are too sparse to filter by address, so the phone prefix stands
// in for the service area.
const localAreaCode = "561"

// RunPreSeason sends the annual season-opener to local contacts, once per
// year per contact.
func (e *Engine) RunPreSeason(ctx context.Context) ([]string, error) {
	contacts, err := e.crm.SearchContacts(ctx, contactFilter(hubspot.Filter{
		PropertyName: "phone", Operator: "CONTAINS_TOKEN", Value: localAreaCode,
	}), []string{"email", "firstname", "phone"})
	if err != nil {
		e.logger.Error("pre-season contact search failed", zap.Error(err))
		return nil, err
	}

	tag := hubspot.PreseasonTag(e.clock.NowUTC().Year())

	var results []string
	for _, contact := range contacts {
		address := contact.Email()
		if address == "" {
			continue
		}
		if e.crm.HasAutomationTag(ctx, "contacts", contact.ID, tag) {
			continue
		}
		if !e.crm.IsSubscribed(ctx, address) {
			continue
		}

		tmpl := email.PreSeasonEmail(contact.Properties["firstname"], e.email.UnsubscribeURL(address))
		if err := e.email.Send(ctx, address, tmpl.Subject, tmpl.HTML); err != nil {
			e.logger.Warn("pre-season email failed", zap.String("contact_id", contact.ID), zap.Error(err))
			results = append(results, "preseason FAIL "+address+": "+err.Error())
			continue
		}

		if err := e.crm.CreateContactNote(ctx, contact.ID, tag+e.sentStamp(address)); err != nil {
			e.logger.Warn("pre-season tag note failed", zap.String("contact_id", contact.ID), zap.Error(err))
		}
		results = append(results, "preseason -> "+address)
	}
	return results, nil
}
