package campaign

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/email"
	"github.com/myhorsefarm/farmops/internal/hubspot"
)

var contactProps = []string{"email", "firstname", "createdate"}

// welcomeStage describes one email in the onboarding drip: the window of
// contact ages it applies to, the tag that must already be present, and the
// tag it writes.
type welcomeStage struct {
	name string
	// minAge and maxAge bound the contact's age for this stage.
	minAge      time.Duration
	maxAge      time.Duration
	requiresTag string
	tag         string
	template    func(firstname, unsubscribeURL string) email.Template
}

// RunWelcomeSequence sends the three-email onboarding drip. Each stage keys
// off contact age and the previous stage's tag, so a contact moves through
// the sequence across runs without a stored cursor.
func (e *Engine) RunWelcomeSequence(ctx context.Context) ([]string, error) {
	stages := []welcomeStage{
		{
			name:     "welcome_1",
			maxAge:   24 * time.Hour,
			tag:      hubspot.TagWelcome1,
			template: email.WelcomeEmail1,
		},
		{
			name:        "welcome_2",
			minAge:      3 * 24 * time.Hour,
			maxAge:      10 * 24 * time.Hour,
			requiresTag: hubspot.TagWelcome1,
			tag:         hubspot.TagWelcome2,
			template:    email.WelcomeEmail2,
		},
		{
			name:        "welcome_3",
			minAge:      7 * 24 * time.Hour,
			maxAge:      21 * 24 * time.Hour,
			requiresTag: hubspot.TagWelcome2,
			tag:         hubspot.TagWelcome3,
			template:    email.WelcomeEmail3,
		},
	}

	now := e.clock.NowUTC()
	var results []string

	for _, stage := range stages {
		filters := []hubspot.Filter{
			{PropertyName: "createdate", Operator: "GTE", Value: msEpoch(now.Add(-stage.maxAge))},
		}
		if stage.minAge > 0 {
			filters = append(filters, hubspot.Filter{
				PropertyName: "createdate", Operator: "LTE", Value: msEpoch(now.Add(-stage.minAge)),
			})
		}

		contacts, err := e.crm.SearchContacts(ctx, contactFilter(filters...), contactProps)
		if err != nil {
			e.logger.Error("welcome sequence contact search failed",
				zap.String("stage", stage.name), zap.Error(err))
			return results, err
		}

		for _, contact := range contacts {
			if r := e.runWelcomeStage(ctx, stage, contact); r != "" {
				results = append(results, r)
			}
		}
	}

	return results, nil
}

// runWelcomeStage processes one contact for one stage, returning a result
// line or "" when the contact is simply not eligible.
func (e *Engine) runWelcomeStage(ctx context.Context, stage welcomeStage, contact *hubspot.Contact) string {
	address := contact.Email()
	if address == "" {
		return ""
	}
	if !e.crm.IsSubscribed(ctx, address) {
		return ""
	}
	if stage.requiresTag != "" && !e.crm.HasAutomationTag(ctx, "contacts", contact.ID, stage.requiresTag) {
		return ""
	}
	if e.crm.HasAutomationTag(ctx, "contacts", contact.ID, stage.tag) {
		return ""
	}

	tmpl := stage.template(contact.Properties["firstname"], e.email.UnsubscribeURL(address))
	if err := e.email.Send(ctx, address, tmpl.Subject, tmpl.HTML); err != nil {
		e.logger.Warn("welcome email failed",
			zap.String("stage", stage.name), zap.String("contact_id", contact.ID), zap.Error(err))
		return stage.name + " FAIL " + address + ": " + err.Error()
	}

	if err := e.crm.CreateContactNote(ctx, contact.ID, stage.tag+e.sentStamp(address)); err != nil {
		e.logger.Warn("welcome tag note failed",
			zap.String("stage", stage.name), zap.String("contact_id", contact.ID), zap.Error(err))
	}
	return stage.name + " -> " + address
}
