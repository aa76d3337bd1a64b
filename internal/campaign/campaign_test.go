package campaign

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/clock"
	"github.com/myhorsefarm/farmops/internal/config"
	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
	"github.com/myhorsefarm/farmops/internal/hubspot"
)

var testHubSpotCfg = &config.HubSpotConfig{
	StageCompleted: "stage-completed",
	StageLost:      "stage-lost",
}

// fakeCRM serves canned contacts and deals and records notes. Tag lookups
// read back through the recorded notes plus any seeded ones, matching how
// the real client derives tags from note bodies.
type fakeCRM struct {
	mu sync.Mutex

	contacts     []*hubspot.Contact
	deals        []*hubspot.Deal
	dealContacts map[string][]string
	unsubscribed map[string]bool

	contactNotes map[string][]string
	dealNotes    map[string][]string

	searchContactsErr error
	searchDealsErr    error

	// lastContactFilters captures the filters of the most recent contact
	// search for assertions.
	lastContactFilters [][]hubspot.FilterGroup
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		dealContacts: make(map[string][]string),
		unsubscribed: make(map[string]bool),
		contactNotes: make(map[string][]string),
		dealNotes:    make(map[string][]string),
	}
}

func (f *fakeCRM) addContact(id, email, firstname, createdate, phone string) *hubspot.Contact {
	contact := &hubspot.Contact{ID: id, Properties: map[string]string{
		"email": email, "firstname": firstname, "createdate": createdate, "phone": phone,
	}}
	f.contacts = append(f.contacts, contact)
	return contact
}

func (f *fakeCRM) SearchContacts(ctx context.Context, groups []hubspot.FilterGroup, properties []string) ([]*hubspot.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchContactsErr != nil {
		return nil, f.searchContactsErr
	}
	f.lastContactFilters = append(f.lastContactFilters, groups)

	var matched []*hubspot.Contact
	for _, c := range f.contacts {
		ok := true
		for _, g := range groups {
			for _, filter := range g.Filters {
				if !matchesFilter(c, filter) {
					ok = false
				}
			}
		}
		if ok {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// matchesFilter applies the subset of HubSpot search operators the campaign
// engine uses against an in-memory contact.
func matchesFilter(c *hubspot.Contact, filter hubspot.Filter) bool {
	value := c.Properties[filter.PropertyName]
	if filter.PropertyName == "createdate" {
		created, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return false
		}
		bound, err := strconv.ParseInt(filter.Value, 10, 64)
		if err != nil {
			return false
		}
		switch filter.Operator {
		case "GTE":
			return created.UnixMilli() >= bound
		case "LTE":
			return created.UnixMilli() <= bound
		}
		return false
	}
	switch filter.Operator {
	case "EQ":
		return value == filter.Value
	case "CONTAINS_TOKEN":
		return strings.Contains(value, filter.Value)
	}
	return false
}

func (f *fakeCRM) SearchDeals(ctx context.Context, groups []hubspot.FilterGroup, properties []string) ([]*hubspot.Deal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchDealsErr != nil {
		return nil, f.searchDealsErr
	}
	return append([]*hubspot.Deal(nil), f.deals...), nil
}

func (f *fakeCRM) DealContacts(ctx context.Context, dealID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dealContacts[dealID], nil
}

func (f *fakeCRM) GetContact(ctx context.Context, id string, properties []string) (*hubspot.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, apperrors.NotFound("contact")
}

func (f *fakeCRM) CreateContactNote(ctx context.Context, contactID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contactNotes[contactID] = append(f.contactNotes[contactID], body)
	return nil
}

func (f *fakeCRM) CreateDealNote(ctx context.Context, dealID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dealNotes[dealID] = append(f.dealNotes[dealID], body)
	return nil
}

func (f *fakeCRM) HasAutomationTag(ctx context.Context, objectType, objectID, tag string) bool {
	return f.CountAutomationTags(ctx, objectType, objectID, tag) > 0
}

func (f *fakeCRM) CountAutomationTags(ctx context.Context, objectType, objectID, tag string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	notes := f.contactNotes[objectID]
	if objectType == "deals" {
		notes = f.dealNotes[objectID]
	}
	count := 0
	for _, note := range notes {
		if strings.Contains(note, tag) {
			count++
		}
	}
	return count
}

func (f *fakeCRM) IsSubscribed(ctx context.Context, email string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unsubscribed[email]
}

type sentEmail struct {
	To      string
	Subject string
}

type fakeEmail struct {
	mu      sync.Mutex
	sent    []sentEmail
	failFor map[string]error
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject})
	return nil
}

func (f *fakeEmail) UnsubscribeURL(email string) string {
	return "https://www.myhorsefarm.com/api/unsubscribe?email=" + email + "&sig=test"
}

type fakeCatalog struct{ services []*domain.Service }

func (f *fakeCatalog) GetByKey(ctx context.Context, key string) (*domain.Service, error) {
	return nil, apperrors.NotFound("service")
}

func (f *fakeCatalog) ListActive(ctx context.Context) ([]*domain.Service, error) {
	return f.services, nil
}

func (f *fakeCatalog) UpdatePricing(ctx context.Context, key string, baseRate, minimumCharge float64) error {
	return nil
}

type campaignFixture struct {
	engine *Engine
	crm    *fakeCRM
	email  *fakeEmail
	clock  *clock.Mock
	now    time.Time
}

func newCampaignFixture(t *testing.T) *campaignFixture {
	t.Helper()
	crm := newFakeCRM()
	sender := &fakeEmail{failFor: make(map[string]error)}
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	clk := clock.NewMock(now)
	catalog := &fakeCatalog{services: []*domain.Service{
		{Name: "Manure Removal", Active: true},
		{Name: "Arena Drag", Active: true},
		{Name: "Junk Removal", Active: true},
	}}

	engine := NewEngine(crm, sender, catalog, testHubSpotCfg, clk, zap.NewNop())
	return &campaignFixture{engine: engine, crm: crm, email: sender, clock: clk, now: now}
}

// created returns an ISO createdate the given duration before the fixture
// clock.
func (f *campaignFixture) created(ago time.Duration) string {
	return f.now.Add(-ago).Format(time.RFC3339)
}

func TestWelcomeSequence_FirstEmail(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "new@example.com", "Dana", f.created(2*time.Hour), "")

	results, err := f.engine.RunWelcomeSequence(context.Background())
	if err != nil {
		t.Fatalf("RunWelcomeSequence: %v", err)
	}

	if len(results) != 1 || results[0] != "welcome_1 -> new@example.com" {
		t.Errorf("results = %v", results)
	}
	if len(f.email.sent) != 1 || !strings.Contains(f.email.sent[0].Subject, "Welcome") {
		t.Errorf("sent = %+v", f.email.sent)
	}
	notes := f.crm.contactNotes["c1"]
	if len(notes) != 1 || !strings.Contains(notes[0], hubspot.TagWelcome1) {
		t.Errorf("notes = %v", notes)
	}
	if !strings.Contains(notes[0], "Sent to new@example.com on ") {
		t.Errorf("note should carry the delivery stamp: %q", notes[0])
	}
}

func TestWelcomeSequence_TaggedContactNotResent(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "new@example.com", "Dana", f.created(2*time.Hour), "")
	f.crm.contactNotes["c1"] = []string{hubspot.TagWelcome1 + " Sent to new@example.com on 2025-06-01T00:00:00Z"}

	results, err := f.engine.RunWelcomeSequence(context.Background())
	if err != nil {
		t.Fatalf("RunWelcomeSequence: %v", err)
	}
	if len(results) != 0 || len(f.email.sent) != 0 {
		t.Errorf("results = %v, sent = %+v", results, f.email.sent)
	}
}

func TestWelcomeSequence_SecondEmailRequiresFirstTag(t *testing.T) {
	f := newCampaignFixture(t)
	// Old enough for email 2, but never got email 1: nothing goes out,
	// the sequence does not skip ahead.
	f.crm.addContact("c1", "mid@example.com", "Dana", f.created(5*24*time.Hour), "")

	results, _ := f.engine.RunWelcomeSequence(context.Background())
	if len(results) != 0 {
		t.Errorf("results = %v", results)
	}

	// With the first tag present the second email goes out.
	f.crm.contactNotes["c1"] = []string{hubspot.TagWelcome1 + " Sent to mid@example.com on 2025-05-28T00:00:00Z"}
	results, _ = f.engine.RunWelcomeSequence(context.Background())
	if len(results) != 1 || results[0] != "welcome_2 -> mid@example.com" {
		t.Errorf("results = %v", results)
	}
}

func TestWelcomeSequence_UnsubscribedSkipped(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "new@example.com", "Dana", f.created(2*time.Hour), "")
	f.crm.unsubscribed["new@example.com"] = true

	results, _ := f.engine.RunWelcomeSequence(context.Background())
	if len(results) != 0 || len(f.email.sent) != 0 {
		t.Error("unsubscribed contact must not be emailed")
	}
}

func TestWelcomeSequence_SendFailureReported(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "new@example.com", "Dana", f.created(2*time.Hour), "")
	f.email.failFor["new@example.com"] = errors.New("bounce")

	results, err := f.engine.RunWelcomeSequence(context.Background())
	if err != nil {
		t.Fatalf("send failure must not abort the run: %v", err)
	}
	if len(results) != 1 || !strings.Contains(results[0], "welcome_1 FAIL new@example.com") {
		t.Errorf("results = %v", results)
	}
	// No tag note on failure, so the next run retries.
	if len(f.crm.contactNotes["c1"]) != 0 {
		t.Error("failed send must not write the gating tag")
	}
}

func TestWelcomeSequence_SearchErrorAborts(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.searchContactsErr = errors.New("hubspot down")

	if _, err := f.engine.RunWelcomeSequence(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func paymentNotes(n int) []string {
	notes := make([]string, n)
	for i := range notes {
		notes[i] = hubspot.PaymentTag("100.00", "2025-05-0"+strconv.Itoa(i+1), "pay_"+strconv.Itoa(i))
	}
	return notes
}

func TestClientEngagement_TwelveMonthMilestone(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "loyal@example.com", "Dana", f.created(13*30*24*time.Hour), "")
	f.crm.contactNotes["c1"] = paymentNotes(3)

	results, err := f.engine.RunClientEngagement(context.Background())
	if err != nil {
		t.Fatalf("RunClientEngagement: %v", err)
	}
	if len(results) != 1 || results[0] != "milestone_12m -> loyal@example.com" {
		t.Errorf("results = %v", results)
	}
	if !strings.Contains(f.email.sent[0].Subject, "12 Months") {
		t.Errorf("subject = %q", f.email.sent[0].Subject)
	}
}

func TestClientEngagement_OneEmailPerContactPerRun(t *testing.T) {
	f := newCampaignFixture(t)
	// Qualifies for the 12-month milestone AND the referral ask; only the
	// higher-priority milestone goes out.
	f.crm.addContact("c1", "loyal@example.com", "Dana", f.created(13*30*24*time.Hour), "")
	f.crm.contactNotes["c1"] = paymentNotes(6)

	results, _ := f.engine.RunClientEngagement(context.Background())
	if len(results) != 1 || results[0] != "milestone_12m -> loyal@example.com" {
		t.Errorf("results = %v", results)
	}
	if len(f.email.sent) != 1 {
		t.Errorf("sent %d emails, want 1", len(f.email.sent))
	}
}

func TestClientEngagement_SixMonthMilestone(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "mid@example.com", "Dana", f.created(7*30*24*time.Hour), "")
	f.crm.contactNotes["c1"] = paymentNotes(3)

	results, _ := f.engine.RunClientEngagement(context.Background())
	if len(results) != 1 || results[0] != "milestone_6m -> mid@example.com" {
		t.Errorf("results = %v", results)
	}
	if !strings.Contains(f.email.sent[0].Subject, "6 Months") {
		t.Errorf("subject = %q", f.email.sent[0].Subject)
	}
}

func TestClientEngagement_SixMonthMilestoneNeedsThreePayments(t *testing.T) {
	f := newCampaignFixture(t)
	// Seven months in with only two payments: no tier fires. The milestone
	// threshold is three, same as the 12-month check.
	f.crm.addContact("c1", "mid@example.com", "Dana", f.created(7*30*24*time.Hour), "")
	f.crm.contactNotes["c1"] = paymentNotes(2)

	results, err := f.engine.RunClientEngagement(context.Background())
	if err != nil {
		t.Fatalf("RunClientEngagement: %v", err)
	}
	if len(results) != 0 || len(f.email.sent) != 0 {
		t.Errorf("results = %v, sent = %+v", results, f.email.sent)
	}
}

func TestClientEngagement_ReferralAfterMilestones(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "loyal@example.com", "Dana", f.created(13*30*24*time.Hour), "")
	notes := paymentNotes(5)
	notes = append(notes,
		hubspot.TagMilestone12M+" Sent to loyal@example.com on 2025-01-01T00:00:00Z",
		hubspot.TagMilestone6M+" Sent to loyal@example.com on 2024-07-01T00:00:00Z",
	)
	f.crm.contactNotes["c1"] = notes

	results, _ := f.engine.RunClientEngagement(context.Background())
	if len(results) != 1 || results[0] != "referral -> loyal@example.com" {
		t.Errorf("results = %v", results)
	}
}

func TestClientEngagement_UpsellExcludesManureRemoval(t *testing.T) {
	f := newCampaignFixture(t)
	// Recent customer: no milestones yet, three payments, upsell fires.
	f.crm.addContact("c1", "buyer@example.com", "Dana", f.created(2*30*24*time.Hour), "")
	f.crm.contactNotes["c1"] = paymentNotes(3)

	results, _ := f.engine.RunClientEngagement(context.Background())
	if len(results) != 1 || results[0] != "upsell -> buyer@example.com" {
		t.Fatalf("results = %v", results)
	}

	var tagged bool
	for _, note := range f.crm.contactNotes["c1"] {
		if strings.Contains(note, hubspot.UpsellTag(2025)) {
			tagged = true
		}
	}
	if !tagged {
		t.Error("upsell should write the year-scoped tag")
	}
}

func TestClientEngagement_NoPaymentsSkipped(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "browser@example.com", "Dana", f.created(8*30*24*time.Hour), "")

	results, _ := f.engine.RunClientEngagement(context.Background())
	if len(results) != 0 || len(f.email.sent) != 0 {
		t.Error("contacts with no payments must be skipped")
	}
}

func TestReviewRequest(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.deals = []*hubspot.Deal{{ID: "d1", Properties: map[string]string{"dealname": "Manure Removal"}}}
	f.crm.dealContacts["d1"] = []string{"c1"}
	f.crm.addContact("c1", "happy@example.com", "Dana", f.created(40*24*time.Hour), "")

	results, err := f.engine.RunReviewRequest(context.Background())
	if err != nil {
		t.Fatalf("RunReviewRequest: %v", err)
	}
	if len(results) != 1 || results[0] != "review -> happy@example.com" {
		t.Errorf("results = %v", results)
	}

	// Deal gets the processed tag, contact gets the period tag.
	if len(f.crm.dealNotes["d1"]) != 1 || !strings.Contains(f.crm.dealNotes["d1"][0], hubspot.TagReview) {
		t.Errorf("deal notes = %v", f.crm.dealNotes["d1"])
	}
	period := hubspot.ReviewPeriodTag(f.now)
	if len(f.crm.contactNotes["c1"]) != 1 || !strings.Contains(f.crm.contactNotes["c1"][0], period) {
		t.Errorf("contact notes = %v", f.crm.contactNotes["c1"])
	}
}

func TestReviewRequest_ProcessedDealSkipped(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.deals = []*hubspot.Deal{{ID: "d1", Properties: map[string]string{}}}
	f.crm.dealNotes["d1"] = []string{hubspot.TagReview + " Sent to happy@example.com on 2025-05-20T00:00:00Z"}

	results, _ := f.engine.RunReviewRequest(context.Background())
	if len(results) != 0 || len(f.email.sent) != 0 {
		t.Error("tagged deal must be skipped")
	}
}

func TestReviewRequest_RecentlyAskedContact(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.deals = []*hubspot.Deal{{ID: "d1", Properties: map[string]string{}}}
	f.crm.dealContacts["d1"] = []string{"c1"}
	f.crm.addContact("c1", "happy@example.com", "Dana", f.created(40*24*time.Hour), "")
	// Asked in the previous half-year period.
	prev := hubspot.ReviewPeriodTag(f.now.AddDate(0, -6, 0))
	f.crm.contactNotes["c1"] = []string{prev + " Sent to happy@example.com on 2025-01-10T00:00:00Z"}

	results, _ := f.engine.RunReviewRequest(context.Background())
	if len(results) != 1 || !strings.Contains(results[0], "skipped") {
		t.Errorf("results = %v", results)
	}
	if len(f.email.sent) != 0 {
		t.Error("recently asked contact must not be emailed")
	}
	// The deal is still tagged so it never comes back.
	if len(f.crm.dealNotes["d1"]) != 1 || !strings.Contains(f.crm.dealNotes["d1"][0], hubspot.TagReview) {
		t.Errorf("deal notes = %v", f.crm.dealNotes["d1"])
	}
}

func TestReviewRequest_DealWithoutContact(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.deals = []*hubspot.Deal{{ID: "d1", Properties: map[string]string{}}}

	results, _ := f.engine.RunReviewRequest(context.Background())
	if len(results) != 1 || !strings.Contains(results[0], "no associated contact") {
		t.Errorf("results = %v", results)
	}
}

func TestPreSeason(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "local@example.com", "Dana", f.created(200*24*time.Hour), "+15615551234")

	results, err := f.engine.RunPreSeason(context.Background())
	if err != nil {
		t.Fatalf("RunPreSeason: %v", err)
	}
	if len(results) != 1 || results[0] != "preseason -> local@example.com" {
		t.Errorf("results = %v", results)
	}

	notes := f.crm.contactNotes["c1"]
	if len(notes) != 1 || !strings.Contains(notes[0], hubspot.PreseasonTag(2025)) {
		t.Errorf("notes = %v", notes)
	}

	// Second run in the same year: the tag gates it out.
	results, _ = f.engine.RunPreSeason(context.Background())
	if len(results) != 0 {
		t.Errorf("second run results = %v", results)
	}
}

func TestPreSeason_FiltersByAreaCode(t *testing.T) {
	f := newCampaignFixture(t)
	f.crm.addContact("c1", "local@example.com", "Dana", f.created(time.Hour), "+15615551234")

	if _, err := f.engine.RunPreSeason(context.Background()); err != nil {
		t.Fatalf("RunPreSeason: %v", err)
	}

	if len(f.crm.lastContactFilters) != 1 {
		t.Fatalf("searches = %d", len(f.crm.lastContactFilters))
	}
	filter := f.crm.lastContactFilters[0][0].Filters[0]
	if filter.PropertyName != "phone" || filter.Operator != "CONTAINS_TOKEN" || filter.Value != "561" {
		t.Errorf("filter = %+v", filter)
	}
}
