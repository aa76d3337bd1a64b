package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/myhorsefarm/farmops/internal/ai"
	"github.com/myhorsefarm/farmops/internal/domain"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
	"github.com/myhorsefarm/farmops/internal/hubspot"
	"github.com/myhorsefarm/farmops/internal/square"
)

// mockServiceRepo is an in-memory domain.ServiceRepository.
type mockServiceRepo struct {
	mu       sync.RWMutex
	services map[string]*domain.Service
}

func newMockServiceRepo(services ...*domain.Service) *mockServiceRepo {
	m := &mockServiceRepo{services: make(map[string]*domain.Service)}
	for _, s := range services {
		m.services[s.Key] = s
	}
	return m
}

func (m *mockServiceRepo) GetByKey(ctx context.Context, key string) (*domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[key]
	if !ok {
		return nil, apperrors.NotFound("service")
	}
	return svc, nil
}

func (m *mockServiceRepo) ListActive(ctx context.Context) ([]*domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Service
	for _, s := range m.services {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockServiceRepo) UpdatePricing(ctx context.Context, key string, baseRate, minimumCharge float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.services[key]
	if !ok {
		return apperrors.NotFound("service")
	}
	svc.BaseRate = baseRate
	svc.MinimumCharge = minimumCharge
	return nil
}

// mockQuoteRepo is an in-memory domain.QuoteRepository.
type mockQuoteRepo struct {
	mu     sync.RWMutex
	quotes map[uuid.UUID]*domain.Quote

	CreateError error
}

func newMockQuoteRepo(quotes ...*domain.Quote) *mockQuoteRepo {
	m := &mockQuoteRepo{quotes: make(map[uuid.UUID]*domain.Quote)}
	for _, q := range quotes {
		m.quotes[q.ID] = q
	}
	return m
}

func (m *mockQuoteRepo) Create(ctx context.Context, quote *domain.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateError != nil {
		return m.CreateError
	}
	m.quotes[quote.ID] = quote
	return nil
}

func (m *mockQuoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Quote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, apperrors.NotFound("quote")
	}
	copied := *q
	return &copied, nil
}

func (m *mockQuoteRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.QuoteStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return apperrors.NotFound("quote")
	}
	q.Status = status
	return nil
}

func (m *mockQuoteRepo) SetHubSpotIDs(ctx context.Context, id uuid.UUID, contactID, dealID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return apperrors.NotFound("quote")
	}
	q.HubSpotContactID = contactID
	q.HubSpotDealID = dealID
	return nil
}

// mockBookingRepo is an in-memory domain.BookingRepository.
type mockBookingRepo struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*domain.Booking

	createErr error
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[uuid.UUID]*domain.Booking)}
}

func (m *mockBookingRepo) Create(ctx context.Context, booking *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.bookings[booking.ID] = booking
	return nil
}

func (m *mockBookingRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, apperrors.NotFound("booking")
	}
	copied := *b
	return &copied, nil
}

func (m *mockBookingRepo) CountForDate(ctx context.Context, date string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, b := range m.bookings {
		if b.ScheduledDate == date && b.Status != domain.BookingStatusCancelled {
			count++
		}
	}
	return count, nil
}

func (m *mockBookingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return apperrors.NotFound("booking")
	}
	b.Status = status
	return nil
}

func (m *mockBookingRepo) SetHubSpotDealID(ctx context.Context, id uuid.UUID, dealID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return apperrors.NotFound("booking")
	}
	b.HubSpotDealID = dealID
	return nil
}

// mockScheduleRepo holds a single settings row.
type mockScheduleRepo struct {
	mu       sync.RWMutex
	settings *domain.ScheduleSettings
}

func (m *mockScheduleRepo) Get(ctx context.Context) (*domain.ScheduleSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, apperrors.NotFound("schedule settings")
	}
	return m.settings, nil
}

func (m *mockScheduleRepo) Update(ctx context.Context, settings *domain.ScheduleSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	return nil
}

// mockSequenceRepo counts per kind+day.
type mockSequenceRepo struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMockSequenceRepo() *mockSequenceRepo {
	return &mockSequenceRepo{counts: make(map[string]int)}
}

func (m *mockSequenceRepo) Next(ctx context.Context, kind domain.SequenceKind, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(kind) + ":" + day
	m.counts[key]++
	return m.counts[key], nil
}

// mockChatSessionRepo is an in-memory domain.ChatSessionRepository.
type mockChatSessionRepo struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.ChatSession
}

func newMockChatSessionRepo(sessions ...*domain.ChatSession) *mockChatSessionRepo {
	m := &mockChatSessionRepo{sessions: make(map[uuid.UUID]*domain.ChatSession)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *mockChatSessionRepo) Create(ctx context.Context, session *domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *mockChatSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.NotFound("chat session")
	}
	copied := *s
	copied.Messages = append([]domain.ChatMessage(nil), s.Messages...)
	return &copied, nil
}

func (m *mockChatSessionRepo) AppendMessages(ctx context.Context, id uuid.UUID, messages ...domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return apperrors.NotFound("chat session")
	}
	s.Messages = append(s.Messages, messages...)
	return nil
}

func (m *mockChatSessionRepo) SetQuoteID(ctx context.Context, id uuid.UUID, quoteID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return apperrors.NotFound("chat session")
	}
	s.QuoteID = &quoteID
	return nil
}

func (m *mockChatSessionRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.ChatSessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return apperrors.NotFound("chat session")
	}
	s.Status = status
	return nil
}

func (m *mockChatSessionRepo) SetExtracted(ctx context.Context, id uuid.UUID, service, location, details string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return apperrors.NotFound("chat session")
	}
	s.ExtractedService = service
	s.ExtractedLocation = location
	s.ExtractedDetails = details
	return nil
}

// crmNote records one note write for assertions.
type crmNote struct {
	ObjectID string
	Body     string
}

// crmDeal records one deal create for assertions.
type crmDeal struct {
	ContactID string
	Name      string
	Amount    string
	StageID   string
}

// mockCRM is an in-memory CRMClient. Notes written through it feed the
// automation tag counts, mirroring how the real client reads tags back out
// of note bodies.
type mockCRM struct {
	mu sync.Mutex

	contactsByEmail map[string]*hubspot.Contact
	contactsByPhone map[string]*hubspot.Contact
	activeDeals     map[string]*hubspot.Deal
	unsubscribed    map[string]bool

	createdContacts []*hubspot.Contact
	createdDeals    []crmDeal
	contactNotes    []crmNote
	dealNotes       []crmNote
	stageUpdates    map[string]string
	amountUpdates   map[string]string

	findContactErr error
	createDealErr  error
	createNoteErr  error
	nextDealID     int
}

func newMockCRM() *mockCRM {
	return &mockCRM{
		contactsByEmail: make(map[string]*hubspot.Contact),
		contactsByPhone: make(map[string]*hubspot.Contact),
		activeDeals:     make(map[string]*hubspot.Deal),
		unsubscribed:    make(map[string]bool),
		stageUpdates:    make(map[string]string),
		amountUpdates:   make(map[string]string),
		nextDealID:      100,
	}
}

func (m *mockCRM) addContact(id, email, phone string) *hubspot.Contact {
	contact := &hubspot.Contact{ID: id, Properties: map[string]string{"email": email, "phone": phone}}
	m.contactsByEmail[email] = contact
	if phone != "" {
		m.contactsByPhone[phone] = contact
	}
	return contact
}

func (m *mockCRM) FindContactByEmail(ctx context.Context, email string) (*hubspot.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findContactErr != nil {
		return nil, m.findContactErr
	}
	return m.contactsByEmail[email], nil
}

func (m *mockCRM) FindContactByPhone(ctx context.Context, phone string) (*hubspot.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contactsByPhone[phone], nil
}

func (m *mockCRM) CreateContact(ctx context.Context, email, firstName, lastName, phone string) (*hubspot.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contact := &hubspot.Contact{
		ID: "contact-" + email,
		Properties: map[string]string{
			"email": email, "firstname": firstName, "lastname": lastName, "phone": phone,
		},
	}
	m.createdContacts = append(m.createdContacts, contact)
	m.contactsByEmail[email] = contact
	return contact, nil
}

func (m *mockCRM) FindActiveDealForContact(ctx context.Context, contactID, completedStage string) (*hubspot.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeDeals[contactID], nil
}

func (m *mockCRM) FindDealByNoteContent(ctx context.Context, contactID, substring string) (*hubspot.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, note := range m.dealNotes {
		if strings.Contains(note.Body, substring) {
			return &hubspot.Deal{ID: note.ObjectID, Properties: map[string]string{"amount": m.amountUpdates[note.ObjectID]}}, nil
		}
	}
	if deal := m.activeDeals[contactID]; deal != nil {
		return deal, nil
	}
	return nil, nil
}

func (m *mockCRM) CreateDeal(ctx context.Context, contactID, dealName, amount, stageID string) (*hubspot.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createDealErr != nil {
		return nil, m.createDealErr
	}
	m.nextDealID++
	m.createdDeals = append(m.createdDeals, crmDeal{ContactID: contactID, Name: dealName, Amount: amount, StageID: stageID})
	return &hubspot.Deal{
		ID:         fmt.Sprintf("deal-%d", m.nextDealID),
		Properties: map[string]string{"dealname": dealName, "amount": amount, "dealstage": stageID},
	}, nil
}

func (m *mockCRM) UpdateDealStage(ctx context.Context, dealID, stageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageUpdates[dealID] = stageID
	return nil
}

func (m *mockCRM) UpdateDealAmount(ctx context.Context, dealID, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.amountUpdates[dealID] = amount
	return nil
}

func (m *mockCRM) CreateContactNote(ctx context.Context, contactID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createNoteErr != nil {
		return m.createNoteErr
	}
	m.contactNotes = append(m.contactNotes, crmNote{ObjectID: contactID, Body: body})
	return nil
}

func (m *mockCRM) CreateDealNote(ctx context.Context, dealID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dealNotes = append(m.dealNotes, crmNote{ObjectID: dealID, Body: body})
	return nil
}

func (m *mockCRM) HasAutomationTag(ctx context.Context, objectType, objectID, tag string) bool {
	return m.CountAutomationTags(ctx, objectType, objectID, tag) > 0
}

func (m *mockCRM) CountAutomationTags(ctx context.Context, objectType, objectID, tag string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	notes := m.contactNotes
	if objectType == "deals" {
		notes = m.dealNotes
	}
	count := 0
	for _, note := range notes {
		if note.ObjectID == objectID && strings.Contains(note.Body, tag) {
			count++
		}
	}
	return count
}

func (m *mockCRM) IsSubscribed(ctx context.Context, email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unsubscribed[email]
}

// sentEmail records one Send call.
type sentEmail struct {
	To      string
	Subject string
	HTML    string
}

// mockEmail is an in-memory EmailSender.
type mockEmail struct {
	mu      sync.Mutex
	sent    []sentEmail
	sendErr error
}

func (m *mockEmail) Send(ctx context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentEmail{To: to, Subject: subject, HTML: html})
	return nil
}

func (m *mockEmail) UnsubscribeURL(email string) string {
	return "https://www.myhorsefarm.com/api/unsubscribe?email=" + email + "&sig=test"
}

func (m *mockEmail) QuoteURL(quoteID string) string {
	return "https://www.myhorsefarm.com/quote/" + quoteID
}

func (m *mockEmail) SalesAddress() string {
	return "sales@myhorsefarm.com"
}

// mockPayments is an in-memory PaymentClient.
type mockPayments struct {
	payments  map[string]*square.Payment
	customers map[string]*square.Customer
	orders    map[string]*square.Order
	refunds   map[string]*square.Refund
}

func newMockPayments() *mockPayments {
	return &mockPayments{
		payments:  make(map[string]*square.Payment),
		customers: make(map[string]*square.Customer),
		orders:    make(map[string]*square.Order),
		refunds:   make(map[string]*square.Refund),
	}
}

func (m *mockPayments) GetPayment(ctx context.Context, id string) (*square.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, apperrors.ExternalServiceError("square", apperrors.NotFound("payment"))
	}
	return p, nil
}

func (m *mockPayments) GetCustomer(ctx context.Context, id string) (*square.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, apperrors.ExternalServiceError("square", apperrors.NotFound("customer"))
	}
	return c, nil
}

func (m *mockPayments) GetOrder(ctx context.Context, id string) (*square.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, apperrors.ExternalServiceError("square", apperrors.NotFound("order"))
	}
	return o, nil
}

func (m *mockPayments) GetRefund(ctx context.Context, id string) (*square.Refund, error) {
	r, ok := m.refunds[id]
	if !ok {
		return nil, apperrors.ExternalServiceError("square", apperrors.NotFound("refund"))
	}
	return r, nil
}

// mockModel replays scripted turns in order.
type mockModel struct {
	mu       sync.Mutex
	turns    []*ai.AssistantTurn
	err      error
	requests [][]ai.Message
}

func (m *mockModel) StreamMessage(ctx context.Context, system string, tools []ai.Tool, messages []ai.Message, onText func(text string)) (*ai.AssistantTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.requests = append(m.requests, messages)
	if len(m.turns) == 0 {
		return &ai.AssistantTurn{StopReason: "end_turn"}, nil
	}
	turn := m.turns[0]
	m.turns = m.turns[1:]
	if onText != nil && turn.Text != "" {
		onText(turn.Text)
	}
	return turn, nil
}
