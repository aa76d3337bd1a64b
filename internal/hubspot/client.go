// Package hubspot provides a client for the HubSpot CRM v3 API covering the
// contact, deal, note, and communication-preference operations this system
// relies on. Notes double as the idempotency ledger: automation state is
// recorded as bracketed tag tokens in note bodies and checked by substring
// scan before any gated send or mutation.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/circuitbreaker"
	"github.com/myhorsefarm/farmops/internal/config"
)

const (
	// DefaultBaseURL is the default HubSpot API endpoint.
	DefaultBaseURL = "https://api.hubapi.com"

	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second

	// searchPageLimit is the page size for CRM search requests.
	searchPageLimit = 100
)

// HubSpot-defined association type ids.
const (
	assocNoteToContact = 202
	assocNoteToDeal    = 214
	assocDealToContact = 3
)

// Client is the HubSpot CRM API client.
type Client struct {
	apiToken       string
	baseURL        string
	pipelineID     string
	subscriptionID string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

// New creates a new HubSpot client from configuration.
func New(cfg *config.HubSpotConfig, logger *zap.Logger) *Client {
	baseURL := cfg.APIURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	cbConfig := &circuitbreaker.Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}

	return &Client{
		apiToken:       cfg.APIToken,
		baseURL:        baseURL,
		pipelineID:     cfg.PipelineID,
		subscriptionID: cfg.SubscriptionID,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		circuitBreaker: circuitbreaker.New("hubspot-api", cbConfig, logger),
		logger:         logger,
	}
}

// APIError represents an error response from the HubSpot API.
type APIError struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Category   string `json:"category,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hubspot API error (status %d): %s", e.StatusCode, e.Message)
}

// request performs an HTTP request with circuit breaker protection.
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	return c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, method, path, body, result)
	})
}

// doRequest performs the actual HTTP request.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("hubspot API request",
		zap.String("method", method),
		zap.String("path", path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// Contact is a CRM contact record.
type Contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// Email returns the contact's email property.
func (c *Contact) Email() string {
	if c == nil {
		return ""
	}
	return c.Properties["email"]
}

// Deal is a CRM deal record.
type Deal struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

// Filter is one property condition inside a search filter group.
type Filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value,omitempty"`
}

// FilterGroup is an AND-combined set of filters; groups are OR-combined.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties"`
	Limit        int           `json:"limit"`
	After        string        `json:"after,omitempty"`
}

type paging struct {
	Next *struct {
		After string `json:"after"`
	} `json:"next,omitempty"`
}

type contactSearchResponse struct {
	Results []*Contact `json:"results"`
	Paging  *paging    `json:"paging,omitempty"`
}

type dealSearchResponse struct {
	Results []*Deal `json:"results"`
}

// SearchContacts runs a paginated contact search and returns all pages.
func (c *Client) SearchContacts(ctx context.Context, groups []FilterGroup, properties []string) ([]*Contact, error) {
	var results []*Contact
	after := ""

	for {
		req := searchRequest{
			FilterGroups: groups,
			Properties:   properties,
			Limit:        searchPageLimit,
			After:        after,
		}

		var resp contactSearchResponse
		if err := c.request(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp); err != nil {
			return nil, err
		}
		results = append(results, resp.Results...)

		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			break
		}
		after = resp.Paging.Next.After
	}

	return results, nil
}

// FindContactByEmail returns the first contact with an exact email match, or
// nil when there is none.
func (c *Client) FindContactByEmail(ctx context.Context, email string) (*Contact, error) {
	results, err := c.SearchContacts(ctx,
		[]FilterGroup{{Filters: []Filter{{PropertyName: "email", Operator: "EQ", Value: email}}}},
		[]string{"email", "firstname", "lastname", "phone"},
	)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// FindContactByPhone returns the first contact with an exact phone match, or
// nil when there is none.
func (c *Client) FindContactByPhone(ctx context.Context, phone string) (*Contact, error) {
	results, err := c.SearchContacts(ctx,
		[]FilterGroup{{Filters: []Filter{{PropertyName: "phone", Operator: "EQ", Value: phone}}}},
		[]string{"email", "firstname", "lastname", "phone"},
	)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// CreateContact creates a contact with the given identity fields.
func (c *Client) CreateContact(ctx context.Context, email, firstName, lastName, phone string) (*Contact, error) {
	properties := map[string]string{
		"email":     email,
		"firstname": firstName,
		"lastname":  lastName,
	}
	if phone != "" {
		properties["phone"] = phone
	}

	var contact Contact
	err := c.request(ctx, http.MethodPost, "/crm/v3/objects/contacts",
		map[string]any{"properties": properties}, &contact)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetContact retrieves a contact by id with the given properties.
func (c *Client) GetContact(ctx context.Context, id string, properties []string) (*Contact, error) {
	params := url.Values{}
	for _, p := range properties {
		params.Add("properties", p)
	}

	var contact Contact
	err := c.request(ctx, http.MethodGet,
		fmt.Sprintf("/crm/v3/objects/contacts/%s?%s", id, params.Encode()), nil, &contact)
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// SearchDeals runs a single-page deal search.
func (c *Client) SearchDeals(ctx context.Context, groups []FilterGroup, properties []string) ([]*Deal, error) {
	req := searchRequest{
		FilterGroups: groups,
		Properties:   properties,
		Limit:        searchPageLimit,
	}

	var resp dealSearchResponse
	if err := c.request(ctx, http.MethodPost, "/crm/v3/objects/deals/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

type associationResponse struct {
	Results []struct {
		ToObjectID json.Number `json:"toObjectId"`
		ID         string      `json:"id"`
	} `json:"results"`
}

// ids extracts the association target ids, tolerating both v3 shapes.
func (a *associationResponse) ids() []string {
	ids := make([]string, 0, len(a.Results))
	for _, r := range a.Results {
		if s := r.ToObjectID.String(); s != "" && s != "0" {
			ids = append(ids, s)
			continue
		}
		if r.ID != "" {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// listAssociations lists the ids of objects associated to the given object.
func (c *Client) listAssociations(ctx context.Context, fromType, fromID, toType string) ([]string, error) {
	var resp associationResponse
	err := c.request(ctx, http.MethodGet,
		fmt.Sprintf("/crm/v3/objects/%s/%s/associations/%s", fromType, fromID, toType), nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.ids(), nil
}

// DealContacts returns the contact ids associated with a deal.
func (c *Client) DealContacts(ctx context.Context, dealID string) ([]string, error) {
	return c.listAssociations(ctx, "deals", dealID, "contacts")
}

type batchReadRequest struct {
	Properties []string          `json:"properties"`
	Inputs     []map[string]string `json:"inputs"`
}

func batchInputs(ids []string) []map[string]string {
	inputs := make([]map[string]string, len(ids))
	for i, id := range ids {
		inputs[i] = map[string]string{"id": id}
	}
	return inputs
}

// batchReadDeals reads multiple deals by id with the given properties.
func (c *Client) batchReadDeals(ctx context.Context, ids, properties []string) ([]*Deal, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var resp dealSearchResponse
	err := c.request(ctx, http.MethodPost, "/crm/v3/objects/deals/batch/read",
		batchReadRequest{Properties: properties, Inputs: batchInputs(ids)}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// FindActiveDealForContact returns the first deal on the configured pipeline
// whose stage is not the terminal completed stage, or nil when the contact
// has no such deal. Used to decide reuse-vs-create when a payment or booking
// arrives for an existing contact.
func (c *Client) FindActiveDealForContact(ctx context.Context, contactID, completedStage string) (*Deal, error) {
	dealIDs, err := c.listAssociations(ctx, "contacts", contactID, "deals")
	if err != nil {
		return nil, err
	}
	if len(dealIDs) == 0 {
		return nil, nil
	}

	deals, err := c.batchReadDeals(ctx, dealIDs, []string{"dealname", "dealstage", "amount", "pipeline"})
	if err != nil {
		return nil, err
	}

	for _, d := range deals {
		if d.Properties["pipeline"] == c.pipelineID && d.Properties["dealstage"] != completedStage {
			return d, nil
		}
	}
	return nil, nil
}

// CreateDeal creates a deal on the configured pipeline, associated to the
// given contact.
func (c *Client) CreateDeal(ctx context.Context, contactID, dealName, amount, stageID string) (*Deal, error) {
	body := map[string]any{
		"properties": map[string]string{
			"dealname":  dealName,
			"amount":    amount,
			"dealstage": stageID,
			"pipeline":  c.pipelineID,
			"closedate": time.Now().UTC().Format(time.RFC3339),
		},
		"associations": []map[string]any{
			{
				"to": map[string]string{"id": contactID},
				"types": []map[string]any{
					{"associationCategory": "HUBSPOT_DEFINED", "associationTypeId": assocDealToContact},
				},
			},
		},
	}

	var deal Deal
	if err := c.request(ctx, http.MethodPost, "/crm/v3/objects/deals", body, &deal); err != nil {
		return nil, err
	}
	return &deal, nil
}

// UpdateDealStage moves a deal to a new stage, refreshing its close date.
func (c *Client) UpdateDealStage(ctx context.Context, dealID, stageID string) error {
	body := map[string]any{
		"properties": map[string]string{
			"dealstage": stageID,
			"closedate": time.Now().UTC().Format(time.RFC3339),
		},
	}
	return c.request(ctx, http.MethodPatch, "/crm/v3/objects/deals/"+dealID, body, nil)
}

// UpdateDealAmount sets a deal's amount.
func (c *Client) UpdateDealAmount(ctx context.Context, dealID, amount string) error {
	body := map[string]any{
		"properties": map[string]string{"amount": amount},
	}
	return c.request(ctx, http.MethodPatch, "/crm/v3/objects/deals/"+dealID, body, nil)
}

// createNote appends a note and associates it to one object.
func (c *Client) createNote(ctx context.Context, objectID string, assocTypeID int, body string) error {
	payload := map[string]any{
		"properties": map[string]string{
			"hs_note_body": body,
			"hs_timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"associations": []map[string]any{
			{
				"to": map[string]string{"id": objectID},
				"types": []map[string]any{
					{"associationCategory": "HUBSPOT_DEFINED", "associationTypeId": assocTypeID},
				},
			},
		},
	}
	return c.request(ctx, http.MethodPost, "/crm/v3/objects/notes", payload, nil)
}

// CreateContactNote appends a note to a contact. This is the write path that
// establishes idempotency markers.
func (c *Client) CreateContactNote(ctx context.Context, contactID, body string) error {
	return c.createNote(ctx, contactID, assocNoteToContact, body)
}

// CreateDealNote appends a note to a deal.
func (c *Client) CreateDealNote(ctx context.Context, dealID, body string) error {
	return c.createNote(ctx, dealID, assocNoteToDeal, body)
}

type noteBatchResponse struct {
	Results []struct {
		Properties struct {
			Body string `json:"hs_note_body"`
		} `json:"properties"`
	} `json:"results"`
}

// NoteBodies returns the body text of every note associated with the object.
// Lookup failures degrade to an empty list so tag checks fail open toward
// "not yet done" rather than blocking the caller.
func (c *Client) NoteBodies(ctx context.Context, objectType, objectID string) []string {
	noteIDs, err := c.listAssociations(ctx, objectType, objectID, "notes")
	if err != nil || len(noteIDs) == 0 {
		return nil
	}

	var resp noteBatchResponse
	err = c.request(ctx, http.MethodPost, "/crm/v3/objects/notes/batch/read",
		batchReadRequest{Properties: []string{"hs_note_body"}, Inputs: batchInputs(noteIDs)}, &resp)
	if err != nil {
		return nil
	}

	bodies := make([]string, 0, len(resp.Results))
	for _, n := range resp.Results {
		if n.Properties.Body != "" {
			bodies = append(bodies, n.Properties.Body)
		}
	}
	return bodies
}

// HasAutomationTag reports whether any note on the object contains the tag
// substring.
func (c *Client) HasAutomationTag(ctx context.Context, objectType, objectID, tag string) bool {
	for _, body := range c.NoteBodies(ctx, objectType, objectID) {
		if containsTag(body, tag) {
			return true
		}
	}
	return false
}

// CountAutomationTags counts notes on the object containing the tag
// substring. Used to detect "is this the customer's Nth payment".
func (c *Client) CountAutomationTags(ctx context.Context, objectType, objectID, tag string) int {
	count := 0
	for _, body := range c.NoteBodies(ctx, objectType, objectID) {
		if containsTag(body, tag) {
			count++
		}
	}
	return count
}

// FindDealByNoteContent scans the deals associated with a contact for one
// whose notes contain the given substring. Used to trace a refund back to
// the deal recorded for the original payment.
func (c *Client) FindDealByNoteContent(ctx context.Context, contactID, substring string) (*Deal, error) {
	dealIDs, err := c.listAssociations(ctx, "contacts", contactID, "deals")
	if err != nil {
		return nil, err
	}

	for _, dealID := range dealIDs {
		for _, body := range c.NoteBodies(ctx, "deals", dealID) {
			if containsTag(body, substring) {
				deals, err := c.batchReadDeals(ctx, []string{dealID}, []string{"dealname", "dealstage", "amount", "pipeline"})
				if err != nil {
					return nil, err
				}
				if len(deals) > 0 {
					return deals[0], nil
				}
			}
		}
	}
	return nil, nil
}

type subscriptionStatusResponse struct {
	SubscriptionStatuses []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"subscriptionStatuses"`
}

// IsSubscribed reports whether the email holds a SUBSCRIBED status on the
// configured marketing subscription. Lookup failures report false so no
// marketing email goes to an unverifiable address.
func (c *Client) IsSubscribed(ctx context.Context, email string) bool {
	var resp subscriptionStatusResponse
	err := c.request(ctx, http.MethodGet,
		"/communication-preferences/v3/status/email/"+url.QueryEscape(email), nil, &resp)
	if err != nil {
		return false
	}

	for _, s := range resp.SubscriptionStatuses {
		if s.ID == c.subscriptionID {
			return s.Status == "SUBSCRIBED"
		}
	}
	return false
}

// Unsubscribe removes the email from the configured marketing subscription.
func (c *Client) Unsubscribe(ctx context.Context, email string) error {
	body := map[string]string{
		"emailAddress":          email,
		"subscriptionId":        c.subscriptionID,
		"legalBasis":            "LEGITIMATE_INTEREST_CLIENT",
		"legalBasisExplanation": "Unsubscribe request via email link",
	}
	return c.request(ctx, http.MethodPost, "/communication-preferences/v3/unsubscribe", body, nil)
}

// containsTag is a plain substring check; tags are matched case-sensitively
// exactly as written.
func containsTag(body, tag string) bool {
	return tag != "" && strings.Contains(body, tag)
}

// CircuitBreakerStats returns the current circuit breaker statistics.
func (c *Client) CircuitBreakerStats() circuitbreaker.Stats {
	return c.circuitBreaker.Stats()
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (c *Client) IsCircuitOpen() bool {
	return c.circuitBreaker.IsOpen()
}
