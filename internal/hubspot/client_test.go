package hubspot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.HubSpotConfig{
		APIToken:       "test-token",
		APIURL:         srv.URL,
		PipelineID:     "2057861855",
		SubscriptionID: "1087420534",
	}
	return New(cfg, zap.NewNop())
}

func TestFindContactByEmail(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crm/v3/objects/contacts/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.FilterGroups[0].Filters[0].Value != "dana@example.com" {
			t.Errorf("unexpected filter value %q", req.FilterGroups[0].Filters[0].Value)
		}
		w.Write([]byte(`{"results":[{"id":"101","properties":{"email":"dana@example.com","firstname":"Dana"}}]}`))
	}))

	contact, err := client.FindContactByEmail(context.Background(), "dana@example.com")
	if err != nil {
		t.Fatalf("FindContactByEmail: %v", err)
	}
	if contact == nil || contact.ID != "101" {
		t.Fatalf("contact = %+v, want id 101", contact)
	}
	if contact.Email() != "dana@example.com" {
		t.Errorf("Email() = %q", contact.Email())
	}
}

func TestFindContactByEmail_NoMatch(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))

	contact, err := client.FindContactByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("FindContactByEmail: %v", err)
	}
	if contact != nil {
		t.Errorf("expected nil contact, got %+v", contact)
	}
}

func TestSearchContacts_Pagination(t *testing.T) {
	page := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		json.NewDecoder(r.Body).Decode(&req)

		page++
		switch page {
		case 1:
			if req.After != "" {
				t.Errorf("first page should have no cursor, got %q", req.After)
			}
			w.Write([]byte(`{"results":[{"id":"1","properties":{}}],"paging":{"next":{"after":"cursor-2"}}}`))
		case 2:
			if req.After != "cursor-2" {
				t.Errorf("second page cursor = %q, want cursor-2", req.After)
			}
			w.Write([]byte(`{"results":[{"id":"2","properties":{}}]}`))
		default:
			t.Error("unexpected third page request")
		}
	}))

	results, err := client.SearchContacts(context.Background(), nil, []string{"email"})
	if err != nil {
		t.Fatalf("SearchContacts: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestFindActiveDealForContact(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crm/v3/objects/contacts/55/associations/deals":
			w.Write([]byte(`{"results":[{"toObjectId":900},{"toObjectId":901}]}`))
		case "/crm/v3/objects/deals/batch/read":
			w.Write([]byte(`{"results":[
				{"id":"900","properties":{"pipeline":"2057861855","dealstage":"3248645833","amount":"100"}},
				{"id":"901","properties":{"pipeline":"2057861855","dealstage":"open-stage","amount":"200"}}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	deal, err := client.FindActiveDealForContact(context.Background(), "55", "3248645833")
	if err != nil {
		t.Fatalf("FindActiveDealForContact: %v", err)
	}
	if deal == nil || deal.ID != "901" {
		t.Fatalf("deal = %+v, want the non-completed deal 901", deal)
	}
}

func TestHasAutomationTag(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crm/v3/objects/contacts/55/associations/notes":
			w.Write([]byte(`{"results":[{"id":"n1"},{"id":"n2"}]}`))
		case "/crm/v3/objects/notes/batch/read":
			w.Write([]byte(`{"results":[
				{"properties":{"hs_note_body":"[SQUARE:PAYMENT] $150.00 on 2025-06-02 - Payment ID: pay_123"}},
				{"properties":{"hs_note_body":"unrelated note"}}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ctx := context.Background()
	if !client.HasAutomationTag(ctx, "contacts", "55", "Payment ID: pay_123") {
		t.Error("expected tag to be found")
	}
	if client.HasAutomationTag(ctx, "contacts", "55", "Payment ID: pay_999") {
		t.Error("expected missing tag to report false")
	}
	if got := client.CountAutomationTags(ctx, "contacts", "55", PaymentTagPrefix); got != 1 {
		t.Errorf("CountAutomationTags = %d, want 1", got)
	}
}

func TestNoteBodies_FailsOpen(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":"error","message":"boom"}`))
	}))

	if bodies := client.NoteBodies(context.Background(), "contacts", "55"); bodies != nil {
		t.Errorf("expected nil bodies on lookup failure, got %v", bodies)
	}
	if client.HasAutomationTag(context.Background(), "contacts", "55", "anything") {
		t.Error("tag check should fail open to false")
	}
}

func TestIsSubscribed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{
			name: "subscribed on the configured subscription",
			body: `{"subscriptionStatuses":[{"id":"1087420534","status":"SUBSCRIBED"}]}`,
			want: true,
		},
		{
			name: "unsubscribed",
			body: `{"subscriptionStatuses":[{"id":"1087420534","status":"UNSUBSCRIBED"}]}`,
			want: false,
		},
		{
			name: "different subscription only",
			body: `{"subscriptionStatuses":[{"id":"999","status":"SUBSCRIBED"}]}`,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			if got := client.IsSubscribed(context.Background(), "dana@example.com"); got != tt.want {
				t.Errorf("IsSubscribed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSubscribed_ErrorReportsFalse(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	if client.IsSubscribed(context.Background(), "dana@example.com") {
		t.Error("lookup failure should report not subscribed")
	}
}

func TestCreateDeal_SendsPipelineAndAssociation(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crm/v3/objects/deals" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Properties   map[string]string `json:"properties"`
			Associations []struct {
				To struct {
					ID string `json:"id"`
				} `json:"to"`
			} `json:"associations"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		if body.Properties["pipeline"] != "2057861855" {
			t.Errorf("pipeline = %q", body.Properties["pipeline"])
		}
		if body.Properties["dealstage"] != "stage-1" {
			t.Errorf("dealstage = %q", body.Properties["dealstage"])
		}
		if len(body.Associations) != 1 || body.Associations[0].To.ID != "55" {
			t.Errorf("associations = %+v", body.Associations)
		}
		w.Write([]byte(`{"id":"900","properties":{}}`))
	}))

	deal, err := client.CreateDeal(context.Background(), "55", "Manure Removal", "150.00", "stage-1")
	if err != nil {
		t.Fatalf("CreateDeal: %v", err)
	}
	if deal.ID != "900" {
		t.Errorf("deal id = %q", deal.ID)
	}
}
