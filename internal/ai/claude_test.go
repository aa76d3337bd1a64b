package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/config"
	"github.com/myhorsefarm/farmops/internal/domain"
)

func newStreamingClient(t *testing.T, handler http.Handler) *ClaudeClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClaudeClient(&config.AnthropicConfig{
		APIKey:    "sk-test",
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
	}, zap.NewNop())
	client.baseURL = srv.URL
	return client
}

func sseResponse(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString("data: " + e + "\n\n")
	}
	return b.String()
}

func TestStreamMessage_TextOnly(t *testing.T) {
	client := newStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "sk-test" {
			t.Errorf("api key header = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sseResponse(
			`{"type":"message_start"}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi "}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"there!"}}`,
			`{"type":"content_block_stop","index":0}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`,
			`{"type":"message_stop"}`,
		)))
	}))

	var chunks []string
	turn, err := client.StreamMessage(context.Background(), "system", nil,
		[]Message{TextMessage("user", "hello")},
		func(text string) { chunks = append(chunks, text) })
	if err != nil {
		t.Fatalf("StreamMessage: %v", err)
	}

	if turn.Text != "Hi there!" {
		t.Errorf("text = %q", turn.Text)
	}
	if turn.StopReason != "end_turn" {
		t.Errorf("stop reason = %q", turn.StopReason)
	}
	if len(turn.ToolUses) != 0 {
		t.Errorf("unexpected tool uses: %+v", turn.ToolUses)
	}
	if len(chunks) != 2 || chunks[0] != "Hi " || chunks[1] != "there!" {
		t.Errorf("streamed chunks = %v", chunks)
	}
}

func TestStreamMessage_ToolUse(t *testing.T) {
	client := newStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sseResponse(
			`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me check."}}`,
			`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"check_availability","input":{}}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"days\""}}`,
			`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":": 14}"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
		)))
	}))

	turn, err := client.StreamMessage(context.Background(), "system", ToolDefinitions(),
		[]Message{TextMessage("user", "when can you come?")}, nil)
	if err != nil {
		t.Fatalf("StreamMessage: %v", err)
	}

	if turn.StopReason != "tool_use" {
		t.Errorf("stop reason = %q", turn.StopReason)
	}
	if len(turn.ToolUses) != 1 {
		t.Fatalf("got %d tool uses, want 1", len(turn.ToolUses))
	}
	use := turn.ToolUses[0]
	if use.ID != "toolu_1" || use.Name != "check_availability" {
		t.Errorf("tool use = %+v", use)
	}
	if string(use.Input) != `{"days": 14}` {
		t.Errorf("assembled input = %s", use.Input)
	}
	// Content must preserve block order for the follow-up assistant turn.
	if len(turn.Content) != 2 || turn.Content[0].Type != "text" || turn.Content[1].Type != "tool_use" {
		t.Errorf("content blocks = %+v", turn.Content)
	}
}

func TestStreamMessage_EmptyToolInputDefaultsToObject(t *testing.T) {
	client := newStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sseResponse(
			`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_2","name":"check_availability","input":{}}}`,
			`{"type":"message_delta","delta":{"stop_reason":"tool_use"}}`,
		)))
	}))

	turn, err := client.StreamMessage(context.Background(), "", nil,
		[]Message{TextMessage("user", "hi")}, nil)
	if err != nil {
		t.Fatalf("StreamMessage: %v", err)
	}
	if string(turn.ToolUses[0].Input) != "{}" {
		t.Errorf("input = %s, want {}", turn.ToolUses[0].Input)
	}
}

func TestStreamMessage_APIError(t *testing.T) {
	client := newStreamingClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))

	_, err := client.StreamMessage(context.Background(), "", nil,
		[]Message{TextMessage("user", "hi")}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "rate_limit_error") {
		t.Errorf("error = %v", err)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	services := []*domain.Service{
		{
			Key: "manure_removal", Name: "Manure Removal", Unit: domain.UnitPerLoad,
			BaseRate: 150, Description: "Bulk manure pile removal.",
		},
		{
			Key: "can_service", Name: "Weekly Can Service", Unit: domain.UnitPerCan,
			BaseRate: 35, MinimumCharge: 70, FrequencyOptions: []string{"weekly", "biweekly"},
			Description: "Scheduled muck can pickup.",
		},
		{
			Key: "paddock_cleanup", Name: "Paddock Cleanup", Unit: domain.UnitFlat,
			RequiresSiteVisit: true, Description: "Full paddock cleanout.",
		},
	}
	settings := &domain.ScheduleSettings{
		MaxJobsPerDay: 6,
		WorkDays:      []int{1, 2, 3},
	}

	prompt := BuildSystemPrompt(services, settings)

	for _, want := range []string{
		"$150.00 per load",
		"(minimum $70.00)",
		"weekly, biweekly",
		"Requires site visit for quote",
		"Work days: Monday, Tuesday, Wednesday",
		"Up to 6 jobs per day",
		"generate_quote",
		"check_availability",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildSystemPrompt_NilSettings(t *testing.T) {
	prompt := BuildSystemPrompt(nil, nil)
	if !strings.Contains(prompt, "Monday through Friday") {
		t.Error("nil settings should fall back to default work days")
	}
	if !strings.Contains(prompt, "Up to 4 jobs per day") {
		t.Error("nil settings should fall back to default job cap")
	}
}
