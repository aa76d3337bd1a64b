// Package ai provides the Claude-backed conversational quoting assistant:
// a Messages API client with tool use and streaming, the dynamic system
// prompt, and the tool definitions the model may call.
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/circuitbreaker"
	"github.com/myhorsefarm/farmops/internal/config"
)

const (
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
)

// ClaudeClient handles communication with the Anthropic API.
type ClaudeClient struct {
	apiKey         string
	baseURL        string
	model          string
	maxTokens      int
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

// NewClaudeClient creates a new Claude client.
func NewClaudeClient(cfg *config.AnthropicConfig, logger *zap.Logger) *ClaudeClient {
	cbConfig := &circuitbreaker.Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}

	return &ClaudeClient{
		apiKey:    cfg.APIKey,
		baseURL:   anthropicEndpoint,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		circuitBreaker: circuitbreaker.New("claude-api", cbConfig, logger),
		logger:         logger,
	}
}

// Tool describes a tool the model may call.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ContentBlock is one block of a message's content. Text blocks carry Text;
// tool_use blocks carry ID, Name, and Input; tool_result blocks carry
// ToolUseID and Content.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// Message is one turn in the conversation sent to the model.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a plain text message turn.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ToolResultMessage builds the user turn carrying results for prior tool
// calls.
func ToolResultMessage(results []ContentBlock) Message {
	return Message{Role: "user", Content: results}
}

// ToolUse is a tool call requested by the model.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// AssistantTurn is the model's completed response to one request.
type AssistantTurn struct {
	Content    []ContentBlock
	Text       string
	ToolUses   []ToolUse
	StopReason string
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Tools     []Tool    `json:"tools,omitempty"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
}

type apiErrorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// streamEvent is one SSE data payload from the Messages API.
type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *struct {
		Type  string          `json:"type"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content_block,omitempty"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta,omitempty"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// StreamMessage sends one request and consumes the streamed response,
// invoking onText for each text delta as it arrives. The returned turn holds
// the assembled content blocks, including any tool calls the model made.
func (c *ClaudeClient) StreamMessage(ctx context.Context, system string, tools []Tool, messages []Message, onText func(text string)) (*AssistantTurn, error) {
	var turn *AssistantTurn

	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var execErr error
		turn, execErr = c.doStream(ctx, system, tools, messages, onText)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return turn, nil
}

func (c *ClaudeClient) doStream(ctx context.Context, system string, tools []Tool, messages []Message, onText func(text string)) (*AssistantTurn, error) {
	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Tools:     tools,
		Messages:  messages,
		Stream:    true,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp apiErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("claude API error: %s - %s", errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("claude API error: status %d", resp.StatusCode)
	}

	return c.consumeStream(resp.Body, onText)
}

// blockAccumulator assembles one content block across its start/delta events.
type blockAccumulator struct {
	blockType string
	toolID    string
	toolName  string
	text      strings.Builder
	inputJSON strings.Builder
}

func (c *ClaudeClient) consumeStream(body io.Reader, onText func(text string)) (*AssistantTurn, error) {
	turn := &AssistantTurn{}
	blocks := make(map[int]*blockAccumulator)
	order := make([]int, 0, 4)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_start":
			if event.ContentBlock == nil {
				continue
			}
			acc := &blockAccumulator{
				blockType: event.ContentBlock.Type,
				toolID:    event.ContentBlock.ID,
				toolName:  event.ContentBlock.Name,
			}
			blocks[event.Index] = acc
			order = append(order, event.Index)

		case "content_block_delta":
			acc := blocks[event.Index]
			if acc == nil || event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				acc.text.WriteString(event.Delta.Text)
				if onText != nil {
					onText(event.Delta.Text)
				}
			case "input_json_delta":
				acc.inputJSON.WriteString(event.Delta.PartialJSON)
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				turn.StopReason = event.Delta.StopReason
			}

		case "error":
			if event.Error != nil {
				return nil, fmt.Errorf("claude stream error: %s - %s", event.Error.Type, event.Error.Message)
			}
			return nil, fmt.Errorf("claude stream error")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	for _, idx := range order {
		acc := blocks[idx]
		switch acc.blockType {
		case "text":
			text := acc.text.String()
			turn.Text += text
			turn.Content = append(turn.Content, ContentBlock{Type: "text", Text: text})
		case "tool_use":
			input := acc.inputJSON.String()
			if input == "" {
				input = "{}"
			}
			raw := json.RawMessage(input)
			turn.Content = append(turn.Content, ContentBlock{
				Type: "tool_use", ID: acc.toolID, Name: acc.toolName, Input: raw,
			})
			turn.ToolUses = append(turn.ToolUses, ToolUse{ID: acc.toolID, Name: acc.toolName, Input: raw})
		}
	}

	c.logger.Debug("claude turn complete",
		zap.String("stop_reason", turn.StopReason),
		zap.Int("tool_uses", len(turn.ToolUses)),
	)
	return turn, nil
}

// CircuitBreakerStats returns the current circuit breaker statistics.
func (c *ClaudeClient) CircuitBreakerStats() circuitbreaker.Stats {
	return c.circuitBreaker.Stats()
}

// IsCircuitOpen returns true if the circuit breaker is open.
func (c *ClaudeClient) IsCircuitOpen() bool {
	return c.circuitBreaker.IsOpen()
}
