package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myhorsefarm/farmops/internal/ai"
	"github.com/myhorsefarm/farmops/internal/availability"
	"github.com/myhorsefarm/farmops/internal/clock"
	"github.com/myhorsefarm/farmops/internal/domain"
	"github.com/myhorsefarm/farmops/internal/email"
	apperrors "github.com/myhorsefarm/farmops/internal/errors"
)

// ChatErrorText is the customer-facing message emitted when a chat turn
// fails partway through.
const ChatErrorText = "Something went wrong. Please try again or call us at (561) 576-7667."

// handoffText is the reply used when the tool loop hits its iteration cap
// and the turn is handed to a human.
const handoffText = "Let me have Jose reach out to you directly. You can also call him at (561) 576-7667."

// defaultMaxToolIterations bounds the tool loop when no cap is configured.
const defaultMaxToolIterations = 5

// ChatEvent is one server-sent event emitted during a chat turn.
type ChatEvent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ChatEventSink receives events as the turn progresses. It is called from
// the request goroutine only.
type ChatEventSink func(event ChatEvent)

// ChatService runs the conversational quoting agent: session management,
// the streaming model loop, and tool execution against the live catalog.
type ChatService struct {
	sessions     domain.ChatSessionRepository
	services     domain.ServiceRepository
	schedules    domain.ScheduleRepository
	availability *availability.Engine
	quotes       *QuoteService
	model        ChatModel
	email        EmailSender
	maxToolIters int
	clock        clock.Clock
	logger       *zap.Logger
}

// NewChatService creates a chat service.
func NewChatService(
	sessions domain.ChatSessionRepository,
	services domain.ServiceRepository,
	schedules domain.ScheduleRepository,
	engine *availability.Engine,
	quotes *QuoteService,
	model ChatModel,
	sender EmailSender,
	maxToolIterations int,
	clk clock.Clock,
	logger *zap.Logger,
) *ChatService {
	if clk == nil {
		clk = clock.New()
	}
	if maxToolIterations <= 0 {
		maxToolIterations = defaultMaxToolIterations
	}
	return &ChatService{
		sessions:     sessions,
		services:     services,
		schedules:    schedules,
		availability: engine,
		quotes:       quotes,
		model:        model,
		email:        sender,
		maxToolIters: maxToolIterations,
		clock:        clk,
		logger:       logger,
	}
}

// CreateSession starts a new, empty chat session.
func (s *ChatService) CreateSession(ctx context.Context) (*domain.ChatSession, error) {
	now := s.clock.NowUTC()
	session := &domain.ChatSession{
		ID:        uuid.New(),
		Status:    domain.ChatSessionActive,
		Messages:  []domain.ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.WrapWithOp(err, "chat.CreateSession")
	}
	return session, nil
}

// GetSession retrieves a session with its transcript.
func (s *ChatService) GetSession(ctx context.Context, id uuid.UUID) (*domain.ChatSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NotFound("chat session")
		}
		return nil, apperrors.WrapWithOp(err, "chat.GetSession")
	}
	return session, nil
}

// ProcessMessage runs one agent turn: the user message is appended to the
// transcript immediately, then the model streams a reply, executing tools
// between iterations, until it stops calling tools or hits the iteration
// cap. Events stream to the sink as they happen; the assistant reply is
// persisted before done is emitted.
func (s *ChatService) ProcessMessage(ctx context.Context, sessionID uuid.UUID, userText string, emit ChatEventSink) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NotFound("chat session")
		}
		return apperrors.WrapWithOp(err, "chat.ProcessMessage")
	}

	userMsg := domain.ChatMessage{
		Role:      domain.ChatRoleUser,
		Content:   userText,
		Timestamp: s.clock.NowUTC(),
	}
	// Persist before the model turn so the transcript survives a failure
	// mid-stream.
	if err := s.sessions.AppendMessages(ctx, sessionID, userMsg); err != nil {
		return apperrors.WrapWithOp(err, "chat.ProcessMessage")
	}

	messages := make([]ai.Message, 0, len(session.Messages)+1)
	for _, m := range session.Messages {
		messages = append(messages, ai.TextMessage(string(m.Role), m.Content))
	}
	messages = append(messages, ai.TextMessage(string(domain.ChatRoleUser), userText))

	system := s.buildSystemPrompt(ctx)

	logger := s.logger.With(zap.String("session_id", sessionID.String()))

	var assistantText string
	for iteration := 0; ; iteration++ {
		if iteration >= s.maxToolIters {
			logger.Warn("tool loop hit iteration cap", zap.Int("cap", s.maxToolIters))
			s.handOff(ctx, session, userText, logger)
			emit(ChatEvent{Type: "text", Text: handoffText})
			assistantText += handoffText
			break
		}

		turn, err := s.model.StreamMessage(ctx, system, ai.ToolDefinitions(), messages, func(text string) {
			emit(ChatEvent{Type: "text", Text: text})
		})
		if err != nil {
			logger.Error("model turn failed", zap.Error(err))
			emit(ChatEvent{Type: "error", Text: ChatErrorText})
			return apperrors.ExternalServiceError("claude", err)
		}

		assistantText += turn.Text

		if len(turn.ToolUses) == 0 {
			break
		}

		messages = append(messages, ai.Message{Role: "assistant", Content: turn.Content})

		results := make([]ai.ContentBlock, 0, len(turn.ToolUses))
		for _, use := range turn.ToolUses {
			emit(ChatEvent{Type: "status", Text: "Processing " + use.Name + "..."})
			results = append(results, ai.ContentBlock{
				Type:      "tool_result",
				ToolUseID: use.ID,
				Content:   s.executeTool(ctx, session, use, logger),
			})
		}
		messages = append(messages, ai.ToolResultMessage(results))
	}

	assistantMsg := domain.ChatMessage{
		Role:      domain.ChatRoleAssistant,
		Content:   assistantText,
		Timestamp: s.clock.NowUTC(),
	}
	if err := s.sessions.AppendMessages(ctx, sessionID, assistantMsg); err != nil {
		logger.Error("assistant message persist failed", zap.Error(err))
		emit(ChatEvent{Type: "error", Text: ChatErrorText})
		return apperrors.WrapWithOp(err, "chat.ProcessMessage")
	}

	emit(ChatEvent{Type: "done"})
	return nil
}

// buildSystemPrompt assembles the prompt from the live catalog and schedule.
// Either lookup failing degrades to defaults rather than blocking the turn.
func (s *ChatService) buildSystemPrompt(ctx context.Context) string {
	services, err := s.services.ListActive(ctx)
	if err != nil {
		s.logger.Warn("catalog lookup for system prompt failed", zap.Error(err))
	}
	settings, err := s.schedules.Get(ctx)
	if err != nil && !apperrors.IsNotFound(err) {
		s.logger.Warn("schedule lookup for system prompt failed", zap.Error(err))
	}
	return ai.BuildSystemPrompt(services, settings)
}

// handOff marks the session handed off and alerts sales with the transcript
// tail so a human can pick the conversation up.
func (s *ChatService) handOff(ctx context.Context, session *domain.ChatSession, lastMessage string, logger *zap.Logger) {
	if err := s.sessions.SetStatus(ctx, session.ID, domain.ChatSessionHandedOff); err != nil {
		logger.Error("handoff status update failed", zap.Error(err))
	}

	tmpl := email.ChatHandoffEmail("", "", "", lastMessage, session.ID.String())
	if err := s.email.Send(ctx, s.email.SalesAddress(), tmpl.Subject, tmpl.HTML); err != nil {
		logger.Warn("handoff email failed", zap.Error(err))
	}
}

// executeTool dispatches one model tool call and returns its JSON result.
// Tool failures return an error payload for the model to explain, never an
// aborted turn.
func (s *ChatService) executeTool(ctx context.Context, session *domain.ChatSession, use ai.ToolUse, logger *zap.Logger) string {
	logger.Info("executing tool", zap.String("tool", use.Name))

	switch use.Name {
	case ai.ToolGenerateQuote:
		return s.executeGenerateQuote(ctx, session, use.Input, logger)
	case ai.ToolCheckAvailability:
		return s.executeCheckAvailability(ctx, use.Input, logger)
	default:
		return toolError("unknown tool: " + use.Name)
	}
}

func (s *ChatService) executeGenerateQuote(ctx context.Context, session *domain.ChatSession, input json.RawMessage, logger *zap.Logger) string {
	var in ai.GenerateQuoteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return toolError("invalid tool input")
	}

	quote, err := s.quotes.Create(ctx, &CreateQuoteInput{
		ServiceKey:      in.ServiceKey,
		CustomerName:    in.CustomerName,
		CustomerEmail:   in.CustomerEmail,
		CustomerPhone:   in.CustomerPhone,
		Address:         in.CustomerLocation,
		PropertyDetails: in.PropertyDetails,
		Source:          domain.QuoteSourceChatbot,
		ChatSessionID:   &session.ID,
	})
	if err != nil {
		logger.Warn("chat quote generation failed", zap.Error(err))
		return toolError(err.Error())
	}

	if err := s.sessions.SetQuoteID(ctx, session.ID, quote.ID); err != nil {
		logger.Warn("session quote link failed", zap.Error(err))
	}
	details := ""
	if len(in.PropertyDetails) > 0 {
		if raw, err := json.Marshal(in.PropertyDetails); err == nil {
			details = string(raw)
		}
	}
	if err := s.sessions.SetExtracted(ctx, session.ID, in.ServiceKey, in.CustomerLocation, details); err != nil {
		logger.Warn("session extraction update failed", zap.Error(err))
	}

	result, _ := json.Marshal(map[string]any{
		"ok":                  true,
		"quote_number":        quote.QuoteNumber,
		"status":              quote.Status,
		"total":               quote.Pricing.Total,
		"requires_site_visit": quote.RequiresSiteVisit,
		"expires_at":          quote.ExpiresAt.Format("2006-01-02"),
	})
	return string(result)
}

func (s *ChatService) executeCheckAvailability(ctx context.Context, input json.RawMessage, logger *zap.Logger) string {
	var in ai.CheckAvailabilityInput
	if err := json.Unmarshal(input, &in); err != nil {
		return toolError("invalid tool input")
	}
	if in.Days <= 0 {
		in.Days = availability.DefaultHorizonDays
	}

	days, err := s.availability.AvailableDates(ctx, in.Days)
	if err != nil {
		logger.Warn("chat availability check failed", zap.Error(err))
		return toolError("could not check availability")
	}

	type nextDate struct {
		Date      string `json:"date"`
		DayOfWeek string `json:"day_of_week"`
		Slots     int    `json:"slots_available"`
	}
	open := make([]nextDate, 0, 10)
	total := 0
	for _, d := range days {
		if d.Status == domain.DayFull {
			continue
		}
		total++
		if len(open) < 10 {
			open = append(open, nextDate{Date: d.Date, DayOfWeek: d.DayOfWeek, Slots: d.SlotsAvailable})
		}
	}

	result, _ := json.Marshal(map[string]any{
		"total_available_dates": total,
		"next_dates":            open,
	})
	return string(result)
}

func toolError(message string) string {
	result, _ := json.Marshal(map[string]any{"ok": false, "error": message})
	return string(result)
}
