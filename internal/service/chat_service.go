package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"openrouter-chat/internal/domain"
	"openrouter-chat/internal/llm"
	"openrouter-chat/internal/repository"
)

const DefaultModel = "cognitivecomputations/dolphin3.0-r1-mistral-24b:free"

// AvailableModels son los modelos que ofrece el selector del cliente.
var AvailableModels = []string{
	"cognitivecomputations/dolphin3.0-mistral-24b:free",
	"cognitivecomputations/dolphin3.0-r1-mistral-24b:free",
	"cognitivecomputations/dolphin-mistral-24b-venice-edition:free",
}

var (
	ErrChatServiceNotConfigured = errors.New("chat service not configured")
	ErrChatInvalidInput         = errors.New("chat invalid input")
)

// TurnInput es un turno enviado por el cliente.
type TurnInput struct {
	SessionID string
	// Prior es el historial conocido por el cliente; solo se usa si el servidor no tiene la sesión.
	Prior   []domain.Message
	Content string
	Model   string
}

// ChatService resuelve el historial de la sesión, invoca al LLM y persiste el turno.
//
// El repositorio del servidor es la fuente de verdad. Dos turnos concurrentes de la misma
// sesión se guardan en el orden en que terminan, no en el que se enviaron.
type ChatService struct {
	llmClient     llm.LLMClient
	conversations repository.ConversationRepository
	logger        *zap.Logger
	tracer        trace.Tracer
	promptBuilder ChatPromptBuilder
	defaultModel  string
	timeout       time.Duration
}

// ChatServiceOption ajusta un ChatService.
type ChatServiceOption func(*ChatService)

func WithTracer(tracer trace.Tracer) ChatServiceOption {
	return func(s *ChatService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithTimeout limita la espera por el LLM en cada turno; 0 deshabilita el límite.
func WithTimeout(d time.Duration) ChatServiceOption {
	return func(s *ChatService) { s.timeout = d }
}

func WithPromptBuilder(b ChatPromptBuilder) ChatServiceOption {
	return func(s *ChatService) { s.promptBuilder = b }
}

func NewChatService(
	llmClient llm.LLMClient,
	conversations repository.ConversationRepository,
	logger *zap.Logger,
	defaultModel string,
	opts ...ChatServiceOption,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = DefaultModel
	}
	s := &ChatService{
		llmClient:     llmClient,
		conversations: conversations,
		logger:        logger,
		tracer:        otel.Tracer("openrouter-chat/service"),
		defaultModel:  defaultModel,
		timeout:       llm.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultModel devuelve el modelo usado cuando el turno no especifica uno.
func (s *ChatService) DefaultModel() string {
	if s == nil {
		return DefaultModel
	}
	return s.defaultModel
}

// Submit ejecuta un turno completo. Si el LLM falla no se modifica ningún historial.
// Reenviar el mismo mensaje crea un turno duplicado.
func (s *ChatService) Submit(ctx context.Context, in TurnInput) (domain.TurnResult, error) {
	if s == nil || s.llmClient == nil || s.conversations == nil {
		return domain.TurnResult{}, ErrChatServiceNotConfigured
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" || strings.TrimSpace(in.Content) == "" {
		return domain.TurnResult{}, ErrChatInvalidInput
	}
	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = s.defaultModel
	}

	ctx, span := s.tracer.Start(ctx, "chat.submit", trace.WithAttributes(
		attribute.String("chat.session_id", sessionID),
		attribute.String("chat.model", model),
	))
	defer span.End()

	history, found, err := s.conversations.Lookup(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup session")
		return domain.TurnResult{}, fmt.Errorf("lookup session: %w", err)
	}
	if !found {
		history = conversational(in.Prior)
	}
	span.SetAttributes(
		attribute.Bool("chat.session_found", found),
		attribute.Int("chat.history_len", len(history)),
	)

	userMsg := domain.Message{Role: domain.RoleUser, Content: in.Content}
	prompt := s.promptBuilder.BuildChatPrompt(history, userMsg)

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	completion, err := s.llmClient.Complete(callCtx, llm.CompletionRequest{Model: model, Messages: prompt})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm complete")
		s.logger.Warn("llm completion failed",
			zap.String("session_id", sessionID),
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return domain.TurnResult{}, fmt.Errorf("llm complete: %w", err)
	}

	reply := domain.Message{Role: domain.RoleAssistant, Content: completion.Content}
	updated := make([]domain.Message, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated, userMsg, reply)

	if err := s.conversations.Upsert(ctx, sessionID, updated); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert session")
		return domain.TurnResult{}, fmt.Errorf("upsert session: %w", err)
	}

	s.logger.Info("turn completed",
		zap.String("session_id", sessionID),
		zap.String("model", model),
		zap.Int("history_len", len(updated)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if completion.Model != "" {
		model = completion.Model
	}
	return domain.TurnResult{
		CompletionID: completion.ID,
		SessionID:    sessionID,
		Model:        model,
		FinishReason: completion.FinishReason,
		Reply:        reply,
		Rendered:     RenderReply(reply.Content),
		History:      updated,
	}, nil
}

// History devuelve el historial del servidor; una sesión desconocida es un historial vacío.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if s == nil || s.conversations == nil {
		return nil, ErrChatServiceNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []domain.Message{}, nil
	}
	msgs, found, err := s.conversations.Lookup(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if !found || msgs == nil {
		return []domain.Message{}, nil
	}
	return msgs, nil
}

func conversational(msgs []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsConversational() {
			out = append(out, m)
		}
	}
	return out
}
