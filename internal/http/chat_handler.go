package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"openrouter-chat/internal/domain"
	"openrouter-chat/internal/llm"
	"openrouter-chat/internal/service"
	"openrouter-chat/internal/sessionid"
)

// ChatHandler mantiene dependencias para los endpoints de chat.
type ChatHandler struct {
	logger *zap.Logger
	chat   *service.ChatService
	ids    sessionid.Generator
	now    func() time.Time
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, chat *service.ChatService, ids sessionid.Generator) *ChatHandler {
	if ids == nil {
		ids = sessionid.GeneratorFunc(sessionid.FromTime)
	}
	return &ChatHandler{
		logger: logger,
		chat:   chat,
		ids:    ids,
		now:    time.Now,
	}
}

// ChatRequest es el cuerpo de POST /api/chat. El último mensaje es el turno nuevo del usuario.
type ChatRequest struct {
	Messages  []domain.Message `json:"messages" binding:"required,min=1,dive"`
	Model     string           `json:"model"`
	SessionID string           `json:"sessionId"`
}

type ChatChoice struct {
	Index        int            `json:"index"`
	Message      domain.Message `json:"message"`
	FinishReason string         `json:"finish_reason,omitempty"`
}

// ChatResponse mantiene la forma {choices:[{message}]} de chat completions.
type ChatResponse struct {
	ID        string               `json:"id,omitempty"`
	Model     string               `json:"model"`
	SessionID string               `json:"sessionId"`
	Choices   []ChatChoice         `json:"choices"`
	Rendered  domain.RenderedReply `json:"rendered"`
}

// PostChat maneja POST /api/chat.
func (h *ChatHandler) PostChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role != domain.RoleUser || strings.TrimSpace(last.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "last message must be a non-empty user message"})
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = h.ids.NewID(h.now())
		h.logger.Info("session created", zap.String("session_id", sessionID))
	}

	result, err := h.chat.Submit(c.Request.Context(), service.TurnInput{
		SessionID: sessionID,
		Prior:     req.Messages[:len(req.Messages)-1],
		Content:   last.Content,
		Model:     req.Model,
	})
	if err != nil {
		status := statusForChatError(err)
		h.logger.Error("chat turn failed",
			zap.String("session_id", sessionID),
			zap.Int("status", status),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		ID:        result.CompletionID,
		Model:     result.Model,
		SessionID: result.SessionID,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      result.Reply,
			FinishReason: result.FinishReason,
		}},
		Rendered: result.Rendered,
	})
}

// GetSession maneja GET /api/sessions/:id. Una sesión desconocida devuelve lista vacía.
func (h *ChatHandler) GetSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))
	msgs, err := h.chat.History(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("get session failed", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load session"})
		return
	}
	c.JSON(http.StatusOK, domain.Session{ID: sessionID, Messages: msgs})
}

// ListModels maneja GET /api/models.
func (h *ChatHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":  service.AvailableModels,
		"default": h.chat.DefaultModel(),
	})
}

func statusForChatError(err error) int {
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, service.ErrChatInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr), errors.Is(err, llm.ErrEmptyResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
