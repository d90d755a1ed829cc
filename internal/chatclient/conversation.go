package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"openrouter-chat/internal/domain"
	"openrouter-chat/internal/history"
	apihttp "openrouter-chat/internal/http"
	"openrouter-chat/internal/sessionid"
)

var ErrUnknownSession = errors.New("unknown session")

type sender interface {
	Send(ctx context.Context, req apihttp.ChatRequest) (apihttp.ChatResponse, error)
}

// Conversation es la sesión activa del cliente. No es segura para uso concurrente:
// los turnos de una misma sesión se envían de a uno.
type Conversation struct {
	client    sender
	store     *history.Store
	ids       sessionid.Generator
	logger    *zap.Logger
	now       func() time.Time
	model     string
	sessionID string
	messages  []domain.Message
}

func NewConversation(client sender, store *history.Store, ids sessionid.Generator, model string, logger *zap.Logger) *Conversation {
	if ids == nil {
		ids = sessionid.GeneratorFunc(sessionid.FromTime)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conversation{
		client: client,
		store:  store,
		ids:    ids,
		logger: logger,
		now:    time.Now,
		model:  model,
	}
}

func (c *Conversation) SessionID() string { return c.sessionID }

func (c *Conversation) Model() string { return c.model }

// SetModel cambia el modelo para los próximos turnos; la sesión puede continuar con otro modelo.
func (c *Conversation) SetModel(model string) { c.model = strings.TrimSpace(model) }

// Messages devuelve una copia de los mensajes visibles.
func (c *Conversation) Messages() []domain.Message {
	return domain.CloneMessages(c.messages)
}

// Reset inicia una conversación nueva; el id se genera con el primer turno.
func (c *Conversation) Reset() {
	c.sessionID = ""
	c.messages = nil
}

// Open retoma una sesión guardada, reemplazando la secuencia visible por la almacenada.
func (c *Conversation) Open(sessionID string) error {
	msgs, found := c.store.Lookup(sessionID)
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	c.sessionID = sessionID
	c.messages = msgs
	return nil
}

// Send envía un turno. Ante un error no se modifica el historial local.
func (c *Conversation) Send(ctx context.Context, text string) (domain.Message, domain.RenderedReply, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, domain.RenderedReply{}, errors.New("empty message")
	}
	if c.sessionID == "" {
		c.sessionID = c.ids.NewID(c.now())
	}

	outgoing := append(domain.CloneMessages(c.messages), domain.Message{Role: domain.RoleUser, Content: text})
	resp, err := c.client.Send(ctx, apihttp.ChatRequest{
		Messages:  outgoing,
		Model:     c.model,
		SessionID: c.sessionID,
	})
	if err != nil {
		return domain.Message{}, domain.RenderedReply{}, err
	}

	reply := resp.Choices[0].Message
	c.messages = append(outgoing, reply)
	if err := c.store.Upsert(ctx, c.sessionID, c.messages); err != nil {
		// El turno ya ocurrió en el servidor; se informa pero se mantiene en pantalla.
		c.logger.Error("persist chat history failed", zap.String("session_id", c.sessionID), zap.Error(err))
		return reply, resp.Rendered, fmt.Errorf("persist history: %w", err)
	}
	return reply, resp.Rendered, nil
}
