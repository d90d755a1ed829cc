package repository

import (
	"context"
	"sync"

	"openrouter-chat/internal/domain"
)

// ConversationRepository guarda el historial de mensajes por id de sesión.
// Lookup sobre un id desconocido devuelve found=false y err=nil.
type ConversationRepository interface {
	Lookup(ctx context.Context, sessionID string) (messages []domain.Message, found bool, err error)
	Upsert(ctx context.Context, sessionID string, messages []domain.Message) error
}

// MemoryConversationRepository mantiene las sesiones en memoria del proceso.
// Cada Upsert reemplaza la secuencia completa de la sesión (last-writer-wins).
type MemoryConversationRepository struct {
	mu       sync.RWMutex
	sessions map[string][]domain.Message
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		sessions: make(map[string][]domain.Message),
	}
}

func (r *MemoryConversationRepository) Lookup(_ context.Context, sessionID string) ([]domain.Message, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs, ok := r.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	return domain.CloneMessages(msgs), true, nil
}

func (r *MemoryConversationRepository) Upsert(_ context.Context, sessionID string, messages []domain.Message) error {
	stored := domain.CloneMessages(messages)
	r.mu.Lock()
	r.sessions[sessionID] = stored
	r.mu.Unlock()
	return nil
}

// Len devuelve la cantidad de sesiones conocidas.
func (r *MemoryConversationRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
