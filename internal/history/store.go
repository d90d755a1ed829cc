// Package history mantiene el historial durable del cliente: todas las sesiones se
// serializan como un único blob bajo StorageKey y se reescriben completas en cada cambio.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"openrouter-chat/internal/domain"
)

// StorageKey es la clave fija del blob de sesiones.
const StorageKey = "chatSessions"

// ErrCorruptHistory indica que el blob existe pero no se puede interpretar.
// Un blob ausente no es un error: el historial arranca vacío.
var ErrCorruptHistory = errors.New("corrupt chat history")

type Store struct {
	mu       sync.Mutex
	storage  BlobStorage
	logger   *zap.Logger
	sessions map[string][]domain.Message
	// orden de primera aparición, para listar de forma estable
	order []string
}

// Open lee el blob una sola vez. Falla con ErrCorruptHistory si los datos guardados no son válidos.
func Open(ctx context.Context, storage BlobStorage, logger *zap.Logger) (*Store, error) {
	if storage == nil {
		return nil, errors.New("history: nil storage")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		storage:  storage,
		logger:   logger,
		sessions: make(map[string][]domain.Message),
	}

	raw, found, err := storage.Get(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", StorageKey, err)
	}
	if !found {
		logger.Info("no stored chat history, starting empty")
		return s, nil
	}

	records, err := decode(raw)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if _, dup := s.sessions[rec.ID]; !dup {
			s.order = append(s.order, rec.ID)
		}
		s.sessions[rec.ID] = rec.Messages
	}
	logger.Info("chat history loaded", zap.Int("sessions", len(s.order)))
	return s, nil
}

func decode(raw []byte) ([]domain.Session, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("%w: empty blob", ErrCorruptHistory)
	}
	var records []domain.Session
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptHistory, err)
	}
	for i, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			return nil, fmt.Errorf("%w: record %d has no sessionId", ErrCorruptHistory, i)
		}
		for j, m := range rec.Messages {
			if !m.IsConversational() {
				return nil, fmt.Errorf("%w: session %s message %d has role %q", ErrCorruptHistory, rec.ID, j, m.Role)
			}
		}
	}
	return records, nil
}

// Lookup devuelve una copia de la secuencia guardada para la sesión.
func (s *Store) Lookup(sessionID string) ([]domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return domain.CloneMessages(msgs), true
}

// Upsert reemplaza la secuencia de la sesión y reescribe el blob completo.
// Una sesión sin mensajes no se persiste.
func (s *Store) Upsert(ctx context.Context, sessionID string, messages []domain.Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("history: empty session id")
	}
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.sessions[sessionID]
	s.sessions[sessionID] = domain.CloneMessages(messages)
	if !existed {
		s.order = append(s.order, sessionID)
	}

	if err := s.persistLocked(ctx); err != nil {
		if existed {
			s.sessions[sessionID] = prev
		} else {
			delete(s.sessions, sessionID)
			s.order = s.order[:len(s.order)-1]
		}
		return err
	}
	return nil
}

// Sessions lista las sesiones guardadas en orden de creación.
func (s *Store) Sessions() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, domain.Session{ID: id, Messages: domain.CloneMessages(s.sessions[id])})
	}
	return out
}

func (s *Store) persistLocked(ctx context.Context) error {
	records := make([]domain.Session, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, domain.Session{ID: id, Messages: s.sessions[id]})
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	payload := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	if err := s.storage.Set(ctx, StorageKey, payload); err != nil {
		return fmt.Errorf("history: write %s: %w", StorageKey, err)
	}
	s.logger.Debug("chat history persisted", zap.Int("sessions", len(records)), zap.Int("bytes", len(payload)))
	return nil
}
