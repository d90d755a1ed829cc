package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	Response string
	Err      error

	mu       sync.Mutex
	requests []CompletionRequest
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.Err != nil {
		return Completion{}, m.Err
	}
	return Completion{ID: "mock", Model: req.Model, Content: m.Response, FinishReason: "stop"}, nil
}

// Requests devuelve las solicitudes recibidas en orden.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
