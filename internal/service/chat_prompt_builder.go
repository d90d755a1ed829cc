package service

import (
	"openrouter-chat/internal/domain"
)

// DefaultSystemPrompt instruye al modelo a anteponer un bloque de razonamiento.
const DefaultSystemPrompt = "You are a helpful assistant. ALWAYS provide a thinking process before your answer, enclosed in <thinking> and </thinking> tags. This is a requirement for every response."

// ChatPromptBuilder arma la secuencia system + historial + mensaje nuevo que recibe el LLM.
type ChatPromptBuilder struct {
	SystemPrompt string
}

// BuildChatPrompt devuelve una secuencia nueva; no modifica history.
// Los mensajes con roles fuera de user/assistant se descartan del historial.
func (b ChatPromptBuilder) BuildChatPrompt(history []domain.Message, userMessage domain.Message) []domain.Message {
	system := b.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	prompt := make([]domain.Message, 0, len(history)+2)
	prompt = append(prompt, domain.Message{Role: domain.RoleSystem, Content: system})
	for _, m := range history {
		if !m.IsConversational() {
			continue
		}
		prompt = append(prompt, m)
	}
	return append(prompt, userMessage)
}
