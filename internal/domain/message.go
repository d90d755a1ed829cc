package domain

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message es un turno individual de la conversación. Se trata como inmutable una vez creado.
type Message struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// IsConversational indica si el rol puede almacenarse en el historial de una sesión.
func (m Message) IsConversational() bool {
	return m.Role == RoleUser || m.Role == RoleAssistant
}

// CloneMessages copia la secuencia para que el llamador no comparta el backing array.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
