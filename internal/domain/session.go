package domain

// Session agrupa la secuencia ordenada de mensajes de una conversación.
type Session struct {
	ID       string    `json:"sessionId"`
	Messages []Message `json:"messages"`
}

// RenderedReply es la respuesta del asistente separada para mostrarla.
type RenderedReply struct {
	Reasoning string `json:"reasoning"`
	Answer    string `json:"answer"`
}

// TurnResult resume un turno completado por el servicio de chat.
type TurnResult struct {
	CompletionID string        `json:"id"`
	SessionID    string        `json:"sessionId"`
	Model        string        `json:"model"`
	FinishReason string        `json:"finish_reason"`
	Reply        Message       `json:"message"`
	Rendered     RenderedReply `json:"rendered"`
	History      []Message     `json:"-"`
}
