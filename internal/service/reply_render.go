package service

import (
	"regexp"
	"strings"

	"openrouter-chat/internal/domain"
)

const (
	ReasoningOpenTag  = "<thinking>"
	ReasoningCloseTag = "</thinking>"
)

var (
	// Primer bloque, no codicioso hasta el primer cierre.
	reasoningBlockRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(ReasoningOpenTag) + `(.*?)` + regexp.QuoteMeta(ReasoningCloseTag))
	// Marcadores de plantilla filtrados por algunos modelos: <|User|> ... <|Assistant|>, con o sin espacios.
	templateArtifactRe = regexp.MustCompile(`(?s)<\|\s*User\s*\|>.*?<\|\s*Assistant\s*\|>`)
)

// SplitReply separa una respuesta cruda en razonamiento y respuesta final.
// Sin bloque de razonamiento bien formado, todo el texto es la respuesta.
func SplitReply(raw string) (reasoning, answer string) {
	answer = raw
	if loc := reasoningBlockRe.FindStringSubmatchIndex(raw); loc != nil {
		reasoning = raw[loc[2]:loc[3]]
		answer = raw[:loc[0]] + raw[loc[1]:]
	}
	return stripTemplateArtifacts(reasoning), stripTemplateArtifacts(answer)
}

// RenderReply es SplitReply empaquetado para la respuesta HTTP y el cliente.
func RenderReply(raw string) domain.RenderedReply {
	reasoning, answer := SplitReply(raw)
	return domain.RenderedReply{Reasoning: reasoning, Answer: answer}
}

func stripTemplateArtifacts(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.TrimSpace(templateArtifactRe.ReplaceAllString(s, ""))
}
