package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"openrouter-chat/internal/domain"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultTimeout = 45 * time.Second
)

var ErrEmptyResponse = errors.New("llm empty response")

// APIError representa una respuesta de error del proveedor.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("llm http error: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("llm api error: status=%d: %s", e.StatusCode, e.Message)
}

// CompletionRequest es el prompt ya ensamblado junto con el modelo destino.
type CompletionRequest struct {
	Model    string
	Messages []domain.Message
}

// Completion es la respuesta del modelo reducida a lo que consume el chat.
type Completion struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
}

// LLMClient define la interfaz para obtener completions de chat.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// HTTPClient implementa LLMClient contra la API de chat completions compatible con OpenAI.
type HTTPClient struct {
	baseURL string
	apiKey  string
	referer string
	title   string
	client  *http.Client
	logger  *zap.Logger
}

// Option ajusta un HTTPClient.
type Option func(*HTTPClient)

// WithAttribution agrega los encabezados HTTP-Referer y X-Title que usa OpenRouter.
func WithAttribution(referer, title string) Option {
	return func(c *HTTPClient) {
		c.referer = referer
		c.title = title
	}
}

// WithHTTPClient reemplaza el cliente HTTP subyacente.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewHTTPClient construye un cliente HTTP apuntando a la API de chat completions.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger, opts ...Option) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Complete(ctx context.Context, in CompletionRequest) (Completion, error) {
	reqBody := chatRequest{
		Model:    in.Model,
		Messages: make([]chatMessage, 0, len(in.Messages)),
	}
	for _, m := range in.Messages {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return Completion{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("llm error status",
			zap.Int("status", resp.StatusCode),
			zap.String("model", in.Model),
			zap.ByteString("body", respBody),
		)
		return Completion{}, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	var cr chatResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return Completion{}, fmt.Errorf("unmarshal response: %w", err)
	}

	// OpenRouter puede devolver 200 con un objeto error en el cuerpo.
	if cr.Error != nil {
		return Completion{}, &APIError{StatusCode: resp.StatusCode, Message: cr.Error.Message}
	}

	if len(cr.Choices) == 0 || cr.Choices[0].Message.Content == "" {
		return Completion{}, ErrEmptyResponse
	}

	model := cr.Model
	if model == "" {
		model = in.Model
	}
	return Completion{
		ID:           cr.ID,
		Model:        model,
		Content:      cr.Choices[0].Message.Content,
		FinishReason: cr.Choices[0].FinishReason,
	}, nil
}

func errorMessage(body []byte) string {
	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err == nil && cr.Error != nil && cr.Error.Message != "" {
		return cr.Error.Message
	}
	return strings.TrimSpace(string(body))
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
