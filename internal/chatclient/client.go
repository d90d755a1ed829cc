// Package chatclient habla con el endpoint /api/chat y mantiene la conversación activa
// del lado del cliente sincronizada con el historial durable.
package chatclient

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

	apihttp "openrouter-chat/internal/http"
)

var ErrEmptyReply = errors.New("chat server returned no choices")

// ServerError es una respuesta no 2xx del servidor de chat.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("chat server error: status=%d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Send envía la lista completa de mensajes (el último es el turno nuevo).
func (c *Client) Send(ctx context.Context, req apihttp.ChatRequest) (apihttp.ChatResponse, error) {
	var out apihttp.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return apihttp.ChatResponse{}, err
	}
	if len(out.Choices) == 0 {
		return apihttp.ChatResponse{}, ErrEmptyReply
	}
	return out, nil
}

// Models devuelve los modelos ofrecidos y el modelo por defecto del servidor.
func (c *Client) Models(ctx context.Context) ([]string, string, error) {
	var out struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, "", err
	}
	return out.Models, out.Default, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &ServerError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
