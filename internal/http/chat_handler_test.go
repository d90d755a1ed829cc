package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"openrouter-chat/internal/domain"
	"openrouter-chat/internal/llm"
	"openrouter-chat/internal/repository"
	"openrouter-chat/internal/service"
	"openrouter-chat/internal/sessionid"
)

func setupChatRouter(client llm.LLMClient, repo repository.ConversationRepository) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewChatService(client, repo, zap.NewNop(), "default-model", service.WithTimeout(time.Second))
	ids := sessionid.GeneratorFunc(func(time.Time) string { return "generated-id" })
	return NewRouter(zap.NewNop(), NewChatHandler(zap.NewNop(), svc, ids))
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestChatHandlerPostChat_Success(t *testing.T) {
	repo := repository.NewMemoryConversationRepository()
	r := setupChatRouter(&llm.MockClient{Response: "<thinking>greet</thinking>Hello!"}, repo)

	rec := performRequest(r, http.MethodPost, "/api/chat", map[string]any{
		"messages":  []domain.Message{{Role: "user", Content: "hi"}},
		"model":     "m",
		"sessionId": "s1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Role != domain.RoleAssistant {
		t.Fatalf("unexpected choices: %+v", resp.Choices)
	}
	if resp.Choices[0].Message.Content != "<thinking>greet</thinking>Hello!" {
		t.Fatalf("unexpected content %q", resp.Choices[0].Message.Content)
	}
	if resp.SessionID != "s1" || resp.Model != "m" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if resp.Rendered.Reasoning != "greet" || resp.Rendered.Answer != "Hello!" {
		t.Fatalf("unexpected rendered reply: %+v", resp.Rendered)
	}

	stored, found, _ := repo.Lookup(context.Background(), "s1")
	if !found || len(stored) != 2 {
		t.Fatalf("expected stored turn, got %+v", stored)
	}
}

func TestChatHandlerPostChat_GeneratesSessionID(t *testing.T) {
	repo := repository.NewMemoryConversationRepository()
	r := setupChatRouter(&llm.MockClient{Response: "ok"}, repo)

	rec := performRequest(r, http.MethodPost, "/api/chat", map[string]any{
		"messages": []domain.Message{{Role: "user", Content: "hi"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp ChatResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.SessionID != "generated-id" || resp.Model != "default-model" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if _, found, _ := repo.Lookup(context.Background(), "generated-id"); !found {
		t.Fatalf("expected session stored under generated id")
	}
}

func TestChatHandlerPostChat_InvalidRequests(t *testing.T) {
	r := setupChatRouter(&llm.MockClient{Response: "ok"}, repository.NewMemoryConversationRepository())

	cases := map[string]any{
		"sin mensajes":        map[string]any{"messages": []domain.Message{}},
		"sin campo":           map[string]any{"model": "m"},
		"rol invalido":        map[string]any{"messages": []domain.Message{{Role: "system", Content: "x"}}},
		"ultimo asistente":    map[string]any{"messages": []domain.Message{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}},
		"contenido en blanco": map[string]any{"messages": []domain.Message{{Role: "user", Content: "   "}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := performRequest(r, http.MethodPost, "/api/chat", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			var resp map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp["error"] == "" {
				t.Fatalf("expected error payload, got %s", rec.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for malformed json, got %d", rec.Code)
	}
}

func TestChatHandlerPostChat_UpstreamFailure(t *testing.T) {
	repo := repository.NewMemoryConversationRepository()
	r := setupChatRouter(&llm.MockClient{Err: &llm.APIError{StatusCode: 401, Message: "invalid api key"}}, repo)

	rec := performRequest(r, http.MethodPost, "/api/chat", map[string]any{
		"messages":  []domain.Message{{Role: "user", Content: "hi"}},
		"sessionId": "s1",
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.Contains(resp["error"], "invalid api key") {
		t.Fatalf("expected upstream message, got %q", resp["error"])
	}
	if _, found, _ := repo.Lookup(context.Background(), "s1"); found {
		t.Fatalf("failed turn must not be stored")
	}
}

func TestChatHandlerGetSession(t *testing.T) {
	repo := repository.NewMemoryConversationRepository()
	_ = repo.Upsert(context.Background(), "s1", []domain.Message{{Role: "user", Content: "hi"}})
	r := setupChatRouter(&llm.MockClient{}, repo)

	rec := performRequest(r, http.MethodGet, "/api/sessions/s1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var sess domain.Session
	_ = json.Unmarshal(rec.Body.Bytes(), &sess)
	if sess.ID != "s1" || len(sess.Messages) != 1 {
		t.Fatalf("unexpected session: %+v", sess)
	}

	rec = performRequest(r, http.MethodGet, "/api/sessions/unknown", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for unknown session, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"messages":[]`) {
		t.Fatalf("expected empty messages, got %s", rec.Body.String())
	}
}

func TestChatHandlerListModelsAndHealth(t *testing.T) {
	r := setupChatRouter(&llm.MockClient{}, repository.NewMemoryConversationRepository())

	rec := performRequest(r, http.MethodGet, "/api/models", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Models) != len(service.AvailableModels) || resp.Default != "default-model" {
		t.Fatalf("unexpected models payload: %+v", resp)
	}

	if rec := performRequest(r, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", rec.Code)
	}
}

func TestStatusForChatError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrChatInvalidInput, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&llm.APIError{StatusCode: 500}, http.StatusBadGateway},
		{llm.ErrEmptyResponse, http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := statusForChatError(c.err); got != c.want {
			t.Fatalf("statusForChatError(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
