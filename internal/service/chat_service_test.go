package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"openrouter-chat/internal/domain"
	"openrouter-chat/internal/llm"
	"openrouter-chat/internal/repository"
)

type failingConversationRepo struct {
	lookupErr error
	upsertErr error
	upserts   int
}

func (f *failingConversationRepo) Lookup(context.Context, string) ([]domain.Message, bool, error) {
	return nil, false, f.lookupErr
}

func (f *failingConversationRepo) Upsert(context.Context, string, []domain.Message) error {
	f.upserts++
	return f.upsertErr
}

func newTestChatService(client llm.LLMClient, repo repository.ConversationRepository) *ChatService {
	return NewChatService(client, repo, zap.NewNop(), "default-model", WithTimeout(time.Second))
}

func TestChatServiceSubmit_FirstAndSecondTurn(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryConversationRepository()
	mock := &llm.MockClient{Response: "<thinking>greet</thinking>Hello!"}
	svc := newTestChatService(mock, repo)

	out, err := svc.Submit(ctx, TurnInput{SessionID: "s1", Content: "hi", Model: "m"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "<thinking>greet</thinking>Hello!"},
	}
	stored, found, _ := repo.Lookup(ctx, "s1")
	if !found || !reflect.DeepEqual(stored, want) {
		t.Fatalf("unexpected stored history: %+v", stored)
	}
	if out.Rendered.Reasoning != "greet" || out.Rendered.Answer != "Hello!" {
		t.Fatalf("unexpected rendered reply: %+v", out.Rendered)
	}
	if out.Reply != want[1] || out.Model != "m" || out.SessionID != "s1" {
		t.Fatalf("unexpected result: %+v", out)
	}

	mock.Response = "<thinking>again</thinking>Still here."
	if _, err := svc.Submit(ctx, TurnInput{SessionID: "s1", Prior: want, Content: "you there?", Model: "m"}); err != nil {
		t.Fatalf("second turn failed: %v", err)
	}

	requests := mock.Requests()
	second := requests[1].Messages
	if len(second) != 4 || second[1] != want[0] || second[2] != want[1] || second[3].Content != "you there?" {
		t.Fatalf("expected prompt system+history+new message, got %+v", second)
	}

	stored, _, _ = repo.Lookup(ctx, "s1")
	if len(stored) != 4 {
		t.Fatalf("expected 4 stored messages, got %d", len(stored))
	}
	if stored[2].Content != "you there?" || stored[3].Content != "<thinking>again</thinking>Still here." {
		t.Fatalf("expected appended turn, got %+v", stored[2:])
	}
}

func TestChatServiceSubmit_DefaultModel(t *testing.T) {
	mock := &llm.MockClient{Response: "ok"}
	svc := newTestChatService(mock, repository.NewMemoryConversationRepository())

	out, err := svc.Submit(context.Background(), TurnInput{SessionID: "s1", Content: "hi"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out.Model != "default-model" || mock.Requests()[0].Model != "default-model" {
		t.Fatalf("expected default model, got %q", out.Model)
	}

	if NewChatService(mock, nil, nil, " ").DefaultModel() != DefaultModel {
		t.Fatalf("expected package default model fallback")
	}
}

func TestChatServiceSubmit_PriorSeedsUnknownSession(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryConversationRepository()
	mock := &llm.MockClient{Response: "reply"}
	svc := newTestChatService(mock, repo)

	prior := []domain.Message{
		{Role: domain.RoleUser, Content: "before restart"},
		{Role: domain.RoleAssistant, Content: "remembered"},
	}
	if _, err := svc.Submit(ctx, TurnInput{SessionID: "s9", Prior: prior, Content: "next"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	stored, _, _ := repo.Lookup(ctx, "s9")
	if len(stored) != 4 || stored[0].Content != "before restart" {
		t.Fatalf("expected prior to seed history, got %+v", stored)
	}
}

func TestChatServiceSubmit_ServerHistoryWins(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryConversationRepository()
	server := []domain.Message{
		{Role: domain.RoleUser, Content: "server user"},
		{Role: domain.RoleAssistant, Content: "server reply"},
	}
	_ = repo.Upsert(ctx, "s1", server)
	mock := &llm.MockClient{Response: "ok"}
	svc := newTestChatService(mock, repo)

	prior := []domain.Message{{Role: domain.RoleUser, Content: "client only"}}
	if _, err := svc.Submit(ctx, TurnInput{SessionID: "s1", Prior: prior, Content: "q"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	prompt := mock.Requests()[0].Messages
	if prompt[1].Content != "server user" || len(prompt) != 4 {
		t.Fatalf("expected server history in prompt, got %+v", prompt)
	}
}

func TestChatServiceSubmit_LLMFailureLeavesHistory(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryConversationRepository()
	existing := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}
	_ = repo.Upsert(ctx, "s1", existing)
	upstream := &llm.APIError{StatusCode: 401, Message: "invalid key"}
	svc := newTestChatService(&llm.MockClient{Err: upstream}, repo)

	_, err := svc.Submit(ctx, TurnInput{SessionID: "s1", Content: "again"})
	var apiErr *llm.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "invalid key" {
		t.Fatalf("expected wrapped APIError, got %v", err)
	}
	stored, _, _ := repo.Lookup(ctx, "s1")
	if !reflect.DeepEqual(stored, existing) {
		t.Fatalf("history mutated on failure: %+v", stored)
	}

	_, err = svc.Submit(ctx, TurnInput{SessionID: "new", Content: "x"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, found, _ := repo.Lookup(ctx, "new"); found {
		t.Fatalf("failed turn must not create the session")
	}
}

func TestChatServiceSubmit_NotIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryConversationRepository()
	mock := &llm.MockClient{Response: "ok"}
	svc := newTestChatService(mock, repo)

	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(ctx, TurnInput{SessionID: "s1", Content: "same"}); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	stored, _, _ := repo.Lookup(ctx, "s1")
	if len(stored) != 4 || len(mock.Requests()) != 2 {
		t.Fatalf("expected duplicate turn, got %d messages and %d calls", len(stored), len(mock.Requests()))
	}
}

func TestChatServiceSubmit_RepositoryErrors(t *testing.T) {
	ctx := context.Background()

	lookupFail := &failingConversationRepo{lookupErr: errors.New("redis down")}
	mock := &llm.MockClient{Response: "ok"}
	if _, err := newTestChatService(mock, lookupFail).Submit(ctx, TurnInput{SessionID: "s1", Content: "x"}); err == nil {
		t.Fatalf("expected lookup error")
	}
	if len(mock.Requests()) != 0 {
		t.Fatalf("llm must not be called when lookup fails")
	}

	upsertFail := &failingConversationRepo{upsertErr: errors.New("readonly")}
	if _, err := newTestChatService(mock, upsertFail).Submit(ctx, TurnInput{SessionID: "s1", Content: "x"}); err == nil {
		t.Fatalf("expected upsert error")
	}
	if upsertFail.upserts != 1 {
		t.Fatalf("expected one upsert attempt, got %d", upsertFail.upserts)
	}
}

func TestChatServiceSubmit_Validation(t *testing.T) {
	svc := newTestChatService(&llm.MockClient{Response: "ok"}, repository.NewMemoryConversationRepository())

	cases := []TurnInput{
		{Content: "hi"},
		{SessionID: "  ", Content: "hi"},
		{SessionID: "s1", Content: "   "},
	}
	for i, c := range cases {
		if _, err := svc.Submit(context.Background(), c); !errors.Is(err, ErrChatInvalidInput) {
			t.Fatalf("case %d expected ErrChatInvalidInput, got %v", i, err)
		}
	}
}

func TestChatServiceSubmit_Timeout(t *testing.T) {
	slow := llmFunc(func(ctx context.Context, _ llm.CompletionRequest) (llm.Completion, error) {
		<-ctx.Done()
		return llm.Completion{}, ctx.Err()
	})
	svc := NewChatService(slow, repository.NewMemoryConversationRepository(), zap.NewNop(), "", WithTimeout(20*time.Millisecond))

	_, err := svc.Submit(context.Background(), TurnInput{SessionID: "s1", Content: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestChatServiceHistory(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryConversationRepository()
	svc := newTestChatService(&llm.MockClient{}, repo)

	out, err := svc.History(ctx, "never-seen")
	if err != nil || out == nil || len(out) != 0 {
		t.Fatalf("expected empty history, got %+v %v", out, err)
	}

	_ = repo.Upsert(ctx, "s1", []domain.Message{{Role: domain.RoleUser, Content: "hi"}})
	out, err = svc.History(ctx, " s1 ")
	if err != nil || len(out) != 1 {
		t.Fatalf("expected stored history, got %+v %v", out, err)
	}
}

func TestChatService_NotConfigured(t *testing.T) {
	var svc *ChatService
	if _, err := svc.Submit(context.Background(), TurnInput{}); !errors.Is(err, ErrChatServiceNotConfigured) {
		t.Fatalf("expected ErrChatServiceNotConfigured, got %v", err)
	}
	if _, err := NewChatService(nil, nil, nil, "").History(context.Background(), "s1"); !errors.Is(err, ErrChatServiceNotConfigured) {
		t.Fatalf("expected ErrChatServiceNotConfigured, got %v", err)
	}
}

type llmFunc func(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error)

func (f llmFunc) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	return f(ctx, req)
}
