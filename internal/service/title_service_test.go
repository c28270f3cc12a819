package service

import (
	"context"
	"testing"
	"time"

	"kb-rag/internal/llm"
	"kb-rag/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"\"Quarterly  report\nsummary.\"", "Quarterly report summary"},
		{"«Budget plan!»", "Budget plan"},
		{"   ", ""},
		{"A very long title that keeps going well beyond the limit", "A very long title that keeps going well"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeTitle(tt.raw, 40), tt.raw)
	}
}

func newTitles(t *testing.T, repo *fakeChat, gen *fakeGenerator) *TitleService {
	t.Helper()
	svc, err := NewTitleService(repo, gen, chatConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(time.Second) })
	return svc
}

func seedTurn(t *testing.T, repo *fakeChat) {
	ctx := context.Background()
	require.NoError(t, repo.AddMessage(ctx, &models.Message{ConversationID: 1, Role: models.RoleUser, Content: strPtr("how do I rotate keys?")}))
	require.NoError(t, repo.AddMessage(ctx, &models.Message{ConversationID: 1, Role: models.RoleAssistant, Content: strPtr("Use the vault CLI.")}))
}

func TestGenerateTitle(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	seedTurn(t, repo)
	gen := &fakeGenerator{complete: func(req llm.Request) (*llm.Completion, error) {
		return &llm.Completion{Content: `"Rotating vault keys."`}, nil
	}}

	title, err := newTitles(t, repo, gen).Generate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Rotating vault keys", title)
	assert.Equal(t, "Rotating vault keys", repo.titles[1])

	req := gen.requests[0]
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Len(t, req.Messages, 3)
	assert.Equal(t, 32, req.MaxTokens)
	assert.InDelta(t, 0.3, *req.Temperature, 1e-9)
}

func TestGenerateTitleFallsBackToUserMessage(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	seedTurn(t, repo)
	gen := &fakeGenerator{complete: func(llm.Request) (*llm.Completion, error) {
		return nil, llm.ErrGeneration
	}}

	title, err := newTitles(t, repo, gen).Generate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "how do I rotate keys", title)
}

func TestGenerateTitleWithoutMessages(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	gen := &fakeGenerator{}

	title, err := newTitles(t, repo, gen).Generate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, fallbackTitle, title)
	assert.Empty(t, gen.requests)
}

func TestSendSchedulesTitle(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	gen := &fakeGenerator{complete: func(req llm.Request) (*llm.Completion, error) {
		if req.MaxTokens == titleMaxTokens {
			return &llm.Completion{Content: "Greeting"}, nil
		}
		return &llm.Completion{Content: "hello"}, nil
	}}
	cfg := chatConfig()
	cfg.AutoTitle = true
	svc := NewChatService(repo, newFakeKBs(), gen, newTitles(t, repo, gen), cfg, time.Minute, zap.NewNop())

	_, _, err := svc.Send(context.Background(), SendInput{ConversationID: 1, UserID: 7, Content: "hi"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.titles[1] == "Greeting"
	}, 2*time.Second, 10*time.Millisecond)
}
