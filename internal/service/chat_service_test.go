package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"kb-rag/internal/llm"
	"kb-rag/internal/models"
	"kb-rag/internal/repository"
	"kb-rag/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chatConfig() config.ChatConfig {
	return config.ChatConfig{
		MaxTurns:       12,
		DefaultModel:   "default-model",
		MaxTokens:      512,
		TitleMaxLength: 40,
		TitleWorkers:   1,
	}
}

func newChat(repo *fakeChat, gen *fakeGenerator) *ChatService {
	return NewChatService(repo, newFakeKBs(), gen, nil, chatConfig(), time.Minute, zap.NewNop())
}

func delta(s string) string { return llm.DeltaPayload(s) }

func drain(t *testing.T, cs *ChatStream) []string {
	t.Helper()
	var frames []string
	for f := range cs.Frames() {
		frames = append(frames, string(f))
	}
	select {
	case <-cs.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not persisted")
	}
	return frames
}

func TestBuildContextBoundsHistory(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	for i := 0; i < 30; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		require.NoError(t, repo.AddMessage(context.Background(), &models.Message{
			ConversationID: 1, Role: role, Content: strPtr(fmt.Sprintf("m%02d", i)),
		}))
	}

	msgs, err := BuildContext(context.Background(), repo, 1, 0, 12, "new question")
	require.NoError(t, err)

	require.Len(t, msgs, 25)
	assert.Equal(t, "m06", msgs[0].Content)
	assert.Equal(t, "m29", msgs[23].Content)
	assert.Equal(t, llm.Message{Role: "user", Content: "new question"}, msgs[24])
}

func TestBuildContextSkipsEmptyAndUnknown(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	ctx := context.Background()
	require.NoError(t, repo.AddMessage(ctx, &models.Message{ConversationID: 1, Role: models.RoleUser, Content: strPtr("hi")}))
	require.NoError(t, repo.AddMessage(ctx, &models.Message{ConversationID: 1, Role: models.RoleAssistant}))
	require.NoError(t, repo.AddMessage(ctx, &models.Message{ConversationID: 1, Role: "tool", Content: strPtr("x")}))
	require.NoError(t, repo.AddMessage(ctx, &models.Message{ConversationID: 1, Role: models.RoleSystem, Content: strPtr("sys")}))

	msgs, err := BuildContext(ctx, repo, 1, 0, 10, "q")
	require.NoError(t, err)
	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "q"},
	}, msgs)
}

func TestSendPersistsBothMessages(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7, Model: strPtr("conv-model")})
	prompt, completion := 11, 4
	gen := &fakeGenerator{complete: func(req llm.Request) (*llm.Completion, error) {
		return &llm.Completion{Content: "pong", Model: "served-model", PromptTokens: &prompt, CompletionTokens: &completion}, nil
	}}

	userMsg, asst, err := newChat(repo, gen).Send(context.Background(), SendInput{ConversationID: 1, UserID: 7, Content: "ping"})
	require.NoError(t, err)

	assert.Equal(t, "ping", *userMsg.Content)
	assert.Equal(t, "pong", *asst.Content)
	assert.Equal(t, "served-model", *asst.Model)
	assert.Equal(t, 11, *asst.TokensPrompt)
	assert.Greater(t, asst.ID, userMsg.ID)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, "conv-model", req.Model)
	assert.Equal(t, 512, req.MaxTokens)
	assert.Equal(t, []llm.Message{{Role: "user", Content: "ping"}}, req.Messages)
}

func TestSendPropagatesGenerationError(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	gen := &fakeGenerator{complete: func(llm.Request) (*llm.Completion, error) {
		return nil, llm.ErrGeneration
	}}

	userMsg, asst, err := newChat(repo, gen).Send(context.Background(), SendInput{ConversationID: 1, UserID: 7, Content: "ping"})
	require.ErrorIs(t, err, llm.ErrGeneration)
	assert.NotNil(t, userMsg)
	assert.Nil(t, asst)
	assert.Len(t, repo.messages(), 1)
}

func TestSendValidatesInput(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	svc := newChat(repo, &fakeGenerator{})

	_, _, err := svc.Send(context.Background(), SendInput{ConversationID: 1, UserID: 7, Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, _, err = svc.Send(context.Background(), SendInput{ConversationID: 1, UserID: 8, Content: "hi"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Stream(context.Background(), SendInput{ConversationID: 2, UserID: 7, Content: "hi"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, repo.messages())
}

func TestStreamForwardsAndPersists(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	up := &scriptedStream{payloads: []string{
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		delta("Hel"),
		"{not json",
		delta("lo"),
		llm.Done,
		delta("ignored after done"),
	}}
	gen := &fakeGenerator{stream: func(llm.Request) (llm.Stream, error) { return up, nil }}

	cs, err := newChat(repo, gen).Stream(context.Background(), SendInput{ConversationID: 1, UserID: 7, Content: "hi"})
	require.NoError(t, err)
	frames := drain(t, cs)

	require.Len(t, frames, 4)
	assert.Equal(t, "data: "+delta("Hel")+"\n\n", frames[1])
	assert.Equal(t, "data: [DONE]\n\n", frames[3])
	assert.True(t, up.closed)

	asst, err := cs.Result()
	require.NoError(t, err)
	assert.Equal(t, "Hello", *asst.Content)
	assert.Nil(t, asst.Error)
	assert.Equal(t, "default-model", *asst.Model)
}

func TestStreamPartialFailurePersistsAccumulatedText(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	up := &scriptedStream{
		payloads: []string{delta("Hel"), delta("lo wor")},
		err:      errors.New("connection reset by peer"),
	}
	gen := &fakeGenerator{stream: func(llm.Request) (llm.Stream, error) { return up, nil }}

	cs, err := newChat(repo, gen).Stream(context.Background(), SendInput{ConversationID: 1, UserID: 7, Content: "hi"})
	require.NoError(t, err)
	frames := drain(t, cs)

	require.Len(t, frames, 4)
	assert.Contains(t, frames[2], "partial stream failure")
	assert.Equal(t, "data: [DONE]\n\n", frames[3])

	asst, err := cs.Result()
	require.NoError(t, err)
	assert.Equal(t, "Hello wor", *asst.Content)
	require.NotNil(t, asst.LatencyMS)
	assert.Greater(t, *asst.LatencyMS, 0)
	require.NotNil(t, asst.Error)
	assert.Contains(t, *asst.Error, ErrPartialStream.Error())

	stored := repo.messages()
	require.Len(t, stored, 2)
	assert.Equal(t, models.RoleAssistant, stored[1].Role)
}

func TestStreamUpstreamRefusedStillPersists(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	gen := &fakeGenerator{stream: func(llm.Request) (llm.Stream, error) { return nil, llm.ErrGeneration }}

	cs, err := newChat(repo, gen).Stream(context.Background(), SendInput{ConversationID: 1, UserID: 7, Content: "hi"})
	require.NoError(t, err)
	frames := drain(t, cs)
	require.Len(t, frames, 2)

	asst, err := cs.Result()
	require.NoError(t, err)
	assert.Nil(t, asst.Content)
	require.NotNil(t, asst.Error)
}

func TestStreamSurvivesDisconnect(t *testing.T) {
	repo := newFakeChat(&models.Conversation{ID: 1, UserID: 7})
	up := &scriptedStream{payloads: []string{delta("a"), delta("b"), delta("c"), llm.Done}}
	gen := &fakeGenerator{stream: func(llm.Request) (llm.Stream, error) { return up, nil }}

	ctx, cancel := context.WithCancel(context.Background())
	cs, err := newChat(repo, gen).Stream(ctx, SendInput{ConversationID: 1, UserID: 7, Content: "hi"})
	require.NoError(t, err)

	first := <-cs.Frames()
	assert.Contains(t, string(first), `"a"`)
	cancel()
	cs.Detach()

	select {
	case <-cs.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not persisted after disconnect")
	}
	asst, err := cs.Result()
	require.NoError(t, err)
	assert.Equal(t, "abc", *asst.Content)
}

func TestCreateConversationKeepsOwnedKBs(t *testing.T) {
	repo := newFakeChat()
	kbs := newFakeKBs(
		&models.KnowledgeBase{ID: 1, OwnerID: 7},
		&models.KnowledgeBase{ID: 2, OwnerID: 8},
	)
	svc := NewChatService(repo, kbs, &fakeGenerator{}, nil, chatConfig(), time.Minute, zap.NewNop())

	conv, err := svc.CreateConversation(context.Background(), 7, nil, nil, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, conv.KBIDs)
	assert.NotEmpty(t, conv.UID)
}

func TestLatencyRoundsUp(t *testing.T) {
	assert.Equal(t, 0, latencyMS(0))
	assert.Equal(t, 1, latencyMS(time.Microsecond))
	assert.Equal(t, 2, latencyMS(1500*time.Microsecond))
}
