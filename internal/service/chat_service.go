package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kb-rag/internal/llm"
	"kb-rag/internal/models"
	"kb-rag/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMessagePage = 50
	maxMessagePage     = 200
)

type SendInput struct {
	ConversationID int64
	UserID         int64
	Content        string
	Model          string
	Temperature    *float64
	TopP           *float64
	MaxTokens      int

	// IdempotencyKey is accepted from clients but not acted on.
	IdempotencyKey string
}

type ChatService struct {
	repo   ChatRepository
	kbs    KBRepository
	gen    llm.Generator
	titles *TitleService
	cfg    config.ChatConfig
	logger *zap.Logger

	// streamTimeout bounds a detached upstream stream.
	streamTimeout time.Duration
}

func NewChatService(
	repo ChatRepository,
	kbs KBRepository,
	gen llm.Generator,
	titles *TitleService,
	cfg config.ChatConfig,
	streamTimeout time.Duration,
	logger *zap.Logger,
) *ChatService {
	if streamTimeout <= 0 {
		streamTimeout = 10 * time.Minute
	}
	return &ChatService{
		repo:          repo,
		kbs:           kbs,
		gen:           gen,
		titles:        titles,
		cfg:           cfg,
		logger:        logger.Named("chat"),
		streamTimeout: streamTimeout,
	}
}

// CreateConversation keeps only the kbIDs userID owns.
func (s *ChatService) CreateConversation(ctx context.Context, userID int64, title, model *string, kbIDs []int64) (*models.Conversation, error) {
	conv := &models.Conversation{
		UID:    uuid.NewString(),
		UserID: userID,
		Title:  title,
		Model:  model,
	}
	if len(kbIDs) > 0 {
		kbs, err := s.kbs.ListOwned(ctx, userID, kbIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve knowledge bases: %w", err)
		}
		for _, kb := range kbs {
			conv.KBIDs = append(conv.KBIDs, kb.ID)
		}
	}

	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	s.logger.Info("Conversation created", zap.Int64("conversation_id", conv.ID), zap.Int("kbs", len(conv.KBIDs)))
	return conv, nil
}

func (s *ChatService) GetConversation(ctx context.Context, conversationID, userID int64) (*models.Conversation, error) {
	return s.repo.GetConversation(ctx, conversationID, userID)
}

func (s *ChatService) ListMessages(ctx context.Context, conversationID, userID int64, limit int, beforeID int64) ([]*models.Message, error) {
	if _, err := s.repo.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}
	return s.repo.ListMessages(ctx, conversationID, beforeID, limit)
}

func (s *ChatService) model(in SendInput, conv *models.Conversation) string {
	if in.Model != "" {
		return in.Model
	}
	if conv.Model != nil && *conv.Model != "" {
		return *conv.Model
	}
	return s.cfg.DefaultModel
}

// prepare persists the user message and assembles the generation request.
func (s *ChatService) prepare(ctx context.Context, in SendInput) (*models.Conversation, *models.Message, llm.Request, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, nil, llm.Request{}, ErrEmptyMessage
	}
	conv, err := s.repo.GetConversation(ctx, in.ConversationID, in.UserID)
	if err != nil {
		return nil, nil, llm.Request{}, err
	}

	userMsg := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        &in.Content,
	}
	if err := s.repo.AddMessage(ctx, userMsg); err != nil {
		return nil, nil, llm.Request{}, fmt.Errorf("failed to persist user message: %w", err)
	}

	msgs, err := BuildContext(ctx, s.repo, conv.ID, userMsg.ID, s.cfg.MaxTurns, in.Content)
	if err != nil {
		return nil, nil, llm.Request{}, err
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = s.cfg.MaxTokens
	}
	req := llm.Request{
		Model:       s.model(in, conv),
		Messages:    msgs,
		Temperature: in.Temperature,
		TopP:        in.TopP,
		MaxTokens:   maxTokens,
	}
	s.logger.Debug("Context built",
		zap.Int64("conversation_id", conv.ID),
		zap.Int("messages", len(msgs)),
		zap.String("model", req.Model),
	)
	return conv, userMsg, req, nil
}

// Send runs one non-streaming turn. Generation errors are returned after
// the user message has been stored.
func (s *ChatService) Send(ctx context.Context, in SendInput) (*models.Message, *models.Message, error) {
	conv, userMsg, req, err := s.prepare(ctx, in)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	out, err := s.gen.Complete(ctx, req)
	if err != nil {
		s.logger.Error("Generation failed", zap.Int64("conversation_id", conv.ID), zap.Error(err))
		return userMsg, nil, err
	}
	latency := latencyMS(time.Since(start))

	model := out.Model
	if model == "" {
		model = req.Model
	}
	asst := &models.Message{
		ConversationID:   conv.ID,
		Role:             models.RoleAssistant,
		Model:            &model,
		TokensPrompt:     out.PromptTokens,
		TokensCompletion: out.CompletionTokens,
		LatencyMS:        &latency,
	}
	if out.Content != "" {
		asst.Content = &out.Content
	}
	if err := s.repo.AddMessage(ctx, asst); err != nil {
		return userMsg, nil, fmt.Errorf("failed to persist assistant message: %w", err)
	}

	s.logger.Info("Chat turn completed",
		zap.Int64("conversation_id", conv.ID),
		zap.Int("latency_ms", latency),
		zap.Int("output_len", len(out.Content)),
	)
	s.scheduleTitle(conv)
	return userMsg, asst, nil
}

func (s *ChatService) scheduleTitle(conv *models.Conversation) {
	if s.titles == nil || !s.cfg.AutoTitle {
		return
	}
	if conv.Title != nil && *conv.Title != "" {
		return
	}
	s.titles.Schedule(conv.ID)
}

// latencyMS rounds up so any measured duration records at least 1ms.
func latencyMS(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Millisecond - 1) / time.Millisecond)
}
