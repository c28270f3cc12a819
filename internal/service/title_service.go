package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"kb-rag/internal/llm"
	"kb-rag/internal/models"
	"kb-rag/internal/repository"
	"kb-rag/pkg/config"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	fallbackTitle  = "New conversation"
	titleMaxTokens = 32
	titleTimeout   = time.Minute
)

const titlePrompt = "Write a short, specific title for this conversation. " +
	"Reply with the title only, without quotes or trailing punctuation. " +
	"Use at most eight words and the language of the user. Avoid generic words such as help or chat."

const titleQuotes = "\"'`“”‘’「」『』‹›«»"

const titleTrailing = "。.!?？：:;，, …"

// TitleService names untitled conversations in the background.
type TitleService struct {
	repo   ChatRepository
	gen    llm.Generator
	pool   *ants.Pool
	model  string
	maxLen int
	logger *zap.Logger
}

func NewTitleService(repo ChatRepository, gen llm.Generator, cfg config.ChatConfig, logger *zap.Logger) (*TitleService, error) {
	workers := cfg.TitleWorkers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create title pool: %w", err)
	}

	model := cfg.TitleModel
	if model == "" {
		model = cfg.DefaultModel
	}
	maxLen := cfg.TitleMaxLength
	if maxLen <= 0 {
		maxLen = 40
	}
	return &TitleService{
		repo:   repo,
		gen:    gen,
		pool:   pool,
		model:  model,
		maxLen: maxLen,
		logger: logger.Named("title"),
	}, nil
}

func (t *TitleService) Close(timeout time.Duration) error {
	return t.pool.ReleaseTimeout(timeout)
}

// Schedule queues title generation. A saturated pool drops the job.
func (t *TitleService) Schedule(conversationID int64) {
	err := t.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
		defer cancel()
		if _, err := t.Generate(ctx, conversationID); err != nil {
			t.logger.Warn("Title generation failed", zap.Int64("conversation_id", conversationID), zap.Error(err))
		}
	})
	if err != nil {
		t.logger.Warn("Title job dropped", zap.Int64("conversation_id", conversationID), zap.Error(err))
	}
}

// Generate titles the conversation from its first user and assistant
// messages, falling back to the user message itself.
func (t *TitleService) Generate(ctx context.Context, conversationID int64) (string, error) {
	seed, err := t.seed(ctx, conversationID)
	if err != nil {
		return "", err
	}

	title := ""
	if len(seed) > 0 {
		title = t.ask(ctx, seed)
	}
	if title == "" {
		title = t.fallback(seed)
	}

	updated, err := t.repo.SetTitleIfEmpty(ctx, conversationID, title)
	if err != nil {
		return "", err
	}
	if updated {
		t.logger.Info("Conversation titled", zap.Int64("conversation_id", conversationID), zap.String("title", title))
	}
	return title, nil
}

func (t *TitleService) seed(ctx context.Context, conversationID int64) ([]llm.Message, error) {
	var seed []llm.Message
	for _, role := range []models.Role{models.RoleUser, models.RoleAssistant} {
		m, err := t.repo.FirstMessage(ctx, conversationID, role)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		seed = append(seed, llm.Message{Role: string(role), Content: *m.Content})
	}
	return seed, nil
}

func (t *TitleService) ask(ctx context.Context, seed []llm.Message) string {
	temperature, topP := 0.3, 1.0
	msgs := append([]llm.Message{{Role: "system", Content: titlePrompt}}, seed...)
	out, err := t.gen.Complete(ctx, llm.Request{
		Model:       t.model,
		Messages:    msgs,
		Temperature: &temperature,
		TopP:        &topP,
		MaxTokens:   titleMaxTokens,
	})
	if err != nil {
		t.logger.Debug("Title model call failed", zap.Error(err))
		return ""
	}
	return SanitizeTitle(out.Content, t.maxLen)
}

func (t *TitleService) fallback(seed []llm.Message) string {
	for _, m := range seed {
		if m.Role == "user" {
			if s := SanitizeTitle(m.Content, t.maxLen); s != "" {
				return s
			}
		}
	}
	for _, m := range seed {
		if s := SanitizeTitle(m.Content, t.maxLen); s != "" {
			return s
		}
	}
	return fallbackTitle
}

// SanitizeTitle strips surrounding quotes, collapses whitespace, trims
// trailing punctuation and cuts to maxLen characters.
func SanitizeTitle(raw string, maxLen int) string {
	s := strings.Trim(strings.TrimSpace(raw), titleQuotes)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, titleTrailing)
	if r := []rune(s); maxLen > 0 && len(r) > maxLen {
		s = strings.TrimRightFunc(string(r[:maxLen]), unicode.IsSpace)
	}
	return s
}
