// Package llm is the chat generation client. Providers expose a single
// response mode and an incremental event stream whose payloads follow the
// OpenAI chat.completion.chunk shape.
package llm

import (
	"context"
	"fmt"
	"strings"

	"kb-rag/pkg/config"

	"go.uber.org/zap"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	TopP        *float64
	MaxTokens   int
}

type Completion struct {
	Content          string
	Model            string
	PromptTokens     *int
	CompletionTokens *int
}

// Stream yields the payload of each upstream data event, including the
// terminal Done sentinel when the provider sends one. Next returns io.EOF
// once the upstream body ends.
type Stream interface {
	Next() (string, error)
	Close() error
}

type Generator interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Stream(ctx context.Context, req Request) (Stream, error)
}

// New picks the provider named by cfg.Provider.
func New(cfg *config.Config, logger *zap.Logger) (Generator, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "openai":
		return NewOpenAI(cfg.LLM, logger), nil
	case "gigachat":
		g, err := NewGigaChat(context.Background(), cfg.GigaChat, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}
