package service

import (
	"context"
	"fmt"

	"kb-rag/internal/llm"
)

// BuildContext returns the latest maxTurns*2 messages before beforeID in
// ascending order, keeping only known roles with content, followed by the
// new user message.
func BuildContext(ctx context.Context, repo ChatRepository, conversationID, beforeID int64, maxTurns int, content string) ([]llm.Message, error) {
	var history []llm.Message
	if maxTurns > 0 {
		recent, err := repo.ListMessages(ctx, conversationID, beforeID, maxTurns*2)
		if err != nil {
			return nil, fmt.Errorf("failed to load history: %w", err)
		}
		history = make([]llm.Message, 0, len(recent)+1)
		for _, m := range recent {
			if !m.Role.Valid() || m.Content == nil || *m.Content == "" {
				continue
			}
			history = append(history, llm.Message{Role: string(m.Role), Content: *m.Content})
		}
	}
	return append(history, llm.Message{Role: "user", Content: content}), nil
}
