package dto

import (
	"time"

	"kb-rag/internal/models"
)

type CreateConversationRequest struct {
	Title *string `json:"title,omitempty"`
	Model *string `json:"model,omitempty"`
	KBIDs []int64 `json:"kb_ids,omitempty"`
}

type ConversationResponse struct {
	ID            int64      `json:"id"`
	UID           string     `json:"uid"`
	Title         *string    `json:"title,omitempty"`
	Model         *string    `json:"model,omitempty"`
	KBIDs         []int64    `json:"kb_ids"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewConversationResponse(conv *models.Conversation) ConversationResponse {
	kbIDs := conv.KBIDs
	if kbIDs == nil {
		kbIDs = []int64{}
	}
	return ConversationResponse{
		ID:            conv.ID,
		UID:           conv.UID,
		Title:         conv.Title,
		Model:         conv.Model,
		KBIDs:         kbIDs,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
	}
}

type SendMessageRequest struct {
	Content        string   `json:"content" validate:"notblank"`
	Model          string   `json:"model,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	TopP           *float64 `json:"top_p,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

type MessageResponse struct {
	ID               int64     `json:"id"`
	ConversationID   int64     `json:"conversation_id"`
	Role             string    `json:"role" example:"assistant"`
	Content          *string   `json:"content"`
	Model            *string   `json:"model,omitempty"`
	TokensPrompt     *int      `json:"tokens_prompt,omitempty"`
	TokensCompletion *int      `json:"tokens_completion,omitempty"`
	LatencyMS        *int      `json:"latency_ms,omitempty"`
	Error            *string   `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func NewMessageResponse(m *models.Message) MessageResponse {
	return MessageResponse{
		ID:               m.ID,
		ConversationID:   m.ConversationID,
		Role:             string(m.Role),
		Content:          m.Content,
		Model:            m.Model,
		TokensPrompt:     m.TokensPrompt,
		TokensCompletion: m.TokensCompletion,
		LatencyMS:        m.LatencyMS,
		Error:            m.Error,
		CreatedAt:        m.CreatedAt,
	}
}

func NewMessageResponses(msgs []*models.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageResponse(m))
	}
	return out
}

type SendMessageResponse struct {
	UserMessage      MessageResponse `json:"user_message"`
	AssistantMessage MessageResponse `json:"assistant_message"`
}
