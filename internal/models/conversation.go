package models

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r can be sent to a generation provider.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Conversation struct {
	ID             int64      `db:"id"`
	UID            string     `db:"uid"`
	UserID         int64      `db:"user_id"`
	Title          *string    `db:"title"`
	Model          *string    `db:"model"`
	KBIDs          []int64    `db:"-"`
	FirstMessageAt *time.Time `db:"first_message_at"`
	LastMessageAt  *time.Time `db:"last_message_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	DeletedAt      *time.Time `db:"deleted_at"`
}

type Message struct {
	ID               int64     `db:"id"`
	ConversationID   int64     `db:"conversation_id"`
	Role             Role      `db:"role"`
	Content          *string   `db:"content"`
	TokensPrompt     *int      `db:"tokens_prompt"`
	TokensCompletion *int      `db:"tokens_completion"`
	LatencyMS        *int      `db:"latency_ms"`
	Model            *string   `db:"model"`
	Error            *string   `db:"error"`
	CreatedAt        time.Time `db:"created_at"`
}
