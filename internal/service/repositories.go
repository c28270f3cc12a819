package service

import (
	"context"

	"kb-rag/internal/models"
)

// KBRepository is implemented by repository.KnowledgeBaseRepository.
type KBRepository interface {
	Create(ctx context.Context, kb *models.KnowledgeBase) error
	GetOwned(ctx context.Context, id, ownerID int64) (*models.KnowledgeBase, error)
	ListOwned(ctx context.Context, ownerID int64, ids []int64) ([]*models.KnowledgeBase, error)
}

// DocumentRepository is implemented by repository.DocumentRepository.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetOwned(ctx context.Context, kbID, docID, ownerID int64) (*models.Document, error)
	MarkProcessed(ctx context.Context, doc *models.Document, chunkCount int, embeddingModel string) error
	MarkFailed(ctx context.Context, docID int64, reason string) error
	SoftDelete(ctx context.Context, kbID, docID int64) error
}

// ChatRepository is implemented by repository.ChatRepository.
type ChatRepository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id, userID int64) (*models.Conversation, error)
	AddMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error)
	FirstMessage(ctx context.Context, conversationID int64, role models.Role) (*models.Message, error)
	SetTitleIfEmpty(ctx context.Context, conversationID int64, title string) (bool, error)
}

// FileReader is implemented by storage.Local.
type FileReader interface {
	Open(ref string) ([]byte, error)
}
