package models

import (
	"time"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
)

type KnowledgeBase struct {
	ID             int64      `db:"id"`
	UID            string     `db:"uid"`
	Name           string     `db:"name"`
	Description    *string    `db:"description"`
	OwnerID        int64      `db:"owner_id"`
	Visibility     Visibility `db:"visibility"`
	Collection     string     `db:"chroma_collection"` // immutable once created
	EmbeddingModel *string    `db:"embedding_model"`
	RerankerModel  *string    `db:"reranker_model"`
	UseReranker    bool       `db:"use_reranker"`
	DocCount       int        `db:"doc_count"`
	TotalSizeBytes int64      `db:"total_size_bytes"`
	LastIndexedAt  *time.Time `db:"last_indexed_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	DeletedAt      *time.Time `db:"deleted_at"`
}

// CollectionName derives the vector collection for a KB uid.
func CollectionName(uid string) string {
	return "kb_" + uid
}
