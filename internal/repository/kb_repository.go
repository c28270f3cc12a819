package repository

import (
	"context"
	"fmt"

	"kb-rag/internal/models"
	"kb-rag/pkg/postgres"

	"github.com/Masterminds/squirrel"
	"go.uber.org/zap"
)

var kbColumns = []string{
	"id", "uid", "name", "description", "owner_id", "visibility", "chroma_collection",
	"embedding_model", "reranker_model", "use_reranker", "doc_count", "total_size_bytes",
	"last_indexed_at", "created_at", "updated_at",
}

type KnowledgeBaseRepository struct {
	db     postgres.DB
	logger *zap.Logger
}

func NewKnowledgeBaseRepository(db postgres.DB, logger *zap.Logger) *KnowledgeBaseRepository {
	return &KnowledgeBaseRepository{
		db:     db,
		logger: logger,
	}
}

func scanKnowledgeBase(row rowScanner) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	if err := row.Scan(
		&kb.ID, &kb.UID, &kb.Name, &kb.Description, &kb.OwnerID, &kb.Visibility, &kb.Collection,
		&kb.EmbeddingModel, &kb.RerankerModel, &kb.UseReranker, &kb.DocCount, &kb.TotalSizeBytes,
		&kb.LastIndexedAt, &kb.CreatedAt, &kb.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &kb, nil
}

func (r *KnowledgeBaseRepository) Create(ctx context.Context, kb *models.KnowledgeBase) error {
	query := psql.Insert("knowledge_bases").
		Columns("uid", "name", "description", "owner_id", "visibility", "chroma_collection",
			"embedding_model", "reranker_model", "use_reranker").
		Values(kb.UID, kb.Name, kb.Description, kb.OwnerID, kb.Visibility, kb.Collection,
			kb.EmbeddingModel, kb.RerankerModel, kb.UseReranker).
		Suffix("RETURNING id, created_at, updated_at")

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if err := r.db.QueryRow(ctx, sql, args...).Scan(&kb.ID, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert knowledge base: %w", err)
	}
	return nil
}

// GetOwned returns a live KB owned by ownerID.
func (r *KnowledgeBaseRepository) GetOwned(ctx context.Context, id, ownerID int64) (*models.KnowledgeBase, error) {
	query := psql.Select(kbColumns...).
		From("knowledge_bases").
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"owner_id": ownerID}).
		Where(squirrel.Eq{"deleted_at": nil})

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	kb, err := scanKnowledgeBase(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return kb, nil
}

// ListOwned returns the live KBs among ids that belong to ownerID, in id order.
// Ids that do not resolve are silently dropped.
func (r *KnowledgeBaseRepository) ListOwned(ctx context.Context, ownerID int64, ids []int64) ([]*models.KnowledgeBase, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := psql.Select(kbColumns...).
		From("knowledge_bases").
		Where(squirrel.Eq{"owner_id": ownerID}).
		Where(squirrel.Eq{"id": ids}).
		Where(squirrel.Eq{"deleted_at": nil}).
		OrderBy("id ASC")

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var kbs []*models.KnowledgeBase
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return nil, err
		}
		kbs = append(kbs, kb)
	}
	return kbs, rows.Err()
}
