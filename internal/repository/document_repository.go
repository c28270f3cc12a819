package repository

import (
	"context"
	"fmt"

	"kb-rag/internal/models"
	"kb-rag/pkg/postgres"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var documentColumns = []string{
	"id", "uid", "kb_id", "filename", "file_ext", "mime_type", "storage_uri", "size_bytes",
	"status", "error", "processed_at", "chunk_count", "embedding_model", "ingest_params",
	"uploaded_by", "created_at", "updated_at",
}

type DocumentRepository struct {
	db     postgres.DB
	logger *zap.Logger
}

func NewDocumentRepository(db postgres.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	if err := row.Scan(
		&doc.ID, &doc.UID, &doc.KBID, &doc.Filename, &doc.FileExt, &doc.MimeType, &doc.StorageURI,
		&doc.SizeBytes, &doc.Status, &doc.Error, &doc.ProcessedAt, &doc.ChunkCount, &doc.EmbeddingModel,
		&doc.IngestParams, &doc.UploadedBy, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create inserts doc and recomputes the owning KB aggregates in the same
// transaction.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockKnowledgeBase(ctx, tx, doc.KBID); err != nil {
			return err
		}

		query := psql.Insert("knowledge_documents").
			Columns("uid", "kb_id", "filename", "file_ext", "mime_type", "storage_uri", "size_bytes",
				"status", "chunk_count", "ingest_params", "uploaded_by").
			Values(doc.UID, doc.KBID, doc.Filename, doc.FileExt, doc.MimeType, doc.StorageURI, doc.SizeBytes,
				doc.Status, doc.ChunkCount, doc.IngestParams, doc.UploadedBy).
			Suffix("RETURNING id, created_at, updated_at")

		sql, args, err := query.ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, sql, args...).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}

		return recomputeAggregates(ctx, tx, doc.KBID)
	})
}

// GetOwned resolves a live document of a live KB owned by ownerID.
func (r *DocumentRepository) GetOwned(ctx context.Context, kbID, docID, ownerID int64) (*models.Document, error) {
	query := psql.Select(prefixed("d", documentColumns)...).
		From("knowledge_documents d").
		Join("knowledge_bases k ON k.id = d.kb_id").
		Where(squirrel.Eq{"d.id": docID}).
		Where(squirrel.Eq{"d.kb_id": kbID}).
		Where(squirrel.Eq{"k.owner_id": ownerID}).
		Where(squirrel.Eq{"d.deleted_at": nil}).
		Where(squirrel.Eq{"k.deleted_at": nil})

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	doc, err := scanDocument(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return doc, nil
}

// MarkProcessed records a successful ingestion, stamps the KB as indexed and
// refreshes its aggregates.
func (r *DocumentRepository) MarkProcessed(ctx context.Context, doc *models.Document, chunkCount int, embeddingModel string) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockKnowledgeBase(ctx, tx, doc.KBID); err != nil {
			return err
		}

		tag, err := exec(ctx, tx, psql.Update("knowledge_documents").
			Set("status", models.DocumentStatusProcessed).
			Set("error", nil).
			Set("chunk_count", chunkCount).
			Set("embedding_model", embeddingModel).
			Set("processed_at", squirrel.Expr("NOW()")).
			Set("updated_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{"id": doc.ID}))
		if err != nil {
			return fmt.Errorf("failed to update document status: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := exec(ctx, tx, psql.Update("knowledge_bases").
			Set("last_indexed_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{"id": doc.KBID})); err != nil {
			return fmt.Errorf("failed to stamp knowledge base: %w", err)
		}

		return recomputeAggregates(ctx, tx, doc.KBID)
	})
}

// MarkFailed records a terminal ingestion failure. chunk_count is left alone
// so it keeps describing whatever an earlier run indexed.
func (r *DocumentRepository) MarkFailed(ctx context.Context, docID int64, reason string) error {
	_, err := exec(ctx, r.db, psql.Update("knowledge_documents").
		Set("status", models.DocumentStatusFailed).
		Set("error", reason).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": docID}))
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	return nil
}

// SoftDelete marks a live document deleted and recomputes aggregates in the
// same transaction.
func (r *DocumentRepository) SoftDelete(ctx context.Context, kbID, docID int64) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockKnowledgeBase(ctx, tx, kbID); err != nil {
			return err
		}

		tag, err := exec(ctx, tx, psql.Update("knowledge_documents").
			Set("deleted_at", squirrel.Expr("NOW()")).
			Set("updated_at", squirrel.Expr("NOW()")).
			Where(squirrel.Eq{"id": docID}).
			Where(squirrel.Eq{"kb_id": kbID}).
			Where(squirrel.Eq{"deleted_at": nil}))
		if err != nil {
			return fmt.Errorf("failed to soft delete document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		return recomputeAggregates(ctx, tx, kbID)
	})
}
