package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kb-rag/internal/chunker"
	"kb-rag/internal/embedding"
	"kb-rag/internal/extractor"
	"kb-rag/internal/models"
	"kb-rag/internal/vectorindex"
	"kb-rag/pkg/config"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// IngestionService turns stored documents into indexed chunks. Background
// runs go through a bounded pool and never share the caller's context.
type IngestionService struct {
	kbs        KBRepository
	docs       DocumentRepository
	files      FileReader
	extractors *extractor.Registry
	embedder   embedding.Embedder
	index      vectorindex.Index
	pool       *ants.Pool
	cfg        config.IngestConfig
	logger     *zap.Logger
}

func NewIngestionService(
	kbs KBRepository,
	docs DocumentRepository,
	files FileReader,
	extractors *extractor.Registry,
	embedder embedding.Embedder,
	index vectorindex.Index,
	cfg config.IngestConfig,
	logger *zap.Logger,
) (*IngestionService, error) {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion pool: %w", err)
	}

	return &IngestionService{
		kbs:        kbs,
		docs:       docs,
		files:      files,
		extractors: extractors,
		embedder:   embedder,
		index:      index,
		pool:       pool,
		cfg:        cfg,
		logger:     logger.Named("ingestion"),
	}, nil
}

// Close waits for running jobs up to timeout and releases the pool.
func (s *IngestionService) Close(timeout time.Duration) error {
	return s.pool.ReleaseTimeout(timeout)
}

// Enqueue validates ownership synchronously and schedules the run in the
// background. It returns ErrIngestQueueFull when every worker is busy.
func (s *IngestionService) Enqueue(ctx context.Context, kbID, docID, ownerID int64) error {
	kb, doc, err := s.resolve(ctx, kbID, docID, ownerID)
	if err != nil {
		return err
	}

	err = s.pool.Submit(func() {
		runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout())
		defer cancel()
		_ = s.run(runCtx, kb, doc)
	})
	if errors.Is(err, ants.ErrPoolOverload) {
		return ErrIngestQueueFull
	}
	if err != nil {
		return fmt.Errorf("failed to schedule ingestion: %w", err)
	}

	s.logger.Info("Ingestion scheduled", zap.Int64("kb_id", kbID), zap.Int64("doc_id", docID))
	return nil
}

func (s *IngestionService) runTimeout() time.Duration {
	if s.cfg.RunTimeout > 0 {
		return s.cfg.RunTimeout
	}
	return 30 * time.Minute
}

// Ingest runs one ingestion to completion and returns the updated document.
func (s *IngestionService) Ingest(ctx context.Context, kbID, docID, ownerID int64) (*models.Document, error) {
	kb, doc, err := s.resolve(ctx, kbID, docID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.run(ctx, kb, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func (s *IngestionService) resolve(ctx context.Context, kbID, docID, ownerID int64) (*models.KnowledgeBase, *models.Document, error) {
	kb, err := s.kbs.GetOwned(ctx, kbID, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("knowledge base %d: %w", kbID, err)
	}
	doc, err := s.docs.GetOwned(ctx, kbID, docID, ownerID)
	if err != nil {
		return nil, nil, fmt.Errorf("document %d: %w", docID, err)
	}
	return kb, doc, nil
}

func (s *IngestionService) run(ctx context.Context, kb *models.KnowledgeBase, doc *models.Document) error {
	start := time.Now()
	logger := s.logger.With(
		zap.Int64("kb_id", kb.ID),
		zap.Int64("doc_id", doc.ID),
		zap.String("doc_uid", doc.UID),
	)
	params := ResolveIngestParams(doc, kb, s.cfg)

	count, err := s.indexDocument(ctx, kb, doc, params)
	if err != nil {
		logger.Error("Ingestion failed", zap.Error(err))
		s.fail(ctx, logger, doc, err)
		return err
	}

	// The vectors are already written; record the outcome even if ctx expired.
	if err := s.docs.MarkProcessed(context.WithoutCancel(ctx), doc, count, params.EmbeddingModel); err != nil {
		logger.Error("Failed to record processed document", zap.Error(err))
		err = fmt.Errorf("failed to mark document processed: %w", err)
		s.fail(ctx, logger, doc, err)
		return err
	}
	now := time.Now()
	doc.Status = models.DocumentStatusProcessed
	doc.Error = nil
	doc.ChunkCount = count
	doc.EmbeddingModel = &params.EmbeddingModel
	doc.ProcessedAt = &now

	logger.Info("Ingestion completed",
		zap.Int("chunks", count),
		zap.String("embedding_model", params.EmbeddingModel),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *IngestionService) fail(ctx context.Context, logger *zap.Logger, doc *models.Document, cause error) {
	reason := cause.Error()
	if err := s.docs.MarkFailed(context.WithoutCancel(ctx), doc.ID, reason); err != nil {
		logger.Error("Failed to record ingestion failure", zap.Error(err))
	}
	doc.Status = models.DocumentStatusFailed
	doc.Error = &reason
}

// indexDocument runs extract, chunk, embed, upsert. Every chunk is embedded before
// the first upsert so an embedding failure leaves nothing in the index.
func (s *IngestionService) indexDocument(ctx context.Context, kb *models.KnowledgeBase, doc *models.Document, p IngestParams) (int, error) {
	data, err := s.files.Open(doc.StorageURI)
	if err != nil {
		return 0, fmt.Errorf("failed to read stored file: %w", err)
	}

	text, err := s.extractors.Extract(doc.FileExt, data)
	if err != nil {
		return 0, err
	}

	splitter, err := chunker.New(p.ChunkStrategy, p.ChunkSize, p.ChunkOverlap)
	if err != nil {
		return 0, err
	}
	chunks, err := splitter.Split(text)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, ErrEmptyContent
	}

	vectors, err := s.embedder.Embed(ctx, chunks, p.EmbeddingModel)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: %d vectors for %d chunks", ErrVectorMismatch, len(vectors), len(chunks))
	}

	records := make([]vectorindex.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorindex.Record{
			ID:     vectorindex.ChunkID(doc.UID, i),
			Text:   chunk,
			Vector: vectors[i],
			Metadata: map[string]any{
				vectorindex.MetaKBID:       kb.ID,
				vectorindex.MetaDocID:      doc.ID,
				vectorindex.MetaDocUID:     doc.UID,
				vectorindex.MetaChunkIndex: i,
				vectorindex.MetaFilename:   doc.Filename,
			},
		}
	}

	if err := s.index.EnsureCollection(ctx, kb.Collection); err != nil {
		return 0, err
	}
	// A re-ingest may yield fewer chunks; drop the previous vectors first.
	if _, err := s.index.DeleteByDoc(ctx, kb.Collection, doc.UID); err != nil {
		return 0, fmt.Errorf("failed to drop previous vectors: %w", err)
	}
	if err := s.index.Upsert(ctx, kb.Collection, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
