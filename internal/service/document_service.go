package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"kb-rag/internal/models"
	"kb-rag/internal/storage"
	"kb-rag/internal/vectorindex"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxExtLength = 10

type DocumentService struct {
	kbs    KBRepository
	docs   DocumentRepository
	index  vectorindex.Index
	logger *zap.Logger
}

func NewDocumentService(kbs KBRepository, docs DocumentRepository, index vectorindex.Index, logger *zap.Logger) *DocumentService {
	return &DocumentService{
		kbs:    kbs,
		docs:   docs,
		index:  index,
		logger: logger.Named("documents"),
	}
}

// FileExt derives the stored extension from a filename: lowercased, without
// the dot, at most ten characters.
func FileExt(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if runes := []rune(ext); len(runes) > maxExtLength {
		ext = string(runes[:maxExtLength])
	}
	return ext
}

// Register records a stored file as a new document of kbID. Aggregates are
// recomputed in the same transaction.
func (s *DocumentService) Register(ctx context.Context, kbID, ownerID int64, file *storage.File, params map[string]any) (*models.Document, error) {
	if _, err := s.kbs.GetOwned(ctx, kbID, ownerID); err != nil {
		return nil, fmt.Errorf("knowledge base %d: %w", kbID, err)
	}

	doc := &models.Document{
		UID:        uuid.NewString(),
		KBID:       kbID,
		Filename:   file.Name,
		FileExt:    FileExt(file.Name),
		StorageURI: file.Ref,
		SizeBytes:  file.Size,
		Status:     models.DocumentStatusUploaded,
		UploadedBy: &ownerID,
	}
	if file.MimeType != "" {
		doc.MimeType = &file.MimeType
	}
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode ingest params: %w", err)
		}
		raw := string(data)
		doc.IngestParams = &raw
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("Document registered",
		zap.Int64("kb_id", kbID),
		zap.Int64("doc_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.Int64("size", doc.SizeBytes),
	)
	return doc, nil
}

// SoftDelete hides a document and refreshes KB aggregates. Its vectors are
// removed afterwards on a best-effort basis; failures there are only logged.
func (s *DocumentService) SoftDelete(ctx context.Context, kbID, docID, ownerID int64) error {
	kb, err := s.kbs.GetOwned(ctx, kbID, ownerID)
	if err != nil {
		return fmt.Errorf("knowledge base %d: %w", kbID, err)
	}
	doc, err := s.docs.GetOwned(ctx, kbID, docID, ownerID)
	if err != nil {
		return fmt.Errorf("document %d: %w", docID, err)
	}

	if err := s.docs.SoftDelete(ctx, kbID, docID); err != nil {
		return err
	}

	removed, err := s.index.DeleteByDoc(ctx, kb.Collection, doc.UID)
	if err != nil {
		s.logger.Warn("Failed to delete document vectors",
			zap.Int64("doc_id", docID),
			zap.String("collection", kb.Collection),
			zap.Error(err),
		)
		return nil
	}
	s.logger.Info("Document deleted",
		zap.Int64("kb_id", kbID),
		zap.Int64("doc_id", docID),
		zap.Int("vectors_removed_approx", removed),
	)
	return nil
}
