package service

import (
	"context"
	"fmt"

	"kb-rag/internal/models"
	"kb-rag/internal/vectorindex"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateKnowledgeBaseInput struct {
	Name           string
	Description    *string
	Visibility     models.Visibility
	EmbeddingModel *string
	RerankerModel  *string
	UseReranker    bool
}

type KnowledgeBaseService struct {
	kbs    KBRepository
	index  vectorindex.Index
	logger *zap.Logger
}

func NewKnowledgeBaseService(kbs KBRepository, index vectorindex.Index, logger *zap.Logger) *KnowledgeBaseService {
	return &KnowledgeBaseService{kbs: kbs, index: index, logger: logger.Named("kb")}
}

// Create assigns the KB its immutable collection and makes sure the
// collection exists before the row is written.
func (s *KnowledgeBaseService) Create(ctx context.Context, ownerID int64, in CreateKnowledgeBaseInput) (*models.KnowledgeBase, error) {
	uid := uuid.NewString()
	kb := &models.KnowledgeBase{
		UID:            uid,
		Name:           in.Name,
		Description:    in.Description,
		OwnerID:        ownerID,
		Visibility:     in.Visibility,
		Collection:     models.CollectionName(uid),
		EmbeddingModel: in.EmbeddingModel,
		RerankerModel:  in.RerankerModel,
		UseReranker:    in.UseReranker,
	}
	if kb.Visibility == "" {
		kb.Visibility = models.VisibilityPrivate
	}

	if err := s.index.EnsureCollection(ctx, kb.Collection); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	if err := s.kbs.Create(ctx, kb); err != nil {
		return nil, err
	}

	s.logger.Info("Knowledge base created", zap.Int64("kb_id", kb.ID), zap.String("collection", kb.Collection))
	return kb, nil
}

func (s *KnowledgeBaseService) Get(ctx context.Context, id, ownerID int64) (*models.KnowledgeBase, error) {
	return s.kbs.GetOwned(ctx, id, ownerID)
}
