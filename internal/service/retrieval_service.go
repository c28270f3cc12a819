package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kb-rag/internal/embedding"
	"kb-rag/internal/rerank"
	"kb-rag/internal/vectorindex"

	"go.uber.org/zap"
)

// Collection pairs a KB with its vector collection.
type Collection struct {
	KBID int64
	Name string
}

type RetrieveRequest struct {
	Query          string
	Collections    []Collection
	TopK           int
	PerKBK         int
	UseRerank      bool
	RerankTopN     int
	EmbeddingModel string
	RerankModel    string
}

type Candidate struct {
	Text       string   `json:"text" yaml:"text"`
	KBID       int64    `json:"kb_id" yaml:"kb_id"`
	DocID      int64    `json:"doc_id" yaml:"doc_id"`
	DocUID     string   `json:"doc_uid" yaml:"doc_uid"`
	ChunkIndex int      `json:"chunk_index" yaml:"chunk_index"`
	Filename   string   `json:"filename" yaml:"filename"`
	Distance   *float64 `json:"distance,omitempty" yaml:"distance,omitempty"`
	Score      *float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

type RetrieveResult struct {
	Candidates []Candidate `json:"items" yaml:"items"`
	Reranked   bool        `json:"reranked" yaml:"reranked"`
}

// CollectionSet is the resolved retrieval scope of a caller.
type CollectionSet struct {
	Collections    []Collection
	UseReranker    bool
	EmbeddingModel string
	RerankModel    string
}

type RetrievalService struct {
	kbs      KBRepository
	embedder embedding.Embedder
	index    vectorindex.Index
	reranker rerank.Reranker
	topK     int
	logger   *zap.Logger
}

func NewRetrievalService(
	kbs KBRepository,
	embedder embedding.Embedder,
	index vectorindex.Index,
	reranker rerank.Reranker,
	defaultTopK int,
	logger *zap.Logger,
) *RetrievalService {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &RetrievalService{
		kbs:      kbs,
		embedder: embedder,
		index:    index,
		reranker: reranker,
		topK:     defaultTopK,
		logger:   logger.Named("retrieval"),
	}
}

// DefaultTopK is used when a request leaves top_k unset.
func (s *RetrievalService) DefaultTopK() int { return s.topK }

// ResolveCollections maps kbIDs to the live collections ownerID owns. Ids
// that do not resolve are dropped. The rerank flag is set when any KB asks
// for it; model defaults come from the first KB that names one.
func (s *RetrievalService) ResolveCollections(ctx context.Context, ownerID int64, kbIDs []int64) (*CollectionSet, error) {
	kbs, err := s.kbs.ListOwned(ctx, ownerID, kbIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve knowledge bases: %w", err)
	}

	set := &CollectionSet{}
	for _, kb := range kbs {
		set.Collections = append(set.Collections, Collection{KBID: kb.ID, Name: kb.Collection})
		if kb.UseReranker {
			set.UseReranker = true
		}
		if set.EmbeddingModel == "" && kb.EmbeddingModel != nil {
			set.EmbeddingModel = *kb.EmbeddingModel
		}
		if set.RerankModel == "" && kb.RerankerModel != nil {
			set.RerankModel = *kb.RerankerModel
		}
	}
	return set, nil
}

// Retrieve embeds the query once and searches every collection. A failing
// collection is skipped. A rerank failure falls back to distance order.
func (s *RetrievalService) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error) {
	start := time.Now()
	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}
	perK := req.PerKBK
	if perK <= 0 {
		perK = topK
	}

	result := &RetrieveResult{Candidates: []Candidate{}}
	if len(req.Collections) == 0 {
		return result, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{req.Query}, req.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: expected one query vector, got %d", embedding.ErrEmbedding, len(vectors))
	}

	var candidates []Candidate
	for _, col := range req.Collections {
		hits, err := s.index.Query(ctx, col.Name, vectors[0], perK)
		if err != nil {
			s.logger.Warn("Collection query failed, skipping",
				zap.Int64("kb_id", col.KBID),
				zap.String("collection", col.Name),
				zap.Error(err),
			)
			continue
		}
		for _, h := range hits {
			candidates = append(candidates, candidateFromHit(col.KBID, h))
		}
	}

	if req.UseRerank && s.reranker != nil && len(candidates) > 0 {
		ranked, err := s.rerank(ctx, req, candidates, topK)
		if err == nil {
			result.Candidates = ranked
			result.Reranked = true
			s.logDone(req, result, start)
			return result, nil
		}
		s.logger.Warn("Rerank failed, falling back to distance order", zap.Error(err))
	}

	result.Candidates = byDistance(candidates, topK)
	s.logDone(req, result, start)
	return result, nil
}

func (s *RetrievalService) rerank(ctx context.Context, req RetrieveRequest, candidates []Candidate, topK int) ([]Candidate, error) {
	topN := req.RerankTopN
	if topN <= 0 {
		topN = topK
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	results, err := s.reranker.Rerank(ctx, req.Query, docs, topN, req.RerankModel)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("%w: index %d out of range", rerank.ErrRerank, r.Index)
		}
		c := candidates[r.Index]
		score := r.Score
		c.Score = &score
		out = append(out, c)
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *RetrievalService) logDone(req RetrieveRequest, res *RetrieveResult, start time.Time) {
	s.logger.Info("Retrieval done",
		zap.Int("collections", len(req.Collections)),
		zap.Int("results", len(res.Candidates)),
		zap.Bool("reranked", res.Reranked),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func candidateFromHit(kbID int64, h vectorindex.Hit) Candidate {
	c := Candidate{
		Text:       h.Text,
		KBID:       kbID,
		DocID:      vectorindex.MetaInt64(h.Metadata, vectorindex.MetaDocID),
		DocUID:     vectorindex.MetaString(h.Metadata, vectorindex.MetaDocUID),
		ChunkIndex: int(vectorindex.MetaInt64(h.Metadata, vectorindex.MetaChunkIndex)),
		Filename:   vectorindex.MetaString(h.Metadata, vectorindex.MetaFilename),
		Distance:   h.Distance,
	}
	if id := vectorindex.MetaInt64(h.Metadata, vectorindex.MetaKBID); id != 0 {
		c.KBID = id
	}
	return c
}

// byDistance orders ascending by distance, a missing distance counting as
// zero, and keeps at most topK.
func byDistance(candidates []Candidate, topK int) []Candidate {
	dist := func(c Candidate) float64 {
		if c.Distance == nil {
			return 0
		}
		return *c.Distance
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return dist(candidates[i]) < dist(candidates[j])
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	if candidates == nil {
		return []Candidate{}
	}
	return candidates
}
