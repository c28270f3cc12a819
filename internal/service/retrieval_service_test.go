package service

import (
	"context"
	"testing"

	"kb-rag/internal/models"
	"kb-rag/internal/rerank"
	"kb-rag/internal/vectorindex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeReranker struct {
	fn    func(query string, docs []string, topN int) ([]rerank.Result, error)
	calls int
}

func (r *fakeReranker) Rerank(_ context.Context, query string, docs []string, topN int, _ string) ([]rerank.Result, error) {
	r.calls++
	return r.fn(query, docs, topN)
}

// seedIndex puts n chunks in each collection. Chunk i points along angle i so
// distances to the query [1, 0] grow with i.
func seedIndex(t *testing.T, idx vectorindex.Index, n int, collections ...Collection) {
	t.Helper()
	ctx := context.Background()
	for _, col := range collections {
		records := make([]vectorindex.Record, n)
		for i := 0; i < n; i++ {
			records[i] = vectorindex.Record{
				ID:     vectorindex.ChunkID(col.Name, i),
				Text:   col.Name + " chunk",
				Vector: []float32{float32(10 - i - int(col.KBID)), float32(i + int(col.KBID))},
				Metadata: map[string]any{
					vectorindex.MetaKBID:       col.KBID,
					vectorindex.MetaDocID:      int64(100 + i),
					vectorindex.MetaDocUID:     col.Name,
					vectorindex.MetaChunkIndex: i,
					vectorindex.MetaFilename:   col.Name + ".md",
				},
			}
		}
		require.NoError(t, idx.Upsert(ctx, col.Name, records))
	}
}

var threeCollections = []Collection{{KBID: 1, Name: "kb_a"}, {KBID: 2, Name: "kb_b"}, {KBID: 3, Name: "kb_c"}}

func queryEmbedder() *fakeEmbedder {
	return &fakeEmbedder{fn: func(string) []float32 { return []float32{1, 0} }}
}

func TestRetrieveWithoutRerankSortsByDistance(t *testing.T) {
	idx := vectorindex.NewMemory()
	seedIndex(t, idx, 4, threeCollections...)
	svc := NewRetrievalService(newFakeKBs(), queryEmbedder(), idx, nil, 5, zap.NewNop())

	res, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q", Collections: threeCollections, TopK: 5})
	require.NoError(t, err)

	assert.False(t, res.Reranked)
	require.Len(t, res.Candidates, 5)
	for i := 1; i < len(res.Candidates); i++ {
		assert.LessOrEqual(t, *res.Candidates[i-1].Distance, *res.Candidates[i].Distance)
	}
}

func TestRetrieveSkipsFailingCollection(t *testing.T) {
	idx := &flakyIndex{Memory: vectorindex.NewMemory(), failing: map[string]bool{"kb_b": true}}
	seedIndex(t, idx, 3, threeCollections...)
	svc := NewRetrievalService(newFakeKBs(), queryEmbedder(), idx, nil, 10, zap.NewNop())

	res, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q", Collections: threeCollections, TopK: 10})
	require.NoError(t, err)

	require.NotEmpty(t, res.Candidates)
	assert.Len(t, res.Candidates, 6)
	for _, c := range res.Candidates {
		assert.NotEqual(t, int64(2), c.KBID)
	}
}

func TestRetrieveEmbedsQueryOnce(t *testing.T) {
	idx := vectorindex.NewMemory()
	seedIndex(t, idx, 2, threeCollections...)
	emb := queryEmbedder()
	svc := NewRetrievalService(newFakeKBs(), emb, idx, nil, 5, zap.NewNop())

	res, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q", Collections: threeCollections, PerKBK: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls)
	assert.Len(t, res.Candidates, 3, "per_kb_k bounds each collection")
}

func TestRetrieveReranks(t *testing.T) {
	idx := vectorindex.NewMemory()
	seedIndex(t, idx, 2, threeCollections...)
	rr := &fakeReranker{fn: func(_ string, docs []string, topN int) ([]rerank.Result, error) {
		assert.Len(t, docs, 6)
		assert.Equal(t, 2, topN)
		return []rerank.Result{{Index: 5, Score: 0.9}, {Index: 0, Score: 0.4}}, nil
	}}
	svc := NewRetrievalService(newFakeKBs(), queryEmbedder(), idx, rr, 5, zap.NewNop())

	res, err := svc.Retrieve(context.Background(), RetrieveRequest{
		Query: "q", Collections: threeCollections, TopK: 2, UseRerank: true,
	})
	require.NoError(t, err)

	assert.True(t, res.Reranked)
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, int64(3), res.Candidates[0].KBID)
	assert.InDelta(t, 0.9, *res.Candidates[0].Score, 1e-9)
	assert.Equal(t, int64(1), res.Candidates[1].KBID)
}

func TestRetrieveFallsBackWhenRerankFails(t *testing.T) {
	idx := vectorindex.NewMemory()
	seedIndex(t, idx, 2, threeCollections...)
	rr := &fakeReranker{fn: func(string, []string, int) ([]rerank.Result, error) {
		return nil, rerank.ErrRerank
	}}
	svc := NewRetrievalService(newFakeKBs(), queryEmbedder(), idx, rr, 5, zap.NewNop())

	res, err := svc.Retrieve(context.Background(), RetrieveRequest{
		Query: "q", Collections: threeCollections, TopK: 3, UseRerank: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, rr.calls)
	assert.False(t, res.Reranked)
	require.Len(t, res.Candidates, 3)
	assert.Nil(t, res.Candidates[0].Score)
	for i := 1; i < len(res.Candidates); i++ {
		assert.LessOrEqual(t, *res.Candidates[i-1].Distance, *res.Candidates[i].Distance)
	}
}

func TestRetrieveNoCollections(t *testing.T) {
	emb := queryEmbedder()
	svc := NewRetrievalService(newFakeKBs(), emb, vectorindex.NewMemory(), nil, 5, zap.NewNop())

	res, err := svc.Retrieve(context.Background(), RetrieveRequest{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Zero(t, emb.calls)
}

func TestResolveCollections(t *testing.T) {
	kbs := newFakeKBs(
		&models.KnowledgeBase{ID: 1, OwnerID: 7, Collection: "kb_a", EmbeddingModel: strPtr("m1")},
		&models.KnowledgeBase{ID: 2, OwnerID: 7, Collection: "kb_b", UseReranker: true, RerankerModel: strPtr("r1")},
		&models.KnowledgeBase{ID: 3, OwnerID: 8, Collection: "kb_c"},
	)
	svc := NewRetrievalService(kbs, queryEmbedder(), vectorindex.NewMemory(), nil, 5, zap.NewNop())

	set, err := svc.ResolveCollections(context.Background(), 7, []int64{1, 2, 3, 4})
	require.NoError(t, err)

	assert.Equal(t, []Collection{{KBID: 1, Name: "kb_a"}, {KBID: 2, Name: "kb_b"}}, set.Collections)
	assert.True(t, set.UseReranker)
	assert.Equal(t, "m1", set.EmbeddingModel)
	assert.Equal(t, "r1", set.RerankModel)
}
