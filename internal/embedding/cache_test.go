package embedding

import (
	"context"
	"testing"
	"time"

	"kb-rag/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingEmbedder struct {
	texts [][]string
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	e.texts = append(e.texts, texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 0.5}
	}
	return out, nil
}

func TestCacheServesRepeatedQueries(t *testing.T) {
	next := &countingEmbedder{}
	cache, err := OpenCache(config.CacheConfig{Enabled: true, TTL: time.Hour}, next, "bge-m3", zap.NewNop())
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	first, err := cache.Embed(ctx, []string{"hello"}, "")
	require.NoError(t, err)

	second, err := cache.Embed(ctx, []string{"hello", "hi"}, "bge-m3")
	require.NoError(t, err)

	assert.Equal(t, first[0], second[0])
	assert.Equal(t, []float32{2, 0.5}, second[1])
	assert.Equal(t, [][]string{{"hello"}, {"hi"}}, next.texts, "only misses reach the backend")
}

func TestCacheKeysIncludeModel(t *testing.T) {
	next := &countingEmbedder{}
	cache, err := OpenCache(config.CacheConfig{}, next, "a", zap.NewNop())
	require.NoError(t, err)
	defer cache.Close()

	_, err = cache.Embed(context.Background(), []string{"q"}, "a")
	require.NoError(t, err)
	_, err = cache.Embed(context.Background(), []string{"q"}, "b")
	require.NoError(t, err)
	assert.Len(t, next.texts, 2)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, -1.5, 3.25, 1e-7}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}
