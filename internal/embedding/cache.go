package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"kb-rag/pkg/config"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "emb:"

// Cache memoizes embeddings in badger. It is meant for query embeddings,
// where the same question text recurs.
type Cache struct {
	db     *badger.DB
	next   Embedder
	model  string
	ttl    time.Duration
	logger *zap.Logger
}

// OpenCache opens the badger store in cfg.Dir, or in memory when Dir is
// empty. defaultModel is used to key requests that leave the model empty.
func OpenCache(cfg config.CacheConfig, next Embedder, defaultModel string, logger *zap.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return &Cache{
		db:     db,
		next:   next,
		model:  defaultModel,
		ttl:    cfg.TTL,
		logger: logger.Named("embedding-cache"),
	}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func cacheKey(model, text string) []byte {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return append([]byte(cacheKeyPrefix), sum[:]...)
}

// Embed serves hits from the cache and forwards all misses in one call.
func (c *Cache) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	keyModel := model
	if keyModel == "" {
		keyModel = c.model
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	err := c.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(cacheKey(keyModel, text))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missIdx = append(missIdx, i)
				continue
			}
			if err != nil {
				return err
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[i] = decodeVector(raw)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("Embedding cache read failed", zap.Error(err))
		return c.next.Embed(ctx, texts, model)
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	missing := make([]string, len(missIdx))
	for j, i := range missIdx {
		missing[j] = texts[i]
	}
	vectors, err := c.next.Embed(ctx, missing, model)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, fmt.Errorf("%w: size mismatch, sent %d texts, got %d vectors", ErrEmbedding, len(missing), len(vectors))
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		for j, i := range missIdx {
			out[i] = vectors[j]
			entry := badger.NewEntry(cacheKey(keyModel, texts[i]), encodeVector(vectors[j]))
			if c.ttl > 0 {
				entry = entry.WithTTL(c.ttl)
			}
			if err := txn.SetEntry(entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("Embedding cache write failed", zap.Error(err))
		for j, i := range missIdx {
			out[i] = vectors[j]
		}
	}
	return out, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
