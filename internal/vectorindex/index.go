// Package vectorindex stores chunk embeddings, one collection per knowledge
// base. Writes are not transactional with the relational store.
package vectorindex

import (
	"context"
	"strconv"
)

// Metadata keys written with every chunk.
const (
	MetaKBID       = "kb_id"
	MetaDocID      = "doc_id"
	MetaDocUID     = "doc_uid"
	MetaChunkIndex = "chunk_index"
	MetaFilename   = "filename"
)

type Record struct {
	ID       string
	Text     string
	Metadata map[string]any
	Vector   []float32
}

type Hit struct {
	ID       string
	Text     string
	Metadata map[string]any
	Distance *float64
}

type Index interface {
	EnsureCollection(ctx context.Context, collection string) error
	// Upsert is idempotent on Record.ID.
	Upsert(ctx context.Context, collection string, records []Record) error
	Query(ctx context.Context, collection string, vector []float32, k int) ([]Hit, error)
	// DeleteByDoc removes every chunk of docUID. The returned count is the
	// collection size before minus after, so concurrent writers skew it.
	DeleteByDoc(ctx context.Context, collection, docUID string) (int, error)
	Count(ctx context.Context, collection string) (int, error)
	CountByDoc(ctx context.Context, collection, docUID string) (int, error)
}

// ChunkID is the vector id of chunk index of a document.
func ChunkID(docUID string, index int) string {
	return docUID + "_" + strconv.Itoa(index)
}

// MetaString reads a string metadata value.
func MetaString(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// MetaInt64 reads an integer metadata value whether it was stored natively
// or decoded from JSON as a float.
func MetaInt64(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
