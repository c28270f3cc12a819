package service

import (
	"encoding/json"
	"strconv"

	"kb-rag/internal/models"
	"kb-rag/pkg/config"
)

// IngestParams are the effective settings of one ingestion run.
type IngestParams struct {
	ChunkSize      int
	ChunkOverlap   int
	ChunkStrategy  string
	ParseStrategy  string
	EmbeddingModel string
}

// ResolveIngestParams applies per-document overrides over the KB default
// embedding model and the global defaults. Malformed overrides are ignored.
func ResolveIngestParams(doc *models.Document, kb *models.KnowledgeBase, defaults config.IngestConfig) IngestParams {
	p := IngestParams{
		ChunkSize:      defaults.ChunkSize,
		ChunkOverlap:   defaults.ChunkOverlap,
		ChunkStrategy:  defaults.ChunkStrategy,
		ParseStrategy:  defaults.ParseStrategy,
		EmbeddingModel: defaults.EmbeddingModel,
	}
	if kb != nil && kb.EmbeddingModel != nil && *kb.EmbeddingModel != "" {
		p.EmbeddingModel = *kb.EmbeddingModel
	}

	overrides := map[string]any{}
	if doc != nil && doc.IngestParams != nil {
		if err := json.Unmarshal([]byte(*doc.IngestParams), &overrides); err != nil {
			overrides = map[string]any{}
		}
	}

	if v, ok := intParam(overrides, "chunk_size"); ok {
		p.ChunkSize = v
	}
	if v, ok := intParam(overrides, "overlap"); ok {
		p.ChunkOverlap = v
	} else if v, ok := intParam(overrides, "chunk_overlap"); ok {
		p.ChunkOverlap = v
	}
	if v, ok := stringParam(overrides, "chunk_strategy"); ok {
		p.ChunkStrategy = v
	}
	if v, ok := stringParam(overrides, "parse_strategy"); ok {
		p.ParseStrategy = v
	}
	if v, ok := stringParam(overrides, "embedding_model"); ok {
		p.EmbeddingModel = v
	}
	return p
}

// intParam reads an integer override. Zero counts as unset so the default
// applies.
func intParam(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), v != 0
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil && n != 0
	}
	return 0, false
}

func stringParam(m map[string]any, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok && v != ""
}
