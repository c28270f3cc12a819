// Package app wires repositories, clients and services from configuration.
// Both the HTTP server and ragctl start from Build.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"kb-rag/internal/embedding"
	"kb-rag/internal/extractor"
	"kb-rag/internal/llm"
	"kb-rag/internal/repository"
	"kb-rag/internal/rerank"
	"kb-rag/internal/service"
	"kb-rag/internal/storage"
	"kb-rag/internal/vectorindex"
	"kb-rag/pkg/config"
	"kb-rag/pkg/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *pgxpool.Pool
	Store *storage.Local
	Index vectorindex.Index

	KnowledgeBases *service.KnowledgeBaseService
	Documents      *service.DocumentService
	Ingestion      *service.IngestionService
	Retrieval      *service.RetrievalService
	Chat           *service.ChatService
	Titles         *service.TitleService

	closers []func() error
}

// Build connects to postgres and constructs every service. The returned App
// must be closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	db, err := postgres.NewPool(ctx, &cfg.Database, a.Logger)
	if err != nil {
		return err
	}
	a.DB = db
	a.onClose(func() error { db.Close(); return nil })

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db, a.Logger); err != nil {
			return err
		}
	}

	kbRepo := repository.NewKnowledgeBaseRepository(db, a.Logger)
	docRepo := repository.NewDocumentRepository(db, a.Logger)
	chatRepo := repository.NewChatRepository(db, a.Logger)

	store, err := storage.NewLocal(cfg.Storage.Dir, a.Logger)
	if err != nil {
		return err
	}
	a.Store = store

	a.Index, err = newIndex(ctx, cfg.VectorIndex, a.Logger)
	if err != nil {
		return err
	}

	var embedder embedding.Embedder = embedding.NewClient(cfg.Embedding, a.Logger)
	var queryEmbedder = embedder
	if cfg.Cache.Enabled {
		cache, err := embedding.OpenCache(cfg.Cache, embedder, cfg.Embedding.Model, a.Logger)
		if err != nil {
			return err
		}
		a.onClose(cache.Close)
		queryEmbedder = cache
	}

	gen, err := llm.New(cfg, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	if c, ok := gen.(io.Closer); ok {
		a.onClose(c.Close)
	}

	a.KnowledgeBases = service.NewKnowledgeBaseService(kbRepo, a.Index, a.Logger)
	a.Documents = service.NewDocumentService(kbRepo, docRepo, a.Index, a.Logger)

	a.Ingestion, err = service.NewIngestionService(kbRepo, docRepo, store, extractor.NewRegistry(), embedder, a.Index, cfg.Ingest, a.Logger)
	if err != nil {
		return err
	}
	a.onClose(func() error { return a.Ingestion.Close(30 * time.Second) })

	var reranker rerank.Reranker
	if cfg.Rerank.BaseURL != "" && cfg.Rerank.APIKey != "" {
		reranker = rerank.NewClient(cfg.Rerank, a.Logger)
	}
	a.Retrieval = service.NewRetrievalService(kbRepo, queryEmbedder, a.Index, reranker, cfg.Retrieval.TopK, a.Logger)

	a.Titles, err = service.NewTitleService(chatRepo, gen, cfg.Chat, a.Logger)
	if err != nil {
		return err
	}
	a.onClose(func() error { return a.Titles.Close(10 * time.Second) })

	a.Chat = service.NewChatService(chatRepo, kbRepo, gen, a.Titles, cfg.Chat, cfg.LLM.StreamTimeout, a.Logger)
	return nil
}

func newIndex(ctx context.Context, cfg config.VectorIndexConfig, logger *zap.Logger) (vectorindex.Index, error) {
	switch strings.ToLower(cfg.Backend) {
	case "memory":
		logger.Warn("Using in-memory vector index, vectors are lost on restart")
		return vectorindex.NewMemory(), nil
	case "", "chroma":
		chroma := vectorindex.NewChroma(cfg, logger)
		if err := chroma.Heartbeat(ctx); err != nil {
			// Chroma may come up after us; every call reports its own error.
			logger.Warn("Chroma heartbeat failed", zap.String("url", cfg.URL), zap.Error(err))
		}
		return chroma, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Shutdown step failed", zap.Error(err))
		}
	}
	a.closers = nil
}
