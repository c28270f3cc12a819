package main

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kb-rag/internal/app"
	"kb-rag/internal/extractor"
	"kb-rag/internal/service"
	"kb-rag/internal/storage"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// ProcessedFile is one cache entry, keyed by source path.
type ProcessedFile struct {
	FilePath    string    `json:"file_path"`
	FileHash    string    `json:"file_hash"`
	DocumentID  int64     `json:"document_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

type CacheData struct {
	ProcessedFiles map[string]ProcessedFile `json:"processed_files"`
}

func loadCache(cacheFile string) (*CacheData, error) {
	cache := &CacheData{ProcessedFiles: make(map[string]ProcessedFile)}

	data, err := os.ReadFile(cacheFile)
	if os.IsNotExist(err) {
		return cache, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) == 0 {
		return cache, nil
	}
	if err := json.Unmarshal(data, cache); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	if cache.ProcessedFiles == nil {
		cache.ProcessedFiles = make(map[string]ProcessedFile)
	}
	return cache, nil
}

func saveCache(cacheFile string, cache *CacheData) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to calculate hash: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// seedCandidates lists the files of dir an extractor exists for, sorted by
// name. Dotfiles and subdirectories are skipped.
func seedCandidates(dir string, registry *extractor.Registry) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if !registry.Supports(service.FileExt(e.Name())) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func seedCommand(c *cli.Context) error {
	dir := c.String("dir")
	cacheFile := c.String("cache")
	if cacheFile == "" {
		cacheFile = filepath.Join(dir, ".seed_cache.json")
	}
	return withApp(c, func(a *app.App) error {
		return seed(c.Context, a, dir, cacheFile, c.Int64("kb-id"), c.Int64("owner-id"))
	})
}

func seed(ctx context.Context, a *app.App, dir, cacheFile string, kbID, ownerID int64) error {
	log := a.Logger

	cache, err := loadCache(cacheFile)
	if err != nil {
		log.Warn("Failed to load cache, will process all files", zap.Error(err))
		cache = &CacheData{ProcessedFiles: make(map[string]ProcessedFile)}
	}

	files, err := seedCandidates(dir, extractor.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var ingested, skipped, failed int
	for _, path := range files {
		hash, err := fileHash(path)
		if err != nil {
			log.Warn("Failed to calculate file hash, will process anyway", zap.String("path", path), zap.Error(err))
		}
		if cached, ok := cache.ProcessedFiles[path]; ok && hash != "" && cached.FileHash == hash {
			log.Info("File already ingested, skipping", zap.String("path", path), zap.Time("processed_at", cached.ProcessedAt))
			skipped++
			continue
		}

		docID, err := seedFile(ctx, a, path, kbID, ownerID)
		if err != nil {
			log.Error("Failed to ingest file", zap.String("path", path), zap.Error(err))
			failed++
			continue
		}
		ingested++
		cache.ProcessedFiles[path] = ProcessedFile{
			FilePath:    path,
			FileHash:    hash,
			DocumentID:  docID,
			ProcessedAt: time.Now(),
		}
	}

	if err := saveCache(cacheFile, cache); err != nil {
		log.Warn("Failed to save cache", zap.Error(err))
	}
	log.Info("Seeding finished",
		zap.Int("ingested", ingested),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	return nil
}

// seedFile stores path, adopting it in place when it already lives in the
// storage root, then registers and ingests it.
func seedFile(ctx context.Context, a *app.App, path string, kbID, ownerID int64) (int64, error) {
	file, err := a.Store.Adopt(path)
	if err != nil {
		f, openErr := os.Open(path)
		if openErr != nil {
			return 0, openErr
		}
		file, err = a.Store.Save(filepath.Base(path), f)
		f.Close()
		if err != nil {
			return 0, err
		}
	}
	return ingestStored(ctx, a, file, kbID, ownerID)
}

func ingestStored(ctx context.Context, a *app.App, file *storage.File, kbID, ownerID int64) (int64, error) {
	doc, err := a.Documents.Register(ctx, kbID, ownerID, file, nil)
	if err != nil {
		return 0, err
	}
	doc, err = a.Ingestion.Ingest(ctx, kbID, doc.ID, ownerID)
	if err != nil {
		return 0, err
	}
	a.Logger.Info("File ingested",
		zap.String("file", file.Name),
		zap.Int64("document_id", doc.ID),
		zap.Int("chunks", doc.ChunkCount),
	)
	return doc.ID, nil
}
