package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"kb-rag/pkg/config"
	"kb-rag/pkg/httpclient"

	"go.uber.org/zap"
)

// Chroma is a client for the Chroma v2 REST API. Collection ids are
// resolved by name once and cached.
type Chroma struct {
	http   *httpclient.Client
	prefix string
	ids    sync.Map // collection name -> id
	logger *zap.Logger
}

func NewChroma(cfg config.VectorIndexConfig, logger *zap.Logger) *Chroma {
	return &Chroma{
		http:   httpclient.New(cfg.URL, cfg.APIKey, cfg.Timeout, httpclient.WithAuthHeader("X-Chroma-Token")),
		prefix: fmt.Sprintf("/api/v2/tenants/%s/databases/%s/collections", url.PathEscape(cfg.Tenant), url.PathEscape(cfg.Database)),
		logger: logger.Named("chroma"),
	}
}

// Heartbeat checks that the server is reachable.
func (c *Chroma) Heartbeat(ctx context.Context) error {
	if err := c.http.Do(ctx, http.MethodGet, "/api/v2/heartbeat", nil, nil); err != nil {
		return fmt.Errorf("%w: heartbeat: %v", ErrVectorIndex, err)
	}
	return nil
}

func (c *Chroma) collectionID(ctx context.Context, name string) (string, error) {
	if id, ok := c.ids.Load(name); ok {
		return id.(string), nil
	}

	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"name":          name,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	if err := c.http.Do(ctx, http.MethodPost, c.prefix, body, &resp); err != nil {
		return "", fmt.Errorf("%w: get or create collection %s: %v", ErrVectorIndex, name, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: collection %s has no id", ErrVectorIndex, name)
	}
	c.ids.Store(name, resp.ID)
	return resp.ID, nil
}

func (c *Chroma) call(ctx context.Context, method, collection, op string, in, out any) error {
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return err
	}
	err = c.http.Do(ctx, method, c.prefix+"/"+id+"/"+op, in, out)
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		// collection was dropped behind our back; resolve again next time
		c.ids.Delete(collection)
	}
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrVectorIndex, op, collection, err)
	}
	return nil
}

func (c *Chroma) EnsureCollection(ctx context.Context, collection string) error {
	_, err := c.collectionID(ctx, collection)
	return err
}

func (c *Chroma) Upsert(ctx context.Context, collection string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	ids := make([]string, len(records))
	docs := make([]string, len(records))
	metas := make([]map[string]any, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		ids[i], docs[i], metas[i], vectors[i] = r.ID, r.Text, r.Metadata, r.Vector
	}

	body := map[string]any{
		"ids":        ids,
		"documents":  docs,
		"metadatas":  metas,
		"embeddings": vectors,
	}
	if err := c.call(ctx, http.MethodPost, collection, "upsert", body, nil); err != nil {
		return err
	}
	c.logger.Info("Chunks upserted", zap.String("collection", collection), zap.Int("count", len(records)))
	return nil
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]*float64       `json:"distances"`
}

func (c *Chroma) Query(ctx context.Context, collection string, vector []float32, k int) ([]Hit, error) {
	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	var resp queryResponse
	if err := c.call(ctx, http.MethodPost, collection, "query", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		hits[i].ID = id
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) && resp.Documents[0][i] != nil {
			hits[i].Text = *resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			hits[i].Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			hits[i].Distance = resp.Distances[0][i]
		}
	}
	return hits, nil
}

func (c *Chroma) DeleteByDoc(ctx context.Context, collection, docUID string) (int, error) {
	before, err := c.Count(ctx, collection)
	if err != nil {
		return 0, err
	}
	body := map[string]any{"where": map[string]any{MetaDocUID: docUID}}
	if err := c.call(ctx, http.MethodPost, collection, "delete", body, nil); err != nil {
		return 0, err
	}
	after, err := c.Count(ctx, collection)
	if err != nil {
		return 0, err
	}

	deleted := max(0, before-after)
	c.logger.Info("Document chunks deleted",
		zap.String("collection", collection),
		zap.String("doc_uid", docUID),
		zap.Int("approx_deleted", deleted),
	)
	return deleted, nil
}

func (c *Chroma) Count(ctx context.Context, collection string) (int, error) {
	var n int
	if err := c.call(ctx, http.MethodGet, collection, "count", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *Chroma) CountByDoc(ctx context.Context, collection, docUID string) (int, error) {
	body := map[string]any{
		"where":   map[string]any{MetaDocUID: docUID},
		"include": []string{},
	}
	var resp struct {
		IDs []string `json:"ids"`
	}
	if err := c.call(ctx, http.MethodPost, collection, "get", body, &resp); err != nil {
		return 0, err
	}
	return len(resp.IDs), nil
}
