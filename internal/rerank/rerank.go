package rerank

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"kb-rag/pkg/config"
	"kb-rag/pkg/httpclient"

	"go.uber.org/zap"
)

// Result points back into the documents slice passed to Rerank.
type Result struct {
	Index int
	Score float64
}

type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topN int, model string) ([]Result, error)
}

type Client struct {
	http   *httpclient.Client
	model  string
	logger *zap.Logger
}

func NewClient(cfg config.RerankConfig, logger *zap.Logger) *Client {
	var hc *httpclient.Client
	if cfg.BaseURL != "" && cfg.APIKey != "" {
		hc = httpclient.New(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	}
	return &Client{
		http:   hc,
		model:  cfg.Model,
		logger: logger.Named("rerank"),
	}
}

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	TopN            int      `json:"top_n,omitempty"`
	ReturnDocuments bool     `json:"return_documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores documents against query in one call. Results are sorted by
// descending score and cut to topN when topN is positive.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int, model string) ([]Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if c.http == nil {
		return nil, fmt.Errorf("%w: base url or api key not configured", ErrRerank)
	}
	if model == "" {
		model = c.model
	}
	if topN > len(documents) {
		topN = len(documents)
	}

	var resp rerankResponse
	req := rerankRequest{Model: model, Query: query, Documents: documents, TopN: topN}
	if err := c.http.Do(ctx, http.MethodPost, "/rerank", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerank, err)
	}

	results := make([]Result, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("%w: result index %d out of range", ErrRerank, r.Index)
		}
		results = append(results, Result{Index: r.Index, Score: r.RelevanceScore})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}

	c.logger.Debug("Documents reranked",
		zap.String("model", model),
		zap.Int("documents", len(documents)),
		zap.Int("results", len(results)),
	)
	return results, nil
}
