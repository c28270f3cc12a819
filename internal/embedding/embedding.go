package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"kb-rag/pkg/config"
	"kb-rag/pkg/httpclient"
	"kb-rag/pkg/retry"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const maxErrorBody = 2048

// Embedder maps texts to vectors; result[i] belongs to texts[i]. An empty
// model selects the configured default.
type Embedder interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Client talks to an OpenAI-compatible /embeddings endpoint through
// langchaingo. One langchaingo embedder is kept per model.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	batchSize int
	backoff   retry.Backoff
	doer      *orderedDoer
	logger    *zap.Logger

	mu     sync.Mutex
	models map[string]embeddings.Embedder
}

func NewClient(cfg config.EmbeddingConfig, logger *zap.Logger) *Client {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		batchSize: batch,
		backoff:   retry.Backoff{MaxAttempts: attempts, BaseDelay: cfg.BaseDelay, MaxDelay: cfg.MaxDelay},
		doer:      &orderedDoer{http: &http.Client{Timeout: cfg.Timeout}},
		logger:    logger.Named("embedding"),
		models:    make(map[string]embeddings.Embedder),
	}
}

func (c *Client) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, fmt.Errorf("%w: base url or api key not configured", ErrEmbedding)
	}
	if model == "" {
		model = c.model
	}
	if len(texts) == 0 {
		return nil, nil
	}

	embedder, err := c.embedderFor(model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		if errors.Is(err, ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: size mismatch, sent %d texts, got %d vectors", ErrEmbedding, len(texts), len(vectors))
	}

	c.logger.Debug("Texts embedded",
		zap.Int("count", len(texts)),
		zap.String("model", model),
	)
	return vectors, nil
}

func (c *Client) embedderFor(model string) (embeddings.Embedder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.models[model]; ok {
		return e, nil
	}

	llm, err := openai.New(
		openai.WithBaseURL(c.baseURL),
		openai.WithToken(c.apiKey),
		openai.WithEmbeddingModel(model),
		openai.WithHTTPClient(c.doer),
	)
	if err != nil {
		return nil, err
	}
	e, err := embeddings.NewEmbedder(
		embeddings.EmbedderClientFunc(func(ctx context.Context, batch []string) ([][]float32, error) {
			return c.embedBatch(ctx, llm, batch)
		}),
		embeddings.WithBatchSize(c.batchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, err
	}
	c.models[model] = e
	return e, nil
}

func (c *Client) embedBatch(ctx context.Context, llm *openai.LLM, batch []string) ([][]float32, error) {
	var vectors [][]float32
	attempt := 0
	err := retry.Do(ctx, c.backoff, func() error {
		attempt++
		var err error
		vectors, err = llm.CreateEmbedding(ctx, batch)
		if err == nil {
			return nil
		}
		var se *httpclient.StatusError
		if errors.As(err, &se) && se.Retryable() {
			c.logger.Warn("Embedding request throttled, retrying",
				zap.Int("status", se.StatusCode),
				zap.Int("attempt", attempt),
			)
			return err
		}
		return retry.Permanent(err)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: size mismatch, sent %d texts, got %d vectors", ErrEmbedding, len(batch), len(vectors))
	}
	return vectors, nil
}

// orderedDoer turns retryable statuses into httpclient.StatusError and
// reorders successful embedding responses by their index field, since
// langchaingo takes the data array as is.
type orderedDoer struct {
	http *http.Client
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (d *orderedDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &httpclient.StatusError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Data) > 0 {
		sort.SliceStable(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
		if sorted, err := json.Marshal(parsed); err == nil {
			body = sorted
		}
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}
