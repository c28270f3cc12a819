package llm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"kb-rag/pkg/config"
	"kb-rag/pkg/httpclient"

	"go.uber.org/zap"
)

const maxEventLine = 1 << 20

// OpenAI talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAI struct {
	http   *httpclient.Client
	stream *httpclient.Client
	logger *zap.Logger
}

func NewOpenAI(cfg config.LLMConfig, logger *zap.Logger) *OpenAI {
	var plain, streaming *httpclient.Client
	if cfg.BaseURL != "" && cfg.APIKey != "" {
		plain = httpclient.New(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
		// the stream lifetime is bounded by the caller's context
		streaming = httpclient.New(cfg.BaseURL, cfg.APIKey, 0)
	}
	return &OpenAI{
		http:   plain,
		stream: streaming,
		logger: logger.Named("llm"),
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     *int `json:"prompt_tokens"`
		CompletionTokens *int `json:"completion_tokens"`
	} `json:"usage"`
}

func toChatRequest(req Request, stream bool) chatRequest {
	return chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
}

func (c *OpenAI) Complete(ctx context.Context, req Request) (*Completion, error) {
	if c.http == nil {
		return nil, fmt.Errorf("%w: base url or api key not configured", ErrGeneration)
	}

	start := time.Now()
	var resp chatResponse
	if err := c.http.Do(ctx, http.MethodPost, "/chat/completions", toChatRequest(req, false), &resp); err != nil {
		c.logger.Error("Chat completion failed", zap.String("model", req.Model), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	out := &Completion{Model: resp.Model}
	if out.Model == "" {
		out.Model = req.Model
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
		if out.Content == "" {
			out.Content = resp.Choices[0].Text
		}
	}
	if resp.Usage != nil {
		out.PromptTokens = resp.Usage.PromptTokens
		out.CompletionTokens = resp.Usage.CompletionTokens
	}

	c.logger.Info("Chat completion done",
		zap.String("model", out.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Int("output_len", len(out.Content)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

func (c *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	if c.stream == nil {
		return nil, fmt.Errorf("%w: base url or api key not configured", ErrGeneration)
	}
	body, err := c.stream.Stream(ctx, "/chat/completions", toChatRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	c.logger.Info("Chat stream connected", zap.String("model", req.Model))
	return NewLineStream(body), nil
}

// lineStream reads data events from an SSE body.
type lineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// NewLineStream adapts an SSE body to Stream.
func NewLineStream(body io.ReadCloser) Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)
	return &lineStream{body: body, scanner: sc}
}

func (s *lineStream) Next() (string, error) {
	for s.scanner.Scan() {
		payload, ok := DataPayload(s.scanner.Text())
		if !ok || payload == "" {
			continue
		}
		return payload, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: read stream: %v", ErrGeneration, err)
	}
	return "", io.EOF
}

func (s *lineStream) Close() error {
	return s.body.Close()
}
