package llm

import (
	"context"
	"fmt"
	"io"
	"strings"

	"kb-rag/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

const defaultGigaChatModel = "GigaChat"

// GigaChat adapts the gigago SDK. The SDK has no incremental mode, so Stream
// delivers the whole reply as one delta followed by Done.
type GigaChat struct {
	client *gigago.Client
	logger *zap.Logger
}

func NewGigaChat(ctx context.Context, cfg config.GigaChatConfig, logger *zap.Logger) (*GigaChat, error) {
	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}
	return &GigaChat{client: client, logger: logger.Named("gigachat")}, nil
}

// foldMessages moves system turns into the model instruction and renders
// prior turns as a transcript, since the SDK is only driven with user
// messages here.
func foldMessages(msgs []Message) (instruction, prompt string) {
	var sys []string
	var turns []Message
	for _, m := range msgs {
		if m.Role == "system" {
			sys = append(sys, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	instruction = strings.Join(sys, "\n\n")

	if len(turns) == 1 {
		return instruction, turns[0].Content
	}
	var b strings.Builder
	for i, m := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if m.Role == "assistant" {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString("User: ")
		}
		b.WriteString(m.Content)
	}
	return instruction, b.String()
}

func (g *GigaChat) Complete(ctx context.Context, req Request) (*Completion, error) {
	name := req.Model
	if name == "" || !strings.HasPrefix(strings.ToLower(name), "gigachat") {
		name = defaultGigaChatModel
	}
	instruction, prompt := foldMessages(req.Messages)

	model := g.client.GenerativeModel(name)
	model.SystemInstruction = instruction
	model.Temperature = 0.3

	resp, err := model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	})
	if err != nil {
		g.logger.Error("GigaChat generation failed", zap.String("model", name), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrGeneration)
	}
	return &Completion{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:   name,
	}, nil
}

func (g *GigaChat) Stream(ctx context.Context, req Request) (Stream, error) {
	completion, err := g.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return NewSliceStream(DeltaPayload(completion.Content), Done), nil
}

func (g *GigaChat) Close() error {
	g.client.Close()
	return nil
}

type sliceStream struct {
	payloads []string
}

// NewSliceStream replays fixed payloads.
func NewSliceStream(payloads ...string) Stream {
	return &sliceStream{payloads: payloads}
}

func (s *sliceStream) Next() (string, error) {
	if len(s.payloads) == 0 {
		return "", io.EOF
	}
	p := s.payloads[0]
	s.payloads = s.payloads[1:]
	return p, nil
}

func (s *sliceStream) Close() error { return nil }
