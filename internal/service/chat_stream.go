package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"kb-rag/internal/llm"
	"kb-rag/internal/models"

	"go.uber.org/zap"
)

// ChatStream hands framed events to one consumer. The upstream call runs on
// its own goroutine and keeps going after Detach, so the assistant message
// is persisted even when the consumer leaves early.
type ChatStream struct {
	UserMessage *models.Message

	frames   chan []byte
	detached chan struct{}
	done     chan struct{}
	once     sync.Once

	assistant *models.Message
	err       error
}

// Frames yields each event already framed as "data: ...\n\n". The channel
// closes after the terminal [DONE] event.
func (cs *ChatStream) Frames() <-chan []byte { return cs.frames }

// Detach stops delivery. The upstream stream still runs to completion.
func (cs *ChatStream) Detach() {
	cs.once.Do(func() { close(cs.detached) })
}

// Done closes once the assistant message has been persisted or the attempt
// to do so failed.
func (cs *ChatStream) Done() <-chan struct{} { return cs.done }

// Result is valid after Done.
func (cs *ChatStream) Result() (*models.Message, error) {
	return cs.assistant, cs.err
}

// send blocks until the consumer takes frame or detaches.
func (cs *ChatStream) send(frame []byte) {
	select {
	case cs.frames <- frame:
	case <-cs.detached:
	}
}

// Stream persists the user message and starts generation. Errors returned
// here happen before any event is produced. Once a ChatStream is returned,
// upstream failures only show up as an error event and on the stored
// assistant message.
func (s *ChatService) Stream(ctx context.Context, in SendInput) (*ChatStream, error) {
	conv, userMsg, req, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	cs := &ChatStream{
		UserMessage: userMsg,
		frames:      make(chan []byte),
		detached:    make(chan struct{}),
		done:        make(chan struct{}),
	}

	pumpCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.streamTimeout)
	go func() {
		defer cancel()
		s.pump(pumpCtx, cs, conv, req)
	}()
	return cs, nil
}

func (s *ChatService) pump(ctx context.Context, cs *ChatStream, conv *models.Conversation, req llm.Request) {
	logger := s.logger.With(zap.Int64("conversation_id", conv.ID), zap.String("model", req.Model))
	start := time.Now()
	var acc strings.Builder
	var streamErr error

	defer close(cs.done)
	defer func() {
		s.persistStreamed(ctx, cs, conv, req.Model, acc.String(), streamErr, time.Since(start))
	}()
	defer close(cs.frames)

	upstream, err := s.gen.Stream(ctx, req)
	if err != nil {
		streamErr = err
	} else {
		streamErr = s.forward(cs, upstream, &acc, logger)
		upstream.Close()
	}

	if streamErr != nil {
		logger.Warn("Upstream stream failed", zap.Int("accumulated", acc.Len()), zap.Error(streamErr))
		cs.send(llm.Frame(llm.ErrorPayload(ErrPartialStream.Error())))
	}
	cs.send(llm.Frame(llm.Done))
}

// forward relays parseable payloads and accumulates their text until the
// upstream sends [DONE] or ends.
func (s *ChatService) forward(cs *ChatStream, upstream llm.Stream, acc *strings.Builder, logger *zap.Logger) error {
	events := 0
	for {
		payload, err := upstream.Next()
		if errors.Is(err, io.EOF) {
			logger.Debug("Upstream closed without sentinel", zap.Int("events", events))
			return nil
		}
		if err != nil {
			return err
		}
		if payload == llm.Done {
			logger.Debug("Upstream stream finished", zap.Int("events", events))
			return nil
		}

		delta, err := llm.ParseDelta(payload)
		if err != nil {
			logger.Debug("Skipping malformed stream payload", zap.Int("event", events), zap.Error(err))
			continue
		}
		acc.WriteString(delta)
		cs.send(llm.Frame(payload))
		events++
	}
}

func (s *ChatService) persistStreamed(ctx context.Context, cs *ChatStream, conv *models.Conversation, model, content string, streamErr error, elapsed time.Duration) {
	latency := latencyMS(elapsed)
	asst := &models.Message{
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Model:          &model,
		LatencyMS:      &latency,
	}
	if content != "" {
		asst.Content = &content
	}
	if streamErr != nil {
		reason := ErrPartialStream.Error() + ": " + streamErr.Error()
		asst.Error = &reason
	}

	if err := s.repo.AddMessage(context.WithoutCancel(ctx), asst); err != nil {
		s.logger.Error("Failed to persist streamed assistant message",
			zap.Int64("conversation_id", conv.ID),
			zap.Int("content_len", len(content)),
			zap.Error(err),
		)
		cs.err = err
		return
	}
	cs.assistant = asst

	s.logger.Info("Streamed turn persisted",
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("message_id", asst.ID),
		zap.Int("latency_ms", latency),
		zap.Int("output_len", len(content)),
		zap.Bool("partial", streamErr != nil),
	)
	if streamErr == nil {
		s.scheduleTitle(conv)
	}
}
