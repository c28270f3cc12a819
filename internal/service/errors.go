package service

import "errors"

var (
	ErrEmptyContent    = errors.New("no content after parsing and chunking")
	ErrVectorMismatch  = errors.New("vector count does not match chunk count")
	ErrIngestQueueFull = errors.New("ingestion queue is full")
	ErrEmptyMessage    = errors.New("message content is empty")

	// ErrPartialStream is recorded on the assistant message when the upstream
	// stream ends in failure. It is never returned to callers.
	ErrPartialStream = errors.New("partial stream failure")
)
