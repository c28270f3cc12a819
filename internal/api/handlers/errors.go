package handlers

import (
	"errors"

	"kb-rag/internal/chunker"
	"kb-rag/internal/embedding"
	"kb-rag/internal/extractor"
	"kb-rag/internal/llm"
	"kb-rag/internal/repository"
	"kb-rag/internal/rerank"
	"kb-rag/internal/service"
	"kb-rag/internal/vectorindex"
	"kb-rag/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrEmptyMessage):
		return fiber.StatusBadRequest
	case errors.Is(err, extractor.ErrUnsupportedFormat),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, chunker.ErrInvalidParams):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, service.ErrIngestQueueFull):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, llm.ErrGeneration),
		errors.Is(err, embedding.ErrEmbedding),
		errors.Is(err, vectorindex.ErrVectorIndex),
		errors.Is(err, rerank.ErrRerank):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes {"error": ...}. Server side failures are logged and
// their detail hidden behind msg.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error, msg string) error {
	code := StatusFor(err)
	if code >= fiber.StatusInternalServerError {
		logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func getUserID(c *fiber.Ctx) (int64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, fiber.ErrUnauthorized
	}
	return id, nil
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

// paramID reads a positive integer path parameter.
func paramID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return int64(id), true
}
