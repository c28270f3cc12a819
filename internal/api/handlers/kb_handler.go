package handlers

import (
	"strings"

	"kb-rag/internal/dto"
	"kb-rag/internal/models"
	"kb-rag/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type KnowledgeBaseHandler struct {
	kbService *service.KnowledgeBaseService
	logger    *zap.Logger
}

func NewKnowledgeBaseHandler(kbService *service.KnowledgeBaseService, logger *zap.Logger) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{kbService: kbService, logger: logger}
}

// CreateKnowledgeBase godoc
// @Summary Create a knowledge base
// @Tags knowledge-bases
// @Accept json
// @Produce json
// @Param request body dto.CreateKnowledgeBaseRequest true "Knowledge base"
// @Security Bearer
// @Success 201 {object} dto.KnowledgeBaseResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/kb [post]
func (h *KnowledgeBaseHandler) CreateKnowledgeBase(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateKnowledgeBaseRequest
	if err := parseBody(c, &req); err != nil {
		return inputError(c, err)
	}
	visibility := models.Visibility(req.Visibility)
	switch visibility {
	case "", models.VisibilityPrivate, models.VisibilityShared:
	default:
		return badRequest(c, "Invalid visibility")
	}

	kb, err := h.kbService.Create(c.UserContext(), userID, service.CreateKnowledgeBaseInput{
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		Visibility:     visibility,
		EmbeddingModel: req.EmbeddingModel,
		RerankerModel:  req.RerankerModel,
		UseReranker:    req.UseReranker,
	})
	if err != nil {
		return respondError(c, h.logger, err, "Failed to create knowledge base")
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewKnowledgeBaseResponse(kb))
}

// GetKnowledgeBase godoc
// @Summary Get a knowledge base
// @Tags knowledge-bases
// @Produce json
// @Param kbId path int true "Knowledge base ID"
// @Security Bearer
// @Success 200 {object} dto.KnowledgeBaseResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/kb/{kbId} [get]
func (h *KnowledgeBaseHandler) GetKnowledgeBase(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	kbID, ok := paramID(c, "kbId")
	if !ok {
		return badRequest(c, "Invalid knowledge base ID")
	}

	kb, err := h.kbService.Get(c.UserContext(), kbID, userID)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load knowledge base")
	}
	return c.JSON(dto.NewKnowledgeBaseResponse(kb))
}
