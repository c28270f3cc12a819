package handlers

import (
	"kb-rag/internal/dto"
	"kb-rag/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type RetrievalHandler struct {
	retrieval *service.RetrievalService
	logger    *zap.Logger
}

func NewRetrievalHandler(retrieval *service.RetrievalService, logger *zap.Logger) *RetrievalHandler {
	return &RetrievalHandler{retrieval: retrieval, logger: logger}
}

// Retrieve godoc
// @Summary Search knowledge bases
// @Description Similarity search across the caller's knowledge bases with optional reranking
// @Tags retrieval
// @Accept json
// @Produce json
// @Param request body dto.RetrieveRequest true "Query"
// @Security Bearer
// @Success 200 {object} dto.RetrieveResponse
// @Failure 400 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/v1/retrieve [post]
func (h *RetrievalHandler) Retrieve(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.RetrieveRequest
	if err := parseBody(c, &req); err != nil {
		return inputError(c, err)
	}

	set, err := h.retrieval.ResolveCollections(c.UserContext(), userID, req.KBIDs)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to resolve knowledge bases")
	}

	useRerank := set.UseReranker
	if req.UseRerank != nil {
		useRerank = *req.UseRerank
	}

	res, err := h.retrieval.Retrieve(c.UserContext(), service.RetrieveRequest{
		Query:          req.Query,
		Collections:    set.Collections,
		TopK:           req.TopK,
		PerKBK:         req.PerKBK,
		UseRerank:      useRerank,
		RerankTopN:     req.RerankTopN,
		EmbeddingModel: set.EmbeddingModel,
		RerankModel:    set.RerankModel,
	})
	if err != nil {
		return respondError(c, h.logger, err, "Retrieval failed")
	}

	items := make([]dto.RetrieveItem, 0, len(res.Candidates))
	for _, cand := range res.Candidates {
		items = append(items, dto.RetrieveItem(cand))
	}
	return c.JSON(dto.RetrieveResponse{Items: items, Reranked: res.Reranked})
}
