package handlers

import (
	"encoding/json"

	"kb-rag/internal/dto"
	"kb-rag/internal/service"
	"kb-rag/internal/storage"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type DocumentHandler struct {
	docService    *service.DocumentService
	ingestService *service.IngestionService
	store         *storage.Local
	logger        *zap.Logger
}

func NewDocumentHandler(
	docService *service.DocumentService,
	ingestService *service.IngestionService,
	store *storage.Local,
	logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		docService:    docService,
		ingestService: ingestService,
		store:         store,
		logger:        logger,
	}
}

// UploadDocument godoc
// @Summary Upload a document
// @Description Store a file and register it in a knowledge base. Ingestion is started separately.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param kbId path int true "Knowledge base ID"
// @Param file formData file true "Document file"
// @Param ingest_params formData string false "JSON ingest overrides"
// @Security Bearer
// @Success 201 {object} dto.DocumentResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/kb/{kbId}/documents [post]
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	kbID, ok := paramID(c, "kbId")
	if !ok {
		return badRequest(c, "Invalid knowledge base ID")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "File is required")
	}

	var params map[string]any
	if raw := c.FormValue("ingest_params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return badRequest(c, "ingest_params must be a JSON object")
		}
	}

	src, err := file.Open()
	if err != nil {
		return badRequest(c, "Failed to open file")
	}
	defer src.Close()

	stored, err := h.store.Save(file.Filename, src)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to store file")
	}
	if ct := file.Header.Get(fiber.HeaderContentType); ct != "" && stored.MimeType == "" {
		stored.MimeType = ct
	}

	doc, err := h.docService.Register(c.UserContext(), kbID, userID, stored, params)
	if err != nil {
		if rmErr := h.store.Remove(stored.Ref); rmErr != nil {
			h.logger.Warn("Failed to remove orphaned upload", zap.String("ref", stored.Ref), zap.Error(rmErr))
		}
		return respondError(c, h.logger, err, "Failed to register document")
	}

	return c.Status(fiber.StatusCreated).JSON(dto.NewDocumentResponse(doc))
}

// IngestDocument godoc
// @Summary Ingest a document
// @Description Parse, chunk, embed and index a document in the background
// @Tags documents
// @Produce json
// @Param kbId path int true "Knowledge base ID"
// @Param docId path int true "Document ID"
// @Security Bearer
// @Success 202 {object} dto.IngestResponse
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/kb/{kbId}/documents/{docId}/ingest [post]
func (h *DocumentHandler) IngestDocument(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	kbID, ok := paramID(c, "kbId")
	if !ok {
		return badRequest(c, "Invalid knowledge base ID")
	}
	docID, ok := paramID(c, "docId")
	if !ok {
		return badRequest(c, "Invalid document ID")
	}

	if err := h.ingestService.Enqueue(c.UserContext(), kbID, docID, userID); err != nil {
		return respondError(c, h.logger, err, "Failed to schedule ingestion")
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.IngestResponse{
		KBID:   kbID,
		DocID:  docID,
		Status: "scheduled",
	})
}

// DeleteDocument godoc
// @Summary Delete a document
// @Description Soft delete a document, refresh KB counters and drop its vectors
// @Tags documents
// @Param kbId path int true "Knowledge base ID"
// @Param docId path int true "Document ID"
// @Security Bearer
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/kb/{kbId}/documents/{docId} [delete]
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	kbID, ok := paramID(c, "kbId")
	if !ok {
		return badRequest(c, "Invalid knowledge base ID")
	}
	docID, ok := paramID(c, "docId")
	if !ok {
		return badRequest(c, "Invalid document ID")
	}

	if err := h.docService.SoftDelete(c.UserContext(), kbID, docID, userID); err != nil {
		return respondError(c, h.logger, err, "Failed to delete document")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
