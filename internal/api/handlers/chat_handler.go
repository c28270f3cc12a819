package handlers

import (
	"bufio"

	"kb-rag/internal/dto"
	"kb-rag/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

type ChatHandler struct {
	chatService *service.ChatService
	logger      *zap.Logger
}

func NewChatHandler(chatService *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: logger}
}

// CreateConversation godoc
// @Summary Start a conversation
// @Tags chat
// @Accept json
// @Produce json
// @Param request body dto.CreateConversationRequest true "Conversation"
// @Security Bearer
// @Success 201 {object} dto.ConversationResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/conversations [post]
func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateConversationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}
	}

	conv, err := h.chatService.CreateConversation(c.UserContext(), userID, req.Title, req.Model, req.KBIDs)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to create conversation")
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewConversationResponse(conv))
}

// ListMessages godoc
// @Summary List conversation messages
// @Description Messages in ascending id order. before_id pages backwards.
// @Tags chat
// @Produce json
// @Param id path int true "Conversation ID"
// @Param limit query int false "Limit" default(50)
// @Param before_id query int false "Only messages older than this id"
// @Security Bearer
// @Success 200 {array} dto.MessageResponse
// @Failure 404 {object} map[string]string
// @Router /api/v1/conversations/{id}/messages [get]
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	convID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation ID")
	}

	msgs, err := h.chatService.ListMessages(c.UserContext(), convID, userID, c.QueryInt("limit", 0), int64(c.QueryInt("before_id", 0)))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list messages")
	}
	return c.JSON(dto.NewMessageResponses(msgs))
}

func (h *ChatHandler) sendInput(c *fiber.Ctx) (service.SendInput, error) {
	userID, err := getUserID(c)
	if err != nil {
		return service.SendInput{}, err
	}
	convID, ok := paramID(c, "id")
	if !ok {
		return service.SendInput{}, fiber.NewError(fiber.StatusBadRequest, "Invalid conversation ID")
	}
	var req dto.SendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return service.SendInput{}, err
	}
	return service.SendInput{
		ConversationID: convID,
		UserID:         userID,
		Content:        req.Content,
		Model:          req.Model,
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		MaxTokens:      req.MaxTokens,
		IdempotencyKey: req.IdempotencyKey,
	}, nil
}

func inputError(c *fiber.Ctx, err error) error {
	if e, ok := err.(*fiber.Error); ok && e.Code == fiber.StatusBadRequest {
		return badRequest(c, e.Message)
	}
	return unauthorized(c)
}

// SendMessage godoc
// @Summary Send a message
// @Description Persist the user message, generate a reply and persist it
// @Tags chat
// @Accept json
// @Produce json
// @Param id path int true "Conversation ID"
// @Param request body dto.SendMessageRequest true "Message"
// @Security Bearer
// @Success 200 {object} dto.SendMessageResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /api/v1/conversations/{id}/messages [post]
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	in, err := h.sendInput(c)
	if err != nil {
		return inputError(c, err)
	}

	userMsg, asst, err := h.chatService.Send(c.UserContext(), in)
	if err != nil {
		return respondError(c, h.logger, err, "Generation failed")
	}
	return c.JSON(dto.SendMessageResponse{
		UserMessage:      dto.NewMessageResponse(userMsg),
		AssistantMessage: dto.NewMessageResponse(asst),
	})
}

// StreamMessage godoc
// @Summary Send a message and stream the reply
// @Description Server-sent events. Each event is "data: <json>" and the stream ends with "data: [DONE]".
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param id path int true "Conversation ID"
// @Param request body dto.SendMessageRequest true "Message"
// @Security Bearer
// @Success 200 {string} string "event stream"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/conversations/{id}/messages/stream [post]
func (h *ChatHandler) StreamMessage(c *fiber.Ctx) error {
	in, err := h.sendInput(c)
	if err != nil {
		return inputError(c, err)
	}

	stream, err := h.chatService.Stream(c.UserContext(), in)
	if err != nil {
		return respondError(c, h.logger, err, "Failed to start stream")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := h.logger
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer stream.Detach()
		for frame := range stream.Frames() {
			if _, err := w.Write(frame); err != nil {
				logger.Debug("Stream client write failed", zap.Error(err))
				return
			}
			if err := w.Flush(); err != nil {
				logger.Info("Stream client disconnected", zap.Int64("conversation_id", in.ConversationID))
				return
			}
		}
	}))
	return nil
}
