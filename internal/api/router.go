package api

import (
	"kb-rag/docs"
	"kb-rag/internal/api/handlers"
	"kb-rag/pkg/auth"
	"kb-rag/pkg/config"
	"kb-rag/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

// Handlers groups everything SetupRouter mounts.
type Handlers struct {
	KnowledgeBase *handlers.KnowledgeBaseHandler
	Document      *handlers.DocumentHandler
	Retrieval     *handlers.RetrievalHandler
	Chat          *handlers.ChatHandler
}

func SetupRouter(
	h Handlers,
	serverCfg config.ServerConfig,
	jwtManager *auth.JWTManager,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout, // zero by default, streams outlive any deadline
		BodyLimit:    64 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				appLogger.Error("Unhandled request error", zap.String("path", c.Path()), zap.Error(err))
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// importing docs registers the swagger document
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	protected := app.Group("/api/v1", middleware.AuthMiddleware(jwtManager, appLogger))

	kb := protected.Group("/kb")
	kb.Post("", h.KnowledgeBase.CreateKnowledgeBase)
	kb.Get("/:kbId", h.KnowledgeBase.GetKnowledgeBase)
	kb.Post("/:kbId/documents", h.Document.UploadDocument)
	kb.Post("/:kbId/documents/:docId/ingest", h.Document.IngestDocument)
	kb.Delete("/:kbId/documents/:docId", h.Document.DeleteDocument)

	protected.Post("/retrieve", h.Retrieval.Retrieve)

	conversations := protected.Group("/conversations")
	conversations.Post("", h.Chat.CreateConversation)
	conversations.Get("/:id/messages", h.Chat.ListMessages)
	conversations.Post("/:id/messages", h.Chat.SendMessage)
	conversations.Post("/:id/messages/stream", h.Chat.StreamMessage)

	return app
}
