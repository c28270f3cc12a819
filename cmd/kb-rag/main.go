package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kb-rag/internal/api"
	"kb-rag/internal/api/handlers"
	"kb-rag/internal/app"
	"kb-rag/pkg/auth"
	"kb-rag/pkg/config"
	"kb-rag/pkg/logger"

	"go.uber.org/zap"
)

// @title KB RAG API
// @version 1.0
// @description Knowledge base ingestion, retrieval and chat.

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting kb-rag service")

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Issuer)

	router := api.SetupRouter(api.Handlers{
		KnowledgeBase: handlers.NewKnowledgeBaseHandler(a.KnowledgeBases, appLogger),
		Document:      handlers.NewDocumentHandler(a.Documents, a.Ingestion, a.Store, appLogger),
		Retrieval:     handlers.NewRetrievalHandler(a.Retrieval, appLogger),
		Chat:          handlers.NewChatHandler(a.Chat, appLogger),
	}, cfg.Server, jwtManager, appLogger)

	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := router.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := router.Shutdown(); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
