package main

import (
	"fmt"
	"os"
	"time"

	"kb-rag/internal/app"
	"kb-rag/pkg/auth"
	"kb-rag/pkg/config"
	"kb-rag/pkg/logger"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragctl",
		Usage: "Operate knowledge bases without the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override LOG_LEVEL (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "seed",
				Usage:  "Register and ingest every supported file of a directory",
				Action: seedCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Aliases:  []string{"d"},
						Usage:    "Directory with source documents",
						Required: true,
					},
					&cli.Int64Flag{
						Name:     "kb-id",
						Usage:    "Target knowledge base",
						Required: true,
					},
					&cli.Int64Flag{
						Name:     "owner-id",
						Usage:    "Owner of the knowledge base",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "cache",
						Usage: "md5 cache file, defaults to <dir>/.seed_cache.json",
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Ingest one registered document synchronously",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "kb-id", Required: true},
					&cli.Int64Flag{Name: "doc-id", Required: true},
					&cli.Int64Flag{Name: "owner-id", Required: true},
				},
			},
			{
				Name:   "retrieve",
				Usage:  "Run a retrieval query and print the ranked chunks",
				Action: retrieveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Required: true,
					},
					&cli.Int64SliceFlag{
						Name:     "kb-id",
						Usage:    "Knowledge base to search, repeatable",
						Required: true,
					},
					&cli.Int64Flag{Name: "owner-id", Required: true},
					&cli.IntFlag{Name: "top-k", Usage: "Defaults to RAG_TOP_K"},
					&cli.IntFlag{Name: "per-kb-k"},
					&cli.BoolFlag{Name: "rerank", Usage: "Rerank candidates before the top-k cut"},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format (json, yaml)",
						Value: "json",
					},
				},
			},
			{
				Name:   "token",
				Usage:  "Sign a bearer token for JWT_SECRET_KEY",
				Action: tokenCommand,
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "user-id", Required: true},
					&cli.StringFlag{Name: "username"},
					&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logger.Level = lvl
	}
	if err := logger.Init(cfg.Logger); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger.Get(), nil
}

func withApp(c *cli.Context, fn func(a *app.App) error) error {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.Build(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func ingestCommand(c *cli.Context) error {
	return withApp(c, func(a *app.App) error {
		doc, err := a.Ingestion.Ingest(c.Context, c.Int64("kb-id"), c.Int64("doc-id"), c.Int64("owner-id"))
		if doc != nil {
			fmt.Fprintf(c.App.Writer, "document %d: %s, %d chunks\n", doc.ID, doc.Status, doc.ChunkCount)
		}
		return err
	})
}

func tokenCommand(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	token, err := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Issuer).
		GenerateToken(c.Int64("user-id"), c.String("username"), c.Duration("ttl"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, token)
	return nil
}
