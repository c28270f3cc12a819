package main

import (
	"encoding/json"
	"fmt"
	"io"

	"kb-rag/internal/app"
	"kb-rag/internal/service"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func retrieveCommand(c *cli.Context) error {
	format := c.String("format")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unknown format %q", format)
	}
	return withApp(c, func(a *app.App) error {
		set, err := a.Retrieval.ResolveCollections(c.Context, c.Int64("owner-id"), c.Int64Slice("kb-id"))
		if err != nil {
			return err
		}
		useRerank := set.UseReranker
		if c.IsSet("rerank") {
			useRerank = c.Bool("rerank")
		}
		res, err := a.Retrieval.Retrieve(c.Context, service.RetrieveRequest{
			Query:          c.String("query"),
			Collections:    set.Collections,
			TopK:           c.Int("top-k"),
			PerKBK:         c.Int("per-kb-k"),
			UseRerank:      useRerank,
			EmbeddingModel: set.EmbeddingModel,
			RerankModel:    set.RerankModel,
		})
		if err != nil {
			return err
		}
		return writeResult(c.App.Writer, format, res)
	})
}

func writeResult(w io.Writer, format string, res *service.RetrieveResult) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
}
