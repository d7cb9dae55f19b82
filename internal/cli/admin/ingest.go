package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/service"
	"github.com/spf13/cobra"
)

func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Index local documents",
		Long:  "Extract, chunk, embed and index local PDF or text files without going through the API server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			noMigrate, _ := cmd.Flags().GetBool("no-migrate")
			return runIngest(args, outputFormat, !noMigrate)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().Bool("no-migrate", false, "Skip database migrations")

	return cmd
}

func runIngest(paths []string, outputFormat string, migrate bool) error {
	ctx := context.Background()

	docs, err := readDocuments(paths)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	comps, err := openIndex(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer comps.Close()

	emb, closeEmbedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	svc := service.NewIngestionService(comps.extractor, emb, comps.index, ingestionConfig(cfg))
	results, err := svc.Ingest(ctx, docs)
	if err != nil {
		return err
	}

	return printIngestResults(results, outputFormat)
}

func readDocuments(paths []string) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(paths))
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		docs = append(docs, domain.NewDocument(filepath.Base(p), content))
	}
	return docs, nil
}

func printIngestResults(results []service.IngestResult, outputFormat string) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(results))
		for i, r := range results {
			item := map[string]interface{}{
				"name":     r.Name,
				"segments": r.SegmentCount,
				"chunks":   r.ChunkCount,
			}
			if r.Err != nil {
				item["error"] = r.Err.Error()
			}
			data[i] = item
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		for _, r := range results {
			if r.Err != nil {
				fmt.Printf("  FAILED  %s: %v\n", r.Name, r.Err)
				continue
			}
			fmt.Printf("  indexed %s (%d segments, %d chunks)\n", r.Name, r.SegmentCount, r.ChunkCount)
		}
	}

	if failed == len(results) {
		return fmt.Errorf("no documents were indexed")
	}
	return nil
}
