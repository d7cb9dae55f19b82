package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/config"
	"github.com/spf13/cobra"
)

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the vector index",
		Long:  "Inspect and reset the vector index",
	}

	cmd.AddCommand(IndexResetCmd())
	cmd.AddCommand(IndexStatsCmd())

	return cmd
}

func IndexResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every indexed record",
		Long:  "Remove every indexed record. The index stays usable afterwards.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noMigrate, _ := cmd.Flags().GetBool("no-migrate")
			return runIndexReset(!noMigrate)
		},
	}

	cmd.Flags().Bool("no-migrate", false, "Skip database migrations")

	return cmd
}

func runIndexReset(migrate bool) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	comps, err := openIndex(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer comps.Close()

	if err := comps.index.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset index: %w", err)
	}

	fmt.Println("Index cleared")
	return nil
}

func IndexStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runIndexStats(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runIndexStats(outputFormat string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	comps, err := openIndex(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer comps.Close()

	count, err := comps.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count records: %w", err)
	}

	backend := "sqlite"
	if cfg.HasPostgres() {
		backend = "postgres"
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(map[string]interface{}{
			"backend": backend,
			"records": count,
		}, "", "  ")
		fmt.Println(string(jsonBytes))
		return nil
	}

	fmt.Printf("Backend: %s\nRecords: %d\n", backend, count)
	return nil
}
