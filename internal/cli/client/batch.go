package client

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

const defaultBatchOutput = "BatchQueryResponses.zip"

// BatchCmd creates the batch command.
func BatchCmd() *cobra.Command {
	var (
		prompt string
		output string
	)

	cmd := &cobra.Command{
		Use:   "batch <file>...",
		Short: "Apply one prompt to each document",
		Long:  "Sends every file with the same prompt and saves one answer per document in a zip archive.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runBatch(api, prompt, args, output)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Instruction applied to every document (required)")
	cmd.Flags().StringVarP(&output, "out", "o", defaultBatchOutput, "Path of the zip archive to write")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

func runBatch(api *APIClient, prompt string, paths []string, outputPath string) error {
	resp, err := api.PostMultipart("/batch_file_query", MultipartRequest{
		Fields:    map[string]string{"user_prompt": prompt},
		FileField: "uploaded_files",
		Files:     paths,
	}, stderrProgress("Uploading"))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, err := decodeResponse(resp)
		if err == nil {
			err = fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("batch failed: %w", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	fmt.Printf("Saved %d answers to %s (%d bytes)\n", len(paths), outputPath, n)
	return nil
}
