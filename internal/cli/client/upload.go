package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// DocumentResult mirrors one entry of the upload response.
type DocumentResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Segments int    `json:"segments"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}

// UploadResponse represents the upload API response.
type UploadResponse struct {
	Indexed   int              `json:"indexed"`
	Failed    int              `json:"failed"`
	Documents []DocumentResult `json:"documents"`
}

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents to the index",
		Long:  "Uploads PDF or text files. Each file is indexed independently; one failing file does not stop the others.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runUpload(api, args, outputJSON)
		},
	}

	return cmd
}

func runUpload(api *APIClient, paths []string, outputJSON bool) error {
	var progress ProgressFunc
	if !outputJSON {
		progress = stderrProgress("Uploading")
	}

	resp, err := api.PostMultipart("/upload_documents", MultipartRequest{
		FileField: "file",
		Files:     paths,
	}, progress)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	apiResp, err := decodeResponse(resp)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	var result UploadResponse
	if err := json.Unmarshal(apiResp.Data, &result); err != nil {
		return fmt.Errorf("failed to parse upload results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	for _, d := range result.Documents {
		if d.Status == "failed" {
			fmt.Printf("  FAILED  %s: %s\n", d.Name, d.Error)
			continue
		}
		fmt.Printf("  indexed %s (%d chunks)\n", d.Name, d.Chunks)
	}
	fmt.Printf("%d indexed, %d failed\n", result.Indexed, result.Failed)
	return nil
}
