package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// AskRequest represents the ask API request.
type AskRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

// Source is a retrieved chunk used to answer.
type Source struct {
	Name       string  `json:"name"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// AskResponse represents the ask API response.
type AskResponse struct {
	Answer          string   `json:"answer"`
	SessionID       string   `json:"session_id"`
	StandaloneQuery string   `json:"standalone_query,omitempty"`
	Sources         []Source `json:"sources,omitempty"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		sessionID string
		direct    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the uploaded documents",
		Long: `Asks a question answered from the indexed documents. Follow-up questions
reuse the session stored in ~/.docchat/config.json unless --session is given.
With --direct the question goes straight to the model with no retrieval.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")
			if direct {
				return runAskDirect(api, question, outputJSON)
			}
			return runAsk(api, question, sessionID, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Chat session ID (default: the stored session)")
	cmd.Flags().BoolVar(&direct, "direct", false, "Ask the model directly without document retrieval")

	return cmd
}

func runAsk(api *APIClient, question, sessionID string, outputJSON bool) error {
	if sessionID == "" {
		if config, err := LoadGlobalConfig(); err == nil && config != nil {
			sessionID = config.SessionID
		}
	}

	resp, err := api.Post("/ask_documents", AskRequest{Query: question, SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	var answer AskResponse
	if err := json.Unmarshal(resp.Data, &answer); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	if answer.SessionID != "" && answer.SessionID != sessionID {
		if err := updateGlobalConfig(func(c *GlobalConfig) { c.SessionID = answer.SessionID }); err != nil {
			return fmt.Errorf("failed to store session: %w", err)
		}
	}

	if outputJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(answer.Answer)
	if len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range answer.Sources {
			fmt.Printf("  %s #%d (%.2f)\n", s.Name, s.ChunkIndex, s.Score)
		}
	}
	return nil
}

func runAskDirect(api *APIClient, question string, outputJSON bool) error {
	resp, err := api.Post("/ask_llm", AskRequest{Query: question})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	var answer AskResponse
	if err := json.Unmarshal(resp.Data, &answer); err != nil {
		return fmt.Errorf("failed to parse answer: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(map[string]string{"answer": answer.Answer}, "", "  ")
		fmt.Println(string(output))
		return nil
	}
	fmt.Println(answer.Answer)
	return nil
}
