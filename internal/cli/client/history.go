package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// Turn is one message of a chat session.
type Turn struct {
	Seq       int64     `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryResponse represents one page of session history.
type HistoryResponse struct {
	Items   []Turn `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// HistoryCmd creates the history command.
func HistoryCmd() *cobra.Command {
	var (
		sessionID  string
		limit      int
		cursor     string
		forget     bool
		clearTurns bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show, clear or forget chat history",
		Long:  "Shows the turns of a chat session, oldest first. With --clear the turns are dropped but the session stays; with --forget the session is deleted on the server and locally.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = storedSessionID()
			}
			if forget && clearTurns {
				return fmt.Errorf("--clear and --forget cannot be combined")
			}
			if forget {
				return runForget(api, sessionID)
			}
			if clearTurns {
				return runClear(api, sessionID)
			}
			return runHistory(api, sessionID, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Chat session ID (default: the stored session)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of turns")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	cmd.Flags().BoolVar(&forget, "forget", false, "Delete the session")
	cmd.Flags().BoolVar(&clearTurns, "clear", false, "Drop the session's turns but keep the session")

	return cmd
}

func storedSessionID() string {
	config, err := LoadGlobalConfig()
	if err != nil || config == nil || config.SessionID == "" {
		return "default"
	}
	return config.SessionID
}

func runHistory(api *APIClient, sessionID string, limit int, cursor string, outputJSON bool) error {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	resp, err := api.Get("/sessions/" + url.PathEscape(sessionID) + "/history?" + q.Encode())
	if err != nil {
		return fmt.Errorf("history failed: %w", err)
	}

	var page HistoryResponse
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		return fmt.Errorf("failed to parse history: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(page, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(page.Items) == 0 {
		fmt.Println("No history")
		return nil
	}
	for _, t := range page.Items {
		fmt.Printf("[%s] %s: %s\n", t.CreatedAt.Local().Format("15:04:05"), t.Role, t.Content)
	}
	if page.HasMore && page.Cursor != "" {
		fmt.Printf("\nMore turns available. Use --cursor %s\n", page.Cursor)
	}
	return nil
}

func runClear(api *APIClient, sessionID string) error {
	if _, err := api.Post("/sessions/"+url.PathEscape(sessionID)+"/clear", nil); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	fmt.Printf("Session %s cleared\n", sessionID)
	return nil
}

func runForget(api *APIClient, sessionID string) error {
	// An unknown session on the server still clears the local reference.
	var apiErr *APIError
	if _, err := api.Delete("/sessions/" + url.PathEscape(sessionID)); err != nil &&
		!(errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound) {
		return fmt.Errorf("forget failed: %w", err)
	}

	if err := updateGlobalConfig(func(c *GlobalConfig) {
		if c.SessionID == sessionID {
			c.SessionID = ""
		}
	}); err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}

	fmt.Printf("Session %s deleted\n", sessionID)
	return nil
}
