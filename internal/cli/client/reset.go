package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ResetCmd creates the reset command.
func ResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every document from the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to clear the index without --force")
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runReset(api)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Confirm clearing the index")

	return cmd
}

func runReset(api *APIClient) error {
	if _, err := api.Delete("/index"); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	fmt.Println("Index cleared")
	return nil
}
