package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove all session records and observation buffers",
		Long:  "cleanup wipes the local session registry and every buffered observation. Live observers are not stopped first; stop active sessions before cleaning up.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.service.Cleanup(cmd.Context()); err != nil {
				return err
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), "all sessions removed")
			return err
		},
	}
}
