package cmd

import (
	"fmt"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/spf13/cobra"
)

func newStopCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <session-id>",
		Short: "Ask a session's observer to stop",
		Long:  "stop requests a cooperative shutdown of the session's observer worker. Already-finished sessions are left alone, so repeating the command is safe.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.service.Stop(cmd.Context(), domain.SessionID(args[0])); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "stop requested for session %s\n", args[0])
			return err
		},
	}
}
