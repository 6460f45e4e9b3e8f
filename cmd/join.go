package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
)

func newJoinCmd(app *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Enter the matchmaking queue and wait for a game to start",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := app.service.Join(cmd.Context(), timeout)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", app.joinTimeout, "How long to wait for matchmaking before giving up")

	return cmd
}
