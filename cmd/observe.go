package cmd

import (
	"encoding/json"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/spf13/cobra"
)

func newObserveCmd(app *app) *cobra.Command {
	var peek bool

	cmd := &cobra.Command{
		Use:   "observe <session-id>",
		Short: "Drain buffered observations for a session",
		Long:  "observe prints every observation buffered since the last drain, in sequence order, then marks them consumed. With --peek nothing is consumed and the same observations reappear next time.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			observations, err := app.service.Observe(cmd.Context(), domain.SessionID(args[0]), peek)
			if err != nil {
				return err
			}
			if observations == nil {
				observations = []domain.Observation{}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(observations)
		},
	}

	cmd.Flags().BoolVar(&peek, "peek", false, "Read without consuming")

	return cmd
}
