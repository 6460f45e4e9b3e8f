package cmd

import (
	"encoding/json"
	"fmt"

	statusadapter "github.com/arenaverse/arenactl/internal/adapters/render/status"
	"github.com/arenaverse/arenactl/internal/application"
	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [session-id]",
		Short: "Show session state and observer liveness",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				statuses []application.SessionStatus
				err      error
			)
			if len(args) == 1 {
				var status application.SessionStatus
				status, err = app.service.Status(cmd.Context(), domain.SessionID(args[0]))
				statuses = []application.SessionStatus{status}
			} else {
				statuses, err = app.service.StatusAll(cmd.Context())
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			rendered := app.statusRenderer(statuses, statusadapter.RenderOptions{Now: app.now()})
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
