package cmd

import (
	"fmt"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/spf13/cobra"
)

func newActCmd(app *app) *cobra.Command {
	var action domain.Action

	cmd := &cobra.Command{
		Use:   "act <session-id>",
		Short: "Send one action into a running game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ack, err := app.service.Act(cmd.Context(), domain.SessionID(args[0]), action)
			if err != nil {
				return err
			}

			if len(ack) > 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(ack))
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&action.Code, "code", "c", "", "Code for the agent to execute this turn")
	cmd.Flags().StringVarP(&action.Message, "message", "m", "", "Chat message to send in-game")
	cmd.Flags().StringVarP(&action.Thoughts, "thoughts", "t", "", "Agent reasoning to record with the action")

	return cmd
}
