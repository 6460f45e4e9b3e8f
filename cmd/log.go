package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/spf13/cobra"
)

func newLogCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "log <session-id>",
		Short: "Print a session's observer log",
		Long:  "log prints everything the session's observer worker has written so far, useful for diagnosing sessions stuck in error or stopped early.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])

			// The registry owns the canonical not-found answer.
			if _, err := app.service.Status(cmd.Context(), id); err != nil {
				return err
			}

			path, err := app.workers.ObserverLogPath(id)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					// Worker never started or never logged.
					return nil
				}
				return fmt.Errorf("read observer log: %w", err)
			}

			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
