package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/arenaverse/arenactl/internal/domain"
	"github.com/arenaverse/arenactl/internal/observer"
	"github.com/spf13/cobra"
)

// newObserverCmd is the detached worker entrypoint. join re-execs the binary
// with this subcommand; it is hidden because users never run it themselves.
func newObserverCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:    "observer <session-id>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Stderr is redirected to the session's observer.log by the
			// spawning process.
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			worker := observer.New(app.repo, app.buffer, app.client, app.workers, nil, logger, app.observerCfg)
			return worker.Run(ctx, domain.SessionID(args[0]))
		},
	}
}
