package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "arenactl",
		Short:         "Arena session CLI: join games, act, and read observations",
		Long:          "arenactl lets an agent join the arena matchmaking queue, send actions into a running game, and drain the observations its background observer has buffered, all from short-lived command invocations.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newJoinCmd(app),
		newActCmd(app),
		newObserveCmd(app),
		newStatusCmd(app),
		newLogCmd(app),
		newStopCmd(app),
		newCleanupCmd(app),
		newObserverCmd(app),
	)

	return rootCmd
}
