package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "fanout",
		Short:         "fanout: spread one action across a pool of rate-limited identities",
		Long:          "fanout keeps a pool of identities, hands each one out at most once per rate window, and fans a single share request out across them from the terminal, a chat loop, or a Telegram bot.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "", "Log level (debug|info|warn|error), overrides log.level")

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		app.setLogOutput(cmd.ErrOrStderr(), logLevel)
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newIdentityCmd(app),
		newAccountsCmd(app),
		newStatusCmd(app),
		newShareCmd(app),
		newChatCmd(app),
		newBotCmd(app),
	)

	return rootCmd
}
