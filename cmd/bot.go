package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/fanout/internal/adapters/frontend/telegram"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newBotCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Serve chat commands over Telegram",
		Long:  "bot long-polls Telegram with telegram.token and answers +share, +accounts, +status and +help. Progress edits a single status message.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, handler, err := app.newChatHandler(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = eng.close() }()

			bot, err := telegram.New(telegram.Config{Token: app.cfg.GetString(keyTelegramToken)}, handler, app.log)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			serveMetrics(gctx, g, app)
			g.Go(func() error {
				return bot.Run(gctx)
			})

			return g.Wait()
		},
	}
}
