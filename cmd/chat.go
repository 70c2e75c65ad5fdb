package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/fanout/internal/adapters/frontend"
	"github.com/bnema/fanout/internal/adapters/render/progress"
	"github.com/bnema/fanout/internal/application"
	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newChatCmd(app *app) *cobra.Command {
	var requester string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Read chat commands from stdin (+share, +accounts, +status, +help)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, handler, err := app.newChatHandler(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = eng.close() }()

			replier := frontend.NewWriterReplier(cmd.OutOrStdout())
			g, gctx := errgroup.WithContext(ctx)
			serveMetrics(gctx, g, app)

			g.Go(func() error {
				defer stop()

				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					if err := handler.Handle(gctx, replier, domain.IdentityName(requester), scanner.Text()); err != nil {
						return err
					}
					if gctx.Err() != nil {
						return nil
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read chat input: %w", err)
				}
				return nil
			})

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&requester, "as", "", "Identity typing the commands")

	return cmd
}

// newChatHandler builds the engine and a command handler over it for the
// chat and bot front ends.
func (a *app) newChatHandler(ctx context.Context) (*engine, *frontend.Handler, error) {
	eng, err := a.newEngine(ctx)
	if err != nil {
		return nil, nil, err
	}

	handler := frontend.NewHandler(frontend.Options{
		Parser:     eng.parser,
		Dispatcher: eng.dispatcher,
		Status:     func() application.PoolStatus { return eng.status(a.now()) },
		Reporter:   progress.NewLogReporter(a.log),
		Logger:     a.log,
		Now:        a.now,
	})

	return eng, handler, nil
}

// serveMetrics exposes /metrics on metrics.addr for as long as ctx lives.
func serveMetrics(ctx context.Context, g *errgroup.Group, app *app) {
	addr := app.cfg.GetString(keyMetricsAddr)
	if addr == "" {
		return
	}

	g.Go(func() error {
		app.log.Info().Str("addr", addr).Msg("serving metrics")
		return metrics.Serve(ctx, addr)
	})
}
