package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/fanout/internal/adapters/render/progress"
	"github.com/bnema/fanout/internal/domain"
	"github.com/bnema/fanout/internal/ports"
	"github.com/spf13/cobra"
)

func newShareCmd(app *app) *cobra.Command {
	var requester string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "share <target> [count]",
		Short: "Fan one target out across the identity pool",
		Long:  "share performs the action for target once per selected identity. count defaults to dispatch.default_count and is clamped to [1, dispatch.max_fanout].",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			shareArgs, err := app.parser().ParseShare(args)
			if err != nil {
				return err
			}

			// An interrupt stops new selections. The partial summary is still
			// printed.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := app.newEngine(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := eng.close(); closeErr != nil {
					app.log.Warn().Err(closeErr).Msg("close executor")
				}
			}()

			req := domain.DispatchRequest{
				Target:  shareArgs.Target,
				Count:   shareArgs.Count,
				Exclude: domain.IdentityName(requester),
			}
			logReporter := progress.NewLogReporter(app.log)

			var summary domain.Summary
			dispatch := func(ctx context.Context, reporter ports.ProgressReporter) error {
				var dispatchErr error
				summary, dispatchErr = eng.dispatcher.Dispatch(ctx, req, ports.MultiReporter{reporter, logReporter})
				return dispatchErr
			}

			if asJSON {
				err = dispatch(ctx, ports.NopReporter{})
			} else {
				label := fmt.Sprintf("Starting to share with %d identities...", req.Count)
				err = runShareSpinner(ctx, cmd.ErrOrStderr(), label, dispatch)
			}
			if err != nil && summary.Attempted() == 0 && !summary.Canceled {
				return err
			}

			if writeErr := writeSummaryOutput(cmd, app, summary, asJSON); writeErr != nil {
				return writeErr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&requester, "as", "", "Identity making the request (skipped when dispatch.exclude_requester is set)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func writeSummaryOutput(cmd *cobra.Command, app *app, summary domain.Summary, asJSON bool) error {
	if asJSON {
		return encodeJSON(cmd, summary)
	}

	rendered, err := app.summaryRenderer(summary)
	if err != nil {
		return fmt.Errorf("render summary: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}
