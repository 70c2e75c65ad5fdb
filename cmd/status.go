package cmd

import (
	"encoding/json"
	"fmt"

	statusadapter "github.com/bnema/fanout/internal/adapters/render/status"
	"github.com/bnema/fanout/internal/application"
	"github.com/bnema/fanout/internal/rotation"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which identities are ready to act",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := loadStatus(cmd, app)
			if err != nil {
				return err
			}
			return writeStatusOutput(cmd, app, status, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newAccountsCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List pool identities with their use counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := loadStatus(cmd, app)
			if err != nil {
				return err
			}
			if asJSON {
				return encodeJSON(cmd, status.Identities)
			}

			for _, identity := range status.Identities {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", identity.Name, identity.UseCount)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

// loadStatus lists identities without resolving their secrets, so a locked or
// missing secret never hides the pool.
func loadStatus(cmd *cobra.Command, app *app) (application.PoolStatus, error) {
	identities, err := app.identities.List(cmd.Context())
	if err != nil {
		return application.PoolStatus{}, err
	}

	pool, err := rotation.Load(identities)
	if err != nil {
		return application.PoolStatus{}, err
	}

	return application.Status(pool, app.interval(), app.now()), nil
}

func writeStatusOutput(cmd *cobra.Command, app *app, status application.PoolStatus, asJSON bool) error {
	if asJSON {
		return encodeJSON(cmd, status)
	}

	rendered, err := app.statusRenderer(status, statusadapter.RenderOptions{Now: app.now()})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func encodeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
