package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/fanout/internal/application"
	"github.com/bnema/fanout/internal/domain"
	"github.com/spf13/cobra"
)

func newIdentityCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage pool identities",
	}

	cmd.AddCommand(newIdentityAddCmd(app), newIdentityRemoveCmd(app), newIdentityListCmd(app))

	return cmd
}

func newIdentityAddCmd(app *app) *cobra.Command {
	var name string
	var secretKey string
	var secretValue string
	var values []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an identity or rotate its secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseValues(values)
			if err != nil {
				return err
			}

			return app.identities.Add(cmd.Context(), application.AddIdentityCommand{
				Name:        domain.IdentityName(name),
				SecretKey:   secretKey,
				SecretValue: secretValue,
				Values:      parsed,
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Identity name")
	cmd.Flags().StringVar(&secretKey, "secret-key", "", "Secret-store key")
	cmd.Flags().StringVar(&secretValue, "secret-value", "", "Secret value")
	cmd.Flags().StringArrayVar(&values, "value", nil, "Inline credential value as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("secret-key")
	_ = cmd.MarkFlagRequired("secret-value")

	return cmd
}

func newIdentityRemoveCmd(app *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove an identity and its stored secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.identities.Remove(cmd.Context(), application.RemoveIdentityCommand{Name: domain.IdentityName(name)})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Identity name")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newIdentityListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			identities, err := app.identities.List(cmd.Context())
			if err != nil {
				return err
			}

			for _, identity := range identities {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", identity.Name, identity.SecretRef)
			}

			return nil
		},
	}
}

func parseValues(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	values := make(map[string]string, len(raw))
	for _, pair := range raw {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --value %q is not key=value", domain.ErrInvalidRequest, pair)
		}
		values[key] = value
	}

	return values, nil
}
