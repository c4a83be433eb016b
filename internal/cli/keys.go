package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pebble-sync/internal/common"
	"pebble-sync/internal/models"
)

type keysOptions struct {
	*RootOptions
	AdminToken string
}

// adminToken falls back to PEBBLE_ADMIN_TOKEN when the flag is unset.
func (o *keysOptions) adminToken() string {
	if o.AdminToken != "" {
		return o.AdminToken
	}
	return os.Getenv("PEBBLE_ADMIN_TOKEN")
}

func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &keysOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage server API keys (admin)",
	}
	cmd.PersistentFlags().StringVar(&opts.AdminToken, "admin-token", "", "server admin token (default $PEBBLE_ADMIN_TOKEN)")
	cmd.AddCommand(newKeysCreateCommand(opts))
	cmd.AddCommand(newKeysListCommand(opts))
	cmd.AddCommand(newKeysRevokeCommand(opts))
	return cmd
}

type keysCreateOptions struct {
	*keysOptions
	KeyID  string
	Secret string
	Name   string
	Use    bool
}

func newKeysCreateCommand(parent *keysOptions) *cobra.Command {
	opts := &keysCreateOptions{keysOptions: parent}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the token is shown once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts.RootOptions, func(a *app) error {
				created, err := a.client.CreateKey(ctx, opts.adminToken(), opts.KeyID, opts.Secret, opts.Name)
				if err != nil {
					return err
				}
				if opts.Use {
					token := created.Token
					if _, err := a.state.UpdateSettings(ctx, func(s *models.Settings) { s.SyncToken = &token }); err != nil {
						return err
					}
				}
				return newPrinter(opts.RootOptions, cmd.OutOrStdout()).emit(created, func(w io.Writer) {
					fmt.Fprintf(w, "key:   %s (%s)\n", created.KeyID, created.Name)
					fmt.Fprintf(w, "token: %s\n", created.Token)
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.KeyID, "id", "", "key id (generated when empty)")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "secret (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().BoolVar(&opts.Use, "use", false, "store the new token as this device's sync token")
	return cmd
}

func newKeysListCommand(opts *keysOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts.RootOptions, func(a *app) error {
				keys, err := a.client.ListKeys(ctx, opts.adminToken())
				if err != nil {
					return err
				}
				return newPrinter(opts.RootOptions, cmd.OutOrStdout()).emit(keys, func(w io.Writer) {
					for _, k := range keys {
						used := "never"
						if k.LastUsedAt != nil {
							used = k.LastUsedAt.Local().Format(time.DateTime)
						}
						status := "active"
						if k.Revoked {
							status = "revoked"
						}
						fmt.Fprintf(w, "%-20s %-8s created %s  last used %s  %s\n",
							k.KeyID, status, k.CreatedAt.Local().Format(time.DateTime), used, k.Name)
					}
				})
			})
		},
	}
}

func newKeysRevokeCommand(opts *keysOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <keyId>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return fmt.Errorf("%w: key id required", common.ErrValidation)
			}
			ctx := cmd.Context()
			return withApp(ctx, opts.RootOptions, func(a *app) error {
				if err := a.client.RevokeKey(ctx, opts.adminToken(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "revoked %s\n", args[0])
				return nil
			})
		},
	}
}
