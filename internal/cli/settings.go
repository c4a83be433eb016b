package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"pebble-sync/internal/common"
	"pebble-sync/internal/models"
)

func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change device settings",
	}
	cmd.AddCommand(newSettingsShowCommand(rootOpts))
	cmd.AddCommand(newSettingsSetCommand(rootOpts))
	cmd.AddCommand(newSettingsResetCommand(rootOpts))
	cmd.AddCommand(newThemeCommand(rootOpts))
	return cmd
}

func newSettingsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), rootOpts, func(a *app) error {
				return printSettings(rootOpts, cmd.OutOrStdout(), a.state.Settings())
			})
		},
	}
}

type settingsSetOptions struct {
	*RootOptions
	SyncEnabled       bool
	Token             string
	RetentionDays     string
	SyncRetentionDays int
	AutoSync          bool
	Notify            string
}

func newSettingsSetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &settingsSetOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		Long: `Only flags that are given are changed. Pass --retention-days none to
keep records forever and --token "" to clear the sync token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !anyChanged(cmd, settingFlags...) {
				return fmt.Errorf("%w: no settings given", common.ErrValidation)
			}
			var retention *int
			if flags.Changed("retention-days") {
				days, err := parseRetention(opts.RetentionDays)
				if err != nil {
					return err
				}
				retention = days
			}

			ctx := cmd.Context()
			return withApp(ctx, opts.RootOptions, func(a *app) error {
				next, err := a.state.UpdateSettings(ctx, func(s *models.Settings) {
					if flags.Changed("sync-enabled") {
						s.SyncEnabled = opts.SyncEnabled
					}
					if flags.Changed("token") {
						if opts.Token == "" {
							s.SyncToken = nil
						} else {
							token := opts.Token
							s.SyncToken = &token
						}
					}
					if flags.Changed("retention-days") {
						s.RetentionDays = retention
					}
					if flags.Changed("sync-retention-days") {
						s.SyncRetentionDays = opts.SyncRetentionDays
					}
					if flags.Changed("auto-sync") {
						s.AutoSyncOnStart = opts.AutoSync
					}
					if flags.Changed("notify") {
						s.NotificationMethod = opts.Notify
					}
				})
				if err != nil {
					return err
				}
				if next.SyncEnabled {
					a.worker.Enqueue()
					a.settle(ctx)
				}
				return printSettings(opts.RootOptions, cmd.OutOrStdout(), next)
			})
		},
	}
	cmd.Flags().BoolVar(&opts.SyncEnabled, "sync-enabled", false, "push records to the server")
	cmd.Flags().StringVar(&opts.Token, "token", "", "sync token (keyId.secret)")
	cmd.Flags().StringVar(&opts.RetentionDays, "retention-days", "", "days to keep synced records locally, or none")
	cmd.Flags().IntVar(&opts.SyncRetentionDays, "sync-retention-days", 7, "server-side retention: 7, 15 or 30")
	cmd.Flags().BoolVar(&opts.AutoSync, "auto-sync", false, "sync when the app starts")
	cmd.Flags().StringVar(&opts.Notify, "notify", models.NotifyBrowser, "notification method: browser or ntfy")
	return cmd
}

var settingFlags = []string{"sync-enabled", "token", "retention-days", "sync-retention-days", "auto-sync", "notify"}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}

func parseRetention(v string) (*int, error) {
	if v == "none" || v == "" {
		return nil, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil || days <= 0 {
		return nil, fmt.Errorf("%w: retention-days must be a positive number or none", common.ErrValidation)
	}
	return &days, nil
}

func newSettingsResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, rootOpts, func(a *app) error {
				st, err := a.state.ResetSettings(ctx)
				if err != nil {
					return err
				}
				return printSettings(rootOpts, cmd.OutOrStdout(), st)
			})
		},
	}
}

func newThemeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "theme [light|dark|device]",
		Short:     "Show or set the display theme",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{models.ThemeLight, models.ThemeDark, models.ThemeDevice},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, rootOpts, func(a *app) error {
				if len(args) == 1 {
					if err := a.state.SetTheme(ctx, args[0]); err != nil {
						return err
					}
				}
				theme := a.state.Theme(ctx)
				return newPrinter(rootOpts, cmd.OutOrStdout()).emit(map[string]string{"theme": theme}, func(w io.Writer) {
					fmt.Fprintln(w, theme)
				})
			})
		},
	}
}

func printSettings(opts *RootOptions, w io.Writer, st models.Settings) error {
	view := st
	if view.SyncToken != nil {
		masked := maskToken(*view.SyncToken)
		view.SyncToken = &masked
	}
	return newPrinter(opts, w).emit(view, func(w io.Writer) {
		retention := "none"
		if view.RetentionDays != nil {
			retention = strconv.Itoa(*view.RetentionDays)
		}
		token := "(unset)"
		if view.SyncToken != nil {
			token = *view.SyncToken
		}
		fmt.Fprintf(w, "sync-enabled:        %t\n", view.SyncEnabled)
		fmt.Fprintf(w, "token:               %s\n", token)
		fmt.Fprintf(w, "retention-days:      %s\n", retention)
		fmt.Fprintf(w, "sync-retention-days: %d\n", view.SyncRetentionDays)
		fmt.Fprintf(w, "auto-sync:           %t\n", view.AutoSyncOnStart)
		fmt.Fprintf(w, "notify:              %s\n", view.NotificationMethod)
	})
}

// maskToken keeps the key id and hides the secret.
func maskToken(token string) string {
	if keyID, _, ok := strings.Cut(token, "."); ok {
		return keyID + ".****"
	}
	return "****"
}
