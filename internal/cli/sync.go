package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pebble-sync/internal/state"
)

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push unsynced records and read the server history",
	}
	cmd.AddCommand(newSyncNowCommand(rootOpts))
	cmd.AddCommand(newSyncStatusCommand(rootOpts))
	cmd.AddCommand(newSyncFetchCommand(rootOpts))
	cmd.AddCommand(newSyncHistoryCommand(rootOpts))
	return cmd
}

func newSyncNowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "now",
		Short: "Push every unsynced record once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, rootOpts, func(a *app) error {
				if !a.state.Settings().SyncEnabled {
					return fmt.Errorf("sync is disabled; enable it with `pebble settings set --sync-enabled`")
				}
				res, err := a.syncer.SyncUnsynced(ctx)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).emit(res, func(w io.Writer) {
					fmt.Fprintf(w, "attempted %d, pushed %d, failed %d\n", res.Attempted, res.Pushed, res.Failed)
				})
			})
		},
	}
}

type syncStatusView struct {
	Backing  string           `json:"backing"`
	Enabled  bool             `json:"enabled"`
	Unsynced int              `json:"unsynced"`
	Status   state.SyncStatus `json:"status"`
}

func newSyncStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage backing and pending records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, rootOpts, func(a *app) error {
				pending, err := a.store.Unsynced(ctx)
				if err != nil {
					return err
				}
				v := syncStatusView{
					Backing:  string(a.store.Backing()),
					Enabled:  a.state.Settings().SyncEnabled,
					Unsynced: len(pending),
					Status:   a.state.SyncStatusSnapshot(),
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).emit(v, func(w io.Writer) {
					fmt.Fprintf(w, "storage:  %s\n", v.Backing)
					fmt.Fprintf(w, "sync:     %t\n", v.Enabled)
					fmt.Fprintf(w, "unsynced: %d\n", v.Unsynced)
				})
			})
		},
	}
}

func newSyncFetchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "List unexpired entries on the server, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, rootOpts, func(a *app) error {
				items, err := a.client.Fetch(ctx, a.token())
				if err != nil {
					return err
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).emit(items, func(w io.Writer) {
					for _, e := range items {
						printEnvelope(w, e)
					}
				})
			})
		},
	}
}

type historyOptions struct {
	*RootOptions
	Limit  int
	Cursor string
}

func newSyncHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &historyOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Page through server history (requires a sync token)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts.RootOptions, func(a *app) error {
				page, err := a.client.History(ctx, a.token(), opts.Limit, opts.Cursor)
				if err != nil {
					return err
				}
				return newPrinter(opts.RootOptions, cmd.OutOrStdout()).emit(page, func(w io.Writer) {
					for _, e := range page.History {
						printEnvelope(w, e)
					}
					if page.HasMore && page.Cursor != nil {
						fmt.Fprintf(w, "more: --cursor %s\n", *page.Cursor)
					}
				})
			})
		},
	}
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "entries per page (max 100)")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "continue after this key")
	return cmd
}
