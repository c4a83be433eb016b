package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type watchOptions struct {
	*RootOptions
	Interval time.Duration
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &watchOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep syncing in the foreground until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, opts.RootOptions, func(a *app) error {
				interval := opts.Interval
				if interval <= 0 {
					interval = a.cfg.Interval()
				}
				a.log.Infof("watching, sync every %s", interval)
				a.worker.Enqueue()
				a.worker.Run(ctx, interval)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "sync interval (default from config)")
	return cmd
}
