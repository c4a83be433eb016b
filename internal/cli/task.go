package cli

import (
	"github.com/spf13/cobra"

	"pebble-sync/internal/models"
	"pebble-sync/internal/notes"
)

type taskOptions struct {
	*RootOptions
	notes.TaskInput
}

func NewTaskCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Add, complete and list tasks",
	}
	cmd.AddCommand(newTaskAddCommand(rootOpts))
	cmd.AddCommand(newTaskDoneCommand(rootOpts, "done", true))
	cmd.AddCommand(newTaskDoneCommand(rootOpts, "undo", false))
	cmd.AddCommand(newListCommand(rootOpts, models.TypeTask))
	cmd.AddCommand(newRemoveCommand(rootOpts))
	return cmd
}

func newTaskAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &taskOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			in := opts.TaskInput
			in.Title = args[0]
			return withApp(ctx, opts.RootOptions, func(a *app) error {
				rec, err := a.notes.AddTask(ctx, in)
				if err != nil {
					return err
				}
				a.settle(ctx)
				return emitRecord(ctx, a, opts.RootOptions, cmd.OutOrStdout(), rec.ID)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Date, "date", "", "due date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.TimeSlot, "slot", models.SlotMorning, "morning|afternoon|evening")
	cmd.Flags().StringVar(&opts.ScheduledTime, "at", "", "scheduled time, e.g. 18:30")
	cmd.Flags().StringVar(&opts.Description, "desc", "", "description")
	cmd.Flags().StringSliceVarP(&opts.Tags, "tag", "t", nil, "tag to attach (repeatable)")
	return cmd
}

func newTaskDoneCommand(rootOpts *RootOptions, use string, completed bool) *cobra.Command {
	short := "Mark a task completed"
	if !completed {
		short = "Mark a task pending again"
	}
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, rootOpts, func(a *app) error {
				id, err := resolveID(ctx, a, args[0])
				if err != nil {
					return err
				}
				if _, err := a.notes.SetTaskCompleted(ctx, id, completed); err != nil {
					return err
				}
				a.settle(ctx)
				return emitRecord(ctx, a, rootOpts, cmd.OutOrStdout(), id)
			})
		},
	}
}
