package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pebble-sync/internal/common"
	"pebble-sync/internal/models"
)

type noteOptions struct {
	*RootOptions
	Tags []string
}

func NewNoteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Add, list, edit and remove notes",
	}
	cmd.AddCommand(newNoteAddCommand(rootOpts))
	cmd.AddCommand(newListCommand(rootOpts, models.TypeNote))
	cmd.AddCommand(newNoteEditCommand(rootOpts))
	cmd.AddCommand(newRemoveCommand(rootOpts))
	return cmd
}

func newNoteAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &noteOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "add <text>...",
		Short: "Add a note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts.RootOptions, func(a *app) error {
				rec, err := a.notes.AddNote(ctx, strings.Join(args, " "), opts.Tags)
				if err != nil {
					return err
				}
				a.settle(ctx)
				return emitRecord(ctx, a, opts.RootOptions, cmd.OutOrStdout(), rec.ID)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&opts.Tags, "tag", "t", nil, "tag to attach (repeatable)")
	return cmd
}

func newNoteEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &noteOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "edit <id> <text>...",
		Short: "Replace a note's text; it is synced again",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts.RootOptions, func(a *app) error {
				id, err := resolveID(ctx, a, args[0])
				if err != nil {
					return err
				}
				var tags []string
				if cmd.Flags().Changed("tag") {
					tags = append([]string{}, opts.Tags...)
				}
				if _, err := a.notes.EditNote(ctx, id, strings.Join(args[1:], " "), tags); err != nil {
					return err
				}
				a.settle(ctx)
				return emitRecord(ctx, a, opts.RootOptions, cmd.OutOrStdout(), id)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&opts.Tags, "tag", "t", nil, "replace tags (repeatable)")
	return cmd
}

func newRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Remove a record from this device",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, rootOpts, func(a *app) error {
				id, err := resolveID(ctx, a, args[0])
				if err != nil {
					return err
				}
				if err := a.notes.Delete(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "removed %s\n", id)
				return nil
			})
		},
	}
}

func newListCommand(rootOpts *RootOptions, kind string) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List " + kind + "s, newest first (* = not yet synced)",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, rootOpts, func(a *app) error {
				recs, err := a.notes.List(ctx, kind)
				if err != nil {
					return err
				}
				return newPrinter(rootOpts, cmd.OutOrStdout()).emit(recs, func(w io.Writer) {
					for _, r := range recs {
						printRecord(w, r)
					}
				})
			})
		},
	}
}

// resolveID accepts a full id or a unique prefix of one.
func resolveID(ctx context.Context, a *app, prefix string) (string, error) {
	recs, err := a.store.All(ctx)
	if err != nil {
		return "", err
	}
	var match string
	for _, r := range recs {
		if r.ID == prefix {
			return r.ID, nil
		}
		if strings.HasPrefix(r.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("%w: id prefix %q is ambiguous", common.ErrValidation, prefix)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("record %q: %w", prefix, common.ErrNotFound)
	}
	return match, nil
}

// emitRecord prints the stored state of id, after any sync it triggered.
func emitRecord(ctx context.Context, a *app, opts *RootOptions, w io.Writer, id string) error {
	rec, err := a.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return newPrinter(opts, w).emit(rec, func(w io.Writer) { printRecord(w, rec) })
}
