package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"taskfold/internal/errs"
	"taskfold/internal/listmeta"
	"taskfold/internal/storage"
)

func (a *app) listCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"lists"},
		Short:   "Show and manage task lists",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			lists, err := repo.Lists()
			if err != nil {
				return err
			}
			shown := lists[:0]
			for _, l := range lists {
				if all || !l.Archived {
					shown = append(shown, l)
				}
			}
			a.printf("%s\n%s", a.describeWorkspace(), a.styles.Lists(shown))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include archived lists")

	cmd.AddCommand(&cobra.Command{
		Use:   "create <title>",
		Short: "Create a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			l, err := repo.CreateList(args[0])
			if err != nil {
				return err
			}
			a.success("Created list %s", l.Title)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [list]",
		Short: "Show the tasks of a list (default: last opened)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			l, err := a.defaultList(ref)
			if err != nil {
				return err
			}
			if err := repo.MarkOpened(l.ID); err != nil {
				return err
			}
			a.printf("%s", a.styles.List(l, a.now()))
			return nil
		},
	})

	cmd.AddCommand(a.listEdit("rename <list> <title>", "Rename a list", 2, func(l *storage.TaskList, args []string) (string, error) {
		renamed, err := a.repo.RenameList(l.ID, args[1])
		if err != nil {
			return "", err
		}
		return "Renamed " + l.Title + " to " + renamed.Title, nil
	}))

	cmd.AddCommand(a.listEdit("archive <list>", "Archive a list", 1, func(l *storage.TaskList, _ []string) (string, error) {
		_, err := a.repo.ArchiveList(l.ID, true)
		return "Archived " + l.Title, err
	}))

	cmd.AddCommand(a.listEdit("unarchive <list>", "Restore an archived list", 1, func(l *storage.TaskList, _ []string) (string, error) {
		_, err := a.repo.ArchiveList(l.ID, false)
		return "Restored " + l.Title, err
	}))

	cmd.AddCommand(a.listEdit("sort <list> <manual|by_due_date>", "Choose how a list orders its tasks", 2, func(l *storage.TaskList, args []string) (string, error) {
		order, err := listmeta.ParseSortOrder(args[1])
		if err != nil {
			return "", err
		}
		_, err = a.repo.SetSortOrder(l.ID, order)
		return l.Title + " sorted " + string(order), err
	}))

	cmd.AddCommand(a.listEdit("move <list> <position>", "Move a list to a position (1 = first)", 2, func(l *storage.TaskList, args []string) (string, error) {
		pos, err := parsePosition(args[1])
		if err != nil {
			return "", err
		}
		return "Moved " + l.Title, a.repo.ReorderList(l.ID, pos)
	}))

	var yes bool
	del := &cobra.Command{
		Use:   "delete <list>",
		Short: "Delete a list and all of its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.openRepo(); err != nil {
				return err
			}
			l, err := a.resolveList(args[0])
			if err != nil {
				return err
			}
			prompt := "This deletes the list " + l.Title + " and its " + strconv.Itoa(len(l.Tasks)) + " task(s)."
			if err := a.confirm(prompt, l.Title, yes); err != nil {
				return err
			}
			if err := a.repo.DeleteList(l.ID); err != nil {
				return err
			}
			a.success("Deleted %s", l.Title)
			return nil
		},
	}
	del.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(del)

	var keep bool
	merge := &cobra.Command{
		Use:   "merge <source> <destination>",
		Short: "Move every task of source into destination",
		Long: `Move every task of source to the end of destination, in source order, and
delete source unless --keep-source is given. Nothing is moved when a task
title already exists in destination.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.openRepo(); err != nil {
				return err
			}
			src, err := a.resolveList(args[0])
			if err != nil {
				return err
			}
			dst, err := a.resolveList(args[1])
			if err != nil {
				return err
			}
			merged, err := a.repo.MergeList(src.ID, dst.ID, !keep)
			if err != nil {
				return err
			}
			a.success("Merged %d task(s) into %s", len(src.TaskOrder), merged.Title)
			return nil
		},
	}
	merge.Flags().BoolVar(&keep, "keep-source", false, "keep the emptied source list")
	cmd.AddCommand(merge)

	return cmd
}

// listEdit builds a command whose first argument names a list.
func (a *app) listEdit(use, short string, nargs int, fn func(l *storage.TaskList, args []string) (string, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.openRepo(); err != nil {
				return err
			}
			l, err := a.resolveList(args[0])
			if err != nil {
				return err
			}
			msg, err := fn(l, args)
			if err != nil {
				return err
			}
			a.success("%s", msg)
			return nil
		},
	}
}

// parsePosition converts a 1-based position argument to an index.
func parsePosition(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errs.Errorf(errs.Validation, "position must be a number from 1, got %q", s)
	}
	return n - 1, nil
}
