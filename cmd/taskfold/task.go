package main

import (
	"time"

	"github.com/spf13/cobra"

	"taskfold/internal/errs"
	"taskfold/internal/storage"
	"taskfold/internal/task"
)

func (a *app) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"t"},
		Short:   "Manage tasks",
	}

	var (
		addList, addNotes, addDue, addParent string
	)
	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task to a list (default: last opened)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			l, err := a.defaultList(addList)
			if err != nil {
				return err
			}
			in := storage.TaskInput{Title: args[0], Notes: addNotes}
			if addDue != "" {
				due, err := parseDue(addDue)
				if err != nil {
					return err
				}
				in.DueDate = &due
			}
			if addParent != "" {
				parent, err := a.resolveTask(addParent, "")
				if err != nil {
					return err
				}
				in.ParentID = parent.Task.ID
			}
			t, err := repo.CreateTask(l.ID, in)
			if err != nil {
				return err
			}
			a.success("Added %s to %s", t.Title, l.Title)
			return nil
		},
	}
	add.Flags().StringVarP(&addList, "list", "l", "", "list to add to")
	add.Flags().StringVar(&addNotes, "notes", "", "task notes")
	add.Flags().StringVar(&addDue, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	add.Flags().StringVar(&addParent, "parent", "", "parent task for a subtask")
	cmd.AddCommand(add)

	cmd.AddCommand(a.taskEdit("complete <task>", "Mark a task completed", 1, func(_ *cobra.Command, e storage.Entry, _ []string) (string, error) {
		_, err := a.repo.CompleteTask(e.Task.ID)
		return "Completed " + e.Task.Title, err
	}))

	cmd.AddCommand(a.taskEdit("uncomplete <task>", "Move a completed task back to the backlog", 1, func(_ *cobra.Command, e storage.Entry, _ []string) (string, error) {
		_, err := a.repo.UncompleteTask(e.Task.ID)
		return "Reopened " + e.Task.Title, err
	}))

	cmd.AddCommand(a.taskEdit("delete <task>", "Delete a task", 1, func(_ *cobra.Command, e storage.Entry, _ []string) (string, error) {
		return "Deleted " + e.Task.Title, a.repo.DeleteTask(e.Task.ID)
	}))

	cmd.AddCommand(a.taskEdit("move <task> <list>", "Move a task to another list", 2, func(_ *cobra.Command, e storage.Entry, args []string) (string, error) {
		dst, err := a.resolveList(args[1])
		if err != nil {
			return "", err
		}
		if _, err := a.repo.MoveTask(e.Task.ID, dst.ID); err != nil {
			return "", err
		}
		return "Moved " + e.Task.Title + " to " + dst.Title, nil
	}))

	cmd.AddCommand(a.taskEdit("reorder <task> <position>", "Move a task to a position in its list (1 = first)", 2, func(_ *cobra.Command, e storage.Entry, args []string) (string, error) {
		pos, err := parsePosition(args[1])
		if err != nil {
			return "", err
		}
		return "Moved " + e.Task.Title + " to position " + args[1], a.repo.ReorderTask(e.Task.ID, pos)
	}))

	cmd.AddCommand(a.taskEditCmd())
	return cmd
}

func (a *app) taskEditCmd() *cobra.Command {
	var (
		title, notes, status, due, parent string
		clearDue, noParent                bool
	)
	edit := a.taskEdit("edit <task>", "Change a task's title, notes, status, due date or parent", 1, func(cmd *cobra.Command, e storage.Entry, _ []string) (string, error) {
		var u storage.TaskUpdate
		changed := false
		flags := cmd.Flags().Changed
		if flags("title") {
			u.Title, changed = &title, true
		}
		if flags("notes") {
			u.Notes, changed = &notes, true
		}
		if flags("status") {
			s, err := task.ParseStatus(status)
			if err != nil {
				return "", err
			}
			u.Status, changed = &s, true
		}
		if flags("due") {
			d, err := parseDue(due)
			if err != nil {
				return "", err
			}
			u.DueDate, changed = &d, true
		}
		if clearDue {
			u.ClearDue, changed = true, true
		}
		if flags("parent") {
			p, err := a.resolveTask(parent, "")
			if err != nil {
				return "", err
			}
			u.ParentID, changed = &p.Task.ID, true
		}
		if noParent {
			empty := ""
			u.ParentID, changed = &empty, true
		}
		if !changed {
			return "", errs.New(errs.Validation, "nothing to change; pass --title, --notes, --status, --due, --clear-due, --parent or --no-parent")
		}
		t, err := a.repo.UpdateTask(e.Task.ID, u)
		if err != nil {
			return "", err
		}
		return "Updated " + t.Title, nil
	})
	edit.Flags().StringVar(&title, "title", "", "new title (renames the file)")
	edit.Flags().StringVar(&notes, "notes", "", "new notes")
	edit.Flags().StringVar(&status, "status", "", "backlog or completed")
	edit.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD or RFC 3339)")
	edit.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	edit.Flags().StringVar(&parent, "parent", "", "make this a subtask of another task")
	edit.Flags().BoolVar(&noParent, "no-parent", false, "detach from the parent task")
	edit.MarkFlagsMutuallyExclusive("due", "clear-due")
	edit.MarkFlagsMutuallyExclusive("parent", "no-parent")
	return edit
}

// taskEdit builds a command whose first argument names a task. The --list
// flag narrows title lookups to one list.
func (a *app) taskEdit(use, short string, nargs int, fn func(cmd *cobra.Command, e storage.Entry, args []string) (string, error)) *cobra.Command {
	var list string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(nargs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.openRepo(); err != nil {
				return err
			}
			e, err := a.resolveTask(args[0], list)
			if err != nil {
				return err
			}
			msg, err := fn(cmd, e, args)
			if err != nil {
				return err
			}
			a.success("%s", msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&list, "list", "l", "", "list to look the task up in")
	return cmd
}

// parseDue reads a due date flag.
func parseDue(s string) (time.Time, error) {
	t, err := task.ParseTimestamp(s)
	if err != nil {
		return time.Time{}, errs.Wrap(errs.Validation, "due date", err)
	}
	return t, nil
}
