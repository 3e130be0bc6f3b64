package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"taskfold/internal/config"
	"taskfold/internal/storage"
	"taskfold/internal/ui"
	"taskfold/internal/workspace"
)

func (a *app) initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a workspace (or initialize the current one)",
		Long: `Create a workspace rooted at path and register it. The first workspace
becomes current. Without a path, the current workspace is initialized in place.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				ws, err := a.workspace()
				if err != nil {
					return err
				}
				return a.initWorkspace(ws)
			}
			if name == "" {
				name = filepath.Base(config.ExpandPath(args[0]))
			}
			ws, err := a.reg.Add(name, config.ExpandPath(args[0]))
			if err != nil {
				return err
			}
			return a.initWorkspace(ws)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "workspace name (default: folder name)")
	return cmd
}

func (a *app) initWorkspace(ws workspace.Workspace) error {
	repo, err := storage.Init(ws)
	if err != nil {
		return err
	}
	lists, err := repo.Lists()
	if err != nil {
		return err
	}
	a.success("Workspace %s ready at %s (%d list(s))", ws.Name, ws.Root, len(lists))
	return nil
}

func (a *app) workspaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workspace",
		Aliases: []string{"ws"},
		Short:   "Manage workspaces",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <path>",
		Short: "Register and initialize a workspace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.reg.Add(args[0], config.ExpandPath(args[1]))
			if err != nil {
				return err
			}
			return a.initWorkspace(ws)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := a.reg.List()
			if len(entries) == 0 {
				a.printf("No workspaces. Run 'taskfold init <path>' to create one.\n")
				return nil
			}
			for _, e := range entries {
				marker := "  "
				name := e.Name
				if e.Current {
					marker = a.styles.CurrentStyle.Render("* ")
					name = a.styles.CurrentStyle.Render(name)
				}
				line := marker + name + "  " + a.styles.LabelStyle.Render(e.Root)
				if e.HasRemote() {
					line += "  " + a.styles.LabelStyle.Render("⇄ "+e.Remote.URL)
				}
				a.printf("%s\n", line)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "switch <name>",
		Short: "Make a workspace current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.reg.Switch(args[0]); err != nil {
				return err
			}
			a.success("Switched to %s", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retarget <name> <path>",
		Short: "Point a workspace at a folder it was moved to",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.reg.Retarget(args[0], config.ExpandPath(args[1])); err != nil {
				return err
			}
			ws, err := a.reg.Get(args[0])
			if err != nil {
				return err
			}
			a.success("%s now at %s", ws.Name, ws.Root)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate <name> <path>",
		Short: "Copy a workspace to a new folder and switch to the copy",
		Long: `Copy every file of the workspace to path, verify the copy, and point the
registry at it. The original folder is left in place.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.reg.Migrate(args[0], config.ExpandPath(args[1]))
			if err != nil {
				return err
			}
			a.success("Copied %d file(s) to %s", res.Files, res.NewPath)
			a.printf("The original folder %s was kept; delete it when you no longer need it.\n", res.OldPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Forget a workspace, keeping its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.reg.Get(args[0])
			if err != nil {
				return err
			}
			if err := a.reg.Remove(args[0]); err != nil {
				return err
			}
			a.success("Removed %s (files kept at %s)", ws.Name, ws.Root)
			return nil
		},
	})

	var yes bool
	destroy := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Forget a workspace and delete all of its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.reg.Get(args[0])
			if err != nil {
				return err
			}
			prompt := "This deletes " + ws.Root + " and every task in it."
			if err := a.confirm(prompt, ws.Name, yes); err != nil {
				return err
			}
			if err := a.reg.Destroy(ws.Name); err != nil {
				return err
			}
			a.success("Destroyed %s", ws.Name)
			return nil
		},
	}
	destroy.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(destroy)

	return cmd
}

// describeWorkspace renders the header shown above list output.
func (a *app) describeWorkspace() string {
	title := a.styles.HeaderStyle.Render(a.ws.Name)
	if a.ws.LastSync != nil {
		title += " " + a.styles.LabelStyle.Render("synced "+ui.FormatTimeAgo(*a.ws.LastSync, a.now()))
	}
	return strings.TrimSpace(title)
}
