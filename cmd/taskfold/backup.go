package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskfold/internal/backup"
	"taskfold/internal/errs"
	"taskfold/internal/syncstate"
	"taskfold/internal/ui"
)

func (a *app) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot and restore the lists of a workspace",
		Long: `Backups are full copies of the workspace lists kept under .backups inside
the workspace. They are never synced. Sync state is not part of a backup.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a backup now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.backups()
			if err != nil {
				return err
			}
			name, err := m.Create()
			if err != nil {
				return err
			}
			info, err := m.GetBackup(name)
			if err != nil {
				return err
			}
			a.success("Backup %s created (%s)", name, backupStats(info))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List backups, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.backups()
			if err != nil {
				return err
			}
			infos, err := m.List()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				a.printf("No backups. Run 'taskfold backup create'.\n")
				return nil
			}
			now := a.now()
			for _, info := range infos {
				a.printf("%s  %s  %s\n", info.Name,
					a.styles.LabelStyle.Render(ui.FormatTimeAgo(info.CreatedAt, now)),
					a.styles.LabelStyle.Render(backupStats(&info)))
			}
			return nil
		},
	})

	var latest, yes bool
	restore := &cobra.Command{
		Use:   "restore [name]",
		Short: "Replace the workspace lists with a backup",
		Long: `Restore replaces every list of the workspace with the contents of a backup.
A safety backup of the current state is taken first. After a restore the next
sync compares every task afresh.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if latest == (len(args) == 1) {
				return errs.New(errs.Validation, "give a backup name or --latest")
			}
			m, err := a.backups()
			if err != nil {
				return err
			}
			name := ""
			if latest {
				infos, err := m.List()
				if err != nil {
					return err
				}
				if len(infos) > 0 {
					name = infos[0].Name
				}
			} else {
				name = args[0]
			}
			if name != "" {
				if _, err := m.GetBackup(name); err != nil {
					return err
				}
				if err := a.confirm(fmt.Sprintf("Replace all lists in %s with backup %s?", a.ws.Name, name), "restore", yes); err != nil {
					return err
				}
			}

			var safety string
			if latest {
				safety, err = m.RestoreLatest()
			} else {
				safety, err = m.Restore(name)
			}
			if err != nil {
				return err
			}
			if err := a.resetSyncCursors(cmd.Context()); err != nil {
				return err
			}
			a.success("Restored %s (previous state saved as %s)", name, safety)
			return nil
		},
	}
	restore.Flags().BoolVar(&latest, "latest", false, "restore the newest backup")
	restore.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.AddCommand(restore)

	cmd.AddCommand(&cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a backup",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.backups()
			if err != nil {
				return err
			}
			if err := m.Delete(args[0]); err != nil {
				return err
			}
			a.success("Deleted backup %s", args[0])
			return nil
		},
	})

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.backups()
			if err != nil {
				return err
			}
			n, err := m.Prune(keep)
			if err != nil {
				return err
			}
			a.success("Pruned %d backup(s), kept %d", n, keep)
			return nil
		},
	}
	prune.Flags().IntVar(&keep, "keep", 5, "number of backups to keep")
	cmd.AddCommand(prune)

	return cmd
}

// backups returns the backup manager of the selected workspace.
func (a *app) backups() (*backup.Manager, error) {
	ws, err := a.workspace()
	if err != nil {
		return nil, err
	}
	a.ws = ws
	m := backup.NewManager(ws.Root, version)
	m.SetNowFunc(a.now)
	return m, nil
}

// resetSyncCursors forgets what the remote was last known to hold, so a
// restored task is neither mistaken for a local edit nor for a remote one.
func (a *app) resetSyncCursors(ctx context.Context) error {
	if _, err := os.Stat(syncstate.Path(a.ws.Root)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	st, err := syncstate.OpenWorkspace(a.ws.Root)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.ResetCursors(ctx)
}

func backupStats(info *backup.BackupInfo) string {
	return fmt.Sprintf("%d list(s), %d task(s)", info.Stats["lists"], info.Stats["tasks"])
}
