package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"taskfold/internal/config"
	"taskfold/internal/credentials"
	"taskfold/internal/errs"
	"taskfold/internal/notify"
	tfsync "taskfold/internal/sync"
	"taskfold/internal/ui"
)

// EnvPassword supplies the remote password to 'sync setup' non-interactively.
const EnvPassword = "TASKFOLD_PASSWORD"

func (a *app) syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the workspace with its WebDAV remote",
	}
	cmd.AddCommand(a.syncSetupCmd())

	cmd.AddCommand(&cobra.Command{
		Use:   "pull",
		Short: "Download remote changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd.Context(), "Pull", (*tfsync.Engine).Pull)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "push",
		Short: "Upload local changes, replaying queued operations first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd.Context(), "Push", (*tfsync.Engine).Push)
		},
	})

	var watch bool
	run := &cobra.Command{
		Use:   "run",
		Short: "Pull then push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.runSync(cmd.Context(), "Sync", (*tfsync.Engine).Sync); err != nil && !watch {
				return err
			}
			if !watch {
				return nil
			}
			return a.watch(cmd.Context())
		},
	}
	run.Flags().BoolVar(&watch, "watch", false, "keep running and sync every sync.interval until interrupted")
	cmd.AddCommand(run)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show sync state, queued operations and failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.syncStatus(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <task> <local|remote>",
		Short: "Settle a conflict by keeping one side",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := tfsync.ParseResolution(args[1])
			if err != nil {
				return err
			}
			engine, err := a.openEngine()
			if err != nil {
				return err
			}
			id := args[0]
			if e, err := a.resolveTask(args[0], ""); err == nil {
				id = e.Task.ID
			} else if !errs.Is(err, errs.NotFound) {
				return err
			}
			if err := engine.Resolve(cmd.Context(), id, res); err != nil {
				return err
			}
			a.success("Resolved %s", ui.ShortID(id))
			return nil
		},
	})
	return cmd
}

func (a *app) syncSetupCmd() *cobra.Command {
	var (
		username      string
		passwordStdin bool
		skipCheck     bool
	)
	cmd := &cobra.Command{
		Use:   "setup <url>",
		Short: "Point the workspace at a WebDAV collection",
		Long: `Stores the password in the OS keychain and the remote in the config file.
The password is read from stdin with --password-stdin, or from $` + EnvPassword + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}
			url := strings.TrimSuffix(args[0], "/")
			key, err := credentials.Key(url, username)
			if err != nil {
				return err
			}
			if username == "" {
				username = key[:strings.LastIndex(key, "@")]
			}
			password, err := a.readPassword(passwordStdin)
			if err != nil {
				return err
			}
			remote := &config.RemoteConfig{URL: url, Username: username, CredentialKey: key}

			if !skipCheck {
				tr, err := a.newTransport(remote, password, a.cfg.Sync.RequestTimeout)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Sync.RequestTimeout)
				_, err = tr.List(ctx, "")
				cancel()
				if err != nil {
					return fmt.Errorf("check remote: %w", err)
				}
			}

			if err := a.creds.Set(key, password); err != nil {
				return err
			}
			if err := a.reg.SetRemote(ws.Name, remote); err != nil {
				return err
			}
			a.success("Workspace %s syncs with %s", ws.Name, url)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "remote username (default: from the url)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "do not contact the remote before saving")
	return cmd
}

func (a *app) readPassword(fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(a.in).ReadString('\n')
		if err != nil && line == "" {
			return "", errs.Wrap(errs.Validation, "read password", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	if p := os.Getenv(EnvPassword); p != "" {
		return p, nil
	}
	return "", errs.Errorf(errs.Validation, "no password given; use --password-stdin or set %s", EnvPassword)
}

// runSync runs one engine operation and prints its report. A successful run
// records the sync time in the registry.
func (a *app) runSync(ctx context.Context, name string, op func(*tfsync.Engine, context.Context) (tfsync.Report, error)) error {
	engine, err := a.openEngine()
	if err != nil {
		return err
	}
	rep, err := op(engine, ctx)
	a.printReport(name, rep)
	if err != nil {
		if errors.Is(err, tfsync.ErrConflicted) {
			a.printConflicts(engine.Conflicts())
		}
		return err
	}
	if err := a.reg.RecordSync(a.ws.Name, a.now()); err != nil {
		return err
	}
	a.printf("%s\n", a.styles.SyncState(engine.State().String()))
	return nil
}

func (a *app) printReport(name string, rep tfsync.Report) {
	var parts []string
	add := func(n int, what string) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, what))
		}
	}
	add(rep.Pulled, "pulled")
	add(rep.LocalDeleted, "removed locally")
	add(rep.Pushed, "pushed")
	add(rep.RemoteDeleted, "removed remotely")
	add(rep.Replayed, "replayed")
	add(rep.Queued, "queued")
	add(rep.Skipped, "skipped")
	add(len(rep.Conflicts), "conflicted")
	if len(parts) == 0 {
		parts = append(parts, "up to date")
	}
	a.printf("%s %s\n", a.styles.LabelStyle.Render(name+":"), strings.Join(parts, ", "))

	for _, err := range rep.Errors {
		a.printf("  %s\n", a.styles.WarnStyle.Render(err.Error()))
	}
	for _, d := range rep.DeadLetters {
		a.printf("  %s\n", a.styles.ErrorStyle.Render(fmt.Sprintf("failed: %s %s: %s", d.Kind, d.Path, d.Reason)))
	}
}

func (a *app) printConflicts(cs []tfsync.Conflict) {
	for _, c := range cs {
		a.printf("  %s %s  %s\n", a.styles.WarnStyle.Render("conflict"), c.Path, a.styles.TaskIDStyle.Render(ui.ShortID(c.TaskID)))
	}
	if len(cs) > 0 {
		a.printf("Run 'taskfold sync resolve <task> local|remote' for each.\n")
	}
}

func (a *app) syncStatus(ctx context.Context) error {
	if _, err := a.openRepo(); err != nil {
		return err
	}
	ws := a.ws
	a.printf("%s\n", a.describeWorkspace())
	if !ws.HasRemote() {
		a.printf("%s\n", a.styles.Field("Remote", "none"))
		return nil
	}
	engine, err := a.openEngine()
	if err != nil {
		return err
	}
	st, err := engine.Status(ctx)
	if err != nil {
		return err
	}
	last := "never"
	if ws.LastSync != nil {
		last = ui.FormatTimeAgo(*ws.LastSync, a.now())
	}
	a.printf("%s\n", a.styles.Field("Remote", ws.Remote.URL))
	a.printf("%s\n", a.styles.Field("State", a.styles.SyncState(st.State.String())))
	a.printf("%s\n", a.styles.Field("Last sync", last))
	a.printf("%s\n", a.styles.Field("Queued", fmt.Sprint(len(st.Pending))))
	for _, op := range st.Pending {
		a.printf("  %s %s (retries %d)\n", op.Kind, op.Path, op.RetryCount)
	}
	if len(st.DeadLetters) > 0 {
		a.printf("%s\n", a.styles.Field("Failed", fmt.Sprint(len(st.DeadLetters))))
		for _, d := range st.DeadLetters {
			a.printf("  %s\n", a.styles.ErrorStyle.Render(fmt.Sprintf("%s %s: %s", d.Kind, d.Path, d.Reason)))
		}
	}
	a.printConflicts(st.Conflicts)
	return nil
}

// watch keeps a runner alive until interrupted.
func (a *app) watch(parent context.Context) error {
	if a.cfg.Sync.Interval <= 0 {
		return errs.New(errs.Config, "sync.interval is 0; periodic sync is disabled")
	}
	engine, err := a.openEngine()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	alerts := notify.NewAlerter(a.notifier, a.cfg.Notify)
	r := tfsync.NewRunner(engine, a.cfg.Sync.Debounce, a.cfg.Sync.Interval)
	r.OnResult = func(rep tfsync.Report, err error) {
		a.printReport("Sync", rep)
		if err == nil {
			if rerr := a.reg.RecordSync(a.ws.Name, a.now()); rerr != nil {
				a.logger.Warn("record sync time", "err", rerr)
			}
		}
		st, serr := engine.Status(ctx)
		if serr != nil {
			a.logger.Warn("read sync status", "err", serr)
			return
		}
		if nerr := alerts.SyncResult(ctx, a.ws.Name, len(st.Conflicts), len(st.DeadLetters)); nerr != nil {
			a.logger.Debug("desktop notification", "err", nerr)
		}
	}
	a.printf("Syncing every %s; press Ctrl+C to stop.\n", a.cfg.Sync.Interval)
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
