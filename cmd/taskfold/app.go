package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"taskfold/internal/config"
	"taskfold/internal/credentials"
	"taskfold/internal/errs"
	"taskfold/internal/notify"
	"taskfold/internal/storage"
	tfsync "taskfold/internal/sync"
	"taskfold/internal/syncstate"
	"taskfold/internal/transport"
	"taskfold/internal/ui"
	"taskfold/internal/workspace"
)

// flushTimeout bounds the push of buffered changes before exit.
const flushTimeout = 30 * time.Second

// app carries the state of one command invocation.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// Injected collaborators; tests replace them.
	creds        credentials.Store
	notifier     notify.Notifier
	newTransport func(remote *config.RemoteConfig, secret string, timeout time.Duration) (transport.Transport, error)
	now          func() time.Time

	// Flags
	workspaceFlag string
	verbose       bool
	noColor       bool

	cfg    *config.Config
	reg    *workspace.Registry
	styles *ui.Styles
	logger *slog.Logger

	// Opened lazily by commands that need them.
	ws     workspace.Workspace
	repo   *storage.Repository
	state  *syncstate.Store
	engine *tfsync.Engine
	runner *tfsync.Runner
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		in:       in,
		out:      out,
		errOut:   errOut,
		creds:    credentials.NewKeyring(),
		notifier: notify.New(),
		newTransport: func(remote *config.RemoteConfig, secret string, timeout time.Duration) (transport.Transport, error) {
			return transport.NewWebDAV(remote.URL, remote.Username, secret, timeout)
		},
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
}

// execute runs the command line and releases everything the command opened,
// pushing buffered changes first.
func (a *app) execute(args []string) error {
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	err := root.Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "taskfold",
		Short:   "Plain-text task lists with WebDAV sync",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		Long: `taskfold keeps tasks as markdown files in a folder per list, inside one or
more workspaces, and optionally keeps each workspace in sync with a WebDAV
collection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.workspaceFlag, "workspace", "w", "", "workspace to operate on (default: current)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(a.initCmd())
	root.AddCommand(a.workspaceCmd())
	root.AddCommand(a.listCmd())
	root.AddCommand(a.taskCmd())
	root.AddCommand(a.syncCmd())
	root.AddCommand(a.backupCmd())
	root.AddCommand(a.importCmd())
	root.AddCommand(a.reportCmd())
	return root
}

// setup loads the configuration and builds the logger and styles.
func (a *app) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.reg = workspace.NewRegistry(cfg)

	level := slog.LevelWarn
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return errs.Errorf(errs.Config, "log.level: unknown level %q", cfg.Log.Level)
	}
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level}))

	if a.noColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	a.styles = ui.NewStyles(cfg)
	return nil
}

// workspace resolves the --workspace flag or the current workspace.
func (a *app) workspace() (workspace.Workspace, error) {
	if a.workspaceFlag != "" {
		return a.reg.Get(a.workspaceFlag)
	}
	return a.reg.Current()
}

// openRepo opens the repository of the selected workspace. When the
// workspace has a remote and push_on_change is set, local changes are pushed
// before the command exits.
func (a *app) openRepo() (*storage.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	ws, err := a.workspace()
	if err != nil {
		return nil, err
	}
	repo, err := storage.Open(ws)
	if err != nil {
		return nil, err
	}
	repo.SetLogger(a.logger.With("workspace", ws.Name))
	a.ws, a.repo = ws, repo

	if ws.HasRemote() && a.cfg.Sync.PushOnChange {
		engine, err := a.openEngine()
		if err != nil {
			// Local edits never depend on the remote.
			a.logger.Warn("sync disabled for this command", "err", err)
			return repo, nil
		}
		a.runner = tfsync.NewRunner(engine, a.cfg.Sync.Debounce, a.cfg.Sync.Interval)
		repo.SetOnChange(a.runner.OnChange)
	}
	return repo, nil
}

// openEngine builds the sync engine for the opened workspace.
func (a *app) openEngine() (*tfsync.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	if a.repo == nil {
		if _, err := a.openRepo(); err != nil {
			return nil, err
		}
		if a.engine != nil {
			return a.engine, nil
		}
	}
	if !a.ws.HasRemote() {
		return nil, errs.Errorf(errs.Config, "workspace %q has no remote; run 'taskfold sync setup'", a.ws.Name)
	}
	remote := a.ws.Remote
	key := remote.CredentialKey
	if key == "" {
		var err error
		if key, err = credentials.Key(remote.URL, remote.Username); err != nil {
			return nil, err
		}
	}
	secret, err := a.creds.Get(key)
	if err != nil {
		return nil, fmt.Errorf("credentials for %s: %w", key, err)
	}
	tr, err := a.newTransport(remote, secret, a.cfg.Sync.RequestTimeout)
	if err != nil {
		return nil, err
	}
	state, err := syncstate.OpenWorkspace(a.ws.Root)
	if err != nil {
		return nil, err
	}
	opts := tfsync.OptionsFromConfig(a.cfg.Sync)
	opts.Logger = a.logger.With("workspace", a.ws.Name, "component", "sync")
	a.state = state
	a.engine = tfsync.New(a.repo, tr, state, opts)
	return a.engine, nil
}

// close flushes pending background pushes and closes the state store.
func (a *app) close() error {
	var err error
	if a.runner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		if ferr := a.runner.Flush(ctx); ferr != nil {
			// The change is saved locally and will go out with the next sync.
			fmt.Fprintf(a.errOut, "Warning: sync push failed: %v\n", ferr)
		}
		cancel()
		a.runner = nil
	}
	if a.state != nil {
		err = a.state.Close()
		a.state = nil
	}
	a.engine, a.repo = nil, nil
	return err
}

// confirm asks the user to type expected unless yes is set.
func (a *app) confirm(prompt, expected string, yes bool) error {
	if yes {
		return nil
	}
	ok, err := ui.Confirm(prompt, expected, a.styles, a.in, a.out)
	if err != nil {
		return err
	}
	if !ok {
		return errs.New(errs.Validation, "canceled")
	}
	return nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) success(format string, args ...any) {
	fmt.Fprintln(a.out, a.styles.StatusStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// ============================================================================
// Reference resolution
// ============================================================================

// minPrefix is the shortest id prefix accepted as a reference.
const minPrefix = 4

// resolveList finds a list by title (case-insensitive) or id prefix.
func (a *app) resolveList(ref string) (*storage.TaskList, error) {
	l, err := a.repo.FindListByTitle(ref)
	if err == nil || !errs.Is(err, errs.NotFound) {
		return l, err
	}
	lists, err := a.repo.Lists()
	if err != nil {
		return nil, err
	}
	var match *storage.TaskList
	if len(ref) >= minPrefix {
		for i := range lists {
			if strings.HasPrefix(lists[i].ID, ref) {
				if match != nil {
					return nil, errs.Errorf(errs.Validation, "list reference %q is ambiguous", ref)
				}
				match = &lists[i]
			}
		}
	}
	if match == nil {
		return nil, errs.Errorf(errs.NotFound, "list %q not found", ref)
	}
	return match, nil
}

// defaultList returns the list named by the --list flag, the last opened
// list, or the first list.
func (a *app) defaultList(ref string) (*storage.TaskList, error) {
	if ref != "" {
		return a.resolveList(ref)
	}
	id, err := a.repo.LastOpenedList()
	if err != nil {
		return nil, err
	}
	if id != "" {
		if l, err := a.repo.GetList(id); err == nil {
			return l, nil
		}
	}
	lists, err := a.repo.Lists()
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, errs.New(errs.NotFound, "workspace has no lists; run 'taskfold list create'")
	}
	return &lists[0], nil
}

// resolveTask finds a task by id prefix, or by title within listRef (or the
// whole workspace when listRef is empty).
func (a *app) resolveTask(ref, listRef string) (storage.Entry, error) {
	entries, err := a.repo.Snapshot()
	if err != nil {
		return storage.Entry{}, err
	}
	if listRef != "" {
		l, err := a.resolveList(listRef)
		if err != nil {
			return storage.Entry{}, err
		}
		kept := entries[:0]
		for _, e := range entries {
			if e.ListID == l.ID {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	var byID, byTitle []storage.Entry
	for _, e := range entries {
		if e.Task.ID == ref || (len(ref) >= minPrefix && strings.HasPrefix(e.Task.ID, ref)) {
			byID = append(byID, e)
		}
		if strings.EqualFold(e.Task.Title, ref) {
			byTitle = append(byTitle, e)
		}
	}
	for _, matches := range [][]storage.Entry{byID, byTitle} {
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return storage.Entry{}, errs.Errorf(errs.Validation, "task reference %q is ambiguous; use the id or --list", ref)
		}
	}
	return storage.Entry{}, errs.Errorf(errs.NotFound, "task %q not found", ref)
}
