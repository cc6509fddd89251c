package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/vault2git/internal/config"
	"github.com/steveyegge/vault2git/internal/journal"
	"github.com/steveyegge/vault2git/internal/logging"
	"github.com/steveyegge/vault2git/internal/migrate"
	"github.com/steveyegge/vault2git/internal/stopfile"
	"github.com/steveyegge/vault2git/internal/ui"
	"github.com/steveyegge/vault2git/internal/vcs"
	"github.com/steveyegge/vault2git/internal/vcs/git"
)

type pullOptions struct {
	limit         int
	restartLimit  int
	branches      []string
	paths         string
	work          string
	skipEmpty     bool
	ignoreLabels  bool
	forceFullGet  bool
	pause         bool
	verbose       bool
	consoleOutput bool
	stopFile      string
	yesFromStart  bool
	looseResume   bool
	logFile       string

	// restartLimitSet is true when --restart-limit was given
	restartLimitSet bool
}

var pullOpts pullOptions

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "migrate",
	Short:   "Migrate new source transactions into git and create tags",
	Long: `Replay every source transaction not yet present on the configured
branches, one commit per transaction, then tag the new commits with
their source labels.

Branch mappings come from convertor.paths ("<sourcePath>~<branch>;...")
or the branches array of the config file; --paths replaces them and
--branch selects a subset.

The run can be stopped between transactions by creating the file given
with --stop-file, or with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pullOpts.restartLimitSet = cmd.Flags().Changed("restart-limit")
		return runPull(cmd, &pullOpts)
	},
}

func init() {
	f := pullCmd.Flags()
	f.IntVar(&pullOpts.limit, "limit", 0, "max transactions per branch (0 = unbounded)")
	f.IntVar(&pullOpts.restartLimit, "restart-limit", 20, "commits to search back for the last migrated revision (negative = start from the first revision)")
	f.StringSliceVar(&pullOpts.branches, "branch", nil, "migrate only these configured branches (repeatable)")
	f.StringVar(&pullOpts.paths, "paths", "", `branch mappings "<sourcePath>~<branch>;..." replacing the configured ones`)
	f.StringVar(&pullOpts.work, "work", "", "git working tree (default: convertor.working_folder)")
	f.BoolVar(&pullOpts.skipEmpty, "skip-empty-commits", false, "do not commit transactions that change nothing")
	f.BoolVar(&pullOpts.ignoreLabels, "ignore-labels", false, "do not create tags from labels")
	f.BoolVar(&pullOpts.forceFullGet, "force-full-folder-get", false, "always fetch the whole source path instead of per-file changes")
	f.BoolVar(&pullOpts.pause, "pause", false, "ask before each commit")
	f.BoolVarP(&pullOpts.verbose, "verbose", "v", false, "log every file operation and command")
	f.BoolVar(&pullOpts.consoleOutput, "console-output", false, "print timing of every step")
	f.StringVar(&pullOpts.stopFile, "stop-file", "", "stop between transactions once this file exists")
	f.BoolVarP(&pullOpts.yesFromStart, "yes-from-start", "y", false, "migrate from the first revision when no restart point is found")
	f.BoolVar(&pullOpts.looseResume, "loose-resume", false, "accept restart points recorded for any source path")
	f.StringVar(&pullOpts.logFile, "log-file", "", "also write logs to this rotating file (default: log.file)")

	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, o *pullOptions) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logFile := o.logFile
	if logFile == "" {
		logFile = settings.Log.File
	}
	logs := logging.New(logging.Options{
		File:       logFile,
		MaxSizeMB:  settings.Log.MaxSizeMB,
		MaxBackups: settings.Log.MaxBackups,
		MaxAgeDays: settings.Log.MaxAgeDays,
		Compress:   settings.Log.Compress,
		Stderr:     cmd.ErrOrStderr(),
	})
	defer logs.Close()
	ui.InitColor(os.Stdout)

	mc, err := migrationConfig(settings, o, time.Now())
	if err != nil {
		return err
	}
	mc.Logger = logs.Logger("migrate")

	prompter := ui.NewPrompter()
	if o.pause && !prompter.Interactive {
		return fmt.Errorf("--pause needs an interactive terminal")
	}
	mc.Operator = prompter

	runner, err := vcs.NewRunner(vcs.RunnerConfig{
		Command: settings.Git.Cmd,
		Dir:     mc.WorkDir,
		Logger:  logs.Logger("git"),
		Verbose: o.verbose,
	})
	if err != nil {
		return err
	}
	g, err := git.New(mc.WorkDir, runner)
	if err != nil {
		return fmt.Errorf("%s: %w", mc.WorkDir, err)
	}
	version, err := g.Version(ctx)
	if err != nil {
		return err
	}
	if err := git.CheckVersion(version, git.MinVersion); err != nil {
		return err
	}

	src, err := openSource(settings, logs, o.verbose)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var progress []migrate.ProgressFunc
	if o.consoleOutput {
		progress = append(progress, ui.NewPrinter(out).Report)
	}

	var rec *runRecorder
	if settings.Journal.Path != "" {
		rec, err = startRecorder(ctx, settings, mc, logs.Logger("journal"))
		if err != nil {
			return err
		}
		defer rec.close()
		progress = append(progress, rec.record)
	}

	var stop *stopfile.Watcher
	if o.stopFile != "" {
		stop, err = watchStopFile(o.stopFile, logs.Logger("stop"))
		if err != nil {
			return err
		}
		defer stop.Stop()
		progress = append(progress, func(marker int64, elapsed time.Duration) bool {
			return stop.Requested()
		})
		mc.Keep = appendKeep(mc.Keep, mc.WorkDir, stop.Path())
	}
	mc.Keep = appendKeep(mc.Keep, mc.WorkDir, settings.File)

	mc.Progress = ui.Chain(progress...)

	m, err := migrate.New(g, src, mc)
	if err != nil {
		return err
	}

	summary, runErr := m.Run(ctx)
	if rec != nil {
		rec.finish(summary, runErr)
	}
	if stop != nil {
		clearStopFile(stop, summary, logs.Logger("stop"))
	}
	printSummary(out, summary, runErr)
	return runErr
}

// watchStopFile removes a stop file left behind by an earlier run and
// starts watching for a new one. Watcher errors and the stop request
// are logged until the watcher is stopped.
func watchStopFile(path string, logger *log.Logger) (*stopfile.Watcher, error) {
	w, err := stopfile.New(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(w.Path()); err == nil {
		if err := w.Remove(); err != nil {
			return nil, fmt.Errorf("cannot remove stale stop file: %w", err)
		}
		logger.Printf("Removed stale stop file %s", w.Path())
	}
	if err := w.Start(); err != nil {
		return nil, err
	}

	go func() {
		stopped := w.Stopped()
		for {
			select {
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				logger.Printf("Warning: %v", err)
			case <-stopped:
				logger.Printf("Stop requested through %s, stopping after the current transaction", w.Path())
				stopped = nil
			}
		}
	}()
	return w, nil
}

// clearStopFile deletes the stop file once a run has honored it, so
// the next run starts normally.
func clearStopFile(w *stopfile.Watcher, s *migrate.Summary, logger *log.Logger) {
	if s == nil || !s.Stopped {
		return
	}
	if err := w.Remove(); err != nil {
		logger.Printf("Warning: cannot remove stop file: %v", err)
	}
}

// migrationConfig merges settings and flags into an engine config.
func migrationConfig(s *config.Settings, o *pullOptions, now time.Time) (migrate.Config, error) {
	mc := migrate.DefaultConfig()
	mc.Login = s.Login()
	mc.DomainName = s.Git.DomainName
	if s.Git.GCInterval > 0 {
		mc.GCInterval = s.Git.GCInterval
	}

	var err error
	if o.paths != "" {
		mc.Branches, err = migrate.ParsePaths(o.paths)
	} else {
		mc.Branches, err = s.Mappings()
	}
	if err != nil {
		return mc, err
	}
	if len(mc.Branches) == 0 {
		return mc, fmt.Errorf("no branches configured: set convertor.paths or use --paths")
	}
	if mc.Branches, err = migrate.Select(mc.Branches, o.branches); err != nil {
		return mc, err
	}

	work := o.work
	if work == "" {
		work = s.Convertor.WorkingFolder
	}
	if mc.WorkDir, err = filepath.Abs(work); err != nil {
		return mc, err
	}

	if mc.From, mc.To, err = s.Window(now); err != nil {
		return mc, err
	}

	mc.Limit = s.Convertor.Limit
	if o.limit > 0 {
		mc.Limit = o.limit
	}

	mc.RestartLimit = s.Convertor.RestartLimit
	if o.restartLimitSet {
		mc.RestartLimit = o.restartLimit
	}
	if mc.RestartLimit == 0 {
		mc.RestartLimit = migrate.DefaultConfig().RestartLimit
	}

	mc.Keep = append(mc.Keep, s.Convertor.Keep...)
	mc.SkipEmptyCommits = o.skipEmpty
	mc.IgnoreLabels = o.ignoreLabels
	mc.ForceFullFolderGet = o.forceFullGet
	mc.Pause = o.pause
	mc.AssumeFromStart = o.yesFromStart
	mc.LooseResume = o.looseResume
	mc.Verbose = o.verbose
	return mc, nil
}

// appendKeep adds the top-level name of path to keep when path lies
// directly in workDir, so a wipe leaves it alone.
func appendKeep(keep []string, workDir, path string) []string {
	if path == "" {
		return keep
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return keep
	}
	rel, err := filepath.Rel(workDir, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return keep
	}
	top := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	for _, k := range keep {
		if strings.EqualFold(k, top) {
			return keep
		}
	}
	return append(keep, top)
}

func branchList(ms []migrate.BranchMapping) string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Branch
	}
	return strings.Join(names, ",")
}

func printSummary(w io.Writer, s *migrate.Summary, runErr error) {
	if s == nil {
		return
	}

	fmt.Fprintln(w)
	for _, b := range s.Branches {
		status := fmt.Sprintf("%d of %d transactions, %d commits", b.Processed, b.Pending, b.Committed)
		if b.ResumedAfter > 0 {
			status += fmt.Sprintf(", resumed after revision %d", b.ResumedAfter)
		}
		fmt.Fprintf(w, "   %s %s: %s\n", ui.RenderHeader(b.Branch), ui.RenderMuted(b.Path), status)
	}

	switch {
	case runErr != nil:
		fmt.Fprintf(w, "%s Migration failed after %d commits\n", ui.RenderFail("✗"), s.Commits())
	case s.Stopped:
		fmt.Fprintf(w, "%s Stopped on request after %d commits\n", ui.RenderWarn("⚠"), s.Commits())
	default:
		fmt.Fprintf(w, "%s Migration complete: %d commits, %d tags\n", ui.RenderPass("✓"), s.Commits(), s.Tags)
	}
}

// runRecorder journals one pull run.
type runRecorder struct {
	db     *journal.DB
	runID  string
	logger *log.Logger
}

func startRecorder(ctx context.Context, s *config.Settings, mc migrate.Config, logger *log.Logger) (*runRecorder, error) {
	db, err := journal.Open(s.Journal.Path)
	if err != nil {
		return nil, err
	}
	id, err := db.StartRun(ctx, s.File, branchList(mc.Branches))
	if err != nil {
		db.Close()
		return nil, err
	}
	return &runRecorder{db: db, runID: id, logger: logger}, nil
}

func (r *runRecorder) record(marker int64, elapsed time.Duration) bool {
	if err := r.db.Record(context.Background(), r.runID, marker, elapsed); err != nil {
		r.logger.Printf("Warning: %v", err)
	}
	return false
}

func (r *runRecorder) finish(s *migrate.Summary, runErr error) {
	status := journal.StatusCompleted
	switch {
	case runErr != nil:
		status = journal.StatusFailed
	case s != nil && s.Stopped:
		status = journal.StatusStopped
	}

	commits, tags := 0, 0
	if s != nil {
		commits, tags = s.Commits(), s.Tags
	}
	if err := r.db.FinishRun(context.Background(), r.runID, status, commits, tags, runErr); err != nil {
		r.logger.Printf("Warning: %v", err)
	}
}

func (r *runRecorder) close() {
	if err := r.db.Close(); err != nil {
		r.logger.Printf("Warning: %v", err)
	}
}
