// Package runner wires one invocation together: resolve the working
// directory, run the preflight gates, then fold the directory listing
// through the cleaner. Metrics and history are written on the way out.
package runner

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"leave/internal/cleanup"
	"leave/internal/config"
	"leave/internal/database"
	"leave/internal/fsops"
	"leave/internal/leaveerr"
	"leave/internal/logging"
	"leave/internal/metrics"
	"leave/internal/safety"
	"leave/internal/scan"
)

// Deps are the collaborators of a run. Only Fs is required.
type Deps struct {
	Fs          afero.Fs
	Deleter     fsops.Deleter // Optional, defaults to deleting through Fs
	Logger      zerolog.Logger
	Reporter    *logging.Reporter
	Protected   []string // Extra directories that must never be pruned
	HistoryPath string   // Optional sqlite history
	MetricsFile string   // Optional node-exporter textfile
	LogFile     string   // Log file opened by the caller; only checked against the working directory
}

// RunFiles lists the files a run with these deps writes outside of pruning
func (d Deps) RunFiles() []safety.RunFile {
	return []safety.RunFile{
		{Name: "history database", Path: d.HistoryPath},
		{Name: "metrics textfile", Path: d.MetricsFile},
		{Name: "log file", Path: d.LogFile},
	}
}

// CheckRunFiles refuses deps whose run files live where the run described by
// opts would prune them. It works on paths alone, so callers can use it
// before opening a log file.
func CheckRunFiles(base string, opts config.Options, deps Deps) error {
	return safety.CheckRunFiles(opts.WorkDir(base), base, opts.Targets, deps.RunFiles())
}

// Result describes a finished run
type Result struct {
	RunID   string
	Config  config.RunConfig
	Outcome cleanup.Outcome
}

// OK reports whether the run removed everything it was supposed to
func (r Result) OK() bool {
	return r.Outcome.OK()
}

type invocation struct {
	res     *Result
	deps    Deps
	logger  zerolog.Logger
	col     *metrics.Collector
	history *database.DeletionDB
}

// Run performs one invocation. base is the absolute directory relative paths
// are resolved against. A non-nil error is a fatal abort and has not been
// reported yet; per-entry failures are reported as they happen and are only
// visible in the returned Outcome.
//
// Nothing is created inside the working directory before the preflight gates
// pass: the history database is opened afterwards, and an aborted run is
// recorded only in a history database that already exists.
func Run(base string, opts config.Options, deps Deps) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString()}
	if deps.Reporter == nil {
		deps.Reporter = logging.NewReporter(io.Discard)
	}
	inv := &invocation{
		res:    &res,
		deps:   deps,
		logger: deps.Logger.With().Str("run_id", res.RunID).Logger(),
	}
	if deps.MetricsFile != "" {
		inv.col = metrics.New()
	}
	defer inv.closeHistory()

	outcome, err := inv.run(base, opts)
	if leaveerr.IsKind(err, leaveerr.KindRunFile) {
		// The run files themselves are misplaced, so none is written
		return res, err
	}

	inv.col.RecordRun(start, outcome)
	if werr := inv.col.WriteTextfile(deps.MetricsFile); werr != nil {
		// Metrics are best effort
		inv.logger.Warn().Err(werr).Str("path", deps.MetricsFile).Msg("Failed to write metrics textfile")
	}

	if inv.history == nil && outcome == metrics.OutcomeAborted && !leaveerr.IsKind(err, leaveerr.KindHistory) {
		inv.openExistingHistory()
	}
	if inv.history != nil {
		rec := database.RunRecord{
			RunID:      res.RunID,
			StartedAt:  start,
			FinishedAt: time.Now(),
			WorkDir:    res.Config.WorkDir,
			Targets:    opts.Targets,
			Recursive:  res.Config.Recursive,
			Dirs:       res.Config.Dirs,
			Force:      res.Config.Force,
			DryRun:     res.Config.DryRun,
			Outcome:    outcome,
			Deleted:    res.Outcome.Deleted,
			Skipped:    res.Outcome.Skipped,
			Failed:     len(res.Outcome.Failures),
		}
		if rec.WorkDir == "" {
			rec.WorkDir = opts.WorkDir(base)
		}
		if rerr := inv.history.RecordRun(rec); rerr != nil {
			inv.logger.Warn().Err(rerr).Msg("Failed to record run to history")
		}
	}

	return res, err
}

// run executes the pipeline and returns the outcome label for reporting
func (inv *invocation) run(base string, opts config.Options) (string, error) {
	deps, logger := inv.deps, inv.logger

	cfg, err := config.Resolve(deps.Fs, base, opts)
	if err != nil {
		return metrics.OutcomeAborted, err
	}
	inv.res.Config = cfg

	if err := safety.CheckRunFiles(cfg.WorkDir, base, cfg.Targets, deps.RunFiles()); err != nil {
		return metrics.OutcomeAborted, err
	}

	logger.Info().
		Str("work_dir", cfg.WorkDir).
		Strs("targets", cfg.Targets).
		Bool("recursive", cfg.Recursive).
		Bool("dirs", cfg.Dirs).
		Bool("force", cfg.Force).
		Bool("dry_run", cfg.DryRun).
		Msg("Starting run")

	validator := safety.NewValidator(deps.Fs, cfg.WorkDir, deps.Protected, deps.Reporter)
	preserve, err := validator.Preflight(cfg.Targets, cfg.Force)
	if err != nil {
		return metrics.OutcomeAborted, err
	}
	logger.Debug().Strs("preserve", preserve.Paths()).Msg("Preflight passed")

	if deps.HistoryPath != "" {
		db, err := database.NewDeletionDB(deps.HistoryPath)
		if err != nil {
			return metrics.OutcomeAborted, leaveerr.New(leaveerr.KindHistory, deps.HistoryPath, err,
				"Can't open history database "+deps.HistoryPath)
		}
		inv.history = db
	}

	scanner, err := scan.Open(deps.Fs, cfg.WorkDir)
	if err != nil {
		return metrics.OutcomeAborted, err
	}
	defer scanner.Close()

	opt := cleanup.Options{
		Fs:       deps.Fs,
		Deleter:  deps.Deleter,
		Preserve: preserve,
		Policy:   cleanup.Policy{Recursive: cfg.Recursive, Dirs: cfg.Dirs},
		DryRun:   cfg.DryRun,
		RunID:    inv.res.RunID,
		Logger:   logger,
		Metrics:  inv.col,
		Reporter: deps.Reporter,
	}
	// A nil *DeletionDB must not end up in the interface
	if inv.history != nil {
		opt.History = inv.history
	}

	inv.res.Outcome = cleanup.NewCleaner(opt).Run(scanner)
	if !inv.res.Outcome.OK() {
		return metrics.OutcomePartialFailure, nil
	}
	return metrics.OutcomeSuccess, nil
}

// openExistingHistory opens the history database for recording an abort,
// unless that would create it
func (inv *invocation) openExistingHistory() {
	path := inv.deps.HistoryPath
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	db, err := database.NewDeletionDB(path)
	if err != nil {
		inv.logger.Warn().Err(err).Str("path", path).Msg("Failed to open history database")
		return
	}
	inv.history = db
}

func (inv *invocation) closeHistory() {
	if inv.history == nil {
		return
	}
	if err := inv.history.Close(); err != nil {
		inv.logger.Warn().Err(err).Msg("Failed to close history database")
	}
}
