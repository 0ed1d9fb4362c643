package cleanup

import (
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"leave/internal/database"
	"leave/internal/disk"
	"leave/internal/fsops"
	"leave/internal/leaveerr"
	"leave/internal/metrics"
	"leave/internal/safety"
	"leave/internal/scan"
)

// Skip reasons
const (
	ReasonPreserved = "preserved"
	ReasonVanished  = "vanished"
	ReasonDryRun    = "dry_run"
)

// Policy decides what happens to directory entries
type Policy struct {
	Recursive bool // Remove directories with everything below them
	Dirs      bool // Remove directories only when empty
}

// Source yields entries until io.EOF. *scan.Scanner is the production source.
type Source interface {
	Next() (scan.Entry, error)
}

// Recorder stores what happened to each entry. *database.DeletionDB implements it.
type Recorder interface {
	RecordDeletion(runID, action string, entry scan.Entry, reason, errorMsg string) error
}

// ErrorReporter prints per-entry failures as they happen
type ErrorReporter interface {
	Error(err error)
}

// Failure is one entry that could not be removed
type Failure struct {
	Path string
	Err  error
}

// Outcome is the result of folding every entry of the working directory
type Outcome struct {
	Deleted    int // Removed, or would be removed in a dry run
	Skipped    int
	BytesFreed int64
	Failures   []Failure // In processing order
}

// OK reports whether every entry was handled without failure
func (o Outcome) OK() bool {
	return len(o.Failures) == 0
}

// Err joins all failures, or returns nil when there were none
func (o Outcome) Err() error {
	if o.OK() {
		return nil
	}
	errs := make([]error, len(o.Failures))
	for i, f := range o.Failures {
		errs[i] = f.Err
	}
	return errors.Join(errs...)
}

// Options configures a Cleaner. Only Fs and Preserve are required.
type Options struct {
	Fs       afero.Fs
	Deleter  fsops.Deleter // Defaults to an FsDeleter on Fs
	Preserve safety.PreserveSet
	Policy   Policy
	DryRun   bool
	RunID    string
	Logger   zerolog.Logger
	Metrics  *metrics.Collector
	History  Recorder
	Reporter ErrorReporter
}

// Cleaner removes every entry that is not preserved, continuing past
// per-entry failures. It never retries and never rolls back.
type Cleaner struct {
	fs       afero.Fs
	deleter  fsops.Deleter
	preserve safety.PreserveSet
	policy   Policy
	dryRun   bool
	runID    string
	logger   zerolog.Logger
	metrics  *metrics.Collector
	history  Recorder
	reporter ErrorReporter

	// measureTrees sizes directories before recursive removal so that
	// metrics and history account for what was freed
	measureTrees bool
}

// NewCleaner creates a new Cleaner instance
func NewCleaner(opts Options) *Cleaner {
	deleter := opts.Deleter
	if deleter == nil {
		deleter = fsops.FsDeleter{Fs: opts.Fs}
	}
	return &Cleaner{
		fs:       opts.Fs,
		deleter:  deleter,
		preserve: opts.Preserve,
		policy:   opts.Policy,
		dryRun:   opts.DryRun,
		runID:    opts.RunID,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		history:  opts.History,
		reporter: opts.Reporter,

		measureTrees: opts.Metrics != nil || opts.History != nil,
	}
}

// Run processes entries from src until it is exhausted
func (c *Cleaner) Run(src Source) Outcome {
	var out Outcome
	for {
		entry, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out = c.fail(out, entry, err)
			continue
		}
		out = c.Step(out, entry)
	}

	c.logger.Info().
		Int("deleted", out.Deleted).
		Int("skipped", out.Skipped).
		Int("failed", len(out.Failures)).
		Int64("bytes_freed", out.BytesFreed).
		Bool("dry_run", c.dryRun).
		Msg("Cleanup complete")
	return out
}

// Step handles a single entry and returns the updated outcome
func (c *Cleaner) Step(out Outcome, entry scan.Entry) Outcome {
	if c.preserve.Contains(entry.Path) {
		c.logger.Debug().Str("path", entry.Path).Msg("Leaving preserved entry")
		return c.skip(out, entry, ReasonPreserved)
	}

	if entry.Kind == scan.KindDir && c.policy.Recursive && c.measureTrees {
		if stats, err := disk.ScanTree(c.fs, entry.Path); err == nil {
			entry.Size = stats.UsedBytes
		}
	}

	err := c.remove(entry)
	if errors.Is(err, os.ErrNotExist) {
		// Already gone, e.g. removed by another process after listing
		c.logger.Info().Str("path", entry.Path).Msg("Entry already deleted")
		return c.skip(out, entry, ReasonVanished)
	}
	if err != nil {
		return c.fail(out, entry, err)
	}

	action := database.ActionDelete
	if c.dryRun {
		action = database.ActionDryRun
		c.logger.Info().Str("path", entry.Path).Stringer("kind", entry.Kind).Msg("[DRY RUN] Would remove")
		c.metrics.RecordSkipped(ReasonDryRun)
	} else {
		c.logger.Info().Str("path", entry.Path).Stringer("kind", entry.Kind).Int64("size", entry.Size).Msg("Removed")
		c.metrics.RecordDeleted(entry.Kind.String(), entry.Size)
		out.BytesFreed += entry.Size
	}
	c.record(action, entry, "", "")
	out.Deleted++
	return out
}

// remove applies the directory policy and deletes entry unless dry-running.
// The returned error already names the entry.
func (c *Cleaner) remove(entry scan.Entry) error {
	p := entry.Path
	context := "Can't remove " + p

	if entry.Kind != scan.KindDir {
		// Files, symlinks (never followed) and special files
		return c.do(c.deleter.Remove, p, context)
	}

	switch {
	case c.policy.Recursive:
		return c.do(c.deleter.RemoveAll, p, context)
	case c.policy.Dirs:
		empty, err := fsops.IsEmptyDir(c.fs, p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return err
			}
			inner := leaveerr.New(leaveerr.KindRemove, p, err, "Can't list contents of "+p)
			return leaveerr.Wrap(inner, leaveerr.KindRemove, context)
		}
		if !empty {
			return leaveerr.New(leaveerr.KindDirectoryNotEmpty, p, leaveerr.ErrDirectoryNotEmpty, context)
		}
		return c.do(c.deleter.Remove, p, context)
	default:
		return leaveerr.New(leaveerr.KindIsADirectory, p, leaveerr.ErrIsADirectory, context)
	}
}

func (c *Cleaner) do(op func(string) error, path, context string) error {
	if c.dryRun {
		return nil
	}
	if err := op(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return leaveerr.New(leaveerr.KindRemove, path, err, context)
	}
	return nil
}

func (c *Cleaner) skip(out Outcome, entry scan.Entry, reason string) Outcome {
	c.metrics.RecordSkipped(reason)
	c.record(database.ActionSkip, entry, reason, "")
	out.Skipped++
	return out
}

func (c *Cleaner) fail(out Outcome, entry scan.Entry, err error) Outcome {
	kind := leaveerr.KindOf(err)
	if kind == "" {
		kind = leaveerr.KindRemove
	}

	// Shown to the user by the reporter, so not at warn level
	c.logger.Info().Err(err).Str("path", entry.Path).Str("kind", string(kind)).Msg("Failed to remove")
	if c.reporter != nil {
		c.reporter.Error(err)
	}
	c.metrics.RecordFailed(string(kind))
	c.record(database.ActionError, entry, string(kind), err.Error())

	out.Failures = append(out.Failures, Failure{Path: entry.Path, Err: err})
	return out
}

func (c *Cleaner) record(action string, entry scan.Entry, reason, errMsg string) {
	if c.history == nil {
		return
	}
	if err := c.history.RecordDeletion(c.runID, action, entry, reason, errMsg); err != nil {
		// History is best effort; a failed write never fails the run
		c.logger.Warn().Err(err).Str("path", entry.Path).Msg("Failed to record to history")
	}
}
