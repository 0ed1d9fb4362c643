package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"leave/internal/config"
	"leave/internal/exitcodes"
	"leave/internal/leaveerr"
	"leave/internal/logging"
	"leave/internal/runner"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// exitError carries the exit code out of cobra. A nil err means the
// problem was already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return "exit status"
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

type rootFlags struct {
	opts        config.Options
	verbose     bool
	logLevel    string
	logFile     string
	configPath  string
	historyPath string
	metricsFile string
}

// Env is what the root command needs from the process
type Env struct {
	Stdout   io.Writer
	Stderr   io.Writer
	Getwd    func() (string, error)
	Fs       afero.Fs          // Defaults to the OS filesystem
	Reporter *logging.Reporter // Defaults to a Reporter on Stderr
}

func (e Env) withDefaults() Env {
	if e.Stdout == nil {
		e.Stdout = io.Discard
	}
	if e.Stderr == nil {
		e.Stderr = io.Discard
	}
	if e.Getwd == nil {
		e.Getwd = os.Getwd
	}
	if e.Fs == nil {
		e.Fs = afero.NewOsFs()
	}
	if e.Reporter == nil {
		e.Reporter = logging.NewReporter(e.Stderr)
	}
	return e
}

// NewRootCommand creates the leave command
func NewRootCommand(env Env) *cobra.Command {
	env = env.withDefaults()
	f := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "leave [flags] [--] FILE...",
		Short: "Delete everything in a directory except the given files",
		Long: `leave removes every entry of the working directory except the ones named
on the command line. It is the inverse of rm: name what to keep.

Directories are kept unless -d (empty ones) or -r (all) is given. Without
-f, leave refuses to run when no file or a nonexistent file is named.`,
		Example: `  leave notes.txt src          # keep notes.txt and src, delete the rest
  leave -C build -r keep.me    # prune ./build recursively, keeping build/keep.me
  leave -n -r important        # show what would be removed`,
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.opts.Targets = args
			return runLeave(cmd, f, env)
		},
	}

	cmd.SetOut(env.Stdout)
	cmd.SetErr(env.Stderr)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &exitError{code: exitcodes.Usage, err: err}
	})

	flags := cmd.Flags()
	flags.StringVarP(&f.opts.Chdir, "chdir", "C", "", "operate in `DIR` instead of the current directory")
	flags.BoolVarP(&f.opts.Recursive, "recursive", "r", false, "remove directories and their contents")
	flags.BoolVarP(&f.opts.Dirs, "dirs", "d", false, "remove empty directories")
	flags.BoolVarP(&f.opts.Force, "force", "f", false, "run even if no file or a nonexistent file is given")
	flags.BoolVarP(&f.opts.DryRun, "dry-run", "n", false, "only show what would be removed")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "log every entry (same as --log-level info)")
	flags.StringVar(&f.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.StringVar(&f.logFile, "log-file", "", "also append the log to `FILE` as JSON")
	flags.StringVar(&f.configPath, "config", "", "config file (default $"+config.EnvConfigPath+" or "+config.DefaultPath()+")")
	flags.StringVar(&f.historyPath, "history", "", "record every entry in the sqlite database at `PATH`")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to `PATH` after the run")

	return cmd
}

func runLeave(cmd *cobra.Command, f *rootFlags, env Env) error {
	cfg, _, err := config.LoadDefault(f.configPath)
	if err != nil {
		return &exitError{code: exitcodes.Usage, err: leaveerr.New(leaveerr.KindConfig, f.configPath, err, "Can't load config")}
	}

	flags := cmd.Flags()
	opts := cfg.Merge(f.opts, flags.Changed)

	logCfg := cfg.Logging
	switch {
	case f.logLevel != "":
		if _, err := zerolog.ParseLevel(f.logLevel); err != nil {
			return &exitError{code: exitcodes.Usage, err: leaveerr.New(leaveerr.KindConfig, "", err, "Invalid --log-level")}
		}
		logCfg.Level = f.logLevel
	case f.verbose || opts.DryRun:
		// Only ever lowers the level; a configured debug level stays
		if lvl, err := zerolog.ParseLevel(logCfg.Level); err != nil || lvl > zerolog.InfoLevel {
			logCfg.Level = "info"
		}
	}
	if f.logFile != "" {
		logCfg.File = f.logFile
	}

	base, err := env.Getwd()
	if err != nil {
		return &exitError{code: exitcodes.Failure, err: leaveerr.New(leaveerr.KindEnvironment, "", err, "Can't get current directory")}
	}

	deps := runner.Deps{
		Fs:          env.Fs,
		Reporter:    env.Reporter,
		Protected:   cfg.ProtectedPaths,
		HistoryPath: cfg.History.Path,
		MetricsFile: cfg.Metrics.Textfile,
		LogFile:     logCfg.File,
	}
	if f.historyPath != "" {
		deps.HistoryPath = f.historyPath
	}
	if f.metricsFile != "" {
		deps.MetricsFile = f.metricsFile
	}
	if err := runner.CheckRunFiles(base, opts, deps); err != nil {
		return &exitError{code: exitcodes.Usage, err: err}
	}

	logger, closeLog, err := logging.New(env.Stderr, logCfg)
	if err != nil {
		return &exitError{code: exitcodes.Usage, err: leaveerr.New(leaveerr.KindConfig, logCfg.File, err, "Can't open log file")}
	}
	defer closeLog()
	deps.Logger = logger

	res, err := runner.Run(base, opts, deps)
	if err != nil {
		return &exitError{code: exitcodes.Failure, err: err}
	}
	if !res.OK() {
		// Each failure was reported as it happened
		return &exitError{code: exitcodes.Failure}
	}
	return nil
}

// Execute runs leave with args and returns the process exit code
func Execute(args []string, env Env) int {
	env = env.withDefaults()

	cmd := NewRootCommand(env)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return exitcodes.Success
	}

	var ee *exitError
	if errors.As(err, &ee) {
		env.Reporter.Error(ee.err)
		return ee.code
	}
	// Anything cobra rejects on its own is a usage problem
	env.Reporter.Error(err)
	return exitcodes.Usage
}
