package config

import (
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	"leave/internal/leaveerr"
)

// Options are the raw values collected from the command line
type Options struct {
	Chdir     string   // Optional working directory override, relative to the base
	Targets   []string // Names to preserve, relative to the working directory
	Recursive bool
	Dirs      bool
	Force     bool
	DryRun    bool
}

// RunConfig is the resolved, immutable input of a single run.
// WorkDir is absolute and cleaned; every later stage resolves against it
// instead of the process working directory.
type RunConfig struct {
	WorkDir   string
	Targets   []string
	Recursive bool
	Dirs      bool
	Force     bool
	DryRun    bool
}

// Merge fills in flags the user did not set explicitly from the config file.
// explicit reports whether the named long flag was given on the command line.
func (c *Config) Merge(opts Options, explicit func(flag string) bool) Options {
	if c == nil {
		return opts
	}
	if !explicit("recursive") {
		opts.Recursive = c.Recursive
	}
	if !explicit("dirs") {
		opts.Dirs = c.Dirs
	}
	if !explicit("force") {
		opts.Force = c.Force
	}
	return opts
}

// WorkDir returns the working directory the options select, made absolute
// against base and cleaned. It does not touch the filesystem.
func (o Options) WorkDir(base string) string {
	if o.Chdir == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(o.Chdir) {
		return filepath.Clean(o.Chdir)
	}
	return filepath.Join(base, o.Chdir)
}

// Resolve turns Options into a RunConfig. base is the absolute directory that
// relative paths (including opts.Chdir) are resolved against.
func Resolve(fs afero.Fs, base string, opts Options) (RunConfig, error) {
	if !filepath.IsAbs(base) {
		return RunConfig{}, leaveerr.New(leaveerr.KindEnvironment, base, errInvalidPath,
			"Can't resolve working directory "+base)
	}

	dir := opts.WorkDir(base)

	display := opts.Chdir
	if display == "" {
		display = dir
	}

	info, err := fs.Stat(dir)
	if err != nil {
		return RunConfig{}, leaveerr.New(leaveerr.KindEnvironment, dir, err, "Can't chdir into "+display)
	}
	if !info.IsDir() {
		return RunConfig{}, leaveerr.New(leaveerr.KindEnvironment, dir, syscall.ENOTDIR, "Can't chdir into "+display)
	}

	return RunConfig{
		WorkDir:   dir,
		Targets:   append([]string(nil), opts.Targets...),
		Recursive: opts.Recursive,
		Dirs:      opts.Dirs,
		Force:     opts.Force,
		DryRun:    opts.DryRun,
	}, nil
}
