package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"leave/internal/leaveerr"
)

var (
	ErrInvalidPath       = errors.New("invalid path")
	ErrEmptyTargetList   = errors.New("No files to leave were given, so every entry would be deleted")
	ErrMissingTargets    = errors.New("One or more provided files don't exist")
	ErrOutsideWorkingDir = errors.New("not directly inside the working directory")
	ErrProtectedPath     = errors.New("refusing to prune a protected directory")
	ErrRunFileInWorkDir  = errors.New("it is inside the directory being pruned")
)

// Warner receives one warning per missing preserve target
type Warner interface {
	Warnf(format string, args ...any)
}

// PreserveSet holds the absolute, cleaned paths that must survive the run.
// Every member's parent is the working directory.
type PreserveSet map[string]struct{}

// Contains reports whether path (absolute) is preserved
func (s PreserveSet) Contains(path string) bool {
	_, ok := s[filepath.Clean(path)]
	return ok
}

// Paths returns the members in no particular order
func (s PreserveSet) Paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// Validator runs the preflight gates for one working directory.
// No gate touches the filesystem beyond Stat calls.
type Validator struct {
	Fs             afero.Fs
	WorkDir        string
	ProtectedPaths []string
	warn           Warner
}

// NewValidator creates a validator for workDir (absolute) with optional
// additional protected directories
func NewValidator(fs afero.Fs, workDir string, extraProtected []string, warn Warner) *Validator {
	return &Validator{
		Fs:             fs,
		WorkDir:        filepath.Clean(workDir),
		ProtectedPaths: defaultProtected(extraProtected),
		warn:           warn,
	}
}

// Preflight is the single gate between the user's input and any deletion.
// It aborts the run, before anything is touched, when the working directory
// is protected, when the existence gate fails (skipped with force) or when a
// target is not a direct child of the working directory (never skipped).
func (v *Validator) Preflight(targets []string, force bool) (PreserveSet, error) {
	if IsProtectedPath(v.WorkDir, v.ProtectedPaths) {
		return nil, leaveerr.New(leaveerr.KindProtectedDirectory, v.WorkDir, ErrProtectedPath,
			"Can't prune "+v.WorkDir)
	}

	if !force {
		if err := v.CheckExistence(targets); err != nil {
			return nil, err
		}
	}

	return v.CheckContainment(targets)
}

// CheckExistence rejects an empty target list and any target that does not
// exist, warning once per missing target before failing
func (v *Validator) CheckExistence(targets []string) error {
	if len(targets) == 0 {
		e := leaveerr.New(leaveerr.KindEmptyTargetList, v.WorkDir, ErrEmptyTargetList, "")
		e.Hint = leaveerr.ForceHint
		return e
	}

	var missing []string
	for _, target := range targets {
		exists, err := v.exists(target)
		if err != nil {
			return leaveerr.New(leaveerr.KindEnvironment, target, err,
				fmt.Sprintf("Can't check if %s exists", target))
		}
		if !exists {
			if v.warn != nil {
				v.warn.Warnf("%s doesn't exist.", target)
			}
			missing = append(missing, target)
		}
	}

	if len(missing) > 0 {
		return &leaveerr.Error{
			Kind:    leaveerr.KindMissingTargets,
			Targets: missing,
			Err:     ErrMissingTargets,
			Hint:    leaveerr.ForceHint,
		}
	}
	return nil
}

// CheckContainment resolves every target and requires its parent to be
// exactly the working directory. Deeper paths such as "a/b" are rejected even
// when "a" itself is preserved.
func (v *Validator) CheckContainment(targets []string) (PreserveSet, error) {
	set := make(PreserveSet, len(targets))
	for _, target := range targets {
		abs, err := v.Resolve(target)
		if err != nil {
			return nil, leaveerr.New(leaveerr.KindOutsideWorkingDirectory, target, err,
				fmt.Sprintf("Can't make %s absolute", target))
		}
		if !IsDirectChild(abs, v.WorkDir) {
			return nil, leaveerr.New(leaveerr.KindOutsideWorkingDirectory, target, ErrOutsideWorkingDir,
				fmt.Sprintf("%s is outside of %s", target, v.WorkDir))
		}
		set[abs] = struct{}{}
	}
	return set, nil
}

// Resolve makes target absolute against the working directory and cleans it
func (v *Validator) Resolve(target string) (string, error) {
	return NormalizePath(target, v.WorkDir)
}

func (v *Validator) exists(target string) (bool, error) {
	if strings.TrimSpace(target) == "" {
		return false, nil
	}
	abs, err := v.Resolve(target)
	if err != nil {
		return false, err
	}
	// Links are followed: a dangling symlink counts as missing
	_, err = v.Fs.Stat(abs)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// RunFile is a file the run writes itself, such as the history database
type RunFile struct {
	Name string // e.g. "history database"
	Path string // Relative paths are resolved against the process directory
}

// CheckRunFiles refuses run files that pruning workDir could remove. A run
// file may only sit below workDir inside a preserved entry, never directly
// in it: sqlite journals, rotated logs and textfile temp files are created
// next to the path and would be new, unpreserved entries.
func CheckRunFiles(workDir, base string, targets []string, files []RunFile) error {
	workDir = filepath.Clean(workDir)
	preserved := make(map[string]bool, len(targets))
	for _, target := range targets {
		if abs, err := NormalizePath(target, workDir); err == nil {
			preserved[abs] = true
		}
	}

	for _, f := range files {
		if f.Path == "" {
			continue
		}
		abs, err := NormalizePath(f.Path, base)
		if err != nil {
			return leaveerr.New(leaveerr.KindRunFile, f.Path, err,
				fmt.Sprintf("Can't use %s as %s", f.Path, f.Name))
		}
		if !isWithin(abs, workDir) {
			continue
		}
		top := abs
		for filepath.Dir(top) != workDir && top != workDir {
			top = filepath.Dir(top)
		}
		if top != abs && preserved[top] {
			continue
		}
		return leaveerr.New(leaveerr.KindRunFile, abs, ErrRunFileInWorkDir,
			fmt.Sprintf("Can't write %s to %s", f.Name, f.Path))
	}
	return nil
}

// isWithin reports whether path is dir or below it
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

// NormalizePath converts path to absolute, cleaned form relative to base
func NormalizePath(path, base string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", ErrInvalidPath
	}
	if !filepath.IsAbs(path) {
		if !filepath.IsAbs(base) {
			return "", ErrInvalidPath
		}
		path = filepath.Join(base, path)
	}
	return filepath.Clean(path), nil
}

// IsDirectChild reports whether path's parent is exactly dir
func IsDirectChild(path, dir string) bool {
	p := filepath.Clean(path)
	d := filepath.Clean(dir)
	if p == d {
		return false
	}
	return filepath.Dir(p) == d
}

// IsProtectedPath checks if dir is exactly one of the protected directories.
// Subdirectories of a protected directory may still be pruned.
func IsProtectedPath(dir string, protected []string) bool {
	d := filepath.Clean(dir)

	// Hard block: "/" exact
	if d == string(os.PathSeparator) {
		return true
	}

	for _, prot := range protected {
		if d == filepath.Clean(prot) {
			return true
		}
	}
	return false
}

// defaultProtected returns "/" plus the configured protected directories.
// Everything beyond "/" is opt-in through protected_paths.
func defaultProtected(extra []string) []string {
	return append([]string{string(os.PathSeparator)}, extra...)
}
