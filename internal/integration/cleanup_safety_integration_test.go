package integration

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leave/internal/config"
	"leave/internal/leaveerr"
	"leave/internal/logging"
	"leave/internal/runner"
)

type fixture struct {
	name  string
	isDir bool
	full  bool // Directory with a child
	link  bool // Symlink to a directory outside the working directory
}

func build(t *testing.T, dir, outside string, entries []fixture) {
	t.Helper()
	for _, e := range entries {
		p := filepath.Join(dir, e.name)
		switch {
		case e.link:
			require.NoError(t, os.Symlink(outside, p))
		case e.isDir:
			require.NoError(t, os.Mkdir(p, 0o755))
			if e.full {
				require.NoError(t, os.WriteFile(filepath.Join(p, "child"), []byte("x"), 0o644))
			}
		default:
			require.NoError(t, os.WriteFile(p, []byte(e.name), 0o644))
		}
	}
}

func snapshot(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func run(t *testing.T, dir string, opts config.Options) (runner.Result, string, error) {
	t.Helper()
	var stderr bytes.Buffer
	res, err := runner.Run(dir, opts, runner.Deps{
		Fs:       afero.NewOsFs(),
		Logger:   zerolog.Nop(),
		Reporter: logging.NewReporter(&stderr),
	})
	return res, stderr.String(), err
}

// outsideDir holds something that must never be touched through a symlink
func outsideDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "precious"), []byte("MUST KEEP"), 0o644))
	return dir
}

func assertOutsideIntact(t *testing.T, outside string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(outside, "precious"))
	require.NoError(t, err, "file behind symlink was deleted")
	assert.Equal(t, "MUST KEEP", string(data))
}

// TestPreservedSetSurvivesAnyFlags checks final == preserve ∩ original for
// random trees whenever the run succeeds, and that preserved entries survive
// even when it does not
func TestPreservedSetSurvivesAnyFlags(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 40; i++ {
		i := i
		var entries []fixture
		n := 1 + rng.Intn(8)
		for j := 0; j < n; j++ {
			f := fixture{name: fmt.Sprintf("e%d", j)}
			switch rng.Intn(4) {
			case 1:
				f.isDir = true
			case 2:
				f.isDir, f.full = true, true
			case 3:
				f.link = true
			}
			entries = append(entries, f)
		}

		var targets []string
		for _, e := range entries {
			if rng.Intn(3) == 0 {
				targets = append(targets, e.name)
			}
		}
		if len(targets) == 0 {
			targets = []string{entries[0].name}
		}
		opts := config.Options{
			Targets:   targets,
			Recursive: rng.Intn(2) == 0,
			Dirs:      rng.Intn(2) == 0,
		}

		t.Run(fmt.Sprintf("case%02d", i), func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			outside := outsideDir(t)
			build(t, dir, outside, entries)

			res, _, err := run(t, dir, opts)
			require.NoError(t, err)

			final := snapshot(t, dir)
			for _, target := range targets {
				assert.Contains(t, final, target, "preserved entry removed")
			}
			if res.OK() {
				want := append([]string(nil), targets...)
				sort.Strings(want)
				assert.Equal(t, want, final)
			}
			assertOutsideIntact(t, outside)
		})
	}
}

// TestAbortsLeaveDirectoryUntouched covers every whole-run abort
func TestAbortsLeaveDirectoryUntouched(t *testing.T) {
	entries := []fixture{{name: "file1"}, {name: "file2"}, {name: "dir1", isDir: true}, {name: "sub", isDir: true, full: true}}

	tests := []struct {
		name    string
		opts    config.Options
		kind    leaveerr.Kind
		mention string
	}{
		{"empty preserve list", config.Options{Recursive: true}, leaveerr.KindEmptyTargetList, "-f/--force"},
		{"missing target", config.Options{Targets: []string{"file1", "ghost"}, Recursive: true}, leaveerr.KindMissingTargets, "ghost"},
		{"nested target", config.Options{Targets: []string{"sub/child"}, Recursive: true}, leaveerr.KindOutsideWorkingDirectory, "sub/child"},
		{"nested target with force", config.Options{Targets: []string{"sub/child"}, Recursive: true, Force: true}, leaveerr.KindOutsideWorkingDirectory, "sub/child"},
		{"parent target", config.Options{Targets: []string{".."}, Recursive: true, Force: true}, leaveerr.KindOutsideWorkingDirectory, ".."},
		{"working directory itself", config.Options{Targets: []string{"."}, Recursive: true}, leaveerr.KindOutsideWorkingDirectory, "."},
		{"absolute outside", config.Options{Targets: []string{"/tmp"}, Recursive: true, Force: true}, leaveerr.KindOutsideWorkingDirectory, "/tmp"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			build(t, dir, "", entries)
			before := snapshot(t, dir)

			_, stderr, err := run(t, dir, tt.opts)
			require.Error(t, err)
			assert.True(t, leaveerr.IsKind(err, tt.kind), "got %v", err)
			assert.Contains(t, err.Error()+stderr, tt.mention)
			assert.Equal(t, before, snapshot(t, dir))
		})
	}
}

// TestEquivalentSpellings verifies ./x, ././x and an absolute path agree
func TestEquivalentSpellings(t *testing.T) {
	for _, spelling := range []string{"keep", "./keep", "././keep", "keep/", "KEEP_ABS"} {
		spelling := spelling
		t.Run(spelling, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			build(t, dir, "", []fixture{{name: "keep"}, {name: "drop"}})

			target := spelling
			if spelling == "KEEP_ABS" {
				target = filepath.Join(dir, "keep")
			}
			res, _, err := run(t, dir, config.Options{Targets: []string{target}})
			require.NoError(t, err)
			assert.True(t, res.OK())
			assert.Equal(t, []string{"keep"}, snapshot(t, dir))
		})
	}
}

func TestDirectoryKinds(t *testing.T) {
	entries := []fixture{{name: "keep"}, {name: "empty", isDir: true}, {name: "full", isDir: true, full: true}}

	tests := []struct {
		name   string
		opts   config.Options
		final  []string
		failed int
	}{
		{"no flags", config.Options{}, []string{"empty", "full", "keep"}, 2},
		{"dirs", config.Options{Dirs: true}, []string{"full", "keep"}, 1},
		{"recursive", config.Options{Recursive: true}, []string{"keep"}, 0},
		{"recursive and dirs", config.Options{Recursive: true, Dirs: true}, []string{"keep"}, 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			build(t, dir, "", entries)

			opts := tt.opts
			opts.Targets = []string{"keep"}
			res, stderr, err := run(t, dir, opts)
			require.NoError(t, err)

			assert.Equal(t, tt.final, snapshot(t, dir))
			assert.Len(t, res.Outcome.Failures, tt.failed)
			// One diagnostic line per failure
			assert.Equal(t, tt.failed, bytes.Count([]byte(stderr), []byte("\n")))
		})
	}
}

// TestPermissionDeniedIsPerEntry makes one entry unremovable
func TestPermissionDeniedIsPerEntry(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	dir := t.TempDir()
	build(t, dir, "", []fixture{{name: "keep"}, {name: "a"}, {name: "locked", isDir: true, full: true}, {name: "z"}})
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Chmod(locked, 0o555))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	res, stderr, err := run(t, dir, config.Options{Targets: []string{"keep"}, Recursive: true})
	require.NoError(t, err)

	assert.False(t, res.OK())
	assert.Equal(t, []string{"keep", "locked"}, snapshot(t, dir))
	assert.Contains(t, stderr, "Error: Can't remove "+locked+": permission denied")
}
