package config

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leave/internal/leaveerr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestLoadAppliesDefaults verifies defaults for fields left unset
func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "recursive: true\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Recursive)
	assert.False(t, cfg.Dirs)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 30, cfg.Logging.RotationDays)
	assert.Empty(t, cfg.History.Path)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
recursive: false
dirs: true
force: true
protected_paths:
  - /srv/data/
  - /home/user/../user/keep
history:
  path: /var/tmp/leave.db
metrics:
  textfile: /var/lib/node_exporter/leave.prom
logging:
  level: INFO
  file: /var/tmp/leave.log
  rotation_days: 7
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Dirs)
	assert.True(t, cfg.Force)
	assert.Equal(t, []string{"/srv/data", "/home/user/keep"}, cfg.ProtectedPaths)
	assert.Equal(t, "/var/tmp/leave.db", cfg.History.Path)
	assert.Equal(t, "/var/lib/node_exporter/leave.prom", cfg.Metrics.Textfile)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Logging.RotationDays)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"relative protected path", "protected_paths: [data]\n", "path must be absolute"},
		{"unknown log level", "logging:\n  level: loud\n", "unknown log level"},
		{"negative rotation", "logging:\n  rotation_days: -1\n", "rotation_days cannot be negative"},
		{"unknown key", "recursve: true\n", "field recursve not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDefaultLookup(t *testing.T) {
	t.Run("explicit missing file is an error", func(t *testing.T) {
		_, _, err := LoadDefault(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("environment variable", func(t *testing.T) {
		path := writeConfig(t, "dirs: true\n")
		t.Setenv(EnvConfigPath, path)

		cfg, used, err := LoadDefault("")
		require.NoError(t, err)
		assert.Equal(t, path, used)
		assert.True(t, cfg.Dirs)
	})

	t.Run("missing implicit file yields defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("HOME", t.TempDir())

		cfg, used, err := LoadDefault("")
		require.NoError(t, err)
		assert.Empty(t, used)
		assert.Equal(t, Default(), cfg)
	})
}

func TestMergeOnlyFillsUnsetFlags(t *testing.T) {
	cfg := &Config{Recursive: true, Dirs: true, Force: true}
	opts := Options{Targets: []string{"a"}, Recursive: false, Dirs: false}

	merged := cfg.Merge(opts, func(flag string) bool { return flag == "recursive" })

	assert.False(t, merged.Recursive, "explicit flag wins")
	assert.True(t, merged.Dirs)
	assert.True(t, merged.Force)
	assert.Equal(t, []string{"a"}, merged.Targets)
}

func TestResolveWorkingDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/base/sub", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/base/file", nil, 0o644))

	t.Run("no override uses base", func(t *testing.T) {
		rc, err := Resolve(fs, "/base/", Options{Targets: []string{"x"}, Force: true})
		require.NoError(t, err)
		assert.Equal(t, "/base", rc.WorkDir)
		assert.Equal(t, []string{"x"}, rc.Targets)
		assert.True(t, rc.Force)
	})

	t.Run("relative override", func(t *testing.T) {
		rc, err := Resolve(fs, "/base", Options{Chdir: "./sub/"})
		require.NoError(t, err)
		assert.Equal(t, "/base/sub", rc.WorkDir)
	})

	t.Run("absolute override", func(t *testing.T) {
		rc, err := Resolve(fs, "/elsewhere", Options{Chdir: "/base/sub"})
		require.NoError(t, err)
		assert.Equal(t, "/base/sub", rc.WorkDir)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := Resolve(fs, "/base", Options{Chdir: "gone"})
		require.Error(t, err)
		assert.True(t, leaveerr.IsKind(err, leaveerr.KindEnvironment))
		assert.True(t, strings.HasPrefix(err.Error(), "Can't chdir into gone: "))
	})

	t.Run("not a directory", func(t *testing.T) {
		_, err := Resolve(fs, "/base", Options{Chdir: "file"})
		require.Error(t, err)
		assert.True(t, leaveerr.IsKind(err, leaveerr.KindEnvironment))
		assert.ErrorIs(t, err, syscall.ENOTDIR)
	})

	t.Run("relative base", func(t *testing.T) {
		_, err := Resolve(fs, "base", Options{})
		assert.True(t, leaveerr.IsKind(err, leaveerr.KindEnvironment))
	})
}

func TestOptionsWorkDirIsLexical(t *testing.T) {
	assert.Equal(t, "/base", Options{}.WorkDir("/base/"))
	assert.Equal(t, "/base/sub", Options{Chdir: "./sub/"}.WorkDir("/base"))
	assert.Equal(t, "/other", Options{Chdir: "/other/x/.."}.WorkDir("/base"))
	assert.Equal(t, "/base/gone", Options{Chdir: "gone"}.WorkDir("/base"))
}

func TestResolveCopiesTargets(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/w", 0o755))

	targets := []string{"a", "b"}
	rc, err := Resolve(fs, "/w", Options{Targets: targets})
	require.NoError(t, err)

	targets[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, rc.Targets)
}
