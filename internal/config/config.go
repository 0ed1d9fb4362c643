package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config file location
const EnvConfigPath = "LEAVE_CONFIG"

type HistoryCfg struct {
	Path string `yaml:"path" json:"path"` // SQLite deletion history; empty disables it
}

type MetricsCfg struct {
	Textfile string `yaml:"textfile" json:"textfile"` // Prometheus textfile written after each run
}

type LoggingCfg struct {
	Level        string `yaml:"level" json:"level"`                 // trace, debug, info, warn, error
	File         string `yaml:"file" json:"file"`                   // Optional log file, appended to
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep the log file before rotation
}

// Config holds the user's defaults. Flags given on the command line win.
type Config struct {
	Recursive      bool       `yaml:"recursive" json:"recursive"`             // Default for -r
	Dirs           bool       `yaml:"dirs" json:"dirs"`                       // Default for -d
	Force          bool       `yaml:"force" json:"force"`                     // Default for -f
	ProtectedPaths []string   `yaml:"protected_paths" json:"protected_paths"` // Directories that are never pruned
	History        HistoryCfg `yaml:"history" json:"history"`
	Metrics        MetricsCfg `yaml:"metrics" json:"metrics"`
	Logging        LoggingCfg `yaml:"logging" json:"logging"`
}

var (
	errInvalidPath     = errors.New("path must be absolute")
	errInvalidLogLevel = errors.New("unknown log level")
	errNegativeDays    = errors.New("rotation_days cannot be negative")
)

var logLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	_ = cfg.validateAndDefault()
	return cfg
}

// Load reads the configuration file at path. A missing file is an error.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads explicit if set, otherwise the first file found via
// $LEAVE_CONFIG or the user config directory. A missing implicit file yields
// Default(). The returned path is the file actually read, or "".
func LoadDefault(explicit string) (*Config, string, error) {
	if explicit != "" {
		cfg, err := Load(explicit)
		return cfg, explicit, err
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		cfg, err := Load(env)
		return cfg, env, err
	}

	path := DefaultPath()
	if path == "" {
		return Default(), "", nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// DefaultPath returns $XDG_CONFIG_HOME/leave/config.yaml (or the platform
// equivalent), or "" when no config directory can be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "leave", "config.yaml")
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		// An empty file is a valid, empty configuration
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *Config) validateAndDefault() error {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
	}
	if !logLevels[c.Logging.Level] {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, c.Logging.Level)
	}

	if c.Logging.RotationDays < 0 {
		return errNegativeDays
	}
	if c.Logging.RotationDays == 0 {
		c.Logging.RotationDays = 30 // Default: keep logs for 30 days
	}

	cleaned := make([]string, 0, len(c.ProtectedPaths))
	for _, p := range c.ProtectedPaths {
		cp, err := cleanAbsolute(expandHome(p))
		if err != nil {
			return fmt.Errorf("protected_paths: %w", err)
		}
		cleaned = append(cleaned, cp)
	}
	c.ProtectedPaths = cleaned

	c.History.Path = expandHome(c.History.Path)
	c.Metrics.Textfile = expandHome(c.Metrics.Textfile)
	c.Logging.File = expandHome(c.Logging.File)

	return nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}

// expandHome replaces a leading "~/" with the user's home directory
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
