package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"leave/internal/scan"
)

// Actions recorded per entry
const (
	ActionDelete = "DELETE"
	ActionDryRun = "DRY_RUN"
	ActionSkip   = "SKIP"
	ActionError  = "ERROR"
)

// DeletionDB manages the SQLite database for deletion history
type DeletionDB struct {
	db *sql.DB
}

// DeletionRecord represents what happened to a single entry
type DeletionRecord struct {
	ID           int64
	RunID        string
	Timestamp    time.Time
	Action       string
	Path         string
	FileName     string
	ObjectType   string
	Size         int64
	Reason       string // Skip reason or error kind
	ErrorMessage string
}

// RunRecord summarizes one invocation
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	WorkDir    string
	Targets    []string
	Recursive  bool
	Dirs       bool
	Force      bool
	DryRun     bool
	Outcome    string
	Deleted    int
	Skipped    int
	Failed     int
}

// NewDeletionDB creates a new database connection and initializes schema
func NewDeletionDB(dbPath string) (*DeletionDB, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// file: prefix with _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Ping() does not create the file, a query does
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	// Several runs may write at once, e.g. from parallel cron jobs
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err = db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	ddb := &DeletionDB{db: db}
	if err = ddb.initSchema(); err != nil {
		return nil, err
	}

	return ddb, nil
}

// initSchema creates tables and indexes if they don't exist
func (d *DeletionDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS deletions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		file_name TEXT,
		object_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		reason TEXT,
		error_message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_run_id ON deletions(run_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON deletions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_action ON deletions(action);
	CREATE INDEX IF NOT EXISTS idx_path ON deletions(path);

	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		work_dir TEXT NOT NULL,
		targets TEXT,
		recursive INTEGER NOT NULL,
		dirs INTEGER NOT NULL,
		force INTEGER NOT NULL,
		dry_run INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		deleted INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	-- Metadata table for schema versioning
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := d.db.Exec(schema)
	return err
}

// RecordDeletion inserts what happened to one entry
func (d *DeletionDB) RecordDeletion(runID, action string, entry scan.Entry, reason, errorMsg string) error {
	query := `
	INSERT INTO deletions (
		run_id, timestamp, action, path, file_name, object_type, size,
		reason, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.Exec(
		query,
		runID,
		time.Now(),
		action,
		entry.Path,
		entry.Name,
		entry.Kind.String(),
		entry.Size,
		reason,
		errorMsg,
	)
	return err
}

// RecordRun inserts the summary of a finished run
func (d *DeletionDB) RecordRun(r RunRecord) error {
	query := `
	INSERT OR REPLACE INTO runs (
		run_id, started_at, finished_at, work_dir, targets,
		recursive, dirs, force, dry_run,
		outcome, deleted, skipped, failed
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := d.db.Exec(
		query,
		r.RunID,
		r.StartedAt,
		r.FinishedAt,
		r.WorkDir,
		strings.Join(r.Targets, "\x00"),
		r.Recursive,
		r.Dirs,
		r.Force,
		r.DryRun,
		r.Outcome,
		r.Deleted,
		r.Skipped,
		r.Failed,
	)
	return err
}

// Close closes the database connection
func (d *DeletionDB) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database (run after pruning old records)
func (d *DeletionDB) Vacuum() error {
	_, err := d.db.Exec("VACUUM")
	return err
}
