package database

import (
	"database/sql"
	"strings"
	"time"
)

const deletionColumns = `id, run_id, timestamp, action, path, file_name, object_type, size, reason, error_message`

// GetRecentDeletions returns the N most recent entry records
func (d *DeletionDB) GetRecentDeletions(limit int) ([]DeletionRecord, error) {
	query := `SELECT ` + deletionColumns + `
	FROM deletions
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	return d.queryDeletions(query, limit)
}

// GetDeletionsByRun returns the records of one run in processing order
func (d *DeletionDB) GetDeletionsByRun(runID string) ([]DeletionRecord, error) {
	query := `SELECT ` + deletionColumns + `
	FROM deletions
	WHERE run_id = ?
	ORDER BY id ASC
	`

	return d.queryDeletions(query, runID)
}

// GetDeletionsByAction returns records filtered by action type
func (d *DeletionDB) GetDeletionsByAction(action string) ([]DeletionRecord, error) {
	query := `SELECT ` + deletionColumns + `
	FROM deletions
	WHERE action = ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryDeletions(query, action)
}

// GetDeletionsByPath returns records matching a path pattern (SQL LIKE)
func (d *DeletionDB) GetDeletionsByPath(pathPattern string) ([]DeletionRecord, error) {
	query := `SELECT ` + deletionColumns + `
	FROM deletions
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryDeletions(query, pathPattern)
}

// GetRecentRuns returns the N most recent run summaries
func (d *DeletionDB) GetRecentRuns(limit int) ([]RunRecord, error) {
	rows, err := d.db.Query(`
	SELECT run_id, started_at, finished_at, work_dir, targets,
	       recursive, dirs, force, dry_run, outcome, deleted, skipped, failed
	FROM runs
	ORDER BY started_at DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var targets sql.NullString
		err := rows.Scan(
			&r.RunID, &r.StartedAt, &r.FinishedAt, &r.WorkDir, &targets,
			&r.Recursive, &r.Dirs, &r.Force, &r.DryRun,
			&r.Outcome, &r.Deleted, &r.Skipped, &r.Failed,
		)
		if err != nil {
			return nil, err
		}
		if targets.Valid && targets.String != "" {
			r.Targets = strings.Split(targets.String, "\x00")
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// GetDeletionCountByAction returns count of records grouped by action
func (d *DeletionDB) GetDeletionCountByAction(since time.Time) (map[string]int, error) {
	rows, err := d.db.Query(`
	SELECT action, COUNT(*)
	FROM deletions
	WHERE timestamp >= ?
	GROUP BY action
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}

	return counts, rows.Err()
}

// DeletionStats holds aggregated statistics
type DeletionStats struct {
	TotalRuns       int
	TotalDeletions  int
	TotalSkipped    int
	TotalErrors     int
	TotalSpaceFreed int64
	ByAction        map[string]int
	StartDate       time.Time
	EndDate         time.Time
}

// GetDeletionStats returns statistics for the last days days
func (d *DeletionDB) GetDeletionStats(days int) (*DeletionStats, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -days)

	stats := &DeletionStats{
		StartDate: since,
		EndDate:   now,
	}

	err := d.db.QueryRow(`
		SELECT
			COUNT(CASE WHEN action = 'DELETE' THEN 1 END),
			COUNT(CASE WHEN action = 'SKIP' THEN 1 END),
			COUNT(CASE WHEN action = 'ERROR' THEN 1 END),
			COALESCE(SUM(CASE WHEN action = 'DELETE' THEN size END), 0)
		FROM deletions
		WHERE timestamp >= ?
	`, since).Scan(&stats.TotalDeletions, &stats.TotalSkipped, &stats.TotalErrors, &stats.TotalSpaceFreed)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE started_at >= ?`, since).Scan(&stats.TotalRuns)
	if err != nil {
		return nil, err
	}

	stats.ByAction, err = d.GetDeletionCountByAction(since)
	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DeleteOldRecords removes records older than specified days
func (d *DeletionDB) DeleteOldRecords(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`DELETE FROM deletions WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	if _, err := d.db.Exec(`DELETE FROM runs WHERE started_at < ?`, cutoff); err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// queryDeletions is a helper function to execute queries and scan results
func (d *DeletionDB) queryDeletions(query string, args ...interface{}) ([]DeletionRecord, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DeletionRecord
	for rows.Next() {
		var r DeletionRecord
		var fileName, reason, errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.RunID, &r.Timestamp, &r.Action, &r.Path, &fileName,
			&r.ObjectType, &r.Size, &reason, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		r.FileName = fileName.String
		r.Reason = reason.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}

	return records, rows.Err()
}
