package database

import (
	"database/sql"
	"time"
)

const recordColumns = `id, run_id, timestamp, action, path, file_name, object_type, root, error_message`

// GetRecentDeletions returns the most recent removal attempts
func (d *DeletionDB) GetRecentDeletions(limit int) ([]DeletionRecord, error) {
	query := `
	SELECT ` + recordColumns + `
	FROM deletions
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`
	return d.queryDeletions(query, limit)
}

// GetDeletionsByAction returns attempts with the given action (DELETE, DRY_RUN, SKIP, ERROR)
func (d *DeletionDB) GetDeletionsByAction(action string) ([]DeletionRecord, error) {
	query := `
	SELECT ` + recordColumns + `
	FROM deletions
	WHERE action = ?
	ORDER BY timestamp DESC, id DESC
	`
	return d.queryDeletions(query, action)
}

// GetDeletionsByPath returns attempts whose path matches a SQL LIKE pattern
func (d *DeletionDB) GetDeletionsByPath(pathPattern string) ([]DeletionRecord, error) {
	query := `
	SELECT ` + recordColumns + `
	FROM deletions
	WHERE path LIKE ?
	ORDER BY timestamp DESC, id DESC
	`
	return d.queryDeletions(query, pathPattern)
}

// GetDeletionsByRun returns one sweep's attempts in the order they happened
func (d *DeletionDB) GetDeletionsByRun(runID string) ([]DeletionRecord, error) {
	query := `
	SELECT ` + recordColumns + `
	FROM deletions
	WHERE run_id = ?
	ORDER BY id ASC
	`
	return d.queryDeletions(query, runID)
}

// GetDeletionsByDateRange returns attempts between start and end
func (d *DeletionDB) GetDeletionsByDateRange(start, end time.Time) ([]DeletionRecord, error) {
	query := `
	SELECT ` + recordColumns + `
	FROM deletions
	WHERE timestamp BETWEEN ? AND ?
	ORDER BY timestamp DESC, id DESC
	`
	return d.queryDeletions(query, start, end)
}

// GetDeletionCountByAction returns counts grouped by action
func (d *DeletionDB) GetDeletionCountByAction() (map[string]int, error) {
	return d.countBy("action")
}

// GetDeletionCountByObjectType returns DELETE counts grouped by object type
func (d *DeletionDB) GetDeletionCountByObjectType() (map[string]int, error) {
	return d.countBy("object_type")
}

// countBy groups DELETE rows for object_type and all rows for action.
// column is always a package constant, never user input.
func (d *DeletionDB) countBy(column string) (map[string]int, error) {
	query := `SELECT ` + column + `, COUNT(*) FROM deletions`
	if column == "object_type" {
		query += ` WHERE action = 'DELETE'`
	}
	query += ` GROUP BY ` + column + ` ORDER BY COUNT(*) DESC`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}

	return counts, rows.Err()
}

// DeletionStats holds aggregated statistics
type DeletionStats struct {
	TotalDeleted       int
	FilesDeleted       int
	DirectoriesDeleted int
	TotalDryRun        int
	TotalSkipped       int
	TotalErrors        int
	Runs               int
	ByAction           map[string]int
	ByObjectType       map[string]int
	StartDate          time.Time
	EndDate            time.Time
}

// GetDeletionStats returns statistics for the last N days
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
			COUNT(CASE WHEN action = 'DELETE' AND object_type = 'file' THEN 1 END),
			COUNT(CASE WHEN action = 'DELETE' AND object_type = 'empty_directory' THEN 1 END),
			COUNT(CASE WHEN action = 'DRY_RUN' THEN 1 END),
			COUNT(CASE WHEN action = 'SKIP' THEN 1 END),
			COUNT(CASE WHEN action = 'ERROR' THEN 1 END),
			COUNT(DISTINCT run_id)
		FROM deletions
		WHERE timestamp >= ?
	`, since).Scan(
		&stats.TotalDeleted,
		&stats.FilesDeleted,
		&stats.DirectoriesDeleted,
		&stats.TotalDryRun,
		&stats.TotalSkipped,
		&stats.TotalErrors,
		&stats.Runs,
	)
	if err != nil {
		return nil, err
	}

	stats.ByAction, err = d.GetDeletionCountByAction()
	if err != nil {
		return nil, err
	}

	stats.ByObjectType, err = d.GetDeletionCountByObjectType()
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
		var fileName, errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.RunID, &r.Timestamp, &r.Action, &r.Path, &fileName,
			&r.ObjectType, &r.Root, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		r.FileName = fileName.String
		r.ErrorMessage = errMsg.String

		records = append(records, r)
	}

	return records, rows.Err()
}
