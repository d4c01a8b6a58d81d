package database

import (
	"fmt"
	"time"
)

// Run records one script execution
type Run struct {
	ID         int64     `json:"id"`
	ScriptName string    `json:"script_name,omitempty"`
	Symbol     string    `json:"symbol,omitempty"`
	Interval   string    `json:"interval,omitempty"`
	Status     string    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SaveRun stores an execution record
func (db *DB) SaveRun(run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO script_runs (script_name, symbol, interval, status, duration_ms, result, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := db.conn.Exec(query, run.ScriptName, run.Symbol, run.Interval, run.Status,
		run.DurationMs, run.Result, run.Error, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get run id: %w", err)
	}
	run.ID = id
	return nil
}

// ListRuns returns the newest runs first. An empty scriptName matches every
// run; limit <= 0 means 50.
func (db *DB) ListRuns(scriptName string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, script_name, symbol, interval, status, duration_ms, result, error, created_at
		FROM script_runs
		WHERE (? = '' OR script_name = ?)
		ORDER BY id DESC
		LIMIT ?`

	rows, err := db.conn.Query(query, scriptName, scriptName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.ScriptName, &r.Symbol, &r.Interval, &r.Status,
			&r.DurationMs, &r.Result, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
