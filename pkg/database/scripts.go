package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Script is a saved script
type Script struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SaveScript inserts a script or replaces the source of an existing one
// with the same name
func (db *DB) SaveScript(script *Script) error {
	now := time.Now().UTC()
	if script.CreatedAt.IsZero() {
		script.CreatedAt = now
	}
	script.UpdatedAt = now

	query := `INSERT INTO scripts (name, description, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			source = excluded.source,
			updated_at = excluded.updated_at`

	if _, err := db.conn.Exec(query, script.Name, script.Description, script.Source, script.CreatedAt, script.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save script: %w", err)
	}

	// Read back the row to pick up the id and original created_at
	stored, err := db.GetScript(script.Name)
	if err != nil {
		return err
	}
	*script = *stored
	return nil
}

// GetScript returns the script with the given name or ErrNotFound
func (db *DB) GetScript(name string) (*Script, error) {
	query := `SELECT id, name, description, source, created_at, updated_at FROM scripts WHERE name = ?`

	var s Script
	err := db.conn.QueryRow(query, name).Scan(&s.ID, &s.Name, &s.Description, &s.Source, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("script %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get script: %w", err)
	}
	return &s, nil
}

// ListScripts returns all saved scripts ordered by name
func (db *DB) ListScripts() ([]*Script, error) {
	rows, err := db.conn.Query(`SELECT id, name, description, source, created_at, updated_at FROM scripts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts: %w", err)
	}
	defer rows.Close()

	scripts := []*Script{}
	for rows.Next() {
		var s Script
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Source, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan script: %w", err)
		}
		scripts = append(scripts, &s)
	}
	return scripts, rows.Err()
}

// DeleteScript removes a script by name or returns ErrNotFound
func (db *DB) DeleteScript(name string) error {
	res, err := db.conn.Exec(`DELETE FROM scripts WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete script: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("script %q: %w", name, ErrNotFound)
	}
	return nil
}
