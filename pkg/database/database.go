package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested script or run does not exist
var ErrNotFound = errors.New("not found")

// busyTimeoutMs lets executors writing runs and klines at the same time wait
// for the write lock instead of failing with SQLITE_BUSY
const busyTimeoutMs = 5000

// DB stores saved scripts, run history and cached klines in SQLite
type DB struct {
	conn    *sql.DB
	version uint
}

// New opens the SQLite file at dbPath and migrates it to the latest schema
func New(dbPath string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_fk=1&_journal_mode=WAL&_busy_timeout=%d", dbPath, busyTimeoutMs)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	db := &DB{conn: conn}
	if db.version, err = db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// migrate applies pending migrations and returns the resulting version
func (db *DB) migrate() (uint, error) {
	driver, err := sqlite3.WithInstance(db.conn, &sqlite3.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return 0, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// SchemaVersion returns the migration version the database is at
func (db *DB) SchemaVersion() uint {
	return db.version
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
