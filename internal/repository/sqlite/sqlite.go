package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		detection_id TEXT NOT NULL UNIQUE,
		timestamp_ms INTEGER NOT NULL,
		clip TEXT NOT NULL,
		score REAL NOT NULL,
		lat REAL,
		lon REAL,
		alt REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_detections_timestamp ON detections(timestamp_ms);
	CREATE INDEX IF NOT EXISTS idx_detections_score ON detections(score);`,

	`CREATE INDEX IF NOT EXISTS idx_detections_clip ON detections(clip);`,
}

// DB is the detection index database. SQLite allows one writer, so writes
// take the exclusive lock and queries the shared one.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New opens (creating if needed) the index at dbPath and brings its schema
// up to date.
func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func (db *DB) migrate() error {
	var version int
	if err := db.conn.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.conn.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion reports how many migrations have been applied.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.conn.QueryRow(`PRAGMA user_version`).Scan(&version)
	return version, err
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection for repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) Lock()    { db.mu.Lock() }
func (db *DB) Unlock()  { db.mu.Unlock() }
func (db *DB) RLock()   { db.mu.RLock() }
func (db *DB) RUnlock() { db.mu.RUnlock() }
