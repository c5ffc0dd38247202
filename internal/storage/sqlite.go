package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps the database connection holding documents and undo history.
type DB struct {
	conn    *sql.DB
	dialect Dialect
	dataDir string // root directory for JSON mirrors of documents
}

// New creates a new DB, opening (or creating) the SQLite file at dbPath.
// dataDir is the root directory where JSON mirrors are written.
func New(dbPath, dataDir string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite only supports one writer, limit to single connection to prevent SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	db, err := Wrap(conn, SQLite, dataDir)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Wrap adopts an already opened connection of the given dialect and runs
// the migrations on it. The DB owns conn from here on.
func Wrap(conn *sql.DB, dialect Dialect, dataDir string) (*DB, error) {
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db := &DB{conn: conn, dialect: dialect, dataDir: dataDir}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DataDir returns the root data directory.
func (db *DB) DataDir() string {
	return db.dataDir
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Dialect returns the SQL flavour of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) migrate() error {
	for _, m := range db.dialect.migrations() {
		if _, err := db.conn.Exec(m); err != nil {
			// ALTER TABLE fails if column already exists, safe to ignore
			if strings.Contains(m, "ALTER TABLE") && strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			// MySQL has no CREATE INDEX IF NOT EXISTS
			if db.dialect == MySQL && strings.HasPrefix(m, "CREATE INDEX") && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			head := m
			if len(head) > 40 {
				head = head[:40]
			}
			return fmt.Errorf("migration failed: %s: %w", head, err)
		}
	}
	return nil
}
