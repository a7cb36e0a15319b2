// Package sqlite provides a transactional quota backend for deployments
// that need more than the single-process guarantee of the JSON-file stores.
// Counters are incremented inside one transaction, so multiple processes
// sharing the database file cannot lose updates across a read-modify-write.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// DB wraps the sqlite connection.
type DB struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS quotas (
	user_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	period_key TEXT NOT NULL,
	count      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, kind, period_key)
);
`

// Open opens (creating if needed) the database at dsn and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
