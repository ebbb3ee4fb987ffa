package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// dsnPragmas let cache reads run alongside outbox writes.
const dsnPragmas = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB is a session's imsync.db. The room cache and checkpoints mirror the
// server and are rebuilt by the next bootstrap; the outbox is local only.
type DB struct {
	*sql.DB
}

// Open opens or creates the cache at path. Callers run Migrate before use.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache %s: %w", path, err)
	}
	return &DB{db}, nil
}
