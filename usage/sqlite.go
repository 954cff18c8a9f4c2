package usage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_counters (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	consumed INTEGER NOT NULL,
	reserved INTEGER NOT NULL,
	last_reset TEXT NOT NULL
);
`

// SQLiteStore persists the counters in a single-row SQLite table, so the
// quota survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the counter database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open quota db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create quota schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load() (Counters, error) {
	row := s.db.QueryRow(`SELECT consumed, reserved, last_reset FROM usage_counters WHERE id = 1`)
	var c Counters
	var lastReset string
	if err := row.Scan(&c.Consumed, &c.Reserved, &lastReset); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Counters{}, nil
		}
		return Counters{}, fmt.Errorf("load quota counters: %w", err)
	}
	t, err := time.Parse(time.RFC3339, lastReset)
	if err != nil {
		return Counters{}, fmt.Errorf("parse last_reset: %w", err)
	}
	c.LastReset = t
	return c, nil
}

func (s *SQLiteStore) Save(c Counters) error {
	_, err := s.db.Exec(`
		INSERT INTO usage_counters (id, consumed, reserved, last_reset)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			consumed = excluded.consumed,
			reserved = excluded.reserved,
			last_reset = excluded.last_reset`,
		c.Consumed, c.Reserved, c.LastReset.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save quota counters: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
