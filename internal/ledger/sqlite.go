//go:build sqlite
// +build sqlite

package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tennowatch/internal/event"
	logx "tennowatch/pkg/logx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger (
	key TEXT PRIMARY KEY,
	ts  REAL NOT NULL
);
`

// sqliteStore mirrors the file driver's semantics: the working set is
// in memory, Flush rewrites the table wholesale inside one transaction.
type sqliteStore struct {
	log logx.Logger
	db  *sql.DB

	mu      sync.Mutex
	entries map[string]float64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &sqliteStore{log: log, db: db, entries: map[string]float64{}}

	rows, err := db.Query("SELECT key, ts FROM ledger")
	if err != nil {
		log.Warn("ledger table unreadable; starting empty", logx.String("path", path), logx.Err(err))
		return s, nil
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var ts float64
		if err := rows.Scan(&key, &ts); err != nil {
			continue
		}
		s.entries[key] = ts
	}
	if err := rows.Err(); err != nil {
		log.Warn("ledger scan incomplete", logx.String("path", path), logx.Err(err))
	}
	return s, nil
}

func (s *sqliteStore) Seen(k event.Key) bool {
	if k.IsZero() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[k.String()]
	return ok
}

func (s *sqliteStore) Mark(k event.Key, at time.Time) {
	if k.IsZero() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := k.String()
	if _, ok := s.entries[key]; ok {
		return
	}
	s.entries[key] = float64(at.UnixMilli()) / 1000
}

func (s *sqliteStore) Purge(olderThan time.Time) int {
	cutoff := float64(olderThan.UnixMilli()) / 1000
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, ts := range s.entries {
		if ts < cutoff {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *sqliteStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *sqliteStore) Flush() error {
	s.mu.Lock()
	snapshot := make(map[string]float64, len(s.entries))
	for k, ts := range s.entries {
		snapshot[k] = ts
	}
	s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM ledger"); err != nil {
		_ = tx.Rollback()
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO ledger(key, ts) VALUES(?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for k, ts := range snapshot {
		if _, err := stmt.Exec(k, ts); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return err
		}
	}
	_ = stmt.Close()
	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	ferr := s.Flush()
	cerr := s.db.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}
