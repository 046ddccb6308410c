package ledger

import (
	"errors"
	"strings"
	"time"

	"tennowatch/internal/event"
	logx "tennowatch/pkg/logx"
)

// Retention is the age-based purge window. Three days comfortably
// exceeds plausible event lifetimes, so accidental re-notification from
// a premature purge is unlikely (not impossible).
const Retention = 3 * 24 * time.Hour

// Config configures the ledger backend.
//
// Driver values:
//   - "file": flat JSON mapping, rewritten wholesale on Flush (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the dedup ledger API. All mutation happens on the single
// scheduling goroutine, after the concurrent fetch phase has joined;
// implementations still lock internally so misuse fails safe.
type Store interface {
	// Seen reports whether the key was already notified.
	Seen(k event.Key) bool
	// Mark records the key as notified. Re-marking an existing key keeps
	// the original first-seen timestamp (at-most-once is keyed on first
	// delivery, not last).
	Mark(k event.Key, at time.Time)
	// Purge removes entries first seen before the cutoff and returns how
	// many were dropped.
	Purge(olderThan time.Time) int
	// Len reports the current entry count.
	Len() int
	// Flush writes the full ledger to durable storage.
	Flush() error
	Close() error
}

// Open initializes the configured store. An unreadable or corrupt
// ledger is not fatal: the store starts empty and logs a warning.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown ledger driver: " + cfg.Driver)
	}
}
