package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tennowatch/internal/event"
	logx "tennowatch/pkg/logx"
)

// fileStore keeps the ledger in memory and rewrites a flat JSON mapping
// wholesale on every Flush:
//
//	{"pre:abc123": {"ts": 1757000000.0}, ...}
//
// The format is stable and human-inspectable; last writer wins, which
// is safe because exactly one process instance is assumed.
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	entries map[string]float64 // key -> first-seen unix seconds
}

type fileEntry struct {
	TS float64 `json:"ts"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: path, entries: map[string]float64{}}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// First run.
	case err != nil:
		log.Warn("ledger unreadable; starting empty", logx.String("path", path), logx.Err(err))
	default:
		var raw map[string]fileEntry
		if jerr := json.Unmarshal(b, &raw); jerr != nil {
			log.Warn("ledger corrupt; starting empty", logx.String("path", path), logx.Err(jerr))
		} else {
			for k, v := range raw {
				s.entries[k] = v.TS
			}
		}
	}
	return s, nil
}

func (s *fileStore) Seen(k event.Key) bool {
	if k.IsZero() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[k.String()]
	return ok
}

func (s *fileStore) Mark(k event.Key, at time.Time) {
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

func (s *fileStore) Purge(olderThan time.Time) int {
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

func (s *fileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *fileStore) Flush() error {
	s.mu.Lock()
	raw := make(map[string]fileEntry, len(s.entries))
	for k, ts := range s.entries {
		raw[k] = fileEntry{TS: ts}
	}
	s.mu.Unlock()

	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	// Write-then-rename so a crash mid-flush never truncates the ledger.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error {
	return s.Flush()
}
