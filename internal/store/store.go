// Package store caches the previous run's snapshot in a single JSON file
// so the next run has a baseline for delta evaluation.
//
// The file is not locked: two concurrent checks against the same host can
// race on the read/compute/write window. Schedulers run one check per host
// at a time, so this is an accepted limitation.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/dm/twemcheck/internal/stats"
)

// MaxAge is the staleness window: a cached snapshot older than this is
// treated as absent, so the run re-establishes a baseline instead of
// computing deltas against ancient counters.
const MaxAge = 5 * time.Minute

const filePrefix = "twemproxy-"

// Clock is the subset of clockwork.Clock the store needs.
type Clock interface {
	Now() time.Time
}

// Store reads and writes the per-host snapshot cache under a directory.
type Store struct {
	dir   string
	clock Clock
	log   *zap.Logger
}

// New returns a Store rooted at dir. A nil clock means the real clock; a
// nil logger means no logging. An empty dir falls back to os.TempDir().
func New(dir string, clock Clock, logger *zap.Logger) *Store {
	if dir == "" {
		dir = os.TempDir()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, clock: clock, log: logger}
}

// Load returns the cached snapshot for host. ok is false when no cache
// exists or the cache is older than MaxAge; an unreadable or corrupt cache
// file is an error, not a silent miss.
func (s *Store) Load(host string) (snap stats.Snapshot, ok bool, err error) {
	path := s.Path(host)

	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Debug("no cached snapshot", zap.String("path", path))
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("stat cached snapshot: %w", err)
	}

	if age := s.clock.Now().Sub(fi.ModTime()); age > MaxAge {
		s.log.Debug("cached snapshot expired",
			zap.String("path", path),
			zap.Duration("age", age))
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read cached snapshot: %w", err)
	}
	snap, err = stats.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("cached snapshot %s: %w", path, err)
	}
	return snap, true, nil
}

// Save writes snap as JSON for host, replacing any previous cache.
func (s *Store) Save(host string, snap stats.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	path := s.Path(host)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write cached snapshot: %w", err)
	}
	s.log.Debug("saved snapshot", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}

// Path returns the cache file path for host.
func (s *Store) Path(host string) string {
	return filepath.Join(s.dir, filePrefix+sanitizeHost(host))
}

// sanitizeHost maps every byte outside [A-Za-z0-9._-] to '_' so a host
// value can never escape the cache directory or form an invalid filename.
// Hosts that differ only in unsafe bytes share a cache file; acceptable
// for hostnames and IPs.
func sanitizeHost(host string) string {
	out := []byte(host)
	for i, b := range out {
		switch {
		case b >= 'a' && b <= 'z':
		case b >= 'A' && b <= 'Z':
		case b >= '0' && b <= '9':
		case b == '.' || b == '_' || b == '-':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
