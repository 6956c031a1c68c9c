// Package session provides the per-invocation session identity and a small
// keyed cache with TTL, source-mtime invalidation, and an age/size sweep.
// Cache policy lives here; storage mechanics live behind the Backend
// interface (in-memory for tests, on-disk for production).
package session

import (
	"fmt"
	"log"
	"os"
	"sort"
	"time"
)

const (
	// DefaultMaxAge is the sweep age threshold.
	DefaultMaxAge = 7 * 24 * time.Hour
	// DefaultMaxBytes caps total payload size before oldest-first eviction.
	DefaultMaxBytes = 64 << 20
)

// Entry is one cached value. SourcePath, when set, ties the entry to a file:
// the entry is a miss once the file's mtime advances past SourceMtime.
type Entry struct {
	Key         string        `json:"key"`
	Payload     []byte        `json:"payload"`
	WrittenAt   time.Time     `json:"written_at"`
	TTL         time.Duration `json:"ttl"`
	SourcePath  string        `json:"source_path,omitempty"`
	SourceMtime time.Time     `json:"source_mtime,omitempty"`
}

// Backend stores entries without knowing about expiry or eviction.
type Backend interface {
	Load(key string) (*Entry, bool, error)
	Store(entry *Entry) error
	Delete(key string) error
	Entries() ([]*Entry, error)
}

// Store layers cache policy over a Backend.
type Store struct {
	backend  Backend
	maxAge   time.Duration
	maxBytes int64
	now      func() time.Time
	statFn   func(string) (os.FileInfo, error)
}

// NewStore creates a policy store with the default age and size bounds.
func NewStore(backend Backend) *Store {
	return &Store{
		backend:  backend,
		maxAge:   DefaultMaxAge,
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
		statFn:   os.Stat,
	}
}

// WithLimits overrides the sweep bounds.
func (s *Store) WithLimits(maxAge time.Duration, maxBytes int64) *Store {
	s.maxAge = maxAge
	s.maxBytes = maxBytes
	return s
}

// Put stores payload under key with the given TTL. A zero TTL means the
// entry only expires via the sweep.
func (s *Store) Put(key string, payload []byte, ttl time.Duration) error {
	return s.backend.Store(&Entry{
		Key:       key,
		Payload:   payload,
		WrittenAt: s.now(),
		TTL:       ttl,
	})
}

// PutDerived stores payload derived from sourcePath, recording the source
// mtime so the entry invalidates when the file changes.
func (s *Store) PutDerived(key string, payload []byte, ttl time.Duration, sourcePath string) error {
	entry := &Entry{
		Key:        key,
		Payload:    payload,
		WrittenAt:  s.now(),
		TTL:        ttl,
		SourcePath: sourcePath,
	}
	if info, err := s.statFn(sourcePath); err == nil {
		entry.SourceMtime = info.ModTime()
	}
	return s.backend.Store(entry)
}

// Get returns the payload for key, treating expired or stale entries as
// misses. Stale and expired entries are deleted on the way out.
func (s *Store) Get(key string) ([]byte, bool) {
	entry, ok, err := s.backend.Load(key)
	if err != nil {
		log.Printf("[Session] Load %s failed: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	if entry.TTL > 0 && s.now().Sub(entry.WrittenAt) > entry.TTL {
		_ = s.backend.Delete(key)
		return nil, false
	}

	if entry.SourcePath != "" {
		info, err := s.statFn(entry.SourcePath)
		if err != nil || info.ModTime().After(entry.SourceMtime) {
			_ = s.backend.Delete(key)
			return nil, false
		}
	}

	return entry.Payload, true
}

// Sweep removes entries older than the age threshold and, if the remaining
// payload bytes still exceed the size cap, evicts the oldest remainder.
// Returns the number of removed entries.
func (s *Store) Sweep() (int, error) {
	entries, err := s.backend.Entries()
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}

	removed := 0
	cutoff := s.now().Add(-s.maxAge)

	var kept []*Entry
	var total int64
	for _, entry := range entries {
		if entry.WrittenAt.Before(cutoff) {
			_ = s.backend.Delete(entry.Key)
			removed++
			continue
		}
		kept = append(kept, entry)
		total += int64(len(entry.Payload))
	}

	if total > s.maxBytes {
		sort.Slice(kept, func(i, j int) bool {
			return kept[i].WrittenAt.Before(kept[j].WrittenAt)
		})
		for _, entry := range kept {
			if total <= s.maxBytes {
				break
			}
			_ = s.backend.Delete(entry.Key)
			total -= int64(len(entry.Payload))
			removed++
		}
	}

	if removed > 0 {
		log.Printf("[Session] Sweep removed %d entries", removed)
	}
	return removed, nil
}
