package session

import (
	"fmt"
	"os"
	"time"
)

// Status values for a session lifecycle.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Session scopes one pipeline invocation. Concurrent invocations sharing a
// cache directory get distinct ids (pid + start time), so session-scoped
// keys never collide.
type Session struct {
	ID               string
	StartedAt        time.Time
	Status           string
	ProcessedTaskIDs []string
	CachedKeys       []string
}

// New creates a running session with an id derived from process identity.
func New() *Session {
	now := time.Now()
	return &Session{
		ID:        fmt.Sprintf("%d-%d", os.Getpid(), now.Unix()),
		StartedAt: now,
		Status:    StatusRunning,
	}
}

// Key namespaces k under this session.
func (s *Session) Key(k string) string {
	return "s/" + s.ID + "/" + k
}

// SharedKey namespaces k in the cross-session scope. Used for entries that
// are content-addressed (file digests) or global (probe cooldowns).
func SharedKey(k string) string {
	return "shared/" + k
}

// RecordTask notes a processed task id.
func (s *Session) RecordTask(id string) {
	s.ProcessedTaskIDs = append(s.ProcessedTaskIDs, id)
}

// RecordKey notes a cache key written during this session.
func (s *Session) RecordKey(key string) {
	s.CachedKeys = append(s.CachedKeys, key)
}

// Close marks the session completed (or failed).
func (s *Session) Close(failed bool) {
	if failed {
		s.Status = StatusFailed
		return
	}
	s.Status = StatusCompleted
}
