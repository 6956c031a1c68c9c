package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/patchpilot/patchpilot/internal/session"
	"github.com/patchpilot/patchpilot/internal/tracker"
)

// TaskStatus tracks a task through one pipeline run.
type TaskStatus string

const (
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// TaskContext is the persisted record of one task. It lives in the
// session-scoped cache for the lifetime of the run.
type TaskContext struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Labels    []string   `json:"labels,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Status    TaskStatus `json:"status"`
	SessionID string     `json:"session_id"`
}

func newTaskContext(issue *tracker.IssueRecord, sessionID string) *TaskContext {
	return &TaskContext{
		ID:        fmt.Sprintf("issue-%d", issue.Number),
		Title:     issue.Title,
		Body:      issue.Body,
		Labels:    issue.Labels,
		CreatedAt: issue.CreatedAt,
		Status:    StatusProcessing,
		SessionID: sessionID,
	}
}

// save persists the task context under its session-scoped key. Persistence
// failures are not fatal to the run.
func (t *TaskContext) save(store *session.Store, sess *session.Session) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode task context: %w", err)
	}
	return store.Put(sess.Key("task/"+t.ID), payload, 0)
}
