// Package journal keeps an append-only log of take events: every recorded
// upload and every removal. The files under recorded/ remain the source of
// truth; the journal only answers "what happened to this prompt".
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action is the kind of take event.
type Action string

const (
	ActionRecorded Action = "recorded"
	ActionRemoved  Action = "removed"
)

// Actions lists every action in a stable order.
var Actions = []Action{ActionRecorded, ActionRemoved}

// Event is one journal entry.
type Event struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Action    Action    `json:"action"`
	Size      int64     `json:"size_bytes"`
	RemoteIP  string    `json:"remote_ip,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent returns an event with a fresh ID and the current time.
func NewEvent(key string, action Action, size int64, remoteIP string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Key:       key,
		Action:    action,
		Size:      size,
		RemoteIP:  remoteIP,
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists take events.
type Store interface {
	// Append records an event. ID and CreatedAt are filled when empty.
	Append(ctx context.Context, ev *Event) error
	// History returns the newest events for key first, at most limit.
	History(ctx context.Context, key string, limit int) ([]Event, error)
	// CountByAction returns the number of events per action.
	CountByAction(ctx context.Context) (map[Action]int64, error)
	Close() error
}

// DefaultHistoryLimit caps History when the caller passes a non-positive
// limit.
const DefaultHistoryLimit = 50

// Normalize fills a missing ID and timestamp. Store implementations call
// it before writing.
func Normalize(ev *Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
}

// ClampLimit returns DefaultHistoryLimit for non-positive values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
