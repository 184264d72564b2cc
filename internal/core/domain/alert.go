package domain

import (
	"encoding/json"
	"time"
)

const (
	AlertStatusPending    = "pending"
	AlertStatusDispatched = "dispatched"
	AlertStatusDead       = "dead"
)

// Alert is a queued operator notification for a CRITICAL event. Rows are
// drained by the alert dispatcher; delivery failures retry with backoff until
// the row goes dead.
type Alert struct {
	ID            int64
	EventID       string
	OriginTable   string
	Severity      string
	Description   string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}
