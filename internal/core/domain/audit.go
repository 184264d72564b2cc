package domain

import (
	"errors"
	"fmt"
	"time"
)

// Severity levels ordered from most to least urgent.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
	SeverityInfo     = "INFO"
)

const (
	ResolutionPending  = "PENDING"
	ResolutionResolved = "RESOLVED"
)

// Sentinels applied during normalization. The normalizer guarantees that
// OriginTable and Category are always populated with either a recognized value
// or one of these.
const (
	FallbackTable          = "Sistema_General"
	FallbackCategory       = "Integridad_Datos"
	DefaultNarrativeImpact = "Sin_Impacto"
)

var (
	ErrValidation = errors.New("invalid event")
	ErrNotFound   = errors.New("not found")

	// ErrConflict signals an insert that lost a fingerprint race. It never
	// leaves the ingestion engine.
	ErrConflict = errors.New("fingerprint conflict")
)

// IncomingEvent is an event description as submitted by a producer, before
// normalization. OriginTable and Category may hold values the system does not
// recognize; the normalizer resolves both.
type IncomingEvent struct {
	OriginTable     string
	EventType       string
	Severity        string
	Description     string
	AffectedField   string
	RecordID        string
	ContextData     map[string]any
	Category        string
	NarrativeImpact string
	RequiredAction  string
}

func (e IncomingEvent) Validate() error {
	if e.EventType == "" {
		return fmt.Errorf("%w: eventType is required", ErrValidation)
	}
	if e.Description == "" {
		return fmt.Errorf("%w: description is required", ErrValidation)
	}
	if !ValidSeverity(e.Severity) {
		return fmt.Errorf("%w: unknown severity %q", ErrValidation, e.Severity)
	}
	return nil
}

func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// AuditEvent is the persisted entity. At most one row exists per distinct
// fingerprint; repeated occurrences increment OccurrenceCount instead of
// inserting a new row.
type AuditEvent struct {
	ID              string         `json:"id"`
	OriginTable     string         `json:"originTable"`
	EventType       string         `json:"eventType"`
	Severity        string         `json:"severity"`
	Description     string         `json:"description"`
	AffectedField   string         `json:"affectedField,omitempty"`
	RecordID        string         `json:"recordId,omitempty"`
	ContextData     map[string]any `json:"contextData,omitempty"`
	Category        string         `json:"category"`
	NarrativeImpact string         `json:"narrativeImpact"`
	RequiredAction  string         `json:"requiredAction,omitempty"`
	ResolutionState string         `json:"resolutionState"`
	Fingerprint     string         `json:"fingerprint"`
	IsRecurring     bool           `json:"isRecurring"`
	OccurrenceCount int            `json:"occurrenceCount"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// EventFilter narrows the recent-events listing.
type EventFilter struct {
	Severity        string
	OriginTable     string
	ResolutionState string
	Limit           int
}

func (f EventFilter) Validate() error {
	if f.Severity != "" && !ValidSeverity(f.Severity) {
		return fmt.Errorf("%w: unknown severity filter %q", ErrValidation, f.Severity)
	}
	if f.ResolutionState != "" && f.ResolutionState != ResolutionPending && f.ResolutionState != ResolutionResolved {
		return fmt.Errorf("%w: unknown resolution state filter %q", ErrValidation, f.ResolutionState)
	}
	return nil
}
