package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/silvernonstop/auditapi/internal/core/domain"
	"github.com/silvernonstop/auditapi/internal/core/ports"
)

const (
	IngestCreated          = "created"
	IngestDuplicateUpdated = "duplicate_updated"
)

type IngestResult struct {
	Status          string
	ID              string
	Category        string
	OccurrenceCount int
}

// IngestService decides whether an incoming event is new or a recurrence of a
// previously seen one. Exclusivity for concurrent ingestion of the same
// fingerprint lives in the store: the unique fingerprint index turns a lost
// insert race into domain.ErrConflict, and IncrementOccurrence is atomic.
type IngestService struct {
	normalizer *Normalizer
	repo       ports.AuditEventRepository
	alerts     ports.AlertQueueRepository
}

func NewIngestService(normalizer *Normalizer, repo ports.AuditEventRepository, alerts ports.AlertQueueRepository) *IngestService {
	return &IngestService{normalizer: normalizer, repo: repo, alerts: alerts}
}

// Fingerprint derives the deduplication key. Identity is exactly these four
// fields; description, severity and context never affect it.
func Fingerprint(originTable, eventType, affectedField, recordID string) string {
	sum := xxhash.Sum64String(originTable + "_" + eventType + "_" + affectedField + "_" + recordID)
	return fmt.Sprintf("%016x", sum)
}

func (s *IngestService) Ingest(ctx context.Context, raw domain.IncomingEvent) (IngestResult, error) {
	if err := raw.Validate(); err != nil {
		return IngestResult{}, err
	}

	ev := s.normalizer.Normalize(raw)
	fingerprint := Fingerprint(ev.OriginTable, ev.EventType, ev.AffectedField, ev.RecordID)

	existing, err := s.repo.FindByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		return s.recordRecurrence(ctx, existing, ev.Severity)
	case errors.Is(err, domain.ErrNotFound):
		// first occurrence, fall through to insert
	default:
		return IngestResult{}, fmt.Errorf("find by fingerprint: %w", err)
	}

	created, err := s.repo.Insert(ctx, domain.AuditEvent{
		OriginTable:     ev.OriginTable,
		EventType:       ev.EventType,
		Severity:        ev.Severity,
		Description:     ev.Description,
		AffectedField:   ev.AffectedField,
		RecordID:        ev.RecordID,
		ContextData:     ev.ContextData,
		Category:        ev.Category,
		NarrativeImpact: ev.NarrativeImpact,
		RequiredAction:  ev.RequiredAction,
		ResolutionState: domain.ResolutionPending,
		Fingerprint:     fingerprint,
		OccurrenceCount: 1,
	})
	if errors.Is(err, domain.ErrConflict) {
		// another caller inserted this fingerprint between the lookup and the
		// insert; fold this occurrence into their row
		winner, findErr := s.repo.FindByFingerprint(ctx, fingerprint)
		if findErr != nil {
			return IngestResult{}, fmt.Errorf("find after conflict: %w", findErr)
		}
		return s.recordRecurrence(ctx, winner, ev.Severity)
	}
	if err != nil {
		return IngestResult{}, fmt.Errorf("insert event: %w", err)
	}

	if created.Severity == domain.SeverityCritical {
		s.enqueueAlert(ctx, created)
	}

	return IngestResult{Status: IngestCreated, ID: created.ID, Category: created.Category}, nil
}

func (s *IngestService) recordRecurrence(ctx context.Context, existing domain.AuditEvent, severity string) (IngestResult, error) {
	count, err := s.repo.IncrementOccurrence(ctx, existing.ID)
	if err != nil {
		return IngestResult{}, fmt.Errorf("increment occurrence: %w", err)
	}

	if severity == domain.SeverityCritical {
		existing.OccurrenceCount = count
		existing.IsRecurring = true
		s.enqueueAlert(ctx, existing)
	}

	return IngestResult{Status: IngestDuplicateUpdated, ID: existing.ID, OccurrenceCount: count}, nil
}

// enqueueAlert is best-effort: a full queue or unavailable store must never
// fail the ingestion call that triggered it.
func (s *IngestService) enqueueAlert(ctx context.Context, event domain.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal alert payload event=%s: %v", event.ID, err)
		return
	}

	alert := domain.Alert{
		EventID:       event.ID,
		OriginTable:   event.OriginTable,
		Severity:      event.Severity,
		Description:   event.Description,
		PayloadJSON:   payload,
		Status:        domain.AlertStatusPending,
		NextAttemptAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.alerts.Enqueue(ctx, alert); err != nil {
		log.Printf("enqueue critical alert event=%s: %v", event.ID, err)
	}
}
