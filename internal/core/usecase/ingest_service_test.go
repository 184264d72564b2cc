package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/silvernonstop/auditapi/internal/core/domain"
)

type eventRepoStub struct {
	findFn      func(ctx context.Context, fingerprint string) (domain.AuditEvent, error)
	insertFn    func(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	incrementFn func(ctx context.Context, id string) (int, error)

	inserted    []domain.AuditEvent
	incremented []string
}

func (s *eventRepoStub) FindByFingerprint(ctx context.Context, fingerprint string) (domain.AuditEvent, error) {
	return s.findFn(ctx, fingerprint)
}

func (s *eventRepoStub) Insert(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	s.inserted = append(s.inserted, event)
	return s.insertFn(ctx, event)
}

func (s *eventRepoStub) IncrementOccurrence(ctx context.Context, id string) (int, error) {
	s.incremented = append(s.incremented, id)
	return s.incrementFn(ctx, id)
}

func (s *eventRepoStub) UpdateResolution(ctx context.Context, id, state string) error { return nil }

func (s *eventRepoStub) ScanAll(ctx context.Context) ([]domain.AuditEvent, error) { return nil, nil }

func (s *eventRepoStub) ListRecent(ctx context.Context, filter domain.EventFilter) ([]domain.AuditEvent, error) {
	return nil, nil
}

type alertQueueStub struct {
	enqueued  []domain.Alert
	enqueueFn func(ctx context.Context, alert domain.Alert) error
}

func (s *alertQueueStub) Enqueue(ctx context.Context, alert domain.Alert) error {
	s.enqueued = append(s.enqueued, alert)
	if s.enqueueFn != nil {
		return s.enqueueFn(ctx, alert)
	}
	return nil
}

func (s *alertQueueStub) FetchPending(ctx context.Context, limit int) ([]domain.Alert, error) {
	return nil, nil
}

func (s *alertQueueStub) MarkDispatched(ctx context.Context, id int64) error { return nil }

func (s *alertQueueStub) MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time, errMsg string) error {
	return nil
}

func (s *alertQueueStub) MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error {
	return nil
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("Talentos", "Error_Integridad", "email", "T-001")
	b := Fingerprint("Talentos", "Error_Integridad", "email", "T-001")
	if a != b {
		t.Fatalf("same inputs must hash equal: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}

	c := Fingerprint("Talentos", "Error_Integridad", "email", "T-002")
	if a == c {
		t.Fatalf("different record ids must not collide")
	}
}

func TestIngestInvalidEvent(t *testing.T) {
	svc := NewIngestService(NewNormalizer(DefaultNormalizerConfig()), &eventRepoStub{}, &alertQueueStub{})

	_, err := svc.Ingest(context.Background(), domain.IncomingEvent{Severity: domain.SeverityLow})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestIngestCreatesFirstOccurrence(t *testing.T) {
	repo := &eventRepoStub{
		findFn: func(ctx context.Context, fingerprint string) (domain.AuditEvent, error) {
			return domain.AuditEvent{}, domain.ErrNotFound
		},
		insertFn: func(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
			event.ID = "ev-1"
			return event, nil
		},
	}
	alerts := &alertQueueStub{}
	svc := NewIngestService(NewNormalizer(DefaultNormalizerConfig()), repo, alerts)

	result, err := svc.Ingest(context.Background(), domain.IncomingEvent{
		OriginTable: "Config_FEM",
		EventType:   "FEM_Inconsistente",
		Severity:    domain.SeverityHigh,
		Description: "fem fuera de rango",
		RecordID:    "cfg-9",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != IngestCreated {
		t.Fatalf("expected status %q, got %q", IngestCreated, result.Status)
	}
	if result.ID != "ev-1" {
		t.Fatalf("expected new id, got %q", result.ID)
	}
	if result.Category != "Configuracion_FEM" {
		t.Fatalf("expected derived category, got %q", result.Category)
	}

	if len(repo.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(repo.inserted))
	}
	row := repo.inserted[0]
	if row.OccurrenceCount != 1 || row.ResolutionState != domain.ResolutionPending {
		t.Fatalf("unexpected initial row state: %+v", row)
	}
	if row.Fingerprint != Fingerprint("Config_FEM", "FEM_Inconsistente", "", "cfg-9") {
		t.Fatalf("unexpected fingerprint %q", row.Fingerprint)
	}
	if len(alerts.enqueued) != 0 {
		t.Fatalf("HIGH event must not enqueue alerts, got %d", len(alerts.enqueued))
	}
}

func TestIngestDuplicateIncrements(t *testing.T) {
	existing := domain.AuditEvent{ID: "ev-1", Severity: domain.SeverityHigh, OccurrenceCount: 1}
	repo := &eventRepoStub{
		findFn: func(ctx context.Context, fingerprint string) (domain.AuditEvent, error) {
			return existing, nil
		},
		incrementFn: func(ctx context.Context, id string) (int, error) {
			return 2, nil
		},
	}
	svc := NewIngestService(NewNormalizer(DefaultNormalizerConfig()), repo, &alertQueueStub{})

	result, err := svc.Ingest(context.Background(), domain.IncomingEvent{
		OriginTable: "Config_FEM",
		EventType:   "FEM_Inconsistente",
		Severity:    domain.SeverityHigh,
		Description: "fem fuera de rango",
		RecordID:    "cfg-9",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != IngestDuplicateUpdated {
		t.Fatalf("expected status %q, got %q", IngestDuplicateUpdated, result.Status)
	}
	if result.ID != "ev-1" || result.OccurrenceCount != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(repo.inserted) != 0 {
		t.Fatalf("duplicate must not insert a new row")
	}
	if len(repo.incremented) != 1 || repo.incremented[0] != "ev-1" {
		t.Fatalf("expected one increment for ev-1, got %v", repo.incremented)
	}
}

func TestIngestLostInsertRaceFoldsIntoWinner(t *testing.T) {
	winner := domain.AuditEvent{ID: "ev-winner", Severity: domain.SeverityMedium}
	calls := 0
	repo := &eventRepoStub{
		findFn: func(ctx context.Context, fingerprint string) (domain.AuditEvent, error) {
			calls++
			if calls == 1 {
				return domain.AuditEvent{}, domain.ErrNotFound
			}
			return winner, nil
		},
		insertFn: func(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
			return domain.AuditEvent{}, domain.ErrConflict
		},
		incrementFn: func(ctx context.Context, id string) (int, error) {
			return 2, nil
		},
	}
	svc := NewIngestService(NewNormalizer(DefaultNormalizerConfig()), repo, &alertQueueStub{})

	result, err := svc.Ingest(context.Background(), domain.IncomingEvent{
		OriginTable: "Talentos",
		EventType:   "Error_Integridad",
		Severity:    domain.SeverityMedium,
		Description: "duplicado simultaneo",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Status != IngestDuplicateUpdated || result.ID != "ev-winner" {
		t.Fatalf("expected race folded into winner, got %+v", result)
	}
	if len(repo.incremented) != 1 || repo.incremented[0] != "ev-winner" {
		t.Fatalf("expected increment on winner row, got %v", repo.incremented)
	}
}

func TestIngestCriticalEnqueuesAlert(t *testing.T) {
	repo := &eventRepoStub{
		findFn: func(ctx context.Context, fingerprint string) (domain.AuditEvent, error) {
			return domain.AuditEvent{}, domain.ErrNotFound
		},
		insertFn: func(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
			event.ID = "ev-crit"
			return event, nil
		},
	}
	alerts := &alertQueueStub{}
	svc := NewIngestService(NewNormalizer(DefaultNormalizerConfig()), repo, alerts)

	_, err := svc.Ingest(context.Background(), domain.IncomingEvent{
		OriginTable: "Talentos",
		EventType:   "Error_Integridad",
		Severity:    domain.SeverityCritical,
		Description: "perdida de datos",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(alerts.enqueued) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts.enqueued))
	}
	alert := alerts.enqueued[0]
	if alert.EventID != "ev-crit" || alert.Severity != domain.SeverityCritical {
		t.Fatalf("unexpected alert: %+v", alert)
	}
	if alert.Status != domain.AlertStatusPending {
		t.Fatalf("expected pending alert, got %q", alert.Status)
	}
}

func TestIngestCriticalAlertFailureDoesNotFailIngest(t *testing.T) {
	repo := &eventRepoStub{
		findFn: func(ctx context.Context, fingerprint string) (domain.AuditEvent, error) {
			return domain.AuditEvent{}, domain.ErrNotFound
		},
		insertFn: func(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
			event.ID = "ev-crit"
			return event, nil
		},
	}
	alerts := &alertQueueStub{
		enqueueFn: func(ctx context.Context, alert domain.Alert) error {
			return errors.New("queue unavailable")
		},
	}
	svc := NewIngestService(NewNormalizer(DefaultNormalizerConfig()), repo, alerts)

	result, err := svc.Ingest(context.Background(), domain.IncomingEvent{
		OriginTable: "Talentos",
		EventType:   "Error_Integridad",
		Severity:    domain.SeverityCritical,
		Description: "perdida de datos",
	})
	if err != nil {
		t.Fatalf("alert failure must not fail ingestion, got %v", err)
	}
	if result.Status != IngestCreated {
		t.Fatalf("expected created, got %q", result.Status)
	}
}

func TestIngestCriticalRecurrenceAlertsAgain(t *testing.T) {
	existing := domain.AuditEvent{ID: "ev-crit", Severity: domain.SeverityCritical, OccurrenceCount: 3}
	repo := &eventRepoStub{
		findFn: func(ctx context.Context, fingerprint string) (domain.AuditEvent, error) {
			return existing, nil
		},
		incrementFn: func(ctx context.Context, id string) (int, error) {
			return 4, nil
		},
	}
	alerts := &alertQueueStub{}
	svc := NewIngestService(NewNormalizer(DefaultNormalizerConfig()), repo, alerts)

	result, err := svc.Ingest(context.Background(), domain.IncomingEvent{
		OriginTable: "Talentos",
		EventType:   "Error_Integridad",
		Severity:    domain.SeverityCritical,
		Description: "perdida de datos",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.OccurrenceCount != 4 {
		t.Fatalf("expected count 4, got %d", result.OccurrenceCount)
	}
	if len(alerts.enqueued) != 1 {
		t.Fatalf("critical recurrence must alert, got %d alerts", len(alerts.enqueued))
	}
}
