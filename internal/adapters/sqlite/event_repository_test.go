package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/silvernonstop/auditapi/internal/adapters/sqlite/gormsqlite"
	"github.com/silvernonstop/auditapi/internal/core/domain"
	"github.com/silvernonstop/auditapi/migrations"
)

func openTestDB(t *testing.T) *gormsqlite.DB {
	t.Helper()

	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "audit.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	wdb, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("write sql db: %v", err)
	}
	if err := migrations.Up(context.Background(), wdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func sampleEvent(fingerprint string) domain.AuditEvent {
	return domain.AuditEvent{
		OriginTable:     "Talentos",
		EventType:       "Error_Integridad",
		Severity:        domain.SeverityHigh,
		Description:     "referencia rota",
		AffectedField:   "email",
		RecordID:        "T-001",
		ContextData:     map[string]any{"campo": "email"},
		Category:        "Integridad_Datos",
		NarrativeImpact: domain.DefaultNarrativeImpact,
		ResolutionState: domain.ResolutionPending,
		Fingerprint:     fingerprint,
		OccurrenceCount: 1,
	}
}

func TestInsertAndFindByFingerprint(t *testing.T) {
	repo := NewAuditEventRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Insert(ctx, sampleEvent("fp-001"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.OccurrenceCount != 1 || created.IsRecurring {
		t.Fatalf("unexpected initial state: %+v", created)
	}

	found, err := repo.FindByFingerprint(ctx, "fp-001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("expected id %q, got %q", created.ID, found.ID)
	}
	if found.ContextData["campo"] != "email" {
		t.Fatalf("context data did not round-trip: %v", found.ContextData)
	}

	if _, err := repo.FindByFingerprint(ctx, "fp-missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on miss, got %v", err)
	}
}

func TestInsertDuplicateFingerprintConflicts(t *testing.T) {
	repo := NewAuditEventRepository(openTestDB(t))
	ctx := context.Background()

	if _, err := repo.Insert(ctx, sampleEvent("fp-001")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if _, err := repo.Insert(ctx, sampleEvent("fp-001")); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate fingerprint, got %v", err)
	}
}

func TestIncrementOccurrence(t *testing.T) {
	repo := NewAuditEventRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Insert(ctx, sampleEvent("fp-001"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	count, err := repo.IncrementOccurrence(ctx, created.ID)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	count, err = repo.IncrementOccurrence(ctx, created.ID)
	if err != nil {
		t.Fatalf("increment again: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	found, err := repo.FindByFingerprint(ctx, "fp-001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !found.IsRecurring || found.OccurrenceCount != 3 {
		t.Fatalf("expected recurring row with count 3, got %+v", found)
	}
	if !found.UpdatedAt.After(found.CreatedAt) {
		t.Fatalf("expected updated_at refreshed past created_at")
	}

	if _, err := repo.IncrementOccurrence(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestUpdateResolutionIdempotent(t *testing.T) {
	repo := NewAuditEventRepository(openTestDB(t))
	ctx := context.Background()

	created, err := repo.Insert(ctx, sampleEvent("fp-001"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := repo.UpdateResolution(ctx, created.ID, domain.ResolutionResolved); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	first, err := repo.FindByFingerprint(ctx, "fp-001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if first.ResolutionState != domain.ResolutionResolved {
		t.Fatalf("expected RESOLVED, got %q", first.ResolutionState)
	}

	if err := repo.UpdateResolution(ctx, created.ID, domain.ResolutionResolved); err != nil {
		t.Fatalf("repeated resolve must succeed: %v", err)
	}
	second, err := repo.FindByFingerprint(ctx, "fp-001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("repeated resolve must not touch the row: %v vs %v", second.UpdatedAt, first.UpdatedAt)
	}

	if err := repo.UpdateResolution(ctx, "missing", domain.ResolutionResolved); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestListRecentFilters(t *testing.T) {
	repo := NewAuditEventRepository(openTestDB(t))
	ctx := context.Background()

	high := sampleEvent("fp-high")
	critical := sampleEvent("fp-crit")
	critical.Severity = domain.SeverityCritical
	critical.OriginTable = "Config_FEM"

	if _, err := repo.Insert(ctx, high); err != nil {
		t.Fatalf("insert high: %v", err)
	}
	crit, err := repo.Insert(ctx, critical)
	if err != nil {
		t.Fatalf("insert critical: %v", err)
	}
	if err := repo.UpdateResolution(ctx, crit.ID, domain.ResolutionResolved); err != nil {
		t.Fatalf("resolve critical: %v", err)
	}

	all, err := repo.ListRecent(ctx, domain.EventFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 events, got %d", len(all))
	}

	bySeverity, err := repo.ListRecent(ctx, domain.EventFilter{Severity: domain.SeverityCritical, Limit: 10})
	if err != nil {
		t.Fatalf("list by severity: %v", err)
	}
	if len(bySeverity) != 1 || bySeverity[0].ID != crit.ID {
		t.Fatalf("unexpected severity filter result: %v", bySeverity)
	}

	byTable, err := repo.ListRecent(ctx, domain.EventFilter{OriginTable: "Config_FEM", Limit: 10})
	if err != nil {
		t.Fatalf("list by table: %v", err)
	}
	if len(byTable) != 1 || byTable[0].OriginTable != "Config_FEM" {
		t.Fatalf("unexpected table filter result: %v", byTable)
	}

	pending, err := repo.ListRecent(ctx, domain.EventFilter{ResolutionState: domain.ResolutionPending, Limit: 10})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ResolutionState != domain.ResolutionPending {
		t.Fatalf("unexpected resolution filter result: %v", pending)
	}
}

func TestScanAllOrdersByCreation(t *testing.T) {
	repo := NewAuditEventRepository(openTestDB(t))
	ctx := context.Background()

	for _, fp := range []string{"fp-1", "fp-2", "fp-3"} {
		if _, err := repo.Insert(ctx, sampleEvent(fp)); err != nil {
			t.Fatalf("insert %s: %v", fp, err)
		}
	}

	events, err := repo.ScanAll(ctx)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].CreatedAt.Before(events[i-1].CreatedAt) {
			t.Fatalf("expected ascending creation order")
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)

	wdb, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("write sql db: %v", err)
	}
	if err := migrations.Up(context.Background(), wdb); err != nil {
		t.Fatalf("second migrate must be a no-op: %v", err)
	}
}
