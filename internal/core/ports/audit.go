package ports

import (
	"context"

	"github.com/silvernonstop/auditapi/internal/core/domain"
)

// AuditEventRepository is the durable store behind the ingestion engine.
// FindByFingerprint returns domain.ErrNotFound on a miss; Insert returns
// domain.ErrConflict when another caller inserted the same fingerprint first;
// IncrementOccurrence is a single atomic read-modify-write.
type AuditEventRepository interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (domain.AuditEvent, error)
	Insert(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	IncrementOccurrence(ctx context.Context, id string) (int, error)
	UpdateResolution(ctx context.Context, id, state string) error
	ScanAll(ctx context.Context) ([]domain.AuditEvent, error)
	ListRecent(ctx context.Context, filter domain.EventFilter) ([]domain.AuditEvent, error)
}
