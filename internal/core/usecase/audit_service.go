package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/silvernonstop/auditapi/internal/core/domain"
	"github.com/silvernonstop/auditapi/internal/core/ports"
)

const defaultRecentEvents = 10

// AuditService covers the read/resolve side: marking events resolved and
// folding stored state into dashboard diagnostics.
type AuditService struct {
	repo        ports.AuditEventRepository
	recentLimit int
}

func NewAuditService(repo ports.AuditEventRepository) *AuditService {
	return &AuditService{repo: repo, recentLimit: defaultRecentEvents}
}

// Resolve marks the event RESOLVED and refreshes its updatedAt. Resolving an
// already-resolved event succeeds without touching the row; an unknown id
// returns domain.ErrNotFound.
func (s *AuditService) Resolve(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", domain.ErrValidation)
	}
	return s.repo.UpdateResolution(ctx, id, domain.ResolutionResolved)
}

func (s *AuditService) ListRecent(ctx context.Context, filter domain.EventFilter) ([]domain.AuditEvent, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.ListRecent(ctx, filter)
}

// Summarize is a pure fold over the stored events; it mutates nothing.
func (s *AuditService) Summarize(ctx context.Context) (domain.Diagnostics, error) {
	events, err := s.repo.ScanAll(ctx)
	if err != nil {
		return domain.Diagnostics{}, fmt.Errorf("scan events: %w", err)
	}

	bySeverity := make(map[string]int)
	tables := make(map[string]struct{})
	pendingCritical := 0
	for _, ev := range events {
		bySeverity[ev.Severity]++
		tables[ev.OriginTable] = struct{}{}
		if ev.Severity == domain.SeverityCritical && ev.ResolutionState == domain.ResolutionPending {
			pendingCritical++
		}
	}

	originTables := make([]string, 0, len(tables))
	for table := range tables {
		originTables = append(originTables, table)
	}
	sort.Strings(originTables)

	recent, err := s.repo.ListRecent(ctx, domain.EventFilter{Limit: s.recentLimit})
	if err != nil {
		return domain.Diagnostics{}, fmt.Errorf("list recent events: %w", err)
	}

	return domain.Diagnostics{
		TotalEvents:     len(events),
		BySeverity:      bySeverity,
		PendingCritical: pendingCritical,
		OriginTables:    originTables,
		Recent:          recent,
		Health:          domain.DeriveHealth(pendingCritical, bySeverity[domain.SeverityHigh]),
	}, nil
}
