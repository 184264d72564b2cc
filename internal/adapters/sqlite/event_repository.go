package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/silvernonstop/auditapi/internal/adapters/sqlite/gormsqlite"
	"github.com/silvernonstop/auditapi/internal/core/domain"
)

type auditEventModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	OriginTable     string    `gorm:"column:origin_table;not null"`
	EventType       string    `gorm:"column:event_type;not null"`
	Severity        string    `gorm:"column:severity;not null"`
	Description     string    `gorm:"column:description;not null"`
	AffectedField   string    `gorm:"column:affected_field;not null"`
	RecordID        string    `gorm:"column:record_id;not null"`
	ContextJSON     string    `gorm:"column:context_json;not null"`
	Category        string    `gorm:"column:category;not null"`
	NarrativeImpact string    `gorm:"column:narrative_impact;not null"`
	RequiredAction  string    `gorm:"column:required_action;not null"`
	ResolutionState string    `gorm:"column:resolution_state;not null"`
	Fingerprint     string    `gorm:"column:fingerprint;not null;uniqueIndex"`
	IsRecurring     bool      `gorm:"column:is_recurring;not null"`
	OccurrenceCount int       `gorm:"column:occurrence_count;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

func (auditEventModel) TableName() string {
	return "audit_events"
}

type AuditEventRepository struct {
	db *gormsqlite.DB
}

func NewAuditEventRepository(db *gormsqlite.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

func (r *AuditEventRepository) FindByFingerprint(ctx context.Context, fingerprint string) (domain.AuditEvent, error) {
	var model auditEventModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("fingerprint = ?", fingerprint).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.AuditEvent{}, domain.ErrNotFound
		}
		return domain.AuditEvent{}, fmt.Errorf("find by fingerprint: %w", err)
	}
	return toDomainEvent(model)
}

// Insert stores a first occurrence. The unique fingerprint index is the
// arbiter under concurrent ingestion: a lost race surfaces as
// domain.ErrConflict and the caller folds into the winning row.
func (r *AuditEventRepository) Insert(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	contextJSON, err := marshalContext(event.ContextData)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("marshal context: %w", err)
	}

	now := time.Now().UTC()
	model := auditEventModel{
		ID:              uuid.NewString(),
		OriginTable:     event.OriginTable,
		EventType:       event.EventType,
		Severity:        event.Severity,
		Description:     event.Description,
		AffectedField:   event.AffectedField,
		RecordID:        event.RecordID,
		ContextJSON:     contextJSON,
		Category:        event.Category,
		NarrativeImpact: event.NarrativeImpact,
		RequiredAction:  event.RequiredAction,
		ResolutionState: domain.ResolutionPending,
		Fingerprint:     event.Fingerprint,
		IsRecurring:     false,
		OccurrenceCount: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.AuditEvent{}, domain.ErrConflict
		}
		return domain.AuditEvent{}, fmt.Errorf("insert audit event: %w", err)
	}
	return toDomainEvent(model)
}

// IncrementOccurrence bumps the counter, marks the event recurring and
// refreshes updated_at in one write transaction, returning the new count.
func (r *AuditEventRepository) IncrementOccurrence(ctx context.Context, id string) (int, error) {
	var count int
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&auditEventModel{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"occurrence_count": gorm.Expr("occurrence_count + 1"),
				"is_recurring":     true,
				"updated_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		var model auditEventModel
		if err := tx.Select("occurrence_count").Where("id = ?", id).First(&model).Error; err != nil {
			return err
		}
		count = model.OccurrenceCount
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("increment occurrence: %w", err)
	}
	return count, nil
}

// UpdateResolution transitions the row to state. Rows already in the target
// state are left untouched so a repeated resolve neither errors nor rewrites
// updated_at.
func (r *AuditEventRepository) UpdateResolution(ctx context.Context, id, state string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&auditEventModel{}).
			Where("id = ? AND resolution_state <> ?", id, state).
			Updates(map[string]any{
				"resolution_state": state,
				"updated_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var exists int64
		if err := tx.Model(&auditEventModel{}).Where("id = ?", id).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("update resolution: %w", err)
	}
	return nil
}

func (r *AuditEventRepository) ScanAll(ctx context.Context) ([]domain.AuditEvent, error) {
	var models []auditEventModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Order("created_at ASC, id ASC").Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}
	return toDomainEvents(models)
}

func (r *AuditEventRepository) ListRecent(ctx context.Context, filter domain.EventFilter) ([]domain.AuditEvent, error) {
	var models []auditEventModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&auditEventModel{})
		if filter.Severity != "" {
			query = query.Where("severity = ?", filter.Severity)
		}
		if filter.OriginTable != "" {
			query = query.Where("origin_table = ?", filter.OriginTable)
		}
		if filter.ResolutionState != "" {
			query = query.Where("resolution_state = ?", filter.ResolutionState)
		}
		return query.Order("created_at DESC, id DESC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list recent audit events: %w", err)
	}
	return toDomainEvents(models)
}

func marshalContext(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func toDomainEvent(model auditEventModel) (domain.AuditEvent, error) {
	var contextData map[string]any
	if model.ContextJSON != "" {
		if err := json.Unmarshal([]byte(model.ContextJSON), &contextData); err != nil {
			return domain.AuditEvent{}, fmt.Errorf("unmarshal context for %s: %w", model.ID, err)
		}
	}

	return domain.AuditEvent{
		ID:              model.ID,
		OriginTable:     model.OriginTable,
		EventType:       model.EventType,
		Severity:        model.Severity,
		Description:     model.Description,
		AffectedField:   model.AffectedField,
		RecordID:        model.RecordID,
		ContextData:     contextData,
		Category:        model.Category,
		NarrativeImpact: model.NarrativeImpact,
		RequiredAction:  model.RequiredAction,
		ResolutionState: model.ResolutionState,
		Fingerprint:     model.Fingerprint,
		IsRecurring:     model.IsRecurring,
		OccurrenceCount: model.OccurrenceCount,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}, nil
}

func toDomainEvents(models []auditEventModel) ([]domain.AuditEvent, error) {
	events := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		ev, err := toDomainEvent(model)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
