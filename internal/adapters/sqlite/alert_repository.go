package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/silvernonstop/auditapi/internal/adapters/sqlite/gormsqlite"
	"github.com/silvernonstop/auditapi/internal/core/domain"
)

type alertModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	OriginTable   string     `gorm:"column:origin_table;not null"`
	Severity      string     `gorm:"column:severity;not null"`
	Description   string     `gorm:"column:description;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (alertModel) TableName() string {
	return "alert_outbox"
}

type AlertRepository struct {
	db *gormsqlite.DB
}

func NewAlertRepository(db *gormsqlite.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Enqueue(ctx context.Context, alert domain.Alert) error {
	now := time.Now().UTC()
	model := alertModel{
		EventID:       alert.EventID,
		OriginTable:   alert.OriginTable,
		Severity:      alert.Severity,
		Description:   alert.Description,
		PayloadJSON:   string(alert.PayloadJSON),
		Status:        domain.AlertStatusPending,
		Attempts:      0,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("enqueue alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) FetchPending(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []alertModel
	now := time.Now().UTC()
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("status = ? AND next_attempt_at <= ?", domain.AlertStatusPending, now).
			Order("id ASC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pending alerts: %w", err)
	}

	alerts := make([]domain.Alert, 0, len(rows))
	for _, row := range rows {
		alerts = append(alerts, domain.Alert{
			ID:            row.ID,
			EventID:       row.EventID,
			OriginTable:   row.OriginTable,
			Severity:      row.Severity,
			Description:   row.Description,
			PayloadJSON:   json.RawMessage(row.PayloadJSON),
			Status:        row.Status,
			Attempts:      row.Attempts,
			NextAttemptAt: row.NextAttemptAt,
			LastError:     row.LastError,
			CreatedAt:     row.CreatedAt,
			DispatchedAt:  row.DispatchedAt,
		})
	}
	return alerts, nil
}

func (r *AlertRepository) MarkDispatched(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&alertModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": domain.AlertStatusDispatched, "dispatched_at": &now, "last_error": ""}).Error
	})
	if err != nil {
		return fmt.Errorf("mark alert dispatched: %w", err)
	}
	return nil
}

func (r *AlertRepository) MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time, errMsg string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&alertModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"attempts": attempts, "next_attempt_at": nextAttemptAt, "last_error": errMsg}).Error
	})
	if err != nil {
		return fmt.Errorf("mark alert failed: %w", err)
	}
	return nil
}

func (r *AlertRepository) MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&alertModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": domain.AlertStatusDead, "attempts": attempts, "last_error": errMsg}).Error
	})
	if err != nil {
		return fmt.Errorf("mark alert dead: %w", err)
	}
	return nil
}
