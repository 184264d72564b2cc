package ports

import (
	"context"
	"time"

	"github.com/silvernonstop/auditapi/internal/core/domain"
)

type AlertNotifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}

type AlertQueueRepository interface {
	Enqueue(ctx context.Context, alert domain.Alert) error
	FetchPending(ctx context.Context, limit int) ([]domain.Alert, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}
