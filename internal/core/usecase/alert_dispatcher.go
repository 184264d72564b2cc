package usecase

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/silvernonstop/auditapi/internal/core/ports"
)

// AlertDispatcher drains pending alert rows on an interval and delivers them
// through the configured notifier. A failed delivery retries with quadratic
// backoff until maxRetry, then the row goes dead.
type AlertDispatcher struct {
	repo      ports.AlertQueueRepository
	notifier  ports.AlertNotifier
	interval  time.Duration
	batchSize int
	maxRetry  int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	deliveredTotal atomic.Int64
	failedTotal    atomic.Int64
	deadTotal      atomic.Int64
}

type AlertDispatcherMetrics struct {
	DeliveredTotal int64
	FailedTotal    int64
	DeadTotal      int64
}

func NewAlertDispatcher(repo ports.AlertQueueRepository, notifier ports.AlertNotifier, interval time.Duration, batchSize int) *AlertDispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &AlertDispatcher{repo: repo, notifier: notifier, interval: interval, batchSize: batchSize, maxRetry: 5}
}

func (d *AlertDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop(ctx)
}

func (d *AlertDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *AlertDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.dispatchBatch(ctx); err != nil {
			log.Printf("alert dispatch batch error: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *AlertDispatcher) dispatchBatch(ctx context.Context) error {
	alerts, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, alert := range alerts {
		if err := d.notifier.Notify(ctx, alert); err != nil {
			if markErr := d.markFailure(ctx, alert.ID, alert.Attempts, err.Error()); markErr != nil {
				return markErr
			}
			d.failedTotal.Add(1)
			continue
		}

		if err := d.repo.MarkDispatched(ctx, alert.ID); err != nil {
			return err
		}
		d.deliveredTotal.Add(1)
	}

	return nil
}

func (d *AlertDispatcher) markFailure(ctx context.Context, id int64, prevAttempts int, errMsg string) error {
	attempts := prevAttempts + 1
	if attempts >= d.maxRetry {
		if err := d.repo.MarkDead(ctx, id, attempts, errMsg); err != nil {
			return err
		}
		d.deadTotal.Add(1)
		return nil
	}
	next := time.Now().UTC().Add(backoffDuration(attempts))
	return d.repo.MarkFailed(ctx, id, attempts, next, errMsg)
}

func (d *AlertDispatcher) Metrics() AlertDispatcherMetrics {
	return AlertDispatcherMetrics{
		DeliveredTotal: d.deliveredTotal.Load(),
		FailedTotal:    d.failedTotal.Load(),
		DeadTotal:      d.deadTotal.Load(),
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	d := time.Duration(attempt*attempt) * time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}
