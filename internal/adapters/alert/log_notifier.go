package alert

import (
	"context"
	"log"

	"github.com/silvernonstop/auditapi/internal/core/domain"
)

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, alert domain.Alert) error {
	log.Printf("ALERT severity=%s event_id=%s table=%s description=%q", alert.Severity, alert.EventID, alert.OriginTable, alert.Description)
	return nil
}
