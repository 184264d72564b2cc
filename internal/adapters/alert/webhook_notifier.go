package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/silvernonstop/auditapi/internal/core/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookNotifier delivers critical-event alerts to a configured HTTP
// endpoint. Each request is signed with HMAC-SHA256 so the receiver can
// verify authenticity. Non-2xx responses are errors, letting the alert
// dispatcher apply its retry/dead-letter policy.
type WebhookNotifier struct {
	url    string
	secret []byte
	client *http.Client
}

// NewWebhookNotifier returns a WebhookNotifier that POSTs alert payloads to
// url and signs them with secret. A zero or negative timeout falls back to
// defaultWebhookTimeout.
func NewWebhookNotifier(url, secret string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookNotifier{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: timeout},
	}
}

// Notify POSTs the alert's event payload to the configured URL with headers:
//
//	Content-Type:        application/json
//	X-Audit-Event-Id:    <alert.EventID>
//	X-Audit-Severity:    <alert.Severity>
//	X-Audit-Table:       <alert.OriginTable>
//	X-Hub-Signature-256: sha256=<hex-encoded HMAC-SHA256>
func (n *WebhookNotifier) Notify(ctx context.Context, alert domain.Alert) error {
	sig := n.sign(alert.PayloadJSON)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(alert.PayloadJSON))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Audit-Event-Id", alert.EventID)
	req.Header.Set("X-Audit-Severity", alert.Severity)
	req.Header.Set("X-Audit-Table", alert.OriginTable)
	req.Header.Set("X-Hub-Signature-256", "sha256="+sig)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (n *WebhookNotifier) sign(payload []byte) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
