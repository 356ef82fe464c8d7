// Package notifier fans domain events out to subscribed webhook endpoints.
// Delivery is best-effort: failures are logged and never propagate back to
// the publishing module.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mantaqc_backend/internal/checklists"
	"mantaqc_backend/internal/reports"
	"mantaqc_backend/platform/config"
	"mantaqc_backend/platform/events"
	"mantaqc_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// WebhookNotifier posts event envelopes to every configured endpoint.
type WebhookNotifier struct {
	endpoints []string
	client    *http.Client
	log       *logger.Logger
}

// New creates the webhook notifier.
func New(cfg config.WebhookConfig, log *logger.Logger) *WebhookNotifier {
	timeout := cfg.GetWebhookTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		endpoints: cfg.GetWebhookEndpoints(),
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// RegisterHandlers subscribes the notifier to the events it forwards.
func (n *WebhookNotifier) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(checklists.EventCheckCompleted, events.HandlerFunc(n.forward))
	bus.Subscribe(reports.EventReportReady, events.HandlerFunc(n.forward))
}

// envelope is the wire format posted to endpoints.
type envelope struct {
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func (n *WebhookNotifier) forward(ctx context.Context, event events.Event) error {
	if len(n.endpoints) == 0 {
		return nil
	}

	body, err := json.Marshal(envelope{
		Event:      event.EventName(),
		OccurredAt: event.OccurredAt(),
		Data:       event,
	})
	if err != nil {
		n.log.Error("webhook payload encode failed", "event", event.EventName(), "error", err)
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, endpoint := range n.endpoints {
		endpoint := endpoint
		g.Go(func() error {
			if err := n.post(ctx, endpoint, body); err != nil {
				n.log.Warn("webhook delivery failed",
					"event", event.EventName(),
					"endpoint", endpoint,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
