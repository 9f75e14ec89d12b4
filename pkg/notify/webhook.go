// Package notify delivers orchestrator events to external sinks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/alaabenhmida/AgentShield/pkg/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookConfig configures a webhook sink.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration // per-delivery timeout, defaults to 5s

	// Events limits delivery to the listed events. Empty delivers all.
	Events []domain.Event

	// Client overrides the HTTP client, e.g. for tests.
	Client *http.Client
}

// Webhook posts orchestrator notifications to an HTTP endpoint as JSON.
// Delivery runs on a background goroutine so a slow or down endpoint never
// stalls a protected run; failures are logged and dropped.
type Webhook struct {
	url    string
	client *http.Client
	events map[domain.Event]struct{}
	logger *slog.Logger

	wg sync.WaitGroup
}

// NewWebhook validates the config and builds the sink.
func NewWebhook(cfg WebhookConfig, logger *slog.Logger) (*Webhook, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("notify: webhook url is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultWebhookTimeout
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	var events map[domain.Event]struct{}
	if len(cfg.Events) > 0 {
		events = make(map[domain.Event]struct{}, len(cfg.Events))
		for _, ev := range cfg.Events {
			events[ev] = struct{}{}
		}
	}

	return &Webhook{
		url:    cfg.URL,
		client: client,
		events: events,
		logger: logger,
	}, nil
}

// Notify queues the notification for delivery and returns immediately.
func (w *Webhook) Notify(ctx context.Context, n domain.Notification) {
	if w.events != nil {
		if _, ok := w.events[n.Event]; !ok {
			return
		}
	}

	// The run's context ends with the run, usually before the post lands.
	// WithoutCancel keeps its values (trace propagation included) while
	// detaching the delivery from the run's lifetime.
	ctx = context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.deliver(ctx, n)
	}()
}

// Close waits for in-flight deliveries to finish.
func (w *Webhook) Close() error {
	w.wg.Wait()
	return nil
}

func (w *Webhook) deliver(ctx context.Context, n domain.Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		w.logger.Error("webhook payload marshal failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		w.logger.Error("webhook request build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("webhook delivery failed",
			"event", string(n.Event),
			"run_id", n.RunID,
			"error", err)
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			w.logger.Warn("failed to close webhook response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		w.logger.Warn("webhook endpoint returned error",
			"event", string(n.Event),
			"status", resp.StatusCode,
			"body", strings.TrimSpace(string(detail)))
		return
	}

	w.logger.Debug("webhook delivered", "event", string(n.Event), "run_id", n.RunID)
}
