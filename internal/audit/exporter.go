// Package audit batches executor state transitions and ships them to an
// external webhook for audit trails.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
)

// Config holds configuration for the webhook exporter
type Config struct {
	WebhookURL    string
	WebhookAPIKey string
	BatchSize     int
	Interval      time.Duration
}

// Event is one exported transition plus the caller identity it ran under
type Event struct {
	model.Transition
	CallerID  string `json:"callerId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Exporter implements telemetry.Sink. A zero webhook URL disables it.
type Exporter struct {
	config Config
	client *retryablehttp.Client

	mu         sync.Mutex
	batch      []Event
	lastExport time.Time
	sent       int
	stopped    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewExporter creates the exporter and starts its periodic flush
func NewExporter(config Config) *Exporter {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	client.HTTPClient.Timeout = 10 * time.Second

	e := &Exporter{
		config: config,
		client: client,
		batch:  make([]Event, 0, config.BatchSize),
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	if e.Enabled() {
		e.wg.Add(1)
		go e.periodicExport()
		logrus.WithField("url", config.WebhookURL).Info("Audit exporter initialized")
	}
	return e
}

// Enabled reports whether events are exported
func (e *Exporter) Enabled() bool {
	return e.config.WebhookURL != ""
}

// Record queues one transition. A full batch is flushed in the background.
func (e *Exporter) Record(ctx context.Context, t model.Transition) {
	if !e.Enabled() {
		return
	}
	ev := Event{Transition: t, CallerID: telemetry.CallerID(ctx), RequestID: telemetry.RequestID(ctx)}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.batch = append(e.batch, ev)
	if e.stopped || len(e.batch) < e.config.BatchSize {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.flush()
	}()
}

func (e *Exporter) periodicExport() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.flush()
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Exporter) flush() {
	e.mu.Lock()
	if len(e.batch) == 0 {
		e.mu.Unlock()
		return
	}
	events := e.batch
	e.batch = make([]Event, 0, e.config.BatchSize)
	e.mu.Unlock()

	if err := e.post(events); err != nil {
		logrus.WithFields(logrus.Fields{
			"events": len(events),
			"error":  err,
		}).Error("Failed to export audit events")
		return
	}

	e.mu.Lock()
	e.lastExport = time.Now()
	e.sent += len(events)
	e.mu.Unlock()
	logrus.WithField("events", len(events)).Debug("Exported audit events")
}

func (e *Exporter) post(events []Event) error {
	payload := struct {
		Events     []Event `json:"events"`
		ExportTime string  `json:"export_time"`
		Count      int     `json:"count"`
	}{
		Events:     events,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(events),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	req, err := retryablehttp.NewRequest(http.MethodPost, e.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.WebhookAPIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}
	return nil
}

// Stop ends the periodic flush and exports whatever is still queued
func (e *Exporter) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	if e.Enabled() {
		e.flush()
	}
}

// Status returns a snapshot for health reporting
func (e *Exporter) Status() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := map[string]interface{}{
		"enabled":       e.Enabled(),
		"batch_size":    e.config.BatchSize,
		"current_batch": len(e.batch),
		"exported":      e.sent,
	}
	if !e.lastExport.IsZero() {
		status["last_export"] = e.lastExport.UTC().Format(time.RFC3339)
	}
	return status
}
