package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
)

type webhook struct {
	mu       sync.Mutex
	payloads []struct {
		Events []Event `json:"events"`
		Count  int     `json:"count"`
	}
	auth string
}

func (w *webhook) handler(t *testing.T) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var p struct {
			Events []Event `json:"events"`
			Count  int     `json:"count"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		w.mu.Lock()
		w.payloads = append(w.payloads, p)
		w.auth = r.Header.Get("Authorization")
		w.mu.Unlock()
	}
}

func (w *webhook) events() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, p := range w.payloads {
		n += p.Count
	}
	return n
}

func transition(to model.Status) model.Transition {
	return model.Transition{Provider: "overtime", MarketID: "0xabc", From: model.StatusValidated, To: to, At: time.Now()}
}

func TestExporterFlushesFullBatch(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook.handler(t))
	defer srv.Close()

	e := NewExporter(Config{WebhookURL: srv.URL, WebhookAPIKey: "k", BatchSize: 2, Interval: time.Hour})
	ctx := telemetry.WithCaller(context.Background(), "caller-7", "req-1")
	e.Record(ctx, transition(model.StatusEstimating))
	e.Record(ctx, transition(model.StatusRejected))

	assert.Eventually(t, func() bool { return hook.events() == 2 }, 2*time.Second, 10*time.Millisecond)
	e.Stop()

	hook.mu.Lock()
	defer hook.mu.Unlock()
	require.Len(t, hook.payloads, 1)
	require.Len(t, hook.payloads[0].Events, 2)
	assert.Equal(t, "Bearer k", hook.auth)
	assert.Equal(t, "caller-7", hook.payloads[0].Events[0].CallerID)
	assert.Equal(t, model.StatusRejected, hook.payloads[0].Events[1].To)
}

func TestExporterStopFlushesRemainder(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook.handler(t))
	defer srv.Close()

	e := NewExporter(Config{WebhookURL: srv.URL, BatchSize: 100, Interval: time.Hour})
	e.Record(context.Background(), transition(model.StatusConfirmed))
	assert.Equal(t, 1, e.Status()["current_batch"])

	e.Stop()
	assert.Equal(t, 1, hook.events())
	assert.Equal(t, 1, e.Status()["exported"])
}

func TestExporterDisabled(t *testing.T) {
	e := NewExporter(Config{})
	e.Record(context.Background(), transition(model.StatusConfirmed))
	assert.False(t, e.Enabled())
	assert.Equal(t, 0, e.Status()["current_batch"])
	e.Stop()
}

func TestExporterWebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewExporter(Config{WebhookURL: srv.URL, BatchSize: 10, Interval: time.Hour})
	e.Record(context.Background(), transition(model.StatusConfirmed))
	e.Stop()
	assert.Equal(t, 0, e.Status()["exported"])
}
