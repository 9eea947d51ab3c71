package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/metaswap-gateway/internal/model"
)

// Sink receives executor transitions, e.g. an audit exporter.
type Sink interface {
	Record(ctx context.Context, t model.Transition)
}

// Observer logs every executor transition, counts terminal outcomes and
// forwards events to the configured sinks.
type Observer struct {
	metrics *Metrics
	sinks   []Sink
}

// NewObserver creates an observer. metrics may be nil.
func NewObserver(metrics *Metrics, sinks ...Sink) *Observer {
	return &Observer{metrics: metrics, sinks: sinks}
}

// ObserveTransition handles one state change
func (o *Observer) ObserveTransition(ctx context.Context, t model.Transition) {
	entry := logrus.WithFields(Fields(ctx, logrus.Fields{
		"provider":     t.Provider,
		"market":       t.MarketID,
		"from":         t.From,
		"to":           t.To,
		"tx_hash":      t.TxHash,
		"execution_id": t.ExecutionID,
	}))
	if t.Message != "" {
		entry = entry.WithField("message", t.Message)
	}
	entry.Info("Execution state transition")

	if t.To.Terminal() {
		o.metrics.ObserveExecution(t.Provider, t.To, t.Elapsed)
	}
	for _, s := range o.sinks {
		s.Record(ctx, t)
	}
}
