package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/metaswap-gateway/internal/circuitbreaker"
	"github.com/yourorg/metaswap-gateway/internal/model"
)

type recordingSink struct {
	events []model.Transition
}

func (s *recordingSink) Record(_ context.Context, t model.Transition) {
	s.events = append(s.events, t)
}

func TestFields(t *testing.T) {
	ctx := WithCaller(context.Background(), "caller-1", "req-9")
	f := Fields(ctx, logrus.Fields{"market": "m"})
	assert.Equal(t, "caller-1", f["caller_id"])
	assert.Equal(t, "req-9", f["request_id"])
	assert.Equal(t, "m", f["market"])

	f = Fields(context.Background(), nil)
	assert.Empty(t, f)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveStage("overtime", "on-chain", ResultFailure)
	m.ObserveStage("overtime", "on-chain", ResultFailure)
	m.ObserveStage("overtime", "indexer", ResultSuccess)
	m.ObserveExecution("overtime", model.StatusConfirmed, 3*time.Second)
	m.ObserveBreaker("overtime/on-chain", circuitbreaker.StateOpen)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageResults.WithLabelValues("overtime", "on-chain", ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageResults.WithLabelValues("overtime", "indexer", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("overtime", "confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("overtime/on-chain")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.ObserveStage("a", "b", "c")
		nilMetrics.ObserveExecution("a", model.StatusRejected, 0)
		nilMetrics.ObserveBreaker("a", circuitbreaker.StateClosed)
	})
}

func TestObserverTransition(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	sink := &recordingSink{}
	o := NewObserver(m, sink)

	ctx := WithCaller(context.Background(), "caller-1", "")
	o.ObserveTransition(ctx, model.Transition{
		Provider: "overtime", MarketID: "0xabc", From: model.StatusValidated, To: model.StatusEstimating,
	})
	o.ObserveTransition(ctx, model.Transition{
		Provider: "overtime", MarketID: "0xabc", From: model.StatusAwaitingConfirmation, To: model.StatusConfirmed,
		TxHash: "0x01", ExecutionID: "exec_1", Elapsed: time.Second,
	})

	require.Len(t, sink.events, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("overtime", "confirmed")))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "exec_1", entry.Data["execution_id"])
	assert.Equal(t, "caller-1", entry.Data["caller_id"])
	assert.Equal(t, model.StatusConfirmed, entry.Data["to"])
}
