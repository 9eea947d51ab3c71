// Package quote resolves market quotes through an ordered cascade of
// sources: on-chain, indexer, partner REST, then a static fallback.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/metaswap-gateway/internal/circuitbreaker"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/otel"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
	"github.com/yourorg/metaswap-gateway/internal/validation"
)

// MaxListed caps the markets returned by one listing call
const MaxListed = 10

var (
	errNoListing  = errors.New("stage cannot list markets")
	errNoOpen     = errors.New("no open markets")
	errProvenance = errors.New("stage returned foreign provenance")
	errMarketID   = errors.New("stage returned a different market")
)

// anyMarket is the market key of listing attempts, which span many markets
const anyMarket = "*"

// Recorder receives per-stage results. *telemetry.Metrics implements it.
type Recorder interface {
	ObserveStage(provider, stage, result string)
	ObserveBreaker(name string, state circuitbreaker.State)
}

// StageConfig binds a stage to its timeout budget
type StageConfig struct {
	Stage   Stage
	Timeout time.Duration
}

// Config configures a Resolver
type Config struct {
	// Provider labels logs and metrics
	Provider string

	// Stages run in order; the first complete result wins
	Stages []StageConfig

	// Fallback is the terminal stage and must be set
	Fallback *Fallback

	// Cache receives every successful network quote; optional
	Cache Cache

	// Recorder receives stage metrics; optional
	Recorder Recorder

	// BreakerFailures trips a stage after that many consecutive failures; zero disables
	BreakerFailures int
	BreakerReset    time.Duration
}

type stageEntry struct {
	stage   Stage
	timeout time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// Resolver runs the cascade. It is safe for concurrent use.
type Resolver struct {
	provider string
	stages   []stageEntry
	fallback *Fallback
	cache    Cache
	recorder Recorder
	now      func() time.Time
}

// NewResolver builds a resolver from cfg
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Fallback == nil {
		return nil, errors.New("quote resolver requires a fallback")
	}
	r := &Resolver{
		provider: cfg.Provider,
		fallback: cfg.Fallback,
		cache:    cfg.Cache,
		recorder: cfg.Recorder,
		now:      time.Now,
	}
	for _, sc := range cfg.Stages {
		if sc.Stage == nil {
			continue
		}
		name := fmt.Sprintf("%s/%s", cfg.Provider, sc.Stage.Provenance())
		b := circuitbreaker.New(name, cfg.BreakerFailures)
		if cfg.BreakerReset > 0 {
			b = b.WithResetDelay(cfg.BreakerReset)
		}
		r.stages = append(r.stages, stageEntry{stage: sc.Stage, timeout: sc.Timeout, breaker: b})
	}
	return r, nil
}

// Resolve returns the first complete quote for marketID. Network stage
// failures are logged and absorbed; an error is returned only when the
// fallback itself cannot produce a quote.
func (r *Resolver) Resolve(ctx context.Context, marketID string) (model.Quote, error) {
	ctx, span := otel.StartSpan(ctx, "quote.resolve",
		attribute.String("provider", r.provider),
		attribute.String("market", marketID),
	)
	defer span.End()

	for _, e := range r.stages {
		q, err := r.attempt(ctx, e, marketID, func(sctx context.Context) (model.Quote, error) {
			return e.stage.Quote(sctx, marketID)
		})
		if err != nil {
			continue
		}
		r.remember(ctx, q)
		span.SetAttributes(attribute.String("provenance", string(q.Provenance)))
		return q, nil
	}

	q, err := r.fallback.Quote(ctx, marketID)
	if err != nil {
		r.observe(string(model.ProvenanceStaticFallback), telemetry.ResultFailure)
		otel.RecordError(ctx, err)
		return model.Quote{}, err
	}
	r.observe(string(model.ProvenanceStaticFallback), telemetry.ResultSuccess)
	span.SetAttributes(attribute.String("provenance", string(q.Provenance)))
	return q, nil
}

func (r *Resolver) attempt(ctx context.Context, e stageEntry, marketID string, call func(context.Context) (model.Quote, error)) (model.Quote, error) {
	stage := string(e.stage.Provenance())
	if err := e.breaker.Allow(); err != nil {
		r.observe(stage, telemetry.ResultSkipped)
		r.logFailure(ctx, stage, marketID, err)
		return model.Quote{}, err
	}

	sctx, span := otel.StartSpan(ctx, "quote.stage", attribute.String("stage", stage))
	if e.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(sctx, e.timeout)
		defer cancel()
	}
	q, err := call(sctx)
	if err == nil {
		err = checkQuote(q, e.stage.Provenance(), marketID)
	}
	if err != nil {
		otel.RecordError(sctx, err)
	}
	span.End()

	if err != nil {
		// an empty listing says nothing about source health
		if !errors.Is(err, errNoOpen) {
			e.breaker.RecordFailure(err)
			r.observeBreaker(e.breaker)
		}
		r.observe(stage, telemetry.ResultFailure)
		r.logFailure(ctx, stage, marketID, err)
		return model.Quote{}, err
	}
	e.breaker.RecordSuccess()
	r.observeBreaker(e.breaker)
	r.observe(stage, telemetry.ResultSuccess)
	return q, nil
}

func checkQuote(q model.Quote, want model.Provenance, marketID string) error {
	if q.Provenance != want {
		return fmt.Errorf("%w: %q", errProvenance, q.Provenance)
	}
	if marketID != anyMarket && !sameMarket(q.ID, marketID) {
		return fmt.Errorf("%w: got %q", errMarketID, q.ID)
	}
	return validation.CompleteQuote(q.Market, nil)
}

// sameMarket compares market keys case-insensitively. Numeric keys such as
// Azuro condition ids compare by value, so "0042" matches "42".
func sameMarket(got, want string) bool {
	got, want = strings.TrimSpace(got), strings.TrimSpace(want)
	if strings.EqualFold(got, want) {
		return true
	}
	a, okA := new(big.Int).SetString(got, 10)
	b, okB := new(big.Int).SetString(want, 10)
	return okA && okB && a.Cmp(b) == 0
}

// Markets lists open markets, at most MaxListed, from the first listing
// stage that yields any. The static catalog closes the cascade.
func (r *Resolver) Markets(ctx context.Context) ([]model.Quote, error) {
	ctx, span := otel.StartSpan(ctx, "quote.markets", attribute.String("provider", r.provider))
	defer span.End()

	for _, e := range r.stages {
		lister, ok := e.stage.(Lister)
		if !ok {
			continue
		}
		var open []model.Quote
		_, err := r.attempt(ctx, e, anyMarket, func(sctx context.Context) (model.Quote, error) {
			quotes, err := lister.List(sctx, MaxListed)
			if err != nil {
				return model.Quote{}, err
			}
			open = r.filterOpen(quotes)
			if len(open) == 0 {
				return model.Quote{}, errNoOpen
			}
			return open[0], nil
		})
		if err != nil {
			continue
		}
		for _, q := range open {
			r.remember(ctx, q)
		}
		return open, nil
	}

	r.observe(string(model.ProvenanceStaticFallback), telemetry.ResultSuccess)
	return r.filterOpen(r.fallback.List(ctx, 0)), nil
}

func (r *Resolver) filterOpen(quotes []model.Quote) []model.Quote {
	byID := make(map[string]model.Quote, len(quotes))
	markets := make([]model.Market, 0, len(quotes))
	for _, q := range quotes {
		byID[q.ID] = q
		markets = append(markets, q.Market)
	}
	open := validation.FilterOpen(markets, r.now(), MaxListed)
	out := make([]model.Quote, 0, len(open))
	for _, m := range open {
		out = append(out, byID[m.ID])
	}
	return out
}

func (r *Resolver) remember(ctx context.Context, q model.Quote) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(ctx, q); err != nil {
		logrus.WithFields(telemetry.Fields(ctx, logrus.Fields{
			"provider": r.provider,
			"market":   q.ID,
			"error":    err,
		})).Warn("Failed to store last-known quote")
	}
}

func (r *Resolver) logFailure(ctx context.Context, stage, marketID string, err error) {
	logrus.WithFields(telemetry.Fields(ctx, logrus.Fields{
		"provider": r.provider,
		"stage":    stage,
		"market":   marketID,
		"error":    err,
	})).Warn("Quote stage failed")
}

func (r *Resolver) observe(stage, result string) {
	if r.recorder != nil {
		r.recorder.ObserveStage(r.provider, stage, result)
	}
}

func (r *Resolver) observeBreaker(b *circuitbreaker.CircuitBreaker) {
	if r.recorder != nil {
		r.recorder.ObserveBreaker(b.Name(), b.GetState())
	}
}
