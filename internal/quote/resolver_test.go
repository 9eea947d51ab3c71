package quote

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
	"github.com/yourorg/metaswap-gateway/internal/types"
)

const marketID = "0x1a2b3c4d5e6f7890abcdef1234567890abcdef12"

// fakeStage is a scripted cascade stage with a call counter
type fakeStage struct {
	provenance model.Provenance
	market     model.Market
	err        error
	block      bool
	foreign    bool
	calls      int

	list    []model.Market
	listErr error
	lists   int
}

func (s *fakeStage) Provenance() model.Provenance { return s.provenance }

func (s *fakeStage) Quote(ctx context.Context, _ string) (model.Quote, error) {
	s.calls++
	if s.block {
		<-ctx.Done()
		return model.Quote{}, ctx.Err()
	}
	if s.err != nil {
		return model.Quote{}, s.err
	}
	p := s.provenance
	if s.foreign {
		p = model.ProvenanceOnChain
	}
	return model.NewQuote(s.market, p, time.Now()), nil
}

// listingStage adds List to a fakeStage
type listingStage struct{ *fakeStage }

func (s listingStage) List(_ context.Context, _ int) ([]model.Quote, error) {
	s.lists++
	if s.listErr != nil {
		return nil, s.listErr
	}
	quotes := make([]model.Quote, 0, len(s.list))
	for _, m := range s.list {
		quotes = append(quotes, model.NewQuote(m, s.provenance, time.Now()))
	}
	return quotes, nil
}

func sportsMarket(id string, open bool, odds ...string) model.Market {
	names := []model.Outcome{model.OutcomeHome, model.OutcomeAway, model.OutcomeDraw}
	m := model.Market{
		ID:       id,
		Category: types.CategorySports,
		Terms:    map[model.Outcome]decimal.Decimal{},
		IsOpen:   open,
		Maturity: time.Now().Add(24 * time.Hour),
	}
	for i, o := range odds {
		m.Outcomes = append(m.Outcomes, names[i])
		m.Terms[names[i]] = decimal.RequireFromString(o)
	}
	return m
}

var networkFault error = &dialError{}

// dialError stands in for a refused RPC connection
type dialError struct{}

func (*dialError) Error() string { return "dial tcp 10.0.0.1:8545: connect: connection refused" }
func (*dialError) Unwrap() error { return syscall.ECONNREFUSED }

func defaultTemplate() model.Market {
	return sportsMarket("", false, "2.00", "2.00", "3.50")
}

func newResolver(t *testing.T, cache Cache, rec Recorder, stages ...Stage) *Resolver {
	t.Helper()
	cfg := Config{
		Provider: "overtime",
		Fallback: NewFallback([]model.Market{sportsMarket("0xcatalog", true, "1.85", "2.10")}, defaultTemplate(), cache),
		Cache:    cache,
		Recorder: rec,
	}
	for _, s := range stages {
		cfg.Stages = append(cfg.Stages, StageConfig{Stage: s, Timeout: 200 * time.Millisecond})
	}
	r, err := NewResolver(cfg)
	require.NoError(t, err)
	return r
}

func TestNewResolverRequiresFallback(t *testing.T) {
	_, err := NewResolver(Config{Provider: "x"})
	assert.Error(t, err)
}

func TestResolveOnChainShortCircuits(t *testing.T) {
	onchain := &fakeStage{provenance: model.ProvenanceOnChain, market: sportsMarket(marketID, true, "2.15", "3.40", "3.20")}
	indexer := &fakeStage{provenance: model.ProvenanceIndexer, market: sportsMarket(marketID, true, "1", "1")}
	partner := &fakeStage{provenance: model.ProvenancePartnerREST, market: sportsMarket(marketID, true, "1", "1")}
	cache := NewMemoryCache()
	r := newResolver(t, cache, nil, onchain, indexer, partner)

	q, err := r.Resolve(context.Background(), marketID)
	require.NoError(t, err)

	assert.Equal(t, model.ProvenanceOnChain, q.Provenance)
	assert.True(t, q.IsOpen)
	assert.Len(t, q.Outcomes, 3)
	for _, o := range q.Outcomes {
		assert.True(t, q.Terms[o].IsPositive(), o)
	}
	assert.Equal(t, 1, onchain.calls)
	assert.Zero(t, indexer.calls)
	assert.Zero(t, partner.calls)

	cached, ok, err := cache.Get(context.Background(), marketID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.ProvenanceOnChain, cached.Provenance)
}

func TestResolveFallsThroughToIndexer(t *testing.T) {
	onchain := &fakeStage{provenance: model.ProvenanceOnChain, err: fmt.Errorf("call getMarketDefaultOdds: %w", networkFault)}
	indexer := &fakeStage{provenance: model.ProvenanceIndexer, market: sportsMarket(marketID, true, "2.15", "3.40")}
	partner := &fakeStage{provenance: model.ProvenancePartnerREST}
	r := newResolver(t, nil, nil, onchain, indexer, partner)

	q, err := r.Resolve(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceIndexer, q.Provenance)
	assert.Equal(t, 1, onchain.calls)
	assert.Equal(t, 1, indexer.calls)
	assert.Zero(t, partner.calls)
}

func TestResolveRejectsIncompleteAndForeignResults(t *testing.T) {
	incomplete := sportsMarket(marketID, true, "2.15", "3.40")
	delete(incomplete.Terms, model.OutcomeAway)

	onchain := &fakeStage{provenance: model.ProvenanceOnChain, market: incomplete}
	indexer := &fakeStage{provenance: model.ProvenanceIndexer, market: sportsMarket(marketID, true, "2", "2"), foreign: true}
	partner := &fakeStage{provenance: model.ProvenancePartnerREST, market: sportsMarket(marketID, true, "2.2", "1.7")}
	r := newResolver(t, nil, nil, onchain, indexer, partner)

	q, err := r.Resolve(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, model.ProvenancePartnerREST, q.Provenance)
	assert.Equal(t, 1, indexer.calls)
}

func TestResolveRejectsOtherMarket(t *testing.T) {
	other := "0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	onchain := &fakeStage{provenance: model.ProvenanceOnChain, market: sportsMarket(other, true, "9", "1.1")}
	indexer := &fakeStage{provenance: model.ProvenanceIndexer, market: sportsMarket(marketID, true, "2.15", "3.40")}
	cache := NewMemoryCache()
	r := newResolver(t, cache, nil, onchain, indexer)

	q, err := r.Resolve(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceIndexer, q.Provenance)
	assert.Equal(t, marketID, q.ID)
	assert.Equal(t, 1, onchain.calls)

	_, ok, err := cache.Get(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSameMarket(t *testing.T) {
	tests := []struct {
		got, want string
		same      bool
	}{
		{"0x1a2b3c4d5e6f7890abcdef1234567890abcdef12", "0x1A2B3C4D5E6F7890ABCDEF1234567890ABCDEF12", true},
		{"42", "0042", true},
		{" 42", "42", true},
		{"42", "43", false},
		{"0xdeadbeef", "0x1a2b3c", false},
		{"", "42", false},
	}
	for _, tt := range tests {
		t.Run(tt.got+"/"+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.same, sameMarket(tt.got, tt.want))
		})
	}
}

func TestResolveStageTimeoutIsolated(t *testing.T) {
	onchain := &fakeStage{provenance: model.ProvenanceOnChain, block: true}
	indexer := &fakeStage{provenance: model.ProvenanceIndexer, market: sportsMarket(marketID, true, "2", "2")}
	r := newResolver(t, nil, nil, onchain, indexer)

	start := time.Now()
	q, err := r.Resolve(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceIndexer, q.Provenance)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolveAllStagesFail(t *testing.T) {
	tests := []struct {
		name     string
		cached   *model.Quote
		market   string
		wantHome string
		wantOpen bool
	}{
		{name: "synthetic default", market: "0xunknown", wantHome: "2.00"},
		{name: "static catalog", market: "0xCATALOG", wantHome: "1.85", wantOpen: true},
		{
			name:     "last known quote wins",
			market:   "0xcatalog",
			cached:   ptr(model.NewQuote(sportsMarket("0xcatalog", true, "1.95", "1.95"), model.ProvenanceIndexer, time.Now().Add(-time.Hour))),
			wantHome: "1.95",
			wantOpen: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewMemoryCache()
			if tt.cached != nil {
				require.NoError(t, cache.Put(context.Background(), *tt.cached))
			}
			stages := []Stage{
				&fakeStage{provenance: model.ProvenanceOnChain, err: networkFault},
				&fakeStage{provenance: model.ProvenanceIndexer, err: errors.New("subgraph error: indexing_error")},
				&fakeStage{provenance: model.ProvenancePartnerREST, err: context.DeadlineExceeded},
			}
			r := newResolver(t, cache, nil, stages...)

			var q model.Quote
			var err error
			assert.NotPanics(t, func() { q, err = r.Resolve(context.Background(), tt.market) })
			require.NoError(t, err)
			assert.Equal(t, model.ProvenanceStaticFallback, q.Provenance)
			assert.True(t, q.Stale)
			assert.False(t, q.Provenance.Actionable())
			assert.True(t, q.Terms[model.OutcomeHome].Equal(decimal.RequireFromString(tt.wantHome)))
			assert.Equal(t, tt.wantOpen, q.IsOpen)
			for _, s := range stages {
				assert.Equal(t, 1, s.(*fakeStage).calls)
			}
		})
	}
}

func TestResolveFallbackEmptyIDFails(t *testing.T) {
	r := newResolver(t, nil, nil)
	_, err := r.Resolve(context.Background(), " ")
	assert.Error(t, err)
}

func TestResolveBreakerSkipsFailingStage(t *testing.T) {
	onchain := &fakeStage{provenance: model.ProvenanceOnChain, err: networkFault}
	indexer := &fakeStage{provenance: model.ProvenanceIndexer, market: sportsMarket(marketID, true, "2", "2")}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	r, err := NewResolver(Config{
		Provider:        "overtime",
		Stages:          []StageConfig{{Stage: onchain, Timeout: time.Second}, {Stage: indexer, Timeout: time.Second}},
		Fallback:        NewFallback(nil, defaultTemplate(), nil),
		Recorder:        metrics,
		BreakerFailures: 2,
		BreakerReset:    time.Hour,
	})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		q, err := r.Resolve(context.Background(), marketID)
		require.NoError(t, err)
		assert.Equal(t, model.ProvenanceIndexer, q.Provenance)
	}
	assert.Equal(t, 2, onchain.calls)
	assert.Equal(t, 4, indexer.calls)
}

func TestResolveRecordsStageMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	onchain := &fakeStage{provenance: model.ProvenanceOnChain, err: networkFault}
	indexer := &fakeStage{provenance: model.ProvenanceIndexer, market: sportsMarket(marketID, true, "2", "2")}
	r := newResolver(t, nil, metrics, onchain, indexer)

	_, err := r.Resolve(context.Background(), marketID)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "metaswap_stage_results_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMarketsListing(t *testing.T) {
	many := make([]model.Market, 0, 15)
	for i := 0; i < 15; i++ {
		many = append(many, sportsMarket(fmt.Sprintf("0x%02d", i), true, "1.5", "2.5"))
	}
	closed := sportsMarket("0xclosed", false, "1.5", "2.5")

	t.Run("first listing stage with open markets", func(t *testing.T) {
		onchain := &fakeStage{provenance: model.ProvenanceOnChain}
		indexer := listingStage{&fakeStage{provenance: model.ProvenanceIndexer, list: []model.Market{closed}}}
		partner := listingStage{&fakeStage{provenance: model.ProvenancePartnerREST, list: append([]model.Market{closed}, many...)}}
		r := newResolver(t, nil, nil, onchain, indexer, partner)

		quotes, err := r.Markets(context.Background())
		require.NoError(t, err)
		assert.Len(t, quotes, MaxListed)
		for _, q := range quotes {
			assert.Equal(t, model.ProvenancePartnerREST, q.Provenance)
			assert.True(t, q.IsOpen)
		}
		assert.Zero(t, onchain.calls)
		assert.Equal(t, 1, indexer.lists)
	})

	t.Run("static catalog closes the cascade", func(t *testing.T) {
		indexer := listingStage{&fakeStage{provenance: model.ProvenanceIndexer, listErr: networkFault}}
		r := newResolver(t, nil, nil, indexer)

		quotes, err := r.Markets(context.Background())
		require.NoError(t, err)
		require.Len(t, quotes, 1)
		assert.Equal(t, "0xcatalog", quotes[0].ID)
		assert.Equal(t, model.ProvenanceStaticFallback, quotes[0].Provenance)
		assert.True(t, quotes[0].Stale)
	})
}

func ptr[T any](v T) *T { return &v }
