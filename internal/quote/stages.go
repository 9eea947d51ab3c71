package quote

import (
	"context"
	"time"

	"github.com/yourorg/metaswap-gateway/internal/model"
)

// Stage is one network source in the cascade.
type Stage interface {
	Provenance() model.Provenance
	Quote(ctx context.Context, marketID string) (model.Quote, error)
}

// Lister is implemented by stages that can enumerate active markets.
type Lister interface {
	List(ctx context.Context, limit int) ([]model.Quote, error)
}

// MarketReader reads a single market from a source without a freshness watermark.
type MarketReader interface {
	Market(ctx context.Context, id string) (model.Market, error)
}

// IndexReader reads markets from an indexer together with its indexing time.
type IndexReader interface {
	Market(ctx context.Context, id string) (model.Market, time.Time, error)
	Markets(ctx context.Context, first int) ([]model.Market, time.Time, error)
}

// MarketLister enumerates markets from a source without a freshness watermark.
type MarketLister interface {
	Markets(ctx context.Context) ([]model.Market, error)
}

// OnChainStage reads authoritative contract state.
type OnChainStage struct {
	reader MarketReader
	now    func() time.Time
}

// NewOnChainStage wraps a contract reader
func NewOnChainStage(reader MarketReader) *OnChainStage {
	return &OnChainStage{reader: reader, now: time.Now}
}

func (s *OnChainStage) Provenance() model.Provenance { return model.ProvenanceOnChain }

func (s *OnChainStage) Quote(ctx context.Context, marketID string) (model.Quote, error) {
	m, err := s.reader.Market(ctx, marketID)
	if err != nil {
		return model.Quote{}, err
	}
	return model.NewQuote(m, model.ProvenanceOnChain, s.now()), nil
}

// IndexerStage reads a subgraph style index. Data older than maxAge is
// returned with Stale set.
type IndexerStage struct {
	reader IndexReader
	maxAge time.Duration
	now    func() time.Time
}

// NewIndexerStage wraps an indexer; a zero maxAge never marks data stale
func NewIndexerStage(reader IndexReader, maxAge time.Duration) *IndexerStage {
	return &IndexerStage{reader: reader, maxAge: maxAge, now: time.Now}
}

func (s *IndexerStage) Provenance() model.Provenance { return model.ProvenanceIndexer }

func (s *IndexerStage) Quote(ctx context.Context, marketID string) (model.Quote, error) {
	m, indexedAt, err := s.reader.Market(ctx, marketID)
	if err != nil {
		return model.Quote{}, err
	}
	return s.quote(m, indexedAt), nil
}

func (s *IndexerStage) List(ctx context.Context, limit int) ([]model.Quote, error) {
	markets, indexedAt, err := s.reader.Markets(ctx, limit)
	if err != nil {
		return nil, err
	}
	quotes := make([]model.Quote, 0, len(markets))
	for _, m := range markets {
		quotes = append(quotes, s.quote(m, indexedAt))
	}
	return quotes, nil
}

func (s *IndexerStage) quote(m model.Market, indexedAt time.Time) model.Quote {
	now := s.now()
	q := model.NewQuote(m, model.ProvenanceIndexer, now)
	if s.maxAge > 0 && !indexedAt.IsZero() && now.Sub(indexedAt) > s.maxAge {
		q.Stale = true
	}
	return q
}

// PartnerStage queries a partner REST API.
type PartnerStage struct {
	reader MarketReader
	lister MarketLister
	now    func() time.Time
}

// NewPartnerStage wraps a partner client. lister may be nil when the
// partner cannot enumerate markets.
func NewPartnerStage(reader MarketReader, lister MarketLister) *PartnerStage {
	return &PartnerStage{reader: reader, lister: lister, now: time.Now}
}

func (s *PartnerStage) Provenance() model.Provenance { return model.ProvenancePartnerREST }

func (s *PartnerStage) Quote(ctx context.Context, marketID string) (model.Quote, error) {
	m, err := s.reader.Market(ctx, marketID)
	if err != nil {
		return model.Quote{}, err
	}
	return model.NewQuote(m, model.ProvenancePartnerREST, s.now()), nil
}

func (s *PartnerStage) List(ctx context.Context, limit int) ([]model.Quote, error) {
	if s.lister == nil {
		return nil, errNoListing
	}
	markets, err := s.lister.Markets(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	quotes := make([]model.Quote, 0, len(markets))
	for _, m := range markets {
		quotes = append(quotes, model.NewQuote(m, model.ProvenancePartnerREST, now))
	}
	return quotes, nil
}
