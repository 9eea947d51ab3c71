package quote

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
)

// Fallback produces the terminal static quote. Precedence: last-known
// quote from the cache, then the static catalog, then a synthetic default
// built from the template. Every quote it returns is stale and tagged
// static-fallback.
type Fallback struct {
	catalog  map[string]model.Market
	order    []string
	template model.Market
	cache    Cache
	now      func() time.Time
}

// NewFallback creates the fallback source. template supplies outcomes and
// terms for unknown markets; its ID is replaced by the requested one.
func NewFallback(catalog []model.Market, template model.Market, cache Cache) *Fallback {
	f := &Fallback{
		catalog:  make(map[string]model.Market, len(catalog)),
		template: template.Clone(),
		cache:    cache,
		now:      time.Now,
	}
	for _, m := range catalog {
		key := cacheKey(m.ID)
		if _, dup := f.catalog[key]; !dup {
			f.order = append(f.order, key)
		}
		f.catalog[key] = m.Clone()
	}
	return f
}

// Quote never fails for a non-empty market id.
func (f *Fallback) Quote(ctx context.Context, marketID string) (model.Quote, error) {
	if strings.TrimSpace(marketID) == "" {
		return model.Quote{}, errors.New("static fallback: empty market id")
	}

	if f.cache != nil {
		q, ok, err := f.cache.Get(ctx, marketID)
		if err != nil {
			logrus.WithFields(telemetry.Fields(ctx, logrus.Fields{
				"market": marketID,
				"error":  err,
			})).Warn("Last-known quote lookup failed")
		}
		if ok {
			q.Provenance = model.ProvenanceStaticFallback
			q.Stale = true
			return q, nil
		}
	}

	now := f.now()
	if m, ok := f.catalog[cacheKey(marketID)]; ok {
		return f.stale(m, now), nil
	}

	m := f.template.Clone()
	m.ID = marketID
	return f.stale(m, now), nil
}

// List returns the catalog markets in registration order.
func (f *Fallback) List(_ context.Context, limit int) []model.Quote {
	now := f.now()
	quotes := make([]model.Quote, 0, len(f.order))
	for _, key := range f.order {
		if limit > 0 && len(quotes) >= limit {
			break
		}
		quotes = append(quotes, f.stale(f.catalog[key], now))
	}
	return quotes
}

func (f *Fallback) stale(m model.Market, now time.Time) model.Quote {
	q := model.NewQuote(m, model.ProvenanceStaticFallback, now)
	q.Stale = true
	return q
}
