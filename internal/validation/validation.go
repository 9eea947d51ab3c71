// Package validation provides request and quote validation for the gateway.
package validation

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/metaswap-gateway/internal/fault"
	"github.com/yourorg/metaswap-gateway/internal/model"
)

// Options holds the provider specific bounds for a write request
type Options struct {
	// MinTerms is the exclusive lower bound for expected odds/price
	MinTerms decimal.Decimal

	// MaxTerms is the inclusive upper bound; zero disables the check
	MaxTerms decimal.Decimal

	// Outcomes restricts the outcome names a provider understands; nil allows any
	Outcomes []model.Outcome

	// MaxDecimals bounds the precision of Quantity (token decimals)
	MaxDecimals int32

	// MarketID validates the venue specific market key
	MarketID func(id string) error
}

// DefaultOptions returns bounds suitable for decimal sports odds
func DefaultOptions() Options {
	return Options{
		MinTerms:    decimal.NewFromInt(1),
		MaxTerms:    decimal.NewFromInt(1000),
		MaxDecimals: 18,
	}
}

// Checked carries the parsed numeric fields of a valid request
type Checked struct {
	Quantity      decimal.Decimal
	ExpectedTerms decimal.Decimal
}

// ValidateRequest checks the shape and values of req without touching the network.
// Any failure is a fault.ValidationFailed error.
func ValidateRequest(req model.ExecutionRequest, opts Options) (Checked, error) {
	if strings.TrimSpace(req.MarketID) == "" {
		return Checked{}, fault.Validation("market id is required")
	}
	if opts.MarketID != nil {
		if err := opts.MarketID(req.MarketID); err != nil {
			return Checked{}, fault.Validation("invalid market id %q: %v", req.MarketID, err)
		}
	}

	if req.Outcome == "" {
		return Checked{}, fault.Validation("outcome is required")
	}
	if opts.Outcomes != nil && !slices.Contains(opts.Outcomes, req.Outcome) {
		return Checked{}, fault.Validation("invalid outcome %q", req.Outcome)
	}

	qty, err := decimal.NewFromString(strings.TrimSpace(req.Quantity))
	if err != nil {
		return Checked{}, fault.Validation("invalid quantity %q", req.Quantity)
	}
	if !qty.IsPositive() {
		return Checked{}, fault.Validation("quantity must be greater than zero")
	}
	if opts.MaxDecimals > 0 && !qty.Equal(qty.Truncate(opts.MaxDecimals)) {
		return Checked{}, fault.Validation("quantity has more than %d decimals", opts.MaxDecimals)
	}

	terms, err := decimal.NewFromString(strings.TrimSpace(req.ExpectedTerms))
	if err != nil {
		return Checked{}, fault.Validation("invalid expected terms %q", req.ExpectedTerms)
	}
	if !terms.GreaterThan(opts.MinTerms) {
		return Checked{}, fault.Validation("expected terms must be greater than %s", opts.MinTerms)
	}
	if opts.MaxTerms.IsPositive() && terms.GreaterThan(opts.MaxTerms) {
		return Checked{}, fault.Validation("expected terms must not exceed %s", opts.MaxTerms)
	}

	return Checked{Quantity: qty, ExpectedTerms: terms}, nil
}

// CompleteQuote rejects a market snapshot that is missing terms for any
// outcome in its own outcome set or in required.
func CompleteQuote(m model.Market, required []model.Outcome) error {
	if m.ID == "" {
		return fault.Validation("market snapshot has no id")
	}
	if len(m.Outcomes) == 0 {
		return fault.Validation("market %s has no outcomes", m.ID)
	}
	for _, o := range m.Outcomes {
		if err := requireTerm(m, o); err != nil {
			return err
		}
	}
	for _, o := range required {
		if !m.HasOutcome(o) {
			return fault.Validation("market %s has no outcome %q", m.ID, o)
		}
	}
	return nil
}

func requireTerm(m model.Market, o model.Outcome) error {
	v, ok := m.Terms[o]
	if !ok {
		return fault.Validation("market %s missing terms for %q", m.ID, o)
	}
	if !v.IsPositive() {
		return fault.Validation("market %s has non-positive terms for %q", m.ID, o)
	}
	return nil
}

// FilterOpen keeps complete markets that accept writes at now, up to limit entries.
// A limit of zero keeps everything.
func FilterOpen(markets []model.Market, now time.Time, limit int) []model.Market {
	open := make([]model.Market, 0, len(markets))
	for _, m := range markets {
		if limit > 0 && len(open) >= limit {
			break
		}
		if !m.AcceptsWrites(now) {
			continue
		}
		if err := CompleteQuote(m, nil); err != nil {
			logrus.WithFields(logrus.Fields{
				"market": m.ID,
				"error":  err,
			}).Debug("Filtered incomplete market")
			continue
		}
		open = append(open, m)
	}
	return open
}
