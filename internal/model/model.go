// Package model defines the core data structures for the metaswap gateway.
package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yourorg/metaswap-gateway/internal/types"
)

// Outcome names one side of a market, e.g. "home", "away", "draw", or a
// venue specific outcome id.
type Outcome string

// Standard sports outcomes
const (
	OutcomeHome Outcome = "home"
	OutcomeAway Outcome = "away"
	OutcomeDraw Outcome = "draw"
)

// Provenance is the cascade stage that produced a quote.
type Provenance string

const (
	ProvenanceOnChain        Provenance = "on-chain"
	ProvenanceIndexer        Provenance = "indexer"
	ProvenancePartnerREST    Provenance = "partner-rest"
	ProvenanceStaticFallback Provenance = "static-fallback"
)

// Actionable reports whether a quote from this source may back a real-money write.
func (p Provenance) Actionable() bool {
	return p != ProvenanceStaticFallback && p != ""
}

// Market is a tradable or bettable venue with a fixed outcome set.
type Market struct {
	// ID is the venue specific key (contract address, condition id)
	ID       string               `json:"id"`
	Category types.MarketCategory `json:"category"`
	Sport    string               `json:"sport,omitempty"`
	Label    string               `json:"label,omitempty"`
	Outcomes []Outcome            `json:"outcomes"`

	// Terms holds the active decimal odds or price per outcome
	Terms    map[Outcome]decimal.Decimal `json:"terms"`
	IsOpen   bool                        `json:"isOpen"`
	Maturity time.Time                   `json:"maturity,omitempty"`
}

// HasOutcome reports whether o belongs to the market's outcome set.
func (m Market) HasOutcome(o Outcome) bool {
	return slices.Contains(m.Outcomes, o)
}

// AcceptsWrites reports whether new executions may target the market at now.
func (m Market) AcceptsWrites(now time.Time) bool {
	if !m.IsOpen {
		return false
	}
	return m.Maturity.IsZero() || now.Before(m.Maturity)
}

// Clone returns a deep copy so callers never share outcome slices or term maps.
func (m Market) Clone() Market {
	c := m
	c.Outcomes = slices.Clone(m.Outcomes)
	c.Terms = make(map[Outcome]decimal.Decimal, len(m.Terms))
	for k, v := range m.Terms {
		c.Terms[k] = v
	}
	return c
}

// Quote is a point-in-time view of a market's terms plus the source that produced it.
type Quote struct {
	Market

	Provenance  Provenance `json:"provenance"`
	RetrievedAt time.Time  `json:"retrievedAt"`
	Stale       bool       `json:"stale,omitempty"`
}

// NewQuote tags a market snapshot with provenance and retrieval time.
func NewQuote(m Market, p Provenance, at time.Time) Quote {
	return Quote{
		Market:      m.Clone(),
		Provenance:  p,
		RetrievedAt: at.UTC(),
	}
}

// ExecutionRequest is a single write operation (bet or swap) against a market.
type ExecutionRequest struct {
	MarketID string  `json:"marketId"`
	Outcome  Outcome `json:"outcome"`

	// Quantity is a decimal string to avoid floating-point error
	Quantity string `json:"quantity"`

	// ExpectedTerms is the odds or price the caller saw at submission time
	ExpectedTerms string     `json:"expectedTerms"`
	Deadline      *time.Time `json:"deadline,omitempty"`

	// CallerID is opaque pass-through identity, logged but never interpreted
	CallerID string `json:"-"`
}

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusValidated            Status = "validated"
	StatusEstimating           Status = "estimating"
	StatusSubmitting           Status = "submitting"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusConfirmed            Status = "confirmed"
	StatusReverted             Status = "reverted"
	StatusTimedOut             Status = "timed_out"
	StatusRejected             Status = "rejected"

	// Lookup-only states
	StatusPending  Status = "pending"
	StatusNotFound Status = "not_found"
)

// Terminal reports whether no further transition can leave this state.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusReverted, StatusTimedOut, StatusRejected:
		return true
	}
	return false
}

// Settled reports whether the on-chain result is final and will not change.
func (s Status) Settled() bool {
	return s == StatusConfirmed || s == StatusReverted
}

// Details is the structured observability payload carried by every outcome.
type Details struct {
	BlockNumber     uint64     `json:"blockNumber,omitempty"`
	GasEstimated    uint64     `json:"gasEstimated,omitempty"`
	GasLimit        uint64     `json:"gasLimit,omitempty"`
	GasUsed         uint64     `json:"gasUsed,omitempty"`
	Logs            int        `json:"logs,omitempty"`
	PotentialPayout string     `json:"potentialPayout,omitempty"`
	Provenance      Provenance `json:"provenance,omitempty"`
	ErrorKind       string     `json:"errorKind,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// ExecutionOutcome is the terminal (or looked-up) result of an execution.
type ExecutionOutcome struct {
	Success     bool      `json:"success"`
	ExecutionID string    `json:"executionId,omitempty"`
	TxHash      string    `json:"txHash,omitempty"`
	Status      Status    `json:"status"`
	Message     string    `json:"message"`
	Details     Details   `json:"details"`
	CompletedAt time.Time `json:"completedAt"`
}

// ProviderDescriptor is the static capability metadata of one integration.
type ProviderDescriptor struct {
	Name       string                 `json:"name"`
	Chains     []types.SupportedChain `json:"chains"`
	Categories []types.MarketCategory `json:"categories"`
}

// NewProviderDescriptor copies its inputs so later mutation by the caller
// cannot leak into dispatch.
func NewProviderDescriptor(name string, chains []types.SupportedChain, categories []types.MarketCategory) ProviderDescriptor {
	return ProviderDescriptor{
		Name:       name,
		Chains:     slices.Clone(chains),
		Categories: slices.Clone(categories),
	}
}

// Supports reports whether the descriptor covers both chain and category.
func (d ProviderDescriptor) Supports(chain types.SupportedChain, category types.MarketCategory) bool {
	return slices.Contains(d.Chains, chain) && slices.Contains(d.Categories, category)
}

// Transition is one executor state change, exposed for logging and audit.
type Transition struct {
	Provider    string        `json:"provider"`
	MarketID    string        `json:"marketId"`
	ExecutionID string        `json:"executionId,omitempty"`
	TxHash      string        `json:"txHash,omitempty"`
	From        Status        `json:"from"`
	To          Status        `json:"to"`
	Message     string        `json:"message,omitempty"`
	At          time.Time     `json:"at"`
	Elapsed     time.Duration `json:"elapsed"`
}
