// Package provider composes capability metadata, the quote cascade and the
// transaction executor of one integration behind a uniform interface.
package provider

import (
	"context"
	"time"

	"github.com/yourorg/metaswap-gateway/internal/execution"
	"github.com/yourorg/metaswap-gateway/internal/fault"
	"github.com/yourorg/metaswap-gateway/internal/fetch"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/quote"
	"github.com/yourorg/metaswap-gateway/internal/validation"
)

// Provider is the contract every integration satisfies.
type Provider interface {
	Descriptor() model.ProviderDescriptor
	Quote(ctx context.Context, marketID string) (model.Quote, error)
	Markets(ctx context.Context) ([]model.Quote, error)
	Execute(ctx context.Context, req model.ExecutionRequest) (model.ExecutionOutcome, error)
	Status(ctx context.Context, executionID string) (model.ExecutionOutcome, error)
}

// ChainClient is what a provider needs from an RPC connection.
// *ethclient.Client satisfies it.
type ChainClient interface {
	execution.Chain
	fetch.ContractCaller
}

// Timeouts are the per-stage budgets of the quote cascade
type Timeouts struct {
	OnChain time.Duration
	Indexer time.Duration
	REST    time.Duration
}

// DefaultTimeouts returns the standard stage budgets
func DefaultTimeouts() Timeouts {
	return Timeouts{OnChain: 2 * time.Second, Indexer: 5 * time.Second, REST: 8 * time.Second}
}

// Deps are the collaborators handed to a provider at construction.
// Signer, Cache, Store, Recorder and Observer are optional.
type Deps struct {
	Client   ChainClient
	Signer   execution.Signer
	Cache    quote.Cache
	Store    execution.Store
	Recorder quote.Recorder
	Observer execution.Observer
}

// integration is the shared Provider implementation; integrations differ
// only in their stages, fallback data and call encoding.
type integration struct {
	descriptor model.ProviderDescriptor
	resolver   *quote.Resolver
	executor   *execution.Executor
	options    validation.Options
}

func (p *integration) Descriptor() model.ProviderDescriptor {
	return model.NewProviderDescriptor(p.descriptor.Name, p.descriptor.Chains, p.descriptor.Categories)
}

// Quote validates the market id, then runs the cascade.
func (p *integration) Quote(ctx context.Context, marketID string) (model.Quote, error) {
	if err := p.checkMarketID(marketID); err != nil {
		return model.Quote{}, err
	}
	return p.resolver.Resolve(ctx, marketID)
}

func (p *integration) Markets(ctx context.Context) ([]model.Quote, error) {
	return p.resolver.Markets(ctx)
}

func (p *integration) Execute(ctx context.Context, req model.ExecutionRequest) (model.ExecutionOutcome, error) {
	return p.executor.Execute(ctx, req)
}

func (p *integration) Status(ctx context.Context, executionID string) (model.ExecutionOutcome, error) {
	if executionID == "" {
		return model.ExecutionOutcome{}, fault.Validation("execution id is required")
	}
	return p.executor.Status(ctx, executionID)
}

func (p *integration) checkMarketID(id string) error {
	if id == "" {
		return fault.Validation("market id is required")
	}
	if p.options.MarketID != nil {
		if err := p.options.MarketID(id); err != nil {
			return fault.Validation("invalid market id %q: %v", id, err)
		}
	}
	return nil
}
