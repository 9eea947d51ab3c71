package provider

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/yourorg/metaswap-gateway/internal/contracts"
	"github.com/yourorg/metaswap-gateway/internal/execution"
	"github.com/yourorg/metaswap-gateway/internal/fetch"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/quote"
	"github.com/yourorg/metaswap-gateway/internal/types"
	"github.com/yourorg/metaswap-gateway/internal/validation"
)

// AzuroName is the Azuro provider's descriptor name
const AzuroName = "azuro"

// AzuroConfig configures one Azuro deployment. Azuro runs on several
// chains; each chain gets its own provider instance and RPC client.
type AzuroConfig struct {
	Chain types.SupportedChain
	Core  common.Address

	SubgraphURL    string
	SubgraphAPIKey string

	Timeouts        Timeouts
	IndexerMaxAge   time.Duration
	BreakerFailures int
	BreakerReset    time.Duration

	Executor execution.Config
}

// DefaultAzuroConfig returns settings for chain; Core must still be set
func DefaultAzuroConfig(chain types.SupportedChain) AzuroConfig {
	return AzuroConfig{
		Chain:           chain,
		Timeouts:        DefaultTimeouts(),
		IndexerMaxAge:   2 * time.Minute,
		BreakerFailures: 3,
		BreakerReset:    30 * time.Second,
		Executor:        execution.DefaultConfig(AzuroName),
	}
}

// NewAzuro builds an Azuro provider: core contract reads, the Azuro
// subgraph, then the static fallback. Azuro has no partner REST API.
func NewAzuro(cfg AzuroConfig, deps Deps) (Provider, error) {
	if deps.Client == nil {
		return nil, errors.New("azuro: chain client is required")
	}
	name := fmt.Sprintf("%s-%s", AzuroName, cfg.Chain)
	cfg.Executor.Provider = name

	stages := []quote.StageConfig{
		{Stage: quote.NewOnChainStage(fetch.NewAzuroReader(deps.Client, cfg.Core)), Timeout: cfg.Timeouts.OnChain},
	}
	if cfg.SubgraphURL != "" {
		idx := fetch.NewAzuroIndexer(fetch.NewSubgraphClient(cfg.SubgraphURL, cfg.SubgraphAPIKey))
		stages = append(stages, quote.StageConfig{Stage: quote.NewIndexerStage(idx, cfg.IndexerMaxAge), Timeout: cfg.Timeouts.Indexer})
	}

	resolver, err := quote.NewResolver(quote.Config{
		Provider:        name,
		Stages:          stages,
		Fallback:        quote.NewFallback(nil, azuroDefault(), deps.Cache),
		Cache:           deps.Cache,
		Recorder:        deps.Recorder,
		BreakerFailures: cfg.BreakerFailures,
		BreakerReset:    cfg.BreakerReset,
	})
	if err != nil {
		return nil, fmt.Errorf("azuro: %w", err)
	}

	builder := azuroCalls{core: cfg.Core}
	return &integration{
		descriptor: model.NewProviderDescriptor(AzuroName,
			[]types.SupportedChain{cfg.Chain},
			[]types.MarketCategory{types.CategorySports}),
		resolver: resolver,
		executor: execution.NewExecutor(cfg.Executor, execution.Deps{
			Chain:    deps.Client,
			Signer:   deps.Signer,
			Builder:  builder,
			Markets:  resolver,
			Store:    deps.Store,
			Observer: deps.Observer,
		}),
		options: builder.Options(),
	}, nil
}

func parseUint(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() <= 0 {
		return nil, false
	}
	return v, true
}

// azuroCalls encodes the payable core placeBet call
type azuroCalls struct {
	core common.Address
}

func (azuroCalls) Options() validation.Options {
	opts := validation.DefaultOptions()
	opts.MaxDecimals = contracts.AzuroDecimals
	opts.MarketID = func(id string) error {
		if _, ok := parseUint(id); !ok {
			return errors.New("must be a positive integer condition id")
		}
		return nil
	}
	return opts
}

func (c azuroCalls) Build(req model.ExecutionRequest, checked validation.Checked, _ model.Quote) (execution.Call, error) {
	if c.core == (common.Address{}) {
		return execution.Call{}, errors.New("azuro core address not configured")
	}
	conditionID, ok := parseUint(req.MarketID)
	if !ok {
		return execution.Call{}, fmt.Errorf("invalid condition id %q", req.MarketID)
	}
	outcomeID, ok := parseUint(string(req.Outcome))
	if !ok {
		return execution.Call{}, fmt.Errorf("invalid outcome id %q", req.Outcome)
	}
	amount := checked.Quantity.Shift(contracts.AzuroDecimals).BigInt()
	data, err := contracts.PackPlaceBet(conditionID, outcomeID, amount)
	if err != nil {
		return execution.Call{}, err
	}
	return execution.Call{To: c.core, Data: data, Value: amount}, nil
}

// azuroDefault is the synthetic two-way quote for unknown conditions
func azuroDefault() model.Market {
	return model.Market{
		Category: types.CategorySports,
		Outcomes: []model.Outcome{"1", "2"},
		Terms:    map[model.Outcome]decimal.Decimal{"1": decimal.NewFromInt(2), "2": decimal.NewFromInt(2)},
	}
}
