package provider

import (
	"errors"
	"fmt"
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

// OvertimeName is the Overtime provider's descriptor name
const OvertimeName = "overtime"

// OvertimeConfig configures the Overtime sports AMM integration
type OvertimeConfig struct {
	Chain     types.SupportedChain
	SportsAMM common.Address

	// Collateral is the token buyFromAMM pulls from the buyer
	Collateral common.Address

	SubgraphURL    string
	SubgraphAPIKey string
	APIURL         string
	APIKey         string
	PartnerRPS     float64

	Timeouts        Timeouts
	IndexerMaxAge   time.Duration
	BreakerFailures int
	BreakerReset    time.Duration

	Executor execution.Config
}

// DefaultOvertimeConfig returns the Arbitrum deployment settings
func DefaultOvertimeConfig() OvertimeConfig {
	return OvertimeConfig{
		Chain:           types.ChainArbitrum,
		SportsAMM:       contracts.OvertimeSportsAMM,
		Collateral:      contracts.OvertimeSUSD,
		PartnerRPS:      5,
		Timeouts:        DefaultTimeouts(),
		IndexerMaxAge:   2 * time.Minute,
		BreakerFailures: 3,
		BreakerReset:    30 * time.Second,
		Executor:        execution.DefaultConfig(OvertimeName),
	}
}

// NewOvertime builds the Overtime provider: on-chain SportsAMM reads, the
// Thales subgraph, the partner REST API, then the static catalog.
func NewOvertime(cfg OvertimeConfig, deps Deps) (Provider, error) {
	if deps.Client == nil {
		return nil, errors.New("overtime: chain client is required")
	}
	cfg.Executor.Provider = OvertimeName

	stages := []quote.StageConfig{
		{Stage: quote.NewOnChainStage(fetch.NewOvertimeReader(deps.Client, cfg.SportsAMM)), Timeout: cfg.Timeouts.OnChain},
	}
	if cfg.SubgraphURL != "" {
		idx := fetch.NewOvertimeIndexer(fetch.NewSubgraphClient(cfg.SubgraphURL, cfg.SubgraphAPIKey))
		stages = append(stages, quote.StageConfig{Stage: quote.NewIndexerStage(idx, cfg.IndexerMaxAge), Timeout: cfg.Timeouts.Indexer})
	}
	if cfg.APIURL != "" {
		partner := fetch.NewPartnerClient(cfg.APIURL, cfg.APIKey, cfg.PartnerRPS)
		stages = append(stages, quote.StageConfig{Stage: quote.NewPartnerStage(partner, partner), Timeout: cfg.Timeouts.REST})
	}

	resolver, err := quote.NewResolver(quote.Config{
		Provider:        OvertimeName,
		Stages:          stages,
		Fallback:        quote.NewFallback(OvertimeCatalog(time.Now()), overtimeDefault(), deps.Cache),
		Cache:           deps.Cache,
		Recorder:        deps.Recorder,
		BreakerFailures: cfg.BreakerFailures,
		BreakerReset:    cfg.BreakerReset,
	})
	if err != nil {
		return nil, fmt.Errorf("overtime: %w", err)
	}

	builder := overtimeCalls{sportsAMM: cfg.SportsAMM, collateral: cfg.Collateral}
	return &integration{
		descriptor: model.NewProviderDescriptor(OvertimeName,
			[]types.SupportedChain{cfg.Chain},
			[]types.MarketCategory{types.CategorySports}),
		resolver: resolver,
		executor: execution.NewExecutor(cfg.Executor, execution.Deps{
			Chain:    deps.Client,
			Signer:   deps.Signer,
			Builder:  builder,
			Markets:  resolver,
			Tokens:   fetch.NewTokenReader(deps.Client),
			Store:    deps.Store,
			Observer: deps.Observer,
		}),
		options: builder.Options(),
	}, nil
}

// overtimeCalls encodes SportsAMM.buyFromAMM
type overtimeCalls struct {
	sportsAMM  common.Address
	collateral common.Address
}

func (overtimeCalls) Options() validation.Options {
	opts := validation.DefaultOptions()
	opts.Outcomes = []model.Outcome{model.OutcomeHome, model.OutcomeAway, model.OutcomeDraw}
	opts.MaxDecimals = contracts.OvertimeDecimals
	opts.MarketID = func(id string) error {
		if !common.IsHexAddress(id) || len(id) < 2 || id[:2] != "0x" {
			return errors.New("must be a 0x-prefixed contract address")
		}
		return nil
	}
	return opts
}

func (c overtimeCalls) Build(req model.ExecutionRequest, checked validation.Checked, _ model.Quote) (execution.Call, error) {
	position, ok := contracts.OvertimePosition(string(req.Outcome))
	if !ok {
		return execution.Call{}, fmt.Errorf("outcome %q has no SportsAMM position", req.Outcome)
	}
	amount := checked.Quantity.Shift(contracts.OvertimeDecimals).BigInt()
	data, err := contracts.PackBuyFromAMM(common.HexToAddress(req.MarketID), position, amount)
	if err != nil {
		return execution.Call{}, err
	}
	return execution.Call{To: c.sportsAMM, Data: data, Token: c.collateral, Spend: amount}, nil
}

func odds(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// OvertimeCatalog is the static demo catalog used when every network source
// is down. Maturities are relative to now.
func OvertimeCatalog(now time.Time) []model.Market {
	day := 24 * time.Hour
	return []model.Market{
		{
			ID: "0x1a2b3c4d5e6f7890abcdef1234567890abcdef12", Category: types.CategorySports,
			Sport: "football", Label: "Real Madrid vs Barcelona",
			Outcomes: []model.Outcome{model.OutcomeHome, model.OutcomeAway, model.OutcomeDraw},
			Terms: map[model.Outcome]decimal.Decimal{
				model.OutcomeHome: odds("2.15"), model.OutcomeAway: odds("3.40"), model.OutcomeDraw: odds("3.20"),
			},
			IsOpen: true, Maturity: now.Add(2 * day).UTC(),
		},
		{
			ID: "0x2b3c4d5e6f7890abcdef1234567890abcdef1234", Category: types.CategorySports,
			Sport: "basketball", Label: "Lakers vs Celtics",
			Outcomes: []model.Outcome{model.OutcomeHome, model.OutcomeAway},
			Terms:    map[model.Outcome]decimal.Decimal{model.OutcomeHome: odds("1.85"), model.OutcomeAway: odds("2.10")},
			IsOpen:   true, Maturity: now.Add(day).UTC(),
		},
		{
			ID: "0x3c4d5e6f7890abcdef1234567890abcdef123456", Category: types.CategorySports,
			Sport: "tennis", Label: "Djokovic vs Nadal",
			Outcomes: []model.Outcome{model.OutcomeHome, model.OutcomeAway},
			Terms:    map[model.Outcome]decimal.Decimal{model.OutcomeHome: odds("1.75"), model.OutcomeAway: odds("2.25")},
			IsOpen:   true, Maturity: now.Add(3 * day).UTC(),
		},
	}
}

// overtimeDefault is the synthetic quote for markets missing from the catalog
func overtimeDefault() model.Market {
	return model.Market{
		Category: types.CategorySports,
		Outcomes: []model.Outcome{model.OutcomeHome, model.OutcomeAway, model.OutcomeDraw},
		Terms: map[model.Outcome]decimal.Decimal{
			model.OutcomeHome: odds("2.00"), model.OutcomeAway: odds("2.00"), model.OutcomeDraw: odds("3.50"),
		},
	}
}
