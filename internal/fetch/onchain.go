package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/yourorg/metaswap-gateway/internal/contracts"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/types"
)

// ErrNoContract is returned when a call targets an address without code or
// when a venue contract is not configured.
var ErrNoContract = errors.New("no contract code at address")

// azuroActive is the Azuro condition status for an open condition
const azuroActive = 1

// ContractCaller is the read-only subset of ethclient.Client used for view calls.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

func callView(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), ErrNoContract)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// OvertimeReader reads market state directly from Overtime contracts.
type OvertimeReader struct {
	caller    ContractCaller
	sportsAMM common.Address
	now       func() time.Time
}

// NewOvertimeReader creates a reader bound to the given SportsAMM deployment
func NewOvertimeReader(caller ContractCaller, sportsAMM common.Address) *OvertimeReader {
	return &OvertimeReader{caller: caller, sportsAMM: sportsAMM, now: time.Now}
}

// Market returns the default odds and lifecycle of a single sport market.
func (r *OvertimeReader) Market(ctx context.Context, id string) (model.Market, error) {
	if !common.IsHexAddress(id) {
		return model.Market{}, fmt.Errorf("market id %q is not an address", id)
	}
	market := common.HexToAddress(id)

	odds, err := callView(ctx, r.caller, r.sportsAMM, contracts.SportsAMM, "getMarketDefaultOdds", market)
	if err != nil {
		return model.Market{}, err
	}
	if len(odds) != 3 {
		return model.Market{}, fmt.Errorf("getMarketDefaultOdds: unexpected %d values", len(odds))
	}

	times, err := callView(ctx, r.caller, market, contracts.SportMarket, "times")
	if err != nil {
		return model.Market{}, err
	}
	paused, err := callView(ctx, r.caller, market, contracts.SportMarket, "paused")
	if err != nil {
		return model.Market{}, err
	}
	resolved, err := callView(ctx, r.caller, market, contracts.SportMarket, "resolved")
	if err != nil {
		return model.Market{}, err
	}

	m := model.Market{
		ID:       strings.ToLower(market.Hex()),
		Category: types.CategorySports,
		Outcomes: []model.Outcome{model.OutcomeHome, model.OutcomeAway},
		Terms:    make(map[model.Outcome]decimal.Decimal, 3),
	}
	if maturity, ok := times[0].(*big.Int); ok && maturity.Sign() > 0 {
		m.Maturity = time.Unix(maturity.Int64(), 0).UTC()
	}
	isPaused, _ := paused[0].(bool)
	isResolved, _ := resolved[0].(bool)
	m.IsOpen = !isPaused && !isResolved && (m.Maturity.IsZero() || r.now().Before(m.Maturity))

	names := []model.Outcome{model.OutcomeHome, model.OutcomeAway, model.OutcomeDraw}
	for i, name := range names {
		v, ok := odds[i].(*big.Int)
		if !ok {
			return model.Market{}, fmt.Errorf("getMarketDefaultOdds: value %d has type %T", i, odds[i])
		}
		if name == model.OutcomeDraw {
			if v.Sign() == 0 {
				continue
			}
			m.Outcomes = append(m.Outcomes, model.OutcomeDraw)
		}
		m.Terms[name] = decimal.NewFromBigInt(v, -contracts.OvertimeDecimals)
	}
	return m, nil
}

// AzuroReader reads conditions from an Azuro core contract.
type AzuroReader struct {
	caller ContractCaller
	core   common.Address
}

// NewAzuroReader creates a reader bound to an Azuro core deployment
func NewAzuroReader(caller ContractCaller, core common.Address) *AzuroReader {
	return &AzuroReader{caller: caller, core: core}
}

// Market returns the outcomes and odds of an Azuro condition.
func (r *AzuroReader) Market(ctx context.Context, id string) (model.Market, error) {
	if r.core == (common.Address{}) {
		return model.Market{}, fmt.Errorf("azuro core address not configured: %w", ErrNoContract)
	}
	conditionID, ok := new(big.Int).SetString(strings.TrimSpace(id), 10)
	if !ok || conditionID.Sign() <= 0 {
		return model.Market{}, fmt.Errorf("condition id %q is not a positive integer", id)
	}

	values, err := callView(ctx, r.caller, r.core, contracts.AzuroCore, "getCondition", conditionID)
	if err != nil {
		return model.Market{}, err
	}
	if len(values) != 3 {
		return model.Market{}, fmt.Errorf("getCondition: unexpected %d values", len(values))
	}
	outcomes, ok1 := values[0].([]*big.Int)
	odds, ok2 := values[1].([]*big.Int)
	status, ok3 := values[2].(uint8)
	if !ok1 || !ok2 || !ok3 {
		return model.Market{}, fmt.Errorf("getCondition: unexpected result types")
	}
	if len(outcomes) != len(odds) {
		return model.Market{}, fmt.Errorf("getCondition: %d outcomes but %d odds", len(outcomes), len(odds))
	}

	m := model.Market{
		ID:       conditionID.String(),
		Category: types.CategorySports,
		Outcomes: make([]model.Outcome, 0, len(outcomes)),
		Terms:    make(map[model.Outcome]decimal.Decimal, len(outcomes)),
		IsOpen:   status == azuroActive,
	}
	for i, o := range outcomes {
		name := model.Outcome(o.String())
		m.Outcomes = append(m.Outcomes, name)
		m.Terms[name] = decimal.NewFromBigInt(odds[i], -contracts.AzuroOddsDecimals)
	}
	return m, nil
}

// TokenReader reads ERC-20 balances through view calls.
type TokenReader struct {
	caller ContractCaller
}

// NewTokenReader creates a reader over caller
func NewTokenReader(caller ContractCaller) *TokenReader {
	return &TokenReader{caller: caller}
}

// TokenBalance returns owner's balance of token in base units.
func (r *TokenReader) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	values, err := callView(ctx, r.caller, token, contracts.ERC20, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf on %s: unexpected output %T", token.Hex(), values[0])
	}
	return balance, nil
}
