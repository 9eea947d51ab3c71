package fetch

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/metaswap-gateway/internal/contracts"
	"github.com/yourorg/metaswap-gateway/internal/model"
)

// fakeCaller answers view calls by method selector
type fakeCaller struct {
	parsed  []abi.ABI
	answers map[string][]interface{}
	err     error
	calls   int
}

func (f *fakeCaller) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for _, parsed := range f.parsed {
		for name, method := range parsed.Methods {
			if !bytes.Equal(call.Data[:4], method.ID) {
				continue
			}
			values, ok := f.answers[name]
			if !ok {
				return nil, nil
			}
			return method.Outputs.Pack(values...)
		}
	}
	return nil, nil
}

func e18(v string) *big.Int {
	d := decimal.RequireFromString(v).Shift(18)
	return d.BigInt()
}

func TestOvertimeReaderMarket(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	caller := &fakeCaller{
		parsed: []abi.ABI{contracts.SportsAMM, contracts.SportMarket},
		answers: map[string][]interface{}{
			"getMarketDefaultOdds": {e18("1.85"), e18("2.10"), e18("3.4")},
			"times":                {big.NewInt(now.Add(time.Hour).Unix()), big.NewInt(now.Add(48 * time.Hour).Unix())},
			"paused":               {false},
			"resolved":             {false},
		},
	}
	r := NewOvertimeReader(caller, contracts.OvertimeSportsAMM)
	r.now = func() time.Time { return now }

	m, err := r.Market(context.Background(), "0x1A2b3c4d5e6f7890abcdef1234567890abcdef12")
	require.NoError(t, err)
	assert.Equal(t, "0x1a2b3c4d5e6f7890abcdef1234567890abcdef12", m.ID)
	assert.Equal(t, []model.Outcome{model.OutcomeHome, model.OutcomeAway, model.OutcomeDraw}, m.Outcomes)
	assert.True(t, m.Terms[model.OutcomeHome].Equal(decimal.RequireFromString("1.85")))
	assert.True(t, m.Terms[model.OutcomeDraw].Equal(decimal.RequireFromString("3.4")))
	assert.True(t, m.IsOpen)
	assert.Equal(t, now.Add(time.Hour), m.Maturity)
	assert.Equal(t, 4, caller.calls)
}

func TestOvertimeReaderTwoWayAndClosed(t *testing.T) {
	caller := &fakeCaller{
		parsed: []abi.ABI{contracts.SportsAMM, contracts.SportMarket},
		answers: map[string][]interface{}{
			"getMarketDefaultOdds": {e18("1.5"), e18("2.5"), big.NewInt(0)},
			"times":                {big.NewInt(0), big.NewInt(0)},
			"paused":               {false},
			"resolved":             {true},
		},
	}
	r := NewOvertimeReader(caller, contracts.OvertimeSportsAMM)

	m, err := r.Market(context.Background(), "0xabcdef1234567890abcdef1234567890abcdef12")
	require.NoError(t, err)
	assert.Equal(t, []model.Outcome{model.OutcomeHome, model.OutcomeAway}, m.Outcomes)
	assert.NotContains(t, m.Terms, model.OutcomeDraw)
	assert.False(t, m.IsOpen)
	assert.True(t, m.Maturity.IsZero())
}

func TestOvertimeReaderErrors(t *testing.T) {
	r := NewOvertimeReader(&fakeCaller{}, contracts.OvertimeSportsAMM)
	_, err := r.Market(context.Background(), "not-an-address")
	assert.Error(t, err)

	// empty return data means no code at the target
	r = NewOvertimeReader(&fakeCaller{parsed: []abi.ABI{contracts.SportsAMM}}, contracts.OvertimeSportsAMM)
	_, err = r.Market(context.Background(), "0xabcdef1234567890abcdef1234567890abcdef12")
	assert.ErrorIs(t, err, ErrNoContract)

	boom := errors.New("dial tcp: connection refused")
	r = NewOvertimeReader(&fakeCaller{err: boom}, contracts.OvertimeSportsAMM)
	_, err = r.Market(context.Background(), "0xabcdef1234567890abcdef1234567890abcdef12")
	assert.ErrorIs(t, err, boom)
}

func TestAzuroReaderMarket(t *testing.T) {
	caller := &fakeCaller{
		parsed: []abi.ABI{contracts.AzuroCore},
		answers: map[string][]interface{}{
			"getCondition": {
				[]*big.Int{big.NewInt(29), big.NewInt(30)},
				[]*big.Int{big.NewInt(18500), big.NewInt(21000)},
				uint8(1),
			},
		},
	}
	r := NewAzuroReader(caller, common.HexToAddress("0x00000000000000000000000000000000000000aa"))

	m, err := r.Market(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", m.ID)
	assert.Equal(t, []model.Outcome{"29", "30"}, m.Outcomes)
	assert.True(t, m.Terms["29"].Equal(decimal.RequireFromString("1.85")))
	assert.True(t, m.Terms["30"].Equal(decimal.RequireFromString("2.1")))
	assert.True(t, m.IsOpen)
}

func TestAzuroReaderErrors(t *testing.T) {
	_, err := NewAzuroReader(&fakeCaller{}, common.Address{}).Market(context.Background(), "42")
	assert.ErrorIs(t, err, ErrNoContract)

	r := NewAzuroReader(&fakeCaller{}, common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	_, err = r.Market(context.Background(), "abc")
	assert.Error(t, err)

	caller := &fakeCaller{
		parsed: []abi.ABI{contracts.AzuroCore},
		answers: map[string][]interface{}{
			"getCondition": {[]*big.Int{big.NewInt(1)}, []*big.Int{}, uint8(1)},
		},
	}
	r = NewAzuroReader(caller, common.HexToAddress("0x00000000000000000000000000000000000000aa"))
	_, err = r.Market(context.Background(), "7")
	assert.Error(t, err)
}

func TestTokenReaderBalance(t *testing.T) {
	caller := &fakeCaller{
		parsed:  []abi.ABI{contracts.ERC20},
		answers: map[string][]interface{}{"balanceOf": {e18("12.5")}},
	}
	got, err := NewTokenReader(caller).TokenBalance(context.Background(), contracts.OvertimeSUSD, common.HexToAddress("0xb0"))
	require.NoError(t, err)
	assert.Equal(t, e18("12.5"), got)

	_, err = NewTokenReader(&fakeCaller{}).TokenBalance(context.Background(), contracts.OvertimeSUSD, common.HexToAddress("0xb0"))
	assert.ErrorIs(t, err, ErrNoContract)
}
