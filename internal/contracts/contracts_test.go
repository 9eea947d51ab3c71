package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOvertimePosition(t *testing.T) {
	for outcome, want := range map[string]uint8{"home": 0, "away": 1, "draw": 2} {
		got, ok := OvertimePosition(outcome)
		require.True(t, ok, outcome)
		assert.Equal(t, want, got)
	}
	_, ok := OvertimePosition("over")
	assert.False(t, ok)
}

func TestPackBuyFromAMM(t *testing.T) {
	market := common.HexToAddress("0x1a2b3c4d5e6f7890abcdef1234567890abcdef12")
	data, err := PackBuyFromAMM(market, 1, big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, SportsAMM.Methods["buyFromAMM"].ID, data[:4])

	args, err := SportsAMM.Methods["buyFromAMM"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, market, args[0])
	assert.Equal(t, uint8(1), args[1])
	assert.Equal(t, big.NewInt(1000), args[2])
}

func TestPackPlaceBet(t *testing.T) {
	data, err := PackPlaceBet(big.NewInt(7), big.NewInt(29), big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, AzuroCore.Methods["placeBet"].ID, data[:4])
	assert.Len(t, data, 4+3*32)
}

func TestERC20BalanceOf(t *testing.T) {
	owner := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	data, err := ERC20.Pack("balanceOf", owner)
	require.NoError(t, err)
	assert.Equal(t, ERC20.Methods["balanceOf"].ID, data[:4])
	assert.Len(t, data, 4+32)
}
