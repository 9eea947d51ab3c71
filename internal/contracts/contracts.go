// Package contracts holds the ABIs and deployed addresses of the venues the
// gateway integrates with.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// OvertimeSportsAMM is the Overtime SportsAMM deployment on Arbitrum One
var OvertimeSportsAMM = common.HexToAddress("0x7465c5d60d3d095443CF9991Da03304A30D42Eae")

// OvertimeSUSD is the sUSD collateral SportsAMM pulls on buyFromAMM
var OvertimeSUSD = common.HexToAddress("0xA970AF1a584579B618be4d69aD6F73459D112F95")

// Overtime odds and sUSD amounts use 18 decimals; Azuro odds are basis points.
const (
	OvertimeDecimals  = 18
	AzuroOddsDecimals = 4
	AzuroDecimals     = 18
)

const sportsAMMJSON = `[
	{"inputs":[{"name":"market","type":"address"}],"name":"getMarketDefaultOdds",
	 "outputs":[{"name":"homeOdds","type":"uint256"},{"name":"awayOdds","type":"uint256"},{"name":"drawOdds","type":"uint256"}],
	 "stateMutability":"view","type":"function"},
	{"inputs":[{"name":"market","type":"address"},{"name":"position","type":"uint8"},{"name":"amount","type":"uint256"}],
	 "name":"buyFromAMM","outputs":[{"name":"","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

const sportMarketJSON = `[
	{"inputs":[],"name":"times","outputs":[{"name":"maturity","type":"uint256"},{"name":"expiry","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"paused","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"resolved","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

const azuroCoreJSON = `[
	{"inputs":[{"name":"conditionId","type":"uint256"},{"name":"outcomeId","type":"uint256"},{"name":"amount","type":"uint256"}],
	 "name":"placeBet","outputs":[{"name":"","type":"uint256"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"conditionId","type":"uint256"}],"name":"getCondition",
	 "outputs":[{"name":"outcomes","type":"uint256[]"},{"name":"odds","type":"uint256[]"},{"name":"status","type":"uint8"}],
	 "stateMutability":"view","type":"function"}
]`

const erc20JSON = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// Parsed ABIs
var (
	SportsAMM   = mustParse(sportsAMMJSON)
	SportMarket = mustParse(sportMarketJSON)
	AzuroCore   = mustParse(azuroCoreJSON)
	ERC20       = mustParse(erc20JSON)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contracts: invalid ABI: %v", err))
	}
	return parsed
}

// OvertimePosition maps a sports outcome to the SportsAMM position index.
func OvertimePosition(outcome string) (uint8, bool) {
	switch outcome {
	case "home":
		return 0, true
	case "away":
		return 1, true
	case "draw":
		return 2, true
	}
	return 0, false
}

// PackBuyFromAMM encodes SportsAMM.buyFromAMM calldata.
func PackBuyFromAMM(market common.Address, position uint8, amount *big.Int) ([]byte, error) {
	return SportsAMM.Pack("buyFromAMM", market, position, amount)
}

// PackPlaceBet encodes Azuro core placeBet calldata.
func PackPlaceBet(conditionID, outcomeID, amount *big.Int) ([]byte, error) {
	return AzuroCore.Pack("placeBet", conditionID, outcomeID, amount)
}
