// Package types contains shared type definitions used across multiple packages
package types

import "strings"

// SupportedChain represents a blockchain network a provider can serve
type SupportedChain string

// Supported blockchain networks
const (
	ChainEthereum SupportedChain = "ethereum"
	ChainPolygon  SupportedChain = "polygon"
	ChainArbitrum SupportedChain = "arbitrum"
	ChainOptimism SupportedChain = "optimism"
	ChainBase     SupportedChain = "base"
)

// chainIDs maps each network to its EIP-155 chain id
var chainIDs = map[SupportedChain]int64{
	ChainEthereum: 1,
	ChainPolygon:  137,
	ChainArbitrum: 42161,
	ChainOptimism: 10,
	ChainBase:     8453,
}

// ChainID returns the EIP-155 chain id, or 0 for an unknown network
func (c SupportedChain) ChainID() int64 {
	return chainIDs[c]
}

// ParseChain normalizes a user supplied chain name
func ParseChain(s string) SupportedChain {
	return SupportedChain(strings.ToLower(strings.TrimSpace(s)))
}

// MarketCategory is the kind of market a provider serves
type MarketCategory string

const (
	CategorySports MarketCategory = "sports"
	CategorySwap   MarketCategory = "swap"
)

// ParseCategory normalizes a user supplied category name
func ParseCategory(s string) MarketCategory {
	return MarketCategory(strings.ToLower(strings.TrimSpace(s)))
}
