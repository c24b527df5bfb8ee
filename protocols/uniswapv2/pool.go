package uniswapv2

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is a point-in-time snapshot of a constant-product pair. Reserves are
// on-chain-width unsigned integers; FeeBps is the swap fee in basis points
// (30 for the canonical 0.3% pair).
type Pool struct {
	Address  common.Address `json:"address"`
	Venue    string         `json:"venue"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"`
}

// MinReserve returns the smaller of the two reserves, the liquidity metric
// used when filtering pairs out of the routing graph.
func (p Pool) MinReserve() *big.Int {
	if p.Reserve0 == nil || p.Reserve1 == nil {
		return new(big.Int)
	}
	if p.Reserve0.Cmp(p.Reserve1) <= 0 {
		return p.Reserve0
	}
	return p.Reserve1
}
