package uniswapv3

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// TickInfo is one initialized tick boundary. Presence of a TickInfo in
// Pool.Ticks implicitly means the tick is initialized; LiquidityNet is the
// signed delta applied to active liquidity when the boundary is crossed.
type TickInfo struct {
	Index        int64    `json:"index"`
	LiquidityNet *big.Int `json:"liquidityNet"`
}

// Pool is a point-in-time snapshot of a concentrated-liquidity pool.
// FeePips is the fee tier in hundredths of a basis point (3000 for 0.3%).
// Ticks must be sorted ascending by Index.
type Pool struct {
	Address      common.Address `json:"address"`
	Venue        string         `json:"venue"`
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	FeePips      uint64         `json:"fee"`
	TickSpacing  int64          `json:"tickSpacing"`
	Tick         int64          `json:"tick"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
	Liquidity    *big.Int       `json:"liquidity"`
	Ticks        []TickInfo     `json:"ticks"`
}

// FindTick returns the initialized tick at the given index, if present.
func (p Pool) FindTick(index int64) (TickInfo, bool) {
	i := sort.Search(len(p.Ticks), func(i int) bool {
		return p.Ticks[i].Index >= index
	})
	if i < len(p.Ticks) && p.Ticks[i].Index == index {
		return p.Ticks[i], true
	}
	return TickInfo{}, false
}

// SortTicks orders the tick slice ascending by index. Builders that assemble
// ticks from an unordered map must call this before the pool is used.
func (p *Pool) SortTicks() {
	sort.Slice(p.Ticks, func(i, j int) bool {
		return p.Ticks[i].Index < p.Ticks[j].Index
	})
}
