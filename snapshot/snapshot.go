// Package snapshot defines the point-in-time chain state handed to the engine
// by external fetchers. Everything here is plain data: the engine never
// fetches, caches, or mutates shared state itself. A Snapshot is rebuilt for
// every scan cycle and treated as immutable once handed over.
package snapshot

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/arb-engine-go/tokens"
)

var (
	ErrMissingGasQuote = errors.New("snapshot has no gas quote")
	ErrNoAssets        = errors.New("snapshot has no borrowable assets")
)

// TickLiquidity is one entry of a V3 pool's sparse tick map.
type TickLiquidity struct {
	LiquidityNet *big.Int `json:"liquidityNet"`
	Initialized  bool     `json:"initialized"`
}

// V2Pair is a constant-product pair snapshot.
type V2Pair struct {
	Address  common.Address `json:"address"`
	Venue    string         `json:"venue"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"`
}

// V3Pool is a concentrated-liquidity pool snapshot. Ticks holds the sparse
// tick map for the ticks the fetcher resolved around the current price.
type V3Pool struct {
	Address      common.Address          `json:"address"`
	Venue        string                  `json:"venue"`
	Token0       common.Address          `json:"token0"`
	Token1       common.Address          `json:"token1"`
	FeePips      uint64                  `json:"fee"`
	TickSpacing  int64                   `json:"tickSpacing"`
	SqrtPriceX96 *big.Int                `json:"sqrtPriceX96"`
	Tick         int64                   `json:"tick"`
	Liquidity    *big.Int                `json:"liquidity"`
	Ticks        map[int64]TickLiquidity `json:"ticks"`
}

// BorrowableAsset describes a flash-loan capital source for one token.
type BorrowableAsset struct {
	Address            common.Address `json:"address"`
	Symbol             string         `json:"symbol"`
	Decimals           uint8          `json:"decimals"`
	AvailableLiquidity *big.Int       `json:"availableLiquidity"`
	FlashFeeBps        uint64         `json:"flashFeeBps"`
	PriceUsd           float64        `json:"priceUsd"`
}

// GasQuote carries the current gas price and the rational factor converting a
// wei-denominated cost into units of the borrowed asset.
type GasQuote struct {
	GasPriceWei    *big.Int `json:"gasPriceWei"`
	AssetPerWeiNum *big.Int `json:"assetPerWeiNum"`
	AssetPerWeiDen *big.Int `json:"assetPerWeiDen"`
}

// CostInAsset converts a gas-unit total into borrowed-asset units.
func (q GasQuote) CostInAsset(gasUnits uint64) *big.Int {
	if q.GasPriceWei == nil || q.AssetPerWeiNum == nil || q.AssetPerWeiDen == nil || q.AssetPerWeiDen.Sign() == 0 {
		return new(big.Int)
	}
	cost := new(big.Int).Mul(q.GasPriceWei, new(big.Int).SetUint64(gasUnits))
	cost.Mul(cost, q.AssetPerWeiNum)
	return cost.Div(cost, q.AssetPerWeiDen)
}

// Snapshot bundles one scan cycle's worth of chain state.
type Snapshot struct {
	Block  uint64            `json:"block"`
	Tokens []tokens.Token    `json:"tokens"`
	Pairs  []V2Pair          `json:"pairs"`
	Pools  []V3Pool          `json:"pools"`
	Assets []BorrowableAsset `json:"assets"`
	Gas    GasQuote          `json:"gas"`
}

// Validate performs the minimal structural checks a scan needs. Malformed
// pools are not an error here; graph construction silently omits them.
func (s *Snapshot) Validate() error {
	if s.Gas.GasPriceWei == nil {
		return ErrMissingGasQuote
	}
	if len(s.Assets) == 0 {
		return ErrNoAssets
	}
	for _, a := range s.Assets {
		if a.AvailableLiquidity == nil {
			return fmt.Errorf("asset %s: nil available liquidity", a.Symbol)
		}
	}
	return nil
}
