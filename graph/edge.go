package graph

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	uniswapv2 "github.com/defistate/arb-engine-go/protocols/uniswapv2"
	uniswapv2calculator "github.com/defistate/arb-engine-go/protocols/uniswapv2/calculator"
	uniswapv3 "github.com/defistate/arb-engine-go/protocols/uniswapv3"
	uniswapv3calculator "github.com/defistate/arb-engine-go/protocols/uniswapv3/calculator"
)

// Default per-hop gas figures, overridable through BuildConfig.
const (
	DefaultV2SwapGas      = 120_000
	DefaultV3SwapGas      = 150_000
	DefaultV3TickCrossGas = 25_000
)

// Edge is one direction of one pool: a single-hop swap opportunity. The two
// concrete variants form a closed set; callers dispatch through this
// interface instead of probing dynamic fields.
type Edge interface {
	// PoolAddress identifies the underlying pool on chain.
	PoolAddress() common.Address
	// Venue names the exchange the pool belongs to.
	Venue() string
	TokenIn() common.Address
	TokenOut() common.Address
	// Liquidity is the filtering metric: the smaller reserve for a
	// constant-product pair, the in-range liquidity for a V3 pool.
	Liquidity() *big.Int
	// BaseGas is the gas estimate for this hop before tick traversal.
	BaseGas() uint64
	// AmountOut simulates the hop and returns the output amount together
	// with the hop's full gas estimate. Pool state is never mutated.
	AmountOut(amountIn *big.Int) (*big.Int, uint64, error)
}

// V2Edge is a directed view over a constant-product pair.
type V2Edge struct {
	Pool uniswapv2.Pool
	In   common.Address
	Out  common.Address
	Gas  uint64
}

func (e *V2Edge) PoolAddress() common.Address { return e.Pool.Address }
func (e *V2Edge) Venue() string               { return e.Pool.Venue }
func (e *V2Edge) TokenIn() common.Address     { return e.In }
func (e *V2Edge) TokenOut() common.Address    { return e.Out }
func (e *V2Edge) Liquidity() *big.Int         { return e.Pool.MinReserve() }
func (e *V2Edge) BaseGas() uint64             { return e.Gas }

func (e *V2Edge) AmountOut(amountIn *big.Int) (*big.Int, uint64, error) {
	out, err := uniswapv2calculator.GetAmountOut(amountIn, e.In, e.Out, e.Pool)
	if err != nil {
		return nil, 0, err
	}
	return out, e.Gas, nil
}

// V3Edge is a directed view over a concentrated-liquidity pool. Both
// directions of a pool share the same underlying snapshot.
type V3Edge struct {
	Pool       *uniswapv3.Pool
	In         common.Address
	Out        common.Address
	Gas        uint64
	GasPerTick uint64
}

func (e *V3Edge) PoolAddress() common.Address { return e.Pool.Address }
func (e *V3Edge) Venue() string               { return e.Pool.Venue }
func (e *V3Edge) TokenIn() common.Address     { return e.In }
func (e *V3Edge) TokenOut() common.Address    { return e.Out }
func (e *V3Edge) Liquidity() *big.Int         { return e.Pool.Liquidity }
func (e *V3Edge) BaseGas() uint64             { return e.Gas }

func (e *V3Edge) AmountOut(amountIn *big.Int) (*big.Int, uint64, error) {
	res, err := uniswapv3calculator.Quote(amountIn, nil, e.In, *e.Pool)
	if err != nil {
		return nil, 0, err
	}
	gas := e.Gas + e.GasPerTick*uint64(res.TicksCrossed)
	return res.Amount, gas, nil
}
