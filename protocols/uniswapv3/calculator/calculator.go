package uniswapv3

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	uniswapv3 "github.com/defistate/arb-engine-go/protocols/uniswapv3"
	"github.com/defistate/arb-engine-go/protocols/uniswapv3/calculator/liquiditymath"
	"github.com/defistate/arb-engine-go/protocols/uniswapv3/calculator/swapmath"
	"github.com/defistate/arb-engine-go/protocols/uniswapv3/calculator/tickbitmap"
	"github.com/defistate/arb-engine-go/protocols/uniswapv3/calculator/tickmath"
)

var (
	ErrInvalidAmountIn       = errors.New("amountIn must be greater than zero")
	ErrInvalidAmountOut      = errors.New("amountOut must be greater than zero")
	ErrTokenMismatch         = errors.New("token mismatch")
	ErrInsufficientLiquidity = errors.New("no active liquidity for swap")

	// Q96 is 2^96, the scale factor of the Q64.96 sqrt price encoding.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
)

// SwapResult carries the outcome of a simulated swap along with the pool
// state it would leave behind and traversal diagnostics.
type SwapResult struct {
	Amount       *big.Int // amountOut for exact-in, amountIn for exact-out
	SqrtPriceX96 *big.Int
	Tick         int64
	Liquidity    *big.Int
	TicksCrossed int
}

// swapState bundles the working variables of one swap simulation so the hot
// loop can run without allocations.
type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *big.Int
	tick                     int64
	liquidity                *big.Int
	ticksCrossed             int

	sqrtPriceStartX96 *big.Int
	sqrtPriceNextX96  *big.Int
	targetPrice       *big.Int
	stepAmountIn      *big.Int
	stepAmountOut     *big.Int
	stepFeeAmount     *big.Int
	tempAmount        *big.Int
	liquidityNet      *big.Int
}

var swapStatePool = sync.Pool{
	New: func() any {
		return &swapState{
			amountSpecifiedRemaining: new(big.Int),
			amountCalculated:         new(big.Int),
			sqrtPriceX96:             new(big.Int),
			liquidity:                new(big.Int),
			sqrtPriceStartX96:        new(big.Int),
			sqrtPriceNextX96:         new(big.Int),
			targetPrice:              new(big.Int),
			stepAmountIn:             new(big.Int),
			stepAmountOut:            new(big.Int),
			stepFeeAmount:            new(big.Int),
			tempAmount:               new(big.Int),
			liquidityNet:             new(big.Int),
		}
	},
}

func (s *swapState) load(amountSpecified *big.Int, pool uniswapv3.Pool) {
	s.amountSpecifiedRemaining.Set(amountSpecified)
	s.amountCalculated.SetInt64(0)
	s.sqrtPriceX96.Set(pool.SqrtPriceX96)
	s.tick = pool.Tick
	s.liquidity.Set(pool.Liquidity)
	s.ticksCrossed = 0
}

func (s *swapState) result() *SwapResult {
	return &SwapResult{
		Amount:       new(big.Int).Set(s.amountCalculated),
		SqrtPriceX96: new(big.Int).Set(s.sqrtPriceX96),
		Tick:         s.tick,
		Liquidity:    new(big.Int).Set(s.liquidity),
		TicksCrossed: s.ticksCrossed,
	}
}

// directionFor resolves the swap direction for tokenIn, or fails if the token
// is not one of the pool's pair.
func directionFor(tokenIn common.Address, pool uniswapv3.Pool) (zeroForOne bool, err error) {
	zeroForOne = tokenIn == pool.Token0
	if !zeroForOne && tokenIn != pool.Token1 {
		return false, fmt.Errorf("%w: token %s is not in pool %s", ErrTokenMismatch, tokenIn, pool.Address)
	}
	return zeroForOne, nil
}

// swap is the core tick-traversal loop. Each iteration either settles inside
// the current tick range and exhausts the remaining amount, or fully crosses
// the next initialized boundary and continues with the remainder; termination
// follows because every crossing moves to a strictly more extreme tick.
func swap(
	state *swapState,
	pool uniswapv3.Pool,
	sqrtPriceLimitX96 *big.Int,
	zeroForOne bool,
) error {

	if sqrtPriceLimitX96 == nil {
		if zeroForOne {
			sqrtPriceLimitX96 = tickmath.MIN_SQRT_RATIO
		} else {
			sqrtPriceLimitX96 = tickmath.MAX_SQRT_RATIO
		}
	}

	exactInput := state.amountSpecifiedRemaining.Sign() > 0

	for state.amountSpecifiedRemaining.Sign() != 0 && state.sqrtPriceX96.Cmp(sqrtPriceLimitX96) != 0 {
		state.sqrtPriceStartX96.Set(state.sqrtPriceX96)

		tickNext, initialized := tickbitmap.NextInitializedTick(pool.Ticks, state.tick, zeroForOne)
		if !initialized {
			break
		}
		if tickNext < tickmath.MIN_TICK {
			tickNext = tickmath.MIN_TICK
		} else if tickNext > tickmath.MAX_TICK {
			tickNext = tickmath.MAX_TICK
		}

		if err := tickmath.GetSqrtRatioAtTick(state.sqrtPriceNextX96, tickNext); err != nil {
			return err
		}

		if (zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0) ||
			(!zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0) {
			state.targetPrice.Set(sqrtPriceLimitX96)
		} else {
			state.targetPrice.Set(state.sqrtPriceNextX96)
		}

		err := swapmath.ComputeSwapStep(
			state.sqrtPriceX96, state.stepAmountIn, state.stepAmountOut, state.stepFeeAmount,
			state.sqrtPriceStartX96,
			state.targetPrice,
			state.liquidity,
			state.amountSpecifiedRemaining,
			state.tempAmount.SetUint64(pool.FeePips),
		)
		if err != nil {
			// Zero active liquidity in this range; nothing more to consume.
			break
		}

		if exactInput {
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, state.tempAmount.Add(state.stepAmountIn, state.stepFeeAmount))
			state.amountCalculated.Add(state.amountCalculated, state.stepAmountOut)
		} else {
			state.amountSpecifiedRemaining.Add(state.amountSpecifiedRemaining, state.stepAmountOut)
			state.amountCalculated.Add(state.amountCalculated, state.tempAmount.Add(state.stepAmountIn, state.stepFeeAmount))
		}

		if state.sqrtPriceX96.Cmp(state.sqrtPriceNextX96) == 0 {
			// Reached the boundary: apply the tick's net liquidity and step over it.
			if info, found := pool.FindTick(tickNext); found {
				state.liquidityNet.Set(info.LiquidityNet)
				if zeroForOne {
					state.liquidityNet.Neg(state.liquidityNet)
				}
				err = liquiditymath.AddDelta(state.liquidity, state.liquidity, state.liquidityNet)
				if err != nil {
					if errors.Is(err, liquiditymath.ErrLiquidityUnderflow) {
						break
					}
					return err
				}
			}
			state.ticksCrossed++

			if zeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if state.sqrtPriceX96.Cmp(state.sqrtPriceStartX96) != 0 {
			state.tick, err = tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Quote simulates an exact-input swap and returns the output amount, the
// resulting pool state, and the number of initialized ticks crossed.
func Quote(
	amountIn *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn common.Address,
	pool uniswapv3.Pool,
) (*SwapResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmountIn
	}
	zeroForOne, err := directionFor(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	if pool.Liquidity.Sign() == 0 && len(pool.Ticks) == 0 {
		return nil, ErrInsufficientLiquidity
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	state.load(amountIn, pool)
	if err := swap(state, pool, sqrtPriceLimitX96, zeroForOne); err != nil {
		return nil, err
	}
	return state.result(), nil
}

// GetAmountOut simulates an exact-input swap and returns only the output amount.
func GetAmountOut(
	amountIn *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn common.Address,
	pool uniswapv3.Pool,
) (*big.Int, error) {
	res, err := Quote(amountIn, sqrtPriceLimitX96, tokenIn, pool)
	if err != nil {
		return nil, err
	}
	return res.Amount, nil
}

// GetAmountIn simulates an exact-output swap: it returns the input amount
// required to receive amountOut. amountOut must be positive; the exact-output
// convention of the traversal loop (negative remaining amount) is internal.
func GetAmountIn(
	amountOut *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn common.Address,
	pool uniswapv3.Pool,
) (*SwapResult, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmountOut
	}
	zeroForOne, err := directionFor(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	if pool.Liquidity.Sign() == 0 && len(pool.Ticks) == 0 {
		return nil, ErrInsufficientLiquidity
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	state.load(new(big.Int).Neg(amountOut), pool)
	if err := swap(state, pool, sqrtPriceLimitX96, zeroForOne); err != nil {
		return nil, err
	}
	return state.result(), nil
}

// GetVirtualReserves derives the constant-product-equivalent reserves implied
// by the pool's current in-range liquidity and price. Useful as a liquidity
// comparison metric against V2 pairs.
func GetVirtualReserves(tokenIn, tokenOut common.Address, pool uniswapv3.Pool) (reserveIn, reserveOut *big.Int, err error) {
	if !((tokenIn == pool.Token0 && tokenOut == pool.Token1) || (tokenIn == pool.Token1 && tokenOut == pool.Token0)) {
		return nil, nil, fmt.Errorf("%w: provided tokens do not match pool tokens", ErrTokenMismatch)
	}

	// Not on a hot path; a few allocations are acceptable for clarity.
	reserve0 := new(big.Int).Div(new(big.Int).Lsh(pool.Liquidity, 96), pool.SqrtPriceX96)
	reserve1 := new(big.Int).Div(new(big.Int).Mul(pool.Liquidity, pool.SqrtPriceX96), Q96)

	if tokenIn == pool.Token0 {
		return reserve0, reserve1, nil
	}
	return reserve1, reserve0, nil
}
