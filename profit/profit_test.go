package profit

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/arb-engine-go/graph"
	"github.com/defistate/arb-engine-go/pathfinder"
	"github.com/defistate/arb-engine-go/snapshot"
)

var (
	usdc = common.HexToAddress("0x1111111111111111111111111111111111111111")
	weth = common.HexToAddress("0x2222222222222222222222222222222222222222")
	dai  = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func v2edge(addr byte, in, out common.Address, reserveIn, reserveOut *big.Int) *graph.V2Edge {
	e := &graph.V2Edge{In: in, Out: out, Gas: graph.DefaultV2SwapGas}
	e.Pool.Address = common.BytesToAddress([]byte{addr})
	e.Pool.Token0 = in
	e.Pool.Token1 = out
	e.Pool.Reserve0 = reserveIn
	e.Pool.Reserve1 = reserveOut
	e.Pool.FeeBps = 30
	return e
}

// crossVenuePath prices WETH 2% apart on two venues: buy where it is cheap,
// sell where it is dear, in USDC terms.
func crossVenuePath() pathfinder.Path {
	wethReserve := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	cheap := v2edge(0x01, usdc, weth, big.NewInt(3_000_000e6), wethReserve)
	dear := v2edge(0x02, weth, usdc, new(big.Int).Set(wethReserve), big.NewInt(3_060_000e6))
	return pathfinder.Path{
		Edges:  []graph.Edge{cheap, dear},
		Tokens: []common.Address{usdc, weth, usdc},
	}
}

// cheapGas is one gwei with ETH at 3000 USDC: cheap enough that a decent
// spread survives it.
func cheapGas() snapshot.GasQuote {
	return snapshot.GasQuote{
		GasPriceWei:    big.NewInt(1e9),
		AssetPerWeiNum: big.NewInt(3000e6),
		AssetPerWeiDen: big.NewInt(1e18),
	}
}

func TestCalculateDebt(t *testing.T) {
	c := NewCalculator()

	tests := []struct {
		loan string
		debt string
	}{
		{"1000000000000000000", "1000900000000000000"},
		{"10000", "10009"},
		{"10001", "10010"}, // truncated, not rounded
		{"1", "1"},
	}
	for _, tt := range tests {
		loan, ok := new(big.Int).SetString(tt.loan, 10)
		require.True(t, ok)
		assert.Equal(t, tt.debt, c.CalculateDebt(loan).String(), "loan %s", tt.loan)
	}
}

func TestSimulatePath(t *testing.T) {
	c := NewCalculator()
	p := crossVenuePath()

	loan := big.NewInt(1000e6)
	out, amounts, gas, err := c.SimulatePath(p, loan)
	require.NoError(t, err)

	require.Len(t, amounts, 3)
	assert.Equal(t, loan.String(), amounts[0].String())
	assert.Equal(t, out.String(), amounts[2].String())
	assert.Equal(t, uint64(2*graph.DefaultV2SwapGas), gas)

	// ~0.332 WETH out of the first hop, then back into USDC with a gain.
	assert.Positive(t, amounts[1].Cmp(big.NewInt(3e17)))
	assert.Negative(t, amounts[1].Cmp(big.NewInt(34e16)))
	assert.Positive(t, out.Cmp(loan))
}

func TestSimulatePath_Rejections(t *testing.T) {
	c := NewCalculator()

	_, _, _, err := c.SimulatePath(pathfinder.Path{}, big.NewInt(1))
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, _, _, err = c.SimulatePath(crossVenuePath(), nil)
	assert.ErrorIs(t, err, ErrInvalidLoan)
	_, _, _, err = c.SimulatePath(crossVenuePath(), big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidLoan)

	// Middle hop expects DAI but receives WETH.
	broken := crossVenuePath()
	broken.Edges[1] = v2edge(0x03, dai, usdc, big.NewInt(1e18), big.NewInt(1e18))
	_, _, _, err = c.SimulatePath(broken, big.NewInt(1000e6))
	assert.ErrorIs(t, err, ErrBrokenChain)

	// Open-ended route that never returns to the borrowed token.
	open := pathfinder.Path{
		Edges:  []graph.Edge{v2edge(0x04, usdc, weth, big.NewInt(1e12), big.NewInt(1e18))},
		Tokens: []common.Address{usdc, weth},
	}
	_, _, _, err = c.SimulatePath(open, big.NewInt(1000e6))
	assert.ErrorIs(t, err, ErrNotCycle)
}

func TestSimulatePath_TooManyHops(t *testing.T) {
	c := NewCalculator()

	var edges []graph.Edge
	toks := []common.Address{usdc}
	prev := usdc
	for i := 0; i < 7; i++ {
		next := common.BytesToAddress([]byte{0x50, byte(i)})
		if i == 6 {
			next = usdc
		}
		edges = append(edges, v2edge(byte(0x60+i), prev, next, big.NewInt(1e18), big.NewInt(1e18)))
		toks = append(toks, next)
		prev = next
	}
	p := pathfinder.Path{Edges: edges, Tokens: toks}

	_, _, _, err := c.SimulatePath(p, big.NewInt(1e6))
	assert.ErrorIs(t, err, ErrPathTooLong)
}

func TestCalculateProfit(t *testing.T) {
	c := NewCalculator()
	p := crossVenuePath()
	loan := big.NewInt(1000e6)

	res, err := c.CalculateProfit(p, loan, cheapGas())
	require.NoError(t, err)

	assert.Equal(t, uint64(FlashLoanBaseGas+ExecutionOverheadGas+2*graph.DefaultV2SwapGas), res.GasUnits)
	assert.Equal(t, c.CalculateDebt(loan).String(), res.Debt.String())

	// net = out - debt - gas, reconstructed from the parts.
	check := new(big.Int).Sub(res.FinalOutput, res.Debt)
	check.Sub(check, res.GasCost)
	assert.Equal(t, check.String(), res.NetProfit.String())

	assert.True(t, res.Profitable)
	assert.Positive(t, res.NetProfit.Sign())
}

func TestCalculateProfit_GasErasesTheEdge(t *testing.T) {
	c := NewCalculator()
	p := crossVenuePath()
	loan := big.NewInt(1000e6)

	// 50 gwei: the same route now pays ~54 USDC in gas against a ~12 USDC
	// gross edge.
	expensive := cheapGas()
	expensive.GasPriceWei = big.NewInt(50e9)

	res, err := c.CalculateProfit(p, loan, expensive)
	require.NoError(t, err)
	assert.False(t, res.Profitable)
	assert.Negative(t, res.NetProfit.Sign())
}

func TestDerivative_SignTracksThePeak(t *testing.T) {
	c := NewCalculator()
	p := crossVenuePath()
	gas := cheapGas()

	// Well below the optimum the marginal rate beats the premium.
	d, err := c.Derivative(p, big.NewInt(1000e6), gas)
	require.NoError(t, err)
	assert.Positive(t, d.Sign())

	// At half a million USDC against a three million reserve, price impact
	// has flipped the marginal unit negative.
	d, err = c.Derivative(p, big.NewInt(500_000e6), gas)
	require.NoError(t, err)
	assert.Negative(t, d.Sign())
}

func TestSecondDerivative_Concave(t *testing.T) {
	c := NewCalculator()
	// Integer profits quantize curvature away at small spacing; widen the
	// stencil so the signal clears the rounding noise.
	c.MinDerivativeStep = big.NewInt(1e8)
	p := crossVenuePath()
	gas := cheapGas()

	for _, loan := range []*big.Int{big.NewInt(1000e6), big.NewInt(10_000e6), big.NewInt(100_000e6)} {
		d2, err := c.SecondDerivative(p, loan, gas)
		require.NoError(t, err)
		assert.Negative(t, d2.Sign(), "loan %s", loan)
	}
}
