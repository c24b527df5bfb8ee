// Package profit prices a candidate cycle at a concrete loan size: it
// threads the loan through every hop, charges the flash-loan premium and the
// gas bill, and reports what is left.
package profit

import (
	"errors"
	"math/big"

	"github.com/defistate/arb-engine-go/pathfinder"
	"github.com/defistate/arb-engine-go/snapshot"
)

const (
	// DefaultFlashFeeBps is the flash-loan premium in basis points.
	DefaultFlashFeeBps = 9

	// FlashLoanBaseGas covers taking and repaying the loan.
	FlashLoanBaseGas = 90_000
	// ExecutionOverheadGas covers the transaction envelope around the hops.
	ExecutionOverheadGas = 30_000

	// MaxHops rejects routes too long to execute atomically.
	MaxHops = 6
)

var (
	ErrEmptyPath   = errors.New("profit: path has no hops")
	ErrPathTooLong = errors.New("profit: path exceeds the hop limit")
	ErrBrokenChain = errors.New("profit: hop tokens do not chain")
	ErrNotCycle    = errors.New("profit: path does not end at its start token")
	ErrInvalidLoan = errors.New("profit: loan amount must be positive")
	// ErrZeroOutput reports a hop that consumed its input without producing
	// anything, typically a drained or absurdly thin pool.
	ErrZeroOutput = errors.New("profit: hop produced zero output")
)

const bpsDenominator = 10_000

// minDerivativeStep keeps finite differences meaningful for tiny loans,
// where a proportional step would round to zero.
var defaultMinDerivativeStep = big.NewInt(1_000)

type Calculator struct {
	FlashFeeBps       uint64
	FlashBaseGas      uint64
	OverheadGas       uint64
	MinDerivativeStep *big.Int
}

func NewCalculator() *Calculator {
	return &Calculator{
		FlashFeeBps:       DefaultFlashFeeBps,
		FlashBaseGas:      FlashLoanBaseGas,
		OverheadGas:       ExecutionOverheadGas,
		MinDerivativeStep: defaultMinDerivativeStep,
	}
}

// Result is the outcome of pricing one path at one loan size. All amounts
// are denominated in the borrowed token.
type Result struct {
	LoanAmount  *big.Int
	FinalOutput *big.Int
	Debt        *big.Int
	GasCost     *big.Int
	NetProfit   *big.Int
	Profitable  bool
	// HopAmounts[0] is the loan; HopAmounts[i] is the output of hop i.
	HopAmounts []*big.Int
	GasUnits   uint64
}

func validatePath(p pathfinder.Path) error {
	if len(p.Edges) == 0 {
		return ErrEmptyPath
	}
	if len(p.Edges) > MaxHops {
		return ErrPathTooLong
	}
	if len(p.Tokens) != len(p.Edges)+1 {
		return ErrBrokenChain
	}
	for i, e := range p.Edges {
		if e.TokenIn() != p.Tokens[i] || e.TokenOut() != p.Tokens[i+1] {
			return ErrBrokenChain
		}
		if i > 0 && p.Edges[i-1].TokenOut() != e.TokenIn() {
			return ErrBrokenChain
		}
	}
	if p.Tokens[0] != p.Tokens[len(p.Tokens)-1] {
		return ErrNotCycle
	}
	return nil
}

// SimulatePath runs amountIn through every hop of the cycle and returns the
// final output, the per-hop amounts (starting with the input), and the
// summed hop gas. A hop that produces zero output aborts the whole path:
// nothing downstream can recover from an empty balance.
func (c *Calculator) SimulatePath(p pathfinder.Path, amountIn *big.Int) (*big.Int, []*big.Int, uint64, error) {
	if err := validatePath(p); err != nil {
		return nil, nil, 0, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, nil, 0, ErrInvalidLoan
	}

	amounts := make([]*big.Int, 0, len(p.Edges)+1)
	amounts = append(amounts, new(big.Int).Set(amountIn))
	current := amountIn
	var gas uint64
	for _, e := range p.Edges {
		out, hopGas, err := e.AmountOut(current)
		if err != nil {
			return nil, nil, 0, err
		}
		gas += hopGas
		if out.Sign() <= 0 {
			return nil, nil, 0, ErrZeroOutput
		}
		amounts = append(amounts, out)
		current = out
	}
	return current, amounts, gas, nil
}

// CalculateDebt returns loan plus the flash premium:
//
//	debt = loan * (10000 + feeBps) / 10000
func (c *Calculator) CalculateDebt(loan *big.Int) *big.Int {
	debt := new(big.Int).SetUint64(bpsDenominator + c.FlashFeeBps)
	debt.Mul(debt, loan)
	return debt.Div(debt, big.NewInt(bpsDenominator))
}

// CalculateProfit prices the cycle at one loan size. The gas bill is
// converted into the borrowed token through the snapshot's gas quote.
func (c *Calculator) CalculateProfit(p pathfinder.Path, loan *big.Int, gas snapshot.GasQuote) (*Result, error) {
	finalOut, amounts, hopGas, err := c.SimulatePath(p, loan)
	if err != nil {
		return nil, err
	}

	gasUnits := c.FlashBaseGas + c.OverheadGas + hopGas
	gasCost := gas.CostInAsset(gasUnits)
	debt := c.CalculateDebt(loan)

	net := new(big.Int).Sub(finalOut, debt)
	net.Sub(net, gasCost)

	return &Result{
		LoanAmount:  new(big.Int).Set(loan),
		FinalOutput: finalOut,
		Debt:        debt,
		GasCost:     gasCost,
		NetProfit:   net,
		Profitable:  net.Sign() > 0,
		HopAmounts:  amounts,
		GasUnits:    gasUnits,
	}, nil
}

// step picks the finite-difference spacing for a loan size: proportional to
// the loan, floored so integer rounding cannot swallow it.
func (c *Calculator) step(loan *big.Int) *big.Int {
	h := new(big.Int).Div(loan, big.NewInt(1_000_000))
	min := c.MinDerivativeStep
	if min == nil {
		min = defaultMinDerivativeStep
	}
	if h.Cmp(min) < 0 {
		h.Set(min)
	}
	return h
}

func (c *Calculator) profitAt(p pathfinder.Path, loan *big.Int, gas snapshot.GasQuote) (*big.Int, error) {
	res, err := c.CalculateProfit(p, loan, gas)
	if err != nil {
		return nil, err
	}
	return res.NetProfit, nil
}

// Derivative estimates d(profit)/d(loan) by central difference. The result
// is a ratio of integer amounts, so it is returned as a float.
func (c *Calculator) Derivative(p pathfinder.Path, loan *big.Int, gas snapshot.GasQuote) (*big.Float, error) {
	h := c.step(loan)
	lo := new(big.Int).Sub(loan, h)
	if lo.Sign() <= 0 {
		lo.SetInt64(1)
	}
	hi := new(big.Int).Add(loan, h)

	pLo, err := c.profitAt(p, lo, gas)
	if err != nil {
		return nil, err
	}
	pHi, err := c.profitAt(p, hi, gas)
	if err != nil {
		return nil, err
	}

	num := new(big.Float).SetInt(new(big.Int).Sub(pHi, pLo))
	den := new(big.Float).SetInt(new(big.Int).Sub(hi, lo))
	return num.Quo(num, den), nil
}

// SecondDerivative estimates the profit curve's curvature at loan. A
// negative value means the curve is locally concave, which is what a
// price-impact-dominated cycle looks like near its optimum.
func (c *Calculator) SecondDerivative(p pathfinder.Path, loan *big.Int, gas snapshot.GasQuote) (*big.Float, error) {
	h := c.step(loan)
	lo := new(big.Int).Sub(loan, h)
	if lo.Sign() <= 0 {
		lo.SetInt64(1)
		h = new(big.Int).Sub(loan, lo)
		if h.Sign() <= 0 {
			h.SetInt64(1)
		}
	}
	hi := new(big.Int).Add(loan, h)

	pLo, err := c.profitAt(p, lo, gas)
	if err != nil {
		return nil, err
	}
	pMid, err := c.profitAt(p, loan, gas)
	if err != nil {
		return nil, err
	}
	pHi, err := c.profitAt(p, hi, gas)
	if err != nil {
		return nil, err
	}

	num := new(big.Int).Add(pHi, pLo)
	num.Sub(num, new(big.Int).Lsh(pMid, 1))
	h2 := new(big.Int).Mul(h, h)

	out := new(big.Float).SetInt(num)
	return out.Quo(out, new(big.Float).SetInt(h2)), nil
}
