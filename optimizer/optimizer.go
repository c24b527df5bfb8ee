// Package optimizer sizes the flash loan for a candidate cycle. The profit
// curve of a price-impact-dominated route is concave with a single interior
// peak; Newton-Raphson on the numerical derivative finds it in a handful of
// iterations, and a golden-section scan covers the curves that are not so
// well behaved.
package optimizer

import (
	"errors"
	"math/big"

	"github.com/defistate/arb-engine-go/pathfinder"
	"github.com/defistate/arb-engine-go/profit"
	"github.com/defistate/arb-engine-go/snapshot"
)

// Outcome classifies how the search ended.
type Outcome string

const (
	OutcomeConverged     Outcome = "converged"
	OutcomeMaxIterations Outcome = "max_iterations"
	OutcomeFallback      Outcome = "fallback"
	OutcomeUnprofitable  Outcome = "unprofitable"
)

const (
	DefaultMaxIterations      = 50
	DefaultFallbackIterations = 64
)

var (
	ErrInvalidBounds    = errors.New("optimizer: min loan must be positive and below max loan")
	ErrNoCapital        = errors.New("optimizer: no available liquidity for the borrowed asset")
	ErrNoProfitablePath = errors.New("optimizer: no candidate path clears the profit floor")
)

type Config struct {
	// MinLoan and MaxLoan bound the search space in borrowed-token units.
	MinLoan *big.Int
	MaxLoan *big.Int
	// ToleranceAbs stops Newton once the step shrinks below this many
	// token units.
	ToleranceAbs *big.Int
	// ToleranceGradient stops Newton once the marginal profit per borrowed
	// unit is flat to within this ratio.
	ToleranceGradient float64
	MaxIterations     int
	// FallbackIterations bounds the golden-section scan.
	FallbackIterations int
	// MinProfit is the smallest net profit worth reporting as a success.
	MinProfit *big.Int
}

func (c Config) withDefaults() (Config, error) {
	if c.MinLoan == nil || c.MaxLoan == nil || c.MinLoan.Sign() <= 0 || c.MinLoan.Cmp(c.MaxLoan) > 0 {
		return c, ErrInvalidBounds
	}
	if c.ToleranceAbs == nil {
		c.ToleranceAbs = big.NewInt(1)
	}
	if c.ToleranceGradient == 0 {
		c.ToleranceGradient = 1e-6
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.FallbackIterations == 0 {
		c.FallbackIterations = DefaultFallbackIterations
	}
	if c.MinProfit == nil {
		c.MinProfit = new(big.Int)
	}
	return c, nil
}

// IterationPoint is one probe of the profit curve, kept for diagnostics.
type IterationPoint struct {
	Loan       *big.Int
	Profit     *big.Int
	Derivative float64
}

// Result is the sized opportunity. Best is nil when no loan in range turned
// a profit.
type Result struct {
	OptimalLoan  *big.Int
	Best         *profit.Result
	Iterations   int
	Outcome      Outcome
	UsedFallback bool
	Succeeded    bool
	Trace        []IterationPoint
}

type Optimizer struct {
	cfg  Config
	calc *profit.Calculator
}

func New(calc *profit.Calculator, cfg Config) (*Optimizer, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if calc == nil {
		calc = profit.NewCalculator()
	}
	return &Optimizer{cfg: cfg, calc: calc}, nil
}

// FindOptimalLoanSize locates the loan that maximizes net profit for one
// path, bounded by the configured range and by what the lender can actually
// supply. Newton-Raphson runs while the curve is locally concave; anything
// else falls back to golden-section search over the full range.
func (o *Optimizer) FindOptimalLoanSize(
	p pathfinder.Path,
	asset snapshot.BorrowableAsset,
	gas snapshot.GasQuote,
) (*Result, error) {
	if asset.AvailableLiquidity == nil || asset.AvailableLiquidity.Sign() <= 0 {
		return nil, ErrNoCapital
	}
	lo := new(big.Int).Set(o.cfg.MinLoan)
	hi := new(big.Int).Set(o.cfg.MaxLoan)
	if hi.Cmp(asset.AvailableLiquidity) > 0 {
		hi.Set(asset.AvailableLiquidity)
	}
	if lo.Cmp(hi) > 0 {
		return nil, ErrNoCapital
	}

	res := &Result{}
	loan, converged, err := o.newton(res, p, gas, lo, hi)
	if err != nil {
		return nil, err
	}
	if !converged {
		res.UsedFallback = true
		res.Outcome = OutcomeFallback
		loan, err = o.goldenSection(res, p, gas, lo, hi)
		if err != nil {
			return nil, err
		}
	}

	best, err := o.calc.CalculateProfit(p, loan, gas)
	if err != nil {
		return nil, err
	}
	res.OptimalLoan = loan
	res.Best = best
	res.Succeeded = best.NetProfit.Cmp(o.cfg.MinProfit) > 0
	if !res.Succeeded {
		res.Outcome = OutcomeUnprofitable
	}
	return res, nil
}

// BestPath pairs a candidate cycle with its sized result.
type BestPath struct {
	Path   pathfinder.Path
	Result *Result
}

// FindBestPath sizes every candidate and returns the one with the highest
// net profit. Paths that fail simulation or come out unprofitable are
// skipped; ErrNoProfitablePath is returned when none survive.
func (o *Optimizer) FindBestPath(
	paths []pathfinder.Path,
	asset snapshot.BorrowableAsset,
	gas snapshot.GasQuote,
) (*BestPath, error) {
	var best *BestPath
	for _, p := range paths {
		res, err := o.FindOptimalLoanSize(p, asset, gas)
		if err != nil || !res.Succeeded {
			continue
		}
		if best == nil || res.Best.NetProfit.Cmp(best.Result.Best.NetProfit) > 0 {
			best = &BestPath{Path: p, Result: res}
		}
	}
	if best == nil {
		return nil, ErrNoProfitablePath
	}
	return best, nil
}

// newton iterates L <- L - P'(L)/P''(L), clamped to [lo, hi]. It reports
// converged=false when the curvature check fails or the iteration budget
// runs out, leaving the fallback to decide.
func (o *Optimizer) newton(
	res *Result,
	p pathfinder.Path,
	gas snapshot.GasQuote,
	lo, hi *big.Int,
) (*big.Int, bool, error) {
	// Start mid-range; the concave curves this targets are forgiving about
	// the initial guess.
	loan := new(big.Int).Add(lo, hi)
	loan.Rsh(loan, 1)

	for i := 0; i < o.cfg.MaxIterations; i++ {
		res.Iterations++

		d1, err := o.calc.Derivative(p, loan, gas)
		if err != nil {
			return nil, false, err
		}
		d2, err := o.calc.SecondDerivative(p, loan, gas)
		if err != nil {
			return nil, false, err
		}
		o.trace(res, p, gas, loan, d1)

		d1f, _ := d1.Float64()
		if abs(d1f) <= o.cfg.ToleranceGradient {
			res.Outcome = OutcomeConverged
			return loan, true, nil
		}
		if d2.Sign() >= 0 {
			// Not locally concave; a Newton step would walk uphill on
			// the derivative instead of toward the peak.
			return nil, false, nil
		}

		step := new(big.Float).Quo(d1, d2)
		stepInt, _ := step.Int(nil)
		if stepInt.Sign() == 0 {
			res.Outcome = OutcomeConverged
			return loan, true, nil
		}

		next := new(big.Int).Sub(loan, stepInt)
		if next.Cmp(lo) < 0 {
			next.Set(lo)
		} else if next.Cmp(hi) > 0 {
			next.Set(hi)
		}

		delta := new(big.Int).Sub(next, loan)
		loan = next
		if delta.CmpAbs(o.cfg.ToleranceAbs) <= 0 {
			res.Outcome = OutcomeConverged
			return loan, true, nil
		}
	}
	res.Outcome = OutcomeMaxIterations
	return nil, false, nil
}

// invPhi scales golden-section probes without leaving integer arithmetic:
// ratio ~= 0.618034 as a rational.
var (
	invPhiNum = big.NewInt(618_034)
	invPhiDen = big.NewInt(1_000_000)
)

func lerp(lo, hi *big.Int) (a, b *big.Int) {
	span := new(big.Int).Sub(hi, lo)
	step := new(big.Int).Mul(span, invPhiNum)
	step.Div(step, invPhiDen)
	a = new(big.Int).Sub(hi, step)
	b = new(big.Int).Add(lo, step)
	return a, b
}

// goldenSection shrinks [lo, hi] around the best probe. It assumes nothing
// about the curve beyond continuity, so it also handles the flat and
// monotone cases Newton gives up on.
func (o *Optimizer) goldenSection(
	res *Result,
	p pathfinder.Path,
	gas snapshot.GasQuote,
	lo, hi *big.Int,
) (*big.Int, error) {
	lo = new(big.Int).Set(lo)
	hi = new(big.Int).Set(hi)
	a, b := lerp(lo, hi)

	fa, err := o.profitAt(res, p, gas, a)
	if err != nil {
		return nil, err
	}
	fb, err := o.profitAt(res, p, gas, b)
	if err != nil {
		return nil, err
	}

	for i := 0; i < o.cfg.FallbackIterations; i++ {
		if new(big.Int).Sub(hi, lo).CmpAbs(o.cfg.ToleranceAbs) <= 0 {
			break
		}
		res.Iterations++
		if fa.Cmp(fb) > 0 {
			hi.Set(b)
			b.Set(a)
			fb = fa
			a, _ = lerp(lo, hi)
			fa, err = o.profitAt(res, p, gas, a)
		} else {
			lo.Set(a)
			a.Set(b)
			fa = fb
			_, b = lerp(lo, hi)
			fb, err = o.profitAt(res, p, gas, b)
		}
		if err != nil {
			return nil, err
		}
	}

	mid := new(big.Int).Add(lo, hi)
	return mid.Rsh(mid, 1), nil
}

func (o *Optimizer) profitAt(res *Result, p pathfinder.Path, gas snapshot.GasQuote, loan *big.Int) (*big.Int, error) {
	r, err := o.calc.CalculateProfit(p, loan, gas)
	if err != nil {
		return nil, err
	}
	res.Trace = append(res.Trace, IterationPoint{
		Loan:   new(big.Int).Set(loan),
		Profit: r.NetProfit,
	})
	return r.NetProfit, nil
}

func (o *Optimizer) trace(res *Result, p pathfinder.Path, gas snapshot.GasQuote, loan *big.Int, d1 *big.Float) {
	r, err := o.calc.CalculateProfit(p, loan, gas)
	if err != nil {
		return
	}
	d1f, _ := d1.Float64()
	res.Trace = append(res.Trace, IterationPoint{
		Loan:       new(big.Int).Set(loan),
		Profit:     r.NetProfit,
		Derivative: d1f,
	})
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
