// Package pathfinder enumerates simple cycles in the liquidity graph. A
// cycle that starts and ends at a borrowable token is a candidate arbitrage
// route; sizing and profitability are someone else's problem.
package pathfinder

import (
	"errors"
	"math/big"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/arb-engine-go/bitset"
	"github.com/defistate/arb-engine-go/graph"
)

const (
	// MaxSupportedDepth bounds the search regardless of configuration:
	// routes beyond six hops cannot fit a flash-loan transaction's gas
	// budget in practice.
	MaxSupportedDepth = 6

	DefaultMaxPathsPerToken = 10_000
)

var (
	ErrDepthOutOfRange = errors.New("pathfinder: max depth must be between min depth and 6")
	ErrMinDepthTooLow  = errors.New("pathfinder: min depth must be at least 2")
	ErrStartUnknown    = errors.New("pathfinder: start token is not in the graph")
)

type Config struct {
	// MaxDepth is the maximum number of hops per cycle, capped at
	// MaxSupportedDepth.
	MaxDepth int
	// MinDepth is the minimum number of hops, at least 2. A one-hop
	// "cycle" would swap a token for itself.
	MinDepth int
	// MinLiquidity skips edges below this liquidity metric during the
	// walk. Nil disables the check.
	MinLiquidity *big.Int
	// MaxGasEstimate abandons a branch once the summed base gas of its
	// hops exceeds this budget. Zero disables the check.
	MaxGasEstimate uint64
	// MaxPathsPerToken stops the search for a start token after this many
	// cycles. Zero means DefaultMaxPathsPerToken.
	MaxPathsPerToken int
	// EnablePruning toggles the liquidity and gas cuts. Disabling it is
	// only sensible in tests that need exhaustive enumeration.
	EnablePruning bool
}

func (c Config) withDefaults() (Config, error) {
	if c.MinDepth < 2 {
		return c, ErrMinDepthTooLow
	}
	if c.MaxDepth < c.MinDepth || c.MaxDepth > MaxSupportedDepth {
		return c, ErrDepthOutOfRange
	}
	if c.MaxPathsPerToken == 0 {
		c.MaxPathsPerToken = DefaultMaxPathsPerToken
	}
	return c, nil
}

// Path is a closed route: Tokens[0] == Tokens[len-1] and Edges[i] swaps
// Tokens[i] into Tokens[i+1].
type Path struct {
	Edges  []graph.Edge
	Tokens []common.Address
}

// Hops returns the number of swaps in the path.
func (p Path) Hops() int { return len(p.Edges) }

// BaseGas sums the hop gas estimates before tick traversal.
func (p Path) BaseGas() uint64 {
	var total uint64
	for _, e := range p.Edges {
		total += e.BaseGas()
	}
	return total
}

// Key returns a rotation-invariant identity for the cycle. The same loop
// discovered from two different start tokens produces the same key, so a
// set of keys deduplicates across searches.
func (p Path) Key() string {
	n := len(p.Edges)
	if n == 0 {
		return ""
	}
	segs := make([]string, n)
	for i, e := range p.Edges {
		segs[i] = p.Tokens[i].Hex() + ":" + e.PoolAddress().Hex()
	}
	best := 0
	for r := 1; r < n; r++ {
		for i := 0; i < n; i++ {
			cmp := strings.Compare(segs[(r+i)%n], segs[(best+i)%n])
			if cmp != 0 {
				if cmp < 0 {
					best = r
				}
				break
			}
		}
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(segs[(best+i)%n])
	}
	return b.String()
}

type Finder struct {
	cfg   Config
	graph *graph.Graph
}

func New(g *graph.Graph, cfg Config) (*Finder, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Finder{cfg: cfg, graph: g}, nil
}

// FindCycles enumerates simple cycles through start, depth-first. Cycles
// revisit no intermediate token; only the start token appears twice.
func (f *Finder) FindCycles(start common.Address) ([]Path, error) {
	startIdx, ok := f.graph.Index(start)
	if !ok {
		return nil, ErrStartUnknown
	}
	s := &search{
		finder:  f,
		start:   start,
		visited: bitset.New(len(f.graph.Tokens())),
	}
	s.visited.Set(startIdx)
	s.walk(start, 0, 0)
	return s.found, nil
}

// FindAllCycles runs FindCycles from every start token and deduplicates
// rotations of the same loop, keeping the first representative seen. A nil
// starts slice walks every vertex in the graph.
func (f *Finder) FindAllCycles(starts []common.Address) ([]Path, error) {
	if starts == nil {
		starts = f.graph.Tokens()
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	var all []Path
	for _, start := range starts {
		paths, err := f.FindCycles(start)
		if err != nil {
			if errors.Is(err, ErrStartUnknown) {
				continue
			}
			return nil, err
		}
		for _, p := range paths {
			if seen.Add(p.Key()) {
				all = append(all, p)
			}
		}
	}
	return all, nil
}

type search struct {
	finder  *Finder
	start   common.Address
	visited bitset.BitSet
	edges   []graph.Edge
	tokens  []common.Address
	gas     uint64
	found   []Path
}

func (s *search) walk(current common.Address, depth int, gas uint64) {
	cfg := s.finder.cfg
	if len(s.found) >= cfg.MaxPathsPerToken {
		return
	}
	for _, e := range s.finder.graph.OutgoingEdges(current) {
		if cfg.EnablePruning {
			if cfg.MinLiquidity != nil && e.Liquidity().Cmp(cfg.MinLiquidity) < 0 {
				continue
			}
			if cfg.MaxGasEstimate > 0 && gas+e.BaseGas() > cfg.MaxGasEstimate {
				continue
			}
		}
		next := e.TokenOut()
		if next == s.start {
			if depth+1 >= cfg.MinDepth {
				s.record(e)
				if len(s.found) >= cfg.MaxPathsPerToken {
					return
				}
			}
			// The cycle is closed; extending past the start would stop
			// being a simple cycle.
			continue
		}
		if depth+1 >= cfg.MaxDepth {
			continue
		}
		idx, ok := s.finder.graph.Index(next)
		if !ok || s.visited.IsSet(idx) {
			continue
		}
		s.visited.Set(idx)
		s.edges = append(s.edges, e)
		s.walk(next, depth+1, gas+e.BaseGas())
		s.edges = s.edges[:len(s.edges)-1]
		s.visited.Unset(idx)
	}
}

func (s *search) record(closing graph.Edge) {
	n := len(s.edges) + 1
	p := Path{
		Edges:  make([]graph.Edge, 0, n),
		Tokens: make([]common.Address, 0, n+1),
	}
	p.Tokens = append(p.Tokens, s.start)
	for _, e := range s.edges {
		p.Edges = append(p.Edges, e)
		p.Tokens = append(p.Tokens, e.TokenOut())
	}
	p.Edges = append(p.Edges, closing)
	p.Tokens = append(p.Tokens, s.start)
	s.found = append(s.found, p)
}
