// Package graph builds the directed liquidity multigraph the path finder
// walks: tokens are vertices, each pool contributes one edge per swap
// direction. The graph is assembled once per snapshot and treated as
// immutable afterwards.
package graph

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	uniswapv2 "github.com/defistate/arb-engine-go/protocols/uniswapv2"
	uniswapv3 "github.com/defistate/arb-engine-go/protocols/uniswapv3"
	"github.com/defistate/arb-engine-go/snapshot"
	"github.com/defistate/arb-engine-go/tokens"
)

var (
	ErrNonPositiveLiquidity = errors.New("graph: edge has non-positive liquidity")
	ErrSelfLoop             = errors.New("graph: edge connects a token to itself")
)

// BuildConfig tunes graph construction. The zero value is usable; gas
// figures default to the package constants.
type BuildConfig struct {
	V2SwapGas      uint64
	V3SwapGas      uint64
	V3TickCrossGas uint64
	// SkipFeeOnTransfer drops tokens that tax transfers; simulated swap
	// outputs overstate what such tokens actually deliver.
	SkipFeeOnTransfer bool
}

func (c BuildConfig) withDefaults() BuildConfig {
	if c.V2SwapGas == 0 {
		c.V2SwapGas = DefaultV2SwapGas
	}
	if c.V3SwapGas == 0 {
		c.V3SwapGas = DefaultV3SwapGas
	}
	if c.V3TickCrossGas == 0 {
		c.V3TickCrossGas = DefaultV3TickCrossGas
	}
	return c
}

// Statistics summarizes a graph for logging and metrics.
type Statistics struct {
	Vertices int
	Edges    int
	V2Edges  int
	V3Edges  int
}

// Graph is a directed multigraph over tokens. Vertices carry a dense index
// assigned at insertion so visited sets can be bitsets rather than maps.
type Graph struct {
	tokens  map[common.Address]tokens.Token
	index   map[common.Address]int
	ordered []common.Address
	out     map[common.Address][]Edge
	edgeIDs map[edgeID]struct{}
	stats   Statistics
}

// edgeID identifies a directed edge: one pool, one direction.
type edgeID struct {
	pool common.Address
	in   common.Address
}

func New() *Graph {
	return &Graph{
		tokens:  make(map[common.Address]tokens.Token),
		index:   make(map[common.Address]int),
		out:     make(map[common.Address][]Edge),
		edgeIDs: make(map[edgeID]struct{}),
	}
}

// AddToken registers a vertex. Re-adding an address refreshes its metadata
// but keeps the dense index stable.
func (g *Graph) AddToken(t tokens.Token) {
	if _, ok := g.index[t.Address]; !ok {
		g.index[t.Address] = len(g.ordered)
		g.ordered = append(g.ordered, t.Address)
		g.stats.Vertices++
	}
	g.tokens[t.Address] = t
}

// AddEdge inserts a directed edge, idempotent on (pool, direction):
// re-adding an edge that is already present is a no-op. Endpoints missing
// from the vertex set are added with empty metadata. Edges with non-positive
// liquidity or identical endpoints are rejected.
func (g *Graph) AddEdge(e Edge) error {
	if e.TokenIn() == e.TokenOut() {
		return ErrSelfLoop
	}
	liq := e.Liquidity()
	if liq == nil || liq.Sign() <= 0 {
		return ErrNonPositiveLiquidity
	}
	id := edgeID{pool: e.PoolAddress(), in: e.TokenIn()}
	if _, ok := g.edgeIDs[id]; ok {
		return nil
	}
	g.edgeIDs[id] = struct{}{}
	g.ensureVertex(e.TokenIn())
	g.ensureVertex(e.TokenOut())
	g.out[e.TokenIn()] = append(g.out[e.TokenIn()], e)
	g.stats.Edges++
	switch e.(type) {
	case *V2Edge:
		g.stats.V2Edges++
	case *V3Edge:
		g.stats.V3Edges++
	}
	return nil
}

func (g *Graph) ensureVertex(addr common.Address) {
	if _, ok := g.index[addr]; ok {
		return
	}
	g.index[addr] = len(g.ordered)
	g.ordered = append(g.ordered, addr)
	g.tokens[addr] = tokens.Token{Address: addr}
	g.stats.Vertices++
}

// OutgoingEdges returns the edges leaving token. The slice is owned by the
// graph; callers must not mutate it.
func (g *Graph) OutgoingEdges(token common.Address) []Edge {
	return g.out[token]
}

// Token returns vertex metadata.
func (g *Graph) Token(addr common.Address) (tokens.Token, bool) {
	t, ok := g.tokens[addr]
	return t, ok
}

// Index returns the dense vertex index for addr, assigned in insertion order.
func (g *Graph) Index(addr common.Address) (int, bool) {
	i, ok := g.index[addr]
	return i, ok
}

// Tokens returns the vertex addresses in dense-index order.
func (g *Graph) Tokens() []common.Address {
	return g.ordered
}

func (g *Graph) Statistics() Statistics {
	return g.stats
}

// FilterByLiquidity returns a new graph containing only edges whose
// liquidity metric is at least min. Vertex indices are reassigned.
func (g *Graph) FilterByLiquidity(min *big.Int) *Graph {
	filtered := New()
	for _, addr := range g.ordered {
		filtered.AddToken(g.tokens[addr])
	}
	for _, addr := range g.ordered {
		for _, e := range g.out[addr] {
			if e.Liquidity().Cmp(min) >= 0 {
				_ = filtered.AddEdge(e)
			}
		}
	}
	return filtered
}

// RemoveIsolatedVertices returns a new graph without vertices that have
// neither incoming nor outgoing edges. Dense indices are compacted.
func (g *Graph) RemoveIsolatedVertices() *Graph {
	connected := make(map[common.Address]bool, len(g.index))
	for _, addr := range g.ordered {
		for _, e := range g.out[addr] {
			connected[e.TokenIn()] = true
			connected[e.TokenOut()] = true
		}
	}
	pruned := New()
	for _, addr := range g.ordered {
		if connected[addr] {
			pruned.AddToken(g.tokens[addr])
		}
	}
	for _, addr := range g.ordered {
		for _, e := range g.out[addr] {
			_ = pruned.AddEdge(e)
		}
	}
	return pruned
}

// BuildFromSnapshot assembles the graph for one chain snapshot. Every
// well-formed pool contributes two directed edges; malformed pools (nil or
// non-positive reserves, zero liquidity with no tick data) are skipped
// rather than failing the build.
func BuildFromSnapshot(snap *snapshot.Snapshot, cfg BuildConfig) *Graph {
	cfg = cfg.withDefaults()
	g := New()

	skip := make(map[common.Address]bool)
	for _, t := range snap.Tokens {
		if cfg.SkipFeeOnTransfer && t.FeeOnTransferPercent > 0 {
			skip[t.Address] = true
			continue
		}
		g.AddToken(t)
	}

	for _, p := range snap.Pairs {
		if skip[p.Token0] || skip[p.Token1] {
			continue
		}
		if p.Reserve0 == nil || p.Reserve1 == nil || p.Reserve0.Sign() <= 0 || p.Reserve1.Sign() <= 0 {
			continue
		}
		pool := uniswapv2.Pool{
			Address:  p.Address,
			Venue:    p.Venue,
			Token0:   p.Token0,
			Token1:   p.Token1,
			Reserve0: p.Reserve0,
			Reserve1: p.Reserve1,
			FeeBps:   p.FeeBps,
		}
		_ = g.AddEdge(&V2Edge{Pool: pool, In: p.Token0, Out: p.Token1, Gas: cfg.V2SwapGas})
		_ = g.AddEdge(&V2Edge{Pool: pool, In: p.Token1, Out: p.Token0, Gas: cfg.V2SwapGas})
	}

	for i := range snap.Pools {
		p := &snap.Pools[i]
		if skip[p.Token0] || skip[p.Token1] {
			continue
		}
		pool := convertV3Pool(p)
		if pool == nil {
			continue
		}
		_ = g.AddEdge(&V3Edge{Pool: pool, In: p.Token0, Out: p.Token1, Gas: cfg.V3SwapGas, GasPerTick: cfg.V3TickCrossGas})
		_ = g.AddEdge(&V3Edge{Pool: pool, In: p.Token1, Out: p.Token0, Gas: cfg.V3SwapGas, GasPerTick: cfg.V3TickCrossGas})
	}

	return g
}

// convertV3Pool turns a sparse snapshot tick map into the sorted tick slice
// the calculator traverses. Uninitialized entries and zero-net ticks are
// dropped. Returns nil for pools the simulator cannot price.
func convertV3Pool(p *snapshot.V3Pool) *uniswapv3.Pool {
	if p.SqrtPriceX96 == nil || p.SqrtPriceX96.Sign() <= 0 || p.Liquidity == nil || p.Liquidity.Sign() <= 0 {
		return nil
	}
	pool := &uniswapv3.Pool{
		Address:      p.Address,
		Venue:        p.Venue,
		Token0:       p.Token0,
		Token1:       p.Token1,
		FeePips:      p.FeePips,
		TickSpacing:  p.TickSpacing,
		Tick:         p.Tick,
		SqrtPriceX96: p.SqrtPriceX96,
		Liquidity:    p.Liquidity,
	}
	for idx, t := range p.Ticks {
		if !t.Initialized || t.LiquidityNet == nil || t.LiquidityNet.Sign() == 0 {
			continue
		}
		pool.Ticks = append(pool.Ticks, uniswapv3.TickInfo{Index: idx, LiquidityNet: t.LiquidityNet})
	}
	pool.SortTicks()
	return pool
}
