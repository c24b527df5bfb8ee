// Package scanner drives one full pass over a chain snapshot: build the
// liquidity graph, enumerate cycles from every borrowable token, size each
// candidate, and rank what survives.
package scanner

import (
	"context"
	"errors"
	"math/big"
	"runtime"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defistate/arb-engine-go/graph"
	"github.com/defistate/arb-engine-go/optimizer"
	"github.com/defistate/arb-engine-go/pathfinder"
	"github.com/defistate/arb-engine-go/profit"
	"github.com/defistate/arb-engine-go/snapshot"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the scanner's dependencies and tuning knobs.
type Config struct {
	Logger   Logger
	Registry prometheus.Registerer

	Graph     graph.BuildConfig
	Finder    pathfinder.Config
	Optimizer optimizer.Config

	// MinPoolLiquidity drops edges below this metric before the search.
	// Nil keeps everything.
	MinPoolLiquidity *big.Int
	// Workers bounds both the search and sizing pools. Zero means
	// GOMAXPROCS.
	Workers int

	// Calculator prices the cycles; nil uses profit.NewCalculator.
	Calculator *profit.Calculator
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

// Opportunity is a sized, profitable cycle. Rank is 1-based by net profit.
type Opportunity struct {
	Path         pathfinder.Path
	Asset        snapshot.BorrowableAsset
	Optimization *optimizer.Result
	Rank         int
}

// Stats summarizes one scan for logging and operator dashboards.
type Stats struct {
	Block             uint64
	Vertices          int
	Edges             int
	CyclesFound       int
	PathsOptimized    int
	OptimizerFailures int
	Profitable        int

	BuildDuration    time.Duration
	SearchDuration   time.Duration
	OptimizeDuration time.Duration
}

type Scanner struct {
	cfg     Config
	logger  Logger
	metrics *Metrics
	calc    *profit.Calculator
}

func New(cfg Config) (*Scanner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	calc := cfg.Calculator
	if calc == nil {
		calc = profit.NewCalculator()
	}
	return &Scanner{
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: NewMetrics(cfg.Registry),
		calc:    calc,
	}, nil
}

func (s *Scanner) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Scan runs the full pipeline against one snapshot. Individual cycles that
// fail to size are dropped and counted; only structural problems (a bad
// snapshot, an unusable search configuration) fail the scan.
func (s *Scanner) Scan(ctx context.Context, snap *snapshot.Snapshot) ([]Opportunity, *Stats, error) {
	if err := snap.Validate(); err != nil {
		return nil, nil, err
	}
	stats := &Stats{Block: snap.Block}

	buildStart := time.Now()
	g := graph.BuildFromSnapshot(snap, s.cfg.Graph)
	if s.cfg.MinPoolLiquidity != nil {
		g = g.FilterByLiquidity(s.cfg.MinPoolLiquidity)
	}
	g = g.RemoveIsolatedVertices()
	stats.BuildDuration = time.Since(buildStart)
	s.observe("build", stats.BuildDuration)

	gstats := g.Statistics()
	stats.Vertices = gstats.Vertices
	stats.Edges = gstats.Edges
	s.logger.Debug("liquidity graph built",
		"block", snap.Block,
		"vertices", gstats.Vertices,
		"edges", gstats.Edges,
		"v2_edges", gstats.V2Edges,
		"v3_edges", gstats.V3Edges,
	)

	finder, err := pathfinder.New(g, s.cfg.Finder)
	if err != nil {
		return nil, nil, err
	}

	assets := make(map[common.Address]snapshot.BorrowableAsset, len(snap.Assets))
	starts := make([]common.Address, 0, len(snap.Assets))
	for _, a := range snap.Assets {
		assets[a.Address] = a
		starts = append(starts, a.Address)
	}

	searchStart := time.Now()
	cycles, err := s.findCycles(ctx, finder, starts)
	if err != nil {
		return nil, nil, err
	}
	stats.SearchDuration = time.Since(searchStart)
	s.observe("search", stats.SearchDuration)
	stats.CyclesFound = len(cycles)
	s.metrics.cyclesFound.Add(float64(len(cycles)))

	optStart := time.Now()
	opps, failures, err := s.sizeCycles(ctx, cycles, assets, snap.Gas)
	if err != nil {
		return nil, nil, err
	}
	stats.OptimizeDuration = time.Since(optStart)
	s.observe("optimize", stats.OptimizeDuration)
	stats.PathsOptimized = len(cycles) - failures
	stats.OptimizerFailures = failures
	stats.Profitable = len(opps)
	s.metrics.pathsOptimized.Add(float64(stats.PathsOptimized))
	s.metrics.optimizerFailures.Add(float64(failures))
	s.metrics.opportunitiesFound.Add(float64(len(opps)))
	s.metrics.lastScanBlock.Set(float64(snap.Block))

	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Optimization.Best.NetProfit.Cmp(opps[j].Optimization.Best.NetProfit) > 0
	})
	for i := range opps {
		opps[i].Rank = i + 1
	}

	s.logger.Info("scan complete",
		"block", snap.Block,
		"cycles", stats.CyclesFound,
		"profitable", stats.Profitable,
		"failures", failures,
		"search_ms", stats.SearchDuration.Milliseconds(),
		"optimize_ms", stats.OptimizeDuration.Milliseconds(),
	)
	return opps, stats, nil
}

// findCycles fans the per-token searches out over the worker pool and
// deduplicates rotations of the same loop in the collector.
func (s *Scanner) findCycles(
	ctx context.Context,
	finder *pathfinder.Finder,
	starts []common.Address,
) ([]pathfinder.Path, error) {
	jobs := make(chan common.Address)
	results := make(chan []pathfinder.Path)

	var wg sync.WaitGroup
	for i := 0; i < s.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for start := range jobs {
				paths, err := finder.FindCycles(start)
				if err != nil {
					// A start token can legitimately be missing: every
					// pool referencing it may have been filtered out.
					s.logger.Debug("cycle search skipped", "token", start, "error", err)
					continue
				}
				select {
				case results <- paths:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, start := range starts {
			select {
			case jobs <- start:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	seen := mapset.NewThreadUnsafeSet[string]()
	var all []pathfinder.Path
	for paths := range results {
		for _, p := range paths {
			if seen.Add(p.Key()) {
				all = append(all, p)
			}
		}
	}
	return all, ctx.Err()
}

// sizeCycles runs the optimizer over every cycle. Per-cycle failures are
// counted and skipped.
func (s *Scanner) sizeCycles(
	ctx context.Context,
	cycles []pathfinder.Path,
	assets map[common.Address]snapshot.BorrowableAsset,
	gas snapshot.GasQuote,
) ([]Opportunity, int, error) {
	opt, err := optimizer.New(s.calc, s.cfg.Optimizer)
	if err != nil {
		return nil, 0, err
	}

	jobs := make(chan pathfinder.Path)
	type sized struct {
		opp Opportunity
		ok  bool
	}
	results := make(chan sized)

	var wg sync.WaitGroup
	for i := 0; i < s.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				out := sized{}
				asset, ok := assets[p.Tokens[0]]
				if !ok {
					s.logger.Debug("cycle starts at a non-borrowable token", "token", p.Tokens[0])
				} else if res, err := opt.FindOptimalLoanSize(p, asset, gas); err != nil {
					s.logger.Debug("loan sizing failed", "token", p.Tokens[0], "hops", p.Hops(), "error", err)
				} else {
					out = sized{opp: Opportunity{Path: p, Asset: asset, Optimization: res}, ok: true}
				}
				select {
				case results <- out:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range cycles {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	var opps []Opportunity
	failures := 0
	for r := range results {
		switch {
		case !r.ok:
			failures++
		case r.opp.Optimization.Succeeded:
			opps = append(opps, r.opp)
		}
	}
	return opps, failures, ctx.Err()
}

func (s *Scanner) observe(phase string, d time.Duration) {
	s.metrics.scanDuration.WithLabelValues(phase).Observe(d.Seconds())
}
