package scanner

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defistate/arb-engine-go/optimizer"
	"github.com/defistate/arb-engine-go/pathfinder"
	"github.com/defistate/arb-engine-go/snapshot"
	"github.com/defistate/arb-engine-go/tokens"
)

var (
	usdc = common.HexToAddress("0x1111111111111111111111111111111111111111")
	weth = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// testSnapshot quotes WETH on three venues at 3000, 3060 and 3120 USDC:
// buying on the cheapest and selling on the dearest is the best cycle.
func testSnapshot() *snapshot.Snapshot {
	wethReserve := func() *big.Int {
		return new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
	}
	pair := func(addr byte, usdcReserve int64) snapshot.V2Pair {
		return snapshot.V2Pair{
			Address:  common.BytesToAddress([]byte{addr}),
			Venue:    "venue",
			Token0:   usdc,
			Token1:   weth,
			Reserve0: big.NewInt(usdcReserve),
			Reserve1: wethReserve(),
			FeeBps:   30,
		}
	}
	return &snapshot.Snapshot{
		Block: 19_000_000,
		Tokens: []tokens.Token{
			{Address: usdc, Symbol: "USDC", Decimals: 6},
			{Address: weth, Symbol: "WETH", Decimals: 18},
		},
		Pairs: []snapshot.V2Pair{
			pair(0x01, 3_000_000e6),
			pair(0x02, 3_060_000e6),
			pair(0x03, 3_120_000e6),
		},
		Assets: []snapshot.BorrowableAsset{
			{
				Address:            usdc,
				Symbol:             "USDC",
				Decimals:           6,
				AvailableLiquidity: big.NewInt(2e12),
				FlashFeeBps:        9,
				PriceUsd:           1,
			},
		},
		Gas: snapshot.GasQuote{
			GasPriceWei:    big.NewInt(1e9),
			AssetPerWeiNum: big.NewInt(3000e6),
			AssetPerWeiDen: big.NewInt(1e18),
		},
	}
}

func testScanner(t *testing.T) *Scanner {
	t.Helper()
	s, err := New(Config{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registry: prometheus.NewRegistry(),
		Finder: pathfinder.Config{
			MinDepth: 2,
			MaxDepth: 3,
		},
		Optimizer: optimizer.Config{
			MinLoan:      big.NewInt(1e6),
			MaxLoan:      big.NewInt(1e12),
			ToleranceAbs: big.NewInt(1e6),
		},
		Workers: 2,
	})
	require.NoError(t, err)
	return s
}

func TestScan(t *testing.T) {
	s := testScanner(t)

	opps, stats, err := s.Scan(context.Background(), testSnapshot())
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.Equal(t, uint64(19_000_000), stats.Block)
	assert.Equal(t, 2, stats.Vertices)
	assert.Equal(t, 6, stats.Edges)
	// Three pools, two hops out and back: nine ordered pool pairs.
	assert.Equal(t, 9, stats.CyclesFound)
	assert.Equal(t, len(opps), stats.Profitable)

	// The three "buy cheaper, sell dearer" combinations win; same-pool
	// round trips and backwards routes only lose money.
	require.Len(t, opps, 3)
	for i, opp := range opps {
		assert.Equal(t, i+1, opp.Rank)
		assert.Equal(t, "USDC", opp.Asset.Symbol)
		assert.True(t, opp.Optimization.Succeeded)
		assert.Positive(t, opp.Optimization.Best.NetProfit.Sign())
		if i > 0 {
			assert.True(t, opps[i-1].Optimization.Best.NetProfit.Cmp(opp.Optimization.Best.NetProfit) >= 0,
				"opportunities must be sorted by net profit")
		}
	}

	// The widest spread is the top hit: out through the 3000 pool, back
	// through the 3120 pool.
	best := opps[0]
	require.Equal(t, 2, best.Path.Hops())
	assert.Equal(t, common.BytesToAddress([]byte{0x01}), best.Path.Edges[0].PoolAddress())
	assert.Equal(t, common.BytesToAddress([]byte{0x03}), best.Path.Edges[1].PoolAddress())
}

func TestScan_NoSpreadNoOpportunities(t *testing.T) {
	s := testScanner(t)

	snap := testSnapshot()
	for i := range snap.Pairs {
		snap.Pairs[i].Reserve0 = big.NewInt(3_000_000e6)
	}

	opps, stats, err := s.Scan(context.Background(), snap)
	require.NoError(t, err)
	assert.Empty(t, opps)
	assert.Equal(t, 9, stats.CyclesFound)
	assert.Zero(t, stats.Profitable)
}

func TestScan_LiquidityFilterPrunesEverything(t *testing.T) {
	s := testScanner(t)
	s.cfg.MinPoolLiquidity = new(big.Int).Mul(big.NewInt(1e10), big.NewInt(1e10))

	opps, stats, err := s.Scan(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Empty(t, opps)
	assert.Zero(t, stats.CyclesFound)
	assert.Zero(t, stats.Vertices)
}

func TestScan_CancelledContext(t *testing.T) {
	s := testScanner(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := s.Scan(ctx, testSnapshot())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_InvalidSnapshot(t *testing.T) {
	s := testScanner(t)

	snap := testSnapshot()
	snap.Gas.GasPriceWei = nil
	_, _, err := s.Scan(context.Background(), snap)
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Registry: prometheus.NewRegistry()})
	assert.Error(t, err)

	_, err = New(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.Error(t, err)
}
