package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/defistate/arb-engine-go/config"
	"github.com/defistate/arb-engine-go/graph"
	"github.com/defistate/arb-engine-go/optimizer"
	"github.com/defistate/arb-engine-go/pathfinder"
	"github.com/defistate/arb-engine-go/profit"
	"github.com/defistate/arb-engine-go/scanner"
	"github.com/defistate/arb-engine-go/snapshot"
	"github.com/defistate/arb-engine-go/streams/snapshots"
)

const DefaultSnapshotBufferSize = 16

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	rootLogHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})
	rootLogger := slog.New(rootLogHandler)
	close := func() {
		os.Exit(1)
	}

	prometheusRegistry := prometheus.DefaultRegisterer

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	calc := profit.NewCalculator()
	if cfg.Profit.FlashFeeBps != 0 {
		calc.FlashFeeBps = cfg.Profit.FlashFeeBps
	}
	if cfg.Profit.MinDerivativeStep.Int != nil {
		calc.MinDerivativeStep = cfg.Profit.MinDerivativeStep.Int
	}

	scan, err := scanner.New(scanner.Config{
		Logger:   rootLogger.With("component", "scanner"),
		Registry: prometheusRegistry,
		Graph: graph.BuildConfig{
			SkipFeeOnTransfer: cfg.Scanner.SkipFeeOnTransfer,
		},
		Finder: pathfinder.Config{
			MinDepth:         cfg.Pathfinder.MinDepth,
			MaxDepth:         cfg.Pathfinder.MaxDepth,
			MinLiquidity:     cfg.Pathfinder.MinLiquidity.Int,
			MaxGasEstimate:   cfg.Pathfinder.MaxGasEstimate,
			MaxPathsPerToken: cfg.Pathfinder.MaxPathsPerToken,
			EnablePruning:    cfg.Pathfinder.EnablePruning,
		},
		Optimizer: optimizer.Config{
			MinLoan:            cfg.Optimizer.MinLoan.Int,
			MaxLoan:            cfg.Optimizer.MaxLoan.Int,
			ToleranceAbs:       cfg.Optimizer.ToleranceAbs.Int,
			ToleranceGradient:  cfg.Optimizer.ToleranceGradient,
			MaxIterations:      cfg.Optimizer.MaxIterations,
			FallbackIterations: cfg.Optimizer.FallbackIterations,
			MinProfit:          cfg.Optimizer.MinProfit.Int,
		},
		MinPoolLiquidity: cfg.Scanner.MinPoolLiquidity.Int,
		Workers:          cfg.Scanner.Workers,
		Calculator:       calc,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize scanner", "error", err)
		close()
	}

	if cfg.MetricsListenAddr != "" {
		go serveMetrics(rootLogger, cfg.MetricsListenAddr)
	}

	if cfg.SnapshotFile != "" {
		if err := scanFile(ctx, rootLogger, scan, cfg.SnapshotFile); err != nil {
			rootLogger.Error("Scan failed", "file", cfg.SnapshotFile, "error", err)
			close()
		}
		return
	}

	client, err := snapshots.NewClient(ctx, snapshots.Config{
		URL:        cfg.SnapshotStreamURL,
		Logger:     rootLogger.With("component", "snapshot-client"),
		BufferSize: DefaultSnapshotBufferSize,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize snapshot client", "error", err)
		close()
	}

	for {
		select {
		case snap := <-client.Snapshots():
			opps, stats, err := scan.Scan(ctx, snap)
			if err != nil {
				rootLogger.Error("Scan failed", "block", snap.Block, "error", err)
				continue
			}
			reportOpportunities(rootLogger, opps, stats)
		case err := <-client.Err():
			rootLogger.Error("Fatal client error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}

// scanFile runs a single scan against a snapshot stored on disk, for
// backtesting and offline inspection.
func scanFile(ctx context.Context, logger *slog.Logger, scan *scanner.Scanner, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	opps, stats, err := scan.Scan(ctx, &snap)
	if err != nil {
		return err
	}
	reportOpportunities(logger, opps, stats)
	return nil
}

func reportOpportunities(logger *slog.Logger, opps []scanner.Opportunity, stats *scanner.Stats) {
	for _, opp := range opps {
		logger.Info("opportunity",
			"rank", opp.Rank,
			"asset", opp.Asset.Symbol,
			"hops", opp.Path.Hops(),
			"loan", opp.Optimization.OptimalLoan.String(),
			"net_profit", opp.Optimization.Best.NetProfit.String(),
			"gas_units", opp.Optimization.Best.GasUnits,
			"used_fallback", opp.Optimization.UsedFallback,
		)
	}
	logger.Info("scan summary",
		"block", stats.Block,
		"vertices", stats.Vertices,
		"edges", stats.Edges,
		"cycles", stats.CyclesFound,
		"profitable", stats.Profitable,
		"optimizer_failures", stats.OptimizerFailures,
	)
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server stopped", "error", err)
	}
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
