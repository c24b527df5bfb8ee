// Package config loads the scanner configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"
)

// BigInt wraps big.Int so amounts can be written as decimal strings in YAML,
// where token quantities routinely exceed int64.
type BigInt struct {
	*big.Int
}

func (b *BigInt) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		b.Int = nil
		return nil
	}
	parsed, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("config: %q is not a decimal integer", raw)
	}
	b.Int = parsed
	return nil
}

type PathfinderConfig struct {
	MinDepth         int    `yaml:"minDepth"`
	MaxDepth         int    `yaml:"maxDepth"`
	MinLiquidity     BigInt `yaml:"minLiquidity"`
	MaxGasEstimate   uint64 `yaml:"maxGasEstimate"`
	MaxPathsPerToken int    `yaml:"maxPathsPerToken"`
	EnablePruning    bool   `yaml:"enablePruning"`
}

type OptimizerConfig struct {
	MinLoan            BigInt  `yaml:"minLoan"`
	MaxLoan            BigInt  `yaml:"maxLoan"`
	ToleranceAbs       BigInt  `yaml:"toleranceAbs"`
	ToleranceGradient  float64 `yaml:"toleranceGradient"`
	MaxIterations      int     `yaml:"maxIterations"`
	FallbackIterations int     `yaml:"fallbackIterations"`
	MinProfit          BigInt  `yaml:"minProfit"`
}

type ProfitConfig struct {
	FlashFeeBps       uint64 `yaml:"flashFeeBps"`
	MinDerivativeStep BigInt `yaml:"minDerivativeStep"`
}

type ScannerConfig struct {
	Workers           int    `yaml:"workers"`
	MinPoolLiquidity  BigInt `yaml:"minPoolLiquidity"`
	SkipFeeOnTransfer bool   `yaml:"skipFeeOnTransfer"`
}

// Config is the root configuration for the arbscan binary. Exactly one of
// SnapshotStreamURL and SnapshotFile selects the input mode.
type Config struct {
	SnapshotStreamURL string `yaml:"snapshotStreamUrl"`
	SnapshotFile      string `yaml:"snapshotFile"`
	MetricsListenAddr string `yaml:"metricsListenAddr"`
	LogLevel          string `yaml:"logLevel"`

	Scanner    ScannerConfig    `yaml:"scanner"`
	Pathfinder PathfinderConfig `yaml:"pathfinder"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Profit     ProfitConfig     `yaml:"profit"`
}

func (c *Config) validate() error {
	if c.SnapshotStreamURL == "" && c.SnapshotFile == "" {
		return errors.New("config: one of snapshotStreamUrl or snapshotFile is required")
	}
	if c.SnapshotStreamURL != "" && c.SnapshotFile != "" {
		return errors.New("config: snapshotStreamUrl and snapshotFile are mutually exclusive")
	}
	if c.Pathfinder.MinDepth == 0 {
		c.Pathfinder.MinDepth = 2
	}
	if c.Pathfinder.MaxDepth == 0 {
		c.Pathfinder.MaxDepth = 3
	}
	if c.Optimizer.MinLoan.Int == nil || c.Optimizer.MaxLoan.Int == nil {
		return errors.New("config: optimizer minLoan and maxLoan are required")
	}
	return nil
}

// LoadConfig reads, parses, and validates the file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
