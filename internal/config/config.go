// Package config loads the core's typed configuration via
// github.com/spf13/viper, following the teacher's internal/config package
// shape. It owns the typed shape and the spec's documented defaults, which
// every component needs, and a Load function that reads an optional config
// file and environment overrides through viper on top of those defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FeedConfig holds C1 settings (spec §4.1, §5).
type FeedConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	BackoffSchedule   []time.Duration `mapstructure:"backoff_schedule"`
}

// BookConfig holds C2 settings (spec §4.2).
type BookConfig struct {
	DefaultDepth int `mapstructure:"default_depth"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// VWAPConfig holds C3 settings (spec §4.3).
type VWAPConfig struct {
	MinDepthContracts int64   `mapstructure:"min_depth_contracts"`
	MaxSpreadBps      float64 `mapstructure:"max_spread_bps"`
	MaxChunks         int     `mapstructure:"max_chunks"`
}

// AllocatorConfig holds C4 settings (spec §4.4).
type AllocatorConfig struct {
	FeeRate               float64       `mapstructure:"fee_rate"`
	GasPerTrade           float64       `mapstructure:"gas_per_trade"`
	PositionFractionCap   float64       `mapstructure:"position_fraction_cap"` // alpha
	MinProfitThreshold    float64       `mapstructure:"min_profit_threshold"`
	MaxIterations         int           `mapstructure:"max_iterations"`
	ConvergenceEpsilon    float64       `mapstructure:"convergence_epsilon"`
	SolveBudget           time.Duration `mapstructure:"solve_budget"`
	BregmanTolerance      float64       `mapstructure:"bregman_tolerance"`
}

// ExecutionConfig holds C5 settings (spec §4.5, §5).
type ExecutionConfig struct {
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	HybridFallback        time.Duration `mapstructure:"hybrid_fallback"`
	ExecutionBudget       time.Duration `mapstructure:"execution_budget"`
	RollbackBudget        time.Duration `mapstructure:"rollback_budget"`
	MaxSlippageFraction   float64       `mapstructure:"max_slippage_fraction"`
	MaxRetries            int           `mapstructure:"max_retries"`
	RetryBackoff          []time.Duration `mapstructure:"retry_backoff"`
	MaxGasGwei            float64       `mapstructure:"max_gas_gwei"`
	AggressionTicks       int           `mapstructure:"aggression_ticks"` // SPEC_FULL §4 supplement
	ConsecutiveFailureHalt int          `mapstructure:"consecutive_failure_halt"`
	RollbackAlertThreshold float64      `mapstructure:"rollback_alert_threshold"`
}

// Config is the top-level configuration for the arbitrage core.
type Config struct {
	Feed      FeedConfig      `mapstructure:"feed"`
	Book      BookConfig      `mapstructure:"book"`
	VWAP      VWAPConfig      `mapstructure:"vwap"`
	Allocator AllocatorConfig `mapstructure:"allocator"`
	Execution ExecutionConfig `mapstructure:"execution"`
}

// Default returns the configuration with every spec-documented default
// populated.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			HeartbeatInterval: 10 * time.Second,
			IdleTimeout:       30 * time.Second,
			BackoffSchedule: []time.Duration{
				1 * time.Second, 2 * time.Second, 5 * time.Second,
				10 * time.Second, 30 * time.Second, 60 * time.Second,
			},
		},
		Book: BookConfig{
			DefaultDepth: 20,
			CacheTTL:     5 * time.Second,
		},
		VWAP: VWAPConfig{
			MinDepthContracts: 100,
			MaxSpreadBps:      500,
			MaxChunks:         4,
		},
		Allocator: AllocatorConfig{
			FeeRate:             0.02,
			GasPerTrade:         0,
			PositionFractionCap: 0.20,
			MinProfitThreshold:  1.0,
			MaxIterations:       50,
			ConvergenceEpsilon:  1e-6,
			SolveBudget:         50 * time.Millisecond,
			BregmanTolerance:    1e-6,
		},
		Execution: ExecutionConfig{
			PollInterval:    5 * time.Millisecond,
			HybridFallback:  15 * time.Millisecond,
			ExecutionBudget: 30 * time.Millisecond,
			RollbackBudget:  60 * time.Millisecond,
			MaxSlippageFraction: 0.03,
			MaxRetries:      3,
			RetryBackoff:    []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 200 * time.Millisecond},
			MaxGasGwei:      500,
			AggressionTicks: 0,
			ConsecutiveFailureHalt: 3,
			RollbackAlertThreshold: 0.10,
		},
	}
}

// Load reads configuration from path (if non-empty) layered over the
// documented defaults, using viper for file/env binding.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	bindDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	v.SetEnvPrefix("ARBICORE")
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("feed.heartbeat_interval", cfg.Feed.HeartbeatInterval)
	v.SetDefault("feed.idle_timeout", cfg.Feed.IdleTimeout)
	v.SetDefault("book.default_depth", cfg.Book.DefaultDepth)
	v.SetDefault("book.cache_ttl", cfg.Book.CacheTTL)
	v.SetDefault("vwap.min_depth_contracts", cfg.VWAP.MinDepthContracts)
	v.SetDefault("vwap.max_spread_bps", cfg.VWAP.MaxSpreadBps)
	v.SetDefault("vwap.max_chunks", cfg.VWAP.MaxChunks)
	v.SetDefault("allocator.fee_rate", cfg.Allocator.FeeRate)
	v.SetDefault("allocator.position_fraction_cap", cfg.Allocator.PositionFractionCap)
	v.SetDefault("allocator.min_profit_threshold", cfg.Allocator.MinProfitThreshold)
	v.SetDefault("allocator.max_iterations", cfg.Allocator.MaxIterations)
	v.SetDefault("allocator.solve_budget", cfg.Allocator.SolveBudget)
	v.SetDefault("execution.poll_interval", cfg.Execution.PollInterval)
	v.SetDefault("execution.hybrid_fallback", cfg.Execution.HybridFallback)
	v.SetDefault("execution.execution_budget", cfg.Execution.ExecutionBudget)
	v.SetDefault("execution.rollback_budget", cfg.Execution.RollbackBudget)
	v.SetDefault("execution.max_slippage_fraction", cfg.Execution.MaxSlippageFraction)
	v.SetDefault("execution.max_retries", cfg.Execution.MaxRetries)
	v.SetDefault("execution.max_gas_gwei", cfg.Execution.MaxGasGwei)
	v.SetDefault("execution.consecutive_failure_halt", cfg.Execution.ConsecutiveFailureHalt)
	v.SetDefault("execution.rollback_alert_threshold", cfg.Execution.RollbackAlertThreshold)
}
