// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	Book        BookConfig        `mapstructure:"book"`
	Halt        HaltConfig        `mapstructure:"halt"`
	MarketMaker MarketMakerConfig `mapstructure:"market_maker"`
	Arbitrage   ArbitrageConfig   `mapstructure:"arbitrage"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// SimulationConfig controls the driver loop.
type SimulationConfig struct {
	Ticks          int           `mapstructure:"ticks"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	Start          string        `mapstructure:"start"` // RFC3339, simulated session start
	ReplayRate     float64       `mapstructure:"replay_rate"` // ticks per wall second in TUI mode, 0 = unpaced
	TUIMode        bool          `mapstructure:"-"`           // set at runtime, not from config file
	ResultsPath    string        `mapstructure:"results_path"`
}

// StartTime parses the configured session start.
func (c *SimulationConfig) StartTime() time.Time {
	t, err := time.Parse(time.RFC3339, c.Start)
	if err != nil {
		return time.Date(2015, 8, 24, 9, 30, 0, 0, time.UTC)
	}
	return t
}

// BookConfig describes the simulated order book.
type BookConfig struct {
	Symbol          string  `mapstructure:"symbol"`
	FairValue       float64 `mapstructure:"fair_value"`
	NormalSpreadBps float64 `mapstructure:"normal_spread_bps"`
	DepthLevels     int     `mapstructure:"depth_levels"`
	LevelSize       int64   `mapstructure:"level_size"`
	TickSize        float64 `mapstructure:"tick_size"`
	FloorPrice      float64 `mapstructure:"floor_price"` // cascade sentinel for an empty book
	GapThresholdPct float64 `mapstructure:"gap_threshold_pct"`
}

// FairValueDecimal returns the initial fair value as decimal.
func (c *BookConfig) FairValueDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.FairValue)
}

// TickSizeDecimal returns the tick size as decimal.
func (c *BookConfig) TickSizeDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TickSize)
}

// FloorPriceDecimal returns the sentinel floor price as decimal.
func (c *BookConfig) FloorPriceDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.FloorPrice)
}

// HaltConfig carries the regulatory halt parameters.
type HaltConfig struct {
	Tier         int           `mapstructure:"tier"`      // 1 = S&P 500/Russell 1000 ETPs, 2 = other NMS
	Leverage     float64       `mapstructure:"leverage"`  // band multiplier for leveraged ETPs
	CureWindow   time.Duration `mapstructure:"cure_window"`
	HaltDuration time.Duration `mapstructure:"halt_duration"`
}

// MarketMakerConfig parameterises the quoting engine.
type MarketMakerConfig struct {
	InitialCapital         float64 `mapstructure:"initial_capital"`
	MaxInventory           int64   `mapstructure:"max_inventory"`
	BaseSpreadBps          float64 `mapstructure:"base_spread_bps"`
	WithdrawalThresholdBps float64 `mapstructure:"withdrawal_threshold_bps"`
	VolReference           float64 `mapstructure:"vol_reference"`       // vol at which the premium doubles
	PartialHedgeMultiplier float64 `mapstructure:"partial_multiplier"`  // premium scale when partially hedged
	NoHedgeMultiplier      float64 `mapstructure:"no_hedge_multiplier"` // premium scale when unhedged
	SkewBpsPerInventory    float64 `mapstructure:"skew_bps"`            // bps of skew at full inventory
	QuoteSize              int64   `mapstructure:"quote_size"`
}

// ArbitrageConfig parameterises the opportunity evaluator.
type ArbitrageConfig struct {
	HedgeableThreshold float64       `mapstructure:"hedgeable_threshold"` // minimum basket coverage, in (0,1)
	TransactionCostBps float64       `mapstructure:"transaction_cost_bps"`
	CreationUnitSize   int64         `mapstructure:"creation_unit_size"`
	ShockPct           float64       `mapstructure:"shock_pct"` // adverse move on the unhedged remainder
	MinProfitFraction  float64       `mapstructure:"min_profit_fraction"`
	StaleReferenceAge  time.Duration `mapstructure:"stale_reference_age"`
	AvailableCapital   float64       `mapstructure:"available_capital"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	MetricsPort    int    `mapstructure:"metrics_port"`
	TraceProvider  string `mapstructure:"trace_provider"` // "console" or "empty"
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ETFSIM")
	v.AutomaticEnv()
	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "ETFSIM_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ETFSIM_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ETFSIM_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("simulation.ticks", "ETFSIM_TICKS")

	v.BindEnv("book.symbol", "ETFSIM_SYMBOL")
	v.BindEnv("book.fair_value", "ETFSIM_FAIR_VALUE")

	v.BindEnv("halt.cure_window", "ETFSIM_CURE_WINDOW")
	v.BindEnv("halt.halt_duration", "ETFSIM_HALT_DURATION")

	v.BindEnv("telemetry.metrics_enabled", "ETFSIM_METRICS_ENABLED")
	v.BindEnv("telemetry.metrics_port", "ETFSIM_METRICS_PORT")
	v.BindEnv("telemetry.trace_provider", "ETFSIM_TRACE_PROVIDER")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "etfsim")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("simulation.ticks", 390)
	v.SetDefault("simulation.tick_interval", "1m")
	v.SetDefault("simulation.start", "2015-08-24T09:30:00Z")
	v.SetDefault("simulation.replay_rate", 4.0)
	v.SetDefault("simulation.results_path", "")

	v.SetDefault("book.symbol", "RSP")
	v.SetDefault("book.fair_value", 76.80)
	v.SetDefault("book.normal_spread_bps", 2.0)
	v.SetDefault("book.depth_levels", 50)
	v.SetDefault("book.level_size", 10000)
	v.SetDefault("book.tick_size", 0.01)
	v.SetDefault("book.floor_price", 0.01)
	v.SetDefault("book.gap_threshold_pct", 2.0)

	// LULD parameters per SEC Release 34-67091: 5%/10% bands by tier,
	// 15-second limit state, 5-minute halts.
	v.SetDefault("halt.tier", 1)
	v.SetDefault("halt.leverage", 1.0)
	v.SetDefault("halt.cure_window", "15s")
	v.SetDefault("halt.halt_duration", "5m")

	v.SetDefault("market_maker.initial_capital", 10_000_000.0)
	v.SetDefault("market_maker.max_inventory", 100_000)
	v.SetDefault("market_maker.base_spread_bps", 2.0)
	v.SetDefault("market_maker.withdrawal_threshold_bps", 100.0)
	v.SetDefault("market_maker.vol_reference", 0.20)
	v.SetDefault("market_maker.partial_multiplier", 10.0)
	v.SetDefault("market_maker.no_hedge_multiplier", 100.0)
	v.SetDefault("market_maker.skew_bps", 50.0)
	v.SetDefault("market_maker.quote_size", 10000)

	v.SetDefault("arbitrage.hedgeable_threshold", 0.8)
	v.SetDefault("arbitrage.transaction_cost_bps", 25.0)
	v.SetDefault("arbitrage.creation_unit_size", 50_000)
	v.SetDefault("arbitrage.shock_pct", 0.05)
	v.SetDefault("arbitrage.min_profit_fraction", 0.001)
	v.SetDefault("arbitrage.stale_reference_age", "5m")
	v.SetDefault("arbitrage.available_capital", 50_000_000.0)

	v.SetDefault("telemetry.metrics_enabled", false)
	v.SetDefault("telemetry.metrics_port", 9090)
	v.SetDefault("telemetry.trace_provider", "empty")
}

// Validate rejects malformed configuration before any tick runs.
func (c *Config) Validate() error {
	if c.Simulation.Ticks <= 0 {
		return fmt.Errorf("simulation.ticks must be positive, got %d", c.Simulation.Ticks)
	}
	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("simulation.tick_interval must be positive, got %s", c.Simulation.TickInterval)
	}
	if c.Book.FairValue <= 0 {
		return fmt.Errorf("book.fair_value must be positive, got %v", c.Book.FairValue)
	}
	if c.Book.NormalSpreadBps <= 0 {
		return fmt.Errorf("book.normal_spread_bps must be positive, got %v", c.Book.NormalSpreadBps)
	}
	if c.Book.TickSize <= 0 {
		return fmt.Errorf("book.tick_size must be positive, got %v", c.Book.TickSize)
	}
	if c.Book.FloorPrice <= 0 {
		return fmt.Errorf("book.floor_price must be positive, got %v", c.Book.FloorPrice)
	}
	if c.Book.DepthLevels <= 0 || c.Book.LevelSize <= 0 {
		return fmt.Errorf("book depth_levels and level_size must be positive")
	}
	if c.Halt.Tier != 1 && c.Halt.Tier != 2 {
		return fmt.Errorf("halt.tier must be 1 or 2, got %d", c.Halt.Tier)
	}
	if c.Halt.Leverage < 1.0 {
		return fmt.Errorf("halt.leverage must be >= 1.0, got %v", c.Halt.Leverage)
	}
	if c.Halt.CureWindow <= 0 {
		return fmt.Errorf("halt.cure_window must be positive, got %s", c.Halt.CureWindow)
	}
	if c.Halt.HaltDuration <= 0 {
		return fmt.Errorf("halt.halt_duration must be positive, got %s", c.Halt.HaltDuration)
	}
	if c.MarketMaker.InitialCapital <= 0 {
		return fmt.Errorf("market_maker.initial_capital must be positive, got %v", c.MarketMaker.InitialCapital)
	}
	if c.MarketMaker.MaxInventory <= 0 {
		return fmt.Errorf("market_maker.max_inventory must be positive, got %d", c.MarketMaker.MaxInventory)
	}
	if c.MarketMaker.BaseSpreadBps <= 0 {
		return fmt.Errorf("market_maker.base_spread_bps must be positive, got %v", c.MarketMaker.BaseSpreadBps)
	}
	if c.MarketMaker.WithdrawalThresholdBps <= 0 {
		return fmt.Errorf("market_maker.withdrawal_threshold_bps must be positive, got %v", c.MarketMaker.WithdrawalThresholdBps)
	}
	if t := c.Arbitrage.HedgeableThreshold; t <= 0 || t >= 1 {
		return fmt.Errorf("arbitrage.hedgeable_threshold must be in (0,1), got %v", t)
	}
	if c.Arbitrage.TransactionCostBps < 0 {
		return fmt.Errorf("arbitrage.transaction_cost_bps must be non-negative, got %v", c.Arbitrage.TransactionCostBps)
	}
	if c.Arbitrage.CreationUnitSize <= 0 {
		return fmt.Errorf("arbitrage.creation_unit_size must be positive, got %d", c.Arbitrage.CreationUnitSize)
	}
	if c.Arbitrage.ShockPct < 0 || c.Arbitrage.ShockPct >= 1 {
		return fmt.Errorf("arbitrage.shock_pct must be in [0,1), got %v", c.Arbitrage.ShockPct)
	}
	if c.Arbitrage.StaleReferenceAge <= 0 {
		return fmt.Errorf("arbitrage.stale_reference_age must be positive, got %s", c.Arbitrage.StaleReferenceAge)
	}
	return nil
}
