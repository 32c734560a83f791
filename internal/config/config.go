package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/usecase"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "config/config.yaml"
	EnvPath     = "GATE_CONFIG"
)

type Config struct {
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Feed struct {
		URL string `yaml:"url"`
	} `yaml:"feed"`
	Cycle struct {
		IntervalMs int `yaml:"interval_ms"`
	} `yaml:"cycle"`
	Signals struct {
		MinConfidence float64 `yaml:"min_confidence"`
	} `yaml:"signals"`
	Confluence struct {
		MinSignals       int     `yaml:"min_signals"`
		TimeDecayFactor  float64 `yaml:"time_decay_factor"`
		ConsistencyBonus float64 `yaml:"consistency_bonus"`
	} `yaml:"confluence"`
	RiskLimits RiskLimits `yaml:"risk_limits"`
	Paper      struct {
		StartingCapital float64 `yaml:"starting_capital"`
		Mode            string  `yaml:"mode"`
	} `yaml:"paper"`
}

// RiskLimits is the YAML shape of domain.RiskLimitsConfig; all values except
// MaxPositions are fractions.
type RiskLimits struct {
	MaxDrawdown          float64 `yaml:"max_drawdown"`
	DailyLossLimit       float64 `yaml:"daily_loss_limit"`
	WeeklyLossLimit      float64 `yaml:"weekly_loss_limit"`
	MaxPositionSize      float64 `yaml:"max_position_size"`
	MaxRiskPerTrade      float64 `yaml:"max_risk_per_trade"`
	MaxPositions         int     `yaml:"max_positions"`
	MaxPortfolioExposure float64 `yaml:"max_portfolio_exposure"`
}

func Default() *Config {
	var cfg Config
	cfg.Logging.Level = "info"
	cfg.Server.Port = 8080
	cfg.Storage.Path = "gate.db"
	cfg.Cycle.IntervalMs = 5000
	cfg.Signals.MinConfidence = 0.5
	cfg.Confluence.MinSignals = usecase.DefaultMinSignals
	cfg.Confluence.TimeDecayFactor = usecase.DefaultTimeDecayFactor
	cfg.Confluence.ConsistencyBonus = usecase.DefaultConsistencyBonus
	cfg.RiskLimits = RiskLimits{
		MaxDrawdown:          0.20,
		DailyLossLimit:       0.05,
		WeeklyLossLimit:      0.10,
		MaxPositionSize:      0.10,
		MaxRiskPerTrade:      0.02,
		MaxPositions:         5,
		MaxPortfolioExposure: 0.60,
	}
	cfg.Paper.StartingCapital = 10000
	cfg.Paper.Mode = string(domain.ModePaper)
	return &cfg
}

// ResolvePath picks the config file: explicit flag, then GATE_CONFIG (which
// may come from a .env file), then the default.
func ResolvePath(flagPath string) string {
	_ = godotenv.Load() // .env is optional
	if flagPath != "" {
		return flagPath
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load overlays the YAML file on the defaults and applies GATE_* environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GATE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GATE_FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("GATE_DB_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v, err := strconv.Atoi(os.Getenv("GATE_PORT")); err == nil && v > 0 {
		c.Server.Port = v
	}
}

// Validate rejects settings the core would otherwise take at face value.
func (c *Config) Validate() error {
	var errs []error
	r := c.RiskLimits
	for name, v := range map[string]float64{
		"max_drawdown":           r.MaxDrawdown,
		"daily_loss_limit":       r.DailyLossLimit,
		"weekly_loss_limit":      r.WeeklyLossLimit,
		"max_position_size":      r.MaxPositionSize,
		"max_risk_per_trade":     r.MaxRiskPerTrade,
		"max_portfolio_exposure": r.MaxPortfolioExposure,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("risk_limits.%s must be within [0,1], got %v", name, v))
		}
	}
	if r.MaxPositions <= 0 {
		errs = append(errs, fmt.Errorf("risk_limits.max_positions must be positive"))
	}
	if c.Confluence.MinSignals <= 0 {
		errs = append(errs, fmt.Errorf("confluence.min_signals must be positive"))
	}
	if c.Signals.MinConfidence < 0 || c.Signals.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("signals.min_confidence must be within [0,1]"))
	}
	if c.Cycle.IntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("cycle.interval_ms must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Limits() domain.RiskLimitsConfig {
	r := c.RiskLimits
	return domain.RiskLimitsConfig{
		MaxDrawdown:          decimal.NewFromFloat(r.MaxDrawdown),
		DailyLossLimit:       decimal.NewFromFloat(r.DailyLossLimit),
		WeeklyLossLimit:      decimal.NewFromFloat(r.WeeklyLossLimit),
		MaxPositionSize:      decimal.NewFromFloat(r.MaxPositionSize),
		MaxRiskPerTrade:      decimal.NewFromFloat(r.MaxRiskPerTrade),
		MaxPositions:         r.MaxPositions,
		MaxPortfolioExposure: decimal.NewFromFloat(r.MaxPortfolioExposure),
	}
}

func (c *Config) ConfluenceConfig() usecase.ConfluenceConfig {
	return usecase.ConfluenceConfig{
		MinSignals:       c.Confluence.MinSignals,
		TimeDecayFactor:  c.Confluence.TimeDecayFactor,
		ConsistencyBonus: c.Confluence.ConsistencyBonus,
	}
}

// Reference identifies the limits a RiskRecord was produced under.
func (c *Config) Reference() string {
	r := c.RiskLimits
	return fmt.Sprintf("risk_limits:dd=%g,daily=%g,weekly=%g,pos=%g,risk=%g,max_pos=%d,exposure=%g",
		r.MaxDrawdown, r.DailyLossLimit, r.WeeklyLossLimit, r.MaxPositionSize,
		r.MaxRiskPerTrade, r.MaxPositions, r.MaxPortfolioExposure)
}
