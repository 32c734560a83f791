package domain

import (
	"github.com/shopspring/decimal"
)

type SystemState string

const (
	SystemRunning   SystemState = "RUNNING"
	SystemPaused    SystemState = "PAUSED"
	SystemEmergency SystemState = "EMERGENCY"
	SystemStopped   SystemState = "STOPPED"
)

type TradingMode string

const (
	ModeLive     TradingMode = "LIVE"
	ModePaper    TradingMode = "PAPER"
	ModeBacktest TradingMode = "BACKTEST"
)

type RiskSeverity string

const (
	SeverityInfo      RiskSeverity = "INFO"
	SeverityWarning   RiskSeverity = "WARNING"
	SeverityCritical  RiskSeverity = "CRITICAL"
	SeverityEmergency RiskSeverity = "EMERGENCY"
)

// Rank gives the total order INFO < WARNING < CRITICAL < EMERGENCY.
// Unknown severities rank below INFO.
func (s RiskSeverity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	case SeverityEmergency:
		return 4
	}
	return 0
}

func (s RiskSeverity) AtLeast(other RiskSeverity) bool {
	return s.Rank() >= other.Rank()
}

type RiskDecision string

const (
	RiskAllow         RiskDecision = "ALLOW"
	RiskReduceSize    RiskDecision = "REDUCE_SIZE"
	RiskForceNoAction RiskDecision = "FORCE_NO_ACTION"
	RiskEmergencyStop RiskDecision = "EMERGENCY_STOP"
)

// IsBlocked reports whether the execution gate must treat the decision as a
// hard stop.
func (d RiskDecision) IsBlocked() bool {
	return d == RiskForceNoAction || d == RiskEmergencyStop
}

// DecisionForSeverity maps the most urgent triggered severity to an outcome.
func DecisionForSeverity(s RiskSeverity) RiskDecision {
	switch s {
	case SeverityEmergency:
		return RiskEmergencyStop
	case SeverityCritical:
		return RiskForceNoAction
	case SeverityWarning:
		return RiskReduceSize
	}
	return RiskAllow
}

// RiskContext is an immutable snapshot for one risk evaluation. Fields named
// *Percent are in percent units (5 == 5%).
type RiskContext struct {
	SystemState              SystemState         `json:"system_state"`
	Mode                     TradingMode         `json:"mode"`
	OpenPositionsCount       int                 `json:"open_positions_count"`
	TotalPositionValue       decimal.Decimal     `json:"total_position_value"`
	PortfolioValue           decimal.Decimal     `json:"portfolio_value"`
	StartingCapital          decimal.Decimal     `json:"starting_capital"`
	DailyPnL                 decimal.Decimal     `json:"daily_pnl"`
	DailyPnLPercent          decimal.Decimal     `json:"daily_pnl_percent"`
	WeeklyPnL                decimal.Decimal     `json:"weekly_pnl"`
	WeeklyPnLPercent         decimal.Decimal     `json:"weekly_pnl_percent"`
	PeakPortfolioValue       decimal.Decimal     `json:"peak_portfolio_value"`
	CurrentDrawdownPercent   decimal.Decimal     `json:"current_drawdown_percent"`
	ProposedTradeSize        decimal.NullDecimal `json:"proposed_trade_size"`
	ProposedTradeRiskPercent decimal.NullDecimal `json:"proposed_trade_risk_percent"`
}

// PositionUtilizationPercent is total position value relative to portfolio
// value, in percent. Zero when the portfolio value is not positive.
func (c RiskContext) PositionUtilizationPercent() decimal.Decimal {
	if !c.PortfolioValue.IsPositive() {
		return decimal.Zero
	}
	return c.TotalPositionValue.Div(c.PortfolioValue).Mul(decimal.NewFromInt(100))
}

// DailyLossPercent is the daily loss as a positive percent; gains yield a
// negative value.
func (c RiskContext) DailyLossPercent() decimal.Decimal {
	return c.DailyPnLPercent.Neg()
}

func (c RiskContext) WeeklyLossPercent() decimal.Decimal {
	return c.WeeklyPnLPercent.Neg()
}

// TriggeredRule is the output of a rule that fired.
type TriggeredRule struct {
	RuleName        string       `json:"rule_name"`
	Severity        RiskSeverity `json:"severity"`
	Message         string       `json:"message"`
	SuggestedAction string       `json:"suggested_action,omitempty"`
}

// RiskRecord is the audit artifact of one evaluation.
type RiskRecord struct {
	Timestamp         int64               `json:"timestamp"`
	InputDecisionID   string              `json:"input_decision_id"`
	RiskDecision      RiskDecision        `json:"risk_decision"`
	Reason            string              `json:"reason"`
	TriggeredRules    []TriggeredRule     `json:"triggered_rules"`
	RecommendedAction string              `json:"recommended_action,omitempty"`
	MaxAllowedSize    decimal.NullDecimal `json:"max_allowed_size"`
	ConfigReference   string              `json:"config_reference"`
}

func (r *RiskRecord) IsBlocked() bool {
	return r.RiskDecision.IsBlocked()
}

// RiskLimitsConfig holds the thresholds as fractions (0.02 == 2%), except
// MaxPositions which is a count.
type RiskLimitsConfig struct {
	MaxDrawdown          decimal.Decimal `json:"max_drawdown"`
	DailyLossLimit       decimal.Decimal `json:"daily_loss_limit"`
	WeeklyLossLimit      decimal.Decimal `json:"weekly_loss_limit"`
	MaxPositionSize      decimal.Decimal `json:"max_position_size"`
	MaxRiskPerTrade      decimal.Decimal `json:"max_risk_per_trade"`
	MaxPositions         int             `json:"max_positions"`
	MaxPortfolioExposure decimal.Decimal `json:"max_portfolio_exposure"`
}

// DefaultRiskLimits returns the stock thresholds.
func DefaultRiskLimits() RiskLimitsConfig {
	return RiskLimitsConfig{
		MaxDrawdown:          decimal.RequireFromString("0.20"),
		DailyLossLimit:       decimal.RequireFromString("0.05"),
		WeeklyLossLimit:      decimal.RequireFromString("0.10"),
		MaxPositionSize:      decimal.RequireFromString("0.10"),
		MaxRiskPerTrade:      decimal.RequireFromString("0.02"),
		MaxPositions:         5,
		MaxPortfolioExposure: decimal.RequireFromString("0.60"),
	}
}
