package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
)

const (
	PrioritySystemState       = 1
	PriorityMaxDrawdown       = 10
	PriorityDailyLossLimit    = 20
	PriorityWeeklyLossLimit   = 25
	PriorityPositionSize      = 100
	PriorityPortfolioExposure = 105
	PriorityMaxPositions      = 110
)

const (
	ActionCloseAllPositions  = "close_all_positions"
	ActionHaltNewTrades      = "halt_new_trades"
	ActionReducePositionSize = "reduce_position_size"
	ActionStopTradingDay     = "stop_trading_for_day"
	ActionStopTradingWeek    = "stop_trading_for_week"
	ActionRejectTrade        = "reject_trade"
	ActionReduceExposure     = "reduce_exposure"
	ActionNoNewPositions     = "no_new_positions"
)

var hundred = decimal.NewFromInt(100)

func pct(d decimal.Decimal) string {
	return d.StringFixed(2) + "%"
}

// SystemStateRule blocks trading while the system is not running.
type SystemStateRule struct {
	BaseRule
}

func NewSystemStateRule() *SystemStateRule {
	return &SystemStateRule{
		BaseRule: NewBaseRule("system_state", PrioritySystemState, domain.SeverityCritical),
	}
}

func (r *SystemStateRule) Evaluate(ctx domain.RiskContext) *domain.TriggeredRule {
	switch ctx.SystemState {
	case domain.SystemEmergency:
		return r.Trigger(domain.SeverityEmergency, "System is in emergency state", ActionCloseAllPositions)
	case domain.SystemPaused, domain.SystemStopped:
		return r.Trigger("", fmt.Sprintf("System is %s", ctx.SystemState), ActionHaltNewTrades)
	}
	return nil
}

// MaxDrawdownRule escalates on drawdown from the portfolio peak.
// Thresholds are in percent.
type MaxDrawdownRule struct {
	BaseRule
	Warning   decimal.Decimal
	Critical  decimal.Decimal
	Emergency decimal.Decimal
}

func NewMaxDrawdownRule(warning, critical, emergency decimal.Decimal) *MaxDrawdownRule {
	return &MaxDrawdownRule{
		BaseRule:  NewBaseRule("max_drawdown", PriorityMaxDrawdown, domain.SeverityCritical),
		Warning:   warning,
		Critical:  critical,
		Emergency: emergency,
	}
}

func (r *MaxDrawdownRule) Evaluate(ctx domain.RiskContext) *domain.TriggeredRule {
	dd := ctx.CurrentDrawdownPercent
	switch {
	case dd.GreaterThanOrEqual(r.Emergency):
		return r.Trigger(domain.SeverityEmergency,
			fmt.Sprintf("Drawdown %s reached emergency limit %s", pct(dd), pct(r.Emergency)),
			ActionCloseAllPositions)
	case dd.GreaterThanOrEqual(r.Critical):
		return r.Trigger(domain.SeverityCritical,
			fmt.Sprintf("Drawdown %s reached critical limit %s", pct(dd), pct(r.Critical)),
			ActionHaltNewTrades)
	case dd.GreaterThanOrEqual(r.Warning):
		return r.Trigger(domain.SeverityWarning,
			fmt.Sprintf("Drawdown %s reached warning level %s", pct(dd), pct(r.Warning)),
			ActionReducePositionSize)
	}
	return nil
}

// LossLimitRule caps realised plus unrealised loss over a period. The daily
// and weekly rules are two instances with different thresholds.
type LossLimitRule struct {
	BaseRule
	Warning  decimal.Decimal
	Critical decimal.Decimal
	period   string
	action   string
	loss     func(domain.RiskContext) decimal.Decimal
}

func NewDailyLossLimitRule(warning, critical decimal.Decimal) *LossLimitRule {
	return &LossLimitRule{
		BaseRule: NewBaseRule("daily_loss_limit", PriorityDailyLossLimit, domain.SeverityCritical),
		Warning:  warning,
		Critical: critical,
		period:   "Daily",
		action:   ActionStopTradingDay,
		loss:     domain.RiskContext.DailyLossPercent,
	}
}

func NewWeeklyLossLimitRule(warning, critical decimal.Decimal) *LossLimitRule {
	return &LossLimitRule{
		BaseRule: NewBaseRule("weekly_loss_limit", PriorityWeeklyLossLimit, domain.SeverityCritical),
		Warning:  warning,
		Critical: critical,
		period:   "Weekly",
		action:   ActionStopTradingWeek,
		loss:     domain.RiskContext.WeeklyLossPercent,
	}
}

func (r *LossLimitRule) Evaluate(ctx domain.RiskContext) *domain.TriggeredRule {
	loss := r.loss(ctx)
	switch {
	case loss.GreaterThanOrEqual(r.Critical):
		return r.Trigger(domain.SeverityCritical,
			fmt.Sprintf("%s loss %s reached limit %s", r.period, pct(loss), pct(r.Critical)),
			r.action)
	case loss.GreaterThanOrEqual(r.Warning):
		return r.Trigger(domain.SeverityWarning,
			fmt.Sprintf("%s loss %s reached warning level %s", r.period, pct(loss), pct(r.Warning)),
			ActionReducePositionSize)
	}
	return nil
}

// PositionSizeRule checks the proposed trade's risk as a percent of capital.
// It passes when no trade is proposed.
type PositionSizeRule struct {
	BaseRule
	Info     decimal.Decimal
	Warning  decimal.Decimal
	Critical decimal.Decimal
}

func NewPositionSizeRule(info, warning, critical decimal.Decimal) *PositionSizeRule {
	return &PositionSizeRule{
		BaseRule: NewBaseRule("position_size", PriorityPositionSize, domain.SeverityWarning),
		Info:     info,
		Warning:  warning,
		Critical: critical,
	}
}

func (r *PositionSizeRule) Evaluate(ctx domain.RiskContext) *domain.TriggeredRule {
	if !ctx.ProposedTradeRiskPercent.Valid {
		return nil
	}
	risk := ctx.ProposedTradeRiskPercent.Decimal
	switch {
	case risk.GreaterThan(r.Critical):
		return r.Trigger(domain.SeverityCritical,
			fmt.Sprintf("Trade risk %s exceeds maximum %s", pct(risk), pct(r.Critical)),
			ActionRejectTrade)
	case risk.GreaterThan(r.Warning):
		return r.Trigger(domain.SeverityWarning,
			fmt.Sprintf("Trade risk %s exceeds per-trade limit %s", pct(risk), pct(r.Warning)),
			ActionReducePositionSize)
	case risk.GreaterThan(r.Info):
		return r.Trigger(domain.SeverityInfo,
			fmt.Sprintf("Trade risk %s is above %s", pct(risk), pct(r.Info)),
			"")
	}
	return nil
}

// PortfolioExposureRule checks position value against portfolio value. Both
// the high and the maximum band block new trades; they differ in the advice.
type PortfolioExposureRule struct {
	BaseRule
	Warning decimal.Decimal
	High    decimal.Decimal
	Maximum decimal.Decimal
}

func NewPortfolioExposureRule(warning, high, maximum decimal.Decimal) *PortfolioExposureRule {
	return &PortfolioExposureRule{
		BaseRule: NewBaseRule("portfolio_exposure", PriorityPortfolioExposure, domain.SeverityWarning),
		Warning:  warning,
		High:     high,
		Maximum:  maximum,
	}
}

func (r *PortfolioExposureRule) Evaluate(ctx domain.RiskContext) *domain.TriggeredRule {
	utilization := ctx.PositionUtilizationPercent()
	switch {
	case utilization.GreaterThanOrEqual(r.Maximum):
		return r.Trigger(domain.SeverityCritical,
			fmt.Sprintf("Portfolio exposure %s reached maximum %s", pct(utilization), pct(r.Maximum)),
			ActionReduceExposure)
	case utilization.GreaterThanOrEqual(r.High):
		return r.Trigger(domain.SeverityCritical,
			fmt.Sprintf("Portfolio exposure %s above %s", pct(utilization), pct(r.High)),
			ActionNoNewPositions)
	case utilization.GreaterThanOrEqual(r.Warning):
		return r.Trigger(domain.SeverityWarning,
			fmt.Sprintf("Portfolio exposure %s above %s", pct(utilization), pct(r.Warning)),
			ActionReducePositionSize)
	}
	return nil
}

// MaxPositionsRule limits the number of concurrently open positions.
type MaxPositionsRule struct {
	BaseRule
	MaxPositions int
}

func NewMaxPositionsRule(maxPositions int) *MaxPositionsRule {
	return &MaxPositionsRule{
		BaseRule:     NewBaseRule("max_positions", PriorityMaxPositions, domain.SeverityCritical),
		MaxPositions: maxPositions,
	}
}

func (r *MaxPositionsRule) Evaluate(ctx domain.RiskContext) *domain.TriggeredRule {
	open := ctx.OpenPositionsCount
	switch {
	case open >= r.MaxPositions:
		return r.Trigger(domain.SeverityCritical,
			fmt.Sprintf("Open positions %d reached maximum %d", open, r.MaxPositions),
			ActionNoNewPositions)
	case open == r.MaxPositions-1:
		return r.Trigger(domain.SeverityInfo,
			fmt.Sprintf("Open positions %d, one slot left of %d", open, r.MaxPositions),
			"")
	}
	return nil
}

// DefaultRiskRules derives the stock rule set from the limits, preceded by
// the system state gate. With
// DefaultRiskLimits it yields drawdown 10/15/20%, daily loss 3/5%, weekly
// loss 7/10%, trade risk 1.5/2/3%, exposure 30/40/60% and 5 positions.
func DefaultRiskRules(limits domain.RiskLimitsConfig) []RiskRule {
	frac := func(d decimal.Decimal, f string) decimal.Decimal {
		return d.Mul(hundred).Mul(decimal.RequireFromString(f))
	}
	maxExposure := limits.MaxPortfolioExposure.Mul(hundred)

	return []RiskRule{
		NewSystemStateRule(),
		NewMaxDrawdownRule(
			frac(limits.MaxDrawdown, "0.5"),
			frac(limits.MaxDrawdown, "0.75"),
			frac(limits.MaxDrawdown, "1")),
		NewDailyLossLimitRule(
			frac(limits.DailyLossLimit, "0.6"),
			frac(limits.DailyLossLimit, "1")),
		NewWeeklyLossLimitRule(
			frac(limits.WeeklyLossLimit, "0.7"),
			frac(limits.WeeklyLossLimit, "1")),
		NewPositionSizeRule(
			frac(limits.MaxRiskPerTrade, "0.75"),
			frac(limits.MaxRiskPerTrade, "1"),
			frac(limits.MaxRiskPerTrade, "1.5")),
		NewPortfolioExposureRule(
			maxExposure.Div(decimal.NewFromInt(2)),
			maxExposure.Mul(decimal.NewFromInt(2)).Div(decimal.NewFromInt(3)),
			maxExposure),
		NewMaxPositionsRule(limits.MaxPositions),
	}
}
