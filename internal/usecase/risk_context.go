package usecase

import (
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
)

// BuildRiskContext snapshots portfolio and account figures for one
// evaluation. decision may be nil for a portfolio-only check.
func BuildRiskContext(portfolio *domain.PortfolioState, account domain.AccountStats, decision *domain.Decision) domain.RiskContext {
	value := portfolio.TotalCapital

	positionsValue := portfolio.PositionsValue
	if positionsValue.IsZero() {
		positionsValue = portfolio.TotalPositionsValue()
	}

	state := account.SystemState
	if state == "" {
		state = domain.SystemRunning
	}

	ctx := domain.RiskContext{
		SystemState:            state,
		Mode:                   account.Mode,
		OpenPositionsCount:     len(portfolio.Positions),
		TotalPositionValue:     positionsValue,
		PortfolioValue:         value,
		StartingCapital:        account.StartingCapital,
		DailyPnL:               account.DailyPnL,
		DailyPnLPercent:        percentOf(account.DailyPnL, pnlBase(account, value)),
		WeeklyPnL:              account.WeeklyPnL,
		WeeklyPnLPercent:       percentOf(account.WeeklyPnL, pnlBase(account, value)),
		PeakPortfolioValue:     account.PeakPortfolioValue,
		CurrentDrawdownPercent: drawdownPercent(portfolio, account.PeakPortfolioValue),
	}

	if decision != nil {
		ctx.ProposedTradeSize = decimal.NullDecimal{Decimal: decision.Notional(), Valid: true}
		ctx.ProposedTradeRiskPercent = decimal.NullDecimal{Decimal: decision.RiskPercent.Mul(hundred), Valid: true}
	}
	return ctx
}

func pnlBase(account domain.AccountStats, value decimal.Decimal) decimal.Decimal {
	if account.StartingCapital.IsPositive() {
		return account.StartingCapital
	}
	return value
}

func percentOf(amount, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(base).Mul(hundred)
}

// drawdownPercent prefers the distance from the recorded peak and falls back
// to the portfolio's own drawdown fraction when no peak is known.
func drawdownPercent(portfolio *domain.PortfolioState, peak decimal.Decimal) decimal.Decimal {
	if peak.IsPositive() {
		if portfolio.TotalCapital.GreaterThanOrEqual(peak) {
			return decimal.Zero
		}
		return peak.Sub(portfolio.TotalCapital).Div(peak).Mul(hundred)
	}
	if portfolio.CurrentDrawdown > 0 {
		return decimal.NewFromFloat(portfolio.CurrentDrawdown).Mul(hundred)
	}
	return decimal.Zero
}
