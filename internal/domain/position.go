package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents an open position held by the portfolio.
type Position struct {
	Market        string          `json:"market" yaml:"market"`
	Direction     Direction       `json:"direction" yaml:"direction"`
	Volume        decimal.Decimal `json:"volume" yaml:"volume"`
	EntryPrice    decimal.Decimal `json:"entry_price" yaml:"entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price" yaml:"current_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl" yaml:"unrealized_pnl"`
	DecisionID    string          `json:"decision_id,omitempty" yaml:"decision_id"`
	OpenedAt      time.Time       `json:"opened_at" yaml:"opened_at"`
}

// Value is the mark-to-market notional of the position.
func (p *Position) Value() decimal.Decimal {
	price := p.CurrentPrice
	if !price.IsPositive() {
		price = p.EntryPrice
	}
	return p.Volume.Mul(price)
}

// PortfolioState is a point-in-time snapshot supplied by the portfolio
// collaborator. CurrentDrawdown is a fraction (0.05 == 5%).
type PortfolioState struct {
	TotalCapital     decimal.Decimal      `json:"total_capital" yaml:"total_capital"`
	AvailableCapital decimal.Decimal      `json:"available_capital" yaml:"available_capital"`
	Positions        map[string]*Position `json:"positions" yaml:"positions"`
	CurrentDrawdown  float64              `json:"current_drawdown" yaml:"current_drawdown"`
	PositionsValue   decimal.Decimal      `json:"positions_value" yaml:"positions_value"`
}

// HasPosition reports whether the portfolio already holds the market.
func (p *PortfolioState) HasPosition(market string) bool {
	_, ok := p.Positions[market]
	return ok
}

// TotalPositionsValue sums the value of every open position.
func (p *PortfolioState) TotalPositionsValue() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.Value())
	}
	return total
}

// AccountStats carries the running performance figures the risk layer needs
// on top of the raw portfolio snapshot.
type AccountStats struct {
	SystemState        SystemState     `json:"system_state" yaml:"system_state"`
	Mode               TradingMode     `json:"mode" yaml:"mode"`
	StartingCapital    decimal.Decimal `json:"starting_capital" yaml:"starting_capital"`
	PeakPortfolioValue decimal.Decimal `json:"peak_portfolio_value" yaml:"peak_portfolio_value"`
	DailyPnL           decimal.Decimal `json:"daily_pnl" yaml:"daily_pnl"`
	WeeklyPnL          decimal.Decimal `json:"weekly_pnl" yaml:"weekly_pnl"`
}
