package paper

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
)

// Account is an in-memory portfolio that fills approved decisions at their
// entry price and closes positions when stop loss or take profit is touched.
type Account struct {
	mu sync.Mutex

	mode            domain.TradingMode
	startingCapital decimal.Decimal
	cash            decimal.Decimal
	realizedPnL     decimal.Decimal
	positions       map[string]*domain.Position
	stops           map[string]exitLevels

	peak       decimal.Decimal
	dayKey     string
	dayStart   decimal.Decimal
	weekKey    string
	weekStart  decimal.Decimal
	lastPrices map[string]decimal.Decimal
	now        func() time.Time
}

type exitLevels struct {
	stopLoss   decimal.Decimal
	takeProfit decimal.Decimal
}

func NewAccount(startingCapital decimal.Decimal, mode domain.TradingMode) *Account {
	return &Account{
		mode:            mode,
		startingCapital: startingCapital,
		cash:            startingCapital,
		positions:       make(map[string]*domain.Position),
		stops:           make(map[string]exitLevels),
		peak:            startingCapital,
		lastPrices:      make(map[string]decimal.Decimal),
		now:             time.Now,
	}
}

func (a *Account) WithClock(now func() time.Time) *Account {
	a.now = now
	return a
}

// Execute fills an approved decision. Anything else is refused.
func (a *Account) Execute(d *domain.Decision) error {
	if !d.Status.CanTransition(domain.DecisionExecuted) {
		return fmt.Errorf("decision %s is %s, not executable", d.DecisionID, d.Status)
	}
	if !d.Direction.IsTradable() {
		return fmt.Errorf("decision %s: direction %s does not open a position", d.DecisionID, d.Direction)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.positions[d.Market]; ok {
		return fmt.Errorf("position already open for %s", d.Market)
	}
	notional := d.Notional()
	if notional.GreaterThan(a.cash) {
		return fmt.Errorf("insufficient capital for %s: need %s, have %s", d.Market, notional, a.cash)
	}

	a.cash = a.cash.Sub(notional)
	a.positions[d.Market] = &domain.Position{
		Market:       d.Market,
		Direction:    d.Direction,
		Volume:       d.Volume,
		EntryPrice:   d.EntryPrice,
		CurrentPrice: d.EntryPrice,
		DecisionID:   d.DecisionID,
		OpenedAt:     a.now(),
	}
	a.stops[d.Market] = exitLevels{stopLoss: d.StopLoss, takeProfit: d.TakeProfit}
	d.Status = domain.DecisionExecuted
	return nil
}

// MarkToMarket updates prices and closes positions whose exit levels were
// reached. It returns the markets that were closed.
func (a *Account) MarkToMarket(prices map[string]decimal.Decimal) []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var closed []string
	for market, price := range prices {
		if !price.IsPositive() {
			continue
		}
		a.lastPrices[market] = price
		pos, ok := a.positions[market]
		if !ok {
			continue
		}
		pos.CurrentPrice = price
		pos.UnrealizedPnL = unrealized(pos, price)

		if exitReached(pos.Direction, price, a.stops[market]) {
			a.closeLocked(market, price)
			closed = append(closed, market)
		}
	}
	return closed
}

// Close realises the position at price.
func (a *Account) Close(market string, price decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.positions[market]; !ok {
		return fmt.Errorf("no open position for %s: %w", market, domain.ErrNotFound)
	}
	a.closeLocked(market, price)
	return nil
}

// CloseAll flattens every position at the last known price.
func (a *Account) CloseAll() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for market, pos := range a.positions {
		price, ok := a.lastPrices[market]
		if !ok {
			price = pos.EntryPrice
		}
		a.closeLocked(market, price)
		n++
	}
	return n
}

func (a *Account) closeLocked(market string, price decimal.Decimal) {
	pos := a.positions[market]
	pnl := unrealized(pos, price)
	a.cash = a.cash.Add(pos.Volume.Mul(pos.EntryPrice)).Add(pnl)
	a.realizedPnL = a.realizedPnL.Add(pnl)
	delete(a.positions, market)
	delete(a.stops, market)
}

func (a *Account) RealizedPnL() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

// Snapshot returns the portfolio and running account figures.
func (a *Account) Snapshot() (*domain.PortfolioState, domain.AccountStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]*domain.Position, len(a.positions))
	positionsValue := decimal.Zero
	equity := a.cash
	for market, pos := range a.positions {
		cp := *pos
		positions[market] = &cp
		positionsValue = positionsValue.Add(cp.Value())
		equity = equity.Add(cp.Volume.Mul(cp.EntryPrice)).Add(cp.UnrealizedPnL)
	}

	if equity.GreaterThan(a.peak) {
		a.peak = equity
	}
	now := a.now().UTC()
	if key := now.Format("2006-01-02"); key != a.dayKey {
		a.dayKey, a.dayStart = key, equity
	}
	year, week := now.ISOWeek()
	if key := fmt.Sprintf("%d-W%02d", year, week); key != a.weekKey {
		a.weekKey, a.weekStart = key, equity
	}

	drawdown := 0.0
	if a.peak.IsPositive() {
		drawdown = a.peak.Sub(equity).Div(a.peak).InexactFloat64()
	}

	portfolio := &domain.PortfolioState{
		TotalCapital:     equity,
		AvailableCapital: a.cash,
		Positions:        positions,
		CurrentDrawdown:  drawdown,
		PositionsValue:   positionsValue,
	}
	stats := domain.AccountStats{
		Mode:               a.mode,
		StartingCapital:    a.startingCapital,
		PeakPortfolioValue: a.peak,
		DailyPnL:           equity.Sub(a.dayStart),
		WeeklyPnL:          equity.Sub(a.weekStart),
	}
	return portfolio, stats
}

func unrealized(pos *domain.Position, price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(pos.EntryPrice)
	if pos.Direction == domain.DirectionShort {
		diff = diff.Neg()
	}
	return diff.Mul(pos.Volume)
}

func exitReached(direction domain.Direction, price decimal.Decimal, levels exitLevels) bool {
	sl, tp := levels.stopLoss, levels.takeProfit
	if direction == domain.DirectionShort {
		return (sl.IsPositive() && price.GreaterThanOrEqual(sl)) || (tp.IsPositive() && price.LessThanOrEqual(tp))
	}
	return (sl.IsPositive() && price.LessThanOrEqual(sl)) || (tp.IsPositive() && price.GreaterThanOrEqual(tp))
}
