package usecase

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
)

const (
	volumePrecision = 8

	minKellyFraction = 0.25
	maxKellyFraction = 1.0

	minCombinedMultiplier = 0.2
	maxCombinedMultiplier = 1.5

	baselineATRPercent = 0.02
)

// PositionSizer converts a trade candidate into a sized Decision. Money,
// price and volume arithmetic stays in decimal; only the multipliers are
// floats.
type PositionSizer struct {
	limits domain.RiskLimitsConfig
	now    func() time.Time
	newID  func() string
}

func NewPositionSizer(limits domain.RiskLimitsConfig) *PositionSizer {
	return &PositionSizer{
		limits: limits,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

func (p *PositionSizer) WithClock(now func() time.Time) *PositionSizer {
	p.now = now
	return p
}

// Calculate sizes the candidate without a volatility adjustment.
func (p *PositionSizer) Calculate(candidate *domain.TradeCandidate, portfolio *domain.PortfolioState, currentPrice decimal.Decimal) *domain.Decision {
	return p.calculate(candidate, portfolio, currentPrice, decimal.NullDecimal{})
}

// CalculateWithATR additionally scales the size by the market's average true
// range relative to price.
func (p *PositionSizer) CalculateWithATR(candidate *domain.TradeCandidate, portfolio *domain.PortfolioState, currentPrice, atr decimal.Decimal) *domain.Decision {
	return p.calculate(candidate, portfolio, currentPrice, decimal.NullDecimal{Decimal: atr, Valid: true})
}

func (p *PositionSizer) calculate(candidate *domain.TradeCandidate, portfolio *domain.PortfolioState, currentPrice decimal.Decimal, atr decimal.NullDecimal) *domain.Decision {
	entry := candidate.SuggestedEntry
	if !entry.IsPositive() {
		entry = currentPrice
	}
	stop := candidate.SuggestedStopLoss
	target := candidate.SuggestedTakeProfit

	available := portfolio.AvailableCapital
	maxPositionValue := available.Mul(p.limits.MaxPositionSize)

	base := maxPositionValue
	if stop.IsPositive() && entry.IsPositive() {
		stopPercent := entry.Sub(stop).Abs().Div(entry)
		if stopPercent.IsPositive() {
			base = available.Mul(p.limits.MaxRiskPerTrade).Div(stopPercent)
		}
	}

	multiplier := KellyFraction(candidate.CombinedStrength, entry, stop, target) *
		StrengthMultiplier(candidate.CombinedStrength) *
		DrawdownMultiplier(portfolio.CurrentDrawdown)
	if atr.Valid {
		multiplier *= VolatilityMultiplier(atr.Decimal, currentPrice)
	}
	multiplier = clamp(multiplier, minCombinedMultiplier, maxCombinedMultiplier)

	positionValue := base.Mul(decimal.NewFromFloat(multiplier))
	if positionValue.GreaterThan(maxPositionValue) {
		positionValue = maxPositionValue
	}
	remaining := portfolio.TotalCapital.Mul(p.limits.MaxPortfolioExposure).Sub(portfolio.PositionsValue)
	if remaining.LessThan(positionValue) {
		positionValue = decimal.Max(decimal.Zero, remaining)
	}

	volume := decimal.Zero
	if entry.IsPositive() {
		volume = positionValue.Div(entry).Truncate(volumePrecision)
	}

	riskAmount := positionValue.Mul(p.limits.MaxRiskPerTrade)
	riskPercent := p.limits.MaxRiskPerTrade
	if stop.IsPositive() && entry.IsPositive() && volume.IsPositive() && portfolio.TotalCapital.IsPositive() {
		riskAmount = entry.Sub(stop).Abs().Mul(volume)
		riskPercent = riskAmount.Div(portfolio.TotalCapital)
	}

	strategies := make([]string, len(candidate.ContributingSignals))
	for i, s := range candidate.ContributingSignals {
		strategies[i] = s.StrategyID
	}

	return &domain.Decision{
		DecisionID:          p.newID(),
		Market:              candidate.Market,
		Direction:           candidate.Direction,
		Volume:              volume,
		EntryPrice:          entry,
		StopLoss:            stop,
		TakeProfit:          target,
		RiskAmount:          riskAmount,
		RiskPercent:         riskPercent,
		ContributingSignals: strategies,
		Timestamp:           p.now(),
		Status:              domain.DecisionPending,
	}
}

// KellyFraction returns half-Kelly clipped to [0.25, 1]. winProbability is the
// candidate's combined strength. Missing levels or a zero stop distance yield
// a full (1.0) fraction; a non-positive edge yields the 0.25 floor.
func KellyFraction(winProbability float64, entry, stop, target decimal.Decimal) float64 {
	if !entry.IsPositive() || !stop.IsPositive() || !target.IsPositive() {
		return 1.0
	}
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() {
		return 1.0
	}
	reward := target.Sub(entry).Abs()
	rr, _ := reward.Div(risk).Float64()

	kelly := 0.0
	if rr > 0 {
		kelly = winProbability - (1-winProbability)/rr
	}
	if kelly <= 0 {
		return minKellyFraction
	}
	return clamp(kelly*0.5, minKellyFraction, maxKellyFraction)
}

// StrengthMultiplier maps strength through a logistic centred at 0.6 onto
// roughly [0.5, 1.2].
func StrengthMultiplier(strength float64) float64 {
	sigmoid := 1 / (1 + math.Exp(-8*(strength-0.6)))
	return 0.5 + 0.7*sigmoid
}

// DrawdownMultiplier is 1.0 below 5% drawdown, 0.3 from 15% and linear in
// between. drawdown is a fraction.
func DrawdownMultiplier(drawdown float64) float64 {
	switch {
	case drawdown <= 0:
		return 1.0
	case drawdown < 0.05:
		return 1.0
	case drawdown >= 0.15:
		return 0.3
	}
	return 1.0 - 0.7*(drawdown-0.05)/0.10
}

// VolatilityMultiplier boosts size up to 1.2x in calm markets and cuts it to
// 0.5x in volatile ones, relative to a 2% ATR baseline.
func VolatilityMultiplier(atr, price decimal.Decimal) float64 {
	if !atr.IsPositive() || !price.IsPositive() {
		return 1.0
	}
	atrPercent, _ := atr.Div(price).Float64()
	if atrPercent <= baselineATRPercent {
		return math.Min(1.2, 1.0+(baselineATRPercent-atrPercent)*10)
	}
	return math.Max(0.5, 1.0-(atrPercent-baselineATRPercent)*5)
}
