package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
	DirectionClose Direction = "CLOSE"
	DirectionHold  Direction = "HOLD"
)

// IsTradable reports whether the direction opens exposure.
func (d Direction) IsTradable() bool {
	return d == DirectionLong || d == DirectionShort
}

func (d Direction) IsValid() bool {
	switch d {
	case DirectionLong, DirectionShort, DirectionClose, DirectionHold:
		return true
	}
	return false
}

// Signal is a directional suggestion emitted by a single strategy.
// Zero prices mean the strategy did not provide that level.
type Signal struct {
	StrategyID string          `json:"strategy_id" yaml:"strategy_id"`
	Market     string          `json:"market" yaml:"market"`
	Direction  Direction       `json:"direction" yaml:"direction"`
	Strength   float64         `json:"strength" yaml:"strength"`     // [0,1]
	Confidence float64         `json:"confidence" yaml:"confidence"` // [0,1]
	EntryPrice decimal.Decimal `json:"entry_price" yaml:"entry_price"`
	StopLoss   decimal.Decimal `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit" yaml:"take_profit"`
	Timeframe  string          `json:"timeframe" yaml:"timeframe"`
	Timestamp  time.Time       `json:"timestamp" yaml:"timestamp"`
}

// TradeCandidate is the consensus of several signals on one market.
type TradeCandidate struct {
	Market              string
	Direction           Direction
	CombinedStrength    float64
	ContributingSignals []Signal
	SuggestedEntry      decimal.Decimal
	SuggestedStopLoss   decimal.Decimal
	SuggestedTakeProfit decimal.Decimal
	Timestamp           time.Time
}

// Validate checks the shape of an inbound signal. The decision core does not
// call it; it is for the collaborators that accept signals from outside.
func (s *Signal) Validate() error {
	switch {
	case s.StrategyID == "":
		return fmt.Errorf("signal: strategy_id is required")
	case s.Market == "":
		return fmt.Errorf("signal: market is required")
	case !s.Direction.IsValid():
		return fmt.Errorf("signal: invalid direction %q", s.Direction)
	case s.Strength < 0 || s.Strength > 1:
		return fmt.Errorf("signal: strength %v out of [0,1]", s.Strength)
	case s.Confidence < 0 || s.Confidence > 1:
		return fmt.Errorf("signal: confidence %v out of [0,1]", s.Confidence)
	case s.EntryPrice.IsNegative() || s.StopLoss.IsNegative() || s.TakeProfit.IsNegative():
		return fmt.Errorf("signal: prices must not be negative")
	}
	return nil
}
