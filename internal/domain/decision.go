package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DecisionStatus string

const (
	DecisionPending   DecisionStatus = "PENDING"
	DecisionApproved  DecisionStatus = "APPROVED"
	DecisionRejected  DecisionStatus = "REJECTED"
	DecisionExecuted  DecisionStatus = "EXECUTED"
	DecisionCancelled DecisionStatus = "CANCELLED"
)

var decisionTransitions = map[DecisionStatus][]DecisionStatus{
	DecisionPending:  {DecisionApproved, DecisionRejected, DecisionCancelled},
	DecisionApproved: {DecisionExecuted, DecisionCancelled},
}

// CanTransition reports whether the approval workflow may move a decision
// from s to next. REJECTED, EXECUTED and CANCELLED are terminal.
func (s DecisionStatus) CanTransition(next DecisionStatus) bool {
	for _, allowed := range decisionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Decision is a fully sized trade proposal. RiskPercent is a fraction of
// total capital (0.02 == 2%).
type Decision struct {
	DecisionID          string          `json:"decision_id"`
	Market              string          `json:"market"`
	Direction           Direction       `json:"direction"`
	Volume              decimal.Decimal `json:"volume"`
	EntryPrice          decimal.Decimal `json:"entry_price"`
	StopLoss            decimal.Decimal `json:"stop_loss"`
	TakeProfit          decimal.Decimal `json:"take_profit"`
	RiskAmount          decimal.Decimal `json:"risk_amount"`
	RiskPercent         decimal.Decimal `json:"risk_percent"`
	ContributingSignals []string        `json:"contributing_signals"`
	Timestamp           time.Time       `json:"timestamp"`
	Status              DecisionStatus  `json:"status"`
}

// Notional returns volume * entry price.
func (d *Decision) Notional() decimal.Decimal {
	return d.Volume.Mul(d.EntryPrice)
}
