package domain

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// DecisionRepository defines storage operations for sized decisions.
type DecisionRepository interface {
	SaveDecision(ctx context.Context, decision *Decision) error
	UpdateDecisionStatus(ctx context.Context, id string, status DecisionStatus) error
	GetDecision(ctx context.Context, id string) (*Decision, error)
	ListDecisions(ctx context.Context, limit int) ([]*Decision, error)
}

// RiskRecordRepository defines storage operations for the risk audit trail.
type RiskRecordRepository interface {
	SaveRiskRecord(ctx context.Context, record *RiskRecord) error
	ListRiskRecords(ctx context.Context, limit int) ([]*RiskRecord, error)
	ListRiskRecordsByDecision(ctx context.Context, decisionID string) ([]*RiskRecord, error)
}

// CycleObserver receives the outcome of every gated decision. Used for
// metrics; implementations must not block.
type CycleObserver interface {
	ObserveSignal(signal Signal, accepted bool)
	ObserveDecision(decision *Decision, record *RiskRecord)
	ObserveCycle(decisions int, seconds float64)
}
