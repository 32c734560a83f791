package usecase

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultConfigReference = "risk_limits.default"

	ruleErrorName = "rule_evaluation_error"
)

var (
	reduceSizeFraction     = decimal.RequireFromString("0.02")
	reduceSizeDrawdownStep = decimal.NewFromInt(10)
	two                    = decimal.NewFromInt(2)
)

// RiskEngine evaluates every rule against a RiskContext and folds the
// results into one RiskRecord. It is not safe for concurrent use.
type RiskEngine struct {
	rules     []RiskRule
	configRef string
	logger    *zap.Logger
	now       func() time.Time
}

func NewRiskEngine(rules []RiskRule, configRef string, logger *zap.Logger) *RiskEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if configRef == "" {
		configRef = DefaultConfigReference
	}
	return &RiskEngine{
		rules:     sortRules(rules),
		configRef: configRef,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *RiskEngine) WithClock(now func() time.Time) *RiskEngine {
	e.now = now
	return e
}

// Rules returns the rule set in evaluation order.
func (e *RiskEngine) Rules() []RiskRule {
	return append([]RiskRule(nil), e.rules...)
}

func (e *RiskEngine) AddRule(rule RiskRule) {
	e.rules = sortRules(append(e.rules, rule))
}

// RemoveRule drops every rule with the given name and reports whether any
// was removed.
func (e *RiskEngine) RemoveRule(name string) bool {
	kept := e.rules[:0:0]
	for _, r := range e.rules {
		if r.Name() != name {
			kept = append(kept, r)
		}
	}
	removed := len(kept) != len(e.rules)
	e.rules = kept
	return removed
}

// Evaluate runs all rules and never fails. The outcome follows the most
// severe band present; within a band the first rule in priority order
// supplies the reason.
func (e *RiskEngine) Evaluate(ctx domain.RiskContext, decisionID string) *domain.RiskRecord {
	triggered := make([]domain.TriggeredRule, 0)
	for _, rule := range e.rules {
		if t := e.evaluateRule(rule, ctx); t != nil {
			triggered = append(triggered, *t)
		}
	}

	record := &domain.RiskRecord{
		Timestamp:       e.now().Unix(),
		InputDecisionID: decisionID,
		RiskDecision:    domain.RiskAllow,
		Reason:          "All risk checks passed",
		TriggeredRules:  triggered,
		ConfigReference: e.configRef,
	}

	var top *domain.TriggeredRule
	for i := range triggered {
		if top == nil || triggered[i].Severity.Rank() > top.Severity.Rank() {
			top = &triggered[i]
		}
	}
	if top != nil {
		record.RiskDecision = domain.DecisionForSeverity(top.Severity)
		record.Reason = top.Message
		record.RecommendedAction = top.SuggestedAction
	}

	if record.RiskDecision == domain.RiskReduceSize {
		maxSize := ctx.PortfolioValue.Mul(reduceSizeFraction)
		if ctx.CurrentDrawdownPercent.GreaterThan(reduceSizeDrawdownStep) {
			maxSize = maxSize.Div(two)
		}
		record.MaxAllowedSize = decimal.NullDecimal{Decimal: maxSize, Valid: true}
	}

	e.log(record)
	return record
}

// evaluateRule converts a panicking rule into a CRITICAL trigger.
func (e *RiskEngine) evaluateRule(rule RiskRule, ctx domain.RiskContext) (t *domain.TriggeredRule) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Risk rule panicked", zap.String("rule", rule.Name()), zap.Any("panic", r))
			t = &domain.TriggeredRule{
				RuleName:        ruleErrorName,
				Severity:        domain.SeverityCritical,
				Message:         fmt.Sprintf("Rule %s failed: %v", rule.Name(), r),
				SuggestedAction: ActionHaltNewTrades,
			}
		}
	}()
	return rule.Evaluate(ctx)
}

func (e *RiskEngine) log(record *domain.RiskRecord) {
	fields := []zap.Field{
		zap.String("decision_id", record.InputDecisionID),
		zap.String("risk_decision", string(record.RiskDecision)),
		zap.String("reason", record.Reason),
		zap.Int("triggered", len(record.TriggeredRules)),
	}
	switch {
	case record.InputDecisionID == "" && record.RiskDecision != domain.RiskEmergencyStop:
		e.logger.Debug("Portfolio risk evaluation", fields...)
	case record.RiskDecision == domain.RiskEmergencyStop, record.RiskDecision == domain.RiskForceNoAction:
		e.logger.Error("Trade blocked by risk engine", fields...)
	case record.RiskDecision == domain.RiskReduceSize:
		e.logger.Warn("Risk engine requested size reduction",
			append(fields, zap.String("max_allowed_size", record.MaxAllowedSize.Decimal.String()))...)
	default:
		e.logger.Debug("Risk evaluation", fields...)
	}
}
