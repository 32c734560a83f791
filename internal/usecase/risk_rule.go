package usecase

import (
	"sort"

	"github.com/vitos/crypto_trade_gate/internal/domain"
)

const DefaultRulePriority = 200

// RiskRule is one independently testable check. Lower priority values are
// more urgent and are evaluated first.
type RiskRule interface {
	Name() string
	Priority() int
	DefaultSeverity() domain.RiskSeverity
	Evaluate(ctx domain.RiskContext) *domain.TriggeredRule
}

// BaseRule carries the common rule metadata. Concrete rules embed it.
type BaseRule struct {
	name     string
	priority int
	severity domain.RiskSeverity
}

func NewBaseRule(name string, priority int, severity domain.RiskSeverity) BaseRule {
	if severity == "" {
		severity = domain.SeverityWarning
	}
	return BaseRule{name: name, priority: priority, severity: severity}
}

func (r BaseRule) Name() string { return r.name }

func (r BaseRule) Priority() int { return r.priority }

func (r BaseRule) DefaultSeverity() domain.RiskSeverity { return r.severity }

// Trigger builds a TriggeredRule. An empty severity falls back to the rule's
// default.
func (r BaseRule) Trigger(severity domain.RiskSeverity, message, suggestedAction string) *domain.TriggeredRule {
	if severity == "" {
		severity = r.severity
	}
	return &domain.TriggeredRule{
		RuleName:        r.name,
		Severity:        severity,
		Message:         message,
		SuggestedAction: suggestedAction,
	}
}

// CompositeRiskRule groups sub-rules and reports the first one that fires,
// in priority order.
type CompositeRiskRule struct {
	BaseRule
	rules []RiskRule
}

func NewCompositeRiskRule(name string, priority int, rules ...RiskRule) *CompositeRiskRule {
	return &CompositeRiskRule{
		BaseRule: NewBaseRule(name, priority, domain.SeverityWarning),
		rules:    sortRules(rules),
	}
}

func (c *CompositeRiskRule) Rules() []RiskRule {
	return append([]RiskRule(nil), c.rules...)
}

func (c *CompositeRiskRule) Evaluate(ctx domain.RiskContext) *domain.TriggeredRule {
	for _, rule := range c.rules {
		if triggered := rule.Evaluate(ctx); triggered != nil {
			return triggered
		}
	}
	return nil
}

// sortRules returns a copy ordered by ascending priority; ties keep their
// original order.
func sortRules(rules []RiskRule) []RiskRule {
	sorted := append([]RiskRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return sorted
}
