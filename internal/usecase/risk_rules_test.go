package usecase_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/usecase"
)

func baseContext() domain.RiskContext {
	return domain.RiskContext{
		SystemState:        domain.SystemRunning,
		Mode:               domain.ModePaper,
		PortfolioValue:     dec("10000"),
		StartingCapital:    dec("10000"),
		PeakPortfolioValue: dec("10000"),
	}
}

func severityOf(t *domain.TriggeredRule) domain.RiskSeverity {
	if t == nil {
		return ""
	}
	return t.Severity
}

func TestSystemStateRule(t *testing.T) {
	rule := usecase.NewSystemStateRule()
	tests := []struct {
		state domain.SystemState
		want  domain.RiskSeverity
	}{
		{domain.SystemRunning, ""},
		{domain.SystemPaused, domain.SeverityCritical},
		{domain.SystemStopped, domain.SeverityCritical},
		{domain.SystemEmergency, domain.SeverityEmergency},
	}
	for _, tt := range tests {
		ctx := baseContext()
		ctx.SystemState = tt.state
		if got := severityOf(rule.Evaluate(ctx)); got != tt.want {
			t.Errorf("state %s: severity = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestMaxDrawdownRule(t *testing.T) {
	rule := usecase.NewMaxDrawdownRule(dec("10"), dec("15"), dec("20"))
	tests := []struct {
		drawdown string
		want     domain.RiskSeverity
		action   string
	}{
		{"0", "", ""},
		{"9.99", "", ""},
		{"10", domain.SeverityWarning, usecase.ActionReducePositionSize},
		{"14.9", domain.SeverityWarning, usecase.ActionReducePositionSize},
		{"15", domain.SeverityCritical, usecase.ActionHaltNewTrades},
		{"20", domain.SeverityEmergency, usecase.ActionCloseAllPositions},
		{"35", domain.SeverityEmergency, usecase.ActionCloseAllPositions},
	}
	for _, tt := range tests {
		t.Run(tt.drawdown, func(t *testing.T) {
			ctx := baseContext()
			ctx.CurrentDrawdownPercent = dec(tt.drawdown)
			got := rule.Evaluate(ctx)
			assert.Equal(t, tt.want, severityOf(got))
			if got != nil {
				assert.Equal(t, "max_drawdown", got.RuleName)
				assert.Equal(t, tt.action, got.SuggestedAction)
			}
		})
	}
}

func TestLossLimitRules(t *testing.T) {
	daily := usecase.NewDailyLossLimitRule(dec("3"), dec("5"))
	weekly := usecase.NewWeeklyLossLimitRule(dec("7"), dec("10"))

	tests := []struct {
		name   string
		pnlPct string
		daily  domain.RiskSeverity
		weekly domain.RiskSeverity
	}{
		{"gain", "4", "", ""},
		{"small loss", "-2", "", ""},
		{"daily warning", "-3", domain.SeverityWarning, ""},
		{"daily limit", "-5", domain.SeverityCritical, ""},
		{"weekly warning", "-7", domain.SeverityCritical, domain.SeverityWarning},
		{"weekly limit", "-12", domain.SeverityCritical, domain.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := baseContext()
			ctx.DailyPnLPercent = dec(tt.pnlPct)
			ctx.WeeklyPnLPercent = dec(tt.pnlPct)
			assert.Equal(t, tt.daily, severityOf(daily.Evaluate(ctx)))
			assert.Equal(t, tt.weekly, severityOf(weekly.Evaluate(ctx)))
		})
	}

	ctx := baseContext()
	ctx.DailyPnLPercent = dec("-6")
	got := daily.Evaluate(ctx)
	require.NotNil(t, got)
	assert.Equal(t, usecase.ActionStopTradingDay, got.SuggestedAction)
	assert.Equal(t, usecase.PriorityDailyLossLimit, daily.Priority())
	assert.Equal(t, usecase.PriorityWeeklyLossLimit, weekly.Priority())
}

func TestPositionSizeRule(t *testing.T) {
	rule := usecase.NewPositionSizeRule(dec("1.5"), dec("2"), dec("3"))

	ctx := baseContext()
	assert.Nil(t, rule.Evaluate(ctx), "no proposed trade")

	tests := []struct {
		risk string
		want domain.RiskSeverity
	}{
		{"1", ""},
		{"1.5", ""},
		{"1.6", domain.SeverityInfo},
		{"2", domain.SeverityInfo},
		{"2.5", domain.SeverityWarning},
		{"3", domain.SeverityWarning},
		{"3.01", domain.SeverityCritical},
	}
	for _, tt := range tests {
		ctx.ProposedTradeRiskPercent = decimal.NullDecimal{Decimal: dec(tt.risk), Valid: true}
		if got := severityOf(rule.Evaluate(ctx)); got != tt.want {
			t.Errorf("risk %s%%: severity = %q, want %q", tt.risk, got, tt.want)
		}
	}
}

func TestPortfolioExposureRule(t *testing.T) {
	rule := usecase.NewPortfolioExposureRule(dec("30"), dec("40"), dec("60"))
	tests := []struct {
		positions string
		want      domain.RiskSeverity
		action    string
	}{
		{"0", "", ""},
		{"2999", "", ""},
		{"3000", domain.SeverityWarning, usecase.ActionReducePositionSize},
		{"4000", domain.SeverityCritical, usecase.ActionNoNewPositions},
		{"6000", domain.SeverityCritical, usecase.ActionReduceExposure},
	}
	for _, tt := range tests {
		ctx := baseContext()
		ctx.TotalPositionValue = dec(tt.positions)
		got := rule.Evaluate(ctx)
		assert.Equal(t, tt.want, severityOf(got), "positions %s", tt.positions)
		if got != nil {
			assert.Equal(t, tt.action, got.SuggestedAction)
		}
	}

	ctx := baseContext()
	ctx.PortfolioValue = decimal.Zero
	ctx.TotalPositionValue = dec("100")
	assert.Nil(t, rule.Evaluate(ctx), "zero portfolio value")
}

func TestMaxPositionsRule(t *testing.T) {
	rule := usecase.NewMaxPositionsRule(5)
	tests := []struct {
		open int
		want domain.RiskSeverity
	}{
		{0, ""},
		{3, ""},
		{4, domain.SeverityInfo},
		{5, domain.SeverityCritical},
		{7, domain.SeverityCritical},
	}
	for _, tt := range tests {
		ctx := baseContext()
		ctx.OpenPositionsCount = tt.open
		assert.Equal(t, tt.want, severityOf(rule.Evaluate(ctx)), "open %d", tt.open)
	}
}

func TestDefaultRiskRules(t *testing.T) {
	rules := usecase.DefaultRiskRules(domain.DefaultRiskLimits())

	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name()
	}
	assert.Equal(t, []string{
		"system_state", "max_drawdown", "daily_loss_limit", "weekly_loss_limit",
		"position_size", "portfolio_exposure", "max_positions",
	}, names)

	dd, ok := rules[1].(*usecase.MaxDrawdownRule)
	require.True(t, ok)
	assert.True(t, dd.Warning.Equal(dec("10")), "warning %s", dd.Warning)
	assert.True(t, dd.Critical.Equal(dec("15")))
	assert.True(t, dd.Emergency.Equal(dec("20")))

	daily := rules[2].(*usecase.LossLimitRule)
	assert.True(t, daily.Warning.Equal(dec("3")))
	assert.True(t, daily.Critical.Equal(dec("5")))

	weekly := rules[3].(*usecase.LossLimitRule)
	assert.True(t, weekly.Warning.Equal(dec("7")))
	assert.True(t, weekly.Critical.Equal(dec("10")))

	size := rules[4].(*usecase.PositionSizeRule)
	assert.True(t, size.Info.Equal(dec("1.5")))
	assert.True(t, size.Warning.Equal(dec("2")))
	assert.True(t, size.Critical.Equal(dec("3")))

	exposure := rules[5].(*usecase.PortfolioExposureRule)
	assert.True(t, exposure.Warning.Equal(dec("30")))
	assert.True(t, exposure.High.Equal(dec("40")))
	assert.True(t, exposure.Maximum.Equal(dec("60")))

	assert.Equal(t, 5, rules[6].(*usecase.MaxPositionsRule).MaxPositions)
}

type stubRule struct {
	usecase.BaseRule
	fire     domain.RiskSeverity
	calls    *int
	panicMsg string
}

func newStubRule(name string, priority int, fire domain.RiskSeverity) *stubRule {
	return &stubRule{BaseRule: usecase.NewBaseRule(name, priority, ""), fire: fire, calls: new(int)}
}

func (r *stubRule) Evaluate(domain.RiskContext) *domain.TriggeredRule {
	*r.calls++
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	if r.fire == "" {
		return nil
	}
	return r.Trigger(r.fire, r.Name()+" fired", "act_"+r.Name())
}

func TestBaseRule_Defaults(t *testing.T) {
	rule := usecase.NewBaseRule("custom", usecase.DefaultRulePriority, "")
	assert.Equal(t, domain.SeverityWarning, rule.DefaultSeverity())
	assert.Equal(t, 200, rule.Priority())

	triggered := rule.Trigger("", "msg", "")
	assert.Equal(t, domain.SeverityWarning, triggered.Severity)
	assert.Equal(t, "custom", triggered.RuleName)

	assert.Equal(t, domain.SeverityInfo, rule.Trigger(domain.SeverityInfo, "msg", "").Severity)
}

func TestCompositeRiskRule_ShortCircuitsInPriorityOrder(t *testing.T) {
	late := newStubRule("late", 50, domain.SeverityEmergency)
	early := newStubRule("early", 5, domain.SeverityWarning)
	quiet := newStubRule("quiet", 1, "")

	composite := usecase.NewCompositeRiskRule("group", 30, late, early, quiet)

	got := composite.Evaluate(baseContext())
	require.NotNil(t, got)
	assert.Equal(t, "early", got.RuleName)
	assert.Equal(t, 1, *quiet.calls)
	assert.Equal(t, 0, *late.calls)
	assert.Equal(t, "quiet", composite.Rules()[0].Name())
	assert.Equal(t, 30, composite.Priority())
}

func TestCompositeRiskRule_NoneFire(t *testing.T) {
	composite := usecase.NewCompositeRiskRule("group", 30, newStubRule("a", 1, ""), newStubRule("b", 2, ""))
	assert.Nil(t, composite.Evaluate(baseContext()))
}
