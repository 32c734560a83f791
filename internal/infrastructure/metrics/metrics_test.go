package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/infrastructure/metrics"
)

func TestRecorder(t *testing.T) {
	r := metrics.NewRecorder()

	r.ObserveSignal(domain.Signal{Market: "BTC/USDT"}, true)
	r.ObserveSignal(domain.Signal{Market: "BTC/USDT"}, false)
	r.ObserveSignal(domain.Signal{Market: "BTC/USDT"}, true)

	decision := &domain.Decision{
		Market:     "BTC/USDT",
		Direction:  domain.DirectionLong,
		Volume:     decimal.RequireFromString("0.02"),
		EntryPrice: decimal.NewFromInt(50000),
		Status:     domain.DecisionRejected,
	}
	record := &domain.RiskRecord{
		RiskDecision: domain.RiskForceNoAction,
		TriggeredRules: []domain.TriggeredRule{
			{RuleName: "max_positions", Severity: domain.SeverityCritical},
			{RuleName: "position_size", Severity: domain.SeverityInfo},
		},
	}
	r.ObserveDecision(decision, record)
	r.ObserveCycle(1, 0.003)

	assert.Equal(t, 2, testutil.CollectAndCount(r.Registry(), "trade_gate_signals_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(r.Registry(), "trade_gate_decisions_total"))
	assert.Equal(t, 2, testutil.CollectAndCount(r.Registry(), "trade_gate_triggered_rules_total"))

	expected := `
# HELP trade_gate_risk_decisions_total Risk engine outcomes
# TYPE trade_gate_risk_decisions_total counter
trade_gate_risk_decisions_total{risk_decision="FORCE_NO_ACTION"} 1
`
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "trade_gate_risk_decisions_total"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `trade_gate_cycle_decisions 1`)
	assert.Contains(t, string(body), `trade_gate_signals_total{accepted="true",market="BTC/USDT"} 2`)
}
