package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/usecase"
)

func newChecker() *usecase.ConfluenceChecker {
	return usecase.NewConfluenceChecker(usecase.DefaultConfluenceConfig()).WithClock(fixedClock)
}

func withLevels(s domain.Signal, entry, stop, target string) domain.Signal {
	s.EntryPrice = dec(entry)
	s.StopLoss = dec(stop)
	s.TakeProfit = dec(target)
	return s
}

func TestConfluenceChecker_AggregatesLevels(t *testing.T) {
	signals := []domain.Signal{
		withLevels(newSignal("momentum", "BTC/USDT", domain.DirectionLong, 0.8, 0.7), "50000", "48000", "55000"),
		withLevels(newSignal("breakout", "BTC/USDT", domain.DirectionLong, 0.7, 0.8), "50200", "48200", "54800"),
	}

	candidate := newChecker().Check(signals)
	require.NotNil(t, candidate)

	assert.Equal(t, domain.DirectionLong, candidate.Direction)
	assert.Equal(t, "BTC/USDT", candidate.Market)
	assert.True(t, candidate.SuggestedEntry.Equal(dec("50100")), "entry %s", candidate.SuggestedEntry)
	assert.True(t, candidate.SuggestedStopLoss.Equal(dec("48000")), "stop %s", candidate.SuggestedStopLoss)
	assert.True(t, candidate.SuggestedTakeProfit.Equal(dec("55000")), "target %s", candidate.SuggestedTakeProfit)
	assert.Equal(t, testNow, candidate.Timestamp)
	assert.Len(t, candidate.ContributingSignals, 2)
	assert.Equal(t, "momentum", candidate.ContributingSignals[0].StrategyID)
}

func TestConfluenceChecker_UnsetLevelsAreIgnored(t *testing.T) {
	a := withLevels(newSignal("a", "ETH/USDT", domain.DirectionLong, 0.6, 0.6), "3000", "0", "0")
	b := newSignal("b", "ETH/USDT", domain.DirectionLong, 0.6, 0.6)

	candidate := newChecker().Check([]domain.Signal{a, b})
	require.NotNil(t, candidate)
	assert.True(t, candidate.SuggestedEntry.Equal(dec("3000")))
	assert.True(t, candidate.SuggestedStopLoss.IsZero())
	assert.True(t, candidate.SuggestedTakeProfit.IsZero())
}

func TestConfluenceChecker_NoConsensus(t *testing.T) {
	tests := []struct {
		name    string
		signals []domain.Signal
	}{
		{"empty", nil},
		{"below min signals", []domain.Signal{
			newSignal("a", "BTC/USDT", domain.DirectionLong, 0.9, 0.9),
		}},
		{"hold only", []domain.Signal{
			newSignal("a", "BTC/USDT", domain.DirectionHold, 0.9, 0.9),
			newSignal("b", "BTC/USDT", domain.DirectionHold, 0.9, 0.9),
			newSignal("c", "BTC/USDT", domain.DirectionHold, 0.9, 0.9),
		}},
		{"split directions", []domain.Signal{
			newSignal("a", "BTC/USDT", domain.DirectionLong, 0.9, 0.9),
			newSignal("b", "BTC/USDT", domain.DirectionShort, 0.9, 0.9),
		}},
		{"hold does not count towards a group", []domain.Signal{
			newSignal("a", "BTC/USDT", domain.DirectionLong, 0.9, 0.9),
			newSignal("b", "BTC/USDT", domain.DirectionHold, 0.9, 0.9),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, newChecker().Check(tt.signals))
		})
	}
}

func TestConfluenceChecker_TieGoesToFirstSeenDirection(t *testing.T) {
	signals := []domain.Signal{
		newSignal("a", "BTC/USDT", domain.DirectionShort, 0.6, 0.6),
		newSignal("b", "BTC/USDT", domain.DirectionLong, 0.6, 0.6),
		newSignal("c", "BTC/USDT", domain.DirectionLong, 0.6, 0.6),
		newSignal("d", "BTC/USDT", domain.DirectionShort, 0.6, 0.6),
	}

	for i := 0; i < 20; i++ {
		candidate := newChecker().Check(signals)
		require.NotNil(t, candidate)
		assert.Equal(t, domain.DirectionShort, candidate.Direction)
	}
}

func TestConfluenceChecker_LargestGroupWins(t *testing.T) {
	signals := []domain.Signal{
		newSignal("a", "BTC/USDT", domain.DirectionShort, 0.6, 0.6),
		newSignal("b", "BTC/USDT", domain.DirectionShort, 0.6, 0.6),
		newSignal("c", "BTC/USDT", domain.DirectionLong, 0.6, 0.6),
		newSignal("d", "BTC/USDT", domain.DirectionLong, 0.6, 0.6),
		newSignal("e", "BTC/USDT", domain.DirectionLong, 0.6, 0.6),
	}

	candidate := newChecker().Check(signals)
	require.NotNil(t, candidate)
	assert.Equal(t, domain.DirectionLong, candidate.Direction)
	assert.Len(t, candidate.ContributingSignals, 3)
}

func TestCombineStrength_Empty(t *testing.T) {
	if got := usecase.CombineStrength(nil, testNow, 0.1, 0.15); got != 0.0 {
		t.Errorf("CombineStrength(nil) = %v, want 0", got)
	}
}

func TestCombineStrength_SingleSignalIsItsStrength(t *testing.T) {
	got := usecase.CombineStrength([]domain.Signal{newSignal("a", "X", domain.DirectionLong, 0.42, 0.9)}, testNow, 0.1, 0.15)
	assert.InDelta(t, 0.42, got, 1e-9)
}

func TestCombineStrength_IdenticalSignalsEarnFullBonus(t *testing.T) {
	signals := []domain.Signal{
		newSignal("a", "X", domain.DirectionLong, 0.6, 0.5),
		newSignal("b", "X", domain.DirectionLong, 0.6, 0.9),
	}
	// cv is zero, so the whole bonus is added.
	assert.InDelta(t, 0.75, usecase.CombineStrength(signals, testNow, 0.1, 0.15), 1e-9)
}

func TestCombineStrength_ClampedToOne(t *testing.T) {
	signals := []domain.Signal{
		newSignal("a", "X", domain.DirectionLong, 0.95, 0.9),
		newSignal("b", "X", domain.DirectionLong, 0.95, 0.9),
	}
	assert.Equal(t, 1.0, usecase.CombineStrength(signals, testNow, 0.1, 0.15))
}

func TestCombineStrength_ZeroConfidenceFallsBackToUniform(t *testing.T) {
	signals := []domain.Signal{
		newSignal("a", "X", domain.DirectionLong, 0.2, 0),
		newSignal("b", "X", domain.DirectionLong, 0.6, 0),
	}
	assert.InDelta(t, 0.4, usecase.CombineStrength(signals, testNow, 0.1, 0), 1e-9)
	// cv is 0.5, so half the bonus is added.
	assert.InDelta(t, 0.475, usecase.CombineStrength(signals, testNow, 0.1, 0.15), 1e-9)
}

func TestCombineStrength_RecentSignalsWeighMore(t *testing.T) {
	old := newSignal("old", "X", domain.DirectionLong, 0.2, 0.5)
	old.Timestamp = testNow.Add(-24 * time.Hour)
	fresh := newSignal("fresh", "X", domain.DirectionLong, 0.8, 0.5)

	got := usecase.CombineStrength([]domain.Signal{old, fresh}, testNow, 0.1, 0)
	assert.Greater(t, got, 0.5)
}

func TestCombineStrength_FutureTimestampsAreAgeZero(t *testing.T) {
	a := newSignal("a", "X", domain.DirectionLong, 0.3, 0.5)
	a.Timestamp = testNow.Add(time.Hour)
	b := newSignal("b", "X", domain.DirectionLong, 0.7, 0.5)

	assert.InDelta(t, 0.5, usecase.CombineStrength([]domain.Signal{a, b}, testNow, 0.1, 0), 1e-9)
}

func TestCombineStrength_DropsOutliers(t *testing.T) {
	signals := []domain.Signal{
		newSignal("a", "X", domain.DirectionLong, 0.60, 0.5),
		newSignal("b", "X", domain.DirectionLong, 0.62, 0.5),
		newSignal("c", "X", domain.DirectionLong, 0.61, 0.5),
		newSignal("d", "X", domain.DirectionLong, 0.63, 0.5),
		newSignal("e", "X", domain.DirectionLong, 0.0, 0.5),
	}
	// Without filtering the zero-strength signal would pull the mean to ~0.49.
	got := usecase.CombineStrength(signals, testNow, 0.1, 0)
	assert.InDelta(t, 0.615, got, 1e-9)
}

func TestCombineStrength_AlwaysInUnitRange(t *testing.T) {
	strengths := [][]float64{
		{0, 0},
		{1, 1, 1, 1},
		{0, 1},
		{0.1, 0.9, 0.5, 0.3, 0.7},
		{0, 0, 0, 1},
	}
	for _, set := range strengths {
		var signals []domain.Signal
		for i, s := range set {
			sig := newSignal("s", "X", domain.DirectionLong, s, float64(i%2))
			sig.Timestamp = testNow.Add(-time.Duration(i) * time.Hour)
			signals = append(signals, sig)
		}
		got := usecase.CombineStrength(signals, testNow, 0.1, 0.15)
		assert.GreaterOrEqual(t, got, 0.0, "strengths %v", set)
		assert.LessOrEqual(t, got, 1.0, "strengths %v", set)
	}
}
