package paper_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/infrastructure/paper"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func approved(market string, dir domain.Direction, volume, entry, stop, target string) *domain.Decision {
	return &domain.Decision{
		DecisionID: market + "-1",
		Market:     market,
		Direction:  dir,
		Volume:     d(volume),
		EntryPrice: d(entry),
		StopLoss:   d(stop),
		TakeProfit: d(target),
		Status:     domain.DecisionApproved,
	}
}

func TestAccount_ExecuteAndSnapshot(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	acct := paper.NewAccount(d("10000"), domain.ModePaper).WithClock(func() time.Time { return now })

	decision := approved("BTC/USDT", domain.DirectionLong, "0.02", "50000", "48000", "55000")
	require.NoError(t, acct.Execute(decision))
	assert.Equal(t, domain.DecisionExecuted, decision.Status)

	portfolio, stats := acct.Snapshot()
	assert.True(t, portfolio.TotalCapital.Equal(d("10000")))
	assert.True(t, portfolio.AvailableCapital.Equal(d("9000")))
	assert.True(t, portfolio.PositionsValue.Equal(d("1000")))
	assert.True(t, portfolio.HasPosition("BTC/USDT"))
	assert.Equal(t, domain.ModePaper, stats.Mode)
	assert.True(t, stats.DailyPnL.IsZero())
	assert.Equal(t, now, portfolio.Positions["BTC/USDT"].OpenedAt)
}

func TestAccount_ExecuteRefusals(t *testing.T) {
	acct := paper.NewAccount(d("1000"), domain.ModePaper)

	pending := approved("BTC/USDT", domain.DirectionLong, "0.01", "50000", "0", "0")
	pending.Status = domain.DecisionPending
	assert.Error(t, acct.Execute(pending), "pending decisions are not executable")

	hold := approved("BTC/USDT", domain.DirectionHold, "0.01", "50000", "0", "0")
	assert.Error(t, acct.Execute(hold))

	tooBig := approved("BTC/USDT", domain.DirectionLong, "1", "50000", "0", "0")
	assert.Error(t, acct.Execute(tooBig))

	first := approved("ETH/USDT", domain.DirectionLong, "0.1", "3000", "0", "0")
	require.NoError(t, acct.Execute(first))
	second := approved("ETH/USDT", domain.DirectionLong, "0.1", "3000", "0", "0")
	assert.Error(t, acct.Execute(second), "one position per market")
}

func TestAccount_MarkToMarketClosesAtExitLevels(t *testing.T) {
	acct := paper.NewAccount(d("10000"), domain.ModePaper)
	require.NoError(t, acct.Execute(approved("BTC/USDT", domain.DirectionLong, "0.02", "50000", "48000", "55000")))
	require.NoError(t, acct.Execute(approved("ETH/USDT", domain.DirectionShort, "1", "3000", "3200", "2500")))

	closed := acct.MarkToMarket(map[string]decimal.Decimal{"BTC/USDT": d("51000"), "ETH/USDT": d("3100")})
	assert.Empty(t, closed)

	portfolio, _ := acct.Snapshot()
	assert.True(t, portfolio.Positions["BTC/USDT"].UnrealizedPnL.Equal(d("20")))
	assert.True(t, portfolio.Positions["ETH/USDT"].UnrealizedPnL.Equal(d("-100")))
	assert.True(t, portfolio.TotalCapital.Equal(d("9920")))

	closed = acct.MarkToMarket(map[string]decimal.Decimal{"ETH/USDT": d("3200")})
	assert.Equal(t, []string{"ETH/USDT"}, closed)
	assert.True(t, acct.RealizedPnL().Equal(d("-200")))

	closed = acct.MarkToMarket(map[string]decimal.Decimal{"BTC/USDT": d("55000")})
	assert.Equal(t, []string{"BTC/USDT"}, closed)
	assert.True(t, acct.RealizedPnL().Equal(d("-100")))

	portfolio, stats := acct.Snapshot()
	assert.Empty(t, portfolio.Positions)
	assert.True(t, portfolio.TotalCapital.Equal(d("9900")))
	assert.True(t, stats.PeakPortfolioValue.Equal(d("10000")))
	assert.InDelta(t, 0.01, portfolio.CurrentDrawdown, 1e-9)
}

func TestAccount_CloseAndCloseAll(t *testing.T) {
	acct := paper.NewAccount(d("10000"), domain.ModePaper)
	require.NoError(t, acct.Execute(approved("BTC/USDT", domain.DirectionLong, "0.02", "50000", "0", "0")))
	require.NoError(t, acct.Execute(approved("ETH/USDT", domain.DirectionLong, "1", "3000", "0", "0")))

	assert.ErrorIs(t, acct.Close("SOL/USDT", d("100")), domain.ErrNotFound)
	require.NoError(t, acct.Close("BTC/USDT", d("51000")))
	assert.True(t, acct.RealizedPnL().Equal(d("20")))

	acct.MarkToMarket(map[string]decimal.Decimal{"ETH/USDT": d("2900")})
	assert.Equal(t, 1, acct.CloseAll())
	assert.True(t, acct.RealizedPnL().Equal(d("-80")))

	portfolio, _ := acct.Snapshot()
	assert.True(t, portfolio.AvailableCapital.Equal(d("9920")))
}

func TestAccount_DailyAndWeeklyPnLReset(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	acct := paper.NewAccount(d("10000"), domain.ModePaper).WithClock(func() time.Time { return now })
	acct.Snapshot()

	require.NoError(t, acct.Execute(approved("BTC/USDT", domain.DirectionLong, "0.02", "50000", "0", "0")))
	require.NoError(t, acct.Close("BTC/USDT", d("45000")))

	_, stats := acct.Snapshot()
	assert.True(t, stats.DailyPnL.Equal(d("-100")), "daily %s", stats.DailyPnL)
	assert.True(t, stats.WeeklyPnL.Equal(d("-100")))

	now = now.Add(24 * time.Hour)
	_, stats = acct.Snapshot()
	assert.True(t, stats.DailyPnL.IsZero(), "new day starts flat")
	assert.True(t, stats.WeeklyPnL.Equal(d("-100")), "same ISO week")
}
