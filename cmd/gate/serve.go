package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/infrastructure/feed"
	"github.com/vitos/crypto_trade_gate/internal/infrastructure/metrics"
	"github.com/vitos/crypto_trade_gate/internal/infrastructure/paper"
	"github.com/vitos/crypto_trade_gate/internal/infrastructure/storage"
	"github.com/vitos/crypto_trade_gate/internal/usecase"
	"github.com/vitos/crypto_trade_gate/internal/web"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the decision cycle against a paper account and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	// 1. Config and logger
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	// 2. Storage and metrics
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	recorder := metrics.NewRecorder()

	// 3. Session and paper account
	session := buildSession(cfg, store, store, recorder, log)
	account := paper.NewAccount(decimal.NewFromFloat(cfg.Paper.StartingCapital), domain.TradingMode(cfg.Paper.Mode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Feed
	var prices func() map[string]decimal.Decimal
	if cfg.Feed.URL != "" {
		client := feed.NewClient(cfg.Feed.URL, log)
		client.OnSignal(func(s domain.Signal) {
			session.AddSignal(s)
		})
		prices = client.Prices
		go client.Run(ctx)
	} else {
		log.Warn("No feed configured; signals arrive over HTTP only and decisions use suggested entries")
		prices = func() map[string]decimal.Decimal { return map[string]decimal.Decimal{} }
	}

	// 5. HTTP API
	server := web.NewServer(cfg.Server.Port, session, store, store, recorder.Handler(), log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Web server stopped", zap.Error(err))
			stop()
		}
	}()

	// 6. Decision cycle
	c := &cycler{session: session, account: account, store: store, prices: prices, logger: log}
	ticker := time.NewTicker(time.Duration(cfg.Cycle.IntervalMs) * time.Millisecond)
	defer ticker.Stop()

	log.Info("Gate started",
		zap.Int("port", cfg.Server.Port),
		zap.Int("cycle_interval_ms", cfg.Cycle.IntervalMs),
		zap.String("config_reference", cfg.Reference()))

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// statusUpdater is the part of the store the cycle needs after execution.
type statusUpdater interface {
	UpdateDecisionStatus(ctx context.Context, id string, status domain.DecisionStatus) error
}

type cycler struct {
	session *usecase.TradingSession
	account *paper.Account
	store   statusUpdater
	prices  func() map[string]decimal.Decimal
	logger  *zap.Logger
}

// tick marks the account to market, runs one cycle and executes what the
// risk engine approved. While the session is in emergency the paper account
// is flattened instead.
func (c *cycler) tick(ctx context.Context) []usecase.GatedDecision {
	prices := c.prices()
	if closed := c.account.MarkToMarket(prices); len(closed) > 0 {
		c.logger.Info("Positions closed at exit level", zap.Strings("markets", closed))
	}

	portfolio, stats := c.account.Snapshot()
	gated, err := c.session.RunCycle(ctx, portfolio, stats, prices)
	if err != nil {
		c.logger.Error("Cycle completed with errors", zap.Error(err))
	}

	if c.session.Status().State == domain.SystemEmergency {
		if n := c.account.CloseAll(); n > 0 {
			c.logger.Error("Emergency stop: flattened paper account", zap.Int("closed", n))
		}
		return gated
	}

	for _, g := range gated {
		if !g.Approved() {
			continue
		}
		if err := c.account.Execute(g.Decision); err != nil {
			c.logger.Warn("Paper execution refused", zap.String("decision_id", g.Decision.DecisionID), zap.Error(err))
			continue
		}
		if err := c.store.UpdateDecisionStatus(ctx, g.Decision.DecisionID, domain.DecisionExecuted); err != nil {
			c.logger.Error("Failed to mark decision executed", zap.String("decision_id", g.Decision.DecisionID), zap.Error(err))
		}
	}
	return gated
}
