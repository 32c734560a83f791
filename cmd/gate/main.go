package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vitos/crypto_trade_gate/internal/config"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/infrastructure/logger"
	"github.com/vitos/crypto_trade_gate/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gate",
		Short: "Signal confluence, position sizing and risk gating for trade decisions",
		Long: `gate turns buffered trading signals into sized trade decisions and runs
every decision through a prioritized set of risk rules before it may execute.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Configuration file path (defaults to $GATE_CONFIG or config/config.yaml)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newEvaluateCmd())
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flagPath, _ := cmd.Flags().GetString("config")
	path := config.ResolvePath(flagPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.File != "" {
		return logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	}
	return logger.NewLogger(cfg.Logging.Level)
}

// buildSession wires the decision and risk engines from configuration.
func buildSession(
	cfg *config.Config,
	decisions domain.DecisionRepository,
	records domain.RiskRecordRepository,
	observer domain.CycleObserver,
	log *zap.Logger,
) *usecase.TradingSession {
	limits := cfg.Limits()
	engine := usecase.NewDecisionEngine(
		usecase.NewSignalAggregator(cfg.Signals.MinConfidence),
		usecase.NewConfluenceChecker(cfg.ConfluenceConfig()),
		usecase.NewPositionSizer(limits),
		log,
	)
	risk := usecase.NewRiskEngine(usecase.DefaultRiskRules(limits), cfg.Reference(), log)
	return usecase.NewTradingSession(engine, risk, decisions, records, observer, log)
}
