package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/vitos/crypto_trade_gate/internal/config"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"github.com/vitos/crypto_trade_gate/internal/infrastructure/storage"
	"github.com/vitos/crypto_trade_gate/internal/usecase"
)

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a single decision cycle over a scenario file and print the outcome",
		Long: `Run a single decision cycle over a YAML scenario holding a portfolio,
account figures, current prices and signals. Example:
  gate evaluate --scenario scenarios/confluence.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarioPath, _ := cmd.Flags().GetString("scenario")
			dbPath, _ := cmd.Flags().GetString("db")
			return runEvaluate(cmd, scenarioPath, dbPath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("scenario", "", "Scenario YAML file")
	cmd.Flags().String("db", "", "Optional SQLite file to persist decisions and risk records")
	if err := cmd.MarkFlagRequired("scenario"); err != nil {
		panic(err)
	}

	return cmd
}

func runEvaluate(cmd *cobra.Command, scenarioPath, dbPath string, out io.Writer) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	sc, err := config.LoadScenario(scenarioPath)
	if err != nil {
		return err
	}
	signals, err := sc.SignalsAt(time.Now())
	if err != nil {
		return err
	}

	var (
		decisions domain.DecisionRepository
		records   domain.RiskRecordRepository
	)
	if dbPath != "" {
		store, err := storage.NewSQLiteStore(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		decisions, records = store, store
	}

	session := buildSession(cfg, decisions, records, nil, log)
	for _, s := range signals {
		if !session.AddSignal(s) {
			fmt.Fprintf(out, "signal %s/%s dropped: confidence %.2f below floor\n", s.StrategyID, s.Market, s.Confidence)
		}
	}

	gated, err := session.RunCycle(context.Background(), &sc.Portfolio, sc.Account, sc.Prices)
	renderDecisions(out, gated)
	renderRiskRecords(out, gated)
	return err
}

func renderDecisions(out io.Writer, gated []usecase.GatedDecision) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Decisions")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Market", "Direction", "Volume", "Entry", "Stop", "Target", "Risk", "Risk %", "Status"})
	for _, g := range gated {
		d := g.Decision
		t.AppendRow(table.Row{
			d.Market,
			d.Direction,
			d.Volume.String(),
			d.EntryPrice.String(),
			d.StopLoss.String(),
			d.TakeProfit.String(),
			d.RiskAmount.StringFixed(2),
			d.RiskPercent.Shift(2).StringFixed(2),
			d.Status,
		})
	}
	if len(gated) == 0 {
		t.AppendRow(table.Row{"(no decisions)"})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()
}

func renderRiskRecords(out io.Writer, gated []usecase.GatedDecision) {
	if len(gated) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetTitle("Risk Records")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Market", "Outcome", "Reason", "Triggered Rules", "Action", "Max Size"})
	for _, g := range gated {
		r := g.Record
		rules := make([]string, 0, len(r.TriggeredRules))
		for _, tr := range r.TriggeredRules {
			rules = append(rules, fmt.Sprintf("%s [%s]", tr.RuleName, tr.Severity))
		}
		maxSize := "-"
		if r.MaxAllowedSize.Valid {
			maxSize = r.MaxAllowedSize.Decimal.StringFixed(2)
		}
		t.AppendRow(table.Row{
			g.Decision.Market,
			r.RiskDecision,
			r.Reason,
			strings.Join(rules, "\n"),
			r.RecommendedAction,
			maxSize,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 60},
	})
	t.Render()
}
