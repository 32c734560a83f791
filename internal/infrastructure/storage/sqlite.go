package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			market TEXT NOT NULL,
			direction TEXT NOT NULL,
			volume TEXT NOT NULL,
			entry_price TEXT NOT NULL,
			stop_loss TEXT NOT NULL,
			take_profit TEXT NOT NULL,
			risk_amount TEXT NOT NULL,
			risk_percent TEXT NOT NULL,
			contributing_signals TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_market ON decisions(market);`,
		`CREATE TABLE IF NOT EXISTS risk_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			decision_id TEXT NOT NULL,
			risk_decision TEXT NOT NULL,
			reason TEXT NOT NULL,
			triggered_rules TEXT NOT NULL,
			recommended_action TEXT NOT NULL DEFAULT '',
			max_allowed_size TEXT,
			config_reference TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_risk_records_decision ON risk_records(decision_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// DecisionRepository Implementation

const decisionColumns = `id, market, direction, volume, entry_price, stop_loss, take_profit, risk_amount, risk_percent, contributing_signals, status, created_at`

func (s *SQLiteStore) SaveDecision(ctx context.Context, d *domain.Decision) error {
	signals, err := json.Marshal(d.ContributingSignals)
	if err != nil {
		return fmt.Errorf("encode contributing signals: %w", err)
	}
	query := `INSERT INTO decisions (` + decisionColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  volume=excluded.volume,
			  risk_amount=excluded.risk_amount,
			  risk_percent=excluded.risk_percent,
			  status=excluded.status`
	_, err = s.db.ExecContext(ctx, query,
		d.DecisionID, d.Market, d.Direction, d.Volume.String(), d.EntryPrice.String(),
		d.StopLoss.String(), d.TakeProfit.String(), d.RiskAmount.String(), d.RiskPercent.String(),
		string(signals), d.Status, d.Timestamp.UTC())
	return err
}

func (s *SQLiteStore) UpdateDecisionStatus(ctx context.Context, id string, status domain.DecisionStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE decisions SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("decision %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetDecision(ctx context.Context, id string) (*domain.Decision, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision %s: %w", id, domain.ErrNotFound)
	}
	return d, err
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, limit int) ([]*domain.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+decisionColumns+` FROM decisions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDecision(row scanner) (*domain.Decision, error) {
	var (
		d                                                    domain.Decision
		volume, entry, stop, target, riskAmount, riskPercent string
		signals                                              string
		createdAt                                            time.Time
	)
	if err := row.Scan(&d.DecisionID, &d.Market, &d.Direction, &volume, &entry, &stop, &target,
		&riskAmount, &riskPercent, &signals, &d.Status, &createdAt); err != nil {
		return nil, err
	}

	var err error
	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&d.Volume, volume}, {&d.EntryPrice, entry}, {&d.StopLoss, stop}, {&d.TakeProfit, target},
		{&d.RiskAmount, riskAmount}, {&d.RiskPercent, riskPercent},
	}
	for _, f := range fields {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("decode decision %s: %w", d.DecisionID, err)
		}
	}
	if err := json.Unmarshal([]byte(signals), &d.ContributingSignals); err != nil {
		return nil, fmt.Errorf("decode contributing signals: %w", err)
	}
	d.Timestamp = createdAt
	return &d, nil
}

// RiskRecordRepository Implementation

const riskRecordColumns = `timestamp, decision_id, risk_decision, reason, triggered_rules, recommended_action, max_allowed_size, config_reference`

func (s *SQLiteStore) SaveRiskRecord(ctx context.Context, r *domain.RiskRecord) error {
	rules, err := json.Marshal(r.TriggeredRules)
	if err != nil {
		return fmt.Errorf("encode triggered rules: %w", err)
	}
	var maxSize sql.NullString
	if r.MaxAllowedSize.Valid {
		maxSize = sql.NullString{String: r.MaxAllowedSize.Decimal.String(), Valid: true}
	}
	query := `INSERT INTO risk_records (` + riskRecordColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		r.Timestamp, r.InputDecisionID, r.RiskDecision, r.Reason, string(rules),
		r.RecommendedAction, maxSize, r.ConfigReference)
	return err
}

func (s *SQLiteStore) ListRiskRecords(ctx context.Context, limit int) ([]*domain.RiskRecord, error) {
	return s.queryRiskRecords(ctx, `SELECT `+riskRecordColumns+` FROM risk_records ORDER BY id DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) ListRiskRecordsByDecision(ctx context.Context, decisionID string) ([]*domain.RiskRecord, error) {
	return s.queryRiskRecords(ctx, `SELECT `+riskRecordColumns+` FROM risk_records WHERE decision_id = ? ORDER BY id ASC`, decisionID)
}

func (s *SQLiteStore) queryRiskRecords(ctx context.Context, query string, args ...any) ([]*domain.RiskRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.RiskRecord
	for rows.Next() {
		var (
			r       domain.RiskRecord
			rules   string
			maxSize sql.NullString
		)
		if err := rows.Scan(&r.Timestamp, &r.InputDecisionID, &r.RiskDecision, &r.Reason, &rules,
			&r.RecommendedAction, &maxSize, &r.ConfigReference); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rules), &r.TriggeredRules); err != nil {
			return nil, fmt.Errorf("decode triggered rules: %w", err)
		}
		if maxSize.Valid && strings.TrimSpace(maxSize.String) != "" {
			d, err := decimal.NewFromString(maxSize.String)
			if err != nil {
				return nil, fmt.Errorf("decode max allowed size: %w", err)
			}
			r.MaxAllowedSize = decimal.NullDecimal{Decimal: d, Valid: true}
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}
