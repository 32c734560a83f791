package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"go.uber.org/zap"
)

// ErrNoPortfolio is returned by RunCycle when no portfolio snapshot is given.
var ErrNoPortfolio = errors.New("no portfolio snapshot")

// GatedDecision pairs a decision with the risk record that decided its fate.
type GatedDecision struct {
	Decision *domain.Decision   `json:"decision"`
	Record   *domain.RiskRecord `json:"risk_record"`
}

func (g GatedDecision) Approved() bool {
	return g.Decision.Status == domain.DecisionApproved
}

// TradingSession owns one DecisionEngine and one RiskEngine and serializes
// every access to them. Signal intake, cycles and state changes may come from
// different goroutines.
type TradingSession struct {
	engine    *DecisionEngine
	risk      *RiskEngine
	decisions domain.DecisionRepository
	records   domain.RiskRecordRepository
	observer  domain.CycleObserver
	logger    *zap.Logger

	mu         sync.Mutex
	state      domain.SystemState
	haltReason string
	lastCycle  time.Time
}

func NewTradingSession(
	engine *DecisionEngine,
	risk *RiskEngine,
	decisions domain.DecisionRepository,
	records domain.RiskRecordRepository,
	observer domain.CycleObserver,
	logger *zap.Logger,
) *TradingSession {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradingSession{
		engine:    engine,
		risk:      risk,
		decisions: decisions,
		records:   records,
		observer:  observer,
		logger:    logger,
		state:     domain.SystemRunning,
	}
}

// AddSignal buffers a signal for the next cycle and reports whether it passed
// the confidence floor.
func (s *TradingSession) AddSignal(signal domain.Signal) bool {
	s.mu.Lock()
	accepted := s.engine.AddSignal(signal)
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.ObserveSignal(signal, accepted)
	}
	return accepted
}

func (s *TradingSession) PendingSignals() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.PendingSignals()
}

// ClearSignals cancels everything buffered for the next cycle.
func (s *TradingSession) ClearSignals() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Clear()
}

// Halt pauses trading; later decisions are rejected until Resume.
func (s *TradingSession) Halt(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = domain.SystemPaused
	s.haltReason = reason
	s.logger.Warn("Trading halted", zap.String("reason", reason))
}

// Resume clears a halt or an emergency stop.
func (s *TradingSession) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.Info("Trading resumed", zap.String("previous_state", string(s.state)))
	s.state = domain.SystemRunning
	s.haltReason = ""
}

type SessionStatus struct {
	State          domain.SystemState `json:"state"`
	HaltReason     string             `json:"halt_reason,omitempty"`
	PendingSignals int                `json:"pending_signals"`
	LastCycle      time.Time          `json:"last_cycle"`
	Rules          []string           `json:"rules"`
}

func (s *TradingSession) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := s.risk.Rules()
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name()
	}
	return SessionStatus{
		State:          s.state,
		HaltReason:     s.haltReason,
		PendingSignals: s.engine.PendingSignals(),
		LastCycle:      s.lastCycle,
		Rules:          names,
	}
}

// RunCycle checks the portfolio on its own, then turns buffered signals into
// decisions and gates each through the risk engine. Decisions approved earlier in the cycle count as open
// positions for later ones. Persistence errors do not stop the cycle; they
// are returned together at the end.
func (s *TradingSession) RunCycle(
	ctx context.Context,
	portfolio *domain.PortfolioState,
	account domain.AccountStats,
	prices map[string]decimal.Decimal,
) ([]GatedDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if portfolio == nil {
		s.engine.Clear()
		return nil, ErrNoPortfolio
	}

	start := time.Now()
	working := clonePortfolio(portfolio)

	var (
		gated []GatedDecision
		errs  []error
	)
	if err := s.checkPortfolio(ctx, working, account); err != nil {
		errs = append(errs, err)
	}

	decisions := s.engine.Process(working, prices)
	for _, decision := range decisions {
		account.SystemState = s.state
		riskCtx := BuildRiskContext(working, account, decision)
		record := s.risk.Evaluate(riskCtx, decision.DecisionID)

		s.apply(decision, record)
		if decision.Status == domain.DecisionApproved {
			reserve(working, decision)
		}

		if err := s.persist(ctx, decision, record); err != nil {
			errs = append(errs, err)
		}
		if s.observer != nil {
			s.observer.ObserveDecision(decision, record)
		}
		gated = append(gated, GatedDecision{Decision: decision, Record: record})
	}

	s.lastCycle = time.Now()
	if s.observer != nil {
		s.observer.ObserveCycle(len(decisions), time.Since(start).Seconds())
	}
	return gated, errors.Join(errs...)
}

// checkPortfolio evaluates the portfolio without a proposed trade, so an
// emergency is latched even in cycles that size no decision. Only the record
// that engages the emergency is persisted.
func (s *TradingSession) checkPortfolio(ctx context.Context, portfolio *domain.PortfolioState, account domain.AccountStats) error {
	account.SystemState = s.state
	record := s.risk.Evaluate(BuildRiskContext(portfolio, account, nil), "")
	if record.RiskDecision != domain.RiskEmergencyStop || s.state == domain.SystemEmergency {
		return nil
	}

	s.state = domain.SystemEmergency
	s.haltReason = record.Reason
	s.logger.Error("Emergency stop engaged by portfolio check",
		zap.String("reason", record.Reason),
		zap.String("action", record.RecommendedAction))

	if s.records == nil {
		return nil
	}
	if err := s.records.SaveRiskRecord(ctx, record); err != nil {
		s.logger.Error("Failed to save portfolio risk record", zap.Error(err))
		return fmt.Errorf("save portfolio risk record: %w", err)
	}
	return nil
}

// apply moves the decision out of PENDING according to the risk outcome.
func (s *TradingSession) apply(decision *domain.Decision, record *domain.RiskRecord) {
	log := s.logger.With(
		zap.String("decision_id", decision.DecisionID),
		zap.String("market", decision.Market),
		zap.String("risk_decision", string(record.RiskDecision)))

	switch record.RiskDecision {
	case domain.RiskEmergencyStop:
		decision.Status = domain.DecisionRejected
		if s.state != domain.SystemEmergency {
			s.state = domain.SystemEmergency
			s.haltReason = record.Reason
			log.Error("Emergency stop engaged", zap.String("reason", record.Reason))
		}
	case domain.RiskForceNoAction:
		decision.Status = domain.DecisionRejected
	case domain.RiskReduceSize:
		ShrinkDecision(decision, record.MaxAllowedSize.Decimal)
		if decision.Volume.IsPositive() {
			decision.Status = domain.DecisionApproved
		} else {
			decision.Status = domain.DecisionRejected
		}
		log.Info("Decision size reduced", zap.String("volume", decision.Volume.String()))
	default:
		decision.Status = domain.DecisionApproved
	}
}

// ShrinkDecision scales the decision down so its notional does not exceed
// maxNotional. Risk figures scale by the same ratio.
func ShrinkDecision(decision *domain.Decision, maxNotional decimal.Decimal) {
	notional := decision.Notional()
	if !notional.GreaterThan(maxNotional) || !decision.EntryPrice.IsPositive() || !decision.Volume.IsPositive() {
		return
	}
	oldVolume := decision.Volume
	newVolume := decimal.Max(decimal.Zero, maxNotional).Div(decision.EntryPrice).Truncate(volumePrecision)
	ratio := newVolume.Div(oldVolume)

	decision.Volume = newVolume
	decision.RiskAmount = decision.RiskAmount.Mul(ratio)
	decision.RiskPercent = decision.RiskPercent.Mul(ratio)
}

func (s *TradingSession) persist(ctx context.Context, decision *domain.Decision, record *domain.RiskRecord) error {
	var errs []error
	if s.decisions != nil {
		if err := s.decisions.SaveDecision(ctx, decision); err != nil {
			s.logger.Error("Failed to save decision", zap.String("decision_id", decision.DecisionID), zap.Error(err))
			errs = append(errs, fmt.Errorf("save decision %s: %w", decision.DecisionID, err))
		}
	}
	if s.records != nil {
		if err := s.records.SaveRiskRecord(ctx, record); err != nil {
			s.logger.Error("Failed to save risk record", zap.String("decision_id", decision.DecisionID), zap.Error(err))
			errs = append(errs, fmt.Errorf("save risk record %s: %w", decision.DecisionID, err))
		}
	}
	return errors.Join(errs...)
}

// clonePortfolio copies the portfolio for one cycle. A zero PositionsValue is
// filled from the positions so the sizer, the risk context and in-cycle
// reservations all start from the same exposure.
func clonePortfolio(p *domain.PortfolioState) *domain.PortfolioState {
	clone := *p
	clone.Positions = make(map[string]*domain.Position, len(p.Positions))
	for market, pos := range p.Positions {
		clone.Positions[market] = pos
	}
	if clone.PositionsValue.IsZero() {
		clone.PositionsValue = clone.TotalPositionsValue()
	}
	return &clone
}

// reserve books an approved decision into the working portfolio so that the
// rest of the cycle sees its exposure.
func reserve(p *domain.PortfolioState, d *domain.Decision) {
	notional := d.Notional()
	p.Positions[d.Market] = &domain.Position{
		Market:     d.Market,
		Direction:  d.Direction,
		Volume:     d.Volume,
		EntryPrice: d.EntryPrice,
		DecisionID: d.DecisionID,
		OpenedAt:   d.Timestamp,
	}
	p.PositionsValue = p.PositionsValue.Add(notional)
	p.AvailableCapital = p.AvailableCapital.Sub(notional)
}
