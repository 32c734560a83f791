package usecase

import (
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"go.uber.org/zap"
)

// DecisionEngine runs one evaluation cycle over every market with pending
// signals: confluence, then sizing.
type DecisionEngine struct {
	aggregator *SignalAggregator
	confluence *ConfluenceChecker
	sizer      *PositionSizer
	logger     *zap.Logger
}

func NewDecisionEngine(
	aggregator *SignalAggregator,
	confluence *ConfluenceChecker,
	sizer *PositionSizer,
	logger *zap.Logger,
) *DecisionEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecisionEngine{
		aggregator: aggregator,
		confluence: confluence,
		sizer:      sizer,
		logger:     logger,
	}
}

// AddSignal buffers a signal, subject to the aggregator's confidence floor.
func (e *DecisionEngine) AddSignal(signal domain.Signal) bool {
	accepted := e.aggregator.Add(signal)
	if !accepted {
		e.logger.Debug("Signal dropped below confidence floor",
			zap.String("strategy", signal.StrategyID),
			zap.String("market", signal.Market),
			zap.Float64("confidence", signal.Confidence))
	}
	return accepted
}

func (e *DecisionEngine) PendingSignals() int {
	return e.aggregator.Count()
}

// Process produces sized decisions for markets without an open position.
// Buffered signals are consumed by the call whatever the outcome. Without a
// portfolio nothing can be sized and no decisions are returned.
func (e *DecisionEngine) Process(portfolio *domain.PortfolioState, currentPrices map[string]decimal.Decimal) []*domain.Decision {
	defer e.aggregator.Clear()

	if portfolio == nil {
		e.logger.Warn("No portfolio snapshot, dropping buffered signals", zap.Int("signals", e.aggregator.Count()))
		return nil
	}

	snapshot := e.aggregator.GetAll()
	var decisions []*domain.Decision

	for _, market := range e.aggregator.Markets() {
		signals := snapshot[market]
		log := e.logger.With(zap.String("market", market), zap.Int("signals", len(signals)))

		if portfolio.HasPosition(market) {
			log.Debug("Skipping market with open position")
			continue
		}

		candidate := e.confluence.Check(signals)
		if candidate == nil {
			log.Debug("No confluence")
			continue
		}

		price, ok := currentPrices[market]
		if !ok || !price.IsPositive() {
			price = candidate.SuggestedEntry
		}
		if !price.IsPositive() {
			log.Warn("No usable price for candidate")
			continue
		}

		decision := e.sizer.Calculate(candidate, portfolio, price)
		if !decision.Volume.IsPositive() {
			log.Info("Sized volume is zero, dropping candidate",
				zap.String("direction", string(candidate.Direction)),
				zap.Float64("strength", candidate.CombinedStrength))
			continue
		}

		log.Info("Decision created",
			zap.String("decision_id", decision.DecisionID),
			zap.String("direction", string(decision.Direction)),
			zap.String("volume", decision.Volume.String()),
			zap.String("entry", decision.EntryPrice.String()),
			zap.Float64("strength", candidate.CombinedStrength))
		decisions = append(decisions, decision)
	}

	return decisions
}

// Clear drops all buffered signals.
func (e *DecisionEngine) Clear() {
	e.aggregator.Clear()
}
