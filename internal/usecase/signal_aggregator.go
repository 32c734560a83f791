package usecase

import "github.com/vitos/crypto_trade_gate/internal/domain"

// SignalAggregator buffers signals per market until the next decision cycle.
// It is not safe for concurrent use; TradingSession serializes access.
type SignalAggregator struct {
	minConfidence float64
	markets       []string // insertion order
	signals       map[string][]domain.Signal
	count         int
}

func NewSignalAggregator(minConfidence float64) *SignalAggregator {
	return &SignalAggregator{
		minConfidence: minConfidence,
		signals:       make(map[string][]domain.Signal),
	}
}

// Add buffers the signal and reports whether it was kept. Signals below the
// confidence floor are dropped.
func (a *SignalAggregator) Add(signal domain.Signal) bool {
	if signal.Confidence < a.minConfidence {
		return false
	}
	if _, ok := a.signals[signal.Market]; !ok {
		a.markets = append(a.markets, signal.Market)
	}
	a.signals[signal.Market] = append(a.signals[signal.Market], signal)
	a.count++
	return true
}

// Get returns a copy of the market's buffered signals.
func (a *SignalAggregator) Get(market string) []domain.Signal {
	buf := a.signals[market]
	out := make([]domain.Signal, len(buf))
	copy(out, buf)
	return out
}

// GetAll returns a snapshot that later mutations do not affect.
func (a *SignalAggregator) GetAll() map[string][]domain.Signal {
	snapshot := make(map[string][]domain.Signal, len(a.signals))
	for market := range a.signals {
		snapshot[market] = a.Get(market)
	}
	return snapshot
}

// Markets returns the buffered markets in first-seen order.
func (a *SignalAggregator) Markets() []string {
	out := make([]string, len(a.markets))
	copy(out, a.markets)
	return out
}

func (a *SignalAggregator) Clear() {
	a.markets = nil
	a.signals = make(map[string][]domain.Signal)
	a.count = 0
}

func (a *SignalAggregator) Count() int {
	return a.count
}
