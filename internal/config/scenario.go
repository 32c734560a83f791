package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
	"gopkg.in/yaml.v3"
)

// Scenario is a one-shot evaluation input for `gate evaluate`.
type Scenario struct {
	Portfolio domain.PortfolioState      `yaml:"portfolio"`
	Account   domain.AccountStats        `yaml:"account"`
	Prices    map[string]decimal.Decimal `yaml:"prices"`
	Signals   []ScenarioSignal           `yaml:"signals"`
}

// ScenarioSignal is a signal whose age is given relative to evaluation time.
type ScenarioSignal struct {
	domain.Signal `yaml:",inline"`
	AgeMinutes    float64 `yaml:"age_minutes"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if sc.Portfolio.Positions == nil {
		sc.Portfolio.Positions = make(map[string]*domain.Position)
	}
	if sc.Portfolio.AvailableCapital.IsZero() {
		sc.Portfolio.AvailableCapital = sc.Portfolio.TotalCapital
	}
	return &sc, nil
}

// SignalsAt materialises the scenario signals with timestamps relative to
// now, validating each one.
func (s *Scenario) SignalsAt(now time.Time) ([]domain.Signal, error) {
	out := make([]domain.Signal, 0, len(s.Signals))
	for i, ss := range s.Signals {
		sig := ss.Signal
		if sig.Timestamp.IsZero() {
			sig.Timestamp = now.Add(-time.Duration(ss.AgeMinutes * float64(time.Minute)))
		}
		if err := sig.Validate(); err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		out = append(out, sig)
	}
	return out, nil
}
