package usecase

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_trade_gate/internal/domain"
)

const (
	DefaultMinSignals       = 2
	DefaultTimeDecayFactor  = 0.1
	DefaultConsistencyBonus = 0.15

	outlierMinSamples = 4
	outlierIQRFactor  = 1.5
)

type ConfluenceConfig struct {
	MinSignals       int
	TimeDecayFactor  float64 // per hour
	ConsistencyBonus float64
}

func DefaultConfluenceConfig() ConfluenceConfig {
	return ConfluenceConfig{
		MinSignals:       DefaultMinSignals,
		TimeDecayFactor:  DefaultTimeDecayFactor,
		ConsistencyBonus: DefaultConsistencyBonus,
	}
}

// ConfluenceChecker turns a market's buffered signals into a single
// directional candidate when enough strategies agree.
type ConfluenceChecker struct {
	cfg ConfluenceConfig
	now func() time.Time
}

func NewConfluenceChecker(cfg ConfluenceConfig) *ConfluenceChecker {
	return &ConfluenceChecker{cfg: cfg, now: time.Now}
}

// WithClock replaces the time source used for signal ageing.
func (c *ConfluenceChecker) WithClock(now func() time.Time) *ConfluenceChecker {
	c.now = now
	return c
}

// Check returns nil when there is no qualifying consensus.
func (c *ConfluenceChecker) Check(signals []domain.Signal) *domain.TradeCandidate {
	if len(signals) < c.cfg.MinSignals {
		return nil
	}

	// Directions are ranked in first-seen order so equal-sized groups resolve
	// to the one that appeared first in the input.
	var order []domain.Direction
	groups := make(map[domain.Direction][]domain.Signal)
	for _, s := range signals {
		if s.Direction == domain.DirectionHold {
			continue
		}
		if _, ok := groups[s.Direction]; !ok {
			order = append(order, s.Direction)
		}
		groups[s.Direction] = append(groups[s.Direction], s)
	}

	var winner domain.Direction
	best := 0
	for _, d := range order {
		if n := len(groups[d]); n > best {
			winner, best = d, n
		}
	}
	if best < c.cfg.MinSignals || best == 0 {
		return nil
	}

	group := groups[winner]
	now := c.now()
	entry, stop, target := aggregateLevels(group)

	return &domain.TradeCandidate{
		Market:              group[0].Market,
		Direction:           winner,
		CombinedStrength:    CombineStrength(group, now, c.cfg.TimeDecayFactor, c.cfg.ConsistencyBonus),
		ContributingSignals: group,
		SuggestedEntry:      entry,
		SuggestedStopLoss:   stop,
		SuggestedTakeProfit: target,
		Timestamp:           now,
	}
}

// aggregateLevels averages entries, takes the lowest stop and the highest
// target. Unset (non-positive) levels are ignored. The min/max choice does not
// depend on direction.
// TODO: confirm with product whether SHORT consensus should take the highest stop and lowest target.
func aggregateLevels(signals []domain.Signal) (entry, stop, target decimal.Decimal) {
	sum := decimal.Zero
	entries := 0
	haveStop, haveTarget := false, false

	for _, s := range signals {
		if s.EntryPrice.IsPositive() {
			sum = sum.Add(s.EntryPrice)
			entries++
		}
		if s.StopLoss.IsPositive() && (!haveStop || s.StopLoss.LessThan(stop)) {
			stop, haveStop = s.StopLoss, true
		}
		if s.TakeProfit.IsPositive() && (!haveTarget || s.TakeProfit.GreaterThan(target)) {
			target, haveTarget = s.TakeProfit, true
		}
	}

	if entries > 0 {
		entry = sum.Div(decimal.NewFromInt(int64(entries)))
	}
	return entry, stop, target
}

// CombineStrength blends signal strengths into one score in [0,1]. Strength
// outliers are dropped by the IQR rule, each signal is weighted by recency
// (exponential decay per hour) and confidence, and agreement between the
// remaining strengths earns a bonus of up to consistencyBonus.
func CombineStrength(signals []domain.Signal, now time.Time, timeDecayFactor, consistencyBonus float64) float64 {
	if len(signals) == 0 {
		return 0.0
	}

	strengths := make([]float64, len(signals))
	confidences := make([]float64, len(signals))
	ages := make([]float64, len(signals))
	for i, s := range signals {
		strengths[i] = s.Strength
		confidences[i] = s.Confidence
		ages[i] = math.Max(0, now.Sub(s.Timestamp).Hours())
	}

	if len(strengths) >= outlierMinSamples {
		strengths, confidences, ages = dropOutliers(strengths, confidences, ages)
	}
	n := len(strengths)

	timeWeights := make([]float64, n)
	for i, age := range ages {
		timeWeights[i] = math.Exp(-timeDecayFactor * age)
	}
	timeWeights = normalize(timeWeights)

	confWeights := normalize(append([]float64(nil), confidences...))

	combined := make([]float64, n)
	for i := range combined {
		combined[i] = timeWeights[i] * confWeights[i]
	}
	combined = normalize(combined)

	weighted := 0.0
	for i, s := range strengths {
		weighted += s * combined[i]
	}

	if n >= 2 {
		mean, std := meanStd(strengths)
		cv := 1.0
		if mean != 0 {
			cv = std / mean
		}
		consistency := math.Max(0, 1-cv) * consistencyBonus
		weighted = math.Min(1.0, weighted+consistency)
	}

	return clamp(weighted, 0, 1)
}

// dropOutliers removes entries whose strength lies outside
// [Q1-1.5*IQR, Q3+1.5*IQR]. Filtering is skipped when fewer than two entries
// would survive.
func dropOutliers(strengths, confidences, ages []float64) ([]float64, []float64, []float64) {
	sorted := append([]float64(nil), strengths...)
	sort.Float64s(sorted)
	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1
	lower, upper := q1-outlierIQRFactor*iqr, q3+outlierIQRFactor*iqr

	var fs, fc, fa []float64
	for i, s := range strengths {
		if s >= lower && s <= upper {
			fs = append(fs, s)
			fc = append(fc, confidences[i])
			fa = append(fa, ages[i])
		}
	}
	if len(fs) < 2 {
		return strengths, confidences, ages
	}
	return fs, fc, fa
}

// percentile uses linear interpolation between closest ranks. sorted must be
// ascending and non-empty.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// normalize scales values to sum to one, falling back to uniform weights when
// the sum is not positive.
func normalize(values []float64) []float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		for i := range values {
			values[i] = 1.0 / float64(len(values))
		}
		return values
	}
	for i := range values {
		values[i] /= sum
	}
	return values
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
