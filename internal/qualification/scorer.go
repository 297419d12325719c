package qualification

import (
	"fmt"
	"math"
)

// Scorer turns a criteria map into a 0-100 score. Implementations are pure:
// the same schema and criteria always produce the same score.
type Scorer interface {
	Strategy() Strategy
	Score(schema Schema, criteria map[string]Criterion) int
}

// ScorerFor returns the scorer implementing strategy.
func ScorerFor(strategy Strategy) (Scorer, error) {
	switch strategy {
	case StrategyWeightedConfidence:
		return WeightedConfidenceScorer{}, nil
	case StrategyBooleanSum:
		return BooleanSumScorer{}, nil
	default:
		return nil, fmt.Errorf("qualification: no scorer for strategy %q", strategy)
	}
}

// WeightedConfidenceScorer computes
// round(100 * Σ(weight·confidence over qualified) / Σ(weight over all)).
type WeightedConfidenceScorer struct{}

func (WeightedConfidenceScorer) Strategy() Strategy { return StrategyWeightedConfidence }

func (WeightedConfidenceScorer) Score(schema Schema, criteria map[string]Criterion) int {
	var earned, total float64
	for _, def := range schema.Criteria {
		total += def.Weight
		c, ok := criteria[def.ID]
		if !ok || c.Status != StatusQualified {
			continue
		}
		earned += def.Weight * clamp(c.Confidence, 0, 1)
	}
	if total <= 0 {
		return 0
	}
	return int(clamp(math.Round(100*earned/total), 0, 100))
}

// BooleanSumScorer adds the point weight of every qualified criterion and caps
// the result at 100. Confidence is ignored.
type BooleanSumScorer struct{}

func (BooleanSumScorer) Strategy() Strategy { return StrategyBooleanSum }

func (BooleanSumScorer) Score(schema Schema, criteria map[string]Criterion) int {
	var points float64
	for _, def := range schema.Criteria {
		if c, ok := criteria[def.ID]; ok && c.Status == StatusQualified {
			points += def.Weight
		}
	}
	return int(clamp(math.Round(points), 0, 100))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
