package overseer

import (
	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/services/indicators"
)

// Factor weights of the collapse score.
const (
	weightFundamental = 0.25
	weightVolume      = 0.15
	weightSpread      = 0.15
	weightOracle      = 0.20
	weightSentiment   = 0.15
	weightTechnical   = 0.10
)

// Recommendation thresholds.
const (
	ExitThreshold    = 0.8
	ReduceThreshold  = 0.6
	MonitorThreshold = 0.4
)

// bullishDamping scales the factors of a bullish signal.
const bullishDamping = 0.5

// ScoreSignal derives the collapse assessment carried by one oracle signal.
// Every factor starts at the declared severity score; embedded sub-scores
// replace individual factors.
func ScoreSignal(sig models.OracleSignal) models.CollapseSignal {
	base := sig.Severity.Score()
	f := models.CollapseFactors{
		Fundamental: base, Volume: base, Spread: base,
		Oracle: base, Sentiment: base, Technical: base,
	}
	provided := 0
	for key, v := range sig.SubScores {
		v = indicators.Clamp01(v)
		switch key {
		case models.FactorFundamental:
			f.Fundamental = v
		case models.FactorVolume:
			f.Volume = v
		case models.FactorSpread:
			f.Spread = v
		case models.FactorOracle:
			f.Oracle = v
		case models.FactorSentiment:
			f.Sentiment = v
		case models.FactorTechnical:
			f.Technical = v
		default:
			continue
		}
		provided++
	}
	if sig.Direction == models.DirectionBullish {
		f = models.CollapseFactors{
			Fundamental: f.Fundamental * bullishDamping,
			Volume:      f.Volume * bullishDamping,
			Spread:      f.Spread * bullishDamping,
			Oracle:      f.Oracle * bullishDamping,
			Sentiment:   f.Sentiment * bullishDamping,
			Technical:   f.Technical * bullishDamping,
		}
	}

	score := CollapseScore(f)
	return models.CollapseSignal{
		Symbol:         sig.Symbol,
		Score:          score,
		Factors:        f,
		Recommendation: Recommend(score),
		Confidence:     indicators.Clamp01(0.5*sig.Strength + 0.5*float64(provided)/6),
		GeneratedAt:    sig.Timestamp,
	}
}

// CollapseScore is the weighted sum of the six factors.
func CollapseScore(f models.CollapseFactors) float64 {
	return weightFundamental*f.Fundamental +
		weightVolume*f.Volume +
		weightSpread*f.Spread +
		weightOracle*f.Oracle +
		weightSentiment*f.Sentiment +
		weightTechnical*f.Technical
}

// Recommend maps a collapse score to an action.
func Recommend(score float64) models.Recommendation {
	switch {
	case score >= ExitThreshold:
		return models.RecExitImmediately
	case score >= ReduceThreshold:
		return models.RecReduceExposure
	case score >= MonitorThreshold:
		return models.RecMonitorClosely
	default:
		return models.RecNoAction
	}
}
