package search

import (
	"hash/fnv"
	"math"

	"StagAlgo/internal/domain/models"
)

// Feature names of a symbol vector.
const (
	FeatureMomentum  = "momentum"
	FeatureValue     = "value"
	FeatureQuality   = "quality"
	FeatureStability = "stability"
	FeatureLiquidity = "liquidity"
	FeatureSignal    = "signal"
)

var vectorFeatures = []string{FeatureMomentum, FeatureValue, FeatureQuality, FeatureStability, FeatureLiquidity}

// keywords maps query words to the feature they ask for.
var keywords = map[string]string{
	"momentum": FeatureMomentum, "trending": FeatureMomentum, "breakout": FeatureMomentum,
	"value": FeatureValue, "cheap": FeatureValue, "undervalued": FeatureValue,
	"quality": FeatureQuality, "profitable": FeatureQuality,
	"stable": FeatureStability, "defensive": FeatureStability, "lowvol": FeatureStability,
	"liquid": FeatureLiquidity, "liquidity": FeatureLiquidity,
	"bullish": FeatureSignal, "signal": FeatureSignal,
}

// mockFeatures returns a deterministic vector in [0,1] per feature. It
// stands in for a fundamentals provider.
func mockFeatures(symbol string) map[string]float64 {
	out := make(map[string]float64, len(vectorFeatures)+1)
	for _, f := range vectorFeatures {
		h := fnv.New64a()
		_, _ = h.Write([]byte(symbol + "/" + f))
		out[f] = float64(h.Sum64()%10001) / 10000
	}
	return out
}

// blendIndicators folds live indicators into the mocked vector.
func blendIndicators(f map[string]float64, snap models.IndicatorSnapshot) {
	if snap.RSI14 > 0 {
		f[FeatureMomentum] = 0.5*f[FeatureMomentum] + 0.5*snap.RSI14/100
	}
	if snap.ATR14 > 0 && snap.MA20 > 0 {
		atrPct := snap.ATR14 / snap.MA20
		f[FeatureStability] = 0.5*f[FeatureStability] + 0.5*math.Max(0, 1-atrPct*20)
	}
}

// signalScore maps net signal direction to [0,1]; 0.5 is neutral.
func signalScore(signals []models.OracleSignal) (score float64, bullish, bearish int) {
	net := 0.0
	for _, s := range signals {
		switch s.Direction {
		case models.DirectionBullish:
			net += s.Strength
			bullish++
		case models.DirectionBearish:
			net -= s.Strength
			bearish++
		}
	}
	return (math.Tanh(net) + 1) / 2, bullish, bearish
}
