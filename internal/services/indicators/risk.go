package indicators

import (
	"math"

	"StagAlgo/internal/domain/models"
)

const (
	// Z95 is the one-sided 95% normal quantile.
	Z95 = 1.645
	// ESMultiplier approximates expected shortfall from VaR.
	ESMultiplier = 1.2

	// Normalization ceilings for the risk-state blend.
	DrawdownCeiling      = 0.20
	ConcentrationCeiling = 0.50
	BetaDeviationCeiling = 1.0

	weightDrawdown      = 0.5
	weightConcentration = 0.3
	weightBeta          = 0.2
)

// Clamp01 bounds x to [0,1].
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// CurrentDrawdown returns the fractional decline of the last value from the
// running peak of the series.
func CurrentDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	for _, v := range equity {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return 0
	}
	dd := (peak - equity[len(equity)-1]) / peak
	if dd < 0 {
		return 0
	}
	return dd
}

// MaxDrawdown returns the largest peak-to-trough fractional decline.
func MaxDrawdown(equity []float64) float64 {
	var peak, worst float64
	for i, v := range equity {
		if i == 0 || v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// ParametricVaR95 is value × volatility × 1.645. Volatility is the horizon
// volatility as a fraction; the result is in currency units.
func ParametricVaR95(value, volatility float64) float64 {
	return math.Abs(value) * volatility * Z95
}

// ExpectedShortfall95 approximates ES as 1.2 × VaR.
func ExpectedShortfall95(var95 float64) float64 {
	return ESMultiplier * var95
}

// TopConcentration returns the largest |market value| as a fraction of equity.
func TopConcentration(positions []models.Position, equity float64) float64 {
	if equity <= 0 {
		return 0
	}
	var top float64
	for _, p := range positions {
		if v := math.Abs(p.MarketValue); v > top {
			top = v
		}
	}
	return top / equity
}

// WeightedAverage returns Σ|mv|·f(symbol) / Σ|mv| over the positions.
func WeightedAverage(positions []models.Position, f func(symbol string) float64) float64 {
	var num, den float64
	for _, p := range positions {
		w := math.Abs(p.MarketValue)
		num += w * f(p.Symbol)
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// LiquidityScore maps the weighted share of average daily volume held to
// [0,1]; holding 10% or more of ADV scores zero.
func LiquidityScore(weightedADVPct float64) float64 {
	return Clamp01(1 - weightedADVPct/10)
}

// RiskInputs are the raw inputs of the risk-state blend.
type RiskInputs struct {
	Drawdown      float64 // fraction
	Concentration float64 // fraction of equity
	BetaDeviation float64 // |beta - 1|
}

// RiskState blends normalized drawdown (50%), concentration (30%) and beta
// deviation (20%) into a 0-100 score. Each input is clamped to [0,1] after
// normalization.
func RiskState(in RiskInputs) float64 {
	dd := Clamp01(in.Drawdown / DrawdownCeiling)
	conc := Clamp01(in.Concentration / ConcentrationCeiling)
	beta := Clamp01(math.Abs(in.BetaDeviation) / BetaDeviationCeiling)
	score := 100 * (weightDrawdown*dd + weightConcentration*conc + weightBeta*beta)
	return math.Max(0, math.Min(100, score))
}

// SuggestedLevels returns a stop two ATRs and a target three ATRs away from
// price in the direction of the position. Without an ATR a percentage band
// derived from daily volatility is used.
func SuggestedLevels(price, atr, dailyVol float64, long bool) (stop, target float64) {
	risk := 2 * atr
	reward := 3 * atr
	if atr <= 0 {
		risk = price * 2 * dailyVol
		reward = price * 3 * dailyVol
	}
	if long {
		return math.Max(0, price-risk), price + reward
	}
	return price + risk, math.Max(0, price-reward)
}
