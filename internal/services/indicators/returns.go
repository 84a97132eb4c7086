package indicators

import (
	"math"

	"StagAlgo/internal/domain/models"
)

// Closes extracts close prices in series order.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the trailing
// window using the provided number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	tail := logReturns[len(logReturns)-window:]
	return math.Sqrt(sampleVariance(tail) * barsPerYear)
}

// BetaFromReturns estimates beta as cov(asset, market) / var(market) over the
// trailing window shared by both series.
func BetaFromReturns(asset, market []float64, window int) (float64, bool) {
	n := window
	if len(asset) < n || len(market) < n || n < 2 {
		return 0, false
	}
	a := asset[len(asset)-n:]
	m := market[len(market)-n:]
	ma, mm := mean(a), mean(m)
	var cov, varM float64
	for i := 0; i < n; i++ {
		cov += (a[i] - ma) * (m[i] - mm)
		varM += (m[i] - mm) * (m[i] - mm)
	}
	if varM == 0 {
		return 0, false
	}
	return cov / varM, true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func sampleVariance(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	sum, sum2 := 0.0, 0.0
	for _, r := range xs {
		sum += r
		sum2 += r * r
	}
	m := sum / n
	v := (sum2 - n*m*m) / (n - 1)
	if v < 0 {
		return 0
	}
	return v
}
