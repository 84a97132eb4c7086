package indicators

import "StagAlgo/internal/domain/models"

// Estimator resolves beta and volatility from daily candles, falling back to
// the reference tables when history is shorter than Window returns.
type Estimator struct {
	Window int
}

// DefaultEstimator uses a 20-day window.
func DefaultEstimator() Estimator { return Estimator{Window: 20} }

// Volatility returns annualized volatility for symbol.
func (e Estimator) Volatility(symbol string, daily []models.Candle) float64 {
	rets := ComputeLogReturns(daily)
	if v := RealizedVolatility(rets, e.Window, TradingDays); v > 0 {
		return v
	}
	return ReferenceVolatility(symbol)
}

// Beta returns symbol beta against benchmark daily candles.
func (e Estimator) Beta(symbol string, daily, benchmark []models.Candle) float64 {
	if symbol == BenchmarkSymbol {
		return 1
	}
	a, m := alignDaily(daily, benchmark)
	if b, ok := BetaFromReturns(ComputeLogReturns(a), ComputeLogReturns(m), e.Window); ok {
		return b
	}
	return ReferenceBeta(symbol)
}

// alignDaily keeps only the days present in both series.
func alignDaily(a, b []models.Candle) ([]models.Candle, []models.Candle) {
	idx := make(map[int64]int, len(b))
	for i, c := range b {
		idx[c.Timestamp.Unix()] = i
	}
	outA := make([]models.Candle, 0, len(a))
	outB := make([]models.Candle, 0, len(a))
	for _, c := range a {
		if j, ok := idx[c.Timestamp.Unix()]; ok {
			outA = append(outA, c)
			outB = append(outB, b[j])
		}
	}
	return outA, outB
}
