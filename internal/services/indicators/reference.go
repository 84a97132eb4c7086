package indicators

import "strings"

// Reference beta and annualized volatility for a fixed symbol list. These are
// placeholders used until enough daily history exists to estimate the values
// from returns; see Estimator.
var (
	referenceBeta = map[string]float64{
		"AAPL": 1.20, "MSFT": 0.90, "GOOGL": 1.05, "AMZN": 1.30, "TSLA": 2.00,
		"NVDA": 1.70, "META": 1.25, "SPY": 1.00, "QQQ": 1.10, "AMD": 1.80,
	}
	referenceVol = map[string]float64{
		"AAPL": 0.25, "MSFT": 0.22, "GOOGL": 0.27, "AMZN": 0.30, "TSLA": 0.55,
		"NVDA": 0.45, "META": 0.35, "SPY": 0.15, "QQQ": 0.20, "AMD": 0.50,
	}
)

const (
	DefaultBeta       = 1.0
	DefaultVolatility = 0.30
	// BenchmarkSymbol is the market proxy for beta estimation.
	BenchmarkSymbol = "SPY"
	// TradingDays annualizes daily figures.
	TradingDays = 252
)

// ReferenceBeta returns the table beta for symbol or DefaultBeta.
func ReferenceBeta(symbol string) float64 {
	if b, ok := referenceBeta[strings.ToUpper(symbol)]; ok {
		return b
	}
	return DefaultBeta
}

// ReferenceVolatility returns the table annualized volatility or DefaultVolatility.
func ReferenceVolatility(symbol string) float64 {
	if v, ok := referenceVol[strings.ToUpper(symbol)]; ok {
		return v
	}
	return DefaultVolatility
}
