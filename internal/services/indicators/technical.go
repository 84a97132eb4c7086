package indicators

import (
	"math"

	"StagAlgo/internal/domain/models"
)

// SMA returns the mean of the trailing n values.
func SMA(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	return mean(values[len(values)-n:]), true
}

// EMASeries returns the exponential moving average seeded with the SMA of the
// first n values. out[0] corresponds to values[n-1].
func EMASeries(values []float64, n int) []float64 {
	if n <= 0 || len(values) < n {
		return nil
	}
	k := 2.0 / float64(n+1)
	out := make([]float64, 0, len(values)-n+1)
	prev := mean(values[:n])
	out = append(out, prev)
	for _, v := range values[n:] {
		prev = v*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

// RSI computes Wilder's relative strength index over period.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50, true
	case avgLoss == 0:
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACDValue computes MACD(fast, slow, signal). The signal line needs
// slow+signal-1 closes; with fewer, only the line is set.
func MACDValue(closes []float64, fast, slow, signal int) (models.MACD, bool) {
	slowEMA := EMASeries(closes, slow)
	if slowEMA == nil {
		return models.MACD{}, false
	}
	fastEMA := EMASeries(closes, fast)
	// align fast to slow: both end at the last close
	offset := len(fastEMA) - len(slowEMA)
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}
	out := models.MACD{Line: line[len(line)-1]}
	if sig := EMASeries(line, signal); sig != nil {
		out.Signal = sig[len(sig)-1]
		out.Histogram = out.Line - out.Signal
	}
	return out, true
}

// TrueRange of a bar given the previous close.
func TrueRange(c models.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATR computes Wilder's average true range over period.
func ATR(candles []models.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, TrueRange(candles[i], candles[i-1].Close))
	}
	atr := mean(trs[:period])
	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, true
}

// BollingerBands returns mean ± k population standard deviations of the
// trailing n closes.
func BollingerBands(closes []float64, n int, k float64) (models.Bollinger, bool) {
	mid, ok := SMA(closes, n)
	if !ok {
		return models.Bollinger{}, false
	}
	var ss float64
	for _, v := range closes[len(closes)-n:] {
		ss += (v - mid) * (v - mid)
	}
	sd := math.Sqrt(ss / float64(n))
	return models.Bollinger{Upper: mid + k*sd, Middle: mid, Lower: mid - k*sd}, true
}

// SessionVWAP is the volume-weighted typical price of the candles that share
// the calendar day (UTC) of the last candle.
func SessionVWAP(candles []models.Candle) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}
	last := candles[len(candles)-1]
	y, m, d := last.Timestamp.UTC().Date()
	var pv, vol float64
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		cy, cm, cd := c.Timestamp.UTC().Date()
		if cy != y || cm != m || cd != d {
			break
		}
		typical := (c.High + c.Low + c.Close) / 3
		if c.VWAP != nil {
			typical = *c.VWAP
		}
		pv += typical * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return last.Close, true
	}
	return pv / vol, true
}

// Snapshot computes the standard indicator set for a candle series.
func Snapshot(symbol string, tf models.Timeframe, candles []models.Candle) models.IndicatorSnapshot {
	snap := models.IndicatorSnapshot{Symbol: symbol, Timeframe: tf}
	if len(candles) == 0 {
		return snap
	}
	snap.Timestamp = candles[len(candles)-1].Timestamp
	closes := Closes(candles)

	snap.MA20, _ = SMA(closes, 20)
	snap.MA50, _ = SMA(closes, 50)
	snap.MA200, _ = SMA(closes, 200)
	snap.RSI14, _ = RSI(closes, 14)
	snap.MACD, _ = MACDValue(closes, 12, 26, 9)
	snap.ATR14, _ = ATR(candles, 14)
	snap.Bollinger, _ = BollingerBands(closes, 20, 2)
	snap.VWAP, _ = SessionVWAP(candles)
	return snap
}
