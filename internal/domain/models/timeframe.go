package models

import "time"

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TFD1  Timeframe = "D1"
)

// Timeframes lists every supported resolution, finest first.
var Timeframes = []Timeframe{TF1m, TF5m, TF15m, TF1h, TFD1}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h, TFD1:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
// Lowercase "d1" and "1d" are accepted for the daily bucket.
func NormalizeTimeframe(s string) Timeframe {
	switch s {
	case "":
		return DefaultTimeframe()
	case "d1", "1d", "1D":
		return TFD1
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the bucket width of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TFD1:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// IsDaily reports whether the timeframe is the daily bucket.
func (tf Timeframe) IsDaily() bool { return tf == TFD1 }

// BarsPerYear returns the approximate number of bars per year for a timeframe.
// Intraday buckets assume a 6.5h US equity session over 252 trading days.
func (tf Timeframe) BarsPerYear() float64 {
	const session = 6.5 * 60
	switch tf {
	case TF5m:
		return 252 * session / 5
	case TF15m:
		return 252 * session / 15
	case TF1h:
		return 252 * 6.5
	case TFD1:
		return 252
	default:
		return 252 * session
	}
}
