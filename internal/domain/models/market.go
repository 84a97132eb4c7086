package models

import "time"

// AssetClass of a listed instrument.
type AssetClass string

const (
	AssetEquity AssetClass = "equity"
	AssetETF    AssetClass = "etf"
	AssetCrypto AssetClass = "crypto"
	AssetOther  AssetClass = "other"
)

// SymbolRef is the reference record for one tradable symbol.
type SymbolRef struct {
	Symbol     string     `json:"symbol"`
	Exchange   string     `json:"exchange"`
	AssetClass AssetClass `json:"asset_class"`
	Sector     string     `json:"sector"`
	Industry   string     `json:"industry"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Candle represents an OHLCV bar for one (symbol, timeframe).
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	VWAP      *float64  `json:"vwap,omitempty"`
}

// MACD holds the line, signal and histogram values.
type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Bollinger holds 2-sigma band values around a 20-bar mean.
type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSnapshot is the derived indicator set for one (symbol, timeframe).
// Zero values mean the series was too short for that indicator.
type IndicatorSnapshot struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	MA20      float64   `json:"ma20"`
	MA50      float64   `json:"ma50"`
	MA200     float64   `json:"ma200"`
	RSI14     float64   `json:"rsi14"`
	MACD      MACD      `json:"macd"`
	ATR14     float64   `json:"atr14"`
	Bollinger Bollinger `json:"bollinger"`
	VWAP      float64   `json:"vwap"`
}

// Trade is a single print received from a live market feed.
type Trade struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"t"` // unix milliseconds
	Price     float64 `json:"p"`
	Volume    float64 `json:"v"`
}

// Time returns the trade timestamp.
func (t *Trade) Time() time.Time { return time.UnixMilli(t.Timestamp) }
