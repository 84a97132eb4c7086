package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"StagAlgo/pkg/util"

	"github.com/shopspring/decimal"
)

// Price and volume precision after normalization.
const (
	pricePlaces  = 4
	volumePlaces = 4
)

// flexTime accepts RFC3339 and CSV date strings as well as unix seconds or
// milliseconds, quoted or not.
type flexTime struct{ time.Time }

func (t *flexTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, ok := util.ParseTime(s)
	if !ok {
		return &time.ParseError{Value: s, Message: ": unrecognized time"}
	}
	t.Time = parsed
	return nil
}

func firstTime(ts ...flexTime) time.Time {
	for _, t := range ts {
		if !t.IsZero() {
			return t.Time
		}
	}
	return time.Time{}
}

func price(d decimal.NullDecimal) (float64, bool) {
	if !d.Valid {
		return 0, false
	}
	return d.Decimal.Round(pricePlaces).InexactFloat64(), true
}

func volume(d decimal.NullDecimal) (float64, bool) {
	if !d.Valid {
		return 0, false
	}
	return d.Decimal.Round(volumePlaces).InexactFloat64(), true
}

func firstDecimal(ds ...decimal.NullDecimal) decimal.NullDecimal {
	for _, d := range ds {
		if d.Valid {
			return d
		}
	}
	return decimal.NullDecimal{}
}

// Field names follow the feed JSON; encoding/json matches them case
// insensitively so CSV headers such as "Open" or "Date" land here too.
type rawCandle struct {
	Symbol    string              `json:"symbol"`
	Timeframe string              `json:"timeframe"`
	Timestamp flexTime            `json:"timestamp"`
	Date      flexTime            `json:"date"`
	Open      decimal.NullDecimal `json:"open"`
	High      decimal.NullDecimal `json:"high"`
	Low       decimal.NullDecimal `json:"low"`
	Close     decimal.NullDecimal `json:"close"`
	Volume    decimal.NullDecimal `json:"volume"`
	VWAP      decimal.NullDecimal `json:"vwap"`
}

type rawTrade struct {
	Symbol    string              `json:"symbol"`
	S         string              `json:"s"`
	Timestamp flexTime            `json:"timestamp"`
	T         flexTime            `json:"t"`
	Price     decimal.NullDecimal `json:"price"`
	P         decimal.NullDecimal `json:"p"`
	Volume    decimal.NullDecimal `json:"volume"`
	V         decimal.NullDecimal `json:"v"`
}

type rawQuote struct {
	Symbol    string              `json:"symbol"`
	Timestamp flexTime            `json:"timestamp"`
	Bid       decimal.NullDecimal `json:"bid"`
	Ask       decimal.NullDecimal `json:"ask"`
	Last      decimal.NullDecimal `json:"last"`
	Volume    decimal.NullDecimal `json:"volume"`
	AvgVolume decimal.NullDecimal `json:"avg_volume"`
}

type rawPosition struct {
	Symbol        string              `json:"symbol"`
	Quantity      decimal.NullDecimal `json:"quantity"`
	Qty           decimal.NullDecimal `json:"qty"`
	AvgCost       decimal.NullDecimal `json:"avg_cost"`
	MarketValue   decimal.NullDecimal `json:"market_value"`
	UnrealizedPnL decimal.NullDecimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.NullDecimal `json:"realized_pnl"`
}

// rawPortfolio.Positions stays nil when the key is absent or null and is an
// empty slice for [].
type rawPortfolio struct {
	Equity    decimal.NullDecimal `json:"equity"`
	Cash      decimal.NullDecimal `json:"cash"`
	Timestamp flexTime            `json:"timestamp"`
	Positions []rawPosition       `json:"positions"`
}

type rawSignal struct {
	ID        string             `json:"id"`
	Symbol    string             `json:"symbol"`
	Type      string             `json:"type"`
	Strength  float64            `json:"strength"`
	Direction string             `json:"direction"`
	Source    string             `json:"source"`
	Timestamp flexTime           `json:"timestamp"`
	Summary   string             `json:"summary"`
	Severity  string             `json:"severity"`
	SubScores map[string]float64 `json:"sub_scores"`
}

type rawSymbol struct {
	Symbol     string `json:"symbol"`
	Exchange   string `json:"exchange"`
	AssetClass string `json:"asset_class"`
	Sector     string `json:"sector"`
	Industry   string `json:"industry"`
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errEmptyPayload
	}
	return json.Unmarshal(raw, v)
}
