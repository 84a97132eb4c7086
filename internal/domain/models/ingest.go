package models

import (
	"encoding/json"
	"time"
)

// Ingestion event names emitted by the repository collaborator.
const (
	EventFeedData       = "feed.data_received"
	EventCSVImported    = "cradle.csv_imported"
	EventBrokerSnapshot = "broker.snapshot_received"
)

// DataType of an ingestion payload.
type DataType string

const (
	DataCandle    DataType = "candle"
	DataTrade     DataType = "trade"
	DataQuote     DataType = "quote"
	DataPortfolio DataType = "portfolio"
	DataSignal    DataType = "signal"
	DataSymbol    DataType = "symbol"
)

// RepositoryEvent is the envelope of every ingestion record.
type RepositoryEvent struct {
	Event     string          `json:"event"`
	Symbol    string          `json:"symbol,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	DataType  DataType        `json:"data_type"`
	RawData   json.RawMessage `json:"raw_data"`
}

// Quote is a top-of-book snapshot.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Last      float64   `json:"last"`
	Volume    float64   `json:"volume"`
	AvgVolume float64   `json:"avg_volume"`
	Timestamp time.Time `json:"timestamp"`
}

// SpreadPct returns (ask-bid)/mid, or 0 when either side is missing.
func (q Quote) SpreadPct() float64 {
	if q.Bid <= 0 || q.Ask <= 0 || q.Ask < q.Bid {
		return 0
	}
	mid := (q.Bid + q.Ask) / 2
	return (q.Ask - q.Bid) / mid
}

// CleanRecord is the result of running one event through the cleaner.
type CleanRecord struct {
	Event     string
	Symbol    string
	DataType  DataType
	Quality   float64
	Stale     bool
	Candle    *Candle
	Trade     *Trade
	Quote     *Quote
	Portfolio *PortfolioUpdate
	Signal    *OracleSignal
	SymbolRef *SymbolRef
}
