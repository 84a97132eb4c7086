// Package events is the closed catalogue of bus topics and their payloads.
package events

import (
	"StagAlgo/internal/domain/models"
	"StagAlgo/pkg/eventbus"
)

// PortfolioUpdated carries the snapshot and positions swapped in together.
type PortfolioUpdated struct {
	Snapshot  models.PortfolioSnapshot `json:"snapshot"`
	Positions []models.Position        `json:"positions"`
}

// TradeValidated carries a validator evaluation.
type TradeValidated struct {
	Context models.TradeContext     `json:"context"`
	Result  models.ValidationResult `json:"result"`
}

// IngestDropped reports a record rejected by the cleaner.
type IngestDropped struct {
	Event    string          `json:"event"`
	DataType models.DataType `json:"data_type"`
	Reason   string          `json:"reason"`
}

var (
	CandleIngested    = eventbus.NewTopic[models.Candle]("store.candle_ingested")
	SymbolUpdated     = eventbus.NewTopic[models.SymbolRef]("store.symbol_updated")
	PortfolioChanged  = eventbus.NewTopic[PortfolioUpdated]("store.portfolio_updated")
	IndicatorsUpdated = eventbus.NewTopic[models.IndicatorSnapshot]("store.indicators_updated")
	RiskUpdated       = eventbus.NewTopic[models.PortfolioRisk]("store.risk_updated")
	OracleSignal      = eventbus.NewTopic[models.OracleSignal]("store.oracle_signal")
	RollupCompleted   = eventbus.NewTopic[models.PerformanceRollup]("store.performance_rollup")
	IngestRejected    = eventbus.NewTopic[IngestDropped]("ingest.dropped")
	TradeChecked      = eventbus.NewTopic[TradeValidated]("validator.trade_validated")
	OutcomeRecorded   = eventbus.NewTopic[models.TradeOutcome]("validator.trade_outcome")
	CollapseUpdated   = eventbus.NewTopic[models.CollapseSignal]("overseer.collapse_updated")
	DecisionIssued    = eventbus.NewTopic[models.Decision]("overseer.decision")
	AlertRaised       = eventbus.NewTopic[models.OverseerAlert]("overseer.alert")
	SearchAlerted     = eventbus.NewTopic[models.SearchAlert]("search.alert")
)
