package service

import (
	"context"

	"StagAlgo/internal/domain/models"
)

// Executor forwards an approved order to the execution service.
type Executor interface {
	Execute(ctx context.Context, req models.TradeRequest) (models.ExecutionResult, error)
}

// CandleFetcher pulls historical candles from the market data provider.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error)
}

// TradeValidator checks a proposed trade against the rule table.
type TradeValidator interface {
	ValidateTrade(tc models.TradeContext) models.ValidationResult
	RecordOutcome(o models.TradeOutcome)
}

// Governor issues the final approve/soft/hard verdict on a validated trade.
type Governor interface {
	EvaluateTrade(req models.TradeRequest) models.Decision
}
