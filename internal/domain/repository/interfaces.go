package repository

import (
	"context"

	"StagAlgo/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Publisher forwards domain events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, kind, key string, payload interface{}) error
	PublishBatch(ctx context.Context, kind string, keys []string, payloads []interface{}) error
	Close() error
}

// Mirror is the write-behind persistence target. Nothing in the read path uses it.
type Mirror interface {
	Init(ctx context.Context) error
	SaveCandles(ctx context.Context, candles []models.Candle) error
	SaveRisk(ctx context.Context, risk models.PortfolioRisk) error
	SaveSignal(ctx context.Context, s models.OracleSignal) error
	SaveDecision(ctx context.Context, d models.Decision) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordMessageSent(backend, kind string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordIngest(event string, accepted bool)
	RecordValidation(passed bool)
	RecordViolation(ruleID string)
	RecordDecision(action string)
	RecordHealth(status string)
}
