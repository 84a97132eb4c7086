package usecase

import (
	"context"
	"fmt"
	"time"

	"StagAlgo/internal/domain/models"
	drepo "StagAlgo/internal/domain/repository"
)

// KindTrade is the publisher kind of archived live trades.
const KindTrade = "trade"

// TradeArchiver forwards live trades to the message bus as feed events so
// other consumers can replay the tape.
type TradeArchiver struct {
	pub     drepo.Publisher
	metrics drepo.Metrics
}

func NewTradeArchiver(pub drepo.Publisher, metrics drepo.Metrics) *TradeArchiver {
	return &TradeArchiver{pub: pub, metrics: metrics}
}

// Process publishes a single trade keyed by symbol.
func (p *TradeArchiver) Process(ctx context.Context, t *models.Trade) error {
	if t == nil {
		return fmt.Errorf("trade is nil")
	}
	start := time.Now()
	if err := p.pub.Publish(ctx, KindTrade, t.Symbol, t); err != nil {
		p.metrics.RecordError("archive")
		return fmt.Errorf("archive trade: %w", err)
	}
	p.metrics.RecordMessageSent("kafka", KindTrade)
	p.metrics.RecordLatency("archive", time.Since(start).Seconds())
	return nil
}

// ProcessBatch publishes trades in one write.
func (p *TradeArchiver) ProcessBatch(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	start := time.Now()
	keys := make([]string, len(trades))
	payloads := make([]interface{}, len(trades))
	for i, t := range trades {
		keys[i] = t.Symbol
		payloads[i] = t
	}
	if err := p.pub.PublishBatch(ctx, KindTrade, keys, payloads); err != nil {
		p.metrics.RecordError("archive_batch")
		return fmt.Errorf("archive batch: %w", err)
	}
	for range trades {
		p.metrics.RecordMessageSent("kafka", KindTrade)
	}
	p.metrics.RecordLatency("archive_batch", time.Since(start).Seconds())
	return nil
}

// Close closes the publisher.
func (p *TradeArchiver) Close() error {
	if p.pub != nil {
		return p.pub.Close()
	}
	return nil
}
