package ingest

import (
	"sync"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/pkg/util"
)

type openBar struct {
	candle   models.Candle
	notional float64
}

// Bucketer folds live trades into candles of one timeframe. Only the open
// bar of each symbol is kept; a trade for an earlier bucket is late.
type Bucketer struct {
	tf    models.Timeframe
	width time.Duration

	mu   sync.Mutex
	bars map[string]*openBar
}

func NewBucketer(tf models.Timeframe) *Bucketer {
	return &Bucketer{tf: tf, width: tf.Duration(), bars: make(map[string]*openBar)}
}

// Add folds t into its bucket and returns the updated bar. It returns false
// when t belongs to a bucket that has already closed.
func (b *Bucketer) Add(t models.Trade) (models.Candle, bool) {
	start := util.BucketStart(t.Time(), b.width)

	b.mu.Lock()
	defer b.mu.Unlock()
	bar, ok := b.bars[t.Symbol]
	switch {
	case ok && start.Before(bar.candle.Timestamp):
		return models.Candle{}, false
	case !ok || start.After(bar.candle.Timestamp):
		bar = &openBar{candle: models.Candle{
			Symbol:    t.Symbol,
			Timeframe: b.tf,
			Timestamp: start,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
		}}
		b.bars[t.Symbol] = bar
	}

	c := &bar.candle
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume += t.Volume
	bar.notional += t.Price * t.Volume
	if c.Volume > 0 {
		vwap := bar.notional / c.Volume
		c.VWAP = &vwap
	}

	out := *c
	if c.VWAP != nil {
		v := *c.VWAP
		out.VWAP = &v
	}
	return out, true
}

// Open returns the open bar of symbol.
func (b *Bucketer) Open(symbol string) (models.Candle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bar, ok := b.bars[symbol]
	if !ok {
		return models.Candle{}, false
	}
	return bar.candle, true
}
