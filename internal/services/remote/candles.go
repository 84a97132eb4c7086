package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"StagAlgo/internal/domain/models"
	domsvc "StagAlgo/internal/domain/service"
	svccache "StagAlgo/internal/service/cache"
	"StagAlgo/pkg/config"
	"StagAlgo/pkg/logger"
)

const candlesPath = "/candles"

// CandleClient pulls historical candles from the market data provider and
// serves the last good response when the provider fails.
type CandleClient struct {
	base  *HTTPServiceBase
	cache svccache.BytesCache
	ttl   time.Duration
	log   *logger.Logger
}

func NewCandleClient(cfg *config.Config, cache svccache.BytesCache, l *logger.Logger) *CandleClient {
	if l == nil {
		l = logger.Nop()
	}
	if cache == nil {
		cache = svccache.NewTTLCache()
	}
	return &CandleClient{
		base:  NewHTTPServiceBase("market_data", cfg.MarketData.BaseURL, cfg.MarketData.Timeout),
		cache: cache,
		ttl:   cfg.MarketData.CacheTTL,
		log:   l.With("candle_fetch"),
	}
}

func candleKey(symbol string, tf models.Timeframe, limit int) string {
	return fmt.Sprintf("candles:%s:%s:%d", symbol, tf, limit)
}

// FetchCandles returns up to limit candles of symbol, oldest first.
func (c *CandleClient) FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	key := candleKey(symbol, tf, limit)
	var raw json.RawMessage
	err := c.base.GetJSON(ctx, candlesPath, map[string][]string{
		"symbol":    {symbol},
		"timeframe": {string(tf)},
		"limit":     {strconv.Itoa(limit)},
	}, &raw)
	if err == nil {
		var candles []models.Candle
		if err = json.Unmarshal(raw, &candles); err == nil {
			if cerr := c.cache.SetBytes(ctx, key, raw, c.ttl); cerr != nil {
				c.log.Warn("candle cache write failed", logger.Error(cerr))
			}
			return candles, nil
		}
		err = fmt.Errorf("decode candles: %w", err)
	}

	b, ok, cerr := c.cache.GetBytes(ctx, key)
	if cerr != nil || !ok {
		return nil, fmt.Errorf("fetch candles %s %s: %w", symbol, tf, err)
	}
	var candles []models.Candle
	if jerr := json.Unmarshal(b, &candles); jerr != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", symbol, tf, err)
	}
	c.log.Warn("candle fetch failed, serving cached", logger.String("symbol", symbol), logger.Error(err))
	return candles, nil
}

var _ domsvc.CandleFetcher = (*CandleClient)(nil)
