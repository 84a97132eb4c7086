package usecase

import (
	"context"
	"errors"
	"fmt"

	"StagAlgo/internal/domain/models"
	domsvc "StagAlgo/internal/domain/service"
	"StagAlgo/internal/ingest"
	"StagAlgo/pkg/util"
)

var (
	// ErrBadRequest marks caller errors in use case parameters.
	ErrBadRequest = errors.New("bad request")
	// ErrUnavailable marks a collaborator that is not configured.
	ErrUnavailable = errors.New("unavailable")
)

const (
	defaultCandleLimit = 500
	maxCandleLimit     = 5000
)

// CandleReader is the store view used for candle reads.
type CandleReader interface {
	GetCandles(symbol string, tf models.Timeframe, limit int) []models.Candle
	GetIndicators(symbol string, tf models.Timeframe) (models.IndicatorSnapshot, bool)
}

// JobQueue runs backfills in the background.
type JobQueue interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

// CandlesUseCase serves candle reads and historical backfill.
type CandlesUseCase struct {
	store   CandleReader
	fetcher domsvc.CandleFetcher
	cleaner EventHandler
	queue   JobQueue
}

// NewCandlesUseCase wires the use case. fetcher may be nil, which disables
// backfill.
func NewCandlesUseCase(store CandleReader, fetcher domsvc.CandleFetcher, cleaner EventHandler) *CandlesUseCase {
	return &CandlesUseCase{store: store, fetcher: fetcher, cleaner: cleaner}
}

// SetQueue enables asynchronous backfill.
func (uc *CandlesUseCase) SetQueue(q JobQueue) { uc.queue = q }

type GetCandlesParams struct {
	Symbol    string           `json:"symbol"`
	Timeframe models.Timeframe `json:"timeframe"`
	Limit     int              `json:"limit"`
}

type GetCandlesResult struct {
	Symbol     string                    `json:"symbol"`
	Timeframe  models.Timeframe          `json:"timeframe"`
	Count      int                       `json:"count"`
	Candles    []models.Candle           `json:"candles"`
	Indicators *models.IndicatorSnapshot `json:"indicators,omitempty"`
}

func (p *GetCandlesParams) normalize() error {
	p.Symbol = util.NormalizeSymbol(p.Symbol)
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol required", ErrBadRequest)
	}
	if p.Timeframe == "" {
		p.Timeframe = models.DefaultTimeframe()
	}
	if !models.IsValidTimeframe(p.Timeframe) {
		return fmt.Errorf("%w: unknown timeframe %q", ErrBadRequest, p.Timeframe)
	}
	if p.Limit <= 0 {
		p.Limit = defaultCandleLimit
	}
	if p.Limit > maxCandleLimit {
		p.Limit = maxCandleLimit
	}
	return nil
}

func (uc *CandlesUseCase) GetCandles(_ context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	candles := uc.store.GetCandles(p.Symbol, p.Timeframe, p.Limit)
	res := &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: p.Timeframe,
		Count:     len(candles),
		Candles:   candles,
	}
	if snap, ok := uc.store.GetIndicators(p.Symbol, p.Timeframe); ok {
		res.Indicators = &snap
	}
	return res, nil
}

type BackfillResult struct {
	Symbol    string           `json:"symbol"`
	Timeframe models.Timeframe `json:"timeframe"`
	Fetched   int              `json:"fetched"`
	Accepted  int              `json:"accepted"`
}

// Backfill pulls history from the market data provider and replays it
// through the cleaner as imported records, which are exempt from the
// staleness check.
func (uc *CandlesUseCase) Backfill(ctx context.Context, p GetCandlesParams) (*BackfillResult, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	if uc.fetcher == nil {
		return nil, fmt.Errorf("%w: candle fetch not configured", ErrUnavailable)
	}
	return uc.replay(ctx, uc.fetcher, p)
}

// EnqueueBackfill schedules Backfill on the job queue and returns the job id.
func (uc *CandlesUseCase) EnqueueBackfill(ctx context.Context, p GetCandlesParams) (string, error) {
	if err := p.normalize(); err != nil {
		return "", err
	}
	if uc.queue == nil || uc.fetcher == nil {
		return "", fmt.Errorf("%w: backfill queue not configured", ErrUnavailable)
	}
	return uc.queue.Enqueue(ctx, JobTypeBackfill, p)
}

// Warmup seeds the store from src, typically the analytical mirror, before
// live data arrives. A failing symbol does not stop the others.
func (uc *CandlesUseCase) Warmup(ctx context.Context, src domsvc.CandleFetcher, symbols []string, tf models.Timeframe, limit int) (int, error) {
	accepted := 0
	var errs []error
	for _, sym := range symbols {
		p := GetCandlesParams{Symbol: sym, Timeframe: tf, Limit: limit}
		if err := p.normalize(); err != nil {
			errs = append(errs, err)
			continue
		}
		res, err := uc.replay(ctx, src, p)
		if res != nil {
			accepted += res.Accepted
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return accepted, errors.Join(errs...)
}

func (uc *CandlesUseCase) replay(ctx context.Context, src domsvc.CandleFetcher, p GetCandlesParams) (*BackfillResult, error) {
	candles, err := src.FetchCandles(ctx, p.Symbol, p.Timeframe, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("backfill %s: %w", p.Symbol, err)
	}

	res := &BackfillResult{Symbol: p.Symbol, Timeframe: p.Timeframe, Fetched: len(candles)}
	for _, c := range candles {
		if c.Symbol == "" {
			c.Symbol = p.Symbol
		}
		if c.Timeframe == "" {
			c.Timeframe = p.Timeframe
		}
		ev, err := ingest.NewEvent(models.EventCSVImported, models.DataCandle, c.Symbol, c.Timestamp, c)
		if err != nil {
			return res, err
		}
		if uc.cleaner.Handle(ev) {
			res.Accepted++
		}
	}
	return res, nil
}
