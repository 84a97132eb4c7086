// Package store is the in-memory market and portfolio truth store. Every
// other component reads its snapshots; mutations arrive from the ingestion
// layer and from the scheduled recompute tasks.
package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/domain/repository"
	"StagAlgo/internal/events"
	"StagAlgo/internal/services/indicators"
	"StagAlgo/pkg/eventbus"
	"StagAlgo/pkg/logger"
	"StagAlgo/pkg/metrics"
	"StagAlgo/pkg/scheduler"

	"github.com/google/uuid"
)

// Options holds schedule intervals, retention windows and health thresholds.
type Options struct {
	IndicatorInterval time.Duration
	RiskInterval      time.Duration
	RetentionInterval time.Duration
	RollupInterval    time.Duration

	IntradayRetention     time.Duration
	DailyRetention        time.Duration
	IndicatorRetention    time.Duration
	RiskRetention         time.Duration
	PositionRiskRetention time.Duration
	SignalRetention       time.Duration

	DegradedAfter  time.Duration
	UnhealthyAfter time.Duration
	// TradeWindow bounds the recent-trade counters and the recent signals
	// reported in a SymbolContext.
	TradeWindow time.Duration
}

// DefaultOptions returns the production schedule and retention windows.
func DefaultOptions() Options {
	const day = 24 * time.Hour
	return Options{
		IndicatorInterval:     5 * time.Minute,
		RiskInterval:          60 * time.Second,
		RetentionInterval:     time.Hour,
		RollupInterval:        day,
		IntradayRetention:     90 * day,
		DailyRetention:        730 * day,
		IndicatorRetention:    90 * day,
		RiskRetention:         730 * day,
		PositionRiskRetention: 90 * day,
		SignalRetention:       90 * day,
		DegradedAfter:         10 * time.Minute,
		UnhealthyAfter:        60 * time.Minute,
		TradeWindow:           time.Hour,
	}
}

// Option configures a Store.
type Option func(*Store)

func WithOptions(o Options) Option { return func(s *Store) { s.opts = o } }

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l.With("store")
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithEstimator(e indicators.Estimator) Option { return func(s *Store) { s.est = e } }

// Store guards every map with one RWMutex. Readers get copies; events are
// emitted after the lock is released so handlers may read the store.
type Store struct {
	mu      sync.RWMutex
	bus     *eventbus.Bus
	sched   scheduler.Scheduler
	log     *logger.Logger
	metrics repository.Metrics
	opts    Options
	est     indicators.Estimator

	symbols          map[string]models.SymbolRef
	candles          map[seriesKey][]models.Candle
	indicators       map[seriesKey]models.IndicatorSnapshot
	indicatorHistory map[seriesKey][]models.IndicatorSnapshot
	quotes           map[string]models.Quote

	portfolio    models.PortfolioSnapshot
	hasPortfolio bool
	positions    map[string]models.Position
	equity       []equityPoint

	risk         []models.PortfolioRisk
	positionRisk map[string][]models.PositionRisk
	signals      []models.OracleSignal
	trades       map[string][]time.Time
	rollups      []models.PerformanceRollup

	accepted   atomic.Int64
	dropped    atomic.Int64
	tradesSeen int
	lastRollup struct {
		at       time.Time
		accepted int64
		dropped  int64
	}

	started bool
	cancels []func()
}

// New creates an empty store. Background tasks start with Init.
func New(bus *eventbus.Bus, sched scheduler.Scheduler, opts ...Option) *Store {
	s := &Store{
		bus:              bus,
		sched:            sched,
		log:              logger.Nop(),
		metrics:          metrics.Nop{},
		opts:             DefaultOptions(),
		est:              indicators.DefaultEstimator(),
		symbols:          make(map[string]models.SymbolRef),
		candles:          make(map[seriesKey][]models.Candle),
		indicators:       make(map[seriesKey]models.IndicatorSnapshot),
		indicatorHistory: make(map[seriesKey][]models.IndicatorSnapshot),
		quotes:           make(map[string]models.Quote),
		positions:        make(map[string]models.Position),
		positionRisk:     make(map[string][]models.PositionRisk),
		trades:           make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastRollup.at = s.now()
	return s
}

func (s *Store) now() time.Time { return s.sched.Now() }

// Now returns the store clock.
func (s *Store) Now() time.Time { return s.now() }

// Init registers the background tasks and the drop counter subscription.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("store already started")
	}
	s.started = true

	s.cancels = append(s.cancels,
		eventbus.Subscribe(s.bus, events.IngestRejected, func(events.IngestDropped) { s.dropped.Add(1) }),
		s.sched.Schedule(s.opts.IndicatorInterval, s.task("indicators", s.RecomputeIndicators)),
		s.sched.Schedule(s.opts.RiskInterval, s.task("risk", s.RecomputeRisk)),
		s.sched.Schedule(s.opts.RetentionInterval, s.task("retention", func() { s.PruneRetention() })),
		s.sched.Schedule(s.opts.RollupInterval, s.task("rollup", func() { s.RollupPerformance() })),
	)
	s.log.Info("store started",
		logger.Duration("indicator_interval", s.opts.IndicatorInterval),
		logger.Duration("risk_interval", s.opts.RiskInterval),
		logger.Duration("retention_interval", s.opts.RetentionInterval),
		logger.Duration("rollup_interval", s.opts.RollupInterval),
	)
	return nil
}

// Shutdown cancels background tasks. It is safe to call more than once.
func (s *Store) Shutdown() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.started = false
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		s.log.Info("store stopped")
	}
}

func (s *Store) task(name string, fn func()) scheduler.Task {
	return func(_ context.Context) {
		start := time.Now()
		fn()
		s.metrics.RecordLatency("store."+name, time.Since(start).Seconds())
	}
}

func (s *Store) drop(kind, reason string, fields ...logger.Field) {
	s.dropped.Add(1)
	s.metrics.RecordError("store_" + kind)
	s.log.Warn("record skipped: "+reason, append(fields, logger.String("kind", kind))...)
}

// IngestCandle upserts c into its (symbol, timeframe) series, applies the
// retention window and notifies listeners. Malformed candles are skipped.
func (s *Store) IngestCandle(c models.Candle) {
	if err := checkCandle(c); err != nil {
		s.drop("candle", err.Error(), logger.String("symbol", c.Symbol), logger.String("timeframe", string(c.Timeframe)))
		return
	}
	key := seriesKey{c.Symbol, c.Timeframe}
	cutoff := s.now().Add(-s.retention(c.Timeframe))

	s.mu.Lock()
	series := upsertByTime(s.candles[key], c, candleTime)
	series, _ = pruneBefore(series, cutoff, candleTime)
	s.candles[key] = series
	s.mu.Unlock()

	s.accepted.Add(1)
	s.metrics.RecordLastPrice(c.Symbol, c.Close)
	eventbus.Emit(s.bus, events.CandleIngested, c)
}

func checkCandle(c models.Candle) error {
	switch {
	case c.Symbol == "":
		return fmt.Errorf("missing symbol")
	case !models.IsValidTimeframe(c.Timeframe):
		return fmt.Errorf("unknown timeframe %q", c.Timeframe)
	case c.Timestamp.IsZero():
		return fmt.Errorf("missing timestamp")
	case c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0:
		return fmt.Errorf("non-positive price")
	case c.High < c.Low:
		return fmt.Errorf("high below low")
	case c.Volume < 0 || math.IsNaN(c.Volume):
		return fmt.Errorf("negative volume")
	}
	return nil
}

func (s *Store) retention(tf models.Timeframe) time.Duration {
	if tf.IsDaily() {
		return s.opts.DailyRetention
	}
	return s.opts.IntradayRetention
}

// IngestPortfolioUpdate replaces the portfolio snapshot. When p.Positions is
// non-nil the position map is rebuilt from it in the same critical section;
// an empty slice clears every position.
func (s *Store) IngestPortfolioUpdate(p models.PortfolioUpdate) {
	if p.Equity < 0 || math.IsNaN(p.Equity) {
		s.drop("portfolio", "negative equity", logger.Float("equity", p.Equity))
		return
	}
	at := p.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	snap := models.PortfolioSnapshot{Equity: p.Equity, Cash: p.Cash, UpdatedAt: at}

	s.mu.Lock()
	s.portfolio = snap
	s.hasPortfolio = true
	if p.Positions != nil {
		next := make(map[string]models.Position, len(p.Positions))
		for _, pos := range p.Positions {
			if pos.Symbol == "" {
				continue
			}
			if pos.UpdatedAt.IsZero() {
				pos.UpdatedAt = at
			}
			next[pos.Symbol] = pos
		}
		s.positions = next
	}
	s.equity = upsertByTime(s.equity, equityPoint{at: at, equity: p.Equity}, equityTime)
	positions := s.positionsLocked()
	s.mu.Unlock()

	s.accepted.Add(1)
	eventbus.Emit(s.bus, events.PortfolioChanged, events.PortfolioUpdated{Snapshot: snap, Positions: positions})
}

// UpsertSymbol stores or refreshes the reference record of a symbol.
func (s *Store) UpsertSymbol(ref models.SymbolRef) {
	if ref.Symbol == "" {
		s.drop("symbol", "missing symbol")
		return
	}
	if ref.UpdatedAt.IsZero() {
		ref.UpdatedAt = s.now()
	}
	if ref.AssetClass == "" {
		ref.AssetClass = models.AssetEquity
	}

	s.mu.Lock()
	s.symbols[ref.Symbol] = ref
	s.mu.Unlock()

	s.accepted.Add(1)
	eventbus.Emit(s.bus, events.SymbolUpdated, ref)
}

// IngestOracleSignal appends sig to the signal feed. A signal with a known
// id replaces the earlier one.
func (s *Store) IngestOracleSignal(sig models.OracleSignal) {
	if sig.Symbol == "" || !sig.Type.IsValid() {
		s.drop("signal", "missing symbol or unknown type", logger.String("symbol", sig.Symbol), logger.String("type", string(sig.Type)))
		return
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = s.now()
	}
	sig.Strength = indicators.Clamp01(sig.Strength)
	if sig.Severity == "" {
		sig.Severity = severityFromStrength(sig.Strength)
	}
	if sig.Direction == "" {
		sig.Direction = models.DirectionNeutral
	}
	cutoff := s.now().Add(-s.opts.SignalRetention)

	s.mu.Lock()
	signals := s.signals
	for i := range signals {
		if signals[i].ID == sig.ID {
			signals = append(signals[:i:i], signals[i+1:]...)
			break
		}
	}
	signals = insertSignal(signals, sig)
	s.signals, _ = pruneBefore(signals, cutoff, signalTime)
	s.mu.Unlock()

	s.accepted.Add(1)
	eventbus.Emit(s.bus, events.OracleSignal, sig)
}

// insertSignal keeps the feed ascending; equal timestamps keep arrival order.
func insertSignal(xs []models.OracleSignal, sig models.OracleSignal) []models.OracleSignal {
	i := sort.Search(len(xs), func(i int) bool { return xs[i].Timestamp.After(sig.Timestamp) })
	xs = append(xs, sig)
	copy(xs[i+1:], xs[i:])
	xs[i] = sig
	return xs
}

func severityFromStrength(strength float64) models.Severity {
	switch {
	case strength >= 0.9:
		return models.SeverityCritical
	case strength >= 0.7:
		return models.SeverityHigh
	case strength >= 0.4:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// IngestQuote records the latest top-of-book for a symbol.
func (s *Store) IngestQuote(q models.Quote) {
	if q.Symbol == "" || q.Bid < 0 || q.Ask < 0 {
		s.drop("quote", "missing symbol or negative price", logger.String("symbol", q.Symbol))
		return
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = s.now()
	}
	s.mu.Lock()
	s.quotes[q.Symbol] = q
	s.mu.Unlock()
	s.accepted.Add(1)
	if q.Last > 0 {
		s.metrics.RecordLastPrice(q.Symbol, q.Last)
	}
}

// RecordTrade counts a trade on symbol for the overtrading checks.
func (s *Store) RecordTrade(symbol string, at time.Time) {
	if at.IsZero() {
		at = s.now()
	}
	cutoff := s.now().Add(-s.opts.TradeWindow)

	s.mu.Lock()
	defer s.mu.Unlock()
	ts := append(s.trades[symbol], at)
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	i := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(cutoff) })
	s.trades[symbol] = ts[i:]
	s.tradesSeen++
}

// GetCandles returns up to limit of the newest candles, oldest first.
func (s *Store) GetCandles(symbol string, tf models.Timeframe, limit int) []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.candles[seriesKey{symbol, tf}], limit)
}

// GetIndicators returns the live indicator snapshot for (symbol, tf).
func (s *Store) GetIndicators(symbol string, tf models.Timeframe) (models.IndicatorSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.indicators[seriesKey{symbol, tf}]
	return snap, ok
}

// GetIndicatorHistory returns up to limit past snapshots, oldest first.
func (s *Store) GetIndicatorHistory(symbol string, tf models.Timeframe, limit int) []models.IndicatorSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.indicatorHistory[seriesKey{symbol, tf}], limit)
}

// GetPositions returns the open positions sorted by symbol.
func (s *Store) GetPositions() []models.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionsLocked()
}

func (s *Store) positionsLocked() []models.Position {
	out := make([]models.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// GetPosition returns the open position in symbol, if any.
func (s *Store) GetPosition(symbol string) (models.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[symbol]
	return p, ok
}

// GetPortfolioSnapshot returns the current snapshot, zero before the first update.
func (s *Store) GetPortfolioSnapshot() models.PortfolioSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.portfolio
}

// GetPortfolio returns the snapshot and the positions of the same update.
func (s *Store) GetPortfolio() (models.PortfolioSnapshot, []models.Position) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.portfolio, s.positionsLocked()
}

// DayOpenEquity returns the equity at the start of the UTC day containing at:
// the last point before midnight, else the first point of the day.
func (s *Store) DayOpenEquity(at time.Time) (float64, bool) {
	midnight := at.UTC().Truncate(24 * time.Hour)
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.equity), func(i int) bool { return !s.equity[i].at.Before(midnight) })
	switch {
	case i > 0:
		return s.equity[i-1].equity, true
	case i < len(s.equity) && s.equity[i].at.Before(midnight.Add(24*time.Hour)):
		return s.equity[i].equity, true
	}
	return 0, false
}

// GetLatestRiskSnapshot returns the newest portfolio risk point.
func (s *Store) GetLatestRiskSnapshot() (models.PortfolioRisk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.risk) == 0 {
		return models.PortfolioRisk{}, false
	}
	return s.risk[len(s.risk)-1], true
}

// GetRiskHistory returns up to limit risk points, oldest first.
func (s *Store) GetRiskHistory(limit int) []models.PortfolioRisk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.risk, limit)
}

// GetPositionRisk returns the newest risk point for a position.
func (s *Store) GetPositionRisk(symbol string) (models.PositionRisk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.positionRisk[symbol]
	if len(h) == 0 {
		return models.PositionRisk{}, false
	}
	return h[len(h)-1], true
}

// GetOracleSignals returns up to limit signals, newest first.
func (s *Store) GetOracleSignals(limit int) []models.OracleSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := tail(s.signals, limit)
	reverse(out)
	return out
}

// GetSignalsFor returns the signals on symbol at or after since, newest first.
func (s *Store) GetSignalsFor(symbol string, since time.Time) []models.OracleSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signalsForLocked(symbol, since)
}

func (s *Store) signalsForLocked(symbol string, since time.Time) []models.OracleSignal {
	var out []models.OracleSignal
	for i := len(s.signals) - 1; i >= 0; i-- {
		sig := s.signals[i]
		if sig.Timestamp.Before(since) {
			break
		}
		if strings.EqualFold(sig.Symbol, symbol) {
			out = append(out, sig)
		}
	}
	return out
}

func reverse[T any](xs []T) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// GetSymbol returns the reference record of symbol.
func (s *Store) GetSymbol(symbol string) (models.SymbolRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.symbols[symbol]
	return ref, ok
}

// Symbols returns every known symbol reference sorted by symbol.
func (s *Store) Symbols() []models.SymbolRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SymbolRef, 0, len(s.symbols))
	for _, ref := range s.symbols {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Rollups returns up to limit daily rollups, oldest first.
func (s *Store) Rollups(limit int) []models.PerformanceRollup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.rollups, limit)
}

// GetSymbolContext assembles the market view the overseer decides on.
// Missing data yields neutral values: a volume ratio of 1 with HasVolume unset.
func (s *Store) GetSymbolContext(symbol string) models.SymbolContext {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := models.SymbolContext{Symbol: symbol, VolumeRatio: 1}
	daily := s.candles[seriesKey{symbol, models.TFD1}]
	q, hasQuote := s.quotes[symbol]

	ctx.LastPrice = s.lastPriceLocked(symbol)
	switch {
	case hasQuote && q.Bid > 0 && q.Ask > 0:
		ctx.SpreadPct = q.SpreadPct()
	default:
		if h := s.positionRisk[symbol]; len(h) > 0 {
			ctx.SpreadPct = h[len(h)-1].EstimatedSpread
		}
	}

	if hasQuote && q.AvgVolume > 0 {
		ctx.VolumeRatio = q.Volume / q.AvgVolume
		ctx.HasVolume = true
	} else if ratio, ok := volumeRatio(daily); ok {
		ctx.VolumeRatio = ratio
		ctx.HasVolume = true
	} else if ratio, ok := volumeRatio(s.candles[seriesKey{symbol, models.TF1m}]); ok {
		ctx.VolumeRatio = ratio
		ctx.HasVolume = true
	}

	ctx.Volatility = s.est.Volatility(symbol, daily)

	cutoff := now.Add(-s.opts.TradeWindow)
	for _, at := range s.trades[symbol] {
		if !at.Before(cutoff) {
			ctx.RecentTrades++
		}
	}
	ctx.RecentSignals = s.signalsForLocked(symbol, cutoff)
	return ctx
}

func (s *Store) lastPriceLocked(symbol string) float64 {
	if q, ok := s.quotes[symbol]; ok && q.Last > 0 {
		return q.Last
	}
	var (
		last  float64
		lastT time.Time
	)
	for _, tf := range models.Timeframes {
		series := s.candles[seriesKey{symbol, tf}]
		if len(series) == 0 {
			continue
		}
		c := series[len(series)-1]
		if c.Timestamp.After(lastT) {
			last, lastT = c.Close, c.Timestamp
		}
	}
	return last
}

// volumeRatio compares the newest bar volume to the mean of up to 20
// preceding bars.
func volumeRatio(series []models.Candle) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	start := len(series) - 21
	if start < 0 {
		start = 0
	}
	var sum float64
	prior := series[start : len(series)-1]
	for _, c := range prior {
		sum += c.Volume
	}
	avg := sum / float64(len(prior))
	if avg <= 0 {
		return 0, false
	}
	return series[len(series)-1].Volume / avg, true
}
