package store

import (
	"math"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/events"
	"StagAlgo/internal/services/indicators"
	"StagAlgo/pkg/eventbus"
	"StagAlgo/pkg/logger"
)

// RecomputeIndicators rebuilds the live snapshot of every candle series and
// appends it to the indicator history.
func (s *Store) RecomputeIndicators() {
	s.mu.RLock()
	inputs := make(map[seriesKey][]models.Candle, len(s.candles))
	for key, series := range s.candles {
		if len(series) > 0 {
			inputs[key] = tail(series, 0)
		}
	}
	s.mu.RUnlock()

	snaps := make([]models.IndicatorSnapshot, 0, len(inputs))
	for key, series := range inputs {
		snaps = append(snaps, indicators.Snapshot(key.symbol, key.tf, series))
	}
	cutoff := s.now().Add(-s.opts.IndicatorRetention)

	s.mu.Lock()
	for _, snap := range snaps {
		key := seriesKey{snap.Symbol, snap.Timeframe}
		s.indicators[key] = snap
		h := upsertByTime(s.indicatorHistory[key], snap, snapshotTime)
		s.indicatorHistory[key], _ = pruneBefore(h, cutoff, snapshotTime)
	}
	s.mu.Unlock()

	for _, snap := range snaps {
		eventbus.Emit(s.bus, events.IndicatorsUpdated, snap)
	}
	s.log.Debug("indicators recomputed", logger.Int("series", len(snaps)))
}

type riskInput struct {
	portfolio models.PortfolioSnapshot
	positions []models.Position
	equity    []float64
	daily     map[string][]models.Candle
	benchmark []models.Candle
	atr       map[string]float64
	quotes    map[string]models.Quote
}

// RecomputeRisk appends one portfolio risk point and one risk point per open
// position. Nothing is recorded before the first portfolio update.
func (s *Store) RecomputeRisk() {
	now := s.now()

	s.mu.RLock()
	if !s.hasPortfolio {
		s.mu.RUnlock()
		return
	}
	in := riskInput{
		portfolio: s.portfolio,
		positions: s.positionsLocked(),
		equity:    make([]float64, len(s.equity)),
		daily:     make(map[string][]models.Candle),
		benchmark: tail(s.candles[seriesKey{indicators.BenchmarkSymbol, models.TFD1}], 0),
		atr:       make(map[string]float64),
		quotes:    make(map[string]models.Quote),
	}
	for i, p := range s.equity {
		in.equity[i] = p.equity
	}
	for _, p := range in.positions {
		in.daily[p.Symbol] = tail(s.candles[seriesKey{p.Symbol, models.TFD1}], 0)
		if snap, ok := s.indicators[seriesKey{p.Symbol, models.TFD1}]; ok {
			in.atr[p.Symbol] = snap.ATR14
		}
		if q, ok := s.quotes[p.Symbol]; ok {
			in.quotes[p.Symbol] = q
		}
	}
	s.mu.RUnlock()

	risk, perPosition := s.computeRisk(now, in)

	s.mu.Lock()
	s.risk = upsertByTime(s.risk, risk, riskTime)
	for _, pr := range perPosition {
		s.positionRisk[pr.Symbol] = upsertByTime(s.positionRisk[pr.Symbol], pr, positionRiskTime)
	}
	s.mu.Unlock()

	eventbus.Emit(s.bus, events.RiskUpdated, risk)
}

func (s *Store) computeRisk(now time.Time, in riskInput) (models.PortfolioRisk, []models.PositionRisk) {
	beta := make(map[string]float64, len(in.positions))
	vol := make(map[string]float64, len(in.positions))
	adv := make(map[string]float64, len(in.positions))
	perPosition := make([]models.PositionRisk, 0, len(in.positions))

	var gross float64
	for _, p := range in.positions {
		daily := in.daily[p.Symbol]
		beta[p.Symbol] = s.est.Beta(p.Symbol, daily, in.benchmark)
		vol[p.Symbol] = s.est.Volatility(p.Symbol, daily)
		adv[p.Symbol] = advPct(p.Quantity, daily)
		gross += math.Abs(p.MarketValue)

		price := positionPrice(p)
		dailyVol := vol[p.Symbol] / math.Sqrt(indicators.TradingDays)
		stop, target := indicators.SuggestedLevels(price, in.atr[p.Symbol], dailyVol, p.Quantity >= 0)
		perPosition = append(perPosition, models.PositionRisk{
			Symbol:          p.Symbol,
			Timestamp:       now,
			Beta:            beta[p.Symbol],
			ADVPct:          adv[p.Symbol],
			EstimatedSpread: estimatedSpread(in.quotes[p.Symbol], price, in.atr[p.Symbol]),
			SuggestedStop:   stop,
			SuggestedTarget: target,
		})
	}

	portfolioBeta := indicators.DefaultBeta
	if len(in.positions) > 0 && gross > 0 {
		portfolioBeta = indicators.WeightedAverage(in.positions, func(sym string) float64 { return beta[sym] })
	}
	dailyVol := indicators.WeightedAverage(in.positions, func(sym string) float64 { return vol[sym] }) / math.Sqrt(indicators.TradingDays)
	var95 := indicators.ParametricVaR95(gross, dailyVol)
	drawdown := indicators.CurrentDrawdown(in.equity)
	concentration := indicators.TopConcentration(in.positions, in.portfolio.Equity)

	risk := models.PortfolioRisk{
		Timestamp:        now,
		DrawdownPct:      drawdown * 100,
		Beta:             portfolioBeta,
		VaR95:            var95,
		ES95:             indicators.ExpectedShortfall95(var95),
		ConcentrationPct: concentration * 100,
		LiquidityScore:   indicators.LiquidityScore(indicators.WeightedAverage(in.positions, func(sym string) float64 { return adv[sym] })),
		RiskState: indicators.RiskState(indicators.RiskInputs{
			Drawdown:      drawdown,
			Concentration: concentration,
			BetaDeviation: portfolioBeta - 1,
		}),
	}
	if len(in.positions) == 0 {
		risk.LiquidityScore = 1
	}
	return risk, perPosition
}

func positionPrice(p models.Position) float64 {
	if p.Quantity != 0 && p.MarketValue != 0 {
		return math.Abs(p.MarketValue / p.Quantity)
	}
	return p.AvgCost
}

// advPct is |quantity| as a percentage of the 20-day average daily volume.
func advPct(quantity float64, daily []models.Candle) float64 {
	window := tail(daily, 20)
	var sum float64
	for _, c := range window {
		sum += c.Volume
	}
	if len(window) == 0 || sum <= 0 {
		return 0
	}
	return math.Abs(quantity) / (sum / float64(len(window))) * 100
}

// estimatedSpread prefers the quoted spread; otherwise a twentieth of the
// daily ATR relative to price, floored at 5 bps.
func estimatedSpread(q models.Quote, price, atr float64) float64 {
	if sp := q.SpreadPct(); sp > 0 {
		return sp
	}
	const floor = 0.0005
	if price <= 0 || atr <= 0 {
		return floor
	}
	return math.Max(floor, atr/price/20)
}

// PruneRetention applies every retention window and returns the number of
// removed elements.
func (s *Store) PruneRetention() int {
	now := s.now()
	removed := 0

	s.mu.Lock()
	for key, series := range s.candles {
		var n int
		s.candles[key], n = pruneBefore(series, now.Add(-s.retention(key.tf)), candleTime)
		removed += n
	}
	for key, h := range s.indicatorHistory {
		var n int
		s.indicatorHistory[key], n = pruneBefore(h, now.Add(-s.opts.IndicatorRetention), snapshotTime)
		removed += n
	}
	for sym, h := range s.positionRisk {
		var n int
		s.positionRisk[sym], n = pruneBefore(h, now.Add(-s.opts.PositionRiskRetention), positionRiskTime)
		removed += n
	}
	var n int
	s.risk, n = pruneBefore(s.risk, now.Add(-s.opts.RiskRetention), riskTime)
	removed += n
	s.equity, n = pruneBefore(s.equity, now.Add(-s.opts.RiskRetention), equityTime)
	removed += n
	s.rollups, n = pruneBefore(s.rollups, now.Add(-s.opts.RiskRetention), rollupTime)
	removed += n
	s.signals, n = pruneBefore(s.signals, now.Add(-s.opts.SignalRetention), signalTime)
	removed += n
	s.mu.Unlock()

	if removed > 0 {
		s.log.Info("retention sweep", logger.Int("removed", removed))
	}
	return removed
}

// RollupPerformance summarizes activity since the previous rollup.
func (s *Store) RollupPerformance() models.PerformanceRollup {
	now := s.now()
	accepted, dropped := s.accepted.Load(), s.dropped.Load()

	s.mu.Lock()
	since := s.lastRollup.at
	var (
		sum    float64
		points int
	)
	for i := len(s.risk) - 1; i >= 0 && s.risk[i].Timestamp.After(since); i-- {
		sum += s.risk[i].RiskState
		points++
	}
	var equity []float64
	for _, p := range s.equity {
		if p.at.After(since) {
			equity = append(equity, p.equity)
		}
	}
	r := models.PerformanceRollup{
		Day:            now.UTC().Truncate(24 * time.Hour),
		TradesSeen:     s.tradesSeen,
		Accepted:       accepted - s.lastRollup.accepted,
		Dropped:        dropped - s.lastRollup.dropped,
		EndEquity:      s.portfolio.Equity,
		MaxDrawdownPct: indicators.MaxDrawdown(equity) * 100,
	}
	if points > 0 {
		r.AvgRiskState = sum / float64(points)
	}
	s.rollups = upsertByTime(s.rollups, r, rollupTime)
	s.tradesSeen = 0
	s.lastRollup.at = now
	s.lastRollup.accepted = accepted
	s.lastRollup.dropped = dropped
	s.mu.Unlock()

	s.log.Info("performance rollup",
		logger.Time("day", r.Day),
		logger.Int("trades", r.TradesSeen),
		logger.Int64("accepted", r.Accepted),
		logger.Int64("dropped", r.Dropped),
		logger.Float("avg_risk_state", r.AvgRiskState),
	)
	eventbus.Emit(s.bus, events.RollupCompleted, r)
	return r
}

// GetHealth classifies store freshness. Unhealthy wins over degraded.
func (s *Store) GetHealth() models.Health {
	now := s.now()

	s.mu.RLock()
	h := models.Health{
		Signals:             len(s.signals),
		Symbols:             s.symbolCountLocked(),
		PortfolioAgeMinutes: -1,
		CheckedAt:           now,
	}
	hasPortfolio := s.hasPortfolio
	if hasPortfolio {
		h.PortfolioAgeMinutes = now.Sub(s.portfolio.UpdatedAt).Minutes()
	}
	s.mu.RUnlock()
	h.Dropped = s.dropped.Load()

	degraded := s.opts.DegradedAfter.Minutes()
	unhealthy := s.opts.UnhealthyAfter.Minutes()
	switch {
	case !hasPortfolio || h.PortfolioAgeMinutes > unhealthy || h.Symbols == 0:
		h.Status = models.HealthUnhealthy
	case h.PortfolioAgeMinutes > degraded || h.Signals == 0:
		h.Status = models.HealthDegraded
	default:
		h.Status = models.HealthHealthy
	}
	s.metrics.RecordHealth(string(h.Status))
	return h
}

// symbolCountLocked counts symbols with a reference record or any candles.
func (s *Store) symbolCountLocked() int {
	seen := make(map[string]struct{}, len(s.symbols))
	for sym := range s.symbols {
		seen[sym] = struct{}{}
	}
	for key, series := range s.candles {
		if len(series) > 0 {
			seen[key.symbol] = struct{}{}
		}
	}
	return len(seen)
}
