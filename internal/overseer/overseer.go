// Package overseer is the position governor: the last gate a validated trade
// passes before execution, and a periodic scanner of open positions.
package overseer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/domain/repository"
	"StagAlgo/internal/events"
	"StagAlgo/pkg/eventbus"
	"StagAlgo/pkg/logger"
	"StagAlgo/pkg/metrics"
	"StagAlgo/pkg/scheduler"

	"github.com/google/uuid"
)

// ReasonSystemError is the only reason of a fail-closed decision.
const ReasonSystemError = "system error"

// Market is the store view the overseer reads.
type Market interface {
	GetSymbolContext(symbol string) models.SymbolContext
	GetSignalsFor(symbol string, since time.Time) []models.OracleSignal
	GetPositions() []models.Position
}

type Options struct {
	ScanInterval      time.Duration
	CriticalWindow    time.Duration
	MaxSpreadPct      float64
	MinVolumeRatio    float64
	MaxVolatility     float64
	MaxTradesPerHour  int
	UnrealizedLossPct float64
	// AlertCooldown suppresses repeating the same (symbol, kind) alert.
	AlertCooldown time.Duration
	// StopDistancePct is the stop distance from price after tightening.
	StopDistancePct float64
}

func DefaultOptions() Options {
	return Options{
		ScanInterval:      15 * time.Second,
		CriticalWindow:    15 * time.Minute,
		MaxSpreadPct:      0.05,
		MinVolumeRatio:    0.30,
		MaxVolatility:     0.50,
		MaxTradesPerHour:  3,
		UnrealizedLossPct: 0.15,
		AlertCooldown:     15 * time.Minute,
		StopDistancePct:   0.02,
	}
}

// Quantity multipliers of the soft-pull modifications.
const (
	cutReduceExposure = 0.5
	cutWideSpread     = 0.75
	cutLowVolume      = 0.5
	cutOvertrading    = 0.5
)

type Option func(*Overseer)

func WithOptions(o Options) Option { return func(ov *Overseer) { ov.opts = o } }

func WithLogger(l *logger.Logger) Option {
	return func(ov *Overseer) {
		if l != nil {
			ov.log = l.With("overseer")
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(ov *Overseer) {
		if m != nil {
			ov.metrics = m
		}
	}
}

type alertKey struct {
	symbol string
	kind   models.AlertKind
}

type Overseer struct {
	market  Market
	bus     *eventbus.Bus
	sched   scheduler.Scheduler
	opts    Options
	log     *logger.Logger
	metrics repository.Metrics

	mu        sync.RWMutex
	collapse  map[string]models.CollapseSignal
	lastAlert map[alertKey]time.Time
	cancels   []func()
}

func New(market Market, bus *eventbus.Bus, sched scheduler.Scheduler, opts ...Option) *Overseer {
	o := &Overseer{
		market:    market,
		bus:       bus,
		sched:     sched,
		opts:      DefaultOptions(),
		log:       logger.Nop(),
		metrics:   metrics.Nop{},
		collapse:  make(map[string]models.CollapseSignal),
		lastAlert: make(map[alertKey]time.Time),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start subscribes to oracle signals and schedules the position scan.
func (o *Overseer) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.cancels) > 0 {
		return
	}
	o.cancels = append(o.cancels,
		eventbus.Subscribe(o.bus, events.OracleSignal, func(sig models.OracleSignal) { o.UpdateCollapse(sig) }),
		o.sched.Schedule(o.opts.ScanInterval, func(context.Context) { o.Scan() }),
	)
	o.log.Info("overseer started", logger.Duration("scan_interval", o.opts.ScanInterval))
}

// Shutdown cancels the scan and the signal subscription.
func (o *Overseer) Shutdown() {
	o.mu.Lock()
	cancels := o.cancels
	o.cancels = nil
	o.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// UpdateCollapse overwrites the collapse signal of sig.Symbol.
func (o *Overseer) UpdateCollapse(sig models.OracleSignal) models.CollapseSignal {
	cs := ScoreSignal(sig)
	if cs.GeneratedAt.IsZero() {
		cs.GeneratedAt = o.sched.Now()
	}
	o.mu.Lock()
	o.collapse[cs.Symbol] = cs
	o.mu.Unlock()

	if cs.Recommendation != models.RecNoAction {
		o.log.Info("collapse signal updated",
			logger.String("symbol", cs.Symbol),
			logger.Float("score", cs.Score),
			logger.String("recommendation", string(cs.Recommendation)),
		)
	}
	eventbus.Emit(o.bus, events.CollapseUpdated, cs)
	return cs
}

// Collapse returns the current collapse signal of symbol.
func (o *Overseer) Collapse(symbol string) (models.CollapseSignal, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	cs, ok := o.collapse[symbol]
	return cs, ok
}

// CollapseSignals returns every collapse signal, highest score first.
func (o *Overseer) CollapseSignals() []models.CollapseSignal {
	o.mu.RLock()
	out := make([]models.CollapseSignal, 0, len(o.collapse))
	for _, cs := range o.collapse {
		out = append(out, cs)
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// EvaluateTrade issues exactly one decision for req. Errors and panics while
// deciding yield a hard pull.
func (o *Overseer) EvaluateTrade(req models.TradeRequest) models.Decision {
	d := models.Decision{
		ID:        uuid.NewString(),
		Original:  req.Clone(),
		DecidedAt: o.sched.Now(),
	}
	if err := o.decide(&d); err != nil {
		o.log.Error("trade evaluation failed", logger.String("symbol", req.Symbol), logger.Error(err))
		o.metrics.RecordError("overseer_evaluate")
		d.Action = models.ActionHardPull
		d.Reasons = []string{ReasonSystemError}
		d.Modified = nil
	}

	o.metrics.RecordDecision(string(d.Action))
	o.log.Info("trade decision",
		logger.String("decision_id", d.ID),
		logger.String("symbol", req.Symbol),
		logger.String("action", string(d.Action)),
		logger.Strings("reasons", d.Reasons),
	)
	eventbus.Emit(o.bus, events.DecisionIssued, d)
	return d
}

func (o *Overseer) decide(d *models.Decision) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	req := d.Original
	if req.Symbol == "" || req.Quantity <= 0 || math.IsNaN(req.Quantity) {
		return fmt.Errorf("invalid trade request for %q", req.Symbol)
	}
	ctx := o.market.GetSymbolContext(req.Symbol)
	cs, hasCollapse := o.Collapse(req.Symbol)
	if hasCollapse {
		d.Collapse = &cs
	}

	if hasCollapse && cs.Recommendation == models.RecExitImmediately {
		d.Action = models.ActionHardPull
		d.Reasons = []string{fmt.Sprintf("collapse risk %.2f: exit immediately", cs.Score)}
		return nil
	}
	for _, sig := range o.market.GetSignalsFor(req.Symbol, d.DecidedAt.Add(-o.opts.CriticalWindow)) {
		if sig.Severity == models.SeverityCritical {
			d.Action = models.ActionHardPull
			d.Reasons = []string{fmt.Sprintf("critical %s signal from %s", sig.Type, sig.Source)}
			return nil
		}
	}

	mod := req.Clone()
	var reasons []string
	cut := func(reason string, factor float64) {
		reasons = append(reasons, reason)
		mod.Quantity *= factor
	}
	if hasCollapse && cs.Recommendation == models.RecReduceExposure {
		cut(fmt.Sprintf("collapse risk %.2f: reduce exposure", cs.Score), cutReduceExposure)
	}
	if ctx.SpreadPct > o.opts.MaxSpreadPct {
		cut(fmt.Sprintf("wide spread %.1f%%", ctx.SpreadPct*100), cutWideSpread)
	}
	if ctx.HasVolume && ctx.VolumeRatio < o.opts.MinVolumeRatio {
		cut(fmt.Sprintf("low volume %.0f%% of average", ctx.VolumeRatio*100), cutLowVolume)
	}
	if ctx.Volatility > o.opts.MaxVolatility {
		reasons = append(reasons, fmt.Sprintf("high volatility %.0f%%", ctx.Volatility*100))
		o.tightenStop(&mod, ctx.LastPrice)
	}
	if ctx.RecentTrades > o.opts.MaxTradesPerHour {
		cut(fmt.Sprintf("%d trades in the last hour", ctx.RecentTrades), cutOvertrading)
	}

	if len(reasons) == 0 {
		d.Action = models.ActionApprove
		d.Reasons = []string{}
		return nil
	}
	mod.Quantity = roundQuantity(req.Quantity, mod.Quantity)
	d.Action = models.ActionSoftPull
	d.Reasons = reasons
	d.Modified = &mod
	return nil
}

// tightenStop moves the stop loss to StopDistancePct from the reference
// price unless it is already closer.
func (o *Overseer) tightenStop(req *models.TradeRequest, lastPrice float64) {
	price := lastPrice
	if req.Price != nil && *req.Price > 0 {
		price = *req.Price
	}
	if price <= 0 {
		return
	}
	if req.Side == models.SideSell {
		stop := price * (1 + o.opts.StopDistancePct)
		if req.StopLoss == nil || *req.StopLoss > stop {
			req.StopLoss = &stop
		}
		return
	}
	stop := price * (1 - o.opts.StopDistancePct)
	if req.StopLoss == nil || *req.StopLoss < stop {
		req.StopLoss = &stop
	}
}

// roundQuantity keeps whole-share orders whole and never cuts below one share.
func roundQuantity(original, q float64) float64 {
	if original >= 1 && original == math.Trunc(original) {
		return math.Max(1, math.Floor(q))
	}
	return q
}

// Scan checks every open position for collapse risk and deep unrealized
// losses. It only raises alerts; positions are never closed here.
func (o *Overseer) Scan() []models.OverseerAlert {
	now := o.sched.Now()
	var alerts []models.OverseerAlert

	for _, p := range o.market.GetPositions() {
		if cs, ok := o.Collapse(p.Symbol); ok &&
			(cs.Recommendation == models.RecExitImmediately || cs.Recommendation == models.RecReduceExposure) {
			alerts = append(alerts, models.OverseerAlert{
				Symbol:    p.Symbol,
				Kind:      models.AlertCollapseRisk,
				Message:   fmt.Sprintf("collapse score %.2f, recommendation %s", cs.Score, cs.Recommendation),
				Value:     cs.Score,
				CreatedAt: now,
			})
		}
		if pct := p.UnrealizedPct(); pct < -o.opts.UnrealizedLossPct {
			alerts = append(alerts, models.OverseerAlert{
				Symbol:    p.Symbol,
				Kind:      models.AlertUnrealizedLoss,
				Message:   fmt.Sprintf("unrealized loss %.1f%%", -pct*100),
				Value:     pct,
				CreatedAt: now,
			})
		}
	}

	o.mu.Lock()
	raised := alerts[:0]
	for _, a := range alerts {
		key := alertKey{a.Symbol, a.Kind}
		if last, ok := o.lastAlert[key]; ok && now.Sub(last) < o.opts.AlertCooldown {
			continue
		}
		o.lastAlert[key] = now
		raised = append(raised, a)
	}
	o.mu.Unlock()

	for _, a := range raised {
		o.log.Warn("position alert",
			logger.String("symbol", a.Symbol),
			logger.String("kind", string(a.Kind)),
			logger.Float("value", a.Value),
		)
		eventbus.Emit(o.bus, events.AlertRaised, a)
	}
	return raised
}
