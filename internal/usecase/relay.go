package usecase

import (
	"context"
	"sync"
	"time"

	"StagAlgo/internal/domain/models"
	drepo "StagAlgo/internal/domain/repository"
	"StagAlgo/internal/events"
	"StagAlgo/pkg/eventbus"
	"StagAlgo/pkg/logger"
	"StagAlgo/pkg/scheduler"
)

// Publisher kinds of relayed bus topics.
const (
	KindCandle      = "candle"
	KindRisk        = "risk"
	KindSignal      = "signal"
	KindDecision    = "decision"
	KindAlert       = "alert"
	KindSearchAlert = "search_alert"
	KindDropped     = "ingest_dropped"
)

type RelayOptions struct {
	FlushInterval time.Duration
	MaxPending    int
	// WriteTimeout bounds the mirror writes of one flush. Zero means no bound.
	WriteTimeout time.Duration
}

func DefaultRelayOptions() RelayOptions {
	return RelayOptions{FlushInterval: 5 * time.Second, MaxPending: 10000}
}

type outbound struct {
	kind    string
	key     string
	payload interface{}
}

// Relay mirrors selected bus topics to the message bus and the analytical
// store. Handlers only buffer; a scheduled flush does the writes, so slow
// backends never block the publisher of an event.
type Relay struct {
	bus     *eventbus.Bus
	sched   scheduler.Scheduler
	pub     drepo.Publisher
	mirror  drepo.Mirror
	opts    RelayOptions
	log     *logger.Logger
	metrics drepo.Metrics

	mu        sync.Mutex
	out       []outbound
	candles   []models.Candle
	risks     []models.PortfolioRisk
	signals   []models.OracleSignal
	decisions []models.Decision

	cancels []func()
}

// NewRelay wires a relay. pub and mirror may each be nil.
func NewRelay(bus *eventbus.Bus, sched scheduler.Scheduler, pub drepo.Publisher, mirror drepo.Mirror, opts RelayOptions, l *logger.Logger, m drepo.Metrics) *Relay {
	if l == nil {
		l = logger.Nop()
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultRelayOptions().FlushInterval
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = DefaultRelayOptions().MaxPending
	}
	return &Relay{bus: bus, sched: sched, pub: pub, mirror: mirror, opts: opts, log: l.With("relay"), metrics: m}
}

// Start subscribes to the relayed topics and schedules the flush.
func (r *Relay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancels != nil {
		return
	}
	r.cancels = []func(){
		eventbus.Subscribe(r.bus, events.CandleIngested, func(c models.Candle) {
			r.enqueue(KindCandle, c.Symbol, c, func() { r.candles = append(r.candles, c) })
		}),
		eventbus.Subscribe(r.bus, events.RiskUpdated, func(x models.PortfolioRisk) {
			r.enqueue(KindRisk, "portfolio", x, func() { r.risks = append(r.risks, x) })
		}),
		eventbus.Subscribe(r.bus, events.OracleSignal, func(s models.OracleSignal) {
			r.enqueue(KindSignal, s.Symbol, s, func() { r.signals = append(r.signals, s) })
		}),
		eventbus.Subscribe(r.bus, events.DecisionIssued, func(d models.Decision) {
			r.enqueue(KindDecision, d.Original.Symbol, d, func() { r.decisions = append(r.decisions, d) })
		}),
		eventbus.Subscribe(r.bus, events.AlertRaised, func(a models.OverseerAlert) {
			r.enqueue(KindAlert, a.Symbol, a, nil)
		}),
		eventbus.Subscribe(r.bus, events.SearchAlerted, func(a models.SearchAlert) {
			r.enqueue(KindSearchAlert, a.UserID, a, nil)
		}),
		eventbus.Subscribe(r.bus, events.IngestRejected, func(d events.IngestDropped) {
			r.enqueue(KindDropped, string(d.DataType), d, nil)
		}),
	}
	r.cancels = append(r.cancels, r.sched.Schedule(r.opts.FlushInterval, func(ctx context.Context) {
		r.Flush(ctx)
	}))
}

// Shutdown unsubscribes and flushes what is pending.
func (r *Relay) Shutdown(ctx context.Context) {
	r.mu.Lock()
	cancels := r.cancels
	r.cancels = nil
	r.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	r.Flush(ctx)
}

func (r *Relay) enqueue(kind, key string, payload interface{}, mirror func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.out)+len(r.candles) >= r.opts.MaxPending {
		r.metrics.RecordError("relay_overflow")
		return
	}
	if r.pub != nil {
		r.out = append(r.out, outbound{kind: kind, key: key, payload: payload})
	}
	if r.mirror != nil && mirror != nil {
		mirror()
	}
}

// Pending returns the number of buffered publisher messages and mirror rows.
func (r *Relay) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.out) + len(r.candles) + len(r.risks) + len(r.signals) + len(r.decisions)
}

// Flush writes everything buffered. Failed writes are logged and counted,
// not retried.
func (r *Relay) Flush(ctx context.Context) {
	r.mu.Lock()
	out, candles, risks, signals, decisions := r.out, r.candles, r.risks, r.signals, r.decisions
	r.out, r.candles, r.risks, r.signals, r.decisions = nil, nil, nil, nil, nil
	r.mu.Unlock()

	start := time.Now()
	if len(out) > 0 {
		r.publish(ctx, out)
	}
	if r.mirror != nil {
		sctx := ctx
		if r.opts.WriteTimeout > 0 {
			var cancel context.CancelFunc
			sctx, cancel = context.WithTimeout(ctx, r.opts.WriteTimeout)
			defer cancel()
		}
		r.save(sctx, candles, risks, signals, decisions)
	}
	r.metrics.RecordLatency("relay_flush", time.Since(start).Seconds())
}

func (r *Relay) publish(ctx context.Context, out []outbound) {
	byKind := make(map[string][]outbound)
	var order []string
	for _, o := range out {
		if _, ok := byKind[o.kind]; !ok {
			order = append(order, o.kind)
		}
		byKind[o.kind] = append(byKind[o.kind], o)
	}
	for _, kind := range order {
		batch := byKind[kind]
		keys := make([]string, len(batch))
		payloads := make([]interface{}, len(batch))
		for i, o := range batch {
			keys[i], payloads[i] = o.key, o.payload
		}
		if err := r.pub.PublishBatch(ctx, kind, keys, payloads); err != nil {
			r.metrics.RecordError("relay_publish")
			r.log.Error("relay publish failed", logger.String("kind", kind), logger.Int("count", len(batch)), logger.Error(err))
			continue
		}
		for range batch {
			r.metrics.RecordMessageSent("kafka", kind)
		}
	}
}

func (r *Relay) save(ctx context.Context, candles []models.Candle, risks []models.PortfolioRisk, signals []models.OracleSignal, decisions []models.Decision) {
	fail := func(what string, err error) {
		r.metrics.RecordError("relay_mirror")
		r.log.Error("mirror write failed", logger.String("table", what), logger.Error(err))
	}
	if len(candles) > 0 {
		if err := r.mirror.SaveCandles(ctx, candles); err != nil {
			fail("candles", err)
		} else {
			r.metrics.RecordMessageSent("clickhouse", KindCandle)
		}
	}
	for _, x := range risks {
		if err := r.mirror.SaveRisk(ctx, x); err != nil {
			fail("risk", err)
		}
	}
	for _, s := range signals {
		if err := r.mirror.SaveSignal(ctx, s); err != nil {
			fail("signals", err)
		}
	}
	for _, d := range decisions {
		if err := r.mirror.SaveDecision(ctx, d); err != nil {
			fail("decisions", err)
		}
	}
}
