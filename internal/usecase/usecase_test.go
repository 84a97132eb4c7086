package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/events"
	"StagAlgo/internal/overseer"
	"StagAlgo/internal/store"
	"StagAlgo/internal/validator"
	"StagAlgo/pkg/eventbus"
	"StagAlgo/pkg/metrics"
	"StagAlgo/pkg/queue"
	"StagAlgo/pkg/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)

type marketStub struct {
	price  float64
	trades []string
	equity float64
	open   float64
}

func (m *marketStub) GetSymbolContext(symbol string) models.SymbolContext {
	return models.SymbolContext{Symbol: symbol, LastPrice: m.price}
}
func (m *marketStub) RecordTrade(symbol string, _ time.Time) { m.trades = append(m.trades, symbol) }
func (m *marketStub) Now() time.Time                         { return now }
func (m *marketStub) GetPortfolioSnapshot() models.PortfolioSnapshot {
	return models.PortfolioSnapshot{Equity: m.equity}
}
func (m *marketStub) DayOpenEquity(time.Time) (float64, bool) { return m.open, m.open > 0 }

type validatorStub struct {
	result   models.ValidationResult
	seen     []models.TradeContext
	outcomes []models.TradeOutcome
}

func (v *validatorStub) ValidateTrade(tc models.TradeContext) models.ValidationResult {
	v.seen = append(v.seen, tc)
	return v.result
}
func (v *validatorStub) RecordOutcome(o models.TradeOutcome) { v.outcomes = append(v.outcomes, o) }

type governorStub struct {
	decide func(models.TradeRequest) models.Decision
	calls  int
}

func (g *governorStub) EvaluateTrade(req models.TradeRequest) models.Decision {
	g.calls++
	return g.decide(req)
}

type executorStub struct {
	res  models.ExecutionResult
	err  error
	sent []models.TradeRequest
}

func (e *executorStub) Execute(_ context.Context, req models.TradeRequest) (models.ExecutionResult, error) {
	e.sent = append(e.sent, req)
	return e.res, e.err
}

func approve(req models.TradeRequest) models.Decision {
	return models.Decision{Action: models.ActionApprove, Original: req}
}

func buy(qty float64) models.TradeRequest {
	return models.TradeRequest{Symbol: "AAPL", Side: models.SideBuy, Quantity: qty}
}

func newGate(price float64) (*TradeGate, *marketStub, *validatorStub, *governorStub, *executorStub) {
	m := &marketStub{price: price}
	v := &validatorStub{result: models.ValidationResult{Passed: true}}
	g := &governorStub{decide: approve}
	e := &executorStub{res: models.ExecutionResult{Success: true, OrderID: "o-1"}}
	return NewTradeGate(m, v, g, e), m, v, g, e
}

func TestSubmitApprovedExecutesAndRecordsTrade(t *testing.T) {
	gate, m, v, _, e := newGate(200)
	res := gate.Submit(context.Background(), SubmitParams{UserID: "u1", Trade: buy(5)})

	assert.True(t, res.Success)
	assert.Equal(t, "executed", res.Message)
	require.NotNil(t, res.Execution)
	assert.Equal(t, "o-1", res.Execution.OrderID)
	require.Len(t, e.sent, 1)
	assert.Equal(t, models.OrderMarket, e.sent[0].OrderType, "defaults applied")
	assert.Equal(t, []string{"AAPL"}, m.trades)

	require.Len(t, v.seen, 1)
	assert.Equal(t, 200.0, v.seen[0].Price)
	assert.Equal(t, now, v.seen[0].Timestamp)
	assert.Equal(t, 1000.0, v.seen[0].Notional())
}

func TestSubmitBlockedSkipsOverseer(t *testing.T) {
	gate, m, v, g, e := newGate(200)
	v.result = models.ValidationResult{Passed: false, Violations: []models.Violation{{RuleID: "position_size", Message: "position too large"}}}

	res := gate.Submit(context.Background(), SubmitParams{UserID: "u1", Trade: buy(5)})
	assert.False(t, res.Success)
	assert.Equal(t, "trade blocked: position too large", res.Message)
	assert.Nil(t, res.Decision)
	assert.Zero(t, g.calls)
	assert.Empty(t, e.sent)
	assert.Empty(t, m.trades)
}

func TestSubmitHardPullNeverExecutes(t *testing.T) {
	gate, _, _, g, e := newGate(200)
	g.decide = func(req models.TradeRequest) models.Decision {
		return models.Decision{Action: models.ActionHardPull, Original: req, Reasons: []string{"collapse risk"}}
	}
	res := gate.Submit(context.Background(), SubmitParams{UserID: "u1", Trade: buy(5)})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "collapse risk")
	require.NotNil(t, res.Decision)
	assert.Empty(t, e.sent)
}

func TestSubmitSoftPullSendsModifiedTrade(t *testing.T) {
	gate, _, _, g, e := newGate(200)
	g.decide = func(req models.TradeRequest) models.Decision {
		mod := req.Clone()
		mod.Quantity = req.Quantity / 2
		return models.Decision{Action: models.ActionSoftPull, Original: req, Modified: &mod}
	}
	res := gate.Submit(context.Background(), SubmitParams{UserID: "u1", Trade: buy(10)})
	assert.True(t, res.Success)
	assert.Equal(t, "executed with modifications", res.Message)
	require.Len(t, e.sent, 1)
	assert.Equal(t, 5.0, e.sent[0].Quantity)
}

func TestSubmitExecutionFailureIsReported(t *testing.T) {
	gate, m, _, _, e := newGate(200)
	e.res = models.ExecutionResult{Success: false, Error: "execution service timeout"}
	e.err = context.DeadlineExceeded

	res := gate.Submit(context.Background(), SubmitParams{UserID: "u1", Trade: buy(5)})
	assert.False(t, res.Success)
	assert.Equal(t, "execution service timeout", res.Message)
	assert.Empty(t, m.trades)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	gate, _, v, _, _ := newGate(0)
	ctx := context.Background()

	res := gate.Submit(ctx, SubmitParams{UserID: "u1", Trade: buy(5)})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "no reference price")

	limit := 150.0
	lim := buy(5)
	lim.OrderType = models.OrderLimit
	lim.Price = &limit
	res = gate.Submit(ctx, SubmitParams{UserID: "u1", Trade: lim})
	assert.True(t, res.Success, "limit price stands in for a missing quote")
	assert.Equal(t, 150.0, v.seen[0].Price)

	res = gate.Submit(ctx, SubmitParams{UserID: "u1", Trade: buy(0)})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "invalid trade")

	bad := buy(1)
	bad.Side = "hold"
	_, err := gate.Validate(SubmitParams{Trade: bad})
	assert.Error(t, err)
}

func TestSubmitWithoutExecutor(t *testing.T) {
	v := &validatorStub{result: models.ValidationResult{Passed: true}}
	gate := NewTradeGate(&marketStub{price: 10}, v, &governorStub{decide: approve}, nil)
	res := gate.Submit(context.Background(), SubmitParams{UserID: "u1", Trade: buy(1)})
	assert.False(t, res.Success)
	assert.Equal(t, "execution not configured", res.Message)
}

func TestEvaluateAndRecordOutcome(t *testing.T) {
	gate, _, v, g, _ := newGate(200)
	d := gate.Evaluate(buy(3))
	assert.Equal(t, models.ActionApprove, d.Action)
	assert.Equal(t, 1, g.calls)

	assert.Error(t, gate.RecordOutcome(models.TradeOutcome{Symbol: "AAPL"}))
	require.NoError(t, gate.RecordOutcome(models.TradeOutcome{UserID: "u1", Symbol: "AAPL", PnL: -10}))
	assert.Len(t, v.outcomes, 1)
}

func TestActivityTrackerCountsExecutionsAndLosses(t *testing.T) {
	m := &marketStub{equity: 100000, open: 100000}
	tr := NewActivityTracker(m, 10*time.Minute)

	tr.RecordExecution("u1", now.Add(-25*time.Hour))
	tr.RecordExecution("u1", now.Add(-3*time.Hour))
	for i := 3; i >= 1; i-- {
		tr.RecordExecution("u1", now.Add(-time.Duration(i)*5*time.Minute))
	}
	tr.RecordExecution("u2", now.Add(-time.Minute))

	a := tr.Activity("u1", now)
	assert.Equal(t, 4, a.TradesToday)
	assert.Equal(t, 3, a.TradesLastHour)
	assert.Equal(t, 3, a.ConsecutiveTrades)
	assert.True(t, a.LastLossAt.IsZero())
	assert.Zero(t, a.DailyPnL)

	a = tr.Activity("u1", now.Add(30*time.Minute))
	assert.Zero(t, a.ConsecutiveTrades, "run ends after the gap")

	tr.RecordOutcome(models.TradeOutcome{UserID: "u1", Symbol: "AAPL", PnL: -800}, now.Add(-20*time.Minute))
	tr.RecordOutcome(models.TradeOutcome{UserID: "u1", Symbol: "MSFT", PnL: 300, ClosedAt: now.Add(-2 * time.Minute)}, now)
	tr.RecordOutcome(models.TradeOutcome{UserID: "u1", Symbol: "TSLA", PnL: -5000, ClosedAt: now.Add(-26 * time.Hour)}, now)
	a = tr.Activity("u1", now)
	assert.Equal(t, -500.0, a.DailyPnL)
	assert.Equal(t, now.Add(-20*time.Minute), a.LastLossAt)

	assert.Equal(t, 1, tr.Activity("u2", now).TradesToday)
	assert.Equal(t, models.TradeActivity{}, tr.Activity("nobody", now))
}

func TestActivityTrackerUsesPortfolioDayChange(t *testing.T) {
	m := &marketStub{equity: 96000, open: 100000}
	tr := NewActivityTracker(m, 0)
	tr.RecordOutcome(models.TradeOutcome{UserID: "u1", Symbol: "AAPL", PnL: -1000}, now)

	assert.Equal(t, -4000.0, tr.Activity("u1", now).DailyPnL)

	m.equity = 103000
	assert.Equal(t, -1000.0, tr.Activity("u1", now).DailyPnL)
}

func TestReportedActivityOnlyTightens(t *testing.T) {
	server := models.TradeActivity{TradesToday: 6, TradesLastHour: 3, ConsecutiveTrades: 2, DailyPnL: -1500, LastLossAt: now.Add(-time.Hour)}

	got := tighten(server, models.TradeActivity{})
	assert.Equal(t, server, got)

	got = tighten(server, models.TradeActivity{
		TradesToday: 9, TradesLastHour: 1, ConsecutiveTrades: 4,
		DailyPnL: 500, LastLossAt: now.Add(-5 * time.Minute), ResearchMinutes: 20,
	})
	assert.Equal(t, 9, got.TradesToday)
	assert.Equal(t, 3, got.TradesLastHour)
	assert.Equal(t, 4, got.ConsecutiveTrades)
	assert.Equal(t, -1500.0, got.DailyPnL)
	assert.Equal(t, now.Add(-5*time.Minute), got.LastLossAt)
	assert.Equal(t, 20.0, got.ResearchMinutes)
}

func TestGateFeedsServerActivityToValidator(t *testing.T) {
	gate, _, v, _, _ := newGate(200)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, gate.Submit(ctx, SubmitParams{UserID: "u1", Trade: buy(1)}).Success)
	}
	require.NoError(t, gate.RecordOutcome(models.TradeOutcome{UserID: "u1", Symbol: "AAPL", PnL: -250}))

	tc, err := gate.Context(SubmitParams{UserID: "u1", Trade: buy(1)})
	require.NoError(t, err)
	assert.Equal(t, 3, tc.Activity.TradesToday)
	assert.Equal(t, 3, tc.Activity.TradesLastHour)
	assert.Equal(t, 3, tc.Activity.ConsecutiveTrades)
	assert.Equal(t, -250.0, tc.Activity.DailyPnL)
	assert.Equal(t, now, tc.Activity.LastLossAt)

	tc, err = gate.Context(SubmitParams{UserID: "u2", Trade: buy(1), Activity: models.TradeActivity{TradesLastHour: 7}})
	require.NoError(t, err)
	assert.Equal(t, 0, tc.Activity.TradesToday)
	assert.Equal(t, 7, tc.Activity.TradesLastHour)
	assert.Len(t, v.seen, 3)
}

func TestGateEnforcesFrequencyAndLossRulesWithoutReportedActivity(t *testing.T) {
	clock := scheduler.NewVirtual(now)
	bus := eventbus.New()
	st := store.New(bus, clock)
	st.IngestPortfolioUpdate(models.PortfolioUpdate{Equity: 100000, Cash: 100000, Positions: []models.Position{}})
	st.IngestCandle(models.Candle{Symbol: "AAPL", Timeframe: models.TFD1, Timestamp: now.Add(-24 * time.Hour),
		Open: 99, High: 101, Low: 98, Close: 100, Volume: 1e6})
	ex := &executorStub{res: models.ExecutionResult{Success: true, OrderID: "o-1"}}
	gate := NewTradeGate(st, validator.New(st, bus, clock), overseer.New(st, bus, clock), ex)
	ctx := context.Background()

	var executed int
	var last models.GateResult
	for i := 0; i < 12; i++ {
		last = gate.Submit(ctx, SubmitParams{UserID: "u1", Trade: buy(10)})
		if last.Success {
			executed++
		}
		clock.Advance(time.Minute)
	}
	assert.Equal(t, 4, executed)
	assert.Len(t, ex.sent, 4)
	require.NotNil(t, last.Validation)
	require.NotEmpty(t, last.Validation.Violations)
	assert.Equal(t, validator.RuleOvertrading, last.Validation.Violations[0].RuleID)

	require.True(t, gate.Submit(ctx, SubmitParams{UserID: "u2", Trade: buy(10)}).Success)
	require.NoError(t, gate.RecordOutcome(models.TradeOutcome{UserID: "u2", Symbol: "AAPL", PnL: -5000}))
	clock.Advance(time.Hour)

	res := gate.Submit(ctx, SubmitParams{UserID: "u2", Trade: buy(10)})
	assert.False(t, res.Success)
	require.NotNil(t, res.Validation)
	var rules []string
	for _, v := range res.Validation.Violations {
		rules = append(rules, v.RuleID)
	}
	assert.Contains(t, rules, validator.RuleDailyLoss)
	assert.Len(t, ex.sent, 5)
}

type cleanerStub struct {
	accept bool
	events []models.RepositoryEvent
}

func (c *cleanerStub) Handle(ev models.RepositoryEvent) bool {
	c.events = append(c.events, ev)
	return c.accept
}

func TestIngestHandler(t *testing.T) {
	cl := &cleanerStub{accept: true}
	h := NewIngestHandler("stag.repository.events", cl, metrics.Nop{})
	assert.Equal(t, "stag.repository.events", h.Topic())
	ctx := context.Background()

	assert.Error(t, h.Handle(ctx, []byte("{not json")))
	assert.Error(t, h.Handle(ctx, []byte(`{"symbol":"AAPL"}`)))
	assert.Empty(t, cl.events)

	b, err := json.Marshal(models.RepositoryEvent{Event: models.EventFeedData, Symbol: "AAPL", DataType: models.DataQuote, Timestamp: now, RawData: json.RawMessage(`{"bid":1,"ask":1.01}`)})
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, b))

	cl.accept = false
	require.NoError(t, h.Handle(ctx, b), "rejected records are acknowledged")
	require.Len(t, cl.events, 2)
	assert.Equal(t, models.DataQuote, cl.events[0].DataType)
}

type readerStub struct{ candles []models.Candle }

func (r readerStub) GetCandles(symbol string, tf models.Timeframe, limit int) []models.Candle {
	if limit < len(r.candles) {
		return r.candles[len(r.candles)-limit:]
	}
	return r.candles
}
func (r readerStub) GetIndicators(string, models.Timeframe) (models.IndicatorSnapshot, bool) {
	return models.IndicatorSnapshot{RSI14: 55}, true
}

type fetcherStub struct {
	candles []models.Candle
	err     error
}

func (f fetcherStub) FetchCandles(context.Context, string, models.Timeframe, int) ([]models.Candle, error) {
	return f.candles, f.err
}

func TestGetCandles(t *testing.T) {
	uc := NewCandlesUseCase(readerStub{candles: make([]models.Candle, 3)}, nil, &cleanerStub{})
	ctx := context.Background()

	_, err := uc.GetCandles(ctx, GetCandlesParams{})
	assert.ErrorIs(t, err, ErrBadRequest)
	_, err = uc.GetCandles(ctx, GetCandlesParams{Symbol: "aapl", Timeframe: "2h"})
	assert.ErrorIs(t, err, ErrBadRequest)

	res, err := uc.GetCandles(ctx, GetCandlesParams{Symbol: " aapl ", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, models.TF1m, res.Timeframe)
	assert.Equal(t, 2, res.Count)
	require.NotNil(t, res.Indicators)

	_, err = uc.Backfill(ctx, GetCandlesParams{Symbol: "AAPL"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBackfillReplaysAsImports(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	f := fetcherStub{candles: []models.Candle{
		{Timestamp: day, Open: 1, High: 2, Low: 1, Close: 2, Volume: 100},
		{Symbol: "MSFT", Timeframe: models.TFD1, Timestamp: day.Add(24 * time.Hour), Open: 2, High: 3, Low: 2, Close: 3},
	}}
	cl := &cleanerStub{accept: true}
	uc := NewCandlesUseCase(readerStub{}, f, cl)

	res, err := uc.Backfill(context.Background(), GetCandlesParams{Symbol: "msft", Timeframe: models.TFD1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Accepted)
	require.Len(t, cl.events, 2)
	for _, ev := range cl.events {
		assert.Equal(t, models.EventCSVImported, ev.Event)
		assert.Equal(t, models.DataCandle, ev.DataType)
		assert.Equal(t, "MSFT", ev.Symbol)
	}
	var c models.Candle
	require.NoError(t, json.Unmarshal(cl.events[0].RawData, &c))
	assert.Equal(t, models.TFD1, c.Timeframe)

	uc = NewCandlesUseCase(readerStub{}, fetcherStub{err: errors.New("down")}, cl)
	_, err = uc.Backfill(context.Background(), GetCandlesParams{Symbol: "MSFT"})
	assert.Error(t, err)
}

func TestWarmupContinuesPastFailures(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cl := &cleanerStub{accept: true}
	uc := NewCandlesUseCase(readerStub{}, nil, cl)

	src := fetcherStub{candles: []models.Candle{{Timestamp: day, Open: 1, High: 1, Low: 1, Close: 1}}}
	n, err := uc.Warmup(context.Background(), src, []string{"aapl", "", "msft"}, models.TFD1, 10)
	assert.Error(t, err, "empty symbol is reported")
	assert.Equal(t, 2, n)
	require.Len(t, cl.events, 2)
	assert.Equal(t, "AAPL", cl.events[0].Symbol)
}

type queueStub struct {
	types    []string
	payloads []interface{}
}

func (q *queueStub) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	q.types = append(q.types, msgType)
	q.payloads = append(q.payloads, payload)
	return "job-1", nil
}

func TestQueuedBackfillRunsThroughJob(t *testing.T) {
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cl := &cleanerStub{accept: true}
	uc := NewCandlesUseCase(readerStub{}, fetcherStub{candles: []models.Candle{{Timestamp: day, Open: 1, High: 1, Low: 1, Close: 1}}}, cl)
	ctx := context.Background()

	_, err := uc.EnqueueBackfill(ctx, GetCandlesParams{Symbol: "AAPL"})
	assert.ErrorIs(t, err, ErrUnavailable)

	q := &queueStub{}
	uc.SetQueue(q)
	id, err := uc.EnqueueBackfill(ctx, GetCandlesParams{Symbol: "aapl", Timeframe: models.TFD1})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	require.Equal(t, []string{JobTypeBackfill}, q.types)

	raw, err := json.Marshal(q.payloads[0])
	require.NoError(t, err)
	job := NewBackfillJob(uc)
	require.NoError(t, job.Handle(ctx, json.RawMessage(raw)))
	require.Len(t, cl.events, 1)
	assert.Equal(t, "AAPL", cl.events[0].Symbol)

	err = job.Handle(ctx, 42)
	assert.True(t, queue.IsPermanent(err), "undecodable payloads are not retried")
	err = job.Handle(ctx, json.RawMessage(`{"symbol":""}`))
	assert.True(t, queue.IsPermanent(err))
	assert.ErrorIs(t, err, ErrBadRequest)
}

type publisherStub struct {
	mu      sync.Mutex
	fail    bool
	batches map[string][]string
	closed  bool
}

func (p *publisherStub) Publish(_ context.Context, kind, key string, _ interface{}) error {
	return p.PublishBatch(context.Background(), kind, []string{key}, []interface{}{nil})
}

func (p *publisherStub) PublishBatch(_ context.Context, kind string, keys []string, _ []interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	if p.batches == nil {
		p.batches = map[string][]string{}
	}
	p.batches[kind] = append(p.batches[kind], keys...)
	return nil
}

func (p *publisherStub) Close() error { p.closed = true; return nil }

type mirrorStub struct {
	candles   []models.Candle
	risks     int
	signals   int
	decisions int
}

func (m *mirrorStub) Init(context.Context) error { return nil }
func (m *mirrorStub) SaveCandles(_ context.Context, c []models.Candle) error {
	m.candles = append(m.candles, c...)
	return nil
}
func (m *mirrorStub) SaveRisk(context.Context, models.PortfolioRisk) error { m.risks++; return nil }
func (m *mirrorStub) SaveSignal(context.Context, models.OracleSignal) error {
	m.signals++
	return nil
}
func (m *mirrorStub) SaveDecision(context.Context, models.Decision) error { m.decisions++; return nil }
func (m *mirrorStub) Health(context.Context) error                        { return nil }
func (m *mirrorStub) Close() error                                        { return nil }

func TestRelayFlushesOnSchedule(t *testing.T) {
	bus := eventbus.New()
	clock := scheduler.NewVirtual(now)
	pub, mir := &publisherStub{}, &mirrorStub{}
	r := NewRelay(bus, clock, pub, mir, RelayOptions{FlushInterval: time.Second}, nil, metrics.Nop{})
	r.Start()
	r.Start()

	eventbus.Emit(bus, events.CandleIngested, models.Candle{Symbol: "AAPL", Timeframe: models.TF1m, Timestamp: now})
	eventbus.Emit(bus, events.CandleIngested, models.Candle{Symbol: "MSFT", Timeframe: models.TF1m, Timestamp: now})
	eventbus.Emit(bus, events.OracleSignal, models.OracleSignal{Symbol: "AAPL"})
	eventbus.Emit(bus, events.DecisionIssued, models.Decision{Original: buy(1)})
	eventbus.Emit(bus, events.RiskUpdated, models.PortfolioRisk{Timestamp: now})
	eventbus.Emit(bus, events.AlertRaised, models.OverseerAlert{Symbol: "AAPL"})
	eventbus.Emit(bus, events.IngestRejected, events.IngestDropped{DataType: models.DataTrade})
	assert.Empty(t, pub.batches, "handlers only buffer")
	assert.Equal(t, 12, r.Pending())

	clock.Advance(time.Second)
	assert.Equal(t, []string{"AAPL", "MSFT"}, pub.batches[KindCandle])
	assert.Equal(t, []string{"AAPL"}, pub.batches[KindSignal])
	assert.Equal(t, []string{"portfolio"}, pub.batches[KindRisk])
	assert.Len(t, pub.batches[KindAlert], 1)
	assert.Len(t, pub.batches[KindDropped], 1)
	assert.Len(t, mir.candles, 2)
	assert.Equal(t, 1, mir.risks)
	assert.Equal(t, 1, mir.signals)
	assert.Equal(t, 1, mir.decisions)
	assert.Zero(t, r.Pending())

	r.Shutdown(context.Background())
	assert.Zero(t, clock.Pending())
	eventbus.Emit(bus, events.CandleIngested, models.Candle{Symbol: "AAPL"})
	assert.Zero(t, r.Pending(), "unsubscribed")
}

func TestRelayBoundsPendingAndSurvivesFailures(t *testing.T) {
	bus := eventbus.New()
	clock := scheduler.NewVirtual(now)
	pub := &publisherStub{fail: true}
	r := NewRelay(bus, clock, pub, nil, RelayOptions{FlushInterval: time.Second, MaxPending: 2}, nil, metrics.Nop{})
	r.Start()
	defer r.Shutdown(context.Background())

	for i := 0; i < 5; i++ {
		eventbus.Emit(bus, events.AlertRaised, models.OverseerAlert{Symbol: "AAPL"})
	}
	assert.Equal(t, 2, r.Pending())

	clock.Advance(time.Second)
	assert.Zero(t, r.Pending(), "failed writes are not retried")
	assert.Empty(t, pub.batches)
}

type slowMirror struct{ mirrorStub }

func (m *slowMirror) SaveCandles(ctx context.Context, _ []models.Candle) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRelayBoundsMirrorWrites(t *testing.T) {
	bus := eventbus.New()
	clock := scheduler.NewVirtual(now)
	r := NewRelay(bus, clock, nil, &slowMirror{}, RelayOptions{FlushInterval: time.Second, WriteTimeout: 10 * time.Millisecond}, nil, metrics.Nop{})
	r.Start()
	defer r.Shutdown(context.Background())

	eventbus.Emit(bus, events.CandleIngested, models.Candle{Symbol: "AAPL", Timeframe: models.TF1m, Timestamp: now})
	done := make(chan struct{})
	go func() {
		clock.Advance(time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not honour the write timeout")
	}
	assert.Zero(t, r.Pending())
}

func TestTradeArchiver(t *testing.T) {
	pub := &publisherStub{}
	a := NewTradeArchiver(pub, metrics.Nop{})
	ctx := context.Background()

	assert.Error(t, a.Process(ctx, nil))
	require.NoError(t, a.Process(ctx, &models.Trade{Symbol: "AAPL", Price: 1}))
	require.NoError(t, a.ProcessBatch(ctx, []*models.Trade{{Symbol: "MSFT"}, {Symbol: "NVDA"}}))
	require.NoError(t, a.ProcessBatch(ctx, nil))
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, pub.batches[KindTrade])

	pub.fail = true
	assert.Error(t, a.Process(ctx, &models.Trade{Symbol: "AAPL"}))
	require.NoError(t, a.Close())
	assert.True(t, pub.closed)
}
