package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StagAlgo/internal/domain/models"
	domrepo "StagAlgo/internal/domain/repository"
	domsvc "StagAlgo/internal/domain/service"
	"StagAlgo/pkg/logger"
	"StagAlgo/pkg/metrics"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// ErrNoPrice is returned when neither the request nor the store has a price.
var ErrNoPrice = errors.New("no reference price")

// GateMarket is the store view the gate needs.
type GateMarket interface {
	EquityHistory
	GetSymbolContext(symbol string) models.SymbolContext
	RecordTrade(symbol string, at time.Time)
	Now() time.Time
}

// TradeGate runs a proposed trade through the validator and the overseer
// and forwards what survives to the execution service.
type TradeGate struct {
	market    GateMarket
	validator domsvc.TradeValidator
	governor  domsvc.Governor
	executor  domsvc.Executor
	activity  *ActivityTracker
	gap       time.Duration
	validate  *validator.Validate
	log       *logger.Logger
	metrics   domrepo.Metrics
}

type GateOption func(*TradeGate)

func WithGateLogger(l *logger.Logger) GateOption {
	return func(g *TradeGate) {
		if l != nil {
			g.log = l.With("trade_gate")
		}
	}
}

// WithConsecutiveGap sets the pause that ends a run of consecutive trades.
func WithConsecutiveGap(d time.Duration) GateOption {
	return func(g *TradeGate) { g.gap = d }
}

func WithGateMetrics(m domrepo.Metrics) GateOption {
	return func(g *TradeGate) {
		if m != nil {
			g.metrics = m
		}
	}
}

// NewTradeGate wires the gate. A nil executor makes Submit fail after the
// checks with "execution not configured".
func NewTradeGate(market GateMarket, v domsvc.TradeValidator, gov domsvc.Governor, exec domsvc.Executor, opts ...GateOption) *TradeGate {
	g := &TradeGate{
		market:    market,
		validator: v,
		governor:  gov,
		executor:  exec,
		validate:  validator.New(),
		log:       logger.Nop(),
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.activity = NewActivityTracker(market, g.gap)
	return g
}

// SubmitParams is a trade submission by a user. Activity reported by the
// caller can only tighten the server's own view of the user's trading.
type SubmitParams struct {
	UserID   string
	Trade    models.TradeRequest
	Activity models.TradeActivity
}

// Context builds the validator input for p.
func (g *TradeGate) Context(p SubmitParams) (models.TradeContext, error) {
	req := p.Trade.Clone()
	if err := defaults.Set(&req); err != nil {
		return models.TradeContext{}, fmt.Errorf("apply defaults: %w", err)
	}
	if err := g.validate.Struct(req); err != nil {
		return models.TradeContext{}, fmt.Errorf("invalid trade: %w", err)
	}
	price := g.market.GetSymbolContext(req.Symbol).LastPrice
	if req.Price != nil && *req.Price > 0 {
		price = *req.Price
	}
	if price <= 0 {
		return models.TradeContext{}, fmt.Errorf("%s: %w", req.Symbol, ErrNoPrice)
	}
	now := g.market.Now()
	return models.TradeContext{
		UserID:    p.UserID,
		Trade:     req,
		Price:     price,
		Timestamp: now,
		Activity:  tighten(g.activity.Activity(p.UserID, now), p.Activity),
	}, nil
}

// Validate runs only the rule table.
func (g *TradeGate) Validate(p SubmitParams) (models.ValidationResult, error) {
	tc, err := g.Context(p)
	if err != nil {
		return models.ValidationResult{}, err
	}
	return g.validator.ValidateTrade(tc), nil
}

// Evaluate runs only the overseer.
func (g *TradeGate) Evaluate(req models.TradeRequest) models.Decision {
	return g.governor.EvaluateTrade(req.Clone())
}

// Submit validates, governs and executes a trade. The overseer is consulted
// only when validation passed, and only approve or soft_pull reach the
// executor. Every failure is reported in the result, never as a panic.
func (g *TradeGate) Submit(ctx context.Context, p SubmitParams) models.GateResult {
	start := time.Now()
	defer func() { g.metrics.RecordLatency("trade_gate", time.Since(start).Seconds()) }()

	tc, err := g.Context(p)
	if err != nil {
		return models.GateResult{Success: false, Message: err.Error()}
	}

	vr := g.validator.ValidateTrade(tc)
	res := models.GateResult{Validation: &vr}
	if !vr.Passed {
		res.Message = blockedMessage(vr)
		return res
	}

	d := g.governor.EvaluateTrade(tc.Trade)
	res.Decision = &d
	trade, ok := d.Effective()
	if !ok {
		res.Message = "trade pulled by overseer"
		if len(d.Reasons) > 0 {
			res.Message += ": " + d.Reasons[0]
		}
		return res
	}

	if g.executor == nil {
		res.Message = "execution not configured"
		return res
	}
	er, err := g.executor.Execute(ctx, trade)
	res.Execution = &er
	if err != nil || !er.Success {
		res.Message = er.Error
		if res.Message == "" && err != nil {
			res.Message = err.Error()
		}
		g.log.Warn("execution failed",
			logger.String("user_id", p.UserID),
			logger.String("symbol", trade.Symbol),
			logger.String("error", res.Message))
		return res
	}

	executedAt := g.market.Now()
	g.market.RecordTrade(trade.Symbol, executedAt)
	g.activity.RecordExecution(p.UserID, executedAt)
	res.Success = true
	res.Message = "executed"
	if d.Action == models.ActionSoftPull {
		res.Message = "executed with modifications"
	}
	g.log.Info("trade executed",
		logger.String("user_id", p.UserID),
		logger.String("symbol", trade.Symbol),
		logger.String("order_id", er.OrderID),
		logger.String("action", string(d.Action)))
	return res
}

// RecordOutcome feeds a closed trade back to the validator and to the
// user's activity history.
func (g *TradeGate) RecordOutcome(o models.TradeOutcome) error {
	if err := g.validate.Struct(o); err != nil {
		return fmt.Errorf("invalid outcome: %w", err)
	}
	g.activity.RecordOutcome(o, g.market.Now())
	g.validator.RecordOutcome(o)
	return nil
}

func blockedMessage(vr models.ValidationResult) string {
	if len(vr.Violations) == 0 {
		return "trade blocked"
	}
	return "trade blocked: " + vr.Violations[0].Message
}
