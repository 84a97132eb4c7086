// Package validator evaluates proposed trades against a fixed rule table with
// per-user threshold adaptation and outcome-driven effectiveness scores.
package validator

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/domain/repository"
	"StagAlgo/internal/events"
	"StagAlgo/internal/services/indicators"
	"StagAlgo/pkg/eventbus"
	"StagAlgo/pkg/logger"
	"StagAlgo/pkg/metrics"
	"StagAlgo/pkg/scheduler"
)

// Effectiveness bounds.
const (
	EffectivenessFloor   = 0.1
	EffectivenessCeiling = 1.0
)

// Market is the store view the rules read.
type Market interface {
	GetPortfolio() (models.PortfolioSnapshot, []models.Position)
	GetSymbol(symbol string) (models.SymbolRef, bool)
	GetPositionRisk(symbol string) (models.PositionRisk, bool)
}

type Option func(*Validator)

func WithLimits(l Limits) Option { return func(v *Validator) { v.limits = l } }

func WithLearningRate(rate float64) Option {
	return func(v *Validator) {
		if rate > 0 && rate <= 1 {
			v.learningRate = rate
		}
	}
}

func WithAdaptations(a *AdaptationStore) Option {
	return func(v *Validator) {
		if a != nil {
			v.adaptations = a
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.log = l.With("validator")
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(v *Validator) {
		if m != nil {
			v.metrics = m
		}
	}
}

// Validator owns the rule table. Rule definitions, counters and effectiveness
// are guarded by mu; per-user state lives in the AdaptationStore.
type Validator struct {
	mu    sync.Mutex
	rules map[string]*models.ValidationRule
	order []string

	market       Market
	bus          *eventbus.Bus
	clock        scheduler.Clock
	adaptations  *AdaptationStore
	limits       Limits
	learningRate float64
	log          *logger.Logger
	metrics      repository.Metrics
}

func New(market Market, bus *eventbus.Bus, clock scheduler.Clock, opts ...Option) *Validator {
	v := &Validator{
		rules:        make(map[string]*models.ValidationRule),
		market:       market,
		bus:          bus,
		clock:        clock,
		adaptations:  NewAdaptationStore(),
		limits:       DefaultLimits(),
		learningRate: 0.1,
		log:          logger.Nop(),
		metrics:      metrics.Nop{},
	}
	for _, opt := range opts {
		opt(v)
	}
	for _, r := range Catalogue(v.limits) {
		v.rules[r.ID] = &r
		v.order = append(v.order, r.ID)
	}
	return v
}

// Adaptations exposes the per-user override store.
func (v *Validator) Adaptations() *AdaptationStore { return v.adaptations }

// SetUserProfile derives the user's threshold multipliers from the profile.
func (v *Validator) SetUserProfile(p models.UserProfile) {
	v.adaptations.ApplyProfile(p, v.Rules())
	v.log.Info("user profile applied",
		logger.String("user_id", p.UserID),
		logger.String("experience", string(p.Experience)),
		logger.String("personality", string(p.Personality)),
	)
}

// ValidateTrade runs every enabled rule against tc. Blocking severities go to
// Violations and fail the trade; warnings never do. For a fixed rule table,
// adaptation and store state the result depends only on tc.
func (v *Validator) ValidateTrade(tc models.TradeContext) models.ValidationResult {
	if tc.Timestamp.IsZero() {
		tc.Timestamp = v.clock.Now()
	}
	tc.Trade.Symbol = strings.ToUpper(tc.Trade.Symbol)
	view := v.view(tc.Trade.Symbol)

	result := models.ValidationResult{
		Violations:   []models.Violation{},
		Warnings:     []models.Violation{},
		AdaptedRules: []string{},
		EvaluatedAt:  tc.Timestamp,
	}

	v.mu.Lock()
	for _, id := range v.order {
		rule := v.rules[id]
		if !rule.Enabled {
			continue
		}
		params := rule.Parameters
		if rule.Adaptive && tc.UserID != "" {
			if o, ok := v.adaptations.Get(tc.UserID, id); ok {
				params = effective(rule.Parameters, o)
				result.AdaptedRules = append(result.AdaptedRules, id)
			}
		}
		viol, violated := checks[id](params, tc, view)
		if !violated {
			continue
		}
		viol.RuleID = rule.ID
		viol.RuleName = rule.Name
		viol.Category = rule.Category
		viol.Severity = rule.Severity
		viol.BlockTrade = rule.Severity.Blocks()

		rule.ViolationCount++
		at := tc.Timestamp
		rule.LastViolation = &at
		v.metrics.RecordViolation(id)

		if viol.BlockTrade {
			result.Violations = append(result.Violations, viol)
		} else {
			result.Warnings = append(result.Warnings, viol)
		}
	}
	v.mu.Unlock()

	result.Passed = len(result.Violations) == 0
	v.metrics.RecordValidation(result.Passed)
	v.log.Info("trade validated",
		logger.String("user_id", tc.UserID),
		logger.String("symbol", tc.Trade.Symbol),
		logger.String("side", string(tc.Trade.Side)),
		logger.Float("notional", tc.Notional()),
		logger.Bool("passed", result.Passed),
		logger.Int("violations", len(result.Violations)),
		logger.Int("warnings", len(result.Warnings)),
		logger.Strings("adapted", result.AdaptedRules),
	)
	eventbus.Emit(v.bus, events.TradeChecked, events.TradeValidated{Context: tc, Result: result})
	return result
}

func (v *Validator) view(symbol string) marketView {
	snap, positions := v.market.GetPortfolio()
	m := marketView{
		equity: snap.Equity,
		beta:   indicators.ReferenceBeta(symbol),
	}
	if pr, ok := v.market.GetPositionRisk(symbol); ok && pr.Beta > 0 {
		m.beta = pr.Beta
	}
	if ref, ok := v.market.GetSymbol(symbol); ok {
		m.sector = ref.Sector
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			m.position = p
			m.hasPosition = true
		}
		if m.sector == "" {
			continue
		}
		if ref, ok := v.market.GetSymbol(p.Symbol); ok && ref.Sector == m.sector {
			m.sectorExposure += math.Abs(p.MarketValue)
		}
	}
	return m
}

// RecordOutcome nudges the effectiveness of every rule violated on a closed
// trade: toward the floor after a profit, toward the ceiling after a loss.
func (v *Validator) RecordOutcome(o models.TradeOutcome) {
	if o.PnL == 0 || len(o.ViolatedRules) == 0 {
		return
	}
	target := EffectivenessCeiling
	if o.PnL > 0 {
		target = EffectivenessFloor
	}

	v.mu.Lock()
	for _, id := range o.ViolatedRules {
		rule, ok := v.rules[id]
		if !ok {
			continue
		}
		next := rule.Effectiveness + v.learningRate*(target-rule.Effectiveness)
		rule.Effectiveness = math.Max(EffectivenessFloor, math.Min(EffectivenessCeiling, next))
	}
	v.mu.Unlock()

	v.log.Info("trade outcome recorded",
		logger.String("user_id", o.UserID),
		logger.String("symbol", o.Symbol),
		logger.Float("pnl", o.PnL),
		logger.Strings("rules", o.ViolatedRules),
	)
	eventbus.Emit(v.bus, events.OutcomeRecorded, o)
}

// SetRuleEnabled toggles a rule.
func (v *Validator) SetRuleEnabled(ruleID string, enabled bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	rule, ok := v.rules[ruleID]
	if !ok {
		return fmt.Errorf("unknown rule %q", ruleID)
	}
	rule.Enabled = enabled
	return nil
}

// SetRuleParameter changes a base parameter of a rule.
func (v *Validator) SetRuleParameter(ruleID, key string, value float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	rule, ok := v.rules[ruleID]
	if !ok {
		return fmt.Errorf("unknown rule %q", ruleID)
	}
	if _, ok := rule.Parameters[key]; !ok {
		return fmt.Errorf("rule %q has no parameter %q", ruleID, key)
	}
	rule.Parameters[key] = value
	return nil
}

// Rule returns a copy of one rule.
func (v *Validator) Rule(ruleID string) (models.ValidationRule, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	rule, ok := v.rules[ruleID]
	if !ok {
		return models.ValidationRule{}, false
	}
	return rule.Clone(), true
}

// Rules returns copies of every rule in evaluation order.
func (v *Validator) Rules() []models.ValidationRule {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.ValidationRule, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.rules[id].Clone())
	}
	return out
}
