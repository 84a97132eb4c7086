package validator

import (
	"math"
	"sync"

	"StagAlgo/internal/domain/models"
)

// HighPerformerWinRate is the average performance (win rate) above which the
// trade-count caps are loosened.
const HighPerformerWinRate = 0.6

type adaptKey struct {
	userID string
	ruleID string
}

// AdaptationStore holds per-user parameter multipliers keyed by (user, rule).
// Multipliers are applied to the rule's current base parameters on every
// evaluation, so base changes reach adapted users too.
type AdaptationStore struct {
	mu       sync.RWMutex
	profiles map[string]models.UserProfile
	factors  map[adaptKey]map[string]float64
}

func NewAdaptationStore() *AdaptationStore {
	return &AdaptationStore{
		profiles: make(map[string]models.UserProfile),
		factors:  make(map[adaptKey]map[string]float64),
	}
}

// Set replaces the multipliers of (userID, ruleID).
func (a *AdaptationStore) Set(userID, ruleID string, factors map[string]float64) {
	cp := make(map[string]float64, len(factors))
	for k, v := range factors {
		cp[k] = v
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(cp) == 0 {
		delete(a.factors, adaptKey{userID, ruleID})
		return
	}
	a.factors[adaptKey{userID, ruleID}] = cp
}

// Get returns a copy of the multipliers of (userID, ruleID).
func (a *AdaptationStore) Get(userID, ruleID string) (map[string]float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f, ok := a.factors[adaptKey{userID, ruleID}]
	if !ok {
		return nil, false
	}
	cp := make(map[string]float64, len(f))
	for k, v := range f {
		cp[k] = v
	}
	return cp, true
}

// Profile returns the stored profile of userID.
func (a *AdaptationStore) Profile(userID string) (models.UserProfile, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.profiles[userID]
	return p, ok
}

// Reset drops the profile and every multiplier of userID.
func (a *AdaptationStore) Reset(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.profiles, userID)
	for k := range a.factors {
		if k.userID == userID {
			delete(a.factors, k)
		}
	}
}

// ApplyProfile derives multipliers for every adaptive rule from the profile
// and stores them, replacing earlier derived values.
func (a *AdaptationStore) ApplyProfile(p models.UserProfile, rules []models.ValidationRule) {
	derived := make(map[string]map[string]float64)
	for _, r := range rules {
		if !r.Adaptive {
			continue
		}
		if f := deriveFactors(p, r.ID); len(f) > 0 {
			derived[r.ID] = f
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.profiles[p.UserID] = p
	for _, r := range rules {
		delete(a.factors, adaptKey{p.UserID, r.ID})
	}
	for ruleID, f := range derived {
		a.factors[adaptKey{p.UserID, ruleID}] = f
	}
}

func deriveFactors(p models.UserProfile, ruleID string) map[string]float64 {
	out := make(map[string]float64)
	switch ruleID {
	case RulePositionSize:
		factor := 1.0
		switch p.Experience {
		case models.TierAdvanced:
			factor = 1.25
		case models.TierExpert:
			factor = 1.5
		}
		if p.Personality == models.PersonalityConservative {
			factor *= 0.75
		}
		if factor != 1 {
			out[ParamMaxPositionPercent] = factor
			out[ParamAbsoluteMaxDollars] = factor
		}
	case RuleOvertrading:
		if p.AvgPerformance >= HighPerformerWinRate {
			out[ParamMaxDailyTrades] = 1.5
			out[ParamMaxHourlyTrades] = 1.5
		}
	case RuleEmotionalTrading:
		if p.Personality == models.PersonalityAggressive {
			out[ParamCooldownMinutesAfterLoss] = 2
		}
	}
	return out
}

// countParams hold whole trade counts and are rounded down after scaling.
var countParams = map[string]bool{
	ParamMaxDailyTrades:       true,
	ParamMaxHourlyTrades:      true,
	ParamMaxConsecutiveTrades: true,
}

// effective scales a copy of base by factors.
func effective(base, factors map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, f := range factors {
		v, ok := base[k]
		if !ok {
			continue
		}
		v *= f
		if countParams[k] {
			v = math.Floor(v)
		}
		out[k] = v
	}
	return out
}
