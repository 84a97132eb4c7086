package models

import "time"

// RuleCategory groups validation rules.
type RuleCategory string

const (
	CategoryPositionSizing RuleCategory = "position_sizing"
	CategoryLossLimit      RuleCategory = "loss_limit"
	CategoryInstrument     RuleCategory = "instrument_filter"
	CategoryConcentration  RuleCategory = "concentration"
	CategoryVolatility     RuleCategory = "volatility"
	CategoryFrequency      RuleCategory = "frequency"
	CategoryDiscipline     RuleCategory = "discipline"
	CategoryBehavioral     RuleCategory = "behavioral"
)

// RuleSeverity decides whether a violation blocks the trade.
type RuleSeverity string

const (
	RuleWarning  RuleSeverity = "warning"
	RuleError    RuleSeverity = "error"
	RuleCritical RuleSeverity = "critical"
)

// Blocks reports whether a violation of this severity blocks the trade.
func (s RuleSeverity) Blocks() bool { return s == RuleError || s == RuleCritical }

// ValidationRule is a static rule definition plus its learning state.
// Per-user overrides are kept outside the rule.
type ValidationRule struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Category       RuleCategory       `json:"category"`
	Severity       RuleSeverity       `json:"severity"`
	Enabled        bool               `json:"enabled"`
	Parameters     map[string]float64 `json:"parameters"`
	ViolationCount int                `json:"violation_count"`
	LastViolation  *time.Time         `json:"last_violation,omitempty"`
	Effectiveness  float64            `json:"effectiveness"`
	Adaptive       bool               `json:"adaptive"`
}

// Clone returns a deep copy of the rule.
func (r ValidationRule) Clone() ValidationRule {
	out := r
	out.Parameters = make(map[string]float64, len(r.Parameters))
	for k, v := range r.Parameters {
		out.Parameters[k] = v
	}
	if r.LastViolation != nil {
		t := *r.LastViolation
		out.LastViolation = &t
	}
	return out
}

// Violation is one failed rule predicate.
type Violation struct {
	RuleID     string       `json:"rule_id"`
	RuleName   string       `json:"rule_name"`
	Category   RuleCategory `json:"category"`
	Severity   RuleSeverity `json:"severity"`
	Message    string       `json:"message"`
	Actual     float64      `json:"actual"`
	Limit      float64      `json:"limit"`
	BlockTrade bool         `json:"block_trade"`
}

// ValidationResult is the outcome of validating one trade.
type ValidationResult struct {
	Passed       bool        `json:"passed"`
	Violations   []Violation `json:"violations"`
	Warnings     []Violation `json:"warnings"`
	AdaptedRules []string    `json:"adapted_rules"`
	EvaluatedAt  time.Time   `json:"evaluated_at"`
}

// ViolatedRuleIDs returns the ids of blocking and warning violations.
func (r ValidationResult) ViolatedRuleIDs() []string {
	ids := make([]string, 0, len(r.Violations)+len(r.Warnings))
	for _, v := range r.Violations {
		ids = append(ids, v.RuleID)
	}
	for _, v := range r.Warnings {
		ids = append(ids, v.RuleID)
	}
	return ids
}

// ExperienceTier of a user.
type ExperienceTier string

const (
	TierBeginner     ExperienceTier = "beginner"
	TierIntermediate ExperienceTier = "intermediate"
	TierAdvanced     ExperienceTier = "advanced"
	TierExpert       ExperienceTier = "expert"
)

// Personality is the user's self-declared risk personality.
type Personality string

const (
	PersonalityConservative Personality = "conservative"
	PersonalityModerate     Personality = "moderate"
	PersonalityAggressive   Personality = "aggressive"
)

// UserProfile drives per-user rule adaptation.
type UserProfile struct {
	UserID         string         `json:"user_id" validate:"required"`
	Experience     ExperienceTier `json:"experience" default:"beginner" validate:"oneof=beginner intermediate advanced expert"`
	Personality    Personality    `json:"personality" default:"moderate" validate:"oneof=conservative moderate aggressive"`
	AvgPerformance float64        `json:"avg_performance"`
}
