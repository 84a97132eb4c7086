package models

import "time"

// SignalType enumerates oracle signal kinds.
type SignalType string

const (
	SignalVolatilitySpike SignalType = "volatility_spike"
	SignalEarningsWindow  SignalType = "earnings_window"
	SignalMomentum        SignalType = "momentum"
	SignalNewsSentiment   SignalType = "news_sentiment"
)

// IsValid reports whether t is a known signal type.
func (t SignalType) IsValid() bool {
	switch t {
	case SignalVolatilitySpike, SignalEarningsWindow, SignalMomentum, SignalNewsSentiment:
		return true
	}
	return false
}

// Severity is the declared severity of an oracle signal.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Score maps a severity to [0,1].
func (s Severity) Score() float64 {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 0.75
	case SeverityMedium:
		return 0.5
	case SeverityLow:
		return 0.25
	default:
		return 0
	}
}

// Direction of an oracle signal.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Sub-score keys an oracle signal may embed.
const (
	FactorFundamental = "fundamental"
	FactorVolume      = "volume"
	FactorSpread      = "spread"
	FactorOracle      = "oracle"
	FactorSentiment   = "sentiment"
	FactorTechnical   = "technical"
)

// OracleSignal is an externally produced market signal.
type OracleSignal struct {
	ID        string             `json:"id"`
	Symbol    string             `json:"symbol"`
	Type      SignalType         `json:"type"`
	Strength  float64            `json:"strength"`
	Direction Direction          `json:"direction"`
	Source    string             `json:"source"`
	Timestamp time.Time          `json:"timestamp"`
	Summary   string             `json:"summary"`
	Severity  Severity           `json:"severity"`
	SubScores map[string]float64 `json:"sub_scores,omitempty"`
}

// Recommendation is the action derived from a collapse score.
type Recommendation string

const (
	RecNoAction        Recommendation = "no_action"
	RecMonitorClosely  Recommendation = "monitor_closely"
	RecReduceExposure  Recommendation = "reduce_exposure"
	RecExitImmediately Recommendation = "exit_immediately"
)

// CollapseFactors holds the six factor scores, each in [0,1].
type CollapseFactors struct {
	Fundamental float64 `json:"fundamental"`
	Volume      float64 `json:"volume"`
	Spread      float64 `json:"spread"`
	Oracle      float64 `json:"oracle"`
	Sentiment   float64 `json:"sentiment"`
	Technical   float64 `json:"technical"`
}

// CollapseSignal is the latest collapse assessment for one symbol.
type CollapseSignal struct {
	Symbol         string          `json:"symbol"`
	Score          float64         `json:"score"`
	Factors        CollapseFactors `json:"factors"`
	Recommendation Recommendation  `json:"recommendation"`
	Confidence     float64         `json:"confidence"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// SymbolContext is the per-symbol market view used for trade governance.
type SymbolContext struct {
	Symbol        string         `json:"symbol"`
	LastPrice     float64        `json:"last_price"`
	SpreadPct     float64        `json:"spread_pct"`
	VolumeRatio   float64        `json:"volume_ratio"`
	Volatility    float64        `json:"volatility"`
	RecentTrades  int            `json:"recent_trades"`
	RecentSignals []OracleSignal `json:"recent_signals"`
	HasVolume     bool           `json:"has_volume"`
}
