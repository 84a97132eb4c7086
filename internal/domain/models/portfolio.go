package models

import "time"

// PortfolioSnapshot is the account-level state. It is replaced wholesale on update.
type PortfolioSnapshot struct {
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Position is one open holding, unique per symbol.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	AvgCost       float64   `json:"avg_cost"`
	MarketValue   float64   `json:"market_value"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CostBasis returns quantity times average cost.
func (p Position) CostBasis() float64 { return p.Quantity * p.AvgCost }

// UnrealizedPct returns unrealized P&L as a fraction of cost basis.
func (p Position) UnrealizedPct() float64 {
	basis := p.CostBasis()
	if basis == 0 {
		return 0
	}
	if basis < 0 {
		basis = -basis
	}
	return p.UnrealizedPnL / basis
}

// PortfolioUpdate is the payload of a broker snapshot. A nil Positions slice
// leaves the current positions untouched, an empty one clears them.
type PortfolioUpdate struct {
	Equity    float64    `json:"equity"`
	Cash      float64    `json:"cash"`
	Positions []Position `json:"positions"`
	Timestamp time.Time  `json:"timestamp"`
}

// PortfolioRisk is one point of the portfolio risk history.
type PortfolioRisk struct {
	Timestamp        time.Time `json:"timestamp"`
	DrawdownPct      float64   `json:"drawdown_pct"`
	Beta             float64   `json:"beta"`
	VaR95            float64   `json:"var95"`
	ES95             float64   `json:"es95"`
	ConcentrationPct float64   `json:"concentration_pct"`
	LiquidityScore   float64   `json:"liquidity_score"`
	RiskState        float64   `json:"risk_state"`
}

// PositionRisk is one point of a position's risk history.
type PositionRisk struct {
	Symbol          string    `json:"symbol"`
	Timestamp       time.Time `json:"timestamp"`
	Beta            float64   `json:"beta"`
	ADVPct          float64   `json:"adv_pct"`
	EstimatedSpread float64   `json:"estimated_spread"`
	SuggestedStop   float64   `json:"suggested_stop"`
	SuggestedTarget float64   `json:"suggested_target"`
}

// PerformanceRollup summarizes one day of activity.
type PerformanceRollup struct {
	Day            time.Time `json:"day"`
	TradesSeen     int       `json:"trades_seen"`
	Accepted       int64     `json:"accepted"`
	Dropped        int64     `json:"dropped"`
	AvgRiskState   float64   `json:"avg_risk_state"`
	EndEquity      float64   `json:"end_equity"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
}

// HealthStatus classifies store freshness.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is the result of a store freshness check.
type Health struct {
	Status              HealthStatus `json:"status"`
	PortfolioAgeMinutes float64      `json:"portfolio_age_minutes"`
	Symbols             int          `json:"symbols"`
	Signals             int          `json:"signals"`
	Dropped             int64        `json:"dropped"`
	CheckedAt           time.Time    `json:"checked_at"`
}
