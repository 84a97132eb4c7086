package models

import "time"

// GovernorAction is the overseer verdict for a trade.
type GovernorAction string

const (
	ActionApprove  GovernorAction = "approve"
	ActionSoftPull GovernorAction = "soft_pull"
	ActionHardPull GovernorAction = "hard_pull"
)

// Decision is the overseer verdict plus the possibly modified trade.
type Decision struct {
	ID        string          `json:"id"`
	Action    GovernorAction  `json:"action"`
	Reasons   []string        `json:"reasons"`
	Original  TradeRequest    `json:"original"`
	Modified  *TradeRequest   `json:"modified,omitempty"`
	Collapse  *CollapseSignal `json:"collapse,omitempty"`
	DecidedAt time.Time       `json:"decided_at"`
}

// Effective returns the trade that should be forwarded, if any.
func (d Decision) Effective() (TradeRequest, bool) {
	switch d.Action {
	case ActionApprove:
		return d.Original, true
	case ActionSoftPull:
		if d.Modified != nil {
			return *d.Modified, true
		}
		return d.Original, true
	default:
		return TradeRequest{}, false
	}
}

// AlertKind classifies overseer alerts.
type AlertKind string

const (
	AlertCollapseRisk   AlertKind = "collapse_risk"
	AlertUnrealizedLoss AlertKind = "unrealized_loss"
)

// OverseerAlert is raised by the periodic position scan.
type OverseerAlert struct {
	Symbol    string    `json:"symbol"`
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// GateResult is the end-to-end outcome of submitting a trade.
type GateResult struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Decision   *Decision         `json:"decision,omitempty"`
	Execution  *ExecutionResult  `json:"execution,omitempty"`
}
