package usecase

import (
	"sync"
	"time"

	"StagAlgo/internal/domain/models"
)

// DefaultConsecutiveGap is the longest pause between two executions that
// still counts them as one run.
const DefaultConsecutiveGap = 15 * time.Minute

const activityHorizon = 24 * time.Hour

// EquityHistory is the store view used for the portfolio's daily P&L.
type EquityHistory interface {
	GetPortfolioSnapshot() models.PortfolioSnapshot
	DayOpenEquity(at time.Time) (float64, bool)
}

type pnlPoint struct {
	at  time.Time
	pnl float64
}

type userActivity struct {
	executions []time.Time
	run        int
	lastTrade  time.Time
	lastLossAt time.Time
	outcomes   []pnlPoint
}

// ActivityTracker keeps the per-user trade and outcome history the
// frequency and loss rules read. Days are UTC days.
type ActivityTracker struct {
	mu     sync.Mutex
	equity EquityHistory
	gap    time.Duration
	users  map[string]*userActivity
}

func NewActivityTracker(equity EquityHistory, gap time.Duration) *ActivityTracker {
	if gap <= 0 {
		gap = DefaultConsecutiveGap
	}
	return &ActivityTracker{equity: equity, gap: gap, users: make(map[string]*userActivity)}
}

func (t *ActivityTracker) user(userID string) *userActivity {
	u, ok := t.users[userID]
	if !ok {
		u = &userActivity{}
		t.users[userID] = u
	}
	return u
}

// RecordExecution counts an executed trade of userID at at.
func (t *ActivityTracker) RecordExecution(userID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.user(userID)
	if !u.lastTrade.IsZero() && at.Sub(u.lastTrade) <= t.gap {
		u.run++
	} else {
		u.run = 1
	}
	if at.After(u.lastTrade) {
		u.lastTrade = at
	}
	u.executions = append(pruneTimes(u.executions, at.Add(-activityHorizon)), at)
}

// RecordOutcome books the realized P&L of a closed trade. A loss starts the
// cooldown.
func (t *ActivityTracker) RecordOutcome(o models.TradeOutcome, at time.Time) {
	if !o.ClosedAt.IsZero() {
		at = o.ClosedAt
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.user(o.UserID)
	kept := u.outcomes[:0]
	for _, p := range u.outcomes {
		if !p.at.Before(at.Add(-activityHorizon)) {
			kept = append(kept, p)
		}
	}
	u.outcomes = append(kept, pnlPoint{at: at, pnl: o.PnL})
	if o.PnL < 0 && at.After(u.lastLossAt) {
		u.lastLossAt = at
	}
}

// Activity returns what the server knows about userID at at.
func (t *ActivityTracker) Activity(userID string, at time.Time) models.TradeActivity {
	midnight := at.UTC().Truncate(24 * time.Hour)
	hourAgo := at.Add(-time.Hour)

	var a models.TradeActivity
	t.mu.Lock()
	if u, ok := t.users[userID]; ok {
		for _, e := range u.executions {
			if e.After(at) {
				continue
			}
			if !e.Before(midnight) {
				a.TradesToday++
			}
			if e.After(hourAgo) {
				a.TradesLastHour++
			}
		}
		if !u.lastTrade.IsZero() && at.Sub(u.lastTrade) <= t.gap {
			a.ConsecutiveTrades = u.run
		}
		a.LastLossAt = u.lastLossAt
		for _, p := range u.outcomes {
			if !p.at.Before(midnight) && !p.at.After(at) {
				a.DailyPnL += p.pnl
			}
		}
	}
	t.mu.Unlock()

	if t.equity != nil {
		if open, ok := t.equity.DayOpenEquity(at); ok {
			if change := t.equity.GetPortfolioSnapshot().Equity - open; change < a.DailyPnL {
				a.DailyPnL = change
			}
		}
	}
	return a
}

// tighten merges caller-reported activity into the server view. Callers may
// only make the picture worse.
func tighten(server, reported models.TradeActivity) models.TradeActivity {
	out := server
	out.TradesToday = max(out.TradesToday, reported.TradesToday)
	out.TradesLastHour = max(out.TradesLastHour, reported.TradesLastHour)
	out.ConsecutiveTrades = max(out.ConsecutiveTrades, reported.ConsecutiveTrades)
	out.DailyPnL = min(out.DailyPnL, reported.DailyPnL)
	if reported.LastLossAt.After(out.LastLossAt) {
		out.LastLossAt = reported.LastLossAt
	}
	out.ResearchMinutes = reported.ResearchMinutes
	return out
}

func pruneTimes(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, at := range ts {
		if !at.Before(cutoff) {
			kept = append(kept, at)
		}
	}
	return kept
}
