package validator

import (
	"fmt"
	"math"

	"StagAlgo/internal/domain/models"
)

// Rule ids.
const (
	RulePositionSize        = "position_size"
	RuleDailyLoss           = "daily_loss"
	RulePennyStock          = "penny_stock"
	RuleSectorConcentration = "sector_concentration"
	RuleVolatility          = "volatility"
	RuleOvertrading         = "overtrading"
	RuleResearchTime        = "research_time"
	RuleEmotionalTrading    = "emotional_trading"
)

// Parameter keys.
const (
	ParamMaxPositionPercent       = "maxPositionPercent"
	ParamAbsoluteMaxDollars       = "absoluteMaxDollars"
	ParamMaxDailyLossPercent      = "maxDailyLossPercent"
	ParamMinPrice                 = "minPrice"
	ParamMaxSectorPercent         = "maxSectorPercent"
	ParamMaxBeta                  = "maxBeta"
	ParamMaxDailyTrades           = "maxDailyTrades"
	ParamMaxHourlyTrades          = "maxHourlyTrades"
	ParamMinResearchMinutes       = "minResearchMinutes"
	ParamCooldownMinutesAfterLoss = "cooldownMinutesAfterLoss"
	ParamMaxConsecutiveTrades     = "maxConsecutiveTrades"
)

// Limits are the base parameters of the rule catalogue.
type Limits struct {
	MaxPositionPercent       float64
	AbsoluteMaxDollars       float64
	MaxDailyLossPercent      float64
	MinPrice                 float64
	MaxSectorPercent         float64
	MaxBeta                  float64
	MaxDailyTrades           int
	MaxHourlyTrades          int
	MinResearchMinutes       float64
	CooldownMinutesAfterLoss float64
	MaxConsecutiveTrades     int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPositionPercent:       0.10,
		AbsoluteMaxDollars:       50000,
		MaxDailyLossPercent:      0.02,
		MinPrice:                 5,
		MaxSectorPercent:         0.30,
		MaxBeta:                  2.0,
		MaxDailyTrades:           10,
		MaxHourlyTrades:          4,
		MinResearchMinutes:       15,
		CooldownMinutesAfterLoss: 30,
		MaxConsecutiveTrades:     5,
	}
}

const initialEffectiveness = 0.5

// Catalogue builds the fixed rule set in evaluation order.
func Catalogue(l Limits) []models.ValidationRule {
	rule := func(id, name string, cat models.RuleCategory, sev models.RuleSeverity, adaptive bool, params map[string]float64) models.ValidationRule {
		return models.ValidationRule{
			ID: id, Name: name, Category: cat, Severity: sev, Enabled: true,
			Parameters: params, Effectiveness: initialEffectiveness, Adaptive: adaptive,
		}
	}
	return []models.ValidationRule{
		rule(RulePositionSize, "Position size limit", models.CategoryPositionSizing, models.RuleError, true, map[string]float64{
			ParamMaxPositionPercent: l.MaxPositionPercent,
			ParamAbsoluteMaxDollars: l.AbsoluteMaxDollars,
		}),
		rule(RuleDailyLoss, "Daily loss limit", models.CategoryLossLimit, models.RuleCritical, false, map[string]float64{
			ParamMaxDailyLossPercent: l.MaxDailyLossPercent,
		}),
		rule(RulePennyStock, "Penny stock filter", models.CategoryInstrument, models.RuleWarning, false, map[string]float64{
			ParamMinPrice: l.MinPrice,
		}),
		rule(RuleSectorConcentration, "Sector concentration cap", models.CategoryConcentration, models.RuleWarning, false, map[string]float64{
			ParamMaxSectorPercent: l.MaxSectorPercent,
		}),
		rule(RuleVolatility, "Volatility filter", models.CategoryVolatility, models.RuleWarning, false, map[string]float64{
			ParamMaxBeta: l.MaxBeta,
		}),
		rule(RuleOvertrading, "Overtrading guard", models.CategoryFrequency, models.RuleError, true, map[string]float64{
			ParamMaxDailyTrades:  float64(l.MaxDailyTrades),
			ParamMaxHourlyTrades: float64(l.MaxHourlyTrades),
		}),
		rule(RuleResearchTime, "Research time minimum", models.CategoryDiscipline, models.RuleWarning, false, map[string]float64{
			ParamMinResearchMinutes: l.MinResearchMinutes,
		}),
		rule(RuleEmotionalTrading, "Emotional trading guard", models.CategoryBehavioral, models.RuleError, true, map[string]float64{
			ParamCooldownMinutesAfterLoss: l.CooldownMinutesAfterLoss,
			ParamMaxConsecutiveTrades:     float64(l.MaxConsecutiveTrades),
		}),
	}
}

// marketView is the store state one evaluation reads.
type marketView struct {
	equity         float64
	position       models.Position
	hasPosition    bool
	sector         string
	sectorExposure float64
	beta           float64
}

// check returns the violation, if any, of one rule predicate. Category,
// severity and blocking are filled in by the caller.
type check func(p map[string]float64, tc models.TradeContext, m marketView) (models.Violation, bool)

var checks = map[string]check{
	RulePositionSize:        checkPositionSize,
	RuleDailyLoss:           checkDailyLoss,
	RulePennyStock:          checkPennyStock,
	RuleSectorConcentration: checkSectorConcentration,
	RuleVolatility:          checkVolatility,
	RuleOvertrading:         checkOvertrading,
	RuleResearchTime:        checkResearchTime,
	RuleEmotionalTrading:    checkEmotionalTrading,
}

func signedNotional(tc models.TradeContext) float64 {
	if tc.Trade.Side == models.SideSell {
		return -tc.Notional()
	}
	return tc.Notional()
}

// opening reports whether the trade adds exposure rather than reducing it.
func opening(tc models.TradeContext, m marketView) bool {
	if tc.Trade.Side == models.SideBuy {
		return !m.hasPosition || m.position.Quantity >= 0
	}
	return !m.hasPosition || m.position.Quantity <= 0
}

func checkPositionSize(p map[string]float64, tc models.TradeContext, m marketView) (models.Violation, bool) {
	value := tc.Notional()
	if m.hasPosition {
		value = math.Abs(m.position.MarketValue + signedNotional(tc))
	}
	limit := p[ParamAbsoluteMaxDollars]
	reason := fmt.Sprintf("absolute cap $%.2f", limit)
	if m.equity > 0 {
		if pct := p[ParamMaxPositionPercent] * m.equity; pct < limit {
			limit = pct
			reason = fmt.Sprintf("%.1f%% of equity ($%.2f)", p[ParamMaxPositionPercent]*100, pct)
		}
	}
	if value <= limit {
		return models.Violation{}, false
	}
	return models.Violation{
		Message: fmt.Sprintf("position value $%.2f exceeds %s", value, reason),
		Actual:  value,
		Limit:   limit,
	}, true
}

func checkDailyLoss(p map[string]float64, tc models.TradeContext, m marketView) (models.Violation, bool) {
	if m.equity <= 0 || tc.Activity.DailyPnL >= 0 || !opening(tc, m) {
		return models.Violation{}, false
	}
	loss := -tc.Activity.DailyPnL
	limit := p[ParamMaxDailyLossPercent] * m.equity
	if loss < limit {
		return models.Violation{}, false
	}
	return models.Violation{
		Message: fmt.Sprintf("daily loss $%.2f reached the %.1f%% limit ($%.2f)", loss, p[ParamMaxDailyLossPercent]*100, limit),
		Actual:  loss,
		Limit:   limit,
	}, true
}

func checkPennyStock(p map[string]float64, tc models.TradeContext, _ marketView) (models.Violation, bool) {
	if tc.Trade.Side != models.SideBuy || tc.Price <= 0 || tc.Price >= p[ParamMinPrice] {
		return models.Violation{}, false
	}
	return models.Violation{
		Message: fmt.Sprintf("price $%.4f is below the $%.2f floor", tc.Price, p[ParamMinPrice]),
		Actual:  tc.Price,
		Limit:   p[ParamMinPrice],
	}, true
}

func checkSectorConcentration(p map[string]float64, tc models.TradeContext, m marketView) (models.Violation, bool) {
	if m.sector == "" || m.equity <= 0 || tc.Trade.Side != models.SideBuy {
		return models.Violation{}, false
	}
	share := (m.sectorExposure + tc.Notional()) / m.equity
	if share <= p[ParamMaxSectorPercent] {
		return models.Violation{}, false
	}
	return models.Violation{
		Message: fmt.Sprintf("%s exposure would reach %.1f%% of equity", m.sector, share*100),
		Actual:  share,
		Limit:   p[ParamMaxSectorPercent],
	}, true
}

func checkVolatility(p map[string]float64, tc models.TradeContext, m marketView) (models.Violation, bool) {
	if !opening(tc, m) || m.beta <= p[ParamMaxBeta] {
		return models.Violation{}, false
	}
	return models.Violation{
		Message: fmt.Sprintf("%s beta %.2f exceeds %.2f", tc.Trade.Symbol, m.beta, p[ParamMaxBeta]),
		Actual:  m.beta,
		Limit:   p[ParamMaxBeta],
	}, true
}

func checkOvertrading(p map[string]float64, tc models.TradeContext, _ marketView) (models.Violation, bool) {
	a := tc.Activity
	if limit := p[ParamMaxDailyTrades]; float64(a.TradesToday) >= limit {
		return models.Violation{
			Message: fmt.Sprintf("%d trades today, limit %.0f", a.TradesToday, limit),
			Actual:  float64(a.TradesToday),
			Limit:   limit,
		}, true
	}
	if limit := p[ParamMaxHourlyTrades]; float64(a.TradesLastHour) >= limit {
		return models.Violation{
			Message: fmt.Sprintf("%d trades in the last hour, limit %.0f", a.TradesLastHour, limit),
			Actual:  float64(a.TradesLastHour),
			Limit:   limit,
		}, true
	}
	return models.Violation{}, false
}

// checkResearchTime always passes; research tracking is not wired to a source.
func checkResearchTime(map[string]float64, models.TradeContext, marketView) (models.Violation, bool) {
	return models.Violation{}, false
}

func checkEmotionalTrading(p map[string]float64, tc models.TradeContext, _ marketView) (models.Violation, bool) {
	a := tc.Activity
	if !a.LastLossAt.IsZero() {
		since := tc.Timestamp.Sub(a.LastLossAt).Minutes()
		if cooldown := p[ParamCooldownMinutesAfterLoss]; since >= 0 && since < cooldown {
			return models.Violation{
				Message: fmt.Sprintf("%.0f minutes since last loss, cooldown %.0f", since, cooldown),
				Actual:  since,
				Limit:   cooldown,
			}, true
		}
	}
	if limit := p[ParamMaxConsecutiveTrades]; float64(a.ConsecutiveTrades) >= limit {
		return models.Violation{
			Message: fmt.Sprintf("%d consecutive trades, limit %.0f", a.ConsecutiveTrades, limit),
			Actual:  float64(a.ConsecutiveTrades),
			Limit:   limit,
		}, true
	}
	return models.Violation{}, false
}
