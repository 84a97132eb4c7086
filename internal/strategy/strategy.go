// Package strategy holds stateless entry/exit rules for bot execution.
package strategy

import (
	"fmt"

	"StagAlgo/internal/domain/models"
)

type Action string

const (
	ActionEnter Action = "enter"
	ActionExit  Action = "exit"
	ActionNone  Action = "none"
)

// Strategy maps a candle window, oldest first, and the latest indicator
// snapshot to an action. Implementations keep no state between calls.
type Strategy interface {
	Name() string
	Decide(candles []models.Candle, ind models.IndicatorSnapshot) Action
}

// Names of the built-in strategies.
const (
	NameBreakout      = "breakout"
	NameMeanReversion = "mean_reversion"
	NameTrendFollow   = "trend_follow"
)

// New builds a strategy by name. Missing params keep their defaults.
func New(name string, params map[string]float64) (Strategy, error) {
	switch name {
	case NameBreakout:
		s := NewBreakout()
		if v, ok := params["lookback"]; ok {
			if v < 2 {
				return nil, fmt.Errorf("invalid config for %s: lookback must be >= 2", name)
			}
			s.Lookback = int(v)
		}
		if v, ok := params["volume_multiple"]; ok {
			s.VolumeMultiple = v
		}
		return s, nil
	case NameMeanReversion:
		s := NewMeanReversion()
		if v, ok := params["oversold"]; ok {
			s.Oversold = v
		}
		if v, ok := params["overbought"]; ok {
			s.Overbought = v
		}
		if s.Oversold >= s.Overbought {
			return nil, fmt.Errorf("invalid config for %s: oversold must be below overbought", name)
		}
		return s, nil
	case NameTrendFollow:
		return NewTrendFollow(), nil
	default:
		return nil, fmt.Errorf("unknown strategy type: %s", name)
	}
}

// Breakout enters when the close clears the highest high of the previous
// Lookback bars on above-average volume and exits below the lowest low.
type Breakout struct {
	Lookback       int
	VolumeMultiple float64
}

func NewBreakout() Breakout { return Breakout{Lookback: 20, VolumeMultiple: 1.5} }

func (Breakout) Name() string { return NameBreakout }

func (b Breakout) Decide(candles []models.Candle, _ models.IndicatorSnapshot) Action {
	if b.Lookback < 1 || len(candles) < b.Lookback+1 {
		return ActionNone
	}
	last := candles[len(candles)-1]
	window := candles[len(candles)-1-b.Lookback : len(candles)-1]

	high, low, vol := window[0].High, window[0].Low, 0.0
	for _, c := range window {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
		vol += c.Volume
	}
	avgVol := vol / float64(len(window))

	switch {
	case last.Close > high && (avgVol == 0 || last.Volume >= b.VolumeMultiple*avgVol):
		return ActionEnter
	case last.Close < low:
		return ActionExit
	default:
		return ActionNone
	}
}

// MeanReversion buys an oversold close at or under the lower Bollinger band
// and exits once price is back at the upper band or RSI is overbought.
type MeanReversion struct {
	Oversold   float64
	Overbought float64
}

func NewMeanReversion() MeanReversion { return MeanReversion{Oversold: 30, Overbought: 70} }

func (MeanReversion) Name() string { return NameMeanReversion }

func (m MeanReversion) Decide(candles []models.Candle, ind models.IndicatorSnapshot) Action {
	if len(candles) == 0 || ind.Bollinger.Middle <= 0 || ind.RSI14 <= 0 {
		return ActionNone
	}
	closePx := candles[len(candles)-1].Close
	switch {
	case closePx <= ind.Bollinger.Lower && ind.RSI14 <= m.Oversold:
		return ActionEnter
	case closePx >= ind.Bollinger.Upper || ind.RSI14 >= m.Overbought:
		return ActionExit
	default:
		return ActionNone
	}
}

// TrendFollow rides an aligned uptrend: MA20 over MA50, price over MA20 and
// a positive MACD histogram. It exits when price loses MA50 or the averages
// cross down.
type TrendFollow struct{}

func NewTrendFollow() TrendFollow { return TrendFollow{} }

func (TrendFollow) Name() string { return NameTrendFollow }

func (TrendFollow) Decide(candles []models.Candle, ind models.IndicatorSnapshot) Action {
	if len(candles) == 0 || ind.MA20 <= 0 || ind.MA50 <= 0 {
		return ActionNone
	}
	closePx := candles[len(candles)-1].Close
	switch {
	case ind.MA20 > ind.MA50 && closePx > ind.MA20 && ind.MACD.Histogram > 0:
		return ActionEnter
	case ind.MA20 < ind.MA50 || closePx < ind.MA50:
		return ActionExit
	default:
		return ActionNone
	}
}
