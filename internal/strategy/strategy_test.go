package strategy

import (
	"testing"
	"time"

	"StagAlgo/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bars(closes []float64, volume float64) []models.Candle {
	start := time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Symbol: "AAPL", Timeframe: models.TF5m, Timestamp: start.Add(time.Duration(i) * 5 * time.Minute),
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c, Volume: volume,
		}
	}
	return out
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestBreakout(t *testing.T) {
	b := NewBreakout()

	assert.Equal(t, ActionNone, b.Decide(bars(flat(10, 100), 1000), models.IndicatorSnapshot{}), "short window")

	up := bars(append(flat(20, 100), 101), 1000)
	up[len(up)-1].Volume = 2000
	assert.Equal(t, ActionEnter, b.Decide(up, models.IndicatorSnapshot{}))

	up[len(up)-1].Volume = 1000
	assert.Equal(t, ActionNone, b.Decide(up, models.IndicatorSnapshot{}), "breakout without volume")

	down := bars(append(flat(20, 100), 99), 1000)
	assert.Equal(t, ActionExit, b.Decide(down, models.IndicatorSnapshot{}))

	assert.Equal(t, ActionNone, b.Decide(bars(flat(21, 100), 1000), models.IndicatorSnapshot{}))
}

func TestMeanReversion(t *testing.T) {
	m := NewMeanReversion()
	band := models.Bollinger{Upper: 110, Middle: 100, Lower: 90}

	assert.Equal(t, ActionEnter, m.Decide(bars([]float64{89}, 1), models.IndicatorSnapshot{RSI14: 25, Bollinger: band}))
	assert.Equal(t, ActionNone, m.Decide(bars([]float64{89}, 1), models.IndicatorSnapshot{RSI14: 45, Bollinger: band}))
	assert.Equal(t, ActionExit, m.Decide(bars([]float64{111}, 1), models.IndicatorSnapshot{RSI14: 55, Bollinger: band}))
	assert.Equal(t, ActionExit, m.Decide(bars([]float64{100}, 1), models.IndicatorSnapshot{RSI14: 75, Bollinger: band}))
	assert.Equal(t, ActionNone, m.Decide(bars([]float64{89}, 1), models.IndicatorSnapshot{}), "no indicators yet")
}

func TestTrendFollow(t *testing.T) {
	tf := NewTrendFollow()
	ind := models.IndicatorSnapshot{MA20: 105, MA50: 100, MACD: models.MACD{Histogram: 0.3}}

	assert.Equal(t, ActionEnter, tf.Decide(bars([]float64{107}, 1), ind))
	assert.Equal(t, ActionNone, tf.Decide(bars([]float64{103}, 1), ind))
	assert.Equal(t, ActionExit, tf.Decide(bars([]float64{99}, 1), ind))

	ind.MA20, ind.MA50 = 95, 100
	assert.Equal(t, ActionExit, tf.Decide(bars([]float64{107}, 1), ind))
	assert.Equal(t, ActionNone, tf.Decide(nil, ind))
}

func TestDecideIsStateless(t *testing.T) {
	b := NewBreakout()
	up := bars(append(flat(20, 100), 101), 1000)
	up[len(up)-1].Volume = 5000
	for i := 0; i < 3; i++ {
		assert.Equal(t, ActionEnter, b.Decide(up, models.IndicatorSnapshot{}))
	}
}

func TestNew(t *testing.T) {
	s, err := New(NameBreakout, map[string]float64{"lookback": 5, "volume_multiple": 1})
	require.NoError(t, err)
	assert.Equal(t, NameBreakout, s.Name())
	assert.Equal(t, 5, s.(Breakout).Lookback)

	_, err = New(NameBreakout, map[string]float64{"lookback": 1})
	assert.Error(t, err)
	_, err = New(NameMeanReversion, map[string]float64{"oversold": 80})
	assert.Error(t, err)

	for _, name := range []string{NameMeanReversion, NameTrendFollow} {
		s, err := New(name, nil)
		require.NoError(t, err)
		assert.Equal(t, name, s.Name())
	}
	_, err = New("martingale", nil)
	assert.Error(t, err)
}
