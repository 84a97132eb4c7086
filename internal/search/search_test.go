package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/events"
	"StagAlgo/pkg/cache"
	"StagAlgo/pkg/eventbus"
	"StagAlgo/pkg/logger"
	"StagAlgo/pkg/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)

type fakeMarket struct {
	symbols    []models.SymbolRef
	signals    map[string][]models.OracleSignal
	indicators map[string]models.IndicatorSnapshot
}

func (m *fakeMarket) Symbols() []models.SymbolRef { return m.symbols }

func (m *fakeMarket) GetSignalsFor(symbol string, since time.Time) []models.OracleSignal {
	var out []models.OracleSignal
	for _, s := range m.signals[symbol] {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out
}

func (m *fakeMarket) GetIndicators(symbol string, tf models.Timeframe) (models.IndicatorSnapshot, bool) {
	snap, ok := m.indicators[symbol]
	if !ok || tf != models.TFD1 {
		return models.IndicatorSnapshot{}, false
	}
	return snap, true
}

func universe() *fakeMarket {
	return &fakeMarket{
		symbols: []models.SymbolRef{
			{Symbol: "AAPL", Sector: "Technology", Industry: "Consumer Electronics"},
			{Symbol: "AMD", Sector: "Technology", Industry: "Semiconductors"},
			{Symbol: "JPM", Sector: "Financials", Industry: "Banks"},
			{Symbol: "XOM", Sector: "Energy", Industry: "Oil & Gas"},
		},
		signals:    map[string][]models.OracleSignal{},
		indicators: map[string]models.IndicatorSnapshot{},
	}
}

func newService(t *testing.T, m *fakeMarket, c cache.Service) (*Service, *scheduler.Virtual, *eventbus.Bus) {
	if c == nil {
		mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
		t.Cleanup(func() { _ = mc.Close() })
		c = mc
	}
	clock := scheduler.NewVirtual(now)
	bus := eventbus.New()
	return New(m, bus, clock, c), clock, bus
}

func bullish(symbol string, strength float64) models.OracleSignal {
	return models.OracleSignal{ID: symbol + "-b", Symbol: symbol, Type: models.SignalMomentum,
		Strength: strength, Direction: models.DirectionBullish, Timestamp: now.Add(-time.Hour)}
}

func TestSearchRanksEverythingWithoutText(t *testing.T) {
	s, _, _ := newService(t, universe(), nil)
	res, err := s.Search(context.Background(), models.SearchQuery{Limit: 3})
	require.NoError(t, err)

	require.Len(t, res, 3)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
	for _, r := range res {
		assert.NotEmpty(t, r.Why)
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestSearchMatchesSymbolAndSector(t *testing.T) {
	s, _, _ := newService(t, universe(), nil)
	ctx := context.Background()

	res, err := s.Search(ctx, models.SearchQuery{Text: "aapl"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "AAPL", res[0].Symbol)
	assert.Contains(t, res[0].Why, "symbol AAPL")

	res, err = s.Search(ctx, models.SearchQuery{Text: "semiconductors"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "AMD", res[0].Symbol)

	res, err = s.Search(ctx, models.SearchQuery{Sector: "technology"})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = s.Search(ctx, models.SearchQuery{Text: "nothing-matches"})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBullishSignalsLiftScore(t *testing.T) {
	m := universe()
	s, _, _ := newService(t, m, nil)
	q := s.normalize(models.SearchQuery{Text: "jpm"})

	before := s.rank(q)[0]
	m.signals["JPM"] = []models.OracleSignal{bullish("JPM", 0.9)}
	after := s.rank(q)[0]

	assert.Greater(t, after.Score, before.Score)
	assert.Contains(t, after.Why, "1 bullish / 0 bearish signals")
	assert.Greater(t, after.Features[FeatureSignal], 0.5)

	m.signals["JPM"] = []models.OracleSignal{{Symbol: "JPM", Strength: 1, Direction: models.DirectionBullish, Timestamp: now.Add(-48 * time.Hour)}}
	assert.InDelta(t, before.Score, s.rank(q)[0].Score, 1e-9, "signals outside the window are ignored")
}

func TestKeywordsSelectFeaturesAndIndicatorsBlend(t *testing.T) {
	m := universe()
	m.indicators["XOM"] = models.IndicatorSnapshot{Symbol: "XOM", RSI14: 25, MA20: 100, ATR14: 1}
	s, _, _ := newService(t, m, nil)

	res := s.rank(s.normalize(models.SearchQuery{Text: "xom momentum"}))
	require.Len(t, res, 1)
	mock := mockFeatures("XOM")
	assert.InDelta(t, 0.5*mock[FeatureMomentum]+0.5*0.25, res[0].Features[FeatureMomentum], 1e-9)
	assert.Contains(t, res[0].Why, "RSI 25 oversold")
	assert.Equal(t, mockFeatures("XOM")[FeatureValue], res[0].Features[FeatureValue])
}

func TestMinScoreFilters(t *testing.T) {
	s, _, _ := newService(t, universe(), nil)
	res, err := s.Search(context.Background(), models.SearchQuery{MinScore: 0.99})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestResultsAreCachedUntilNewSignals(t *testing.T) {
	m := universe()
	s, _, bus := newService(t, m, nil)
	s.Start()
	defer s.Shutdown()
	ctx := context.Background()
	q := models.SearchQuery{Text: "jpm"}

	first, err := s.Search(ctx, q)
	require.NoError(t, err)
	m.signals["JPM"] = []models.OracleSignal{bullish("JPM", 0.9)}

	cached, err := s.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first[0].Score, cached[0].Score)

	eventbus.Emit(bus, events.OracleSignal, bullish("JPM", 0.9))
	fresh, err := s.Search(ctx, q)
	require.NoError(t, err)
	assert.Greater(t, fresh[0].Score, first[0].Score)
}

func TestSavedSearchLifecycle(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	s, _, _ := newService(t, universe(), mc)
	ctx := context.Background()

	_, err := s.SaveSearch(ctx, "", "x", models.SearchQuery{}, 0.5)
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = s.SaveSearch(ctx, "u1", "x", models.SearchQuery{}, 1.5)
	assert.ErrorIs(t, err, ErrInvalid)

	a, err := s.SaveSearch(ctx, "u1", "tech", models.SearchQuery{Sector: "Technology"}, 0.5)
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, 10, a.Query.Limit)

	// A fresh service over the same cache sees the saved search.
	restored, _, _ := newService(t, universe(), mc)
	list, err := restored.SavedSearches(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	assert.ErrorIs(t, s.DeleteSearch(ctx, "u1", "nope"), ErrNotFound)
	require.NoError(t, s.DeleteSearch(ctx, "u1", a.ID))
	list, err = s.SavedSearches(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
	other, err := s.SavedSearches(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCheckAlertsFiresOnCrossing(t *testing.T) {
	m := universe()
	s, clock, bus := newService(t, m, nil)
	ctx := context.Background()
	var got []models.SearchAlert
	eventbus.Subscribe(bus, events.SearchAlerted, func(a models.SearchAlert) { got = append(got, a) })

	ss, err := s.SaveSearch(ctx, "u1", "banks", models.SearchQuery{Text: "jpm"}, 0.01)
	require.NoError(t, err)

	alerts := s.CheckAlerts(ctx)
	require.Len(t, alerts, 1)
	assert.Equal(t, ss.ID, alerts[0].SearchID)
	assert.Equal(t, "JPM", alerts[0].Top.Symbol)
	require.Len(t, got, 1)

	assert.Empty(t, s.CheckAlerts(ctx), "still above threshold, no new crossing")

	saved := m.symbols
	m.symbols = nil
	assert.Empty(t, s.CheckAlerts(ctx))
	m.symbols = saved
	clock.Advance(time.Minute)
	assert.Len(t, s.CheckAlerts(ctx), 1)

	list, err := s.SavedSearches(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, list[0].LastAlertAt)
	assert.Equal(t, now.Add(time.Minute), *list[0].LastAlertAt)
}

func TestAlertsCoverSearchesPersistedBeforeRestart(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	ctx := context.Background()
	first, _, _ := newService(t, universe(), mc)
	banks, err := first.SaveSearch(ctx, "u1", "banks", models.SearchQuery{Text: "jpm"}, 0.01)
	require.NoError(t, err)
	energy, err := first.SaveSearch(ctx, "u2", "energy", models.SearchQuery{Text: "xom"}, 0.01)
	require.NoError(t, err)

	restarted, _, bus := newService(t, universe(), mc)
	var got int
	eventbus.Subscribe(bus, events.SearchAlerted, func(models.SearchAlert) { got++ })
	restarted.Start()
	defer restarted.Shutdown()

	alerts := restarted.CheckAlerts(ctx)
	require.Len(t, alerts, 2)
	ids := []string{alerts[0].SearchID, alerts[1].SearchID}
	assert.ElementsMatch(t, []string{banks.ID, energy.ID}, ids)
	assert.Equal(t, 2, got)

	chips, err := first.SaveSearch(ctx, "u3", "chips", models.SearchQuery{Text: "amd"}, 0.01)
	require.NoError(t, err)
	alerts = restarted.CheckAlerts(ctx)
	require.Len(t, alerts, 1)
	assert.Equal(t, chips.ID, alerts[0].SearchID)
	assert.Equal(t, "u3", alerts[0].UserID)
}

type brokenUnlock struct{ cache.Service }

func (brokenUnlock) Unlock(context.Context, string) error { return errors.New("connection reset") }

type logSink struct{ entries chan logger.AggregatedLogEntry }

func (s *logSink) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	for _, e := range payload.([]logger.AggregatedLogEntry) {
		s.entries <- e
	}
	return nil
}

func TestCheckAlertsLogsUnlockFailure(t *testing.T) {
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()
	sink := &logSink{entries: make(chan logger.AggregatedLogEntry, 8)}
	l := logger.Nop()
	l.AddCollector(&logger.CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "stag.logs", Publisher: sink})
	defer l.RemoveCollector()

	s := New(universe(), eventbus.New(), scheduler.NewVirtual(now), brokenUnlock{mc}, WithLogger(l))
	ctx := context.Background()
	_, err := s.SaveSearch(ctx, "u1", "banks", models.SearchQuery{Text: "jpm"}, 0.01)
	require.NoError(t, err)
	assert.Len(t, s.CheckAlerts(ctx), 1)

	select {
	case e := <-sink.entries:
		assert.Equal(t, "warn", e.Level)
		assert.Equal(t, "search alert unlock failed", e.Message)
		assert.Equal(t, "connection reset", e.Fields["error"])
	case <-time.After(time.Second):
		t.Fatal("unlock failure was not logged")
	}
}

func TestStartSchedulesAlerts(t *testing.T) {
	s, clock, bus := newService(t, universe(), nil)
	var got int
	eventbus.Subscribe(bus, events.SearchAlerted, func(models.SearchAlert) { got++ })
	_, err := s.SaveSearch(context.Background(), "u1", "all", models.SearchQuery{}, 0.01)
	require.NoError(t, err)

	s.Start()
	s.Start()
	assert.Equal(t, 1, clock.Pending())
	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, got)

	s.Shutdown()
	assert.Equal(t, 0, clock.Pending())
}
