package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/internal/overseer"
	"StagAlgo/internal/search"
	"StagAlgo/internal/service/ratelimit"
	"StagAlgo/internal/store"
	"StagAlgo/internal/usecase"
	"StagAlgo/internal/validator"
	"StagAlgo/pkg/cache"
	"StagAlgo/pkg/eventbus"
	xhttp "StagAlgo/pkg/http"
	"StagAlgo/pkg/scheduler"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)

type execStub struct{ sent []models.TradeRequest }

func (e *execStub) Execute(_ context.Context, req models.TradeRequest) (models.ExecutionResult, error) {
	e.sent = append(e.sent, req)
	return models.ExecutionResult{Success: true, OrderID: "o-1"}, nil
}

type env struct {
	e     *echo.Echo
	store *store.Store
	exec  *execStub
}

func newEnv(t *testing.T) *env {
	clock := scheduler.NewVirtual(now)
	bus := eventbus.New()
	st := store.New(bus, clock)
	v := validator.New(st, bus, clock)
	ov := overseer.New(st, bus, clock)
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { _ = mc.Close() })
	sv := search.New(st, bus, clock, mc)
	ex := &execStub{}
	gate := usecase.NewTradeGate(st, v, ov, ex)

	h := NewHandler(
		NewMarketHandler(nil, st, usecase.NewCandlesUseCase(st, nil, nil), ov),
		NewTradeHandler(nil, gate, v, ratelimit.New(0.001, 2)),
		NewSearchHandler(nil, sv),
	)
	e := echo.New()
	h.RegisterRoutes(e)

	st.UpsertSymbol(models.SymbolRef{Symbol: "AAPL", Sector: "Technology", Industry: "Consumer Electronics"})
	st.IngestPortfolioUpdate(models.PortfolioUpdate{Equity: 100000, Cash: 100000, Positions: []models.Position{}})
	st.IngestCandle(models.Candle{Symbol: "AAPL", Timeframe: models.TFD1, Timestamp: now.Add(-24 * time.Hour),
		Open: 99, High: 101, Low: 98, Close: 100, Volume: 1e6})
	return &env{e: e, store: st, exec: ex}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (en *env) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	en.e.ServeHTTP(rec, req)
	var out envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestCandlesEndpoint(t *testing.T) {
	en := newEnv(t)

	_, res := en.do(t, http.MethodGet, "/api/candles?symbol=aapl&timeframe=D1", "")
	require.Equal(t, http.StatusOK, res.Status)
	var got usecase.GetCandlesResult
	require.NoError(t, json.Unmarshal(res.Data, &got))
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 1, got.Count)

	_, res = en.do(t, http.MethodGet, "/api/candles", "")
	assert.Equal(t, http.StatusBadRequest, res.Status)

	_, res = en.do(t, http.MethodGet, "/api/candles?symbol=AAPL&timeframe=2h", "")
	require.Equal(t, http.StatusBadRequest, res.Status)
	var verrs []xhttp.ValidationError
	require.NoError(t, json.Unmarshal(res.Data, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "timeframe", verrs[0].Field)
	assert.Equal(t, "ERR_TIMEFRAME", verrs[0].Code)

	_, res = en.do(t, http.MethodGet, "/api/candles?symbol=NASDAQ:AAPL", "")
	assert.Equal(t, http.StatusOK, res.Status, "exchange prefixes are accepted")
	_, res = en.do(t, http.MethodGet, "/api/candles?symbol=a%20b", "")
	assert.Equal(t, http.StatusBadRequest, res.Status)

	_, res = en.do(t, http.MethodPost, "/api/candles/backfill", `{"symbol":"AAPL"}`)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	_, res = en.do(t, http.MethodPost, "/api/candles/backfill", `{"symbol":"AAPL","async":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
}

func TestPortfolioAndHealth(t *testing.T) {
	en := newEnv(t)

	_, res := en.do(t, http.MethodGet, "/api/portfolio", "")
	var snap models.PortfolioSnapshot
	require.NoError(t, json.Unmarshal(res.Data, &snap))
	assert.Equal(t, 100000.0, snap.Equity)

	_, res = en.do(t, http.MethodGet, "/api/health", "")
	var h models.Health
	require.NoError(t, json.Unmarshal(res.Data, &h))
	assert.Equal(t, 1, h.Symbols)

	_, res = en.do(t, http.MethodGet, "/api/indicators?symbol=MSFT", "")
	assert.Equal(t, http.StatusNotFound, res.Status)

	_, res = en.do(t, http.MethodGet, "/api/strategies?symbol=AAPL", "")
	require.Equal(t, http.StatusOK, res.Status)
	var list struct {
		Rows  []strategyVerdict `json:"rows"`
		Total int64             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &list))
	assert.EqualValues(t, 3, list.Total)
}

func TestSubmitExecutesAndRateLimits(t *testing.T) {
	en := newEnv(t)
	body := `{"user_id":"u1","trade":{"symbol":"AAPL","side":"buy","quantity":10}}`

	_, res := en.do(t, http.MethodPost, "/api/trades/submit", body)
	require.Equal(t, http.StatusOK, res.Status)
	var gr models.GateResult
	require.NoError(t, json.Unmarshal(res.Data, &gr))
	assert.True(t, gr.Success, gr.Message)
	require.NotNil(t, gr.Validation)
	require.Len(t, en.exec.sent, 1)
	assert.Equal(t, models.OrderMarket, en.exec.sent[0].OrderType)

	en.do(t, http.MethodPost, "/api/trades/submit", body)
	rec, res := en.do(t, http.MethodPost, "/api/trades/submit", body)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, "1", rec.Header().Get(echo.HeaderRetryAfter))

	_, res = en.do(t, http.MethodPost, "/api/trades/submit", `{"user_id":"u2","trade":{"symbol":"AAPL","side":"hold","quantity":1}}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
}

func TestValidateAndEvaluate(t *testing.T) {
	en := newEnv(t)

	_, res := en.do(t, http.MethodPost, "/api/trades/validate", `{"user_id":"u1","trade":{"symbol":"AAPL","side":"buy","quantity":1000}}`)
	require.Equal(t, http.StatusOK, res.Status)
	var vr models.ValidationResult
	require.NoError(t, json.Unmarshal(res.Data, &vr))
	assert.False(t, vr.Passed, "100k notional breaks the position size limit")

	_, res = en.do(t, http.MethodPost, "/api/trades/validate", `{"user_id":"u1","trade":{"symbol":"ZZZZ","side":"buy","quantity":1}}`)
	assert.Equal(t, http.StatusBadRequest, res.Status, "no reference price")

	_, res = en.do(t, http.MethodPost, "/api/trades/evaluate", `{"symbol":"AAPL","side":"sell","quantity":5}`)
	require.Equal(t, http.StatusOK, res.Status)
	var d models.Decision
	require.NoError(t, json.Unmarshal(res.Data, &d))
	assert.NotEqual(t, models.ActionHardPull, d.Action)
	assert.NotEmpty(t, d.ID)
	assert.Empty(t, en.exec.sent, "evaluate never executes")
}

func TestRulesAndProfile(t *testing.T) {
	en := newEnv(t)

	_, res := en.do(t, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, res.Status)

	_, res = en.do(t, http.MethodPatch, "/api/rules/penny_stock", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, res.Status)
	var rule models.ValidationRule
	require.NoError(t, json.Unmarshal(res.Data, &rule))
	assert.False(t, rule.Enabled)

	_, res = en.do(t, http.MethodPatch, "/api/rules/nope", `{"enabled":true}`)
	assert.Equal(t, http.StatusNotFound, res.Status)
	_, res = en.do(t, http.MethodPatch, "/api/rules/penny_stock", `{}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	_, res = en.do(t, http.MethodPut, "/api/users/u1/profile", `{"experience":"expert","personality":"aggressive"}`)
	require.Equal(t, http.StatusOK, res.Status)
	var p models.UserProfile
	require.NoError(t, json.Unmarshal(res.Data, &p))
	assert.Equal(t, "u1", p.UserID)

	_, res = en.do(t, http.MethodPut, "/api/users/u1/profile", `{"experience":"guru"}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)

	rec, _ := en.do(t, http.MethodPost, "/api/trades/outcome", `{"user_id":"u1","symbol":"AAPL","pnl":-50}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSavedSearchRoutes(t *testing.T) {
	en := newEnv(t)

	_, res := en.do(t, http.MethodGet, "/api/search?q=aapl", "")
	require.Equal(t, http.StatusOK, res.Status)

	_, res = en.do(t, http.MethodPost, "/api/searches", `{"user_id":"u1","name":"tech","query":{"sector":"Technology"},"alert_threshold":0.5}`)
	require.Equal(t, http.StatusCreated, res.Status)
	var ss models.SavedSearch
	require.NoError(t, json.Unmarshal(res.Data, &ss))
	assert.Equal(t, 10, ss.Query.Limit)

	_, res = en.do(t, http.MethodGet, "/api/searches?user_id=u1", "")
	require.Equal(t, http.StatusOK, res.Status)

	rec, _ := en.do(t, http.MethodDelete, "/api/searches/"+ss.ID+"?user_id=u1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, res = en.do(t, http.MethodDelete, "/api/searches/"+ss.ID+"?user_id=u1", "")
	assert.Equal(t, http.StatusNotFound, res.Status)

	_, res = en.do(t, http.MethodPost, "/api/searches", `{"user_id":"u1","alert_threshold":2}`)
	assert.Equal(t, http.StatusBadRequest, res.Status)
}
