package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Execution.BaseURL = url
	cfg.Execution.Timeout = 200 * time.Millisecond
	cfg.Execution.RatePerSecond = 1000
	cfg.Execution.Burst = 1000
	cfg.MarketData.BaseURL = url
	cfg.MarketData.Timeout = 200 * time.Millisecond
	return cfg
}

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/execute-trade", r.URL.Path)
		var req models.TradeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AAPL", req.Symbol)
		_ = json.NewEncoder(w).Encode(models.ExecutionResult{Success: true, OrderID: "o-1"})
	}))
	defer srv.Close()

	c := NewExecutionClient(testConfig(t, srv.URL), nil)
	res, err := c.Execute(context.Background(), models.TradeRequest{Symbol: "AAPL", Side: models.SideBuy, Quantity: 1})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "o-1", res.OrderID)
}

func TestExecuteRejectionBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"error":"insufficient buying power"}`))
	}))
	defer srv.Close()

	c := NewExecutionClient(testConfig(t, srv.URL), nil)
	res, err := c.Execute(context.Background(), models.TradeRequest{Symbol: "AAPL", Side: models.SideBuy, Quantity: 1})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient buying power", res.Error)
}

func TestExecuteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewExecutionClient(testConfig(t, srv.URL), nil)
	res, err := c.Execute(context.Background(), models.TradeRequest{Symbol: "AAPL", Side: models.SideBuy, Quantity: 1})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestExecuteNotConfigured(t *testing.T) {
	c := NewExecutionClient(testConfig(t, ""), nil)
	res, err := c.Execute(context.Background(), models.TradeRequest{Symbol: "AAPL"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, res.Success)
}

func TestFetchCandlesFallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	ts := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.Equal(t, "/candles", r.URL.Path)
		assert.Equal(t, "MSFT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "D1", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]models.Candle{
			{Symbol: "MSFT", Timeframe: models.TFD1, Timestamp: ts, Open: 1, High: 2, Low: 1, Close: 2, Volume: 10},
			{Symbol: "MSFT", Timeframe: models.TFD1, Timestamp: ts.Add(24 * time.Hour), Open: 2, High: 3, Low: 2, Close: 3, Volume: 10},
		})
	}))
	defer srv.Close()

	c := NewCandleClient(testConfig(t, srv.URL), nil, nil)
	ctx := context.Background()

	got, err := c.FetchCandles(ctx, "MSFT", models.TFD1, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3.0, got[1].Close)

	fail.Store(true)
	cached, err := c.FetchCandles(ctx, "MSFT", models.TFD1, 2)
	require.NoError(t, err)
	assert.Equal(t, got, cached)

	_, err = c.FetchCandles(ctx, "MSFT", models.TFD1, 5)
	assert.Error(t, err, "no cached copy for a different request")
}
