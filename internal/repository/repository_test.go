package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"StagAlgo/internal/domain/models"
	pkgch "StagAlgo/pkg/clickhouse"
	pkgkafka "StagAlgo/pkg/kafka"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMirror(t *testing.T) (*ClickHouseMirror, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewClickHouseMirror(pkgch.NewClientFromDB(db), nil), mock
}

func TestMirrorInitCreatesTables(t *testing.T) {
	m, mock := newMirror(t)
	for range Schema() {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, m.Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCandlesChunks(t *testing.T) {
	m, mock := newMirror(t)
	m.WithBatchSize(3)
	ts := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, 4)
	for i := range candles {
		candles[i] = models.Candle{Symbol: "AAPL", Timeframe: models.TFD1, Timestamp: ts.AddDate(0, 0, i), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}
	}
	mock.ExpectExec("INSERT INTO candles").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO candles").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.SaveCandles(context.Background(), candles))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCandlesReportsError(t *testing.T) {
	m, mock := newMirror(t)
	mock.ExpectExec("INSERT INTO candles").WillReturnError(errors.New("down"))
	err := m.SaveCandles(context.Background(), []models.Candle{{Symbol: "AAPL", Timeframe: models.TF1m}})
	assert.Error(t, err)
}

func TestSaveSignalAndDecisionEncodeJSON(t *testing.T) {
	m, mock := newMirror(t)
	ts := time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO oracle_signals").
		WithArgs(ts, "s1", "AAPL", "momentum", 0.8, "bullish", "high", "oracle", "up", `{"rsi":0.7}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, m.SaveSignal(ctx, models.OracleSignal{
		ID: "s1", Symbol: "AAPL", Type: models.SignalMomentum, Strength: 0.8, Direction: models.DirectionBullish,
		Severity: models.SeverityHigh, Source: "oracle", Summary: "up", Timestamp: ts, SubScores: map[string]float64{"rsi": 0.7},
	}))

	mock.ExpectExec("INSERT INTO decisions").
		WithArgs(ts, "d1", "AAPL", "hard_pull", `["collapse"]`, sqlmock.AnyArg(), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, m.SaveDecision(ctx, models.Decision{
		ID: "d1", Action: models.ActionHardPull, Reasons: []string{"collapse"},
		Original: models.TradeRequest{Symbol: "AAPL"}, DecidedAt: ts,
	}))

	mock.ExpectExec("INSERT INTO portfolio_risk").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, m.SaveRisk(ctx, models.PortfolioRisk{Timestamp: ts, DrawdownPct: 3}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchCandlesReturnsOldestFirst(t *testing.T) {
	m, mock := newMirror(t)
	d1 := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	rows := sqlmock.NewRows([]string{"ts", "symbol", "timeframe", "open", "high", "low", "close", "volume", "vwap"}).
		AddRow(d2, "AAPL", "D1", 2.0, 3.0, 1.0, 2.5, 10.0, 2.2).
		AddRow(d1, "AAPL", "D1", 1.0, 2.0, 0.5, 1.5, 20.0, nil)
	mock.ExpectQuery("SELECT ts, symbol").WithArgs("AAPL", "D1", 2).WillReturnRows(rows)

	got, err := m.FetchCandles(context.Background(), "AAPL", models.TFD1, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, d1, got[0].Timestamp)
	assert.Nil(t, got[0].VWAP)
	require.NotNil(t, got[1].VWAP)
	assert.Equal(t, 2.2, *got[1].VWAP)
}

type writerStub struct {
	fail bool
	msgs []kafka.Message
}

func (w *writerStub) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.fail {
		return errors.New("broker down")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *writerStub) Close() error { return nil }

func TestKafkaPublisherRoutesByKind(t *testing.T) {
	w := &writerStub{}
	p := NewKafkaPublisher(pkgkafka.NewProducerFromWriter(w, "none"), "stag.core.events")
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "risk", "portfolio", map[string]float64{"beta": 1}))
	require.NoError(t, p.PublishBatch(ctx, "candle", []string{"AAPL", "MSFT"}, []interface{}{1, 2}))
	assert.Error(t, p.PublishBatch(ctx, "candle", []string{"AAPL"}, nil))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "stag.core.events.risk", w.msgs[0].Topic)
	assert.Equal(t, "stag.core.events.candle", w.msgs[1].Topic)
	assert.Equal(t, "MSFT", string(w.msgs[2].Key))
	assert.Equal(t, "candle", NewKafkaPublisher(nil, "").Topic("candle"))

	w.fail = true
	assert.Error(t, p.Publish(ctx, "risk", "portfolio", 1))
	require.NoError(t, p.Close())
}
