package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"StagAlgo/internal/domain/models"
	"StagAlgo/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkStub struct {
	mu     sync.Mutex
	trades []models.Trade
}

func (s *sinkStub) HandleTrade(t models.Trade) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, t)
	return true
}

type fwdStub struct {
	mu   sync.Mutex
	fail bool
	got  []string
}

func (f *fwdStub) Process(_ context.Context, t *models.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.got = append(f.got, t.Symbol)
	return nil
}

func (f *fwdStub) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func trade(sym string) *models.Trade {
	return &models.Trade{Symbol: sym, Timestamp: 1735830000000, Price: 100, Volume: 5}
}

func TestProcessRejectsInvalid(t *testing.T) {
	sink := &sinkStub{}
	p := NewRealtimePipeline(sink, nil, metrics.Nop{})
	ctx := context.Background()

	assert.ErrorIs(t, p.Process(ctx, nil), errInvalidTrade)
	assert.ErrorIs(t, p.Process(ctx, &models.Trade{Timestamp: 1, Price: 1}), errInvalidTrade)
	assert.ErrorIs(t, p.Process(ctx, &models.Trade{Symbol: "A", Price: 1}), errInvalidTrade)
	assert.ErrorIs(t, p.Process(ctx, &models.Trade{Symbol: "A", Timestamp: 1, Price: 0}), errInvalidTrade)
	assert.Empty(t, sink.trades)
}

func TestTransformRunsBeforeSink(t *testing.T) {
	sink := &sinkStub{}
	p := NewRealtimePipeline(sink, nil, metrics.Nop{}, WithTransform(func(tr *models.Trade) *models.Trade {
		out := *tr
		out.Symbol = "GOOGL"
		return &out
	}))
	require.NoError(t, p.Process(context.Background(), trade("GOOG")))
	require.Len(t, sink.trades, 1)
	assert.Equal(t, "GOOGL", sink.trades[0].Symbol)
}

func TestThrottleLimitsForwardingNotSink(t *testing.T) {
	at := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	sink, fwd := &sinkStub{}, &fwdStub{}
	p := NewRealtimePipeline(sink, fwd, metrics.Nop{}, WithMaxRPS(2), WithPipelineClock(func() time.Time { return at }))

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Process(context.Background(), trade("AAPL")))
	}
	assert.Len(t, sink.trades, 5, "every trade builds bars")
	assert.Equal(t, 2, fwd.count())

	require.NoError(t, p.Process(context.Background(), trade("MSFT")))
	assert.Equal(t, 3, fwd.count())
}

func TestFailedForwardIsBufferedAndFlushed(t *testing.T) {
	sink, fwd := &sinkStub{}, &fwdStub{fail: true}
	p := NewRealtimePipeline(sink, fwd, metrics.Nop{}, WithBufferSize(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Error(t, p.Process(ctx, trade("AAPL")))
	assert.Error(t, p.Process(ctx, trade("MSFT")))
	assert.Equal(t, 1, p.Buffered(), "second trade dropped on a full buffer")

	fwd.mu.Lock()
	fwd.fail = false
	fwd.mu.Unlock()
	p.Start(ctx)
	defer p.Stop()
	assert.Eventually(t, func() bool { return fwd.count() == 1 }, time.Second, 10*time.Millisecond)
}
