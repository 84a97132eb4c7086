package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu    sync.Mutex
	batch []AggregatedLogEntry
	topic string
	done  chan struct{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batch = payload.([]AggregatedLogEntry)
	close(p.done)
	return nil
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
}

func TestCollectorDeduplicatesAndFlushesOnThreshold(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{})}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "stag.logs", Publisher: pub})
	defer l.RemoveCollector()

	l.Error("store write failed", String("symbol", "AAPL"))
	l.Error("store write failed", String("symbol", "AAPL"))
	assert.Equal(t, 1, l.collector.Pending())

	l.Warn("slow task", Duration("took", 2*time.Second))

	select {
	case <-pub.done:
	case <-time.After(time.Second):
		t.Fatal("collector did not flush")
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, "stag.logs", pub.topic)
	require.Len(t, pub.batch, 2)
	counts := map[string]int{}
	for _, e := range pub.batch {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 2, counts["store write failed"])
	assert.Equal(t, 1, counts["slow task"])
}

func TestFieldKeyValues(t *testing.T) {
	k, v := Error(errors.New("boom")).GetKeyValue()
	assert.Equal(t, "error", k)
	assert.Equal(t, "boom", v)

	k, v = Duration("took", 1500*time.Millisecond).GetKeyValue()
	assert.Equal(t, "took", k)
	assert.Equal(t, int64(1500), v)

	_, v = Strings("symbols", []string{"AAPL", "MSFT"}).GetKeyValue()
	assert.Equal(t, "AAPL, MSFT", v)
}

func TestWithOnNilLogger(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.With("store").Info("hello") })
}
