package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)

func TestVirtualRunsDueTasks(t *testing.T) {
	v := NewVirtual(epoch)
	runs := 0
	v.Schedule(time.Minute, func(context.Context) { runs++ })

	v.Advance(59 * time.Second)
	assert.Equal(t, 0, runs)

	v.Advance(time.Second)
	assert.Equal(t, 1, runs)

	v.Advance(10 * time.Minute)
	assert.Equal(t, 11, runs)
	assert.Equal(t, epoch.Add(11*time.Minute), v.Now())
}

func TestVirtualClockDuringTask(t *testing.T) {
	v := NewVirtual(epoch)
	var seen []time.Time
	v.Schedule(15*time.Second, func(context.Context) { seen = append(seen, v.Now()) })
	v.Advance(45 * time.Second)

	require.Len(t, seen, 3)
	assert.Equal(t, epoch.Add(15*time.Second), seen[0])
	assert.Equal(t, epoch.Add(45*time.Second), seen[2])
}

func TestVirtualOrdering(t *testing.T) {
	v := NewVirtual(epoch)
	var order []string
	v.Schedule(2*time.Minute, func(context.Context) { order = append(order, "slow") })
	v.Schedule(time.Minute, func(context.Context) { order = append(order, "fast") })
	v.Advance(2 * time.Minute)

	assert.Equal(t, []string{"fast", "slow", "fast"}, order)
}

func TestVirtualCancel(t *testing.T) {
	v := NewVirtual(epoch)
	runs := 0
	cancel := v.Schedule(time.Second, func(context.Context) { runs++ })
	v.Advance(3 * time.Second)
	cancel()
	cancel()
	v.Advance(time.Hour)

	assert.Equal(t, 3, runs)
	assert.Equal(t, 0, v.Pending())
}

func TestVirtualStop(t *testing.T) {
	v := NewVirtual(epoch)
	runs := 0
	v.Schedule(time.Second, func(context.Context) { runs++ })
	v.Schedule(time.Minute, func(context.Context) { runs++ })
	v.Stop()
	v.Advance(time.Hour)
	assert.Equal(t, 0, runs)
}

func TestTickerRunsAndCancels(t *testing.T) {
	tk := NewTicker()
	defer tk.Stop()

	var runs int32
	cancel := tk.Schedule(5*time.Millisecond, func(context.Context) { atomic.AddInt32(&runs, 1) })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, time.Second, time.Millisecond)
	cancel()
	after := atomic.LoadInt32(&runs)
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&runs), after+1)
}

func TestTickerIgnoresNonPositiveInterval(t *testing.T) {
	tk := NewTicker()
	defer tk.Stop()
	cancel := tk.Schedule(0, func(context.Context) { t.Fatal("must not run") })
	cancel()
}
