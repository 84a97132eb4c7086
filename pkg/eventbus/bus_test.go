package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tick struct {
	Symbol string
	Price  float64
}

var (
	tickTopic = NewTopic[tick]("test.tick")
	noteTopic = NewTopic[string]("test.note")
)

func TestEmitRegistrationOrder(t *testing.T) {
	b := New()
	var got []string
	Subscribe(b, tickTopic, func(tk tick) { got = append(got, "a:"+tk.Symbol) })
	Subscribe(b, tickTopic, func(tk tick) { got = append(got, "b:"+tk.Symbol) })
	Subscribe(b, tickTopic, func(tk tick) { got = append(got, "c:"+tk.Symbol) })

	Emit(b, tickTopic, tick{Symbol: "AAPL", Price: 1})

	assert.Equal(t, []string{"a:AAPL", "b:AAPL", "c:AAPL"}, got)
}

func TestEmitIsSynchronous(t *testing.T) {
	b := New()
	delivered := false
	Subscribe(b, noteTopic, func(string) { delivered = true })
	Emit(b, noteTopic, "x")
	assert.True(t, delivered, "handler must run before Emit returns")
}

func TestTopicsAreIsolated(t *testing.T) {
	b := New()
	ticks, notes := 0, 0
	Subscribe(b, tickTopic, func(tick) { ticks++ })
	Subscribe(b, noteTopic, func(string) { notes++ })

	Emit(b, noteTopic, "hello")
	assert.Equal(t, 0, ticks)
	assert.Equal(t, 1, notes)
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	calls := 0
	unsub := Subscribe(b, noteTopic, func(string) { calls++ })
	Emit(b, noteTopic, "1")
	unsub()
	unsub()
	Emit(b, noteTopic, "2")

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.SubscriberCount(noteTopic.Name()))
}

func TestUnsubscribeKeepsOthersInOrder(t *testing.T) {
	b := New()
	var got []int
	Subscribe(b, noteTopic, func(string) { got = append(got, 1) })
	unsub := Subscribe(b, noteTopic, func(string) { got = append(got, 2) })
	Subscribe(b, noteTopic, func(string) { got = append(got, 3) })
	unsub()

	Emit(b, noteTopic, "x")
	assert.Equal(t, []int{1, 3}, got)
}

func TestHandlerPanicPropagates(t *testing.T) {
	b := New()
	Subscribe(b, noteTopic, func(string) { panic("boom") })
	require.Panics(t, func() { Emit(b, noteTopic, "x") })
}

func TestSubscribeDuringEmitAppliesNextTime(t *testing.T) {
	b := New()
	late := 0
	Subscribe(b, noteTopic, func(string) {
		Subscribe(b, noteTopic, func(string) { late++ })
	})
	Emit(b, noteTopic, "first")
	assert.Equal(t, 0, late)
	Emit(b, noteTopic, "second")
	assert.Equal(t, 1, late)
}

func TestEmitWithoutSubscribers(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() { Emit(b, tickTopic, tick{}) })
}
