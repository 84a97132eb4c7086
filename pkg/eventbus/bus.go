// Package eventbus is a synchronous in-process publish/subscribe registry.
//
// Topics are typed: a Topic[T] only accepts payloads of type T, so a
// mismatched Emit or Subscribe fails to compile. Handlers run on the
// emitter's goroutine in registration order. The bus does not recover
// handler panics.
package eventbus

import (
	"sync"
)

// Topic names a channel carrying payloads of type T.
type Topic[T any] struct {
	name string
}

// NewTopic declares a topic. Topic names must be unique per bus.
func NewTopic[T any](name string) Topic[T] { return Topic[T]{name: name} }

// Name returns the wire name of the topic.
func (t Topic[T]) Name() string { return t.name }

type subscription struct {
	id uint64
	fn func(any)
}

// Bus holds subscriptions per topic name.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers h for topic t and returns a func that removes it.
// Calling the returned func more than once is a no-op.
func Subscribe[T any](b *Bus, t Topic[T], h func(T)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[t.name] = append(b.subs[t.name], subscription{
		id: id,
		fn: func(p any) { h(p.(T)) },
	})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(t.name, id) })
	}
}

// Emit delivers payload to every current subscriber of t, in registration
// order, before returning. Subscribers added or removed by a handler take
// effect from the next Emit.
func Emit[T any](b *Bus, t Topic[T], payload T) {
	b.mu.RLock()
	handlers := make([]subscription, len(b.subs[t.name]))
	copy(handlers, b.subs[t.name])
	b.mu.RUnlock()

	for _, s := range handlers {
		s.fn(payload)
	}
}

// SubscriberCount returns the number of handlers registered for a topic name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[name]
	for i, s := range list {
		if s.id == id {
			next := make([]subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, name)
			} else {
				b.subs[name] = next
			}
			return
		}
	}
}
