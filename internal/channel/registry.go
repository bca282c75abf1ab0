// Package channel implements the job event channel: the reconnecting
// WebSocket connection to the backend, the frame decoder and the router that
// fans decoded events out to per-job subscribers.
package channel

import (
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

type subscription[T any] struct {
	fn     func(T)
	active atomic.Bool
}

// Registry is a keyed set of callbacks. Publishing to a key invokes the
// callbacks registered for that key, synchronously and in registration
// order. It is shared by the event router and the derived-state models.
type Registry[T any] struct {
	name string
	mu   sync.Mutex
	subs map[string][]*subscription[T]
}

// NewRegistry creates an empty registry. name only appears in log lines.
func NewRegistry[T any](name string) *Registry[T] {
	return &Registry[T]{
		name: name,
		subs: make(map[string][]*subscription[T]),
	}
}

// Subscribe registers fn for key and returns its cancel function. Cancel is
// idempotent and may be called from inside fn. Once it returns, no later
// Publish reaches fn.
func (r *Registry[T]) Subscribe(key string, fn func(T)) (cancel func()) {
	sub := &subscription[T]{fn: fn}
	sub.active.Store(true)

	r.mu.Lock()
	r.subs[key] = append(r.subs[key], sub)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)
			r.remove(key, sub)
		})
	}
}

func (r *Registry[T]) remove(key string, sub *subscription[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.subs[key]
	kept := make([]*subscription[T], 0, len(current))
	for _, s := range current {
		if s != sub {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(r.subs, key)
		return
	}
	r.subs[key] = kept
}

// Publish delivers v to every live subscriber of key. Subscribers run
// outside the registry lock against a snapshot, so they may subscribe or
// cancel freely. A panicking subscriber is logged and skipped.
func (r *Registry[T]) Publish(key string, v T) {
	r.mu.Lock()
	snapshot := append([]*subscription[T](nil), r.subs[key]...)
	r.mu.Unlock()

	for _, sub := range snapshot {
		if !sub.active.Load() {
			continue
		}
		r.invoke(key, sub, v)
	}
}

func (r *Registry[T]) invoke(key string, sub *subscription[T], v T) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[%s] Subscriber for %q panicked: %v\n%s", r.name, key, rec, debug.Stack())
		}
	}()
	sub.fn(v)
}

// Count returns the number of live subscriptions for key.
func (r *Registry[T]) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[key])
}

// Keys returns every key that currently has at least one subscriber.
func (r *Registry[T]) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.subs))
	for k := range r.subs {
		keys = append(keys, k)
	}
	return keys
}
