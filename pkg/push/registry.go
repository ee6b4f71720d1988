package push

import (
	"sync"

	"github.com/HaejunJang/airbng/pkg/idx"
)

// Subscription is the handle returned by Subscribe. Removal goes through the
// handle, so listeners never rely on callback identity for unsubscription.
type Subscription struct {
	ID idx.ID

	event string
	fn    func(Event)
}

// registry maps event names to ordered listener lists. It is consulted on
// every inbound event and never persisted.
type registry struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[string][]*Subscription)}
}

func (r *registry) add(event string, fn func(Event)) *Subscription {
	sub := &Subscription{ID: idx.New(), event: event, fn: fn}

	r.mu.Lock()
	r.subs[event] = append(r.subs[event], sub)
	r.mu.Unlock()

	return sub
}

// remove detaches sub. Removing twice, or removing a handle that was never
// registered, is a no-op.
func (r *registry) remove(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.subs[sub.event]
	for i, s := range list {
		if s.ID == sub.ID {
			r.subs[sub.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// dispatch delivers ev to every listener registered for its name, in
// registration order. The listener list is snapshotted so a callback may
// subscribe or unsubscribe without deadlocking.
func (r *registry) dispatch(ev Event) {
	r.mu.Lock()
	list := make([]*Subscription, len(r.subs[ev.Name]))
	copy(list, r.subs[ev.Name])
	r.mu.Unlock()

	for _, sub := range list {
		sub.fn(ev)
	}
}
