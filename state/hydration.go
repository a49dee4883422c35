package state

import (
	"sync"
	"sync/atomic"
)

// HydrationStatus is the readiness of a store.
type HydrationStatus struct {
	IsHydrating bool `json:"isHydrating"`
}

// Hydration is a one-way flag: it starts hydrating and transitions to
// hydrated exactly once.
type Hydration struct {
	hydrated atomic.Bool
	once     sync.Once
	done     chan struct{}
	changes  *broker
}

func newHydration() *Hydration {
	return &Hydration{done: make(chan struct{}), changes: newBroker()}
}

// IsHydrating reports whether the initial load is still in progress.
func (h *Hydration) IsHydrating() bool {
	return !h.hydrated.Load()
}

func (h *Hydration) HydrationStatus() HydrationStatus {
	return HydrationStatus{IsHydrating: h.IsHydrating()}
}

// Done is closed once hydration completes.
func (h *Hydration) Done() <-chan struct{} {
	return h.done
}

// Subscribe registers for hydration change notifications. A subscription made
// after hydration completed receives one signal immediately so the subscriber
// re-evaluates. The returned func cancels the subscription.
func (h *Hydration) Subscribe() (<-chan struct{}, func()) {
	ch := h.changes.subscribe()
	if !h.IsHydrating() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return ch, func() { h.changes.unsubscribe(ch) }
}

// finish marks the store hydrated. Only the first call has any effect.
func (h *Hydration) finish() bool {
	fired := false
	h.once.Do(func() {
		h.hydrated.Store(true)
		close(h.done)
		h.changes.notify()
		fired = true
	})
	return fired
}
