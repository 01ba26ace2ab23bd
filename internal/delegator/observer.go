package delegator

import "sync"

// Observer receives events. Observers run synchronously on the goroutine
// processing the request and must not block.
type Observer func(Event)

// Subscription identifies a registered observer.
type Subscription uint64

type registration struct {
	id       Subscription
	kind     EventKind // zero means every kind
	observer Observer
}

// observers is a subscription list keyed by event kind.
//
// Thread-safety: safe for concurrent use. Emit copies the list before
// calling out, so observers may subscribe or unsubscribe re-entrantly.
type observers struct {
	mu   sync.Mutex
	next Subscription
	regs []registration
}

func (o *observers) add(kind EventKind, fn Observer) Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.next++
	o.regs = append(o.regs, registration{id: o.next, kind: kind, observer: fn})
	return o.next
}

func (o *observers) remove(id Subscription) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, r := range o.regs {
		if r.id == id {
			o.regs = append(o.regs[:i:i], o.regs[i+1:]...)
			return true
		}
	}
	return false
}

func (o *observers) emit(ev Event) {
	o.mu.Lock()
	regs := make([]registration, len(o.regs))
	copy(regs, o.regs)
	o.mu.Unlock()

	for _, r := range regs {
		if r.kind == 0 || r.kind == ev.Kind {
			r.observer(ev)
		}
	}
}

func (o *observers) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.regs)
}

// Hub is a fan-in point that every delegator of a scene republishes its
// events to. Recorders and metrics subscribe to the hub instead of to
// each delegator.
type Hub struct {
	obs observers
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers fn for one event kind.
func (h *Hub) Subscribe(kind EventKind, fn Observer) Subscription {
	return h.obs.add(kind, fn)
}

// SubscribeAll registers fn for every event kind.
func (h *Hub) SubscribeAll(fn Observer) Subscription {
	return h.obs.add(0, fn)
}

// Unsubscribe removes a registration. Returns false if it was not found.
func (h *Hub) Unsubscribe(id Subscription) bool {
	return h.obs.remove(id)
}

// Publish delivers ev to the hub's observers.
func (h *Hub) Publish(ev Event) {
	h.obs.emit(ev)
}
