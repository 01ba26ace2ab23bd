package testutil

import "sync"

// Recorder collects values delivered to a callback, typically events
// from an observer. Its Record method has the shape of an observer.
//
// Thread-safety: safe for concurrent use.
type Recorder[E any] struct {
	mu    sync.Mutex
	items []E
}

// NewRecorder creates an empty recorder.
func NewRecorder[E any]() *Recorder[E] {
	return &Recorder[E]{}
}

// Record appends e.
func (r *Recorder[E]) Record(e E) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, e)
}

// All returns a copy of everything recorded so far, in arrival order.
func (r *Recorder[E]) All() []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]E, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of recorded values.
func (r *Recorder[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Last returns the most recent value and whether there was one.
func (r *Recorder[E]) Last() (E, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var zero E
	if len(r.items) == 0 {
		return zero, false
	}
	return r.items[len(r.items)-1], true
}

// Filter returns the recorded values for which keep returns true.
func (r *Recorder[E]) Filter(keep func(E) bool) []E {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []E
	for _, e := range r.items {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards everything recorded.
func (r *Recorder[E]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
}
