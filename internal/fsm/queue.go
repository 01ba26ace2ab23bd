package fsm

import "sync"

// pending is one queued input together with the payload it was pushed with.
type pending[P any] struct {
	input   InputID
	payload P
}

// inputQueue is a thread-safe FIFO of pushed inputs.
//
// The queue is unbounded so an action can push any number of follow-up
// inputs without blocking the goroutine that is draining the machine.
type inputQueue[P any] struct {
	mu    sync.Mutex
	items []pending[P]
}

func newInputQueue[P any]() *inputQueue[P] {
	return &inputQueue[P]{
		items: make([]pending[P], 0, 8),
	}
}

// Enqueue adds an input to the back of the queue.
func (q *inputQueue[P]) Enqueue(p pending[P]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
}

// TryDequeue removes and returns the front input.
// Returns false if the queue is empty.
func (q *inputQueue[P]) TryDequeue() (pending[P], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return pending[P]{}, false
	}

	p := q.items[0]

	// Clear the slot so payload pointers (delegators, graphs) are not
	// retained by the backing array.
	var zero pending[P]
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return p, true
}

// Len returns the current queue length.
func (q *inputQueue[P]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
