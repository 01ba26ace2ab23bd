package tracking

import (
	"sort"
	"sync"
)

// Buffer holds the latest undrained sample per tool.
//
// Thread-safety: the mutex is held only while a sample is copied in or
// the map is swapped out, never across a device read or a delegator
// request.
type Buffer struct {
	mu       sync.Mutex
	samples  map[string]Sample
	received int
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{samples: make(map[string]Sample)}
}

// Put stores s as the latest sample for its tool. It reports whether an
// undrained sample for the same tool was overwritten.
func (b *Buffer) Put(s Sample) (overwrote bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, overwrote = b.samples[s.Tool]
	b.samples[s.Tool] = s
	b.received++
	return overwrote
}

// Drain removes and returns every buffered sample, ordered by tool name.
func (b *Buffer) Drain() []Sample {
	b.mu.Lock()
	taken := b.samples
	b.samples = make(map[string]Sample, len(taken))
	b.mu.Unlock()

	out := make([]Sample, 0, len(taken))
	for _, s := range taken {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool < out[j].Tool })
	return out
}

// Len returns the number of tools with an undrained sample.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Received returns the number of samples ever put, including overwritten
// ones.
func (b *Buffer) Received() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.received
}
