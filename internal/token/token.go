// Package token issues process-unique identifiers.
//
// Two kinds of identity are handed out:
//   - Token: a small integer, strictly increasing across the process, used
//     to name state machine states and inputs.
//   - Generator strings: UUIDv7 identities attached to graph nodes so that
//     recorded sessions can be correlated with the entities that produced
//     them.
package token

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Token is a process-unique identifier. The zero Token is never issued
// and means "no token".
type Token uint64

// Issuer hands out strictly increasing tokens.
//
// Thread-safety: Issuer is safe for concurrent use (atomic operations).
type Issuer struct {
	seq atomic.Uint64
}

// NewIssuer creates an issuer whose first token is 1.
func NewIssuer() *Issuer {
	return &Issuer{}
}

// Next returns the next token. Each call returns a unique, increasing value.
func (i *Issuer) Next() Token {
	return Token(i.seq.Add(1))
}

// Last returns the most recently issued token without issuing a new one.
func (i *Issuer) Last() Token {
	return Token(i.seq.Load())
}

// Default is the process-wide issuer used for state machine tokens.
// Tokens from Default are unique across every machine in the process.
var Default = NewIssuer()

// Next issues a token from Default.
func Next() Token {
	return Default.Next()
}

// Generator produces string identities.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identities.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined identities for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	idx    int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{tokens: ids}
}

// Generate returns the next predetermined id.
//
// Panics if all ids have been consumed, so a test that creates more
// entities than it planned for fails loudly.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.tokens) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.tokens[g.idx]
	g.idx++
	return id
}
