package graph

import (
	"fmt"

	"github.com/roach88/coordsys/internal/clock"
	"github.com/roach88/coordsys/internal/transform"
)

// Resolution is the outcome of resolving the transform between two nodes.
type Resolution struct {
	// Transform maps points in From's frame into To's frame.
	Transform transform.Transform

	// Stale is set when the query time lies outside Transform's validity
	// window. The transform is still returned; whether stale data is
	// usable is the caller's decision.
	Stale bool

	From     NodeID
	To       NodeID
	Ancestor NodeID
}

// cachedChain is an ancestor chain together with the generation of every
// node on it when the chain was built.
type cachedChain struct {
	ids  []NodeID
	gens []uint64
}

// Resolve composes the transform from one node to another at time at.
//
// Both ancestor chains are walked to their roots. Nodes with different
// roots are in disjoint trees and yield ErrDisconnected. Otherwise the
// lowest common ancestor splits the path: the from-branch is composed
// upward with each node's transform-to-parent, and the result is carried
// down the to-branch with the inverse of that branch's upward composition.
//
// Resolving a node to itself yields the identity with an unbounded
// validity window.
func (g *Graph) Resolve(from, to NodeID, at clock.Millis) (Resolution, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, err := g.lookup(from); err != nil {
		return Resolution{}, fmt.Errorf("from: %w", err)
	}
	if _, err := g.lookup(to); err != nil {
		return Resolution{}, fmt.Errorf("to: %w", err)
	}

	if from == to {
		return Resolution{
			Transform: transform.Identity(),
			From:      from,
			To:        to,
			Ancestor:  from,
		}, nil
	}

	fromChain, err := g.chainLocked(from)
	if err != nil {
		return Resolution{}, err
	}
	toChain, err := g.chainLocked(to)
	if err != nil {
		return Resolution{}, err
	}

	if fromChain[len(fromChain)-1] != toChain[len(toChain)-1] {
		return Resolution{}, fmt.Errorf("%w: %s and %s", ErrDisconnected, g.nodes[from].name, g.nodes[to].name)
	}

	toPos := make(map[NodeID]int, len(toChain))
	for i, id := range toChain {
		toPos[id] = i
	}

	fromDepth, toDepth := -1, -1
	for i, id := range fromChain {
		if j, ok := toPos[id]; ok {
			fromDepth, toDepth = i, j
			break
		}
	}
	// Shared roots guarantee a common ancestor.
	lca := fromChain[fromDepth]

	up := g.composeUpLocked(fromChain[:fromDepth])
	down := g.composeUpLocked(toChain[:toDepth])
	result := transform.Compose(transform.Inverse(down), up)

	return Resolution{
		Transform: result,
		Stale:     !result.IsValidAtTime(at),
		From:      from,
		To:        to,
		Ancestor:  lca,
	}, nil
}

// composeUpLocked composes the transforms-to-parent of a chain segment,
// innermost first, yielding the transform from chain[0] to the parent of
// the last element. Caller holds mu.
func (g *Graph) composeUpLocked(chain []NodeID) transform.Transform {
	acc := transform.Identity()
	for _, id := range chain {
		acc = transform.Compose(g.nodes[id].transformToParent, acc)
	}
	return acc
}

// chainLocked returns the ancestor chain of id, from id to its root.
// Cached chains are reused while every node on them keeps its generation.
// Caller holds mu (read or write).
func (g *Graph) chainLocked(id NodeID) ([]NodeID, error) {
	g.cacheMu.Lock()
	cached, ok := g.chains[id]
	g.cacheMu.Unlock()

	if ok && g.chainFreshLocked(cached) {
		return cached.ids, nil
	}

	var c cachedChain
	for cur := id; cur != NoNode; cur = g.nodes[cur].parent {
		if len(c.ids) > len(g.nodes) {
			// SetParent rejects cycles; reaching this means the arena is corrupt.
			return nil, fmt.Errorf("%w: ancestor chain of %s does not terminate", ErrCycle, g.nodes[id].name)
		}
		c.ids = append(c.ids, cur)
		c.gens = append(c.gens, g.nodes[cur].generation)
	}

	g.cacheMu.Lock()
	g.chains[id] = c
	g.cacheMu.Unlock()

	return c.ids, nil
}

func (g *Graph) chainFreshLocked(c cachedChain) bool {
	for i, id := range c.ids {
		n := g.nodes[id]
		if n.removed || n.generation != c.gens[i] {
			return false
		}
	}
	return true
}

// CachedChains returns the number of cached ancestor chains.
// Used for testing and introspection.
func (g *Graph) CachedChains() int {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	return len(g.chains)
}
