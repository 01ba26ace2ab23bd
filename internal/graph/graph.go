package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/coordsys/internal/token"
	"github.com/roach88/coordsys/internal/transform"
)

// Graph owns every coordinate-system node of a scene.
type Graph struct {
	mu    sync.RWMutex
	nodes []*node
	ids   token.Generator

	// Ancestor chains keyed by start node. Guarded by cacheMu so that
	// readers holding only mu.RLock can populate it.
	cacheMu sync.Mutex
	chains  map[NodeID]cachedChain
}

// Option configures a Graph.
type Option func(*Graph)

// WithIDGenerator sets the generator used for node UUIDs.
// Defaults to token.UUIDv7Generator.
func WithIDGenerator(gen token.Generator) Option {
	return func(g *Graph) {
		if gen != nil {
			g.ids = gen
		}
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		ids:    token.UUIDv7Generator{},
		chains: make(map[NodeID]cachedChain),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode creates a detached node and returns its ID.
func (g *Graph) AddNode(name, kind string) NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, &node{
		uuid:              g.ids.Generate(),
		name:              CanonicalName(name),
		kind:              CanonicalName(kind),
		parent:            NoNode,
		transformToParent: transform.Identity(),
		children:          make(map[NodeID]struct{}),
	})
	return id
}

// SetOrphanHook registers fn to be called when the node loses its parent
// because the parent was removed. fn runs after the graph lock is
// released, on the goroutine that called RemoveNode.
func (g *Graph) SetOrphanHook(id NodeID, fn func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.lookup(id)
	if err != nil {
		return err
	}
	n.onOrphaned = fn
	return nil
}

// RemoveNode removes a node. Its children are detached and their orphan
// hooks are invoked; the node is unlinked from its own parent.
func (g *Graph) RemoveNode(id NodeID) error {
	g.mu.Lock()

	n, err := g.lookup(id)
	if err != nil {
		g.mu.Unlock()
		return err
	}

	if n.parent != NoNode {
		delete(g.nodes[n.parent].children, id)
	}

	var hooks []func()
	for _, childID := range sortedIDs(n.children) {
		child := g.nodes[childID]
		child.parent = NoNode
		child.transformToParent = transform.Identity()
		child.generation++
		if child.onOrphaned != nil {
			hooks = append(hooks, child.onOrphaned)
		}
	}

	n.removed = true
	n.parent = NoNode
	n.children = nil
	n.onOrphaned = nil
	n.generation++

	g.mu.Unlock()

	g.cacheMu.Lock()
	delete(g.chains, id)
	g.cacheMu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	return nil
}

// CheckParent reports whether parent may become the parent of child
// without mutating anything. It returns ErrSelfParent, ErrCycle, or a
// lookup error for either node.
func (g *Graph) CheckParent(child, parent NodeID) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.checkParentLocked(child, parent)
}

// SetParent attaches child under parent with the given transform. The
// request is validated under the write lock, so concurrent SetParent calls
// can never produce a cycle. On error the graph is unchanged.
func (g *Graph) SetParent(child, parent NodeID, t transform.Transform) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkParentLocked(child, parent); err != nil {
		return err
	}

	n := g.nodes[child]
	if n.parent != parent {
		if n.parent != NoNode {
			delete(g.nodes[n.parent].children, child)
		}
		g.nodes[parent].children[child] = struct{}{}
		n.parent = parent
	}
	n.transformToParent = t
	n.generation++
	return nil
}

// SetTransform replaces the transform of an attached node, keeping its
// parent. Returns ErrDetached if the node has no parent.
func (g *Graph) SetTransform(id NodeID, t transform.Transform) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.lookup(id)
	if err != nil {
		return err
	}
	if n.parent == NoNode {
		return ErrDetached
	}
	n.transformToParent = t
	n.generation++
	return nil
}

// Detach removes the node's parent link. Detaching a detached node is a
// no-op apart from bumping the generation.
func (g *Graph) Detach(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, err := g.lookup(id)
	if err != nil {
		return err
	}
	if n.parent != NoNode {
		delete(g.nodes[n.parent].children, id)
	}
	n.parent = NoNode
	n.transformToParent = transform.Identity()
	n.generation++
	return nil
}

// TransformToParent returns the node's transform and whether it is attached.
func (g *Graph) TransformToParent(id NodeID) (transform.Transform, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, err := g.lookup(id)
	if err != nil {
		return transform.Transform{}, false, err
	}
	if n.parent == NoNode {
		return transform.Transform{}, false, nil
	}
	return n.transformToParent, true, nil
}

// IsAncestor reports whether ancestor appears on the parent chain of id.
// A node is not its own ancestor.
func (g *Graph) IsAncestor(ancestor, id NodeID) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, err := g.lookup(ancestor); err != nil {
		return false, err
	}
	n, err := g.lookup(id)
	if err != nil {
		return false, err
	}
	for p := n.parent; p != NoNode; p = g.nodes[p].parent {
		if p == ancestor {
			return true, nil
		}
	}
	return false, nil
}

// Info returns a snapshot of one node.
func (g *Graph) Info(id NodeID) (Info, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, err := g.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return g.infoLocked(id, n), nil
}

// Nodes returns snapshots of every live node in ID order.
func (g *Graph) Nodes() []Info {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]Info, 0, len(g.nodes))
	for i, n := range g.nodes {
		if n.removed {
			continue
		}
		infos = append(infos, g.infoLocked(NodeID(i), n))
	}
	return infos
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, n := range g.nodes {
		if !n.removed {
			count++
		}
	}
	return count
}

// checkParentLocked validates a prospective parent. Caller holds mu.
func (g *Graph) checkParentLocked(child, parent NodeID) error {
	if _, err := g.lookup(child); err != nil {
		return fmt.Errorf("child: %w", err)
	}
	p, err := g.lookup(parent)
	if err != nil {
		return fmt.Errorf("parent: %w", err)
	}
	if child == parent {
		return ErrSelfParent
	}
	for cur := p.parent; cur != NoNode; cur = g.nodes[cur].parent {
		if cur == child {
			return ErrCycle
		}
	}
	return nil
}

// lookup returns the live node for id. Caller holds mu.
func (g *Graph) lookup(id NodeID) (*node, error) {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownNode, id)
	}
	n := g.nodes[id]
	if n.removed {
		return nil, fmt.Errorf("%w: %d (%s)", ErrNodeRemoved, id, n.name)
	}
	return n, nil
}

func (g *Graph) infoLocked(id NodeID, n *node) Info {
	return Info{
		ID:                id,
		UUID:              n.uuid,
		Name:              n.name,
		Kind:              n.kind,
		Parent:            n.parent,
		TransformToParent: n.transformToParent,
		Children:          sortedIDs(n.children),
		Generation:        n.generation,
	}
}

func sortedIDs(set map[NodeID]struct{}) []NodeID {
	ids := make([]NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
