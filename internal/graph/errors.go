package graph

import "errors"

var (
	// ErrUnknownNode indicates a NodeID that was never issued by this graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNodeRemoved indicates a node that has been removed from the graph.
	ErrNodeRemoved = errors.New("node removed")

	// ErrSelfParent indicates an attempt to make a node its own parent.
	ErrSelfParent = errors.New("node cannot be its own parent")

	// ErrCycle indicates the requested parent already has the node as an ancestor.
	ErrCycle = errors.New("parent would create a cycle")

	// ErrDetached indicates an operation that requires a parent on a detached node.
	ErrDetached = errors.New("node has no parent")

	// ErrDisconnected indicates there is no path between two nodes.
	ErrDisconnected = errors.New("no path between nodes")
)
