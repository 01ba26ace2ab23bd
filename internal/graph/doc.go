// Package graph implements the coordinate-system graph: an arena of nodes,
// each holding a transform to its parent frame, plus the path resolver
// that composes transforms between arbitrary nodes.
//
// Nodes live in a slice owned by the Graph and refer to each other by
// NodeID (arena index), never by pointer. Children lists are kept for
// traversal and diagnostics only; the single-parent and acyclicity
// invariants are enforced by SetParent, which walks the ancestor chain
// before every mutation.
//
// Thread-safety: every Graph method is safe for concurrent use. Mutations
// take the write lock; resolution takes the read lock.
package graph
