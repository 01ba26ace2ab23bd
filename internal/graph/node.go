package graph

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/coordsys/internal/transform"
)

// NodeID identifies a node within one Graph. IDs are arena indices and are
// never reused, even after removal.
type NodeID int

// NoNode is the parent of a detached node.
const NoNode NodeID = -1

// node is one arena slot.
type node struct {
	uuid string
	name string
	kind string

	parent            NodeID
	transformToParent transform.Transform
	children          map[NodeID]struct{}

	generation uint64
	removed    bool

	onOrphaned func()
}

// Info is a snapshot of a node, safe to keep after the graph changes.
type Info struct {
	ID                NodeID
	UUID              string
	Name              string
	Kind              string
	Parent            NodeID
	TransformToParent transform.Transform
	Children          []NodeID
	Generation        uint64
}

// Attached reports whether the node had a parent when the snapshot was taken.
func (i Info) Attached() bool {
	return i.Parent != NoNode
}

// CanonicalName trims and NFC-normalizes a node name or kind so that
// names typed in different Unicode forms (scene files, CLI flags) compare
// equal.
func CanonicalName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
