package graph

import (
	"bufio"
	"fmt"
	"io"
)

// Dump writes the forest as an indented tree, roots and children in ID
// order, one node per line: "name (kind)".
func (g *Graph) Dump(w io.Writer) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bw := bufio.NewWriter(w)
	for i, n := range g.nodes {
		if n.removed || n.parent != NoNode {
			continue
		}
		g.dumpLocked(bw, NodeID(i), 0)
	}
	return bw.Flush()
}

func (g *Graph) dumpLocked(w *bufio.Writer, id NodeID, depth int) {
	n := g.nodes[id]
	for i := 0; i < depth; i++ {
		w.WriteString("  ")
	}
	if n.kind != "" {
		fmt.Fprintf(w, "%s (%s)\n", n.name, n.kind)
	} else {
		fmt.Fprintln(w, n.name)
	}
	for _, child := range sortedIDs(n.children) {
		g.dumpLocked(w, child, depth+1)
	}
}
