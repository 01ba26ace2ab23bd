package fsm

import (
	"bufio"
	"fmt"
	"io"
)

// ExportDOT writes the transition table as a Graphviz digraph. States and
// edges appear in declaration order so the output is stable across runs.
// The initial state is drawn as a double circle.
func (m *Machine[P]) ExportDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "digraph %q {\n", m.name)
	fmt.Fprintln(bw, "\trankdir=LR;")
	for _, id := range m.stateOrder {
		if id == m.initial {
			fmt.Fprintf(bw, "\t%q [shape=doublecircle];\n", m.states[id])
			continue
		}
		fmt.Fprintf(bw, "\t%q;\n", m.states[id])
	}
	for _, rec := range m.Table() {
		fmt.Fprintf(bw, "\t%q -> %q [label=%q];\n", rec.From, rec.To, rec.Input)
	}
	fmt.Fprintln(bw, "}")

	return bw.Flush()
}
