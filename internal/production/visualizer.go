package production

import (
	"bytes"
	"fmt"

	"github.com/comalice/actuatorx"
)

// ExportDOT generates Graphviz DOT source for a lifecycle machine, filling
// the active state.
func ExportDOT(m *actuatorx.Machine) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph Lifecycle {
  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)

	current := m.Current()
	for _, s := range m.States() {
		attrs := ""
		if s.Final {
			attrs = ", peripheries=2"
		}
		if s.ID == current {
			attrs += `, style="rounded,filled", fillcolor=lightblue`
		}
		fmt.Fprintf(&buf, "  %q [label=%q%s];\n", s.ID.String(), s.ID.String(), attrs)
	}

	for _, s := range m.States() {
		for _, t := range s.Transitions {
			if t == nil || t.Target == nil {
				continue
			}
			fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", s.ID.String(), t.Target.ID.String(), t.Event.String())
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}
