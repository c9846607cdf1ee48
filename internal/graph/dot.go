package graph

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// DotOptions controls GraphViz rendering.
type DotOptions struct {
	// FullNames renders full resource paths instead of base names.
	FullNames bool
	// EdgeFilter keeps only edges whose type it accepts; nil keeps all.
	EdgeFilter func(types.EdgeType) bool
}

// WriteDot renders the graph in GraphViz dot form. Resources are ellipses,
// tasks are boxes, explicit edges are solid, implicit edges dashed, edges
// with both origins bold. Cycles render as red clusters so broken rule sets
// are visible at a glance.
func (g *Graph) WriteDot(w io.Writer, opts DotOptions) error {
	var b strings.Builder
	b.WriteString("digraph build {\n")
	b.WriteString("    rankdir=LR;\n")
	b.WriteString("    node [fontname=\"monospace\"];\n")

	inCycle := make(map[Vertex]bool)
	for i, comp := range g.Cycles() {
		fmt.Fprintf(&b, "    subgraph cluster_cycle_%d {\n", i)
		b.WriteString("        color=red;\n")
		b.WriteString("        label=\"cycle\";\n")
		for _, v := range comp {
			inCycle[v] = true
			fmt.Fprintf(&b, "        %s;\n", nodeID(v))
		}
		b.WriteString("    }\n")
	}

	for _, v := range g.order {
		fmt.Fprintf(&b, "    %s [label=%q, shape=%s];\n",
			nodeID(v), g.label(v, opts.FullNames), nodeShape(v))
	}

	for _, e := range g.Edges(opts.EdgeFilter) {
		fmt.Fprintf(&b, "    %s -> %s [style=%s];\n",
			nodeID(e.From), nodeID(e.To), edgeStyle(e.Type))
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func nodeID(v Vertex) string {
	if v.Kind == KindTask {
		return fmt.Sprintf("t%d", v.ID)
	}
	return fmt.Sprintf("r%d", v.ID)
}

func nodeShape(v Vertex) string {
	if v.Kind == KindTask {
		return "box"
	}
	return "ellipse"
}

func (g *Graph) label(v Vertex, full bool) string {
	name := g.names[v]
	if v.Kind == KindResource && !full && name != "" {
		return filepath.Base(name)
	}
	return name
}

func edgeStyle(typ types.EdgeType) string {
	switch typ {
	case types.EdgeImplicit:
		return "dashed"
	case types.EdgeBoth:
		return "bold"
	default:
		return "solid"
	}
}
