package graph

// Cycles returns the non-trivial strongly connected components of the graph,
// found with Tarjan's algorithm. A well-formed build has none, but erroneous
// rules can produce them; they are reported as values, not panics, so the
// caller can list every involved vertex. Components come out in the order
// Tarjan completes them; vertices within a component keep stack order.
func (g *Graph) Cycles() [][]Vertex {
	t := &tarjan{
		g:       g,
		index:   make(map[Vertex]int),
		lowlink: make(map[Vertex]int),
		onStack: make(map[Vertex]bool),
	}
	for _, v := range g.order {
		if _, seen := t.index[v]; !seen {
			t.strongConnect(v)
		}
	}
	return t.components
}

type tarjan struct {
	g          *Graph
	counter    int
	index      map[Vertex]int
	lowlink    map[Vertex]int
	onStack    map[Vertex]bool
	stack      []Vertex
	components [][]Vertex
}

func (t *tarjan) strongConnect(v Vertex) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, e := range t.g.out[v] {
		w := e.To
		if _, seen := t.index[w]; !seen {
			t.strongConnect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] == t.index[v] {
		var comp []Vertex
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		// A bipartite graph has no self-loops, so any cycle has at least
		// two vertices.
		if len(comp) > 1 {
			t.components = append(t.components, comp)
		}
	}
}
