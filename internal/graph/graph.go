// Package graph provides an in-memory view of the bipartite dependency graph
// stored in the state file. A Graph is an immutable snapshot: build it inside
// one read transaction, then share it freely between workers.
package graph

import (
	"fmt"

	"github.com/jasonwhite/brilliant-build/internal/state"
	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// Kind is the color of a vertex.
type Kind int

const (
	KindResource Kind = iota
	KindTask
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if k == KindTask {
		return "task"
	}
	return "resource"
}

// Vertex identifies one graph vertex by color and store id.
type Vertex struct {
	Kind Kind
	ID   int64
}

// ResourceVertex wraps a resource id as a Vertex.
func ResourceVertex(id int64) Vertex { return Vertex{Kind: KindResource, ID: id} }

// TaskVertex wraps a task id as a Vertex.
func TaskVertex(id int64) Vertex { return Vertex{Kind: KindTask, ID: id} }

// Edge is a directed, typed edge between vertices of different colors.
type Edge struct {
	From Vertex
	To   Vertex
	Type types.EdgeType
}

// Graph is the bipartite snapshot. Vertices keep the insertion order they
// were added in; traversal and rendering inherit that order.
type Graph struct {
	order []Vertex
	names map[Vertex]string
	out   map[Vertex][]Edge
	in    map[Vertex][]Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		names: make(map[Vertex]string),
		out:   make(map[Vertex][]Edge),
		in:    make(map[Vertex][]Edge),
	}
}

// Build streams all vertices and edges out of one read transaction. The
// description resource does not participate in the graph.
func Build(tx *state.Tx) (*Graph, error) {
	g := New()

	resources, err := tx.Resources()
	if err != nil {
		return nil, err
	}
	for _, r := range resources {
		g.Add(ResourceVertex(r.ID), r.Path)
	}

	tasks, err := tx.Tasks()
	if err != nil {
		return nil, err
	}
	for _, task := range tasks {
		g.Add(TaskVertex(task.ID), task.DisplayName())
	}

	redges, err := tx.ResourceEdges()
	if err != nil {
		return nil, err
	}
	for _, e := range redges {
		if err := g.Connect(ResourceVertex(e.From), TaskVertex(e.To), e.Type); err != nil {
			return nil, err
		}
	}

	tedges, err := tx.TaskEdges()
	if err != nil {
		return nil, err
	}
	for _, e := range tedges {
		if err := g.Connect(TaskVertex(e.From), ResourceVertex(e.To), e.Type); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Add inserts a vertex with a human-readable name. Adding a vertex twice
// keeps the first position and updates the name.
func (g *Graph) Add(v Vertex, name string) {
	if _, ok := g.names[v]; !ok {
		g.order = append(g.order, v)
	}
	g.names[v] = name
}

// Has reports whether the vertex is in the graph.
func (g *Graph) Has(v Vertex) bool {
	_, ok := g.names[v]
	return ok
}

// Name returns the human-readable name recorded for the vertex.
func (g *Graph) Name(v Vertex) string { return g.names[v] }

// Connect adds a typed edge. Both endpoints must already be in the graph and
// must differ in color.
func (g *Graph) Connect(from, to Vertex, typ types.EdgeType) error {
	if !g.Has(from) || !g.Has(to) {
		return types.ErrInvalidEdge
	}
	if from.Kind == to.Kind {
		return fmt.Errorf("edge %v->%v breaks bipartiteness: %w", from, to, types.ErrInvalidEdge)
	}
	e := Edge{From: from, To: to, Type: typ}
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
	return nil
}

// Len returns the number of vertices.
func (g *Graph) Len() int { return len(g.order) }

// Vertices returns all vertices of one color in insertion order.
func (g *Graph) Vertices(kind Kind) []Vertex {
	var out []Vertex
	for _, v := range g.order {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

// Edges returns every edge, grouped by source vertex in insertion order.
// A nil filter keeps all edge types.
func (g *Graph) Edges(filter func(types.EdgeType) bool) []Edge {
	var out []Edge
	for _, v := range g.order {
		for _, e := range g.out[v] {
			if filter == nil || filter(e.Type) {
				out = append(out, e)
			}
		}
	}
	return out
}

// Outgoing returns the edges leaving v.
func (g *Graph) Outgoing(v Vertex) []Edge { return g.out[v] }

// Incoming returns the edges entering v.
func (g *Graph) Incoming(v Vertex) []Edge { return g.in[v] }

// Subgraph returns the induced graph reachable from the roots following
// forward edges. Unknown roots are ignored; an empty root set produces an
// empty graph.
func (g *Graph) Subgraph(roots []Vertex) *Graph {
	reached := make(map[Vertex]bool)
	var frontier []Vertex
	for _, r := range roots {
		if g.Has(r) && !reached[r] {
			reached[r] = true
			frontier = append(frontier, r)
		}
	}
	for len(frontier) > 0 {
		v := frontier[0]
		frontier = frontier[1:]
		for _, e := range g.out[v] {
			if !reached[e.To] {
				reached[e.To] = true
				frontier = append(frontier, e.To)
			}
		}
	}

	sub := New()
	for _, v := range g.order {
		if reached[v] {
			sub.Add(v, g.names[v])
		}
	}
	for _, v := range sub.order {
		for _, e := range g.out[v] {
			if reached[e.To] {
				// Both endpoints are present, Connect cannot fail.
				_ = sub.Connect(e.From, e.To, e.Type)
			}
		}
	}
	return sub
}
