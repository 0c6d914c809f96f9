// Package graph derives dependency and call graphs from extracted file
// records. Construction is deterministic: nodes and edges are emitted in
// lexicographic id order, so identical inputs yield byte-identical graphs.
package graph

import (
	"fmt"
	"sort"

	apperrors "github.com/Gourav1632/into-the-repo/internal/errors"
)

// Node is one graph vertex.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Edge is one directed graph edge. The id is "source->target", which makes
// edges self-deduplicating.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a serializable node/edge set with stable ordering.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// builder accumulates a graph while enforcing node id uniqueness. A repeated
// node id means two distinct entities collapsed onto one identity, which
// would silently merge unrelated structure, so it is reported as an
// invariant violation instead.
type builder struct {
	nodes map[string]Node
	edges map[string]Edge
}

func newBuilder() *builder {
	return &builder{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
	}
}

func (b *builder) addNode(id, label string) error {
	if existing, ok := b.nodes[id]; ok {
		return apperrors.New(apperrors.GraphInvariant,
			fmt.Sprintf("duplicate node id %q (labels %q and %q)", id, existing.Label, label))
	}
	b.nodes[id] = Node{ID: id, Label: label}
	return nil
}

func (b *builder) addEdge(source, target string) {
	id := source + "->" + target
	b.edges[id] = Edge{ID: id, Source: source, Target: target}
}

func (b *builder) graph() *Graph {
	g := &Graph{
		Nodes: make([]Node, 0, len(b.nodes)),
		Edges: make([]Edge, 0, len(b.edges)),
	}
	for _, n := range b.nodes {
		g.Nodes = append(g.Nodes, n)
	}
	for _, e := range b.edges {
		g.Edges = append(g.Edges, e)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.Slice(g.Edges, func(i, j int) bool { return g.Edges[i].ID < g.Edges[j].ID })
	return g
}
