package model

import (
	"fmt"
	"sort"
)

type Edge struct {
	From NodeKey
	To   NodeKey
}

// Graph is a set of build nodes and dependency edges. An edge (u,v)
// means u depends on v. All accessors iterate in sorted key order so
// identical graphs always walk identically.
type Graph struct {
	nodes map[NodeKey]struct{}
	edges map[Edge]struct{}
}

func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[NodeKey]struct{}),
		edges: make(map[Edge]struct{}),
	}
}

func (g *Graph) AddNode(key NodeKey) {
	g.nodes[key] = struct{}{}
}

func (g *Graph) AddEdge(from, to NodeKey) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("edge from unknown node %v", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("edge to unknown node %v", to)
	}
	g.edges[Edge{From: from, To: to}] = struct{}{}
	return nil
}

func (g *Graph) HasNode(key NodeKey) bool {
	_, ok := g.nodes[key]
	return ok
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Nodes() []NodeKey {
	nodes := make([]NodeKey, 0, len(g.nodes))
	for key := range g.nodes {
		nodes = append(nodes, key)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Less(nodes[j]) })
	return nodes
}

func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.edges))
	for edge := range g.edges {
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From.Less(edges[j].From)
		}
		return edges[i].To.Less(edges[j].To)
	})
	return edges
}

// DependenciesOf returns the sorted direct dependencies of one node.
func (g *Graph) DependenciesOf(key NodeKey) []NodeKey {
	var deps []NodeKey
	for edge := range g.edges {
		if edge.From == key {
			deps = append(deps, edge.To)
		}
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Less(deps[j]) })
	return deps
}
