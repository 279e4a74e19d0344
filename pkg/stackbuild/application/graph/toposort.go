package graph

import (
	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

type color int

const (
	white color = iota
	gray
	black
)

// Sort linearizes the graph so that every dependency precedes its
// dependents. Three-color DFS restarted from every unvisited node in
// sorted order, so identical graphs always produce identical orders
// and every cycle is discovered in one pass. On any cycle, no order is
// returned and the error lists them all.
func Sort(g *model.Graph) ([]model.NodeKey, error) {
	colors := make(map[model.NodeKey]color, g.Len())
	order := make([]model.NodeKey, 0, g.Len())
	var cycles [][]model.NodeKey
	var path []model.NodeKey

	var visit func(node model.NodeKey)
	visit = func(node model.NodeKey) {
		colors[node] = gray
		path = append(path, node)
		for _, dependency := range g.DependenciesOf(node) {
			switch colors[dependency] {
			case white:
				visit(dependency)
			case gray:
				cycles = append(cycles, closeCycle(path, dependency))
			}
		}
		path = path[:len(path)-1]
		colors[node] = black
		order = append(order, node)
	}

	for _, node := range g.Nodes() {
		if colors[node] == white {
			visit(node)
		}
	}
	if len(cycles) > 0 {
		return nil, &model.CycleError{Cycles: cycles}
	}
	return order, nil
}

// closeCycle cuts the DFS path at the gray node's first occurrence and
// repeats that node to close the loop.
func closeCycle(path []model.NodeKey, node model.NodeKey) []model.NodeKey {
	for i, key := range path {
		if key == node {
			cycle := make([]model.NodeKey, 0, len(path)-i+1)
			cycle = append(cycle, path[i:]...)
			return append(cycle, node)
		}
	}
	return []model.NodeKey{node, node}
}
