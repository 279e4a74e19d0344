package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

func node(service model.ServiceID, version model.Version) model.NodeKey {
	return model.NodeKey{Service: service, Version: version}
}

func buildGraph(t *testing.T, nodes []model.NodeKey, edges [][2]model.NodeKey) *model.Graph {
	t.Helper()
	g := model.NewGraph()
	for _, n := range nodes {
		g.AddNode(n)
	}
	for _, edge := range edges {
		require.NoError(t, g.AddEdge(edge[0], edge[1]))
	}
	return g
}

func TestSort_DependenciesPrecedeDependents(t *testing.T) {
	api, lib, base := node("api", "v1"), node("lib", "v1"), node("base", "v1")
	g := buildGraph(t,
		[]model.NodeKey{api, lib, base},
		[][2]model.NodeKey{{api, lib}, {api, base}, {lib, base}},
	)

	order, err := Sort(g)
	require.NoError(t, err)
	require.Len(t, order, 3)

	position := make(map[model.NodeKey]int)
	for i, n := range order {
		position[n] = i
	}
	for _, edge := range g.Edges() {
		assert.Less(t, position[edge.To], position[edge.From],
			"%v must be built before %v", edge.To, edge.From)
	}
}

func TestSort_Deterministic(t *testing.T) {
	a, b, c, d := node("a", "v1"), node("b", "v1"), node("c", "v1"), node("d", "v1")
	g := buildGraph(t,
		[]model.NodeKey{d, c, b, a},
		[][2]model.NodeKey{{a, b}, {a, c}, {b, d}, {c, d}},
	)

	first, err := Sort(g)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Sort(g)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSort_TwoNodeCycle(t *testing.T) {
	a, b := node("a", "v1"), node("b", "v1")
	g := buildGraph(t,
		[]model.NodeKey{a, b},
		[][2]model.NodeKey{{a, b}, {b, a}},
	)

	order, err := Sort(g)
	require.Error(t, err)
	assert.Nil(t, order)

	var cycle *model.CycleError
	require.ErrorAs(t, err, &cycle)
	require.Len(t, cycle.Cycles, 1)
	assert.Equal(t, []model.NodeKey{a, b, a}, cycle.Cycles[0])
	assert.Contains(t, err.Error(), "a:v1 -> b:v1 -> a:v1")
}

func TestSort_AllCyclesReported(t *testing.T) {
	a, b, c, d := node("a", "v1"), node("b", "v1"), node("c", "v1"), node("d", "v1")
	g := buildGraph(t,
		[]model.NodeKey{a, b, c, d},
		[][2]model.NodeKey{{a, b}, {b, a}, {c, d}, {d, c}},
	)

	_, err := Sort(g)
	require.Error(t, err)
	var cycle *model.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Len(t, cycle.Cycles, 2)
}

func TestSort_SelfCycle(t *testing.T) {
	a := node("a", "v1")
	g := buildGraph(t, []model.NodeKey{a}, [][2]model.NodeKey{{a, a}})

	_, err := Sort(g)
	require.Error(t, err)
	var cycle *model.CycleError
	require.ErrorAs(t, err, &cycle)
	require.Len(t, cycle.Cycles, 1)
	assert.Equal(t, []model.NodeKey{a, a}, cycle.Cycles[0])
}

func TestSort_EmptyGraph(t *testing.T) {
	order, err := Sort(model.NewGraph())
	require.NoError(t, err)
	assert.Empty(t, order)
}
