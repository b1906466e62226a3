package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cityGraph(t *testing.T) *Graph {
	t.Helper()
	g := New()
	require.NoError(t, g.AddNode(Node{ID: "Centro", X: 0, Y: 0, Zone: Central}))
	require.NoError(t, g.AddNode(Node{ID: "Shopping", X: 0.9, Y: 0, Zone: Commercial}))
	require.NoError(t, g.AddNode(Node{ID: "Bairro", X: 0, Y: 2}))
	require.NoError(t, g.AddNode(Node{ID: "EV1", X: 1, Y: 1, Kind: ChargeStation}))
	require.NoError(t, g.AddEdge("Centro", "Shopping", 0.9, 2.0))
	require.NoError(t, g.AddEdge("Centro", "Bairro", 2, 5))
	require.NoError(t, g.AddEdge("Shopping", "EV1", 1.1, 3))
	return g
}

func TestAddEdgeSymmetric(t *testing.T) {
	g := cityGraph(t)
	for _, n := range g.Nodes() {
		for _, e := range g.Neighbors(n.ID) {
			back, err := g.Edge(e.To, e.From)
			require.NoError(t, err)
			assert.Equal(t, e.DistanceKm, back.DistanceKm)
			assert.Equal(t, e.TimeMin, back.TimeMin)
		}
	}
	assert.Equal(t, 6, g.EdgeCount())

	require.NoError(t, g.AddEdge("Shopping", "Centro", 1.0, 2.5))
	ab, _ := g.Edge("Centro", "Shopping")
	ba, _ := g.Edge("Shopping", "Centro")
	assert.Equal(t, 1.0, ab.DistanceKm)
	assert.Equal(t, ab.DistanceKm, ba.DistanceKm)
	assert.Equal(t, 6, g.EdgeCount())
}

func TestAddEdgeRejectsUnknown(t *testing.T) {
	g := cityGraph(t)
	err := g.AddEdge("Centro", "Nowhere", 1, 1)
	assert.ErrorIs(t, err, ErrUnknownNode)
	assert.Error(t, g.AddEdge("Centro", "Centro", 1, 1))
	assert.Error(t, g.AddNode(Node{ID: "Centro"}))
}

func TestEdgeNotFound(t *testing.T) {
	g := cityGraph(t)
	_, err := g.Edge("Bairro", "Shopping")
	assert.ErrorIs(t, err, ErrEdgeNotFound)
}

func TestBlockageIsSymmetric(t *testing.T) {
	g := cityGraph(t)
	require.NoError(t, g.SimulateBlockage("Shopping", "Centro", true))
	ab, _ := g.Edge("Centro", "Shopping")
	ba, _ := g.Edge("Shopping", "Centro")
	assert.True(t, ab.Blocked)
	assert.True(t, ba.Blocked)
	assert.True(t, math.IsInf(ab.Cost(), 1))

	require.NoError(t, g.SimulateBlockage("Centro", "Shopping", false))
	ab, _ = g.Edge("Centro", "Shopping")
	assert.Equal(t, 2.0, ab.Cost())
	assert.ErrorIs(t, g.SimulateBlockage("Bairro", "EV1", true), ErrEdgeNotFound)
}

func TestStationsAvailability(t *testing.T) {
	g := cityGraph(t)
	st := g.Stations(ChargeStation)
	require.Len(t, st, 1)
	assert.True(t, st[0].Available)

	assert.True(t, g.SetAvailable("EV1", false))
	n, _ := g.Node("EV1")
	assert.False(t, n.Available)
	assert.False(t, g.SetAvailable("Centro", false))
	assert.False(t, g.SetAvailable("missing", false))
}

func TestPathDistance(t *testing.T) {
	g := cityGraph(t)
	d, err := g.PathDistance([]string{"Bairro", "Centro", "Shopping"})
	require.NoError(t, err)
	assert.InDelta(t, 2.9, d, 1e-9)
	_, err = g.PathDistance([]string{"Bairro", "Shopping"})
	assert.ErrorIs(t, err, ErrEdgeNotFound)
	assert.InDelta(t, 7.0, g.PathCost([]string{"Bairro", "Centro", "Shopping"}), 1e-9)
}

func TestMaxGeometricSpeed(t *testing.T) {
	g := cityGraph(t)
	// Centro-Shopping: 0.9 km straight in 2 min is the fastest edge.
	assert.InDelta(t, 0.45, g.MaxGeometricSpeed(), 1e-9)
	assert.Equal(t, 1.0, g.MinCongestion())
}
