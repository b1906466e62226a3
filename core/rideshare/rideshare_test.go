package rideshare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/model"
)

// plane has two neighbourhoods five km apart: o1..o3 near the origin and
// d1..d3 around x=5, plus a distant z.
func plane(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, n := range []graph.Node{
		{ID: "o1", X: 0, Y: 0}, {ID: "o2", X: 0.3, Y: 0}, {ID: "o3", X: 0.6, Y: 0},
		{ID: "d1", X: 5, Y: 0}, {ID: "d2", X: 5.2, Y: 0}, {ID: "d3", X: 5.4, Y: 0},
		{ID: "z", X: 0, Y: 9},
	} {
		require.NoError(t, g.AddNode(n))
	}
	return g
}

func req(t *testing.T, id, o, d string, created, pax int) *model.Request {
	t.Helper()
	r, err := model.NewRequest(model.RequestSpec{ID: id, Origin: o, Destination: d, CreatedAt: created, Passengers: pax})
	require.NoError(t, err)
	return r
}

func TestClusterEconomy(t *testing.T) {
	g := plane(t)
	c := New(g, nil, Config{RadiusKm: 1, WindowMinutes: 5, MaxDetourKm: 2}, nil)
	groups := c.Cluster([]*model.Request{
		req(t, "b", "o2", "d2", 1, 1),
		req(t, "a", "o1", "d1", 0, 1),
		req(t, "c", "o3", "d3", 2, 1),
	}, 4)
	require.Len(t, groups, 1)
	grp := groups[0]
	assert.Equal(t, []string{"a", "b", "c"}, []string{grp.Members[0].ID, grp.Members[1].ID, grp.Members[2].ID})
	assert.Equal(t, "o2", grp.Origin)
	assert.Equal(t, "d2", grp.Destination)
	assert.Equal(t, 3, grp.Passengers)
	assert.InDelta(t, 4.9, grp.SharedKm, 1e-9)
	// origins 0.3+0+0.3, destinations 0.2+0+0.2
	assert.InDelta(t, 1.0, grp.DetourKm, 1e-9)
	// individual 5 + 4.9 + 4.8
	assert.InDelta(t, 14.7-4.9, grp.Economy, 1e-9)
}

func TestClusterTemporalWindowStopsScan(t *testing.T) {
	g := plane(t)
	c := New(g, nil, Config{RadiusKm: 1, WindowMinutes: 5, MaxDetourKm: 2}, nil)
	groups := c.Cluster([]*model.Request{
		req(t, "a", "o1", "d1", 0, 1),
		req(t, "b", "o2", "d2", 6, 1),
	}, 4)
	assert.Empty(t, groups)
}

func TestClusterSkipsFarAndOversized(t *testing.T) {
	g := plane(t)
	c := New(g, nil, Config{RadiusKm: 1, WindowMinutes: 5, MaxDetourKm: 2}, nil)
	groups := c.Cluster([]*model.Request{
		req(t, "a", "o1", "d1", 0, 1),
		req(t, "far", "z", "d1", 1, 1),
		req(t, "big", "o2", "d2", 1, 4),
		req(t, "c", "o3", "d3", 2, 1),
	}, 4)
	require.Len(t, groups, 1)
	ids := []string{}
	for _, m := range groups[0].Members {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}

func TestClusterDetourCeiling(t *testing.T) {
	g := plane(t)
	c := New(g, nil, Config{RadiusKm: 1, WindowMinutes: 5, MaxDetourKm: 0.5}, nil)
	groups := c.Cluster([]*model.Request{
		req(t, "a", "o1", "d1", 0, 1),
		req(t, "c", "o3", "d3", 1, 1),
	}, 4)
	// detour 0.6 + 0.4 exceeds 0.5
	assert.Empty(t, groups)
}

func TestClusterUsesInjectedDistance(t *testing.T) {
	g := plane(t)
	calls := 0
	dist := func(a, b string) float64 {
		calls++
		return g.Distance(a, b) * 2
	}
	c := New(g, dist, Config{RadiusKm: 1, WindowMinutes: 5, MaxDetourKm: 5}, nil)
	groups := c.Cluster([]*model.Request{
		req(t, "a", "o1", "d1", 0, 1),
		req(t, "b", "o2", "d2", 0, 1),
	}, 2)
	require.Len(t, groups, 1)
	assert.Positive(t, calls)
	assert.InDelta(t, 2*(5+4.9)-groups[0].SharedKm, groups[0].Economy, 1e-9)
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Error(t, Config{RadiusKm: -1, WindowMinutes: 1}.Validate())
}
