package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/search"
)

// lineGraph is A-B-C-D along the x axis, with charge stations S1 (above B)
// and S2 (below C) and a fuel station F1 above A.
func lineGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, n := range []graph.Node{
		{ID: "A", X: 0, Y: 0},
		{ID: "B", X: 1, Y: 0},
		{ID: "C", X: 2, Y: 0},
		{ID: "D", X: 3, Y: 0},
		{ID: "S1", X: 1, Y: 1, Kind: graph.ChargeStation},
		{ID: "S2", X: 2, Y: -1.2, Kind: graph.ChargeStation},
		{ID: "F1", X: 0, Y: 1, Kind: graph.FuelStation},
	} {
		require.NoError(t, g.AddNode(n))
	}
	for _, e := range []struct {
		a, b    string
		km, min float64
	}{
		{"A", "B", 1, 2}, {"B", "C", 1, 2}, {"C", "D", 1, 2},
		{"B", "S1", 1, 2}, {"S1", "C", 1.5, 3}, {"C", "S2", 1.2, 3}, {"A", "F1", 1, 2},
	} {
		require.NoError(t, g.AddEdge(e.a, e.b, e.km, e.min))
	}
	return g
}

func newEngine(t *testing.T, g *graph.Graph, cfg Config) *Engine {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })
	s, err := search.New(search.UCS, nil)
	require.NoError(t, err)
	e, err := New(g, s, cfg, nil)
	require.NoError(t, err)
	return e
}

func ev(id, node string, rng float64) *model.Vehicle {
	v := model.NewElectric(id, node, 100, 4, 0.1, model.ElectricSpec{BatteryKWh: 40, ConsumptionKWhPerKm: 0.15})
	v.Range = rng
	return v
}

func ice(id, node string) *model.Vehicle {
	return model.NewCombustion(id, node, 400, 4, 0.2, model.CombustionSpec{CO2KgPerKm: 0.15})
}

func request(t *testing.T, id, from, to string, spec model.RequestSpec) *model.Request {
	t.Helper()
	spec.ID, spec.Origin, spec.Destination = id, from, to
	if spec.Passengers == 0 {
		spec.Passengers = 1
	}
	r, err := model.NewRequest(spec)
	require.NoError(t, err)
	return r
}

func TestDispatchNearest(t *testing.T) {
	e := newEngine(t, lineGraph(t), Config{})
	v1, v2 := ev("ev1", "A", 100), ev("ev2", "D", 100)
	req := request(t, "r1", "B", "D", model.RequestSpec{})

	a, err := e.Dispatch(req, []*model.Vehicle{v2, v1}, 5, 12)
	require.NoError(t, err)
	assert.Equal(t, "ev1", a.Vehicle.ID)
	assert.Equal(t, model.Assigned, req.State)
	assert.Equal(t, "ev1", req.VehicleID)
	assert.Equal(t, 5, req.AssignedAt)
	assert.Equal(t, model.EnRoute, v1.State)
	assert.Equal(t, []string{"A", "B", "C", "D"}, v1.Route)
	assert.Equal(t, []model.Stop{
		{Kind: model.StopPickup, Node: "B", Index: 1},
		{Kind: model.StopDropoff, Node: "D", Index: 3},
	}, v1.Stops)
	assert.False(t, a.Detour())
	assert.Equal(t, 1.0, testutil.ToFloat64(assignmentsTotal.WithLabelValues(StrategyNearest)))

	// ev1 is busy now
	req2 := request(t, "r2", "C", "A", model.RequestSpec{})
	a, err = e.Dispatch(req2, []*model.Vehicle{v1, v2}, 6, 12)
	require.NoError(t, err)
	assert.Equal(t, "ev2", a.Vehicle.ID)
}

func TestDispatchPreference(t *testing.T) {
	e := newEngine(t, lineGraph(t), Config{})
	near, far := ice("ice1", "B"), ev("ev1", "D", 100)
	req := request(t, "r1", "B", "C", model.RequestSpec{Preference: "electric"})
	a, err := e.Dispatch(req, []*model.Vehicle{near, far}, 0, 12)
	require.NoError(t, err)
	assert.Equal(t, "ev1", a.Vehicle.ID)

	// no combustion vehicle is idle, so the preference is ignored
	req2 := request(t, "r2", "B", "C", model.RequestSpec{Preference: "combustion"})
	far2 := ev("ev2", "D", 100)
	near.State = model.Unavailable
	a, err = e.Dispatch(req2, []*model.Vehicle{near, far2}, 0, 12)
	require.NoError(t, err)
	assert.Equal(t, "ev2", a.Vehicle.ID)
}

func TestDispatchCapacity(t *testing.T) {
	e := newEngine(t, lineGraph(t), Config{})
	small := ev("ev1", "B", 100)
	small.Capacity = 2
	req := request(t, "r1", "B", "C", model.RequestSpec{Passengers: 3})
	_, err := e.Dispatch(req, []*model.Vehicle{small}, 0, 12)
	assert.ErrorIs(t, err, model.ErrNoVehicleAvailable)
	assert.Equal(t, model.Pending, req.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(rejectionsTotal.WithLabelValues(ReasonNoCandidate)))
}

func TestDispatchRechargeDetour(t *testing.T) {
	e := newEngine(t, lineGraph(t), Config{})
	v := ev("ev1", "A", 2.5)
	req := request(t, "r1", "B", "D", model.RequestSpec{})
	a, err := e.Dispatch(req, []*model.Vehicle{v}, 0, 12)
	require.NoError(t, err)
	require.True(t, a.Detour())
	assert.Equal(t, "S1", a.Plan.Station)
	assert.Equal(t, []string{"A", "B", "S1", "B", "C", "D"}, v.Route)
	assert.Equal(t, []model.Stop{
		{Kind: model.StopStation, Node: "S1", Index: 2},
		{Kind: model.StopPickup, Node: "B", Index: 3},
		{Kind: model.StopDropoff, Node: "D", Index: 5},
	}, v.Stops)
	assert.Equal(t, 1.0, testutil.ToFloat64(detoursTotal))
}

func TestDispatchStationFailureFallback(t *testing.T) {
	g := lineGraph(t)
	e := newEngine(t, g, Config{})

	v := ev("ev1", "C", 1.6)
	req := request(t, "r1", "B", "A", model.RequestSpec{})
	a, err := e.Dispatch(req, []*model.Vehicle{v}, 0, 12)
	require.NoError(t, err)
	assert.Equal(t, "S1", a.Plan.Station)

	require.True(t, g.SetAvailable("S1", false))
	v2 := ev("ev2", "C", 1.6)
	req2 := request(t, "r2", "B", "A", model.RequestSpec{})
	a, err = e.Dispatch(req2, []*model.Vehicle{v2}, 0, 12)
	require.NoError(t, err)
	assert.Equal(t, "S2", a.Plan.Station)

	require.True(t, g.SetAvailable("S2", false))
	v3 := ev("ev3", "C", 1.6)
	req3 := request(t, "r3", "B", "A", model.RequestSpec{})
	_, err = e.Dispatch(req3, []*model.Vehicle{v3}, 0, 12)
	assert.ErrorIs(t, err, model.ErrNoVehicleAvailable)
	assert.ErrorIs(t, err, model.ErrInsufficientRange)
	assert.Equal(t, model.Available, v3.State)
	assert.Equal(t, 1.0, testutil.ToFloat64(rejectionsTotal.WithLabelValues(ReasonInsufficientRange)))
}

func TestDispatchDropsInfeasibleAndReselects(t *testing.T) {
	g := lineGraph(t)
	require.True(t, g.SetAvailable("S2", false))
	e := newEngine(t, g, Config{})
	// ev1 is nearest but cannot reach any station; ev2 sits on S1.
	closeButEmpty := ev("ev1", "B", 0.5)
	atStation := ev("ev2", "S1", 0.5)
	req := request(t, "r1", "B", "C", model.RequestSpec{})
	a, err := e.Dispatch(req, []*model.Vehicle{closeButEmpty, atStation}, 0, 12)
	require.NoError(t, err)
	assert.Equal(t, "ev2", a.Vehicle.ID)
	assert.Equal(t, "S1", a.Plan.Station)
	assert.Equal(t, []string{"S1", "B", "C"}, atStation.Route)
	assert.Equal(t, 0, atStation.Stops[0].Index)
	assert.Equal(t, model.Available, closeButEmpty.State)
}

func TestDispatchUnreachable(t *testing.T) {
	g := lineGraph(t)
	require.NoError(t, g.SimulateBlockage("A", "B", true))
	e := newEngine(t, g, Config{})
	req := request(t, "r1", "A", "C", model.RequestSpec{})
	_, err := e.Dispatch(req, []*model.Vehicle{ev("ev1", "D", 100)}, 0, 12)
	assert.ErrorIs(t, err, model.ErrNoVehicleAvailable)
	assert.ErrorIs(t, err, model.ErrUnreachableGoal)
}

func TestPlanRecharge(t *testing.T) {
	g := lineGraph(t)
	e := newEngine(t, g, Config{})
	v := ev("ev1", "C", 10)
	p, err := e.PlanRecharge(v, 12)
	require.NoError(t, err)
	assert.Equal(t, "S1", p.Station) // 3 minutes, S2 ties and loses on id order

	require.True(t, g.SetAvailable("S1", false))
	p, err = e.PlanRecharge(v, 12)
	require.NoError(t, err)
	assert.Equal(t, "S2", p.Station)
	assert.Equal(t, []model.Stop{{Kind: model.StopStation, Node: "S2", Index: 1}}, p.Stops)

	f := ice("ice1", "D")
	p, err = e.PlanRecharge(f, 12)
	require.NoError(t, err)
	assert.Equal(t, "F1", p.Station)

	require.True(t, g.SetAvailable("S2", false))
	_, err = e.PlanRecharge(v, 12)
	assert.ErrorIs(t, err, model.ErrStationUnavailable)
}

func TestReroute(t *testing.T) {
	g := lineGraph(t)
	e := newEngine(t, g, Config{})
	v := ev("ev1", "S1", 3)
	v.State = model.EnRoute
	v.Assign([]string{"S1", "B", "A"}, []model.Stop{
		{Kind: model.StopStation, Node: "S1", Index: 0},
		{Kind: model.StopPickup, Node: "B", Index: 1},
		{Kind: model.StopDropoff, Node: "A", Index: 2},
	}, "r1")
	require.True(t, g.SetAvailable("S1", false))

	p, err := e.Reroute(v, 12)
	require.NoError(t, err)
	assert.Equal(t, "S2", p.Station)
	assert.Equal(t, []string{"S1", "C", "S2", "C", "B", "A"}, p.Route.Nodes)
	assert.Equal(t, 4, p.Stops[1].Index)

	require.True(t, g.SetAvailable("S2", false))
	v.Range = 50
	p, err = e.Reroute(v, 12)
	require.NoError(t, err)
	assert.Empty(t, p.Station)
	assert.Equal(t, []string{"S1", "B", "A"}, p.Route.Nodes)
	assert.Equal(t, []model.Stop{
		{Kind: model.StopPickup, Node: "B", Index: 1},
		{Kind: model.StopDropoff, Node: "A", Index: 2},
	}, p.Stops)

	v.Range = 1
	_, err = e.Reroute(v, 12)
	assert.ErrorIs(t, err, model.ErrStationUnavailable)

	for outcome, want := range map[string]float64{RerouteStation: 1, RerouteDirect: 1, RerouteFailed: 1} {
		assert.Equal(t, want, testutil.ToFloat64(reroutesTotal.WithLabelValues(outcome)), outcome)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	g := lineGraph(t)
	s, _ := search.New(search.BFS, nil)
	_, err := New(g, s, Config{Strategy: "random"}, nil)
	assert.Error(t, err)
	_, err = New(g, s, Config{Strategy: StrategyElectricPriority, Inner: StrategyElectricPriority}, nil)
	assert.Error(t, err)
	_, err = New(g, s, Config{Weights: model.CostWeights{Time: 0.9}}, nil)
	assert.Error(t, err)
	_, err = New(nil, s, Config{}, nil)
	assert.Error(t, err)
}

func TestReplanAfterBlockage(t *testing.T) {
	g := lineGraph(t)
	e := newEngine(t, g, Config{})
	v := ev("ev1", "A", 50)
	v.State = model.EnRoute
	v.Assign([]string{"A", "B", "C", "D"}, []model.Stop{
		{Kind: model.StopPickup, Node: "A", Index: 0},
		{Kind: model.StopDropoff, Node: "D", Index: 3},
	}, "r1")
	v.PopStop()
	require.NoError(t, g.SimulateBlockage("B", "C", true))

	p, err := e.Replan(v, 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "S1", "C", "D"}, p.Route.Nodes)
	assert.Equal(t, []model.Stop{{Kind: model.StopDropoff, Node: "D", Index: 4}}, p.Stops)
	assert.Empty(t, p.Station)

	v.Range = 2
	_, err = e.Replan(v, 12)
	assert.ErrorIs(t, err, model.ErrInsufficientRange)

	v.Stops = nil
	_, err = e.Replan(v, 12)
	assert.ErrorIs(t, err, model.ErrUnreachableGoal)
}

func TestReplanCreditsPlannedRefill(t *testing.T) {
	g := lineGraph(t)
	e := newEngine(t, g, Config{})
	v := ev("ev1", "B", 2.6)
	v.State = model.EnRoute
	v.Assign([]string{"B", "S1", "C", "D"}, []model.Stop{
		{Kind: model.StopStation, Node: "S1", Index: 1},
		{Kind: model.StopPickup, Node: "C", Index: 2},
		{Kind: model.StopDropoff, Node: "D", Index: 3},
	}, "r1")
	require.NoError(t, g.SimulateBlockage("B", "S1", true))

	p, err := e.Replan(v, 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "S1", "C", "D"}, p.Route.Nodes)
	assert.Equal(t, []model.Stop{
		{Kind: model.StopStation, Node: "S1", Index: 2},
		{Kind: model.StopPickup, Node: "C", Index: 3},
		{Kind: model.StopDropoff, Node: "D", Index: 4},
	}, p.Stops)
	assert.Equal(t, "S1", p.Station)
	assert.InDelta(t, 5.0, p.Km, 1e-9)

	// the stretch to the station still has to fit
	v.Range = 2.4
	_, err = e.Replan(v, 12)
	assert.ErrorIs(t, err, model.ErrInsufficientRange)
}
