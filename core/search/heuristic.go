package search

import (
	"math"

	"github.com/kilianp07/fleetsim/core/graph"
)

const (
	// DefaultTopSpeed is the optimistic cruising speed in km per minute.
	DefaultTopSpeed = 1.0
	// RushMultiplier is the optimistic congestion assumed in peak hours,
	// below the real evening worst case.
	RushMultiplier = 1.2
)

// Heuristic estimates the remaining cost to a goal. Bind is called once per
// search so graph-wide bounds are computed a single time.
type Heuristic interface {
	Name() string
	Bind(g *graph.Graph, goal string, ctx *Context) func(node string) float64
}

// Simple divides the straight-line distance by an optimistic speed and
// scales it by the lowest live congestion, capped at 1.
type Simple struct {
	TopSpeedKmPerMin float64
}

func (Simple) Name() string { return "simple" }

func (s Simple) Bind(g *graph.Graph, goal string, _ *Context) func(string) float64 {
	return straightLine(g, goal, s.speed(g), math.Min(1, g.MinCongestion()))
}

func (s Simple) speed(g *graph.Graph) float64 {
	top := s.TopSpeedKmPerMin
	if top <= 0 {
		top = DefaultTopSpeed
	}
	return math.Max(top, g.MaxGeometricSpeed())
}

func straightLine(g *graph.Graph, goal string, speed, factor float64) func(string) float64 {
	if speed <= 0 || math.IsInf(speed, 1) {
		return func(string) float64 { return 0 }
	}
	return func(n string) float64 {
		d := g.Distance(n, goal)
		if math.IsInf(d, 1) {
			return 0
		}
		return d / speed * factor
	}
}

// Advanced refines Simple for a known vehicle: during peak windows it
// assumes the rush multiplier when the whole network is at least that
// congested, and it adds the shortest possible refill stop when the vehicle
// cannot cover the straight-line distance to the goal. The refill term uses
// the capability table, not the vehicle's own refill duration.
//
// Route costs only count travel time, so the estimate is capped at the
// straight-line time under the lowest live congestion. The refill term only
// tightens the bound on networks congested above the assumed factor.
type Advanced struct {
	Simple
}

func (Advanced) Name() string { return "advanced" }

func (a Advanced) Bind(g *graph.Graph, goal string, ctx *Context) func(string) float64 {
	if ctx == nil || ctx.Vehicle == nil {
		return a.Simple.Bind(g, goal, ctx)
	}
	minCong := g.MinCongestion()
	factor := math.Min(1, minCong)
	if graph.IsPeakHour(ctx.Hour) && minCong >= RushMultiplier {
		factor = RushMultiplier
	}
	speed := a.speed(g)
	base := straightLine(g, goal, speed, factor)
	bound := straightLine(g, goal, speed, minCong)

	v := ctx.Vehicle
	capab := v.Capability()
	detour := capab.FullRefillMinutes * capab.MinRefillFraction
	rng := v.Range
	return func(n string) float64 {
		h := base(n)
		if d := g.Distance(n, goal); !math.IsInf(d, 1) && rng < d {
			h = math.Min(h+detour, bound(n))
		}
		return h
	}
}

// ParseHeuristic returns the heuristic named s, simple by default.
func ParseHeuristic(s string, topSpeed float64) Heuristic {
	if s == "advanced" {
		return Advanced{Simple{TopSpeedKmPerMin: topSpeed}}
	}
	return Simple{TopSpeedKmPerMin: topSpeed}
}
