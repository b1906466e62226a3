package model

import (
	"fmt"
	"math"
)

// Route is an ordered node sequence with its total cost in minutes.
type Route struct {
	Nodes []string
	Cost  float64
}

// Unreachable is the result of a search that found no path.
func Unreachable() Route { return Route{Cost: math.Inf(1)} }

// Reachable reports whether the route leads somewhere.
func (r Route) Reachable() bool {
	return len(r.Nodes) > 0 && !math.IsInf(r.Cost, 1)
}

// Start returns the first node, empty for an unreachable route.
func (r Route) Start() string {
	if len(r.Nodes) == 0 {
		return ""
	}
	return r.Nodes[0]
}

// End returns the last node, empty for an unreachable route.
func (r Route) End() string {
	if len(r.Nodes) == 0 {
		return ""
	}
	return r.Nodes[len(r.Nodes)-1]
}

// Concat joins legs end to start, collapsing the duplicated junction node.
// Costs are summed. Any unreachable leg makes the result unreachable.
func Concat(legs ...Route) (Route, error) {
	var out Route
	for i, leg := range legs {
		if !leg.Reachable() {
			return Unreachable(), fmt.Errorf("leg %d: %w", i, ErrUnreachableGoal)
		}
		if len(out.Nodes) > 0 && out.End() != leg.Start() {
			return Unreachable(), fmt.Errorf("leg %d starts at %s, previous leg ends at %s", i, leg.Start(), out.End())
		}
		for _, n := range leg.Nodes {
			if len(out.Nodes) > 0 && out.Nodes[len(out.Nodes)-1] == n {
				continue
			}
			out.Nodes = append(out.Nodes, n)
		}
		out.Cost += leg.Cost
	}
	return out, nil
}

// LegOffsets returns the index in the concatenated route where each leg ends.
func LegOffsets(legs ...Route) []int {
	offsets := make([]int, len(legs))
	idx := 0
	for i, leg := range legs {
		if len(leg.Nodes) > 0 {
			idx += len(leg.Nodes) - 1
		}
		offsets[i] = idx
	}
	return offsets
}
