package search

import (
	"math"

	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/model"
)

type ucs struct{}

func (ucs) Kind() Kind { return UCS }

func (ucs) Search(g *graph.Graph, start, goal string, _ *Context) model.Route {
	return bestFirst(g, start, goal, func(string) float64 { return 0 })
}

type astar struct{ h Heuristic }

func (astar) Kind() Kind { return AStar }

func (a astar) Search(g *graph.Graph, start, goal string, ctx *Context) model.Route {
	if r, ok := trivial(g, start, goal); ok {
		return r
	}
	return bestFirst(g, start, goal, a.h.Bind(g, goal, ctx))
}

// bestFirst expands nodes by g+h. Stale queue entries are skipped instead of
// keeping a closed set, so a node reached again at a lower cost is reopened.
func bestFirst(g *graph.Graph, start, goal string, h func(string) float64) model.Route {
	if r, ok := trivial(g, start, goal); ok {
		return r
	}
	best := map[string]float64{start: 0}
	parent := map[string]string{}
	var q queue
	q.push(start, h(start), 0)
	for !q.empty() {
		it := q.pop()
		if it.g > best[it.node] {
			continue
		}
		if it.node == goal {
			return model.Route{Nodes: buildPath(parent, start, goal), Cost: it.g}
		}
		for _, e := range g.Neighbors(it.node) {
			c := e.Cost()
			if math.IsInf(c, 1) {
				continue
			}
			ng := it.g + c
			if old, ok := best[e.To]; ok && ng >= old {
				continue
			}
			best[e.To] = ng
			parent[e.To] = it.node
			q.push(e.To, ng+h(e.To), ng)
		}
	}
	return model.Unreachable()
}

type greedy struct{ h Heuristic }

func (greedy) Kind() Kind { return Greedy }

// Search orders the frontier by heuristic only. A node keeps the parent it
// was first reached from.
func (gr greedy) Search(g *graph.Graph, start, goal string, ctx *Context) model.Route {
	if r, ok := trivial(g, start, goal); ok {
		return r
	}
	h := gr.h.Bind(g, goal, ctx)
	parent := map[string]string{}
	reached := map[string]bool{start: true}
	var q queue
	q.push(start, h(start), 0)
	for !q.empty() {
		it := q.pop()
		if it.node == goal {
			return effective(g, buildPath(parent, start, goal))
		}
		for _, e := range g.Neighbors(it.node) {
			if e.Blocked || reached[e.To] {
				continue
			}
			reached[e.To] = true
			parent[e.To] = it.node
			q.push(e.To, h(e.To), 0)
		}
	}
	return model.Unreachable()
}
