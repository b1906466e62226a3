package search

import (
	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/model"
)

type bfs struct{}

func (bfs) Kind() Kind { return BFS }

func (bfs) Search(g *graph.Graph, start, goal string, _ *Context) model.Route {
	if r, ok := trivial(g, start, goal); ok {
		return r
	}
	parent := map[string]string{}
	seen := map[string]bool{start: true}
	q := []string{start}
	for len(q) > 0 {
		n := q[0]
		q = q[1:]
		for _, e := range g.Neighbors(n) {
			if e.Blocked || seen[e.To] {
				continue
			}
			seen[e.To] = true
			parent[e.To] = n
			if e.To == goal {
				return effective(g, buildPath(parent, start, goal))
			}
			q = append(q, e.To)
		}
	}
	return model.Unreachable()
}

type dfs struct{}

func (dfs) Kind() Kind { return DFS }

func (dfs) Search(g *graph.Graph, start, goal string, _ *Context) model.Route {
	if r, ok := trivial(g, start, goal); ok {
		return r
	}
	type frame struct{ node, from string }
	parent := map[string]string{}
	visited := map[string]bool{}
	stack := []frame{{node: start}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.node] {
			continue
		}
		visited[f.node] = true
		if f.node != start {
			parent[f.node] = f.from
		}
		if f.node == goal {
			return effective(g, buildPath(parent, start, goal))
		}
		edges := g.Neighbors(f.node)
		// reverse so the first neighbour is explored first
		for i := len(edges) - 1; i >= 0; i-- {
			e := edges[i]
			if e.Blocked || visited[e.To] {
				continue
			}
			stack = append(stack, frame{node: e.To, from: f.node})
		}
	}
	return model.Unreachable()
}
