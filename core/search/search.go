// Package search implements the interchangeable path-search strategies used
// for dispatch and pooling. Every strategy reads live edge costs from the
// graph and never traverses a blocked road.
package search

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/model"
)

// Kind names a search strategy.
type Kind string

const (
	BFS    Kind = "bfs"
	DFS    Kind = "dfs"
	UCS    Kind = "ucs"
	Greedy Kind = "greedy"
	AStar  Kind = "astar"
)

// Kinds lists every supported strategy.
var Kinds = []Kind{BFS, DFS, UCS, Greedy, AStar}

// ParseKind validates a strategy name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown search strategy %q", s)
}

// Context carries optional information about the trip being planned.
type Context struct {
	Vehicle *model.Vehicle
	Hour    int
}

// Strategy finds a route between two nodes.
type Strategy interface {
	Kind() Kind
	// Search returns (0, [start]) when start equals goal and an unreachable
	// route when no unblocked path exists.
	Search(g *graph.Graph, start, goal string, ctx *Context) model.Route
}

// New returns the strategy of the given kind. h is used by greedy and A*;
// nil selects the simple heuristic.
func New(kind Kind, h Heuristic) (Strategy, error) {
	if h == nil {
		h = Simple{}
	}
	switch kind {
	case BFS:
		return bfs{}, nil
	case DFS:
		return dfs{}, nil
	case UCS:
		return ucs{}, nil
	case Greedy:
		return greedy{h: h}, nil
	case AStar:
		return astar{h: h}, nil
	default:
		return nil, fmt.Errorf("unknown search strategy %q", kind)
	}
}

// trivial handles the shared start/goal conventions.
func trivial(g *graph.Graph, start, goal string) (model.Route, bool) {
	if !g.HasNode(start) || !g.HasNode(goal) {
		return model.Unreachable(), true
	}
	if start == goal {
		return model.Route{Nodes: []string{start}}, true
	}
	return model.Route{}, false
}

func buildPath(parent map[string]string, start, goal string) []string {
	var rev []string
	for n := goal; ; n = parent[n] {
		rev = append(rev, n)
		if n == start {
			break
		}
	}
	path := make([]string, len(rev))
	for i, n := range rev {
		path[len(rev)-1-i] = n
	}
	return path
}

// effective prices a path found by an uninformed or greedy search.
func effective(g *graph.Graph, path []string) model.Route {
	return model.Route{Nodes: path, Cost: g.PathCost(path)}
}
