// Package graph holds the road network used by the dispatch simulator: typed
// locations, symmetric weighted edges and the live traffic state (congestion
// multipliers, blockages and station availability) that changes between ticks.
package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	// ErrEdgeNotFound is returned when two nodes are not adjacent.
	ErrEdgeNotFound = errors.New("edge not found")
	// ErrUnknownNode is returned when a node id is not part of the graph.
	ErrUnknownNode = errors.New("unknown node")
)

// NodeKind classifies a location.
type NodeKind int

const (
	PassengerZone NodeKind = iota
	ChargeStation
	FuelStation
)

// String returns a human-readable representation of the node kind.
func (k NodeKind) String() string {
	switch k {
	case PassengerZone:
		return "passenger_zone"
	case ChargeStation:
		return "charge_station"
	case FuelStation:
		return "fuel_station"
	default:
		return "unknown"
	}
}

// IsStation reports whether the kind refuels or recharges vehicles.
func (k NodeKind) IsStation() bool {
	return k == ChargeStation || k == FuelStation
}

// ParseNodeKind converts the textual kind used in scenario files.
func ParseNodeKind(s string) (NodeKind, error) {
	switch s {
	case "passenger_zone", "zone", "":
		return PassengerZone, nil
	case "charge_station", "charge":
		return ChargeStation, nil
	case "fuel_station", "fuel":
		return FuelStation, nil
	default:
		return PassengerZone, fmt.Errorf("unknown node kind %q", s)
	}
}

// ZoneClass drives the traffic rules applied to edges touching a node.
type ZoneClass int

const (
	Residential ZoneClass = iota
	Central
	Commercial
)

// String returns a human-readable representation of the zone class.
func (z ZoneClass) String() string {
	switch z {
	case Central:
		return "central"
	case Commercial:
		return "commercial"
	default:
		return "residential"
	}
}

// ParseZoneClass converts the textual zone used in scenario files.
func ParseZoneClass(s string) (ZoneClass, error) {
	switch s {
	case "residential", "":
		return Residential, nil
	case "central":
		return Central, nil
	case "commercial":
		return Commercial, nil
	default:
		return Residential, fmt.Errorf("unknown zone class %q", s)
	}
}

// Node is a location of the network. Coordinates are expressed in km on a
// local plane.
type Node struct {
	ID        string
	X, Y      float64
	Kind      NodeKind
	Zone      ZoneClass
	Available bool // meaningful for stations only
}

// Edge is one direction of a road. Both directions always exist.
type Edge struct {
	From       string
	To         string
	DistanceKm float64
	TimeMin    float64
	Congestion float64
	Blocked    bool
}

// Cost returns the congestion-aware traversal time in minutes, or +Inf when
// the road is blocked.
func (e Edge) Cost() float64 {
	if e.Blocked {
		return math.Inf(1)
	}
	return e.TimeMin * e.Congestion
}

// Graph is a weighted bidirectional road network. Structural changes happen
// while seeding; afterwards only congestion, blockage and availability are
// mutated, under the write lock.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
	adj   map[string][]*Edge
	index map[string]map[string]*Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
		adj:   make(map[string][]*Edge),
		index: make(map[string]map[string]*Edge),
	}
}

// AddNode registers a location. Stations start available.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("node id is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("node %s already exists", n.ID)
	}
	if n.Kind.IsStation() {
		n.Available = true
	}
	cp := n
	g.nodes[n.ID] = &cp
	g.order = append(g.order, n.ID)
	g.index[n.ID] = make(map[string]*Edge)
	return nil
}

// AddEdge connects a and b in both directions with the same distance and
// base travel time. Re-adding an existing pair overwrites both directions.
func (g *Graph) AddEdge(a, b string, distanceKm, timeMin float64) error {
	if a == b {
		return fmt.Errorf("self loop on %s", a)
	}
	if distanceKm < 0 || timeMin < 0 {
		return fmt.Errorf("edge %s-%s: negative distance or time", a, b)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[a]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, a)
	}
	if _, ok := g.nodes[b]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, b)
	}
	g.setDirected(a, b, distanceKm, timeMin)
	g.setDirected(b, a, distanceKm, timeMin)
	return nil
}

func (g *Graph) setDirected(from, to string, distanceKm, timeMin float64) {
	if e, ok := g.index[from][to]; ok {
		e.DistanceKm = distanceKm
		e.TimeMin = timeMin
		return
	}
	e := &Edge{From: from, To: to, DistanceKm: distanceKm, TimeMin: timeMin, Congestion: 1}
	g.index[from][to] = e
	g.adj[from] = append(g.adj[from], e)
}

// Edge returns a copy of the directed edge a->b.
func (g *Graph) Edge(a, b string) (Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.index[a][b]
	if !ok {
		return Edge{}, fmt.Errorf("%w: %s-%s", ErrEdgeNotFound, a, b)
	}
	return *e, nil
}

// Neighbors returns copies of the edges leaving id in insertion order.
func (g *Graph) Neighbors(id string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.adj[id]))
	for _, e := range g.adj[id] {
		out = append(out, *e)
	}
	return out
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// HasNode reports whether id belongs to the graph.
func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	_, ok := g.nodes[id]
	g.mu.RUnlock()
	return ok
}

// Nodes returns every node sorted by id.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stations returns the stations of the given kind sorted by id.
func (g *Graph) Stations(kind NodeKind) []Node {
	var out []Node
	for _, n := range g.Nodes() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, es := range g.adj {
		n += len(es)
	}
	return n
}

// SimulateBlockage sets the blocked flag on both directions of a road.
func (g *Graph) SimulateBlockage(a, b string, blocked bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ab, ok := g.index[a][b]
	if !ok {
		return fmt.Errorf("%w: %s-%s", ErrEdgeNotFound, a, b)
	}
	ba := g.index[b][a]
	ab.Blocked = blocked
	ba.Blocked = blocked
	return nil
}

// SetAvailable changes the availability of a station. It returns false when
// the node is unknown or is not a station.
func (g *Graph) SetAvailable(id string, available bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok || !n.Kind.IsStation() {
		return false
	}
	n.Available = available
	return true
}

// updateCongestion rewrites every multiplier using f. It holds the write
// lock for the whole pass so readers never observe a half-updated network.
func (g *Graph) updateCongestion(f func(from, to *Node) float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range g.order {
		from := g.nodes[id]
		for _, e := range g.adj[id] {
			e.Congestion = f(from, g.nodes[e.To])
		}
	}
}

// Distance returns the straight-line distance in km between two nodes, or
// +Inf when one of them is unknown.
func (g *Graph) Distance(a, b string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	na, okA := g.nodes[a]
	nb, okB := g.nodes[b]
	if !okA || !okB {
		return math.Inf(1)
	}
	return math.Hypot(na.X-nb.X, na.Y-nb.Y)
}

// PathDistance sums the road distance along consecutive nodes.
func (g *Graph) PathDistance(path []string) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := 0.0
	for i := 1; i < len(path); i++ {
		e, ok := g.index[path[i-1]][path[i]]
		if !ok {
			return 0, fmt.Errorf("%w: %s-%s", ErrEdgeNotFound, path[i-1], path[i])
		}
		total += e.DistanceKm
	}
	return total, nil
}

// PathCost sums the live traversal cost along consecutive nodes.
func (g *Graph) PathCost(path []string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	total := 0.0
	for i := 1; i < len(path); i++ {
		e, ok := g.index[path[i-1]][path[i]]
		if !ok {
			return math.Inf(1)
		}
		total += e.Cost()
	}
	return total
}

// MinCongestion returns the lowest multiplier currently set on an unblocked
// edge, 1 for an empty network.
func (g *Graph) MinCongestion() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	min := math.Inf(1)
	for _, es := range g.adj {
		for _, e := range es {
			if !e.Blocked && e.Congestion < min {
				min = e.Congestion
			}
		}
	}
	if math.IsInf(min, 1) {
		return 1
	}
	return min
}

// MaxGeometricSpeed returns the highest ratio between the straight-line
// length of an edge and its base time, in km per minute. Any path needs at
// least straightLine/MaxGeometricSpeed base minutes, which keeps distance
// heuristics admissible even when road distances are understated.
func (g *Graph) MaxGeometricSpeed() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	max := 0.0
	for _, es := range g.adj {
		for _, e := range es {
			from, to := g.nodes[e.From], g.nodes[e.To]
			straight := math.Hypot(from.X-to.X, from.Y-to.Y)
			if e.TimeMin <= 0 {
				if straight > 0 {
					return math.Inf(1)
				}
				continue
			}
			if s := straight / e.TimeMin; s > max {
				max = s
			}
		}
	}
	return max
}
