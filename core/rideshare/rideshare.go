// Package rideshare groups compatible pending requests into shared trips.
package rideshare

import (
	"fmt"
	"math"
	"sort"

	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
)

// Config bounds which requests may share a vehicle.
type Config struct {
	RadiusKm      float64 `json:"radius_km"`
	WindowMinutes int     `json:"window_minutes"`
	MaxDetourKm   float64 `json:"max_detour_km"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.RadiusKm == 0 {
		c.RadiusKm = 1.0
	}
	if c.WindowMinutes == 0 {
		c.WindowMinutes = 5
	}
	if c.MaxDetourKm == 0 {
		c.MaxDetourKm = 3.0
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RadiusKm <= 0 || c.WindowMinutes <= 0 || c.MaxDetourKm < 0 {
		return fmt.Errorf("rideshare: radius and window must be positive, detour non-negative")
	}
	return nil
}

// DistanceFunc returns the travel distance between two nodes in km.
type DistanceFunc func(a, b string) float64

// Group is a materialised shared trip.
type Group struct {
	Members     []*model.Request
	Origin      string
	Destination string
	Passengers  int
	// SharedKm is the distance of the single shared trip.
	SharedKm float64
	// DetourKm is the extra distance members travel to and from the shared
	// endpoints.
	DetourKm float64
	// Economy is the sum of individual trip distances minus SharedKm. It
	// can be negative.
	Economy float64
}

// Clusterer builds groups from a batch of pending requests.
type Clusterer struct {
	g    *graph.Graph
	dist DistanceFunc
	cfg  Config
	log  logger.Logger
}

// New returns a Clusterer. A nil dist measures straight lines on g.
func New(g *graph.Graph, dist DistanceFunc, cfg Config, log logger.Logger) *Clusterer {
	if dist == nil {
		dist = g.Distance
	}
	return &Clusterer{g: g, dist: dist, cfg: cfg, log: logger.OrNop(log)}
}

// Config returns the active configuration.
func (c *Clusterer) Config() Config { return c.cfg }

// Cluster scans the requests in creation order. For each request not yet
// grouped it gathers later requests while they remain inside the time
// window, skipping those too far away or that would overflow capacity.
// Groups of two or more whose detour stays under the ceiling are returned;
// pooled requests in the input are left alone.
func (c *Clusterer) Cluster(reqs []*model.Request, capacity int) []Group {
	sorted := make([]*model.Request, 0, len(reqs))
	for _, r := range reqs {
		if !r.Pooled() && r.Passengers <= capacity {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt != sorted[j].CreatedAt {
			return sorted[i].CreatedAt < sorted[j].CreatedAt
		}
		return sorted[i].ID < sorted[j].ID
	})

	used := make([]bool, len(sorted))
	var groups []Group
	for i, seed := range sorted {
		if used[i] {
			continue
		}
		members := []*model.Request{seed}
		idx := []int{i}
		load := seed.Passengers
		for j := i + 1; j < len(sorted); j++ {
			cand := sorted[j]
			if cand.CreatedAt-seed.CreatedAt > c.cfg.WindowMinutes {
				break
			}
			if used[j] || load+cand.Passengers > capacity || !c.near(members, cand) {
				continue
			}
			members = append(members, cand)
			idx = append(idx, j)
			load += cand.Passengers
		}
		if len(members) < 2 {
			continue
		}
		grp, ok := c.materialize(members)
		if !ok {
			continue
		}
		for _, k := range idx {
			used[k] = true
		}
		groups = append(groups, grp)
	}
	return groups
}

// near reports whether cand's origin and destination lie within the radius
// of every member's origin and destination.
func (c *Clusterer) near(members []*model.Request, cand *model.Request) bool {
	for _, m := range members {
		if c.g.Distance(m.Origin, cand.Origin) > c.cfg.RadiusKm ||
			c.g.Distance(m.Destination, cand.Destination) > c.cfg.RadiusKm {
			return false
		}
	}
	return true
}

func (c *Clusterer) materialize(members []*model.Request) (Group, bool) {
	origins := make([]string, len(members))
	dests := make([]string, len(members))
	for i, m := range members {
		origins[i] = m.Origin
		dests[i] = m.Destination
	}
	o := c.median(origins)
	d := c.median(dests)
	if o == d {
		return Group{}, false
	}
	grp := Group{Members: members, Origin: o, Destination: d, SharedKm: c.dist(o, d)}
	individual := 0.0
	for _, m := range members {
		grp.Passengers += m.Passengers
		grp.DetourKm += c.dist(m.Origin, o) + c.dist(d, m.Destination)
		individual += c.dist(m.Origin, m.Destination)
	}
	if math.IsInf(grp.SharedKm, 1) || math.IsInf(grp.DetourKm, 1) || grp.DetourKm > c.cfg.MaxDetourKm {
		c.log.Debugw("pool rejected", map[string]any{
			"seed": members[0].ID, "size": len(members), "detour_km": grp.DetourKm,
		})
		return Group{}, false
	}
	grp.Economy = individual - grp.SharedKm
	return grp, true
}

// median returns the point minimising the total distance to the others.
// Earlier points win ties.
func (c *Clusterer) median(points []string) string {
	best, bestSum := points[0], math.Inf(1)
	for _, p := range points {
		sum := 0.0
		for _, q := range points {
			if p != q {
				sum += c.dist(p, q)
			}
		}
		if sum < bestSum {
			best, bestSum = p, sum
		}
	}
	return best
}
