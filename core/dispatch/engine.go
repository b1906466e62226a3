// Package dispatch matches pending requests with fleet vehicles. Candidates
// are evaluated against live route costs, ranked by a configurable strategy
// and, when the chosen vehicle lacks range, routed through a compatible
// station before pickup.
package dispatch

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/search"
)

// Plan is a route with its stops, ready to be given to a vehicle.
type Plan struct {
	Route   model.Route
	Stops   []model.Stop
	Station string // empty when the plan has no refill stop
	Km      float64
}

// Assignment is the outcome of a successful dispatch.
type Assignment struct {
	Request  *model.Request
	Vehicle  *model.Vehicle
	Plan     Plan
	PickupKm float64
	TripKm   float64
	Strategy string
}

// Detour reports whether the assignment goes through a station.
func (a *Assignment) Detour() bool { return a.Plan.Station != "" }

// Engine assigns vehicles to requests.
type Engine struct {
	g        *graph.Graph
	searcher search.Strategy
	strategy Strategy
	cfg      Config
	log      logger.Logger
}

// New creates an engine. cfg is completed with defaults before validation.
func New(g *graph.Graph, searcher search.Strategy, cfg Config, log logger.Logger) (*Engine, error) {
	if g == nil || searcher == nil {
		return nil, fmt.Errorf("dispatch: nil graph or search strategy")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, err := NewStrategy(cfg.Strategy, cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{g: g, searcher: searcher, strategy: st, cfg: cfg, log: logger.OrNop(log)}, nil
}

// Strategy returns the active selection strategy.
func (e *Engine) Strategy() Strategy { return e.strategy }

// Search returns the path search used for every leg.
func (e *Engine) Search() search.Strategy { return e.searcher }

// leg searches from a to b for v and returns the route with its length.
func (e *Engine) leg(v *model.Vehicle, a, b string, hour int) (model.Route, float64) {
	r := e.searcher.Search(e.g, a, b, &search.Context{Vehicle: v, Hour: hour})
	if !r.Reachable() {
		return r, math.Inf(1)
	}
	km, err := e.g.PathDistance(r.Nodes)
	if err != nil {
		return model.Unreachable(), math.Inf(1)
	}
	return r, km
}

// Eligible returns the vehicles that may serve req: available, large enough
// and matching the preference when at least one such vehicle exists.
func Eligible(req *model.Request, fleet []*model.Vehicle) []*model.Vehicle {
	var base []*model.Vehicle
	for _, v := range fleet {
		if v.Idle() && v.CanCarry(req.Passengers) {
			base = append(base, v)
		}
	}
	if req.Preference == model.PreferAny {
		return base
	}
	var matching []*model.Vehicle
	for _, v := range base {
		if req.Preference.Matches(v.Type) {
			matching = append(matching, v)
		}
	}
	if len(matching) == 0 {
		return base
	}
	return matching
}

// Evaluate computes the pickup and trip legs of every vehicle concurrently.
// Vehicles that cannot reach the pickup at all are left out.
func (e *Engine) Evaluate(req *model.Request, vehicles []*model.Vehicle, hour int) []*Candidate {
	results := make([]*Candidate, len(vehicles))
	var wg sync.WaitGroup
	for i, v := range vehicles {
		wg.Add(1)
		go func(i int, v *model.Vehicle) {
			defer wg.Done()
			pickup, pkm := e.leg(v, v.Node, req.Origin, hour)
			if !pickup.Reachable() {
				return
			}
			trip, tkm := e.leg(v, req.Origin, req.Destination, hour)
			if !trip.Reachable() {
				return
			}
			results[i] = &Candidate{
				Vehicle:  v,
				Pickup:   pickup,
				Trip:     trip,
				PickupKm: pkm,
				TripKm:   tkm,
				Feasible: v.CanReach(pkm + tkm),
			}
		}(i, v)
	}
	wg.Wait()
	out := make([]*Candidate, 0, len(results))
	for _, c := range results {
		if c != nil {
			out = append(out, c)
		}
	}
	sortByID(out)
	return out
}

// Dispatch selects a vehicle for req and applies the assignment to both.
// It returns ErrNoVehicleAvailable when nothing can serve the request; the
// request state is left untouched in that case.
func (e *Engine) Dispatch(req *model.Request, fleet []*model.Vehicle, tick, hour int) (*Assignment, error) {
	start := time.Now()
	defer func() {
		selectionLatency.WithLabelValues(e.strategy.Name()).Observe(time.Since(start).Seconds())
	}()

	eligible := Eligible(req, fleet)
	if len(eligible) == 0 {
		rejectionsTotal.WithLabelValues(ReasonNoCandidate).Inc()
		return nil, fmt.Errorf("request %s: %w", req.ID, model.ErrNoVehicleAvailable)
	}
	cands := e.Evaluate(req, eligible, hour)
	if len(cands) == 0 {
		rejectionsTotal.WithLabelValues(ReasonUnreachable).Inc()
		return nil, fmt.Errorf("request %s: %w: %w", req.ID, model.ErrNoVehicleAvailable, model.ErrUnreachableGoal)
	}

	dropped := 0
	for len(cands) > 0 {
		c := e.strategy.Select(req, cands)
		if c == nil {
			break
		}
		if c.Feasible {
			plan, err := e.directPlan(c)
			if err == nil {
				return e.assign(req, c, plan, tick)
			}
			e.log.Warnf("request %s: direct plan for %s: %v", req.ID, c.Vehicle.ID, err)
		} else if plan, err := e.detourPlan(c, req, hour); err == nil {
			detoursTotal.Inc()
			return e.assign(req, c, plan, tick)
		} else {
			e.log.Debugw("candidate dropped", map[string]any{
				"request": req.ID, "vehicle": c.Vehicle.ID, "error": err.Error(),
			})
		}
		dropped++
		cands = remove(cands, c)
	}
	rejectionsTotal.WithLabelValues(ReasonInsufficientRange).Inc()
	return nil, fmt.Errorf("request %s: %d candidates dropped: %w: %w",
		req.ID, dropped, model.ErrNoVehicleAvailable, model.ErrInsufficientRange)
}

func remove(cands []*Candidate, c *Candidate) []*Candidate {
	out := cands[:0:0]
	for _, x := range cands {
		if x != c {
			out = append(out, x)
		}
	}
	return out
}

func (e *Engine) directPlan(c *Candidate) (Plan, error) {
	legs := []model.Route{c.Pickup, c.Trip}
	route, err := model.Concat(legs...)
	if err != nil {
		return Plan{}, err
	}
	off := model.LegOffsets(legs...)
	return Plan{
		Route: route,
		Stops: []model.Stop{
			{Kind: model.StopPickup, Node: c.Trip.Start(), Index: off[0]},
			{Kind: model.StopDropoff, Node: c.Trip.End(), Index: off[1]},
		},
		Km: c.TotalKm(),
	}, nil
}

// rangeAfterRefill returns the range left after travelling km and refilling
// at a station with the configured fraction.
func (e *Engine) rangeAfterRefill(v *model.Vehicle, km float64) float64 {
	left := v.Range - km
	return math.Min(v.MaxRange, left+e.cfg.RefillFraction*v.MaxRange)
}

// stationPlan routes v through the cheapest available compatible station
// and then along targets in order. skip excludes one station id.
func (e *Engine) stationPlan(v *model.Vehicle, targets []model.Stop, hour int, skip string) (Plan, error) {
	best := Plan{Route: model.Unreachable()}
	for _, st := range e.g.Stations(v.StationKind()) {
		if !st.Available || st.ID == skip {
			continue
		}
		toStation, km1 := e.leg(v, v.Node, st.ID, hour)
		if !toStation.Reachable() || !v.CanReach(km1) {
			continue
		}
		legs := []model.Route{toStation}
		rest := 0.0
		prev := st.ID
		ok := true
		for _, t := range targets {
			r, km := e.leg(v, prev, t.Node, hour)
			if !r.Reachable() {
				ok = false
				break
			}
			legs = append(legs, r)
			rest += km
			prev = t.Node
		}
		if !ok || e.rangeAfterRefill(v, km1) < rest {
			continue
		}
		route, err := model.Concat(legs...)
		if err != nil {
			continue
		}
		if best.Route.Reachable() && route.Cost >= best.Route.Cost {
			continue
		}
		off := model.LegOffsets(legs...)
		stops := []model.Stop{{Kind: model.StopStation, Node: st.ID, Index: off[0]}}
		for i, t := range targets {
			stops = append(stops, model.Stop{Kind: t.Kind, Node: t.Node, Index: off[i+1]})
		}
		best = Plan{Route: route, Stops: stops, Station: st.ID, Km: km1 + rest}
	}
	if !best.Route.Reachable() {
		return best, fmt.Errorf("vehicle %s: no station route: %w", v.ID, model.ErrInsufficientRange)
	}
	return best, nil
}

// detourPlan inserts a refill stop before the pickup.
func (e *Engine) detourPlan(c *Candidate, req *model.Request, hour int) (Plan, error) {
	return e.stationPlan(c.Vehicle, []model.Stop{
		{Kind: model.StopPickup, Node: req.Origin},
		{Kind: model.StopDropoff, Node: req.Destination},
	}, hour, "")
}

func (e *Engine) assign(req *model.Request, c *Candidate, plan Plan, tick int) (*Assignment, error) {
	v := c.Vehicle
	if err := req.Assign(v.ID, tick); err != nil {
		return nil, err
	}
	if err := v.Transition(model.EnRoute); err != nil {
		if rerr := req.Requeue(); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return nil, err
	}
	v.Assign(plan.Route.Nodes, plan.Stops, req.ID)
	assignmentsTotal.WithLabelValues(e.strategy.Name()).Inc()
	e.log.Debugw("request assigned", map[string]any{
		"request": req.ID, "vehicle": v.ID, "strategy": e.strategy.Name(),
		"cost": plan.Route.Cost, "station": plan.Station,
	})
	return &Assignment{
		Request:  req,
		Vehicle:  v,
		Plan:     plan,
		PickupKm: c.PickupKm,
		TripKm:   c.TripKm,
		Strategy: e.strategy.Name(),
	}, nil
}

// PlanRecharge returns a route from the vehicle position to the cheapest
// reachable, available compatible station.
func (e *Engine) PlanRecharge(v *model.Vehicle, hour int) (Plan, error) {
	best := Plan{Route: model.Unreachable()}
	for _, st := range e.g.Stations(v.StationKind()) {
		if !st.Available {
			continue
		}
		r, km := e.leg(v, v.Node, st.ID, hour)
		if !r.Reachable() || !v.CanReach(km) {
			continue
		}
		if best.Route.Reachable() && r.Cost >= best.Route.Cost {
			continue
		}
		best = Plan{
			Route:   r,
			Stops:   []model.Stop{{Kind: model.StopStation, Node: st.ID, Index: len(r.Nodes) - 1}},
			Station: st.ID,
			Km:      km,
		}
	}
	if !best.Route.Reachable() {
		return best, fmt.Errorf("vehicle %s at %s: %w", v.ID, v.Node, model.ErrStationUnavailable)
	}
	return best, nil
}

// Reroute plans the rest of the vehicle's trip when its station is offline.
// It tries another compatible station first; when none is usable but the
// range already covers the remaining stops, the refill is skipped.
func (e *Engine) Reroute(v *model.Vehicle, hour int) (Plan, error) {
	var targets []model.Stop
	offline := ""
	for _, s := range v.Stops {
		if s.Kind == model.StopStation {
			if offline == "" {
				offline = s.Node
			}
			continue
		}
		targets = append(targets, s)
	}
	if plan, err := e.stationPlan(v, targets, hour, offline); err == nil {
		reroutesTotal.WithLabelValues(RerouteStation).Inc()
		return plan, nil
	}
	if len(targets) == 0 {
		reroutesTotal.WithLabelValues(RerouteFailed).Inc()
		return Plan{Route: model.Unreachable()}, fmt.Errorf("vehicle %s: %w", v.ID, model.ErrStationUnavailable)
	}
	plan, err := e.stopsPlan(v, targets, hour)
	if err != nil {
		reroutesTotal.WithLabelValues(RerouteFailed).Inc()
		if errors.Is(err, model.ErrInsufficientRange) {
			return plan, fmt.Errorf("vehicle %s: %w", v.ID, model.ErrStationUnavailable)
		}
		return plan, err
	}
	reroutesTotal.WithLabelValues(RerouteDirect).Inc()
	return plan, nil
}

// Replan recomputes the route through the vehicle's remaining stops, in
// order, from its current node. It is used after a road closure.
func (e *Engine) Replan(v *model.Vehicle, hour int) (Plan, error) {
	if len(v.Stops) == 0 {
		return Plan{Route: model.Unreachable()}, fmt.Errorf("vehicle %s has no stops: %w", v.ID, model.ErrUnreachableGoal)
	}
	plan, err := e.stopsPlan(v, v.Stops, hour)
	if err != nil {
		return plan, err
	}
	for _, s := range plan.Stops {
		if s.Kind == model.StopStation {
			plan.Station = s.Node
			break
		}
	}
	return plan, nil
}

// stopsPlan chains legs from the vehicle position through targets. Each
// stretch between refills must fit in the range available at its start; a
// station stop adds the configured refill fraction.
func (e *Engine) stopsPlan(v *model.Vehicle, targets []model.Stop, hour int) (Plan, error) {
	legs := make([]model.Route, 0, len(targets))
	prev, total := v.Node, 0.0
	avail, stretch := v.Range, 0.0
	for _, t := range targets {
		r, km := e.leg(v, prev, t.Node, hour)
		if !r.Reachable() {
			return Plan{Route: model.Unreachable()}, fmt.Errorf("vehicle %s to %s: %w", v.ID, t.Node, model.ErrUnreachableGoal)
		}
		legs = append(legs, r)
		total += km
		stretch += km
		prev = t.Node
		if t.Kind != model.StopStation {
			continue
		}
		if stretch > avail {
			return Plan{Route: model.Unreachable()}, fmt.Errorf("vehicle %s needs %.2f km to %s: %w", v.ID, stretch, t.Node, model.ErrInsufficientRange)
		}
		avail = math.Min(v.MaxRange, avail-stretch+e.cfg.RefillFraction*v.MaxRange)
		stretch = 0
	}
	if stretch > avail {
		return Plan{Route: model.Unreachable()}, fmt.Errorf("vehicle %s needs %.2f km: %w", v.ID, stretch, model.ErrInsufficientRange)
	}
	route, err := model.Concat(legs...)
	if err != nil {
		return Plan{Route: model.Unreachable()}, err
	}
	off := model.LegOffsets(legs...)
	stops := make([]model.Stop, len(targets))
	for i, t := range targets {
		stops[i] = model.Stop{Kind: t.Kind, Node: t.Node, Index: off[i]}
	}
	return Plan{Route: route, Stops: stops, Km: total}, nil
}

// RouteTo plans a plain trip for v, used for repositioning.
func (e *Engine) RouteTo(v *model.Vehicle, node string, kind model.StopKind, hour int) (Plan, error) {
	r, km := e.leg(v, v.Node, node, hour)
	if !r.Reachable() {
		return Plan{Route: r}, fmt.Errorf("vehicle %s to %s: %w", v.ID, node, model.ErrUnreachableGoal)
	}
	if !v.CanReach(km) {
		return Plan{Route: r}, fmt.Errorf("vehicle %s to %s: %w", v.ID, node, model.ErrInsufficientRange)
	}
	return Plan{Route: r, Stops: []model.Stop{{Kind: kind, Node: node, Index: len(r.Nodes) - 1}}, Km: km}, nil
}
