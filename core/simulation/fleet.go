package simulation

import (
	"sort"

	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/model"
)

// rechargeLow sends idle vehicles under the range threshold to a station.
func (s *Simulator) rechargeLow(tick int) {
	for _, v := range s.fleet {
		if !v.Idle() || v.RangeRatio() >= s.opts.LowRangeThreshold {
			continue
		}
		plan, err := s.engine.PlanRecharge(v, s.hour)
		if err != nil {
			s.log.Debugw("no recharge plan", map[string]any{"vehicle": v.ID, "range_km": v.Range, "error": err.Error()})
			continue
		}
		s.send(v, plan, tick)
	}
}

// send starts an unassigned trip.
func (s *Simulator) send(v *model.Vehicle, plan dispatch.Plan, tick int) {
	if err := s.setState(v, model.EnRoute, tick); err != nil {
		s.log.Errorf("send %s: %v", v.ID, err)
		return
	}
	v.Assign(plan.Route.Nodes, plan.Stops, "")
	s.arrive(v, tick)
}

// reposition moves idle vehicles toward the zone with the most requests
// due within the lookahead window. Ties go to the lowest node id; vehicles
// already there count toward the demand.
func (s *Simulator) reposition(tick int) {
	demand := s.releases.forecast(tick, tick+s.opts.LookaheadMinutes)
	if len(demand) == 0 {
		return
	}
	zones := make([]string, 0, len(demand))
	for z := range demand {
		zones = append(zones, z)
	}
	sort.Strings(zones)
	target := zones[0]
	for _, z := range zones[1:] {
		if demand[z] > demand[target] {
			target = z
		}
	}

	want := demand[target]
	var idle []*model.Vehicle
	for _, v := range s.fleet {
		if !v.Idle() {
			continue
		}
		if v.Node == target {
			want--
			continue
		}
		idle = append(idle, v)
	}
	if want <= 0 || len(idle) == 0 {
		return
	}
	s.nearestFirst(idle, target)
	sent := 0
	for _, v := range idle {
		if sent == want {
			break
		}
		plan, err := s.engine.RouteTo(v, target, model.StopReposition, s.hour)
		if err != nil {
			continue
		}
		s.send(v, plan, tick)
		sent++
	}
	if sent > 0 {
		s.log.Debugw("repositioned", map[string]any{"tick": tick, "zone": target, "demand": demand[target], "vehicles": sent})
	}
}
