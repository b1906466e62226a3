package simulation

import (
	"errors"

	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/model"
)

// advance moves every travelling vehicle one edge and counts down refills.
func (s *Simulator) advance(tick int) {
	for _, v := range s.fleet {
		switch v.State {
		case model.Charging, model.Refueling:
			s.refill(v, tick)
		case model.EnRoute, model.InService:
			if s.stranded[v.ID] {
				s.retryStation(v, tick)
				continue
			}
			s.step(v, tick)
		}
	}
}

func (s *Simulator) step(v *model.Vehicle, tick int) {
	next, ok := v.NextNode()
	if !ok {
		s.arrive(v, tick)
		return
	}
	e, err := s.g.Edge(v.Node, next)
	if err != nil || e.Blocked {
		plan, perr := s.engine.Replan(v, s.hour)
		if perr != nil {
			s.log.Warnf("vehicle %s blocked at %s: %v", v.ID, v.Node, perr)
			if errors.Is(perr, model.ErrInsufficientRange) {
				s.breakdown(v, tick, perr)
			}
			return
		}
		v.Assign(plan.Route.Nodes, plan.Stops, v.RequestID)
		if next, ok = v.NextNode(); !ok {
			s.arrive(v, tick)
			return
		}
		if e, err = s.g.Edge(v.Node, next); err != nil {
			return
		}
	}
	if !v.CanReach(e.DistanceKm) {
		s.breakdown(v, tick, model.ErrInsufficientRange)
		return
	}
	from := v.Node
	cost, co2 := v.Move(e.DistanceKm)
	v.Node = next
	v.RouteIdx++
	s.emit(events.VehicleMoved{
		Tick: tick, VehicleID: v.ID, From: from, To: next, Km: e.DistanceKm,
		Loaded: v.Passengers > 0, Cost: cost, CO2Kg: co2, RangeKm: v.Range,
	})
	s.arrive(v, tick)
}

// arrive handles every stop located at the vehicle's route position.
func (s *Simulator) arrive(v *model.Vehicle, tick int) {
	for {
		st, ok := v.NextStop()
		if !ok {
			if len(v.RemainingRoute()) <= 1 && v.RequestID == "" && v.State == model.EnRoute {
				v.ClearRoute()
				_ = s.setState(v, model.Available, tick)
			}
			return
		}
		if st.Index != v.RouteIdx {
			return
		}
		switch st.Kind {
		case model.StopStation:
			s.atStation(v, st, tick)
			return
		case model.StopPickup:
			v.PopStop()
			s.pickup(v, tick)
		case model.StopDropoff:
			v.PopStop()
			s.dropoff(v, tick)
			return
		case model.StopReposition:
			v.PopStop()
			v.ClearRoute()
			_ = s.setState(v, model.Available, tick)
			return
		}
	}
}

func (s *Simulator) atStation(v *model.Vehicle, st model.Stop, tick int) {
	node, _ := s.g.Node(st.Node)
	added, cost, err := v.Replenish(node, s.opts.Dispatch.RefillFraction)
	if err != nil {
		if !s.stranded[v.ID] {
			s.log.Warnw("station unavailable on arrival", map[string]any{
				"tick": tick, "vehicle": v.ID, "station": st.Node, "error": err.Error(),
			})
			s.emit(events.StationUnavailable{Tick: tick, VehicleID: v.ID, StationID: st.Node})
		}
		s.stranded[v.ID] = true
		return
	}
	delete(s.stranded, v.ID)
	v.PopStop()
	s.emit(events.VehicleRecharged{Tick: tick, VehicleID: v.ID, StationID: st.Node, AddedKm: added, Cost: cost})
	v.RefillTicks = v.RefillDuration(added)
	if v.RefillTicks == 0 {
		s.resume(v, tick)
		return
	}
	if err := s.setState(v, v.Capability().RefillState, tick); err != nil {
		s.log.Errorf("refill %s: %v", v.ID, err)
	}
}

// refill counts down the time spent at a station.
func (s *Simulator) refill(v *model.Vehicle, tick int) {
	if v.RefillTicks > 0 {
		v.RefillTicks--
	}
	if v.RefillTicks == 0 {
		s.resume(v, tick)
	}
}

// resume continues a detour or frees the vehicle after a refill.
func (s *Simulator) resume(v *model.Vehicle, tick int) {
	if len(v.Stops) > 0 {
		_ = s.setState(v, model.EnRoute, tick)
		s.arrive(v, tick)
		return
	}
	v.ClearRoute()
	_ = s.setState(v, model.Available, tick)
}

// retryStation waits for the station to come back or plans around it.
func (s *Simulator) retryStation(v *model.Vehicle, tick int) {
	if st, ok := v.NextStop(); ok && st.Kind == model.StopStation {
		if node, ok := s.g.Node(st.Node); ok && node.Available {
			s.atStation(v, st, tick)
			return
		}
	}
	plan, err := s.engine.Reroute(v, s.hour)
	if err != nil {
		if v.RequestID == "" {
			delete(s.stranded, v.ID)
			v.ClearRoute()
			_ = s.setState(v, model.Available, tick)
		}
		s.log.Debugw("reroute failed", map[string]any{"vehicle": v.ID, "error": err.Error()})
		return
	}
	delete(s.stranded, v.ID)
	v.Assign(plan.Route.Nodes, plan.Stops, v.RequestID)
	s.log.Infof("vehicle %s rerouted via %q", v.ID, plan.Station)
	s.arrive(v, tick)
}

func (s *Simulator) pickup(v *model.Vehicle, tick int) {
	r := s.active[v.ID]
	if r == nil {
		return
	}
	if err := r.Transition(model.InExecution); err != nil {
		s.log.Errorf("pickup %s: %v", r.ID, err)
		return
	}
	r.PickedUpAt = tick
	for _, m := range r.Members {
		m.PickedUpAt = tick
	}
	v.Passengers = r.Passengers
	_ = s.setState(v, model.InService, tick)
	s.emit(events.RequestPickedUp{Tick: tick, RequestID: r.ID, VehicleID: v.ID})
}

func (s *Simulator) dropoff(v *model.Vehicle, tick int) {
	r := s.active[v.ID]
	delete(s.active, v.ID)
	v.Passengers = 0
	v.ClearRoute()
	_ = s.setState(v, model.Available, tick)
	if r == nil {
		return
	}
	if err := r.Transition(model.Completed); err != nil {
		s.log.Errorf("dropoff %s: %v", r.ID, err)
		return
	}
	r.CompletedAt = tick
	for _, m := range r.Members {
		m.CompletedAt = tick
	}
	s.emit(events.RequestCompleted{Tick: tick, RequestID: r.ID, VehicleID: v.ID, Members: memberIDs(r)})
}

// breakdown takes a vehicle out of service. A request not yet picked up
// goes back to the pending pool; one already aboard is cancelled.
func (s *Simulator) breakdown(v *model.Vehicle, tick int, cause error) {
	s.log.Warnw("vehicle breakdown", map[string]any{"tick": tick, "vehicle": v.ID, "error": cause.Error()})
	r := s.active[v.ID]
	delete(s.active, v.ID)
	delete(s.stranded, v.ID)
	v.ClearRoute()
	v.Passengers = 0
	_ = s.setState(v, model.Unavailable, tick)
	if r == nil {
		return
	}
	switch r.State {
	case model.Assigned:
		if err := r.Requeue(); err != nil {
			s.log.Errorf("requeue %s: %v", r.ID, err)
			return
		}
		s.pending = append(s.pending, r)
		s.emit(events.RequestRequeued{Tick: tick, RequestID: r.ID, VehicleID: v.ID, Members: memberIDs(r)})
	case model.InExecution:
		if err := r.Transition(model.Cancelled); err != nil {
			s.log.Errorf("cancel %s: %v", r.ID, err)
			return
		}
		s.emit(events.RequestCancelled{Tick: tick, RequestID: r.ID, Reason: "vehicle breakdown", Members: memberIDs(r)})
	}
}
