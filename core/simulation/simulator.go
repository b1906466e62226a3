// Package simulation drives the tick loop: traffic refresh, station
// failures, request release, pooling, expiry, dispatch, vehicle motion,
// arrivals, opportunistic recharge and repositioning, in that order.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/failure"
	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/rideshare"
	"github.com/kilianp07/fleetsim/core/search"
)

// ErrFinished is returned by Step once the last tick has run.
var ErrFinished = errors.New("simulation: run finished")

// poolNamespace derives stable pooled request ids from member ids.
var poolNamespace = uuid.MustParse("6f1c2a58-3c1e-4c5e-9a51-0c3f1b0a7d42")

// Simulator owns the fleet, the requests and every core component of a run.
// Step and Run are serialised; the read accessors may be used concurrently.
type Simulator struct {
	mu sync.RWMutex

	g        *graph.Graph
	opts     Options
	fleet    []*model.Vehicle
	vehicles map[string]*model.Vehicle

	searcher search.Strategy
	engine   *dispatch.Engine
	traffic  *graph.Traffic
	injector *failure.Injector
	pooler   *rideshare.Clusterer
	agg      *metrics.Aggregator

	sink     events.Sink
	exporter metrics.Sink
	log      logger.Logger
	rng      *rand.Rand
	pace     time.Duration
	hooks    []func(tick int)

	tick     int
	hour     int
	finished bool

	releases releaseQueue
	requests map[string]*model.Request
	pending  []*model.Request
	// active maps a vehicle id to the request it serves.
	active map[string]*model.Request
	// stranded holds vehicles waiting at an offline station.
	stranded map[string]bool
}

// New validates the fleet against g and builds a simulator.
func New(g *graph.Graph, fleet []*model.Vehicle, opts Options, options ...Option) (*Simulator, error) {
	if g == nil {
		return nil, fmt.Errorf("simulation: nil graph")
	}
	opts.SetDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s := &Simulator{
		g:        g,
		opts:     opts,
		vehicles: make(map[string]*model.Vehicle, len(fleet)),
		agg:      metrics.NewAggregator(),
		sink:     events.NopSink{},
		exporter: metrics.NopSink{},
		log:      logger.Nop{},
		requests: map[string]*model.Request{},
		active:   map[string]*model.Request{},
		stranded: map[string]bool{},
	}
	for _, o := range options {
		o(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(opts.Seed))
	}

	for _, v := range fleet {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if !g.HasNode(v.Node) {
			return nil, fmt.Errorf("%w: %s starts at %s: %w", model.ErrInvalidVehicle, v.ID, v.Node, graph.ErrUnknownNode)
		}
		if _, dup := s.vehicles[v.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", model.ErrInvalidVehicle, v.ID)
		}
		s.vehicles[v.ID] = v
		s.fleet = append(s.fleet, v)
	}
	sort.Slice(s.fleet, func(i, j int) bool { return s.fleet[i].ID < s.fleet[j].ID })

	kind, _ := search.ParseKind(opts.Search)
	searcher, err := search.New(kind, search.ParseHeuristic(opts.Heuristic, opts.TopSpeedKmPerMin))
	if err != nil {
		return nil, err
	}
	s.searcher = searcher
	if s.engine, err = dispatch.New(g, searcher, opts.Dispatch, s.log); err != nil {
		return nil, err
	}
	s.traffic = graph.NewTraffic(g)
	s.injector = failure.New(g, s.rng, opts.Failure, s.log)
	s.injector.OnTransition(s.onStation)
	s.pooler = rideshare.New(g, s.pathDistance, opts.Pooling, s.log)
	s.hour = s.hourAt(0)
	return s, nil
}

// Schedule queues a request for release at its creation tick.
func (s *Simulator) Schedule(r *model.Request) error {
	if r == nil {
		return fmt.Errorf("%w: nil request", model.ErrInvalidRequest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.State != model.Pending {
		return fmt.Errorf("%w: %s is %s", model.ErrInvalidRequest, r.ID, r.State)
	}
	for _, n := range []string{r.Origin, r.Destination} {
		if !s.g.HasNode(n) {
			return fmt.Errorf("%w: %s: %s: %w", model.ErrInvalidRequest, r.ID, n, graph.ErrUnknownNode)
		}
	}
	if _, dup := s.requests[r.ID]; dup {
		return fmt.Errorf("%w: duplicate id %s", model.ErrInvalidRequest, r.ID)
	}
	s.requests[r.ID] = r
	s.releases.push(r)
	return nil
}

func (s *Simulator) hourAt(tick int) int {
	return (s.opts.StartHour + tick/60) % 24
}

// pathDistance measures a route with the configured search, falling back
// to the straight line when the pair is disconnected.
func (s *Simulator) pathDistance(a, b string) float64 {
	r := s.searcher.Search(s.g, a, b, &search.Context{Hour: s.hour})
	if r.Reachable() {
		if km, err := s.g.PathDistance(r.Nodes); err == nil {
			return km
		}
	}
	return s.g.Distance(a, b)
}

// Step runs one tick.
func (s *Simulator) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.hooks) > 0 {
		s.mu.RLock()
		next, done := s.tick, s.finished
		s.mu.RUnlock()
		if !done {
			for _, h := range s.hooks {
				h(next)
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrFinished
	}
	tick := s.tick
	s.hour = s.hourAt(tick)

	if s.opts.Traffic {
		s.traffic.Apply(s.hour)
	}
	if s.opts.Failures {
		s.injector.Step(tick)
	}
	s.release(tick)
	if s.opts.RideSharing {
		s.pool(tick)
	}
	s.expire(tick)
	s.dispatchPending(tick)
	s.advance(tick)
	s.rechargeLow(tick)
	if s.opts.Repositioning && tick > 0 && tick%s.opts.RepositionEvery == 0 {
		s.reposition(tick)
	}
	s.export(tick)

	if tick >= s.opts.DurationMinutes {
		s.finish(tick)
		return nil
	}
	s.tick++
	return nil
}

// Run steps until the last tick or until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	var ticker *time.Ticker
	if s.pace > 0 {
		ticker = time.NewTicker(s.pace)
		defer ticker.Stop()
	}
	s.log.Infof("simulation started: %d ticks, search %s, dispatch %s",
		s.opts.DurationMinutes+1, s.opts.Search, s.engine.Strategy().Name())
	for {
		err := s.Step(ctx)
		if errors.Is(err, ErrFinished) {
			return nil
		}
		if err != nil {
			return err
		}
		if s.Finished() {
			snap := s.agg.Snapshot()
			s.log.Infof("simulation finished: %d requests, %d completed, %d rejected, %d cancelled",
				snap.TotalRequests, snap.Completed, snap.Rejected, snap.Cancelled)
			return nil
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

func (s *Simulator) emit(ev any) {
	s.agg.Observe(ev)
	s.sink.Publish(ev)
}

func (s *Simulator) onStation(r failure.Record) {
	s.emit(events.StationTransition{
		Tick:      r.Tick,
		StationID: r.StationID,
		Kind:      r.Kind.String(),
		Type:      string(r.Type),
		Available: r.Type == failure.Recovery || r.Type == failure.ManualRecovery,
	})
}

func memberIDs(r *model.Request) []string {
	if !r.Pooled() {
		return nil
	}
	ids := make([]string, len(r.Members))
	for i, m := range r.Members {
		ids[i] = m.ID
	}
	return ids
}

func (s *Simulator) setState(v *model.Vehicle, to model.VehicleState, tick int) error {
	from := v.State
	if from == to {
		return nil
	}
	if err := v.Transition(to); err != nil {
		return err
	}
	s.emit(events.VehicleStateChanged{Tick: tick, VehicleID: v.ID, From: from.String(), To: to.String()})
	return nil
}

func (s *Simulator) release(tick int) {
	for _, r := range s.releases.popDue(tick) {
		s.pending = append(s.pending, r)
		s.emit(events.RequestCreated{
			Tick: tick, RequestID: r.ID, Origin: r.Origin, Dest: r.Destination,
			Passengers: r.Passengers, Priority: r.Priority,
		})
	}
}

func (s *Simulator) maxCapacity() int {
	best := 0
	for _, v := range s.fleet {
		if v.State != model.Unavailable && v.Capacity > best {
			best = v.Capacity
		}
	}
	return best
}

func (s *Simulator) pool(tick int) {
	var single []*model.Request
	for _, r := range s.pending {
		if !r.Pooled() {
			single = append(single, r)
		}
	}
	if len(single) < 2 {
		return
	}
	groups := s.pooler.Cluster(single, s.maxCapacity())
	if len(groups) == 0 {
		return
	}
	merged := map[string]bool{}
	var formed []*model.Request
	for _, grp := range groups {
		ids := make([]string, len(grp.Members))
		for i, m := range grp.Members {
			ids[i] = m.ID
			merged[m.ID] = true
		}
		id := "pool-" + uuid.NewSHA1(poolNamespace, []byte(strings.Join(ids, ","))).String()
		p := model.NewPooledRequest(id, grp.Origin, grp.Destination, grp.Members)
		p.Economy = grp.Economy
		formed = append(formed, p)
		s.emit(events.PoolFormed{
			Tick: tick, PoolID: id, Members: memberIDs(p), Origin: grp.Origin, Dest: grp.Destination,
			EconomyKm: grp.Economy, DetourKm: grp.DetourKm,
		})
		s.log.Debugw("pool formed", map[string]any{"pool": id, "members": len(ids), "economy_km": grp.Economy})
	}
	kept := s.pending[:0]
	for _, r := range s.pending {
		if !merged[r.ID] {
			kept = append(kept, r)
		}
	}
	s.pending = append(kept, formed...)
}

func (s *Simulator) expire(tick int) {
	kept := s.pending[:0]
	for _, r := range s.pending {
		if !r.Expired(tick) {
			kept = append(kept, r)
			continue
		}
		if err := r.Transition(model.Cancelled); err != nil {
			s.log.Errorf("expire %s: %v", r.ID, err)
			kept = append(kept, r)
			continue
		}
		s.emit(events.RequestCancelled{
			Tick: tick, RequestID: r.ID, Expired: true,
			Reason: model.ErrRequestExpired.Error(), Members: memberIDs(r),
		})
	}
	s.pending = kept
}

// busyCapable reports whether a vehicle that could carry r is currently
// serving someone else.
func (s *Simulator) busyCapable(r *model.Request) bool {
	for _, v := range s.fleet {
		if !v.Idle() && v.State != model.Unavailable && v.CanCarry(r.Passengers) {
			return true
		}
	}
	return false
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, model.ErrUnreachableGoal):
		return dispatch.ReasonUnreachable
	case errors.Is(err, model.ErrInsufficientRange):
		return dispatch.ReasonInsufficientRange
	default:
		return dispatch.ReasonNoCandidate
	}
}

func (s *Simulator) dispatchPending(tick int) {
	order := append([]*model.Request(nil), s.pending...)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
	done := map[string]bool{}
	for _, r := range order {
		if r.Waited(tick) < s.opts.SettleMinutes {
			continue
		}
		a, err := s.engine.Dispatch(r, s.fleet, tick, s.hour)
		if err == nil {
			done[r.ID] = true
			s.onAssigned(a, tick)
			continue
		}
		if !errors.Is(err, model.ErrNoVehicleAvailable) {
			s.log.Errorf("dispatch %s: %v", r.ID, err)
			continue
		}
		if s.opts.HoldWhenBusy && s.busyCapable(r) {
			continue
		}
		if terr := r.Transition(model.Rejected); terr != nil {
			s.log.Errorf("reject %s: %v", r.ID, terr)
			continue
		}
		done[r.ID] = true
		s.log.Debugw("request rejected", map[string]any{"request": r.ID, "error": err.Error()})
		s.emit(events.RequestRejected{Tick: tick, RequestID: r.ID, Reason: rejectReason(err), Members: memberIDs(r)})
	}
	kept := s.pending[:0]
	for _, r := range s.pending {
		if !done[r.ID] {
			kept = append(kept, r)
		}
	}
	s.pending = kept
}

func (s *Simulator) onAssigned(a *dispatch.Assignment, tick int) {
	v, r := a.Vehicle, a.Request
	s.active[v.ID] = r
	s.emit(events.VehicleStateChanged{Tick: tick, VehicleID: v.ID, From: model.Available.String(), To: v.State.String()})
	s.emit(events.RequestAssigned{
		Tick: tick, RequestID: r.ID, VehicleID: v.ID, Strategy: a.Strategy,
		ResponseTime: r.ResponseTime(), PickupKm: a.PickupKm, TripKm: a.TripKm,
		Station: a.Plan.Station, Members: memberIDs(r),
	})
	s.arrive(v, tick)
}

// finish cancels the requests still waiting when the clock stops.
func (s *Simulator) finish(tick int) {
	for _, r := range s.pending {
		if err := r.Transition(model.Cancelled); err != nil {
			s.log.Errorf("cancel %s: %v", r.ID, err)
			continue
		}
		s.emit(events.RequestCancelled{Tick: tick, RequestID: r.ID, Reason: "run ended", Members: memberIDs(r)})
	}
	s.pending = nil
	s.finished = true
}

func (s *Simulator) export(tick int) {
	snap := metrics.TickSnapshot{
		Tick:                tick,
		Hour:                s.hour,
		Metrics:             s.agg.Snapshot(),
		Fleet:               metrics.FleetStatus{},
		StationAvailability: map[string]float64{},
	}
	for _, v := range s.fleet {
		snap.Fleet[v.State.String()]++
	}
	for kind, a := range failure.SnapshotOf(s.g).ByKind {
		snap.StationAvailability[kind] = a.Percent
	}
	if err := s.exporter.RecordTick(snap); err != nil {
		s.log.Warnf("export tick %d: %v", tick, err)
	}
}

// ForceStationFailure takes a station offline at the current tick.
func (s *Simulator) ForceStationFailure(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injector.ForceFailure(id, s.tick)
}

// RecoverStation brings a station back online at the current tick.
func (s *Simulator) RecoverStation(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injector.Recover(id, s.tick)
}

// RecoverVehicle returns a broken-down vehicle to service with a full
// range. It returns false for unknown ids and vehicles in service.
func (s *Simulator) RecoverVehicle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok || v.State != model.Unavailable {
		return false
	}
	v.Range = v.MaxRange
	return s.setState(v, model.Available, s.tick) == nil
}

// Tick returns the next tick to run.
func (s *Simulator) Tick() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// Hour returns the hour of day of the current tick.
func (s *Simulator) Hour() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hour
}

// Finished reports whether the last tick has run.
func (s *Simulator) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finished
}

// Options returns the effective options.
func (s *Simulator) Options() Options { return s.opts }

// Graph returns the road network.
func (s *Simulator) Graph() *graph.Graph { return s.g }

// Metrics returns the aggregated metrics.
func (s *Simulator) Metrics() metrics.Snapshot { return s.agg.Snapshot() }

// Availability returns the station availability snapshot.
func (s *Simulator) Availability() failure.Availability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.injector.Snapshot()
}

// StationHistory returns every station transition so far.
func (s *Simulator) StationHistory() []failure.Record { return s.injector.History() }

// Vehicles returns copies of the fleet sorted by id.
func (s *Simulator) Vehicles() []model.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Vehicle, len(s.fleet))
	for i, v := range s.fleet {
		c := *v
		c.Route = append([]string(nil), v.Route...)
		c.Stops = append([]model.Stop(nil), v.Stops...)
		out[i] = c
	}
	return out
}

// Requests returns copies of every scheduled request sorted by id.
func (s *Simulator) Requests() []model.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.requests))
	for id := range s.requests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]model.Request, len(ids))
	for i, id := range ids {
		out[i] = *s.requests[id]
		out[i].Members = nil
	}
	return out
}

// Request returns a copy of a scheduled request.
func (s *Simulator) Request(id string) (model.Request, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return model.Request{}, false
	}
	c := *r
	c.Members = nil
	return c, true
}

// nearestFirst sorts vehicles by straight-line distance to node, then id.
func (s *Simulator) nearestFirst(vs []*model.Vehicle, node string) {
	sort.SliceStable(vs, func(i, j int) bool {
		di, dj := s.g.Distance(vs[i].Node, node), s.g.Distance(vs[j].Node, node)
		if math.Abs(di-dj) > 1e-12 {
			return di < dj
		}
		return vs[i].ID < vs[j].ID
	})
}
