package metrics

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/fleetsim/core/events"
)

type requestStatus int

const (
	statusPending requestStatus = iota
	statusActive
	statusCompleted
	statusRejected
	statusCancelled
)

// Snapshot is a point-in-time view of the aggregated metrics.
type Snapshot struct {
	Tick int `json:"tick"`

	TotalRequests int `json:"total_requests"`
	Pending       int `json:"pending"`
	InProgress    int `json:"in_progress"`
	Completed     int `json:"completed"`
	Rejected      int `json:"rejected"`
	Cancelled     int `json:"cancelled"`
	Expired       int `json:"expired"`
	Requeued      int `json:"requeued"`

	SuccessRate   float64 `json:"success_rate"`
	RejectionRate float64 `json:"rejection_rate"`

	PooledGroups     int     `json:"pooled_groups"`
	PooledRequests   int     `json:"pooled_requests"`
	PoolingEconomyKm float64 `json:"pooling_economy_km"`

	DistanceKm    float64 `json:"distance_km"`
	LoadedKm      float64 `json:"loaded_km"`
	EmptyKm       float64 `json:"empty_km"`
	OperatingCost float64 `json:"operating_cost"`
	RefillCost    float64 `json:"refill_cost"`
	CO2Kg         float64 `json:"co2_kg"`
	Refills       int     `json:"refills"`
	Detours       int     `json:"detours"`

	StationFailures    int `json:"station_failures"`
	StationRecoveries  int `json:"station_recoveries"`
	StationUnavailable int `json:"station_unavailable_warnings"`

	ResponseMean   float64 `json:"response_mean"`
	ResponseStdDev float64 `json:"response_stddev"`
	ResponseP95    float64 `json:"response_p95"`

	AssignmentsByStrategy map[string]int `json:"assignments_by_strategy"`
}

// Aggregator folds simulation events into a Snapshot. Observe is the only
// write path and is safe for concurrent use.
type Aggregator struct {
	mu sync.Mutex

	tick     int
	status   map[string]requestStatus
	expired  int
	requeued int

	pooledGroups   int
	pooledRequests int
	economy        float64

	loaded, empty float64
	opCost        float64
	refillCost    float64
	co2           float64
	refills       int
	detours       int

	failures, recoveries, warnings int

	responses  []float64
	byStrategy map[string]int
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{status: map[string]requestStatus{}, byStrategy: map[string]int{}}
}

// Publish makes the aggregator usable as an event sink.
func (a *Aggregator) Publish(ev any) { a.Observe(ev) }

// Observe records one event. Unknown types are ignored.
func (a *Aggregator) Observe(ev any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch e := ev.(type) {
	case events.RequestCreated:
		a.advance(e.Tick)
		a.status[e.RequestID] = statusPending
	case events.RequestAssigned:
		a.advance(e.Tick)
		a.mark(events.MemberIDs(e.RequestID, e.Members), statusActive)
		a.responses = append(a.responses, float64(e.ResponseTime))
		a.byStrategy[e.Strategy]++
		if e.Station != "" {
			a.detours++
		}
	case events.RequestRequeued:
		a.advance(e.Tick)
		a.requeued++
		a.mark(events.MemberIDs(e.RequestID, e.Members), statusPending)
	case events.RequestRejected:
		a.advance(e.Tick)
		a.mark(events.MemberIDs(e.RequestID, e.Members), statusRejected)
	case events.RequestCompleted:
		a.advance(e.Tick)
		a.mark(events.MemberIDs(e.RequestID, e.Members), statusCompleted)
	case events.RequestCancelled:
		a.advance(e.Tick)
		ids := events.MemberIDs(e.RequestID, e.Members)
		if e.Expired {
			a.expired += len(ids)
		}
		a.mark(ids, statusCancelled)
	case events.PoolFormed:
		a.advance(e.Tick)
		a.pooledGroups++
		a.pooledRequests += len(e.Members)
		a.economy += e.EconomyKm
	case events.VehicleMoved:
		a.advance(e.Tick)
		if e.Loaded {
			a.loaded += e.Km
		} else {
			a.empty += e.Km
		}
		a.opCost += e.Cost
		a.co2 += e.CO2Kg
	case events.VehicleRecharged:
		a.advance(e.Tick)
		a.refills++
		a.refillCost += e.Cost
	case events.StationTransition:
		a.advance(e.Tick)
		if e.Available {
			a.recoveries++
		} else {
			a.failures++
		}
	case events.StationUnavailable:
		a.advance(e.Tick)
		a.warnings++
	}
}

func (a *Aggregator) advance(tick int) {
	if tick > a.tick {
		a.tick = tick
	}
}

// mark only moves known requests; terminal states are final.
func (a *Aggregator) mark(ids []string, st requestStatus) {
	for _, id := range ids {
		cur, ok := a.status[id]
		if !ok || cur >= statusCompleted {
			continue
		}
		a.status[id] = st
	}
}

// Snapshot computes the current view.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Snapshot{
		Tick:             a.tick,
		TotalRequests:    len(a.status),
		Expired:          a.expired,
		Requeued:         a.requeued,
		PooledGroups:     a.pooledGroups,
		PooledRequests:   a.pooledRequests,
		PoolingEconomyKm: a.economy,
		LoadedKm:         a.loaded,
		EmptyKm:          a.empty,
		DistanceKm:       a.loaded + a.empty,
		OperatingCost:    a.opCost,
		RefillCost:       a.refillCost,
		CO2Kg:            a.co2,
		Refills:          a.refills,
		Detours:          a.detours,
		StationFailures:  a.failures,

		StationRecoveries:     a.recoveries,
		StationUnavailable:    a.warnings,
		AssignmentsByStrategy: make(map[string]int, len(a.byStrategy)),
	}
	for k, v := range a.byStrategy {
		s.AssignmentsByStrategy[k] = v
	}
	for _, st := range a.status {
		switch st {
		case statusPending:
			s.Pending++
		case statusActive:
			s.InProgress++
		case statusCompleted:
			s.Completed++
		case statusRejected:
			s.Rejected++
		case statusCancelled:
			s.Cancelled++
		}
	}
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.Completed) / float64(s.TotalRequests)
		s.RejectionRate = float64(s.Rejected+s.Cancelled) / float64(s.TotalRequests)
	}
	if n := len(a.responses); n > 0 {
		xs := append([]float64(nil), a.responses...)
		sort.Float64s(xs)
		s.ResponseMean = stat.Mean(xs, nil)
		if n > 1 {
			s.ResponseStdDev = stat.StdDev(xs, nil)
		}
		s.ResponseP95 = stat.Quantile(0.95, stat.Empirical, xs, nil)
	}
	return s
}

// Served is the number of completed requests.
func (s Snapshot) Served() int { return s.Completed }

// Unserved counts rejected and cancelled requests, expiries included.
func (s Snapshot) Unserved() int { return s.Rejected + s.Cancelled }
