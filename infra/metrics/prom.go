package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/fleetsim/core/events"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
)

// PromSink mirrors the simulation snapshot in Prometheus gauges.
type PromSink struct {
	tick       prometheus.Gauge
	requests   *prometheus.GaugeVec
	fleet      *prometheus.GaugeVec
	distance   *prometheus.GaugeVec
	cost       *prometheus.GaugeVec
	co2        prometheus.Gauge
	rates      *prometheus.GaugeVec
	stations   *prometheus.GaugeVec
	response   prometheus.Histogram
	transition *prometheus.CounterVec
}

// NewPromSink registers simulation metrics on the default Prometheus registerer.
// The Prometheus server should be started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetsim_tick",
			Help: "Last simulated tick",
		}),
		requests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_requests",
			Help: "Requests by lifecycle status",
		}, []string{"status"}),
		fleet: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_vehicles",
			Help: "Vehicles by state",
		}, []string{"state"}),
		distance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_distance_km",
			Help: "Distance driven, split by load",
		}, []string{"load"}),
		cost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_cost",
			Help: "Accumulated cost by kind",
		}, []string{"kind"}),
		co2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetsim_co2_kg",
			Help: "Tailpipe emissions in kg",
		}),
		rates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_request_rate",
			Help: "Share of requests by outcome",
		}, []string{"outcome"}),
		stations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleetsim_station_availability_percent",
			Help: "Online stations per kind",
		}, []string{"kind"}),
		response: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fleetsim_response_minutes",
			Help:    "Minutes between request creation and assignment",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
		transition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleetsim_station_transitions_total",
			Help: "Station availability transitions",
		}, []string{"kind", "type"}),
	}
	var err error
	s.tick, err = register(reg, s.tick)
	if err == nil {
		s.requests, err = register(reg, s.requests)
	}
	if err == nil {
		s.fleet, err = register(reg, s.fleet)
	}
	if err == nil {
		s.distance, err = register(reg, s.distance)
	}
	if err == nil {
		s.cost, err = register(reg, s.cost)
	}
	if err == nil {
		s.co2, err = register(reg, s.co2)
	}
	if err == nil {
		s.rates, err = register(reg, s.rates)
	}
	if err == nil {
		s.stations, err = register(reg, s.stations)
	}
	if err == nil {
		s.response, err = register(reg, s.response)
	}
	if err == nil {
		s.transition, err = register(reg, s.transition)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// register reuses a collector that is already registered under the same name.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordTick updates every gauge from the snapshot.
func (s *PromSink) RecordTick(t coremetrics.TickSnapshot) error {
	m := t.Metrics
	s.tick.Set(float64(t.Tick))
	for status, n := range map[string]int{
		"total":       m.TotalRequests,
		"pending":     m.Pending,
		"in_progress": m.InProgress,
		"completed":   m.Completed,
		"rejected":    m.Rejected,
		"cancelled":   m.Cancelled,
		"expired":     m.Expired,
		"pooled":      m.PooledRequests,
	} {
		s.requests.WithLabelValues(status).Set(float64(n))
	}
	s.fleet.Reset()
	for state, n := range t.Fleet {
		s.fleet.WithLabelValues(state).Set(float64(n))
	}
	s.distance.WithLabelValues("loaded").Set(m.LoadedKm)
	s.distance.WithLabelValues("empty").Set(m.EmptyKm)
	s.cost.WithLabelValues("operating").Set(m.OperatingCost)
	s.cost.WithLabelValues("refill").Set(m.RefillCost)
	s.co2.Set(m.CO2Kg)
	s.rates.WithLabelValues("success").Set(m.SuccessRate)
	s.rates.WithLabelValues("rejection").Set(m.RejectionRate)
	for kind, pct := range t.StationAvailability {
		s.stations.WithLabelValues(kind).Set(pct)
	}
	return nil
}

// RecordStationEvent counts one availability transition.
func (s *PromSink) RecordStationEvent(e events.StationTransition) error {
	s.transition.WithLabelValues(e.Kind, e.Type).Inc()
	return nil
}

// RecordAssignment observes the response time of an assignment.
func (s *PromSink) RecordAssignment(e events.RequestAssigned) error {
	s.response.Observe(float64(e.ResponseTime))
	return nil
}
