package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Rejection reasons reported by dispatch_rejections_total.
const (
	ReasonNoCandidate       = "no_candidate"
	ReasonUnreachable       = "unreachable"
	ReasonInsufficientRange = "insufficient_range"
)

// Reroute outcomes reported by dispatch_reroutes_total.
const (
	RerouteStation = "station"
	RerouteDirect  = "direct"
	RerouteFailed  = "failed"
)

var (
	assignmentsTotal *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	detoursTotal     prometheus.Counter
	reroutesTotal    *prometheus.CounterVec
	selectionLatency *prometheus.HistogramVec
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{assignmentsTotal, rejectionsTotal, detoursTotal, reroutesTotal, selectionLatency}
}

func newCollectors() {
	assignmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_assignments_total",
		Help: "Requests assigned to a vehicle",
	}, []string{"strategy"})
	rejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_rejections_total",
		Help: "Dispatch attempts that found no vehicle",
	}, []string{"reason"})
	detoursTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_detours_total",
		Help: "Assignments routed through a charge or fuel station",
	})
	reroutesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_reroutes_total",
		Help: "Vehicles replanned after reaching an offline station",
	}, []string{"outcome"})
	selectionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_selection_seconds",
		Help:    "Wall time spent evaluating candidates for one request",
		Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
	}, []string{"strategy"})
}

func init() {
	newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers the dispatch collectors on reg, or on
// prometheus.DefaultRegisterer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(collectors()...)
}

// ResetMetrics recreates the collectors, registering them on reg when it is
// not nil. Tests use it to start from zero.
func ResetMetrics(reg prometheus.Registerer) {
	newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
