package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	ResetMetrics(reg)
	t.Cleanup(func() { ResetMetrics(nil) })

	assignmentsTotal.WithLabelValues(StrategyNearest).Inc()
	rejectionsTotal.WithLabelValues(ReasonNoCandidate).Inc()
	detoursTotal.Inc()
	reroutesTotal.WithLabelValues(RerouteStation).Inc()
	selectionLatency.WithLabelValues(StrategyNearest).Observe(0.001)

	n, err := testutil.GatherAndCount(reg,
		"dispatch_assignments_total",
		"dispatch_rejections_total",
		"dispatch_detours_total",
		"dispatch_reroutes_total",
		"dispatch_selection_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Panics(t, func() { MustRegisterMetrics(reg) })
}
