package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/events"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

type recordingSink struct {
	mu          sync.Mutex
	stations    []events.StationTransition
	assignments []events.RequestAssigned
}

func (r *recordingSink) RecordTick(coremetrics.TickSnapshot) error { return nil }

func (r *recordingSink) RecordStationEvent(e events.StationTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations = append(r.stations, e)
	return nil
}

func (r *recordingSink) RecordAssignment(e events.RequestAssigned) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments = append(r.assignments, e)
	return nil
}

func (r *recordingSink) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stations), len(r.assignments)
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := StartEventCollector(ctx, bus, sink, nil)

	bus.Publish(events.StationTransition{StationID: "S1", Type: "failure"})
	bus.Publish(events.VehicleMoved{VehicleID: "ev1"})
	bus.Publish(events.RequestAssigned{RequestID: "r1"})

	require.Eventually(t, func() bool {
		s, a := sink.counts()
		return s == 1 && a == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	assert.Equal(t, "S1", sink.stations[0].StationID)
}

func TestStartEventCollectorStopsOnBusClose(t *testing.T) {
	bus := eventbus.New()
	done := StartEventCollector(context.Background(), bus, coremetrics.NopSink{}, nil)
	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestStartEventCollectorNilBus(t *testing.T) {
	done := StartEventCollector(context.Background(), nil, coremetrics.NopSink{}, nil)
	_, open := <-done
	assert.False(t, open)
}
