package metrics

import (
	"context"

	"github.com/kilianp07/fleetsim/core/events"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards station
// transitions and assignments to sinks that record them individually.
// It stops when the context is canceled or the bus is closed. The returned
// channel is closed once the collector has exited.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.Sink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	stations, _ := sink.(coremetrics.StationEventRecorder)
	assignments, _ := sink.(coremetrics.AssignmentRecorder)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.StationTransition:
					if stations != nil {
						if err := stations.RecordStationEvent(e); err != nil {
							log.Warnf("record station event: %v", err)
						}
					}
				case events.RequestAssigned:
					if assignments != nil {
						if err := assignments.RecordAssignment(e); err != nil {
							log.Warnf("record assignment: %v", err)
						}
					}
				}
			}
		}
	}()
	return done
}
