package metrics

import (
	"errors"

	"github.com/kilianp07/fleetsim/core/events"
)

// FleetStatus counts vehicles per state name.
type FleetStatus map[string]int

// TickSnapshot is handed to sinks at the end of every tick.
type TickSnapshot struct {
	Tick    int
	Hour    int
	Metrics Snapshot
	Fleet   FleetStatus
	// StationAvailability is the percentage of online stations per kind.
	StationAvailability map[string]float64
}

// Sink exports per-tick snapshots.
type Sink interface {
	RecordTick(TickSnapshot) error
}

// StationEventRecorder is implemented by sinks that export station
// transitions individually.
type StationEventRecorder interface {
	RecordStationEvent(events.StationTransition) error
}

// AssignmentRecorder is implemented by sinks that export every assignment.
type AssignmentRecorder interface {
	RecordAssignment(events.RequestAssigned) error
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordTick(TickSnapshot) error { return nil }
func (NopSink) RecordStationEvent(events.StationTransition) error { return nil }
func (NopSink) RecordAssignment(events.RequestAssigned) error { return nil }

// MultiSink fans out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink that forwards to all provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Sinks returns the wrapped sinks.
func (m *MultiSink) Sinks() []Sink { return m.sinks }

func (m *MultiSink) RecordTick(s TickSnapshot) error {
	var errs []error
	for _, sk := range m.sinks {
		if err := sk.RecordTick(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordStationEvent(e events.StationTransition) error {
	var errs []error
	for _, sk := range m.sinks {
		if r, ok := sk.(StationEventRecorder); ok {
			if err := r.RecordStationEvent(e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordAssignment(e events.RequestAssigned) error {
	var errs []error
	for _, sk := range m.sinks {
		if r, ok := sk.(AssignmentRecorder); ok {
			if err := r.RecordAssignment(e); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
