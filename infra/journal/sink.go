package journal

import (
	"context"
	"sync/atomic"

	"github.com/kilianp07/fleetsim/infra/logger"
)

// Sink appends every simulator event to a Store. It is called from the
// simulation loop, so nothing is dropped.
type Sink struct {
	store   Store
	runID   string
	log     logger.Logger
	written atomic.Uint64
	failed  atomic.Uint64
}

func NewSink(store Store, runID string, log logger.Logger) *Sink {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Sink{store: store, runID: runID, log: log}
}

// Publish implements events.Sink.
func (s *Sink) Publish(ev any) {
	rec, err := NewRecord(s.runID, ev)
	if err != nil {
		s.log.Warnf("journal: %v", err)
		return
	}
	if err := s.store.Append(context.Background(), rec); err != nil {
		if s.failed.Add(1) == 1 {
			s.log.Errorf("journal append: %v", err)
		}
		return
	}
	s.written.Add(1)
}

// Stats reports appended and failed records.
func (s *Sink) Stats() (written, failed uint64) {
	return s.written.Load(), s.failed.Load()
}
