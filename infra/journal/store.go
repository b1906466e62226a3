// Package journal persists the simulation event stream as JSON lines so a
// run can be replayed or inspected after it finished.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/kilianp07/fleetsim/core/events"
)

// Record is one journaled event.
type Record struct {
	RunID string          `json:"run_id,omitempty"`
	Tick  int             `json:"tick"`
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

// Query filters records. Zero fields match everything.
type Query struct {
	RunID    string
	Type     string
	FromTick int
	// ToTick bounds the range, inclusive, when positive.
	ToTick    int
	VehicleID string
	// RequestID also matches pooled requests listing it as a member.
	RequestID string
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NewRecord wraps a simulator event.
func NewRecord(runID string, ev any) (Record, error) {
	typ, ok := events.Name(ev)
	if !ok {
		return Record{}, fmt.Errorf("journal: unsupported event %T", ev)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return Record{}, err
	}
	var head struct {
		Tick int `json:"tick"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return Record{}, err
	}
	return Record{RunID: runID, Tick: head.Tick, Type: typ, Event: raw}, nil
}

// subjects are the identifiers an event refers to.
type subjects struct {
	VehicleID string   `json:"vehicle_id"`
	RequestID string   `json:"request_id"`
	PoolID    string   `json:"pool_id"`
	Members   []string `json:"members"`
}

// Match reports whether r satisfies q.
func (q Query) Match(r Record) bool {
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if q.Type != "" && r.Type != q.Type {
		return false
	}
	if r.Tick < q.FromTick || (q.ToTick > 0 && r.Tick > q.ToTick) {
		return false
	}
	if q.VehicleID == "" && q.RequestID == "" {
		return true
	}
	var s subjects
	if err := json.Unmarshal(r.Event, &s); err != nil {
		return false
	}
	if q.VehicleID != "" && s.VehicleID != q.VehicleID {
		return false
	}
	if q.RequestID != "" && s.RequestID != q.RequestID && s.PoolID != q.RequestID &&
		!slices.Contains(s.Members, q.RequestID) {
		return false
	}
	return true
}
