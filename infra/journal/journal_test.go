package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/events"
)

func record(t *testing.T, ev any) Record {
	t.Helper()
	rec, err := NewRecord("run-1", ev)
	require.NoError(t, err)
	return rec
}

func TestNewRecord(t *testing.T) {
	rec := record(t, events.RequestAssigned{Tick: 7, RequestID: "r1", VehicleID: "ev1", Strategy: "direct"})
	assert.Equal(t, "request_assigned", rec.Type)
	assert.Equal(t, 7, rec.Tick)
	assert.Equal(t, "run-1", rec.RunID)
	assert.JSONEq(t, `{"tick":7,"request_id":"r1","vehicle_id":"ev1","strategy":"direct","response_time":0,"pickup_km":0,"trip_km":0}`, string(rec.Event))

	_, err := NewRecord("run-1", struct{}{})
	assert.Error(t, err)
}

func TestQueryMatch(t *testing.T) {
	assigned := record(t, events.RequestAssigned{Tick: 3, RequestID: "pool-1", VehicleID: "ev1", Members: []string{"r1", "r2"}})
	moved := record(t, events.VehicleMoved{Tick: 5, VehicleID: "ice1", From: "A", To: "B"})
	station := record(t, events.StationTransition{Tick: 8, StationID: "S1", Kind: "charge_station", Type: "ForcedFailure"})

	tests := []struct {
		name string
		q    Query
		want []bool
	}{
		{"all", Query{}, []bool{true, true, true}},
		{"type", Query{Type: "vehicle_moved"}, []bool{false, true, false}},
		{"range", Query{FromTick: 4, ToTick: 6}, []bool{false, true, false}},
		{"open range", Query{FromTick: 5}, []bool{false, true, true}},
		{"vehicle", Query{VehicleID: "ev1"}, []bool{true, false, false}},
		{"pool member", Query{RequestID: "r2"}, []bool{true, false, false}},
		{"pool id", Query{RequestID: "pool-1"}, []bool{true, false, false}},
		{"run", Query{RunID: "other"}, []bool{false, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []bool{tt.q.Match(assigned), tt.q.Match(moved), tt.q.Match(station)}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONLStoreAppendQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "journal.jsonl")
	store, err := NewJSONLStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, record(t, events.RequestCreated{Tick: 0, RequestID: "r1", Origin: "A", Dest: "D"})))
	require.NoError(t, store.Append(ctx, record(t, events.RequestCompleted{Tick: 9, RequestID: "r1", VehicleID: "ev1"})))

	out, err := store.Query(ctx, Query{RequestID: "r1"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "request_created", out[0].Type)
	assert.Equal(t, "request_completed", out[1].Type)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Append(ctx, out[0]), os.ErrClosed)

	// a reopened journal keeps appending
	again, err := NewJSONLStore(path)
	require.NoError(t, err)
	defer func() { _ = again.Close() }()
	require.NoError(t, again.Append(ctx, out[1]))
	out, err = Read(ctx, path, Query{})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestReadSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	line, err := json.Marshal(record(t, events.VehicleMoved{Tick: 1, VehicleID: "ev1"}))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("not json\n"+string(line)+"\n"), 0o644))

	out, err := Read(context.Background(), path, Query{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "ev1", mustSubjects(t, out[0]).VehicleID)
}

func TestReadMissingJournal(t *testing.T) {
	out, err := Read(context.Background(), filepath.Join(t.TempDir(), "none.jsonl"), Query{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRotatingStoreRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	store, err := NewRotatingStore(path, 1, 3, 1, false)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	note := strings.Repeat("x", 20*1024)
	ctx := context.Background()
	for i := 0; i < 70; i++ {
		raw := fmt.Sprintf(`{"tick":%d,"vehicle_id":"ev1","note":%q}`, i, note)
		require.NoError(t, store.Append(ctx, Record{Tick: i, Type: "vehicle_moved", Event: json.RawMessage(raw)}))
	}
	backups, err := filepath.Glob(filepath.Join(filepath.Dir(path), "journal-*.jsonl"))
	require.NoError(t, err)
	assert.NotEmpty(t, backups)

	out, err := store.Query(ctx, Query{VehicleID: "ev1"})
	require.NoError(t, err)
	require.Len(t, out, 70)
	for i, rec := range out {
		assert.Equal(t, i, rec.Tick)
	}
}

func TestRotatingStoreExplicitRotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	store, err := NewRotatingStore(path, 10, 2, 1, false)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, record(t, events.VehicleMoved{Tick: 1, VehicleID: "ev1"})))
	require.NoError(t, store.Rotate())
	require.NoError(t, store.Append(ctx, record(t, events.VehicleMoved{Tick: 2, VehicleID: "ev1"})))

	out, err := store.Query(ctx, Query{FromTick: 2})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Tick)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(Config{})
	assert.Error(t, err)
	_, err = Open(Config{Path: filepath.Join(dir, "a.jsonl"), MaxBackups: -1})
	assert.Error(t, err)

	plain, err := Open(Config{Path: filepath.Join(dir, "a.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, plain)
	_ = plain.Close()

	rotating, err := Open(Config{Path: filepath.Join(dir, "b.jsonl"), MaxSizeMB: 5})
	require.NoError(t, err)
	assert.IsType(t, &RotatingStore{}, rotating)
	_ = rotating.Close()
}

func TestSinkAppendsEvents(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "journal.jsonl"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	sink := NewSink(store, "run-7", nil)
	sink.Publish(events.RequestCreated{Tick: 0, RequestID: "r1"})
	sink.Publish("ignored")
	sink.Publish(events.StationTransition{Tick: 2, StationID: "S1", Type: "ForcedFailure"})

	written, failed := sink.Stats()
	assert.Equal(t, uint64(2), written)
	assert.Zero(t, failed)

	out, err := store.Query(context.Background(), Query{RunID: "run-7"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "request_created", out[0].Type)
	assert.Equal(t, "station_transition", out[1].Type)
}

func TestSinkCountsFailures(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "journal.jsonl"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	sink := NewSink(store, "", nil)
	sink.Publish(events.VehicleMoved{Tick: 1, VehicleID: "ev1"})
	sink.Publish(events.VehicleMoved{Tick: 2, VehicleID: "ev1"})
	written, failed := sink.Stats()
	assert.Zero(t, written)
	assert.Equal(t, uint64(2), failed)
}

func mustSubjects(t *testing.T, r Record) subjects {
	t.Helper()
	var s subjects
	require.NoError(t, json.Unmarshal(r.Event, &s))
	return s
}
