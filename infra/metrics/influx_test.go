package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/fleetsim/core/events"
)

func TestInfluxSink_RecordAssignment(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket", start, "run-1")
	defer sink.Close()

	ev := events.RequestAssigned{
		Tick: 7, RequestID: "r1", VehicleID: "ev1", Strategy: "nearest",
		ResponseTime: 2, PickupKm: 1.23456, TripKm: 4, Station: "S1",
	}
	if err := sink.RecordAssignment(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("request_assigned").
		AddTag("run_id", "run-1").
		SetTime(start.Add(7*time.Minute)).
		AddTag("request_id", "r1").
		AddTag("vehicle_id", "ev1").
		AddTag("strategy", "nearest").
		AddField("response_min", 2).
		AddField("pickup_km", 1.235).
		AddField("trip_km", 4.0).
		AddField("detour", true).
		SortTags().
		SortFields()
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if strings.TrimSpace(body) != expected {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestInfluxSink_RecordStationEvent(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	start := time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket", start, "")
	defer sink.Close()

	if err := sink.RecordStationEvent(events.StationTransition{
		Tick: 3, StationID: "F1", Kind: "fuel_station", Type: "failure",
	}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	if !strings.HasPrefix(body, "station_transition,") || !strings.Contains(body, "available=false") {
		t.Errorf("unexpected body: %s", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), " "+strconv.FormatInt(start.Add(3*time.Minute).UnixNano(), 10)) {
		t.Errorf("unexpected timestamp: %s", body)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket", time.Now(), "")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
