package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/fleetsim/core/events"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/infra/logger"
)

// InfluxSink writes simulation snapshots to an InfluxDB instance using the
// official client. Ticks are mapped to wall time from start, one minute per
// tick.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	start    time.Time
	runID    string
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string, start time.Time, runID string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		start:    start,
		runID:    runID,
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string, start time.Time, runID string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket, start, runID)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) at(tick int) time.Time {
	return s.start.Add(time.Duration(tick) * time.Minute)
}

func (s *InfluxSink) point(measurement string, tick int) *write.Point {
	p := write.NewPointWithMeasurement(measurement)
	if s.runID != "" {
		p = p.AddTag("run_id", s.runID)
	}
	return p.SetTime(s.at(tick))
}

// RecordTick writes the aggregated metrics and the fleet breakdown.
func (s *InfluxSink) RecordTick(t coremetrics.TickSnapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m := t.Metrics
	p := s.point("simulation_tick", t.Tick).
		AddTag("hour", strconv.Itoa(t.Hour)).
		AddField("requests_total", m.TotalRequests).
		AddField("completed", m.Completed).
		AddField("rejected", m.Rejected).
		AddField("cancelled", m.Cancelled).
		AddField("in_progress", m.InProgress).
		AddField("success_rate", round3(m.SuccessRate)).
		AddField("loaded_km", round3(m.LoadedKm)).
		AddField("empty_km", round3(m.EmptyKm)).
		AddField("operating_cost", round3(m.OperatingCost)).
		AddField("refill_cost", round3(m.RefillCost)).
		AddField("co2_kg", round3(m.CO2Kg)).
		AddField("response_mean", round3(m.ResponseMean))
	points := []*write.Point{p.SortTags().SortFields()}
	if len(t.Fleet) > 0 {
		fp := s.point("fleet_state", t.Tick)
		for state, n := range t.Fleet {
			fp = fp.AddField(state, n)
		}
		points = append(points, fp.SortFields())
	}
	return s.writeAPI.WritePoint(ctx, points...)
}

// RecordStationEvent persists one station transition.
func (s *InfluxSink) RecordStationEvent(e events.StationTransition) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("station_transition", e.Tick).
		AddTag("station_id", e.StationID).
		AddTag("kind", e.Kind).
		AddTag("type", e.Type).
		AddField("available", e.Available)
	return s.writeAPI.WritePoint(ctx, p.SortTags())
}

// RecordAssignment persists one assignment.
func (s *InfluxSink) RecordAssignment(e events.RequestAssigned) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := s.point("request_assigned", e.Tick).
		AddTag("request_id", e.RequestID).
		AddTag("vehicle_id", e.VehicleID).
		AddTag("strategy", e.Strategy).
		AddField("response_min", e.ResponseTime).
		AddField("pickup_km", round3(e.PickupKm)).
		AddField("trip_km", round3(e.TripKm)).
		AddField("detour", e.Station != "")
	return s.writeAPI.WritePoint(ctx, p.SortTags().SortFields())
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
