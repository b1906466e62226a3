// Package report renders the per-tick history of a run as an HTML page of
// line charts.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/fleetsim/core/factory"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/infra/logger"
)

// Recorder is a metrics sink keeping every tick snapshot. Close renders the
// report to the configured path.
type Recorder struct {
	mu    sync.Mutex
	title string
	path  string
	ticks []coremetrics.TickSnapshot
	log   logger.Logger
}

func New(title, path string) *Recorder {
	if title == "" {
		title = "fleetsim run"
	}
	return &Recorder{title: title, path: path, log: logger.New("report")}
}

// RecordTick implements metrics.Sink.
func (r *Recorder) RecordTick(t coremetrics.TickSnapshot) error {
	fleet := make(coremetrics.FleetStatus, len(t.Fleet))
	for k, v := range t.Fleet {
		fleet[k] = v
	}
	stations := make(map[string]float64, len(t.StationAvailability))
	for k, v := range t.StationAvailability {
		stations[k] = v
	}
	t.Fleet, t.StationAvailability = fleet, stations
	r.mu.Lock()
	r.ticks = append(r.ticks, t)
	r.mu.Unlock()
	return nil
}

// Len returns the number of recorded ticks.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

// WriteHTML renders the charts recorded so far.
func (r *Recorder) WriteHTML(w io.Writer) error {
	r.mu.Lock()
	ticks := append([]coremetrics.TickSnapshot(nil), r.ticks...)
	r.mu.Unlock()

	x := make([]string, len(ticks))
	for i, t := range ticks {
		x[i] = strconv.Itoa(t.Tick)
	}
	page := components.NewPage()
	page.PageTitle = r.title
	page.AddCharts(
		requestsChart(x, ticks),
		fleetChart(x, ticks),
		stationChart(x, ticks),
		distanceChart(x, ticks),
	)
	return page.Render(w)
}

// Close writes the report when a path is configured.
func (r *Recorder) Close() {
	if r.path == "" {
		return
	}
	if err := r.writeFile(); err != nil {
		r.log.Errorf("write report %s: %v", r.path, err)
		return
	}
	r.log.Infof("report written to %s (%d ticks)", r.path, r.Len())
}

func (r *Recorder) writeFile() (err error) {
	f, err := os.Create(r.path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return r.WriteHTML(f)
}

func newLine(title, unit string, x []string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tick"}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit}),
	)
	line.SetXAxis(x)
	return line
}

func series[T int | float64](ticks []coremetrics.TickSnapshot, value func(coremetrics.TickSnapshot) T) []opts.LineData {
	out := make([]opts.LineData, len(ticks))
	for i, t := range ticks {
		out[i] = opts.LineData{Value: value(t)}
	}
	return out
}

func requestsChart(x []string, ticks []coremetrics.TickSnapshot) *charts.Line {
	line := newLine("Requests", "count", x)
	line.AddSeries("pending", series(ticks, func(t coremetrics.TickSnapshot) int { return t.Metrics.Pending })).
		AddSeries("in progress", series(ticks, func(t coremetrics.TickSnapshot) int { return t.Metrics.InProgress })).
		AddSeries("completed", series(ticks, func(t coremetrics.TickSnapshot) int { return t.Metrics.Completed })).
		AddSeries("rejected", series(ticks, func(t coremetrics.TickSnapshot) int { return t.Metrics.Rejected })).
		AddSeries("cancelled", series(ticks, func(t coremetrics.TickSnapshot) int { return t.Metrics.Cancelled }))
	return line
}

func fleetChart(x []string, ticks []coremetrics.TickSnapshot) *charts.Line {
	line := newLine("Fleet states", "vehicles", x)
	for _, state := range keys(ticks, func(t coremetrics.TickSnapshot) []string { return mapKeys(t.Fleet) }) {
		line.AddSeries(state, series(ticks, func(t coremetrics.TickSnapshot) int { return t.Fleet[state] }))
	}
	return line
}

func stationChart(x []string, ticks []coremetrics.TickSnapshot) *charts.Line {
	line := newLine("Station availability", "%", x)
	for _, kind := range keys(ticks, func(t coremetrics.TickSnapshot) []string { return mapKeys(t.StationAvailability) }) {
		line.AddSeries(kind, series(ticks, func(t coremetrics.TickSnapshot) float64 { return t.StationAvailability[kind] }))
	}
	return line
}

func distanceChart(x []string, ticks []coremetrics.TickSnapshot) *charts.Line {
	line := newLine("Distance and emissions", "km / kg", x)
	line.AddSeries("loaded km", series(ticks, func(t coremetrics.TickSnapshot) float64 { return t.Metrics.LoadedKm })).
		AddSeries("empty km", series(ticks, func(t coremetrics.TickSnapshot) float64 { return t.Metrics.EmptyKm })).
		AddSeries("CO2 kg", series(ticks, func(t coremetrics.TickSnapshot) float64 { return t.Metrics.CO2Kg }))
	return line
}

// keys returns the sorted union of the names found in every tick.
func keys(ticks []coremetrics.TickSnapshot, names func(coremetrics.TickSnapshot) []string) []string {
	seen := map[string]bool{}
	for _, t := range ticks {
		for _, n := range names(t) {
			seen[n] = true
		}
	}
	return mapKeys(seen)
}

func mapKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	_ = coremetrics.RegisterSink("report", func(conf map[string]any) (coremetrics.Sink, error) {
		var c struct {
			Path  string `json:"path"`
			Title string `json:"title"`
		}
		if err := factory.DecodeStrict(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("report: path is required")
		}
		return New(c.Title, c.Path), nil
	})
}
