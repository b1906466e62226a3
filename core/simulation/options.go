package simulation

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/failure"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/rideshare"
	"github.com/kilianp07/fleetsim/core/search"
)

// Options selects the strategies and features of a run.
type Options struct {
	Search           string  `json:"search"`
	Heuristic        string  `json:"heuristic"`
	TopSpeedKmPerMin float64 `json:"top_speed_km_per_min"`

	Dispatch dispatch.Config `json:"dispatch"`

	Traffic       bool `json:"traffic"`
	Failures      bool `json:"failures"`
	RideSharing   bool `json:"ride_sharing"`
	Repositioning bool `json:"repositioning"`

	// DurationMinutes is the last tick of the run, inclusive.
	DurationMinutes int `json:"duration_minutes"`
	StartHour       int `json:"start_hour"`

	Failure failure.Config   `json:"failure"`
	Pooling rideshare.Config `json:"pooling"`

	// SettleMinutes is the delay between creation and the first dispatch
	// attempt.
	SettleMinutes     int     `json:"settle_minutes"`
	LowRangeThreshold float64 `json:"low_range_threshold"`
	RepositionEvery   int     `json:"reposition_every"`
	LookaheadMinutes  int     `json:"lookahead_minutes"`

	Seed int64 `json:"seed"`
	// HoldWhenBusy keeps unmatched requests pending while a capable vehicle
	// is busy, instead of rejecting them.
	HoldWhenBusy bool `json:"hold_when_busy"`
}

// SetDefaults fills unset fields.
func (o *Options) SetDefaults() {
	if o.Search == "" {
		o.Search = string(search.AStar)
	}
	if o.Heuristic == "" {
		o.Heuristic = "simple"
	}
	if o.TopSpeedKmPerMin == 0 {
		o.TopSpeedKmPerMin = search.DefaultTopSpeed
	}
	o.Dispatch.SetDefaults()
	if o.DurationMinutes == 0 {
		o.DurationMinutes = 180
	}
	o.Failure.SetDefaults()
	o.Pooling.SetDefaults()
	if o.SettleMinutes == 0 {
		o.SettleMinutes = 2
	}
	if o.LowRangeThreshold == 0 {
		o.LowRangeThreshold = 0.2
	}
	if o.RepositionEvery == 0 {
		o.RepositionEvery = 15
	}
	if o.LookaheadMinutes == 0 {
		o.LookaheadMinutes = 30
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if _, err := search.ParseKind(o.Search); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if o.Heuristic != "simple" && o.Heuristic != "advanced" {
		return fmt.Errorf("simulation: unknown heuristic %q", o.Heuristic)
	}
	if o.TopSpeedKmPerMin <= 0 {
		return fmt.Errorf("simulation: top speed must be positive")
	}
	if err := o.Dispatch.Validate(); err != nil {
		return err
	}
	if o.DurationMinutes < 0 {
		return fmt.Errorf("simulation: negative duration")
	}
	if o.StartHour < 0 || o.StartHour > 23 {
		return fmt.Errorf("simulation: start hour %d outside [0,23]", o.StartHour)
	}
	if err := o.Failure.Validate(); err != nil {
		return err
	}
	if err := o.Pooling.Validate(); err != nil {
		return err
	}
	if o.SettleMinutes < 0 {
		return fmt.Errorf("simulation: negative settle delay")
	}
	if o.LowRangeThreshold < 0 || o.LowRangeThreshold > 1 {
		return fmt.Errorf("simulation: low range threshold %.2f outside [0,1]", o.LowRangeThreshold)
	}
	if o.RepositionEvery <= 0 || o.LookaheadMinutes <= 0 {
		return fmt.Errorf("simulation: reposition cadence and lookahead must be positive")
	}
	return nil
}

// Option customises a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) { s.log = logger.OrNop(l) }
}

// WithSink forwards every event to sink in addition to the aggregator.
func WithSink(sink events.Sink) Option {
	return func(s *Simulator) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithExporter hands a snapshot to exp at the end of every tick.
func WithExporter(exp metrics.Sink) Option {
	return func(s *Simulator) {
		if exp != nil {
			s.exporter = exp
		}
	}
}

// WithRand replaces the generator seeded from Options.Seed.
func WithRand(rng *rand.Rand) Option {
	return func(s *Simulator) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// WithPacing makes Run wait d between ticks.
func WithPacing(d time.Duration) Option {
	return func(s *Simulator) { s.pace = d }
}

// WithTickHook registers f to run before every tick, outside the simulator
// lock, so it may call ForceStationFailure, RecoverStation or block roads.
func WithTickHook(f func(tick int)) Option {
	return func(s *Simulator) {
		if f != nil {
			s.hooks = append(s.hooks, f)
		}
	}
}
