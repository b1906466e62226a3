// Package failure toggles station availability, either stochastically on a
// cadence or on demand, and keeps an append-only log of every transition.
package failure

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/logger"
)

// Transition is the kind of an availability change.
type Transition string

const (
	Failure        Transition = "failure"
	Recovery       Transition = "recovery"
	ForcedFailure  Transition = "forced_failure"
	ManualRecovery Transition = "manual_recovery"
)

// Record is one entry of the history.
type Record struct {
	Tick      int
	StationID string
	Kind      graph.NodeKind
	Type      Transition
}

// Config controls the stochastic behaviour.
type Config struct {
	Probability         float64 `json:"probability"`
	Cadence             int     `json:"cadence"`
	RecoveryProbability float64 `json:"recovery_probability"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Probability == 0 {
		c.Probability = 0.1
	}
	if c.Cadence == 0 {
		c.Cadence = 1
	}
	if c.RecoveryProbability == 0 {
		c.RecoveryProbability = 0.5
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Probability < 0 || c.Probability > 1 {
		return fmt.Errorf("failure: probability %.2f outside [0,1]", c.Probability)
	}
	if c.RecoveryProbability < 0 || c.RecoveryProbability > 1 {
		return fmt.Errorf("failure: recovery probability %.2f outside [0,1]", c.RecoveryProbability)
	}
	if c.Cadence <= 0 {
		return fmt.Errorf("failure: cadence must be positive")
	}
	return nil
}

// KindAvailability summarises one station kind.
type KindAvailability struct {
	Total     int     `json:"total"`
	Available int     `json:"available"`
	Percent   float64 `json:"percent"`
}

// Availability is a point-in-time view of every station.
type Availability struct {
	Stations map[string]bool             `json:"stations"`
	ByKind   map[string]KindAvailability `json:"by_kind"`
}

// Injector is the only writer of station availability on the graph.
type Injector struct {
	mu      sync.Mutex
	g       *graph.Graph
	rng     *rand.Rand
	cfg     Config
	history []Record
	log     logger.Logger
	onEvent func(Record)
}

// New returns an injector. rng must not be shared with other components.
func New(g *graph.Graph, rng *rand.Rand, cfg Config, log logger.Logger) *Injector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Injector{g: g, rng: rng, cfg: cfg, log: logger.OrNop(log)}
}

// OnTransition registers a callback invoked for every recorded transition.
func (i *Injector) OnTransition(f func(Record)) {
	i.mu.Lock()
	i.onEvent = f
	i.mu.Unlock()
}

func (i *Injector) stations() []graph.Node {
	var out []graph.Node
	for _, n := range i.g.Nodes() {
		if n.Kind.IsStation() {
			out = append(out, n)
		}
	}
	return out
}

// Step rolls every station once when tick falls on the cadence. Offline
// stations recover with RecoveryProbability, online ones fail with
// Probability. Stations are visited in id order.
func (i *Injector) Step(tick int) []Record {
	if i.cfg.Cadence <= 0 || tick%i.cfg.Cadence != 0 {
		return nil
	}
	i.mu.Lock()
	var out []Record
	for _, st := range i.stations() {
		roll := i.rng.Float64()
		switch {
		case !st.Available && roll < i.cfg.RecoveryProbability:
			out = append(out, i.apply(st, true, Recovery, tick))
		case st.Available && roll < i.cfg.Probability:
			out = append(out, i.apply(st, false, Failure, tick))
		}
	}
	cb := i.onEvent
	i.mu.Unlock()
	notify(cb, out)
	return out
}

// ForceFailure takes a station offline. It returns false when the id is not
// a station or the station is already offline.
func (i *Injector) ForceFailure(id string, tick int) bool {
	return i.force(id, false, ForcedFailure, tick)
}

// Recover brings a station back online. It returns false when the id is not
// a station or the station is already online.
func (i *Injector) Recover(id string, tick int) bool {
	return i.force(id, true, ManualRecovery, tick)
}

func (i *Injector) force(id string, available bool, t Transition, tick int) bool {
	st, ok := i.g.Node(id)
	if !ok || !st.Kind.IsStation() || st.Available == available {
		return false
	}
	i.mu.Lock()
	rec := i.apply(st, available, t, tick)
	cb := i.onEvent
	i.mu.Unlock()
	notify(cb, []Record{rec})
	return true
}

func notify(cb func(Record), recs []Record) {
	if cb == nil {
		return
	}
	for _, r := range recs {
		cb(r)
	}
}

func (i *Injector) apply(st graph.Node, available bool, t Transition, tick int) Record {
	i.g.SetAvailable(st.ID, available)
	rec := Record{Tick: tick, StationID: st.ID, Kind: st.Kind, Type: t}
	i.history = append(i.history, rec)
	i.log.Debugw("station transition", map[string]any{
		"tick": tick, "station": st.ID, "type": string(t),
	})
	return rec
}

// History returns a copy of every transition so far.
func (i *Injector) History() []Record {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Record(nil), i.history...)
}

// Snapshot reports availability per station and per kind.
func (i *Injector) Snapshot() Availability {
	return SnapshotOf(i.g)
}

// SnapshotOf reads station availability from g.
func SnapshotOf(g *graph.Graph) Availability {
	a := Availability{Stations: map[string]bool{}, ByKind: map[string]KindAvailability{}}
	for _, n := range g.Nodes() {
		if !n.Kind.IsStation() {
			continue
		}
		a.Stations[n.ID] = n.Available
		k := a.ByKind[n.Kind.String()]
		k.Total++
		if n.Available {
			k.Available++
		}
		k.Percent = 100 * float64(k.Available) / float64(k.Total)
		a.ByKind[n.Kind.String()] = k
	}
	return a
}
