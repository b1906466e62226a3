// Package scenarios loads YAML scenario files describing a road network, a
// fleet, a request schedule and scripted incidents, and runs them through
// the simulator.
package scenarios

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fleetsim/core/factory"
	"github.com/kilianp07/fleetsim/core/graph"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/simulation"
)

// ErrInvalidScenario wraps every structural problem found while building.
var ErrInvalidScenario = errors.New("invalid scenario")

type NodeDef struct {
	ID   string  `yaml:"id"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Kind string  `yaml:"kind,omitempty"`
	Zone string  `yaml:"zone,omitempty"`
}

type EdgeDef struct {
	From    string  `yaml:"from"`
	To      string  `yaml:"to"`
	Km      float64 `yaml:"km"`
	Minutes float64 `yaml:"minutes"`
}

type VehicleDef struct {
	ID        string  `yaml:"id"`
	Type      string  `yaml:"type"`
	Node      string  `yaml:"node"`
	MaxRange  float64 `yaml:"max_range_km"`
	Range     float64 `yaml:"range_km,omitempty"`
	Capacity  int     `yaml:"capacity"`
	CostPerKm float64 `yaml:"cost_per_km"`

	BatteryKWh          float64 `yaml:"battery_kwh,omitempty"`
	ConsumptionKWhPerKm float64 `yaml:"consumption_kwh_per_km,omitempty"`
	RechargeMinutes     float64 `yaml:"recharge_minutes,omitempty"`
	RefuelMinutes       float64 `yaml:"refuel_minutes,omitempty"`
	CO2KgPerKm          float64 `yaml:"co2_kg_per_km,omitempty"`
}

// ToModel builds the vehicle. A zero Range means a full tank.
func (v VehicleDef) ToModel() (*model.Vehicle, error) {
	t, err := model.ParseVehicleType(v.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: vehicle %s: %v", ErrInvalidScenario, v.ID, err)
	}
	var veh *model.Vehicle
	switch t {
	case model.Electric:
		veh = model.NewElectric(v.ID, v.Node, v.MaxRange, v.Capacity, v.CostPerKm, model.ElectricSpec{
			BatteryKWh:          v.BatteryKWh,
			ConsumptionKWhPerKm: v.ConsumptionKWhPerKm,
			RechargeMinutes:     v.RechargeMinutes,
		})
	default:
		veh = model.NewCombustion(v.ID, v.Node, v.MaxRange, v.Capacity, v.CostPerKm, model.CombustionSpec{
			RefuelMinutes: v.RefuelMinutes,
			CO2KgPerKm:    v.CO2KgPerKm,
		})
	}
	if v.Range > 0 {
		veh.Range = v.Range
	}
	return veh, nil
}

type RequestDef struct {
	ID          string `yaml:"id"`
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
	Passengers  int    `yaml:"passengers"`
	At          int    `yaml:"at"`
	Priority    int    `yaml:"priority,omitempty"`
	Preference  string `yaml:"preference,omitempty"`
	MaxWait     int    `yaml:"max_wait,omitempty"`
}

func (r RequestDef) ToModel() (*model.Request, error) {
	return model.NewRequest(model.RequestSpec{
		ID:          r.ID,
		Origin:      r.Origin,
		Destination: r.Destination,
		Passengers:  r.Passengers,
		CreatedAt:   r.At,
		Priority:    r.Priority,
		Preference:  r.Preference,
		MaxWait:     r.MaxWait,
	})
}

// Incident is a scripted change applied before the given tick. Action is
// one of fail_station, recover_station, recover_vehicle, block or unblock;
// block and unblock take the edge endpoints in From and To.
type Incident struct {
	At      int    `yaml:"at"`
	Action  string `yaml:"action"`
	Station string `yaml:"station,omitempty"`
	Vehicle string `yaml:"vehicle,omitempty"`
	From    string `yaml:"from,omitempty"`
	To      string `yaml:"to,omitempty"`
}

func (i Incident) validate() error {
	switch i.Action {
	case "fail_station", "recover_station":
		if i.Station == "" {
			return fmt.Errorf("%w: %s at %d needs a station", ErrInvalidScenario, i.Action, i.At)
		}
	case "recover_vehicle":
		if i.Vehicle == "" {
			return fmt.Errorf("%w: %s at %d needs a vehicle", ErrInvalidScenario, i.Action, i.At)
		}
	case "block", "unblock":
		if i.From == "" || i.To == "" {
			return fmt.Errorf("%w: %s at %d needs from and to", ErrInvalidScenario, i.Action, i.At)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidScenario, i.Action)
	}
	if i.At < 0 {
		return fmt.Errorf("%w: negative incident tick", ErrInvalidScenario)
	}
	return nil
}

// Expected holds optional outcome checks. Nil fields are not checked.
type Expected struct {
	Completed *int `yaml:"completed,omitempty"`
	Rejected  *int `yaml:"rejected,omitempty"`
	Cancelled *int `yaml:"cancelled,omitempty"`
	Refills   *int `yaml:"refills,omitempty"`
}

type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Nodes       []NodeDef      `yaml:"nodes"`
	Edges       []EdgeDef      `yaml:"edges"`
	Vehicles    []VehicleDef   `yaml:"vehicles"`
	Requests    []RequestDef   `yaml:"requests"`
	Incidents   []Incident     `yaml:"incidents,omitempty"`
	Options     map[string]any `yaml:"options,omitempty"`
	Expected    Expected       `yaml:"expected,omitempty"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a scenario document and checks its incidents.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	for _, inc := range sc.Incidents {
		if err := inc.validate(); err != nil {
			return nil, err
		}
	}
	return &sc, nil
}

// ApplyOptions overlays the scenario's option overrides on opts. Keys use
// the same names as the configuration file.
func (sc *Scenario) ApplyOptions(opts *simulation.Options) error {
	if len(sc.Options) == 0 {
		return nil
	}
	if err := factory.DecodeStrict(sc.Options, opts); err != nil {
		return fmt.Errorf("%w: options: %v", ErrInvalidScenario, err)
	}
	return nil
}

// Graph builds the road network.
func (sc *Scenario) Graph() (*graph.Graph, error) {
	g := graph.New()
	for _, n := range sc.Nodes {
		kind, err := graph.ParseNodeKind(n.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalidScenario, n.ID, err)
		}
		zone, err := graph.ParseZoneClass(n.Zone)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrInvalidScenario, n.ID, err)
		}
		if err := g.AddNode(graph.Node{ID: n.ID, X: n.X, Y: n.Y, Kind: kind, Zone: zone}); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
		}
	}
	for _, e := range sc.Edges {
		if err := g.AddEdge(e.From, e.To, e.Km, e.Minutes); err != nil {
			return nil, fmt.Errorf("%w: edge %s-%s: %v", ErrInvalidScenario, e.From, e.To, err)
		}
	}
	return g, nil
}

// Fleet builds the vehicles.
func (sc *Scenario) Fleet() ([]*model.Vehicle, error) {
	out := make([]*model.Vehicle, 0, len(sc.Vehicles))
	for _, v := range sc.Vehicles {
		veh, err := v.ToModel()
		if err != nil {
			return nil, err
		}
		out = append(out, veh)
	}
	return out, nil
}

// Schedule builds the requests.
func (sc *Scenario) Schedule() ([]*model.Request, error) {
	out := make([]*model.Request, 0, len(sc.Requests))
	for _, r := range sc.Requests {
		req, err := r.ToModel()
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}
