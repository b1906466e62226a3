package model

import (
	"fmt"
	"math"

	"github.com/kilianp07/fleetsim/core/graph"
)

// VehicleType selects the energy variant of a vehicle.
type VehicleType int

const (
	Electric VehicleType = iota
	Combustion
)

func (t VehicleType) String() string {
	if t == Combustion {
		return "combustion"
	}
	return "electric"
}

// ParseVehicleType converts the textual type used in scenario files.
func ParseVehicleType(s string) (VehicleType, error) {
	switch s {
	case "electric", "ev":
		return Electric, nil
	case "combustion", "ice":
		return Combustion, nil
	default:
		return Electric, fmt.Errorf("unknown vehicle type %q", s)
	}
}

// VehicleState is the lifecycle state of a vehicle.
type VehicleState int

const (
	Available VehicleState = iota
	EnRoute
	InService
	Charging
	Refueling
	Unavailable
)

func (s VehicleState) String() string {
	switch s {
	case Available:
		return "available"
	case EnRoute:
		return "en_route"
	case InService:
		return "in_service"
	case Charging:
		return "charging"
	case Refueling:
		return "refueling"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

var vehicleTransitions = map[VehicleState][]VehicleState{
	Available:   {EnRoute, Charging, Refueling, Unavailable},
	EnRoute:     {InService, Charging, Refueling, Available, Unavailable},
	InService:   {Available, Unavailable},
	Charging:    {Available, EnRoute, Unavailable},
	Refueling:   {Available, EnRoute, Unavailable},
	Unavailable: {Available},
}

// Energy prices used to value a refill.
const (
	ElectricityPricePerKWh = 0.20
	FuelCostPerKm          = 0.10
)

// Capability describes what a vehicle type needs from the network.
type Capability struct {
	Station           graph.NodeKind
	RefillState       VehicleState
	FullRefillMinutes float64 // used when the variant leaves it unset
	EmissionKgPerKm   float64 // used when the variant leaves it unset
	MinRefillFraction float64
}

var capabilities = map[VehicleType]Capability{
	Electric: {
		Station:           graph.ChargeStation,
		RefillState:       Charging,
		FullRefillMinutes: 30,
		EmissionKgPerKm:   0,
		MinRefillFraction: 0.2,
	},
	Combustion: {
		Station:           graph.FuelStation,
		RefillState:       Refueling,
		FullRefillMinutes: 5,
		EmissionKgPerKm:   0.12,
		MinRefillFraction: 0.2,
	},
}

// CapabilityOf returns the capability entry of a vehicle type.
func CapabilityOf(t VehicleType) Capability { return capabilities[t] }

// ElectricSpec holds battery-electric parameters.
type ElectricSpec struct {
	BatteryKWh          float64
	ConsumptionKWhPerKm float64
	RechargeMinutes     float64
}

// CombustionSpec holds combustion-engine parameters.
type CombustionSpec struct {
	RefuelMinutes float64
	CO2KgPerKm    float64
}

// StopKind identifies why a vehicle stops on its route.
type StopKind int

const (
	StopStation StopKind = iota
	StopPickup
	StopDropoff
	StopReposition
)

func (k StopKind) String() string {
	switch k {
	case StopStation:
		return "station"
	case StopPickup:
		return "pickup"
	case StopDropoff:
		return "dropoff"
	default:
		return "reposition"
	}
}

// Stop is a point of interest on the current route. Index refers to the
// position of Node in Vehicle.Route.
type Stop struct {
	Kind  StopKind
	Node  string
	Index int
}

// Vehicle is a fleet member. Only one of Electric and Combustion is set,
// matching Type.
type Vehicle struct {
	ID        string
	Type      VehicleType
	Node      string
	Range     float64 // km
	MaxRange  float64 // km
	Capacity  int
	CostPerKm float64

	TotalKm float64
	EmptyKm float64

	Route    []string
	RouteIdx int
	Stops    []Stop

	State      VehicleState
	RequestID  string
	Passengers int

	// RefillTicks counts the minutes left at a station.
	RefillTicks int

	Electric   *ElectricSpec
	Combustion *CombustionSpec
}

// NewElectric returns an electric vehicle starting full.
func NewElectric(id, node string, maxRange float64, capacity int, costPerKm float64, spec ElectricSpec) *Vehicle {
	s := spec
	return &Vehicle{ID: id, Type: Electric, Node: node, Range: maxRange, MaxRange: maxRange,
		Capacity: capacity, CostPerKm: costPerKm, Electric: &s}
}

// NewCombustion returns a combustion vehicle starting full.
func NewCombustion(id, node string, maxRange float64, capacity int, costPerKm float64, spec CombustionSpec) *Vehicle {
	s := spec
	return &Vehicle{ID: id, Type: Combustion, Node: node, Range: maxRange, MaxRange: maxRange,
		Capacity: capacity, CostPerKm: costPerKm, Combustion: &s}
}

// Validate checks the seeding invariants of the vehicle.
func (v *Vehicle) Validate() error {
	switch {
	case v.ID == "":
		return fmt.Errorf("%w: id is required", ErrInvalidVehicle)
	case v.Node == "":
		return fmt.Errorf("%w: %s has no starting node", ErrInvalidVehicle, v.ID)
	case v.MaxRange <= 0 || v.Range <= 0 || v.Range > v.MaxRange:
		return fmt.Errorf("%w: %s range %.2f outside (0, %.2f]", ErrInvalidVehicle, v.ID, v.Range, v.MaxRange)
	case v.Capacity <= 0:
		return fmt.Errorf("%w: %s capacity must be positive", ErrInvalidVehicle, v.ID)
	case v.CostPerKm < 0:
		return fmt.Errorf("%w: %s negative cost per km", ErrInvalidVehicle, v.ID)
	}
	return nil
}

// Capability returns the capability entry of the vehicle type.
func (v *Vehicle) Capability() Capability { return capabilities[v.Type] }

// StationKind returns the station kind the vehicle can refill at.
func (v *Vehicle) StationKind() graph.NodeKind { return v.Capability().Station }

// RefillMinutes returns the duration of a full refill.
func (v *Vehicle) RefillMinutes() float64 {
	switch {
	case v.Type == Electric && v.Electric != nil && v.Electric.RechargeMinutes > 0:
		return v.Electric.RechargeMinutes
	case v.Type == Combustion && v.Combustion != nil && v.Combustion.RefuelMinutes > 0:
		return v.Combustion.RefuelMinutes
	}
	return v.Capability().FullRefillMinutes
}

// EmissionKgPerKm returns the tailpipe CO2 factor.
func (v *Vehicle) EmissionKgPerKm() float64 {
	if v.Type == Combustion && v.Combustion != nil && v.Combustion.CO2KgPerKm > 0 {
		return v.Combustion.CO2KgPerKm
	}
	return v.Capability().EmissionKgPerKm
}

// RefillCost values km of added range.
func (v *Vehicle) RefillCost(km float64) float64 {
	if v.Type == Electric {
		consumption := 0.15
		if v.Electric != nil && v.Electric.ConsumptionKWhPerKm > 0 {
			consumption = v.Electric.ConsumptionKWhPerKm
		}
		return km * consumption * ElectricityPricePerKWh
	}
	return km * FuelCostPerKm
}

// CanReach reports whether the remaining range covers km.
func (v *Vehicle) CanReach(km float64) bool { return v.Range >= km }

// CanCarry reports whether n passengers fit.
func (v *Vehicle) CanCarry(n int) bool { return v.Capacity >= n }

// RangeRatio returns the remaining range as a fraction of the maximum.
func (v *Vehicle) RangeRatio() float64 {
	if v.MaxRange <= 0 {
		return 0
	}
	return v.Range / v.MaxRange
}

// CanTransition reports whether the state machine allows moving to s.
func (v *Vehicle) CanTransition(s VehicleState) bool {
	for _, allowed := range vehicleTransitions[v.State] {
		if allowed == s {
			return true
		}
	}
	return false
}

// Transition moves the vehicle to s.
func (v *Vehicle) Transition(s VehicleState) error {
	if !v.CanTransition(s) {
		return fmt.Errorf("%w: vehicle %s %s -> %s", ErrInvalidTransition, v.ID, v.State, s)
	}
	v.State = s
	return nil
}

// Move consumes range for km and accrues distance. Range is clamped at 0.
// It returns the operating cost and the emitted CO2 in kg.
func (v *Vehicle) Move(km float64) (cost, co2 float64) {
	if km <= 0 {
		return 0, 0
	}
	v.Range = math.Max(0, math.Min(v.MaxRange, v.Range-km))
	v.TotalKm += km
	if v.Passengers == 0 {
		v.EmptyKm += km
	}
	return km * v.CostPerKm, km * v.EmissionKgPerKm()
}

// Replenish refills fraction of the maximum range at station. The station
// must serve the vehicle type and be online. It returns the range added and
// its cost.
func (v *Vehicle) Replenish(station graph.Node, fraction float64) (addedKm, cost float64, err error) {
	if station.Kind != v.StationKind() {
		return 0, 0, fmt.Errorf("%w: %s is a %s, vehicle %s needs a %s",
			ErrStationUnavailable, station.ID, station.Kind, v.ID, v.StationKind())
	}
	if !station.Available {
		return 0, 0, fmt.Errorf("%w: %s offline", ErrStationUnavailable, station.ID)
	}
	if v.Node != station.ID {
		return 0, 0, fmt.Errorf("%w: vehicle %s is at %s, not %s", ErrStationUnavailable, v.ID, v.Node, station.ID)
	}
	if fraction <= 0 || fraction > 1 {
		fraction = 1
	}
	addedKm = math.Min(v.MaxRange-v.Range, fraction*v.MaxRange)
	if addedKm < 0 {
		addedKm = 0
	}
	v.Range += addedKm
	return addedKm, v.RefillCost(addedKm), nil
}

// RefillDuration returns the whole minutes needed to add km of range.
func (v *Vehicle) RefillDuration(km float64) int {
	if v.MaxRange <= 0 || km <= 0 {
		return 0
	}
	d := int(math.Ceil(v.RefillMinutes() * km / v.MaxRange))
	if d < 1 {
		d = 1
	}
	return d
}

// Assign sets a new route with its stops, starting at the vehicle position.
func (v *Vehicle) Assign(route []string, stops []Stop, requestID string) {
	v.Route = append([]string(nil), route...)
	v.RouteIdx = 0
	v.Stops = append([]Stop(nil), stops...)
	v.RequestID = requestID
}

// ClearRoute drops the current plan.
func (v *Vehicle) ClearRoute() {
	v.Route = nil
	v.RouteIdx = 0
	v.Stops = nil
	v.RequestID = ""
}

// NextNode returns the node after the current position on the route.
func (v *Vehicle) NextNode() (string, bool) {
	if v.RouteIdx+1 >= len(v.Route) {
		return "", false
	}
	return v.Route[v.RouteIdx+1], true
}

// NextStop returns the first pending stop.
func (v *Vehicle) NextStop() (Stop, bool) {
	if len(v.Stops) == 0 {
		return Stop{}, false
	}
	return v.Stops[0], true
}

// PopStop removes the first pending stop.
func (v *Vehicle) PopStop() {
	if len(v.Stops) > 0 {
		v.Stops = v.Stops[1:]
	}
}

// RemainingRoute returns the route from the current position to the end.
func (v *Vehicle) RemainingRoute() []string {
	if v.RouteIdx >= len(v.Route) {
		return nil
	}
	return v.Route[v.RouteIdx:]
}

// Idle reports whether the vehicle can take a new request.
func (v *Vehicle) Idle() bool { return v.State == Available && v.RequestID == "" }
