package dispatch

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/fleetsim/core/model"
)

// Candidate is an eligible vehicle together with its evaluated legs.
type Candidate struct {
	Vehicle  *model.Vehicle
	Pickup   model.Route
	Trip     model.Route
	PickupKm float64
	TripKm   float64
	// Feasible reports whether the range covers pickup and trip.
	Feasible bool
}

// TotalKm returns the pickup plus trip distance.
func (c *Candidate) TotalKm() float64 { return c.PickupKm + c.TripKm }

// OperatingCost values the whole trip at the vehicle per-km cost.
func (c *Candidate) OperatingCost() float64 { return c.TotalKm() * c.Vehicle.CostPerKm }

// Emissions returns the CO2 in kg emitted over the whole trip.
func (c *Candidate) Emissions() float64 { return c.TotalKm() * c.Vehicle.EmissionKgPerKm() }

// Strategy picks one candidate. Implementations prefer feasible candidates
// and break ties by vehicle id. Select returns nil for an empty slice.
type Strategy interface {
	Name() string
	Select(req *model.Request, cands []*Candidate) *Candidate
}

// NewStrategy returns the strategy named name.
func NewStrategy(name string, cfg Config) (Strategy, error) {
	switch name {
	case StrategyNearest:
		return Nearest{}, nil
	case StrategyComposite:
		return Composite{
			Weights:           cfg.Weights,
			PriorityThreshold: cfg.PriorityThreshold,
			ResponseThreshold: cfg.ResponseThresholdMin,
			PenaltyScale:      cfg.RejectionPenaltyScale,
		}, nil
	case StrategyDeadMileage:
		return DeadMileage{Penalty: cfg.DeadMileagePenalty}, nil
	case StrategyBalanced:
		return Balanced{Weights: cfg.Balanced}, nil
	case StrategyElectricPriority:
		if cfg.Inner == StrategyElectricPriority {
			return nil, fmt.Errorf("dispatch: electric_priority cannot wrap itself")
		}
		inner, err := NewStrategy(cfg.Inner, cfg)
		if err != nil {
			return nil, err
		}
		return ElectricPriority{Inner: inner}, nil
	default:
		return nil, fmt.Errorf("dispatch: unknown strategy %q", name)
	}
}

// pickMin returns the candidate with the lowest score, restricted to the
// feasible ones when there is at least one.
func pickMin(cands []*Candidate, score func(i int) float64) *Candidate {
	if len(cands) == 0 {
		return nil
	}
	anyFeasible := false
	for _, c := range cands {
		if c.Feasible {
			anyFeasible = true
			break
		}
	}
	best := -1
	bestScore := math.Inf(1)
	for i, c := range cands {
		if anyFeasible && !c.Feasible {
			continue
		}
		s := score(i)
		if best < 0 || s < bestScore || (s == bestScore && c.Vehicle.ID < cands[best].Vehicle.ID) {
			best, bestScore = i, s
		}
	}
	return cands[best]
}

// normalize divides every value by the maximum, leaving zeros when the
// maximum is not positive.
func normalize(vals []float64) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out
	}
	max := floats.Max(vals)
	if max <= 0 || math.IsInf(max, 1) {
		return out
	}
	copy(out, vals)
	floats.Scale(1/max, out)
	return out
}

func collect(cands []*Candidate, f func(*Candidate) float64) []float64 {
	out := make([]float64, len(cands))
	for i, c := range cands {
		out[i] = f(c)
	}
	return out
}

// Nearest minimises the pickup cost.
type Nearest struct{}

func (Nearest) Name() string { return StrategyNearest }

func (Nearest) Select(_ *model.Request, cands []*Candidate) *Candidate {
	return pickMin(cands, func(i int) float64 { return cands[i].Pickup.Cost })
}

// Composite minimises a weighted sum of normalised response time, operating
// cost and emissions. Urgent requests served late get a fixed penalty.
type Composite struct {
	Weights           model.CostWeights
	PriorityThreshold int
	ResponseThreshold float64
	PenaltyScale      float64
}

func (Composite) Name() string { return StrategyComposite }

func (s Composite) Select(req *model.Request, cands []*Candidate) *Candidate {
	resp := collect(cands, func(c *Candidate) float64 { return c.Pickup.Cost })
	nt := normalize(resp)
	nc := normalize(collect(cands, (*Candidate).OperatingCost))
	ne := normalize(collect(cands, (*Candidate).Emissions))
	penalty := s.Weights.Rejection * s.PenaltyScale
	return pickMin(cands, func(i int) float64 {
		score := s.Weights.Time*nt[i] + s.Weights.Cost*nc[i] + s.Weights.Emissions*ne[i]
		if req.Priority >= s.PriorityThreshold && resp[i] > s.ResponseThreshold {
			score += penalty
		}
		return score
	})
}

// DeadMileage minimises Penalty times the pickup distance plus the trip
// distance.
type DeadMileage struct {
	Penalty float64
}

func (DeadMileage) Name() string { return StrategyDeadMileage }

func (s DeadMileage) Select(_ *model.Request, cands []*Candidate) *Candidate {
	return pickMin(cands, func(i int) float64 {
		return s.Penalty*cands[i].PickupKm + cands[i].TripKm
	})
}

// Balanced minimises a normalised weighted sum of pickup distance, operating
// cost and emissions.
type Balanced struct {
	Weights BalancedWeights
}

func (Balanced) Name() string { return StrategyBalanced }

func (s Balanced) Select(_ *model.Request, cands []*Candidate) *Candidate {
	np := normalize(collect(cands, func(c *Candidate) float64 { return c.PickupKm }))
	nc := normalize(collect(cands, (*Candidate).OperatingCost))
	ne := normalize(collect(cands, (*Candidate).Emissions))
	return pickMin(cands, func(i int) float64 {
		return s.Weights.Pickup*np[i] + s.Weights.Cost*nc[i] + s.Weights.Emissions*ne[i]
	})
}

// ElectricPriority applies Inner among electric candidates while at least
// one of them is feasible, then among combustion candidates.
type ElectricPriority struct {
	Inner Strategy
}

func (ElectricPriority) Name() string { return StrategyElectricPriority }

func (s ElectricPriority) Select(req *model.Request, cands []*Candidate) *Candidate {
	var electric, combustion []*Candidate
	feasibleEV, feasibleICE := false, false
	for _, c := range cands {
		if c.Vehicle.Type == model.Electric {
			electric = append(electric, c)
			feasibleEV = feasibleEV || c.Feasible
		} else {
			combustion = append(combustion, c)
			feasibleICE = feasibleICE || c.Feasible
		}
	}
	// Direct electric, direct combustion, electric detour, combustion detour.
	switch {
	case feasibleEV:
		return s.Inner.Select(req, electric)
	case feasibleICE:
		return s.Inner.Select(req, combustion)
	case len(electric) > 0:
		return s.Inner.Select(req, electric)
	default:
		return s.Inner.Select(req, combustion)
	}
}

// sortByID orders candidates by vehicle id so every strategy sees the same
// input regardless of fleet order.
func sortByID(cands []*Candidate) {
	sort.Slice(cands, func(i, j int) bool { return cands[i].Vehicle.ID < cands[j].Vehicle.ID })
}
