package model

import (
	"fmt"
	"math"
)

// CostWeights are the coefficients of the composite dispatch score.
type CostWeights struct {
	Time      float64 `json:"time"`
	Cost      float64 `json:"cost"`
	Emissions float64 `json:"emissions"`
	Rejection float64 `json:"rejection"`
}

// DefaultCostWeights returns 0.4/0.3/0.2/0.1.
func DefaultCostWeights() CostWeights {
	return CostWeights{Time: 0.4, Cost: 0.3, Emissions: 0.2, Rejection: 0.1}
}

// Validate checks that the weights are non-negative and sum to 1.
func (w CostWeights) Validate() error {
	if w.Time < 0 || w.Cost < 0 || w.Emissions < 0 || w.Rejection < 0 {
		return fmt.Errorf("cost weights must be non-negative")
	}
	sum := w.Time + w.Cost + w.Emissions + w.Rejection
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("cost weights sum to %.6f, want 1", sum)
	}
	return nil
}

// IsZero reports whether no weight was set.
func (w CostWeights) IsZero() bool {
	return w == CostWeights{}
}
