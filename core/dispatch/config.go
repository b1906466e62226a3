package dispatch

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/model"
)

// Strategy names.
const (
	StrategyNearest          = "nearest"
	StrategyComposite        = "composite"
	StrategyDeadMileage      = "dead_mileage"
	StrategyBalanced         = "balanced"
	StrategyElectricPriority = "electric_priority"
)

// BalancedWeights are the coefficients of the balanced strategy.
type BalancedWeights struct {
	Pickup    float64 `json:"pickup"`
	Cost      float64 `json:"cost"`
	Emissions float64 `json:"emissions"`
}

// Config defines dispatch-related settings.
type Config struct {
	Strategy string `json:"strategy"`
	// Inner is the strategy applied among the candidates kept by
	// electric_priority.
	Inner string `json:"inner"`

	Weights model.CostWeights `json:"weights"`
	// PriorityThreshold and ResponseThresholdMin trigger the composite
	// rejection penalty, Weights.Rejection times RejectionPenaltyScale.
	PriorityThreshold     int     `json:"priority_threshold"`
	ResponseThresholdMin  float64 `json:"response_threshold_min"`
	RejectionPenaltyScale float64 `json:"rejection_penalty_scale"`

	DeadMileagePenalty float64         `json:"dead_mileage_penalty"`
	Balanced           BalancedWeights `json:"balanced"`

	// RefillFraction is the share of the maximum range added by a detour.
	RefillFraction float64 `json:"refill_fraction"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyNearest
	}
	if c.Inner == "" {
		c.Inner = StrategyNearest
	}
	if c.Weights.IsZero() {
		c.Weights = model.DefaultCostWeights()
	}
	if c.PriorityThreshold == 0 {
		c.PriorityThreshold = 3
	}
	if c.ResponseThresholdMin == 0 {
		c.ResponseThresholdMin = 10
	}
	if c.RejectionPenaltyScale == 0 {
		c.RejectionPenaltyScale = 10
	}
	if c.DeadMileagePenalty == 0 {
		c.DeadMileagePenalty = 2.0
	}
	if c.Balanced == (BalancedWeights{}) {
		c.Balanced = BalancedWeights{Pickup: 0.5, Cost: 0.3, Emissions: 0.2}
	}
	if c.RefillFraction == 0 {
		c.RefillFraction = 0.8
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := NewStrategy(c.Strategy, c); err != nil {
		return err
	}
	if c.Inner == StrategyElectricPriority {
		return fmt.Errorf("dispatch: electric_priority cannot wrap itself")
	}
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if c.RefillFraction <= 0 || c.RefillFraction > 1 {
		return fmt.Errorf("dispatch: refill fraction %.2f outside (0,1]", c.RefillFraction)
	}
	if c.DeadMileagePenalty < 0 {
		return fmt.Errorf("dispatch: negative dead mileage penalty")
	}
	return nil
}
