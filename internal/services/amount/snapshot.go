package amount

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/euclidbot/internal/domain"
)

// Snapshot is a flat, serializable copy of the controller's settings and
// runtime state. Persistence encodes it however it likes; the controller
// only deals in values.
type Snapshot struct {
	InitialAmount        decimal.Decimal  `json:"initial_amount"`
	Mode                 domain.Mode      `json:"mode"`
	IncrementStep        decimal.Decimal  `json:"increment_step"`
	DecrementStep        decimal.Decimal  `json:"decrement_step"`
	StabilityThreshold   int              `json:"stability_threshold"`
	MaxIncrementAttempts int              `json:"max_increment_attempts"`
	MaxCeiling           decimal.Decimal  `json:"max_ceiling"`
	MinFloor             decimal.Decimal  `json:"min_floor"`
	EnableDescending     bool             `json:"enable_descending"`
	CurrentAmount        decimal.Decimal  `json:"current_amount"`
	CurrentPhase         string           `json:"current_phase"`
	IncrementAttempts    int              `json:"increment_attempts"`
	ConsecutiveSuccesses int              `json:"consecutive_successes"`
	LastWorkingAmount    *decimal.Decimal `json:"last_working_amount,omitempty"`
	OptimalAmount        *decimal.Decimal `json:"optimal_amount,omitempty"`
	TotalAdjustments     int              `json:"total_adjustments"`
}

// Export produces a value copy of the current state.
func (c *Controller) Export() Snapshot {
	snap := Snapshot{
		InitialAmount:        c.cfg.InitialAmount,
		Mode:                 c.cfg.Mode,
		IncrementStep:        c.cfg.IncrementStep,
		DecrementStep:        c.cfg.DecrementStep,
		StabilityThreshold:   c.cfg.StabilityThreshold,
		MaxIncrementAttempts: c.cfg.MaxIncrementAttempts,
		MaxCeiling:           c.cfg.MaxCeiling,
		MinFloor:             c.cfg.MinFloor,
		EnableDescending:     c.cfg.EnableDescending,
		CurrentAmount:        c.currentAmount,
		CurrentPhase:         c.currentPhase.String(),
		IncrementAttempts:    c.incrementAttempts,
		ConsecutiveSuccesses: c.consecutiveSuccesses,
		TotalAdjustments:     c.totalAdjustments,
	}

	if c.lastWorkingAmount != nil {
		v := *c.lastWorkingAmount
		snap.LastWorkingAmount = &v
	}
	if c.optimalAmount != nil {
		v := *c.optimalAmount
		snap.OptimalAmount = &v
	}

	return snap
}

// Import restores runtime state from a snapshot. Settings stay as
// constructed; out-of-range amounts are clamped so the floor/ceiling
// invariant survives a bad snapshot. Fixed mode ignores everything.
func (c *Controller) Import(snap Snapshot) {
	if c.cfg.Mode == domain.ModeFixed {
		return
	}

	c.currentAmount = c.clampToCeiling(c.clampToFloor(snap.CurrentAmount))
	c.currentPhase = domain.ParsePhase(snap.CurrentPhase)
	if c.currentPhase == domain.PhaseFixed {
		c.currentPhase = domain.PhaseAscending
	}
	c.incrementAttempts = snap.IncrementAttempts
	c.consecutiveSuccesses = snap.ConsecutiveSuccesses
	c.totalAdjustments = snap.TotalAdjustments

	c.lastWorkingAmount = nil
	if snap.LastWorkingAmount != nil {
		v := c.clampToCeiling(c.clampToFloor(*snap.LastWorkingAmount))
		c.lastWorkingAmount = &v
	}
	c.optimalAmount = nil
	if snap.OptimalAmount != nil {
		v := *snap.OptimalAmount
		c.optimalAmount = &v
	}
}

// Stats is an aggregate view of the controller's behaviour so far.
type Stats struct {
	Mode                 domain.Mode      `json:"mode"`
	CurrentPhase         domain.Phase     `json:"current_phase"`
	CurrentAmount        decimal.Decimal  `json:"current_amount"`
	InitialAmount        decimal.Decimal  `json:"initial_amount"`
	OptimalAmount        *decimal.Decimal `json:"optimal_amount,omitempty"`
	TotalSwaps           int              `json:"total_swaps"`
	SuccessfulSwaps      int              `json:"successful_swaps"`
	FailedSwaps          int              `json:"failed_swaps"`
	SuccessRate          decimal.Decimal  `json:"success_rate"`
	TotalAdjustments     int              `json:"total_adjustments"`
	PhaseTransitions     int              `json:"phase_transitions"`
	ConsecutiveSuccesses int              `json:"consecutive_successes"`
	IncrementAttempts    int              `json:"increment_attempts"`
	SavingsPerSwap       decimal.Decimal  `json:"savings_per_swap"`
	UptimeSeconds        int64            `json:"uptime_seconds"`
}

// Stats returns aggregate statistics.
func (c *Controller) Stats() Stats {
	stats := Stats{
		Mode:                 c.cfg.Mode,
		CurrentPhase:         c.currentPhase,
		CurrentAmount:        c.currentAmount,
		InitialAmount:        c.cfg.InitialAmount,
		TotalSwaps:           c.totalSwaps,
		SuccessfulSwaps:      c.successfulSwaps,
		FailedSwaps:          c.failedSwaps,
		TotalAdjustments:     c.totalAdjustments,
		PhaseTransitions:     len(c.phaseHistory),
		ConsecutiveSuccesses: c.consecutiveSuccesses,
		IncrementAttempts:    c.incrementAttempts,
		UptimeSeconds:        int64(time.Since(c.startTime).Seconds()),
	}

	if c.totalSwaps > 0 {
		stats.SuccessRate = decimal.NewFromInt(int64(c.successfulSwaps)).
			Div(decimal.NewFromInt(int64(c.totalSwaps))).
			Mul(decimal.NewFromInt(100)).Round(2)
	}

	if c.optimalAmount != nil {
		v := *c.optimalAmount
		stats.OptimalAmount = &v
		if v.LessThan(c.cfg.MaxCeiling) {
			stats.SavingsPerSwap = c.cfg.MaxCeiling.Sub(v)
		}
	}

	return stats
}
