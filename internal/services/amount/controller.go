// Package amount implements the adaptive swap amount controller: a
// deterministic state machine that searches for the smallest viable swap
// size between a user floor and a protocol ceiling.
package amount

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/euclidbot/internal/domain"
	"go.uber.org/zap"
)

// changeEpsilon below which an amount move does not count as an adjustment.
var changeEpsilon = decimal.NewFromFloat(0.001)

// Controller owns the mutable amount state exclusively. It performs no I/O,
// never blocks and never returns errors during normal operation. Not safe
// for concurrent use: it must be driven from a single loop.
type Controller struct {
	cfg        Config
	classifier *domain.Classifier
	logger     *zap.Logger

	currentAmount        decimal.Decimal
	currentPhase         domain.Phase
	incrementAttempts    int
	consecutiveSuccesses int
	lastWorkingAmount    *decimal.Decimal
	optimalAmount        *decimal.Decimal
	totalAdjustments     int
	phaseHistory         []domain.PhaseTransition

	totalSwaps      int
	successfulSwaps int
	failedSwaps     int
	startTime       time.Time
}

// NewController creates a controller for the given config.
func NewController(cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	phase := domain.PhaseAscending
	if cfg.Mode == domain.ModeFixed {
		phase = domain.PhaseFixed
	}

	return &Controller{
		cfg:           cfg,
		classifier:    domain.NewClassifier(),
		logger:        logger,
		currentAmount: cfg.InitialAmount,
		currentPhase:  phase,
		startTime:     time.Now(),
	}
}

// Config returns a copy of the controller settings.
func (c *Controller) Config() Config {
	return c.cfg
}

// CurrentAmount returns the amount to use for the next swap. No side effects.
func (c *Controller) CurrentAmount() decimal.Decimal {
	return c.currentAmount
}

// CurrentPhase returns the controller's search phase.
func (c *Controller) CurrentPhase() domain.Phase {
	return c.currentPhase
}

// OptimalAmount returns the discovered optimal amount, or false if none has
// been declared yet.
func (c *Controller) OptimalAmount() (decimal.Decimal, bool) {
	if c.optimalAmount == nil {
		return decimal.Zero, false
	}
	return *c.optimalAmount, true
}

// ShouldAdjust reports whether the outcome warrants an amount change.
// Successful swaps and fixed mode never adjust; infrastructure errors never
// adjust; unclassified errors follow the configured policy.
func (c *Controller) ShouldAdjust(outcome domain.SwapOutcome) bool {
	if outcome.Success {
		return false
	}
	if c.cfg.Mode == domain.ModeFixed {
		return false
	}

	switch c.classifier.Classify(outcome.ErrorType) {
	case domain.ErrorClassAmountSensitive:
		return true
	case domain.ErrorClassInfrastructure:
		return false
	default:
		if c.cfg.AdjustOnUnknownError {
			c.logger.Warn("unknown error type, assuming amount-sensitive",
				zap.String("error_type", outcome.ErrorType))
		}
		return c.cfg.AdjustOnUnknownError
	}
}

// ProcessResult feeds one swap outcome through the state machine and
// returns the new amount plus whether it changed beyond the epsilon.
func (c *Controller) ProcessResult(outcome domain.SwapOutcome) (decimal.Decimal, bool) {
	c.totalSwaps++
	previous := c.currentAmount

	if outcome.Success {
		c.successfulSwaps++
		c.handleSuccess()
	} else {
		c.failedSwaps++
		c.handleFailure(outcome)
	}

	changed := c.currentAmount.Sub(previous).Abs().GreaterThan(changeEpsilon)
	if changed {
		c.totalAdjustments++
		c.logAdjustment(previous, outcome)
	}

	return c.currentAmount, changed
}

func (c *Controller) handleSuccess() {
	if c.cfg.Mode == domain.ModeFixed {
		return
	}

	switch c.currentPhase {
	case domain.PhaseAscending:
		// working amount found, confirm it
		c.transition(domain.PhaseStable)
		working := c.currentAmount
		c.lastWorkingAmount = &working
		c.consecutiveSuccesses = 1
		c.incrementAttempts = 0

	case domain.PhaseStable:
		c.consecutiveSuccesses++
		if c.consecutiveSuccesses < c.cfg.StabilityThreshold {
			return
		}

		if c.cfg.EnableDescending && c.currentAmount.GreaterThan(c.cfg.MinFloor) {
			c.consecutiveSuccesses = 0
			c.currentAmount = c.clampToFloor(c.currentAmount.Sub(c.cfg.DecrementStep))
			c.transition(domain.PhaseDescending)
		} else {
			// at the floor already or optimization disabled
			c.declareOptimal(c.currentAmount)
		}

	case domain.PhaseDescending:
		c.consecutiveSuccesses++
		working := c.currentAmount
		c.lastWorkingAmount = &working

		if c.consecutiveSuccesses < c.cfg.StabilityThreshold {
			return
		}

		next := c.clampToFloor(c.currentAmount.Sub(c.cfg.DecrementStep))
		if next.LessThan(c.currentAmount) && next.GreaterThanOrEqual(c.cfg.MinFloor) {
			c.currentAmount = next
			c.consecutiveSuccesses = 0
		} else {
			c.declareOptimal(c.currentAmount)
		}
	}
}

func (c *Controller) handleFailure(outcome domain.SwapOutcome) {
	if c.cfg.Mode == domain.ModeFixed {
		return
	}

	if !c.ShouldAdjust(outcome) {
		c.logger.Info("infrastructure error, amount unchanged",
			zap.String("error_type", outcome.ErrorType))
		return
	}

	switch c.currentPhase {
	case domain.PhaseAscending:
		c.incrementAttempts++

		if c.incrementAttempts >= c.cfg.MaxIncrementAttempts {
			if c.currentAmount.GreaterThanOrEqual(c.cfg.MaxCeiling) {
				// ceiling exhausted, retry the range from just below it
				c.currentAmount = c.clampToFloor(c.cfg.MaxCeiling.Sub(c.cfg.DecrementStep))
				c.incrementAttempts = 0
				c.consecutiveSuccesses = 0
				c.transition(domain.PhaseDescending)
			} else {
				c.currentAmount = c.cfg.MaxCeiling
				c.incrementAttempts = 0
			}
			return
		}

		c.currentAmount = c.clampToCeiling(c.currentAmount.Add(c.cfg.IncrementStep))

	case domain.PhaseStable:
		// stability broken, search upward again
		c.transition(domain.PhaseAscending)
		c.consecutiveSuccesses = 0
		c.incrementAttempts = 0

	case domain.PhaseDescending:
		if c.lastWorkingAmount == nil {
			return
		}
		// the floor just tested failed, the previous working value is optimal
		c.currentAmount = *c.lastWorkingAmount
		c.transition(domain.PhaseStable)
		c.consecutiveSuccesses = 0
		c.declareOptimal(c.currentAmount)
	}
}

func (c *Controller) clampToFloor(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(c.cfg.MinFloor) {
		return c.cfg.MinFloor
	}
	return v
}

func (c *Controller) clampToCeiling(v decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(c.cfg.MaxCeiling) {
		return c.cfg.MaxCeiling
	}
	return v
}

func (c *Controller) transition(to domain.Phase) {
	from := c.currentPhase
	c.currentPhase = to
	c.phaseHistory = append(c.phaseHistory, domain.PhaseTransition{
		From:      from,
		To:        to,
		Amount:    c.currentAmount,
		Timestamp: time.Now(),
	})

	c.logger.Info("phase transition",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("amount", c.currentAmount.String()))
}

func (c *Controller) declareOptimal(v decimal.Decimal) {
	optimal := v
	c.optimalAmount = &optimal

	if optimal.LessThan(c.cfg.MaxCeiling) {
		perSwap := c.cfg.MaxCeiling.Sub(optimal)
		c.logger.Info("optimal amount found",
			zap.String("optimal", optimal.String()),
			zap.String("savings_per_swap", perSwap.String()))
	}
}

func (c *Controller) logAdjustment(previous decimal.Decimal, outcome domain.SwapOutcome) {
	fields := []zap.Field{
		zap.String("from", previous.String()),
		zap.String("to", c.currentAmount.String()),
		zap.String("phase", c.currentPhase.String()),
	}
	if !outcome.Success {
		fields = append(fields, zap.String("error_type", outcome.ErrorType))
	}
	c.logger.Info("amount adjusted", fields...)
}

// PhaseHistory returns a copy of recorded phase transitions.
func (c *Controller) PhaseHistory() []domain.PhaseTransition {
	history := make([]domain.PhaseTransition, len(c.phaseHistory))
	copy(history, c.phaseHistory)
	return history
}

// Reset returns the controller to its initial runtime state. Settings are
// untouched.
func (c *Controller) Reset() {
	c.currentAmount = c.cfg.InitialAmount
	if c.cfg.Mode == domain.ModeFixed {
		c.currentPhase = domain.PhaseFixed
	} else {
		c.currentPhase = domain.PhaseAscending
	}
	c.incrementAttempts = 0
	c.consecutiveSuccesses = 0
	c.lastWorkingAmount = nil
	c.optimalAmount = nil
	c.totalAdjustments = 0
	c.phaseHistory = nil
}
