// Package orchestrator holds exactly one active swap direction at a time
// and switches between the two modules on deterministic triggers.
package orchestrator

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/euclidbot/internal/domain"
	"github.com/vadiminshakov/euclidbot/internal/services/swapper"
	"go.uber.org/zap"
)

const (
	// DefaultSwitchCooldown is the minimum gap between two switches.
	DefaultSwitchCooldown = 5 * time.Second
	// DefaultMaxConsecutiveFailures before a switch is forced.
	DefaultMaxConsecutiveFailures = 3

	// switch reasons beyond the error-type triggers
	reasonConsecutiveFailures = "CONSECUTIVE_FAILURES"
	reasonManualSwitch        = "MANUAL_SWITCH"

	historyCap = 10
)

// immediateSwitchErrors trigger a switch without waiting for the
// consecutive-failure threshold.
var immediateSwitchErrors = map[string]struct{}{
	domain.ErrInsufficientBalance:        {},
	domain.ErrInsufficientReserveBalance: {},
	domain.ErrNoRouteFound:               {},
}

// Orchestrator drives the two direction modules. Not safe for concurrent
// use: it must be called from the single driving loop.
type Orchestrator struct {
	forward swapper.Module
	reverse swapper.Module
	logger  *zap.Logger

	activeDirection        domain.Direction
	consecutiveFailures    int
	maxConsecutiveFailures int
	totalSwitches          int
	lastSwitchTime         time.Time
	switchCooldown         time.Duration
	switchHistory          []domain.SwitchRecord

	totalSwapsExecuted int
	successfulSwaps    int
	failedSwaps        int

	now func() time.Time
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithSwitchCooldown overrides the minimum gap between switches.
func WithSwitchCooldown(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.switchCooldown = d
	}
}

// WithMaxConsecutiveFailures overrides the failure threshold.
func WithMaxConsecutiveFailures(n int) Option {
	return func(o *Orchestrator) {
		o.maxConsecutiveFailures = n
	}
}

// withClock injects a clock for tests.
func withClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator starting with the forward module active.
func New(forward, reverse swapper.Module, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if forward == nil || reverse == nil {
		return nil, errors.New("orchestrator requires both direction modules")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		forward:                forward,
		reverse:                reverse,
		logger:                 logger,
		activeDirection:        domain.DirectionForward,
		maxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		switchCooldown:         DefaultSwitchCooldown,
		now:                    time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// ActiveDirection returns the currently active direction.
func (o *Orchestrator) ActiveDirection() domain.Direction {
	return o.activeDirection
}

func (o *Orchestrator) activeModule() swapper.Module {
	if o.activeDirection == domain.DirectionForward {
		return o.forward
	}
	return o.reverse
}

// ExecuteSwap delegates to the active module and applies the switch rules
// to the result. The returned result always carries switch info and
// aggregate stats.
func (o *Orchestrator) ExecuteSwap(ctx context.Context, amount *decimal.Decimal) domain.SwapResult {
	o.totalSwapsExecuted++

	o.logger.Info("executing swap",
		zap.Int("attempt", o.totalSwapsExecuted),
		zap.String("direction", o.activeDirection.String()))

	result := o.activeModule().ExecuteSwap(ctx, amount)

	if result.Success {
		o.successfulSwaps++
		o.consecutiveFailures = 0
	} else {
		o.failedSwaps++

		if reason, ok := o.switchTrigger(result.ErrorType); ok {
			switched := o.performSwitch(reason)
			result.SwitchTriggered = true
			result.SwitchSuccessful = switched
			result.SwitchReason = reason
			result.NewDirection = o.activeDirection
		}
	}

	result.Orchestrator = o.Stats()
	return result
}

// switchTrigger evaluates the deterministic switch rules for a failure.
func (o *Orchestrator) switchTrigger(errorType string) (string, bool) {
	if _, ok := immediateSwitchErrors[errorType]; ok {
		o.logger.Info("immediate switch triggered", zap.String("error_type", errorType))
		return errorType, true
	}

	o.consecutiveFailures++
	if o.consecutiveFailures >= o.maxConsecutiveFailures {
		o.logger.Info("switch triggered by consecutive failures",
			zap.Int("failures", o.consecutiveFailures))
		return reasonConsecutiveFailures, true
	}

	return "", false
}

// performSwitch flips the active direction unless the cooldown vetoes it.
func (o *Orchestrator) performSwitch(reason string) bool {
	elapsed := o.now().Sub(o.lastSwitchTime)
	if !o.lastSwitchTime.IsZero() && elapsed < o.switchCooldown {
		o.logger.Warn("switch blocked by cooldown",
			zap.Duration("remaining", o.switchCooldown-elapsed))
		return false
	}

	from := o.activeDirection
	o.activeDirection = from.Opposite()
	o.totalSwitches++
	o.lastSwitchTime = o.now()
	o.consecutiveFailures = 0

	o.switchHistory = append(o.switchHistory, domain.SwitchRecord{
		SwitchNumber: o.totalSwitches,
		From:         from,
		To:           o.activeDirection,
		Reason:       reason,
		Timestamp:    o.lastSwitchTime,
	})
	if len(o.switchHistory) > historyCap {
		o.switchHistory = o.switchHistory[len(o.switchHistory)-historyCap:]
	}

	o.logger.Info("direction switched",
		zap.Int("switch_number", o.totalSwitches),
		zap.String("from", from.String()),
		zap.String("to", o.activeDirection.String()),
		zap.String("reason", reason))

	return true
}

// ManualSwitch flips the direction on demand, honoring the same cooldown.
func (o *Orchestrator) ManualSwitch() bool {
	return o.performSwitch(reasonManualSwitch)
}

// Stats returns orchestrator-level aggregates.
func (o *Orchestrator) Stats() domain.OrchestratorStats {
	stats := domain.OrchestratorStats{
		ActiveDirection:     o.activeDirection,
		TotalSwapsExecuted:  o.totalSwapsExecuted,
		SuccessfulSwaps:     o.successfulSwaps,
		FailedSwaps:         o.failedSwaps,
		TotalSwitches:       o.totalSwitches,
		ConsecutiveFailures: o.consecutiveFailures,
	}

	if o.totalSwapsExecuted > 0 {
		stats.SuccessRate = decimal.NewFromInt(int64(o.successfulSwaps)).
			Div(decimal.NewFromInt(int64(o.totalSwapsExecuted))).
			Mul(decimal.NewFromInt(100)).Round(2)
	}

	return stats
}

// SwitchHistory returns a copy of the bounded switch history.
func (o *Orchestrator) SwitchHistory() []domain.SwitchRecord {
	history := make([]domain.SwitchRecord, len(o.switchHistory))
	copy(history, o.switchHistory)
	return history
}
