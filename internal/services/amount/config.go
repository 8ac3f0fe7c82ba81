package amount

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/euclidbot/internal/domain"
)

var (
	defaultStep    = decimal.NewFromFloat(0.1)
	defaultCeiling = decimal.NewFromInt(1)
	fixedModeEdge  = decimal.NewFromInt(1)
	minInitial     = decimal.NewFromFloat(0.1)
	maxStep        = decimal.NewFromFloat(0.5)
)

const (
	defaultStabilityThreshold   = 5
	defaultMaxIncrementAttempts = 5
)

// Config holds the amount controller settings. All fields are immutable
// after construction; runtime state lives in the Controller.
type Config struct {
	InitialAmount        decimal.Decimal
	Mode                 domain.Mode
	IncrementStep        decimal.Decimal
	DecrementStep        decimal.Decimal
	StabilityThreshold   int
	MaxIncrementAttempts int
	MaxCeiling           decimal.Decimal
	MinFloor             decimal.Decimal
	EnableDescending     bool

	// AdjustOnUnknownError keeps the conservative default of treating
	// unclassified errors as amount-sensitive. Overridable on purpose.
	AdjustOnUnknownError bool
}

// Option configures optional Config fields.
type Option func(*Config)

// WithIncrementStep sets the step used when searching upward.
func WithIncrementStep(step decimal.Decimal) Option {
	return func(c *Config) {
		c.IncrementStep = step
	}
}

// WithDecrementStep sets the step used when searching downward.
func WithDecrementStep(step decimal.Decimal) Option {
	return func(c *Config) {
		c.DecrementStep = step
	}
}

// WithStabilityThreshold sets how many consecutive successes are required
// before a smaller amount is attempted.
func WithStabilityThreshold(n int) Option {
	return func(c *Config) {
		c.StabilityThreshold = n
	}
}

// WithMaxIncrementAttempts sets how many failures are tolerated while
// ascending before the amount is forced to the ceiling.
func WithMaxIncrementAttempts(n int) Option {
	return func(c *Config) {
		c.MaxIncrementAttempts = n
	}
}

// WithMaxCeiling overrides the protocol ceiling.
func WithMaxCeiling(ceiling decimal.Decimal) Option {
	return func(c *Config) {
		c.MaxCeiling = ceiling
	}
}

// WithDescending enables or disables the descending optimization phase.
func WithDescending(enabled bool) Option {
	return func(c *Config) {
		c.EnableDescending = enabled
	}
}

// WithAdjustOnUnknownError overrides the policy for unclassified errors.
func WithAdjustOnUnknownError(adjust bool) Option {
	return func(c *Config) {
		c.AdjustOnUnknownError = adjust
	}
}

// NewConfig creates a validated Config. The mode is derived from the
// initial amount: values >= 1.0 run fixed, smaller values run adaptive with
// the initial amount as a floor that is never violated.
func NewConfig(initialAmount decimal.Decimal, opts ...Option) (Config, error) {
	cfg := Config{
		InitialAmount:        initialAmount,
		IncrementStep:        defaultStep,
		DecrementStep:        defaultStep,
		StabilityThreshold:   defaultStabilityThreshold,
		MaxIncrementAttempts: defaultMaxIncrementAttempts,
		MaxCeiling:           defaultCeiling,
		MinFloor:             initialAmount,
		EnableDescending:     true,
		AdjustOnUnknownError: true,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if initialAmount.LessThan(minInitial) {
		return Config{}, fmt.Errorf("initialAmount must be at least %s, got %s", minInitial.String(), initialAmount.String())
	}
	if cfg.IncrementStep.LessThanOrEqual(decimal.Zero) || cfg.IncrementStep.GreaterThan(maxStep) {
		return Config{}, fmt.Errorf("incrementStep must be in (0, %s], got %s", maxStep.String(), cfg.IncrementStep.String())
	}
	if cfg.DecrementStep.LessThanOrEqual(decimal.Zero) || cfg.DecrementStep.GreaterThan(maxStep) {
		return Config{}, fmt.Errorf("decrementStep must be in (0, %s], got %s", maxStep.String(), cfg.DecrementStep.String())
	}
	if cfg.StabilityThreshold < 1 || cfg.StabilityThreshold > 20 {
		return Config{}, fmt.Errorf("stabilityThreshold must be between 1 and 20, got %d", cfg.StabilityThreshold)
	}
	if cfg.MaxIncrementAttempts < 1 || cfg.MaxIncrementAttempts > 10 {
		return Config{}, fmt.Errorf("maxIncrementAttempts must be between 1 and 10, got %d", cfg.MaxIncrementAttempts)
	}
	if initialAmount.GreaterThanOrEqual(fixedModeEdge) {
		cfg.Mode = domain.ModeFixed
	} else {
		cfg.Mode = domain.ModeAdaptive
	}

	// ceiling only constrains the adaptive search
	if cfg.Mode == domain.ModeAdaptive && cfg.MaxCeiling.LessThan(initialAmount) {
		return Config{}, fmt.Errorf("maxCeiling must not be below initialAmount, got %s < %s", cfg.MaxCeiling.String(), initialAmount.String())
	}

	return cfg, nil
}
