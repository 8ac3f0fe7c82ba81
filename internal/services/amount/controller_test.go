package amount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/euclidbot/internal/domain"
)

func newController(t *testing.T, initial float64, opts ...Option) *Controller {
	t.Helper()
	cfg, err := NewConfig(decimal.NewFromFloat(initial), opts...)
	require.NoError(t, err)
	return NewController(cfg, nil)
}

func success(amount decimal.Decimal) domain.SwapOutcome {
	return domain.NewSwapOutcome(true, "", "", amount)
}

func failure(errorType string, amount decimal.Decimal) domain.SwapOutcome {
	return domain.NewSwapOutcome(false, errorType, "test failure", amount)
}

func TestNewConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		initial float64
		opts    []Option
		wantErr string
	}{
		{
			name:    "initial below minimum",
			initial: 0.05,
			wantErr: "initialAmount",
		},
		{
			name:    "increment step too large",
			initial: 0.5,
			opts:    []Option{WithIncrementStep(decimal.NewFromFloat(0.6))},
			wantErr: "incrementStep",
		},
		{
			name:    "increment step zero",
			initial: 0.5,
			opts:    []Option{WithIncrementStep(decimal.Zero)},
			wantErr: "incrementStep",
		},
		{
			name:    "decrement step negative",
			initial: 0.5,
			opts:    []Option{WithDecrementStep(decimal.NewFromFloat(-0.1))},
			wantErr: "decrementStep",
		},
		{
			name:    "stability threshold too high",
			initial: 0.5,
			opts:    []Option{WithStabilityThreshold(21)},
			wantErr: "stabilityThreshold",
		},
		{
			name:    "stability threshold too low",
			initial: 0.5,
			opts:    []Option{WithStabilityThreshold(0)},
			wantErr: "stabilityThreshold",
		},
		{
			name:    "max increment attempts too high",
			initial: 0.5,
			opts:    []Option{WithMaxIncrementAttempts(11)},
			wantErr: "maxIncrementAttempts",
		},
		{
			name:    "ceiling below floor in adaptive mode",
			initial: 0.5,
			opts:    []Option{WithMaxCeiling(decimal.NewFromFloat(0.3))},
			wantErr: "maxCeiling",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(decimal.NewFromFloat(tt.initial), tt.opts...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewConfig_ModeDerivation(t *testing.T) {
	cfg, err := NewConfig(decimal.NewFromFloat(0.5))
	require.NoError(t, err)
	require.Equal(t, domain.ModeAdaptive, cfg.Mode)

	cfg, err = NewConfig(decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Equal(t, domain.ModeFixed, cfg.Mode)

	cfg, err = NewConfig(decimal.NewFromFloat(2.5))
	require.NoError(t, err)
	require.Equal(t, domain.ModeFixed, cfg.Mode)
}

func TestFixedMode_NeverChanges(t *testing.T) {
	c := newController(t, 1.5)
	require.Equal(t, domain.PhaseFixed, c.CurrentPhase())

	outcomes := []domain.SwapOutcome{
		failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()),
		failure("INSUFFICIENT_LIQUIDITY", c.CurrentAmount()),
		success(c.CurrentAmount()),
		failure("RPC_ERROR", c.CurrentAmount()),
		failure("something weird", c.CurrentAmount()),
	}

	for _, outcome := range outcomes {
		newAmount, changed := c.ProcessResult(outcome)
		require.False(t, changed)
		require.Equal(t, "1.5", newAmount.String())
		require.Equal(t, domain.PhaseFixed, c.CurrentPhase())
	}

	require.Equal(t, 0, c.Export().TotalAdjustments)
}

func TestAscending_FailureProgression(t *testing.T) {
	// amounts progress 0.5 -> 0.6 -> 0.7 -> 0.8 across three failures
	c := newController(t, 0.5,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithDecrementStep(decimal.NewFromFloat(0.1)),
		WithMaxIncrementAttempts(5))

	expected := []string{"0.6", "0.7", "0.8"}
	for i, want := range expected {
		newAmount, changed := c.ProcessResult(failure("INSUFFICIENT_LIQUIDITY", c.CurrentAmount()))
		require.True(t, changed)
		require.Equal(t, want, newAmount.String())
		require.Equal(t, domain.PhaseAscending, c.CurrentPhase())
		require.Equal(t, i+1, c.Export().IncrementAttempts)
	}
}

func TestAscending_SuccessEntersStable(t *testing.T) {
	c := newController(t, 0.5,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithMaxIncrementAttempts(5))

	for i := 0; i < 3; i++ {
		c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()))
	}
	require.Equal(t, "0.8", c.CurrentAmount().String())

	_, changed := c.ProcessResult(success(c.CurrentAmount()))
	require.False(t, changed)

	snap := c.Export()
	require.Equal(t, domain.PhaseStable, c.CurrentPhase())
	require.NotNil(t, snap.LastWorkingAmount)
	require.Equal(t, "0.8", snap.LastWorkingAmount.String())
	require.Equal(t, 1, snap.ConsecutiveSuccesses)
	require.Equal(t, 0, snap.IncrementAttempts)
}

func TestAscending_SaturationClampsToCeiling(t *testing.T) {
	// one failure with the stepped value above the ceiling snaps to ceiling
	c := newController(t, 0.95,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithDecrementStep(decimal.NewFromFloat(0.1)),
		WithMaxIncrementAttempts(1))

	newAmount, changed := c.ProcessResult(failure("INSUFFICIENT_LIQUIDITY", c.CurrentAmount()))
	require.True(t, changed)
	require.Equal(t, "1", newAmount.String())
	require.Equal(t, domain.PhaseAscending, c.CurrentPhase())
}

func TestAscending_AtCeilingEntersDescending(t *testing.T) {
	c := newController(t, 0.8,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithDecrementStep(decimal.NewFromFloat(0.1)),
		WithMaxIncrementAttempts(1))

	// first failure forces the amount to the ceiling
	newAmount, _ := c.ProcessResult(failure("INSUFFICIENT_LIQUIDITY", c.CurrentAmount()))
	require.Equal(t, "1", newAmount.String())
	require.Equal(t, domain.PhaseAscending, c.CurrentPhase())

	// at the ceiling another failure searches downward instead
	newAmount, _ = c.ProcessResult(failure("INSUFFICIENT_LIQUIDITY", c.CurrentAmount()))
	require.Equal(t, "0.9", newAmount.String())
	require.Equal(t, domain.PhaseDescending, c.CurrentPhase())
	require.Equal(t, 0, c.Export().IncrementAttempts)
}

func TestStable_StabilityThenOptimize(t *testing.T) {
	// three consecutive successes from the first ascending success onward
	// drop the amount and enter descending
	c := newController(t, 0.5,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithDecrementStep(decimal.NewFromFloat(0.1)),
		WithStabilityThreshold(3),
		WithDescending(true))

	c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount())) // 0.6
	c.ProcessResult(success(c.CurrentAmount()))                      // stable, successes=1
	c.ProcessResult(success(c.CurrentAmount()))                      // successes=2

	newAmount, changed := c.ProcessResult(success(c.CurrentAmount())) // successes=3, descend
	require.True(t, changed)
	require.Equal(t, domain.PhaseDescending, c.CurrentPhase())
	require.Equal(t, "0.5", newAmount.String())
	require.Equal(t, 0, c.Export().ConsecutiveSuccesses)
}

func TestStable_FailureBreaksStability(t *testing.T) {
	c := newController(t, 0.5, WithStabilityThreshold(5))

	c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()))
	c.ProcessResult(success(c.CurrentAmount()))
	require.Equal(t, domain.PhaseStable, c.CurrentPhase())

	_, changed := c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()))
	require.Equal(t, domain.PhaseAscending, c.CurrentPhase())
	require.Equal(t, 0, c.Export().ConsecutiveSuccesses)
	// breaking stability changes phase, not amount
	require.False(t, changed)
}

func TestStable_AtFloorDeclaresOptimal(t *testing.T) {
	// success at the floor with the threshold reached declares optimal
	// without entering descending
	c := newController(t, 0.5, WithStabilityThreshold(2))

	c.ProcessResult(success(c.CurrentAmount())) // ascending -> stable
	c.ProcessResult(success(c.CurrentAmount())) // threshold reached at floor

	require.Equal(t, domain.PhaseStable, c.CurrentPhase())
	optimal, ok := c.OptimalAmount()
	require.True(t, ok)
	require.Equal(t, "0.5", optimal.String())
}

func TestStable_DescendingDisabledDeclaresOptimal(t *testing.T) {
	c := newController(t, 0.5,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithStabilityThreshold(2),
		WithDescending(false))

	c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount())) // 0.6
	c.ProcessResult(success(c.CurrentAmount()))
	c.ProcessResult(success(c.CurrentAmount()))

	require.Equal(t, domain.PhaseStable, c.CurrentPhase())
	optimal, ok := c.OptimalAmount()
	require.True(t, ok)
	require.Equal(t, "0.6", optimal.String())
}

func TestDescending_FailureRevertsToLastWorking(t *testing.T) {
	c := newController(t, 0.5,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithDecrementStep(decimal.NewFromFloat(0.1)),
		WithStabilityThreshold(2))

	c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount())) // 0.6
	c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount())) // 0.7
	c.ProcessResult(success(c.CurrentAmount()))                      // stable at 0.7
	c.ProcessResult(success(c.CurrentAmount()))                      // descend to 0.6
	require.Equal(t, domain.PhaseDescending, c.CurrentPhase())
	c.ProcessResult(success(c.CurrentAmount()))                      // working at 0.6
	c.ProcessResult(success(c.CurrentAmount()))                      // descend to 0.5
	require.Equal(t, "0.5", c.CurrentAmount().String())

	// the lower amount fails: revert to the last working value
	newAmount, changed := c.ProcessResult(failure("INSUFFICIENT_LIQUIDITY", c.CurrentAmount()))
	require.True(t, changed)
	require.Equal(t, "0.6", newAmount.String())
	require.Equal(t, domain.PhaseStable, c.CurrentPhase())

	optimal, ok := c.OptimalAmount()
	require.True(t, ok)
	require.Equal(t, "0.6", optimal.String())
}

func TestDescending_FloorReachedDeclaresOptimal(t *testing.T) {
	c := newController(t, 0.5,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithDecrementStep(decimal.NewFromFloat(0.1)),
		WithStabilityThreshold(1))

	c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount())) // 0.6
	c.ProcessResult(success(c.CurrentAmount()))                      // stable
	c.ProcessResult(success(c.CurrentAmount()))                      // descend to 0.5 (floor)
	require.Equal(t, domain.PhaseDescending, c.CurrentPhase())
	require.Equal(t, "0.5", c.CurrentAmount().String())

	// success at the floor: nothing lower to try, declare optimal
	c.ProcessResult(success(c.CurrentAmount()))
	require.Equal(t, domain.PhaseDescending, c.CurrentPhase())
	optimal, ok := c.OptimalAmount()
	require.True(t, ok)
	require.Equal(t, "0.5", optimal.String())
}

func TestInfrastructureErrors_NeverAdjust(t *testing.T) {
	c := newController(t, 0.5)

	before := c.Export()
	newAmount, changed := c.ProcessResult(failure("RPC_ERROR", c.CurrentAmount()))

	require.False(t, changed)
	require.Equal(t, before.CurrentAmount.String(), newAmount.String())
	require.Equal(t, domain.PhaseAscending, c.CurrentPhase())
	require.Equal(t, before.TotalAdjustments, c.Export().TotalAdjustments)
	require.Equal(t, before.IncrementAttempts, c.Export().IncrementAttempts)
}

func TestShouldAdjust(t *testing.T) {
	c := newController(t, 0.5)

	require.False(t, c.ShouldAdjust(success(decimal.NewFromFloat(0.5))))
	require.True(t, c.ShouldAdjust(failure("SLIPPAGE_EXCEEDED", decimal.NewFromFloat(0.5))))
	require.False(t, c.ShouldAdjust(failure("NETWORK_TIMEOUT", decimal.NewFromFloat(0.5))))
	// unknown errors are conservatively treated as amount-sensitive
	require.True(t, c.ShouldAdjust(failure("SOMETHING_NEW", decimal.NewFromFloat(0.5))))
	require.True(t, c.ShouldAdjust(failure("", decimal.NewFromFloat(0.5))))

	// fixed mode never adjusts
	fixed := newController(t, 1.0)
	require.False(t, fixed.ShouldAdjust(failure("SLIPPAGE_EXCEEDED", decimal.NewFromInt(1))))
}

func TestShouldAdjust_UnknownPolicyOverride(t *testing.T) {
	c := newController(t, 0.5, WithAdjustOnUnknownError(false))
	require.False(t, c.ShouldAdjust(failure("SOMETHING_NEW", decimal.NewFromFloat(0.5))))
	require.True(t, c.ShouldAdjust(failure("SLIPPAGE_EXCEEDED", decimal.NewFromFloat(0.5))))
}

func TestInvariant_BoundsHeldAcrossMixedSequence(t *testing.T) {
	c := newController(t, 0.3,
		WithIncrementStep(decimal.NewFromFloat(0.15)),
		WithDecrementStep(decimal.NewFromFloat(0.15)),
		WithStabilityThreshold(2),
		WithMaxIncrementAttempts(3))

	floor := decimal.NewFromFloat(0.3)
	ceiling := decimal.NewFromInt(1)

	outcomes := []domain.SwapOutcome{
		failure("INSUFFICIENT_LIQUIDITY", c.CurrentAmount()),
		failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()),
		failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()),
		failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()),
		failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()),
		success(c.CurrentAmount()),
		success(c.CurrentAmount()),
		success(c.CurrentAmount()),
		failure("INSUFFICIENT_LIQUIDITY", c.CurrentAmount()),
		failure("RPC_ERROR", c.CurrentAmount()),
		success(c.CurrentAmount()),
		failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()),
		failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()),
		success(c.CurrentAmount()),
	}

	for i, outcome := range outcomes {
		newAmount, _ := c.ProcessResult(outcome)
		require.True(t, newAmount.GreaterThanOrEqual(floor),
			"step %d: amount %s below floor", i, newAmount.String())
		require.True(t, newAmount.LessThanOrEqual(ceiling),
			"step %d: amount %s above ceiling", i, newAmount.String())
	}
}

func TestMonotonicFloor_FailuresNeverDropBelowInitial(t *testing.T) {
	c := newController(t, 0.4,
		WithIncrementStep(decimal.NewFromFloat(0.2)),
		WithDecrementStep(decimal.NewFromFloat(0.2)),
		WithMaxIncrementAttempts(2))

	floor := decimal.NewFromFloat(0.4)
	for i := 0; i < 20; i++ {
		newAmount, _ := c.ProcessResult(failure("INSUFFICIENT_LIQUIDITY", c.CurrentAmount()))
		require.True(t, newAmount.GreaterThanOrEqual(floor),
			"step %d: amount %s below floor", i, newAmount.String())
	}
}

func TestPhaseHistory_RecordsTransitions(t *testing.T) {
	c := newController(t, 0.5, WithStabilityThreshold(1))

	c.ProcessResult(success(c.CurrentAmount())) // ascending -> stable
	c.ProcessResult(success(c.CurrentAmount())) // stable -> descending? floor reached, optimal

	history := c.PhaseHistory()
	require.NotEmpty(t, history)
	require.Equal(t, domain.PhaseAscending, history[0].From)
	require.Equal(t, domain.PhaseStable, history[0].To)
}

func TestExportImport_Roundtrip(t *testing.T) {
	c := newController(t, 0.5,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithStabilityThreshold(2))

	c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()))
	c.ProcessResult(success(c.CurrentAmount()))

	snap := c.Export()
	require.Equal(t, "0.6", snap.CurrentAmount.String())
	require.Equal(t, "stable", snap.CurrentPhase)

	restored := newController(t, 0.5,
		WithIncrementStep(decimal.NewFromFloat(0.1)),
		WithStabilityThreshold(2))
	restored.Import(snap)

	require.Equal(t, "0.6", restored.CurrentAmount().String())
	require.Equal(t, domain.PhaseStable, restored.CurrentPhase())
	require.Equal(t, snap.ConsecutiveSuccesses, restored.Export().ConsecutiveSuccesses)
}

func TestImport_ClampsOutOfRangeAmounts(t *testing.T) {
	c := newController(t, 0.5)

	snap := c.Export()
	snap.CurrentAmount = decimal.NewFromFloat(0.1) // below the floor

	c.Import(snap)
	require.Equal(t, "0.5", c.CurrentAmount().String())

	snap.CurrentAmount = decimal.NewFromInt(3) // above the ceiling
	c.Import(snap)
	require.Equal(t, "1", c.CurrentAmount().String())
}

func TestReset_RestoresInitialState(t *testing.T) {
	c := newController(t, 0.5)

	c.ProcessResult(failure("SLIPPAGE_EXCEEDED", c.CurrentAmount()))
	c.ProcessResult(success(c.CurrentAmount()))
	require.NotEqual(t, "0.5", c.CurrentAmount().String())

	c.Reset()
	require.Equal(t, "0.5", c.CurrentAmount().String())
	require.Equal(t, domain.PhaseAscending, c.CurrentPhase())
	_, ok := c.OptimalAmount()
	require.False(t, ok)
	require.Empty(t, c.PhaseHistory())
}

func TestStats_SavingsDerivedFromOptimal(t *testing.T) {
	c := newController(t, 0.5, WithStabilityThreshold(1), WithDescending(false))

	c.ProcessResult(success(c.CurrentAmount())) // ascending -> stable
	c.ProcessResult(success(c.CurrentAmount())) // threshold reached, optimal declared

	stats := c.Stats()
	require.NotNil(t, stats.OptimalAmount)
	require.Equal(t, "0.5", stats.OptimalAmount.String())
	require.Equal(t, "0.5", stats.SavingsPerSwap.String())
	require.Equal(t, 2, stats.TotalSwaps)
	require.Equal(t, 2, stats.SuccessfulSwaps)
}
