package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/euclidbot/internal/domain"
)

// stubModule returns scripted results.
type stubModule struct {
	direction domain.Direction
	results   []domain.SwapResult
	calls     int
}

func (s *stubModule) Direction() domain.Direction {
	return s.direction
}

func (s *stubModule) CheckBalance(ctx context.Context, required decimal.Decimal) (bool, decimal.Decimal, error) {
	return true, decimal.NewFromInt(100), nil
}

func (s *stubModule) ExecuteSwap(ctx context.Context, amount *decimal.Decimal) domain.SwapResult {
	var result domain.SwapResult
	if s.calls < len(s.results) {
		result = s.results[s.calls]
	} else {
		result = domain.SwapResult{Success: true}
	}
	s.calls++
	result.Direction = s.direction
	return result
}

func successResult() domain.SwapResult {
	return domain.SwapResult{Success: true, TxHash: "0xabc", Amount: decimal.NewFromFloat(0.5)}
}

func failureResult(errorType string) domain.SwapResult {
	return domain.SwapResult{Success: false, ErrorType: errorType, ErrorMessage: "test", Amount: decimal.NewFromFloat(0.5)}
}

func repeat(r domain.SwapResult, n int) []domain.SwapResult {
	results := make([]domain.SwapResult, n)
	for i := range results {
		results[i] = r
	}
	return results
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestOrchestrator(t *testing.T, forward, reverse *stubModule, clock *fakeClock, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append(opts, withClock(clock.now))
	o, err := New(forward, reverse, nil, opts...)
	require.NoError(t, err)
	return o
}

func newClock() *fakeClock {
	return &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestExecuteSwap_SuccessNeverSwitches(t *testing.T) {
	forward := &stubModule{direction: domain.DirectionForward, results: repeat(successResult(), 5)}
	reverse := &stubModule{direction: domain.DirectionReverse}
	o := newTestOrchestrator(t, forward, reverse, newClock())

	for i := 0; i < 5; i++ {
		result := o.ExecuteSwap(context.Background(), nil)
		require.True(t, result.Success)
		require.False(t, result.SwitchTriggered)
	}

	require.Equal(t, domain.DirectionForward, o.ActiveDirection())
	require.Equal(t, 0, o.Stats().TotalSwitches)
	require.Equal(t, 5, o.Stats().SuccessfulSwaps)
	require.Equal(t, 0, reverse.calls)
}

func TestExecuteSwap_ImmediateSwitchErrors(t *testing.T) {
	for _, errorType := range []string{
		domain.ErrInsufficientBalance,
		domain.ErrInsufficientReserveBalance,
		domain.ErrNoRouteFound,
	} {
		t.Run(errorType, func(t *testing.T) {
			forward := &stubModule{direction: domain.DirectionForward, results: repeat(failureResult(errorType), 1)}
			reverse := &stubModule{direction: domain.DirectionReverse}
			o := newTestOrchestrator(t, forward, reverse, newClock())

			result := o.ExecuteSwap(context.Background(), nil)

			require.True(t, result.SwitchTriggered)
			require.True(t, result.SwitchSuccessful)
			require.Equal(t, errorType, result.SwitchReason)
			require.Equal(t, domain.DirectionReverse, result.NewDirection)
			require.Equal(t, domain.DirectionReverse, o.ActiveDirection())
		})
	}
}

func TestExecuteSwap_ConsecutiveFailuresTriggerSwitch(t *testing.T) {
	forward := &stubModule{direction: domain.DirectionForward, results: repeat(failureResult("SLIPPAGE_EXCEEDED"), 3)}
	reverse := &stubModule{direction: domain.DirectionReverse}
	o := newTestOrchestrator(t, forward, reverse, newClock())

	r1 := o.ExecuteSwap(context.Background(), nil)
	require.False(t, r1.SwitchTriggered)
	r2 := o.ExecuteSwap(context.Background(), nil)
	require.False(t, r2.SwitchTriggered)

	r3 := o.ExecuteSwap(context.Background(), nil)
	require.True(t, r3.SwitchTriggered)
	require.Equal(t, "CONSECUTIVE_FAILURES", r3.SwitchReason)
	require.Equal(t, domain.DirectionReverse, o.ActiveDirection())
	require.Equal(t, 0, o.Stats().ConsecutiveFailures)
}

func TestExecuteSwap_SuccessResetsFailureCount(t *testing.T) {
	forward := &stubModule{direction: domain.DirectionForward, results: []domain.SwapResult{
		failureResult("SLIPPAGE_EXCEEDED"),
		failureResult("SLIPPAGE_EXCEEDED"),
		successResult(),
		failureResult("SLIPPAGE_EXCEEDED"),
		failureResult("SLIPPAGE_EXCEEDED"),
	}}
	reverse := &stubModule{direction: domain.DirectionReverse}
	o := newTestOrchestrator(t, forward, reverse, newClock())

	for i := 0; i < 5; i++ {
		result := o.ExecuteSwap(context.Background(), nil)
		require.False(t, result.SwitchTriggered)
	}

	require.Equal(t, domain.DirectionForward, o.ActiveDirection())
	require.Equal(t, 2, o.Stats().ConsecutiveFailures)
}

func TestSwitchCooldown_VetoesRapidSwitches(t *testing.T) {
	forward := &stubModule{direction: domain.DirectionForward, results: repeat(failureResult(domain.ErrNoRouteFound), 1)}
	reverse := &stubModule{direction: domain.DirectionReverse, results: repeat(failureResult(domain.ErrNoRouteFound), 1)}
	clock := newClock()
	o := newTestOrchestrator(t, forward, reverse, clock)

	// first NO_ROUTE_FOUND switches forward -> reverse
	r1 := o.ExecuteSwap(context.Background(), nil)
	require.True(t, r1.SwitchSuccessful)
	require.Equal(t, domain.DirectionReverse, o.ActiveDirection())

	// second failure within the cooldown is vetoed, direction unchanged
	clock.advance(2 * time.Second)
	r2 := o.ExecuteSwap(context.Background(), nil)
	require.True(t, r2.SwitchTriggered)
	require.False(t, r2.SwitchSuccessful)
	require.Equal(t, domain.DirectionReverse, o.ActiveDirection())
	require.Equal(t, 1, o.Stats().TotalSwitches)
}

func TestSwitchCooldown_AllowsSwitchAfterExpiry(t *testing.T) {
	forward := &stubModule{direction: domain.DirectionForward, results: repeat(failureResult(domain.ErrNoRouteFound), 1)}
	reverse := &stubModule{direction: domain.DirectionReverse, results: repeat(failureResult(domain.ErrNoRouteFound), 1)}
	clock := newClock()
	o := newTestOrchestrator(t, forward, reverse, clock)

	o.ExecuteSwap(context.Background(), nil)
	require.Equal(t, domain.DirectionReverse, o.ActiveDirection())

	clock.advance(6 * time.Second)
	r := o.ExecuteSwap(context.Background(), nil)
	require.True(t, r.SwitchSuccessful)
	require.Equal(t, domain.DirectionForward, o.ActiveDirection())
	require.Equal(t, 2, o.Stats().TotalSwitches)
}

func TestManualSwitch(t *testing.T) {
	forward := &stubModule{direction: domain.DirectionForward}
	reverse := &stubModule{direction: domain.DirectionReverse}
	clock := newClock()
	o := newTestOrchestrator(t, forward, reverse, clock)

	require.True(t, o.ManualSwitch())
	require.Equal(t, domain.DirectionReverse, o.ActiveDirection())

	// cooldown applies to manual switches too
	clock.advance(time.Second)
	require.False(t, o.ManualSwitch())
	require.Equal(t, domain.DirectionReverse, o.ActiveDirection())

	clock.advance(5 * time.Second)
	require.True(t, o.ManualSwitch())
	require.Equal(t, domain.DirectionForward, o.ActiveDirection())
}

func TestSwitchHistory_CappedAtTen(t *testing.T) {
	forward := &stubModule{direction: domain.DirectionForward}
	reverse := &stubModule{direction: domain.DirectionReverse}
	clock := newClock()
	o := newTestOrchestrator(t, forward, reverse, clock)

	for i := 0; i < 15; i++ {
		require.True(t, o.ManualSwitch())
		clock.advance(10 * time.Second)
	}

	history := o.SwitchHistory()
	require.Len(t, history, 10)
	// oldest entries dropped, newest kept
	require.Equal(t, 6, history[0].SwitchNumber)
	require.Equal(t, 15, history[9].SwitchNumber)
}

func TestStats_Aggregates(t *testing.T) {
	forward := &stubModule{direction: domain.DirectionForward, results: []domain.SwapResult{
		successResult(),
		failureResult("SLIPPAGE_EXCEEDED"),
		successResult(),
		successResult(),
	}}
	reverse := &stubModule{direction: domain.DirectionReverse}
	o := newTestOrchestrator(t, forward, reverse, newClock())

	for i := 0; i < 4; i++ {
		o.ExecuteSwap(context.Background(), nil)
	}

	stats := o.Stats()
	require.Equal(t, 4, stats.TotalSwapsExecuted)
	require.Equal(t, 3, stats.SuccessfulSwaps)
	require.Equal(t, 1, stats.FailedSwaps)
	require.Equal(t, "75", stats.SuccessRate.String())
}

func TestExecuteSwap_ResultCarriesStats(t *testing.T) {
	forward := &stubModule{direction: domain.DirectionForward, results: repeat(successResult(), 1)}
	reverse := &stubModule{direction: domain.DirectionReverse}
	o := newTestOrchestrator(t, forward, reverse, newClock())

	result := o.ExecuteSwap(context.Background(), nil)
	require.Equal(t, 1, result.Orchestrator.TotalSwapsExecuted)
	require.Equal(t, domain.DirectionForward, result.Orchestrator.ActiveDirection)
}
