// Package swapper contains the two fixed-direction swap modules and the
// narrow collaborator contracts they consume.
package swapper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/euclidbot/internal/domain"
)

// Route is an opaque swap route returned by the backend's quote call and
// passed back verbatim on execution.
type Route struct {
	AmountOut decimal.Decimal
	Payload   json.RawMessage
}

// FinalityState is the terminal state of a broadcast swap.
type FinalityState int

const (
	FinalityConfirmed FinalityState = iota
	FinalityReverted
	FinalityTimedOut
)

// Finality describes how a broadcast swap settled. Non-confirmed states
// carry the error type the amount controller will classify.
type Finality struct {
	State        FinalityState
	ErrorType    string
	ErrorMessage string
}

// ExecError is a structured execution failure from the backend.
type ExecError struct {
	Kind    string
	Message string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrNoRoute is returned by Backend.Quote when no route exists for the
// requested size.
var ErrNoRoute = &ExecError{Kind: domain.ErrNoRouteFound, Message: "no route found for requested amount"}

// Backend executes swaps against the aggregator.
type Backend interface {
	Quote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (Route, error)
	Execute(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, route Route) (string, error)
	AwaitFinality(ctx context.Context, txHash string, timeout time.Duration) (Finality, error)
}

// Wallet reports balances and switches the active network context.
type Wallet interface {
	Balance(ctx context.Context, network string) (decimal.Decimal, error)
	SwitchNetwork(ctx context.Context, network string) error
	Address() string
}

// BalanceOracle reports the reserve (secondary) token balance, which lives
// on a different network than the wallet's primary context.
type BalanceOracle interface {
	ReserveBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// AmountSource supplies the swap amount when the caller passes none.
type AmountSource interface {
	CurrentAmount() decimal.Decimal
}

// PointsSink receives confirmed swap transactions for points tracking.
// Submission is fire and forget; failures never affect the swap result.
type PointsSink interface {
	SubmitAsync(ctx context.Context, txHash, walletAddress string)
}

// Module is one fixed swap direction. The direction never changes at
// runtime; switching happens by activating the other module.
type Module interface {
	Direction() domain.Direction
	CheckBalance(ctx context.Context, required decimal.Decimal) (bool, decimal.Decimal, error)
	ExecuteSwap(ctx context.Context, amount *decimal.Decimal) domain.SwapResult
}

// defaultFallbackAmount is used when neither an explicit amount nor an
// amount source is available.
var defaultFallbackAmount = decimal.NewFromFloat(0.5)

// resolveAmount picks the swap amount: explicit argument first, then the
// amount source, then the fallback.
func resolveAmount(explicit *decimal.Decimal, source AmountSource) decimal.Decimal {
	if explicit != nil {
		return *explicit
	}
	if source != nil {
		return source.CurrentAmount()
	}
	return defaultFallbackAmount
}

// successRate in percent, zero when no swaps ran yet.
func successRate(successful, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(successful)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).Round(2)
}

// finalityFailure converts a non-confirmed finality into the error pair
// reported upward.
func finalityFailure(fin Finality) (string, string) {
	errType := fin.ErrorType
	errMsg := fin.ErrorMessage

	if errType == "" {
		switch fin.State {
		case FinalityReverted:
			errType = domain.ErrSwapExecutionFailed
		case FinalityTimedOut:
			errType = "TRANSACTION_TIMEOUT"
		default:
			errType = domain.ErrUnexpected
		}
	}
	if errMsg == "" {
		errMsg = "swap did not confirm"
	}

	return errType, errMsg
}
