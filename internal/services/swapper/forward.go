package swapper

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/euclidbot/internal/domain"
	"go.uber.org/zap"
)

// ForwardConfig configures the primary-to-secondary swap module.
type ForwardConfig struct {
	Pair            domain.Pair
	Network         string
	GasBuffer       decimal.Decimal
	FinalityTimeout time.Duration
}

// Forward swaps the primary token into the secondary token. It only knows
// this one direction.
type Forward struct {
	cfg     ForwardConfig
	backend Backend
	wallet  Wallet
	amounts AmountSource
	points  PointsSink
	logger  *zap.Logger

	totalSwaps      int
	successfulSwaps int
}

// NewForward creates the forward direction module.
func NewForward(cfg ForwardConfig, backend Backend, wallet Wallet, amounts AmountSource, logger *zap.Logger) (*Forward, error) {
	if backend == nil {
		return nil, errors.New("forward module requires a backend")
	}
	if wallet == nil {
		return nil, errors.New("forward module requires a wallet")
	}
	if cfg.GasBuffer.IsNegative() {
		return nil, fmt.Errorf("gasBuffer must not be negative, got %s", cfg.GasBuffer.String())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FinalityTimeout <= 0 {
		cfg.FinalityTimeout = 5 * time.Minute
	}

	return &Forward{
		cfg:     cfg,
		backend: backend,
		wallet:  wallet,
		amounts: amounts,
		logger:  logger,
	}, nil
}

// SetPointsSink attaches an optional tracking sink notified of every
// confirmed swap.
func (f *Forward) SetPointsSink(sink PointsSink) {
	f.points = sink
}

// Direction is always forward.
func (f *Forward) Direction() domain.Direction {
	return domain.DirectionForward
}

// CheckBalance reports whether the primary token balance covers the
// required amount plus the gas buffer.
func (f *Forward) CheckBalance(ctx context.Context, required decimal.Decimal) (bool, decimal.Decimal, error) {
	balance, err := f.wallet.Balance(ctx, f.cfg.Network)
	if err != nil {
		return false, decimal.Zero, errors.Wrap(err, "check primary balance")
	}

	needed := required.Add(f.cfg.GasBuffer)
	sufficient := balance.GreaterThanOrEqual(needed)

	f.logger.Debug("balance check",
		zap.String("token", f.cfg.Pair.From),
		zap.String("balance", balance.String()),
		zap.String("required", needed.String()),
		zap.Bool("sufficient", sufficient))

	return sufficient, balance, nil
}

// ExecuteSwap runs one forward swap attempt. Collaborator failures are
// translated into a structured result, never propagated.
func (f *Forward) ExecuteSwap(ctx context.Context, amount *decimal.Decimal) (result domain.SwapResult) {
	f.totalSwaps++
	swapAmount := resolveAmount(amount, f.amounts)

	defer func() {
		if r := recover(); r != nil {
			result = f.failure(swapAmount, domain.ErrUnexpected, fmt.Sprintf("panic in forward swap: %v", r))
		}
	}()

	f.logger.Info("executing swap",
		zap.String("direction", f.Direction().String()),
		zap.String("pair", f.cfg.Pair.String()),
		zap.String("amount", swapAmount.String()))

	sufficient, balance, err := f.CheckBalance(ctx, swapAmount)
	if err != nil {
		return f.failure(swapAmount, domain.ErrUnexpected, err.Error())
	}
	if !sufficient {
		res := f.failure(swapAmount, domain.ErrInsufficientBalance,
			fmt.Sprintf("insufficient %s balance: %s < %s",
				f.cfg.Pair.From, balance.String(), swapAmount.Add(f.cfg.GasBuffer).String()))
		res.Balance = balance
		return res
	}

	route, err := f.backend.Quote(ctx, f.cfg.Pair.From, f.cfg.Pair.To, swapAmount)
	if err != nil {
		return f.backendFailure(swapAmount, err)
	}

	txHash, err := f.backend.Execute(ctx, f.cfg.Pair.From, f.cfg.Pair.To, swapAmount, route)
	if err != nil {
		return f.backendFailure(swapAmount, err)
	}

	fin, err := f.backend.AwaitFinality(ctx, txHash, f.cfg.FinalityTimeout)
	if err != nil {
		return f.failure(swapAmount, domain.ErrUnexpected, err.Error())
	}
	if fin.State != FinalityConfirmed {
		errType, errMsg := finalityFailure(fin)
		res := f.failure(swapAmount, errType, errMsg)
		res.TxHash = txHash
		return res
	}

	f.successfulSwaps++
	f.logger.Info("swap confirmed",
		zap.String("direction", f.Direction().String()),
		zap.String("tx_hash", txHash))

	if f.points != nil {
		f.points.SubmitAsync(ctx, txHash, f.wallet.Address())
	}

	return domain.SwapResult{
		Success:     true,
		TxHash:      txHash,
		Direction:   f.Direction(),
		Amount:      swapAmount,
		Balance:     balance,
		ModuleStats: f.stats(),
	}
}

func (f *Forward) backendFailure(amount decimal.Decimal, err error) domain.SwapResult {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return f.failure(amount, execErr.Kind, execErr.Message)
	}
	return f.failure(amount, domain.ErrSwapExecutionFailed, err.Error())
}

func (f *Forward) failure(amount decimal.Decimal, errType, errMsg string) domain.SwapResult {
	f.logger.Warn("swap failed",
		zap.String("direction", f.Direction().String()),
		zap.String("error_type", errType),
		zap.String("error", errMsg))

	return domain.SwapResult{
		Success:      false,
		ErrorType:    errType,
		ErrorMessage: errMsg,
		Direction:    f.Direction(),
		Amount:       amount,
		ModuleStats:  f.stats(),
	}
}

func (f *Forward) stats() domain.ModuleStats {
	return domain.ModuleStats{
		TotalSwaps:      f.totalSwaps,
		SuccessfulSwaps: f.successfulSwaps,
		SuccessRate:     successRate(f.successfulSwaps, f.totalSwaps),
	}
}

// Stats returns the module's running counters.
func (f *Forward) Stats() domain.ModuleStats {
	return f.stats()
}
