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

// RatioSource supplies the reserve-to-primary conversion ratio. The ratio
// is empirical, so it is always injected, never hardcoded.
type RatioSource interface {
	Ratio(ctx context.Context) (decimal.Decimal, error)
}

// ReverseConfig configures the secondary-to-primary swap module.
type ReverseConfig struct {
	// Pair sells the reserve token back into the primary token.
	Pair            domain.Pair
	Network         string
	GasBuffer       decimal.Decimal
	FinalityTimeout time.Duration
}

// Reverse swaps the reserve (secondary) token back into the primary token.
// Amounts are expressed as the primary-token target; the reserve input is
// derived through the conversion ratio.
type Reverse struct {
	cfg     ReverseConfig
	backend Backend
	wallet  Wallet
	oracle  BalanceOracle
	ratio   RatioSource
	amounts AmountSource
	points  PointsSink
	logger  *zap.Logger

	totalSwaps      int
	successfulSwaps int
}

// NewReverse creates the reverse direction module.
func NewReverse(cfg ReverseConfig, backend Backend, wallet Wallet, oracle BalanceOracle, ratio RatioSource, amounts AmountSource, logger *zap.Logger) (*Reverse, error) {
	if backend == nil {
		return nil, errors.New("reverse module requires a backend")
	}
	if wallet == nil {
		return nil, errors.New("reverse module requires a wallet")
	}
	if oracle == nil {
		return nil, errors.New("reverse module requires a balance oracle")
	}
	if ratio == nil {
		return nil, errors.New("reverse module requires a ratio source")
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

	return &Reverse{
		cfg:     cfg,
		backend: backend,
		wallet:  wallet,
		oracle:  oracle,
		ratio:   ratio,
		amounts: amounts,
		logger:  logger,
	}, nil
}

// SetPointsSink attaches an optional tracking sink notified of every
// confirmed swap.
func (r *Reverse) SetPointsSink(sink PointsSink) {
	r.points = sink
}

// Direction is always reverse.
func (r *Reverse) Direction() domain.Direction {
	return domain.DirectionReverse
}

// CheckBalance reports whether the reserve balance covers the reserve input
// needed for the required primary-token target plus the gas buffer.
func (r *Reverse) CheckBalance(ctx context.Context, required decimal.Decimal) (bool, decimal.Decimal, error) {
	ratio, err := r.ratio.Ratio(ctx)
	if err != nil {
		return false, decimal.Zero, errors.Wrap(err, "fetch conversion ratio")
	}
	return r.checkBalance(ctx, required, ratio)
}

// checkBalance takes an already fetched ratio so one attempt quotes the
// exchange once and sizes the input and the balance check consistently.
func (r *Reverse) checkBalance(ctx context.Context, required, ratio decimal.Decimal) (bool, decimal.Decimal, error) {
	balance, err := r.oracle.ReserveBalance(ctx, r.wallet.Address())
	if err != nil {
		return false, decimal.Zero, errors.Wrap(err, "check reserve balance")
	}

	needed := required.Mul(ratio).Add(r.cfg.GasBuffer)
	sufficient := balance.GreaterThanOrEqual(needed)

	r.logger.Debug("balance check",
		zap.String("token", r.cfg.Pair.From),
		zap.String("balance", balance.String()),
		zap.String("required", needed.String()),
		zap.String("ratio", ratio.String()),
		zap.Bool("sufficient", sufficient))

	return sufficient, balance, nil
}

// ExecuteSwap runs one reverse swap attempt. The amount argument is the
// primary-token target to receive, matching the controller's units.
func (r *Reverse) ExecuteSwap(ctx context.Context, amount *decimal.Decimal) (result domain.SwapResult) {
	r.totalSwaps++
	target := resolveAmount(amount, r.amounts)

	defer func() {
		if rec := recover(); rec != nil {
			result = r.failure(target, domain.ErrUnexpected, fmt.Sprintf("panic in reverse swap: %v", rec))
		}
	}()

	ratio, err := r.ratio.Ratio(ctx)
	if err != nil {
		return r.failure(target, domain.ErrUnexpected, err.Error())
	}
	input := target.Mul(ratio)

	r.logger.Info("executing swap",
		zap.String("direction", r.Direction().String()),
		zap.String("pair", r.cfg.Pair.String()),
		zap.String("input", input.String()),
		zap.String("target", target.String()))

	sufficient, balance, err := r.checkBalance(ctx, target, ratio)
	if err != nil {
		return r.failure(target, domain.ErrUnexpected, err.Error())
	}
	if !sufficient {
		res := r.failure(target, domain.ErrInsufficientReserveBalance,
			fmt.Sprintf("insufficient %s balance: %s < %s",
				r.cfg.Pair.From, balance.String(), input.Add(r.cfg.GasBuffer).String()))
		res.Balance = balance
		return res
	}

	if err := r.wallet.SwitchNetwork(ctx, r.cfg.Network); err != nil {
		return r.failure(target, domain.ErrNetworkSwitchFailed,
			errors.Wrapf(err, "switch to %s network", r.cfg.Network).Error())
	}

	route, err := r.backend.Quote(ctx, r.cfg.Pair.From, r.cfg.Pair.To, input)
	if err != nil {
		return r.backendFailure(target, err)
	}

	txHash, err := r.backend.Execute(ctx, r.cfg.Pair.From, r.cfg.Pair.To, input, route)
	if err != nil {
		return r.backendFailure(target, err)
	}

	fin, err := r.backend.AwaitFinality(ctx, txHash, r.cfg.FinalityTimeout)
	if err != nil {
		return r.failure(target, domain.ErrUnexpected, err.Error())
	}
	if fin.State != FinalityConfirmed {
		errType, errMsg := finalityFailure(fin)
		res := r.failure(target, errType, errMsg)
		res.TxHash = txHash
		return res
	}

	r.successfulSwaps++
	r.logger.Info("swap confirmed",
		zap.String("direction", r.Direction().String()),
		zap.String("tx_hash", txHash))

	if r.points != nil {
		r.points.SubmitAsync(ctx, txHash, r.wallet.Address())
	}

	return domain.SwapResult{
		Success:     true,
		TxHash:      txHash,
		Direction:   r.Direction(),
		Amount:      target,
		Balance:     balance,
		ModuleStats: r.stats(),
	}
}

func (r *Reverse) backendFailure(target decimal.Decimal, err error) domain.SwapResult {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return r.failure(target, execErr.Kind, execErr.Message)
	}
	return r.failure(target, domain.ErrSwapExecutionFailed, err.Error())
}

func (r *Reverse) failure(target decimal.Decimal, errType, errMsg string) domain.SwapResult {
	r.logger.Warn("swap failed",
		zap.String("direction", r.Direction().String()),
		zap.String("error_type", errType),
		zap.String("error", errMsg))

	return domain.SwapResult{
		Success:      false,
		ErrorType:    errType,
		ErrorMessage: errMsg,
		Direction:    r.Direction(),
		Amount:       target,
		ModuleStats:  r.stats(),
	}
}

func (r *Reverse) stats() domain.ModuleStats {
	return domain.ModuleStats{
		TotalSwaps:      r.totalSwaps,
		SuccessfulSwaps: r.successfulSwaps,
		SuccessRate:     successRate(r.successfulSwaps, r.totalSwaps),
	}
}

// Stats returns the module's running counters.
func (r *Reverse) Stats() domain.ModuleStats {
	return r.stats()
}
