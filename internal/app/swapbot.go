// Package app wires the configuration into a running swap bot.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/euclidbot/config"
	"github.com/vadiminshakov/euclidbot/internal/clients"
	"github.com/vadiminshakov/euclidbot/internal/domain"
	"github.com/vadiminshakov/euclidbot/internal/services/amount"
	"github.com/vadiminshakov/euclidbot/internal/services/orchestrator"
	"github.com/vadiminshakov/euclidbot/internal/services/ratio"
	"github.com/vadiminshakov/euclidbot/internal/services/swapper"
	"github.com/vadiminshakov/euclidbot/internal/services/tracker"
	"github.com/vadiminshakov/euclidbot/internal/storage/botstate"
	"go.uber.org/zap"
)

// SwapBot drives the swap loop: one orchestrated swap per tick, the
// outcome fed back into the amount controller and the state persisted.
type SwapBot struct {
	cfg    config.Config
	logger *zap.Logger

	wallet     *clients.Wallet
	controller *amount.Controller
	orch       *orchestrator.Orchestrator
	tracker    *tracker.Tracker
	store      *botstate.WALStore

	// mu serializes access to the controller and orchestrator. The
	// dashboard never takes it: a swap attempt can block for the whole
	// finality timeout, so the status handler serves a cached copy
	// refreshed after every tick instead.
	mu                sync.Mutex
	persistedSwitches int

	statusMu   sync.RWMutex
	lastStatus Status
}

// Status is the aggregate state exposed on the dashboard.
type Status struct {
	Pair         string                   `json:"pair"`
	Orchestrator domain.OrchestratorStats `json:"orchestrator"`
	Amount       amount.Stats             `json:"amount"`
	Tracker      *tracker.Stats           `json:"tracker,omitempty"`
}

// NewSwapBot builds every component from the configuration and connects
// them together.
func NewSwapBot(cfg config.Config, logger *zap.Logger) (*SwapBot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	wallet, err := clients.NewWallet(clients.WalletConfig{
		PrivateKeyHex:  cfg.PrivateKey,
		Networks:       walletNetworks(cfg.Networks),
		PrimaryNetwork: cfg.PrimaryNetwork,
		ReserveNetwork: cfg.ReserveNetwork,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create wallet")
	}

	backend, err := clients.NewEuclidClient(clients.EuclidConfig{
		APIBase: cfg.APIBase,
		Origin:  cfg.Origin,
		Referer: cfg.Referer,
		Address: wallet.Address(),
		TokenChains: map[string]string{
			cfg.Pair.From: cfg.PrimaryNetwork,
			cfg.Pair.To:   cfg.ReserveNetwork,
		},
	}, wallet, logger)
	if err != nil {
		wallet.Close()
		return nil, errors.Wrap(err, "failed to create aggregator client")
	}

	ratioSource, err := buildRatioSource(cfg)
	if err != nil {
		wallet.Close()
		return nil, errors.Wrap(err, "failed to create ratio source")
	}

	amountCfg, err := amount.NewConfig(cfg.Amount.InitialAmount,
		amount.WithIncrementStep(cfg.Amount.IncrementStep),
		amount.WithDecrementStep(cfg.Amount.DecrementStep),
		amount.WithStabilityThreshold(cfg.Amount.StabilityThreshold),
		amount.WithMaxIncrementAttempts(cfg.Amount.MaxIncrementAttempts),
		amount.WithMaxCeiling(cfg.Amount.MaxCeiling),
		amount.WithDescending(cfg.Amount.EnableDescending),
		amount.WithAdjustOnUnknownError(cfg.Amount.AdjustOnUnknownError),
	)
	if err != nil {
		wallet.Close()
		return nil, errors.Wrap(err, "invalid amount settings")
	}
	controller := amount.NewController(amountCfg, logger)

	var points *tracker.Tracker
	if cfg.Tracker.Enabled {
		points, err = tracker.New(tracker.Config{
			FrontendBase: cfg.Tracker.FrontendBase,
			APIBase:      cfg.APIBase,
			Cookies:      cfg.Tracker.Cookies,
			ChainUID:     cfg.ChainUID,
		}, logger)
		if err != nil {
			wallet.Close()
			return nil, errors.Wrap(err, "failed to create points tracker")
		}
	}

	forward, err := swapper.NewForward(swapper.ForwardConfig{
		Pair:            cfg.Pair,
		Network:         cfg.PrimaryNetwork,
		GasBuffer:       cfg.GasBuffer,
		FinalityTimeout: cfg.FinalityTimeout,
	}, backend, wallet, controller, logger)
	if err != nil {
		wallet.Close()
		return nil, errors.Wrap(err, "failed to create forward module")
	}

	reverse, err := swapper.NewReverse(swapper.ReverseConfig{
		Pair:            cfg.Pair.Reversed(),
		Network:         cfg.ReserveNetwork,
		GasBuffer:       cfg.GasBuffer,
		FinalityTimeout: cfg.FinalityTimeout,
	}, backend, wallet, wallet, ratioSource, controller, logger)
	if err != nil {
		wallet.Close()
		return nil, errors.Wrap(err, "failed to create reverse module")
	}

	if points != nil {
		forward.SetPointsSink(points)
		reverse.SetPointsSink(points)
	}

	orch, err := orchestrator.New(forward, reverse, logger,
		orchestrator.WithSwitchCooldown(cfg.SwitchCooldown),
		orchestrator.WithMaxConsecutiveFailures(cfg.MaxConsecutiveFailures),
	)
	if err != nil {
		wallet.Close()
		return nil, errors.Wrap(err, "failed to create orchestrator")
	}

	store, err := botstate.NewWALStore(cfg.StateDir)
	if err != nil {
		wallet.Close()
		return nil, errors.Wrap(err, "failed to open state store")
	}

	bot := &SwapBot{
		cfg:        cfg,
		logger:     logger,
		wallet:     wallet,
		controller: controller,
		orch:       orch,
		tracker:    points,
		store:      store,
	}
	bot.refreshStatus()
	return bot, nil
}

// Run restores persisted state and executes swaps until the context is
// cancelled.
func (b *SwapBot) Run(ctx context.Context) error {
	if err := b.restore(); err != nil {
		return errors.Wrap(err, "failed to restore persisted state")
	}

	b.logger.Info("starting swap loop",
		zap.String("pair", b.cfg.Pair.String()),
		zap.String("amount", b.controller.CurrentAmount().String()),
		zap.Duration("swap_interval", b.cfg.SwapInterval))

	ticker := time.NewTicker(b.cfg.SwapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("context done, stopping swap loop",
				zap.String("pair", b.cfg.Pair.String()))
			return ctx.Err()
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick runs one swap attempt and feeds the outcome back.
func (b *SwapBot) tick(ctx context.Context) {
	b.mu.Lock()
	result := b.orch.ExecuteSwap(ctx, nil)
	adjusted, changed := b.controller.ProcessResult(result.Outcome())
	snap := b.controller.Export()
	switches := b.orch.SwitchHistory()
	b.refreshStatus()
	b.mu.Unlock()

	if result.Success {
		b.logger.Info("swap executed",
			zap.String("direction", result.Direction.String()),
			zap.String("amount", result.Amount.String()),
			zap.String("tx_hash", result.TxHash))
	} else {
		b.logger.Warn("swap failed",
			zap.String("direction", result.Direction.String()),
			zap.String("error_type", result.ErrorType),
			zap.String("error", result.ErrorMessage))
	}

	if changed {
		b.logger.Info("swap amount adjusted",
			zap.String("amount", adjusted.String()))
	}
	if result.SwitchTriggered && result.SwitchSuccessful {
		b.logger.Info("direction switched",
			zap.String("reason", result.SwitchReason),
			zap.String("direction", result.NewDirection.String()))
	}

	b.persist(snap, switches)
}

// persist saves the amount snapshot and any switch records not yet
// written. Persistence failures are logged, never fatal.
func (b *SwapBot) persist(snap amount.Snapshot, switches []domain.SwitchRecord) {
	if err := b.store.SaveSnapshot(b.cfg.Pair, snap); err != nil {
		b.logger.Error("failed to persist amount snapshot", zap.Error(err))
	}

	for _, record := range switches {
		if record.SwitchNumber <= b.persistedSwitches {
			continue
		}
		if err := b.store.SaveSwitch(record); err != nil {
			b.logger.Error("failed to persist switch record", zap.Error(err))
			continue
		}
		b.persistedSwitches = record.SwitchNumber
	}
}

// restore loads the latest amount snapshot for the configured pair.
func (b *SwapBot) restore() error {
	snap, found, err := b.store.LatestSnapshot(b.cfg.Pair)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	b.mu.Lock()
	b.controller.Import(snap)
	b.refreshStatus()
	b.mu.Unlock()

	b.logger.Info("restored amount state",
		zap.String("amount", snap.CurrentAmount.String()),
		zap.String("phase", snap.CurrentPhase))
	return nil
}

// refreshStatus recomputes the cached dashboard status. Callers must hold
// b.mu unless the run loop has not started yet.
func (b *SwapBot) refreshStatus() {
	status := Status{
		Pair:         b.cfg.Pair.String(),
		Orchestrator: b.orch.Stats(),
		Amount:       b.controller.Stats(),
	}

	b.statusMu.Lock()
	b.lastStatus = status
	b.statusMu.Unlock()
}

// Status implements dashboard.StatusProvider. It serves the status cached
// at the end of the last tick, so it never blocks on an in-flight swap.
func (b *SwapBot) Status() any {
	b.statusMu.RLock()
	status := b.lastStatus
	b.statusMu.RUnlock()

	if b.tracker != nil {
		stats := b.tracker.Stats()
		status.Tracker = &stats
	}
	return status
}

// Switches implements the dashboard switch feed.
func (b *SwapBot) Switches() ([]domain.SwitchRecord, error) {
	return b.store.Switches()
}

// Close releases RPC connections and the state store.
func (b *SwapBot) Close() {
	b.wallet.Close()
	if err := b.store.Close(); err != nil {
		b.logger.Error("failed to close state store", zap.Error(err))
	}
}

// buildRatioSource dispatches on the configured ratio mode. Market modes
// quote both tokens against a common counter currency on the chosen
// exchange and fall back to the static value when the exchange is down.
func buildRatioSource(cfg config.Config) (swapper.RatioSource, error) {
	if cfg.Ratio.Mode == "static" {
		return ratio.NewStatic(cfg.Ratio.Static)
	}

	var pricer ratio.Pricer
	switch cfg.Ratio.Mode {
	case "binance":
		pricer = ratio.NewBinancePricer(clients.NewBinanceClient())
	case "bybit":
		pricer = ratio.NewBybitPricer(clients.NewBybitClient())
	case "hyperliquid":
		client, err := clients.NewHyperliquidClient(cfg.PrivateKey, "")
		if err != nil {
			return nil, errors.Wrap(err, "failed to create hyperliquid client")
		}
		pricer = ratio.NewHyperliquidPricer(client.Info())
	default:
		return nil, fmt.Errorf("unsupported ratio mode: %s", cfg.Ratio.Mode)
	}

	return ratio.NewMarket(ratio.MarketConfig{
		PrimaryPair:     cfg.Ratio.PrimaryPair,
		ReservePair:     cfg.Ratio.ReservePair,
		SmoothingPeriod: cfg.Ratio.SmoothingPeriod,
		Fallback:        cfg.Ratio.Static,
	}, pricer)
}

func walletNetworks(networks map[string]config.NetworkConfig) map[string]clients.NetworkConfig {
	out := make(map[string]clients.NetworkConfig, len(networks))
	for name, n := range networks {
		out[name] = clients.NetworkConfig{RPCURL: n.RPCURL, ChainID: n.ChainID}
	}
	return out
}
