// Package ratio supplies the reserve-to-primary conversion ratio used by
// the reverse swap module. The ratio is either pinned statically or derived
// from live market prices and smoothed.
package ratio

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/euclidbot/internal/domain"
	"github.com/vadiminshakov/euclidbot/pkg/indicators"
)

// Pricer fetches the last market price for a symbol pair.
type Pricer interface {
	Price(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// Static returns a pinned conversion ratio.
type Static struct {
	value decimal.Decimal
}

// NewStatic creates a static ratio source.
func NewStatic(value decimal.Decimal) (*Static, error) {
	if !value.IsPositive() {
		return nil, fmt.Errorf("ratio must be positive, got %s", value.String())
	}
	return &Static{value: value}, nil
}

// Ratio returns the pinned value.
func (s *Static) Ratio(_ context.Context) (decimal.Decimal, error) {
	return s.value, nil
}

const (
	defaultSmoothingPeriod = 5
	// sampleCap bounds the retained price history.
	sampleCap = 64
)

// MarketConfig configures a market-derived ratio source.
type MarketConfig struct {
	// PrimaryPair quotes the primary token (e.g. PLUME_USDT).
	PrimaryPair domain.Pair
	// ReservePair quotes the reserve token (e.g. STT_USDT).
	ReservePair domain.Pair
	// SmoothingPeriod is the EMA period applied to sampled ratios.
	SmoothingPeriod int
	// Fallback is returned when the pricer fails. Zero disables the
	// fallback and surfaces the error instead.
	Fallback decimal.Decimal
}

// Market derives the ratio from live quotes of both tokens against a
// common counter currency and smooths it with an EMA over recent samples.
// Safe for concurrent use.
type Market struct {
	cfg    MarketConfig
	pricer Pricer

	mu      sync.Mutex
	samples []decimal.Decimal
}

// NewMarket creates a market ratio source.
func NewMarket(cfg MarketConfig, pricer Pricer) (*Market, error) {
	if pricer == nil {
		return nil, errors.New("market ratio source requires a pricer")
	}
	if cfg.SmoothingPeriod <= 0 {
		cfg.SmoothingPeriod = defaultSmoothingPeriod
	}
	if cfg.Fallback.IsNegative() {
		return nil, fmt.Errorf("fallback ratio must not be negative, got %s", cfg.Fallback.String())
	}
	return &Market{cfg: cfg, pricer: pricer}, nil
}

// Ratio fetches both quotes, records the raw ratio and returns the smoothed
// value once enough samples accumulated.
func (m *Market) Ratio(ctx context.Context) (decimal.Decimal, error) {
	primary, err := m.pricer.Price(ctx, m.cfg.PrimaryPair)
	if err != nil {
		return m.fallback(errors.Wrapf(err, "fetch %s price", m.cfg.PrimaryPair.String()))
	}

	reserve, err := m.pricer.Price(ctx, m.cfg.ReservePair)
	if err != nil {
		return m.fallback(errors.Wrapf(err, "fetch %s price", m.cfg.ReservePair.String()))
	}
	if reserve.IsZero() {
		return m.fallback(fmt.Errorf("zero %s price", m.cfg.ReservePair.String()))
	}

	raw := primary.Div(reserve)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.samples = append(m.samples, raw)
	if len(m.samples) > sampleCap {
		m.samples = m.samples[len(m.samples)-sampleCap:]
	}

	if len(m.samples) < m.cfg.SmoothingPeriod {
		return raw, nil
	}

	smoothed, err := indicators.LatestEMA(m.samples, m.cfg.SmoothingPeriod)
	if err != nil {
		return raw, nil
	}
	return smoothed, nil
}

func (m *Market) fallback(err error) (decimal.Decimal, error) {
	if m.cfg.Fallback.IsPositive() {
		return m.cfg.Fallback, nil
	}
	return decimal.Zero, err
}
