package ratio

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/euclidbot/internal/domain"
)

type stubPricer struct {
	prices map[string]decimal.Decimal
	err    error
}

func (p *stubPricer) Price(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	if p.err != nil {
		return decimal.Zero, p.err
	}
	return p.prices[pair.Symbol()], nil
}

func marketConfig() MarketConfig {
	return MarketConfig{
		PrimaryPair:     domain.Pair{From: "PLUME", To: "USDT"},
		ReservePair:     domain.Pair{From: "STT", To: "USDT"},
		SmoothingPeriod: 3,
	}
}

func TestStatic(t *testing.T) {
	s, err := NewStatic(decimal.NewFromFloat(0.29))
	require.NoError(t, err)

	v, err := s.Ratio(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0.29", v.String())

	_, err = NewStatic(decimal.Zero)
	require.Error(t, err)
	_, err = NewStatic(decimal.NewFromFloat(-1))
	require.Error(t, err)
}

func TestMarket_RawRatioBeforeWarmup(t *testing.T) {
	pricer := &stubPricer{prices: map[string]decimal.Decimal{
		"PLUMEUSDT": decimal.NewFromFloat(0.058),
		"STTUSDT":   decimal.NewFromFloat(0.2),
	}}
	m, err := NewMarket(marketConfig(), pricer)
	require.NoError(t, err)

	v, err := m.Ratio(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0.29", v.String())
}

func TestMarket_SmoothsAfterWarmup(t *testing.T) {
	pricer := &stubPricer{prices: map[string]decimal.Decimal{
		"PLUMEUSDT": decimal.NewFromFloat(0.06),
		"STTUSDT":   decimal.NewFromFloat(0.2),
	}}
	m, err := NewMarket(marketConfig(), pricer)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		v, err := m.Ratio(context.Background())
		require.NoError(t, err)
		// constant input stays constant through the EMA
		require.True(t, v.Sub(decimal.NewFromFloat(0.3)).Abs().LessThan(decimal.NewFromFloat(0.0001)),
			"got %s", v.String())
	}
}

func TestMarket_FallbackOnPricerError(t *testing.T) {
	pricer := &stubPricer{err: errors.New("exchange down")}

	cfg := marketConfig()
	cfg.Fallback = decimal.NewFromFloat(0.29)
	m, err := NewMarket(cfg, pricer)
	require.NoError(t, err)

	v, err := m.Ratio(context.Background())
	require.NoError(t, err)
	require.Equal(t, "0.29", v.String())
}

func TestMarket_ErrorWithoutFallback(t *testing.T) {
	pricer := &stubPricer{err: errors.New("exchange down")}
	m, err := NewMarket(marketConfig(), pricer)
	require.NoError(t, err)

	_, err = m.Ratio(context.Background())
	require.Error(t, err)
}

func TestMarket_ZeroReservePrice(t *testing.T) {
	pricer := &stubPricer{prices: map[string]decimal.Decimal{
		"PLUMEUSDT": decimal.NewFromFloat(0.06),
	}}
	m, err := NewMarket(marketConfig(), pricer)
	require.NoError(t, err)

	_, err = m.Ratio(context.Background())
	require.Error(t, err)
}

func TestMarket_RequiresPricer(t *testing.T) {
	_, err := NewMarket(marketConfig(), nil)
	require.Error(t, err)
}
