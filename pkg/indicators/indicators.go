// Package indicators wraps the cinar/indicator library for the smoothing
// the bot needs on noisy market ratios.
package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
)

// EMA calculates the Exponential Moving Average for the given period.
// The result is aligned to the tail of the input: the first value
// corresponds to input index period-1.
func EMA(values []decimal.Decimal, period int) ([]decimal.Decimal, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(values))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	inputChan := helper.SliceToChan(decimalsToFloat64(values))
	outputChan := ema.Compute(inputChan)
	emaFloat := helper.ChanToSlice(outputChan)

	return float64ToDecimals(emaFloat), nil
}

// LatestEMA returns only the most recent EMA value.
func LatestEMA(values []decimal.Decimal, period int) (decimal.Decimal, error) {
	ema, err := EMA(values, period)
	if err != nil {
		return decimal.Zero, err
	}
	if len(ema) == 0 {
		return decimal.Zero, fmt.Errorf("ema produced no values for period %d", period)
	}
	return ema[len(ema)-1], nil
}

func decimalsToFloat64(values []decimal.Decimal) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i], _ = v.Float64()
	}
	return out
}

func float64ToDecimals(values []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}
