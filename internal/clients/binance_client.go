package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient creates a public market data client. Price queries do
// not need credentials.
func NewBinanceClient() *binance.Client {
	return binance.NewClient("", "")
}
