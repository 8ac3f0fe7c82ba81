package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitClient creates a public market data client. The V5 ticker
// endpoint works without auth.
func NewBybitClient() *bybit.Client {
	return bybit.NewClient()
}
