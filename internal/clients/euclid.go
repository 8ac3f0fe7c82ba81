// Package clients contains the outbound integrations: the Euclid swap API
// and the EVM wallet.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/euclidbot/internal/services/swapper"
	"github.com/vadiminshakov/euclidbot/pkg/retrier"
	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	routesLimit        = 10

	// slippageBps is 5% expressed in basis points, matching the web UI.
	slippageBps = "500"
	partnerFee  = 10

	// vslChainUID is the intermediary chain for all cross-chain routes.
	vslChainUID = "vsl"

	tokenDecimals = 18
)

// TxBroadcaster signs, broadcasts and tracks the transactions the swap API
// prepares. Implemented by the wallet client.
type TxBroadcaster interface {
	SendTransaction(ctx context.Context, network string, tx json.RawMessage) (string, error)
	// WaitMined reports whether the transaction confirmed. The broadcaster
	// remembers which network each hash was sent on.
	WaitMined(ctx context.Context, txHash string, timeout time.Duration) (bool, error)
}

// EuclidConfig configures the swap API client.
type EuclidConfig struct {
	// APIBase is the aggregator API root, e.g. https://testnet.api.euclidswap.io.
	APIBase string
	// Origin and Referer mimic the web UI; the API rejects bare requests.
	Origin  string
	Referer string
	// Address is the sender wallet address, lowercased in payloads.
	Address string
	// TokenChains maps a token symbol to the chain UID it lives on.
	TokenChains map[string]string
}

// EuclidClient talks to the Euclid swap aggregator. It implements
// swapper.Backend: quote a route, build and broadcast the swap, await
// finality.
type EuclidClient struct {
	cfg         EuclidConfig
	httpClient  *http.Client
	retrier     *retrier.Retrier
	broadcaster TxBroadcaster
	logger      *zap.Logger
}

// NewEuclidClient creates the aggregator client.
func NewEuclidClient(cfg EuclidConfig, broadcaster TxBroadcaster, logger *zap.Logger) (*EuclidClient, error) {
	if cfg.APIBase == "" {
		return nil, errors.New("euclid client requires an API base URL")
	}
	if cfg.Address == "" {
		return nil, errors.New("euclid client requires a sender address")
	}
	if broadcaster == nil {
		return nil, errors.New("euclid client requires a tx broadcaster")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EuclidClient{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: defaultHTTPTimeout},
		retrier:     retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(time.Second)),
		broadcaster: broadcaster,
		logger:      logger,
	}, nil
}

type routeRequest struct {
	AmountIn  string   `json:"amount_in"`
	ChainUIDs []string `json:"chain_uids"`
	External  bool     `json:"external"`
	TokenIn   string   `json:"token_in"`
	TokenOut  string   `json:"token_out"`
}

type routeHop struct {
	Route            []string `json:"route"`
	Dex              string   `json:"dex"`
	AmountIn         string   `json:"amount_in"`
	AmountOut        string   `json:"amount_out"`
	ChainUID         string   `json:"chain_uid"`
	AmountOutForHops []string `json:"amount_out_for_hops"`
}

type routePath struct {
	Path []routeHop `json:"path"`
}

type routeResponse struct {
	Paths []routePath `json:"paths"`
}

// routePlan is the quote payload carried opaquely inside swapper.Route.
type routePlan struct {
	TokenIn     string   `json:"token_in"`
	TokenOut    string   `json:"token_out"`
	AmountInWei string   `json:"amount_in_wei"`
	Route       []string `json:"route"`
	Dex         string   `json:"dex"`
	// AmountOutWei is the expected output used as the cross-chain limit.
	AmountOutWei     string   `json:"amount_out_wei"`
	AmountOutForHops []string `json:"amount_out_for_hops"`
}

// Quote asks the aggregator for the best route at the given size. Returns
// swapper.ErrNoRoute when the aggregator has no path for this amount.
func (c *EuclidClient) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (swapper.Route, error) {
	amountWei := toWei(amountIn)

	req := routeRequest{
		AmountIn:  amountWei,
		ChainUIDs: []string{},
		External:  true,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
	}

	var resp routeResponse
	url := fmt.Sprintf("%s/api/v1/routes?limit=%d", c.cfg.APIBase, routesLimit)
	if err := c.post(ctx, url, req, &resp); err != nil {
		return swapper.Route{}, errors.Wrap(err, "calculate route")
	}

	if len(resp.Paths) == 0 || len(resp.Paths[0].Path) == 0 {
		return swapper.Route{}, swapper.ErrNoRoute
	}

	hop := resp.Paths[0].Path[0]
	if hop.Dex == "" {
		hop.Dex = "euclid"
	}

	plan := routePlan{
		TokenIn:          tokenIn,
		TokenOut:         tokenOut,
		AmountInWei:      amountWei,
		Route:            hop.Route,
		Dex:              hop.Dex,
		AmountOutWei:     hop.AmountOut,
		AmountOutForHops: hop.AmountOutForHops,
	}

	payload, err := json.Marshal(plan)
	if err != nil {
		return swapper.Route{}, errors.Wrap(err, "marshal route plan")
	}

	c.logger.Debug("route found",
		zap.Strings("route", hop.Route),
		zap.String("amount_out_wei", hop.AmountOut))

	return swapper.Route{
		AmountOut: fromWei(hop.AmountOut),
		Payload:   payload,
	}, nil
}

type swapAddress struct {
	Address  string `json:"address"`
	ChainUID string `json:"chain_uid"`
}

type crossChainAddress struct {
	User  swapAddress `json:"user"`
	Limit struct {
		LessThanOrEqual string `json:"less_than_or_equal"`
	} `json:"limit"`
}

type swapRequest struct {
	AmountIn            string              `json:"amount_in"`
	AssetIn             map[string]any      `json:"asset_in"`
	CrossChainAddresses []crossChainAddress `json:"cross_chain_addresses"`
	Sender              swapAddress         `json:"sender"`
	Slippage            string              `json:"slippage"`
	SwapPath            swapPath            `json:"swap_path"`
	PartnerFee          partnerFeeBlock     `json:"partnerFee"`
}

type swapPath struct {
	Path             []routeHop `json:"path"`
	TotalPriceImpact string     `json:"total_price_impact"`
}

type partnerFeeBlock struct {
	PartnerFeeBps int    `json:"partner_fee_bps"`
	Recipient     string `json:"recipient"`
}

type swapResponse struct {
	Transaction json.RawMessage `json:"transaction"`
}

// Execute builds the swap transaction through the aggregator and hands it
// to the broadcaster for signing. Returns the transaction hash.
func (c *EuclidClient) Execute(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, route swapper.Route) (string, error) {
	var plan routePlan
	if err := json.Unmarshal(route.Payload, &plan); err != nil {
		return "", errors.Wrap(err, "decode route plan")
	}

	sourceChain := c.chainFor(tokenIn)
	destChain := c.chainFor(tokenOut)

	req := swapRequest{
		AmountIn: plan.AmountInWei,
		AssetIn:  nativeAsset(tokenIn),
		Sender: swapAddress{
			Address:  c.cfg.Address,
			ChainUID: sourceChain,
		},
		Slippage: slippageBps,
		SwapPath: swapPath{
			Path: []routeHop{{
				Route:            plan.Route,
				Dex:              plan.Dex,
				AmountIn:         plan.AmountInWei,
				AmountOut:        plan.AmountOutWei,
				ChainUID:         vslChainUID,
				AmountOutForHops: plan.AmountOutForHops,
			}},
			TotalPriceImpact: "0.00",
		},
		PartnerFee: partnerFeeBlock{PartnerFeeBps: partnerFee},
	}

	dest := crossChainAddress{
		User: swapAddress{Address: c.cfg.Address, ChainUID: destChain},
	}
	dest.Limit.LessThanOrEqual = plan.AmountOutWei
	req.CrossChainAddresses = []crossChainAddress{dest}

	var resp swapResponse
	url := c.cfg.APIBase + "/api/v1/execute/astro/swap"
	if err := c.post(ctx, url, req, &resp); err != nil {
		return "", errors.Wrap(err, "build swap transaction")
	}
	if len(resp.Transaction) == 0 {
		return "", errors.New("swap API returned no transaction data")
	}

	txHash, err := c.broadcaster.SendTransaction(ctx, sourceChain, resp.Transaction)
	if err != nil {
		return "", errors.Wrap(err, "broadcast swap transaction")
	}

	c.logger.Info("swap transaction broadcast",
		zap.String("tx_hash", txHash),
		zap.String("source_chain", sourceChain))

	return txHash, nil
}

// AwaitFinality waits for the broadcast transaction to settle on the
// source chain.
func (c *EuclidClient) AwaitFinality(ctx context.Context, txHash string, timeout time.Duration) (swapper.Finality, error) {
	confirmed, err := c.broadcaster.WaitMined(ctx, txHash, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return swapper.Finality{State: swapper.FinalityTimedOut}, nil
		}
		return swapper.Finality{}, errors.Wrap(err, "await finality")
	}
	if !confirmed {
		return swapper.Finality{
			State:        swapper.FinalityReverted,
			ErrorMessage: fmt.Sprintf("transaction %s reverted", txHash),
		}, nil
	}
	return swapper.Finality{State: swapper.FinalityConfirmed}, nil
}

func (c *EuclidClient) chainFor(token string) string {
	if chain, ok := c.cfg.TokenChains[token]; ok {
		return chain
	}
	return token
}

// nativeAsset builds the asset_in block for a native denom.
func nativeAsset(token string) map[string]any {
	return map[string]any{
		"token": token,
		"token_type": map[string]any{
			"__typename": "NativeTokenType",
			"native": map[string]any{
				"__typename": "NativeToken",
				"denom":      token,
			},
		},
	}
}

func (c *EuclidClient) post(ctx context.Context, url string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	return c.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return retrier.Permanent(errors.Wrap(err, "create request"))
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/plain, */*")
		if c.cfg.Origin != "" {
			req.Header.Set("Origin", c.cfg.Origin)
		}
		if c.cfg.Referer != "" {
			req.Header.Set("Referer", c.cfg.Referer)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return errors.Wrap(err, "send request")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "read response")
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("swap API returned %d: %s", resp.StatusCode, string(respBody))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retrier.Permanent(err)
			}
			return err
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return retrier.Permanent(errors.Wrap(err, "decode response"))
		}
		return nil
	})
}

// toWei converts a token amount to its 18-decimal wei representation.
func toWei(amount decimal.Decimal) string {
	return amount.Shift(tokenDecimals).Truncate(0).String()
}

// fromWei converts a wei string back to token units. Unparseable input
// yields zero.
func fromWei(wei string) decimal.Decimal {
	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n, -tokenDecimals)
}
