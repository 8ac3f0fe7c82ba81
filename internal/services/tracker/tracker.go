// Package tracker submits confirmed swaps to the aggregator's points
// endpoints. Submission is best effort: a failure never blocks the swap
// loop.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/euclidbot/pkg/retrier"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 15 * time.Second
	// pointsPerSwap is what the campaign awards for one tracked swap.
	pointsPerSwap = 10
)

// Config configures the points tracker.
type Config struct {
	// FrontendBase hosts the authenticated intract-track endpoint.
	FrontendBase string
	// APIBase hosts the public txn tracking endpoint.
	APIBase string
	// Cookies authenticate against the frontend endpoint.
	Cookies map[string]string
	// ChainUID tags submitted transactions.
	ChainUID string
}

// Stats are the tracker's running counters.
type Stats struct {
	TotalPoints           int `json:"total_points"`
	SuccessfulSubmissions int `json:"successful_submissions"`
	FailedSubmissions     int `json:"failed_submissions"`
}

// Tracker submits swap transactions to both tracking endpoints. Safe for
// concurrent use.
type Tracker struct {
	cfg        Config
	httpClient *http.Client
	retrier    *retrier.Retrier
	logger     *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a points tracker.
func New(cfg Config, logger *zap.Logger) (*Tracker, error) {
	if cfg.APIBase == "" {
		return nil, errors.New("tracker requires an API base URL")
	}
	if cfg.ChainUID == "" {
		cfg.ChainUID = "plume"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tracker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retrier:    retrier.New(retrier.WithMaxRetries(1), retrier.WithInitialInterval(time.Second)),
		logger:     logger,
	}, nil
}

type trackPayload struct {
	ChainUID      string `json:"chain_uid"`
	TxHash        string `json:"tx_hash"`
	WalletAddress string `json:"wallet_address"`
	Type          string `json:"type,omitempty"`
}

// Submit reports the transaction to both endpoints and returns true when
// at least one accepted it.
func (t *Tracker) Submit(ctx context.Context, txHash, walletAddress string) bool {
	payload := trackPayload{
		ChainUID:      t.cfg.ChainUID,
		TxHash:        txHash,
		WalletAddress: walletAddress,
		Type:          "swap",
	}

	frontendOK := false
	if t.cfg.FrontendBase != "" {
		frontendOK = t.submit(ctx, t.cfg.FrontendBase+"/api/intract-track", payload, true)
	}
	backendOK := t.submit(ctx, t.cfg.APIBase+"/api/v1/txn/track/swap", payload, false)

	t.mu.Lock()
	defer t.mu.Unlock()

	if frontendOK || backendOK {
		t.stats.SuccessfulSubmissions++
		t.stats.TotalPoints += pointsPerSwap
		t.logger.Info("points submission accepted",
			zap.String("tx_hash", txHash),
			zap.Int("total_points", t.stats.TotalPoints))
		return true
	}

	t.stats.FailedSubmissions++
	t.logger.Warn("points submission failed", zap.String("tx_hash", txHash))
	return false
}

// SubmitAsync fires Submit on its own goroutine so the swap loop never
// waits on the tracking endpoints.
func (t *Tracker) SubmitAsync(ctx context.Context, txHash, walletAddress string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout*2)
		defer cancel()
		t.Submit(ctx, txHash, walletAddress)
	}()
}

// Stats returns a copy of the running counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func (t *Tracker) submit(ctx context.Context, url string, payload trackPayload, withCookies bool) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		t.logger.Warn("marshal track payload", zap.Error(err))
		return false
	}

	err = t.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retrier.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/plain, */*")
		if withCookies {
			req.Header.Set("Origin", t.cfg.FrontendBase)
			req.Header.Set("Referer", t.cfg.FrontendBase+"/swap")
			for name, value := range t.cfg.Cookies {
				req.AddCookie(&http.Cookie{Name: name, Value: value})
			}
		}

		resp, err := t.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 400 {
			err := fmt.Errorf("tracking endpoint returned %d", resp.StatusCode)
			if resp.StatusCode < 500 {
				return retrier.Permanent(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		t.logger.Debug("track submission error", zap.String("url", url), zap.Error(err))
		return false
	}
	return true
}
