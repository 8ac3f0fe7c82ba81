package clients

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultGasLimit = 800000
	// gasEstimateBuffer pads the node's estimate by 20%.
	gasEstimateBuffer = 120

	receiptPollInterval = 3 * time.Second
)

// NetworkConfig describes one EVM chain the wallet operates on.
type NetworkConfig struct {
	RPCURL  string
	ChainID int64
}

// WalletConfig configures the multi-network wallet.
type WalletConfig struct {
	PrivateKeyHex string
	// Networks maps chain UID (e.g. "plume", "somnia") to its config.
	Networks map[string]NetworkConfig
	// PrimaryNetwork holds the primary token, ReserveNetwork the reserve.
	PrimaryNetwork string
	ReserveNetwork string
}

// Wallet signs and broadcasts transactions across the configured networks
// and reports native balances. It implements swapper.Wallet,
// swapper.BalanceOracle and TxBroadcaster.
type Wallet struct {
	cfg     WalletConfig
	key     *ecdsa.PrivateKey
	address common.Address
	logger  *zap.Logger

	mu            sync.Mutex
	clients       map[string]*ethclient.Client
	activeNetwork string
	// txNetworks remembers which network a hash was broadcast on.
	txNetworks map[string]string
}

// NewWallet creates the wallet and connects to every configured network.
func NewWallet(cfg WalletConfig, logger *zap.Logger) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	if len(cfg.Networks) == 0 {
		return nil, errors.New("wallet requires at least one network")
	}
	if _, ok := cfg.Networks[cfg.PrimaryNetwork]; !ok {
		return nil, errors.Errorf("primary network %q is not configured", cfg.PrimaryNetwork)
	}
	if _, ok := cfg.Networks[cfg.ReserveNetwork]; !ok {
		return nil, errors.Errorf("reserve network %q is not configured", cfg.ReserveNetwork)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clients := make(map[string]*ethclient.Client, len(cfg.Networks))
	for name, network := range cfg.Networks {
		client, err := ethclient.Dial(network.RPCURL)
		if err != nil {
			return nil, errors.Wrapf(err, "dial %s rpc", name)
		}
		clients[name] = client
	}

	return &Wallet{
		cfg:           cfg,
		key:           key,
		address:       crypto.PubkeyToAddress(key.PublicKey),
		logger:        logger,
		clients:       clients,
		activeNetwork: cfg.PrimaryNetwork,
		txNetworks:    make(map[string]string),
	}, nil
}

// Address returns the wallet address in lowercase hex.
func (w *Wallet) Address() string {
	return strings.ToLower(w.address.Hex())
}

func (w *Wallet) client(network string) (*ethclient.Client, NetworkConfig, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if network == "" {
		network = w.activeNetwork
	}
	client, ok := w.clients[network]
	if !ok {
		return nil, NetworkConfig{}, errors.Errorf("unknown network %q", network)
	}
	return client, w.cfg.Networks[network], nil
}

// resolveNetwork maps the empty network to whichever network is currently
// active, matching the fallback client applies.
func (w *Wallet) resolveNetwork(network string) string {
	if network != "" {
		return network
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeNetwork
}

// Balance returns the native token balance on the given network.
func (w *Wallet) Balance(ctx context.Context, network string) (decimal.Decimal, error) {
	client, _, err := w.client(network)
	if err != nil {
		return decimal.Zero, err
	}

	wei, err := client.BalanceAt(ctx, w.address, nil)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "fetch balance on %s", network)
	}

	return decimal.NewFromBigInt(wei, -tokenDecimals), nil
}

// ReserveBalance returns the native balance on the reserve network.
func (w *Wallet) ReserveBalance(ctx context.Context, _ string) (decimal.Decimal, error) {
	return w.Balance(ctx, w.cfg.ReserveNetwork)
}

// SwitchNetwork verifies the target chain is reachable and makes it the
// active default.
func (w *Wallet) SwitchNetwork(ctx context.Context, network string) error {
	client, cfg, err := w.client(network)
	if err != nil {
		return err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return errors.Wrapf(err, "reach %s network", network)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		return errors.Errorf("network %s reports chain id %d, expected %d",
			network, chainID.Int64(), cfg.ChainID)
	}

	w.mu.Lock()
	w.activeNetwork = network
	w.mu.Unlock()

	w.logger.Debug("network switched",
		zap.String("network", network),
		zap.Int64("chain_id", chainID.Int64()))
	return nil
}

// rawTx is the transaction shape the swap API returns. Numeric fields may
// be hex or decimal strings.
type rawTx struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

// SendTransaction signs and broadcasts an API-prepared transaction on the
// given network.
func (w *Wallet) SendTransaction(ctx context.Context, network string, raw json.RawMessage) (string, error) {
	var tx rawTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return "", errors.Wrap(err, "decode transaction data")
	}
	if tx.To == "" {
		return "", errors.New("transaction data has no recipient")
	}

	network = w.resolveNetwork(network)
	client, netCfg, err := w.client(network)
	if err != nil {
		return "", err
	}

	nonce, err := client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", errors.Wrap(err, "fetch nonce")
	}

	gasPrice, err := parseQuantity(tx.GasPrice)
	if err != nil || gasPrice.Sign() == 0 {
		gasPrice, err = client.SuggestGasPrice(ctx)
		if err != nil {
			return "", errors.Wrap(err, "fetch gas price")
		}
	}

	to := common.HexToAddress(tx.To)
	value := big.NewInt(0)
	if tx.Value != "" {
		if value, err = parseQuantity(tx.Value); err != nil {
			return "", errors.Wrap(err, "parse transaction value")
		}
	}

	var data []byte
	if tx.Data != "" && tx.Data != "0x" {
		if data, err = hexutil.Decode(tx.Data); err != nil {
			return "", errors.Wrap(err, "parse transaction data")
		}
	}

	gasLimit := uint64(defaultGasLimit)
	if estimate, estimateErr := client.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  data,
	}); estimateErr == nil {
		gasLimit = estimate * gasEstimateBuffer / 100
	}

	chainID := big.NewInt(netCfg.ChainID)
	if netCfg.ChainID == 0 {
		if chainID, err = client.ChainID(ctx); err != nil {
			return "", errors.Wrap(err, "fetch chain id")
		}
	}

	signed, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	}), types.NewEIP155Signer(chainID), w.key)
	if err != nil {
		return "", errors.Wrap(err, "sign transaction")
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", errors.Wrap(err, "broadcast transaction")
	}

	hash := signed.Hash().Hex()

	w.mu.Lock()
	w.txNetworks[hash] = network
	w.mu.Unlock()

	w.logger.Info("transaction sent",
		zap.String("tx_hash", hash),
		zap.String("network", network),
		zap.Uint64("gas_limit", gasLimit))

	return hash, nil
}

// WaitMined polls for the transaction receipt until it lands or the
// timeout expires. Returns false when the transaction reverted.
func (w *Wallet) WaitMined(ctx context.Context, txHash string, timeout time.Duration) (bool, error) {
	w.mu.Lock()
	network := w.txNetworks[txHash]
	delete(w.txNetworks, txHash)
	w.mu.Unlock()

	client, _, err := w.client(network)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hash := common.HexToHash(txHash)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt.Status == types.ReceiptStatusSuccessful, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			w.logger.Debug("receipt poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases all RPC connections.
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, client := range w.clients {
		client.Close()
	}
}

// parseQuantity reads a hex ("0x...") or decimal string into a big int.
func parseQuantity(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return hexutil.DecodeBig(s)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("malformed quantity %q", s)
	}
	return n, nil
}
