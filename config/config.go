// Package config loads the bot configuration from a yaml file with
// environment overrides for secrets.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/euclidbot/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	// PrivateKeyEnv overrides the wallet private key from the config file.
	PrivateKeyEnv = "EUCLIDBOT_PRIVATE_KEY"

	defaultInitialAmount   = "0.5"
	defaultGasBuffer       = "0.01"
	defaultSwapInterval    = 30 * time.Second
	defaultSwitchCooldown  = 5 * time.Second
	defaultFinalityTimeout = 5 * time.Minute
	defaultMaxFailures     = 3
	defaultRatio           = "0.29"
)

// NetworkConfig is one EVM chain the bot operates on.
type NetworkConfig struct {
	RPCURL  string `yaml:"rpc_url"`
	ChainID int64  `yaml:"chain_id"`
}

// AmountConfig holds the adaptive amount controller settings.
type AmountConfig struct {
	InitialAmount        decimal.Decimal
	IncrementStep        decimal.Decimal
	DecrementStep        decimal.Decimal
	StabilityThreshold   int
	MaxIncrementAttempts int
	MaxCeiling           decimal.Decimal
	EnableDescending     bool
	AdjustOnUnknownError bool
}

// RatioConfig selects how the reserve conversion ratio is obtained.
type RatioConfig struct {
	// Mode is "static" or one of the market pricers: "binance", "bybit",
	// "hyperliquid".
	Mode            string
	Static          decimal.Decimal
	SmoothingPeriod int
	// PrimaryPair and ReservePair quote both tokens against a common
	// counter currency on the chosen exchange.
	PrimaryPair domain.Pair
	ReservePair domain.Pair
}

// TrackerConfig configures points submission.
type TrackerConfig struct {
	Enabled      bool
	FrontendBase string
	Cookies      map[string]string
}

// DashboardConfig configures the web dashboard.
type DashboardConfig struct {
	Enabled    bool
	ListenAddr string
	// Domain enables Let's Encrypt autocert when set.
	Domain string
}

// Config is the full bot configuration.
type Config struct {
	Pair domain.Pair

	APIBase  string
	Origin   string
	Referer  string
	ChainUID string

	PrivateKey     string
	Networks       map[string]NetworkConfig
	PrimaryNetwork string
	ReserveNetwork string

	GasBuffer       decimal.Decimal
	SwapInterval    time.Duration
	FinalityTimeout time.Duration

	SwitchCooldown         time.Duration
	MaxConsecutiveFailures int

	Amount    AmountConfig
	Ratio     RatioConfig
	Tracker   TrackerConfig
	Dashboard DashboardConfig

	StateDir string
}

type configTmp struct {
	Pair     string `yaml:"pair"`
	APIBase  string `yaml:"api_base"`
	Origin   string `yaml:"origin"`
	Referer  string `yaml:"referer"`
	ChainUID string `yaml:"chain_uid"`

	PrivateKey     string                   `yaml:"private_key,omitempty"`
	Networks       map[string]NetworkConfig `yaml:"networks"`
	PrimaryNetwork string                   `yaml:"primary_network"`
	ReserveNetwork string                   `yaml:"reserve_network"`

	GasBuffer       string `yaml:"gas_buffer,omitempty"`
	SwapInterval    string `yaml:"swap_interval,omitempty"`
	FinalityTimeout string `yaml:"finality_timeout,omitempty"`

	SwitchCooldown         string `yaml:"switch_cooldown,omitempty"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures,omitempty"`

	Amount struct {
		InitialAmount        string `yaml:"initial_amount,omitempty"`
		IncrementStep        string `yaml:"increment_step,omitempty"`
		DecrementStep        string `yaml:"decrement_step,omitempty"`
		StabilityThreshold   int    `yaml:"stability_threshold,omitempty"`
		MaxIncrementAttempts int    `yaml:"max_increment_attempts,omitempty"`
		MaxCeiling           string `yaml:"max_ceiling,omitempty"`
		EnableDescending     *bool  `yaml:"enable_descending,omitempty"`
		AdjustOnUnknownError *bool  `yaml:"adjust_on_unknown_error,omitempty"`
	} `yaml:"amount"`

	Ratio struct {
		Mode            string `yaml:"mode,omitempty"`
		Static          string `yaml:"static,omitempty"`
		SmoothingPeriod int    `yaml:"smoothing_period,omitempty"`
		PrimaryPair     string `yaml:"primary_pair,omitempty"`
		ReservePair     string `yaml:"reserve_pair,omitempty"`
	} `yaml:"ratio"`

	Tracker struct {
		Enabled      bool              `yaml:"enabled"`
		FrontendBase string            `yaml:"frontend_base,omitempty"`
		Cookies      map[string]string `yaml:"cookies,omitempty"`
	} `yaml:"tracker"`

	Dashboard struct {
		Enabled    bool   `yaml:"enabled"`
		ListenAddr string `yaml:"listen_addr,omitempty"`
		Domain     string `yaml:"domain,omitempty"`
	} `yaml:"dashboard"`

	StateDir string `yaml:"state_dir,omitempty"`
}

// Get loads the configuration from the path given by the -config flag.
func Get() (Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()
	return FromFile(*path)
}

// FromFile loads and validates the configuration at path.
func FromFile(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	return build(tmp)
}

func build(tmp configTmp) (Config, error) {
	pair, err := pairFromString(tmp.Pair)
	if err != nil {
		return Config{}, fmt.Errorf("incorrect 'pair' param: %w", err)
	}

	if tmp.APIBase == "" {
		return Config{}, fmt.Errorf("'api_base' param is required")
	}

	privateKey := os.Getenv(PrivateKeyEnv)
	if privateKey == "" {
		privateKey = tmp.PrivateKey
	}
	if privateKey == "" {
		return Config{}, fmt.Errorf("wallet private key is required: set %s or 'private_key'", PrivateKeyEnv)
	}

	if len(tmp.Networks) == 0 {
		return Config{}, fmt.Errorf("'networks' param is required")
	}
	if _, ok := tmp.Networks[tmp.PrimaryNetwork]; !ok {
		return Config{}, fmt.Errorf("'primary_network' %q is not listed in 'networks'", tmp.PrimaryNetwork)
	}
	if _, ok := tmp.Networks[tmp.ReserveNetwork]; !ok {
		return Config{}, fmt.Errorf("'reserve_network' %q is not listed in 'networks'", tmp.ReserveNetwork)
	}

	cfg := Config{
		Pair:                   pair,
		APIBase:                strings.TrimRight(tmp.APIBase, "/"),
		Origin:                 tmp.Origin,
		Referer:                tmp.Referer,
		ChainUID:               tmp.ChainUID,
		PrivateKey:             privateKey,
		Networks:               tmp.Networks,
		PrimaryNetwork:         tmp.PrimaryNetwork,
		ReserveNetwork:         tmp.ReserveNetwork,
		MaxConsecutiveFailures: tmp.MaxConsecutiveFailures,
		StateDir:               tmp.StateDir,
	}

	if cfg.ChainUID == "" {
		cfg.ChainUID = tmp.PrimaryNetwork
	}
	if cfg.SwapInterval, err = durationOrDefault(tmp.SwapInterval, defaultSwapInterval); err != nil {
		return Config{}, fmt.Errorf("incorrect 'swap_interval' param: %w", err)
	}
	if cfg.FinalityTimeout, err = durationOrDefault(tmp.FinalityTimeout, defaultFinalityTimeout); err != nil {
		return Config{}, fmt.Errorf("incorrect 'finality_timeout' param: %w", err)
	}
	if cfg.SwitchCooldown, err = durationOrDefault(tmp.SwitchCooldown, defaultSwitchCooldown); err != nil {
		return Config{}, fmt.Errorf("incorrect 'switch_cooldown' param: %w", err)
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = defaultMaxFailures
	}

	if cfg.GasBuffer, err = decimalOrDefault(tmp.GasBuffer, defaultGasBuffer); err != nil {
		return Config{}, fmt.Errorf("incorrect 'gas_buffer' param: %w", err)
	}
	if cfg.GasBuffer.IsNegative() {
		return Config{}, fmt.Errorf("'gas_buffer' must not be negative, got %s", cfg.GasBuffer.String())
	}

	if err := buildAmount(&cfg, tmp); err != nil {
		return Config{}, err
	}
	if err := buildRatio(&cfg, tmp); err != nil {
		return Config{}, err
	}

	cfg.Tracker = TrackerConfig{
		Enabled:      tmp.Tracker.Enabled,
		FrontendBase: strings.TrimRight(tmp.Tracker.FrontendBase, "/"),
		Cookies:      tmp.Tracker.Cookies,
	}

	cfg.Dashboard = DashboardConfig{
		Enabled:    tmp.Dashboard.Enabled,
		ListenAddr: tmp.Dashboard.ListenAddr,
		Domain:     tmp.Dashboard.Domain,
	}
	if cfg.Dashboard.Enabled && cfg.Dashboard.ListenAddr == "" && cfg.Dashboard.Domain == "" {
		cfg.Dashboard.ListenAddr = ":8080"
	}

	return cfg, nil
}

func buildAmount(cfg *Config, tmp configTmp) error {
	var err error
	a := &cfg.Amount

	if a.InitialAmount, err = decimalOrDefault(tmp.Amount.InitialAmount, defaultInitialAmount); err != nil {
		return fmt.Errorf("incorrect 'amount.initial_amount' param: %w", err)
	}
	if a.IncrementStep, err = decimalOrDefault(tmp.Amount.IncrementStep, "0.1"); err != nil {
		return fmt.Errorf("incorrect 'amount.increment_step' param: %w", err)
	}
	if a.DecrementStep, err = decimalOrDefault(tmp.Amount.DecrementStep, "0.05"); err != nil {
		return fmt.Errorf("incorrect 'amount.decrement_step' param: %w", err)
	}
	if a.MaxCeiling, err = decimalOrDefault(tmp.Amount.MaxCeiling, "1.0"); err != nil {
		return fmt.Errorf("incorrect 'amount.max_ceiling' param: %w", err)
	}

	a.StabilityThreshold = tmp.Amount.StabilityThreshold
	if a.StabilityThreshold == 0 {
		a.StabilityThreshold = 3
	}
	a.MaxIncrementAttempts = tmp.Amount.MaxIncrementAttempts
	if a.MaxIncrementAttempts == 0 {
		a.MaxIncrementAttempts = 3
	}

	a.EnableDescending = true
	if tmp.Amount.EnableDescending != nil {
		a.EnableDescending = *tmp.Amount.EnableDescending
	}
	a.AdjustOnUnknownError = true
	if tmp.Amount.AdjustOnUnknownError != nil {
		a.AdjustOnUnknownError = *tmp.Amount.AdjustOnUnknownError
	}

	return nil
}

func buildRatio(cfg *Config, tmp configTmp) error {
	var err error
	r := &cfg.Ratio

	r.Mode = tmp.Ratio.Mode
	if r.Mode == "" {
		r.Mode = "static"
	}
	switch r.Mode {
	case "static", "binance", "bybit", "hyperliquid":
	default:
		return fmt.Errorf("incorrect 'ratio.mode' param: %q", r.Mode)
	}

	if r.Static, err = decimalOrDefault(tmp.Ratio.Static, defaultRatio); err != nil {
		return fmt.Errorf("incorrect 'ratio.static' param: %w", err)
	}
	if !r.Static.IsPositive() {
		return fmt.Errorf("'ratio.static' must be positive, got %s", r.Static.String())
	}

	r.SmoothingPeriod = tmp.Ratio.SmoothingPeriod

	if r.Mode != "static" {
		if r.PrimaryPair, err = pairFromString(tmp.Ratio.PrimaryPair); err != nil {
			return fmt.Errorf("incorrect 'ratio.primary_pair' param: %w", err)
		}
		if r.ReservePair, err = pairFromString(tmp.Ratio.ReservePair); err != nil {
			return fmt.Errorf("incorrect 'ratio.reserve_pair' param: %w", err)
		}
	}

	return nil
}

func durationOrDefault(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

func decimalOrDefault(s, def string) (decimal.Decimal, error) {
	if s == "" {
		s = def
	}
	return decimal.NewFromString(s)
}

func pairFromString(pairStr string) (domain.Pair, error) {
	parts := strings.Split(pairStr, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return domain.Pair{}, fmt.Errorf("invalid pair %q, expected format A_B", pairStr)
	}
	return domain.Pair{From: parts[0], To: parts[1]}, nil
}
