// Package setup is the interactive terminal wizard that produces a yaml
// config for the swap bot.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// GeneratedConfigFile is where the wizard writes its result.
const GeneratedConfigFile = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

func printHeader(step string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("EUCLIDBOT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		apiBase   string
		pair      string
		plumeRPC  string
		somniaRPC string

		amountStr     string
		incStepStr    string
		decStepStr    string
		thresholdStr  string
		attemptsStr   string
		descending    bool
		ratioMode     string
		staticRatio   string
		swapInterval  string
		trackerOn     bool
		frontendBase  string
		dashboardOn   bool
		dashboardAddr string
		confirm       bool
	)

	// defaults
	apiBase = "https://testnet.api.euclidswap.io"
	pair = "PLUME_STT"
	plumeRPC = "https://testnet-rpc.plume.org"
	somniaRPC = "https://dream-rpc.somnia.network"
	amountStr = "0.5"
	incStepStr = "0.1"
	decStepStr = "0.05"
	thresholdStr = "3"
	attemptsStr = "3"
	descending = true
	ratioMode = "static"
	staticRatio = "0.29"
	swapInterval = "30s"
	frontendBase = "https://testnet.euclidswap.io"
	dashboardAddr = ":8080"

	printHeader("STEP 1: AGGREGATOR")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Euclid API Base URL").
				Value(&apiBase).
				Validate(notEmpty("API base")),
			huh.NewInput().
				Title("Swap Pair").
				Description("Must contain underscore (e.g. PLUME_STT)").
				Value(&pair).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("pair cannot be empty")
					}
					if !containsUnderscore(s) {
						return fmt.Errorf("invalid format: must be FROM_TO (e.g. PLUME_STT)")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	printHeader("STEP 2: NETWORKS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Plume RPC URL").
				Value(&plumeRPC).
				Validate(notEmpty("RPC URL")),
			huh.NewInput().
				Title("Somnia RPC URL").
				Value(&somniaRPC).
				Validate(notEmpty("RPC URL")),
		),
	).Run()
	if err != nil {
		return err
	}

	printHeader("STEP 3: SWAP AMOUNT")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Initial Swap Amount").
				Description("Minimum 0.1 tokens. Amounts of 1.0 and above run in fixed mode; below that the bot adapts the amount automatically and never goes under your input.").
				Value(&amountStr).
				Validate(validateAmount),
		),
	).Run()
	if err != nil {
		return err
	}

	amount, _ := decimal.NewFromString(amountStr)
	adaptive := amount.LessThan(decimal.NewFromInt(1))

	if adaptive {
		printHeader("STEP 4: ADAPTIVE SETTINGS")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Increment Step").
					Description("Raise the amount by this much after an amount-related failure").
					Value(&incStepStr).
					Validate(validateStep),
				huh.NewInput().
					Title("Decrement Step").
					Description("Lower the amount by this much while optimizing downward").
					Value(&decStepStr).
					Validate(validateStep),
				huh.NewInput().
					Title("Stability Threshold").
					Description("Successful swaps in a row before optimizing (1-20)").
					Value(&thresholdStr).
					Validate(validateIntRange(1, 20)),
				huh.NewInput().
					Title("Max Increment Attempts").
					Description("Failed increases before jumping to the ceiling (1-10)").
					Value(&attemptsStr).
					Validate(validateIntRange(1, 10)),
				huh.NewConfirm().
					Title("Enable descending optimization?").
					Description("Probe below the working amount to find the cheapest size that still succeeds").
					Value(&descending),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	printHeader("STEP 5: CONVERSION RATIO")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Reserve conversion ratio source").
				Options(
					huh.NewOption("Static value", "static"),
					huh.NewOption("Binance prices", "binance"),
					huh.NewOption("Bybit prices", "bybit"),
					huh.NewOption("Hyperliquid prices", "hyperliquid"),
				).
				Value(&ratioMode),
		),
	).Run()
	if err != nil {
		return err
	}

	if ratioMode == "static" {
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Static Ratio").
					Description("Reserve tokens spent per primary token received").
					Value(&staticRatio).
					Validate(validatePositiveDecimal),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	printHeader("STEP 6: TIMING AND EXTRAS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Swap Interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&swapInterval).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
			huh.NewConfirm().
				Title("Submit swaps for campaign points?").
				Value(&trackerOn),
			huh.NewConfirm().
				Title("Enable web dashboard?").
				Value(&dashboardOn),
		),
	).Run()
	if err != nil {
		return err
	}

	printHeader("FINAL CONFIRMATION")

	mode := "fixed"
	if adaptive {
		mode = "adaptive"
	}
	summary := fmt.Sprintf(
		"Pair: %s\nAmount: %s (%s mode)\nRatio: %s\nInterval: %s\nTracker: %v\nDashboard: %v\n",
		pair, amountStr, mode, ratioMode, swapInterval, trackerOn, dashboardOn,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).
		Render("The wallet private key is read from the EUCLIDBOT_PRIVATE_KEY environment variable."))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	ratio := map[string]any{
		"mode":   ratioMode,
		"static": staticRatio,
	}
	if ratioMode != "static" {
		ratio = map[string]any{
			"mode":         ratioMode,
			"primary_pair": "PLUME_USDT",
			"reserve_pair": "STT_USDT",
		}
	}

	cfg := map[string]any{
		"pair":            pair,
		"api_base":        apiBase,
		"origin":          frontendBase,
		"referer":         frontendBase + "/",
		"primary_network": "plume",
		"reserve_network": "somnia",
		"networks": map[string]any{
			"plume":  map[string]any{"rpc_url": plumeRPC, "chain_id": 98867},
			"somnia": map[string]any{"rpc_url": somniaRPC, "chain_id": 50312},
		},
		"swap_interval": swapInterval,
		"amount": map[string]any{
			"initial_amount":         amountStr,
			"increment_step":         incStepStr,
			"decrement_step":         decStepStr,
			"stability_threshold":    mustAtoi(thresholdStr),
			"max_increment_attempts": mustAtoi(attemptsStr),
			"enable_descending":      descending,
		},
		"ratio": ratio,
		"tracker": map[string]any{
			"enabled":       trackerOn,
			"frontend_base": frontendBase,
		},
		"dashboard": map[string]any{
			"enabled":     dashboardOn,
			"listen_addr": dashboardAddr,
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	if err := os.WriteFile(GeneratedConfigFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).
		Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", GeneratedConfigFile)))
	time.Sleep(1500 * time.Millisecond)
	return nil
}

func validateAmount(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.LessThan(decimal.NewFromFloat(0.1)) {
		return fmt.Errorf("must be at least 0.1")
	}
	return nil
}

func validateStep(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromFloat(0.5)) {
		return fmt.Errorf("must be between 0 and 0.5")
	}
	return nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateIntRange(min, max int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("must be an integer")
		}
		if n < min || n > max {
			return fmt.Errorf("must be between %d and %d", min, max)
		}
		return nil
	}
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func containsUnderscore(s string) bool {
	for _, r := range s {
		if r == '_' {
			return true
		}
	}
	return false
}
