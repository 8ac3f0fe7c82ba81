package domain

import "strings"

// ErrorClass is the classifier's verdict on a swap failure.
type ErrorClass int

const (
	// ErrorClassAmountSensitive failures are plausibly fixed by changing
	// the swap size (liquidity, slippage, minimum amount).
	ErrorClassAmountSensitive ErrorClass = iota
	// ErrorClassInfrastructure failures are unrelated to size (network,
	// gas, nonce).
	ErrorClassInfrastructure
	// ErrorClassUnknown is returned when no keyword matches.
	ErrorClassUnknown
)

// String returns the string representation of the class.
func (c ErrorClass) String() string {
	switch c {
	case ErrorClassAmountSensitive:
		return "amount_sensitive"
	case ErrorClassInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Keyword sets recognised by the default classifier.
var (
	amountSensitiveErrors = []string{
		"INSUFFICIENT_LIQUIDITY",
		"BELOW_MINIMUM_AMOUNT",
		"SLIPPAGE_EXCEEDED",
		"ROUTE_NOT_FOUND",
		"PRICE_IMPACT_TOO_HIGH",
		"SWAP_AMOUNT_TOO_SMALL",
		"MINIMUM_RECEIVED_NOT_MET",
		"INSUFFICIENT_OUTPUT_AMOUNT",
	}

	infrastructureErrors = []string{
		"NETWORK_TIMEOUT",
		"RPC_ERROR",
		"NONCE_ISSUE",
		"GAS_PRICE_HIGH",
		"INSUFFICIENT_GAS",
		"CONNECTION_ERROR",
		"TRANSACTION_TIMEOUT",
		"GENERAL_NETWORK_ERROR",
	}
)

// Classifier maps an opaque error type string to an ErrorClass. It is pure
// and deterministic: same input, same verdict, no side effects.
type Classifier struct {
	amountSensitive []string
	infrastructure  []string
}

// NewClassifier creates a classifier with the default keyword sets.
func NewClassifier() *Classifier {
	return &Classifier{
		amountSensitive: amountSensitiveErrors,
		infrastructure:  infrastructureErrors,
	}
}

// NewClassifierWithKeywords creates a classifier with custom keyword sets.
// Empty sets fall back to the defaults.
func NewClassifierWithKeywords(amountSensitive, infrastructure []string) *Classifier {
	c := NewClassifier()
	if len(amountSensitive) > 0 {
		c.amountSensitive = amountSensitive
	}
	if len(infrastructure) > 0 {
		c.infrastructure = infrastructure
	}
	return c
}

// Classify matches errorType case-insensitively against the keyword sets.
// The empty string and unmatched strings yield ErrorClassUnknown; the
// caller decides what to do with that.
func (c *Classifier) Classify(errorType string) ErrorClass {
	if errorType == "" {
		return ErrorClassUnknown
	}

	upper := strings.ToUpper(errorType)

	for _, keyword := range c.amountSensitive {
		if strings.Contains(upper, keyword) {
			return ErrorClassAmountSensitive
		}
	}

	for _, keyword := range c.infrastructure {
		if strings.Contains(upper, keyword) {
			return ErrorClassInfrastructure
		}
	}

	return ErrorClassUnknown
}
