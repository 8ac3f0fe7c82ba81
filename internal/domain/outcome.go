package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Error kinds reported by direction modules and the orchestrator.
const (
	ErrInsufficientBalance        = "INSUFFICIENT_BALANCE"
	ErrInsufficientReserveBalance = "INSUFFICIENT_RESERVE_BALANCE"
	ErrNoRouteFound               = "NO_ROUTE_FOUND"
	ErrNetworkSwitchFailed        = "NETWORK_SWITCH_FAILED"
	ErrSwapExecutionFailed        = "SWAP_EXECUTION_FAILED"
	ErrUnexpected                 = "UNEXPECTED_ERROR"
)

// SwapOutcome is the per-attempt feedback consumed by the amount controller.
// It is created right after a backend call resolves and discarded after
// ProcessResult.
type SwapOutcome struct {
	Success      bool
	ErrorType    string
	ErrorMessage string
	AmountUsed   decimal.Decimal
	Timestamp    time.Time
}

// NewSwapOutcome creates an outcome stamped with the current time.
func NewSwapOutcome(success bool, errorType, errorMessage string, amountUsed decimal.Decimal) SwapOutcome {
	return SwapOutcome{
		Success:      success,
		ErrorType:    errorType,
		ErrorMessage: errorMessage,
		AmountUsed:   amountUsed,
		Timestamp:    time.Now(),
	}
}

// ModuleStats are running counters kept by a direction module.
type ModuleStats struct {
	TotalSwaps      int             `json:"total_swaps"`
	SuccessfulSwaps int             `json:"successful_swaps"`
	SuccessRate     decimal.Decimal `json:"success_rate"`
}

// SwapResult is the structured result of one swap attempt. It replaces the
// ad hoc per-call maps of earlier designs with a single closed type.
type SwapResult struct {
	Success      bool            `json:"success"`
	ErrorType    string          `json:"error_type,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	TxHash       string          `json:"tx_hash,omitempty"`
	Direction    Direction       `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	Balance      decimal.Decimal `json:"balance"`
	ModuleStats  ModuleStats     `json:"module_stats"`

	// Switch fields are filled in by the orchestrator.
	SwitchTriggered  bool      `json:"switch_triggered"`
	SwitchSuccessful bool      `json:"switch_successful,omitempty"`
	SwitchReason     string    `json:"switch_reason,omitempty"`
	NewDirection     Direction `json:"new_direction,omitempty"`

	Orchestrator OrchestratorStats `json:"orchestrator_stats"`
}

// Failed reports whether the attempt did not succeed.
func (r *SwapResult) Failed() bool {
	return !r.Success
}

// Outcome converts the result into the value object the amount controller
// consumes.
func (r *SwapResult) Outcome() SwapOutcome {
	return NewSwapOutcome(r.Success, r.ErrorType, r.ErrorMessage, r.Amount)
}

// OrchestratorStats are aggregate counters across both directions.
type OrchestratorStats struct {
	ActiveDirection     Direction       `json:"active_direction"`
	TotalSwapsExecuted  int             `json:"total_swaps_executed"`
	SuccessfulSwaps     int             `json:"successful_swaps"`
	FailedSwaps         int             `json:"failed_swaps"`
	SuccessRate         decimal.Decimal `json:"success_rate"`
	TotalSwitches       int             `json:"total_switches"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
}

// SwitchRecord is one entry of the orchestrator's bounded switch history.
type SwitchRecord struct {
	SwitchNumber int       `json:"switch_number"`
	From         Direction `json:"from"`
	To           Direction `json:"to"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
}

// PhaseTransition is one entry of the amount controller's phase history.
type PhaseTransition struct {
	From      Phase           `json:"from"`
	To        Phase           `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}
