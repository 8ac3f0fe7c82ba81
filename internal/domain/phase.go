// Package domain defines core data structures used throughout the swap bot.
package domain

import "encoding/json"

// Phase is the amount controller's current search mode.
type Phase int

const (
	PhaseAscending Phase = iota
	PhaseStable
	PhaseDescending
	PhaseFixed
)

// phase string constants to avoid magic strings
const (
	phaseStringAscending  = "ascending"
	phaseStringStable     = "stable"
	phaseStringDescending = "descending"
	phaseStringFixed      = "fixed"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseAscending:
		return phaseStringAscending
	case PhaseStable:
		return phaseStringStable
	case PhaseDescending:
		return phaseStringDescending
	case PhaseFixed:
		return phaseStringFixed
	default:
		return "unknown"
	}
}

// IsValid checks if the Phase value is valid.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseAscending, PhaseStable, PhaseDescending, PhaseFixed:
		return true
	}
	return false
}

// ParsePhase restores a Phase from its string form. Unknown strings map to
// PhaseAscending so imported snapshots never produce an unreachable state.
func ParsePhase(s string) Phase {
	switch s {
	case phaseStringStable:
		return PhaseStable
	case phaseStringDescending:
		return PhaseDescending
	case phaseStringFixed:
		return PhaseFixed
	default:
		return PhaseAscending
	}
}

// MarshalJSON serializes the phase as its string form.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON restores the phase from its string form.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = ParsePhase(s)
	return nil
}

// Mode of amount selection.
type Mode string

const (
	// ModeFixed uses the configured amount verbatim, no adjustments.
	ModeFixed Mode = "fixed"
	// ModeAdaptive searches for the smallest viable amount.
	ModeAdaptive Mode = "adaptive"
)

// String returns the string representation.
func (m Mode) String() string {
	return string(m)
}

// IsValid checks if the Mode value is valid.
func (m Mode) IsValid() bool {
	return m == ModeFixed || m == ModeAdaptive
}
