package domain

import "encoding/json"

// Direction identifies which of the two tokens is being sold in a swap.
type Direction int

const (
	// DirectionForward swaps the primary token into the secondary token.
	DirectionForward Direction = iota
	// DirectionReverse swaps the secondary token back into the primary token.
	DirectionReverse
)

const (
	directionStringForward = "forward"
	directionStringReverse = "reverse"
)

// String returns the string representation of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return directionStringForward
	case DirectionReverse:
		return directionStringReverse
	default:
		return "unknown"
	}
}

// IsValid checks if the Direction value is valid.
func (d Direction) IsValid() bool {
	return d == DirectionForward || d == DirectionReverse
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirectionForward {
		return DirectionReverse
	}
	return DirectionForward
}

// MarshalJSON serializes the direction as its string form.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON restores the direction from its string form.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == directionStringReverse {
		*d = DirectionReverse
	} else {
		*d = DirectionForward
	}
	return nil
}
