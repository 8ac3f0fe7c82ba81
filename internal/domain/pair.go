package domain

import "fmt"

// Pair of tokens traded against each other.
type Pair struct {
	// From is the token sold.
	From string
	// To is the token bought.
	To string
}

// String returns the string representation.
func (p *Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol representation.
func (p *Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}

// Reversed returns the pair with sides swapped.
func (p *Pair) Reversed() Pair {
	return Pair{From: p.To, To: p.From}
}
