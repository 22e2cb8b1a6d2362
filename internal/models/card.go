// internal/models/card.go
package models

import "fmt"

// Suits, single letter as used on the wire.
const (
	SuitHearts   = "H"
	SuitDiamonds = "D"
	SuitClubs    = "C"
	SuitSpades   = "S"
)

// Suits lists every suit in deck order.
var Suits = []string{SuitHearts, SuitDiamonds, SuitClubs, SuitSpades}

// Ranks lists every rank in deck order ("T" is ten).
var Ranks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K", "A"}

// Card is a SHEDDING playing card.
type Card struct {
	Rank string `json:"rank"`
	Suit string `json:"suit"`
}

func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Valid reports whether the card exists in a standard deck.
func (c Card) Valid() bool {
	return validRank(c.Rank) && ValidSuit(c.Suit)
}

func validRank(r string) bool {
	for _, rank := range Ranks {
		if rank == r {
			return true
		}
	}
	return false
}

// ValidSuit reports whether s is one of the four suits.
func ValidSuit(s string) bool {
	for _, suit := range Suits {
		if suit == s {
			return true
		}
	}
	return false
}
