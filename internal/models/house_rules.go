// internal/models/house_rules.go
package models

// HouseRules captures the per-session configuration fixed at creation time.
type HouseRules struct {
	// MaxSeats caps the roster size (0 => ruleset maximum).
	MaxSeats int `json:"max_seats"`

	// MaxTurns ends the game with score-based placements once reached (0 => unlimited).
	MaxTurns int `json:"max_turns"`

	// BotPolicy is the policy engaged when a seat is taken over.
	BotPolicy string `json:"bot_policy"`

	// HandSize is how many cards each SHEDDING seat is dealt.
	HandSize int `json:"hand_size,omitempty"`
}
