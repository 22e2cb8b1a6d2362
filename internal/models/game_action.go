package models

// ActionType names a player intent.
type ActionType string

const (
	ActionRollDice  ActionType = "roll_dice"
	ActionMovePiece ActionType = "move_piece"
	ActionPlayCard  ActionType = "play_card"
	ActionDrawCard  ActionType = "draw_card"
)

// Demand is the optional rank or suit request attached to a J or A.
type Demand struct {
	Rank string `json:"rank,omitempty"`
	Suit string `json:"suit,omitempty"`
}

// GameAction captures a player's in-game move. Bots build the same struct.
type GameAction struct {
	Type     ActionType `json:"type"`
	PlayerID string     `json:"player_id"`

	PieceIndex int     `json:"piece_index,omitempty"`
	Card       *Card   `json:"card,omitempty"`
	Demand     *Demand `json:"demand,omitempty"`
}
