// internal/models/seat.go
package models

// Control is who drives a seat. A seat only ever moves from human to bot.
type Control string

const (
	ControlHuman Control = "human"
	ControlBot   Control = "bot"
)

// Color identifies a RACE seat's entry cell and home stretch.
type Color string

const (
	ColorRed    Color = "RED"
	ColorBlue   Color = "BLUE"
	ColorGreen  Color = "GREEN"
	ColorYellow Color = "YELLOW"
)

// Colors in seat order.
var Colors = []Color{ColorRed, ColorBlue, ColorGreen, ColorYellow}

// Index returns the color's position in Colors, or -1.
func (c Color) Index() int {
	for i, col := range Colors {
		if col == c {
			return i
		}
	}
	return -1
}

// Seat is one participant slot within a session.
type Seat struct {
	PlayerID    string  `json:"player_id"`
	DisplayName string  `json:"display_name"`
	Control     Control `json:"control"`
	// BotPolicy names the move-selection policy once the seat is bot controlled.
	BotPolicy string `json:"bot_policy,omitempty"`

	Color Color  `json:"color,omitempty"`
	Pawns []Pawn `json:"pawns,omitempty"`
	Hand  []Card `json:"hand,omitempty"`

	// SkipTurns is how many upcoming turns this seat sits out (SHEDDING).
	SkipTurns int `json:"skip_turns,omitempty"`
	// Finished is set when the seat is out of the game with a placement (SHEDDING).
	Finished bool `json:"finished,omitempty"`
	Place    int  `json:"place,omitempty"`

	// MissedTurns counts turn expiries while the seat was human.
	MissedTurns int `json:"missed_turns,omitempty"`
}

// IsBot reports whether the seat is bot controlled.
func (s *Seat) IsBot() bool {
	return s.Control == ControlBot
}

// TakeOver converts the seat to bot control in place. Identity and progress are kept.
// It is a no-op for a seat that is already a bot.
func (s *Seat) TakeOver(policy string) bool {
	if s.IsBot() {
		return false
	}
	s.Control = ControlBot
	s.BotPolicy = policy
	return true
}

// PawnPhase is where a RACE pawn currently is.
type PawnPhase string

const (
	PhaseBase  PawnPhase = "base"
	PhaseTrack PawnPhase = "track"
	PhaseHome  PawnPhase = "home"
)

// Pawn is one RACE piece. Distance, Position and HomeSlot are -1 when unset.
type Pawn struct {
	Phase    PawnPhase `json:"phase"`
	Distance int       `json:"distance"`
	Position int       `json:"position"`
	HomeSlot int       `json:"home_slot"`
}

// BasePawn returns a pawn sitting in base.
func BasePawn() Pawn {
	return Pawn{Phase: PhaseBase, Distance: -1, Position: -1, HomeSlot: -1}
}
