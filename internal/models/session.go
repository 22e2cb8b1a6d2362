// internal/models/session.go
package models

import "time"

// Ruleset selects the rule engine that drives a session.
type Ruleset string

const (
	RulesetRace     Ruleset = "RACE"
	RulesetShedding Ruleset = "SHEDDING"
)

// Valid reports whether r names a known ruleset.
func (r Ruleset) Valid() bool {
	return r == RulesetRace || r == RulesetShedding
}

// Status is the one-directional lifecycle of a session: WAITING -> PLAYING -> FINISHED.
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusPlaying  Status = "PLAYING"
	StatusFinished Status = "FINISHED"
)

// Session is the authoritative state of one game instance. It is serialized as a whole
// into the session store; nothing about it is trusted in-process across requests.
type Session struct {
	ID         string     `json:"id"`
	Ruleset    Ruleset    `json:"ruleset"`
	Status     Status     `json:"status"`
	HostID     string     `json:"host_id"`
	HouseRules HouseRules `json:"house_rules"`

	Seats      []*Seat `json:"seats"`
	ActiveSeat int     `json:"active_seat"`

	// Exactly one of these is set, matching Ruleset.
	Race     *RaceState     `json:"race,omitempty"`
	Shedding *SheddingState `json:"shedding,omitempty"`

	WinnerID   string   `json:"winner_id,omitempty"`
	Placements []string `json:"placements,omitempty"`

	// TurnID increments every time the active seat changes hands (or re-activates).
	TurnID int `json:"turn_id"`
	// TurnCount counts applied actions, used for the turn cap.
	TurnCount int `json:"turn_count"`

	// Version is bumped by the store on every successful conditional write.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RaceState is the shared substate of a RACE session.
type RaceState struct {
	LastRoll       int  `json:"last_roll"`
	RollPending    bool `json:"roll_pending"`
	RollsRemaining int  `json:"rolls_remaining"`
}

// SheddingState is the shared substate of a SHEDDING session.
type SheddingState struct {
	DrawPile    []Card `json:"draw_pile"`
	DiscardPile []Card `json:"discard_pile"`
	PendingDraw int    `json:"pending_draw"`
	PendingSkip int    `json:"pending_skip"`

	DemandRank string `json:"demand_rank,omitempty"`
	DemandSuit string `json:"demand_suit,omitempty"`
	// DemandBy is the seat index that issued the current demand, -1 when none.
	DemandBy int `json:"demand_by"`
}

// Top returns the top card of the discard pile.
func (s *SheddingState) Top() (Card, bool) {
	if len(s.DiscardPile) == 0 {
		return Card{}, false
	}
	return s.DiscardPile[len(s.DiscardPile)-1], true
}

// ClearDemand drops any active rank or suit demand.
func (s *SheddingState) ClearDemand() {
	s.DemandRank = ""
	s.DemandSuit = ""
	s.DemandBy = -1
}

// Active returns the seat whose turn it is, or nil if the index is out of range.
func (s *Session) Active() *Seat {
	if s.ActiveSeat < 0 || s.ActiveSeat >= len(s.Seats) {
		return nil
	}
	return s.Seats[s.ActiveSeat]
}

// SeatIndex returns the index of the seat held by playerID, or -1.
func (s *Session) SeatIndex(playerID string) int {
	for i, seat := range s.Seats {
		if seat.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Seat returns the seat held by playerID, or nil.
func (s *Session) Seat(playerID string) *Seat {
	if i := s.SeatIndex(playerID); i >= 0 {
		return s.Seats[i]
	}
	return nil
}

// PlayerIDs lists the seat holders in rotation order.
func (s *Session) PlayerIDs() []string {
	ids := make([]string, 0, len(s.Seats))
	for _, seat := range s.Seats {
		ids = append(ids, seat.PlayerID)
	}
	return ids
}
