// internal/models/view.go
package models

// SeatView is one seat as seen by a particular viewer. Hands of other seats are
// reduced to a count.
type SeatView struct {
	PlayerID    string  `json:"player_id"`
	DisplayName string  `json:"display_name"`
	Control     Control `json:"control"`
	Color       Color   `json:"color,omitempty"`
	Pawns       []Pawn  `json:"pawns,omitempty"`
	HandSize    int     `json:"hand_size"`
	Hand        []Card  `json:"hand,omitempty"` // only for the viewer's own seat
	SkipTurns   int     `json:"skip_turns,omitempty"`
	Finished    bool    `json:"finished,omitempty"`
	Place       int     `json:"place,omitempty"`
	IsActive    bool    `json:"is_active"`
}

// SheddingView exposes the public part of the shedding substate.
type SheddingView struct {
	DrawPileSize int    `json:"draw_pile_size"`
	DiscardSize  int    `json:"discard_size"`
	Top          *Card  `json:"top,omitempty"`
	PendingDraw  int    `json:"pending_draw"`
	PendingSkip  int    `json:"pending_skip"`
	DemandRank   string `json:"demand_rank,omitempty"`
	DemandSuit   string `json:"demand_suit,omitempty"`
}

// SessionView is the broadcast form of a session.
type SessionView struct {
	ID           string        `json:"id"`
	Ruleset      Ruleset       `json:"ruleset"`
	Status       Status        `json:"status"`
	ActivePlayer string        `json:"active_player,omitempty"`
	TurnID       int           `json:"turn_id"`
	Version      int64         `json:"version"`
	Seats        []SeatView    `json:"seats"`
	Race         *RaceState    `json:"race,omitempty"`
	Shedding     *SheddingView `json:"shedding,omitempty"`
	WinnerID     string        `json:"winner_id,omitempty"`
	Placements   []string      `json:"placements,omitempty"`
}

// ViewFor builds the session as seen by viewerID. An empty viewerID yields the
// spectator view with every hand hidden.
func (s *Session) ViewFor(viewerID string) SessionView {
	v := SessionView{
		ID:         s.ID,
		Ruleset:    s.Ruleset,
		Status:     s.Status,
		TurnID:     s.TurnID,
		Version:    s.Version,
		WinnerID:   s.WinnerID,
		Placements: append([]string(nil), s.Placements...),
	}
	if active := s.Active(); active != nil && s.Status == StatusPlaying {
		v.ActivePlayer = active.PlayerID
	}
	for i, seat := range s.Seats {
		sv := SeatView{
			PlayerID:    seat.PlayerID,
			DisplayName: seat.DisplayName,
			Control:     seat.Control,
			Color:       seat.Color,
			Pawns:       append([]Pawn(nil), seat.Pawns...),
			HandSize:    len(seat.Hand),
			SkipTurns:   seat.SkipTurns,
			Finished:    seat.Finished,
			Place:       seat.Place,
			IsActive:    i == s.ActiveSeat && s.Status == StatusPlaying,
		}
		if viewerID != "" && seat.PlayerID == viewerID {
			sv.Hand = append([]Card(nil), seat.Hand...)
		}
		v.Seats = append(v.Seats, sv)
	}
	if s.Race != nil {
		race := *s.Race
		v.Race = &race
	}
	if sh := s.Shedding; sh != nil {
		view := &SheddingView{
			DrawPileSize: len(sh.DrawPile),
			DiscardSize:  len(sh.DiscardPile),
			PendingDraw:  sh.PendingDraw,
			PendingSkip:  sh.PendingSkip,
			DemandRank:   sh.DemandRank,
			DemandSuit:   sh.DemandSuit,
		}
		if top, ok := sh.Top(); ok {
			view.Top = &top
		}
		v.Shedding = view
	}
	return v
}
