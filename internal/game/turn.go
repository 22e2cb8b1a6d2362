// internal/game/turn.go
package game

import (
	"sort"

	"github.com/jason-s-yu/tabletop/internal/models"
)

// checkTurn verifies the session is in play and that playerID holds the active seat.
func checkTurn(s *models.Session, playerID string) (int, error) {
	if playerID == "" {
		return -1, invalid(ReasonMissingField, "player id is required")
	}
	if s.Status != models.StatusPlaying {
		return -1, illegalTurn(ReasonNotPlaying, "session %s is %s", s.ID, s.Status)
	}
	idx := s.SeatIndex(playerID)
	if idx < 0 {
		return -1, illegalTurn(ReasonNotSeated, "player %s has no seat in session %s", playerID, s.ID)
	}
	if idx != s.ActiveSeat {
		return -1, illegalTurn(ReasonNotYourTurn, "it is not %s's turn", playerID)
	}
	return idx, nil
}

// beginTurn activates seat idx. Re-activating the same seat still counts as a new turn.
func beginTurn(s *models.Session, idx int) {
	s.ActiveSeat = idx
	s.TurnID++
}

// capReached reports whether the configured turn cap has been hit.
func capReached(s *models.Session) bool {
	return s.HouseRules.MaxTurns > 0 && s.TurnCount >= s.HouseRules.MaxTurns
}

// finish records the final placements. The first placement is the winner.
func finish(s *models.Session, placements []string) {
	s.Status = models.StatusFinished
	s.Placements = placements
	if len(placements) > 0 {
		s.WinnerID = placements[0]
	}
	for place, id := range placements {
		if seat := s.Seat(id); seat != nil {
			seat.Place = place + 1
		}
	}
}

// finalPlacements returns the placements of a session already marked finished.
func finalPlacements(s *models.Session) ([]string, bool) {
	if s.Status == models.StatusFinished && len(s.Placements) == len(s.Seats) {
		return append([]string(nil), s.Placements...), true
	}
	return nil, false
}

// rankSeats orders seat indices with less, falling back to seat order on ties.
func rankSeats(s *models.Session, seats []int, less func(a, b int) bool) []string {
	sorted := append([]int(nil), seats...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a < b
	})
	ids := make([]string, 0, len(sorted))
	for _, idx := range sorted {
		ids = append(ids, s.Seats[idx].PlayerID)
	}
	return ids
}

// settle bumps the turn count and finishes the session if r reports a terminal state.
func settle(r Ruleset, s *models.Session, out *Outcome) {
	s.TurnCount++
	if s.Status != models.StatusPlaying {
		return
	}
	if placements, ok := r.Terminal(s); ok {
		finish(s, placements)
		out.Finished = true
		out.Detail["placements"] = placements
	}
}
