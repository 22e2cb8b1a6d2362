// internal/game/race.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/tabletop/internal/models"
)

// Board layout for RACE.
const (
	TrackSize     = 40
	HomeSize      = 4
	PawnsPerSeat  = 4
	EntrySpacing  = TrackSize / 4
	MaxRaceSeats  = 4
	MaxRollBudget = 3
	DieFaces      = 6
)

// EntryCell returns the absolute track cell where pawns of color c enter the board.
// It is also the color's safe cell.
func EntryCell(c models.Color) int {
	return c.Index() * EntrySpacing
}

// Race is the Ludo-style pawn race ruleset.
type Race struct{}

func (Race) Kind() models.Ruleset { return models.RulesetRace }
func (Race) MaxSeats() int        { return MaxRaceSeats }

// Setup assigns colors in seat order and puts every pawn in base.
func (r Race) Setup(s *models.Session, _ Rand) error {
	if n := len(s.Seats); n < 2 || n > MaxRaceSeats {
		return fmt.Errorf("race needs 2-%d seats, got %d", MaxRaceSeats, n)
	}
	if s.Status != models.StatusWaiting {
		return fmt.Errorf("session %s already %s", s.ID, s.Status)
	}
	for i, seat := range s.Seats {
		seat.Color = models.Colors[i]
		seat.Pawns = make([]models.Pawn, PawnsPerSeat)
		for p := range seat.Pawns {
			seat.Pawns[p] = models.BasePawn()
		}
		seat.Hand = nil
	}
	s.Race = &models.RaceState{}
	s.Status = models.StatusPlaying
	r.activate(s, 0)
	return nil
}

// activate hands the turn to seat idx with a fresh roll budget.
func (Race) activate(s *models.Session, idx int) {
	beginTurn(s, idx)
	s.Race.RollPending = false
	s.Race.RollsRemaining = rollBudget(s.Seats[idx])
}

// rollBudget is how many rolls a seat gets per activation: three tries for a six
// when nothing is on the track, one otherwise.
func rollBudget(seat *models.Seat) int {
	for _, p := range seat.Pawns {
		if p.Phase == models.PhaseTrack {
			return 1
		}
	}
	return MaxRollBudget
}

func (r Race) Validate(s *models.Session, a models.GameAction) error {
	if s.Race == nil {
		return invalid(ReasonUnknownAction, "session %s is not a race", s.ID)
	}
	switch a.Type {
	case models.ActionRollDice:
		if _, err := checkTurn(s, a.PlayerID); err != nil {
			return err
		}
		if s.Race.RollPending {
			return illegalTurn(ReasonRollPending, "roll of %d must be used before rolling again", s.Race.LastRoll)
		}
		return nil
	case models.ActionMovePiece:
		if a.PieceIndex < 0 || a.PieceIndex >= PawnsPerSeat {
			return invalid(ReasonInvalidPiece, "piece index %d out of range", a.PieceIndex)
		}
		idx, err := checkTurn(s, a.PlayerID)
		if err != nil {
			return err
		}
		if !s.Race.RollPending {
			return illegalTurn(ReasonNoPendingRoll, "roll the dice before moving")
		}
		_, _, err = r.destination(s, idx, a.PieceIndex, s.Race.LastRoll)
		return err
	default:
		return invalid(ReasonUnknownAction, "action %q is not part of a race", a.Type)
	}
}

func (r Race) Apply(s *models.Session, a models.GameAction, rng Rand) (Outcome, error) {
	if err := r.Validate(s, a); err != nil {
		return Outcome{}, err
	}
	out := Outcome{Action: a, Detail: map[string]interface{}{}}
	seatIdx := s.ActiveSeat
	seat := s.Seats[seatIdx]
	race := s.Race

	switch a.Type {
	case models.ActionRollDice:
		roll := rng.Next(DieFaces) + 1
		race.LastRoll = roll
		out.Detail["roll"] = roll
		if len(r.movable(s, seatIdx, roll)) > 0 {
			race.RollPending = true
			break
		}
		race.RollsRemaining--
		out.Detail["rolls_remaining"] = race.RollsRemaining
		if race.RollsRemaining <= 0 {
			r.activate(s, (seatIdx+1)%len(s.Seats))
			out.TurnPassed = true
		}

	case models.ActionMovePiece:
		roll := race.LastRoll
		dest, victim, _ := r.destination(s, seatIdx, a.PieceIndex, roll)
		seat.Pawns[a.PieceIndex] = dest
		race.RollPending = false
		out.Detail["piece"] = a.PieceIndex
		out.Detail["roll"] = roll
		out.Detail["phase"] = dest.Phase
		out.Detail["position"] = dest.Position
		if victim != nil {
			s.Seats[victim.seat].Pawns[victim.pawn] = models.BasePawn()
			out.Detail["captured"] = map[string]interface{}{
				"player_id": s.Seats[victim.seat].PlayerID,
				"piece":     victim.pawn,
			}
		}
		switch {
		case allHome(seat):
			// settle finishes the session
		case roll == DieFaces:
			r.activate(s, seatIdx)
		default:
			r.activate(s, (seatIdx+1)%len(s.Seats))
			out.TurnPassed = true
		}
	}

	settle(r, s, &out)
	return out, nil
}

type pawnRef struct {
	seat int
	pawn int
}

// destination computes where pawn p of seat idx lands with roll, and which opponent
// pawn (if any) it captures. The session is not modified.
func (Race) destination(s *models.Session, idx, p, roll int) (models.Pawn, *pawnRef, error) {
	seat := s.Seats[idx]
	pawn := seat.Pawns[p]
	entry := EntryCell(seat.Color)
	var dest models.Pawn

	switch pawn.Phase {
	case models.PhaseHome:
		return dest, nil, illegalMove(ReasonPieceHome, "piece %d is already home", p)
	case models.PhaseBase:
		if roll != DieFaces {
			return dest, nil, illegalMove(ReasonNeedsSix, "piece %d needs a six to leave base", p)
		}
		dest = models.Pawn{Phase: models.PhaseTrack, Distance: 0, Position: entry, HomeSlot: -1}
	default:
		distance := pawn.Distance + roll
		if distance >= TrackSize {
			slot := distance - TrackSize
			used := homeSlots(seat)
			if len(used) >= HomeSize {
				return dest, nil, illegalMove(ReasonHomeFull, "home stretch is full")
			}
			if slot >= HomeSize {
				return dest, nil, illegalMove(ReasonHomeOvershoot, "piece %d would overshoot home by %d", p, slot-HomeSize+1)
			}
			if used[slot] {
				return dest, nil, illegalMove(ReasonHomeSlotOccupied, "home slot %d is occupied", slot)
			}
			return models.Pawn{Phase: models.PhaseHome, Distance: distance, Position: -1, HomeSlot: slot}, nil, nil
		}
		dest = models.Pawn{Phase: models.PhaseTrack, Distance: distance, Position: (entry + distance) % TrackSize, HomeSlot: -1}
	}

	for j, other := range s.Seats {
		for k, op := range other.Pawns {
			if op.Phase != models.PhaseTrack || op.Position != dest.Position {
				continue
			}
			if j == idx {
				return models.Pawn{}, nil, illegalMove(ReasonOwnPieceBlocks, "cell %d holds your own piece", dest.Position)
			}
			if owner, ok := opponentEntry(s, idx, dest.Position); ok {
				return models.Pawn{}, nil, illegalMove(ReasonSafeCell, "cell %d is %s's safe entry cell", dest.Position, owner)
			}
			return dest, &pawnRef{seat: j, pawn: k}, nil
		}
	}
	return dest, nil, nil
}

// opponentEntry reports whether cell is the entry cell of a seated color other than
// seat idx's own. No capture happens there, whoever stands on it.
func opponentEntry(s *models.Session, idx, cell int) (models.Color, bool) {
	for j, seat := range s.Seats {
		if j != idx && seat.Color != s.Seats[idx].Color && EntryCell(seat.Color) == cell {
			return seat.Color, true
		}
	}
	return "", false
}

// movable lists the pawns of seat idx that have a legal destination for roll.
func (r Race) movable(s *models.Session, idx, roll int) []int {
	var pawns []int
	for p := range s.Seats[idx].Pawns {
		if _, _, err := r.destination(s, idx, p, roll); err == nil {
			pawns = append(pawns, p)
		}
	}
	return pawns
}

func homeSlots(seat *models.Seat) map[int]bool {
	used := make(map[int]bool, HomeSize)
	for _, p := range seat.Pawns {
		if p.Phase == models.PhaseHome {
			used[p.HomeSlot] = true
		}
	}
	return used
}

func allHome(seat *models.Seat) bool {
	if len(seat.Pawns) == 0 {
		return false
	}
	for _, p := range seat.Pawns {
		if p.Phase != models.PhaseHome {
			return false
		}
	}
	return true
}

func (r Race) LegalActions(s *models.Session) []models.GameAction {
	seat := s.Active()
	if s.Status != models.StatusPlaying || s.Race == nil || seat == nil {
		return nil
	}
	if !s.Race.RollPending {
		return []models.GameAction{{Type: models.ActionRollDice, PlayerID: seat.PlayerID}}
	}
	var actions []models.GameAction
	for _, p := range r.movable(s, s.ActiveSeat, s.Race.LastRoll) {
		actions = append(actions, models.GameAction{Type: models.ActionMovePiece, PlayerID: seat.PlayerID, PieceIndex: p})
	}
	return actions
}

// Terminal reports a win (all pawns home) or the turn cap. Seats other than the
// winner are ranked by progress.
func (r Race) Terminal(s *models.Session) ([]string, bool) {
	if placements, ok := finalPlacements(s); ok {
		return placements, true
	}
	winner := -1
	for i, seat := range s.Seats {
		if allHome(seat) {
			winner = i
			break
		}
	}
	if winner < 0 && !capReached(s) {
		return nil, false
	}
	var rest []int
	for i := range s.Seats {
		if i != winner {
			rest = append(rest, i)
		}
	}
	byProgress := func(a, b int) bool { return r.Score(s, a) > r.Score(s, b) }
	placements := rankSeats(s, rest, byProgress)
	if winner >= 0 {
		placements = append([]string{s.Seats[winner].PlayerID}, placements...)
	}
	return placements, true
}

// Score is the seat's total progress; higher is better.
func (Race) Score(s *models.Session, idx int) int {
	total := 0
	for _, p := range s.Seats[idx].Pawns {
		switch p.Phase {
		case models.PhaseTrack:
			total += p.Distance + 1
		case models.PhaseHome:
			total += TrackSize + p.HomeSlot + 1
		}
	}
	return total
}
