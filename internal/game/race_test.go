// internal/game/race_test.go
package game

import (
	"fmt"
	"testing"

	"github.com/jason-s-yu/tabletop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSession builds a WAITING session with seats P1..Pn.
func newSession(kind models.Ruleset, n int) *models.Session {
	s := &models.Session{ID: "s1", Ruleset: kind, Status: models.StatusWaiting, HostID: "P1"}
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("P%d", i)
		s.Seats = append(s.Seats, &models.Seat{PlayerID: id, DisplayName: id, Control: models.ControlHuman})
	}
	return s
}

func setupRace(t *testing.T, n int) *models.Session {
	s := newSession(models.RulesetRace, n)
	require.NoError(t, Race{}.Setup(s, nil))
	return s
}

func roll(t *testing.T, s *models.Session, player string, rng Rand) Outcome {
	out, err := Race{}.Apply(s, models.GameAction{Type: models.ActionRollDice, PlayerID: player}, rng)
	require.NoError(t, err)
	return out
}

func move(t *testing.T, s *models.Session, player string, piece int) Outcome {
	out, err := Race{}.Apply(s, models.GameAction{Type: models.ActionMovePiece, PlayerID: player, PieceIndex: piece}, nil)
	require.NoError(t, err)
	return out
}

// onTrack places pawn p of seat idx at distance d.
func onTrack(s *models.Session, idx, p, d int) {
	seat := s.Seats[idx]
	seat.Pawns[p] = models.Pawn{Phase: models.PhaseTrack, Distance: d, Position: (EntryCell(seat.Color) + d) % TrackSize, HomeSlot: -1}
}

// requireOneActive checks that exactly one seat may act: the view marks a single
// active seat, that seat has not finished, and every legal action belongs to it.
func requireOneActive(t *testing.T, r Ruleset, s *models.Session) {
	t.Helper()
	require.Equal(t, models.StatusPlaying, s.Status)
	active := 0
	for i, sv := range s.ViewFor("").Seats {
		if !sv.IsActive {
			continue
		}
		active++
		require.Equal(t, i, s.ActiveSeat)
		require.False(t, s.Seats[i].Finished, "finished seat %s is active", sv.PlayerID)
	}
	require.Equal(t, 1, active)

	actions := r.LegalActions(s)
	require.NotEmpty(t, actions)
	for _, a := range actions {
		require.Equal(t, s.Seats[s.ActiveSeat].PlayerID, a.PlayerID)
		require.NoError(t, r.Validate(s, a))
	}
}

func TestRaceSetup(t *testing.T) {
	s := setupRace(t, 4)
	assert.Equal(t, models.StatusPlaying, s.Status)
	assert.Equal(t, 0, s.ActiveSeat)
	assert.Equal(t, MaxRollBudget, s.Race.RollsRemaining)
	for i, seat := range s.Seats {
		assert.Equal(t, models.Colors[i], seat.Color)
		require.Len(t, seat.Pawns, PawnsPerSeat)
		for _, p := range seat.Pawns {
			assert.Equal(t, models.BasePawn(), p)
		}
	}
	assert.Equal(t, []int{0, 10, 20, 30}, []int{
		EntryCell(models.ColorRed), EntryCell(models.ColorBlue),
		EntryCell(models.ColorGreen), EntryCell(models.ColorYellow),
	})

	tooMany := newSession(models.RulesetRace, 5)
	assert.Error(t, Race{}.Setup(tooMany, nil))
	assert.Error(t, Race{}.Setup(s, nil), "already playing")
}

func TestRaceSixLeavesBase(t *testing.T) {
	for face := 1; face <= DieFaces; face++ {
		s := setupRace(t, 2)
		roll(t, s, "P1", Dice(face))
		if face == DieFaces {
			assert.True(t, s.Race.RollPending)
			move(t, s, "P1", 0)
			assert.Equal(t, models.PhaseTrack, s.Seats[0].Pawns[0].Phase)
			assert.Equal(t, 0, s.Seats[0].Pawns[0].Position)
			continue
		}
		assert.False(t, s.Race.RollPending, "face %d", face)
		_, _, err := Race{}.destination(s, 0, 0, face)
		var ime *IllegalMoveError
		require.ErrorAs(t, err, &ime)
		assert.Equal(t, ReasonNeedsSix, ime.Reason)
	}
}

func TestRaceRollBudgetExhausted(t *testing.T) {
	s := setupRace(t, 2)
	rng := Dice(2, 3, 5)
	turn := s.TurnID
	for i := 0; i < MaxRollBudget-1; i++ {
		out := roll(t, s, "P1", rng)
		assert.False(t, out.TurnPassed)
		assert.Equal(t, 0, s.ActiveSeat)
	}
	out := roll(t, s, "P1", rng)
	assert.True(t, out.TurnPassed)
	assert.Equal(t, 1, s.ActiveSeat)
	assert.Equal(t, turn+1, s.TurnID)
	for _, p := range s.Seats[0].Pawns {
		assert.Equal(t, models.PhaseBase, p.Phase)
	}
}

func TestRaceSingleRollWithPawnOnTrack(t *testing.T) {
	s := setupRace(t, 2)
	roll(t, s, "P1", Dice(6))
	move(t, s, "P1", 0)
	assert.Equal(t, 0, s.ActiveSeat, "six grants another activation")
	assert.Equal(t, 1, s.Race.RollsRemaining)
}

func TestRaceTurnRejections(t *testing.T) {
	s := setupRace(t, 2)

	_, err := Race{}.Apply(s, models.GameAction{Type: models.ActionRollDice, PlayerID: "P2"}, Dice(6))
	var ite *IllegalTurnError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, ReasonNotYourTurn, ite.Reason)

	_, err = Race{}.Apply(s, models.GameAction{Type: models.ActionMovePiece, PlayerID: "P1"}, nil)
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, ReasonNoPendingRoll, ite.Reason)

	_, err = Race{}.Apply(s, models.GameAction{Type: models.ActionMovePiece, PlayerID: "P1", PieceIndex: 7}, nil)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ReasonInvalidPiece, ve.Reason)

	_, err = Race{}.Apply(s, models.GameAction{Type: models.ActionPlayCard, PlayerID: "P1"}, nil)
	require.ErrorAs(t, err, &ve)

	roll(t, s, "P1", Dice(6))
	_, err = Race{}.Apply(s, models.GameAction{Type: models.ActionRollDice, PlayerID: "P1"}, Dice(6))
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, ReasonRollPending, ite.Reason)

	_, err = Race{}.Apply(s, models.GameAction{Type: models.ActionRollDice, PlayerID: "P9"}, Dice(6))
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, ReasonNotSeated, ite.Reason)
}

func TestRaceCaptureAndSafeCell(t *testing.T) {
	t.Run("capture sends exactly the victim to base", func(t *testing.T) {
		s := setupRace(t, 3)
		onTrack(s, 1, 0, 35) // BLUE at (10+35)%40 = 5
		onTrack(s, 1, 1, 3)  // BLUE at 13, untouched
		onTrack(s, 2, 0, 0)  // GREEN at its entry
		s.Race.RollPending, s.Race.LastRoll = true, 3
		onTrack(s, 0, 1, 2) // RED at 2, moves to 5

		out := move(t, s, "P1", 1)
		assert.Equal(t, models.BasePawn(), s.Seats[1].Pawns[0])
		assert.Equal(t, 13, s.Seats[1].Pawns[1].Position)
		assert.Equal(t, 20, s.Seats[2].Pawns[0].Position)
		assert.NotNil(t, out.Detail["captured"])
		assert.Equal(t, 5, s.Seats[0].Pawns[1].Position)
	})

	t.Run("own piece blocks", func(t *testing.T) {
		s := setupRace(t, 2)
		onTrack(s, 0, 0, 5)
		onTrack(s, 0, 1, 2)
		s.Race.RollPending, s.Race.LastRoll = true, 3
		_, err := Race{}.Apply(s, models.GameAction{Type: models.ActionMovePiece, PlayerID: "P1", PieceIndex: 1}, nil)
		var ime *IllegalMoveError
		require.ErrorAs(t, err, &ime)
		assert.Equal(t, ReasonOwnPieceBlocks, ime.Reason)
	})

	t.Run("opponent on its entry cell is safe", func(t *testing.T) {
		s := setupRace(t, 2)
		onTrack(s, 1, 0, 0) // BLUE at its entry, 10
		onTrack(s, 0, 0, 7) // RED at 7
		s.Race.RollPending, s.Race.LastRoll = true, 3
		before := s.Seats[1].Pawns[0]
		_, err := Race{}.Apply(s, models.GameAction{Type: models.ActionMovePiece, PlayerID: "P1", PieceIndex: 0}, nil)
		var ime *IllegalMoveError
		require.ErrorAs(t, err, &ime)
		assert.Equal(t, ReasonSafeCell, ime.Reason)
		assert.Equal(t, before, s.Seats[1].Pawns[0])
		assert.Equal(t, 7, s.Seats[0].Pawns[0].Position, "rejected move leaves state untouched")
	})

	t.Run("any opponent entry cell is safe", func(t *testing.T) {
		s := setupRace(t, 3)
		onTrack(s, 2, 0, 30) // GREEN at (20+30)%40 = 10, BLUE's entry
		onTrack(s, 0, 0, 7)  // RED at 7
		s.Race.RollPending, s.Race.LastRoll = true, 3
		before := s.Seats[2].Pawns[0]
		_, err := Race{}.Apply(s, models.GameAction{Type: models.ActionMovePiece, PlayerID: "P1", PieceIndex: 0}, nil)
		var ime *IllegalMoveError
		require.ErrorAs(t, err, &ime)
		assert.Equal(t, ReasonSafeCell, ime.Reason)
		assert.Equal(t, before, s.Seats[2].Pawns[0])
		assert.NotContains(t, Race{}.movable(s, 0, 3), 0)
	})

	t.Run("capture on own entry cell when leaving base", func(t *testing.T) {
		s := setupRace(t, 2)
		onTrack(s, 1, 0, 30) // BLUE at (10+30)%40 = 0, RED's entry
		s.Race.RollPending, s.Race.LastRoll = true, 6
		out := move(t, s, "P1", 0)
		assert.NotNil(t, out.Detail["captured"])
		assert.Equal(t, models.BasePawn(), s.Seats[1].Pawns[0])
		assert.Equal(t, 0, s.Seats[0].Pawns[0].Position)
	})
}

func TestRaceHomeStretch(t *testing.T) {
	s := setupRace(t, 2)
	onTrack(s, 0, 0, 38)
	s.Race.RollPending, s.Race.LastRoll = true, 3
	move(t, s, "P1", 0)
	p := s.Seats[0].Pawns[0]
	assert.Equal(t, models.PhaseHome, p.Phase)
	assert.Equal(t, 1, p.HomeSlot)

	onTrack(s, 0, 1, 37)
	s.ActiveSeat = 0
	s.Race.RollPending, s.Race.LastRoll = true, 4
	_, err := Race{}.Apply(s, models.GameAction{Type: models.ActionMovePiece, PlayerID: "P1", PieceIndex: 1}, nil)
	var ime *IllegalMoveError
	require.ErrorAs(t, err, &ime)
	assert.Equal(t, ReasonHomeSlotOccupied, ime.Reason)

	_, _, err = Race{}.destination(s, 0, 0, 1)
	require.ErrorAs(t, err, &ime)
	assert.Equal(t, ReasonPieceHome, ime.Reason)

	onTrack(s, 0, 2, 39)
	_, _, err = Race{}.destination(s, 0, 2, 6)
	require.ErrorAs(t, err, &ime)
	assert.Equal(t, ReasonHomeOvershoot, ime.Reason)
}

func TestRaceWinFinishesOnce(t *testing.T) {
	s := setupRace(t, 2)
	for p := 0; p < 3; p++ {
		s.Seats[0].Pawns[p] = models.Pawn{Phase: models.PhaseHome, Distance: TrackSize + p + 1, Position: -1, HomeSlot: p + 1}
	}
	onTrack(s, 0, 3, 37)
	onTrack(s, 1, 0, 12)
	s.Race.RollPending, s.Race.LastRoll = true, 3

	terminal, ok := Race{}.Terminal(s)
	assert.False(t, ok)
	assert.Nil(t, terminal)

	out := move(t, s, "P1", 3)
	assert.True(t, out.Finished)
	assert.Equal(t, models.StatusFinished, s.Status)
	assert.Equal(t, "P1", s.WinnerID)
	assert.Equal(t, []string{"P1", "P2"}, s.Placements)
	assert.Equal(t, 1, s.Seats[0].Place)
	assert.Equal(t, 2, s.Seats[1].Place)

	_, err := Race{}.Apply(s, models.GameAction{Type: models.ActionRollDice, PlayerID: "P2"}, Dice(6))
	var ite *IllegalTurnError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, ReasonNotPlaying, ite.Reason)
}

func TestRaceTurnCapRanksByProgress(t *testing.T) {
	s := newSession(models.RulesetRace, 3)
	s.HouseRules.MaxTurns = 1
	require.NoError(t, Race{}.Setup(s, nil))
	onTrack(s, 1, 0, 20)
	onTrack(s, 2, 0, 4)

	out := roll(t, s, "P1", Dice(2))
	assert.True(t, out.Finished)
	assert.Equal(t, []string{"P2", "P3", "P1"}, s.Placements)
	assert.Equal(t, "P2", s.WinnerID)
}

// The capture scenario played out move by move from a fresh two seat board.
func TestRaceEndToEndCapture(t *testing.T) {
	s := setupRace(t, 2)
	rng := Dice(6, 3, 6, 1, 6, 3, 1)
	requireOneActive(t, Race{}, s)

	roll(t, s, "P1", rng)
	move(t, s, "P1", 0)
	assert.Equal(t, 0, s.Seats[0].Pawns[0].Position)
	assert.Equal(t, 0, s.ActiveSeat)

	roll(t, s, "P1", rng)
	out := move(t, s, "P1", 0)
	assert.Equal(t, 3, s.Seats[0].Pawns[0].Position)
	assert.True(t, out.TurnPassed)
	assert.Equal(t, 1, s.ActiveSeat)

	roll(t, s, "P2", rng)
	move(t, s, "P2", 0)
	assert.Equal(t, 10, s.Seats[1].Pawns[0].Position)
	roll(t, s, "P2", rng)
	move(t, s, "P2", 0)
	assert.Equal(t, 11, s.Seats[1].Pawns[0].Position)
	assert.Equal(t, 0, s.ActiveSeat)

	roll(t, s, "P1", rng)
	move(t, s, "P1", 0)
	roll(t, s, "P1", rng)
	move(t, s, "P1", 0)
	assert.Equal(t, 12, s.Seats[0].Pawns[0].Position)
	assert.Equal(t, 1, s.ActiveSeat)

	roll(t, s, "P2", rng)
	out = move(t, s, "P2", 0)
	assert.Equal(t, 12, s.Seats[1].Pawns[0].Position)
	assert.NotNil(t, out.Detail["captured"])

	victim := s.Seats[0].Pawns[0]
	assert.Equal(t, models.PhaseBase, victim.Phase)
	assert.Equal(t, -1, victim.Distance)
	assert.Equal(t, 0, s.ActiveSeat)
	requireOneActive(t, Race{}, s)
	assert.Zero(t, rng.Remaining())
}

func TestRaceLegalActions(t *testing.T) {
	s := setupRace(t, 2)
	actions := Race{}.LegalActions(s)
	require.Len(t, actions, 1)
	assert.Equal(t, models.ActionRollDice, actions[0].Type)

	roll(t, s, "P1", Dice(6))
	actions = Race{}.LegalActions(s)
	require.Len(t, actions, PawnsPerSeat)
	for i, a := range actions {
		assert.Equal(t, models.ActionMovePiece, a.Type)
		assert.Equal(t, i, a.PieceIndex)
		assert.NoError(t, Race{}.Validate(s, a))
	}
}

// Random play never leaves the session without exactly one active seat.
func TestRaceRandomPlayKeepsOneActiveSeat(t *testing.T) {
	s := newSession(models.RulesetRace, 4)
	s.HouseRules.MaxTurns = 2000
	require.NoError(t, Race{}.Setup(s, nil))
	rng := NewRand(42)
	bot, err := LookupPolicy(PolicyFirstLegal)
	require.NoError(t, err)

	for s.Status == models.StatusPlaying {
		requireOneActive(t, Race{}, s)
		a, ok := bot.Choose(Race{}, s)
		require.True(t, ok)
		_, err := Race{}.Apply(s, a, rng)
		require.NoError(t, err)
	}
	assert.Equal(t, models.StatusFinished, s.Status)
	assert.Len(t, s.Placements, 4)
}
