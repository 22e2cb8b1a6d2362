// internal/game/bot_test.go
package game

import (
	"testing"

	"github.com/jason-s-yu/tabletop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupPolicy(t *testing.T) {
	p, err := LookupPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFirstLegal, p.Name())

	p, err = LookupPolicy(PolicyGreedy)
	require.NoError(t, err)
	assert.Equal(t, PolicyGreedy, p.Name())

	_, err = LookupPolicy("minimax")
	assert.Error(t, err)
}

func TestFirstLegalIsDeterministic(t *testing.T) {
	s := setupRace(t, 2)
	p, _ := LookupPolicy(PolicyFirstLegal)
	a, ok := p.Choose(Race{}, s)
	require.True(t, ok)
	assert.Equal(t, models.GameAction{Type: models.ActionRollDice, PlayerID: "P1"}, a)

	roll(t, s, "P1", Dice(6))
	onTrack(s, 0, 2, 4)
	a, ok = p.Choose(Race{}, s)
	require.True(t, ok)
	assert.Equal(t, 0, a.PieceIndex)
}

func TestGreedyPrefersCapture(t *testing.T) {
	s := setupRace(t, 2)
	onTrack(s, 0, 0, 20) // RED at 20, can go furthest
	onTrack(s, 0, 1, 1)  // RED at 1
	onTrack(s, 1, 0, 34) // BLUE at 4
	s.Race.RollPending, s.Race.LastRoll = true, 3

	greedy, _ := LookupPolicy(PolicyGreedy)
	a, ok := greedy.Choose(Race{}, s)
	require.True(t, ok)
	assert.Equal(t, 1, a.PieceIndex)

	s.Seats[1].Pawns[0] = models.BasePawn()
	a, ok = greedy.Choose(Race{}, s)
	require.True(t, ok)
	assert.Equal(t, 0, a.PieceIndex, "without a capture the furthest pawn moves")
}

func TestGreedySheds(t *testing.T) {
	s := setupShedding(t, "7H", cards("7S", "AH", "9H", "5C"), cards("6D"))
	greedy, _ := LookupPolicy(PolicyGreedy)
	a, ok := greedy.Choose(Shedding{}, s)
	require.True(t, ok)
	assert.Equal(t, models.ActionPlayCard, a.Type)
	assert.Equal(t, c("AH"), *a.Card)
	require.NotNil(t, a.Demand)
	assert.True(t, models.ValidSuit(a.Demand.Suit))
	require.NoError(t, Shedding{}.Validate(s, a))

	s.Seats[0].Hand = cards("5C")
	a, ok = greedy.Choose(Shedding{}, s)
	require.True(t, ok)
	assert.Equal(t, models.ActionDrawCard, a.Type)
}

func TestBotsHaveNothingOnFinishedSession(t *testing.T) {
	s := setupRace(t, 2)
	s.Status = models.StatusFinished
	for _, name := range []string{PolicyFirstLegal, PolicyGreedy} {
		p, _ := LookupPolicy(name)
		_, ok := p.Choose(Race{}, s)
		assert.False(t, ok, name)
	}
}
