// internal/game/bot.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/tabletop/internal/models"
)

// Bot policy names accepted in house rules and config.
const (
	PolicyFirstLegal = "first_legal"
	PolicyGreedy     = "greedy"
)

// BotPolicy picks an action for a bot-controlled active seat. Choose returns false
// only when the ruleset offers no legal action.
type BotPolicy interface {
	Name() string
	Choose(r Ruleset, s *models.Session) (models.GameAction, bool)
}

var policies = map[string]BotPolicy{
	PolicyFirstLegal: firstLegal{},
	PolicyGreedy:     greedy{},
}

// LookupPolicy resolves a policy by name. The empty name is first_legal.
func LookupPolicy(name string) (BotPolicy, error) {
	if name == "" {
		name = PolicyFirstLegal
	}
	p, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("unknown bot policy %q", name)
	}
	return p, nil
}

// firstLegal takes the first action in LegalActions order.
type firstLegal struct{}

func (firstLegal) Name() string { return PolicyFirstLegal }

func (firstLegal) Choose(r Ruleset, s *models.Session) (models.GameAction, bool) {
	actions := r.LegalActions(s)
	if len(actions) == 0 {
		return models.GameAction{}, false
	}
	return actions[0], true
}

// greedy prefers captures, then reaching home, then the furthest pawn in RACE.
// In SHEDDING it sheds the most expensive playable card and draws only when stuck.
type greedy struct{}

func (greedy) Name() string { return PolicyGreedy }

func (greedy) Choose(r Ruleset, s *models.Session) (models.GameAction, bool) {
	actions := r.LegalActions(s)
	if len(actions) == 0 {
		return models.GameAction{}, false
	}
	best, bestScore := 0, -1
	for i, a := range actions {
		score := greedyScore(s, a)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return actions[best], true
}

func greedyScore(s *models.Session, a models.GameAction) int {
	switch a.Type {
	case models.ActionMovePiece:
		dest, victim, err := Race{}.destination(s, s.ActiveSeat, a.PieceIndex, s.Race.LastRoll)
		if err != nil {
			return 0
		}
		score := dest.Distance + 1
		if dest.Phase == models.PhaseHome {
			score += 100
		}
		if victim != nil {
			score += 1000
		}
		return score
	case models.ActionPlayCard:
		return CardPoints(*a.Card) + 1
	}
	return 0
}
