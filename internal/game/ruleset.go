// internal/game/ruleset.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/tabletop/internal/models"
)

// Outcome summarizes what an applied action did. Detail is the payload recorded
// in the action log.
type Outcome struct {
	Action     models.GameAction
	Detail     map[string]interface{}
	TurnPassed bool
	Finished   bool
}

// Ruleset is the strategy that validates and applies actions for one kind of game.
// Implementations are pure: no I/O, randomness only through rng.
type Ruleset interface {
	Kind() models.Ruleset
	MaxSeats() int

	// Setup deals pieces or cards and moves the session from WAITING to PLAYING.
	Setup(s *models.Session, rng Rand) error

	// Validate checks an action against the current state without changing it.
	Validate(s *models.Session, a models.GameAction) error

	// Apply validates and then applies the action in place.
	Apply(s *models.Session, a models.GameAction, rng Rand) (Outcome, error)

	// LegalActions lists the actions the active seat may take, in a stable order.
	LegalActions(s *models.Session) []models.GameAction

	// Terminal returns the final placements once the game is over.
	Terminal(s *models.Session) ([]string, bool)

	// Score is the seat's score used for placements that are not decided by play.
	Score(s *models.Session, seat int) int
}

var rulesets = map[models.Ruleset]Ruleset{
	models.RulesetRace:     Race{},
	models.RulesetShedding: Shedding{},
}

// Lookup returns the ruleset registered for kind.
func Lookup(kind models.Ruleset) (Ruleset, error) {
	r, ok := rulesets[kind]
	if !ok {
		return nil, fmt.Errorf("unknown ruleset %q", kind)
	}
	return r, nil
}
