// internal/game/shedding.go
package game

import (
	"fmt"

	"github.com/jason-s-yu/tabletop/internal/models"
)

const (
	MaxSheddingSeats = 6
	DefaultHandSize  = 5
)

// demandableRanks are the ranks a J may demand.
var demandableRanks = []string{"5", "6", "7", "8", "9", "T"}

// Shedding is the Makao-style card shedding ruleset.
type Shedding struct{}

func (Shedding) Kind() models.Ruleset { return models.RulesetShedding }
func (Shedding) MaxSeats() int        { return MaxSheddingSeats }

// NewDeck returns an unshuffled 52 card deck.
func NewDeck() []models.Card {
	deck := make([]models.Card, 0, len(models.Suits)*len(models.Ranks))
	for _, suit := range models.Suits {
		for _, rank := range models.Ranks {
			deck = append(deck, models.Card{Rank: rank, Suit: suit})
		}
	}
	return deck
}

// Setup shuffles, deals and turns up the first neutral card.
func (Shedding) Setup(s *models.Session, rng Rand) error {
	n := len(s.Seats)
	if n < 2 || n > MaxSheddingSeats {
		return fmt.Errorf("shedding needs 2-%d seats, got %d", MaxSheddingSeats, n)
	}
	if s.Status != models.StatusWaiting {
		return fmt.Errorf("session %s already %s", s.ID, s.Status)
	}
	handSize := s.HouseRules.HandSize
	if handSize <= 0 {
		handSize = DefaultHandSize
	}

	deck := NewDeck()
	shuffle(deck, rng)
	sh := &models.SheddingState{DrawPile: deck, DemandBy: -1}

	for _, seat := range s.Seats {
		seat.Hand = make([]models.Card, 0, handSize)
		seat.Pawns = nil
	}
	// Deal one card at a time around the table, top of the pile is its end.
	for c := 0; c < handSize; c++ {
		for _, seat := range s.Seats {
			seat.Hand = append(seat.Hand, drawTop(sh))
		}
	}

	starter := -1
	for i := len(sh.DrawPile) - 1; i >= 0; i-- {
		if isNeutral(sh.DrawPile[i]) {
			starter = i
			break
		}
	}
	if starter < 0 {
		return fmt.Errorf("no neutral starter card in draw pile")
	}
	sh.DiscardPile = []models.Card{sh.DrawPile[starter]}
	sh.DrawPile = append(sh.DrawPile[:starter], sh.DrawPile[starter+1:]...)

	s.Shedding = sh
	s.Status = models.StatusPlaying
	beginTurn(s, 0)
	return nil
}

func drawTop(sh *models.SheddingState) models.Card {
	c := sh.DrawPile[len(sh.DrawPile)-1]
	sh.DrawPile = sh.DrawPile[:len(sh.DrawPile)-1]
	return c
}

// isNeutral reports whether a card has no effect and no special playability.
func isNeutral(c models.Card) bool {
	for _, r := range demandableRanks {
		if c.Rank == r {
			return true
		}
	}
	return false
}

// drawPenalty is how many cards a card adds to the pending draw.
func drawPenalty(c models.Card) int {
	switch {
	case c.Rank == "2":
		return 2
	case c.Rank == "3":
		return 3
	case c.Rank == "K" && (c.Suit == models.SuitHearts || c.Suit == models.SuitSpades):
		return 5
	}
	return 0
}

// CardPoints is the penalty value of an unplayed card.
func CardPoints(c models.Card) int {
	switch c.Rank {
	case "T", "J", "Q", "K":
		return 10
	case "A":
		return 15
	}
	return int(c.Rank[0] - '0')
}

// playable checks card against the top of the discard pile and any pending effect.
func playable(sh *models.SheddingState, card models.Card) error {
	top, _ := sh.Top()
	sameRankOrSuit := card.Rank == top.Rank || card.Suit == top.Suit
	switch {
	case sh.PendingDraw > 0:
		if drawPenalty(card) == 0 || !sameRankOrSuit {
			return illegalMove(ReasonCardNotPlayable, "%s cannot answer a pending draw of %d on %s", card, sh.PendingDraw, top)
		}
	case sh.PendingSkip > 0:
		if card.Rank != "4" {
			return illegalMove(ReasonCardNotPlayable, "only a 4 can answer a pending skip")
		}
	case sh.DemandRank != "":
		if card.Rank != sh.DemandRank && card.Rank != "J" {
			return illegalMove(ReasonCardNotPlayable, "rank %s is demanded", sh.DemandRank)
		}
	case sh.DemandSuit != "":
		if card.Suit != sh.DemandSuit && card.Rank != "A" {
			return illegalMove(ReasonCardNotPlayable, "suit %s is demanded", sh.DemandSuit)
		}
	default:
		if card.Rank != "Q" && top.Rank != "Q" && !sameRankOrSuit {
			return illegalMove(ReasonCardNotPlayable, "%s does not match %s", card, top)
		}
	}
	return nil
}

func handIndex(hand []models.Card, c models.Card) int {
	for i, h := range hand {
		if h == c {
			return i
		}
	}
	return -1
}

func validDemand(card models.Card, d *models.Demand) error {
	switch card.Rank {
	case "J":
		if d == nil || d.Rank == "" {
			return invalid(ReasonInvalidDemand, "a J must demand a rank")
		}
		for _, r := range demandableRanks {
			if d.Rank == r {
				return nil
			}
		}
		return invalid(ReasonInvalidDemand, "rank %q cannot be demanded", d.Rank)
	case "A":
		if d == nil || !models.ValidSuit(d.Suit) {
			return invalid(ReasonInvalidDemand, "an A must demand a suit")
		}
	}
	return nil
}

func (Shedding) Validate(s *models.Session, a models.GameAction) error {
	if s.Shedding == nil {
		return invalid(ReasonUnknownAction, "session %s is not a shedding game", s.ID)
	}
	switch a.Type {
	case models.ActionPlayCard:
		if a.Card == nil {
			return invalid(ReasonMissingField, "card is required")
		}
		if !a.Card.Valid() {
			return invalid(ReasonInvalidCard, "unknown card %q", a.Card.String())
		}
		if err := validDemand(*a.Card, a.Demand); err != nil {
			return err
		}
		idx, err := checkTurn(s, a.PlayerID)
		if err != nil {
			return err
		}
		if handIndex(s.Seats[idx].Hand, *a.Card) < 0 {
			return illegalMove(ReasonCardNotInHand, "%s is not in your hand", a.Card)
		}
		return playable(s.Shedding, *a.Card)
	case models.ActionDrawCard:
		_, err := checkTurn(s, a.PlayerID)
		return err
	default:
		return invalid(ReasonUnknownAction, "action %q is not part of a shedding game", a.Type)
	}
}

func (r Shedding) Apply(s *models.Session, a models.GameAction, rng Rand) (Outcome, error) {
	if err := r.Validate(s, a); err != nil {
		return Outcome{}, err
	}
	out := Outcome{Action: a, Detail: map[string]interface{}{}}
	sh := s.Shedding
	seatIdx := s.ActiveSeat
	seat := s.Seats[seatIdx]

	switch a.Type {
	case models.ActionPlayCard:
		card := *a.Card
		i := handIndex(seat.Hand, card)
		seat.Hand = append(seat.Hand[:i], seat.Hand[i+1:]...)
		sh.DiscardPile = append(sh.DiscardPile, card)
		out.Detail["card"] = card.String()

		sh.PendingDraw += drawPenalty(card)
		switch card.Rank {
		case "4":
			sh.PendingSkip++
		case "J":
			sh.ClearDemand()
			sh.DemandRank, sh.DemandBy = a.Demand.Rank, seatIdx
			out.Detail["demand_rank"] = sh.DemandRank
		case "A":
			sh.ClearDemand()
			sh.DemandSuit, sh.DemandBy = a.Demand.Suit, seatIdx
			out.Detail["demand_suit"] = sh.DemandSuit
		}

		if len(seat.Hand) == 0 {
			seat.Finished = true
			s.Placements = append(s.Placements, seat.PlayerID)
			seat.Place = len(s.Placements)
			out.Detail["finished_place"] = seat.Place
		}

	case models.ActionDrawCard:
		switch {
		case sh.PendingDraw > 0:
			out.Detail["drawn"] = r.draw(s, seat, sh.PendingDraw, rng)
			sh.PendingDraw = 0
		case sh.PendingSkip > 0:
			seat.SkipTurns = sh.PendingSkip - 1
			out.Detail["skipped"] = sh.PendingSkip
			sh.PendingSkip = 0
		default:
			out.Detail["drawn"] = r.draw(s, seat, 1, rng)
		}
	}

	if unfinished(s) > 1 {
		r.advance(s)
		out.TurnPassed = true
	}
	settle(r, s, &out)
	return out, nil
}

// draw moves up to n cards to the seat, refilling the draw pile from the discard
// pile (all but its top card) when it runs out.
func (Shedding) draw(s *models.Session, seat *models.Seat, n int, rng Rand) int {
	sh := s.Shedding
	drawn := 0
	for ; drawn < n; drawn++ {
		if len(sh.DrawPile) == 0 {
			if len(sh.DiscardPile) <= 1 {
				break
			}
			top := sh.DiscardPile[len(sh.DiscardPile)-1]
			sh.DrawPile = append(sh.DrawPile, sh.DiscardPile[:len(sh.DiscardPile)-1]...)
			sh.DiscardPile = []models.Card{top}
			shuffle(sh.DrawPile, rng)
		}
		seat.Hand = append(seat.Hand, drawTop(sh))
	}
	return drawn
}

// advance moves the turn to the next seat that is neither finished nor sitting out.
// Passing the seat that issued a demand ends the demand.
func (Shedding) advance(s *models.Session) {
	sh := s.Shedding
	n := len(s.Seats)
	idx := s.ActiveSeat
	for guard := 0; guard < n*64; guard++ {
		idx = (idx + 1) % n
		if idx == sh.DemandBy {
			sh.ClearDemand()
		}
		seat := s.Seats[idx]
		if seat.Finished {
			continue
		}
		if seat.SkipTurns > 0 {
			seat.SkipTurns--
			continue
		}
		break
	}
	beginTurn(s, idx)
}

func unfinished(s *models.Session) int {
	n := 0
	for _, seat := range s.Seats {
		if !seat.Finished {
			n++
		}
	}
	return n
}

func (r Shedding) LegalActions(s *models.Session) []models.GameAction {
	seat := s.Active()
	if s.Status != models.StatusPlaying || s.Shedding == nil || seat == nil {
		return nil
	}
	var actions []models.GameAction
	for _, c := range seat.Hand {
		if playable(s.Shedding, c) != nil {
			continue
		}
		card := c
		a := models.GameAction{Type: models.ActionPlayCard, PlayerID: seat.PlayerID, Card: &card}
		switch card.Rank {
		case "J":
			a.Demand = &models.Demand{Rank: preferredRank(seat.Hand)}
		case "A":
			a.Demand = &models.Demand{Suit: preferredSuit(seat.Hand, card)}
		}
		actions = append(actions, a)
	}
	return append(actions, models.GameAction{Type: models.ActionDrawCard, PlayerID: seat.PlayerID})
}

// preferredRank picks the demandable rank the hand holds most of, defaulting to the lowest.
func preferredRank(hand []models.Card) string {
	best, count := demandableRanks[0], 0
	for _, r := range demandableRanks {
		n := 0
		for _, c := range hand {
			if c.Rank == r {
				n++
			}
		}
		if n > count {
			best, count = r, n
		}
	}
	return best
}

// preferredSuit picks the suit the hand holds most of once the played card is gone.
func preferredSuit(hand []models.Card, played models.Card) string {
	best, count := played.Suit, -1
	for _, suit := range models.Suits {
		n := 0
		for _, c := range hand {
			if c.Suit == suit && c != played {
				n++
			}
		}
		if n > count {
			best, count = suit, n
		}
	}
	return best
}

// Terminal ends the game once a single seat still holds cards, or at the turn cap.
// Seats that emptied their hands keep their finishing order; the rest are ranked by
// card points, lowest first.
func (r Shedding) Terminal(s *models.Session) ([]string, bool) {
	if placements, ok := finalPlacements(s); ok {
		return placements, true
	}
	if unfinished(s) > 1 && !capReached(s) {
		return nil, false
	}
	placements := append([]string(nil), s.Placements...)
	var rest []int
	for i, seat := range s.Seats {
		if !seat.Finished {
			rest = append(rest, i)
		}
	}
	byPoints := func(a, b int) bool { return r.Score(s, a) < r.Score(s, b) }
	return append(placements, rankSeats(s, rest, byPoints)...), true
}

// Score is the point value of the seat's remaining hand; lower is better.
func (Shedding) Score(s *models.Session, idx int) int {
	total := 0
	for _, c := range s.Seats[idx].Hand {
		total += CardPoints(c)
	}
	return total
}
