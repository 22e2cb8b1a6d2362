// internal/game/errors.go
package game

import "fmt"

// Machine readable reason codes carried by rejections.
const (
	ReasonUnknownAction    = "unknown_action"
	ReasonMissingField     = "missing_field"
	ReasonInvalidPiece     = "invalid_piece_index"
	ReasonInvalidCard      = "invalid_card"
	ReasonInvalidDemand    = "invalid_demand"
	ReasonNotPlaying       = "session_not_playing"
	ReasonNotSeated        = "not_seated"
	ReasonNotYourTurn      = "not_your_turn"
	ReasonRollPending      = "roll_pending"
	ReasonNoPendingRoll    = "no_pending_roll"
	ReasonNeedsSix         = "needs_six"
	ReasonPieceHome        = "piece_already_home"
	ReasonOwnPieceBlocks   = "own_piece_blocks"
	ReasonSafeCell         = "safe_cell"
	ReasonHomeOvershoot    = "home_overshoot"
	ReasonHomeSlotOccupied = "home_slot_occupied"
	ReasonHomeFull         = "home_full"
	ReasonCardNotInHand    = "card_not_in_hand"
	ReasonCardNotPlayable  = "card_not_playable"
)

// Rejection is implemented by every expected, user-facing error of the rule engine.
type Rejection interface {
	error
	ReasonCode() string
}

// ValidationError is a malformed action. It is rejected before touching the session.
type ValidationError struct {
	Reason string
	Msg    string
}

func (e *ValidationError) Error() string      { return "invalid action: " + e.Msg }
func (e *ValidationError) ReasonCode() string { return e.Reason }

// IllegalTurnError is an action from the wrong seat or in the wrong turn phase.
type IllegalTurnError struct {
	Reason string
	Msg    string
}

func (e *IllegalTurnError) Error() string      { return "illegal turn: " + e.Msg }
func (e *IllegalTurnError) ReasonCode() string { return e.Reason }

// IllegalMoveError is an action in a legal turn whose effect breaks the rules.
type IllegalMoveError struct {
	Reason string
	Msg    string
}

func (e *IllegalMoveError) Error() string      { return "illegal move: " + e.Msg }
func (e *IllegalMoveError) ReasonCode() string { return e.Reason }

func invalid(reason, format string, args ...interface{}) error {
	return &ValidationError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func illegalTurn(reason, format string, args ...interface{}) error {
	return &IllegalTurnError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func illegalMove(reason, format string, args ...interface{}) error {
	return &IllegalMoveError{Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// Rejections raised outside the rule engine proper, by the session controller.
const (
	ReasonUnknownRuleset = "unknown_ruleset"
	ReasonInvalidRoster  = "invalid_roster"
	ReasonSeatIsBot      = "seat_is_bot"
)

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(reason, format string, args ...interface{}) error {
	return invalid(reason, format, args...)
}

// NewIllegalTurnError builds an IllegalTurnError with a formatted message.
func NewIllegalTurnError(reason, format string, args ...interface{}) error {
	return illegalTurn(reason, format, args...)
}
