// internal/session/controller.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/tabletop/internal/cache"
	"github.com/jason-s-yu/tabletop/internal/database"
	"github.com/jason-s-yu/tabletop/internal/game"
	"github.com/jason-s-yu/tabletop/internal/models"
)

// Broadcaster receives the session after every successful mutation.
type Broadcaster interface {
	Broadcast(s *models.Session)
}

// EventPublisher delivers finish events to the room and stats collaborators.
type EventPublisher interface {
	PublishFinish(ctx context.Context, ev models.FinishEvent) error
}

// ActionPublisher feeds the historian.
type ActionPublisher interface {
	PublishAction(ctx context.Context, rec cache.ActionRecord) error
}

// Options are the tunables of a Controller. Zero values take the defaults below.
type Options struct {
	TurnTimeout        time.Duration
	BotMoveDelay       time.Duration
	CompletionRetry    time.Duration
	BotPolicy          string
	MaxConflictRetries int
	RaceMaxTurns       int
	SheddingMaxTurns   int
}

const (
	DefaultTurnTimeout        = 30 * time.Second
	DefaultBotMoveDelay       = time.Second
	DefaultCompletionRetry    = 5 * time.Second
	DefaultMaxConflictRetries = 3
	DefaultSheddingMaxTurns   = 400
)

func (o Options) withDefaults() Options {
	if o.TurnTimeout <= 0 {
		o.TurnTimeout = DefaultTurnTimeout
	}
	if o.BotMoveDelay <= 0 {
		o.BotMoveDelay = DefaultBotMoveDelay
	}
	if o.CompletionRetry <= 0 {
		o.CompletionRetry = DefaultCompletionRetry
	}
	if o.BotPolicy == "" {
		o.BotPolicy = game.PolicyFirstLegal
	}
	if o.MaxConflictRetries <= 0 {
		o.MaxConflictRetries = DefaultMaxConflictRetries
	}
	if o.SheddingMaxTurns == 0 {
		o.SheddingMaxTurns = DefaultSheddingMaxTurns
	}
	return o
}

// Deps are the collaborators of a Controller. Store, Results and Logger are required.
type Deps struct {
	Store       cache.Store
	Results     database.ResultStore
	Events      EventPublisher
	Actions     ActionPublisher
	Broadcaster Broadcaster
	Scheduler   Scheduler
	Rand        game.Rand
	Logger      *logrus.Logger
}

// Controller owns the lifecycle of every session: start, actions, turn expiry,
// seat takeover and completion. All mutations are load / apply / conditional save.
type Controller struct {
	store       cache.Store
	results     database.ResultStore
	events      EventPublisher
	actions     ActionPublisher
	broadcaster Broadcaster
	timers      *TurnTimers
	rng         game.Rand
	log         *logrus.Logger
	opts        Options
	now         func() time.Time
}

// NewController wires a Controller.
func NewController(d Deps, opts Options) (*Controller, error) {
	if d.Store == nil || d.Results == nil {
		return nil, errors.New("session controller needs a session store and a result store")
	}
	opts = opts.withDefaults()
	if _, err := game.LookupPolicy(opts.BotPolicy); err != nil {
		return nil, err
	}
	rng := d.Rand
	if rng == nil {
		var err error
		if rng, err = game.NewSeededRand(); err != nil {
			return nil, err
		}
	}
	log := d.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{
		store:       d.Store,
		results:     d.Results,
		events:      d.Events,
		actions:     d.Actions,
		broadcaster: d.Broadcaster,
		timers:      NewTurnTimers(d.Scheduler),
		rng:         rng,
		log:         log,
		opts:        opts,
		now:         time.Now,
	}, nil
}

// StartSignal asks for a session to be created for a room roster.
type StartSignal struct {
	SessionID    string
	Ruleset      models.Ruleset
	PlayerIDs    []string
	HostID       string
	DisplayNames map[string]string
	MaxSeats     int
}

// LeaveSignal reports that a player left for good.
type LeaveSignal struct {
	SessionID string
	PlayerID  string
	Reason    string
}

// Start creates the session if none exists under the id. A duplicate signal returns
// the live session unchanged with created=false.
func (c *Controller) Start(ctx context.Context, sig StartSignal) (*models.Session, bool, error) {
	if sig.SessionID == "" {
		return nil, false, game.NewValidationError(game.ReasonMissingField, "session id is required")
	}
	if !sig.Ruleset.Valid() {
		return nil, false, game.NewValidationError(game.ReasonUnknownRuleset, "unknown ruleset %q", sig.Ruleset)
	}
	r, err := game.Lookup(sig.Ruleset)
	if err != nil {
		return nil, false, err
	}
	order, err := seatOrder(sig, r.MaxSeats())
	if err != nil {
		return nil, false, err
	}

	now := c.now().UTC()
	s := &models.Session{
		ID:         sig.SessionID,
		Ruleset:    sig.Ruleset,
		Status:     models.StatusWaiting,
		HostID:     sig.HostID,
		HouseRules: c.houseRules(sig),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, id := range order {
		name := sig.DisplayNames[id]
		if name == "" {
			name = id
		}
		s.Seats = append(s.Seats, &models.Seat{PlayerID: id, DisplayName: name, Control: models.ControlHuman})
	}
	if err := r.Setup(s, c.rng); err != nil {
		return nil, false, game.NewValidationError(game.ReasonInvalidRoster, "%v", err)
	}

	created, err := c.store.Create(ctx, s)
	if err != nil {
		return nil, false, &PersistenceError{Op: "create session", Err: err}
	}
	if !created {
		existing, err := c.Get(ctx, sig.SessionID)
		if err != nil {
			return nil, false, err
		}
		c.log.WithField("session", sig.SessionID).Debug("duplicate start signal ignored")
		return existing, false, nil
	}

	c.log.WithFields(logrus.Fields{
		"session": s.ID,
		"ruleset": s.Ruleset,
		"seats":   len(s.Seats),
	}).Info("session started")
	c.publishAction(ctx, s, s.HostID, false, "start", map[string]interface{}{"players": s.PlayerIDs()})
	c.arm(s)
	c.broadcast(s)
	return s, true, nil
}

// seatOrder puts the host first, then the rest of the roster in the order given.
func seatOrder(sig StartSignal, rulesetMax int) ([]string, error) {
	maxSeats := rulesetMax
	if sig.MaxSeats > 0 && sig.MaxSeats < maxSeats {
		maxSeats = sig.MaxSeats
	}
	if len(sig.PlayerIDs) < 2 || len(sig.PlayerIDs) > maxSeats {
		return nil, game.NewValidationError(game.ReasonInvalidRoster, "%s needs 2-%d players, got %d", sig.Ruleset, maxSeats, len(sig.PlayerIDs))
	}
	seen := make(map[string]bool, len(sig.PlayerIDs))
	hostSeated := false
	for _, id := range sig.PlayerIDs {
		if id == "" || seen[id] {
			return nil, game.NewValidationError(game.ReasonInvalidRoster, "roster has an empty or duplicate player id")
		}
		seen[id] = true
		hostSeated = hostSeated || id == sig.HostID
	}
	if !hostSeated {
		return nil, game.NewValidationError(game.ReasonInvalidRoster, "host %q is not in the roster", sig.HostID)
	}
	order := []string{sig.HostID}
	for _, id := range sig.PlayerIDs {
		if id != sig.HostID {
			order = append(order, id)
		}
	}
	return order, nil
}

func (c *Controller) houseRules(sig StartSignal) models.HouseRules {
	hr := models.HouseRules{MaxSeats: sig.MaxSeats, BotPolicy: c.opts.BotPolicy}
	switch sig.Ruleset {
	case models.RulesetRace:
		hr.MaxTurns = c.opts.RaceMaxTurns
	case models.RulesetShedding:
		hr.MaxTurns = c.opts.SheddingMaxTurns
	}
	if hr.MaxTurns < 0 {
		hr.MaxTurns = 0
	}
	return hr
}

// Get returns the live session.
func (c *Controller) Get(ctx context.Context, id string) (*models.Session, error) {
	s, err := c.store.Load(ctx, id)
	if errors.Is(err, cache.ErrSessionNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load session", Err: err}
	}
	return s, nil
}

// Result returns the durable record of a finished session.
func (c *Controller) Result(ctx context.Context, id string) (*models.ResultRecord, error) {
	rec, err := c.results.Get(ctx, id)
	if errors.Is(err, database.ErrResultNotFound) {
		return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load result", Err: err}
	}
	return rec, nil
}

func (c *Controller) RollDice(ctx context.Context, id, playerID string) (*models.Session, error) {
	return c.Act(ctx, id, models.GameAction{Type: models.ActionRollDice, PlayerID: playerID})
}

func (c *Controller) MovePiece(ctx context.Context, id, playerID string, piece int) (*models.Session, error) {
	return c.Act(ctx, id, models.GameAction{Type: models.ActionMovePiece, PlayerID: playerID, PieceIndex: piece})
}

func (c *Controller) PlayCard(ctx context.Context, id, playerID string, card models.Card, demand *models.Demand) (*models.Session, error) {
	return c.Act(ctx, id, models.GameAction{Type: models.ActionPlayCard, PlayerID: playerID, Card: &card, Demand: demand})
}

func (c *Controller) DrawCard(ctx context.Context, id, playerID string) (*models.Session, error) {
	return c.Act(ctx, id, models.GameAction{Type: models.ActionDrawCard, PlayerID: playerID})
}

// Act applies a player action. Rejections leave the session untouched.
func (c *Controller) Act(ctx context.Context, id string, a models.GameAction) (*models.Session, error) {
	if a.PlayerID == "" {
		return nil, game.NewValidationError(game.ReasonMissingField, "player id is required")
	}
	var out game.Outcome
	s, err := c.mutate(ctx, id, func(s *models.Session, r game.Ruleset) (bool, error) {
		if completionPending(s) {
			return false, game.NewIllegalTurnError(game.ReasonNotPlaying, "session %s is finishing", s.ID)
		}
		if seat := s.Seat(a.PlayerID); seat != nil && seat.IsBot() {
			return false, game.NewIllegalTurnError(game.ReasonSeatIsBot, "seat of %s is bot controlled", a.PlayerID)
		}
		o, err := r.Apply(s, a, c.rng)
		if err != nil {
			return false, err
		}
		holdFinish(s)
		out = o
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"session": id,
		"player":  a.PlayerID,
		"action":  a.Type,
		"version": s.Version,
	}).Debug("action applied")
	c.publishAction(ctx, s, a.PlayerID, false, string(a.Type), out.Detail)
	if err := c.settled(ctx, s); err != nil {
		// The action is committed; the completion retry timer owns the rest.
		c.log.WithError(err).WithField("session", id).Warn("completion deferred to retry")
	}
	return s, nil
}

// Leave converts the player's seat to a bot at once, whether or not it is active.
// Leaving a seat that is already a bot changes nothing. The deadline of the turn
// in progress is kept unless the leaving seat is the one to act.
func (c *Controller) Leave(ctx context.Context, sig LeaveSignal) (*models.Session, error) {
	if sig.PlayerID == "" {
		return nil, game.NewValidationError(game.ReasonMissingField, "player id is required")
	}
	var prev int64
	var changed, wasActive bool
	s, err := c.mutate(ctx, sig.SessionID, func(s *models.Session, _ game.Ruleset) (bool, error) {
		prev, changed, wasActive = s.Version, false, false
		if s.Status != models.StatusPlaying {
			return false, game.NewIllegalTurnError(game.ReasonNotPlaying, "session %s is %s", s.ID, s.Status)
		}
		seat := s.Seat(sig.PlayerID)
		if seat == nil {
			return false, game.NewIllegalTurnError(game.ReasonNotSeated, "player %s has no seat in session %s", sig.PlayerID, s.ID)
		}
		if completionPending(s) {
			return false, nil
		}
		wasActive = s.Active() == seat
		changed = seat.TakeOver(s.HouseRules.BotPolicy)
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return s, nil
	}

	c.log.WithFields(logrus.Fields{
		"session": sig.SessionID,
		"player":  sig.PlayerID,
		"reason":  sig.Reason,
	}).Info("player left, seat handed to bot")
	c.publishAction(ctx, s, sig.PlayerID, true, "leave", map[string]interface{}{"reason": sig.Reason})
	if !wasActive && c.timers.Rebind(s.ID, prev, s.Version) {
		c.broadcast(s)
		return s, nil
	}
	c.arm(s)
	c.broadcast(s)
	return s, nil
}

// EnsureTimer arms a turn timer for a live session that has none, e.g. after a restart.
func (c *Controller) EnsureTimer(ctx context.Context, id string) error {
	if _, ok := c.timers.Armed(id); ok {
		return nil
	}
	s, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case completionPending(s) || s.Status == models.StatusFinished:
		c.timers.Arm(s.ID, s.Version, c.opts.CompletionRetry, c.expiryFunc(s.ID))
	case s.Status == models.StatusPlaying:
		c.arm(s)
	}
	return nil
}

// Shutdown cancels every pending timer.
func (c *Controller) Shutdown() {
	c.timers.Stop()
}

// mutation changes s in place and reports whether it needs saving.
type mutation func(s *models.Session, r game.Ruleset) (bool, error)

// mutate runs fn against a fresh load of the session and saves the result conditioned
// on the loaded version. Version conflicts are retried from a fresh load.
func (c *Controller) mutate(ctx context.Context, id string, fn mutation) (*models.Session, error) {
	for attempt := 0; attempt <= c.opts.MaxConflictRetries; attempt++ {
		s, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		r, err := game.Lookup(s.Ruleset)
		if err != nil {
			return nil, err
		}
		expected := s.Version
		changed, err := fn(s, r)
		if err != nil {
			return nil, err
		}
		if !changed {
			return s, nil
		}
		s.UpdatedAt = c.now().UTC()
		err = c.store.Save(ctx, s, expected)
		if errors.Is(err, cache.ErrVersionConflict) {
			c.log.WithFields(logrus.Fields{
				"session": id,
				"version": expected,
				"attempt": attempt + 1,
			}).Debug("version conflict, retrying")
			continue
		}
		if errors.Is(err, cache.ErrSessionNotFound) {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, &PersistenceError{Op: "save session", Err: err}
		}
		return s, nil
	}
	return nil, fmt.Errorf("%s after %d retries: %w", id, c.opts.MaxConflictRetries, ErrConflict)
}

// settled runs after a successful write: it completes a decided session, otherwise
// arms the next turn timer and broadcasts.
func (c *Controller) settled(ctx context.Context, s *models.Session) error {
	if completionPending(s) || s.Status == models.StatusFinished {
		return c.complete(ctx, s)
	}
	c.arm(s)
	c.broadcast(s)
	return nil
}

// arm schedules the expiry of the current turn, bound to the session's version.
func (c *Controller) arm(s *models.Session) {
	if s.Status != models.StatusPlaying {
		return
	}
	d := c.opts.TurnTimeout
	if seat := s.Active(); seat != nil && seat.IsBot() {
		d = c.opts.BotMoveDelay
	}
	c.timers.Arm(s.ID, s.Version, d, c.expiryFunc(s.ID))
}

func (c *Controller) broadcast(s *models.Session) {
	if c.broadcaster != nil {
		c.broadcaster.Broadcast(s)
	}
}

func (c *Controller) publishAction(ctx context.Context, s *models.Session, actor string, isBot bool, kind string, payload map[string]interface{}) {
	if c.actions == nil {
		return
	}
	if seat := s.Seat(actor); seat != nil && seat.IsBot() {
		isBot = true
	}
	rec := cache.ActionRecord{
		SessionID:   s.ID,
		ActionIndex: s.TurnCount,
		ActorID:     actor,
		ActorIsBot:  isBot,
		ActionType:  kind,
		Payload:     payload,
		Timestamp:   c.now().UnixMilli(),
	}
	if err := c.actions.PublishAction(ctx, rec); err != nil {
		c.log.WithError(err).WithField("session", s.ID).Warn("failed to publish action record")
	}
}

// completionPending reports a session whose game is decided but whose result has not
// been durably recorded yet.
func completionPending(s *models.Session) bool {
	return s.Status == models.StatusPlaying && len(s.Seats) > 0 && len(s.Placements) == len(s.Seats)
}
