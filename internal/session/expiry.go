// internal/session/expiry.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/tabletop/internal/game"
	"github.com/jason-s-yu/tabletop/internal/models"
)

const expiryTimeout = 10 * time.Second

func (c *Controller) expiryFunc(id string) func(version int64) {
	return func(version int64) {
		ctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
		defer cancel()
		c.Expire(ctx, id, version)
	}
}

type expiryKind int

const (
	expiryNone expiryKind = iota
	expiryTakeover
	expiryBotMove
	expiryComplete
)

// Expire handles a turn timer that fired for the given session version. A fire for
// any other version is stale and does nothing. A human seat is handed to a bot, a bot
// seat makes one move, and a decided session retries its completion.
func (c *Controller) Expire(ctx context.Context, id string, version int64) {
	logger := c.log.WithFields(logrus.Fields{"session": id, "version": version})

	kind := expiryNone
	var out game.Outcome
	var actor *models.Seat
	s, err := c.mutate(ctx, id, func(s *models.Session, r game.Ruleset) (bool, error) {
		kind = expiryNone
		if s.Version != version {
			return false, nil
		}
		if completionPending(s) || s.Status == models.StatusFinished {
			kind = expiryComplete
			return false, nil
		}
		if s.Status != models.StatusPlaying {
			return false, nil
		}
		seat := s.Active()
		if seat == nil {
			return false, fmt.Errorf("session %s has no active seat", s.ID)
		}
		actor = seat
		if !seat.IsBot() {
			seat.TakeOver(s.HouseRules.BotPolicy)
			seat.MissedTurns++
			kind = expiryTakeover
			return true, nil
		}
		policy, err := game.LookupPolicy(seat.BotPolicy)
		if err != nil {
			policy, _ = game.LookupPolicy(game.PolicyFirstLegal)
		}
		a, ok := policy.Choose(r, s)
		if !ok {
			return false, fmt.Errorf("bot policy %s found no legal action for %s", policy.Name(), seat.PlayerID)
		}
		o, err := r.Apply(s, a, c.rng)
		if err != nil {
			return false, fmt.Errorf("bot action rejected: %w", err)
		}
		holdFinish(s)
		out = o
		kind = expiryBotMove
		return true, nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Debug("timer fired for a session that is gone")
			return
		}
		logger.WithError(err).Error("turn expiry failed, re-arming")
		c.rearmAfterFailure(ctx, id)
		return
	}

	switch kind {
	case expiryNone:
		logger.Debug("stale turn timer ignored")
		return
	case expiryTakeover:
		logger.WithFields(logrus.Fields{
			"player": actor.PlayerID,
			"missed": actor.MissedTurns,
		}).Info("turn timed out, seat handed to bot")
		c.publishAction(ctx, s, actor.PlayerID, true, "takeover", map[string]interface{}{
			"policy": actor.BotPolicy,
			"reason": "timeout",
		})
	case expiryBotMove:
		logger.WithFields(logrus.Fields{
			"player": actor.PlayerID,
			"action": out.Action.Type,
		}).Debug("bot moved")
		c.publishAction(ctx, s, actor.PlayerID, true, string(out.Action.Type), out.Detail)
	case expiryComplete:
		logger.Info("retrying completion")
	}

	if err := c.settled(ctx, s); err != nil {
		logger.WithError(err).Warn("completion after expiry failed")
	}
}

// rearmAfterFailure puts a timer back on the last known good state so a failed
// expiry never leaves the game stalled.
func (c *Controller) rearmAfterFailure(ctx context.Context, id string) {
	s, err := c.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			// The store itself is unreachable; poll until it answers.
			c.log.WithError(err).WithField("session", id).Error("cannot reload session, retrying later")
			c.timers.Arm(id, -1, c.opts.CompletionRetry, func(int64) {
				rctx, cancel := context.WithTimeout(context.Background(), expiryTimeout)
				defer cancel()
				c.rearmAfterFailure(rctx, id)
			})
		}
		return
	}
	if completionPending(s) || s.Status == models.StatusFinished {
		c.timers.Arm(s.ID, s.Version, c.opts.CompletionRetry, c.expiryFunc(s.ID))
		return
	}
	d := c.opts.BotMoveDelay
	if active := s.Active(); active != nil && !active.IsBot() {
		d = c.opts.TurnTimeout
	}
	c.timers.Arm(s.ID, s.Version, d, c.expiryFunc(s.ID))
}
