// internal/session/completion.go
package session

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/tabletop/internal/game"
	"github.com/jason-s-yu/tabletop/internal/models"
)

// holdFinish keeps a session the rule engine just decided in the PLAYING shape, with
// every placement filled, until its result is durably recorded. The store never holds
// FINISHED for a session whose record might still fail.
func holdFinish(s *models.Session) {
	if s.Status == models.StatusFinished {
		s.Status = models.StatusPlaying
	}
}

// complete records the result of a decided session and then removes it from the store.
// The result store absorbs a duplicate write, and only the writer that created the
// record publishes the finish event. On failure the session stays as it is and a
// retry timer is armed for its current version.
func (c *Controller) complete(ctx context.Context, s *models.Session) error {
	logger := c.log.WithFields(logrus.Fields{"session": s.ID, "winner": s.WinnerID})
	rec, err := c.resultRecord(s)
	if err != nil {
		return err
	}

	created, err := c.results.Record(ctx, rec)
	if err != nil {
		logger.WithError(err).Error("failed to record result, keeping session for retry")
		c.timers.Arm(s.ID, s.Version, c.opts.CompletionRetry, c.expiryFunc(s.ID))
		c.broadcast(s)
		return &PersistenceError{Op: "record result", Err: err}
	}
	s.Status = models.StatusFinished

	c.timers.Cancel(s.ID)
	if err := c.store.Delete(ctx, s.ID); err != nil {
		logger.WithError(err).Warn("failed to delete finished session, retrying")
		c.timers.Arm(s.ID, s.Version, c.opts.CompletionRetry, c.expiryFunc(s.ID))
	} else {
		c.timers.Forget(s.ID)
	}

	if created {
		if c.events != nil {
			ev := models.FinishEvent{
				SessionID:    rec.SessionID,
				Ruleset:      rec.Ruleset,
				Participants: rec.Participants,
				Placements:   rec.Placements,
				WinnerID:     rec.WinnerID,
			}
			if err := c.events.PublishFinish(ctx, ev); err != nil {
				logger.WithError(err).Error("failed to publish finish event")
			}
		}
		logger.WithField("placements", rec.Placements).Info("session finished")
	}
	c.broadcast(s)
	return nil
}

func (c *Controller) resultRecord(s *models.Session) (models.ResultRecord, error) {
	r, err := game.Lookup(s.Ruleset)
	if err != nil {
		return models.ResultRecord{}, err
	}
	rec := models.ResultRecord{
		SessionID:  s.ID,
		Ruleset:    s.Ruleset,
		Placements: append([]string(nil), s.Placements...),
		WinnerID:   s.WinnerID,
		FinishedAt: c.now().UTC(),
	}
	for place, id := range s.Placements {
		idx := s.SeatIndex(id)
		if idx < 0 {
			continue
		}
		seat := s.Seats[idx]
		rec.Participants = append(rec.Participants, models.Participant{
			PlayerID:    seat.PlayerID,
			DisplayName: seat.DisplayName,
			IsBot:       seat.IsBot(),
			Place:       place + 1,
			Score:       r.Score(s, idx),
		})
	}
	return rec, nil
}
