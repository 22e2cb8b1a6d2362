// internal/cache/store_test.go
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/tabletop/internal/models"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func testSession(id string) *models.Session {
	return &models.Session{
		ID:      id,
		Ruleset: models.RulesetRace,
		Status:  models.StatusPlaying,
		Seats: []*models.Seat{
			{PlayerID: "P1", Control: models.ControlHuman},
			{PlayerID: "P2", Control: models.ControlHuman},
		},
		Race: &models.RaceState{RollsRemaining: 3},
	}
}

func stores(t *testing.T) map[string]Store {
	_, rdb := newRedis(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  NewRedisStore(rdb, time.Hour),
	}
}

func TestStoreCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := testSession("dup")
			created, err := store.Create(ctx, s)
			require.NoError(t, err)
			assert.True(t, created)
			assert.EqualValues(t, 1, s.Version)

			s.TurnCount = 7
			require.NoError(t, store.Save(ctx, s, 1))

			again := testSession("dup")
			created, err = store.Create(ctx, again)
			require.NoError(t, err)
			assert.False(t, created)

			loaded, err := store.Load(ctx, "dup")
			require.NoError(t, err)
			assert.Equal(t, 7, loaded.TurnCount, "second create must not reset state")
			assert.EqualValues(t, 2, loaded.Version)
		})
	}
}

func TestStoreSaveRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := testSession("cas")
			_, err := store.Create(ctx, s)
			require.NoError(t, err)

			a, err := store.Load(ctx, "cas")
			require.NoError(t, err)
			b, err := store.Load(ctx, "cas")
			require.NoError(t, err)

			a.ActiveSeat = 1
			require.NoError(t, store.Save(ctx, a, a.Version))
			assert.EqualValues(t, 2, a.Version)

			b.TurnCount = 99
			err = store.Save(ctx, b, b.Version)
			assert.ErrorIs(t, err, ErrVersionConflict)
			assert.EqualValues(t, 1, b.Version, "failed save leaves the caller's version alone")

			loaded, err := store.Load(ctx, "cas")
			require.NoError(t, err)
			assert.Equal(t, 1, loaded.ActiveSeat)
			assert.Zero(t, loaded.TurnCount)
		})
	}
}

func TestStoreConcurrentSaveOneWins(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Create(ctx, testSession("race"))
			require.NoError(t, err)

			const writers = 8
			var wg sync.WaitGroup
			results := make([]error, writers)
			for i := 0; i < writers; i++ {
				s, err := store.Load(ctx, "race")
				require.NoError(t, err)
				s.TurnCount = i + 1
				wg.Add(1)
				go func(i int, s *models.Session) {
					defer wg.Done()
					results[i] = store.Save(ctx, s, 1)
				}(i, s)
			}
			wg.Wait()

			wins := 0
			for _, err := range results {
				if err == nil {
					wins++
					continue
				}
				assert.ErrorIs(t, err, ErrVersionConflict)
			}
			assert.Equal(t, 1, wins)

			loaded, err := store.Load(ctx, "race")
			require.NoError(t, err)
			assert.EqualValues(t, 2, loaded.Version)
		})
	}
}

func TestStoreMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "nope")
			assert.ErrorIs(t, err, ErrSessionNotFound)
			assert.ErrorIs(t, store.Save(ctx, testSession("nope"), 1), ErrSessionNotFound)

			s := testSession("gone")
			_, err = store.Create(ctx, s)
			require.NoError(t, err)
			require.NoError(t, store.Delete(ctx, "gone"))
			require.NoError(t, store.Delete(ctx, "gone"))
			_, err = store.Load(ctx, "gone")
			assert.ErrorIs(t, err, ErrSessionNotFound)
		})
	}
}

func TestStoreLoadReturnsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := testSession("copy")
	_, err := store.Create(ctx, s)
	require.NoError(t, err)

	s.Seats[0].Control = models.ControlBot
	loaded, err := store.Load(ctx, "copy")
	require.NoError(t, err)
	assert.Equal(t, models.ControlHuman, loaded.Seats[0].Control)
}

func TestRedisStoreTTL(t *testing.T) {
	mr, rdb := newRedis(t)
	store := NewRedisStore(rdb, time.Minute)
	_, err := store.Create(context.Background(), testSession("ttl"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("session:ttl"))

	mr.FastForward(2 * time.Minute)
	_, err = store.Load(context.Background(), "ttl")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestActionLogAndEventBus(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()

	log := NewActionLog(rdb, "")
	require.NoError(t, log.PublishAction(ctx, ActionRecord{SessionID: "s1", ActorID: "P1", ActionType: "roll_dice"}))
	items, err := mr.List(DefaultQueueName)
	require.NoError(t, err)
	require.Len(t, items, 1)
	var rec ActionRecord
	require.NoError(t, json.Unmarshal([]byte(items[0]), &rec))
	assert.Equal(t, "s1", rec.SessionID)
	assert.NotZero(t, rec.Timestamp)

	bus := NewEventBus(rdb, "finished")
	sub := rdb.Subscribe(ctx, bus.Channel())
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	ev := models.FinishEvent{SessionID: "s1", Ruleset: models.RulesetRace, WinnerID: "P1", Placements: []string{"P1", "P2"}}
	require.NoError(t, bus.PublishFinish(ctx, ev))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got models.FinishEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, ev.WinnerID, got.WinnerID)

	logged, err := mr.List("finished:log")
	require.NoError(t, err)
	assert.Len(t, logged, 1)
}
