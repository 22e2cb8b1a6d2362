// internal/historian/historian.go pops applied session actions off the Redis queue
// and persists them in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/jason-s-yu/tabletop/internal/cache"
	"github.com/jason-s-yu/tabletop/internal/database"
)

const (
	DefaultBatchSize     = 20
	DefaultFlushInterval = 500 * time.Millisecond
	// popTimeout bounds each BLPOP so shutdown is noticed; Redis counts in whole seconds.
	popTimeout = time.Second
	// maxPending caps the batch kept across failed flushes.
	maxPending = 10000
)

// Config tunes a Service. Zero values take the defaults.
type Config struct {
	Queue         string
	BatchSize     int
	FlushInterval time.Duration
}

// Service batches action records from the queue into an ActionSink.
type Service struct {
	rdb        *redis.Client
	sink       database.ActionSink
	queue      string
	batchSize  int
	flushDelay time.Duration
	logger     *logrus.Logger

	batchMu sync.Mutex
	batch   []cache.ActionRecord
}

func New(rdb *redis.Client, sink database.ActionSink, cfg Config, logger *logrus.Logger) *Service {
	if cfg.Queue == "" {
		cfg.Queue = cache.DefaultQueueName
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	return &Service{
		rdb:        rdb,
		sink:       sink,
		queue:      cfg.Queue,
		batchSize:  cfg.BatchSize,
		flushDelay: cfg.FlushInterval,
		logger:     logger,
		batch:      make([]cache.ActionRecord, 0, cfg.BatchSize),
	}
}

// Run reads the queue and flushes on size or interval until ctx is cancelled,
// then makes a last flush of whatever is buffered.
func (s *Service) Run(ctx context.Context) error {
	s.logger.WithField("queue", s.queue).Info("historian started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readLoop(gctx) })
	g.Go(func() error { return s.flushLoop(gctx) })
	err := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if ferr := s.Flush(flushCtx); ferr != nil {
		s.logger.WithError(ferr).Error("final flush failed")
	}
	s.logger.Info("historian stopped")
	return err
}

func (s *Service) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := s.rdb.BLPop(ctx, popTimeout, s.queue).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.WithError(err).Error("BLPOP failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.flushDelay):
			}
			continue
		}
		// res[0] is the queue name and res[1] the payload.
		if len(res) < 2 {
			continue
		}
		var rec cache.ActionRecord
		if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
			s.logger.WithError(err).Warn("invalid action record")
			continue
		}
		if s.add(rec) {
			if err := s.Flush(ctx); err != nil {
				s.logger.WithError(err).Error("batch flush failed")
			}
		}
	}
}

func (s *Service) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.logger.WithError(err).Error("interval flush failed")
			}
		}
	}
}

// add buffers rec and reports whether the batch is full.
func (s *Service) add(rec cache.ActionRecord) bool {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, rec)
	return len(s.batch) >= s.batchSize
}

// Flush writes the buffered records in one sink call. On failure they stay
// buffered for the next flush; the sink ignores ids it already has.
func (s *Service) Flush(ctx context.Context) error {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return nil
	}
	pending := s.batch
	s.batch = make([]cache.ActionRecord, 0, s.batchSize)
	s.batchMu.Unlock()

	if err := s.sink.InsertActions(ctx, pending); err != nil {
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		if over := len(s.batch) - maxPending; over > 0 {
			s.logger.WithField("dropped", over).Error("historian backlog full, dropping oldest actions")
			s.batch = s.batch[over:]
		}
		s.batchMu.Unlock()
		return err
	}
	s.logger.WithField("count", len(pending)).Debug("flushed actions")
	return nil
}

// Pending returns the number of buffered records.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
