// internal/database/results.go
package database

import (
	"context"
	"errors"

	"github.com/jason-s-yu/tabletop/internal/cache"
	"github.com/jason-s-yu/tabletop/internal/models"
)

// ErrResultNotFound is returned by Get when no record exists for the session.
var ErrResultNotFound = errors.New("result not found")

// ResultStore is the durable home of finished sessions. A record is written once.
type ResultStore interface {
	// Record inserts rec unless a record for the same session exists. created is
	// false when an earlier write won.
	Record(ctx context.Context, rec models.ResultRecord) (created bool, err error)

	Get(ctx context.Context, sessionID string) (*models.ResultRecord, error)
}

// ActionSink persists batches of historian action records.
type ActionSink interface {
	InsertActions(ctx context.Context, recs []cache.ActionRecord) error
}
