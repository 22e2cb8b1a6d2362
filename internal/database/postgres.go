// internal/database/postgres.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jason-s-yu/tabletop/internal/cache"
	"github.com/jason-s-yu/tabletop/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS session_results (
	session_id  TEXT PRIMARY KEY,
	ruleset     TEXT NOT NULL,
	winner_id   TEXT NOT NULL,
	placements  JSONB NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS session_result_participants (
	session_id   TEXT NOT NULL REFERENCES session_results (session_id) ON DELETE CASCADE,
	player_id    TEXT NOT NULL,
	display_name TEXT NOT NULL,
	is_bot       BOOLEAN NOT NULL,
	place        INT NOT NULL,
	score        INT NOT NULL,
	PRIMARY KEY (session_id, player_id)
);
CREATE TABLE IF NOT EXISTS session_actions (
	id           UUID PRIMARY KEY,
	session_id   TEXT NOT NULL,
	action_index INT NOT NULL,
	actor_id     TEXT NOT NULL,
	actor_is_bot BOOLEAN NOT NULL,
	action_type  TEXT NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS session_actions_session_idx ON session_actions (session_id, action_index);
`

// PostgresStore keeps result records and the action history in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps pool. Call EnsureSchema before first use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Record persists the final outcome of a session and its participants in one transaction.
func (p *PostgresStore) Record(ctx context.Context, rec models.ResultRecord) (bool, error) {
	placements, err := json.Marshal(rec.Placements)
	if err != nil {
		return false, fmt.Errorf("failed to marshal placements: %w", err)
	}
	created := false
	err = pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insertResult := `
			INSERT INTO session_results (session_id, ruleset, winner_id, placements, finished_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (session_id) DO NOTHING
		`
		tag, e := tx.Exec(ctx, insertResult, rec.SessionID, string(rec.Ruleset), rec.WinnerID, placements, rec.FinishedAt.UTC())
		if e != nil {
			return e
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		created = true

		for _, pt := range rec.Participants {
			q := `
				INSERT INTO session_result_participants (session_id, player_id, display_name, is_bot, place, score)
				VALUES ($1, $2, $3, $4, $5, $6)
			`
			if _, e2 := tx.Exec(ctx, q, rec.SessionID, pt.PlayerID, pt.DisplayName, pt.IsBot, pt.Place, pt.Score); e2 != nil {
				return e2
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("tx insert result %s: %w", rec.SessionID, err)
	}
	return created, nil
}

func (p *PostgresStore) Get(ctx context.Context, sessionID string) (*models.ResultRecord, error) {
	rec := models.ResultRecord{SessionID: sessionID}
	var ruleset string
	var placements []byte
	err := p.pool.QueryRow(ctx, `
		SELECT ruleset, winner_id, placements, finished_at
		FROM session_results WHERE session_id = $1
	`, sessionID).Scan(&ruleset, &rec.WinnerID, &placements, &rec.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query result %s: %w", sessionID, err)
	}
	rec.Ruleset = models.Ruleset(ruleset)
	if err := json.Unmarshal(placements, &rec.Placements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal placements: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT player_id, display_name, is_bot, place, score
		FROM session_result_participants WHERE session_id = $1 ORDER BY place
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query participants %s: %w", sessionID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var pt models.Participant
		if err := rows.Scan(&pt.PlayerID, &pt.DisplayName, &pt.IsBot, &pt.Place, &pt.Score); err != nil {
			return nil, err
		}
		rec.Participants = append(rec.Participants, pt)
	}
	return &rec, rows.Err()
}

// InsertActions writes a historian batch in a single transaction. Records already
// stored (same id) are skipped.
func (p *PostgresStore) InsertActions(ctx context.Context, recs []cache.ActionRecord) error {
	return pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			payload, err := json.Marshal(rec.Payload)
			if err != nil {
				return err
			}
			q := `
				INSERT INTO session_actions (
					id, session_id, action_index, actor_id, actor_is_bot, action_type, payload, created_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO NOTHING
			`
			_, err = tx.Exec(ctx, q,
				rec.ID, rec.SessionID, rec.ActionIndex, rec.ActorID, rec.ActorIsBot, rec.ActionType, payload,
				time.UnixMilli(rec.Timestamp).UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert action %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}
