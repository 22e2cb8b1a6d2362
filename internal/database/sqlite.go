// internal/database/sqlite.go
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jason-s-yu/tabletop/internal/cache"
	"github.com/jason-s-yu/tabletop/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_results (
	session_id  TEXT PRIMARY KEY,
	ruleset     TEXT NOT NULL,
	winner_id   TEXT NOT NULL,
	placements  TEXT NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_result_participants (
	session_id   TEXT NOT NULL REFERENCES session_results (session_id) ON DELETE CASCADE,
	player_id    TEXT NOT NULL,
	display_name TEXT NOT NULL,
	is_bot       INTEGER NOT NULL,
	place        INTEGER NOT NULL,
	score        INTEGER NOT NULL,
	PRIMARY KEY (session_id, player_id)
);
CREATE TABLE IF NOT EXISTS session_actions (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	action_index INTEGER NOT NULL,
	actor_id     TEXT NOT NULL,
	actor_is_bot INTEGER NOT NULL,
	action_type  TEXT NOT NULL,
	payload      TEXT NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS session_actions_session_idx ON session_actions (session_id, action_index);
`

// SQLiteStore is the single-node result store. Times are stored as UTC millis.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// The path ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	memory := path == ":memory:"
	dsn := path
	if !memory {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	} else {
		dsn += "?_pragma=foreign_keys(1)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if memory {
		// every connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteStore) Record(ctx context.Context, rec models.ResultRecord) (bool, error) {
	placements, err := json.Marshal(rec.Placements)
	if err != nil {
		return false, fmt.Errorf("failed to marshal placements: %w", err)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO session_results (session_id, ruleset, winner_id, placements, finished_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID, string(rec.Ruleset), rec.WinnerID, string(placements), rec.FinishedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert result %s: %w", rec.SessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	for _, pt := range rec.Participants {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_result_participants (session_id, player_id, display_name, is_bot, place, score)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			rec.SessionID, pt.PlayerID, pt.DisplayName, pt.IsBot, pt.Place, pt.Score,
		)
		if err != nil {
			return false, fmt.Errorf("insert participant %s: %w", pt.PlayerID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit result %s: %w", rec.SessionID, err)
	}
	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*models.ResultRecord, error) {
	rec := models.ResultRecord{SessionID: sessionID}
	var ruleset, placements string
	var finishedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT ruleset, winner_id, placements, finished_at FROM session_results WHERE session_id = ?`,
		sessionID,
	).Scan(&ruleset, &rec.WinnerID, &placements, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query result %s: %w", sessionID, err)
	}
	rec.Ruleset = models.Ruleset(ruleset)
	rec.FinishedAt = time.UnixMilli(finishedAt).UTC()
	if err := json.Unmarshal([]byte(placements), &rec.Placements); err != nil {
		return nil, fmt.Errorf("failed to unmarshal placements: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT player_id, display_name, is_bot, place, score
		 FROM session_result_participants WHERE session_id = ? ORDER BY place`,
		sessionID,
	)
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

func (s *SQLiteStore) InsertActions(ctx context.Context, recs []cache.ActionRecord) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, rec := range recs {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO session_actions (
			   id, session_id, action_index, actor_id, actor_is_bot, action_type, payload, created_at
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ID.String(), rec.SessionID, rec.ActionIndex, rec.ActorID, rec.ActorIsBot, rec.ActionType,
			string(payload), rec.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert action %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// CountActions returns how many actions are stored for a session.
func (s *SQLiteStore) CountActions(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_actions WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
