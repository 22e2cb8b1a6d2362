// internal/models/result.go
package models

import "time"

// Participant is one seat's line in a ResultRecord.
type Participant struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot"`
	Place       int    `json:"place"`
	Score       int    `json:"score"`
}

// ResultRecord is the durable outcome of a finished session. It is written once.
type ResultRecord struct {
	SessionID    string        `json:"session_id"`
	Ruleset      Ruleset       `json:"ruleset"`
	Participants []Participant `json:"participants"`
	Placements   []string      `json:"placements"`
	WinnerID     string        `json:"winner_id"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// FinishEvent is emitted exactly once per session, after its ResultRecord is durable.
type FinishEvent struct {
	SessionID    string        `json:"session_id"`
	Ruleset      Ruleset       `json:"ruleset"`
	Participants []Participant `json:"participants"`
	Placements   []string      `json:"placements"`
	WinnerID     string        `json:"winner_id"`
}
