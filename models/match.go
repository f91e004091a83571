package models

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCanceled   MatchStatus = "canceled"
)

func (s MatchStatus) Terminal() bool {
	return s == MatchCompleted || s == MatchCanceled
}

// Match is one node of the single elimination bracket. The tree is expressed
// through NextMatchID back-references plus (Round, Position); the final match
// is the only one with NextMatchID == nil.
type Match struct {
	ID                  int         `json:"id"`
	TournamentID        int         `json:"tournament_id"`
	Round               int         `json:"round"`
	Position            int         `json:"position"`
	Status              MatchStatus `json:"status"`
	NextMatchID         *int        `json:"next_match_id,omitempty"`
	WinnerParticipantID *int        `json:"winner_participant_id,omitempty"`
	Blocked             bool        `json:"blocked"`
	BlockedReason       *string     `json:"blocked_reason,omitempty"`
	VisualColumn        int         `json:"visual_column"`
	VisualRow           int         `json:"visual_row"`
	CreatedAt           time.Time   `json:"created_at"`

	// Loaded relations, not mapped directly.
	Participants []MatchParticipant `json:"participants,omitempty"`
	Games        []MatchGame        `json:"games,omitempty"`
	WinCounts    map[int]int        `json:"win_counts,omitempty"`
}

type ParticipantType string

const (
	SlotSeed     ParticipantType = "seed"
	SlotWinner   ParticipantType = "winner"
	SlotBye      ParticipantType = "bye"
	SlotWildcard ParticipantType = "wildcard"
)

// MatchParticipant is one side of a match. ParticipantID is nil while the
// slot is an unresolved bye or pending winner; SourceMatchID names the
// upstream match whose winner fills the slot (nil for round-1 seeded slots).
type MatchParticipant struct {
	ID            int             `json:"id"`
	MatchID       int             `json:"match_id"`
	Slot          int             `json:"slot"`
	ParticipantID *int            `json:"participant_id,omitempty"`
	SourceMatchID *int            `json:"source_match_id,omitempty"`
	Type          ParticipantType `json:"participant_type"`
	SeedPosition  *int            `json:"seed_position,omitempty"`
}

// MatchGame records one game played for a match. Rows are created lazily,
// one at a time, as the executor runs games.
type MatchGame struct {
	ID                  int       `json:"id"`
	MatchID             int       `json:"match_id"`
	GameNumber          int       `json:"game_number"`
	EngineGameID        uuid.UUID `json:"engine_game_id"`
	WinnerParticipantID *int      `json:"winner_participant_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}
