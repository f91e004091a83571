package models

import "time"

// Registration ties a snake (participant) to a tournament. Seed is assigned
// by registration order when the bracket is built and is immutable afterwards.
type Registration struct {
	ID            int       `json:"id"`
	TournamentID  int       `json:"tournament_id"`
	ParticipantID int       `json:"participant_id"`
	UserID        int       `json:"user_id"`
	Seed          *int      `json:"seed,omitempty"`
	RegisteredAt  time.Time `json:"registered_at"`
}
