package models

import "time"

// TournamentStatus mirrors the status ENUM in the tournaments table.
type TournamentStatus string

const (
	StatusCreated      TournamentStatus = "created"
	StatusRegistration TournamentStatus = "registration"
	StatusInProgress   TournamentStatus = "in_progress"
	StatusCompleted    TournamentStatus = "completed"
	StatusCanceled     TournamentStatus = "canceled"
)

type RegistrationMode string

const (
	RegistrationOpen      RegistrationMode = "open"
	RegistrationClosed    RegistrationMode = "closed"
	RegistrationOwnerOnly RegistrationMode = "owner_only"
)

type TournamentVisibility string

const (
	VisibilityPublic           TournamentVisibility = "public"
	VisibilityParticipantsOnly TournamentVisibility = "participants_only"
)

type MatchStyle string

const (
	StyleSingleGame MatchStyle = "single_game"
	StyleBestOf3    MatchStyle = "best_of_3"
	StyleFirstTo3   MatchStyle = "first_to_3"
)

func (s MatchStyle) Valid() bool {
	switch s {
	case StyleSingleGame, StyleBestOf3, StyleFirstTo3:
		return true
	}
	return false
}

type Tournament struct {
	ID                   int                  `json:"id"`
	Name                 string               `json:"name"`
	OwnerID              int                  `json:"owner_id"`
	BoardSize            BoardSize            `json:"board_size"`
	GameType             GameType             `json:"game_type"`
	RegistrationMode     RegistrationMode     `json:"registration_mode"`
	Visibility           TournamentVisibility `json:"visibility"`
	Status               TournamentStatus     `json:"status"`
	MatchStyle           MatchStyle           `json:"match_style"`
	MaxSnakesPerUser     int                  `json:"max_snakes_per_user"`
	RequiredParticipants int                  `json:"required_participants"`
	CurrentRound         int                  `json:"current_round"`
	WinnerParticipantID  *int                 `json:"winner_participant_id,omitempty"`
	ArchivedAt           *time.Time           `json:"archived_at,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// legalTransitions encodes the tournament lifecycle. Cancellation from any
// non-terminal state is handled separately so the table stays the happy path.
var legalTransitions = map[TournamentStatus][]TournamentStatus{
	StatusCreated:      {StatusRegistration},
	StatusRegistration: {StatusInProgress},
	StatusInProgress:   {StatusCompleted, StatusRegistration},
}

func (s TournamentStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusRegistration, StatusInProgress, StatusCompleted, StatusCanceled:
		return true
	}
	return false
}

func (s TournamentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// CanTransitionTo reports whether moving from s to next is legal.
// in_progress -> registration is only reachable through an explicit reset,
// which the service layer enforces on top of this check.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	if next == StatusCanceled {
		return !s.Terminal()
	}
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RegistrationMutable reports whether registrations may still be added or
// removed. The per-user registration_mode check lives in the service layer
// because the owner bypasses it.
func (t *Tournament) RegistrationMutable() bool {
	return t.Status == StatusCreated || t.Status == StatusRegistration
}
