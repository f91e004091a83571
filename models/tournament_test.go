package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTournamentStatusTransitions(t *testing.T) {
	tests := []struct {
		from    TournamentStatus
		to      TournamentStatus
		allowed bool
	}{
		{StatusCreated, StatusRegistration, true},
		{StatusCreated, StatusInProgress, false},
		{StatusRegistration, StatusInProgress, true},
		{StatusRegistration, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusRegistration, true}, // reset
		{StatusCompleted, StatusRegistration, false},
		{StatusCompleted, StatusInProgress, false},

		// cancel is legal from every non-terminal state
		{StatusCreated, StatusCanceled, true},
		{StatusRegistration, StatusCanceled, true},
		{StatusInProgress, StatusCanceled, true},
		{StatusCompleted, StatusCanceled, false},
		{StatusCanceled, StatusCanceled, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusCreated.Terminal())
	assert.False(t, StatusRegistration.Terminal())
	assert.False(t, StatusInProgress.Terminal())
}

func TestRegistrationMutable(t *testing.T) {
	for status, want := range map[TournamentStatus]bool{
		StatusCreated:      true,
		StatusRegistration: true,
		StatusInProgress:   false,
		StatusCompleted:    false,
		StatusCanceled:     false,
	} {
		tournament := &Tournament{Status: status}
		assert.Equal(t, want, tournament.RegistrationMutable(), "status %s", status)
	}
}

func TestMatchStyleValid(t *testing.T) {
	assert.True(t, StyleSingleGame.Valid())
	assert.True(t, StyleBestOf3.Valid())
	assert.True(t, StyleFirstTo3.Valid())
	assert.False(t, MatchStyle("bo7").Valid())
}
