package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakearena/tournament-engine/models"
)

var testParticipants = []Participant{
	{ID: 101, Name: "alpha", URL: "http://snakes.test/101"},
	{ID: 102, Name: "beta", URL: "http://snakes.test/102"},
}

func TestPlayGameSuccess(t *testing.T) {
	gameID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/games", r.URL.Path)

		var req struct {
			Participants []Participant `json:"participants"`
			BoardSize    string        `json:"board_size"`
			GameType     string        `json:"game_type"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Participants, 2)
		assert.Equal(t, "11x11", req.BoardSize)

		json.NewEncoder(w).Encode(GameResult{GameID: gameID, WinnerParticipantID: 102})
	}))
	defer srv.Close()

	client := NewHTTPGameEngine(srv.URL, time.Second)
	result, err := client.PlayGame(context.Background(), testParticipants, BoardConfig{
		BoardSize: models.BoardMedium,
		GameType:  models.GameStandard,
	})
	require.NoError(t, err)
	assert.Equal(t, gameID, result.GameID)
	assert.Equal(t, 102, result.WinnerParticipantID)
}

func TestPlayGameServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPGameEngine(srv.URL, time.Second)
	_, err := client.PlayGame(context.Background(), testParticipants, BoardConfig{})
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestPlayGameConnectionErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	client := NewHTTPGameEngine(srv.URL, time.Second)
	_, err := client.PlayGame(context.Background(), testParticipants, BoardConfig{})
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestPlayGameRejectionIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewHTTPGameEngine(srv.URL, time.Second)
	_, err := client.PlayGame(context.Background(), testParticipants, BoardConfig{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEngineUnavailable)
}

func TestRegistryResolveParticipant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/snakes/101":
			json.NewEncoder(w).Encode(ParticipantInfo{
				ID: 101, Name: "alpha", URL: "http://snakes.test/101", OwnerUserID: 11, Public: true,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	registry := NewHTTPRegistry(srv.URL, time.Second)

	info, err := registry.ResolveParticipant(context.Background(), 101)
	require.NoError(t, err)
	assert.Equal(t, "alpha", info.Name)
	assert.Equal(t, 11, info.OwnerUserID)

	_, err = registry.ResolveParticipant(context.Background(), 999)
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}
