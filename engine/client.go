package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/snakearena/tournament-engine/models"
)

// ErrEngineUnavailable covers transient failures: connection errors, request
// timeouts and 5xx answers. Callers may retry; anything else is permanent.
var ErrEngineUnavailable = errors.New("game engine unavailable")

// Participant is what the engine needs to drive one snake in a game.
type Participant struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type BoardConfig struct {
	BoardSize models.BoardSize `json:"board_size"`
	GameType  models.GameType  `json:"game_type"`
}

// GameResult is the engine's verdict on a single finished game.
type GameResult struct {
	GameID              uuid.UUID `json:"game_id"`
	WinnerParticipantID int       `json:"winner_participant_id"`
}

// GameEngine runs one game of the board game between the given participants
// and reports the winner. The call blocks until the game ends or ctx expires.
type GameEngine interface {
	PlayGame(ctx context.Context, participants []Participant, config BoardConfig) (*GameResult, error)
}

type httpGameEngine struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGameEngine talks to the arena engine service. timeout bounds every
// PlayGame call so no match executor can hang on a stuck game.
func NewHTTPGameEngine(baseURL string, timeout time.Duration) GameEngine {
	return &httpGameEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type playGameRequest struct {
	Participants []Participant `json:"participants"`
	BoardSize    string        `json:"board_size"`
	GameType     string        `json:"game_type"`
}

func (e *httpGameEngine) PlayGame(ctx context.Context, participants []Participant, config BoardConfig) (*GameResult, error) {
	body, err := json.Marshal(playGameRequest{
		Participants: participants,
		BoardSize:    string(config.BoardSize),
		GameType:     string(config.GameType),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal play game request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/games", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build play game request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: engine returned %d", ErrEngineUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, fmt.Errorf("game engine rejected request with status %d", resp.StatusCode)
	}

	var result GameResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode game result: %w", err)
	}
	return &result, nil
}
