package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/snakearena/tournament-engine/brackets"
	"github.com/snakearena/tournament-engine/engine"
	"github.com/snakearena/tournament-engine/models"
	"github.com/snakearena/tournament-engine/realtime"
	"github.com/snakearena/tournament-engine/repositories"
)

// MatchExecutor drives one match from claim to completion: it plays games
// through the engine one at a time, persists each result before playing the
// next, and propagates the winner downstream.
type MatchExecutor interface {
	// ExecuteMatch is safe to call concurrently for the same match; the
	// scheduled -> in_progress claim guarantees at most one caller proceeds.
	// A blocked match is not an error: the executor parks it and returns nil
	// so sibling matches keep running.
	ExecuteMatch(ctx context.Context, tournament *models.Tournament, matchID int) error
}

type ExecutorConfig struct {
	// MaxAttempts bounds engine retries per game before the match blocks.
	MaxAttempts int
	// RetryBackoff is the initial delay between attempts; it doubles each try.
	RetryBackoff time.Duration
}

type matchExecutor struct {
	db             *sql.DB
	runTx          func(ctx context.Context, fn func(tx *sql.Tx) error) error
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	slotRepo       repositories.MatchParticipantRepository
	gameRepo       repositories.MatchGameRepository
	registry       engine.Registry
	gameEngine     engine.GameEngine
	hub            Broadcaster
	cfg            ExecutorConfig
	logger         *slog.Logger
}

func NewMatchExecutor(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	slotRepo repositories.MatchParticipantRepository,
	gameRepo repositories.MatchGameRepository,
	registry engine.Registry,
	gameEngine engine.GameEngine,
	hub Broadcaster,
	cfg ExecutorConfig,
	logger *slog.Logger,
) MatchExecutor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &matchExecutor{
		db:             db,
		runTx:          func(ctx context.Context, fn func(tx *sql.Tx) error) error { return runInTx(ctx, db, fn) },
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		slotRepo:       slotRepo,
		gameRepo:       gameRepo,
		registry:       registry,
		gameEngine:     gameEngine,
		hub:            hub,
		cfg:            cfg,
		logger:         logger,
	}
}

func (e *matchExecutor) ExecuteMatch(ctx context.Context, tournament *models.Tournament, matchID int) error {
	log := e.logger.With(slog.Int("tournament_id", tournament.ID), slog.Int("match_id", matchID))

	err := e.matchRepo.CompareAndSetStatus(ctx, e.db, matchID, models.MatchScheduled, models.MatchInProgress)
	if errors.Is(err, repositories.ErrNoRowsUpdated) {
		log.Debug("match already claimed")
		return nil
	}
	if err != nil {
		return err
	}

	match, err := e.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return err
	}

	participants, err := e.resolveParticipants(ctx, matchID)
	if err != nil {
		return e.block(ctx, match, fmt.Sprintf("cannot resolve participants: %v", err))
	}

	config := engine.BoardConfig{BoardSize: tournament.BoardSize, GameType: tournament.GameType}

	for {
		// Re-read the tournament each iteration so a concurrent cancel or
		// reset stops the match between games.
		current, err := e.tournamentRepo.GetByID(ctx, tournament.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrTournamentNotFound) {
				log.Info("tournament gone, abandoning match")
				return nil
			}
			return err
		}
		if current.Status != models.StatusInProgress {
			log.Info("tournament no longer in progress, abandoning match",
				slog.String("status", string(current.Status)))
			return nil
		}

		// Progress is derived from persisted games so a crashed executor can
		// be resumed without replaying finished games.
		games, err := e.gameRepo.ListByMatch(ctx, matchID)
		if err != nil {
			return err
		}
		winners := make([]int, 0, len(games))
		for _, g := range games {
			if g.WinnerParticipantID != nil {
				winners = append(winners, *g.WinnerParticipantID)
			}
		}

		outcome, err := brackets.Resolve(current.MatchStyle, winners)
		if err != nil {
			log.Error("outcome resolver rejected game sequence", slog.Any("error", err))
			if blockErr := e.block(ctx, match, err.Error()); blockErr != nil {
				return blockErr
			}
			return nil
		}

		if outcome.Decided {
			return e.complete(ctx, match, outcome.WinnerParticipantID)
		}

		game := &models.MatchGame{
			MatchID:      matchID,
			GameNumber:   len(games) + 1,
			EngineGameID: uuid.New(),
		}
		if err := e.gameRepo.Create(ctx, game); err != nil {
			if errors.Is(err, repositories.ErrMatchGameNumberConflict) {
				// another executor got here first; re-derive from persisted state
				continue
			}
			return err
		}

		result, err := e.playWithRetries(ctx, participants, config)
		if err != nil {
			log.Warn("blocking match after engine failures",
				slog.Int("game_number", game.GameNumber), slog.Any("error", err))
			if blockErr := e.block(ctx, match, fmt.Sprintf("game %d: %v", game.GameNumber, err)); blockErr != nil {
				return blockErr
			}
			return nil
		}

		if !participantInMatch(participants, result.WinnerParticipantID) {
			reason := fmt.Sprintf("engine reported winner %d who is not in the match", result.WinnerParticipantID)
			log.Error(reason, slog.String("engine_game_id", result.GameID.String()))
			if blockErr := e.block(ctx, match, reason); blockErr != nil {
				return blockErr
			}
			return nil
		}

		if err := e.gameRepo.SetWinner(ctx, game.ID, result.WinnerParticipantID); err != nil {
			return err
		}
		log.Info("game finished",
			slog.Int("game_number", game.GameNumber),
			slog.Int("winner_participant_id", result.WinnerParticipantID))
	}
}

func (e *matchExecutor) resolveParticipants(ctx context.Context, matchID int) ([]engine.Participant, error) {
	slots, err := e.slotRepo.ListByMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	participants := make([]engine.Participant, 0, len(slots))
	for _, slot := range slots {
		if slot.ParticipantID == nil {
			return nil, fmt.Errorf("slot %d of match %d is empty", slot.Slot, matchID)
		}
		info, err := e.registry.ResolveParticipant(ctx, *slot.ParticipantID)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", *slot.ParticipantID, err)
		}
		participants = append(participants, engine.Participant{
			ID:   info.ID,
			Name: info.Name,
			URL:  info.URL,
		})
	}
	if len(participants) != 2 {
		return nil, fmt.Errorf("match %d has %d filled slots, want 2", matchID, len(participants))
	}
	return participants, nil
}

func (e *matchExecutor) playWithRetries(ctx context.Context, participants []engine.Participant, config engine.BoardConfig) (*engine.GameResult, error) {
	backoff := e.cfg.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		result, err := e.gameEngine.PlayGame(ctx, participants, config)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !errors.Is(err, engine.ErrEngineUnavailable) {
			return nil, err
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("%w: %v", ErrGameEngineUnavailable, lastErr)
}

// complete finishes the match and propagates the winner into the downstream
// slot in one transaction, so a crash can never leave a completed match whose
// winner is missing from the next round.
func (e *matchExecutor) complete(ctx context.Context, match *models.Match, winnerParticipantID int) error {
	err := e.runTx(ctx, func(tx *sql.Tx) error {
		if err := e.matchRepo.CompleteWithWinner(ctx, tx, match.ID, winnerParticipantID); err != nil {
			return err
		}
		if match.NextMatchID != nil {
			return e.slotRepo.FillSlot(ctx, tx, *match.NextMatchID, match.ID, winnerParticipantID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.hub.BroadcastTournament(match.TournamentID, realtime.EventMatchCompleted, map[string]interface{}{
		"match_id":              match.ID,
		"round":                 match.Round,
		"winner_participant_id": winnerParticipantID,
	})
	e.logger.Info("match completed",
		slog.Int("match_id", match.ID), slog.Int("winner_participant_id", winnerParticipantID))
	return nil
}

// block parks the match: it stays in_progress with blocked=true, keeping its
// round open until an admin overrides the winner or the tournament is reset.
func (e *matchExecutor) block(ctx context.Context, match *models.Match, reason string) error {
	if err := e.matchRepo.SetBlocked(ctx, match.ID, reason); err != nil {
		return err
	}
	e.hub.BroadcastTournament(match.TournamentID, realtime.EventMatchBlocked, map[string]interface{}{
		"match_id": match.ID,
		"round":    match.Round,
		"reason":   reason,
	})
	return nil
}

func participantInMatch(participants []engine.Participant, id int) bool {
	for _, p := range participants {
		if p.ID == id {
			return true
		}
	}
	return false
}
