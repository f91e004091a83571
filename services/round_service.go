package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/snakearena/tournament-engine/models"
	"github.com/snakearena/tournament-engine/realtime"
	"github.com/snakearena/tournament-engine/repositories"
)

// RoundReport summarizes one run_round call.
type RoundReport struct {
	Round               int  `json:"round"`
	MatchesRun          int  `json:"matches_run"`
	RoundComplete       bool `json:"round_complete"`
	TournamentCompleted bool `json:"tournament_completed"`
	WinnerParticipantID *int `json:"winner_participant_id,omitempty"`
}

type RoundService interface {
	// RunRound dispatches every scheduled match of the current round
	// concurrently, waits for all of them, then advances the round (or
	// completes the tournament) once every match in it is terminal. Blocked
	// matches keep the round open; re-running the round resumes them only
	// after an admin override.
	RunRound(ctx context.Context, tournamentID, userID int) (*RoundReport, error)
}

type roundService struct {
	db             *sql.DB
	runTx          func(ctx context.Context, fn func(tx *sql.Tx) error) error
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	executor       MatchExecutor
	hub            Broadcaster
	logger         *slog.Logger
}

func NewRoundService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	executor MatchExecutor,
	hub Broadcaster,
	logger *slog.Logger,
) RoundService {
	return &roundService{
		db:             db,
		runTx:          func(ctx context.Context, fn func(tx *sql.Tx) error) error { return runInTx(ctx, db, fn) },
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		executor:       executor,
		hub:            hub,
		logger:         logger,
	}
}

func (s *roundService) RunRound(ctx context.Context, tournamentID, userID int) (*RoundReport, error) {
	tournament, err := s.tournamentRepo.GetByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if tournament.OwnerID != userID {
		return nil, ErrForbiddenOperation
	}
	if tournament.Status != models.StatusInProgress {
		return nil, fmt.Errorf("%w: tournament status is %q", ErrInvalidStateTransition, tournament.Status)
	}

	round := tournament.CurrentRound
	log := s.logger.With(slog.Int("tournament_id", tournamentID), slog.Int("round", round))

	running, err := s.matchRepo.CountByStatusInRound(ctx, tournamentID, round, models.MatchInProgress)
	if err != nil {
		return nil, err
	}
	if running > 0 {
		return nil, fmt.Errorf("%w: %d matches of round %d still in progress", ErrRoundAlreadyRunning, running, round)
	}

	scheduledStatus := models.MatchScheduled
	scheduled, err := s.matchRepo.ListByTournament(ctx, tournamentID, &round, &scheduledStatus)
	if err != nil {
		return nil, err
	}

	log.Info("dispatching round", slog.Int("matches", len(scheduled)))

	g, gCtx := errgroup.WithContext(ctx)
	for _, match := range scheduled {
		matchID := match.ID
		g.Go(func() error {
			return s.executor.ExecuteMatch(gCtx, tournament, matchID)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("round %d dispatch failed: %w", round, err)
	}

	report := &RoundReport{Round: round, MatchesRun: len(scheduled)}
	if err := s.advance(ctx, tournament, report); err != nil {
		return nil, err
	}
	return report, nil
}

// advance moves the tournament forward once the round is fully terminal. It
// runs under the tournament row lock so two concurrent run_round calls cannot
// both advance, and a cancel that slipped in during dispatch is respected.
func (s *roundService) advance(ctx context.Context, tournament *models.Tournament, report *RoundReport) error {
	// The report is only touched after the transaction commits: a caller that
	// loses the advancement race must not claim it completed the round.
	var roundComplete, tournamentCompleted bool
	var winnerID *int

	err := s.runTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournament.ID)
		if err != nil {
			return err
		}
		if locked.Status != models.StatusInProgress || locked.CurrentRound != tournament.CurrentRound {
			return nil
		}

		open, err := s.matchRepo.CountNonTerminalInRound(ctx, tx, tournament.ID, tournament.CurrentRound)
		if err != nil {
			return err
		}
		if open > 0 {
			s.logger.Info("round left open",
				slog.Int("tournament_id", tournament.ID),
				slog.Int("round", tournament.CurrentRound),
				slog.Int("open_matches", open))
			return nil
		}
		roundComplete = true

		final, err := s.finalMatchIfInRound(ctx, tournament.ID, tournament.CurrentRound)
		if err != nil {
			return err
		}
		if final != nil {
			if final.WinnerParticipantID == nil {
				return fmt.Errorf("%w: final match %d completed without a winner", ErrResolverInvariant, final.ID)
			}
			tournamentCompleted = true
			winnerID = final.WinnerParticipantID
			return s.tournamentRepo.CompleteWithWinner(ctx, tx, tournament.ID, *final.WinnerParticipantID)
		}
		return s.tournamentRepo.AdvanceRound(ctx, tx, tournament.ID, tournament.CurrentRound)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNoRowsUpdated) {
			// a concurrent caller advanced first
			return nil
		}
		return err
	}
	if !roundComplete {
		return nil
	}

	report.RoundComplete = true
	if tournamentCompleted {
		report.TournamentCompleted = true
		report.WinnerParticipantID = winnerID
		s.hub.BroadcastTournament(tournament.ID, realtime.EventTournamentCompleted, map[string]interface{}{
			"winner_participant_id": *winnerID,
		})
		s.logger.Info("tournament completed",
			slog.Int("tournament_id", tournament.ID),
			slog.Int("winner_participant_id", *winnerID))
	} else {
		s.hub.BroadcastTournament(tournament.ID, realtime.EventRoundAdvanced, map[string]interface{}{
			"round": tournament.CurrentRound + 1,
		})
	}
	return nil
}

// finalMatchIfInRound returns the final (the match with no outgoing edge) if
// it belongs to the given round, nil otherwise.
func (s *roundService) finalMatchIfInRound(ctx context.Context, tournamentID, round int) (*models.Match, error) {
	matches, err := s.matchRepo.ListByTournament(ctx, tournamentID, &round, nil)
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if m.NextMatchID == nil {
			return m, nil
		}
	}
	return nil, nil
}
