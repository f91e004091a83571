package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/snakearena/tournament-engine/engine"
	"github.com/snakearena/tournament-engine/models"
	"github.com/snakearena/tournament-engine/realtime"
	"github.com/snakearena/tournament-engine/repositories"
)

// Broadcaster pushes bracket mutations to subscribed clients. Satisfied by
// *realtime.Hub; a no-op fake stands in for it in tests.
type Broadcaster interface {
	BroadcastTournament(tournamentID int, eventType string, payload interface{})
}

type CreateTournamentInput struct {
	Name                 string                      `json:"name"`
	BoardSize            models.BoardSize            `json:"board_size"`
	GameType             models.GameType             `json:"game_type"`
	RegistrationMode     models.RegistrationMode     `json:"registration_mode"`
	Visibility           models.TournamentVisibility `json:"visibility"`
	MatchStyle           models.MatchStyle           `json:"match_style"`
	MaxSnakesPerUser     int                         `json:"max_snakes_per_user"`
	RequiredParticipants int                         `json:"required_participants"`
}

type TournamentService interface {
	CreateTournament(ctx context.Context, ownerUserID int, input CreateTournamentInput) (*models.Tournament, error)
	GetTournament(ctx context.Context, id int) (*models.Tournament, error)
	ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error)
	OpenRegistration(ctx context.Context, tournamentID, userID int) (*models.Tournament, error)
	Register(ctx context.Context, tournamentID, userID, participantID int) (*models.Registration, error)
	Unregister(ctx context.Context, tournamentID, userID, participantID int) error
	StartTournament(ctx context.Context, tournamentID, userID int) (*models.Tournament, error)
	ResetTournament(ctx context.Context, tournamentID, userID int) error
	CancelTournament(ctx context.Context, tournamentID, userID int) error
	OverrideMatchWinner(ctx context.Context, matchID, winnerParticipantID int) error
}

type tournamentService struct {
	db             *sql.DB
	runTx          func(ctx context.Context, fn func(tx *sql.Tx) error) error
	tournamentRepo repositories.TournamentRepository
	regRepo        repositories.RegistrationRepository
	matchRepo      repositories.MatchRepository
	slotRepo       repositories.MatchParticipantRepository
	bracketService BracketService
	registry       engine.Registry
	hub            Broadcaster
	logger         *slog.Logger
}

func NewTournamentService(
	db *sql.DB,
	tournamentRepo repositories.TournamentRepository,
	regRepo repositories.RegistrationRepository,
	matchRepo repositories.MatchRepository,
	slotRepo repositories.MatchParticipantRepository,
	bracketService BracketService,
	registry engine.Registry,
	hub Broadcaster,
	logger *slog.Logger,
) TournamentService {
	return &tournamentService{
		db:             db,
		runTx:          func(ctx context.Context, fn func(tx *sql.Tx) error) error { return runInTx(ctx, db, fn) },
		tournamentRepo: tournamentRepo,
		regRepo:        regRepo,
		matchRepo:      matchRepo,
		slotRepo:       slotRepo,
		bracketService: bracketService,
		registry:       registry,
		hub:            hub,
		logger:         logger,
	}
}

func (s *tournamentService) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.runTx(ctx, fn)
}

func transitionError(from, to models.TournamentStatus) error {
	return fmt.Errorf("%w: cannot move from %q to %q", ErrInvalidStateTransition, from, to)
}

func (s *tournamentService) CreateTournament(ctx context.Context, ownerUserID int, input CreateTournamentInput) (*models.Tournament, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: tournament name is required", ErrValidationFailed)
	}
	if !input.BoardSize.Valid() {
		return nil, fmt.Errorf("%w: unknown board size %q", ErrValidationFailed, input.BoardSize)
	}
	if !input.GameType.Valid() {
		return nil, fmt.Errorf("%w: unknown game type %q", ErrValidationFailed, input.GameType)
	}
	if !input.MatchStyle.Valid() {
		return nil, fmt.Errorf("%w: unknown match style %q", ErrValidationFailed, input.MatchStyle)
	}
	if input.MaxSnakesPerUser < 1 {
		return nil, fmt.Errorf("%w: max_snakes_per_user must be at least 1", ErrValidationFailed)
	}
	if input.RequiredParticipants < 2 {
		return nil, fmt.Errorf("%w: required_participants must be at least 2", ErrValidationFailed)
	}
	if input.RegistrationMode == "" {
		input.RegistrationMode = models.RegistrationOpen
	}
	if input.Visibility == "" {
		input.Visibility = models.VisibilityPublic
	}

	t := &models.Tournament{
		Name:                 input.Name,
		OwnerID:              ownerUserID,
		BoardSize:            input.BoardSize,
		GameType:             input.GameType,
		RegistrationMode:     input.RegistrationMode,
		Visibility:           input.Visibility,
		Status:               models.StatusCreated,
		MatchStyle:           input.MatchStyle,
		MaxSnakesPerUser:     input.MaxSnakesPerUser,
		RequiredParticipants: input.RequiredParticipants,
	}
	if err := s.tournamentRepo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("tournament created",
		slog.Int("tournament_id", t.ID), slog.Int("owner_id", ownerUserID))
	return t, nil
}

func (s *tournamentService) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	t, err := s.tournamentRepo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrTournamentNotFound) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *tournamentService) ListTournaments(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	return s.tournamentRepo.List(ctx, filter)
}

func (s *tournamentService) OpenRegistration(ctx context.Context, tournamentID, userID int) (*models.Tournament, error) {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != userID {
		return nil, ErrForbiddenOperation
	}
	if !t.Status.CanTransitionTo(models.StatusRegistration) || t.Status != models.StatusCreated {
		return nil, transitionError(t.Status, models.StatusRegistration)
	}

	if err := s.tournamentRepo.CompareAndSetStatus(ctx, s.db, tournamentID, models.StatusCreated, models.StatusRegistration); err != nil {
		if errors.Is(err, repositories.ErrNoRowsUpdated) {
			return nil, transitionError(t.Status, models.StatusRegistration)
		}
		return nil, err
	}
	return s.GetTournament(ctx, tournamentID)
}

func (s *tournamentService) Register(ctx context.Context, tournamentID, userID, participantID int) (*models.Registration, error) {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if !t.RegistrationMutable() {
		return nil, fmt.Errorf("%w: tournament status is %q", ErrRegistrationClosed, t.Status)
	}
	// The owner may always add snakes; everyone else only when the mode is open.
	if userID != t.OwnerID && t.RegistrationMode != models.RegistrationOpen {
		return nil, fmt.Errorf("%w: registration mode is %q", ErrForbiddenOperation, t.RegistrationMode)
	}

	info, err := s.registry.ResolveParticipant(ctx, participantID)
	if err != nil {
		if errors.Is(err, engine.ErrParticipantNotFound) {
			return nil, fmt.Errorf("%w: snake %d", ErrNotFound, participantID)
		}
		return nil, err
	}
	// Non-owners may only enter their own snakes.
	if userID != t.OwnerID && info.OwnerUserID != userID {
		return nil, fmt.Errorf("%w: snake %d belongs to another user", ErrForbiddenOperation, participantID)
	}

	// The cap counts against the snake's owner regardless of who registers it.
	count, err := s.regRepo.CountByTournamentAndUser(ctx, tournamentID, info.OwnerUserID)
	if err != nil {
		return nil, err
	}
	if count >= t.MaxSnakesPerUser {
		return nil, fmt.Errorf("%w: limit is %d", ErrRegistrationLimitExceeded, t.MaxSnakesPerUser)
	}

	reg := &models.Registration{
		TournamentID:  tournamentID,
		ParticipantID: participantID,
		UserID:        info.OwnerUserID,
	}
	if err := s.regRepo.Create(ctx, reg); err != nil {
		return nil, err
	}
	s.logger.Info("snake registered",
		slog.Int("tournament_id", tournamentID), slog.Int("participant_id", participantID))
	return reg, nil
}

func (s *tournamentService) Unregister(ctx context.Context, tournamentID, userID, participantID int) error {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	if !t.RegistrationMutable() {
		return fmt.Errorf("%w: tournament status is %q", ErrRegistrationClosed, t.Status)
	}

	if userID != t.OwnerID {
		info, err := s.registry.ResolveParticipant(ctx, participantID)
		if err != nil {
			return err
		}
		if info.OwnerUserID != userID {
			return fmt.Errorf("%w: snake %d belongs to another user", ErrForbiddenOperation, participantID)
		}
	}

	err = s.regRepo.Delete(ctx, tournamentID, participantID)
	if errors.Is(err, repositories.ErrRegistrationNotFound) {
		return ErrNotFound
	}
	return err
}

// StartTournament validates prerequisites, assigns seeds by registration
// order, then generates and persists the bracket (byes pre-resolved) and
// moves the tournament into round 1, all in one transaction.
func (s *tournamentService) StartTournament(ctx context.Context, tournamentID, userID int) (*models.Tournament, error) {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != userID {
		return nil, ErrForbiddenOperation
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if !locked.Status.CanTransitionTo(models.StatusInProgress) {
			return transitionError(locked.Status, models.StatusInProgress)
		}

		registrations, err := s.regRepo.ListByTournament(ctx, tournamentID)
		if err != nil {
			return err
		}
		if len(registrations) < locked.RequiredParticipants {
			return fmt.Errorf("%w: have %d of %d required participants",
				ErrPrerequisiteNotMet, len(registrations), locked.RequiredParticipants)
		}

		if err := assignSeeds(ctx, tx, s.regRepo, registrations); err != nil {
			return err
		}
		if err := s.bracketService.SaveBracket(ctx, tx, locked, registrations); err != nil {
			return err
		}

		if err := s.tournamentRepo.CompareAndSetStatus(ctx, tx, tournamentID, models.StatusRegistration, models.StatusInProgress); err != nil {
			if errors.Is(err, repositories.ErrNoRowsUpdated) {
				return transitionError(locked.Status, models.StatusInProgress)
			}
			return err
		}
		return s.tournamentRepo.AdvanceRound(ctx, tx, tournamentID, 0)
	})
	if err != nil {
		return nil, err
	}

	started, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	s.hub.BroadcastTournament(tournamentID, realtime.EventTournamentStarted, started)
	s.logger.Info("tournament started", slog.Int("tournament_id", tournamentID))
	return started, nil
}

// assignSeeds fills in missing seeds by registration order, skipping numbers
// already pinned explicitly.
func assignSeeds(ctx context.Context, tx *sql.Tx, regRepo repositories.RegistrationRepository, registrations []*models.Registration) error {
	used := make(map[int]bool, len(registrations))
	for _, reg := range registrations {
		if reg.Seed != nil {
			used[*reg.Seed] = true
		}
	}
	next := 1
	for _, reg := range registrations {
		if reg.Seed != nil {
			continue
		}
		for used[next] {
			next++
		}
		seed := next
		used[seed] = true
		if err := regRepo.AssignSeed(ctx, tx, reg.ID, seed); err != nil {
			return err
		}
		reg.Seed = &seed
	}
	return nil
}

// ResetTournament rewinds an in_progress tournament back to registration:
// every match, slot and game row is deleted, current_round returns to zero,
// registrations (and their seeds) survive.
func (s *tournamentService) ResetTournament(ctx context.Context, tournamentID, userID int) error {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.OwnerID != userID {
		return ErrForbiddenOperation
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := s.tournamentRepo.GetByIDForUpdate(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if locked.Status != models.StatusInProgress {
			return transitionError(locked.Status, models.StatusRegistration)
		}
		if err := s.matchRepo.DeleteByTournament(ctx, tx, tournamentID); err != nil {
			return err
		}
		if err := s.tournamentRepo.ResetProgress(ctx, tx, tournamentID); err != nil {
			if errors.Is(err, repositories.ErrNoRowsUpdated) {
				return transitionError(locked.Status, models.StatusRegistration)
			}
			return err
		}
		return nil
	})
}

func (s *tournamentService) CancelTournament(ctx context.Context, tournamentID, userID int) error {
	t, err := s.GetTournament(ctx, tournamentID)
	if err != nil {
		return err
	}
	if t.OwnerID != userID {
		return ErrForbiddenOperation
	}
	if t.Status.Terminal() {
		return transitionError(t.Status, models.StatusCanceled)
	}

	if err := s.tournamentRepo.CompareAndSetStatus(ctx, s.db, tournamentID, t.Status, models.StatusCanceled); err != nil {
		if errors.Is(err, repositories.ErrNoRowsUpdated) {
			return transitionError(t.Status, models.StatusCanceled)
		}
		return err
	}

	s.hub.BroadcastTournament(tournamentID, realtime.EventTournamentCanceled, nil)
	s.logger.Info("tournament canceled", slog.Int("tournament_id", tournamentID))
	return nil
}

// OverrideMatchWinner assigns a winner by admin fiat, bypassing the outcome
// resolver. It is the only way to unblock a match whose games keep failing.
// Re-propagation into the downstream match cascades only while that match has
// not started.
func (s *tournamentService) OverrideMatchWinner(ctx context.Context, matchID, winnerParticipantID int) error {
	match, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return ErrNotFound
		}
		return err
	}

	tournament, err := s.GetTournament(ctx, match.TournamentID)
	if err != nil {
		return err
	}
	if tournament.Status != models.StatusInProgress {
		return fmt.Errorf("%w: tournament status is %q", ErrInvalidStateTransition, tournament.Status)
	}

	slots, err := s.slotRepo.ListByMatch(ctx, matchID)
	if err != nil {
		return err
	}
	valid := false
	for _, slot := range slots {
		if slot.ParticipantID != nil && *slot.ParticipantID == winnerParticipantID {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: participant %d in match %d", ErrWinnerNotInMatch, winnerParticipantID, matchID)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if match.NextMatchID != nil {
			// Row lock on the downstream match: an executor racing for its
			// scheduled -> in_progress claim waits behind this, so the status
			// check and the reassignment below are atomic against it.
			next, err := s.matchRepo.GetByIDForUpdate(ctx, tx, *match.NextMatchID)
			if err != nil {
				return err
			}
			if next.Status != models.MatchScheduled {
				return fmt.Errorf("%w: match %d is %q", ErrOverrideAfterDownstreamRun, next.ID, next.Status)
			}
		}
		if err := s.matchRepo.CompleteWithWinner(ctx, tx, matchID, winnerParticipantID); err != nil {
			return err
		}
		if match.NextMatchID != nil {
			return s.slotRepo.ReassignSlot(ctx, tx, *match.NextMatchID, matchID, winnerParticipantID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.hub.BroadcastTournament(match.TournamentID, realtime.EventMatchCompleted, map[string]interface{}{
		"match_id":              matchID,
		"winner_participant_id": winnerParticipantID,
		"overridden":            true,
	})
	s.logger.Warn("match winner overridden",
		slog.Int("match_id", matchID), slog.Int("winner_participant_id", winnerParticipantID))
	return nil
}
