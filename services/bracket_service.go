package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/snakearena/tournament-engine/brackets"
	"github.com/snakearena/tournament-engine/models"
	"github.com/snakearena/tournament-engine/repositories"
)

// BracketView is the full tree get_bracket returns: every match with its
// slots, games and derived win counts, ready for rendering.
type BracketView struct {
	Tournament *models.Tournament `json:"tournament"`
	Matches    []*models.Match    `json:"matches"`
}

type BracketService interface {
	// SaveBracket persists a freshly generated bracket. It must run inside
	// the caller's transaction so bye pre-resolution and winner propagation
	// commit atomically with the tournament start.
	SaveBracket(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, registrations []*models.Registration) error
	GetBracket(ctx context.Context, tournamentID int) (*BracketView, error)
}

type bracketService struct {
	tournamentRepo repositories.TournamentRepository
	matchRepo      repositories.MatchRepository
	slotRepo       repositories.MatchParticipantRepository
	gameRepo       repositories.MatchGameRepository
	logger         *slog.Logger
}

func NewBracketService(
	tournamentRepo repositories.TournamentRepository,
	matchRepo repositories.MatchRepository,
	slotRepo repositories.MatchParticipantRepository,
	gameRepo repositories.MatchGameRepository,
	logger *slog.Logger,
) BracketService {
	return &bracketService{
		tournamentRepo: tournamentRepo,
		matchRepo:      matchRepo,
		slotRepo:       slotRepo,
		gameRepo:       gameRepo,
		logger:         logger,
	}
}

func (s *bracketService) SaveBracket(ctx context.Context, exec repositories.SQLExecutor, tournament *models.Tournament, registrations []*models.Registration) error {
	participants := make([]brackets.SeededParticipant, 0, len(registrations))
	for _, reg := range registrations {
		if reg.Seed == nil {
			return fmt.Errorf("%w: registration %d has no seed", ErrValidationFailed, reg.ID)
		}
		participants = append(participants, brackets.SeededParticipant{
			ParticipantID: reg.ParticipantID,
			Seed:          *reg.Seed,
		})
	}

	bracket, err := brackets.BuildSingleElimination(participants)
	if err != nil {
		if err == brackets.ErrNotEnoughParticipants {
			return fmt.Errorf("%w: %v", ErrPrerequisiteNotMet, err)
		}
		return fmt.Errorf("failed to generate bracket for tournament %d: %w", tournament.ID, err)
	}

	s.logger.Info("generated bracket",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("participants", len(participants)),
		slog.Int("rounds", bracket.Rounds),
		slog.Int("byes", bracket.Byes),
	)

	// First pass: create all match rows. Bye matches are born completed with
	// their winner; everything else starts scheduled.
	matchIDs := make(map[[2]int]int, len(bracket.Matches))
	for _, bm := range bracket.Matches {
		status := models.MatchScheduled
		if bm.Bye {
			status = models.MatchCompleted
		}
		row := &models.Match{
			TournamentID:        tournament.ID,
			Round:               bm.Round,
			Position:            bm.Position,
			Status:              status,
			WinnerParticipantID: bm.WinnerParticipantID,
			VisualColumn:        bm.VisualColumn,
			VisualRow:           bm.VisualRow,
		}
		if err := s.matchRepo.Create(ctx, exec, row); err != nil {
			return fmt.Errorf("failed to create match (round %d, position %d): %w", bm.Round, bm.Position, err)
		}
		matchIDs[[2]int{bm.Round, bm.Position}] = row.ID
	}

	// Second pass: link next_match_id. (round, position) feeds
	// (round+1, position/2); only the final match has no outgoing edge.
	for _, bm := range bracket.Matches {
		if bm.Round == bracket.Rounds {
			continue
		}
		matchID := matchIDs[[2]int{bm.Round, bm.Position}]
		nextID := matchIDs[[2]int{bm.Round + 1, bm.Position / 2}]
		if err := s.matchRepo.UpdateNextMatchID(ctx, exec, matchID, nextID); err != nil {
			return fmt.Errorf("failed to link match %d: %w", matchID, err)
		}
	}

	// Third pass: create the slots. Round-1 slots carry seeds; later rounds
	// reference their source matches, with bye winners already filled in.
	for _, bm := range bracket.Matches {
		matchID := matchIDs[[2]int{bm.Round, bm.Position}]
		for _, slot := range bm.Slots {
			mp := &models.MatchParticipant{
				MatchID:       matchID,
				Slot:          slot.Number,
				ParticipantID: slot.ParticipantID,
				Type:          slot.Type,
				SeedPosition:  slot.SeedPosition,
			}
			if slot.Source != nil {
				sourceID := matchIDs[[2]int{slot.Source.Round, slot.Source.Position}]
				mp.SourceMatchID = &sourceID
			}
			if err := s.slotRepo.Create(ctx, exec, mp); err != nil {
				return fmt.Errorf("failed to create slot %d of match %d: %w", slot.Number, matchID, err)
			}
		}
	}

	return nil
}

func (s *bracketService) GetBracket(ctx context.Context, tournamentID int) (*BracketView, error) {
	view := &BracketView{}
	var slots []models.MatchParticipant
	var games []models.MatchGame

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tournament, err := s.tournamentRepo.GetByID(gCtx, tournamentID)
		if err != nil {
			if err == repositories.ErrTournamentNotFound {
				return ErrNotFound
			}
			return err
		}
		view.Tournament = tournament
		return nil
	})
	g.Go(func() error {
		matches, err := s.matchRepo.ListByTournament(gCtx, tournamentID, nil, nil)
		if err != nil {
			return err
		}
		view.Matches = matches
		return nil
	})
	g.Go(func() error {
		var err error
		slots, err = s.slotRepo.ListByTournament(gCtx, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		games, err = s.gameRepo.ListByTournament(gCtx, tournamentID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	byMatch := make(map[int]*models.Match, len(view.Matches))
	for _, m := range view.Matches {
		byMatch[m.ID] = m
	}
	for _, slot := range slots {
		if m, ok := byMatch[slot.MatchID]; ok {
			m.Participants = append(m.Participants, slot)
		}
	}
	for _, game := range games {
		m, ok := byMatch[game.MatchID]
		if !ok {
			continue
		}
		m.Games = append(m.Games, game)
		if game.WinnerParticipantID != nil {
			if m.WinCounts == nil {
				m.WinCounts = make(map[int]int, 2)
			}
			m.WinCounts[*game.WinnerParticipantID]++
		}
	}

	return view, nil
}
