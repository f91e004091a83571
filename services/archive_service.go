package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/snakearena/tournament-engine/models"
	"github.com/snakearena/tournament-engine/repositories"
	"github.com/snakearena/tournament-engine/storage"
)

const archiveBatchSize = 20

// ArchiveService exports finished tournaments (bracket, matches and game
// results) as JSON objects to the replay bucket, then marks them archived so
// each is exported once.
type ArchiveService interface {
	ArchiveCompleted(ctx context.Context) error
	// RunPeriodic archives on a ticker until ctx is canceled.
	RunPeriodic(ctx context.Context, interval time.Duration)
}

type archiveService struct {
	tournamentRepo repositories.TournamentRepository
	bracketService BracketService
	uploader       storage.FileUploader
	logger         *slog.Logger
}

func NewArchiveService(
	tournamentRepo repositories.TournamentRepository,
	bracketService BracketService,
	uploader storage.FileUploader,
	logger *slog.Logger,
) ArchiveService {
	return &archiveService{
		tournamentRepo: tournamentRepo,
		bracketService: bracketService,
		uploader:       uploader,
		logger:         logger,
	}
}

type tournamentArchive struct {
	ArchivedAt time.Time          `json:"archived_at"`
	Tournament *models.Tournament `json:"tournament"`
	Matches    []*models.Match    `json:"matches"`
}

func (s *archiveService) ArchiveCompleted(ctx context.Context) error {
	tournaments, err := s.tournamentRepo.ListUnarchivedCompleted(ctx, archiveBatchSize)
	if err != nil {
		return fmt.Errorf("failed to list tournaments pending archive: %w", err)
	}

	for _, t := range tournaments {
		if err := s.archiveOne(ctx, t); err != nil {
			// keep going; the failed one is retried on the next sweep
			s.logger.Error("failed to archive tournament",
				slog.Int("tournament_id", t.ID), slog.Any("error", err))
		}
	}
	return nil
}

func (s *archiveService) archiveOne(ctx context.Context, t *models.Tournament) error {
	view, err := s.bracketService.GetBracket(ctx, t.ID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(tournamentArchive{
		ArchivedAt: time.Now().UTC(),
		Tournament: view.Tournament,
		Matches:    view.Matches,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal archive for tournament %d: %w", t.ID, err)
	}

	key := fmt.Sprintf("archives/tournament_%d.json", t.ID)
	result, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}

	if err := s.tournamentRepo.MarkArchived(ctx, t.ID); err != nil {
		return err
	}
	s.logger.Info("tournament archived",
		slog.Int("tournament_id", t.ID), slog.String("location", result.Location))
	return nil
}

func (s *archiveService) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.ArchiveCompleted(ctx); err != nil {
				s.logger.Error("archive sweep failed", slog.Any("error", err))
			}
		}
	}
}
