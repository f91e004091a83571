package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/snakearena/tournament-engine/models"
)

var ErrMatchParticipantNotFound = errors.New("match participant slot not found")

type MatchParticipantRepository interface {
	Create(ctx context.Context, exec SQLExecutor, mp *models.MatchParticipant) error
	ListByMatch(ctx context.Context, matchID int) ([]models.MatchParticipant, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]models.MatchParticipant, error)
	// FillSlot writes the advancing participant into the downstream slot fed
	// by sourceMatchID. The update is scoped to the one empty slot so sibling
	// propagations into the same match never collide.
	FillSlot(ctx context.Context, exec SQLExecutor, matchID, sourceMatchID, participantID int) error
	// ReassignSlot overwrites an already-propagated slot; used only by admin
	// override before the downstream match has started.
	ReassignSlot(ctx context.Context, exec SQLExecutor, matchID, sourceMatchID, participantID int) error
	UpdateSourceMatchID(ctx context.Context, exec SQLExecutor, id, sourceMatchID int) error
}

type postgresMatchParticipantRepository struct {
	db *sql.DB
}

func NewPostgresMatchParticipantRepository(db *sql.DB) MatchParticipantRepository {
	return &postgresMatchParticipantRepository{db: db}
}

func (r *postgresMatchParticipantRepository) Create(ctx context.Context, exec SQLExecutor, mp *models.MatchParticipant) error {
	query := `
		INSERT INTO match_participants (match_id, slot, participant_id, source_match_id, participant_type, seed_position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	return exec.QueryRowContext(ctx, query,
		mp.MatchID, mp.Slot, mp.ParticipantID, mp.SourceMatchID, mp.Type, mp.SeedPosition,
	).Scan(&mp.ID)
}

const matchParticipantColumns = `id, match_id, slot, participant_id, source_match_id, participant_type, seed_position`

func (r *postgresMatchParticipantRepository) ListByMatch(ctx context.Context, matchID int) ([]models.MatchParticipant, error) {
	query := `SELECT ` + matchParticipantColumns + ` FROM match_participants WHERE match_id = $1 ORDER BY slot ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for match %d: %w", matchID, err)
	}
	defer rows.Close()
	return scanMatchParticipants(rows)
}

func (r *postgresMatchParticipantRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.MatchParticipant, error) {
	query := `
		SELECT mp.id, mp.match_id, mp.slot, mp.participant_id, mp.source_match_id, mp.participant_type, mp.seed_position
		FROM match_participants mp
		JOIN tournament_matches m ON m.id = mp.match_id
		WHERE m.tournament_id = $1
		ORDER BY mp.match_id ASC, mp.slot ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()
	return scanMatchParticipants(rows)
}

func scanMatchParticipants(rows *sql.Rows) ([]models.MatchParticipant, error) {
	participants := make([]models.MatchParticipant, 0)
	for rows.Next() {
		var mp models.MatchParticipant
		if err := rows.Scan(&mp.ID, &mp.MatchID, &mp.Slot, &mp.ParticipantID, &mp.SourceMatchID, &mp.Type, &mp.SeedPosition); err != nil {
			return nil, fmt.Errorf("failed to scan match participant row: %w", err)
		}
		participants = append(participants, mp)
	}
	return participants, rows.Err()
}

func (r *postgresMatchParticipantRepository) FillSlot(ctx context.Context, exec SQLExecutor, matchID, sourceMatchID, participantID int) error {
	query := `
		UPDATE match_participants SET participant_id = $1
		WHERE match_id = $2 AND source_match_id = $3 AND participant_id IS NULL`
	result, err := exec.ExecContext(ctx, query, participantID, matchID, sourceMatchID)
	if err != nil {
		return fmt.Errorf("failed to fill slot of match %d from match %d: %w", matchID, sourceMatchID, err)
	}
	return checkAffectedRows(result, ErrNoRowsUpdated)
}

func (r *postgresMatchParticipantRepository) ReassignSlot(ctx context.Context, exec SQLExecutor, matchID, sourceMatchID, participantID int) error {
	query := `
		UPDATE match_participants SET participant_id = $1
		WHERE match_id = $2 AND source_match_id = $3`
	result, err := exec.ExecContext(ctx, query, participantID, matchID, sourceMatchID)
	if err != nil {
		return fmt.Errorf("failed to reassign slot of match %d from match %d: %w", matchID, sourceMatchID, err)
	}
	return checkAffectedRows(result, ErrMatchParticipantNotFound)
}

func (r *postgresMatchParticipantRepository) UpdateSourceMatchID(ctx context.Context, exec SQLExecutor, id, sourceMatchID int) error {
	query := `UPDATE match_participants SET source_match_id = $1 WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, sourceMatchID, id)
	if err != nil {
		return fmt.Errorf("failed to set source match for slot %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrMatchParticipantNotFound)
}
