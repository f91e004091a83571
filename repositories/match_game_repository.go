package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/snakearena/tournament-engine/models"
)

var (
	ErrMatchGameNotFound       = errors.New("match game not found")
	ErrMatchGameNumberConflict = errors.New("game number already exists for this match")
)

type MatchGameRepository interface {
	Create(ctx context.Context, game *models.MatchGame) error
	ListByMatch(ctx context.Context, matchID int) ([]models.MatchGame, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]models.MatchGame, error)
	SetWinner(ctx context.Context, gameID, winnerParticipantID int) error
}

type postgresMatchGameRepository struct {
	db *sql.DB
}

func NewPostgresMatchGameRepository(db *sql.DB) MatchGameRepository {
	return &postgresMatchGameRepository{db: db}
}

func (r *postgresMatchGameRepository) Create(ctx context.Context, game *models.MatchGame) error {
	query := `
		INSERT INTO match_games (match_id, game_number, engine_game_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		game.MatchID, game.GameNumber, game.EngineGameID,
	).Scan(&game.ID, &game.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint == "match_games_match_id_game_number_key" {
		return ErrMatchGameNumberConflict
	}
	return err
}

const matchGameColumns = `id, match_id, game_number, engine_game_id, winner_participant_id, created_at`

func (r *postgresMatchGameRepository) ListByMatch(ctx context.Context, matchID int) ([]models.MatchGame, error) {
	query := `SELECT ` + matchGameColumns + ` FROM match_games WHERE match_id = $1 ORDER BY game_number ASC`

	rows, err := r.db.QueryContext(ctx, query, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query games for match %d: %w", matchID, err)
	}
	defer rows.Close()
	return scanMatchGames(rows)
}

func (r *postgresMatchGameRepository) ListByTournament(ctx context.Context, tournamentID int) ([]models.MatchGame, error) {
	query := `
		SELECT g.id, g.match_id, g.game_number, g.engine_game_id, g.winner_participant_id, g.created_at
		FROM match_games g
		JOIN tournament_matches m ON m.id = g.match_id
		WHERE m.tournament_id = $1
		ORDER BY g.match_id ASC, g.game_number ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query games for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()
	return scanMatchGames(rows)
}

func scanMatchGames(rows *sql.Rows) ([]models.MatchGame, error) {
	games := make([]models.MatchGame, 0)
	for rows.Next() {
		var g models.MatchGame
		if err := rows.Scan(&g.ID, &g.MatchID, &g.GameNumber, &g.EngineGameID, &g.WinnerParticipantID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match game row: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (r *postgresMatchGameRepository) SetWinner(ctx context.Context, gameID, winnerParticipantID int) error {
	query := `UPDATE match_games SET winner_participant_id = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, winnerParticipantID, gameID)
	if err != nil {
		return fmt.Errorf("failed to set winner for game %d: %w", gameID, err)
	}
	return checkAffectedRows(result, ErrMatchGameNotFound)
}
