package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/snakearena/tournament-engine/models"
)

var ErrMatchNotFound = errors.New("match not found")

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	// GetByIDForUpdate locks the match row for the lifetime of the
	// transaction; the admin override serializes on it against the executor's
	// scheduled -> in_progress claim.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error)
	UpdateNextMatchID(ctx context.Context, exec SQLExecutor, matchID, nextMatchID int) error
	// CompareAndSetStatus is the scheduled -> in_progress claim; at most one
	// executor per match wins it. Losing returns ErrNoRowsUpdated.
	CompareAndSetStatus(ctx context.Context, exec SQLExecutor, matchID int, from, to models.MatchStatus) error
	CompleteWithWinner(ctx context.Context, exec SQLExecutor, matchID, winnerParticipantID int) error
	SetBlocked(ctx context.Context, matchID int, reason string) error
	CountNonTerminalInRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) (int, error)
	CountByStatusInRound(ctx context.Context, tournamentID, round int, status models.MatchStatus) (int, error)
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `
	id, tournament_id, round, position, status, next_match_id,
	winner_participant_id, blocked, blocked_reason, visual_column, visual_row, created_at`

func scanMatch(row interface{ Scan(...interface{}) error }, m *models.Match) error {
	return row.Scan(
		&m.ID, &m.TournamentID, &m.Round, &m.Position, &m.Status, &m.NextMatchID,
		&m.WinnerParticipantID, &m.Blocked, &m.BlockedReason, &m.VisualColumn,
		&m.VisualRow, &m.CreatedAt,
	)
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO tournament_matches (
			tournament_id, round, position, status, next_match_id,
			winner_participant_id, blocked, visual_column, visual_row
		) VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
		RETURNING id, created_at`

	return exec.QueryRowContext(ctx, query,
		match.TournamentID, match.Round, match.Position, match.Status,
		match.NextMatchID, match.WinnerParticipantID, match.VisualColumn, match.VisualRow,
	).Scan(&match.ID, &match.CreatedAt)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM tournament_matches WHERE id = $1`

	m := &models.Match{}
	if err := scanMatch(r.db.QueryRowContext(ctx, query, id), m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to scan match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Match, error) {
	query := `SELECT` + matchColumns + ` FROM tournament_matches WHERE id = $1 FOR UPDATE`

	m := &models.Match{}
	if err := scanMatch(exec.QueryRowContext(ctx, query, id), m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to lock match %d: %w", id, err)
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT` + matchColumns + ` FROM tournament_matches WHERE tournament_id = $1`)

	args := []interface{}{tournamentID}
	placeholder := 2

	if round != nil {
		queryBuilder.WriteString(" AND round = $" + strconv.Itoa(placeholder))
		args = append(args, *round)
		placeholder++
	}
	if status != nil {
		queryBuilder.WriteString(" AND status = $" + strconv.Itoa(placeholder))
		args = append(args, *status)
	}
	queryBuilder.WriteString(" ORDER BY round ASC, position ASC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m := &models.Match{}
		if err := scanMatch(rows, m); err != nil {
			return nil, fmt.Errorf("failed to scan match row: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *postgresMatchRepository) UpdateNextMatchID(ctx context.Context, exec SQLExecutor, matchID, nextMatchID int) error {
	query := `UPDATE tournament_matches SET next_match_id = $1 WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, nextMatchID, matchID)
	if err != nil {
		return fmt.Errorf("failed to link match %d to next match: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) CompareAndSetStatus(ctx context.Context, exec SQLExecutor, matchID int, from, to models.MatchStatus) error {
	query := `UPDATE tournament_matches SET status = $1 WHERE id = $2 AND status = $3`
	result, err := exec.ExecContext(ctx, query, to, matchID, from)
	if err != nil {
		return fmt.Errorf("failed to update match %d status: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrNoRowsUpdated)
}

func (r *postgresMatchRepository) CompleteWithWinner(ctx context.Context, exec SQLExecutor, matchID, winnerParticipantID int) error {
	query := `
		UPDATE tournament_matches
		SET status = 'completed', winner_participant_id = $1, blocked = false, blocked_reason = NULL
		WHERE id = $2 AND status IN ('scheduled', 'in_progress', 'completed')`
	result, err := exec.ExecContext(ctx, query, winnerParticipantID, matchID)
	if err != nil {
		return fmt.Errorf("failed to complete match %d: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrNoRowsUpdated)
}

func (r *postgresMatchRepository) SetBlocked(ctx context.Context, matchID int, reason string) error {
	query := `UPDATE tournament_matches SET blocked = true, blocked_reason = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, reason, matchID)
	if err != nil {
		return fmt.Errorf("failed to flag match %d blocked: %w", matchID, err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) CountNonTerminalInRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) (int, error) {
	var count int
	err := exec.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tournament_matches
		WHERE tournament_id = $1 AND round = $2 AND status NOT IN ('completed', 'canceled')`,
		tournamentID, round,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open matches in round %d: %w", round, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) CountByStatusInRound(ctx context.Context, tournamentID, round int, status models.MatchStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tournament_matches
		WHERE tournament_id = $1 AND round = $2 AND status = $3`,
		tournamentID, round, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s matches in round %d: %w", status, round, err)
	}
	return count, nil
}

func (r *postgresMatchRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	// match_participants and match_games cascade off tournament_matches
	_, err := exec.ExecContext(ctx, `DELETE FROM tournament_matches WHERE tournament_id = $1`, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to delete matches for tournament %d: %w", tournamentID, err)
	}
	return nil
}
