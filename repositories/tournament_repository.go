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
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTournamentNameConflict = errors.New("tournament name conflict for this owner")
)

type ListTournamentsFilter struct {
	OwnerID *int
	Status  *models.TournamentStatus
	Limit   int
	Offset  int
}

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	// GetByIDForUpdate locks the tournament row for the lifetime of the
	// transaction; round advancement and start both serialize on it.
	GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error)
	// CompareAndSetStatus transitions only when the current status matches;
	// a missed condition surfaces as ErrNoRowsUpdated.
	CompareAndSetStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error
	AdvanceRound(ctx context.Context, exec SQLExecutor, id int, fromRound int) error
	CompleteWithWinner(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID int) error
	// ResetProgress rewinds an in_progress tournament back to registration.
	ResetProgress(ctx context.Context, exec SQLExecutor, id int) error
	ListUnarchivedCompleted(ctx context.Context, limit int) ([]*models.Tournament, error)
	MarkArchived(ctx context.Context, id int) error
	Delete(ctx context.Context, id int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `
	id, name, owner_id, board_size, game_type, registration_mode, visibility,
	status, match_style, max_snakes_per_user, required_participants,
	current_round, winner_participant_id, archived_at, created_at, updated_at`

func scanTournament(row interface{ Scan(...interface{}) error }, t *models.Tournament) error {
	return row.Scan(
		&t.ID, &t.Name, &t.OwnerID, &t.BoardSize, &t.GameType, &t.RegistrationMode,
		&t.Visibility, &t.Status, &t.MatchStyle, &t.MaxSnakesPerUser,
		&t.RequiredParticipants, &t.CurrentRound, &t.WinnerParticipantID,
		&t.ArchivedAt, &t.CreatedAt, &t.UpdatedAt,
	)
}

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	query := `
		INSERT INTO tournaments (
			name, owner_id, board_size, game_type, registration_mode, visibility,
			status, match_style, max_snakes_per_user, required_participants, current_round
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		t.Name, t.OwnerID, t.BoardSize, t.GameType, t.RegistrationMode,
		t.Visibility, t.Status, t.MatchStyle, t.MaxSnakesPerUser, t.RequiredParticipants,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	return r.handleTournamentError(err)
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	t := &models.Tournament{}
	err := scanTournament(r.db.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to scan tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) GetByIDForUpdate(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`

	t := &models.Tournament{}
	err := scanTournament(exec.QueryRowContext(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to lock tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context, filter ListTournamentsFilter) ([]models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE 1=1`
	args := []interface{}{}
	argID := 1

	if filter.OwnerID != nil {
		query += fmt.Sprintf(" AND owner_id = $%d", argID)
		args = append(args, *filter.OwnerID)
		argID++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argID)
		args = append(args, *filter.Status)
		argID++
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argID)
		args = append(args, filter.Limit)
		argID++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argID)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := scanTournament(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) CompareAndSetStatus(ctx context.Context, exec SQLExecutor, id int, from, to models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`
	result, err := exec.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("failed to update tournament %d status: %w", id, err)
	}
	return checkAffectedRows(result, ErrNoRowsUpdated)
}

func (r *postgresTournamentRepository) AdvanceRound(ctx context.Context, exec SQLExecutor, id int, fromRound int) error {
	query := `
		UPDATE tournaments SET current_round = current_round + 1, updated_at = now()
		WHERE id = $1 AND current_round = $2 AND status = 'in_progress'`
	result, err := exec.ExecContext(ctx, query, id, fromRound)
	if err != nil {
		return fmt.Errorf("failed to advance round for tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrNoRowsUpdated)
}

func (r *postgresTournamentRepository) CompleteWithWinner(ctx context.Context, exec SQLExecutor, id int, winnerParticipantID int) error {
	query := `
		UPDATE tournaments SET status = 'completed', winner_participant_id = $1, updated_at = now()
		WHERE id = $2 AND status = 'in_progress'`
	result, err := exec.ExecContext(ctx, query, winnerParticipantID, id)
	if err != nil {
		return fmt.Errorf("failed to complete tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrNoRowsUpdated)
}

func (r *postgresTournamentRepository) ResetProgress(ctx context.Context, exec SQLExecutor, id int) error {
	query := `
		UPDATE tournaments
		SET status = 'registration', current_round = 0, winner_participant_id = NULL, updated_at = now()
		WHERE id = $1 AND status = 'in_progress'`
	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reset tournament %d: %w", id, err)
	}
	return checkAffectedRows(result, ErrNoRowsUpdated)
}

func (r *postgresTournamentRepository) ListUnarchivedCompleted(ctx context.Context, limit int) ([]*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + `
		FROM tournaments WHERE status = 'completed' AND archived_at IS NULL
		ORDER BY updated_at ASC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unarchived tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		t := &models.Tournament{}
		if err := scanTournament(rows, t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, t)
	}
	return tournaments, rows.Err()
}

func (r *postgresTournamentRepository) MarkArchived(ctx context.Context, id int) error {
	query := `UPDATE tournaments SET archived_at = now() WHERE id = $1 AND archived_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark tournament %d archived: %w", id, err)
	}
	return checkAffectedRows(result, ErrNoRowsUpdated)
}

func (r *postgresTournamentRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Constraint == "tournaments_owner_id_name_key" {
		return ErrTournamentNameConflict
	}
	return err
}
