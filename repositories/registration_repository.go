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
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrRegistrationConflict  = errors.New("snake is already registered for this tournament")
	ErrRegistrationSeedTaken = errors.New("seed already assigned within this tournament")
)

type RegistrationRepository interface {
	Create(ctx context.Context, reg *models.Registration) error
	Delete(ctx context.Context, tournamentID, participantID int) error
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Registration, error)
	CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	CountByTournamentAndUser(ctx context.Context, tournamentID, userID int) (int, error)
	// AssignSeed pins a registration's seed; seeds are unique per tournament
	// and immutable once the bracket is built, which the service layer
	// guarantees by only assigning inside the start transaction.
	AssignSeed(ctx context.Context, exec SQLExecutor, registrationID, seed int) error
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

func (r *postgresRegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO tournament_registrations (tournament_id, participant_id, user_id, seed)
		VALUES ($1, $2, $3, $4)
		RETURNING id, registered_at`

	err := r.db.QueryRowContext(ctx, query,
		reg.TournamentID, reg.ParticipantID, reg.UserID, reg.Seed,
	).Scan(&reg.ID, &reg.RegisteredAt)

	return r.handleRegistrationError(err)
}

func (r *postgresRegistrationRepository) Delete(ctx context.Context, tournamentID, participantID int) error {
	query := `DELETE FROM tournament_registrations WHERE tournament_id = $1 AND participant_id = $2`
	result, err := r.db.ExecContext(ctx, query, tournamentID, participantID)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Registration, error) {
	query := `
		SELECT id, tournament_id, participant_id, user_id, seed, registered_at
		FROM tournament_registrations
		WHERE tournament_id = $1
		ORDER BY registered_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	regs := make([]*models.Registration, 0)
	for rows.Next() {
		reg := &models.Registration{}
		if err := rows.Scan(&reg.ID, &reg.TournamentID, &reg.ParticipantID, &reg.UserID, &reg.Seed, &reg.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (r *postgresRegistrationRepository) CountByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	var count int
	err := exec.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tournament_registrations WHERE tournament_id = $1`,
		tournamentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations for tournament %d: %w", tournamentID, err)
	}
	return count, nil
}

func (r *postgresRegistrationRepository) CountByTournamentAndUser(ctx context.Context, tournamentID, userID int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tournament_registrations WHERE tournament_id = $1 AND user_id = $2`,
		tournamentID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations for tournament %d user %d: %w", tournamentID, userID, err)
	}
	return count, nil
}

func (r *postgresRegistrationRepository) AssignSeed(ctx context.Context, exec SQLExecutor, registrationID, seed int) error {
	query := `UPDATE tournament_registrations SET seed = $1 WHERE id = $2`
	result, err := exec.ExecContext(ctx, query, seed, registrationID)
	if err != nil {
		return r.handleRegistrationError(err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func (r *postgresRegistrationRepository) handleRegistrationError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Constraint {
		case "tournament_registrations_tournament_id_participant_id_key":
			return ErrRegistrationConflict
		case "tournament_registrations_tournament_id_seed_key":
			return ErrRegistrationSeedTaken
		}
	}
	return err
}
