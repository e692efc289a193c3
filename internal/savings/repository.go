package savings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists plans, savings and challenge participations.
type Repository interface {
	CreatePlan(ctx context.Context, plan Plan) error
	GetPlan(ctx context.Context, id uuid.UUID) (Plan, error)
	CreateSaving(ctx context.Context, saving Saving) error
	GetSaving(ctx context.Context, id uuid.UUID) (Saving, error)
	CreateUserChallenge(ctx context.Context, uc UserChallenge) error
	GetUserChallenge(ctx context.Context, id uuid.UUID) (UserChallenge, error)
	Participants(ctx context.Context, savingID uuid.UUID) ([]UserChallenge, error)
	// ActiveSavings pages through active savings of one kind ordered by id.
	ActiveSavings(ctx context.Context, challenge bool, after uuid.UUID, limit int) ([]Saving, error)
	// MarkMatured moves an active saving to its terminal state. It returns
	// ErrAlreadyMatured when the saving was no longer active.
	MarkMatured(ctx context.Context, id uuid.UUID, at time.Time) error
	// DeleteSaving removes a saving and its participations.
	DeleteSaving(ctx context.Context, id uuid.UUID) error
}

// PostgresRepository stores savings data in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const savingColumns = `id, user_id, plan_id, name, target, deadline, contributions, interval, is_challenge, active, matured_at, created_at`

// CreatePlan inserts plan reference data.
func (r *PostgresRepository) CreatePlan(ctx context.Context, plan Plan) error {
	_, err := r.db.Exec(ctx, `INSERT INTO plans (id, name, kind, interest_rate, min_lock_days, breakable)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING`,
		plan.ID, plan.Name, string(plan.Kind), plan.InterestRate, plan.MinLockDays, plan.Breakable)
	return err
}

// GetPlan fetches a plan by id.
func (r *PostgresRepository) GetPlan(ctx context.Context, id uuid.UUID) (Plan, error) {
	var (
		p    Plan
		kind string
	)
	err := r.db.QueryRow(ctx, `SELECT id, name, kind, interest_rate, min_lock_days, breakable FROM plans WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &kind, &p.InterestRate, &p.MinLockDays, &p.Breakable)
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, ErrPlanNotFound
	}
	if err != nil {
		return Plan{}, err
	}
	p.Kind = PlanKind(kind)
	return p, nil
}

// CreateSaving inserts a saving record.
func (r *PostgresRepository) CreateSaving(ctx context.Context, s Saving) error {
	_, err := r.db.Exec(ctx, `INSERT INTO savings (`+savingColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.UserID, s.PlanID, s.Name, s.Target, s.Deadline, s.Contributions, string(s.Interval),
		s.IsChallenge, s.Active, s.MaturedAt, s.CreatedAt.UTC())
	return err
}

// GetSaving fetches a saving by id.
func (r *PostgresRepository) GetSaving(ctx context.Context, id uuid.UUID) (Saving, error) {
	s, err := scanSaving(r.db.QueryRow(ctx, `SELECT `+savingColumns+` FROM savings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Saving{}, ErrSavingNotFound
	}
	return s, err
}

// CreateUserChallenge records a participation, failing with ErrAlreadyJoined
// when the user already takes part.
func (r *PostgresRepository) CreateUserChallenge(ctx context.Context, uc UserChallenge) error {
	_, err := r.db.Exec(ctx, `INSERT INTO user_challenges (id, saving_id, user_id, created_at) VALUES ($1, $2, $3, $4)`,
		uc.ID, uc.SavingID, uc.UserID, uc.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyJoined
	}
	return err
}

// GetUserChallenge fetches a participation by id.
func (r *PostgresRepository) GetUserChallenge(ctx context.Context, id uuid.UUID) (UserChallenge, error) {
	var uc UserChallenge
	err := r.db.QueryRow(ctx, `SELECT id, saving_id, user_id, created_at FROM user_challenges WHERE id = $1`, id).
		Scan(&uc.ID, &uc.SavingID, &uc.UserID, &uc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserChallenge{}, ErrChallengeNotFound
	}
	return uc, err
}

// Participants lists every participation of a challenge saving.
func (r *PostgresRepository) Participants(ctx context.Context, savingID uuid.UUID) ([]UserChallenge, error) {
	rows, err := r.db.Query(ctx, `SELECT id, saving_id, user_id, created_at FROM user_challenges
        WHERE saving_id = $1 ORDER BY created_at, id`, savingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserChallenge
	for rows.Next() {
		var uc UserChallenge
		if err := rows.Scan(&uc.ID, &uc.SavingID, &uc.UserID, &uc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, uc)
	}
	return out, rows.Err()
}

// ActiveSavings pages through active savings using the id as keyset.
func (r *PostgresRepository) ActiveSavings(ctx context.Context, challenge bool, after uuid.UUID, limit int) ([]Saving, error) {
	rows, err := r.db.Query(ctx, `SELECT `+savingColumns+` FROM savings
        WHERE active AND is_challenge = $1 AND id > $2
        ORDER BY id
        LIMIT $3`, challenge, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Saving
	for rows.Next() {
		s, err := scanSaving(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkMatured flips active to false inside its own transaction. Only the
// first caller sees a row updated.
func (r *PostgresRepository) MarkMatured(ctx context.Context, id uuid.UUID, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `UPDATE savings SET active = FALSE, matured_at = $2 WHERE id = $1 AND active`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("mark saving matured: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM savings WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrSavingNotFound
		}
		return ErrAlreadyMatured
	}
	return tx.Commit(ctx)
}

// DeleteSaving removes a saving; participations go with it through the
// foreign key.
func (r *PostgresRepository) DeleteSaving(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM savings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete saving: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSavingNotFound
	}
	return nil
}

func scanSaving(row pgx.Row) (Saving, error) {
	var (
		s        Saving
		interval string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.Name, &s.Target, &s.Deadline, &s.Contributions,
		&interval, &s.IsChallenge, &s.Active, &s.MaturedAt, &s.CreatedAt)
	if err != nil {
		return Saving{}, err
	}
	s.Interval = Interval(interval)
	return s, nil
}
