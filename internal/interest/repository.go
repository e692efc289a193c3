package interest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/congo_save/internal/ledger"
)

// Repository persists accrual state.
type Repository interface {
	Get(ctx context.Context, walletID uuid.UUID) (State, bool, error)
	// Apply runs fn on the wallet's state while holding it exclusively and
	// saves the result. A missing state is created with LastEarned and
	// LastPayout set to now and passed with created=true.
	Apply(ctx context.Context, walletID uuid.UUID, now time.Time, fn func(s *State, created bool) error) (State, error)
	// InterestWallets pages through saving-owned wallets whose plan pays
	// interest and whose state is due, ordered by wallet id.
	InterestWallets(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]ledger.Wallet, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository constructs a Postgres-backed repository.
func NewPostgresRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const stateColumns = `wallet_id, amount, last_earned, last_payout, created_at, updated_at`

func (r *postgresRepository) Get(ctx context.Context, walletID uuid.UUID) (State, bool, error) {
	s, err := scanState(r.db.QueryRow(ctx, `SELECT `+stateColumns+` FROM wallet_interests WHERE wallet_id = $1`, walletID))
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	return s, true, nil
}

func (r *postgresRepository) Apply(ctx context.Context, walletID uuid.UUID, now time.Time, fn func(s *State, created bool) error) (State, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return State{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO wallet_interests (wallet_id, amount, last_earned, last_payout)
        VALUES ($1, 0, $2, $2)
        ON CONFLICT (wallet_id) DO NOTHING`, walletID, now)
	if err != nil {
		return State{}, fmt.Errorf("create interest state: %w", err)
	}
	created := tag.RowsAffected() == 1

	s, err := scanState(tx.QueryRow(ctx, `SELECT `+stateColumns+` FROM wallet_interests WHERE wallet_id = $1 FOR UPDATE`, walletID))
	if err != nil {
		return State{}, err
	}
	if err := fn(&s, created); err != nil {
		return State{}, err
	}

	const update = `UPDATE wallet_interests
        SET amount = $2, last_earned = $3, last_payout = $4, updated_at = now()
        WHERE wallet_id = $1
        RETURNING updated_at`
	if err := tx.QueryRow(ctx, update, walletID, s.Amount, s.LastEarned, s.LastPayout).Scan(&s.UpdatedAt); err != nil {
		return State{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return State{}, err
	}
	return s, nil
}

func (r *postgresRepository) InterestWallets(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]ledger.Wallet, error) {
	const query = `
        SELECT w.id, w.owner_kind, w.owner_id, w.name, w.slug, w.balance, w.decimal_places, w.meta, w.created_at, w.updated_at
        FROM wallets w
        INNER JOIN savings s ON s.id = w.owner_id
        INNER JOIN plans p ON p.id = s.plan_id
        LEFT JOIN wallet_interests wi ON wi.wallet_id = w.id
        WHERE w.owner_kind = 'saving'
          AND p.interest_rate > 0
          AND w.id > $1
          AND (wi.wallet_id IS NULL
               OR wi.last_earned <= $2::timestamptz - interval '1 day'
               OR wi.last_payout <= $2::timestamptz - interval '1 month')
        ORDER BY w.id
        LIMIT $3`
	rows, err := r.db.Query(ctx, query, after, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Wallet
	for rows.Next() {
		w, err := ledger.ScanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanState(row pgx.Row) (State, error) {
	var s State
	err := row.Scan(&s.WalletID, &s.Amount, &s.LastEarned, &s.LastPayout, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
