package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/metrics"
)

const (
	walletColumns   = `id, owner_kind, owner_id, name, slug, balance, decimal_places, meta, created_at, updated_at`
	txColumns       = `id, wallet_id, type, amount, confirmed, reference, meta, created_at`
	transferColumns = `id, withdraw_id, deposit_id, status, from_kind, from_id, to_kind, to_id,
        from_wallet_id, to_wallet_id, amount, fee, discount, reference, created_at`

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// PostgresLedger keeps wallet balances and their transactions in PostgreSQL.
// Each posting locks the wallet row with SELECT ... FOR UPDATE.
type PostgresLedger struct {
	observers
	db   *pgxpool.Pool
	opts options
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool, opts ...Option) *PostgresLedger {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &PostgresLedger{
		observers: observers{logger: o.logger},
		db:        db,
		opts:      o,
	}
}

// EnsureWallet returns the owner's wallet with spec.Slug, creating it on first use.
func (l *PostgresLedger) EnsureWallet(ctx context.Context, owner Owner, spec WalletSpec) (Wallet, error) {
	if !owner.Kind.Valid() || owner.ID == uuid.Nil {
		return Wallet{}, fmt.Errorf("invalid wallet owner %s", owner)
	}
	spec = l.normalizeSpec(spec)

	const insert = `INSERT INTO wallets (id, owner_kind, owner_id, name, slug, decimal_places, meta)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (owner_kind, owner_id, slug) DO NOTHING`
	if _, err := l.db.Exec(ctx, insert, uuid.New(), string(owner.Kind), owner.ID, spec.Name, spec.Slug, spec.DecimalPlaces, metaOrEmpty(spec.Meta)); err != nil {
		return Wallet{}, fmt.Errorf("ensure wallet: %w", err)
	}
	return l.WalletByOwner(ctx, owner, spec.Slug)
}

// Wallet loads a wallet by id.
func (l *PostgresLedger) Wallet(ctx context.Context, id uuid.UUID) (Wallet, error) {
	return scanWallet(l.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

// WalletByOwner loads the owner's wallet with the given slug.
func (l *PostgresLedger) WalletByOwner(ctx context.Context, owner Owner, slug string) (Wallet, error) {
	if slug == "" {
		slug = DefaultSlug
	}
	const query = `SELECT ` + walletColumns + ` FROM wallets WHERE owner_kind = $1 AND owner_id = $2 AND slug = $3`
	return scanWallet(l.db.QueryRow(ctx, query, string(owner.Kind), owner.ID, slug))
}

// Balance returns the committed balance of the wallet.
func (l *PostgresLedger) Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := l.db.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1`, walletID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}
	return balance, nil
}

// Transactions lists the wallet's entries, newest first.
func (l *PostgresLedger) Transactions(ctx context.Context, walletID uuid.UUID, limit int) ([]Transaction, error) {
	if _, err := l.Balance(ctx, walletID); err != nil {
		return nil, err
	}

	const query = `SELECT ` + txColumns + ` FROM transactions
        WHERE wallet_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`
	rows, err := l.db.Query(ctx, query, walletID, historyLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Deposit credits the wallet.
func (l *PostgresLedger) Deposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, p Posting) (Transaction, error) {
	return l.post(ctx, walletID, amount, p, TypeDeposit)
}

// Withdraw debits the wallet, failing with ErrInsufficientBalance when the
// balance cannot cover amount.
func (l *PostgresLedger) Withdraw(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, p Posting) (Transaction, error) {
	return l.post(ctx, walletID, amount, p, TypeWithdraw)
}

func (l *PostgresLedger) post(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, p Posting, base TxType) (Transaction, error) {
	typ, err := postingType(base, p)
	if err != nil {
		return Transaction{}, err
	}

	var (
		posted Transaction
		wallet Wallet
	)
	err = l.retry(ctx, string(base), func(ctx context.Context) error {
		tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx) // nolint:errcheck

		w, err := scanWallet(tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, walletID))
		if err != nil {
			return err
		}

		if p.Reference != "" {
			existing, found, err := transactionByReference(ctx, tx, p.Reference)
			if err != nil {
				return err
			}
			if found {
				if existing.WalletID != walletID || existing.Type != typ {
					return fmt.Errorf("%w: %s", ErrReferenceConflict, p.Reference)
				}
				existing.Replayed = true
				posted, wallet = existing, w
				return nil
			}
			if _, found, err := transferByReference(ctx, tx, p.Reference); err != nil {
				return err
			} else if found {
				return fmt.Errorf("%w: %s", ErrReferenceConflict, p.Reference)
			}
		}

		if err := ValidateAmount(amount, w.DecimalPlaces); err != nil {
			return err
		}

		signed := amount
		if base == TypeWithdraw {
			if w.Balance.LessThan(amount) {
				return ErrInsufficientBalance
			}
			signed = amount.Neg()
		}

		entry, err := insertTransaction(ctx, tx, w.ID, typ, signed, p.Reference, p.Meta)
		if err != nil {
			return err
		}
		if w, err = applyBalance(ctx, tx, w.ID, signed); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}

		posted, wallet = entry, w
		return nil
	})
	if err != nil {
		return Transaction{}, err
	}

	if posted.Replayed {
		metrics.LedgerReplays.Inc()
		return posted, nil
	}
	metrics.LedgerPostings.WithLabelValues(string(posted.Type)).Inc()
	l.notify(ctx, wallet, posted)
	return posted, nil
}

// Transfer posts both legs and the transfer row in one database transaction.
// Wallets are locked in ascending id order.
func (l *PostgresLedger) Transfer(ctx context.Context, req TransferRequest) (Transfer, error) {
	if req.Status == "" {
		req.Status = StatusTransfer
	}

	var (
		out      Transfer
		from, to Wallet
	)
	err := l.retry(ctx, "transfer", func(ctx context.Context) error {
		tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx) // nolint:errcheck

		from, to, err = lockPair(ctx, tx, req.FromWalletID, req.ToWalletID)
		if err != nil {
			return err
		}

		if req.Reference != "" {
			existing, found, err := transferByReference(ctx, tx, req.Reference)
			if err != nil {
				return err
			}
			if found {
				if !sameTransfer(existing, req) {
					return fmt.Errorf("%w: %s", ErrReferenceConflict, req.Reference)
				}
				existing.Replayed = true
				out = existing
				return nil
			}
			if _, found, err := transactionByReference(ctx, tx, req.Reference); err != nil {
				return err
			} else if found {
				return fmt.Errorf("%w: %s", ErrReferenceConflict, req.Reference)
			}
		}

		if err := validateTransfer(req, from.DecimalPlaces); err != nil {
			return err
		}
		if err := ValidateAmount(req.Amount, to.DecimalPlaces); err != nil {
			return err
		}
		debit := req.Debit()
		if from.Balance.LessThan(debit) {
			return ErrInsufficientBalance
		}

		transferID := uuid.New()
		meta := withTransferID(req.Meta, transferID)

		withdraw, err := insertTransaction(ctx, tx, from.ID, TypeTransfer, debit.Neg(), "", meta)
		if err != nil {
			return fmt.Errorf("%w: withdraw leg: %w", ErrTransferLegFailure, err)
		}
		deposit, err := insertTransaction(ctx, tx, to.ID, TypeTransfer, req.Amount, "", meta)
		if err != nil {
			return fmt.Errorf("%w: deposit leg: %w", ErrTransferLegFailure, err)
		}
		if from, err = applyBalance(ctx, tx, from.ID, debit.Neg()); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferLegFailure, err)
		}
		if to, err = applyBalance(ctx, tx, to.ID, req.Amount); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferLegFailure, err)
		}

		t := Transfer{
			ID:           transferID,
			WithdrawID:   withdraw.ID,
			DepositID:    deposit.ID,
			Status:       req.Status,
			From:         from.Owner,
			To:           to.Owner,
			FromWalletID: from.ID,
			ToWalletID:   to.ID,
			Amount:       req.Amount,
			Fee:          req.Fee,
			Discount:     req.Discount,
			Reference:    req.Reference,
			Withdraw:     withdraw,
			Deposit:      deposit,
		}
		const insert = `INSERT INTO transfers (id, withdraw_id, deposit_id, status, from_kind, from_id, to_kind, to_id,
            from_wallet_id, to_wallet_id, amount, fee, discount, reference)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
            RETURNING created_at`
		if err := tx.QueryRow(ctx, insert, t.ID, t.WithdrawID, t.DepositID, string(t.Status),
			string(t.From.Kind), t.From.ID, string(t.To.Kind), t.To.ID, t.FromWalletID, t.ToWalletID,
			t.Amount, t.Fee, t.Discount, nullable(t.Reference)).Scan(&t.CreatedAt); err != nil {
			return fmt.Errorf("%w: %w", ErrTransferLegFailure, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}

	if out.Replayed {
		metrics.LedgerReplays.Inc()
		return out, nil
	}
	metrics.LedgerPostings.WithLabelValues(string(TypeTransfer)).Add(2)
	l.notify(ctx, from, out.Withdraw)
	l.notify(ctx, to, out.Deposit)
	return out, nil
}

// retry reruns fn while it fails with a retryable PostgreSQL error. Each
// attempt opens its own database transaction.
func (l *PostgresLedger) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= l.opts.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.LedgerRetries.WithLabelValues(op).Inc()
			l.opts.logger.WithFields(logrus.Fields{
				"operation": op,
				"attempt":   attempt,
			}).WithError(err).Debug("retrying ledger operation")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * l.opts.backoff):
			}
		}

		err = fn(ctx)
		if !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrConcurrentModification, err)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	case "23505":
		// A concurrent posting took the reference first; the next attempt
		// takes the replay path.
		return pgErr.ConstraintName == "transactions_reference_key" || pgErr.ConstraintName == "transfers_reference_key"
	default:
		return false
	}
}

func (l *PostgresLedger) normalizeSpec(spec WalletSpec) WalletSpec {
	if spec.Slug == "" {
		spec.Slug = DefaultSlug
	}
	if spec.Name == "" {
		spec.Name = spec.Slug
	}
	if spec.DecimalPlaces <= 0 {
		spec.DecimalPlaces = l.opts.decimalPlaces
	}
	return spec
}

func lockPair(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID) (Wallet, Wallet, error) {
	if fromID == toID {
		return Wallet{}, Wallet{}, fmt.Errorf("%w: source and destination are the same wallet", ErrInvalidAmount)
	}

	const query = `SELECT ` + walletColumns + ` FROM wallets WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := tx.Query(ctx, query, []uuid.UUID{fromID, toID})
	if err != nil {
		return Wallet{}, Wallet{}, err
	}
	defer rows.Close()

	var from, to Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return Wallet{}, Wallet{}, err
		}
		switch w.ID {
		case fromID:
			from = w
		case toID:
			to = w
		}
	}
	if err := rows.Err(); err != nil {
		return Wallet{}, Wallet{}, err
	}
	if from.ID == uuid.Nil {
		return Wallet{}, Wallet{}, fmt.Errorf("source: %w", ErrWalletNotFound)
	}
	if to.ID == uuid.Nil {
		return Wallet{}, Wallet{}, fmt.Errorf("destination: %w", ErrWalletNotFound)
	}
	return from, to, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, typ TxType, amount decimal.Decimal, reference string, meta map[string]any) (Transaction, error) {
	entry := Transaction{
		ID:        uuid.New(),
		WalletID:  walletID,
		Type:      typ,
		Amount:    amount,
		Confirmed: true,
		Reference: reference,
		Meta:      meta,
	}
	const insert = `INSERT INTO transactions (id, wallet_id, type, amount, confirmed, reference, meta)
        VALUES ($1, $2, $3, $4, TRUE, $5, $6)
        RETURNING created_at`
	if err := tx.QueryRow(ctx, insert, entry.ID, walletID, string(typ), amount, nullable(reference), metaOrEmpty(meta)).Scan(&entry.CreatedAt); err != nil {
		return Transaction{}, err
	}
	return entry, nil
}

func applyBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, delta decimal.Decimal) (Wallet, error) {
	const update = `UPDATE wallets SET balance = balance + $2, updated_at = now()
        WHERE id = $1
        RETURNING ` + walletColumns
	return scanWallet(tx.QueryRow(ctx, update, walletID, delta))
}

func transactionByReference(ctx context.Context, tx pgx.Tx, reference string) (Transaction, bool, error) {
	entry, err := scanTransaction(tx.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE reference = $1`, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, err
	}
	return entry, true, nil
}

func transferByReference(ctx context.Context, tx pgx.Tx, reference string) (Transfer, bool, error) {
	var (
		t                Transfer
		status, from, to string
		ref              *string
	)
	err := tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE reference = $1`, reference).Scan(
		&t.ID, &t.WithdrawID, &t.DepositID, &status, &from, &t.From.ID, &to, &t.To.ID,
		&t.FromWalletID, &t.ToWalletID, &t.Amount, &t.Fee, &t.Discount, &ref, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, false, nil
	}
	if err != nil {
		return Transfer{}, false, err
	}
	t.Status = TransferStatus(status)
	t.From.Kind = OwnerKind(from)
	t.To.Kind = OwnerKind(to)
	if ref != nil {
		t.Reference = *ref
	}
	return t, true, nil
}

// ScanWallet scans a row selected with the wallet columns in table order
// (id, owner_kind, owner_id, name, slug, balance, decimal_places, meta,
// created_at, updated_at).
func ScanWallet(row pgx.Row) (Wallet, error) {
	return scanWallet(row)
}

func scanWallet(row pgx.Row) (Wallet, error) {
	var (
		w    Wallet
		kind string
	)
	err := row.Scan(&w.ID, &kind, &w.Owner.ID, &w.Name, &w.Slug, &w.Balance, &w.DecimalPlaces, &w.Meta, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.Owner.Kind = OwnerKind(kind)
	return w, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		entry Transaction
		typ   string
		ref   *string
	)
	if err := row.Scan(&entry.ID, &entry.WalletID, &typ, &entry.Amount, &entry.Confirmed, &ref, &entry.Meta, &entry.CreatedAt); err != nil {
		return Transaction{}, err
	}
	entry.Type = TxType(typ)
	if ref != nil {
		entry.Reference = *ref
	}
	return entry, nil
}

func sameTransfer(t Transfer, req TransferRequest) bool {
	return t.FromWalletID == req.FromWalletID && t.ToWalletID == req.ToWalletID && t.Amount.Equal(req.Amount)
}

func withTransferID(meta map[string]any, id uuid.UUID) map[string]any {
	out := make(map[string]any, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["transfer_id"] = id.String()
	return out
}

func metaOrEmpty(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func historyLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultHistoryLimit
	case limit > maxHistoryLimit:
		return maxHistoryLimit
	default:
		return limit
	}
}
