package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/savings"
)

// WithdrawalGuard vetoes withdrawals from wallets that are still locked.
type WithdrawalGuard interface {
	CheckWithdrawal(ctx context.Context, owner ledger.Owner) error
}

// Service exposes wallet operations on top of the ledger for API callers.
type Service struct {
	ledger ledger.Ledger
	owners ledger.OwnerResolver
	guard  WithdrawalGuard
	logger logrus.FieldLogger
}

// NewService builds a wallet service instance.
func NewService(l ledger.Ledger, owners ledger.OwnerResolver, guard WithdrawalGuard, logger logrus.FieldLogger) *Service {
	return &Service{ledger: l, owners: owners, guard: guard, logger: logger}
}

// Open returns the user's default wallet, creating it on first use.
func (s *Service) Open(ctx context.Context, userID uuid.UUID) (ledger.Wallet, error) {
	return s.ledger.EnsureWallet(ctx, ledger.UserOwner(userID), ledger.WalletSpec{Name: "Main"})
}

// Mine returns the user's default wallet.
func (s *Service) Mine(ctx context.Context, userID uuid.UUID) (ledger.Wallet, error) {
	return s.ledger.WalletByOwner(ctx, ledger.UserOwner(userID), ledger.DefaultSlug)
}

// Deposit credits a wallet the user controls.
func (s *Service) Deposit(ctx context.Context, in PostingInput) (Result, error) {
	if _, err := s.owned(ctx, in.WalletID, in.UserID); err != nil {
		return Result{}, err
	}
	meta := map[string]any{"requested_by": in.UserID.String()}
	if in.Description != "" {
		meta["description"] = in.Description
	}
	return s.Credit(ctx, in.WalletID, in.Amount, ledger.ClientReference(in.UserID, in.Reference), meta)
}

// Credit deposits into any wallet without an ownership check. It serves
// trusted callers such as settlement intake.
func (s *Service) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, reference string, meta map[string]any) (Result, error) {
	tx, err := s.ledger.Deposit(ctx, walletID, amount, ledger.Posting{Reference: reference, Meta: meta})
	if err != nil {
		return Result{}, err
	}
	return s.result(ctx, tx)
}

// Withdraw debits a wallet the user controls, honouring saving locks.
func (s *Service) Withdraw(ctx context.Context, in PostingInput) (Result, error) {
	w, err := s.owned(ctx, in.WalletID, in.UserID)
	if err != nil {
		return Result{}, err
	}
	if err := s.guard.CheckWithdrawal(ctx, w.Owner); err != nil {
		return Result{}, err
	}

	meta := map[string]any{"requested_by": in.UserID.String()}
	if in.Description != "" {
		meta["description"] = in.Description
	}
	if in.DestinationAccount != "" {
		meta[savings.DestinationAccountMeta] = in.DestinationAccount
	}
	ref := ledger.ClientReference(in.UserID, in.Reference)
	tx, err := s.ledger.Withdraw(ctx, w.ID, in.Amount, ledger.Posting{Reference: ref, Meta: meta})
	if err != nil {
		return Result{}, err
	}
	return s.result(ctx, tx)
}

// Balance returns the current balance of a wallet the user controls.
func (s *Service) Balance(ctx context.Context, userID, walletID uuid.UUID) (Balance, error) {
	w, err := s.owned(ctx, walletID, userID)
	if err != nil {
		return Balance{}, err
	}
	amount, err := s.ledger.Balance(ctx, w.ID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Amount: amount, DecimalPlaces: w.DecimalPlaces}, nil
}

// Transactions lists the newest entries of a wallet the user controls.
func (s *Service) Transactions(ctx context.Context, userID, walletID uuid.UUID, limit int) ([]ledger.Transaction, error) {
	if _, err := s.owned(ctx, walletID, userID); err != nil {
		return nil, err
	}
	return s.ledger.Transactions(ctx, walletID, limit)
}

func (s *Service) owned(ctx context.Context, walletID, userID uuid.UUID) (ledger.Wallet, error) {
	w, err := s.ledger.Wallet(ctx, walletID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	owner, err := s.owners.UserFor(ctx, w.Owner)
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("resolve wallet owner: %w", err)
	}
	if owner != userID {
		return ledger.Wallet{}, ErrNotOwner
	}
	return w, nil
}

func (s *Service) result(ctx context.Context, tx ledger.Transaction) (Result, error) {
	balance, err := s.ledger.Balance(ctx, tx.WalletID)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return Result{}, err
		}
		s.logger.WithError(err).WithField("wallet_id", tx.WalletID).Warn("balance lookup after posting failed")
		return Result{Transaction: tx}, nil
	}
	return Result{Transaction: tx, Balance: balance}, nil
}
