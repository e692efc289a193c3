package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/ledger"
)

var (
	// ErrNotOwner indicates the caller does not own the source wallet.
	ErrNotOwner = errors.New("not owner of source wallet")

	// ErrNoDestination is returned when neither a wallet nor a user is given.
	ErrNoDestination = errors.New("destination wallet or user is required")
	ErrSameWallet    = errors.New("source and destination are the same wallet")

	// ErrAmbiguousDestination is returned when both a wallet and a user are
	// given.
	ErrAmbiguousDestination = errors.New("give either a destination wallet or a user, not both")
)

// WithdrawalGuard vetoes money leaving locked wallets.
type WithdrawalGuard interface {
	CheckWithdrawal(ctx context.Context, owner ledger.Owner) error
}

// Service moves money between wallets in one all-or-nothing ledger transfer.
type Service struct {
	ledger ledger.Ledger
	owners ledger.OwnerResolver
	guard  WithdrawalGuard
	fees   FeeTable
	logger logrus.FieldLogger
}

// NewService constructs a transfer service. guard may be nil.
func NewService(l ledger.Ledger, owners ledger.OwnerResolver, guard WithdrawalGuard, fees FeeTable, logger logrus.FieldLogger) *Service {
	return &Service{ledger: l, owners: owners, guard: guard, fees: fees, logger: logger}
}

// Input captures the data needed to move funds. Exactly one of ToWalletID
// and ToUserID names the destination; a user resolves to their default
// wallet.
type Input struct {
	FromWalletID    uuid.UUID
	ToWalletID      uuid.UUID
	ToUserID        uuid.UUID
	Amount          decimal.Decimal
	Reference       string
	RequestorUserID uuid.UUID
	Description     string
}

// Result describes the committed transfer.
type Result struct {
	Transfer    ledger.Transfer `json:"transfer"`
	FromBalance decimal.Decimal `json:"from_balance"`
}

// Transfer debits amount plus fee minus discount from the source and credits
// amount to the destination. Moving money between wallets of the same user
// is fee free.
func (s *Service) Transfer(ctx context.Context, in Input) (Result, error) {
	if !in.Amount.IsPositive() {
		return Result{}, fmt.Errorf("%w: amount must be positive", ledger.ErrInvalidAmount)
	}
	if in.ToWalletID != uuid.Nil && in.ToUserID != uuid.Nil {
		return Result{}, ErrAmbiguousDestination
	}

	from, err := s.ledger.Wallet(ctx, in.FromWalletID)
	if err != nil {
		return Result{}, fmt.Errorf("source: %w", err)
	}
	sender, err := s.owners.UserFor(ctx, from.Owner)
	if err != nil {
		return Result{}, fmt.Errorf("resolve source owner: %w", err)
	}
	if sender != in.RequestorUserID {
		return Result{}, ErrNotOwner
	}
	if s.guard != nil {
		if err := s.guard.CheckWithdrawal(ctx, from.Owner); err != nil {
			return Result{}, err
		}
	}

	to, err := s.destination(ctx, in)
	if err != nil {
		return Result{}, err
	}
	if to.ID == from.ID {
		return Result{}, ErrSameWallet
	}
	recipient, err := s.owners.UserFor(ctx, to.Owner)
	if err != nil {
		return Result{}, fmt.Errorf("resolve destination owner: %w", err)
	}

	fee := s.fees.Fee(in.Amount, from.DecimalPlaces)
	discount := decimal.Zero
	if recipient == sender {
		discount = fee
	}
	status := ledger.StatusTransfer
	if to.Owner.Kind != ledger.OwnerUser {
		status = ledger.StatusPaid
	}

	meta := map[string]any{"requested_by": in.RequestorUserID.String()}
	if in.Description != "" {
		meta["description"] = in.Description
	}
	t, err := s.ledger.Transfer(ctx, ledger.TransferRequest{
		FromWalletID: from.ID,
		ToWalletID:   to.ID,
		Amount:       in.Amount,
		Fee:          fee,
		Discount:     discount,
		Status:       status,
		Reference:    ledger.ClientReference(in.RequestorUserID, in.Reference),
		Meta:         meta,
	})
	if err != nil {
		return Result{}, err
	}

	balance, err := s.ledger.Balance(ctx, from.ID)
	if err != nil {
		return Result{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"transfer_id": t.ID,
		"from_wallet": from.ID,
		"to_wallet":   to.ID,
		"amount":      in.Amount.String(),
		"fee":         fee.String(),
		"replayed":    t.Replayed,
	}).Info("transfer completed")
	return Result{Transfer: t, FromBalance: balance}, nil
}

func (s *Service) destination(ctx context.Context, in Input) (ledger.Wallet, error) {
	switch {
	case in.ToWalletID != uuid.Nil:
		w, err := s.ledger.Wallet(ctx, in.ToWalletID)
		if err != nil {
			return ledger.Wallet{}, fmt.Errorf("destination: %w", err)
		}
		return w, nil
	case in.ToUserID != uuid.Nil:
		w, err := s.ledger.WalletByOwner(ctx, ledger.UserOwner(in.ToUserID), ledger.DefaultSlug)
		if err != nil {
			return ledger.Wallet{}, fmt.Errorf("destination: %w", err)
		}
		return w, nil
	default:
		return ledger.Wallet{}, ErrNoDestination
	}
}
