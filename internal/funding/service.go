package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/wallet"
)

// Gateway statuses that confirm funds were captured.
const (
	statusSucceeded = "succeeded"
	statusSuccess   = "success"
)

var (
	// ErrNotSettled marks notifications for payments that did not capture
	// funds. They are acknowledged and ignored.
	ErrNotSettled = errors.New("payment not settled")

	// ErrInvalidSettlement rejects notifications missing required fields.
	ErrInvalidSettlement = errors.New("invalid settlement")
)

// Settlement is a confirmed gateway payment into a wallet.
type Settlement struct {
	Reference string
	WalletID  uuid.UUID
	Amount    decimal.Decimal
	Status    string
	Channel   string
}

// Service turns gateway settlements into idempotent wallet deposits.
type Service struct {
	wallets *wallet.Service
	logger  logrus.FieldLogger
}

// NewService prepares a settlement intake service.
func NewService(wallets *wallet.Service, logger logrus.FieldLogger) (*Service, error) {
	if wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	return &Service{wallets: wallets, logger: logger}, nil
}

// Settle deposits a settled payment. The gateway reference becomes the
// ledger reference, so redelivered notifications replay.
func (s *Service) Settle(ctx context.Context, in Settlement) (wallet.Result, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	if in.Reference == "" {
		return wallet.Result{}, fmt.Errorf("%w: reference is required", ErrInvalidSettlement)
	}
	if in.WalletID == uuid.Nil {
		return wallet.Result{}, fmt.Errorf("%w: wallet is required", ErrInvalidSettlement)
	}
	switch strings.ToLower(in.Status) {
	case statusSucceeded, statusSuccess:
	default:
		s.logger.WithFields(logrus.Fields{
			"reference": in.Reference,
			"status":    in.Status,
		}).Info("ignoring unsettled gateway payment")
		return wallet.Result{}, ErrNotSettled
	}

	meta := map[string]any{
		"source":            "gateway",
		"gateway_reference": in.Reference,
	}
	if in.Channel != "" {
		meta["channel"] = in.Channel
	}
	res, err := s.wallets.Credit(ctx, in.WalletID, in.Amount, "gateway:"+in.Reference, meta)
	if err != nil {
		return wallet.Result{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"reference": in.Reference,
		"wallet_id": in.WalletID,
		"replayed":  res.Transaction.Replayed,
	}).Info("gateway settlement posted")
	return res, nil
}
