package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedWallet creates the owner's default wallet and deposits balance into it.
// It is a test helper; the deposit goes through the regular posting path so
// the balance invariant holds.
func SeedWallet(ctx context.Context, l Ledger, owner Owner, balance string) (Wallet, error) {
	w, err := l.EnsureWallet(ctx, owner, WalletSpec{})
	if err != nil {
		return Wallet{}, err
	}
	amount := decimal.RequireFromString(balance)
	if amount.IsPositive() {
		if _, err := l.Deposit(ctx, w.ID, amount, Posting{Reference: "seed:" + uuid.NewString()}); err != nil {
			return Wallet{}, err
		}
	}
	return l.Wallet(ctx, w.ID)
}
