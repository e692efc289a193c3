package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance occurs when the source wallet cannot cover a
	// withdrawal or the debit leg of a transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrWalletNotFound is returned when no wallet matches the lookup.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInvalidAmount rejects non-positive amounts and amounts carrying more
	// decimal places than the wallet allows.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrConcurrentModification surfaces once lock or serialization conflicts
	// outlast the retry budget.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrTransferLegFailure means one leg of a transfer could not be written;
	// neither leg is committed.
	ErrTransferLegFailure = errors.New("transfer leg failure")

	// ErrReferenceConflict indicates a reference that was already used for a
	// different wallet or operation.
	ErrReferenceConflict = errors.New("reference already used")
)

// Ledger is the only writer of wallet balances. Every posting updates the
// balance and appends a confirmed transaction in one unit of work.
type Ledger interface {
	EnsureWallet(ctx context.Context, owner Owner, spec WalletSpec) (Wallet, error)
	Wallet(ctx context.Context, id uuid.UUID) (Wallet, error)
	WalletByOwner(ctx context.Context, owner Owner, slug string) (Wallet, error)
	Deposit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, p Posting) (Transaction, error)
	Withdraw(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, p Posting) (Transaction, error)
	Balance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
	Transactions(ctx context.Context, walletID uuid.UUID, limit int) ([]Transaction, error)
	Transfer(ctx context.Context, req TransferRequest) (Transfer, error)
}

// Observer is notified after a posting commits. wallet carries the balance
// after the posting; errors are logged by the ledger and never returned to
// the caller of the posting.
type Observer interface {
	TransactionPosted(ctx context.Context, wallet Wallet, tx Transaction) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, wallet Wallet, tx Transaction) error

// TransactionPosted calls f.
func (f ObserverFunc) TransactionPosted(ctx context.Context, wallet Wallet, tx Transaction) error {
	return f(ctx, wallet, tx)
}

// OwnerResolver maps a wallet owner to the user that controls it.
type OwnerResolver interface {
	UserFor(ctx context.Context, owner Owner) (uuid.UUID, error)
}
