package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestInMemoryLedger_EnsureWalletIsIdempotent(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	owner := UserOwner(uuid.New())

	first, err := l.EnsureWallet(ctx, owner, WalletSpec{Name: "Main"})
	require.NoError(t, err)
	second, err := l.EnsureWallet(ctx, owner, WalletSpec{Name: "Other"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, DefaultSlug, second.Slug)
	assert.Equal(t, int32(2), second.DecimalPlaces)

	_, err = l.WalletByOwner(ctx, owner, "vault")
	assert.ErrorIs(t, err, ErrWalletNotFound)
}

func TestInMemoryLedger_DepositAndWithdraw(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	w, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "200")
	require.NoError(t, err)

	_, err = l.Deposit(ctx, w.ID, dec("500"), Posting{})
	require.NoError(t, err)
	balance, err := l.Balance(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("700")), "balance %s", balance)

	_, err = l.Withdraw(ctx, w.ID, dec("800"), Posting{})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	tx, err := l.Withdraw(ctx, w.ID, dec("300"), Posting{})
	require.NoError(t, err)
	assert.True(t, tx.Amount.Equal(dec("-300")))
	assert.Equal(t, TypeWithdraw, tx.Type)

	balance, _ = l.Balance(ctx, w.ID)
	assert.True(t, balance.Equal(dec("400")))
	assert.True(t, balance.Equal(l.Sum(w.ID)))
}

func TestInMemoryLedger_WithdrawMoreThanBalanceLeavesNoEntry(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	w, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "200")
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, w.ID, dec("300"), Posting{})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	history, err := l.Transactions(ctx, w.ID, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	balance, _ := l.Balance(ctx, w.ID)
	assert.True(t, balance.Equal(dec("200")))
}

func TestInMemoryLedger_InvalidAmounts(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	w, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "10")
	require.NoError(t, err)

	for _, amount := range []string{"0", "-5", "1.005"} {
		_, err := l.Deposit(ctx, w.ID, dec(amount), Posting{})
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}

	_, err = l.Deposit(ctx, uuid.New(), dec("1"), Posting{})
	assert.ErrorIs(t, err, ErrWalletNotFound)

	_, err = l.Withdraw(ctx, w.ID, dec("1"), Posting{Type: TypeInterest})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestInMemoryLedger_DepositReplaysReference(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	w, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "0")
	require.NoError(t, err)
	other, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "0")
	require.NoError(t, err)

	first, err := l.Deposit(ctx, w.ID, dec("25"), Posting{Reference: "gateway:abc"})
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := l.Deposit(ctx, w.ID, dec("25"), Posting{Reference: "gateway:abc"})
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ID, second.ID)

	balance, _ := l.Balance(ctx, w.ID)
	assert.True(t, balance.Equal(dec("25")))

	_, err = l.Deposit(ctx, other.ID, dec("25"), Posting{Reference: "gateway:abc"})
	assert.ErrorIs(t, err, ErrReferenceConflict)
	_, err = l.Withdraw(ctx, w.ID, dec("5"), Posting{Reference: "gateway:abc"})
	assert.ErrorIs(t, err, ErrReferenceConflict)
}

func TestInMemoryLedger_TransferWithFee(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "150")
	require.NoError(t, err)
	b, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "50")
	require.NoError(t, err)

	tr, err := l.Transfer(ctx, TransferRequest{
		FromWalletID: a.ID,
		ToWalletID:   b.ID,
		Amount:       dec("100"),
		Fee:          dec("2"),
		Reference:    "t-1",
	})
	require.NoError(t, err)

	balA, _ := l.Balance(ctx, a.ID)
	balB, _ := l.Balance(ctx, b.ID)
	assert.True(t, balA.Equal(dec("48")), "A=%s", balA)
	assert.True(t, balB.Equal(dec("150")), "B=%s", balB)

	assert.True(t, tr.Withdraw.Amount.Equal(dec("-102")))
	assert.True(t, tr.Deposit.Amount.Equal(dec("100")))
	assert.True(t, tr.Withdraw.Amount.Add(tr.Deposit.Amount).Equal(tr.Fee.Sub(tr.Discount).Neg()))
	assert.Equal(t, StatusTransfer, tr.Status)
	assert.Equal(t, tr.ID.String(), tr.Deposit.Meta["transfer_id"])

	replay, err := l.Transfer(ctx, TransferRequest{FromWalletID: a.ID, ToWalletID: b.ID, Amount: dec("100"), Fee: dec("2"), Reference: "t-1"})
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, tr.ID, replay.ID)
	balA, _ = l.Balance(ctx, a.ID)
	assert.True(t, balA.Equal(dec("48")))
}

func TestInMemoryLedger_FailedTransferLeavesBalances(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	a, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "100")
	require.NoError(t, err)
	b, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "0")
	require.NoError(t, err)

	_, err = l.Transfer(ctx, TransferRequest{FromWalletID: a.ID, ToWalletID: b.ID, Amount: dec("99"), Fee: dec("2")})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = l.Transfer(ctx, TransferRequest{FromWalletID: a.ID, ToWalletID: uuid.New(), Amount: dec("10")})
	assert.ErrorIs(t, err, ErrWalletNotFound)

	_, err = l.Transfer(ctx, TransferRequest{FromWalletID: a.ID, ToWalletID: a.ID, Amount: dec("10")})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	balA, _ := l.Balance(ctx, a.ID)
	balB, _ := l.Balance(ctx, b.ID)
	assert.True(t, balA.Equal(dec("100")))
	assert.True(t, balB.IsZero())
}

func TestInMemoryLedger_ConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	w, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "1000")
	require.NoError(t, err)

	const workers = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Withdraw(ctx, w.ID, dec("50"), Posting{Reference: fmt.Sprintf("w-%d", i)})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInsufficientBalance) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	balance, _ := l.Balance(ctx, w.ID)
	assert.True(t, balance.IsZero())
	assert.True(t, balance.Equal(l.Sum(w.ID)))
}

func TestInMemoryLedger_NotifiesObserversAfterPosting(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	var seen []decimal.Decimal
	l.Observe(ObserverFunc(func(_ context.Context, w Wallet, tx Transaction) error {
		seen = append(seen, w.Balance.Sub(tx.Amount))
		return errors.New("observer failures are swallowed")
	}))

	w, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "10")
	require.NoError(t, err)
	_, err = l.Deposit(ctx, w.ID, dec("5"), Posting{Reference: "r"})
	require.NoError(t, err)
	_, err = l.Deposit(ctx, w.ID, dec("5"), Posting{Reference: "r"})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.True(t, seen[0].IsZero())
	assert.True(t, seen[1].Equal(dec("10")))
}

func TestInMemoryLedger_TransactionsNewestFirst(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	w, err := SeedWallet(ctx, l, UserOwner(uuid.New()), "0")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := l.Deposit(ctx, w.ID, decimal.NewFromInt(int64(i)), Posting{})
		require.NoError(t, err)
	}

	history, err := l.Transactions(ctx, w.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Amount.Equal(dec("3")))
	assert.True(t, history[1].Amount.Equal(dec("2")))
}
