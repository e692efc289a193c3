package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/congo_save/internal/events"
	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/logging"
	"github.com/congo-pay/congo_save/internal/savings"
)

type fixture struct {
	ledger  *ledger.InMemoryLedger
	repo    savings.Repository
	savings *savings.Service
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.NewInMemory()
	repo := savings.NewMemoryRepository()
	sv := savings.NewService(repo, l, events.Discard, logging.Discard())
	return &fixture{ledger: l, repo: repo, savings: sv, svc: NewService(l, sv, sv, logging.Discard())}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	w, err := f.svc.Open(ctx, user)
	require.NoError(t, err)

	res, err := f.svc.Deposit(ctx, PostingInput{WalletID: w.ID, UserID: user, Amount: d("200")})
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(d("200")))

	res, err = f.svc.Deposit(ctx, PostingInput{WalletID: w.ID, UserID: user, Amount: d("500"), Reference: "dep-1"})
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(d("700")))

	res, err = f.svc.Deposit(ctx, PostingInput{WalletID: w.ID, UserID: user, Amount: d("500"), Reference: "dep-1"})
	require.NoError(t, err)
	assert.True(t, res.Transaction.Replayed)
	assert.True(t, res.Balance.Equal(d("700")))

	_, err = f.svc.Withdraw(ctx, PostingInput{WalletID: w.ID, UserID: user, Amount: d("800")})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	res, err = f.svc.Withdraw(ctx, PostingInput{WalletID: w.ID, UserID: user, Amount: d("300"), DestinationAccount: "CM21-0001"})
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(d("400")))
	assert.Equal(t, "CM21-0001", res.Transaction.Meta[savings.DestinationAccountMeta])

	txs, err := f.svc.Transactions(ctx, user, w.ID, 10)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, ledger.TypeWithdraw, txs[0].Type)
	assert.True(t, f.ledger.Sum(w.ID).Equal(d("400")))
}

func TestForeignWalletIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()
	w, err := ledger.SeedWallet(ctx, f.ledger, ledger.UserOwner(owner), "50")
	require.NoError(t, err)

	_, err = f.svc.Withdraw(ctx, PostingInput{WalletID: w.ID, UserID: other, Amount: d("10")})
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = f.svc.Balance(ctx, other, w.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = f.svc.Balance(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)

	b, err := f.svc.Balance(ctx, owner, w.ID)
	require.NoError(t, err)
	assert.True(t, b.Amount.Equal(d("50")))
}

func TestWithdrawFromLockedSaving(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	vault := savings.Plan{ID: uuid.New(), Name: "vault", Kind: savings.PlanVault, InterestRate: d("12"), MinLockDays: 90}
	require.NoError(t, f.repo.CreatePlan(ctx, vault))
	_, sw, err := f.savings.CreateSaving(ctx, savings.CreateInput{
		UserID: user, PlanID: vault.ID, Name: "house", Target: d("1000"),
	})
	require.NoError(t, err)

	_, err = f.svc.Deposit(ctx, PostingInput{WalletID: sw.ID, UserID: user, Amount: d("100")})
	require.NoError(t, err)

	_, err = f.svc.Withdraw(ctx, PostingInput{WalletID: sw.ID, UserID: user, Amount: d("10")})
	assert.ErrorIs(t, err, savings.ErrLocked)
	assert.True(t, f.ledger.Sum(sw.ID).Equal(d("100")))
}

func TestCreditSkipsOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w, err := f.svc.Open(ctx, uuid.New())
	require.NoError(t, err)

	res, err := f.svc.Credit(ctx, w.ID, d("25"), "gateway:abc", map[string]any{"source": "gateway"})
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(d("25")))

	mine, err := f.svc.Mine(ctx, w.Owner.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, mine.ID)
}
