package interest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type staticRates map[uuid.UUID]decimal.Decimal

func (r staticRates) RateFor(_ context.Context, owner ledger.Owner) (decimal.Decimal, error) {
	if owner.Kind != ledger.OwnerSaving {
		return decimal.Zero, nil
	}
	rate, ok := r[owner.ID]
	if !ok {
		return decimal.Zero, errors.New("saving not found")
	}
	return rate, nil
}

type fixture struct {
	clock  *fakeClock
	ledger *ledger.InMemoryLedger
	repo   Repository
	rates  staticRates
	engine *Engine
}

func newFixture(t *testing.T, pageSize int) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	l := ledger.NewInMemory(ledger.WithClock(clock.Now))
	repo := NewMemoryRepository(l.Wallets)
	rates := staticRates{}
	engine := NewEngine(repo, l, rates, logging.Discard(), pageSize).WithClock(clock.Now)
	return &fixture{clock: clock, ledger: l, repo: repo, rates: rates, engine: engine}
}

func (f *fixture) savingWallet(t *testing.T, rate string) ledger.Wallet {
	t.Helper()
	id := uuid.New()
	f.rates[id] = decimal.RequireFromString(rate)
	w, err := f.ledger.EnsureWallet(context.Background(), ledger.SavingOwner(id), ledger.WalletSpec{})
	require.NoError(t, err)
	return w
}

func TestAccrueFirstCheckOnlyCreatesState(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	w := f.savingWallet(t, "12")

	st, err := f.engine.Accrue(ctx, w.ID, decimal.NewFromInt(1000), decimal.NewFromInt(12))
	require.NoError(t, err)
	assert.True(t, st.Amount.IsZero())
	assert.Equal(t, f.clock.Now(), st.LastEarned)
}

func TestAccrueNoDoubleCountingWithinWindow(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	w := f.savingWallet(t, "12")
	balance, rate := decimal.NewFromInt(1000), decimal.NewFromInt(12)

	_, err := f.engine.Accrue(ctx, w.ID, balance, rate)
	require.NoError(t, err)

	f.clock.Advance(30 * day)
	first, err := f.engine.Accrue(ctx, w.ID, balance, rate)
	require.NoError(t, err)
	second, err := f.engine.Accrue(ctx, w.ID, balance, rate)
	require.NoError(t, err)

	assert.True(t, first.Amount.Equal(second.Amount))
	got, _ := first.Amount.Float64()
	assert.InDelta(t, 9.9102, got, 0.001)
}

func TestAccrueCarriesPartialDay(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	w := f.savingWallet(t, "10")
	start := f.clock.Now()

	_, err := f.engine.Accrue(ctx, w.ID, decimal.NewFromInt(100), decimal.NewFromInt(10))
	require.NoError(t, err)

	f.clock.Advance(36 * time.Hour)
	st, err := f.engine.Accrue(ctx, w.ID, decimal.NewFromInt(100), decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, start.Add(day), st.LastEarned)

	f.clock.Advance(12 * time.Hour)
	st, err = f.engine.Accrue(ctx, w.ID, decimal.NewFromInt(100), decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, start.Add(2*day), st.LastEarned)
}

func TestObserverAccruesOnBalanceBeforePosting(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.ledger.Observe(f.engine)
	w := f.savingWallet(t, "12")

	_, err := f.ledger.Deposit(ctx, w.ID, decimal.NewFromInt(1000), ledger.Posting{})
	require.NoError(t, err)

	f.clock.Advance(30 * day)
	_, err = f.ledger.Deposit(ctx, w.ID, decimal.NewFromInt(5000), ledger.Posting{})
	require.NoError(t, err)

	st, found, err := f.repo.Get(ctx, w.ID)
	require.NoError(t, err)
	require.True(t, found)
	got, _ := st.Amount.Float64()
	assert.InDelta(t, 9.9102, got, 0.001)
}

func TestObserverIgnoresUserWallets(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	f.ledger.Observe(f.engine)

	w, err := ledger.SeedWallet(ctx, f.ledger, ledger.UserOwner(uuid.New()), "100")
	require.NoError(t, err)

	_, found, err := f.repo.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPayoutCreditsTruncatedAccumulatorMonthly(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()
	w := f.savingWallet(t, "12")
	_, err := f.ledger.Deposit(ctx, w.ID, decimal.NewFromInt(1000), ledger.Posting{})
	require.NoError(t, err)

	_, err = f.engine.Accrue(ctx, w.ID, decimal.NewFromInt(1000), decimal.NewFromInt(12))
	require.NoError(t, err)

	f.clock.Advance(15 * day)
	_, paid, err := f.engine.Payout(ctx, w)
	require.NoError(t, err)
	assert.False(t, paid, "payout before a month has passed")

	f.clock.Advance(16 * day)
	_, err = f.engine.Accrue(ctx, w.ID, decimal.NewFromInt(1000), decimal.NewFromInt(12))
	require.NoError(t, err)
	before, _, _ := f.repo.Get(ctx, w.ID)

	tx, paid, err := f.engine.Payout(ctx, w)
	require.NoError(t, err)
	require.True(t, paid)
	assert.Equal(t, ledger.TypeInterest, tx.Type)
	assert.True(t, tx.Amount.Equal(before.Amount.Truncate(2)))

	after, _, _ := f.repo.Get(ctx, w.ID)
	assert.True(t, after.Amount.Equal(before.Amount.Sub(tx.Amount)))
	assert.True(t, after.Amount.LessThan(decimal.RequireFromString("0.01")))
	assert.Equal(t, f.clock.Now(), after.LastPayout)

	balance, _ := f.ledger.Balance(ctx, w.ID)
	assert.True(t, balance.Equal(decimal.NewFromInt(1000).Add(tx.Amount)))

	_, paid, err = f.engine.Payout(ctx, w)
	require.NoError(t, err)
	assert.False(t, paid)
}

func TestSweepPagesAndIsolatesFailures(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	var wallets []ledger.Wallet
	for i := 0; i < 5; i++ {
		w := f.savingWallet(t, "12")
		_, err := f.ledger.Deposit(ctx, w.ID, decimal.NewFromInt(1000), ledger.Posting{})
		require.NoError(t, err)
		wallets = append(wallets, w)
	}
	// A saving whose rate cannot be resolved fails alone.
	broken := wallets[2]
	delete(f.rates, broken.Owner.ID)

	_, err := ledger.SeedWallet(ctx, f.ledger, ledger.UserOwner(uuid.New()), "1000")
	require.NoError(t, err)

	report, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Pages)

	f.clock.Advance(10 * day)
	report, err = f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Accrued)

	first, _, _ := f.repo.Get(ctx, wallets[0].ID)
	again, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Accrued)
	second, _, _ := f.repo.Get(ctx, wallets[0].ID)
	assert.True(t, first.Amount.Equal(second.Amount), "sweeping twice in one window must not double accrue")
}

func TestSweepStopsWhenCancelled(t *testing.T) {
	f := newFixture(t, 1)
	f.savingWallet(t, "5")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
