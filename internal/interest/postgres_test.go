package interest_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/congo_save/internal/events"
	"github.com/congo-pay/congo_save/internal/interest"
	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/logging"
	"github.com/congo-pay/congo_save/internal/savings"
	"github.com/congo-pay/congo_save/internal/testutil"
)

type flatRate decimal.Decimal

func (r flatRate) RateFor(context.Context, ledger.Owner) (decimal.Decimal, error) {
	return decimal.Decimal(r), nil
}

func TestPostgresRepository_ConcurrentAccrualCountsOnce(t *testing.T) {
	db := testutil.SetupTestDatabase(t)
	ctx := context.Background()

	l := ledger.NewPostgresLedger(db.Pool)
	repo := savings.NewPostgresRepository(db.Pool)
	svc := savings.NewService(repo, l, events.Discard, logging.Discard())
	plan := savings.Plan{ID: uuid.New(), Name: "Vault", Kind: savings.PlanVault, InterestRate: decimal.NewFromInt(12), MinLockDays: 30}
	require.NoError(t, repo.CreatePlan(ctx, plan))

	user := uuid.New()
	_, err := db.Pool.Exec(ctx, `INSERT INTO users (id, email, pin_hash) VALUES ($1, $2, 'x')`, user, user.String()+"@example.com")
	require.NoError(t, err)
	_, w, err := svc.CreateSaving(ctx, savings.CreateInput{UserID: user, PlanID: plan.ID, Name: "House", Target: decimal.NewFromInt(5000)})
	require.NoError(t, err)
	_, err = l.Deposit(ctx, w.ID, decimal.NewFromInt(1000), ledger.Posting{})
	require.NoError(t, err)

	var (
		mu  sync.Mutex
		now = time.Now().UTC().Truncate(time.Microsecond)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	states := interest.NewPostgresRepository(db.Pool)
	engine := interest.NewEngine(states, l, flatRate(decimal.NewFromInt(12)), logging.Discard(), 10).WithClock(clock)
	balance, rate := decimal.NewFromInt(1000), decimal.NewFromInt(12)

	st, err := engine.Accrue(ctx, w.ID, balance, rate)
	require.NoError(t, err)
	assert.True(t, st.Amount.IsZero())
	opened := st.LastEarned

	mu.Lock()
	now = now.Add(30 * 24 * time.Hour)
	mu.Unlock()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Accrue(ctx, w.ID, balance, rate)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	st, found, err := states.Get(ctx, w.ID)
	require.NoError(t, err)
	require.True(t, found)
	got, _ := st.Amount.Float64()
	assert.InDelta(t, 9.9102, got, 0.001)
	assert.True(t, st.LastEarned.Equal(opened.Add(30*24*time.Hour)))

	mu.Lock()
	now = now.Add(2 * 24 * time.Hour)
	mu.Unlock()
	current, err := l.Wallet(ctx, w.ID)
	require.NoError(t, err)
	tx, paid, err := engine.Payout(ctx, current)
	require.NoError(t, err)
	require.True(t, paid)
	assert.True(t, tx.Amount.Equal(st.Amount.Truncate(2)))

	after, _, err := states.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, after.Amount.Equal(st.Amount.Sub(tx.Amount)))
	assert.True(t, after.LastPayout.Equal(clock()))
}
