package savings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/congo_save/internal/events"
	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/logging"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo     Repository
	ledger   *ledger.InMemoryLedger
	recorder *events.Recorder
	svc      *Service
	now      time.Time

	vault     Plan
	flex      Plan
	challenge Plan
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     NewMemoryRepository(),
		recorder: &events.Recorder{},
		now:      start,
	}
	clock := func() time.Time { return f.now }
	f.ledger = ledger.NewInMemory(ledger.WithClock(clock))
	f.svc = NewService(f.repo, f.ledger, f.recorder, logging.Discard()).WithClock(clock)

	ctx := context.Background()
	f.vault = Plan{ID: uuid.New(), Name: "Vault", Kind: PlanVault, InterestRate: decimal.NewFromInt(12), MinLockDays: 30}
	f.flex = Plan{ID: uuid.New(), Name: "Flex", Kind: PlanFlex, InterestRate: decimal.NewFromInt(4), Breakable: true}
	f.challenge = Plan{ID: uuid.New(), Name: "Challenge", Kind: PlanChallenge}
	for _, p := range []Plan{f.vault, f.flex, f.challenge} {
		require.NoError(t, f.repo.CreatePlan(ctx, p))
	}
	return f
}

func (f *fixture) create(t *testing.T, plan Plan, user uuid.UUID, target string, deadline *time.Time) (Saving, ledger.Wallet) {
	t.Helper()
	s, w, err := f.svc.CreateSaving(context.Background(), CreateInput{
		UserID:   user,
		PlanID:   plan.ID,
		Name:     plan.Name + " goal",
		Target:   decimal.RequireFromString(target),
		Deadline: deadline,
	})
	require.NoError(t, err)
	return s, w
}

func TestCreateSavingOpensWallet(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()

	s, w := f.create(t, f.vault, user, "1000", nil)

	assert.True(t, s.Active)
	assert.False(t, s.IsChallenge)
	assert.Equal(t, IntervalMonthly, s.Interval)
	assert.Equal(t, ledger.SavingOwner(s.ID), w.Owner)
	assert.True(t, w.Balance.IsZero())

	got, err := f.svc.Get(context.Background(), user, s.ID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.Wallet.ID)
	assert.Equal(t, f.vault.Name, got.Plan.Name)
}

func TestCreateSavingValidation(t *testing.T) {
	f := newFixture(t)
	past := start.Add(-time.Hour)
	zero := 0

	cases := map[string]CreateInput{
		"missing name":      {UserID: uuid.New(), PlanID: f.vault.ID, Target: decimal.NewFromInt(10)},
		"zero target":       {UserID: uuid.New(), PlanID: f.vault.ID, Name: "x"},
		"bad interval":      {UserID: uuid.New(), PlanID: f.vault.ID, Name: "x", Target: decimal.NewFromInt(10), Interval: "hourly"},
		"past deadline":     {UserID: uuid.New(), PlanID: f.vault.ID, Name: "x", Target: decimal.NewFromInt(10), Deadline: &past},
		"zero contribution": {UserID: uuid.New(), PlanID: f.vault.ID, Name: "x", Target: decimal.NewFromInt(10), Contributions: &zero},
		"open challenge":    {UserID: uuid.New(), PlanID: f.challenge.ID, Name: "x", Target: decimal.NewFromInt(10)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.svc.CreateSaving(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidSaving)
		})
	}

	_, _, err := f.svc.CreateSaving(context.Background(), CreateInput{
		UserID: uuid.New(), PlanID: uuid.New(), Name: "x", Target: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

type failingWalletLedger struct {
	ledger.Ledger
	kind ledger.OwnerKind
}

func (l failingWalletLedger) EnsureWallet(ctx context.Context, owner ledger.Owner, spec ledger.WalletSpec) (ledger.Wallet, error) {
	if owner.Kind == l.kind {
		return ledger.Wallet{}, errors.New("wallet store unavailable")
	}
	return l.Ledger.EnsureWallet(ctx, owner, spec)
}

func TestCreateSavingDiscardsIncompleteSetup(t *testing.T) {
	deadline := start.AddDate(0, 1, 0)
	cases := map[string]struct {
		kind     ledger.OwnerKind
		plan     func(f *fixture) Plan
		deadline *time.Time
	}{
		"saving wallet":    {kind: ledger.OwnerSaving, plan: func(f *fixture) Plan { return f.vault }},
		"challenge wallet": {kind: ledger.OwnerChallenge, plan: func(f *fixture) Plan { return f.challenge }, deadline: &deadline},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			svc := NewService(f.repo, failingWalletLedger{Ledger: f.ledger, kind: tc.kind}, f.recorder, logging.Discard()).
				WithClock(func() time.Time { return f.now })

			plan := tc.plan(f)
			_, _, err := svc.CreateSaving(ctx, CreateInput{
				UserID:   uuid.New(),
				PlanID:   plan.ID,
				Name:     "doomed",
				Target:   decimal.NewFromInt(100),
				Deadline: tc.deadline,
			})
			require.Error(t, err)

			active, err := f.repo.ActiveSavings(ctx, plan.IsChallenge(), uuid.Nil, 10)
			require.NoError(t, err)
			assert.Empty(t, active)
		})
	}
}

func TestChallengeCreatorJoinsAutomatically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creator, other := uuid.New(), uuid.New()
	deadline := start.AddDate(0, 1, 0)

	s, _ := f.create(t, f.challenge, creator, "500", &deadline)
	require.True(t, s.IsChallenge)

	_, w, err := f.svc.JoinChallenge(ctx, other, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.OwnerChallenge, w.Owner.Kind)

	_, _, err = f.svc.JoinChallenge(ctx, other, s.ID)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	participants, err := f.repo.Participants(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)
	assert.Len(t, f.recorder.OfType(events.TypeChallengeJoined), 2)

	// Participants can read the challenge; strangers cannot.
	_, err = f.svc.Get(ctx, other, s.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, uuid.New(), s.ID)
	assert.ErrorIs(t, err, ErrSavingNotFound)
}

func TestJoinChallengeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deadline := start.AddDate(0, 0, 7)

	plain, _ := f.create(t, f.flex, uuid.New(), "100", nil)
	_, _, err := f.svc.JoinChallenge(ctx, uuid.New(), plain.ID)
	assert.ErrorIs(t, err, ErrNotChallenge)

	ch, _ := f.create(t, f.challenge, uuid.New(), "100", &deadline)
	f.now = deadline.Add(time.Minute)
	_, _, err = f.svc.JoinChallenge(ctx, uuid.New(), ch.ID)
	assert.ErrorIs(t, err, ErrAlreadyMatured)

	_, _, err = f.svc.JoinChallenge(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrSavingNotFound)
}

func TestUserForAndRateFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()
	deadline := start.AddDate(0, 1, 0)

	s, _ := f.create(t, f.vault, user, "100", nil)
	ch, _ := f.create(t, f.challenge, user, "100", &deadline)
	participants, err := f.repo.Participants(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)

	for _, owner := range []ledger.Owner{ledger.UserOwner(user), ledger.SavingOwner(s.ID), ledger.ChallengeOwner(participants[0].ID)} {
		got, err := f.svc.UserFor(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, user, got, owner.String())
	}

	rate, err := f.svc.RateFor(ctx, ledger.SavingOwner(s.ID))
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(12)))

	rate, err = f.svc.RateFor(ctx, ledger.UserOwner(user))
	require.NoError(t, err)
	assert.True(t, rate.IsZero())
}

func TestCheckWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := uuid.New()

	locked, _ := f.create(t, f.vault, user, "100", nil)
	open, _ := f.create(t, f.flex, user, "100", nil)

	assert.NoError(t, f.svc.CheckWithdrawal(ctx, ledger.UserOwner(user)))
	assert.NoError(t, f.svc.CheckWithdrawal(ctx, ledger.SavingOwner(open.ID)))
	assert.ErrorIs(t, f.svc.CheckWithdrawal(ctx, ledger.SavingOwner(locked.ID)), ErrLocked)

	f.now = start.AddDate(0, 0, 31)
	assert.NoError(t, f.svc.CheckWithdrawal(ctx, ledger.SavingOwner(locked.ID)))

	// Matured savings are always withdrawable.
	f.now = start
	require.NoError(t, f.repo.MarkMatured(ctx, locked.ID, start))
	assert.NoError(t, f.svc.CheckWithdrawal(ctx, ledger.SavingOwner(locked.ID)))
}

func TestSeedPlansIsRepeatable(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, SeedPlans(ctx, repo, DefaultPlans()))
	require.NoError(t, SeedPlans(ctx, repo, DefaultPlans()))

	vault, err := repo.GetPlan(ctx, VaultPlanID)
	require.NoError(t, err)
	assert.False(t, vault.Breakable)
	challenge, err := repo.GetPlan(ctx, ChallengePlanID)
	require.NoError(t, err)
	assert.True(t, challenge.IsChallenge())
}
