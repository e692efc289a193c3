package savings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/events"
	"github.com/congo-pay/congo_save/internal/ledger"
)

// Service implements createSaving and joinChallenge, and answers owner and
// rate lookups for the ledger, interest and transfer components.
type Service struct {
	repo      Repository
	ledger    ledger.Ledger
	publisher events.Publisher
	logger    logrus.FieldLogger
	now       func() time.Time

	plans sync.Map // uuid.UUID -> Plan; plans are immutable
}

// NewService wires the savings service.
func NewService(repo Repository, l ledger.Ledger, publisher events.Publisher, logger logrus.FieldLogger) *Service {
	if publisher == nil {
		publisher = events.Discard
	}
	return &Service{repo: repo, ledger: l, publisher: publisher, logger: logger, now: time.Now}
}

// WithClock replaces time.Now. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Repository exposes the underlying repository to the resolver.
func (s *Service) Repository() Repository { return s.repo }

// Plan returns a plan, cached after the first lookup.
func (s *Service) Plan(ctx context.Context, id uuid.UUID) (Plan, error) {
	if cached, ok := s.plans.Load(id); ok {
		return cached.(Plan), nil
	}
	plan, err := s.repo.GetPlan(ctx, id)
	if err != nil {
		return Plan{}, err
	}
	s.plans.Store(id, plan)
	return plan, nil
}

// CreateSaving validates the input, stores the saving and opens its wallet.
// The creator of a challenge saving joins it straight away.
func (s *Service) CreateSaving(ctx context.Context, in CreateInput) (Saving, ledger.Wallet, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.UserID == uuid.Nil {
		return Saving{}, ledger.Wallet{}, fmt.Errorf("%w: user is required", ErrInvalidSaving)
	}
	if in.Name == "" {
		return Saving{}, ledger.Wallet{}, fmt.Errorf("%w: name is required", ErrInvalidSaving)
	}
	if !in.Target.IsPositive() {
		return Saving{}, ledger.Wallet{}, fmt.Errorf("%w: target must be positive", ErrInvalidSaving)
	}
	if in.Interval == "" {
		in.Interval = IntervalMonthly
	}
	if !in.Interval.Valid() {
		return Saving{}, ledger.Wallet{}, fmt.Errorf("%w: unknown interval %q", ErrInvalidSaving, in.Interval)
	}
	now := s.now()
	if in.Deadline != nil && !in.Deadline.After(now) {
		return Saving{}, ledger.Wallet{}, fmt.Errorf("%w: deadline must be in the future", ErrInvalidSaving)
	}
	if in.Contributions != nil && *in.Contributions <= 0 {
		return Saving{}, ledger.Wallet{}, fmt.Errorf("%w: contributions must be positive", ErrInvalidSaving)
	}

	plan, err := s.Plan(ctx, in.PlanID)
	if err != nil {
		return Saving{}, ledger.Wallet{}, err
	}
	if plan.IsChallenge() && in.Deadline == nil {
		return Saving{}, ledger.Wallet{}, fmt.Errorf("%w: challenges need a deadline", ErrInvalidSaving)
	}

	saving := Saving{
		ID:            uuid.New(),
		UserID:        in.UserID,
		PlanID:        plan.ID,
		Name:          in.Name,
		Target:        in.Target,
		Deadline:      in.Deadline,
		Contributions: in.Contributions,
		Interval:      in.Interval,
		IsChallenge:   plan.IsChallenge(),
		Active:        true,
		CreatedAt:     now,
	}
	if err := s.repo.CreateSaving(ctx, saving); err != nil {
		return Saving{}, ledger.Wallet{}, fmt.Errorf("create saving: %w", err)
	}

	wallet, err := s.ledger.EnsureWallet(ctx, ledger.SavingOwner(saving.ID), ledger.WalletSpec{Name: saving.Name})
	if err != nil {
		s.discard(ctx, saving.ID)
		return Saving{}, ledger.Wallet{}, fmt.Errorf("open saving wallet: %w", err)
	}

	if saving.IsChallenge {
		if _, _, err := s.JoinChallenge(ctx, in.UserID, saving.ID); err != nil {
			s.discard(ctx, saving.ID)
			return Saving{}, ledger.Wallet{}, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"saving_id": saving.ID,
		"user_id":   saving.UserID,
		"plan":      plan.Name,
	}).Info("saving created")
	return saving, wallet, nil
}

// discard removes a saving whose setup did not finish. A wallet opened for it
// is left empty and unreachable.
func (s *Service) discard(ctx context.Context, id uuid.UUID) {
	if err := s.repo.DeleteSaving(context.WithoutCancel(ctx), id); err != nil {
		s.logger.WithError(err).WithField("saving_id", id).Error("discard incomplete saving")
	}
}

// JoinChallenge enrols userID in an active challenge saving and opens the
// participant's stake wallet.
func (s *Service) JoinChallenge(ctx context.Context, userID, savingID uuid.UUID) (UserChallenge, ledger.Wallet, error) {
	saving, err := s.repo.GetSaving(ctx, savingID)
	if err != nil {
		return UserChallenge{}, ledger.Wallet{}, err
	}
	if !saving.IsChallenge {
		return UserChallenge{}, ledger.Wallet{}, ErrNotChallenge
	}
	now := s.now()
	if !saving.Active || saving.PastDeadline(now) {
		return UserChallenge{}, ledger.Wallet{}, ErrAlreadyMatured
	}

	uc := UserChallenge{ID: uuid.New(), SavingID: savingID, UserID: userID, CreatedAt: now}
	if err := s.repo.CreateUserChallenge(ctx, uc); err != nil {
		return UserChallenge{}, ledger.Wallet{}, err
	}

	wallet, err := s.ledger.EnsureWallet(ctx, ledger.ChallengeOwner(uc.ID), ledger.WalletSpec{Name: saving.Name})
	if err != nil {
		return UserChallenge{}, ledger.Wallet{}, fmt.Errorf("open challenge wallet: %w", err)
	}

	s.publisher.Emit(ctx, events.Event{
		Type:        events.TypeChallengeJoined,
		OwnerID:     userID,
		SavingID:    savingID,
		Amount:      saving.Target,
		Description: fmt.Sprintf("You joined the %s challenge", saving.Name),
	})
	return uc, wallet, nil
}

// Details is a saving together with its wallet balance.
type Details struct {
	Saving  Saving          `json:"saving"`
	Plan    Plan            `json:"plan"`
	Wallet  ledger.Wallet   `json:"wallet"`
	Balance decimal.Decimal `json:"balance"`
}

// Get loads a saving the user owns or takes part in.
func (s *Service) Get(ctx context.Context, userID, savingID uuid.UUID) (Details, error) {
	saving, err := s.repo.GetSaving(ctx, savingID)
	if err != nil {
		return Details{}, err
	}
	if saving.UserID != userID && !s.participates(ctx, userID, saving) {
		return Details{}, ErrSavingNotFound
	}
	plan, err := s.Plan(ctx, saving.PlanID)
	if err != nil {
		return Details{}, err
	}
	wallet, err := s.ledger.WalletByOwner(ctx, ledger.SavingOwner(saving.ID), ledger.DefaultSlug)
	if err != nil {
		return Details{}, err
	}
	return Details{Saving: saving, Plan: plan, Wallet: wallet, Balance: wallet.Balance}, nil
}

func (s *Service) participates(ctx context.Context, userID uuid.UUID, saving Saving) bool {
	if !saving.IsChallenge {
		return false
	}
	participants, err := s.repo.Participants(ctx, saving.ID)
	if err != nil {
		return false
	}
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// UserFor resolves the user controlling a wallet owner.
func (s *Service) UserFor(ctx context.Context, owner ledger.Owner) (uuid.UUID, error) {
	switch owner.Kind {
	case ledger.OwnerUser:
		return owner.ID, nil
	case ledger.OwnerSaving:
		saving, err := s.repo.GetSaving(ctx, owner.ID)
		if err != nil {
			return uuid.Nil, err
		}
		return saving.UserID, nil
	case ledger.OwnerChallenge:
		uc, err := s.repo.GetUserChallenge(ctx, owner.ID)
		if err != nil {
			return uuid.Nil, err
		}
		return uc.UserID, nil
	default:
		return uuid.Nil, fmt.Errorf("unknown owner kind %q", owner.Kind)
	}
}

// RateFor returns the plan rate of a saving owner and zero for every other
// owner.
func (s *Service) RateFor(ctx context.Context, owner ledger.Owner) (decimal.Decimal, error) {
	if owner.Kind != ledger.OwnerSaving {
		return decimal.Zero, nil
	}
	saving, err := s.repo.GetSaving(ctx, owner.ID)
	if err != nil {
		return decimal.Zero, err
	}
	plan, err := s.Plan(ctx, saving.PlanID)
	if err != nil {
		return decimal.Zero, err
	}
	return plan.InterestRate, nil
}

// CheckWithdrawal rejects withdrawals from saving wallets that are still
// locked: active savings on an unbreakable plan before their minimum lock
// period and deadline have passed.
func (s *Service) CheckWithdrawal(ctx context.Context, owner ledger.Owner) error {
	if owner.Kind == ledger.OwnerUser {
		return nil
	}

	var saving Saving
	switch owner.Kind {
	case ledger.OwnerSaving:
		var err error
		if saving, err = s.repo.GetSaving(ctx, owner.ID); err != nil {
			return err
		}
	case ledger.OwnerChallenge:
		uc, err := s.repo.GetUserChallenge(ctx, owner.ID)
		if err != nil {
			return err
		}
		if saving, err = s.repo.GetSaving(ctx, uc.SavingID); err != nil {
			return err
		}
	}
	if !saving.Active {
		return nil
	}

	plan, err := s.Plan(ctx, saving.PlanID)
	if err != nil {
		return err
	}
	if plan.Breakable {
		return nil
	}
	now := s.now()
	lockEnds := saving.CreatedAt.AddDate(0, 0, plan.MinLockDays)
	if now.Before(lockEnds) || (saving.Deadline != nil && now.Before(*saving.Deadline)) {
		return ErrLocked
	}
	return nil
}

// SavingFor returns the saving a saving or challenge wallet belongs to.
func (s *Service) SavingFor(ctx context.Context, owner ledger.Owner) (Saving, error) {
	switch owner.Kind {
	case ledger.OwnerSaving:
		return s.repo.GetSaving(ctx, owner.ID)
	case ledger.OwnerChallenge:
		uc, err := s.repo.GetUserChallenge(ctx, owner.ID)
		if err != nil {
			return Saving{}, err
		}
		return s.repo.GetSaving(ctx, uc.SavingID)
	default:
		return Saving{}, errors.New("owner has no saving")
	}
}
