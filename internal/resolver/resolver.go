package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/events"
	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/metrics"
	"github.com/congo-pay/congo_save/internal/savings"
)

// Report summarises one resolver run. Skipped counts due savings another
// run transitioned first.
type Report struct {
	Scanned int `json:"scanned"`
	Matured int `json:"matured"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Pages   int `json:"pages"`
}

// Resolver moves savings whose deadline passed or whose target was reached
// to their terminal state and announces the outcome.
type Resolver struct {
	repo      savings.Repository
	ledger    ledger.Ledger
	publisher events.Publisher
	logger    logrus.FieldLogger
	now       func() time.Time
	pageSize  int
}

// New wires a resolver. pageSize bounds each scan chunk.
func New(repo savings.Repository, l ledger.Ledger, publisher events.Publisher, logger logrus.FieldLogger, pageSize int) *Resolver {
	if pageSize <= 0 {
		pageSize = 100
	}
	if publisher == nil {
		publisher = events.Discard
	}
	return &Resolver{
		repo:      repo,
		ledger:    l,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		pageSize:  pageSize,
	}
}

// WithClock replaces time.Now. Intended for tests.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// ResolveMatured transitions due non-challenge savings.
func (r *Resolver) ResolveMatured(ctx context.Context) (Report, error) {
	return r.scan(ctx, false, r.resolveSaving)
}

// ResolveChallenges settles due challenge savings and notifies every
// participant.
func (r *Resolver) ResolveChallenges(ctx context.Context) (Report, error) {
	return r.scan(ctx, true, r.resolveChallenge)
}

type resolveFunc func(ctx context.Context, s savings.Saving, now time.Time, report *Report) error

func (r *Resolver) scan(ctx context.Context, challenge bool, resolve resolveFunc) (Report, error) {
	var (
		report Report
		after  uuid.UUID
	)
	kind := "saving"
	if challenge {
		kind = "challenge"
	}
	log := r.logger.WithField("kind", kind)
	now := r.now()

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := r.repo.ActiveSavings(ctx, challenge, after, r.pageSize)
		if err != nil {
			return report, fmt.Errorf("list active savings: %w", err)
		}
		if len(page) == 0 {
			break
		}
		report.Pages++

		for _, s := range page {
			report.Scanned++
			if err := resolve(ctx, s, now, &report); err != nil {
				report.Failed++
				log.WithError(err).WithField("saving_id", s.ID).Error("resolve saving")
			}
		}

		after = page[len(page)-1].ID
		if len(page) < r.pageSize {
			break
		}
	}

	log.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"matured": report.Matured,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info("resolver run finished")
	return report, nil
}

func (r *Resolver) resolveSaving(ctx context.Context, s savings.Saving, now time.Time, report *Report) error {
	w, err := r.ledger.WalletByOwner(ctx, ledger.SavingOwner(s.ID), ledger.DefaultSlug)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	if !s.PastDeadline(now) && w.Balance.LessThan(s.Target) {
		return nil
	}

	batch := events.NewBatch(r.publisher)
	batch.Emit(ctx, events.Event{
		Type:        events.TypeSavingMatured,
		OwnerID:     s.UserID,
		SavingID:    s.ID,
		Amount:      w.Balance,
		Description: fmt.Sprintf("Your saving %s has matured", s.Name),
	})
	return r.transition(ctx, s, now, batch, "saving", report)
}

func (r *Resolver) resolveChallenge(ctx context.Context, s savings.Saving, now time.Time, report *Report) error {
	participants, err := r.repo.Participants(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}

	balances := make([]decimal.Decimal, len(participants))
	reached := false
	for i, p := range participants {
		w, err := r.ledger.WalletByOwner(ctx, ledger.ChallengeOwner(p.ID), ledger.DefaultSlug)
		switch {
		case errors.Is(err, ledger.ErrWalletNotFound):
			balances[i] = decimal.Zero
		case err != nil:
			return fmt.Errorf("load participant wallet: %w", err)
		default:
			balances[i] = w.Balance
		}
		if !balances[i].LessThan(s.Target) {
			reached = true
		}
	}
	if !s.PastDeadline(now) && !reached {
		return nil
	}

	// Everyone at or above the target wins; ties are not broken.
	batch := events.NewBatch(r.publisher)
	for i, p := range participants {
		if !balances[i].LessThan(s.Target) {
			batch.Emit(ctx, events.Event{
				Type:        events.TypeChallengeWon,
				OwnerID:     p.UserID,
				SavingID:    s.ID,
				Amount:      balances[i],
				Description: fmt.Sprintf("You won the %s challenge", s.Name),
			})
			continue
		}
		batch.Emit(ctx, events.Event{
			Type:        events.TypeChallengeMilestone,
			OwnerID:     p.UserID,
			SavingID:    s.ID,
			Amount:      balances[i],
			Description: fmt.Sprintf("The %s challenge ended with %s saved", s.Name, balances[i].String()),
		})
	}
	return r.transition(ctx, s, now, batch, "challenge", report)
}

// transition flips the saving to matured and releases the staged events
// only when this run performed the flip.
func (r *Resolver) transition(ctx context.Context, s savings.Saving, now time.Time, batch *events.Batch, kind string, report *Report) error {
	err := r.repo.MarkMatured(ctx, s.ID, now)
	if errors.Is(err, savings.ErrAlreadyMatured) {
		batch.Discard()
		report.Skipped++
		return nil
	}
	if err != nil {
		batch.Discard()
		return fmt.Errorf("mark matured: %w", err)
	}

	batch.Flush(ctx)
	report.Matured++
	metrics.ResolverTransitions.WithLabelValues(kind).Inc()
	r.logger.WithFields(logrus.Fields{
		"saving_id": s.ID,
		"kind":      kind,
	}).Info("saving matured")
	return nil
}
