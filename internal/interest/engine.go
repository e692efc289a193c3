package interest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/congo-pay/congo_save/internal/ledger"
	"github.com/congo-pay/congo_save/internal/metrics"
)

const (
	day = 24 * time.Hour

	// recentPostings bounds the history read to find a window's opening
	// balance.
	recentPostings = 500
)

// RateSource yields the annual interest rate (percent) that applies to a
// wallet owner. Owners that earn no interest get zero.
type RateSource interface {
	RateFor(ctx context.Context, owner ledger.Owner) (decimal.Decimal, error)
}

// Engine accrues daily-compounded interest into per-wallet accumulators and
// credits them to wallets once a month.
type Engine struct {
	repo     Repository
	ledger   ledger.Ledger
	rates    RateSource
	logger   logrus.FieldLogger
	now      func() time.Time
	pageSize int
}

// NewEngine wires an engine. pageSize bounds each sweep chunk.
func NewEngine(repo Repository, l ledger.Ledger, rates RateSource, logger logrus.FieldLogger, pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Engine{
		repo:     repo,
		ledger:   l,
		rates:    rates,
		logger:   logger,
		now:      time.Now,
		pageSize: pageSize,
	}
}

// WithClock replaces time.Now. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Accrue brings the wallet's accumulator up to date. balance is the wallet
// balance the elapsed window was held at; the accumulator is added to it so
// uncredited interest compounds too. The first call only creates the state.
// last_earned advances by whole days, so the fractional remainder of a day
// is carried into the next window.
func (e *Engine) Accrue(ctx context.Context, walletID uuid.UUID, balance, ratePercent decimal.Decimal) (State, error) {
	now := e.now()
	return e.repo.Apply(ctx, walletID, now, func(s *State, created bool) error {
		if created {
			return nil
		}
		return accrue(s, now, balance, ratePercent)
	})
}

// accrueHeld accrues on the balance read while the state is held, capped at
// the balance the wallet had when the window opened. A posting inside the
// window whose observer has not run yet earns nothing for time before it.
func (e *Engine) accrueHeld(ctx context.Context, walletID uuid.UUID, ratePercent decimal.Decimal) (State, error) {
	now := e.now()
	return e.repo.Apply(ctx, walletID, now, func(s *State, created bool) error {
		if created {
			return nil
		}
		balance, err := e.heldBalance(ctx, walletID, s.LastEarned)
		if err != nil {
			return fmt.Errorf("wallet %s: %w", walletID, err)
		}
		return accrue(s, now, balance, ratePercent)
	})
}

func (e *Engine) heldBalance(ctx context.Context, walletID uuid.UUID, since time.Time) (decimal.Decimal, error) {
	current, err := e.ledger.Balance(ctx, walletID)
	if err != nil {
		return decimal.Zero, err
	}
	recent, err := e.ledger.Transactions(ctx, walletID, recentPostings)
	if err != nil {
		return decimal.Zero, err
	}
	opening := current
	for _, tx := range recent {
		if !tx.CreatedAt.After(since) {
			break
		}
		if tx.Type != ledger.TypeInterest {
			opening = opening.Sub(tx.Amount)
		}
	}
	return decimal.Min(current, opening), nil
}

func accrue(s *State, now time.Time, balance, ratePercent decimal.Decimal) error {
	elapsed := now.Sub(s.LastEarned)
	if elapsed < 0 {
		return fmt.Errorf("wallet %s: %w", s.WalletID, ErrNegativeElapsed)
	}
	days := int64(elapsed / day)
	if days == 0 {
		return nil
	}

	principal := balance.Add(s.Amount)
	accrued, err := Compound(principal, ratePercent, days)
	if err != nil {
		return fmt.Errorf("wallet %s: %w", s.WalletID, err)
	}
	s.Amount = s.Amount.Add(accrued)
	s.LastEarned = s.LastEarned.Add(time.Duration(days) * day)
	if accrued.IsPositive() {
		metrics.InterestAccruals.Inc()
	}
	return nil
}

// Payout credits the accumulator, truncated to the wallet's precision, once
// a calendar month has passed since the last payout. The remainder stays in
// the accumulator. It reports whether a deposit was posted.
func (e *Engine) Payout(ctx context.Context, w ledger.Wallet) (ledger.Transaction, bool, error) {
	now := e.now()
	st, found, err := e.repo.Get(ctx, w.ID)
	if err != nil || !found {
		return ledger.Transaction{}, false, err
	}

	due := st.LastPayout.AddDate(0, 1, 0)
	if now.Before(due) {
		return ledger.Transaction{}, false, nil
	}
	credit := st.Amount.Truncate(w.DecimalPlaces)
	if !credit.IsPositive() {
		return ledger.Transaction{}, false, nil
	}

	// The reference is derived from the due month so a payout interrupted
	// before the state update replays instead of crediting twice.
	tx, err := e.ledger.Deposit(ctx, w.ID, credit, ledger.Posting{
		Reference: fmt.Sprintf("interest:%s:%s", w.ID, due.Format("2006-01")),
		Type:      ledger.TypeInterest,
		Meta:      map[string]any{"description": "monthly interest"},
	})
	if err != nil {
		return ledger.Transaction{}, false, fmt.Errorf("credit interest: %w", err)
	}

	_, err = e.repo.Apply(ctx, w.ID, now, func(s *State, _ bool) error {
		if !s.LastPayout.Equal(st.LastPayout) {
			return nil
		}
		s.Amount = s.Amount.Sub(tx.Amount)
		s.LastPayout = now
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, false, fmt.Errorf("settle interest state: %w", err)
	}

	metrics.InterestPayouts.Inc()
	return tx, true, nil
}

// TransactionPosted accrues interest on interest-bearing wallets after each
// committed posting, using the balance held before the posting.
func (e *Engine) TransactionPosted(ctx context.Context, w ledger.Wallet, tx ledger.Transaction) error {
	if w.Owner.Kind != ledger.OwnerSaving || tx.Type == ledger.TypeInterest {
		return nil
	}
	rate, err := e.rates.RateFor(ctx, w.Owner)
	if err != nil {
		return fmt.Errorf("interest rate for %s: %w", w.Owner, err)
	}
	if !rate.IsPositive() {
		return nil
	}
	_, err = e.Accrue(ctx, w.ID, w.Balance.Sub(tx.Amount), rate)
	return err
}

// Sweep accrues and pays out interest on every due wallet, one page at a
// time. Failures are logged and counted per wallet; cancellation is checked
// between pages.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	var (
		report SweepReport
		after  uuid.UUID
	)
	now := e.now()
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		page, err := e.repo.InterestWallets(ctx, now, after, e.pageSize)
		if err != nil {
			return report, fmt.Errorf("list interest wallets: %w", err)
		}
		if len(page) == 0 {
			break
		}
		report.Pages++

		for _, w := range page {
			report.Scanned++
			e.sweepWallet(ctx, w, &report)
		}

		after = page[len(page)-1].ID
		if len(page) < e.pageSize {
			break
		}
	}

	e.logger.WithFields(logrus.Fields{
		"scanned":  report.Scanned,
		"accrued":  report.Accrued,
		"paid_out": report.PaidOut,
		"failed":   report.Failed,
	}).Info("interest sweep finished")
	return report, nil
}

func (e *Engine) sweepWallet(ctx context.Context, w ledger.Wallet, report *SweepReport) {
	log := e.logger.WithField("wallet_id", w.ID)

	rate, err := e.rates.RateFor(ctx, w.Owner)
	if err != nil {
		e.fail(log, report, err, "resolve interest rate")
		return
	}
	if !rate.IsPositive() {
		return
	}

	before, existed, err := e.repo.Get(ctx, w.ID)
	if err != nil {
		e.fail(log, report, err, "load interest state")
		return
	}
	after, err := e.accrueHeld(ctx, w.ID, rate)
	if err != nil {
		e.fail(log, report, err, "accrue interest")
		return
	}
	if existed && !after.LastEarned.Equal(before.LastEarned) {
		report.Accrued++
	}

	if _, paid, err := e.Payout(ctx, w); err != nil {
		e.fail(log, report, err, "pay out interest")
	} else if paid {
		report.PaidOut++
	}
}

func (e *Engine) fail(log logrus.FieldLogger, report *SweepReport, err error, msg string) {
	report.Failed++
	metrics.InterestFailures.Inc()
	log.WithError(err).Error(msg)
}
