package savings

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_save/internal/events"
	"github.com/congo-pay/congo_save/internal/ledger"
)

// DestinationAccountMeta is the posting meta key naming the external account
// a user withdrawal is paid out to.
const DestinationAccountMeta = "destination_account"

var milestones = []int64{25, 50, 75}

// Observer derives savings events from committed ledger postings.
type Observer struct {
	svc       *Service
	publisher events.Publisher
}

// NewObserver builds the ledger observer.
func NewObserver(svc *Service, publisher events.Publisher) *Observer {
	return &Observer{svc: svc, publisher: publisher}
}

// TransactionPosted implements ledger.Observer.
func (o *Observer) TransactionPosted(ctx context.Context, w ledger.Wallet, tx ledger.Transaction) error {
	switch w.Owner.Kind {
	case ledger.OwnerSaving:
		if !tx.Amount.IsPositive() || tx.Type == ledger.TypeInterest {
			return nil
		}
		saving, err := o.svc.SavingFor(ctx, w.Owner)
		if err != nil {
			return err
		}
		o.publisher.Emit(ctx, events.Event{
			Type:        events.TypeSavingFunded,
			OwnerID:     saving.UserID,
			SavingID:    saving.ID,
			Amount:      tx.Amount,
			Description: fmt.Sprintf("%s added to %s", tx.Amount.StringFixed(w.DecimalPlaces), saving.Name),
		})

	case ledger.OwnerChallenge:
		if !tx.Amount.IsPositive() {
			return nil
		}
		uc, err := o.svc.repo.GetUserChallenge(ctx, w.Owner.ID)
		if err != nil {
			return err
		}
		saving, err := o.svc.repo.GetSaving(ctx, uc.SavingID)
		if err != nil {
			return err
		}
		before := w.Balance.Sub(tx.Amount)
		for _, pct := range crossed(before, w.Balance, saving.Target) {
			o.publisher.Emit(ctx, events.Event{
				Type:        events.TypeChallengeMilestone,
				OwnerID:     uc.UserID,
				SavingID:    saving.ID,
				Amount:      w.Balance,
				Description: fmt.Sprintf("You reached %d%% of the %s challenge", pct, saving.Name),
			})
		}

	case ledger.OwnerUser:
		if tx.Type != ledger.TypeWithdraw {
			return nil
		}
		account, _ := tx.Meta[DestinationAccountMeta].(string)
		if account == "" {
			return nil
		}
		o.publisher.Emit(ctx, events.Event{
			Type:        events.TypeWalletWithdrawAccount,
			OwnerID:     w.Owner.ID,
			Amount:      tx.Amount.Abs(),
			Description: fmt.Sprintf("%s sent to account %s", tx.Amount.Abs().StringFixed(w.DecimalPlaces), account),
		})
	}
	return nil
}

// crossed returns the milestone percentages of target passed when a balance
// moves from before to after.
func crossed(before, after, target decimal.Decimal) []int64 {
	if !target.IsPositive() {
		return nil
	}
	var out []int64
	for _, pct := range milestones {
		mark := target.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100))
		if before.LessThan(mark) && !after.LessThan(mark) {
			out = append(out, pct)
		}
	}
	return out
}
