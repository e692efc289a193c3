package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Type names a savings lifecycle event.
type Type string

const (
	TypeSavingMatured         Type = "saving.matured"
	TypeSavingFunded          Type = "saving.funded"
	TypeChallengeJoined       Type = "challenge.joined"
	TypeChallengeMilestone    Type = "challenge.milestone"
	TypeChallengeWon          Type = "challenge.won"
	TypeWalletWithdrawAccount Type = "wallet.withdraw_to_account"
)

// Event is the payload handed to the notification subsystem.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        Type            `json:"type"`
	OwnerID     uuid.UUID       `json:"owner_id"`
	SavingID    uuid.UUID       `json:"saving_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Publisher accepts events for delivery. Implementations must not block
// the caller on delivery.
type Publisher interface {
	Emit(ctx context.Context, ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event)

func (f PublisherFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) {})
